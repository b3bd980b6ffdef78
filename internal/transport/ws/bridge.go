package ws

import (
	"tradepost.gg/internal/presence"
	"tradepost.gg/internal/protocol"
	"tradepost.gg/internal/trade"
)

// Bridge is the presentation side of trading: the core asks it to show,
// refresh or close trade pages, and it turns those into client events.
// Refresh deliberately carries no snapshot — the core calls RefreshPage
// while holding its lock, so the client follows up with GET_TRADE and the
// snapshot is projected on that later call.
type Bridge struct {
	roster *presence.Roster
}

func NewBridge(roster *presence.Roster) *Bridge {
	return &Bridge{roster: roster}
}

func (b *Bridge) OpenPrompt(target trade.Handle, requesterID, requesterName string) {
	b.roster.Push(target.AgentID(), protocol.Event{
		"type":           protocol.EvTradePrompt,
		"requester_id":   requesterID,
		"requester_name": requesterName,
	})
}

func (b *Bridge) OpenSession(h trade.Handle, sessionID string) {
	b.roster.Push(h.AgentID(), protocol.Event{
		"type":       protocol.EvTradeOpen,
		"session_id": sessionID,
	})
}

func (b *Bridge) RefreshPage(h trade.Handle, sessionID string) {
	b.roster.Push(h.AgentID(), protocol.Event{
		"type":       protocol.EvTradeRefresh,
		"session_id": sessionID,
	})
}

func (b *Bridge) ClosePage(h trade.Handle, sessionID string) {
	b.roster.Push(h.AgentID(), protocol.Event{
		"type":       protocol.EvTradeClose,
		"session_id": sessionID,
	})
}
