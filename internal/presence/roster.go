package presence

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"tradepost.gg/internal/inventory"
	"tradepost.gg/internal/protocol"
	"tradepost.gg/internal/trade"
)

// Member is one connected agent: identity, position and server-side
// inventory, plus the outbound event queue its connection drains.
type Member struct {
	id   string
	name string
	inv  *inventory.Inventory
	out  chan []byte

	// guarded by the roster lock
	pos [3]int
}

func (m *Member) AgentID() string { return m.id }
func (m *Member) Name() string    { return m.name }

func (m *Member) Containers() inventory.Containers { return m.inv }

func (m *Member) Inventory() *inventory.Inventory { return m.inv }

// Roster is the online-presence directory. It implements the trade core's
// Presence, Proximity and Messenger contracts.
type Roster struct {
	rangeBlocks int

	mu      sync.Mutex
	members map[string]*Member
	nextNum atomic.Uint64
}

func NewRoster(rangeBlocks int) *Roster {
	if rangeBlocks <= 0 {
		rangeBlocks = 5
	}
	return &Roster{
		rangeBlocks: rangeBlocks,
		members:     map[string]*Member{},
	}
}

// Join registers a connected agent and assigns its id.
func (r *Roster) Join(name string, inv *inventory.Inventory, out chan []byte) *Member {
	m := &Member{
		id:   fmt.Sprintf("A%d", r.nextNum.Add(1)),
		name: name,
		inv:  inv,
		out:  out,
	}
	r.mu.Lock()
	r.members[m.id] = m
	r.mu.Unlock()
	return m
}

func (r *Roster) Leave(agentID string) {
	r.mu.Lock()
	delete(r.members, agentID)
	r.mu.Unlock()
}

func (r *Roster) Resolve(agentID string) (trade.Handle, bool) {
	r.mu.Lock()
	m, ok := r.members[agentID]
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	return m, true
}

// ResolveByName finds a member by display name. Names are not unique; the
// first match wins. Used to address trade requests at other players.
func (r *Roster) ResolveByName(name string) (*Member, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.members {
		if m.name == name {
			return m, true
		}
	}
	return nil, false
}

func (r *Roster) SetPos(agentID string, pos [3]int) {
	r.mu.Lock()
	if m, ok := r.members[agentID]; ok {
		m.pos = pos
	}
	r.mu.Unlock()
}

// WithinRange applies the interaction-range rule: Chebyshev distance
// between the two agents at most rangeBlocks.
func (r *Roster) WithinRange(a, b trade.Handle) bool {
	am, okA := a.(*Member)
	bm, okB := b.(*Member)
	if !okA || !okB {
		return false
	}
	r.mu.Lock()
	pa, pb := am.pos, bm.pos
	r.mu.Unlock()
	for i := 0; i < 3; i++ {
		d := pa[i] - pb[i]
		if d < 0 {
			d = -d
		}
		if d > r.rangeBlocks {
			return false
		}
	}
	return true
}

// Notify pushes a MESSAGE event. Fire-and-forget: no-op for unknown
// handles, drops when the client queue is full.
func (r *Roster) Notify(h trade.Handle, text string) {
	m, ok := h.(*Member)
	if !ok {
		return
	}
	r.Push(m.id, protocol.Event{"type": protocol.EvMessage, "text": text})
}

// Push marshals an event and queues it for the agent without blocking.
func (r *Roster) Push(agentID string, ev protocol.Event) {
	r.mu.Lock()
	m, ok := r.members[agentID]
	r.mu.Unlock()
	if !ok {
		return
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	select {
	case m.out <- b:
	default:
		// Client is not keeping up; events are best-effort.
	}
}
