package trade

import (
	"fmt"

	"tradepost.gg/internal/inventory"
	"tradepost.gg/internal/protocol"
)

// slotRef identifies one location in a participant's own containers.
type slotRef struct {
	Section string
	Index   int
}

func (r slotRef) String() string {
	return fmt.Sprintf("%s:%d", r.Section, r.Index)
}

// offerEntry is a snapshot, taken at offer time, of what the offering side
// expects that slot to still contain when the trade executes. Expected
// carries the offered quantity.
type offerEntry struct {
	Slot     slotRef
	Expected inventory.ItemStack
}

// offerLedger keeps a participant's offers in insertion order, deduplicated
// by slot.
type offerLedger struct {
	order   []slotRef
	entries map[slotRef]offerEntry
}

func newOfferLedger() *offerLedger {
	return &offerLedger{entries: map[slotRef]offerEntry{}}
}

func (l *offerLedger) has(slot slotRef) bool {
	_, ok := l.entries[slot]
	return ok
}

func (l *offerLedger) put(e offerEntry) {
	if _, ok := l.entries[e.Slot]; !ok {
		l.order = append(l.order, e.Slot)
	}
	l.entries[e.Slot] = e
}

func (l *offerLedger) remove(slot slotRef) {
	if _, ok := l.entries[slot]; !ok {
		return
	}
	delete(l.entries, slot)
	for i, s := range l.order {
		if s == slot {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
}

func (l *offerLedger) at(index int) (offerEntry, bool) {
	if index < 0 || index >= len(l.order) {
		return offerEntry{}, false
	}
	return l.entries[l.order[index]], true
}

func (l *offerLedger) list() []offerEntry {
	out := make([]offerEntry, 0, len(l.order))
	for _, slot := range l.order {
		out = append(out, l.entries[slot])
	}
	return out
}

func (l *offerLedger) len() int {
	return len(l.order)
}

// session is one active negotiation between exactly two agents.
type session struct {
	id   string
	a, b string

	offersA, offersB     *offerLedger
	acceptedA, acceptedB bool

	// closing marks teardown in progress so a disconnect racing with a UI
	// dismissal cannot double-fire cancellation side effects.
	closing bool
}

func newSession(id, a, b string) *session {
	return &session{id: id, a: a, b: b, offersA: newOfferLedger(), offersB: newOfferLedger()}
}

func (ss *session) other(agentID string) string {
	if agentID == ss.a {
		return ss.b
	}
	return ss.a
}

func (ss *session) offersFor(agentID string) *offerLedger {
	if agentID == ss.a {
		return ss.offersA
	}
	return ss.offersB
}

func (ss *session) accepted(agentID string) bool {
	if agentID == ss.a {
		return ss.acceptedA
	}
	return ss.acceptedB
}

func (ss *session) setAccepted(agentID string, v bool) {
	if agentID == ss.a {
		ss.acceptedA = v
	} else {
		ss.acceptedB = v
	}
}

func (ss *session) bothAccepted() bool {
	return ss.acceptedA && ss.acceptedB
}

// resetAcceptance clears both flags. Acceptance is a claim about a frozen
// set of offers and must not survive any change to that set.
func (ss *session) resetAcceptance() {
	ss.acceptedA = false
	ss.acceptedB = false
}

// HandlePageOpened records that an agent's client is now showing the trade
// page for a session.
func (s *Service) HandlePageOpened(agentID, sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openPageByAgent[agentID] = sessionID
}

// HandlePageDismissed is the client closing the trade page. Dismissing a
// live session cancels it; a stale session id is ignored.
func (s *Service) HandlePageDismissed(agentID, sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openPageByAgent[agentID] == sessionID {
		delete(s.openPageByAgent, agentID)
	}
	ss := s.sessionsByID[sessionID]
	if ss == nil || ss.closing {
		return
	}
	if ss.a != agentID && ss.b != agentID {
		return
	}
	s.cancelSession(ss, "Trade cancelled.")
}

// HandleInventorySlotClick toggles a slot of the agent's own containers in
// or out of their offer ledger.
func (s *Service) HandleInventorySlotClick(agentID, sectionName string, slotIndex int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ss := s.sessionForAgent(agentID)
	if ss == nil {
		return
	}
	h := s.resolve(agentID)
	if h == nil || h.Containers() == nil {
		s.cancelSession(ss, "Trade cancelled: player inventory unavailable.")
		return
	}
	conts := h.Containers()
	if slotIndex < 0 || slotIndex >= conts.Capacity(sectionName) {
		return
	}

	key := slotRef{Section: sectionName, Index: slotIndex}
	ledger := ss.offersFor(agentID)
	if ledger.has(key) {
		ledger.remove(key)
		ss.resetAcceptance()
		s.refreshSession(ss)
		return
	}

	st, ok := conts.ReadSlot(sectionName, slotIndex)
	if !ok || st.IsEmpty() {
		return
	}
	ledger.put(offerEntry{Slot: key, Expected: st})
	ss.resetAcceptance()
	s.refreshSession(ss)
}

// HandleOfferSlotClick removes the offer at a position of the agent's own
// ordered ledger (the "what I'm offering" panel).
func (s *Service) HandleOfferSlotClick(agentID string, offerIndex int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ss := s.sessionForAgent(agentID)
	if ss == nil {
		return
	}
	ledger := ss.offersFor(agentID)
	e, ok := ledger.at(offerIndex)
	if !ok {
		return
	}
	ledger.remove(e.Slot)
	ss.resetAcceptance()
	s.refreshSession(ss)
}

// HandleAccept sets the agent's acceptance flag. When both flags become
// true the exchange commit runs immediately as part of this call.
func (s *Service) HandleAccept(agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ss := s.sessionForAgent(agentID)
	if ss == nil {
		return
	}
	ss.setAccepted(agentID, true)
	if ss.bothAccepted() {
		if !s.completeTrade(ss) {
			s.refreshSession(ss)
		}
		return
	}
	s.refreshSession(ss)
}

// HandleDecline cancels the session unconditionally.
func (s *Service) HandleDecline(agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ss := s.sessionForAgent(agentID)
	if ss == nil {
		return
	}
	s.cancelSession(ss, "Trade declined.")
}

// SnapshotFor builds the read projection of the agent's current session.
// It is recomputed from session state on every call, never cached. Returns
// false for no session or a stale expected id.
func (s *Service) SnapshotFor(agentID, expectedSessionID string) (protocol.TradeSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ss := s.sessionForAgent(agentID)
	if ss == nil || ss.id != expectedSessionID {
		return protocol.TradeSnapshot{}, false
	}
	otherID := ss.other(agentID)

	self := ss.offersFor(agentID)
	offered := make([]string, 0, self.len())
	for _, slot := range self.order {
		offered = append(offered, slot.String())
	}
	return protocol.TradeSnapshot{
		SessionID:        ss.id,
		SelfID:           agentID,
		OtherID:          otherID,
		OtherName:        safeName(s.resolve(otherID), otherID),
		SelfAccepted:     ss.accepted(agentID),
		OtherAccepted:    ss.accepted(otherID),
		SelfOffers:       encodeOffers(self.list()),
		OtherOffers:      encodeOffers(ss.offersFor(otherID).list()),
		SelfOfferedSlots: offered,
	}, true
}

func encodeOffers(entries []offerEntry) []protocol.TradeOffer {
	out := make([]protocol.TradeOffer, 0, len(entries))
	for _, e := range entries {
		out = append(out, protocol.TradeOffer{
			Section:   e.Slot.Section,
			SlotIndex: e.Slot.Index,
			Item:      e.Expected.Item,
			Quantity:  e.Expected.Quantity,
		})
	}
	return out
}

// refreshSession pushes a view refresh to both participants. Must hold s.mu.
func (s *Service) refreshSession(ss *session) {
	if h := s.resolve(ss.a); h != nil {
		s.pages.RefreshPage(h, ss.id)
	}
	if h := s.resolve(ss.b); h != nil {
		s.pages.RefreshPage(h, ss.id)
	}
}
