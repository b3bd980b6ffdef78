package trade

import "tradepost.gg/internal/inventory"

// removedItem is one compensating-action record: what was taken from which
// slot, kept so a later failure can restore it.
type removedItem struct {
	Slot  slotRef
	Stack inventory.ItemStack
}

// completeTrade runs the exchange commit while both acceptance flags are
// true. Returns true when the session was torn down (committed or hard
// cancelled) and false when it stays open for renegotiation; the caller
// refreshes both views in the latter case. Must hold s.mu.
func (s *Service) completeTrade(ss *session) bool {
	aRef := s.resolve(ss.a)
	bRef := s.resolve(ss.b)
	if aRef == nil || bRef == nil {
		s.cancelSession(ss, "Trade cancelled: player disconnected.")
		return true
	}
	if !s.proximity.WithinRange(aRef, bRef) {
		// A hard cancel, not a reset: distance is not something either party
		// can fix by re-clicking offers.
		s.notify(aRef, "Trade cancelled: players moved too far apart.")
		s.notify(bRef, "Trade cancelled: players moved too far apart.")
		s.record(AuditEntry{Kind: "CANCELLED", SessionID: ss.id, AgentA: ss.a, AgentB: ss.b, Detail: "out of range"})
		s.closeSession(ss, "", "")
		return true
	}

	aConts := aRef.Containers()
	bConts := bRef.Containers()
	if aConts == nil || bConts == nil {
		s.cancelSession(ss, "Trade cancelled: player inventory unavailable.")
		return true
	}

	// Revalidate every offer against live container contents; the snapshot
	// taken at offer time is a claim, not a reservation.
	aValid := pruneInvalidOffers(ss.offersA, aConts)
	bValid := pruneInvalidOffers(ss.offersB, bConts)
	if !aValid || !bValid {
		ss.resetAcceptance()
		s.notify(aRef, "Trade offer changed. Acceptances reset.")
		s.notify(bRef, "Trade offer changed. Acceptances reset.")
		s.record(AuditEntry{Kind: "RESET", SessionID: ss.id, AgentA: ss.a, AgentB: ss.b, Detail: "offer revalidation"})
		return false
	}

	incomingForA := expectedStacks(ss.offersB.list())
	incomingForB := expectedStacks(ss.offersA.list())
	if !canReceiveAfterOffering(aConts, ss.offersA.list(), incomingForA) {
		ss.resetAcceptance()
		s.notify(aRef, "You do not have enough inventory space for this trade.")
		s.notify(bRef, safeName(aRef, ss.a)+" does not have enough inventory space.")
		s.record(AuditEntry{Kind: "RESET", SessionID: ss.id, AgentA: ss.a, AgentB: ss.b, Detail: "no space: " + ss.a})
		return false
	}
	if !canReceiveAfterOffering(bConts, ss.offersB.list(), incomingForB) {
		ss.resetAcceptance()
		s.notify(bRef, "You do not have enough inventory space for this trade.")
		s.notify(aRef, safeName(bRef, ss.b)+" does not have enough inventory space.")
		s.record(AuditEntry{Kind: "RESET", SessionID: ss.id, AgentA: ss.a, AgentB: ss.b, Detail: "no space: " + ss.b})
		return false
	}

	aRemoved, ok := removeOffered(aConts, ss.offersA.list())
	if !ok {
		restoreRemoved(aConts, aRemoved)
		ss.resetAcceptance()
		s.notify(aRef, "Trade failed while collecting offered items. Acceptances reset.")
		s.notify(bRef, "Trade failed while collecting offered items. Acceptances reset.")
		s.record(AuditEntry{Kind: "RESET", SessionID: ss.id, AgentA: ss.a, AgentB: ss.b, Detail: "removal failed: " + ss.a})
		return false
	}
	bRemoved, ok := removeOffered(bConts, ss.offersB.list())
	if !ok {
		restoreRemoved(aConts, aRemoved)
		restoreRemoved(bConts, bRemoved)
		ss.resetAcceptance()
		s.notify(aRef, "Trade failed while collecting offered items. Acceptances reset.")
		s.notify(bRef, "Trade failed while collecting offered items. Acceptances reset.")
		s.record(AuditEntry{Kind: "RESET", SessionID: ss.id, AgentA: ss.a, AgentB: ss.b, Detail: "removal failed: " + ss.b})
		return false
	}

	deliveredToB, okB := deliver(bConts, aRemoved)
	var deliveredToA []inventory.ItemStack
	okA := false
	if okB {
		deliveredToA, okA = deliver(aConts, bRemoved)
	}
	if !okB || !okA {
		undoDelivery(aConts, deliveredToA)
		undoDelivery(bConts, deliveredToB)
		restoreRemoved(aConts, aRemoved)
		restoreRemoved(bConts, bRemoved)
		ss.resetAcceptance()
		s.notify(aRef, "Trade failed while transferring items. Acceptances reset.")
		s.notify(bRef, "Trade failed while transferring items. Acceptances reset.")
		s.record(AuditEntry{Kind: "RESET", SessionID: ss.id, AgentA: ss.a, AgentB: ss.b, Detail: "delivery failed"})
		return false
	}

	s.notify(aRef, "Trade completed successfully.")
	s.notify(bRef, "Trade completed successfully.")
	s.record(AuditEntry{
		Kind:      "COMPLETED",
		SessionID: ss.id,
		AgentA:    ss.a,
		AgentB:    ss.b,
		GaveA:     stacksOf(aRemoved),
		GaveB:     stacksOf(bRemoved),
	})
	s.closeSession(ss, "", "")
	return true
}

// cancelSession tears the session down with the same message to both sides.
// Idempotent under the closing guard: a disconnect racing with a UI-close
// callback fires the side effects at most once.
func (s *Service) cancelSession(ss *session, reason string) {
	if ss.closing {
		return
	}
	s.record(AuditEntry{Kind: "CANCELLED", SessionID: ss.id, AgentA: ss.a, AgentB: ss.b, Detail: reason})
	s.closeSession(ss, reason, reason)
}

func (s *Service) closeSession(ss *session, msgA, msgB string) {
	if ss.closing {
		return
	}
	ss.closing = true
	delete(s.sessionsByID, ss.id)
	delete(s.sessionByAgent, ss.a)
	delete(s.sessionByAgent, ss.b)

	aRef := s.resolve(ss.a)
	bRef := s.resolve(ss.b)
	s.notify(aRef, msgA)
	s.notify(bRef, msgB)
	s.closePageIfShowing(aRef, ss.a, ss.id)
	s.closePageIfShowing(bRef, ss.b, ss.id)
}

func (s *Service) closePageIfShowing(h Handle, agentID, sessionID string) {
	open, ok := s.openPageByAgent[agentID]
	if ok && open == sessionID {
		delete(s.openPageByAgent, agentID)
	}
	if h == nil || !ok || open != sessionID {
		return
	}
	s.pages.ClosePage(h, sessionID)
}

// pruneInvalidOffers drops every offer whose slot no longer holds an item of
// the expected kind with at least the expected quantity. Reports whether the
// ledger survived intact.
func pruneInvalidOffers(l *offerLedger, conts inventory.Containers) bool {
	var invalid []slotRef
	for _, e := range l.list() {
		cur, ok := conts.ReadSlot(e.Slot.Section, e.Slot.Index)
		if !ok || cur.IsEmpty() || !inventory.SameType(cur, e.Expected) || cur.Quantity < e.Expected.Quantity {
			invalid = append(invalid, e.Slot)
		}
	}
	for _, slot := range invalid {
		l.remove(slot)
	}
	return len(invalid) == 0
}

// canReceiveAfterOffering simulates, on a disposable copy, removing the
// participant's own offers and then inserting the entire incoming set.
func canReceiveAfterOffering(conts inventory.Containers, own []offerEntry, incoming []inventory.ItemStack) bool {
	sim := conts.Snapshot()
	for _, e := range own {
		if _, ok := sim.RemoveMatching(e.Slot.Section, e.Slot.Index, e.Expected, e.Expected.Quantity, true); !ok {
			return false
		}
	}
	for _, st := range incoming {
		if rem := sim.InsertBestEffort(st); !rem.IsEmpty() {
			return false
		}
	}
	return true
}

// removeOffered takes every offered stack out of the live containers,
// building the compensating-action log as it goes. On the first failure it
// returns what was already removed so the caller can restore it.
func removeOffered(conts inventory.Containers, offers []offerEntry) ([]removedItem, bool) {
	removed := make([]removedItem, 0, len(offers))
	for _, e := range offers {
		st, ok := conts.RemoveMatching(e.Slot.Section, e.Slot.Index, e.Expected, e.Expected.Quantity, true)
		if !ok || st.IsEmpty() {
			return removed, false
		}
		removed = append(removed, removedItem{Slot: e.Slot, Stack: st})
	}
	return removed, true
}

// restoreRemoved puts removed items back, preferring their original slots
// and falling back to best-effort placement anywhere.
func restoreRemoved(conts inventory.Containers, removed []removedItem) {
	for i := len(removed) - 1; i >= 0; i-- {
		r := removed[i]
		if r.Stack.IsEmpty() {
			continue
		}
		rem := conts.InsertAt(r.Slot.Section, r.Slot.Index, r.Stack)
		if !rem.IsEmpty() {
			conts.InsertBestEffort(rem)
		}
	}
}

// deliver inserts the counterpart's removed items, recording exactly how
// much of each stack was placed so a failure can be unwound without leaving
// the recipient holding duplicates.
func deliver(dst inventory.Containers, removed []removedItem) ([]inventory.ItemStack, bool) {
	var delivered []inventory.ItemStack
	for _, r := range removed {
		if r.Stack.IsEmpty() {
			continue
		}
		rem := dst.InsertBestEffort(r.Stack)
		placed := r.Stack.Quantity - rem.Quantity
		if placed > 0 {
			delivered = append(delivered, inventory.ItemStack{Item: r.Stack.Item, Quantity: placed})
		}
		if !rem.IsEmpty() {
			return delivered, false
		}
	}
	return delivered, true
}

func undoDelivery(dst inventory.Containers, delivered []inventory.ItemStack) {
	for i := len(delivered) - 1; i >= 0; i-- {
		dst.WithdrawBestEffort(delivered[i])
	}
}

func expectedStacks(offers []offerEntry) []inventory.ItemStack {
	out := make([]inventory.ItemStack, 0, len(offers))
	for _, e := range offers {
		out = append(out, e.Expected)
	}
	return out
}

func stacksOf(removed []removedItem) []inventory.ItemStack {
	out := make([]inventory.ItemStack, 0, len(removed))
	for _, r := range removed {
		out = append(out, r.Stack)
	}
	return out
}
