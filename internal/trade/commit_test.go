package trade

import (
	"reflect"
	"testing"

	"tradepost.gg/internal/inventory"
)

func TestCompleteTrade_SwapsItems(t *testing.T) {
	w := newFakeWorld()
	s := newTestService(w, "A1", "A2")
	invA := invOf(w, "A1")
	invB := invOf(w, "A2")
	invA.InsertAt(inventory.SectionBackpack, 0, inventory.ItemStack{Item: "WOOD", Quantity: 5})
	invB.InsertAt(inventory.SectionStorage, 1, inventory.ItemStack{Item: "STONE", Quantity: 3})
	id := startSession(t, s, w, "A1", "A2")

	s.HandleInventorySlotClick("A1", inventory.SectionBackpack, 0)
	s.HandleInventorySlotClick("A2", inventory.SectionStorage, 1)
	s.HandleAccept("A1")
	s.HandleAccept("A2")

	if got := invA.Manifest(); !reflect.DeepEqual(got, map[string]int{"STONE": 3}) {
		t.Fatalf("A manifest after trade: %v", got)
	}
	if got := invB.Manifest(); !reflect.DeepEqual(got, map[string]int{"WOOD": 5}) {
		t.Fatalf("B manifest after trade: %v", got)
	}
	if _, ok := s.SnapshotFor("A1", id); ok {
		t.Fatalf("session survived completion")
	}
	if !w.noted("A1", "Trade completed successfully.") || !w.noted("A2", "Trade completed successfully.") {
		t.Fatalf("completion notices missing")
	}
	if len(w.closes["A1"]) != 1 || len(w.closes["A2"]) != 1 {
		t.Fatalf("pages not closed: %v", w.closes)
	}

	var completed *AuditEntry
	for i := range w.records {
		if w.records[i].Kind == "COMPLETED" {
			completed = &w.records[i]
		}
	}
	if completed == nil {
		t.Fatalf("no COMPLETED record")
	}
	if len(completed.GaveA) != 1 || completed.GaveA[0].Item != "WOOD" || completed.GaveA[0].Quantity != 5 {
		t.Fatalf("GaveA wrong: %+v", completed.GaveA)
	}
	if len(completed.GaveB) != 1 || completed.GaveB[0].Item != "STONE" {
		t.Fatalf("GaveB wrong: %+v", completed.GaveB)
	}
}

func TestCompleteTrade_OneSidedGift(t *testing.T) {
	// One side offers, the other offers nothing. Stacks move whole, so the
	// full recorded stack changes hands.
	w := newFakeWorld()
	s := newTestService(w, "A1", "A2")
	invA := invOf(w, "A1")
	invA.InsertAt(inventory.SectionBackpack, 0, inventory.ItemStack{Item: "APPLE", Quantity: 7})
	_ = startSession(t, s, w, "A1", "A2")

	s.HandleInventorySlotClick("A1", inventory.SectionBackpack, 0)
	s.HandleAccept("A1")
	s.HandleAccept("A2")

	if got := invOf(w, "A2").Manifest()["APPLE"]; got != 7 {
		t.Fatalf("expected whole stack delivered, got %d", got)
	}
	if got := invA.Manifest()["APPLE"]; got != 0 {
		t.Fatalf("expected offering side emptied, got %d", got)
	}
}

func TestCompleteTrade_RevalidationResetsAcceptance(t *testing.T) {
	w := newFakeWorld()
	s := newTestService(w, "A1", "A2")
	invA := invOf(w, "A1")
	invA.InsertAt(inventory.SectionBackpack, 0, inventory.ItemStack{Item: "WOOD", Quantity: 5})
	id := startSession(t, s, w, "A1", "A2")

	s.HandleInventorySlotClick("A1", inventory.SectionBackpack, 0)
	s.HandleAccept("A1")

	// The offered slot drains behind the ledger's back before the second
	// acceptance lands.
	invA.RemoveMatching(inventory.SectionBackpack, 0, inventory.ItemStack{Item: "WOOD"}, 3, true)
	s.HandleAccept("A2")

	snap, ok := s.SnapshotFor("A1", id)
	if !ok {
		t.Fatalf("session must survive a revalidation reset")
	}
	if snap.SelfAccepted || snap.OtherAccepted {
		t.Fatalf("acceptance flags must reset: %+v", snap)
	}
	if len(snap.SelfOffers) != 0 {
		t.Fatalf("stale offer must be pruned: %+v", snap.SelfOffers)
	}
	if !w.noted("A1", "Trade offer changed") {
		t.Fatalf("reset notice missing: %v", w.notes["A1"])
	}
	if w.recorded("RESET") != 1 {
		t.Fatalf("expected one RESET record")
	}
	// Nothing moved.
	if got := invA.Manifest()["WOOD"]; got != 2 {
		t.Fatalf("inventory mutated by failed commit: %d", got)
	}
}

func TestCompleteTrade_NoSpaceResetsAcceptance(t *testing.T) {
	w := newFakeWorld()
	s := newTestService(w, "A1", "A2")
	invA := invOf(w, "A1")
	// A 1-slot inventory for B, already full of an unmergeable stack.
	invB := inventory.New(1, 0, 0, 64)
	invB.InsertAt(inventory.SectionBackpack, 0, inventory.ItemStack{Item: "IRON", Quantity: 64})
	w.handles["A2"].conts = invB

	invA.InsertAt(inventory.SectionBackpack, 0, inventory.ItemStack{Item: "WOOD", Quantity: 5})
	id := startSession(t, s, w, "A1", "A2")

	s.HandleInventorySlotClick("A1", inventory.SectionBackpack, 0)
	s.HandleAccept("A1")
	s.HandleAccept("A2")

	snap, ok := s.SnapshotFor("A1", id)
	if !ok || snap.SelfAccepted || snap.OtherAccepted {
		t.Fatalf("expected open session with reset flags, ok=%v snap=%+v", ok, snap)
	}
	if !w.noted("A2", "You do not have enough inventory space") {
		t.Fatalf("blocked side not told: %v", w.notes["A2"])
	}
	if !w.noted("A1", "does not have enough inventory space") {
		t.Fatalf("counterpart not told: %v", w.notes["A1"])
	}
	if got := invA.Manifest()["WOOD"]; got != 5 {
		t.Fatalf("inventory mutated: %d", got)
	}
	if got := invB.Manifest(); !reflect.DeepEqual(got, map[string]int{"IRON": 64}) {
		t.Fatalf("receiver mutated: %v", got)
	}
}

func TestCompleteTrade_SpaceFreedByOwnOfferCounts(t *testing.T) {
	// The receiver's only slot is occupied by the very stack they offer, so
	// the incoming stack fits in the space their own offer frees up.
	w := newFakeWorld()
	s := newTestService(w, "A1", "A2")
	invA := invOf(w, "A1")
	invB := inventory.New(1, 0, 0, 64)
	invB.InsertAt(inventory.SectionBackpack, 0, inventory.ItemStack{Item: "IRON", Quantity: 10})
	w.handles["A2"].conts = invB
	invA.InsertAt(inventory.SectionBackpack, 0, inventory.ItemStack{Item: "WOOD", Quantity: 5})
	_ = startSession(t, s, w, "A1", "A2")

	s.HandleInventorySlotClick("A1", inventory.SectionBackpack, 0)
	s.HandleInventorySlotClick("A2", inventory.SectionBackpack, 0)
	s.HandleAccept("A1")
	s.HandleAccept("A2")

	if got := invB.Manifest(); !reflect.DeepEqual(got, map[string]int{"WOOD": 5}) {
		t.Fatalf("trade should have completed: %v", got)
	}
	if got := invA.Manifest(); !reflect.DeepEqual(got, map[string]int{"IRON": 10}) {
		t.Fatalf("trade should have completed: %v", got)
	}
}

func TestCompleteTrade_OutOfRangeCancels(t *testing.T) {
	w := newFakeWorld()
	s := newTestService(w, "A1", "A2")
	invOf(w, "A1").InsertAt(inventory.SectionBackpack, 0, inventory.ItemStack{Item: "WOOD", Quantity: 5})
	id := startSession(t, s, w, "A1", "A2")

	s.HandleInventorySlotClick("A1", inventory.SectionBackpack, 0)
	s.HandleAccept("A1")
	w.inRange = false
	s.HandleAccept("A2")

	if _, ok := s.SnapshotFor("A1", id); ok {
		t.Fatalf("session must cancel when parties separate")
	}
	if !w.noted("A1", "moved too far apart") {
		t.Fatalf("range notice missing: %v", w.notes["A1"])
	}
	if got := invOf(w, "A1").Manifest()["WOOD"]; got != 5 {
		t.Fatalf("inventory mutated: %d", got)
	}
}

func TestCompleteTrade_DisconnectBetweenAcceptsCancels(t *testing.T) {
	w := newFakeWorld()
	s := newTestService(w, "A1", "A2")
	id := startSession(t, s, w, "A1", "A2")

	s.HandleAccept("A1")
	w.dropAgent("A1")
	s.HandleAccept("A2")

	if _, ok := s.SnapshotFor("A2", id); ok {
		t.Fatalf("session must cancel on unresolvable participant")
	}
	if !w.noted("A2", "player disconnected") {
		t.Fatalf("survivor not told: %v", w.notes["A2"])
	}
}

func TestCompleteTrade_RemovalFailureRollsBack(t *testing.T) {
	w := newFakeWorld()
	s := newTestService(w, "A1", "A2")
	invA := invOf(w, "A1")
	invB := invOf(w, "A2")
	invA.InsertAt(inventory.SectionBackpack, 0, inventory.ItemStack{Item: "WOOD", Quantity: 5})
	invA.InsertAt(inventory.SectionBackpack, 1, inventory.ItemStack{Item: "APPLE", Quantity: 2})
	invB.InsertAt(inventory.SectionBackpack, 0, inventory.ItemStack{Item: "STONE", Quantity: 3})

	// Snapshot simulation sees a clean inventory, but the second live
	// removal on A's side fails.
	flaky := &flakyContainers{Containers: invA, failRemoveOn: 2}
	w.handles["A1"].conts = flaky

	id := startSession(t, s, w, "A1", "A2")
	s.HandleInventorySlotClick("A1", inventory.SectionBackpack, 0)
	s.HandleInventorySlotClick("A1", inventory.SectionBackpack, 1)
	s.HandleInventorySlotClick("A2", inventory.SectionBackpack, 0)
	s.HandleAccept("A1")
	s.HandleAccept("A2")

	snap, ok := s.SnapshotFor("A1", id)
	if !ok || snap.SelfAccepted || snap.OtherAccepted {
		t.Fatalf("expected open session with reset flags, ok=%v", ok)
	}
	if !w.noted("A1", "collecting offered items") {
		t.Fatalf("failure notice missing: %v", w.notes["A1"])
	}
	if got := invA.Manifest(); !reflect.DeepEqual(got, map[string]int{"WOOD": 5, "APPLE": 2}) {
		t.Fatalf("A not restored: %v", got)
	}
	if got := invB.Manifest(); !reflect.DeepEqual(got, map[string]int{"STONE": 3}) {
		t.Fatalf("B not restored: %v", got)
	}
}

func TestCompleteTrade_DeliveryFailureRollsBack(t *testing.T) {
	w := newFakeWorld()
	s := newTestService(w, "A1", "A2")
	invA := invOf(w, "A1")
	invB := invOf(w, "A2")
	invA.InsertAt(inventory.SectionBackpack, 0, inventory.ItemStack{Item: "WOOD", Quantity: 6})
	invB.InsertAt(inventory.SectionBackpack, 0, inventory.ItemStack{Item: "STONE", Quantity: 4})

	// B's live insert places half the stack then reports failure, so the
	// rollback also has to claw back what was already delivered.
	flaky := &flakyContainers{Containers: invB, failInsertOn: 1}
	w.handles["A2"].conts = flaky

	id := startSession(t, s, w, "A1", "A2")
	s.HandleInventorySlotClick("A1", inventory.SectionBackpack, 0)
	s.HandleInventorySlotClick("A2", inventory.SectionBackpack, 0)
	s.HandleAccept("A1")
	s.HandleAccept("A2")

	snap, ok := s.SnapshotFor("A1", id)
	if !ok || snap.SelfAccepted || snap.OtherAccepted {
		t.Fatalf("expected open session with reset flags, ok=%v", ok)
	}
	if !w.noted("A1", "transferring items") {
		t.Fatalf("failure notice missing: %v", w.notes["A1"])
	}
	// No item created, destroyed or stranded on either side.
	if got := invA.Manifest(); !reflect.DeepEqual(got, map[string]int{"WOOD": 6}) {
		t.Fatalf("A not restored: %v", got)
	}
	if got := invB.Manifest(); !reflect.DeepEqual(got, map[string]int{"STONE": 4}) {
		t.Fatalf("B not restored: %v", got)
	}
	if w.recorded("COMPLETED") != 0 {
		t.Fatalf("failed trade must not record COMPLETED")
	}
}

func TestCompleteTrade_EmptyTradeCompletes(t *testing.T) {
	// Two empty ledgers and two accepts is a valid, if pointless, trade.
	w := newFakeWorld()
	s := newTestService(w, "A1", "A2")
	id := startSession(t, s, w, "A1", "A2")

	s.HandleAccept("A1")
	s.HandleAccept("A2")

	if _, ok := s.SnapshotFor("A1", id); ok {
		t.Fatalf("session must close")
	}
	if w.recorded("COMPLETED") != 1 {
		t.Fatalf("expected COMPLETED record")
	}
}
