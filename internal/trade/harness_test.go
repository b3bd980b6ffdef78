package trade

import (
	"strings"
	"testing"

	"tradepost.gg/internal/inventory"
)

// fakeWorld implements every collaborator contract and records all side
// effects so tests can assert on notifications and page traffic.
type fakeWorld struct {
	handles map[string]*fakeHandle
	inRange bool

	notes     map[string][]string // agent -> notification texts
	prompts   map[string][]string // target -> requester ids
	opens     map[string][]string // agent -> session ids opened
	refreshes map[string]int
	closes    map[string][]string // agent -> session ids closed
	records   []AuditEntry
}

type fakeHandle struct {
	id    string
	name  string
	conts inventory.Containers
}

func (h *fakeHandle) AgentID() string                  { return h.id }
func (h *fakeHandle) Name() string                     { return h.name }
func (h *fakeHandle) Containers() inventory.Containers { return h.conts }

func newFakeWorld() *fakeWorld {
	return &fakeWorld{
		handles:   map[string]*fakeHandle{},
		inRange:   true,
		notes:     map[string][]string{},
		prompts:   map[string][]string{},
		opens:     map[string][]string{},
		refreshes: map[string]int{},
		closes:    map[string][]string{},
	}
}

func (w *fakeWorld) addAgent(id string, inv *inventory.Inventory) {
	w.handles[id] = &fakeHandle{id: id, name: "name-" + id, conts: inv}
}

func (w *fakeWorld) dropAgent(id string) {
	delete(w.handles, id)
}

func (w *fakeWorld) Resolve(agentID string) (Handle, bool) {
	h, ok := w.handles[agentID]
	if !ok {
		return nil, false
	}
	return h, true
}

func (w *fakeWorld) WithinRange(a, b Handle) bool { return w.inRange }

func (w *fakeWorld) Notify(h Handle, text string) {
	w.notes[h.AgentID()] = append(w.notes[h.AgentID()], text)
}

func (w *fakeWorld) OpenPrompt(target Handle, requesterID, requesterName string) {
	w.prompts[target.AgentID()] = append(w.prompts[target.AgentID()], requesterID)
}

func (w *fakeWorld) OpenSession(h Handle, sessionID string) {
	w.opens[h.AgentID()] = append(w.opens[h.AgentID()], sessionID)
}

func (w *fakeWorld) RefreshPage(h Handle, sessionID string) {
	w.refreshes[h.AgentID()]++
}

func (w *fakeWorld) ClosePage(h Handle, sessionID string) {
	w.closes[h.AgentID()] = append(w.closes[h.AgentID()], sessionID)
}

func (w *fakeWorld) Record(e AuditEntry) {
	w.records = append(w.records, e)
}

func (w *fakeWorld) noted(agentID, substr string) bool {
	for _, n := range w.notes[agentID] {
		if strings.Contains(n, substr) {
			return true
		}
	}
	return false
}

func (w *fakeWorld) recorded(kind string) int {
	n := 0
	for _, e := range w.records {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func newTestInventory() *inventory.Inventory {
	return inventory.New(8, 4, 4, 64)
}

func newTestService(w *fakeWorld, agents ...string) *Service {
	for _, id := range agents {
		w.addAgent(id, newTestInventory())
	}
	s := NewService(w, w, w, w, Config{})
	s.SetRecorder(w)
	return s
}

// startSession runs the full request/accept handshake and returns the
// session id both participants were shown.
func startSession(t *testing.T, s *Service, w *fakeWorld, a, b string) string {
	t.Helper()
	if err := s.RequestTrade(a, b); err != nil {
		t.Fatalf("request trade: %v", err)
	}
	s.RespondToRequest(b, a, true)
	opens := w.opens[a]
	if len(opens) == 0 {
		t.Fatalf("expected session opened for %s", a)
	}
	id := opens[len(opens)-1]
	s.HandlePageOpened(a, id)
	s.HandlePageOpened(b, id)
	return id
}

func invOf(w *fakeWorld, agentID string) *inventory.Inventory {
	return w.handles[agentID].conts.(*inventory.Inventory)
}

// flakyContainers wraps a live inventory and fails the nth live removal or
// insertion while leaving simulation snapshots untouched, so commit-time
// partial failures can be scripted deterministically.
type flakyContainers struct {
	inventory.Containers
	removeCalls  int
	failRemoveOn int // 1-based call number, 0 = never
	insertCalls  int
	failInsertOn int // 1-based; inserts half then reports the rest unplaced
}

func (f *flakyContainers) RemoveMatching(section string, index int, expected inventory.ItemStack, qty int, exact bool) (inventory.ItemStack, bool) {
	f.removeCalls++
	if f.failRemoveOn > 0 && f.removeCalls == f.failRemoveOn {
		return inventory.ItemStack{}, false
	}
	return f.Containers.RemoveMatching(section, index, expected, qty, exact)
}

func (f *flakyContainers) InsertBestEffort(st inventory.ItemStack) inventory.ItemStack {
	f.insertCalls++
	if f.failInsertOn > 0 && f.insertCalls == f.failInsertOn {
		half := st.Quantity / 2
		if half > 0 {
			f.Containers.InsertBestEffort(inventory.ItemStack{Item: st.Item, Quantity: half})
		}
		return inventory.ItemStack{Item: st.Item, Quantity: st.Quantity - half}
	}
	return f.Containers.InsertBestEffort(st)
}
