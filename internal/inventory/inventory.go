package inventory

// Named sections of an agent inventory. Order matters: combined
// best-effort insertion fills backpack first, then storage, then hotbar.
const (
	SectionBackpack = "backpack"
	SectionStorage  = "storage"
	SectionHotbar   = "hotbar"
)

var sectionOrder = []string{SectionBackpack, SectionStorage, SectionHotbar}

type ItemStack struct {
	Item     string `json:"item"`
	Quantity int    `json:"quantity"`
}

func (s ItemStack) IsEmpty() bool {
	return s.Item == "" || s.Quantity <= 0
}

// SameType reports whether two stacks hold the same item kind.
func SameType(a, b ItemStack) bool {
	return a.Item != "" && a.Item == b.Item
}

// Containers is the narrow surface the trade core needs from an agent's
// storage: slot reads, typed removal, best-effort insertion and a disposable
// deep copy for capacity simulation.
type Containers interface {
	SectionNames() []string
	Capacity(section string) int
	ReadSlot(section string, index int) (ItemStack, bool)
	RemoveMatching(section string, index int, expected ItemStack, qty int, exact bool) (ItemStack, bool)
	InsertAt(section string, index int, st ItemStack) ItemStack
	InsertBestEffort(st ItemStack) ItemStack
	WithdrawBestEffort(st ItemStack) ItemStack
	Snapshot() Containers
}

// Inventory is the server-authoritative storage of one agent.
// Not goroutine-safe; callers serialize access (the trade core holds its own
// lock, the roster owns membership).
type Inventory struct {
	sections   map[string]*section
	stackLimit int
}

type section struct {
	slots []ItemStack
}

func New(backpackCap, storageCap, hotbarCap, stackLimit int) *Inventory {
	if stackLimit <= 0 {
		stackLimit = 64
	}
	return &Inventory{
		sections: map[string]*section{
			SectionBackpack: {slots: make([]ItemStack, backpackCap)},
			SectionStorage:  {slots: make([]ItemStack, storageCap)},
			SectionHotbar:   {slots: make([]ItemStack, hotbarCap)},
		},
		stackLimit: stackLimit,
	}
}

func (inv *Inventory) SectionNames() []string {
	names := make([]string, 0, len(sectionOrder))
	for _, n := range sectionOrder {
		if _, ok := inv.sections[n]; ok {
			names = append(names, n)
		}
	}
	return names
}

func (inv *Inventory) Capacity(name string) int {
	sec := inv.sections[name]
	if sec == nil {
		return 0
	}
	return len(sec.slots)
}

// ReadSlot returns the stack at a slot. The second return is false when the
// section is unknown or the index is out of bounds.
func (inv *Inventory) ReadSlot(name string, index int) (ItemStack, bool) {
	sec := inv.sections[name]
	if sec == nil || index < 0 || index >= len(sec.slots) {
		return ItemStack{}, false
	}
	return sec.slots[index], true
}

// RemoveMatching removes qty items from a slot, but only if the slot holds
// the expected item kind. With exact=true the slot must hold at least qty;
// otherwise whatever is present (up to qty) is taken. Returns the removed
// stack and whether the removal succeeded.
func (inv *Inventory) RemoveMatching(name string, index int, expected ItemStack, qty int, exact bool) (ItemStack, bool) {
	sec := inv.sections[name]
	if sec == nil || index < 0 || index >= len(sec.slots) || qty <= 0 {
		return ItemStack{}, false
	}
	cur := sec.slots[index]
	if cur.IsEmpty() || !SameType(cur, expected) {
		return ItemStack{}, false
	}
	if exact && cur.Quantity < qty {
		return ItemStack{}, false
	}
	take := qty
	if take > cur.Quantity {
		take = cur.Quantity
	}
	cur.Quantity -= take
	if cur.Quantity == 0 {
		cur = ItemStack{}
	}
	sec.slots[index] = cur
	return ItemStack{Item: expected.Item, Quantity: take}, true
}

// InsertAt puts a stack back into a specific slot, merging with a stack of
// the same kind up to the stack limit. Returns the unplaced remainder.
// Used by rollback to restore items to their original slots first.
func (inv *Inventory) InsertAt(name string, index int, st ItemStack) ItemStack {
	sec := inv.sections[name]
	if sec == nil || index < 0 || index >= len(sec.slots) || st.IsEmpty() {
		return st
	}
	cur := sec.slots[index]
	switch {
	case cur.IsEmpty():
		place := st.Quantity
		if place > inv.stackLimit {
			place = inv.stackLimit
		}
		sec.slots[index] = ItemStack{Item: st.Item, Quantity: place}
		st.Quantity -= place
	case SameType(cur, st):
		room := inv.stackLimit - cur.Quantity
		if room <= 0 {
			return st
		}
		place := st.Quantity
		if place > room {
			place = room
		}
		sec.slots[index].Quantity += place
		st.Quantity -= place
	default:
		return st
	}
	if st.Quantity <= 0 {
		return ItemStack{}
	}
	return st
}

// InsertBestEffort distributes a stack across all sections in order:
// top up existing stacks of the same kind first, then fill empty slots.
// Returns the remainder that did not fit.
func (inv *Inventory) InsertBestEffort(st ItemStack) ItemStack {
	if st.IsEmpty() {
		return ItemStack{}
	}
	// Pass 1: merge into existing stacks.
	for _, name := range inv.SectionNames() {
		sec := inv.sections[name]
		for i := range sec.slots {
			if st.IsEmpty() {
				return ItemStack{}
			}
			if SameType(sec.slots[i], st) && sec.slots[i].Quantity < inv.stackLimit {
				st = inv.InsertAt(name, i, st)
			}
		}
	}
	// Pass 2: open new stacks in empty slots.
	for _, name := range inv.SectionNames() {
		sec := inv.sections[name]
		for i := range sec.slots {
			if st.IsEmpty() {
				return ItemStack{}
			}
			if sec.slots[i].IsEmpty() {
				st = inv.InsertAt(name, i, st)
			}
		}
	}
	return st
}

// WithdrawBestEffort removes up to st.Quantity of st.Item from wherever it
// sits, walking sections in reverse so freshly opened stacks are drained
// before older ones. Returns what was actually removed. Used to unwind a
// partial delivery.
func (inv *Inventory) WithdrawBestEffort(st ItemStack) ItemStack {
	if st.IsEmpty() {
		return ItemStack{}
	}
	taken := 0
	names := inv.SectionNames()
	for n := len(names) - 1; n >= 0 && taken < st.Quantity; n-- {
		sec := inv.sections[names[n]]
		for i := len(sec.slots) - 1; i >= 0 && taken < st.Quantity; i-- {
			cur := sec.slots[i]
			if cur.IsEmpty() || cur.Item != st.Item {
				continue
			}
			take := st.Quantity - taken
			if take > cur.Quantity {
				take = cur.Quantity
			}
			cur.Quantity -= take
			if cur.Quantity == 0 {
				cur = ItemStack{}
			}
			sec.slots[i] = cur
			taken += take
		}
	}
	if taken == 0 {
		return ItemStack{}
	}
	return ItemStack{Item: st.Item, Quantity: taken}
}

// Snapshot returns a disposable deep copy supporting the same operations.
func (inv *Inventory) Snapshot() Containers {
	return inv.Clone()
}

func (inv *Inventory) Clone() *Inventory {
	cp := &Inventory{
		sections:   make(map[string]*section, len(inv.sections)),
		stackLimit: inv.stackLimit,
	}
	for name, sec := range inv.sections {
		slots := make([]ItemStack, len(sec.slots))
		copy(slots, sec.slots)
		cp.sections[name] = &section{slots: slots}
	}
	return cp
}

// Manifest sums item quantities across all sections. Used by audit records
// and by tests asserting rollback completeness.
func (inv *Inventory) Manifest() map[string]int {
	m := map[string]int{}
	for _, sec := range inv.sections {
		for _, st := range sec.slots {
			if !st.IsEmpty() {
				m[st.Item] += st.Quantity
			}
		}
	}
	return m
}
