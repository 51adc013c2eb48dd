package resource

// Slot identifies a position in a scope's table.
// The zero Slot is reserved and always invalid.
type Slot struct {
	index uint32 // 1-based
	gen   uint32
}

// Valid reports whether s can refer to a live entry.
func (s Slot) Valid() bool {
	return s.index != 0
}

// table is the arena backing a Scope. Entries are reused through a free
// list; a generation counter invalidates stale slots. Live entries are
// threaded in registration order by prev/next indices so teardown can pop
// the newest entry and removal from the middle is O(1).
type table struct {
	entries  []entry
	freeList []uint32
	head     uint32
	tail     uint32
	live     int
}

type entry struct {
	member Member
	gen    uint32
	prev   uint32
	next   uint32
	valid  bool
}

func newTable() table {
	return table{
		entries:  make([]entry, 0, 16),
		freeList: make([]uint32, 0, 4),
	}
}

// insert appends m at the tail of the registration order.
func (t *table) insert(m Member) Slot {
	var idx uint32
	if n := len(t.freeList); n > 0 {
		idx = t.freeList[n-1]
		t.freeList = t.freeList[:n-1]
	} else {
		t.entries = append(t.entries, entry{})
		idx = uint32(len(t.entries))
	}

	e := &t.entries[idx-1]
	e.gen++
	e.member = m
	e.valid = true
	e.prev = t.tail
	e.next = 0

	if t.tail != 0 {
		t.entries[t.tail-1].next = idx
	} else {
		t.head = idx
	}
	t.tail = idx
	t.live++

	return Slot{index: idx, gen: e.gen}
}

func (t *table) lookup(s Slot) *entry {
	if s.index == 0 || int(s.index) > len(t.entries) {
		return nil
	}
	e := &t.entries[s.index-1]
	if !e.valid || e.gen != s.gen {
		return nil
	}
	return e
}

// holds reports whether slot s is live and refers to m.
func (t *table) holds(s Slot, m Member) bool {
	e := t.lookup(s)
	return e != nil && e.member == m
}

// unlink removes the entry at s if it still refers to m.
func (t *table) unlink(s Slot, m Member) bool {
	e := t.lookup(s)
	if e == nil || e.member != m {
		return false
	}
	t.release(s.index)
	return true
}

// popBack removes and returns the most recently registered member.
func (t *table) popBack() (Member, bool) {
	if t.tail == 0 {
		return nil, false
	}
	idx := t.tail
	m := t.entries[idx-1].member
	t.release(idx)
	return m, true
}

func (t *table) release(idx uint32) {
	e := &t.entries[idx-1]

	if e.prev != 0 {
		t.entries[e.prev-1].next = e.next
	} else {
		t.head = e.next
	}
	if e.next != 0 {
		t.entries[e.next-1].prev = e.prev
	} else {
		t.tail = e.prev
	}

	e.member = nil
	e.valid = false
	e.prev = 0
	e.next = 0
	t.freeList = append(t.freeList, idx)
	t.live--
}

// each visits live members in registration order.
func (t *table) each(fn func(Member) bool) {
	for idx := t.head; idx != 0; idx = t.entries[idx-1].next {
		if !fn(t.entries[idx-1].member) {
			return
		}
	}
}

func (t *table) len() int {
	return t.live
}
