package ooo

import (
	"fmt"

	"github.com/sarchlab/r5sim/insts"
)

// Arena stores the decoded instructions of in-flight reorder-buffer
// entries, keyed by ROB id. The reorder buffer bounds the number of
// in-flight instructions, so the arena holds one slot per ROB entry and
// maps an id to slot id % capacity; since ids are monotonic and at most
// capacity entries are live at once, live ids never collide.
//
// Components pass ids around instead of instruction pointers, and the
// arena is the single owner of the decoded form.
type Arena struct {
	slots []arenaSlot
}

type arenaSlot struct {
	valid bool
	id    ROBID
	inst  *insts.Instruction
}

// NewArena creates an arena with one slot per reorder-buffer entry.
func NewArena(capacity int) *Arena {
	return &Arena{slots: make([]arenaSlot, capacity)}
}

// Put stores the decoded instruction of a newly allocated ROB entry.
// Overwriting a live slot means the reorder buffer handed out more ids
// than it has entries, which is a programmer error.
func (a *Arena) Put(id ROBID, inst *insts.Instruction) {
	s := &a.slots[a.index(id)]
	if s.valid {
		panic(fmt.Sprintf("ooo: arena slot collision, rob %d overwrites live rob %d",
			id, s.id))
	}
	s.valid = true
	s.id = id
	s.inst = inst
}

// Get returns the decoded instruction for a live ROB id.
func (a *Arena) Get(id ROBID) *insts.Instruction {
	s := &a.slots[a.index(id)]
	if !s.valid || s.id != id {
		panic(fmt.Sprintf("ooo: arena lookup of dead rob %d", id))
	}
	return s.inst
}

// Release frees the slot of a retired or flushed ROB entry. Releasing a
// dead id is a no-op so flush can sweep unconditionally.
func (a *Arena) Release(id ROBID) {
	s := &a.slots[a.index(id)]
	if !s.valid || s.id != id {
		return
	}
	s.valid = false
	s.inst = nil
}

// Flush frees every slot.
func (a *Arena) Flush() {
	for i := range a.slots {
		a.slots[i].valid = false
		a.slots[i].inst = nil
	}
}

// Live returns the number of occupied slots.
func (a *Arena) Live() int {
	n := 0
	for i := range a.slots {
		if a.slots[i].valid {
			n++
		}
	}
	return n
}

func (a *Arena) index(id ROBID) int {
	return int(id % ROBID(len(a.slots)))
}
