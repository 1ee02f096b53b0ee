package ooo

import (
	"fmt"

	"github.com/sarchlab/r5sim/trace"
)

// ROBState tracks a reorder-buffer entry through its lifecycle.
type ROBState uint8

// Entry states, in lifecycle order.
const (
	ROBAllocated ROBState = iota
	ROBIssued
	ROBExecuting
	ROBCompleted
)

// String returns the state name.
func (s ROBState) String() string {
	switch s {
	case ROBAllocated:
		return "ALLOCATED"
	case ROBIssued:
		return "ISSUED"
	case ROBExecuting:
		return "EXECUTING"
	case ROBCompleted:
		return "COMPLETED"
	default:
		return "UNKNOWN"
	}
}

// ROBEntry is one reorder-buffer entry: the commit-side view of an
// in-flight instruction.
type ROBEntry struct {
	ID ROBID
	PC uint32

	// LogicalRd and DestPhys describe the architectural update to apply
	// at commit; LogicalRd == 0 means no register result.
	LogicalRd uint8
	DestPhys  PhysReg

	// Value is the result captured from the CDB, meaningful once
	// COMPLETED.
	Value uint32

	// IsJump and JumpTarget carry a resolved control-flow redirect to
	// the commit stage.
	IsJump     bool
	JumpTarget uint32

	State ROBState
}

// ROBStats holds reorder-buffer counters.
type ROBStats struct {
	Allocated uint64
	Retired   uint64
	// Stalls counts allocation attempts rejected because the buffer was
	// full.
	Stalls uint64
}

// ReorderBuffer retires instructions in program order. It is a circular
// buffer of entries; ids are monotonic over the run and never reused, so
// id order is program order and an id maps to slot id % capacity.
type ReorderBuffer struct {
	entries []ROBEntry

	// nextID is the id of the next allocation; headID the id at the
	// commit head. count is the number of live entries.
	nextID ROBID
	headID ROBID
	count  int

	stats  ROBStats
	tracer *trace.Tracer
	cycle  *uint64
}

// NewReorderBuffer creates a reorder buffer with the given capacity.
// tracer may be nil.
func NewReorderBuffer(capacity int, tracer *trace.Tracer) *ReorderBuffer {
	return &ReorderBuffer{
		entries: make([]ROBEntry, capacity),
		tracer:  tracer,
	}
}

// SetCycleSource points the buffer at the driver's cycle counter for
// trace records. Optional.
func (b *ReorderBuffer) SetCycleSource(cycle *uint64) {
	b.cycle = cycle
}

func (b *ReorderBuffer) now() uint64 {
	if b.cycle == nil {
		return 0
	}
	return *b.cycle
}

// CanAllocate reports whether the buffer has a free entry.
func (b *ReorderBuffer) CanAllocate() bool {
	return b.count < len(b.entries)
}

// Allocate claims the next entry in program order. It returns ok=false
// when the buffer is full; the caller retries the same instruction next
// cycle.
func (b *ReorderBuffer) Allocate(pc uint32, logicalRd uint8, destPhys PhysReg) (ROBID, bool) {
	if !b.CanAllocate() {
		b.stats.Stalls++
		return 0, false
	}

	id := b.nextID
	b.nextID++
	b.count++
	b.entries[b.index(id)] = ROBEntry{
		ID:        id,
		PC:        pc,
		LogicalRd: logicalRd,
		DestPhys:  destPhys,
		State:     ROBAllocated,
	}
	b.stats.Allocated++

	b.tracer.Emitf(trace.CategoryROB, trace.LevelTrace, b.now(), pc,
		"allocated rob %d (x%d <- p%d)", id, logicalRd, destPhys)
	return id, true
}

// MarkIssued records that the entry's instruction sits in the
// reservation station.
func (b *ReorderBuffer) MarkIssued(id ROBID) {
	b.entry(id).State = ROBIssued
}

// MarkExecuting records that the entry's instruction was dispatched to
// an execution unit.
func (b *ReorderBuffer) MarkExecuting(id ROBID) {
	b.entry(id).State = ROBExecuting
}

// Complete consumes a CDB broadcast: the producing entry captures the
// value and any control-flow redirect and becomes eligible to commit
// once it reaches the head.
func (b *ReorderBuffer) Complete(cdb CDBEntry) {
	if !cdb.Valid {
		return
	}
	e := b.entry(cdb.ROB)
	e.Value = cdb.Value
	e.IsJump = cdb.IsJump
	e.JumpTarget = cdb.JumpTarget
	e.State = ROBCompleted

	b.tracer.Emitf(trace.CategoryROB, trace.LevelTrace, b.now(), e.PC,
		"rob %d completed (value 0x%X)", e.ID, e.Value)
}

// CommitReady returns the head entry if it is completed.
func (b *ReorderBuffer) CommitReady() (ROBEntry, bool) {
	if b.count == 0 {
		return ROBEntry{}, false
	}
	head := b.entries[b.index(b.headID)]
	if head.State != ROBCompleted {
		return ROBEntry{}, false
	}
	return head, true
}

// Commit retires the head entry and returns it. The caller must have
// seen CommitReady report true this cycle.
func (b *ReorderBuffer) Commit() ROBEntry {
	head, ok := b.CommitReady()
	if !ok {
		panic("ooo: commit with no completed head entry")
	}
	b.headID++
	b.count--
	b.stats.Retired++

	b.tracer.Emitf(trace.CategoryROB, trace.LevelTrace, b.now(), head.PC,
		"retired rob %d", head.ID)
	return head
}

// Flush discards every live entry. Ids keep increasing; the flushed
// range is never reused.
func (b *ReorderBuffer) Flush() {
	b.headID = b.nextID
	b.count = 0

	b.tracer.Emitf(trace.CategoryROB, trace.LevelInfo, b.now(), 0,
		"flush: next id %d", b.nextID)
}

// LiveIDs returns the ids of live entries in program order. Used by the
// driver to sweep the arena on a flush.
func (b *ReorderBuffer) LiveIDs() []ROBID {
	ids := make([]ROBID, 0, b.count)
	for id := b.headID; id < b.nextID; id++ {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of live entries.
func (b *ReorderBuffer) Len() int {
	return b.count
}

// Empty reports whether no entries are live.
func (b *ReorderBuffer) Empty() bool {
	return b.count == 0
}

// Capacity returns the number of entries.
func (b *ReorderBuffer) Capacity() int {
	return len(b.entries)
}

// EntryState returns the state of a live entry.
func (b *ReorderBuffer) EntryState(id ROBID) ROBState {
	return b.entry(id).State
}

// Stats returns the reorder-buffer counters.
func (b *ReorderBuffer) Stats() ROBStats {
	return b.stats
}

// Reset restores the buffer to its initial state, counters and id
// sequence included.
func (b *ReorderBuffer) Reset() {
	b.nextID = 0
	b.headID = 0
	b.count = 0
	b.stats = ROBStats{}
}

func (b *ReorderBuffer) index(id ROBID) int {
	return int(id % ROBID(len(b.entries)))
}

func (b *ReorderBuffer) entry(id ROBID) *ROBEntry {
	if id < b.headID || id >= b.nextID {
		panic(fmt.Sprintf("ooo: reorder buffer access to dead rob %d", id))
	}
	e := &b.entries[b.index(id)]
	return e
}
