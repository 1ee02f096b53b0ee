package ooo

import (
	"fmt"

	"github.com/sarchlab/r5sim/insts"
	"github.com/sarchlab/r5sim/trace"
)

// EntryStatus tracks a reservation-station entry through its lifecycle.
type EntryStatus uint8

// Entry states. An entry is created ISSUED and moves to EXECUTING at
// dispatch; it leaves the station only through Release or Flush.
const (
	StatusIssued EntryStatus = iota
	StatusExecuting
)

// Entry is one reservation-station slot: a renamed instruction waiting
// for its operands and an execution unit. The decoded instruction itself
// lives in the instruction arena; the entry carries the ROB id handle
// and the unit class derived at issue time.
type Entry struct {
	Valid bool

	// ROB is the program-order tag and arena handle.
	ROB ROBID

	// PC is the instruction address.
	PC uint32

	// Kind is the execution-unit class the instruction needs.
	Kind UnitKind

	Src1Phys  PhysReg
	Src1Ready bool
	Src1Value uint32

	Src2Phys  PhysReg
	Src2Ready bool
	Src2Value uint32

	// DestPhys is 0 for instructions without a register result.
	DestPhys PhysReg

	Status EntryStatus
}

// IssueResult reports the outcome of an issue attempt.
type IssueResult struct {
	OK bool
	// Slot is the station slot the entry landed in, valid when OK.
	Slot int
	// Message explains a structural stall, set when !OK.
	Message string
}

// DispatchResult reports a successful dispatch.
type DispatchResult struct {
	OK bool
	// Slot is the station slot of the dispatched entry.
	Slot int
	// Kind and UnitID name the allocated execution unit.
	Kind   UnitKind
	UnitID int
	// Entry is a snapshot of the dispatched entry at dispatch time.
	Entry Entry
}

// StationStats holds reservation-station counters.
type StationStats struct {
	Issued     uint64
	Dispatched uint64
	// Stalls counts issue rejections (station full) and dispatches
	// lost to execution-unit saturation. It deliberately does not
	// count cycles in which no entry had ready operands.
	Stalls uint64
}

// Station is the reservation station: a fixed set of entry slots plus
// occupancy accounting for the typed execution-unit pools.
type Station struct {
	entries []Entry

	// unitBusy[kind][id] marks an execution unit as allocated to a
	// dispatched entry. At most one EXECUTING entry holds any unit.
	unitBusy [numUnitKinds][]bool

	stats  StationStats
	tracer *trace.Tracer
	cycle  *uint64
}

// StationConfig sizes the station and its unit pools.
type StationConfig struct {
	Entries     int
	ALUUnits    int
	BranchUnits int
	LoadUnits   int
	StoreUnits  int
}

// DefaultStationConfig returns the microarchitecture defaults:
// 16 entries, 2 ALUs, and one unit each for branch, load, and store.
func DefaultStationConfig() StationConfig {
	return StationConfig{
		Entries:     16,
		ALUUnits:    2,
		BranchUnits: 1,
		LoadUnits:   1,
		StoreUnits:  1,
	}
}

// NewStation creates a reservation station. tracer may be nil.
func NewStation(config StationConfig, tracer *trace.Tracer) *Station {
	s := &Station{
		entries: make([]Entry, config.Entries),
		tracer:  tracer,
	}
	s.unitBusy[UnitALU] = make([]bool, config.ALUUnits)
	s.unitBusy[UnitBranch] = make([]bool, config.BranchUnits)
	s.unitBusy[UnitLoad] = make([]bool, config.LoadUnits)
	s.unitBusy[UnitStore] = make([]bool, config.StoreUnits)
	return s
}

// SetCycleSource points the station at the driver's cycle counter for
// trace records. Optional.
func (s *Station) SetCycleSource(cycle *uint64) {
	s.cycle = cycle
}

func (s *Station) now() uint64 {
	if s.cycle == nil {
		return 0
	}
	return *s.cycle
}

// UnitKindFor returns the execution-unit class an instruction needs.
func UnitKindFor(inst *insts.Instruction) UnitKind {
	switch inst.Type {
	case insts.TypeR:
		return UnitALU
	case insts.TypeI:
		if inst.Op == insts.OpLoad {
			return UnitLoad
		}
		return UnitALU
	case insts.TypeS:
		return UnitStore
	case insts.TypeB:
		return UnitBranch
	default:
		// J-type, U-type, and anything else run on the ALU.
		return UnitALU
	}
}

// Issue stores a renamed entry into a free slot. The caller issues at
// most one instruction per cycle, in program order; a full station is a
// structural stall and the caller retries the same instruction.
func (s *Station) Issue(entry Entry) IssueResult {
	for i := range s.entries {
		if s.entries[i].Valid {
			continue
		}
		entry.Valid = true
		entry.Status = StatusIssued
		s.entries[i] = entry
		s.stats.Issued++

		s.tracer.Emitf(trace.CategoryRS, trace.LevelTrace, s.now(), entry.PC,
			"issued rob %d into slot %d (%s)", entry.ROB, i, entry.Kind)
		return IssueResult{OK: true, Slot: i}
	}

	s.stats.Stalls++
	return IssueResult{Message: "reservation station full"}
}

// Dispatch selects the oldest entry whose operands are ready and whose
// unit class has a free unit, allocates the lowest-numbered free unit,
// and marks the entry EXECUTING. The slot stays occupied until Release,
// which prevents the entry from dispatching twice.
//
// Readiness is recomputed on every call; CDB wake-ups between calls
// change the outcome.
//
// The stall counter increments only when an entry with ready operands
// lost out to unit saturation, not when no entry was ready at all.
func (s *Station) Dispatch() DispatchResult {
	best := -1
	sawBlockedReady := false

	for i := range s.entries {
		e := &s.entries[i]
		if !e.Valid || e.Status != StatusIssued {
			continue
		}
		if !e.Src1Ready || !e.Src2Ready {
			continue
		}
		if !s.unitAvailable(e.Kind) {
			sawBlockedReady = true
			continue
		}
		if best < 0 || e.ROB < s.entries[best].ROB {
			best = i
		}
	}

	if best < 0 {
		if sawBlockedReady {
			s.stats.Stalls++
		}
		return DispatchResult{}
	}

	e := &s.entries[best]
	unitID := s.allocateUnit(e.Kind)
	e.Status = StatusExecuting
	s.stats.Dispatched++

	s.tracer.Emitf(trace.CategoryRS, trace.LevelTrace, s.now(), e.PC,
		"dispatched rob %d from slot %d to %s%d", e.ROB, best, e.Kind, unitID)

	return DispatchResult{
		OK:     true,
		Slot:   best,
		Kind:   e.Kind,
		UnitID: unitID,
		Entry:  *e,
	}
}

// UpdateOperands snoops a CDB broadcast: every valid entry waiting on
// the broadcast register captures the value and becomes ready on that
// source. One broadcast may wake several entries, and both sources of
// the same entry. A broadcast nobody waits on is a no-op.
func (s *Station) UpdateOperands(cdb CDBEntry) {
	if !cdb.Valid || cdb.Dest == 0 {
		return
	}

	woken := 0
	for i := range s.entries {
		e := &s.entries[i]
		if !e.Valid {
			continue
		}
		if !e.Src1Ready && e.Src1Phys == cdb.Dest {
			e.Src1Ready = true
			e.Src1Value = cdb.Value
			woken++
		}
		if !e.Src2Ready && e.Src2Phys == cdb.Dest {
			e.Src2Ready = true
			e.Src2Value = cdb.Value
			woken++
		}
	}

	if woken > 0 {
		s.tracer.Emitf(trace.CategoryRS, trace.LevelTrace, s.now(), 0,
			"cdb p%d = 0x%X woke %d operand(s)", cdb.Dest, cdb.Value, woken)
	}
}

// Release frees a station slot. The writeback stage calls this after the
// entry's CDB broadcast has been consumed.
func (s *Station) Release(slot int) {
	if slot < 0 || slot >= len(s.entries) {
		panic(fmt.Sprintf("ooo: reservation station slot %d out of range", slot))
	}
	s.entries[slot].Valid = false
}

// ReleaseUnit returns an execution unit to its pool.
func (s *Station) ReleaseUnit(kind UnitKind, id int) {
	pool := s.unitBusy[kind]
	if id < 0 || id >= len(pool) {
		panic(fmt.Sprintf("ooo: %s unit %d out of range", kind, id))
	}
	pool[id] = false
}

// Flush invalidates every entry and frees every execution unit.
func (s *Station) Flush() {
	for i := range s.entries {
		s.entries[i].Valid = false
	}
	for kind := range s.unitBusy {
		for i := range s.unitBusy[kind] {
			s.unitBusy[kind][i] = false
		}
	}

	s.tracer.Emitf(trace.CategoryRS, trace.LevelInfo, s.now(), 0,
		"flush: all entries invalidated, all units idle")
}

func (s *Station) unitAvailable(kind UnitKind) bool {
	for _, busy := range s.unitBusy[kind] {
		if !busy {
			return true
		}
	}
	return false
}

func (s *Station) allocateUnit(kind UnitKind) int {
	for i, busy := range s.unitBusy[kind] {
		if !busy {
			s.unitBusy[kind][i] = true
			return i
		}
	}
	panic(fmt.Sprintf("ooo: no free %s unit at allocation", kind))
}

// HasFreeEntry reports whether an issue can succeed.
func (s *Station) HasFreeEntry() bool {
	for i := range s.entries {
		if !s.entries[i].Valid {
			return true
		}
	}
	return false
}

// FreeEntryCount returns the number of invalid slots.
func (s *Station) FreeEntryCount() int {
	n := 0
	for i := range s.entries {
		if !s.entries[i].Valid {
			n++
		}
	}
	return n
}

// Capacity returns the number of slots.
func (s *Station) Capacity() int {
	return len(s.entries)
}

// EntryAt returns a copy of a slot for inspection.
func (s *Station) EntryAt(slot int) Entry {
	return s.entries[slot]
}

// UnitBusy reports whether an execution unit is allocated.
func (s *Station) UnitBusy(kind UnitKind, id int) bool {
	return s.unitBusy[kind][id]
}

// UnitCount returns the pool size of a unit class.
func (s *Station) UnitCount(kind UnitKind) int {
	return len(s.unitBusy[kind])
}

// Stats returns the station counters.
func (s *Station) Stats() StationStats {
	return s.stats
}

// Reset restores the station to its initial state, counters included.
func (s *Station) Reset() {
	s.Flush()
	s.stats = StationStats{}
}
