package ooo

import (
	"fmt"

	"github.com/sarchlab/r5sim/insts"
	"github.com/sarchlab/r5sim/trace"
)

// PhysicalRegister is one entry of the physical register file.
type PhysicalRegister struct {
	// Value is the register contents; meaningful only when Ready.
	Value uint32

	// Ready is true once the producing instruction has written back.
	Ready bool

	// ProducerROB identifies the last writer.
	ProducerROB ROBID
}

// RenameStats holds rename-unit counters.
type RenameStats struct {
	// Renames is the number of successfully renamed instructions.
	Renames uint64
	// Stalls counts rename attempts rejected because the free list was
	// empty.
	Stalls uint64
}

// RenameResult carries the physical operands of a renamed instruction.
type RenameResult struct {
	Src1Phys  PhysReg
	Src1Ready bool
	Src1Value uint32

	Src2Phys  PhysReg
	Src2Ready bool
	Src2Value uint32

	// DestPhys is the freshly allocated destination, or 0 when the
	// instruction writes x0 (no allocation).
	DestPhys PhysReg
}

// RenameUnit maps logical onto physical registers. It owns the physical
// register file, the speculative (current) rename map, the architectural
// map, and the free list.
//
// The current map is rewritten at every rename; the architectural map
// only at commit. Flush restores the current map from the architectural
// map and rebuilds the free list, discarding every speculative
// allocation.
type RenameUnit struct {
	phys    [NumPhysicalRegs]PhysicalRegister
	current [NumLogicalRegs]PhysReg
	arch    [NumLogicalRegs]PhysReg

	// freeList is a FIFO of unassigned physical registers >= 32.
	freeList []PhysReg

	// inFreeList guards against double-free, which is a programmer
	// error.
	inFreeList [NumPhysicalRegs]bool

	stats  RenameStats
	tracer *trace.Tracer
	cycle  *uint64
}

// NewRenameUnit creates a rename unit with the identity logical mapping
// and a full free list. tracer may be nil.
func NewRenameUnit(tracer *trace.Tracer) *RenameUnit {
	r := &RenameUnit{tracer: tracer}
	r.initialize()
	return r
}

func (r *RenameUnit) initialize() {
	for i := range r.phys {
		r.phys[i] = PhysicalRegister{Ready: true}
	}
	for i := 0; i < NumLogicalRegs; i++ {
		r.current[i] = PhysReg(i)
		r.arch[i] = PhysReg(i)
	}
	r.freeList = r.freeList[:0]
	for p := NumLogicalRegs; p < NumPhysicalRegs; p++ {
		r.freeList = append(r.freeList, PhysReg(p))
		r.inFreeList[p] = true
	}
	for p := 0; p < NumLogicalRegs; p++ {
		r.inFreeList[p] = false
	}
}

// SetCycleSource points the unit at the driver's cycle counter for trace
// records. Optional.
func (r *RenameUnit) SetCycleSource(cycle *uint64) {
	r.cycle = cycle
}

func (r *RenameUnit) now() uint64 {
	if r.cycle == nil {
		return 0
	}
	return *r.cycle
}

// Rename maps the sources and destination of a decoded instruction onto
// physical registers. It returns ok=false (a structural stall) when the
// instruction needs a destination and the free list is empty; the caller
// must retry the same instruction next cycle to preserve program order.
//
// Sources are looked up in the current map before the destination is
// allocated, so an instruction that reads and writes the same logical
// register sees the old mapping on its source side.
func (r *RenameUnit) Rename(inst *insts.Instruction) (RenameResult, bool) {
	var result RenameResult

	needsDest := inst.Rd != 0
	if needsDest && len(r.freeList) == 0 {
		r.stats.Stalls++
		return result, false
	}

	src1 := r.current[inst.Rs1]
	result.Src1Phys = src1
	result.Src1Ready = r.phys[src1].Ready
	result.Src1Value = r.phys[src1].Value

	src2 := r.current[inst.Rs2]
	result.Src2Phys = src2
	result.Src2Ready = r.phys[src2].Ready
	result.Src2Value = r.phys[src2].Value

	if needsDest {
		dest := r.allocate()
		old := r.current[inst.Rd]
		r.current[inst.Rd] = dest
		r.phys[dest].Ready = false
		result.DestPhys = dest

		// The displaced mapping stays live: issued consumers still
		// name it. It returns to the free list at the commit that
		// retires them.
		r.tracer.Emitf(trace.CategoryRename, trace.LevelTrace, r.now(), 0,
			"x%d: p%d -> p%d", inst.Rd, old, dest)
	}

	r.stats.Renames++
	return result, true
}

func (r *RenameUnit) allocate() PhysReg {
	p := r.freeList[0]
	r.freeList = r.freeList[1:]
	r.inFreeList[p] = false
	return p
}

// Writeback records a CDB result into the physical register file.
// Writes to p0 are ignored.
func (r *RenameUnit) Writeback(p PhysReg, value uint32, rob ROBID) {
	if p == 0 {
		return
	}
	r.checkRange(p)
	r.phys[p].Value = value
	r.phys[p].Ready = true
	r.phys[p].ProducerROB = rob

	r.tracer.Emitf(trace.CategoryRename, trace.LevelTrace, r.now(), 0,
		"p%d = 0x%X", p, value)
}

// Commit promotes newPhys to the architectural mapping of logicalRd and
// returns the displaced physical register to the free list.
//
// Freeing at commit is sound because the reorder buffer retires in
// program order: by the time this commit runs, every consumer of the
// displaced register has already read it.
func (r *RenameUnit) Commit(logicalRd uint8, newPhys PhysReg) {
	if logicalRd == 0 {
		if newPhys != 0 {
			panic(fmt.Sprintf("ooo: commit of x0 with physical destination p%d", newPhys))
		}
		return
	}
	r.checkRange(newPhys)

	old := r.arch[logicalRd]
	r.arch[logicalRd] = newPhys
	if old >= NumLogicalRegs {
		r.release(old)
	}

	r.tracer.Emitf(trace.CategoryRename, trace.LevelTrace, r.now(), 0,
		"commit x%d -> p%d (freed p%d)", logicalRd, newPhys, old)
}

func (r *RenameUnit) release(p PhysReg) {
	if r.inFreeList[p] {
		panic(fmt.Sprintf("ooo: double free of physical register p%d", p))
	}
	r.phys[p].Ready = true
	r.phys[p].Value = 0
	r.freeList = append(r.freeList, p)
	r.inFreeList[p] = true
}

// Flush restores the speculative state to the architectural state: the
// current map becomes the architectural map and the free list is rebuilt
// with every renamable register not architecturally mapped, in ascending
// order.
func (r *RenameUnit) Flush() {
	r.current = r.arch

	var inArch [NumPhysicalRegs]bool
	for _, p := range r.arch {
		inArch[p] = true
	}

	r.freeList = r.freeList[:0]
	for p := NumLogicalRegs; p < NumPhysicalRegs; p++ {
		r.inFreeList[p] = false
		if !inArch[p] {
			r.freeList = append(r.freeList, PhysReg(p))
			r.inFreeList[p] = true
			// Discarded speculative destinations become ready again
			// so a later allocation starts from a clean slate.
			r.phys[p].Ready = true
		}
	}

	r.tracer.Emitf(trace.CategoryRename, trace.LevelInfo, r.now(), 0,
		"flush: rename map restored to architectural state")
}

// ReadValue returns the value of a physical register. p0 reads as zero.
func (r *RenameUnit) ReadValue(p PhysReg) uint32 {
	r.checkRange(p)
	if p == 0 {
		return 0
	}
	return r.phys[p].Value
}

// IsReady reports whether a physical register holds its producer's
// result.
func (r *RenameUnit) IsReady(p PhysReg) bool {
	r.checkRange(p)
	return r.phys[p].Ready
}

// CurrentMapping returns the speculative physical register mapped to a
// logical register.
func (r *RenameUnit) CurrentMapping(l uint8) PhysReg {
	return r.current[l]
}

// ArchMapping returns the architectural physical register mapped to a
// logical register.
func (r *RenameUnit) ArchMapping(l uint8) PhysReg {
	return r.arch[l]
}

// ArchValue returns the committed value of a logical register.
func (r *RenameUnit) ArchValue(l uint8) uint32 {
	return r.ReadValue(r.arch[l])
}

// SetArchValue writes a committed register value directly, bypassing the
// pipeline. Used to seed machine state before a run; writes to x0 are
// ignored.
func (r *RenameUnit) SetArchValue(l uint8, value uint32) {
	if l == 0 {
		return
	}
	p := r.arch[l]
	r.phys[p].Value = value
	r.phys[p].Ready = true
}

// HasFreeRegister reports whether a rename needing a destination can
// succeed.
func (r *RenameUnit) HasFreeRegister() bool {
	return len(r.freeList) > 0
}

// FreeRegisterCount returns the number of unassigned physical registers.
func (r *RenameUnit) FreeRegisterCount() int {
	return len(r.freeList)
}

// Stats returns the rename counters.
func (r *RenameUnit) Stats() RenameStats {
	return r.stats
}

// Reset restores the unit to its initial state, counters included.
func (r *RenameUnit) Reset() {
	r.initialize()
	r.stats = RenameStats{}
}

func (r *RenameUnit) checkRange(p PhysReg) {
	if int(p) >= NumPhysicalRegs {
		panic(fmt.Sprintf("ooo: physical register p%d out of range", p))
	}
}
