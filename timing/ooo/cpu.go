package ooo

import (
	"io"
	"os"

	"github.com/sarchlab/r5sim/emu"
	"github.com/sarchlab/r5sim/insts"
	"github.com/sarchlab/r5sim/timing/latency"
	"github.com/sarchlab/r5sim/trace"
)

// Statistics aggregates the per-run counters of the CPU.
type Statistics struct {
	Cycles       uint64
	Instructions uint64

	// Flushes counts full pipeline flushes caused by control-flow
	// redirects at commit.
	Flushes uint64
}

// CPI returns cycles per committed instruction.
func (s Statistics) CPI() float64 {
	if s.Instructions == 0 {
		return 0
	}
	return float64(s.Cycles) / float64(s.Instructions)
}

// fetchedWord is a raw instruction word waiting for decode.
type fetchedWord struct {
	pc  uint32
	raw uint32
}

// decodedInst is the single-entry latch between decode and issue.
type decodedInst struct {
	pc   uint32
	inst *insts.Instruction
}

// inflight is an instruction occupying an execution unit.
type inflight struct {
	slot      int
	kind      UnitKind
	unitID    int
	remaining uint64
	entry     Entry
}

// wbRecord is a completed execution waiting for its CDB broadcast.
type wbRecord struct {
	cdb    CDBEntry
	slot   int
	kind   UnitKind
	unitID int
}

// CPU is the cycle-level out-of-order core. Each Tick runs the pipeline
// stages back to front (commit, writeback, execute, issue, decode,
// fetch) so a result produced in one stage is consumed by the next
// stage one cycle later.
//
// Fetch is static not-taken: the fetch PC advances sequentially until a
// jump or taken branch reaches commit, which redirects the PC and
// flushes the entire pipeline.
type CPU struct {
	config *latency.Config
	mem    *emu.Memory

	decoder  *insts.Decoder
	rename   *RenameUnit
	station  *Station
	rob      *ReorderBuffer
	arena    *Arena
	syscalls emu.SyscallHandler

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	cycle   uint64
	fetchPC uint32

	fetchBuf     []fetchedWord
	fetchStopped bool
	latch        *decodedInst

	executing []inflight
	wbQueue   []wbRecord

	halted   bool
	exitCode int

	stats  Statistics
	tracer *trace.Tracer
}

// CPUOption configures a CPU at construction.
type CPUOption func(*CPU)

// WithConfig overrides the default timing configuration.
func WithConfig(cfg *latency.Config) CPUOption {
	return func(c *CPU) {
		c.config = cfg
	}
}

// WithTracer attaches a tracer to the CPU and its components.
func WithTracer(t *trace.Tracer) CPUOption {
	return func(c *CPU) {
		c.tracer = t
	}
}

// WithEntryPoint sets the initial fetch PC.
func WithEntryPoint(pc uint32) CPUOption {
	return func(c *CPU) {
		c.fetchPC = pc
	}
}

// WithSyscallHandler overrides the default ECALL handler.
func WithSyscallHandler(h emu.SyscallHandler) CPUOption {
	return func(c *CPU) {
		c.syscalls = h
	}
}

// WithStdio redirects the streams of the default syscall handler. A nil
// reader or writer keeps the process default. Ignored when
// WithSyscallHandler is also given.
func WithStdio(stdin io.Reader, stdout, stderr io.Writer) CPUOption {
	return func(c *CPU) {
		c.stdin = stdin
		c.stdout = stdout
		c.stderr = stderr
	}
}

// archRegs exposes the committed register state to the syscall handler.
type archRegs struct {
	rename *RenameUnit
}

func (r *archRegs) ReadReg(reg uint8) uint32 {
	return r.rename.ArchValue(reg)
}

func (r *archRegs) WriteReg(reg uint8, value uint32) {
	r.rename.SetArchValue(reg, value)
}

// NewCPU creates a CPU executing from the given memory.
func NewCPU(mem *emu.Memory, opts ...CPUOption) *CPU {
	c := &CPU{
		config:  latency.DefaultConfig(),
		mem:     mem,
		decoder: insts.NewDecoder(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.rename = NewRenameUnit(c.tracer)
	c.station = NewStation(StationConfig{
		Entries:     c.config.RSEntries,
		ALUUnits:    c.config.ALUUnits,
		BranchUnits: c.config.BranchUnits,
		LoadUnits:   c.config.LoadUnits,
		StoreUnits:  c.config.StoreUnits,
	}, c.tracer)
	c.rob = NewReorderBuffer(c.config.ROBEntries, c.tracer)
	c.arena = NewArena(c.config.ROBEntries)

	c.rename.SetCycleSource(&c.cycle)
	c.station.SetCycleSource(&c.cycle)
	c.rob.SetCycleSource(&c.cycle)

	if c.syscalls == nil {
		if c.stdout == nil {
			c.stdout = os.Stdout
		}
		if c.stderr == nil {
			c.stderr = os.Stderr
		}
		handler := emu.NewDefaultSyscallHandler(
			&archRegs{rename: c.rename}, mem, c.stdout, c.stderr)
		if c.stdin != nil {
			handler.SetStdin(c.stdin)
		}
		c.syscalls = handler
	}
	return c
}

// Tick advances the CPU by one cycle. It is a no-op once halted.
func (c *CPU) Tick() {
	if c.halted {
		return
	}
	c.cycle++
	c.stats.Cycles++

	c.commit()
	if c.halted {
		return
	}
	c.writeback()
	c.execute()
	c.issue()
	c.decode()
	c.fetch()

	c.checkDrained()
}

// Run ticks until the CPU halts or maxCycles elapse (0 means no limit).
// It returns the number of cycles executed.
func (c *CPU) Run(maxCycles uint64) uint64 {
	start := c.cycle
	for !c.halted {
		if maxCycles != 0 && c.cycle-start >= maxCycles {
			break
		}
		c.Tick()
	}
	return c.cycle - start
}

// commit retires at most one completed instruction from the reorder
// buffer head, promotes its rename mapping, and handles control flow:
// a jump or taken branch redirects the fetch PC and flushes the
// pipeline. ECALL runs the syscall handler against the committed
// register state; EBREAK halts the core.
func (c *CPU) commit() {
	head, ok := c.rob.CommitReady()
	if !ok {
		return
	}

	inst := c.arena.Get(head.ID)
	c.rob.Commit()
	c.rename.Commit(head.LogicalRd, head.DestPhys)
	c.arena.Release(head.ID)
	c.stats.Instructions++

	c.tracer.Emitf(trace.CategoryCommit, trace.LevelTrace, c.cycle, head.PC,
		"committed rob %d", head.ID)

	if inst.Op == insts.OpSystem {
		c.commitSystem(inst, head.PC)
		return
	}

	if head.IsJump {
		c.redirect(head.JumpTarget)
	}
}

// commitSystem handles ECALL and EBREAK at commit. A non-exit syscall
// mutates the committed register state behind the back of the rename
// map, so the pipeline restarts from the next instruction to make the
// result visible to younger consumers.
func (c *CPU) commitSystem(inst *insts.Instruction, pc uint32) {
	if inst.Imm != 0 {
		// EBREAK
		c.halted = true

		c.tracer.Emitf(trace.CategoryCommit, trace.LevelInfo, c.cycle, pc,
			"ebreak: halt")
		return
	}

	res := c.syscalls.Handle()
	if res.Exited {
		c.halted = true
		c.exitCode = res.ExitCode

		c.tracer.Emitf(trace.CategoryCommit, trace.LevelInfo, c.cycle, pc,
			"ecall: exit with code %d", c.exitCode)
		return
	}

	c.tracer.Emitf(trace.CategoryCommit, trace.LevelTrace, c.cycle, pc,
		"ecall: syscall handled, restarting at 0x%X", pc+4)
	c.redirect(pc + 4)
}

// redirect points fetch at target and discards all speculative state.
func (c *CPU) redirect(target uint32) {
	c.fetchPC = target
	c.fetchStopped = false
	c.fetchBuf = c.fetchBuf[:0]
	c.latch = nil
	c.executing = c.executing[:0]
	c.wbQueue = c.wbQueue[:0]

	c.rob.Flush()
	c.arena.Flush()
	c.station.Flush()
	c.rename.Flush()
	c.stats.Flushes++

	c.tracer.Emitf(trace.CategoryCommit, trace.LevelInfo, c.cycle, target,
		"redirect: pipeline flushed")
}

// writeback broadcasts at most one completed result on the CDB: the
// physical register file latches it, waiting reservation-station
// entries wake, the producing reorder-buffer entry completes, and the
// station slot and execution unit are released.
func (c *CPU) writeback() {
	if len(c.wbQueue) == 0 {
		return
	}
	wb := c.wbQueue[0]
	c.wbQueue = c.wbQueue[1:]

	c.rename.Writeback(wb.cdb.Dest, wb.cdb.Value, wb.cdb.ROB)
	c.station.UpdateOperands(wb.cdb)
	c.rob.Complete(wb.cdb)
	c.station.Release(wb.slot)
	c.station.ReleaseUnit(wb.kind, wb.unitID)

	c.tracer.Emitf(trace.CategoryWriteback, trace.LevelTrace, c.cycle, 0,
		"cdb: rob %d p%d = 0x%X", wb.cdb.ROB, wb.cdb.Dest, wb.cdb.Value)
}

// execute counts down the occupied execution units, queues finished
// results for writeback, then dispatches ready entries from the
// reservation station until the unit pools saturate or nothing is
// eligible.
func (c *CPU) execute() {
	remaining := c.executing[:0]
	for _, fl := range c.executing {
		fl.remaining--
		if fl.remaining > 0 {
			remaining = append(remaining, fl)
			continue
		}
		c.complete(fl)
	}
	c.executing = remaining

	for {
		d := c.station.Dispatch()
		if !d.OK {
			return
		}
		c.rob.MarkExecuting(d.Entry.ROB)
		c.executing = append(c.executing, inflight{
			slot:      d.Slot,
			kind:      d.Kind,
			unitID:    d.UnitID,
			remaining: c.latencyFor(d.Kind),
			entry:     d.Entry,
		})

		c.tracer.Emitf(trace.CategoryExecute, trace.LevelTrace, c.cycle, d.Entry.PC,
			"rob %d executing on %s%d", d.Entry.ROB, d.Kind, d.UnitID)
	}
}

func (c *CPU) latencyFor(kind UnitKind) uint64 {
	switch kind {
	case UnitBranch:
		return c.config.BranchLatency
	case UnitLoad:
		return c.config.LoadLatency
	case UnitStore:
		return c.config.StoreLatency
	default:
		return c.config.ALULatency
	}
}

// complete evaluates a finished instruction and queues its CDB
// broadcast.
func (c *CPU) complete(fl inflight) {
	e := fl.entry
	inst := c.arena.Get(e.ROB)

	cdb := CDBEntry{
		Dest:  e.DestPhys,
		ROB:   e.ROB,
		Valid: true,
	}

	switch fl.kind {
	case UnitBranch:
		taken, target := emu.BranchTaken(inst, e.PC, e.Src1Value, e.Src2Value)
		if taken {
			cdb.IsJump = true
			cdb.JumpTarget = target
		}
	case UnitLoad:
		addr := emu.MemAddress(inst, e.Src1Value)
		cdb.Value = emu.LoadValue(inst, c.mem, addr)
	case UnitStore:
		addr := emu.MemAddress(inst, e.Src1Value)
		emu.StoreValue(inst, c.mem, addr, e.Src2Value)
	default:
		cdb.Value = emu.ALUResult(inst, e.PC, e.Src1Value, e.Src2Value)
		if inst.IsJump() {
			cdb.IsJump = true
			cdb.JumpTarget = emu.JumpTarget(inst, e.PC, e.Src1Value)
		}
	}

	c.wbQueue = append(c.wbQueue, wbRecord{
		cdb:    cdb,
		slot:   fl.slot,
		kind:   fl.kind,
		unitID: fl.unitID,
	})
}

// issue moves the latched instruction into the back end: it renames the
// operands, allocates a reorder-buffer entry and arena slot, and stores
// a reservation-station entry. The reorder buffer and the station are
// checked before anything is claimed, and a failed rename has no side
// effects, so a structural stall leaves no state behind and the same
// instruction retries next cycle.
func (c *CPU) issue() {
	if c.latch == nil {
		return
	}
	inst := c.latch.inst
	pc := c.latch.pc

	if !c.rob.CanAllocate() || !c.station.HasFreeEntry() {
		c.tracer.Emitf(trace.CategoryIssue, trace.LevelTrace, c.cycle, pc,
			"stall: back end full")
		return
	}
	renamed, ok := c.rename.Rename(inst)
	if !ok {
		c.tracer.Emitf(trace.CategoryIssue, trace.LevelTrace, c.cycle, pc,
			"stall: no free physical register")
		return
	}
	id, _ := c.rob.Allocate(pc, inst.Rd, renamed.DestPhys)
	c.arena.Put(id, inst)

	c.station.Issue(Entry{
		ROB:       id,
		PC:        pc,
		Kind:      UnitKindFor(inst),
		Src1Phys:  renamed.Src1Phys,
		Src1Ready: renamed.Src1Ready,
		Src1Value: renamed.Src1Value,
		Src2Phys:  renamed.Src2Phys,
		Src2Ready: renamed.Src2Ready,
		Src2Value: renamed.Src2Value,
		DestPhys:  renamed.DestPhys,
	})
	c.rob.MarkIssued(id)
	c.latch = nil

	c.tracer.Emitf(trace.CategoryIssue, trace.LevelTrace, c.cycle, pc,
		"issued rob %d", id)
}

// decode fills the issue latch from the fetch buffer. An undecodable
// word stops fetch; the pipeline drains and the core halts.
func (c *CPU) decode() {
	if c.latch != nil || len(c.fetchBuf) == 0 {
		return
	}
	fw := c.fetchBuf[0]
	c.fetchBuf = c.fetchBuf[1:]

	inst := c.decoder.Decode(fw.raw)
	if inst.Type == insts.TypeUnknown {
		c.fetchStopped = true
		c.fetchBuf = c.fetchBuf[:0]

		c.tracer.Emitf(trace.CategoryDecode, trace.LevelWarn, c.cycle, fw.pc,
			"undecodable word 0x%08X, stopping fetch", fw.raw)
		return
	}
	c.latch = &decodedInst{pc: fw.pc, inst: inst}

	c.tracer.Emitf(trace.CategoryDecode, trace.LevelTrace, c.cycle, fw.pc,
		"decoded 0x%08X", fw.raw)
}

// fetch reads at most one word per cycle into the fetch buffer,
// advancing sequentially. Control flow is resolved at commit.
func (c *CPU) fetch() {
	if c.fetchStopped || len(c.fetchBuf) >= c.config.FetchBufferDepth {
		return
	}
	raw := c.mem.Read32(c.fetchPC)
	c.fetchBuf = append(c.fetchBuf, fetchedWord{pc: c.fetchPC, raw: raw})

	c.tracer.Emitf(trace.CategoryFetch, trace.LevelTrace, c.cycle, c.fetchPC,
		"fetched 0x%08X", raw)
	c.fetchPC += 4
}

// checkDrained halts the core when fetch has stopped and no work
// remains anywhere in the pipeline.
func (c *CPU) checkDrained() {
	if c.fetchStopped && c.latch == nil && len(c.fetchBuf) == 0 &&
		len(c.executing) == 0 && len(c.wbQueue) == 0 && c.rob.Empty() {
		c.halted = true
	}
}

// Halted reports whether the CPU stopped: at an exit syscall, at an
// EBREAK, or after draining past undecodable memory.
func (c *CPU) Halted() bool {
	return c.halted
}

// ExitCode returns the status passed to the exit syscall; zero when the
// core halted without one.
func (c *CPU) ExitCode() int {
	return c.exitCode
}

// Cycle returns the current cycle number.
func (c *CPU) Cycle() uint64 {
	return c.cycle
}

// PC returns the next fetch address.
func (c *CPU) PC() uint32 {
	return c.fetchPC
}

// ArchReg returns the committed value of a logical register.
func (c *CPU) ArchReg(l uint8) uint32 {
	return c.rename.ArchValue(l)
}

// SetReg seeds a committed register value before a run. Writes to x0
// are ignored.
func (c *CPU) SetReg(l uint8, value uint32) {
	c.rename.SetArchValue(l, value)
}

// Stats returns the aggregated run counters.
func (c *CPU) Stats() Statistics {
	return c.stats
}

// RenameStats returns the rename-unit counters.
func (c *CPU) RenameStats() RenameStats {
	return c.rename.Stats()
}

// StationStats returns the reservation-station counters.
func (c *CPU) StationStats() StationStats {
	return c.station.Stats()
}

// ROBStats returns the reorder-buffer counters.
func (c *CPU) ROBStats() ROBStats {
	return c.rob.Stats()
}

// Reset restores the CPU to its initial state with the fetch PC at the
// given entry point. Memory contents are untouched.
func (c *CPU) Reset(entry uint32) {
	c.cycle = 0
	c.fetchPC = entry
	c.fetchBuf = c.fetchBuf[:0]
	c.fetchStopped = false
	c.latch = nil
	c.executing = c.executing[:0]
	c.wbQueue = c.wbQueue[:0]
	c.halted = false
	c.exitCode = 0
	c.stats = Statistics{}

	c.rename.Reset()
	c.station.Reset()
	c.rob.Reset()
	c.arena.Flush()
}
