// Package core assembles a runnable simulated machine: memory, the
// out-of-order CPU, and a loaded program.
package core

import (
	"io"

	"github.com/sarchlab/r5sim/emu"
	"github.com/sarchlab/r5sim/loader"
	"github.com/sarchlab/r5sim/timing/latency"
	"github.com/sarchlab/r5sim/timing/ooo"
	"github.com/sarchlab/r5sim/trace"
)

// Core is a single simulated RV32 machine.
type Core struct {
	mem *emu.Memory
	cpu *ooo.CPU
}

// Option configures a Core at construction.
type Option func(*options)

type options struct {
	config *latency.Config
	tracer *trace.Tracer
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// WithConfig overrides the default timing configuration.
func WithConfig(cfg *latency.Config) Option {
	return func(o *options) {
		o.config = cfg
	}
}

// WithTracer attaches a tracer to the machine.
func WithTracer(t *trace.Tracer) Option {
	return func(o *options) {
		o.tracer = t
	}
}

// WithStdio connects the simulated program's standard streams. A nil
// reader or writer keeps the process default.
func WithStdio(stdin io.Reader, stdout, stderr io.Writer) Option {
	return func(o *options) {
		o.stdin = stdin
		o.stdout = stdout
		o.stderr = stderr
	}
}

// NewCore builds a machine around a loaded program: segments are copied
// into fresh memory, the fetch PC starts at the program entry point, and
// the stack pointer is seeded from the program.
func NewCore(prog *loader.Program, opts ...Option) *Core {
	o := options{config: latency.DefaultConfig()}
	for _, opt := range opts {
		opt(&o)
	}

	mem := emu.NewMemory()
	prog.LoadInto(mem)

	cpu := ooo.NewCPU(mem,
		ooo.WithEntryPoint(prog.EntryPoint),
		ooo.WithConfig(o.config),
		ooo.WithTracer(o.tracer),
		ooo.WithStdio(o.stdin, o.stdout, o.stderr))
	cpu.SetReg(2, prog.InitialSP) // sp

	return &Core{mem: mem, cpu: cpu}
}

// Tick advances the machine by one cycle.
func (c *Core) Tick() {
	c.cpu.Tick()
}

// Run ticks until the machine halts or maxCycles elapse (0 means no
// limit). It returns the number of cycles executed.
func (c *Core) Run(maxCycles uint64) uint64 {
	return c.cpu.Run(maxCycles)
}

// Halted reports whether the machine stopped.
func (c *Core) Halted() bool {
	return c.cpu.Halted()
}

// ExitCode returns the program's exit code.
func (c *Core) ExitCode() int {
	return c.cpu.ExitCode()
}

// CPU exposes the underlying out-of-order core.
func (c *Core) CPU() *ooo.CPU {
	return c.cpu
}

// Memory exposes the machine memory.
func (c *Core) Memory() *emu.Memory {
	return c.mem
}

// Report aggregates every counter of a run for presentation.
type Report struct {
	Run     ooo.Statistics
	Rename  ooo.RenameStats
	Station ooo.StationStats
	ROB     ooo.ROBStats
}

// Report collects the machine counters.
func (c *Core) Report() Report {
	return Report{
		Run:     c.cpu.Stats(),
		Rename:  c.cpu.RenameStats(),
		Station: c.cpu.StationStats(),
		ROB:     c.cpu.ROBStats(),
	}
}
