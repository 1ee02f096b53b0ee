// Package ooo implements the out-of-order back end of the simulator:
// register renaming, a Tomasulo-style reservation station, a reorder
// buffer, typed execution units, and the cycle-level driver that wires
// them together.
//
// The components communicate through the common data bus (CDB): when an
// execution unit completes, its broadcast updates the physical register
// file, wakes waiting reservation-station entries, and completes the
// producing reorder-buffer entry. In-flight instructions live in an
// instruction arena keyed by reorder-buffer id; every component holds
// ids, never shared instruction pointers.
package ooo

// Register file geometry. Logical registers x0-x31 map onto 128 physical
// registers; p0-p31 are the initial architectural registers and never
// enter the free list.
const (
	NumLogicalRegs  = 32
	NumPhysicalRegs = 128
)

// PhysReg identifies a physical register, in [0, NumPhysicalRegs).
// p0 is hard-wired zero.
type PhysReg uint8

// ROBID identifies a reorder-buffer entry. Ids increase monotonically
// over the run and are never reused, so program order is the natural
// integer order with no wraparound concerns.
type ROBID uint64

// CDBEntry is one common-data-bus broadcast from an execution unit.
type CDBEntry struct {
	// Dest is the physical destination register; 0 for instructions
	// without a register result.
	Dest PhysReg

	// Value is the computed result.
	Value uint32

	// ROB identifies the producing instruction.
	ROB ROBID

	// Valid distinguishes a real broadcast from the zero value.
	Valid bool

	// IsJump and JumpTarget carry control-flow resolution to the
	// reorder buffer: a taken branch or an unconditional jump asks the
	// commit stage to redirect the PC.
	IsJump     bool
	JumpTarget uint32
}

// UnitKind tags an execution-unit class.
type UnitKind uint8

// Execution-unit classes.
const (
	UnitALU UnitKind = iota
	UnitBranch
	UnitLoad
	UnitStore
	numUnitKinds
)

// String returns the unit class name.
func (k UnitKind) String() string {
	switch k {
	case UnitALU:
		return "ALU"
	case UnitBranch:
		return "BRANCH"
	case UnitLoad:
		return "LOAD"
	case UnitStore:
		return "STORE"
	default:
		return "UNKNOWN"
	}
}
