// Package insts provides RISC-V RV32I instruction definitions and decoding.
//
// This package implements decoding of 32-bit RISC-V machine code into
// structured instruction representations. It supports the RV32I base
// integer instruction set:
//   - Register-register arithmetic: ADD, SUB, SLL, SLT, SLTU, XOR, SRL, SRA, OR, AND
//   - Register-immediate arithmetic: ADDI, SLTI, SLTIU, XORI, ORI, ANDI, SLLI, SRLI, SRAI
//   - Loads and stores: LB, LH, LW, LBU, LHU, SB, SH, SW
//   - Control flow: BEQ, BNE, BLT, BGE, BLTU, BGEU, JAL, JALR
//   - Upper immediates: LUI, AUIPC
//   - System: ECALL, EBREAK
//
// Usage:
//
//	decoder := insts.NewDecoder()
//	inst := decoder.Decode(0x00500093) // ADDI x1, x0, 5
//	fmt.Printf("Op: %v, Rd: %d, Rs1: %d, Imm: %d\n", inst.Op, inst.Rd, inst.Rs1, inst.Imm)
package insts

// Type represents a RISC-V instruction encoding format.
type Type uint8

// Instruction formats.
const (
	TypeUnknown Type = iota
	TypeR            // Register-register
	TypeI            // Register-immediate, loads, JALR, system
	TypeS            // Stores
	TypeB            // Conditional branches
	TypeU            // LUI, AUIPC
	TypeJ            // JAL
)

// String returns the format name.
func (t Type) String() string {
	switch t {
	case TypeR:
		return "R"
	case TypeI:
		return "I"
	case TypeS:
		return "S"
	case TypeB:
		return "B"
	case TypeU:
		return "U"
	case TypeJ:
		return "J"
	default:
		return "unknown"
	}
}

// Op represents a RISC-V major opcode (bits [6:0] of the instruction word).
type Op uint8

// RV32I major opcodes.
const (
	OpLoad   Op = 0x03 // LB, LH, LW, LBU, LHU
	OpOpImm  Op = 0x13 // ADDI, SLTI, SLTIU, XORI, ORI, ANDI, SLLI, SRLI, SRAI
	OpAuipc  Op = 0x17 // AUIPC
	OpStore  Op = 0x23 // SB, SH, SW
	OpOp     Op = 0x33 // ADD, SUB, SLL, SLT, SLTU, XOR, SRL, SRA, OR, AND
	OpLui    Op = 0x37 // LUI
	OpBranch Op = 0x63 // BEQ, BNE, BLT, BGE, BLTU, BGEU
	OpJalr   Op = 0x67 // JALR
	OpJal    Op = 0x6F // JAL
	OpSystem Op = 0x73 // ECALL, EBREAK
)

// String returns the opcode mnemonic class.
func (o Op) String() string {
	switch o {
	case OpLoad:
		return "LOAD"
	case OpOpImm:
		return "OP-IMM"
	case OpAuipc:
		return "AUIPC"
	case OpStore:
		return "STORE"
	case OpOp:
		return "OP"
	case OpLui:
		return "LUI"
	case OpBranch:
		return "BRANCH"
	case OpJalr:
		return "JALR"
	case OpJal:
		return "JAL"
	case OpSystem:
		return "SYSTEM"
	default:
		return "UNKNOWN"
	}
}

// Funct3 values for the OP and OP-IMM opcodes.
const (
	Funct3AddSub uint8 = 0b000
	Funct3Sll    uint8 = 0b001
	Funct3Slt    uint8 = 0b010
	Funct3Sltu   uint8 = 0b011
	Funct3Xor    uint8 = 0b100
	Funct3SrlSra uint8 = 0b101
	Funct3Or     uint8 = 0b110
	Funct3And    uint8 = 0b111
)

// Funct3 values for the BRANCH opcode.
const (
	Funct3Beq  uint8 = 0b000
	Funct3Bne  uint8 = 0b001
	Funct3Blt  uint8 = 0b100
	Funct3Bge  uint8 = 0b101
	Funct3Bltu uint8 = 0b110
	Funct3Bgeu uint8 = 0b111
)

// Funct3 values for the LOAD and STORE opcodes.
const (
	Funct3Byte  uint8 = 0b000 // LB / SB
	Funct3Half  uint8 = 0b001 // LH / SH
	Funct3Word  uint8 = 0b010 // LW / SW
	Funct3ByteU uint8 = 0b100 // LBU
	Funct3HalfU uint8 = 0b101 // LHU
)

// Instruction represents a decoded RV32I instruction.
type Instruction struct {
	// Raw is the original 32-bit instruction word.
	Raw uint32

	// Type is the encoding format.
	Type Type

	// Op is the major opcode.
	Op Op

	// Funct3 and Funct7 select the operation within a major opcode.
	Funct3 uint8
	Funct7 uint8

	// Register fields. Values are in [0, 32); x0 is the zero register.
	Rd  uint8
	Rs1 uint8
	Rs2 uint8

	// Imm is the sign-extended immediate, already assembled for the
	// instruction's format (I, S, B, U, or J).
	Imm int32
}

// IsLoad reports whether the instruction reads memory.
func (i *Instruction) IsLoad() bool {
	return i.Op == OpLoad
}

// IsStore reports whether the instruction writes memory.
func (i *Instruction) IsStore() bool {
	return i.Op == OpStore
}

// IsBranch reports whether the instruction is a conditional branch.
func (i *Instruction) IsBranch() bool {
	return i.Op == OpBranch
}

// IsJump reports whether the instruction unconditionally transfers control.
func (i *Instruction) IsJump() bool {
	return i.Op == OpJal || i.Op == OpJalr
}

// WritesRd reports whether the instruction produces a register result.
// Stores, branches, and system instructions do not; neither does any
// instruction whose destination is x0.
func (i *Instruction) WritesRd() bool {
	switch i.Op {
	case OpStore, OpBranch, OpSystem:
		return false
	}
	return i.Rd != 0
}
