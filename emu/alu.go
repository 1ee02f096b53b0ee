package emu

import (
	"github.com/sarchlab/r5sim/insts"
)

// ALUResult evaluates the register result of a non-memory instruction.
// src1 and src2 are the resolved physical source values. For OP-IMM the
// second operand comes from the immediate; for LUI/AUIPC/JAL/JALR the
// result is format-defined and src2 is ignored.
func ALUResult(inst *insts.Instruction, pc, src1, src2 uint32) uint32 {
	switch inst.Op {
	case insts.OpOp:
		return intOp(inst.Funct3, inst.Funct7, src1, src2)
	case insts.OpOpImm:
		imm := uint32(inst.Imm)
		if inst.Funct3 == insts.Funct3Sll || inst.Funct3 == insts.Funct3SrlSra {
			// Shift amount is the low 5 bits; funct7 bit 5 selects SRA.
			return intOp(inst.Funct3, uint8(inst.Raw>>25), src1, imm&0x1F)
		}
		return intOp(inst.Funct3, 0, src1, imm)
	case insts.OpLui:
		return uint32(inst.Imm)
	case insts.OpAuipc:
		return pc + uint32(inst.Imm)
	case insts.OpJal, insts.OpJalr:
		// Link value: address of the following instruction.
		return pc + 4
	default:
		return 0
	}
}

// intOp evaluates an integer operation selected by funct3/funct7.
func intOp(funct3, funct7 uint8, a, b uint32) uint32 {
	switch funct3 {
	case insts.Funct3AddSub:
		if funct7 == 0x20 {
			return a - b
		}
		return a + b
	case insts.Funct3Sll:
		return a << (b & 0x1F)
	case insts.Funct3Slt:
		if int32(a) < int32(b) {
			return 1
		}
		return 0
	case insts.Funct3Sltu:
		if a < b {
			return 1
		}
		return 0
	case insts.Funct3Xor:
		return a ^ b
	case insts.Funct3SrlSra:
		if funct7&0x20 != 0 {
			return uint32(int32(a) >> (b & 0x1F))
		}
		return a >> (b & 0x1F)
	case insts.Funct3Or:
		return a | b
	case insts.Funct3And:
		return a & b
	}
	return 0
}

// BranchTaken resolves a conditional branch and returns whether it is
// taken and, if so, the target address.
func BranchTaken(inst *insts.Instruction, pc, src1, src2 uint32) (bool, uint32) {
	var taken bool
	switch inst.Funct3 {
	case insts.Funct3Beq:
		taken = src1 == src2
	case insts.Funct3Bne:
		taken = src1 != src2
	case insts.Funct3Blt:
		taken = int32(src1) < int32(src2)
	case insts.Funct3Bge:
		taken = int32(src1) >= int32(src2)
	case insts.Funct3Bltu:
		taken = src1 < src2
	case insts.Funct3Bgeu:
		taken = src1 >= src2
	}
	return taken, pc + uint32(inst.Imm)
}

// JumpTarget computes the target of an unconditional jump.
// JAL targets are PC-relative; JALR targets are rs1-relative with the
// low bit cleared per the RISC-V specification.
func JumpTarget(inst *insts.Instruction, pc, src1 uint32) uint32 {
	if inst.Op == insts.OpJalr {
		return (src1 + uint32(inst.Imm)) &^ 1
	}
	return pc + uint32(inst.Imm)
}

// MemAddress computes the effective address of a load or store.
func MemAddress(inst *insts.Instruction, src1 uint32) uint32 {
	return src1 + uint32(inst.Imm)
}

// LoadValue performs a load from memory with the width and extension
// selected by funct3.
func LoadValue(inst *insts.Instruction, mem *Memory, addr uint32) uint32 {
	switch inst.Funct3 {
	case insts.Funct3Byte:
		return uint32(int32(int8(mem.Read8(addr))))
	case insts.Funct3Half:
		return uint32(int32(int16(mem.Read16(addr))))
	case insts.Funct3Word:
		return mem.Read32(addr)
	case insts.Funct3ByteU:
		return uint32(mem.Read8(addr))
	case insts.Funct3HalfU:
		return uint32(mem.Read16(addr))
	}
	return 0
}

// StoreValue performs a store to memory with the width selected by funct3.
func StoreValue(inst *insts.Instruction, mem *Memory, addr, value uint32) {
	switch inst.Funct3 {
	case insts.Funct3Byte:
		mem.Write8(addr, uint8(value))
	case insts.Funct3Half:
		mem.Write16(addr, uint16(value))
	case insts.Funct3Word:
		mem.Write32(addr, value)
	}
}
