package insts

// Decoder decodes RV32I machine code into instructions.
type Decoder struct{}

// NewDecoder creates a new RV32I instruction decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode decodes a 32-bit RISC-V instruction word.
// Unrecognized opcodes decode to an Instruction with Type == TypeUnknown.
func (d *Decoder) Decode(word uint32) *Instruction {
	inst := &Instruction{
		Raw:    word,
		Op:     extractOp(word),
		Funct3: extractFunct3(word),
		Funct7: extractFunct7(word),
		Rd:     extractRd(word),
		Rs1:    extractRs1(word),
		Rs2:    extractRs2(word),
	}

	inst.Type = formatFor(inst.Op)

	switch inst.Type {
	case TypeI:
		inst.Imm = immI(word)
	case TypeS:
		inst.Imm = immS(word)
	case TypeB:
		inst.Imm = immB(word)
	case TypeU:
		inst.Imm = immU(word)
	case TypeJ:
		inst.Imm = immJ(word)
	}

	// Register fields that a format does not encode read as zero so that
	// the rename stage treats them as the always-ready x0.
	switch inst.Type {
	case TypeI, TypeU, TypeJ:
		inst.Rs2 = 0
	}
	switch inst.Type {
	case TypeS, TypeB:
		inst.Rd = 0
	}
	if inst.Type == TypeU || inst.Type == TypeJ {
		inst.Rs1 = 0
	}

	return inst
}

// formatFor maps a major opcode to its encoding format.
func formatFor(op Op) Type {
	switch op {
	case OpOp:
		return TypeR
	case OpOpImm, OpLoad, OpJalr, OpSystem:
		return TypeI
	case OpStore:
		return TypeS
	case OpBranch:
		return TypeB
	case OpLui, OpAuipc:
		return TypeU
	case OpJal:
		return TypeJ
	default:
		return TypeUnknown
	}
}

// Field extraction. Bit positions follow the RV32I base encoding:
// funct7 | rs2 | rs1 | funct3 | rd | opcode

func extractOp(word uint32) Op {
	return Op(word & 0x7F) // bits [6:0]
}

func extractRd(word uint32) uint8 {
	return uint8((word >> 7) & 0x1F) // bits [11:7]
}

func extractFunct3(word uint32) uint8 {
	return uint8((word >> 12) & 0x7) // bits [14:12]
}

func extractRs1(word uint32) uint8 {
	return uint8((word >> 15) & 0x1F) // bits [19:15]
}

func extractRs2(word uint32) uint8 {
	return uint8((word >> 20) & 0x1F) // bits [24:20]
}

func extractFunct7(word uint32) uint8 {
	return uint8((word >> 25) & 0x7F) // bits [31:25]
}

// immI assembles the I-type immediate: inst[31:20], sign-extended.
func immI(word uint32) int32 {
	return int32(word) >> 20
}

// immS assembles the S-type immediate: inst[31:25] | inst[11:7].
func immS(word uint32) int32 {
	imm := (int32(word) >> 25 << 5) | int32((word>>7)&0x1F)
	return imm
}

// immB assembles the B-type immediate:
// inst[31] | inst[7] | inst[30:25] | inst[11:8] | 0
func immB(word uint32) int32 {
	imm := (int32(word) >> 31 << 12) | // imm[12]
		int32((word>>7)&0x1)<<11 | // imm[11]
		int32((word>>25)&0x3F)<<5 | // imm[10:5]
		int32((word>>8)&0xF)<<1 // imm[4:1]
	return imm
}

// immU assembles the U-type immediate: inst[31:12] << 12.
func immU(word uint32) int32 {
	return int32(word & 0xFFFFF000)
}

// immJ assembles the J-type immediate:
// inst[31] | inst[19:12] | inst[20] | inst[30:21] | 0
func immJ(word uint32) int32 {
	imm := (int32(word) >> 31 << 20) | // imm[20]
		int32((word>>12)&0xFF)<<12 | // imm[19:12]
		int32((word>>20)&0x1)<<11 | // imm[11]
		int32((word>>21)&0x3FF)<<1 // imm[10:1]
	return imm
}
