package decoder

// decodeCompressed decodes the RV32C 16-bit forms listed in spec.md §4.1,
// expanding each to the equivalent full-width Kind. Bit layouts are
// grounded on original_source/crates/vm/src/decoder.rs's decode_compressed,
// except for the C.JR/C.MV/C.JALR/C.ADD/C.EBREAK quadrant-2 group, where
// that source ignores bit 12 (the real discriminator between the two
// sub-forms) and so cannot tell C.JALR from C.JR or C.ADD from C.MV; here
// that group follows the canonical RVC encoding (bit 12 selects the linked
// vs unlinked / accumulating vs moving variant) since spec.md requires
// bit-exact RISC-V semantics for all five forms.
func decodeCompressed(hword uint16) (Instruction, error) {
	funct3 := (hword >> 13) & 0x7
	opcode := hword & 0x3
	rd := int((hword >> 7) & 0x1f)
	rs1 := rd
	rs2 := int((hword >> 2) & 0x1f)

	switch {
	case opcode == 0b00 && funct3 == 0b000:
		return decodeCAddi4spn(hword)
	case opcode == 0b00 && funct3 == 0b010:
		return decodeCLw(hword), nil
	case opcode == 0b00 && funct3 == 0b110:
		return decodeCSw(hword), nil

	case opcode == 0b01 && funct3 == 0b000:
		return decodeCAddiOrNop(hword, rd), nil
	case opcode == 0b01 && funct3 == 0b001:
		return Instruction{Kind: KindJal, Rd: 1, Imm: decodeCJImm(hword), Compressed: true}, nil
	case opcode == 0b01 && funct3 == 0b010:
		imm := decodeCIImm6(hword)
		return Instruction{Kind: KindAddi, Rd: rd, Rs1: 0, Imm: imm, Compressed: true}, nil
	case opcode == 0b01 && funct3 == 0b011:
		return decodeCLuiOrAddi16sp(hword, rd)
	case opcode == 0b01 && funct3 == 0b100:
		return decodeCMiscAlu(hword)
	case opcode == 0b01 && funct3 == 0b101:
		return Instruction{Kind: KindJal, Rd: 0, Imm: decodeCJImm(hword), Compressed: true}, nil
	case opcode == 0b01 && funct3 == 0b110:
		return decodeCBranch(hword, KindBeq), nil
	case opcode == 0b01 && funct3 == 0b111:
		return decodeCBranch(hword, KindBne), nil

	case opcode == 0b10 && funct3 == 0b000:
		shamt := int32((hword >> 2) & 0x1f)
		return Instruction{Kind: KindSlli, Rd: rd, Rs1: rs1, Imm: shamt, Compressed: true}, nil
	case opcode == 0b10 && funct3 == 0b010:
		return decodeCLwsp(hword)
	case opcode == 0b10 && funct3 == 0b100:
		return decodeCRegOrJump(hword, rs1, rs2)
	case opcode == 0b10 && funct3 == 0b110:
		return decodeCSwsp(hword), nil
	default:
		return Instruction{}, ErrUnknownEncoding
	}
}

// C.ADDI / C.NOP: nzimm[5|4:0] at bits [12|6:2], sign-extended 6-bit.
func decodeCAddiOrNop(hword uint16, rd int) Instruction {
	imm := decodeCIImm6(hword)
	return Instruction{Kind: KindAddi, Rd: rd, Rs1: rd, Imm: imm, Compressed: true}
}

func decodeCIImm6(hword uint16) int32 {
	raw := uint32((hword>>2)&0x1f) | uint32((hword>>12)&0x1)<<5
	return signExtend(raw, 6)
}

// C.LUI / C.ADDI16SP.
func decodeCLuiOrAddi16sp(hword uint16, rd int) (Instruction, error) {
	if rd == 2 {
		raw := uint32((hword>>12)&0x1)<<9 |
			uint32((hword>>6)&0x1)<<4 |
			uint32((hword>>5)&0x1)<<6 |
			uint32((hword>>4)&0x1)<<8 |
			uint32((hword>>3)&0x1)<<7 |
			uint32((hword>>2)&0x1)<<5
		imm := signExtend(raw, 10)
		return Instruction{Kind: KindAddi, Rd: 2, Rs1: 2, Imm: imm, Compressed: true}, nil
	}
	if rd != 0 {
		raw := uint32((hword>>2)&0x1f) | uint32((hword>>12)&0x1)<<5
		imm := signExtend(raw, 6) << 12
		return Instruction{Kind: KindLui, Rd: rd, Imm: imm, Compressed: true}, nil
	}
	return Instruction{}, ErrUnknownEncoding
}

// C.ADDI4SPN: rd' <- x2 + nzuimm.
func decodeCAddi4spn(hword uint16) (Instruction, error) {
	rd := 8 + int((hword>>2)&0x7)
	raw := uint32((hword>>12)&0x1)<<5 |
		uint32((hword>>11)&0x1)<<4 |
		uint32((hword>>10)&0x1)<<9 |
		uint32((hword>>9)&0x1)<<8 |
		uint32((hword>>8)&0x1)<<7 |
		uint32((hword>>7)&0x1)<<6 |
		uint32((hword>>6)&0x1)<<2 |
		uint32((hword>>5)&0x1)<<3
	if raw == 0 {
		return Instruction{}, ErrUnknownEncoding
	}
	return Instruction{Kind: KindAddi, Rd: rd, Rs1: 2, Imm: int32(raw), Compressed: true}, nil
}

func decodeCJImm(hword uint16) int32 {
	raw := uint32((hword>>12)&0x1)<<11 |
		uint32((hword>>11)&0x1)<<4 |
		uint32((hword>>9)&0x3)<<8 |
		uint32((hword>>8)&0x1)<<10 |
		uint32((hword>>7)&0x1)<<6 |
		uint32((hword>>6)&0x1)<<7 |
		uint32((hword>>3)&0x7)<<1 |
		uint32((hword>>2)&0x1)<<5
	return signExtend(raw, 12)
}

func decodeCBranch(hword uint16, kind Kind) Instruction {
	rs1 := 8 + int((hword>>7)&0x7)
	raw := uint32((hword>>12)&0x1)<<8 |
		uint32((hword>>10)&0x3)<<3 |
		uint32((hword>>5)&0x3)<<6 |
		uint32((hword>>3)&0x3)<<1 |
		uint32((hword>>2)&0x1)<<5
	imm := signExtend(raw, 9)
	return Instruction{Kind: kind, Rs1: rs1, Rs2: 0, Imm: imm, Compressed: true}
}

func decodeCLw(hword uint16) Instruction {
	rd := 8 + int((hword>>2)&0x7)
	rs1 := 8 + int((hword>>7)&0x7)
	raw := uint32((hword>>6)&0x1)<<2 |
		uint32((hword>>10)&0x7)<<3 |
		uint32((hword>>5)&0x1)<<6
	return Instruction{Kind: KindLw, Rd: rd, Rs1: rs1, Imm: int32(raw), Compressed: true}
}

func decodeCSw(hword uint16) Instruction {
	rs2 := 8 + int((hword>>2)&0x7)
	rs1 := 8 + int((hword>>7)&0x7)
	raw := uint32((hword>>6)&0x1)<<2 | uint32((hword>>10)&0x7)<<3 | uint32((hword>>5)&0x1)<<6
	return Instruction{Kind: KindSw, Rs1: rs1, Rs2: rs2, Imm: int32(raw), Compressed: true}
}

func decodeCLwsp(hword uint16) (Instruction, error) {
	rd := int((hword >> 7) & 0x1f)
	if rd == 0 {
		return Instruction{}, ErrUnknownEncoding
	}
	raw := uint32((hword>>2)&0x3)<<6 |
		uint32((hword>>12)&0x1)<<5 |
		uint32((hword>>4)&0x7)<<2
	return Instruction{Kind: KindLw, Rd: rd, Rs1: 2, Imm: int32(raw), Compressed: true}, nil
}

func decodeCSwsp(hword uint16) Instruction {
	rs2 := int((hword >> 2) & 0x1f)
	raw := uint32((hword>>12)&0x1)<<5 |
		uint32((hword>>11)&0x1)<<4 |
		uint32((hword>>10)&0x1)<<3 |
		uint32((hword>>9)&0x1)<<2 |
		uint32((hword>>8)&0x1)<<7 |
		uint32((hword>>7)&0x1)<<6
	return Instruction{Kind: KindSw, Rs1: 2, Rs2: rs2, Imm: int32(raw), Compressed: true}
}

// decodeCRegOrJump covers C.JR, C.JALR, C.MV, C.ADD, C.EBREAK, C.RET — all
// share funct3=100, opcode=10 and are disambiguated by bit 12 and whether
// rs2/rs1 are zero.
func decodeCRegOrJump(hword uint16, rs1, rs2 int) (Instruction, error) {
	bit12 := (hword >> 12) & 0x1
	if rs2 == 0 {
		if bit12 == 0 {
			if rs1 == 0 {
				return Instruction{}, ErrUnknownEncoding
			}
			// C.JR (rd=0), C.RET is the rs1==1 case of the same form.
			return Instruction{Kind: KindJalr, Rd: 0, Rs1: rs1, Imm: 0, Compressed: true}, nil
		}
		if rs1 == 0 {
			return Instruction{Kind: KindEbreak, Compressed: true}, nil
		}
		// C.JALR: rd=1 (ra), link saved.
		return Instruction{Kind: KindJalr, Rd: 1, Rs1: rs1, Imm: 0, Compressed: true}, nil
	}
	if bit12 == 0 {
		// C.MV: rd <- rs2.
		return Instruction{Kind: KindAdd, Rd: rs1, Rs1: 0, Rs2: rs2, Compressed: true}, nil
	}
	// C.ADD: rd <- rd + rs2.
	return Instruction{Kind: KindAdd, Rd: rs1, Rs1: rs1, Rs2: rs2, Compressed: true}, nil
}

func decodeCMiscAlu(hword uint16) (Instruction, error) {
	funct2Hi := (hword >> 10) & 0x3
	rd := 8 + int((hword>>7)&0x7)
	switch funct2Hi {
	case 0b00: // C.SRLI
		shamt := int32((hword >> 2) & 0x1f)
		return Instruction{Kind: KindSrli, Rd: rd, Rs1: rd, Imm: shamt, Compressed: true}, nil
	case 0b01: // C.SRAI
		shamt := int32((hword >> 2) & 0x1f)
		return Instruction{Kind: KindSrai, Rd: rd, Rs1: rd, Imm: shamt, Compressed: true}, nil
	case 0b10: // C.ANDI
		raw := uint32((hword>>2)&0x1f) | uint32((hword>>12)&0x1)<<5
		imm := signExtend(raw, 6)
		return Instruction{Kind: KindAndi, Rd: rd, Rs1: rd, Imm: imm, Compressed: true}, nil
	case 0b11: // register-register: C.SUB/C.XOR/C.OR/C.AND
		funct2 := (hword >> 5) & 0x3
		rs2 := 8 + int((hword>>2)&0x7)
		var kind Kind
		switch funct2 {
		case 0b00:
			kind = KindSub
		case 0b01:
			kind = KindXor
		case 0b10:
			kind = KindOr
		case 0b11:
			kind = KindAnd
		}
		return Instruction{Kind: kind, Rd: rd, Rs1: rd, Rs2: rs2, Compressed: true}, nil
	}
	return Instruction{}, ErrUnknownEncoding
}
