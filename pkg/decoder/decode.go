package decoder

import "encoding/binary"

// opcode values, RV32IMAC base + extensions (original_source/crates/vm/src/isa.rs).
const (
	opLoad   = 0x03
	opStore  = 0x23
	opBranch = 0x63
	opJal    = 0x6f
	opJalr   = 0x67
	opOpImm  = 0x13
	opOp     = 0x33
	opLui    = 0x37
	opAuipc  = 0x17
	opSystem = 0x73
	opAmo    = 0x2f
	opFence  = 0x0f
)

// Decode reads the instruction at the start of code and returns the typed
// Instruction plus its encoded size (2 for compressed, 4 for full words).
func Decode(code []byte) (Instruction, int, error) {
	if len(code) < 2 {
		return Instruction{}, 0, ErrShortRead
	}
	low := binary.LittleEndian.Uint16(code[0:2])
	if low == 0 && len(code) >= 4 && binary.LittleEndian.Uint32(code[0:4]) == 0 {
		return Instruction{Kind: KindUnimp}, 4, nil
	}
	if low&0x3 != 0x3 {
		instr, err := decodeCompressed(low)
		return instr, 2, err
	}
	if len(code) < 4 {
		return Instruction{}, 0, ErrShortRead
	}
	word := binary.LittleEndian.Uint32(code[0:4])
	instr, err := decodeFull(word)
	return instr, 4, err
}

func decodeFull(word uint32) (Instruction, error) {
	if word == 0 {
		return Instruction{Kind: KindUnimp}, nil
	}
	opcode := word & 0x7f
	rd := int((word >> 7) & 0x1f)
	funct3 := (word >> 12) & 0x7
	rs1 := int((word >> 15) & 0x1f)
	rs2 := int((word >> 20) & 0x1f)
	funct7 := (word >> 25) & 0x7f

	switch opcode {
	case opLui:
		return Instruction{Kind: KindLui, Rd: rd, Imm: int32(word & 0xfffff000)}, nil
	case opAuipc:
		return Instruction{Kind: KindAuipc, Rd: rd, Imm: int32(word & 0xfffff000)}, nil
	case opJal:
		imm := decodeJImm(word)
		return Instruction{Kind: KindJal, Rd: rd, Imm: imm}, nil
	case opJalr:
		if funct3 != 0 {
			return Instruction{}, ErrUnknownEncoding
		}
		return Instruction{Kind: KindJalr, Rd: rd, Rs1: rs1, Imm: decodeIImm(word)}, nil
	case opBranch:
		imm := decodeBImm(word)
		base := Instruction{Rs1: rs1, Rs2: rs2, Imm: imm}
		switch funct3 {
		case 0b000:
			base.Kind = KindBeq
		case 0b001:
			base.Kind = KindBne
		case 0b100:
			base.Kind = KindBlt
		case 0b101:
			base.Kind = KindBge
		case 0b110:
			base.Kind = KindBltu
		case 0b111:
			base.Kind = KindBgeu
		default:
			return Instruction{}, ErrUnknownEncoding
		}
		return base, nil
	case opLoad:
		base := Instruction{Rd: rd, Rs1: rs1, Imm: decodeIImm(word)}
		switch funct3 {
		case 0b000:
			base.Kind = KindLb
		case 0b001:
			base.Kind = KindLh
		case 0b010:
			base.Kind = KindLw
		case 0b100:
			base.Kind = KindLbu
		case 0b101:
			base.Kind = KindLhu
		default:
			return Instruction{}, ErrUnknownEncoding
		}
		return base, nil
	case opStore:
		base := Instruction{Rs1: rs1, Rs2: rs2, Imm: decodeSImm(word)}
		switch funct3 {
		case 0b000:
			base.Kind = KindSb
		case 0b001:
			base.Kind = KindSh
		case 0b010:
			base.Kind = KindSw
		default:
			return Instruction{}, ErrUnknownEncoding
		}
		return base, nil
	case opOpImm:
		base := Instruction{Rd: rd, Rs1: rs1, Imm: decodeIImm(word)}
		switch funct3 {
		case 0b000:
			base.Kind = KindAddi
		case 0b010:
			base.Kind = KindSlti
		case 0b011:
			base.Kind = KindSltiu
		case 0b100:
			base.Kind = KindXori
		case 0b110:
			base.Kind = KindOri
		case 0b111:
			base.Kind = KindAndi
		case 0b001:
			if funct7 != 0 {
				return Instruction{}, ErrUnknownEncoding
			}
			base.Kind = KindSlli
			base.Imm = int32(rs2)
		case 0b101:
			shamt := int32(rs2)
			switch funct7 {
			case 0x00:
				base.Kind = KindSrli
			case 0x20:
				base.Kind = KindSrai
			default:
				return Instruction{}, ErrUnknownEncoding
			}
			base.Imm = shamt
		default:
			return Instruction{}, ErrUnknownEncoding
		}
		return base, nil
	case opOp:
		base := Instruction{Rd: rd, Rs1: rs1, Rs2: rs2}
		switch {
		case funct7 == 0x00 && funct3 == 0b000:
			base.Kind = KindAdd
		case funct7 == 0x20 && funct3 == 0b000:
			base.Kind = KindSub
		case funct7 == 0x00 && funct3 == 0b001:
			base.Kind = KindSll
		case funct7 == 0x00 && funct3 == 0b010:
			base.Kind = KindSlt
		case funct7 == 0x00 && funct3 == 0b011:
			base.Kind = KindSltu
		case funct7 == 0x00 && funct3 == 0b100:
			base.Kind = KindXor
		case funct7 == 0x00 && funct3 == 0b101:
			base.Kind = KindSrl
		case funct7 == 0x20 && funct3 == 0b101:
			base.Kind = KindSra
		case funct7 == 0x00 && funct3 == 0b110:
			base.Kind = KindOr
		case funct7 == 0x00 && funct3 == 0b111:
			base.Kind = KindAnd
		case funct7 == 0x01:
			kind, ok := decodeMExt(funct3)
			if !ok {
				return Instruction{}, ErrUnknownEncoding
			}
			base.Kind = kind
		default:
			return Instruction{}, ErrUnknownEncoding
		}
		return base, nil
	case opFence:
		return Instruction{Kind: KindFence}, nil
	case opSystem:
		if funct3 == 0 {
			switch word >> 20 {
			case 0x0:
				return Instruction{Kind: KindEcall}, nil
			case 0x1:
				return Instruction{Kind: KindEbreak}, nil
			default:
				return Instruction{}, ErrUnknownEncoding
			}
		}
		return decodeCSR(word, rd, rs1, funct3), nil
	case opAmo:
		return decodeAmo(word, rd, rs1, rs2, funct3, funct7)
	default:
		return Instruction{}, ErrUnknownEncoding
	}
}

func decodeMExt(funct3 uint32) (Kind, bool) {
	switch funct3 {
	case 0b000:
		return KindMul, true
	case 0b001:
		return KindMulh, true
	case 0b010:
		return KindMulhsu, true
	case 0b011:
		return KindMulhu, true
	case 0b100:
		return KindDiv, true
	case 0b101:
		return KindDivu, true
	case 0b110:
		return KindRem, true
	case 0b111:
		return KindRemu, true
	default:
		return KindInvalid, false
	}
}

func decodeAmo(word uint32, rd, rs1, rs2 int, funct3, funct7 uint32) (Instruction, error) {
	if funct3 != 0b010 {
		return Instruction{}, ErrUnknownEncoding
	}
	base := Instruction{Rd: rd, Rs1: rs1, Rs2: rs2}
	switch funct7 >> 2 {
	case 0b00010:
		base.Kind = KindLrW
	case 0b00011:
		base.Kind = KindScW
	case 0b00001:
		base.Kind = KindAmoswapW
	case 0b00000:
		base.Kind = KindAmoaddW
	case 0b01100:
		base.Kind = KindAmoandW
	case 0b01000:
		base.Kind = KindAmoorW
	case 0b00100:
		base.Kind = KindAmoxorW
	case 0b10100:
		base.Kind = KindAmomaxW
	case 0b10000:
		base.Kind = KindAmominW
	case 0b11100:
		base.Kind = KindAmomaxuW
	case 0b11000:
		base.Kind = KindAmominuW
	default:
		return Instruction{}, ErrUnknownEncoding
	}
	return base, nil
}

// decodeCSR decodes a SYSTEM instruction with a non-zero funct3 into the
// generic CSR form: {rd, rs1_or_uimm, csr, op, imm_flag} (spec.md §4.1).
// funct3 bit 2 selects the immediate (zimm-in-rs1-field) variants.
func decodeCSR(word uint32, rd, rs1 int, funct3 uint32) Instruction {
	csr := word >> 20
	immFlag := funct3&0x4 != 0
	instr := Instruction{
		Kind:    KindCSR,
		Rd:      rd,
		CSR:     csr,
		ImmFlag: immFlag,
	}
	if immFlag {
		instr.Rs1OrUimm = uint32(rs1)
	} else {
		instr.Rs1 = rs1
		instr.Rs1OrUimm = uint32(rs1)
	}
	switch funct3 & 0x3 {
	case 0b01:
		instr.CSROp = CSRRW
	case 0b10:
		instr.CSROp = CSRRS
	case 0b11:
		instr.CSROp = CSRRC
	}
	return instr
}

func decodeIImm(word uint32) int32 { return signExtend(word>>20, 12) }

func decodeSImm(word uint32) int32 {
	imm := ((word >> 7) & 0x1f) | (((word >> 25) & 0x7f) << 5)
	return signExtend(imm, 12)
}

func decodeBImm(word uint32) int32 {
	imm := (((word >> 8) & 0xf) << 1) |
		(((word >> 25) & 0x3f) << 5) |
		(((word >> 7) & 0x1) << 11) |
		(((word >> 31) & 0x1) << 12)
	return signExtend(imm, 13)
}

func decodeJImm(word uint32) int32 {
	imm := (((word >> 21) & 0x3ff) << 1) |
		(((word >> 20) & 0x1) << 11) |
		(((word >> 12) & 0xff) << 12) |
		(((word >> 31) & 0x1) << 20)
	return signExtend(imm, 21)
}
