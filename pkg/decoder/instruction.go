// Package decoder turns raw RV32IMAC instruction words into a typed
// Instruction value the CPU can execute without re-parsing bits.
//
// Grounded on bassosimone-risc32/pkg/asm/instruction.go for the field-layout
// idiom (a single flat struct carrying every operand, tagged by a Kind) and
// on original_source/crates/vm/src/{isa.rs,isa_compressed.rs,decoder.rs} for
// exact opcode values, compressed-form tables and immediate reconstruction.
package decoder

import "errors"

// Kind identifies the decoded instruction's operation. Compressed forms
// decode to the same Kind as their expanded equivalent; Instruction.Compressed
// records whether the 16-bit or 32-bit encoding was used.
type Kind int

const (
	KindInvalid Kind = iota
	KindUnimp        // word 0x00000000, tolerated as padding no-op

	KindLui
	KindAuipc

	KindJal
	KindJalr

	KindBeq
	KindBne
	KindBlt
	KindBge
	KindBltu
	KindBgeu

	KindLb
	KindLh
	KindLw
	KindLbu
	KindLhu
	KindSb
	KindSh
	KindSw

	KindAddi
	KindSlti
	KindSltiu
	KindXori
	KindOri
	KindAndi
	KindSlli
	KindSrli
	KindSrai

	KindAdd
	KindSub
	KindSll
	KindSlt
	KindSltu
	KindXor
	KindSrl
	KindSra
	KindOr
	KindAnd

	KindFence
	KindEcall
	KindEbreak

	KindMul
	KindMulh
	KindMulhsu
	KindMulhu
	KindDiv
	KindDivu
	KindRem
	KindRemu

	KindLrW
	KindScW
	KindAmoswapW
	KindAmoaddW
	KindAmoandW
	KindAmoorW
	KindAmoxorW
	KindAmomaxW
	KindAmominW
	KindAmomaxuW
	KindAmominuW

	KindCSR
)

// CSROp identifies which of the three CSR read-modify-write operations a
// decoded CSR instruction performs.
type CSROp int

const (
	CSRRW CSROp = iota
	CSRRS
	CSRRC
)

// Instruction is the decoder's output: a flat struct carrying whichever
// operand fields are meaningful for Kind. Unused fields are zero.
type Instruction struct {
	Kind Kind

	// Compressed is true when the source encoding was a 16-bit C-extension
	// form; the CPU uses it to decide whether JAL/JALR link PC+2 or PC+4.
	Compressed bool

	Rd  int
	Rs1 int
	Rs2 int

	// Imm holds the sign-extended immediate for every format that carries
	// one (I/S/B/U/J and their compressed counterparts).
	Imm int32

	// CSR-form-only fields.
	CSROp     CSROp
	CSR       uint32
	Rs1OrUimm uint32
	ImmFlag   bool // true when the CSRRxI variant supplied a 5-bit uimm rather than rs1
}

// ErrShortRead is returned when fewer bytes than the encoding requires are
// available at the fetch address.
var ErrShortRead = errors.New("decoder: insufficient bytes at fetch address")

// ErrUnknownEncoding is returned for a recognised-opcode-but-unrecognised
// funct3/funct7 combination, or an opcode outside RV32IMAC.
var ErrUnknownEncoding = errors.New("decoder: unknown instruction encoding")

func signExtend(value uint32, bits uint) int32 {
	shift := 32 - bits
	return int32(value<<shift) >> shift
}
