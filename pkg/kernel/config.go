// Package kernel implements the task manager described in spec.md §4.6: a
// bounded task table, per-task address space setup, the satp-switch
// trampoline, and the symmetric entry/return path between the kernel task
// (slot 0) and a running program task.
//
// Grounded on original_source/crates/kernel/src/task/{mod.rs,prep.rs,run.rs}
// for layout constants, the trampoline machine code, and the prep/run
// sequencing; trap.rs's privilege-level trap vector (stvec/sscratch, SRET)
// has no analogue here since this CPU model carries no real S-mode CSRs —
// the symmetric return spec.md §9 anticipates is realized instead as a
// saved Go-level kernel frame the task runner restores once the task halts
// (see run.go).
package kernel

// PageSize mirrors mmu.PageSize; kept as an independent constant so this
// package's layout math reads the way the original's does, without an
// import cycle back through pkg/mmu for a single integer.
const PageSize = 4096

// Config holds the size limits prep_program_task enforces. The original
// Rust's Config crate (referenced as Config::CODE_SIZE_LIMIT etc. throughout
// original_source/crates/kernel/src/task/{mod.rs,prep.rs}) was not present
// in the retrieval pack, so these values are chosen to keep a program
// window comfortably page-aligned and are recorded here, not scattered
// across call sites, exactly as the original centralizes them in one type.
var DefaultConfig = Config{
	CodeSizeLimit:   64 * 1024,
	RODataSizeLimit: 16 * 1024,
	MaxInputLen:     4096,
	HeapStartOffset: 0, // relative to the task's heap base; see HeapStartAddr
}

type Config struct {
	CodeSizeLimit   int
	RODataSizeLimit int
	MaxInputLen     int
	HeapStartOffset uint32
}

const (
	StackBytes    = 0x4000 // 16 KiB user stack
	HeapBytes     = 0x8000 // 32 KiB user heap
	ProgramVABase = 0x0

	// TaskTableSize is the bounded task table: slot 0 is the kernel task,
	// slots 1..N hold program tasks (spec.md §4.6).
	TaskTableSize = 16
)

// ProgramWindowBytes returns the total VA window a program task maps: code
// + rodata + stack + heap, rounded up to a whole number of pages, per
// spec.md §4.6 step (2).
func (c Config) ProgramWindowBytes() int {
	raw := c.CodeSizeLimit + c.RODataSizeLimit + StackBytes + HeapBytes
	return alignUp(raw, PageSize)
}

// HeapStartAddr returns the VA of the first byte of a task's heap, i.e. the
// input buffer's base address (spec.md §4.6 step (3)).
func (c Config) HeapStartAddr() uint32 {
	return ProgramVABase + uint32(c.CodeSizeLimit+c.RODataSizeLimit+StackBytes)
}

// TrampolineVA returns the VA of the single page holding the two-instruction
// satp-switch trampoline, immediately above the program window (spec.md
// §4.6 step (4)).
func (c Config) TrampolineVA() uint32 {
	return ProgramVABase + uint32(c.ProgramWindowBytes())
}

func alignUp(val, align int) int {
	return (val + align - 1) &^ (align - 1)
}

// Fixed VAs for the call arguments copied into a task's window (spec.md
// §4.6 step (3)): the 20-byte `to` address, then the 20-byte `from` address
// immediately after it. Both lie inside the low range the code image is
// copied to at VA 0; PrepareProgramTask writes them after the code.
const (
	AddressLen = 20

	ToPtrAddr   = 0x120
	FromPtrAddr = ToPtrAddr + AddressLen

	// ResultPtrAddr is the fixed VA a program task's code is expected to
	// hold its 5-byte bundle.Result at before halting (EBREAK). The nested
	// call_program wiring in original_source lived in a host_interface.rs
	// file that was not present in the retrieval pack, so this fixed
	// address continues the ToPtrAddr/FromPtrAddr convention already
	// established by prep.rs rather than inventing an unrelated mechanism:
	// pkg/syscall's Executor reads exactly ResultSize bytes from here once
	// RunTask returns.
	ResultPtrAddr = FromPtrAddr + AddressLen
)

// Register indices used when building a trapframe, named the way
// original_source/crates/kernel/src/task/mod.rs names them (REG_SP etc.)
// rather than importing pkg/cpu's ABI names, since a trapframe is a plain
// data snapshot independent of any particular live CPU.
const (
	RegSP = 2
	RegRA = 1
	RegA0 = 10
	RegA1 = 11
	RegA2 = 12
	RegA3 = 13
)

// TrampolineCode is the shared satp-switch stub, written into both a task's
// user root and the kernel root at TrampolineVA (spec.md §4.6 step (4)):
//
//	csrw satp, t0   ; switch to the root named by t0
//	jr   t1         ; jump to the PC named by t1
//
// Both words were independently re-derived against pkg/decoder's encoding
// tables (CSRRW: funct3=0b001, opcode 0x73, csr=0x180<<20, rs1=t0(5)<<15,
// rd=x0; JALR: opcode 0x67, funct3=0, rd=x0, rs1=t1(6)<<15, imm=0) and match
// original_source/crates/kernel/src/task/mod.rs's TRAMPOLINE_CODE exactly.
var TrampolineCode = [2]uint32{
	0x18029073, // csrw satp, t0
	0x00030067, // jr t1
}
