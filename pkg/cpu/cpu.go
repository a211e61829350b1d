// Package cpu implements the gas-metered RV32IMAC execution engine
// described in spec.md §4.2: the fetch/decode/charge/execute/advance step
// cycle, register and CSR discipline, and the syscall entry point.
//
// Grounded on original_source/crates/vm/src/{cpu.rs,exe.rs} for the step
// loop shape and per-instruction semantics (wrapping arithmetic, divide-by-
// zero and INT_MIN/-1 special cases, x0 discipline, LR/SC reservation),
// adapted from return-bool-to-continue to an explicit (continue bool, err
// error) pair so decode/translation faults are distinguishable from a
// deliberate halt (spec.md's "failure modes" paragraph).
package cpu

import (
	"errors"
	"fmt"

	"github.com/avm-core/avm32/pkg/decoder"
	"github.com/avm-core/avm32/pkg/gas"
	"github.com/avm-core/avm32/pkg/metrics"
	"github.com/avm-core/avm32/pkg/mmu"
)

// CSRSatp is the only CSR this core gives architectural meaning to: writing
// it switches the MMU's active root (spec.md §4.2).
const CSRSatp = 0x180

// SyscallHandler dispatches a decoded ECALL. It returns the value to write
// to a0 and whether the CPU should continue stepping.
type SyscallHandler interface {
	Handle(c *CPU, callID uint32, args [6]uint32) (result uint32, cont bool)
}

// CPU is the per-task execution engine: program counter, general registers,
// a sparse CSR file, an optional LR/SC reservation, and the MMU/meter/
// syscall handler it drives every step (spec.md §4.2's "State" list).
type CPU struct {
	PC   uint32
	Regs [32]uint32
	CSRs map[uint32]uint32

	// Reservation holds the physical offset set by the last LR.W, or -1 if
	// none is outstanding.
	Reservation int

	MMU      *mmu.Memory
	Meter    *gas.Meter
	Syscalls SyscallHandler
}

// New returns a CPU with PC 0, zeroed registers and no outstanding
// reservation.
func New(m *mmu.Memory, meter *gas.Meter, handler SyscallHandler) *CPU {
	return &CPU{
		CSRs:        make(map[uint32]uint32),
		Reservation: -1,
		MMU:         m,
		Meter:       meter,
		Syscalls:    handler,
	}
}

// ErrDecode wraps a decode failure encountered during Step.
var ErrDecode = errors.New("cpu: decode failure")

// ErrFault wraps a translation failure on fetch, load or store.
var ErrFault = errors.New("cpu: memory access fault")

func (c *CPU) readReg(r int) uint32 {
	c.Meter.OnRegisterRead()
	if r == Zero {
		return 0
	}
	return c.Regs[r]
}

func (c *CPU) writeReg(r int, v uint32) {
	c.Meter.OnRegisterWrite()
	if r == Zero {
		return
	}
	c.Regs[r] = v
}

// Step runs exactly one fetch/decode/charge/execute/advance cycle. It
// returns cont=false when the step itself is a deliberate halt (EBREAK,
// ECALL with cont=false, meter Halt); err is non-nil only for decode or
// translation failures, which also halt the step loop per spec.md §4.2's
// failure-modes paragraph.
func (c *CPU) Step() (cont bool, err error) {
	head, err := c.MMU.FetchBytes(mmu.VirtualAddress(c.PC), 2)
	if err != nil {
		metrics.MemoryFaults.Inc()
		return false, fmt.Errorf("%w: fetch at pc=%#x: %s", ErrFault, c.PC, err)
	}
	var raw []byte
	var size int
	low := uint16(head[0]) | uint16(head[1])<<8
	if low&0x3 == 0x3 || low == 0 {
		full, ferr := c.MMU.FetchBytes(mmu.VirtualAddress(c.PC), 4)
		if ferr != nil {
			metrics.MemoryFaults.Inc()
			return false, fmt.Errorf("%w: fetch at pc=%#x: %s", ErrFault, c.PC, ferr)
		}
		raw = full
		size = 4
	} else {
		raw = head
		size = 2
	}

	instr, _, derr := decoder.Decode(raw)
	if derr != nil {
		metrics.DecodeFaults.Inc()
		return false, fmt.Errorf("%w: pc=%#x: %s", ErrDecode, c.PC, derr)
	}

	before := c.Meter.Used()
	if c.Meter.OnInstruction() == gas.Halt {
		metrics.GasHalts.Inc()
		return false, nil
	}
	metrics.GasConsumed.Add(int64(c.Meter.Used() - before))
	metrics.InstructionsExecuted.Inc()

	wrotePC, cont, err := c.execute(instr)
	if err != nil {
		return false, err
	}
	if !wrotePC {
		c.PC = c.PC + uint32(size)
	}
	return cont, nil
}

func signed(v uint32) int32 { return int32(v) }
