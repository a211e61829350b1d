package syscall

import (
	"github.com/avm-core/avm32/pkg/bundle"
	"github.com/avm-core/avm32/pkg/cpu"
	"github.com/avm-core/avm32/pkg/gas"
	"github.com/avm-core/avm32/pkg/host"
	"github.com/avm-core/avm32/pkg/kernel"
	"github.com/avm-core/avm32/pkg/metrics"
	"github.com/avm-core/avm32/pkg/mmu"
)

// sysCallProgram reads (to, from, input_ptr, input_len), invokes the host's
// nested call_program and, if it produced a result, copies it onto the
// calling task's own heap. Grounded on sys_call_program.
func (e *Executor) sysCallProgram(c *cpu.CPU, args [6]uint32) uint32 {
	toPtr, fromPtr, inputPtr, inputLen := args[0], args[1], args[2], args[3]
	if c.Meter.OnCall(int(inputLen)) == gas.Halt {
		return 0
	}

	to, ok := addressOf(c.MMU, toPtr)
	if !ok {
		return 0
	}
	from, ok := addressOf(c.MMU, fromPtr)
	if !ok {
		return 0
	}
	input, ok := bytesAt(c.MMU, inputPtr, inputLen)
	if !ok {
		return 0
	}
	// bytesAt returns a slice aliasing the caller's own memory; copy it out
	// before PrepareProgramTask switches roots underneath it.
	inputCopy := append([]byte(nil), input...)

	resultVA, pageIndex, ok := e.CallProgram(from, to, inputCopy)
	if !ok {
		return 0
	}
	resultBytes, ok := e.ReadPage(pageIndex, resultVA, bundle.ResultSize)
	if !ok {
		return 0
	}
	if c.Meter.OnAlloc(len(resultBytes)) == gas.Halt {
		return 0
	}
	va, err := c.MMU.AllocOnHeap(resultBytes)
	if err != nil {
		return 0
	}
	return va.Uint32()
}

// CallProgram prepares and runs a nested program task for (from, to, input)
// on the shared CPU, returning the fixed VA its result lands at and the
// task's own address-space root as the "page" the caller must read that VA
// back through (host.Host's CallProgram/ReadPage pair, spec.md §9).
//
// Grounded on original_source's host.call_program shape
// (crates/bootloader/src/syscalls.rs's sys_call_program); the
// host_interface.rs implementation that shape was called through was not
// present in the retrieval pack, so the convention that a called program
// leaves its bundle.Result at kernel.ResultPtrAddr before halting is this
// port's own, documented at that constant's definition.
func (e *Executor) CallProgram(from, to host.Address, input []byte) (uint32, int, bool) {
	code, ok := e.CodeOf(to)
	if !ok {
		e.log.Error("call_program: destination is not a contract", "to", to)
		return 0, 0, false
	}

	var toArr, fromArr [kernel.AddressLen]byte
	copy(toArr[:], to[:])
	copy(fromArr[:], from[:])

	slot, err := e.Kernel.PrepareProgramTask(toArr, fromArr, code, input, 0)
	if err != nil {
		e.log.Error("call_program: prepare failed", "err", err)
		return 0, 0, false
	}
	root := e.Kernel.Task(slot).Space.Root

	if err := e.Kernel.RunTask(e.CPU, slot); err != nil {
		e.log.Error("call_program: task trapped", "err", err)
		return 0, 0, false
	}
	metrics.ProgramCalls.Inc()
	return kernel.ResultPtrAddr, root, true
}

// ReadPage reads length bytes at va out of the address space named by
// pageIndex (a task's mmu root index in this port, standing in for the
// original's memory-page handle), temporarily switching the shared MMU's
// active root and restoring it afterwards.
func (e *Executor) ReadPage(pageIndex int, va uint32, length int) ([]byte, bool) {
	prev := e.MMU.CurrentRoot()
	if err := e.MMU.SetRoot(pageIndex); err != nil {
		return nil, false
	}
	defer func() { _ = e.MMU.SetRoot(prev) }()

	data, err := e.MMU.MemSlice(mmu.VirtualAddress(va), mmu.VirtualAddress(va)+mmu.VirtualAddress(length))
	if err != nil {
		return nil, false
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, true
}

// sysTransfer reads (to, value_lo, value_hi) from args[1..3] (a2/a3/a4),
// matching sys_transfer's own register layout exactly (args[0]/a1 is
// unused there too). The transfer's source account is read from
// kernel.ToPtrAddr, the same "current contract identity" convention
// sysFireEvent uses, since host.Transfer needs an explicit from that the
// original's implicit single-VM host.transfer(to, value) never had to name.
// Returns 0 on success, 1 on insufficient balance.
func (e *Executor) sysTransfer(c *cpu.CPU, args [6]uint32) uint32 {
	toPtr, valueLo, valueHi := args[1], uint64(args[2]), uint64(args[3])
	value := valueLo | (valueHi << 32)
	if c.Meter.OnSyscallData(gas.SyscallTransfer, kernel.AddressLen) == gas.Halt {
		return 0
	}
	to, ok := addressOf(c.MMU, toPtr)
	if !ok {
		return 1
	}
	from, ok := addressOf(c.MMU, kernel.ToPtrAddr)
	if !ok {
		return 1
	}
	if e.Transfer(from, to, value) {
		return 0
	}
	return 1
}

// sysBalance reads an address pointer from args[0] (a1) and returns a VA
// holding its little-endian u64 balance.
func (e *Executor) sysBalance(c *cpu.CPU, args [6]uint32) uint32 {
	addrPtr := args[0]
	if c.Meter.OnSyscallData(gas.SyscallBalance, kernel.AddressLen) == gas.Halt {
		return 0
	}
	addr, ok := addressOf(c.MMU, addrPtr)
	if !ok {
		return 0
	}
	bal := e.Balance(addr)
	buf := make([]byte, 8)
	for i := 0; i < 8; i++ {
		buf[i] = byte(bal >> (8 * i))
	}
	if c.Meter.OnAlloc(len(buf)) == gas.Halt {
		return 0
	}
	va, err := c.MMU.AllocOnHeap(buf)
	if err != nil {
		return 0
	}
	return va.Uint32()
}
