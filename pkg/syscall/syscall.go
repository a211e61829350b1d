// Package syscall implements the fixed ECALL ABI described in spec.md §4.5:
// storage get/set, guest panic, formatted logging, nested program calls,
// event firing, a bump heap allocator, value transfer, balance lookup and a
// forward-only brk.
//
// Grounded on original_source/crates/bootloader/src/syscalls.rs's
// DefaultSyscallHandler, adapted from its Rc<RefCell<State>>/verbose_writer
// shape to a plain struct holding direct references, since this Go core has
// no interior-mutability discipline to route around — the CPU already owns
// the only mutable path into the MMU and meter.
package syscall

import (
	"github.com/avm-core/avm32/pkg/cpu"
	"github.com/avm-core/avm32/pkg/gas"
	"github.com/avm-core/avm32/pkg/host"
	"github.com/avm-core/avm32/pkg/kernel"
	"github.com/avm-core/avm32/pkg/log"
	"github.com/avm-core/avm32/pkg/metrics"
	"github.com/avm-core/avm32/pkg/mmu"
)

// Executor dispatches ECALLs against a host.State and can additionally run
// nested program calls, for which it needs the kernel task manager, the MMU
// and the CPU those tasks run on. It embeds *host.State so it inherits
// StorageGet/StorageSet/Transfer/Balance/FireEvent/Log directly, adding only
// the two methods State itself cannot provide (see pkg/host's doc comment
// on State) to fully satisfy host.Host.
type Executor struct {
	*host.State

	Kernel *kernel.Manager
	MMU    *mmu.Memory
	CPU    *cpu.CPU

	log *log.Logger
}

// NewExecutor returns an Executor wired to run program calls on cpu, using
// kernelMgr's task table and mem's address spaces.
func NewExecutor(state *host.State, kernelMgr *kernel.Manager, mem *mmu.Memory, c *cpu.CPU) *Executor {
	return &Executor{
		State:  state,
		Kernel: kernelMgr,
		MMU:    mem,
		CPU:    c,
		log:    log.Default().Module("syscall"),
	}
}

var _ cpu.SyscallHandler = (*Executor)(nil)
var _ host.Host = (*Executor)(nil)

// Handle implements cpu.SyscallHandler. args holds registers a1..a6 in
// order (a7 carries callID, matching original_source/crates/vm/src/exe.rs's
// read_reg sequence exactly); the result is written to a0 by the caller.
func (e *Executor) Handle(c *cpu.CPU, callID uint32, args [6]uint32) (uint32, bool) {
	metrics.SyscallsHandled.Inc()
	if c.Meter.OnSyscallEntry(callID) == gas.Halt {
		metrics.GasHalts.Inc()
		return 0, false
	}

	switch callID {
	case gas.SyscallStorageGet:
		return e.sysStorageGet(c, args), true
	case gas.SyscallStorageSet:
		return e.sysStorageSet(c, args), true
	case gas.SyscallPanic:
		return e.sysPanic(c, args)
	case gas.SyscallLog:
		return e.sysLog(c, args), true
	case gas.SyscallCallProgram:
		return e.sysCallProgram(c, args), true
	case gas.SyscallFireEvent:
		return e.sysFireEvent(c, args), true
	case gas.SyscallAlloc:
		return e.sysAlloc(c, args), true
	case gas.SyscallDealloc:
		return e.sysDealloc(c, args), true
	case gas.SyscallTransfer:
		return e.sysTransfer(c, args), true
	case gas.SyscallBalance:
		return e.sysBalance(c, args), true
	case gas.SyscallBrk:
		return e.sysBrk(c, args), true
	default:
		// original_source panics on an unknown call_id; this core has no
		// unwind boundary around a single ECALL, so it halts the task
		// instead of bringing down the whole process (spec.md's "failure
		// modes": an unrecoverable guest fault ends that task, not the host).
		e.log.Error("unknown syscall", "call_id", callID)
		return 0, false
	}
}

func addressOf(mem *mmu.Memory, ptr uint32) (host.Address, bool) {
	data, err := mem.MemSlice(mmu.VirtualAddress(ptr), mmu.VirtualAddress(ptr)+mmu.VirtualAddress(kernel.AddressLen))
	if err != nil {
		return host.Address{}, false
	}
	var a host.Address
	copy(a[:], data)
	return a, true
}

func bytesAt(mem *mmu.Memory, ptr, length uint32) ([]byte, bool) {
	data, err := mem.MemSlice(mmu.VirtualAddress(ptr), mmu.VirtualAddress(ptr)+mmu.VirtualAddress(length))
	if err != nil {
		return nil, false
	}
	return data, true
}
