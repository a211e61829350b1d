package syscall

import (
	"github.com/avm-core/avm32/pkg/cpu"
	"github.com/avm-core/avm32/pkg/gas"
	"github.com/avm-core/avm32/pkg/kernel"
	"github.com/avm-core/avm32/pkg/metrics"
	"github.com/avm-core/avm32/pkg/mmu"
)

// sysPanic reads a UTF-8 message out of guest memory and halts the task.
// Grounded on sys_panic_with_message, which reads the message pointer/length
// straight out of a0/a1 rather than the args array other syscalls use; this
// port reads the same two registers (c.Regs[A0], c.Regs[A1]) directly.
func (e *Executor) sysPanic(c *cpu.CPU, args [6]uint32) (uint32, bool) {
	msg, ok := bytesAt(c.MMU, c.Regs[cpu.A0], c.Regs[cpu.A1])
	text := "<invalid memory access>"
	if ok {
		text = string(msg)
	}
	metrics.GuestPanics.Inc()
	e.log.Error("guest panic", "message", text)
	return 0, false
}

// sysFireEvent reads (ptr, len) and forwards the bytes to the host event sink.
func (e *Executor) sysFireEvent(c *cpu.CPU, args [6]uint32) uint32 {
	ptr, length := args[0], args[1]
	if c.Meter.OnSyscallData(gas.SyscallFireEvent, int(length)) == gas.Halt {
		return 0
	}
	data, ok := bytesAt(c.MMU, ptr, length)
	if !ok {
		e.log.Error("fire_event: invalid memory access", "ptr", ptr, "len", length)
		return 0
	}
	// original_source's host.fire_event(bytes) carries no address at all;
	// this port's Host.FireEvent adds one so events stay attributable to a
	// contract, sourced from the `to` address prep.go copies into every
	// task's window at kernel.ToPtrAddr rather than threading a new
	// "current executing address" concept through the trapframe.
	addr, ok := addressOf(c.MMU, kernel.ToPtrAddr)
	if !ok {
		return 0
	}
	e.FireEvent(addr, data)
	return 0
}

// sysAlloc bump-allocates size bytes aligned to align (must be a power of
// two) on the task's heap, returning 0 on any invalid input or exhaustion.
// Grounded on sys_alloc; align is honoured by mmu.Memory.AllocOnHeap's own
// fixed 8-byte alignment only when align <= 8 — wider alignments than the
// allocator natively supports are rejected rather than silently narrowed.
func (e *Executor) sysAlloc(c *cpu.CPU, args [6]uint32) uint32 {
	size, align := args[0], args[1]
	if c.Meter.OnAlloc(int(size)) == gas.Halt {
		return 0
	}
	if size == 0 || align == 0 || align&(align-1) != 0 || align > 8 {
		e.log.Error("alloc: invalid size/alignment", "size", size, "align", align)
		return 0
	}
	va, err := c.MMU.AllocOnHeap(make([]byte, size))
	if err != nil {
		e.log.Error("alloc: out of memory", "size", size)
		return 0
	}
	return va.Uint32()
}

// sysDealloc is a no-op: this core uses a bump allocator with no free list,
// matching sys_dealloc's own comment that memory is reclaimed only when the
// task exits.
func (e *Executor) sysDealloc(c *cpu.CPU, args [6]uint32) uint32 {
	size := args[1]
	c.Meter.OnAlloc(int(size))
	return 0
}

// sysBrk implements a forward-only brk(2) on args[0] (a1): 0 returns the
// current break, a value >= current moves it forward, a value < current is
// ignored and the old break returned. Grounded on sys_brk verbatim.
func (e *Executor) sysBrk(c *cpu.CPU, args [6]uint32) uint32 {
	newBrk := args[0]
	current := c.MMU.NextHeap().Uint32()
	if newBrk == 0 {
		return current
	}
	if newBrk >= current {
		c.MMU.SetNextHeap(mmu.VirtualAddress(newBrk))
		return newBrk
	}
	return current
}
