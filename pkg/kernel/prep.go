package kernel

import (
	"errors"
	"fmt"

	"github.com/avm-core/avm32/pkg/metrics"
	"github.com/avm-core/avm32/pkg/mmu"
)

// ErrInputTooLarge is returned when the supplied input buffer exceeds the
// configured maximum (spec.md §4.6 "Failure modes").
var ErrInputTooLarge = errors.New("kernel: input exceeds configured maximum")

// ErrEntryOutOfRange is returned when entryOff does not land inside code.
var ErrEntryOutOfRange = errors.New("kernel: entry offset outside code image")

// PrepareProgramTask implements spec.md §4.6's preparation sequence: a fresh
// address space is allocated, the program window is mapped and populated,
// the shared trampoline page is installed into both roots, and a trapframe
// is built ready for RunTask. It returns the allocated task-table slot.
//
// Grounded on original_source/crates/kernel/src/task/prep.rs's
// prep_program_task, adapted from the original's syscall-mediated mapping
// (every map/copy went through a guest-facing mmu:: helper because the
// original kernel runs as guest code itself) to direct calls against
// mmu.Memory, since this Go kernel drives the MMU from the host side.
func (k *Manager) PrepareProgramTask(to, from [AddressLen]byte, code, input []byte, entryOff uint32) (int, error) {
	if len(input) > k.cfg.MaxInputLen {
		metrics.TaskPrepFailures.Inc()
		return 0, fmt.Errorf("%w: len=%d max=%d", ErrInputTooLarge, len(input), k.cfg.MaxInputLen)
	}
	if entryOff >= uint32(len(code)) {
		metrics.TaskPrepFailures.Inc()
		return 0, fmt.Errorf("%w: entry_off=%#x code_len=%d", ErrEntryOutOfRange, entryOff, len(code))
	}

	slot, err := k.allocSlot()
	if err != nil {
		metrics.TaskPrepFailures.Inc()
		return 0, err
	}

	asid := k.allocASID()
	root := k.mem.AllocateRoot()
	window := k.cfg.ProgramWindowBytes()
	if err := k.mem.MapRange(root, mmu.VirtualAddress(ProgramVABase), window, mmu.UserRWX()); err != nil {
		metrics.TaskPrepFailures.Inc()
		return 0, fmt.Errorf("map program window root=%d: %w", root, err)
	}

	prevRoot := k.mem.CurrentRoot()
	if err := k.mem.SetRoot(root); err != nil {
		metrics.TaskPrepFailures.Inc()
		return 0, err
	}
	defer func() { _ = k.mem.SetRoot(prevRoot) }()

	if err := k.mem.WriteBytes(mmu.VirtualAddress(ProgramVABase), code); err != nil {
		metrics.TaskPrepFailures.Inc()
		return 0, fmt.Errorf("copy code image: %w", err)
	}
	if err := k.mem.WriteBytes(mmu.VirtualAddress(ToPtrAddr), to[:]); err != nil {
		metrics.TaskPrepFailures.Inc()
		return 0, fmt.Errorf("copy to address: %w", err)
	}
	if err := k.mem.WriteBytes(mmu.VirtualAddress(FromPtrAddr), from[:]); err != nil {
		metrics.TaskPrepFailures.Inc()
		return 0, fmt.Errorf("copy from address: %w", err)
	}
	heapStart := k.cfg.HeapStartAddr()
	if len(input) > 0 {
		if err := k.mem.WriteBytes(mmu.VirtualAddress(heapStart), input); err != nil {
			metrics.TaskPrepFailures.Inc()
			return 0, fmt.Errorf("copy input buffer: %w", err)
		}
	}

	trampolineVA := mmu.VirtualAddress(k.cfg.TrampolineVA())
	if err := k.mem.MapRange(root, trampolineVA, PageSize, mmu.UserRWX()); err != nil {
		metrics.TaskPrepFailures.Inc()
		return 0, fmt.Errorf("map trampoline page: %w", err)
	}
	trampPhys, err := k.mem.Translate(trampolineVA, mmu.AccessLoad)
	if err != nil {
		metrics.TaskPrepFailures.Inc()
		return 0, fmt.Errorf("translate trampoline page: %w", err)
	}
	trampPPN := trampPhys / PageSize
	if err := k.mem.MapPhysicalRange(k.kernelRoot, trampolineVA, trampPPN*PageSize, PageSize, mmu.UserRWX()); err != nil {
		metrics.TaskPrepFailures.Inc()
		return 0, fmt.Errorf("mirror trampoline into kernel root: %w", err)
	}

	var trampBytes [len(TrampolineCode) * 4]byte
	for i, word := range TrampolineCode {
		trampBytes[i*4] = byte(word)
		trampBytes[i*4+1] = byte(word >> 8)
		trampBytes[i*4+2] = byte(word >> 16)
		trampBytes[i*4+3] = byte(word >> 24)
	}
	if err := k.mem.WriteBytes(trampolineVA, trampBytes[:]); err != nil {
		metrics.TaskPrepFailures.Inc()
		return 0, fmt.Errorf("write trampoline code: %w", err)
	}

	space := AddressSpace{Root: root, ASID: asid, Base: ProgramVABase, WindowSz: uint32(window)}
	// heapStart is also the input buffer's base: the bump heap pointer
	// starts exactly there, matching original_source's Task::new(..,
	// Config::HEAP_START_ADDR) literally rather than skipping past the
	// copied input — a guest that allocates before reading its own input
	// would overwrite it, which the original never guards against either.
	task := newTask(space, heapStart)
	entryVA := uint32(ProgramVABase) + entryOff
	stackTop := uint32(ProgramVABase) + uint32(k.cfg.CodeSizeLimit+k.cfg.RODataSizeLimit+StackBytes)
	task.TF.PC = entryVA
	task.TF.Regs[RegSP] = stackTop
	task.TF.Regs[RegA0] = ToPtrAddr
	task.TF.Regs[RegA1] = FromPtrAddr
	task.TF.Regs[RegA2] = heapStart
	task.TF.Regs[RegA3] = uint32(len(input))

	k.tasks[slot] = task
	k.log.Info("prep_program_task",
		"slot", slot, "root", root, "asid", asid,
		"entry", entryVA, "input_len", len(input))
	metrics.TasksPrepared.Inc()
	return slot, nil
}
