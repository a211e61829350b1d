package kernel

import (
	"errors"

	"github.com/avm-core/avm32/pkg/log"
	"github.com/avm-core/avm32/pkg/mmu"
)

// ErrNoFreeSlot is returned when every program-task slot is occupied.
var ErrNoFreeSlot = errors.New("kernel: task table exhausted")

// ErrInvalidSlot is returned when a task slot index names no live task.
var ErrInvalidSlot = errors.New("kernel: invalid or unused task slot")

// Manager owns the bounded task table (spec.md §4.6): slot 0 is the kernel
// task, slots 1..N-1 hold program-call tasks. It shares the single
// mmu.Memory the CPU executes against. A task's root becomes active through
// the satp write in the trampoline it installs for each task; the manager
// itself switches roots directly with SetRoot during prep and SetSatp on
// restore.
type Manager struct {
	mem *mmu.Memory
	cfg Config
	log *log.Logger

	kernelRoot int
	nextASID   uint16
	current    int
	tasks      [TaskTableSize]*Task
}

// New returns a Manager bound to mem's currently-active root as the kernel
// root, using cfg for program window sizing.
func New(mem *mmu.Memory, cfg Config) *Manager {
	k := &Manager{
		mem:        mem,
		cfg:        cfg,
		log:        log.Default().Module("kernel"),
		kernelRoot: mem.CurrentRoot(),
	}
	k.tasks[0] = newTask(AddressSpace{Root: k.kernelRoot}, 0)
	return k
}

// Current returns the slot index of the task presently running (0 while no
// program task is active).
func (k *Manager) Current() int { return k.current }

// Task returns the task occupying slot, or nil if the slot is unused.
func (k *Manager) Task(slot int) *Task {
	if slot < 0 || slot >= TaskTableSize {
		return nil
	}
	return k.tasks[slot]
}

func (k *Manager) allocASID() uint16 {
	counter := k.nextASID
	asid := counter
	if asid == 0 {
		asid = 1
	}
	k.nextASID = asid + 1
	return asid
}

func (k *Manager) allocSlot() (int, error) {
	for i := 1; i < TaskTableSize; i++ {
		if k.tasks[i] == nil || !k.tasks[i].Live {
			return i, nil
		}
	}
	return 0, ErrNoFreeSlot
}

// ReleaseSlot marks a finished task's slot free for reuse. The task table
// never reclaims its address-space root (the bump frame allocator has no
// free list, matching spec.md's Non-goal "dynamic frame reclamation") —
// only the slot itself is recycled.
func (k *Manager) ReleaseSlot(slot int) {
	if slot <= 0 || slot >= TaskTableSize {
		return
	}
	if k.tasks[slot] != nil {
		k.tasks[slot].Live = false
	}
}
