package kernel

// AddressSpace names a task's page-table root and the VA window it owns,
// grounded on original_source/crates/kernel/src/task/task.rs's
// AddressSpace{root_ppn, asid, ...}. ASID is carried for bookkeeping only —
// this MMU has no TLB to tag, so nothing currently reads it back.
type AddressSpace struct {
	Root     int
	ASID     uint16
	Base     uint32
	WindowSz uint32
}

// TrapFrame is the register snapshot a task starts from (or, for the kernel
// task, is suspended at across a nested run). pc/sp plus the four argument
// registers cover everything prep_program_task initializes; the rest of the
// general registers start zeroed, matching a fresh RV32 hart reset.
type TrapFrame struct {
	PC   uint32
	Regs [32]uint32
}

// Task is one slot of the kernel's task table: an address space plus the
// trapframe it will resume from, and the task-private bump heap pointer
// prep_program_task seeds at HeapStartAddr (original_source's
// Task::new(address_space, heap_ptr)).
type Task struct {
	Space   AddressSpace
	TF      TrapFrame
	HeapPtr uint32
	Live    bool
}

func newTask(space AddressSpace, heapStart uint32) *Task {
	return &Task{Space: space, HeapPtr: heapStart, Live: true}
}
