package metrics

// Pre-defined metrics for the avm32core runtime. All metrics live in
// DefaultRegistry so they are globally accessible without passing a
// registry around.

var (
	// ---- Task manager metrics ----

	// TasksPrepared counts program-call tasks successfully prepared.
	TasksPrepared = DefaultRegistry.Counter("kernel.tasks_prepared")
	// TasksRun counts task entries (trampoline jumps into user mode).
	TasksRun = DefaultRegistry.Counter("kernel.tasks_run")
	// TaskPrepFailures counts rejected preparations (oversize input, OOM, bad entry).
	TaskPrepFailures = DefaultRegistry.Counter("kernel.task_prep_failures")

	// ---- CPU / gas metrics ----

	// InstructionsExecuted counts CPU Step calls that did not halt on decode.
	InstructionsExecuted = DefaultRegistry.Counter("cpu.instructions_executed")
	// GasConsumed tracks the per-instruction charge recorded by cpu.Step;
	// memory, syscall and allocation charges are not added to it.
	GasConsumed = DefaultRegistry.Counter("cpu.gas_consumed")
	// GasHalts counts steps and syscalls halted because the meter returned Halt.
	GasHalts = DefaultRegistry.Counter("cpu.gas_halts")
	// DecodeFaults counts instruction words that failed to decode.
	DecodeFaults = DefaultRegistry.Counter("cpu.decode_faults")
	// MemoryFaults counts translation failures on fetch, load or store.
	MemoryFaults = DefaultRegistry.Counter("cpu.memory_faults")

	// ---- Syscall metrics ----

	// SyscallsHandled counts dispatched ECALLs, by total across all IDs.
	SyscallsHandled = DefaultRegistry.Counter("syscall.handled")
	// StorageGets / StorageSets count host storage round-trips.
	StorageGets = DefaultRegistry.Counter("syscall.storage_gets")
	StorageSets = DefaultRegistry.Counter("syscall.storage_sets")
	// ProgramCalls counts nested call-program syscalls.
	ProgramCalls = DefaultRegistry.Counter("syscall.program_calls")
	// EventsFired counts fire-event syscalls.
	EventsFired = DefaultRegistry.Counter("syscall.events_fired")
	// GuestPanics counts panic syscalls that halted a task.
	GuestPanics = DefaultRegistry.Counter("syscall.guest_panics")

	// ---- Bundle / receipt metrics ----

	// BundlesExecuted counts transaction bundles the bootloader has run.
	BundlesExecuted = DefaultRegistry.Counter("bundle.executed")
	// BundleExecutionTime records end-to-end bundle execution duration in milliseconds.
	BundleExecutionTime = DefaultRegistry.Histogram("bundle.execution_ms")
	// ReceiptsEmitted counts receipts written after a bundle run.
	ReceiptsEmitted = DefaultRegistry.Counter("receipt.emitted")
)
