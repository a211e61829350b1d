// Package gas implements the saturating, event-priced gas meter that every
// fetch, memory access, syscall and allocation in the core is charged
// against (spec.md §4.4).
//
// Grounded on original_source/crates/avm/src/metering.rs for the pricing
// schedule and event taxonomy, adapted from Rc<RefCell<GasMeter>> sharing
// to a plain struct since the core is single-threaded and cooperative
// (spec.md §5) — no interior mutability wrapper is needed. The Counter
// pattern (name + accumulating value, read via a Value()-style accessor)
// follows pkg/metrics/metrics.go's Counter.
package gas

// Syscall IDs, fixed per spec.md §4.5. Defined here (rather than in
// pkg/syscall) because the gas schedule prices by ID and pkg/syscall
// depends on pkg/gas for metering, not the reverse.
const (
	SyscallStorageGet  = 1
	SyscallStorageSet  = 2
	SyscallPanic       = 3
	SyscallLog         = 4
	SyscallCallProgram = 5
	SyscallFireEvent   = 6
	SyscallAlloc       = 7
	SyscallDealloc     = 8
	SyscallTransfer    = 9
	SyscallBalance     = 10
	SyscallBrk         = 214
)

// MemoryKind distinguishes the memory access forms the meter prices
// separately.
type MemoryKind int

const (
	MemoryLoad MemoryKind = iota
	MemoryStore
	MemoryAtomic
	MemoryReservationLoad
	MemoryReservationStore
)

// Result is returned by every charge on the meter. A Halt result tells the
// CPU to terminate the current step (spec.md §4.4). Meter in this package
// never returns Halt (consume always returns Continue); the core enforces
// no gas ceiling.
type Result int

const (
	Continue Result = iota
	Halt
)

// Schedule holds the per-event prices. Values are additive and may be
// zero; DefaultSchedule reproduces the EVM-inspired defaults from
// original_source/crates/avm/src/metering.rs.
type Schedule struct {
	Instruction uint64

	MemoryLoadBase            uint64
	MemoryStoreBase           uint64
	MemoryAtomicBase          uint64
	MemoryReservationLoadBase uint64
	MemoryReservationStoreBase uint64
	MemoryByteCost            uint64

	RegisterRead  uint64
	RegisterWrite uint64
	PCUpdate      uint64

	SyscallBase        uint64
	SyscallStorageGet  uint64
	SyscallStorageSet  uint64
	SyscallLog         uint64
	SyscallCallProgram uint64
	SyscallFireEvent   uint64
	SyscallAlloc       uint64
	SyscallDealloc     uint64
	SyscallTransfer    uint64
	SyscallBalance     uint64

	CallBase     uint64
	CallDataByte uint64
	LogDataByte  uint64

	StorageKeyByte   uint64
	StorageValueByte uint64

	AllocWord uint64
	AllocBase uint64
}

// DefaultSchedule returns the default pricing table from spec.md §4.4.
func DefaultSchedule() Schedule {
	return Schedule{
		Instruction: 1,

		MemoryLoadBase:             3,
		MemoryStoreBase:            5,
		MemoryAtomicBase:           25,
		MemoryReservationLoadBase:  12,
		MemoryReservationStoreBase: 18,
		MemoryByteCost:             1,

		RegisterRead:  0,
		RegisterWrite: 0,
		PCUpdate:      0,

		SyscallBase:        30,
		SyscallStorageGet:  2100,
		SyscallStorageSet:  20_000,
		SyscallLog:         375,
		SyscallCallProgram: 40,
		SyscallFireEvent:   375,
		SyscallAlloc:       15,
		SyscallDealloc:     4,
		SyscallTransfer:    9000,
		SyscallBalance:     2600,

		CallBase:     700,
		CallDataByte: 4,
		LogDataByte:  8,

		StorageKeyByte:   4,
		StorageValueByte: 16,

		AllocWord: 3,
		AllocBase: 15,
	}
}

func (s Schedule) memoryCost(kind MemoryKind, n int) uint64 {
	var base uint64
	switch kind {
	case MemoryLoad:
		base = s.MemoryLoadBase
	case MemoryStore:
		base = s.MemoryStoreBase
	case MemoryAtomic:
		base = s.MemoryAtomicBase
	case MemoryReservationLoad:
		base = s.MemoryReservationLoadBase
	case MemoryReservationStore:
		base = s.MemoryReservationStoreBase
	}
	return satAdd(base, satMul(s.MemoryByteCost, uint64(n)))
}

func (s Schedule) syscallCost(id uint32) uint64 {
	var specific uint64
	switch id {
	case SyscallStorageGet:
		specific = s.SyscallStorageGet
	case SyscallStorageSet:
		specific = s.SyscallStorageSet
	case SyscallLog:
		specific = s.SyscallLog
	case SyscallCallProgram:
		specific = s.SyscallCallProgram
	case SyscallFireEvent:
		specific = s.SyscallFireEvent
	case SyscallAlloc:
		specific = s.SyscallAlloc
	case SyscallDealloc:
		specific = s.SyscallDealloc
	case SyscallTransfer:
		specific = s.SyscallTransfer
	case SyscallBalance:
		specific = s.SyscallBalance
	}
	return satAdd(s.SyscallBase, specific)
}

func (s Schedule) syscallDataCost(id uint32, n int) uint64 {
	var perByte uint64
	switch id {
	case SyscallStorageGet:
		perByte = s.StorageKeyByte
	case SyscallStorageSet:
		perByte = s.StorageValueByte
	case SyscallLog, SyscallFireEvent:
		perByte = s.LogDataByte
	case SyscallTransfer, SyscallBalance:
		perByte = s.StorageKeyByte
	default:
		perByte = s.CallDataByte
	}
	return satMul(perByte, uint64(n))
}

func (s Schedule) allocCost(n int) uint64 {
	words := (uint64(n) + 31) / 32
	if words < 1 {
		words = 1
	}
	return satAdd(s.AllocBase, satMul(s.AllocWord, words))
}

func (s Schedule) callCost(inputBytes int) uint64 {
	return satAdd(s.CallBase, satMul(s.CallDataByte, uint64(inputBytes)))
}

func satAdd(a, b uint64) uint64 {
	c := a + b
	if c < a {
		return ^uint64(0)
	}
	return c
}

func satMul(a, b uint64) uint64 {
	if a == 0 || b == 0 {
		return 0
	}
	c := a * b
	if c/a != b {
		return ^uint64(0)
	}
	return c
}

// Meter is the accounting object fed by every CPU, MMU and syscall event.
// It is not safe for concurrent use; each task's CPU owns one (spec.md §5).
type Meter struct {
	schedule Schedule
	used     uint64
}

// NewMeter returns a Meter priced by schedule.
func NewMeter(schedule Schedule) *Meter {
	return &Meter{schedule: schedule}
}

// Used returns the cumulative gas charged so far.
func (m *Meter) Used() uint64 { return m.used }

func (m *Meter) consume(amount uint64) Result {
	if amount == 0 {
		return Continue
	}
	m.used = satAdd(m.used, amount)
	return Continue
}

// OnInstruction charges a single instruction fetch/execute.
func (m *Meter) OnInstruction() Result { return m.consume(m.schedule.Instruction) }

// OnMemoryAccess charges a load/store/atomic/reservation access of n bytes.
func (m *Meter) OnMemoryAccess(kind MemoryKind, n int) Result {
	return m.consume(m.schedule.memoryCost(kind, n))
}

// OnSyscallEntry charges the base + per-ID surcharge for entering a handler.
func (m *Meter) OnSyscallEntry(id uint32) Result { return m.consume(m.schedule.syscallCost(id)) }

// OnSyscallData charges per-byte cost for a syscall's variable-length payload.
func (m *Meter) OnSyscallData(id uint32, n int) Result {
	return m.consume(m.schedule.syscallDataCost(id, n))
}

// OnCall charges the nested call-program base plus per-input-byte cost.
func (m *Meter) OnCall(inputBytes int) Result { return m.consume(m.schedule.callCost(inputBytes)) }

// OnAlloc charges the allocation base plus per-word cost, rounding bytes up
// to the nearest 32-byte word with a one-word minimum.
func (m *Meter) OnAlloc(n int) Result { return m.consume(m.schedule.allocCost(n)) }

// OnRegisterRead, OnRegisterWrite and OnPCUpdate are zero-cost in the
// default schedule but remain distinct hooks so a custom Schedule can price
// them.
func (m *Meter) OnRegisterRead() Result  { return m.consume(m.schedule.RegisterRead) }
func (m *Meter) OnRegisterWrite() Result { return m.consume(m.schedule.RegisterWrite) }
func (m *Meter) OnPCUpdate() Result      { return m.consume(m.schedule.PCUpdate) }
