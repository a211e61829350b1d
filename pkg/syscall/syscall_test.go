package syscall

import (
	"encoding/binary"
	"testing"

	"github.com/avm-core/avm32/pkg/bundle"
	"github.com/avm-core/avm32/pkg/cpu"
	"github.com/avm-core/avm32/pkg/gas"
	"github.com/avm-core/avm32/pkg/host"
	"github.com/avm-core/avm32/pkg/kernel"
	"github.com/avm-core/avm32/pkg/mmu"
)

func newHarness(t *testing.T) (*Executor, *cpu.CPU, *mmu.Memory) {
	t.Helper()
	cfg := kernel.DefaultConfig
	m := mmu.New(4<<20, mmu.PageSize)
	if err := m.MapRange(m.CurrentRoot(), 0, cfg.ProgramWindowBytes()+kernel.PageSize, mmu.RWXKernel()); err != nil {
		t.Fatalf("map kernel root: %s", err)
	}
	meter := gas.NewMeter(gas.DefaultSchedule())
	k := kernel.New(m, cfg)
	state := host.NewState(host.NewMapStorage())
	c := cpu.New(m, meter, nil)
	e := NewExecutor(state, k, m, c)
	c.Syscalls = e
	return e, c, m
}

func ebreakCode(n int) []byte {
	code := make([]byte, n)
	code[0], code[1], code[2], code[3] = 0x73, 0x00, 0x10, 0x00 // ebreak
	return code
}

func writeArg(t *testing.T, m *mmu.Memory, va uint32, data []byte) {
	t.Helper()
	if err := m.WriteBytes(mmu.VirtualAddress(va), data); err != nil {
		t.Fatalf("write arg at %#x: %s", va, err)
	}
}

// A scratch VA range inside the program window the harness's kernel root
// already maps RWX, used to stage syscall argument buffers exactly as a
// compiled guest's data section would.
const scratchBase = 0x2000

func TestStorageSetThenGetRoundTrips(t *testing.T) {
	e, c, m := newHarness(t)
	var addr host.Address
	addr[0] = 0x11
	writeArg(t, m, scratchBase, addr[:])
	domain := []byte("P")
	writeArg(t, m, scratchBase+32, domain)
	key := []byte{0xca, 0xfe}
	writeArg(t, m, scratchBase+64, key)
	value := []byte("hello world")
	writeArg(t, m, scratchBase+96, value)

	lens := uint32(len(domain)) | uint32(len(key))<<16
	setArgs := [6]uint32{scratchBase, scratchBase + 32, scratchBase + 64, lens, scratchBase + 96, uint32(len(value))}
	if r, cont := e.Handle(c, gas.SyscallStorageSet, setArgs); r != 0 || !cont {
		t.Fatalf("storage_set = %d,%v want 0,true", r, cont)
	}

	getArgs := [6]uint32{scratchBase, scratchBase + 32, scratchBase + 64, lens, 0, 0}
	resultVA, cont := e.Handle(c, gas.SyscallStorageGet, getArgs)
	if resultVA == 0 || !cont {
		t.Fatalf("storage_get returned 0, want a heap VA")
	}
	raw, err := m.MemSlice(mmu.VirtualAddress(resultVA), mmu.VirtualAddress(resultVA)+mmu.VirtualAddress(4+len(value)))
	if err != nil {
		t.Fatalf("read result: %s", err)
	}
	gotLen := binary.LittleEndian.Uint32(raw[0:4])
	if int(gotLen) != len(value) || string(raw[4:]) != string(value) {
		t.Fatalf("got %d:%q, want %d:%q", gotLen, raw[4:], len(value), value)
	}
}

func TestStorageGetMissReturnsZero(t *testing.T) {
	e, c, m := newHarness(t)
	var addr host.Address
	writeArg(t, m, scratchBase, addr[:])
	domain := []byte("P")
	writeArg(t, m, scratchBase+32, domain)
	lens := uint32(len(domain))
	args := [6]uint32{scratchBase, scratchBase + 32, scratchBase + 64, lens, 0, 0}
	if r, cont := e.Handle(c, gas.SyscallStorageGet, args); r != 0 || !cont {
		t.Fatalf("expected a miss to return 0,true, got %d,%v", r, cont)
	}
}

func TestAllocReturnsDistinctAddresses(t *testing.T) {
	e, c, _ := newHarness(t)
	a, cont := e.Handle(c, gas.SyscallAlloc, [6]uint32{16, 8, 0, 0, 0, 0})
	if a == 0 || !cont {
		t.Fatalf("alloc failed: %d,%v", a, cont)
	}
	b, _ := e.Handle(c, gas.SyscallAlloc, [6]uint32{16, 8, 0, 0, 0, 0})
	if b <= a {
		t.Fatalf("second alloc %#x should be past first %#x", b, a)
	}
}

func TestAllocRejectsBadAlignment(t *testing.T) {
	e, c, _ := newHarness(t)
	if r, _ := e.Handle(c, gas.SyscallAlloc, [6]uint32{16, 3, 0, 0, 0, 0}); r != 0 {
		t.Fatalf("non-power-of-two alignment should fail, got %#x", r)
	}
}

func TestBrkForwardOnly(t *testing.T) {
	e, c, m := newHarness(t)
	cur, _ := e.Handle(c, gas.SyscallBrk, [6]uint32{0, 0, 0, 0, 0, 0})
	if cur != m.NextHeap().Uint32() {
		t.Fatalf("brk(0) = %#x, want current break %#x", cur, m.NextHeap().Uint32())
	}
	moved, _ := e.Handle(c, gas.SyscallBrk, [6]uint32{cur + 0x1000, 0, 0, 0, 0, 0})
	if moved != cur+0x1000 {
		t.Fatalf("brk forward = %#x, want %#x", moved, cur+0x1000)
	}
	shrink, _ := e.Handle(c, gas.SyscallBrk, [6]uint32{cur, 0, 0, 0, 0, 0})
	if shrink != cur+0x1000 {
		t.Fatalf("brk shrink should be ignored, got %#x want %#x", shrink, cur+0x1000)
	}
}

func TestTransferAndBalance(t *testing.T) {
	e, c, m := newHarness(t)
	var from, to host.Address
	from[0] = 0x01
	to[0] = 0x02
	e.SetBalance(from, 100)

	writeArg(t, m, kernel.ToPtrAddr, from[:])
	writeArg(t, m, scratchBase, to[:])
	if r, cont := e.Handle(c, gas.SyscallTransfer, [6]uint32{0, scratchBase, 40, 0, 0, 0}); r != 0 || !cont {
		t.Fatalf("transfer = %d,%v want 0,true", r, cont)
	}
	if e.Balance(to) != 40 {
		t.Fatalf("to balance = %d, want 40", e.Balance(to))
	}

	writeArg(t, m, scratchBase+64, to[:])
	balVA, _ := e.Handle(c, gas.SyscallBalance, [6]uint32{scratchBase + 64, 0, 0, 0, 0, 0})
	raw, err := m.MemSlice(mmu.VirtualAddress(balVA), mmu.VirtualAddress(balVA)+8)
	if err != nil {
		t.Fatalf("read balance: %s", err)
	}
	var bal uint64
	for i := 0; i < 8; i++ {
		bal |= uint64(raw[i]) << (8 * i)
	}
	if bal != 40 {
		t.Fatalf("balance = %d, want 40", bal)
	}
}

func TestFireEventReadsAddressFromToPtr(t *testing.T) {
	e, c, m := newHarness(t)
	var contract host.Address
	contract[0] = 0x55
	writeArg(t, m, kernel.ToPtrAddr, contract[:])
	writeArg(t, m, scratchBase, []byte("evt"))
	if r, cont := e.Handle(c, gas.SyscallFireEvent, [6]uint32{scratchBase, 3, 0, 0, 0, 0}); r != 0 || !cont {
		t.Fatalf("fire_event = %d,%v want 0,true", r, cont)
	}
	events := e.Events()
	if len(events) != 1 || events[0].Address != contract || string(events[0].Data) != "evt" {
		t.Fatalf("events = %+v, want one event from %x", events, contract)
	}
}

func TestCallProgramRunsNestedTaskAndReadsResult(t *testing.T) {
	e, c, _ := newHarness(t)
	var to, from host.Address
	to[0] = 0x42
	codeLimit := kernel.DefaultConfig.CodeSizeLimit + kernel.DefaultConfig.RODataSizeLimit
	if err := e.State.CreateAccount(to, ebreakCode(64), codeLimit); err != nil {
		t.Fatalf("create_account: %s", err)
	}

	resultVA, pageIndex, ok := e.CallProgram(from, to, nil)
	if !ok {
		t.Fatalf("call_program failed")
	}
	data, ok := e.ReadPage(pageIndex, resultVA, bundle.ResultSize)
	if !ok || len(data) != bundle.ResultSize {
		t.Fatalf("read_page = %v,%v want %d bytes", data, ok, bundle.ResultSize)
	}
}

func TestCallProgramRejectsNonContract(t *testing.T) {
	e, _, _ := newHarness(t)
	var to, from host.Address
	to[0] = 0x99
	if _, _, ok := e.CallProgram(from, to, nil); ok {
		t.Fatalf("expected call_program to refuse a non-contract destination")
	}
}
