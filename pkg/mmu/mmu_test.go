package mmu

import "testing"

func TestMapAndTranslateRoundTrip(t *testing.T) {
	m := New(1<<20, PageSize)
	va := VirtualAddress(0x1000)
	if err := m.MapRange(m.CurrentRoot(), va, 64, UserRWX()); err != nil {
		t.Fatalf("MapRange: %v", err)
	}
	if err := m.StoreU32(va, 0xdeadbeef, nil, AccessStore); err != nil {
		t.Fatalf("StoreU32: %v", err)
	}
	got, err := m.LoadWord(va, nil, AccessLoad)
	if err != nil {
		t.Fatalf("LoadWord: %v", err)
	}
	if got != 0xdeadbeef {
		t.Fatalf("got %#x, want 0xdeadbeef", got)
	}
}

func TestTranslateUnmappedFails(t *testing.T) {
	m := New(1<<20, PageSize)
	if _, err := m.Translate(VirtualAddress(0x2000), AccessLoad); err == nil {
		t.Fatalf("expected error for unmapped address")
	}
}

func TestWritePermissionEnforced(t *testing.T) {
	m := New(1<<20, PageSize)
	va := VirtualAddress(0x3000)
	if err := m.MapRange(m.CurrentRoot(), va, 4, Perms{Read: true}); err != nil {
		t.Fatalf("MapRange: %v", err)
	}
	if err := m.StoreU8(va, 1, nil, AccessStore); err == nil {
		t.Fatalf("expected store to a read-only page to fail")
	}
}

func TestSeparateRootsAreIsolated(t *testing.T) {
	m := New(1<<20, PageSize)
	rootA := m.CurrentRoot()
	rootB := m.AllocateRoot()

	va := VirtualAddress(0x4000)
	if err := m.MapRange(rootA, va, 4, RWKernel()); err != nil {
		t.Fatalf("MapRange in rootA: %v", err)
	}
	if err := m.StoreU32(va, 42, nil, AccessStore); err != nil {
		t.Fatalf("StoreU32: %v", err)
	}

	if err := m.SetRoot(rootB); err != nil {
		t.Fatalf("SetRoot: %v", err)
	}
	if _, err := m.Translate(va, AccessLoad); err == nil {
		t.Fatalf("expected va to be unmapped in the fresh root")
	}

	if err := m.SetRoot(rootA); err != nil {
		t.Fatalf("SetRoot back: %v", err)
	}
	got, err := m.LoadWord(va, nil, AccessLoad)
	if err != nil || got != 42 {
		t.Fatalf("got %d, err=%v, want 42", got, err)
	}
}

func TestMemSliceRejectsNonContiguousPhysicalRange(t *testing.T) {
	m := New(1<<20, PageSize)
	// Map two virtual pages that are not physically adjacent by forcing an
	// intervening allocation into a different address space's frame pool.
	rootA := m.CurrentRoot()
	va1 := VirtualAddress(0x5000)
	if err := m.MapRange(rootA, va1, PageSize, RWKernel()); err != nil {
		t.Fatalf("MapRange va1: %v", err)
	}
	// Allocate in a second root to consume a frame between the two ranges.
	other := m.AllocateRoot()
	if err := m.MapRange(other, VirtualAddress(0x9000), PageSize, RWKernel()); err != nil {
		t.Fatalf("MapRange other: %v", err)
	}

	va2 := VirtualAddress(0x6000)
	if err := m.MapRange(rootA, va2, PageSize, RWKernel()); err != nil {
		t.Fatalf("MapRange va2: %v", err)
	}
	if _, err := m.MemSlice(va1, va2.Add(PageSize)); err == nil {
		t.Fatalf("expected MemSlice across the intervening frame to fail")
	}
}

func TestAllocOnHeapBumpsAndWrites(t *testing.T) {
	m := New(1<<20, PageSize)
	data := []byte{1, 2, 3, 4, 5}
	addr, err := m.AllocOnHeap(data)
	if err != nil {
		t.Fatalf("AllocOnHeap: %v", err)
	}
	got, err := m.MemSlice(addr, addr.Add(uint32(len(data))))
	if err != nil {
		t.Fatalf("MemSlice: %v", err)
	}
	for i, b := range data {
		if got[i] != b {
			t.Fatalf("byte %d: got %d want %d", i, got[i], b)
		}
	}
	second, err := m.AllocOnHeap([]byte{9})
	if err != nil {
		t.Fatalf("AllocOnHeap second: %v", err)
	}
	if second <= addr {
		t.Fatalf("heap pointer did not advance: %#x <= %#x", second, addr)
	}
}

func TestOutOfFramesReturnsError(t *testing.T) {
	m := New(PageSize, PageSize) // only 1 frame: the first map's data page takes it
	root := m.CurrentRoot()
	if err := m.MapRange(root, VirtualAddress(0), PageSize, RWKernel()); err != nil {
		t.Fatalf("first map: %v", err)
	}
	if err := m.MapRange(root, VirtualAddress(0x10000), PageSize, RWKernel()); err == nil {
		t.Fatalf("expected second map to exhaust frames (no frame left for its data page)")
	}
}

func TestMapPhysicalRangeInstallsDirectMapWindow(t *testing.T) {
	m := New(1<<20, PageSize)
	root := m.CurrentRoot()
	if err := m.MapPhysicalRange(root, VirtualAddress(SV32DirectMapBase), 0, 1<<20, RWKernel()); err != nil {
		t.Fatalf("MapPhysicalRange: %v", err)
	}
	phys, err := m.Translate(VirtualAddress(SV32DirectMapBase+0x2000), AccessLoad)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if phys != 0x2000 {
		t.Fatalf("phys = %#x, want 0x2000 (identity mapping)", phys)
	}
}

func TestSatpSwitchesRoot(t *testing.T) {
	m := New(1<<20, PageSize)
	other := m.AllocateRoot()
	if err := m.SetSatp(uint32(other)); err != nil {
		t.Fatalf("SetSatp: %v", err)
	}
	if m.Satp() != uint32(other) {
		t.Fatalf("Satp() = %d, want %d", m.Satp(), other)
	}
}
