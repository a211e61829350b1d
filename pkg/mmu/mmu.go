// Package mmu implements the two-level Sv32-style software MMU described in
// spec.md §4.3: a bump physical-frame allocator, per-address-space L1/L2
// page tables living in host memory, and the translate/load/store path
// every CPU memory access runs through.
//
// Grounded on original_source/crates/bootloader/src/memory/memory.rs (the
// host-side `Memory` struct backing the emulator's address spaces: a single
// contiguous `backing` buffer, a pool of L1/L2 tables, bump frame and heap
// allocators) and crates/vm/src/memory/mod.rs (VirtualAddress/Perms helpers,
// the Mmu trait surface). original_source/crates/kernel/src/mmu.rs shows the
// same walk from the other side (in-guest raw-pointer PTEs); this package
// follows the host-side structured-table variant since Go has no raw
// physical pointer arithmetic to offer.
package mmu

import (
	"errors"
	"fmt"

	"github.com/avm-core/avm32/pkg/gas"
)

const (
	PageSize       = 4096
	PageShift      = 12
	VPNMask        = 0x3ff
	PageOffsetMask = 0xfff
	HeapPtrOffset  = 0x100

	// SV32DirectMapBase is the precomputed VA at which root 0 identity-maps
	// all guest physical memory with kernel-RW perms, so page-table frames
	// stay addressable once the kernel's own root is active (spec.md §4.3).
	SV32DirectMapBase = 0x40000000
)

// ErrOutOfFrames is returned when the physical bump allocator is exhausted.
var ErrOutOfFrames = errors.New("mmu: out of physical frames")

// ErrUnmapped is returned when a translation misses or fails its permission check.
var ErrUnmapped = errors.New("mmu: virtual address unmapped or access denied")

// ErrInvalidRoot is returned when a root index does not name an allocated address space.
var ErrInvalidRoot = errors.New("mmu: invalid root index")

// Perms mirrors the Sv32 R/W/X/U leaf permission bits.
type Perms struct {
	Read  bool
	Write bool
	Exec  bool
	User  bool
}

func RWKernel() Perms  { return Perms{Read: true, Write: true} }
func RWXKernel() Perms { return Perms{Read: true, Write: true, Exec: true} }
func UserRWX() Perms   { return Perms{Read: true, Write: true, Exec: true, User: true} }

// VirtualAddress is an Sv32 virtual address: a 10-bit VPN1, 10-bit VPN0 and
// 12-bit page offset.
type VirtualAddress uint32

func (a VirtualAddress) Uint32() uint32 { return uint32(a) }

func (a VirtualAddress) Offset() uint32 { return uint32(a) & PageOffsetMask }

func (a VirtualAddress) VPN0() uint32 { return (uint32(a) >> PageShift) & VPNMask }

func (a VirtualAddress) VPN1() uint32 { return (uint32(a) >> (PageShift + 10)) & VPNMask }

func (a VirtualAddress) AlignDown() VirtualAddress {
	return VirtualAddress(uint32(a) &^ PageOffsetMask)
}

func (a VirtualAddress) Add(n uint32) VirtualAddress { return VirtualAddress(uint32(a) + n) }

// AccessKind distinguishes the memory-access forms the gas schedule and
// permission check price/validate separately.
type AccessKind = gas.MemoryKind

const (
	AccessLoad             = gas.MemoryLoad
	AccessStore            = gas.MemoryStore
	AccessAtomic           = gas.MemoryAtomic
	AccessReservationLoad  = gas.MemoryReservationLoad
	AccessReservationStore = gas.MemoryReservationStore
)

type pte struct {
	valid  bool
	ppn    int
	read   bool
	write  bool
	exec   bool
	user   bool
	hasL2  bool
	l2Idx  int
}

func (p pte) isLeaf() bool { return p.valid && !p.hasL2 }

// Memory is a single address space's page tables over a shared physical
// backing store; every Memory returned by New for the same VM shares one
// backing buffer and frame allocator through the caller holding a single
// instance and switching roots, matching the kernel's single-root-per-task
// model (spec.md §4.6).
type Memory struct {
	pageSize      int
	totalPages    int
	backing       []byte
	rootTables    [][1024]pte
	currentRoot   int
	l2Tables      [][1024]pte
	nextHeap      VirtualAddress
	nextFreeFrame int
}

// New allocates a fresh physical backing store of totalSizeBytes, rounded
// up to a whole number of pageSize frames, with one root table (index 0)
// ready for mapping.
func New(totalSizeBytes, pageSize int) *Memory {
	if pageSize <= 0 {
		pageSize = PageSize
	}
	totalPages := (totalSizeBytes + pageSize - 1) / pageSize
	return &Memory{
		pageSize:      pageSize,
		totalPages:    totalPages,
		backing:       make([]byte, totalPages*pageSize),
		rootTables:    [][1024]pte{{}},
		currentRoot:   0,
		l2Tables:      nil,
		nextHeap:      VirtualAddress(0),
		nextFreeFrame: 0,
	}
}

// AllocateRoot creates a fresh, empty L1 root table (a new address space)
// and returns its index.
func (m *Memory) AllocateRoot() int {
	m.rootTables = append(m.rootTables, [1024]pte{})
	return len(m.rootTables) - 1
}

// SetRoot switches the active address space used by Translate/MapRange.
func (m *Memory) SetRoot(root int) error {
	if root < 0 || root >= len(m.rootTables) {
		return fmt.Errorf("%w: root=%d", ErrInvalidRoot, root)
	}
	m.currentRoot = root
	return nil
}

func (m *Memory) CurrentRoot() int { return m.currentRoot }

// Satp returns the active root index, standing in for the real Sv32 SATP
// register's PPN field (this implementation addresses roots by Go-slice
// index rather than raw physical page number, since there is no pointer
// arithmetic into a flat address space to exploit as the original kernel
// code does).
func (m *Memory) Satp() uint32 { return uint32(m.currentRoot) }

// SetSatp installs value's low bits as the active root, mirroring a guest
// CSRRW to satp. Returns ErrInvalidRoot if no such root exists.
func (m *Memory) SetSatp(value uint32) error { return m.SetRoot(int(value)) }

func (m *Memory) allocFrame() (int, bool) {
	if m.nextFreeFrame >= m.totalPages {
		return 0, false
	}
	frame := m.nextFreeFrame
	m.nextFreeFrame++
	base := frame * m.pageSize
	for i := base; i < base+m.pageSize; i++ {
		m.backing[i] = 0
	}
	return frame, true
}

func (m *Memory) rootTable(root int) (*[1024]pte, error) {
	if root < 0 || root >= len(m.rootTables) {
		return nil, fmt.Errorf("%w: root=%d", ErrInvalidRoot, root)
	}
	return &m.rootTables[root], nil
}

func (m *Memory) ensureL2(root *[1024]pte, vpn1 uint32) *[1024]pte {
	if !root[vpn1].hasL2 {
		m.l2Tables = append(m.l2Tables, [1024]pte{})
		root[vpn1] = pte{valid: true, hasL2: true, l2Idx: len(m.l2Tables) - 1}
	}
	return &m.l2Tables[root[vpn1].l2Idx]
}

// MapPage maps a single page-aligned virtual address into root, allocating
// an L2 table and/or backing frame as needed. Mapping an already-mapped
// page is a no-op (matches the original's idempotent map).
func (m *Memory) MapPage(root int, va VirtualAddress, perms Perms) error {
	rootTable, err := m.rootTable(root)
	if err != nil {
		return err
	}
	l2 := m.ensureL2(rootTable, va.VPN1())
	vpn0 := va.VPN0()
	if l2[vpn0].valid {
		return nil
	}
	frame, ok := m.allocFrame()
	if !ok {
		return ErrOutOfFrames
	}
	l2[vpn0] = pte{
		valid: true,
		ppn:   frame,
		read:  perms.Read,
		write: perms.Write,
		exec:  perms.Exec,
		user:  perms.User,
	}
	return nil
}

// MapPhysicalPage maps va in root to the caller-supplied, already page-
// aligned physical frame number, instead of allocating a fresh one.
func (m *Memory) MapPhysicalPage(root int, va VirtualAddress, ppn int, perms Perms) error {
	rootTable, err := m.rootTable(root)
	if err != nil {
		return err
	}
	l2 := m.ensureL2(rootTable, va.VPN1())
	l2[va.VPN0()] = pte{
		valid: true,
		ppn:   ppn,
		read:  perms.Read,
		write: perms.Write,
		exec:  perms.Exec,
		user:  perms.User,
	}
	return nil
}

// MapRange maps every page overlapping [start, start+len) in root with perms.
func (m *Memory) MapRange(root int, start VirtualAddress, length int, perms Perms) error {
	if length <= 0 {
		return nil
	}
	page := start.AlignDown()
	end := start.Add(uint32(length))
	endAligned := VirtualAddress((uint32(end) + PageOffsetMask) &^ PageOffsetMask)
	for page < endAligned {
		if err := m.MapPage(root, page, perms); err != nil {
			return err
		}
		page = page.Add(uint32(m.pageSize))
	}
	return nil
}

// MapPhysicalRange maps [start, start+len) in root onto the contiguous
// physical frames beginning at physStart, which must be page-aligned. Used
// to install the kernel's direct-map window over existing guest memory
// (spec.md §4.3).
func (m *Memory) MapPhysicalRange(root int, start VirtualAddress, physStart, length int, perms Perms) error {
	if length <= 0 {
		return nil
	}
	if physStart%m.pageSize != 0 {
		return fmt.Errorf("mmu: phys_start %#x is not page-aligned", physStart)
	}
	page := start.AlignDown()
	end := start.Add(uint32(length))
	endAligned := VirtualAddress((uint32(end) + PageOffsetMask) &^ PageOffsetMask)
	ppn := physStart / m.pageSize
	for page < endAligned {
		if err := m.MapPhysicalPage(root, page, ppn, perms); err != nil {
			return err
		}
		page = page.Add(uint32(m.pageSize))
		ppn++
	}
	return nil
}

// Translate resolves va to a byte offset in the physical backing store,
// checking the leaf's permissions against kind. Superpages are never
// produced by MapPage, so any valid, non-leaf L1 entry without an L2 is
// impossible by construction.
func (m *Memory) Translate(va VirtualAddress, kind AccessKind) (int, error) {
	root := &m.rootTables[m.currentRoot]
	l1 := root[va.VPN1()]
	if !l1.hasL2 {
		return 0, fmt.Errorf("%w: va=%#x (no L2)", ErrUnmapped, va)
	}
	l2 := &m.l2Tables[l1.l2Idx]
	leaf := l2[va.VPN0()]
	if !leaf.isLeaf() {
		return 0, fmt.Errorf("%w: va=%#x (no leaf)", ErrUnmapped, va)
	}
	var allowed bool
	switch kind {
	case AccessLoad, AccessReservationLoad:
		allowed = leaf.read || leaf.exec
	case AccessStore, AccessAtomic, AccessReservationStore:
		allowed = leaf.write
	}
	if !allowed {
		return 0, fmt.Errorf("%w: va=%#x (permission)", ErrUnmapped, va)
	}
	return leaf.ppn*m.pageSize + int(va.Offset()), nil
}

// MemSlice returns a contiguous []byte view of [start, end) in the backing
// store, failing if the range is unmapped or spans a physical discontinuity.
func (m *Memory) MemSlice(start, end VirtualAddress) ([]byte, error) {
	if start > end {
		return nil, fmt.Errorf("mem_slice: start > end: %w", ErrUnmapped)
	}
	length := int(end) - int(start)
	if length == 0 {
		return m.backing[0:0], nil
	}
	physStart, err := m.Translate(start, AccessLoad)
	if err != nil {
		return nil, err
	}
	physLast, err := m.Translate(end-1, AccessLoad)
	if err != nil {
		return nil, err
	}
	if physLast+1 != physStart+length {
		return nil, fmt.Errorf("mem_slice: non-contiguous physical range: %w", ErrUnmapped)
	}
	return m.backing[physStart : physStart+length], nil
}

// FetchBytes reads n bytes starting at va for instruction fetch, translating
// byte by byte so a fetch may straddle a page boundary. The instruction
// fetch itself is charged once by the CPU via the meter's Instruction
// event, not per byte here.
func (m *Memory) FetchBytes(va VirtualAddress, n int) ([]byte, error) {
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		off, err := m.Translate(va.Add(uint32(i)), AccessLoad)
		if err != nil {
			return nil, err
		}
		out[i] = m.backing[off]
	}
	return out, nil
}

func (m *Memory) meterAccess(meter *gas.Meter, kind AccessKind, n int) bool {
	if meter == nil {
		return true
	}
	return meter.OnMemoryAccess(kind, n) == gas.Continue
}

func (m *Memory) StoreU8(addr VirtualAddress, val byte, meter *gas.Meter, kind AccessKind) error {
	if !m.meterAccess(meter, kind, 1) {
		return gasHaltErr
	}
	off, err := m.Translate(addr, kind)
	if err != nil {
		return err
	}
	m.backing[off] = val
	return nil
}

func (m *Memory) StoreU16(addr VirtualAddress, val uint16, meter *gas.Meter, kind AccessKind) error {
	if !m.meterAccess(meter, kind, 2) {
		return gasHaltErr
	}
	off, err := m.Translate(addr, kind)
	if err != nil {
		return err
	}
	m.backing[off] = byte(val)
	m.backing[off+1] = byte(val >> 8)
	return nil
}

func (m *Memory) StoreU32(addr VirtualAddress, val uint32, meter *gas.Meter, kind AccessKind) error {
	if !m.meterAccess(meter, kind, 4) {
		return gasHaltErr
	}
	off, err := m.Translate(addr, kind)
	if err != nil {
		return err
	}
	m.backing[off] = byte(val)
	m.backing[off+1] = byte(val >> 8)
	m.backing[off+2] = byte(val >> 16)
	m.backing[off+3] = byte(val >> 24)
	return nil
}

func (m *Memory) LoadByte(addr VirtualAddress, meter *gas.Meter, kind AccessKind) (byte, error) {
	if !m.meterAccess(meter, kind, 1) {
		return 0, gasHaltErr
	}
	off, err := m.Translate(addr, kind)
	if err != nil {
		return 0, err
	}
	return m.backing[off], nil
}

func (m *Memory) LoadHalfword(addr VirtualAddress, meter *gas.Meter, kind AccessKind) (uint16, error) {
	if !m.meterAccess(meter, kind, 2) {
		return 0, gasHaltErr
	}
	off, err := m.Translate(addr, kind)
	if err != nil {
		return 0, err
	}
	return uint16(m.backing[off]) | uint16(m.backing[off+1])<<8, nil
}

func (m *Memory) LoadWord(addr VirtualAddress, meter *gas.Meter, kind AccessKind) (uint32, error) {
	if !m.meterAccess(meter, kind, 4) {
		return 0, gasHaltErr
	}
	off, err := m.Translate(addr, kind)
	if err != nil {
		return 0, err
	}
	return uint32(m.backing[off]) | uint32(m.backing[off+1])<<8 |
		uint32(m.backing[off+2])<<16 | uint32(m.backing[off+3])<<24, nil
}

// WriteBytes copies data into an already-mapped, writable virtual range
// without advancing the heap pointer, honoring page boundaries.
func (m *Memory) WriteBytes(start VirtualAddress, data []byte) error {
	remaining := len(data)
	offset := 0
	va := start
	for remaining > 0 {
		phys, err := m.Translate(va, AccessStore)
		if err != nil {
			return err
		}
		pageRemaining := m.pageSize - int(va.Offset())
		toCopy := pageRemaining
		if remaining < toCopy {
			toCopy = remaining
		}
		copy(m.backing[phys:phys+toCopy], data[offset:offset+toCopy])
		remaining -= toCopy
		offset += toCopy
		va = va.Add(uint32(toCopy))
	}
	return nil
}

// AllocOnHeap bump-allocates an 8-byte-aligned region on the current heap
// pointer, maps it read-write, copies data in, and returns its start address.
func (m *Memory) AllocOnHeap(data []byte) (VirtualAddress, error) {
	const align = 8
	addr := uint32(m.nextHeap)
	addr = (addr + (align - 1)) &^ (align - 1)
	end := addr + uint32(len(data))
	start := VirtualAddress(addr)
	if err := m.MapRange(m.currentRoot, start, len(data), RWKernel()); err != nil {
		return 0, err
	}
	if err := m.WriteBytes(start, data); err != nil {
		return 0, err
	}
	m.nextHeap = VirtualAddress(end)
	return start, nil
}

func (m *Memory) StackTop() VirtualAddress { return VirtualAddress(len(m.backing)) }

func (m *Memory) Size() int { return len(m.backing) }

func (m *Memory) NextHeap() VirtualAddress { return m.nextHeap }

func (m *Memory) SetNextHeap(v VirtualAddress) { m.nextHeap = v }

// NextFreePPN returns the bump frame allocator's high-water mark, recorded
// into BootInfo so the kernel can take over frame allocation from exactly
// where the bootloader left off (spec.md §4.7).
func (m *Memory) NextFreePPN() int { return m.nextFreeFrame }

// gasHaltErr is returned by the load/store helpers when the meter signals
// Halt. Callers receive it as an ordinary error: cpu.Step returns it the
// same way it returns a translation fault.
var gasHaltErr = errors.New("mmu: gas meter halted this access")
