// Package bootloader implements spec.md §4.7: loading a kernel ELF image
// into fresh memory, mapping a kernel stack and a direct physical window,
// handing off to the kernel entry point, then carrying out a transaction
// bundle's effects against host state.
//
// Grounded on original_source/crates/bootloader/src/bootloader.rs's
// Bootloader::{load_kernel, execute_bundle, place_bundle, place_state,
// place_boot_info}, adapted around one architectural difference already
// established by pkg/kernel: this port's task manager (pkg/kernel.Manager)
// is native Go rather than RV32 code the CPU executes, so the image loaded
// here is the boot stub the original's kernel ELF would have been compiled
// from down to its very first instructions — load_kernel's ELF-parsing,
// overlap checks and BootInfo placement are reproduced in full, but the
// transaction dispatch loop that run_task/run_tx/call_contract staged
// through guest-visible syscalls in original_source's avm.rs is, here,
// carried out directly in Go against host.State and pkg/syscall.Executor,
// the same way pkg/kernel/run.go already resolves the "kernel runs as
// guest code" split by driving task entry from the host side.
package bootloader

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/avm-core/avm32/pkg/bundle"
	"github.com/avm-core/avm32/pkg/cpu"
	"github.com/avm-core/avm32/pkg/gas"
	"github.com/avm-core/avm32/pkg/host"
	"github.com/avm-core/avm32/pkg/kernel"
	"github.com/avm-core/avm32/pkg/log"
	"github.com/avm-core/avm32/pkg/metrics"
	"github.com/avm-core/avm32/pkg/mmu"
	"github.com/avm-core/avm32/pkg/receipt"
	execsys "github.com/avm-core/avm32/pkg/syscall"
)

const (
	minKernelMapBytes = 16 * 1024
	kernelStackBytes  = 4 * mmu.PageSize
	kernelWindowBytes = 256 * 1024
	kernelStackTop    = uint32(kernelWindowBytes)
)

// ErrImageOverlapsStack is returned when the loaded kernel image's mapped
// bytes would reach into the kernel stack window (spec.md §4.7's
// precondition: "the kernel image, the stack window and direct window do
// not overlap").
var ErrImageOverlapsStack = errors.New("bootloader: kernel image overlaps stack window")

// ErrImageTooLarge is returned when the kernel image does not fit the
// backing memory the Bootloader was constructed with.
var ErrImageTooLarge = errors.New("bootloader: kernel image does not fit mapped memory")

// Config controls bootloader-level behavior, grounded on
// original_source/crates/bootloader/src/bootloader.rs's BootConfig.
type Config struct {
	DebugConsole bool
}

// DefaultConfig matches the original's Default impl.
var DefaultConfig = Config{DebugConsole: true}

// Bootloader owns the backing physical memory a kernel image is loaded
// into and the module logger every boot-time step reports through.
type Bootloader struct {
	Config Config
	mem    *mmu.Memory
	log    *log.Logger
}

// New allocates totalSizeBytes of fresh physical memory (rounded up to a
// whole number of mmu.PageSize frames) for a Bootloader to load a kernel
// image into.
func New(totalSizeBytes int) *Bootloader {
	return &Bootloader{
		Config: DefaultConfig,
		mem:    mmu.New(totalSizeBytes, mmu.PageSize),
		log:    log.Default().Module("bootloader"),
	}
}

// Memory returns the backing mmu.Memory, shared by every task prepared
// against this boot (pkg/kernel.Manager, pkg/cpu.CPU all run against it).
func (bl *Bootloader) Memory() *mmu.Memory { return bl.mem }

// LoadKernel parses elfBytes, computes the minimal bounding box spanning
// its .text/.rodata/.bss*/.sbss* sections, maps a window covering it with
// user-RWX permissions (spec.md §4.7's own "ergonomics" relaxation), writes
// the flattened image, reserves a kernel stack region below a fixed top,
// and maps a direct physical window at mmu.SV32DirectMapBase over all
// backing memory. Returns the ELF's entry point.
func (bl *Bootloader) LoadKernel(elfBytes []byte) (uint32, error) {
	img, err := parseKernelImage(elfBytes)
	if err != nil {
		return 0, err
	}

	minBase := img.codeBase
	if img.hasRodata && img.rodataBase < minBase {
		minBase = img.rodataBase
	}
	if img.hasBSS && img.bssBase < minBase {
		minBase = img.bssBase
	}

	codeEnd := img.codeBase + uint64(len(img.code))
	imageEnd := codeEnd
	if img.hasRodata {
		if end := img.rodataBase + uint64(len(img.rodata)); end > imageEnd {
			imageEnd = end
		}
	}
	if img.hasBSS {
		if end := img.bssBase + uint64(len(img.bss)); end > imageEnd {
			imageEnd = end
		}
	}

	imageSize := int(imageEnd - minBase)
	kernelMapBytes := imageSize
	if kernelMapBytes < minKernelMapBytes {
		kernelMapBytes = minKernelMapBytes
	}
	stackBase := kernelStackTop - uint32(kernelStackBytes)
	if uint32(kernelMapBytes) > stackBase {
		return 0, fmt.Errorf("%w: map_bytes=%#x stack_base=%#x", ErrImageOverlapsStack, kernelMapBytes, stackBase)
	}
	if int(imageEnd) > bl.mem.Size() {
		return 0, fmt.Errorf("%w: need=%d have=%d", ErrImageTooLarge, imageEnd, bl.mem.Size())
	}

	image := make([]byte, imageSize)
	copy(image[img.codeBase-minBase:], img.code)
	if img.hasRodata {
		copy(image[img.rodataBase-minBase:], img.rodata)
	}
	// bss contributes no bytes (zero-filled by construction); its range is
	// still covered by the mapped window below.

	root := bl.mem.CurrentRoot()
	if err := bl.mem.MapRange(root, mmu.VirtualAddress(minBase), kernelMapBytes, mmu.UserRWX()); err != nil {
		return 0, fmt.Errorf("map kernel image window: %w", err)
	}
	if err := bl.mem.WriteBytes(mmu.VirtualAddress(minBase), image); err != nil {
		return 0, fmt.Errorf("write kernel image: %w", err)
	}

	heapStart := (uint32(imageEnd) + mmu.HeapPtrOffset + 7) &^ 7
	bl.mem.SetNextHeap(mmu.VirtualAddress(heapStart))

	if err := bl.mem.MapRange(root, mmu.VirtualAddress(stackBase), kernelStackBytes, mmu.RWKernel()); err != nil {
		return 0, fmt.Errorf("map kernel stack: %w", err)
	}

	if err := bl.mem.MapPhysicalRange(root, mmu.VirtualAddress(mmu.SV32DirectMapBase), 0, bl.mem.Size(), mmu.RWKernel()); err != nil {
		return 0, fmt.Errorf("map direct physical window: %w", err)
	}

	bl.log.Info("load_kernel",
		"entry", img.entry, "image_base", minBase, "image_size", imageSize,
		"stack_base", stackBase, "heap_start", heapStart)
	return img.entry, nil
}

// BootInfo is the manifest the bootloader hands the kernel, per spec.md
// §4.7: `(root_ppn, kstack_top, next_heap, memory_size, next_free_ppn)`,
// five little-endian u32 words.
type BootInfo struct {
	RootPPN     uint32
	KStackTop   uint32
	NextHeap    uint32
	MemorySize  uint32
	NextFreePPN uint32
}

// Encode packs b into its 20-byte wire form.
func (b BootInfo) Encode() []byte {
	buf := make([]byte, 20)
	binary.LittleEndian.PutUint32(buf[0:], b.RootPPN)
	binary.LittleEndian.PutUint32(buf[4:], b.KStackTop)
	binary.LittleEndian.PutUint32(buf[8:], b.NextHeap)
	binary.LittleEndian.PutUint32(buf[12:], b.MemorySize)
	binary.LittleEndian.PutUint32(buf[16:], b.NextFreePPN)
	return buf
}

// Result is the outcome of ExecuteBundle: one receipt per transaction, in
// bundle order.
type Result struct {
	Receipts []*receipt.Receipt
}

// ExecuteBundle loads kernelELF, boots it, then carries out every
// transaction in b against state. Grounded on execute_bundle/run_tx, with
// the per-tx dispatch itself running host-side rather than through a
// guest-visible trap (see package doc).
func (bl *Bootloader) ExecuteBundle(kernelELF []byte, b *bundle.Bundle, state *host.State, progCfg kernel.Config) (*Result, error) {
	timer := metrics.NewTimer(metrics.BundleExecutionTime)
	defer timer.Stop()

	entry, err := bl.LoadKernel(kernelELF)
	if err != nil {
		return nil, fmt.Errorf("load kernel: %w", err)
	}

	meter := gas.NewMeter(gas.DefaultSchedule())
	k := kernel.New(bl.mem, progCfg)
	c := cpu.New(bl.mem, meter, nil)
	exec := execsys.NewExecutor(state, k, bl.mem, c)
	c.Syscalls = exec

	c.PC = entry
	c.Regs[cpu.Sp] = kernelStackTop

	encodedBundle := b.Encode()
	bundleVA, err := bl.mem.AllocOnHeap(encodedBundle)
	if err != nil {
		return nil, fmt.Errorf("place bundle: %w", err)
	}
	c.Regs[cpu.A0] = bundleVA.Uint32()
	c.Regs[cpu.A1] = uint32(len(encodedBundle))

	// original_source's execute_bundle also places a serialized host State
	// snapshot in a2/a3 for the guest kernel to read back; state.rs (the
	// crate that would define State::encode) was not present in the
	// retrieval pack, and this port's transaction dispatch runs directly
	// against the live *host.State below rather than a guest-readable
	// copy, so a2/a3 are left zero rather than inventing an ungrounded
	// wire format.
	c.Regs[cpu.A2] = 0
	c.Regs[cpu.A3] = 0

	bootInfo := BootInfo{
		RootPPN:     uint32(bl.mem.CurrentRoot()),
		KStackTop:   kernelStackTop,
		NextHeap:    bl.mem.NextHeap().Uint32(),
		MemorySize:  uint32(bl.mem.Size()),
		NextFreePPN: uint32(bl.mem.NextFreePPN()),
	}
	bootInfoVA, err := bl.mem.AllocOnHeap(bootInfo.Encode())
	if err != nil {
		return nil, fmt.Errorf("place boot info: %w", err)
	}
	c.Regs[cpu.A4] = bootInfoVA.Uint32()

	for {
		cont, err := c.Step()
		if err != nil {
			return nil, fmt.Errorf("kernel boot stub trapped: %w", err)
		}
		if !cont {
			break
		}
	}

	receipts := make([]*receipt.Receipt, 0, len(b.Transactions))
	for _, tx := range b.Transactions {
		receipts = append(receipts, bl.runTx(exec, state, tx, progCfg))
		metrics.ReceiptsEmitted.Inc()
	}

	metrics.BundlesExecuted.Inc()
	return &Result{Receipts: receipts}, nil
}

// runTx dispatches a single transaction by type, grounded on
// original_source/crates/avm/src/avm.rs's run_tx.
func (bl *Bootloader) runTx(exec *execsys.Executor, state *host.State, tx bundle.Transaction, progCfg kernel.Config) *receipt.Receipt {
	switch tx.Type {
	case bundle.Transfer:
		ok := state.Transfer(tx.From, tx.To, tx.Value)
		return receipt.New(tx, bundle.Result{Success: ok})

	case bundle.CreateAccount:
		limit := progCfg.CodeSizeLimit + progCfg.RODataSizeLimit
		if err := state.CreateAccount(tx.To, tx.Data, limit); err != nil {
			bl.log.Error("create_account failed", "to", tx.To, "err", err)
			return receipt.New(tx, bundle.Result{Success: false})
		}
		return receipt.New(tx, bundle.Result{Success: true})

	case bundle.ProgramCall:
		eventsBefore := len(state.Events())
		resultVA, pageIndex, ok := exec.CallProgram(tx.From, tx.To, tx.Data)
		if !ok {
			return receipt.New(tx, bundle.Result{Success: false})
		}
		resultBytes, ok := exec.ReadPage(pageIndex, resultVA, bundle.ResultSize)
		if !ok {
			return receipt.New(tx, bundle.Result{Success: false})
		}
		result, err := bundle.DecodeResult(resultBytes)
		if err != nil {
			return receipt.New(tx, bundle.Result{Success: false})
		}
		r := receipt.New(tx, result)
		// state.Events() grows monotonically across the whole bundle, so only
		// the slice fired during this call (including by nested calls to
		// other contracts) belongs in this transaction's own receipt.
		for _, ev := range state.Events()[eventsBefore:] {
			r.AddEvent(ev.Data)
		}
		return r

	default:
		bl.log.Error("unknown transaction type", "type", tx.Type)
		return receipt.New(tx, bundle.Result{Success: false})
	}
}
