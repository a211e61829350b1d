package bootloader

import (
	"bytes"
	"errors"
	"testing"

	"github.com/avm-core/avm32/pkg/bundle"
	"github.com/avm-core/avm32/pkg/host"
	"github.com/avm-core/avm32/pkg/kernel"
)

func ebreakCode(n int) []byte {
	code := make([]byte, n)
	code[0], code[1], code[2], code[3] = 0x73, 0x00, 0x10, 0x00 // ebreak
	return code
}

func TestLoadKernelMapsImageAndReportsEntry(t *testing.T) {
	bl := New(4 << 20)
	text := ebreakCode(64)
	rodata := []byte("constant data")
	img := buildMinimalELF(elfFixture{
		entry:      0x1000,
		text:       text,
		textAddr:   0x1000,
		rodata:     rodata,
		rodataAddr: 0x2000,
	})

	entry, err := bl.LoadKernel(img)
	if err != nil {
		t.Fatalf("LoadKernel: %s", err)
	}
	if entry != 0x1000 {
		t.Fatalf("entry = %#x, want %#x", entry, 0x1000)
	}

	got, err := bl.Memory().FetchBytes(0x1000, len(text))
	if err != nil {
		t.Fatalf("FetchBytes(text): %s", err)
	}
	if !bytes.Equal(got, text) {
		t.Fatalf("mapped .text mismatch: got %x want %x", got, text)
	}

	gotRO, err := bl.Memory().FetchBytes(0x2000, len(rodata))
	if err != nil {
		t.Fatalf("FetchBytes(rodata): %s", err)
	}
	if !bytes.Equal(gotRO, rodata) {
		t.Fatalf("mapped .rodata mismatch: got %q want %q", gotRO, rodata)
	}
}

func TestLoadKernelMissingTextErrors(t *testing.T) {
	bl := New(4 << 20)
	img := buildMinimalELF(elfFixture{entry: 0x1000, omitText: true})

	if _, err := bl.LoadKernel(img); !errors.Is(err, ErrMissingText) {
		t.Fatalf("err = %v, want ErrMissingText", err)
	}
}

func TestLoadKernelImageOverlapsStack(t *testing.T) {
	bl := New(16 << 20)
	huge := make([]byte, 300*1024) // exceeds the fixed stack window's base offset
	img := buildMinimalELF(elfFixture{entry: 0x1000, text: huge, textAddr: 0x1000})

	if _, err := bl.LoadKernel(img); !errors.Is(err, ErrImageOverlapsStack) {
		t.Fatalf("err = %v, want ErrImageOverlapsStack", err)
	}
}

func TestLoadKernelImageTooLargeForMemory(t *testing.T) {
	bl := New(8 * 1024) // far smaller than the image below
	text := ebreakCode(64)
	img := buildMinimalELF(elfFixture{entry: 0x20000, text: text, textAddr: 0x20000})

	if _, err := bl.LoadKernel(img); !errors.Is(err, ErrImageTooLarge) {
		t.Fatalf("err = %v, want ErrImageTooLarge", err)
	}
}

func TestBootInfoEncodeFieldOrder(t *testing.T) {
	b := BootInfo{RootPPN: 1, KStackTop: 2, NextHeap: 3, MemorySize: 4, NextFreePPN: 5}
	buf := b.Encode()
	if len(buf) != 20 {
		t.Fatalf("encoded len = %d, want 20", len(buf))
	}
	want := []uint32{1, 2, 3, 4, 5}
	for i, w := range want {
		got := uint32(buf[i*4]) | uint32(buf[i*4+1])<<8 | uint32(buf[i*4+2])<<16 | uint32(buf[i*4+3])<<24
		if got != w {
			t.Errorf("field %d = %d, want %d", i, got, w)
		}
	}
}

func TestExecuteBundleDispatchesTransferAndCreateAccount(t *testing.T) {
	bl := New(4 << 20)
	img := buildMinimalELF(elfFixture{entry: 0x1000, text: ebreakCode(64), textAddr: 0x1000})

	state := host.NewState(host.NewMapStorage())
	var alice, bob host.Address
	alice[0] = 1
	bob[0] = 2
	state.SetBalance(alice, 100)

	b := &bundle.Bundle{Transactions: []bundle.Transaction{
		{Type: bundle.Transfer, From: alice, To: bob, Value: 40},
		{Type: bundle.CreateAccount, To: bob, Data: ebreakCode(16)},
	}}

	result, err := bl.ExecuteBundle(img, b, state, kernel.DefaultConfig)
	if err != nil {
		t.Fatalf("ExecuteBundle: %s", err)
	}
	if len(result.Receipts) != 2 {
		t.Fatalf("receipts = %d, want 2", len(result.Receipts))
	}
	if !result.Receipts[0].Result.Success {
		t.Fatalf("transfer receipt should succeed")
	}
	if state.Balance(alice) != 60 || state.Balance(bob) != 40 {
		t.Fatalf("balances after transfer: alice=%d bob=%d", state.Balance(alice), state.Balance(bob))
	}
	if !result.Receipts[1].Result.Success {
		t.Fatalf("create_account receipt should succeed")
	}
	if _, ok := state.CodeOf(bob); !ok {
		t.Fatalf("create_account did not deploy code")
	}
}
