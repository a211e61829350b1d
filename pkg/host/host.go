// Package host models the blockchain-side state a running core observes
// and mutates only through syscalls (spec.md §3 "Host state", §4.5): per-
// address balances and composite-keyed storage, the event sink a program
// fires into, and the nested call-program back-edge spec.md §9 calls out
// as needing an explicit capability rather than a shared raw pointer.
//
// Grounded on original_source/crates/bootloader/src/syscalls.rs (composite
// storage key format, the HostInterface trait's method shapes) and
// pkg/geth/types.go (the only place the teacher imports go-ethereum
// directly, for Address/Hash/uint256 adapters) — pkg/host plays that same
// role for the rest of this module.
package host

import (
	"github.com/ethereum/go-ethereum/common"
)

// Address and Hash are the 20-byte/32-byte identifiers spec.md's "Host
// state" section names, backed directly by go-ethereum's layout-compatible
// array types rather than re-declared ones (grounded on pkg/geth/types.go's
// ToGethAddress/FromGethAddress, which are themselves no-op conversions
// between identically-shaped arrays).
type Address = common.Address
type Hash = common.Hash

// Host is the capability a running core is handed at construction to reach
// the blockchain state beyond its own address space (spec.md §9: "Model
// this as an explicit HostInterface capability handed to the CPU at
// construction, with nested calls returning a (result_va, page_index)
// descriptor rather than mutating the parent through aliased state").
//
// CallProgram's (resultVA, pageIndex) return mirrors
// sys_call_program/host.call_program in original_source's syscalls.rs
// exactly: pageIndex names which address space resultVA is valid in (this
// core's pageIndex is the callee's mmu.Memory root index), and the caller
// reads it back via ReadPage rather than ever switching roots itself.
type Host interface {
	StorageGet(addr Address, domain string, key []byte) ([]byte, bool)
	StorageSet(addr Address, domain string, key, value []byte)
	Transfer(from, to Address, value uint64) bool
	Balance(addr Address) uint64
	FireEvent(addr Address, data []byte)
	Log(line string)

	// CallProgram runs a nested program to completion and returns where its
	// result buffer lives. ok is false if the callee could not be prepared
	// or run at all (spec.md §4.5's "unknown call-IDs halt" failure mode
	// does not apply here; this is a call-program-specific refusal).
	CallProgram(from, to Address, input []byte) (resultVA uint32, pageIndex int, ok bool)

	// ReadPage reads length bytes at va from the address space named by
	// pageIndex (as returned by CallProgram), without requiring the caller
	// to hold or switch any MMU root itself.
	ReadPage(pageIndex int, va uint32, length int) ([]byte, bool)
}
