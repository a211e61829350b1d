// Package bundle implements the fixed little-endian wire formats spec.md §6
// names as external interfaces: the transaction bundle the bootloader
// places into guest memory, the 5-byte result buffer a program call writes
// back, and the router call-encoding nested calls use.
//
// Grounded on original_source/crates/types/src/transaction.rs (bundle
// encode/decode) and crates/program/src/router.rs (call encoding); the Go
// API trades the original's slice-cursor closures for a small explicit
// reader type, matching the idiom pkg/decoder and pkg/mmu already
// use for binary parsing in this module.
package bundle

import "errors"

// AddressLen is the fixed width of a to/from address (spec.md §6).
const AddressLen = 20

// TransactionType enumerates the three guest-visible transaction kinds
// (spec.md §6).
type TransactionType uint8

const (
	Transfer      TransactionType = 0
	CreateAccount TransactionType = 1
	ProgramCall   TransactionType = 2
)

func (t TransactionType) Valid() bool {
	return t == Transfer || t == CreateAccount || t == ProgramCall
}

// Transaction is one bundle entry (spec.md §6 "Transaction bundle encoding").
type Transaction struct {
	Type  TransactionType
	To    [AddressLen]byte
	From  [AddressLen]byte
	Data  []byte
	Value uint64
	Nonce uint64
}

// ErrTruncated is returned when a bundle buffer ends before a record it
// promised (via a length prefix) is fully present.
var ErrTruncated = errors.New("bundle: truncated transaction record")

// ErrBadType is returned when a transaction's tx_type byte names no known
// TransactionType.
var ErrBadType = errors.New("bundle: unrecognised transaction type")
