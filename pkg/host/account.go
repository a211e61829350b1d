package host

import "github.com/holiman/uint256"

// Account holds the per-address state a Transaction can touch: a balance
// and, for a contract, its code. Storage cells are not held on Account; they
// live in State's shared composite-keyed Storage map (matching
// original_source's single flat `storage: HashMap<String, Vec<u8>>` scoped
// by address at the call site rather than by a nested per-account map).
type Account struct {
	Balance *uint256.Int

	// Code is the deployed program image for a contract account, set once
	// by CreateAccount and never mutated afterwards (original_source's
	// avm.rs create_account: "account already exists" guards redeployment).
	Code       []byte
	IsContract bool
}

// NewAccount returns a zero-balance, non-contract account.
func NewAccount() *Account {
	return &Account{Balance: new(uint256.Int)}
}

// Event is one fire_event payload, tagged with the address that fired it
// (spec.md §4.5 "fire-event").
type Event struct {
	Address Address
	Data    []byte
}
