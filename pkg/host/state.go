package host

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/avm-core/avm32/pkg/log"
	"github.com/avm-core/avm32/pkg/metrics"
)

// ErrAccountExists is returned by CreateAccount when addr already has code
// deployed, matching original_source's "account already exists" panic —
// turned into a normal error here since this host has no catch_unwind
// boundary to recover one transaction's panic from (spec.md's "failure
// modes" paragraph asks for explicit errors at component boundaries).
var ErrAccountExists = errors.New("host: account already exists")

// ErrCodeTooLarge is returned when CreateAccount's code image exceeds limit.
var ErrCodeTooLarge = errors.New("host: code image exceeds size limit")

// State is the host-state half of the Host capability: accounts, balances
// and the composite-keyed Storage map (spec.md §3). It does not implement
// CallProgram/ReadPage on its own — those require driving a nested CPU/
// kernel run, which would make pkg/host depend on pkg/cpu and pkg/kernel
// for no benefit to State's own job. pkg/syscall's Executor embeds *State
// and supplies CallProgram/ReadPage itself, so the combined type satisfies
// Host without State importing anything above it.
type State struct {
	accounts map[Address]*Account
	storage  Storage
	events   []Event
	log      *log.Logger
}

// NewState returns a State backed by storage (use NewMapStorage() for an
// in-memory default, or an *LevelDBStorage for persistence).
func NewState(storage Storage) *State {
	return &State{
		accounts: make(map[Address]*Account),
		storage:  storage,
		log:      log.Default().Module("host"),
	}
}

func (s *State) account(addr Address) *Account {
	acc, ok := s.accounts[addr]
	if !ok {
		acc = NewAccount()
		s.accounts[addr] = acc
	}
	return acc
}

// Events returns every event fired so far, in fire order.
func (s *State) Events() []Event { return s.events }

func (s *State) StorageGet(addr Address, domain string, key []byte) ([]byte, bool) {
	metrics.StorageGets.Inc()
	v, ok := s.storage.Get(CompositeKey(domain, key))
	return v, ok
}

func (s *State) StorageSet(addr Address, domain string, key, value []byte) {
	metrics.StorageSets.Inc()
	s.storage.Set(CompositeKey(domain, key), value)
}

// Transfer moves value from from's balance to to's, refusing (returning
// false, leaving both balances untouched) on insufficient funds — mirrors
// original_source's `host.transfer(to, value) -> bool` exactly, with an
// explicit `from` added since this core has no other notion of "the
// currently executing address" to supply it implicitly.
func (s *State) Transfer(from, to Address, value uint64) bool {
	amount := new(uint256.Int).SetUint64(value)
	fromAcc := s.account(from)
	if fromAcc.Balance.Lt(amount) {
		return false
	}
	fromAcc.Balance.Sub(fromAcc.Balance, amount)
	s.account(to).Balance.Add(s.account(to).Balance, amount)
	return true
}

// Balance returns addr's balance narrowed to u64, matching the original's
// `bal.to_le_bytes()` 8-byte wire form (spec.md §4.5 "balance").
func (s *State) Balance(addr Address) uint64 {
	return s.account(addr).Balance.Uint64()
}

// SetBalance directly assigns addr's balance, bypassing Transfer's
// insufficient-funds check. Used for genesis-style seeding where value is
// credited rather than moved; the bundle.TransactionType.Transfer
// transaction goes through Transfer, not through here.
func (s *State) SetBalance(addr Address, value uint64) {
	s.account(addr).Balance.SetUint64(value)
}

// CreateAccount deploys code at addr, refusing if addr is already in use or
// code exceeds limit (spec.md's ProgramCall transaction's prerequisite).
// Grounded on original_source/crates/avm/src/avm.rs's create_account.
func (s *State) CreateAccount(addr Address, code []byte, sizeLimit int) error {
	if acc, ok := s.accounts[addr]; ok && acc.IsContract {
		return fmt.Errorf("%w: addr=%x", ErrAccountExists, addr)
	}
	if len(code) > sizeLimit {
		return fmt.Errorf("%w: len=%d max=%d", ErrCodeTooLarge, len(code), sizeLimit)
	}
	acc := s.account(addr)
	cp := make([]byte, len(code))
	copy(cp, code)
	acc.Code = cp
	acc.IsContract = len(code) > 0
	return nil
}

// CodeOf returns the deployed code for addr, if any (spec.md's ProgramCall
// "destination must be a contract" precondition).
func (s *State) CodeOf(addr Address) ([]byte, bool) {
	acc, ok := s.accounts[addr]
	if !ok || !acc.IsContract {
		return nil, false
	}
	return acc.Code, true
}

func (s *State) FireEvent(addr Address, data []byte) {
	metrics.EventsFired.Inc()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.events = append(s.events, Event{Address: addr, Data: cp})
}

func (s *State) Log(line string) {
	s.log.Info(line)
}
