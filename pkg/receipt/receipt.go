// Package receipt implements the per-transaction execution record spec.md
// §6 hands back to a caller once a bundle finishes: which transaction ran,
// the 5-byte result it produced, and the events it fired along the way.
//
// Grounded on original_source/crates/avm/src/receipt.rs's TransactionReceipt
// (tx/result/events fields, the Display dump format) with its ABI-aware
// pretty-printer left out: that printer walks an `EventAbi` registry type
// that never appeared anywhere in the retrieval pack, and without it there
// is nothing to decode an event's fields against, so String here renders
// events as a raw hex dump the way receipt.rs's own Display impl already
// does before handing off to print_events_pretty.
package receipt

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/avm-core/avm32/pkg/bundle"
	"github.com/avm-core/avm32/pkg/rlp"
)

// Receipt is one transaction's outcome within an executed bundle.
type Receipt struct {
	Tx     bundle.Transaction
	Result bundle.Result
	Events [][]byte
}

// New returns a Receipt for tx with no events recorded yet.
func New(tx bundle.Transaction, result bundle.Result) *Receipt {
	return &Receipt{Tx: tx, Result: result}
}

// AddEvent appends a fired event's raw payload, matching
// TransactionReceipt::add_event's append-only log.
func (r *Receipt) AddEvent(data []byte) {
	cp := make([]byte, len(data))
	copy(cp, data)
	r.Events = append(r.Events, cp)
}

// String renders the receipt the way receipt.rs's Display impl does: from,
// to, result, then each event as a space-separated hex dump.
func (r *Receipt) String() string {
	var b strings.Builder
	fmt.Fprintln(&b, "=== Transaction Receipt ===")
	fmt.Fprintf(&b, "From: %x\n", r.Tx.From)
	fmt.Fprintf(&b, "To: %x\n", r.Tx.To)
	fmt.Fprintf(&b, "Result: {success:%v error_code:%d}\n", r.Result.Success, r.Result.ErrorCode)
	fmt.Fprintln(&b, "Events:")
	for i, event := range r.Events {
		fmt.Fprintf(&b, "  [%d] %s\n", i, hexSpaced(event))
	}
	return b.String()
}

func hexSpaced(data []byte) string {
	parts := make([]string, len(data))
	for i, bt := range data {
		parts[i] = hex.EncodeToString([]byte{bt})
	}
	return strings.Join(parts, " ")
}

// Encode RLP-encodes the Receipt directly with pkg/rlp's reflect-based
// encoder (bundle.Transaction's named-uint8 Type and byte-array To/From are
// handled as-is), so there is no separate wire type. Where, or whether, the
// bytes are stored is left to the caller.
func (r *Receipt) Encode() ([]byte, error) {
	return rlp.EncodeToBytes(r)
}

// Decode parses a buffer produced by Encode back into a Receipt.
func Decode(data []byte) (*Receipt, error) {
	var r Receipt
	if err := rlp.DecodeBytes(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
