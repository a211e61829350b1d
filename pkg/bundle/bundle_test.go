package bundle

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	var to, from [AddressLen]byte
	to[0] = 0x11
	from[0] = 0x22
	b := &Bundle{Transactions: []Transaction{
		{Type: Transfer, To: to, From: from, Data: nil, Value: 100, Nonce: 1},
		{Type: ProgramCall, To: to, From: from, Data: []byte{1, 2, 3}, Value: 0, Nonce: 2},
	}}
	encoded := b.Encode()
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("decode: %s", err)
	}
	if len(decoded.Transactions) != 2 {
		t.Fatalf("got %d transactions, want 2", len(decoded.Transactions))
	}
	if decoded.Transactions[1].Type != ProgramCall {
		t.Fatalf("tx[1].Type = %d, want ProgramCall", decoded.Transactions[1].Type)
	}
	if string(decoded.Transactions[1].Data) != "\x01\x02\x03" {
		t.Fatalf("tx[1].Data = %v, want [1 2 3]", decoded.Transactions[1].Data)
	}
	if decoded.Transactions[0].Value != 100 || decoded.Transactions[0].Nonce != 1 {
		t.Fatalf("tx[0] value/nonce mismatch: %+v", decoded.Transactions[0])
	}
}

func TestDecodeRejectsBadType(t *testing.T) {
	raw := []byte{1, 0, 0, 0} // tx_count = 1
	raw = append(raw, 9)      // tx_type = 9, unrecognised
	if _, err := Decode(raw); err == nil {
		t.Fatalf("expected an error for an unrecognised transaction type")
	}
}

func TestDecodeRejectsTruncatedBuffer(t *testing.T) {
	raw := []byte{1, 0, 0, 0, 0} // tx_count = 1, tx_type = Transfer, then nothing
	if _, err := Decode(raw); err == nil {
		t.Fatalf("expected an error for a truncated buffer")
	}
}

func TestResultEncodeDecodeRoundTrip(t *testing.T) {
	r := Result{Success: true, ErrorCode: 0xdeadbeef}
	buf := r.Encode()
	got, err := DecodeResult(buf[:])
	if err != nil {
		t.Fatalf("decode: %s", err)
	}
	if got != r {
		t.Fatalf("got %+v, want %+v", got, r)
	}
}

func TestResultEncodeFailure(t *testing.T) {
	r := Result{Success: false, ErrorCode: 42}
	buf := r.Encode()
	if buf[0] != 0 {
		t.Fatalf("success byte = %d, want 0", buf[0])
	}
}

func TestRouterEncodeDecodeRoundTrip(t *testing.T) {
	calls := []FuncCall{
		{Selector: 0x01, Args: []byte{1, 2, 3, 4}},
		{Selector: 0x02, Args: nil},
	}
	encoded := EncodeCalls(calls)
	decoded, err := DecodeCalls(encoded)
	if err != nil {
		t.Fatalf("decode: %s", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("got %d calls, want 2", len(decoded))
	}
	if decoded[0].Selector != 0x01 || string(decoded[0].Args) != "\x01\x02\x03\x04" {
		t.Fatalf("call[0] mismatch: %+v", decoded[0])
	}
	if decoded[1].Selector != 0x02 || len(decoded[1].Args) != 0 {
		t.Fatalf("call[1] mismatch: %+v", decoded[1])
	}
}

func TestRouterDecodeTruncatedHeader(t *testing.T) {
	if _, err := DecodeCalls([]byte{0x01}); err == nil {
		t.Fatalf("expected an error for an incomplete header")
	}
}
