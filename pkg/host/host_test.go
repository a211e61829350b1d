package host

import "testing"

func TestCompositeKeyFormat(t *testing.T) {
	got := CompositeKey("P", []byte{0xde, 0xad})
	want := "P:dead"
	if got != want {
		t.Fatalf("CompositeKey = %q, want %q", got, want)
	}
}

func TestMapStorageRoundTrip(t *testing.T) {
	s := NewMapStorage()
	if _, ok := s.Get("missing"); ok {
		t.Fatalf("expected a miss for an unset key")
	}
	s.Set("k", []byte("v"))
	got, ok := s.Get("k")
	if !ok || string(got) != "v" {
		t.Fatalf("got %q,%v want v,true", got, ok)
	}
}

func TestTransferMovesBalance(t *testing.T) {
	st := NewState(NewMapStorage())
	var a, b Address
	a[0] = 1
	b[0] = 2
	st.account(a).Balance.SetUint64(100)

	if !st.Transfer(a, b, 40) {
		t.Fatalf("transfer should succeed with sufficient balance")
	}
	if st.Balance(a) != 60 {
		t.Fatalf("from balance = %d, want 60", st.Balance(a))
	}
	if st.Balance(b) != 40 {
		t.Fatalf("to balance = %d, want 40", st.Balance(b))
	}
}

func TestTransferRefusesInsufficientBalance(t *testing.T) {
	st := NewState(NewMapStorage())
	var a, b Address
	a[0], b[0] = 1, 2
	if st.Transfer(a, b, 1) {
		t.Fatalf("transfer from a zero balance should fail")
	}
	if st.Balance(a) != 0 || st.Balance(b) != 0 {
		t.Fatalf("balances should be untouched after a refused transfer")
	}
}

func TestStorageGetSetRoundTripsThroughComposite(t *testing.T) {
	st := NewState(NewMapStorage())
	var a Address
	a[0] = 9
	st.StorageSet(a, "P", []byte{0x01}, []byte("value"))
	got, ok := st.StorageGet(a, "P", []byte{0x01})
	if !ok || string(got) != "value" {
		t.Fatalf("got %q,%v want value,true", got, ok)
	}
}

func TestFireEventAccumulates(t *testing.T) {
	st := NewState(NewMapStorage())
	var a Address
	a[0] = 3
	st.FireEvent(a, []byte("one"))
	st.FireEvent(a, []byte("two"))
	events := st.Events()
	if len(events) != 2 || string(events[0].Data) != "one" || string(events[1].Data) != "two" {
		t.Fatalf("events = %+v, want [one two]", events)
	}
}
