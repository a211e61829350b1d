package bundle

// FuncCall is one entry of the router call-encoding nested calls use
// (spec.md §6 "Router call-encoding"). Grounded on
// original_source/crates/program/src/router.rs's FuncCall/decode_calls,
// which is guest-side dispatch code (compiled into a program's own
// binary); this core only needs the wire format itself, since
// call_program's host side produces the bytes a callee's router later
// decodes for itself.
type FuncCall struct {
	Selector byte
	Args     []byte
}

// EncodeCalls packs calls into the flat `(selector:u8, arg_len:u8,
// args:arg_len bytes)*` form. Each call's argument length must fit in a
// byte; EncodeCalls silently truncates longer arg slices to their first 255
// bytes (the length is clamped to 0xff, not wrapped modulo 256), since this
// is a host-side encoder feeding a guest decoder that trusts the length byte.
func EncodeCalls(calls []FuncCall) []byte {
	size := 0
	for _, c := range calls {
		size += 2 + len(c.Args)
	}
	out := make([]byte, 0, size)
	for _, c := range calls {
		argLen := len(c.Args)
		if argLen > 0xff {
			argLen = 0xff
		}
		out = append(out, c.Selector, byte(argLen))
		out = append(out, c.Args[:argLen]...)
	}
	return out
}

// DecodeCalls parses a buffer produced by EncodeCalls (or a guest's own
// router encoder) back into a slice of FuncCall, per router.rs's
// decode_calls. An incomplete header or truncated argument run stops
// decoding and returns what was parsed so far along with ErrTruncated,
// rather than panicking the way the guest-side original does (vm_panic is
// a guest-only escape hatch; the host has no task to halt here).
func DecodeCalls(input []byte) ([]FuncCall, error) {
	var calls []FuncCall
	r := &reader{buf: input}
	for r.remaining() > 0 {
		if r.remaining() < 2 {
			return calls, ErrTruncated
		}
		selector, _ := r.u8()
		argLen, _ := r.u8()
		args, err := r.bytes(int(argLen))
		if err != nil {
			return calls, ErrTruncated
		}
		calls = append(calls, FuncCall{Selector: selector, Args: append([]byte(nil), args...)})
	}
	return calls, nil
}
