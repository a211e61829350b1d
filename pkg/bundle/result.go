package bundle

import "encoding/binary"

// ResultSize is the fixed width of the external result buffer spec.md §6
// and §9 canonicalise: a single success byte plus a little-endian u32 error
// code. This supersedes original_source/crates/types/src/result.rs's
// 265-byte `Result{success, error_code, data_len, data:[u8;256]}` — spec.md
// §9 states outright that "the 5-byte external result" is canonical and
// that richer payloads are a host-level extension, so the larger struct is
// not reproduced here.
const ResultSize = 5

// Result is the value a program-call syscall writes back to the caller's
// heap (spec.md §4.5 "call-program").
type Result struct {
	Success   bool
	ErrorCode uint32
}

// Encode packs r into the fixed 5-byte wire form.
func (r Result) Encode() [ResultSize]byte {
	var out [ResultSize]byte
	if r.Success {
		out[0] = 1
	}
	binary.LittleEndian.PutUint32(out[1:], r.ErrorCode)
	return out
}

// DecodeResult parses a 5-byte buffer produced by Encode.
func DecodeResult(buf []byte) (Result, error) {
	if len(buf) < ResultSize {
		return Result{}, ErrTruncated
	}
	return Result{
		Success:   buf[0] != 0,
		ErrorCode: binary.LittleEndian.Uint32(buf[1:5]),
	}, nil
}
