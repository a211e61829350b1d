package bundle

import "encoding/binary"

// Bundle holds a set of transactions to be executed as a unit, per spec.md
// §6's "Transaction bundle encoding". Grounded on
// original_source/crates/types/src/transaction.rs's TransactionBundle.
type Bundle struct {
	Transactions []Transaction
}

// Encode flattens b into the exact little-endian buffer the bootloader
// copies into guest memory: `u32 tx_count` followed by, per transaction,
// `(u8 tx_type, [20]to, [20]from, u32 data_len, data, u64 value, u64 nonce)`.
func (b *Bundle) Encode() []byte {
	size := 4
	for _, tx := range b.Transactions {
		size += 1 + AddressLen*2 + 4 + len(tx.Data) + 8 + 8
	}
	out := make([]byte, size)
	binary.LittleEndian.PutUint32(out, uint32(len(b.Transactions)))
	off := 4
	for _, tx := range b.Transactions {
		out[off] = byte(tx.Type)
		off++
		copy(out[off:], tx.To[:])
		off += AddressLen
		copy(out[off:], tx.From[:])
		off += AddressLen
		binary.LittleEndian.PutUint32(out[off:], uint32(len(tx.Data)))
		off += 4
		copy(out[off:], tx.Data)
		off += len(tx.Data)
		binary.LittleEndian.PutUint64(out[off:], tx.Value)
		off += 8
		binary.LittleEndian.PutUint64(out[off:], tx.Nonce)
		off += 8
	}
	return out
}

// Decode parses a buffer produced by Encode (or an equivalent host-side
// encoder) back into a Bundle.
func Decode(data []byte) (*Bundle, error) {
	r := &reader{buf: data}
	count, err := r.u32()
	if err != nil {
		return nil, err
	}
	txs := make([]Transaction, 0, count)
	for i := uint32(0); i < count; i++ {
		typeByte, err := r.u8()
		if err != nil {
			return nil, err
		}
		txType := TransactionType(typeByte)
		if !txType.Valid() {
			return nil, ErrBadType
		}
		var to, from [AddressLen]byte
		toBytes, err := r.bytes(AddressLen)
		if err != nil {
			return nil, err
		}
		copy(to[:], toBytes)
		fromBytes, err := r.bytes(AddressLen)
		if err != nil {
			return nil, err
		}
		copy(from[:], fromBytes)
		dataLen, err := r.u32()
		if err != nil {
			return nil, err
		}
		txData, err := r.bytes(int(dataLen))
		if err != nil {
			return nil, err
		}
		value, err := r.u64()
		if err != nil {
			return nil, err
		}
		nonce, err := r.u64()
		if err != nil {
			return nil, err
		}
		txs = append(txs, Transaction{
			Type:  txType,
			To:    to,
			From:  from,
			Data:  append([]byte(nil), txData...),
			Value: value,
			Nonce: nonce,
		})
	}
	return &Bundle{Transactions: txs}, nil
}

// reader is a small little-endian cursor over a byte slice, shared by
// Decode and the router call-decoder below.
type reader struct {
	buf []byte
	pos int
}

func (r *reader) bytes(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.buf) {
		return nil, ErrTruncated
	}
	out := r.buf[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}

func (r *reader) u8() (byte, error) {
	b, err := r.bytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) u32() (uint32, error) {
	b, err := r.bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *reader) u64() (uint64, error) {
	b, err := r.bytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *reader) remaining() int { return len(r.buf) - r.pos }
