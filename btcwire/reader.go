package btcwire

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// ErrTruncatedInput is returned when a read needs more bytes than remain in
// the buffer being decoded.
var ErrTruncatedInput = errors.New("truncated input")

// Reader is a cursor over a byte slice. All reads advance the shared position
// and fail with ErrTruncatedInput, rather than panicking, when the buffer is
// exhausted.
type Reader struct {
	buf []byte
	pos int
}

// NewReader returns a Reader positioned at the start of b.
func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

// Len returns the number of unread bytes.
func (r *Reader) Len() int {
	return len(r.buf) - r.pos
}

// Pos returns the current offset into the underlying buffer.
func (r *Reader) Pos() int {
	return r.pos
}

// next returns a view of the next n bytes and advances the cursor.
func (r *Reader) next(n int) ([]byte, error) {
	if n < 0 || n > r.Len() {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, have %d",
			ErrTruncatedInput, n, r.pos, r.Len())
	}

	b := r.buf[r.pos : r.pos+n]
	r.pos += n

	return b, nil
}

// ReadBytes returns a copy of the next n bytes.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	b, err := r.next(n)
	if err != nil {
		return nil, err
	}

	out := make([]byte, n)
	copy(out, b)

	return out, nil
}

// ReadUint8 reads a single byte.
func (r *Reader) ReadUint8() (uint8, error) {
	b, err := r.next(1)
	if err != nil {
		return 0, err
	}

	return b[0], nil
}

// ReadUint16 reads a little-endian uint16.
func (r *Reader) ReadUint16() (uint16, error) {
	b, err := r.next(2)
	if err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint16(b), nil
}

// ReadUint32 reads a little-endian uint32.
func (r *Reader) ReadUint32() (uint32, error) {
	b, err := r.next(4)
	if err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint32(b), nil
}

// ReadUint64 reads a little-endian uint64.
func (r *Reader) ReadUint64() (uint64, error) {
	b, err := r.next(8)
	if err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint64(b), nil
}

// ReadHash reads 32 raw bytes in wire order.
func (r *Reader) ReadHash() (chainhash.Hash, error) {
	var h chainhash.Hash

	b, err := r.next(chainhash.HashSize)
	if err != nil {
		return h, err
	}
	copy(h[:], b)

	return h, nil
}

// ReadVarInt reads a variable length integer at the current position.
func (r *Reader) ReadVarInt() (uint64, error) {
	v, n, err := DecodeVarInt(r.buf[r.pos:])
	if err != nil {
		return 0, err
	}
	r.pos += n

	return v, nil
}

// ReadVarBytes reads a varint length followed by that many bytes. Lengths
// above maxLen are rejected before any allocation happens.
func (r *Reader) ReadVarBytes(maxLen uint64) ([]byte, error) {
	n, err := r.ReadVarInt()
	if err != nil {
		return nil, err
	}
	if n > maxLen {
		return nil, fmt.Errorf("%w: length %d exceeds max %d",
			ErrTruncatedInput, n, maxLen)
	}
	if n > uint64(r.Len()) {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, have %d",
			ErrTruncatedInput, n, r.pos, r.Len())
	}

	return r.ReadBytes(int(n))
}

// ReadBytes8 reads a single length byte followed by that many bytes.
func (r *Reader) ReadBytes8() ([]byte, error) {
	n, err := r.ReadUint8()
	if err != nil {
		return nil, err
	}

	return r.ReadBytes(int(n))
}
