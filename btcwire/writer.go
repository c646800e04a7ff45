package btcwire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// WriteBytes appends the given bytes to the provided buffer.
func WriteBytes(buf *bytes.Buffer, b []byte) error {
	_, err := buf.Write(b)
	return err
}

// WriteUint8 appends the uint8 to the provided buffer.
func WriteUint8(buf *bytes.Buffer, n uint8) error {
	return buf.WriteByte(n)
}

// WriteUint16 appends the uint16 to the provided buffer in little-endian
// order.
func WriteUint16(buf *bytes.Buffer, n uint16) error {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], n)
	_, err := buf.Write(b[:])
	return err
}

// WriteUint32 appends the uint32 to the provided buffer in little-endian
// order.
func WriteUint32(buf *bytes.Buffer, n uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], n)
	_, err := buf.Write(b[:])
	return err
}

// WriteUint64 appends the uint64 to the provided buffer in little-endian
// order.
func WriteUint64(buf *bytes.Buffer, n uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], n)
	_, err := buf.Write(b[:])
	return err
}

// WriteHash appends the raw hash bytes to the provided buffer.
func WriteHash(buf *bytes.Buffer, h chainhash.Hash) error {
	return WriteBytes(buf, h[:])
}

// WriteVarInt appends the canonical varint encoding of n.
func WriteVarInt(buf *bytes.Buffer, n uint64) error {
	return WriteBytes(buf, AppendVarInt(nil, n))
}

// WriteBytes8 appends b prefixed by a single length byte. It fails if b is
// longer than 255 bytes.
func WriteBytes8(buf *bytes.Buffer, b []byte) error {
	if len(b) > math.MaxUint8 {
		return fmt.Errorf("%d bytes do not fit a one byte length "+
			"prefix", len(b))
	}

	if err := WriteUint8(buf, uint8(len(b))); err != nil {
		return err
	}

	return WriteBytes(buf, b)
}
