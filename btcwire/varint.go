package btcwire

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	// varIntPrefix16 marks a varint carried in the following two bytes.
	varIntPrefix16 = 0xfd

	// varIntPrefix32 marks a varint carried in the following four bytes.
	varIntPrefix32 = 0xfe

	// varIntPrefix64 marks a varint carried in the following eight bytes.
	varIntPrefix64 = 0xff

	// MaxVarIntSize is the largest number of bytes a varint occupies.
	MaxVarIntSize = 9
)

// DecodeVarInt decodes the variable length integer at the start of b. It
// returns the value along with the number of bytes consumed (1, 3, 5 or 9).
//
// Non-canonical encodings, such as a small value behind a 0xfd prefix, are
// accepted.
func DecodeVarInt(b []byte) (uint64, int, error) {
	if len(b) == 0 {
		return 0, 0, fmt.Errorf("%w: empty varint", ErrTruncatedInput)
	}

	var size int
	switch b[0] {
	case varIntPrefix16:
		size = 3
	case varIntPrefix32:
		size = 5
	case varIntPrefix64:
		size = 9
	default:
		return uint64(b[0]), 1, nil
	}

	if len(b) < size {
		return 0, 0, fmt.Errorf("%w: varint needs %d bytes, have %d",
			ErrTruncatedInput, size, len(b))
	}

	switch size {
	case 3:
		return uint64(binary.LittleEndian.Uint16(b[1:3])), size, nil
	case 5:
		return uint64(binary.LittleEndian.Uint32(b[1:5])), size, nil
	default:
		return binary.LittleEndian.Uint64(b[1:9]), size, nil
	}
}

// VarIntSerializeSize returns the number of bytes the canonical encoding of v
// takes.
func VarIntSerializeSize(v uint64) int {
	switch {
	case v < varIntPrefix16:
		return 1
	case v <= math.MaxUint16:
		return 3
	case v <= math.MaxUint32:
		return 5
	default:
		return 9
	}
}

// AppendVarInt appends the canonical encoding of v to dst.
func AppendVarInt(dst []byte, v uint64) []byte {
	switch VarIntSerializeSize(v) {
	case 1:
		return append(dst, byte(v))
	case 3:
		dst = append(dst, varIntPrefix16)
		return binary.LittleEndian.AppendUint16(dst, uint16(v))
	case 5:
		dst = append(dst, varIntPrefix32)
		return binary.LittleEndian.AppendUint32(dst, uint32(v))
	default:
		dst = append(dst, varIntPrefix64)
		return binary.LittleEndian.AppendUint64(dst, v)
	}
}
