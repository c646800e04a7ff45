package btcwire

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

const (
	// InvEntrySize is the encoded size of one inventory entry.
	InvEntrySize = 4 + chainhash.HashSize

	// MaxGetDataEntries is the largest number of entries placed in a
	// single getdata message. The count is written as one byte, and
	// values up to 0xfc keep that byte a valid varint.
	MaxGetDataEntries = 0xfc
)

// InvEntry names one object, either a transaction or a block, by its type and
// hash.
type InvEntry struct {
	Type wire.InvType
	Hash chainhash.Hash
}

// IsBlock reports whether the entry announces a block.
func (e InvEntry) IsBlock() bool {
	return e.Type == wire.InvTypeBlock
}

// String returns the entry as type:hash.
func (e InvEntry) String() string {
	return fmt.Sprintf("%v:%v", e.Type, e.Hash)
}

// DecodeInv parses an inv payload: a single count byte followed by that many
// 36-byte entries.
func DecodeInv(payload []byte) ([]InvEntry, error) {
	r := NewReader(payload)

	count, err := r.ReadUint8()
	if err != nil {
		return nil, fmt.Errorf("inv count: %w", err)
	}

	entries := make([]InvEntry, 0, count)
	for i := 0; i < int(count); i++ {
		entry, err := decodeInvEntry(r)
		if err != nil {
			return nil, fmt.Errorf("inv entry %d/%d: %w", i, count,
				err)
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

func decodeInvEntry(r *Reader) (InvEntry, error) {
	var e InvEntry

	typ, err := r.ReadUint32()
	if err != nil {
		return e, err
	}
	e.Type = wire.InvType(typ)

	e.Hash, err = r.ReadHash()

	return e, err
}

// EncodeGetData serializes entries into one or more getdata payloads of at
// most MaxGetDataEntries entries each. No payload is returned for an empty
// list.
func EncodeGetData(entries []InvEntry) [][]byte {
	var payloads [][]byte
	for len(entries) > 0 {
		n := min(len(entries), MaxGetDataEntries)
		chunk := entries[:n]
		entries = entries[n:]

		var buf bytes.Buffer
		buf.Grow(1 + n*InvEntrySize)

		// Writes to a bytes.Buffer only fail on allocation, which
		// panics instead.
		_ = WriteUint8(&buf, uint8(n))
		for _, e := range chunk {
			_ = WriteUint32(&buf, uint32(e.Type))
			_ = WriteHash(&buf, e.Hash)
		}

		payloads = append(payloads, buf.Bytes())
	}

	return payloads
}

// GetHeaders is the body of a getheaders message.
type GetHeaders struct {
	// ProtocolVersion is the protocol version of the sender.
	ProtocolVersion uint32

	// Locators are block hashes, newest first, describing the sender's
	// view of the chain.
	Locators []chainhash.Hash

	// StopHash is the last header hash requested, or zero for as many
	// as possible.
	StopHash chainhash.Hash
}

// DecodeGetHeaders parses a getheaders payload: a protocol version, a varint
// locator count, the locators and a stop hash.
func DecodeGetHeaders(payload []byte) (*GetHeaders, error) {
	r := NewReader(payload)
	msg := &GetHeaders{}

	var err error
	if msg.ProtocolVersion, err = r.ReadUint32(); err != nil {
		return nil, fmt.Errorf("protocol version: %w", err)
	}

	count, err := r.ReadVarInt()
	if err != nil {
		return nil, fmt.Errorf("locator count: %w", err)
	}

	// Each locator takes a full hash, plus the trailing stop hash.
	need := (count + 1) * chainhash.HashSize
	if count > uint64(r.Len()) || need > uint64(r.Len()) {
		return nil, fmt.Errorf("%w: %d locators in %d bytes",
			ErrTruncatedInput, count, r.Len())
	}

	msg.Locators = make([]chainhash.Hash, count)
	for i := range msg.Locators {
		if msg.Locators[i], err = r.ReadHash(); err != nil {
			return nil, fmt.Errorf("locator %d: %w", i, err)
		}
	}

	if msg.StopHash, err = r.ReadHash(); err != nil {
		return nil, fmt.Errorf("stop hash: %w", err)
	}

	return msg, nil
}
