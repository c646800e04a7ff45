package btcwire

import (
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// BlockHeaderSize is the encoded size of a block header.
const BlockHeaderSize = 80

// ErrTruncatedTransaction is returned when a block's transactions cannot be
// decoded. The whole block is discarded when this happens.
var ErrTruncatedTransaction = errors.New("truncated transaction")

// BlockHeader is the 80-byte header of a block. Hash fields keep the byte
// order they have on the wire.
type BlockHeader struct {
	Version    uint32
	PrevBlock  chainhash.Hash
	MerkleRoot chainhash.Hash
	Timestamp  uint32
	Bits       uint32
	Nonce      uint32
}

// Time returns the header timestamp as a time.Time.
func (h *BlockHeader) Time() time.Time {
	return time.Unix(int64(h.Timestamp), 0).UTC()
}

// DecodeBlockHeader reads an 80-byte block header from r.
func DecodeBlockHeader(r *Reader) (*BlockHeader, error) {
	h := &BlockHeader{}

	var err error
	if h.Version, err = r.ReadUint32(); err != nil {
		return nil, fmt.Errorf("version: %w", err)
	}
	if h.PrevBlock, err = r.ReadHash(); err != nil {
		return nil, fmt.Errorf("prev block: %w", err)
	}
	if h.MerkleRoot, err = r.ReadHash(); err != nil {
		return nil, fmt.Errorf("merkle root: %w", err)
	}
	if h.Timestamp, err = r.ReadUint32(); err != nil {
		return nil, fmt.Errorf("timestamp: %w", err)
	}
	if h.Bits, err = r.ReadUint32(); err != nil {
		return nil, fmt.Errorf("bits: %w", err)
	}
	if h.Nonce, err = r.ReadUint32(); err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}

	return h, nil
}

// BlockRecord is a decoded block together with its hash.
type BlockRecord struct {
	Header BlockHeader

	// Hash is the double SHA-256 of the encoded header in the byte order
	// the hash function produced it.
	Hash chainhash.Hash

	Transactions []Transaction
}

// TotalOutputValue sums the outputs of every transaction in the block.
func (b *BlockRecord) TotalOutputValue() btcutil.Amount {
	var total btcutil.Amount
	for i := range b.Transactions {
		total += b.Transactions[i].TotalValue()
	}

	return total
}

// DecodeBlock parses a block payload: the header, a varint transaction count
// and the transactions. Any failure, including a short header, is reported
// as ErrTruncatedTransaction and no partial block is returned.
func DecodeBlock(payload []byte) (*BlockRecord, error) {
	r := NewReader(payload)

	hdr, err := DecodeBlockHeader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: header: %w",
			ErrTruncatedTransaction, err)
	}

	count, err := r.ReadVarInt()
	if err != nil {
		return nil, fmt.Errorf("%w: tx count: %w",
			ErrTruncatedTransaction, err)
	}

	// The smallest transaction we can decode is ten bytes: version, two
	// zero counts and the lock time.
	if count > uint64(r.Len()/10) {
		return nil, fmt.Errorf("%w: %d transactions in %d bytes",
			ErrTruncatedTransaction, count, r.Len())
	}

	rec := &BlockRecord{
		Header:       *hdr,
		Hash:         chainhash.DoubleHashH(payload[:BlockHeaderSize]),
		Transactions: make([]Transaction, 0, count),
	}
	for i := uint64(0); i < count; i++ {
		tx, err := DecodeTransaction(r)
		if err != nil {
			return nil, fmt.Errorf("%w: tx %d/%d: %w",
				ErrTruncatedTransaction, i, count, err)
		}
		rec.Transactions = append(rec.Transactions, *tx)
	}

	return rec, nil
}
