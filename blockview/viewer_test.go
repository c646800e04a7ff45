package blockview

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightninglabs/btcpeer/btcwire"
	"github.com/stretchr/testify/require"
)

var errSourceDone = errors.New("source done")

// sliceSource yields its blocks and then errSourceDone.
type sliceSource struct {
	blocks []*btcwire.BlockRecord
}

func (s *sliceSource) Next(ctx context.Context) (*btcwire.BlockRecord,
	error) {

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(s.blocks) == 0 {
		return nil, errSourceDone
	}

	rec := s.blocks[0]
	s.blocks = s.blocks[1:]

	return rec, nil
}

func testRecord(seed byte, numTxns int) *btcwire.BlockRecord {
	rec := &btcwire.BlockRecord{
		Header: btcwire.BlockHeader{
			Version:   1,
			Timestamp: 1231006505,
		},
		Hash: chainhash.DoubleHashH([]byte{seed}),
	}

	for i := 0; i < numTxns; i++ {
		rec.Transactions = append(rec.Transactions, btcwire.Transaction{
			Version: 1,
			Inputs:  []btcwire.TxInput{{Sequence: 0xffffffff}},
			Outputs: []btcwire.TxOutput{
				{Value: 5000000000, PkScript: []byte{0x51}},
			},
			LockTime: uint32(i),
		})
	}

	return rec
}

// TestRenderTransactions checks the transaction table columns and the row
// cap.
func TestRenderTransactions(t *testing.T) {
	t.Parallel()

	v := New(Config{Out: &bytes.Buffer{}, MaxTxns: 2})
	rec := testRecord(1, 3)

	out := v.RenderTransactions(rec)
	require.Contains(t, out, rec.Hash.String())
	require.Contains(t, out, "50 BTC")
	require.Contains(t, strings.ToUpper(out), "LOCKTIME")
	require.Contains(t, strings.ToUpper(out), "1 MORE")

	// Only two of the three transactions are listed.
	require.Equal(t, 2, strings.Count(out, "50 BTC"))
}

// TestRunRendersBlocksNewestFirst feeds two blocks through Run.
func TestRunRendersBlocksNewestFirst(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	v := New(Config{Out: &buf, History: 1})

	first, second := testRecord(1, 1), testRecord(2, 2)
	src := &sliceSource{blocks: []*btcwire.BlockRecord{first, second}}

	err := v.Run(context.Background(), src)
	require.ErrorIs(t, err, errSourceDone)

	out := buf.String()
	require.Contains(t, out, "2009-01-03 18:15:05")
	require.Contains(t, out, "100 BTC")

	// With a history of one, the last block table only holds the newest
	// block.
	last := v.RenderBlocks()
	require.Contains(t, last, second.Hash.String())
	require.NotContains(t, last, first.Hash.String())
}

// TestRunCancelled checks that cancellation is a clean exit.
func TestRunCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	v := New(Config{Out: &bytes.Buffer{}})
	require.NoError(t, v.Run(ctx, &sliceSource{}))
}

// failWriter fails every write.
type failWriter struct{}

func (failWriter) Write([]byte) (int, error) {
	return 0, errors.New("closed")
}

// TestShowWriteError checks that output errors end the viewer.
func TestShowWriteError(t *testing.T) {
	t.Parallel()

	v := New(Config{Out: failWriter{}})
	src := &sliceSource{
		blocks: []*btcwire.BlockRecord{testRecord(1, 1)},
	}
	require.Error(t, v.Run(context.Background(), src))
}
