package btcpeer

import (
	"context"
	"errors"
	"math"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightninglabs/btcpeer/lncfg"
	"github.com/lightninglabs/btcpeer/peer"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/stretchr/testify/require"
)

const testTimeout = 5 * time.Second

var errNoPeer = errors.New("no peer")

func testBlock() *wire.MsgBlock {
	hdr := wire.NewBlockHeader(
		1, &chainhash.Hash{}, &chainhash.Hash{0x3b, 0xa3, 0xed},
		0x1d00ffff, 2083236893,
	)
	hdr.Timestamp = time.Unix(1231006505, 0)

	tx := wire.NewMsgTx(1)
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Index: math.MaxUint32},
		SignatureScript:  []byte{0x04, 0xff, 0xff, 0x00, 0x1d},
		Sequence:         wire.MaxTxInSequenceNum,
	})
	tx.AddTxOut(wire.NewTxOut(5000000000, []byte{0x51}))

	blk := wire.NewMsgBlock(hdr)
	_ = blk.AddTransaction(tx)

	return blk
}

// serveOneBlock plays a remote node over conn: it answers the handshake,
// sends blk and hangs up.
func serveOneBlock(conn net.Conn, blk *wire.MsgBlock) error {
	defer conn.Close()

	err := conn.SetDeadline(time.Now().Add(testTimeout))
	if err != nil {
		return err
	}

	pver := wire.ProtocolVersion
	if _, _, err := wire.ReadMessage(conn, pver, wire.MainNet); err != nil {
		return err
	}

	me := wire.NewNetAddressIPPort(net.IPv4(10, 0, 0, 1), 8333, 1)
	you := wire.NewNetAddressIPPort(net.IPv4(10, 0, 0, 2), 8333, 1)
	version := wire.NewMsgVersion(me, you, 7, 850000)
	if err := wire.WriteMessage(conn, version, pver, wire.MainNet); err != nil {
		return err
	}

	msg, _, err := wire.ReadMessage(conn, pver, wire.MainNet)
	if err != nil {
		return err
	}
	if _, ok := msg.(*wire.MsgVerAck); !ok {
		return errors.New("expected verack")
	}

	return wire.WriteMessage(conn, blk, pver, wire.MainNet)
}

func newTestManager(t *testing.T, dial peer.DialFunc,
	maxReconnects uint32) (*peerManager, *peer.BlockFeed) {

	t.Helper()

	feed := peer.NewBlockFeed(peer.DefaultFeedBufferSize)
	feed.Start()
	t.Cleanup(feed.Stop)

	peerCfg := lncfg.DefaultPeer()
	peerCfg.MinBackoff = time.Millisecond
	peerCfg.MaxBackoff = 5 * time.Millisecond
	peerCfg.MaxReconnects = maxReconnects
	peerCfg.HandshakeTimeout = testTimeout

	mgr := newPeerManager(&peerManagerConfig{
		Addr:        "10.0.0.2:8333",
		ChainParams: &chaincfg.MainNetParams,
		Peer:        peerCfg,
		Feed:        feed,
		Dial:        dial,
	})

	return mgr, feed
}

// TestPeerManagerReconnects serves one block on the first connection and
// refuses every later dial. The manager publishes the block, retries and
// gives up once the reconnect budget is spent.
func TestPeerManagerReconnects(t *testing.T) {
	t.Parallel()

	blk := testBlock()
	nodeErr := make(chan error, 1)

	var dials atomic.Int32
	dial := func(ctx context.Context, network,
		addr string) (net.Conn, error) {

		if dials.Add(1) > 1 {
			return nil, errNoPeer
		}

		local, remote := net.Pipe()
		go func() {
			nodeErr <- serveOneBlock(remote, blk)
		}()

		return local, nil
	}

	mgr, feed := newTestManager(t, dial, 2)

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	err := mgr.run(ctx)
	require.ErrorIs(t, err, errNoPeer)
	require.ErrorIs(t, err, peer.ErrConnection)
	require.NoError(t, <-nodeErr)

	// One successful session followed by two failed redials.
	require.EqualValues(t, 3, dials.Load())

	rec, err := feed.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, blk.BlockHash(), rec.Hash)

	stats := mgr.stats()
	require.EqualValues(t, 1, stats.Sessions)
	require.EqualValues(t, 1, stats.Blocks)
	require.NotZero(t, stats.BytesIn)
	require.NotZero(t, stats.BytesOut)
}

// TestPeerManagerCancel checks that cancellation during backoff is a clean
// exit.
func TestPeerManagerCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())

	dial := func(context.Context, string, string) (net.Conn, error) {
		cancel()
		return nil, errNoPeer
	}

	mgr, _ := newTestManager(t, dial, 0)
	mgr.cfg.Peer.MinBackoff = time.Hour
	mgr.cfg.Peer.MaxBackoff = time.Hour

	require.NoError(t, mgr.run(ctx))
}

// TestPeerManagerFeedClosed checks that a closed feed ends the manager
// without reconnecting.
func TestPeerManagerFeedClosed(t *testing.T) {
	t.Parallel()

	blk := testBlock()

	var dials atomic.Int32
	var mgr *peerManager
	var feed *peer.BlockFeed
	dial := func(context.Context, string, string) (net.Conn, error) {
		dials.Add(1)

		// The consumer is gone before the first block arrives.
		feed.Stop()

		local, remote := net.Pipe()
		go func() {
			_ = serveOneBlock(remote, blk)
		}()

		return local, nil
	}
	mgr, feed = newTestManager(t, dial, 0)

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	require.ErrorIs(t, mgr.run(ctx), peer.ErrFeedClosed)
	require.EqualValues(t, 1, dials.Load())
}

// TestLogStats checks that the stats logger follows its ticker and exits
// on cancellation.
func TestLogStats(t *testing.T) {
	t.Parallel()

	mgr, _ := newTestManager(t, nil, 0)
	tick := ticker.NewForce(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- mgr.logStats(ctx, tick)
	}()

	select {
	case tick.Force <- time.Now():
	case <-time.After(testTimeout):
		t.Fatalf("stats logger did not take the tick")
	}

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(testTimeout):
		t.Fatalf("stats logger did not stop")
	}
}
