package peer

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightninglabs/btcpeer/btcwire"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/require"
)

const (
	// testTimeout bounds every blocking step of a test.
	testTimeout = 5 * time.Second

	testUserAgent = "/btcpeer-test:0.0.1/"
)

var testTime = time.Unix(1700000000, 0)

// fakeNode is the remote end of a session. It speaks the protocol through
// btcd's wire package so the session is checked against an independent
// codec.
type fakeNode struct {
	conn net.Conn
	net  wire.BitcoinNet
}

func (n *fakeNode) read() (wire.Message, error) {
	if err := n.conn.SetReadDeadline(time.Now().Add(testTimeout)); err != nil {
		return nil, err
	}

	_, msg, _, err := wire.ReadMessageN(n.conn, wire.ProtocolVersion, n.net)

	return msg, err
}

func (n *fakeNode) write(msg wire.Message) error {
	_, err := wire.WriteMessageN(n.conn, msg, wire.ProtocolVersion, n.net)
	return err
}

func (n *fakeNode) writeRaw(b []byte) error {
	_, err := n.conn.Write(b)
	return err
}

// expect reads the next message and checks its type.
func expect[T wire.Message](n *fakeNode) (T, error) {
	var zero T

	msg, err := n.read()
	if err != nil {
		return zero, err
	}

	typed, ok := msg.(T)
	if !ok {
		return zero, fmt.Errorf("got %T, want %T", msg, zero)
	}

	return typed, nil
}

// acceptHandshake plays the node side of a loose handshake, answering our
// version with reply.
func (n *fakeNode) acceptHandshake(reply wire.Message) (*wire.MsgVersion,
	error) {

	version, err := expect[*wire.MsgVersion](n)
	if err != nil {
		return nil, fmt.Errorf("version: %w", err)
	}
	if err := n.write(reply); err != nil {
		return nil, fmt.Errorf("reply: %w", err)
	}
	if _, err := expect[*wire.MsgVerAck](n); err != nil {
		return nil, fmt.Errorf("verack: %w", err)
	}

	return version, nil
}

// nodeVersion is the version message the fake node sends.
func nodeVersion() *wire.MsgVersion {
	me := wire.NewNetAddressIPPort(net.ParseIP("10.0.0.1"), 8333, 0)
	you := wire.NewNetAddressIPPort(net.ParseIP("10.0.0.2"), 8333, 0)

	v := wire.NewMsgVersion(me, you, 7, 850000)
	v.Services = wire.SFNodeNetwork

	return v
}

// goNode runs f against the node in a goroutine and delivers its error.
func goNode(n *fakeNode, f func(*fakeNode) error) <-chan error {
	errChan := make(chan error, 1)
	go func() {
		errChan <- f(n)
	}()

	return errChan
}

func waitErr(t *testing.T, errChan <-chan error) error {
	t.Helper()

	select {
	case err := <-errChan:
		return err

	case <-time.After(testTimeout):
		t.Fatalf("timeout waiting for result")
		return nil
	}
}

type testHarness struct {
	session *Session
	node    *fakeNode
	feed    *BlockFeed
	metrics *Metrics
}

// newTestHarness connects a session to a fake node over an in-memory pipe.
func newTestHarness(t *testing.T, modify func(*Config)) *testHarness {
	t.Helper()

	client, server := net.Pipe()

	feed := NewBlockFeed(DefaultFeedBufferSize)
	feed.Start()
	t.Cleanup(feed.Stop)

	metrics, err := NewMetrics(nil)
	require.NoError(t, err)

	cfg := &Config{
		Addr:        "pipe",
		ChainParams: &chaincfg.MainNetParams,
		UserAgent:   testUserAgent,
		StartHeight: 0,
		Relay:       true,
		Clock:       clock.NewTestClock(testTime),
		Dial: func(context.Context, string, string) (net.Conn, error) {
			return client, nil
		},
		Feed:    feed,
		Metrics: metrics,
	}
	if modify != nil {
		modify(cfg)
	}

	s, err := NewSession(cfg)
	require.NoError(t, err)
	require.NoError(t, s.Connect(context.Background()))

	t.Cleanup(func() {
		_ = s.Close()
		_ = server.Close()
	})

	return &testHarness{
		session: s,
		node:    &fakeNode{conn: server, net: wire.MainNet},
		feed:    feed,
		metrics: metrics,
	}
}

// handshake completes a loose handshake.
func (h *testHarness) handshake(t *testing.T) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	nodeErr := goNode(h.node, func(n *fakeNode) error {
		_, err := n.acceptHandshake(nodeVersion())
		return err
	})

	require.NoError(t, h.session.Handshake(ctx))
	require.NoError(t, waitErr(t, nodeErr))
	require.Equal(t, StateHandshakeComplete, h.session.State())
}

// run starts the dispatch loop and returns its result channel along with the
// cancel func of its context.
func (h *testHarness) run(t *testing.T) (<-chan error, context.CancelFunc) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	errChan := make(chan error, 1)
	go func() {
		errChan <- h.session.Run(ctx)
	}()

	return errChan, cancel
}

// frame builds a raw frame with an arbitrary command name and magic.
func frame(magic btcwire.Magic, cmd string, payload []byte,
	checksum [btcwire.ChecksumSize]byte) []byte {

	var name [btcwire.CommandSize]byte
	copy(name[:], cmd)

	b := make([]byte, 0, btcwire.MessageHeaderSize+len(payload))
	b = append(b, magic[:]...)
	b = append(b, name[:]...)
	b = append(b, byte(len(payload)), byte(len(payload)>>8),
		byte(len(payload)>>16), byte(len(payload)>>24))
	b = append(b, checksum[:]...)

	return append(b, payload...)
}
