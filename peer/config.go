package peer

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/lightninglabs/btcpeer/btcwire"
	"github.com/lightningnetwork/lnd/clock"
)

const (
	// DefaultDialTimeout bounds the TCP connect.
	DefaultDialTimeout = 10 * time.Second

	// DefaultHandshakeTimeout bounds the whole version/verack exchange.
	DefaultHandshakeTimeout = 30 * time.Second

	// DefaultReadTimeout is how long the dispatch loop waits for the next
	// header before it considers the peer stalled.
	DefaultReadTimeout = 10 * time.Minute

	// DefaultWriteTimeout bounds every write to the peer.
	DefaultWriteTimeout = 30 * time.Second
)

// DialFunc opens a connection to the given address.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn,
	error)

// Config holds everything a Session needs. Zero durations are replaced by
// their defaults.
type Config struct {
	// Addr is the host:port of the peer.
	Addr string

	// ChainParams selects the network, and with it the message magic.
	ChainParams *chaincfg.Params

	// ProtocolVersion is advertised in our version message.
	ProtocolVersion int32

	// Services is the service bitfield we advertise.
	Services uint64

	// UserAgent is sent in our version message.
	UserAgent string

	// StartHeight is the best height we claim to know.
	StartHeight int32

	// Relay asks the peer to announce loose transactions to us.
	Relay bool

	// StrictHandshake requires the peer to answer with version and then
	// verack. When false any well-framed reply completes the handshake.
	StrictHandshake bool

	// DialTimeout bounds the TCP connect.
	DialTimeout time.Duration

	// HandshakeTimeout bounds the handshake.
	HandshakeTimeout time.Duration

	// ReadTimeout is the idle timeout between messages.
	ReadTimeout time.Duration

	// WriteTimeout bounds each write.
	WriteTimeout time.Duration

	// Clock supplies the timestamp of our version message.
	Clock clock.Clock

	// Dial overrides how the connection is made. It defaults to a
	// net.Dialer using DialTimeout.
	Dial DialFunc

	// Feed receives every decoded block.
	Feed *BlockFeed

	// Metrics is optional.
	Metrics *Metrics
}

// validate fills in defaults and rejects unusable configs.
func (c *Config) validate() error {
	switch {
	case c.Addr == "":
		return errors.New("peer address required")

	case c.ChainParams == nil:
		return errors.New("chain params required")

	case c.Feed == nil:
		return errors.New("block feed required")

	case len(c.UserAgent) > btcwire.MaxUserAgentLen:
		return btcwire.ErrUserAgentTooLong
	}

	if c.ProtocolVersion == 0 {
		c.ProtocolVersion = btcwire.ProtocolVersion
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.Clock == nil {
		c.Clock = clock.NewDefaultClock()
	}
	if c.Dial == nil {
		d := &net.Dialer{Timeout: c.DialTimeout}
		c.Dial = d.DialContext
	}

	return nil
}
