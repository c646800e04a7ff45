package lncfg

import (
	"errors"
	"fmt"
	"time"
)

const (
	// DefaultMinBackoff is the shortest time we wait before redialing a
	// peer after the session ended.
	DefaultMinBackoff = time.Second

	// DefaultMaxBackoff is the upper bound of the exponential reconnect
	// backoff.
	DefaultMaxBackoff = time.Hour

	// DefaultProtocolVersion is the protocol version advertised in our
	// version message.
	DefaultProtocolVersion = 70015

	// DefaultServices is the services bitfield advertised in our version
	// message. Only NODE_NETWORK is set.
	DefaultServices = 1
)

// Peer holds the configuration options for the outbound peer session.
//
//nolint:lll
type Peer struct {
	DialTimeout      time.Duration `long:"dialtimeout" description:"How long to wait for the TCP connection to be established"`
	HandshakeTimeout time.Duration `long:"handshaketimeout" description:"How long to wait for the peer to answer our version message"`
	ReadTimeout      time.Duration `long:"readtimeout" description:"The peer is disconnected if nothing is read for this long"`
	WriteTimeout     time.Duration `long:"writetimeout" description:"The maximum time a single message write may take"`

	StrictHandshake bool `long:"stricthandshake" description:"Require a version reply followed by verack instead of accepting any reply to our version message"`

	ProtocolVersion  int32  `long:"protocolversion" description:"The protocol version advertised to the peer"`
	Services         uint64 `long:"services" description:"The service bits advertised to the peer"`
	UserAgentComment string `long:"uacomment" description:"Comment appended to the user agent advertised to the peer"`
	StartHeight      int32  `long:"startheight" description:"The best block height advertised to the peer"`
	NoRelay          bool   `long:"norelay" description:"Ask the peer not to relay loose transactions"`

	MinBackoff    time.Duration `long:"minbackoff" description:"Shortest backoff when reconnecting to the peer. Valid time units are {s, m, h}."`
	MaxBackoff    time.Duration `long:"maxbackoff" description:"Longest backoff when reconnecting to the peer. Valid time units are {s, m, h}."`
	MaxReconnects uint32        `long:"maxreconnects" description:"Give up after this many consecutive failed sessions (0 means retry forever)"`
}

// DefaultPeer returns the default peer session options.
func DefaultPeer() *Peer {
	return &Peer{
		DialTimeout:      10 * time.Second,
		HandshakeTimeout: 30 * time.Second,
		ReadTimeout:      10 * time.Minute,
		WriteTimeout:     30 * time.Second,
		ProtocolVersion:  DefaultProtocolVersion,
		Services:         DefaultServices,
		MinBackoff:       DefaultMinBackoff,
		MaxBackoff:       DefaultMaxBackoff,
	}
}

// Validate checks that the peer options are usable.
func (p *Peer) Validate() error {
	timeouts := map[string]time.Duration{
		"dialtimeout":      p.DialTimeout,
		"handshaketimeout": p.HandshakeTimeout,
		"readtimeout":      p.ReadTimeout,
		"writetimeout":     p.WriteTimeout,
		"minbackoff":       p.MinBackoff,
	}
	for name, d := range timeouts {
		if d <= 0 {
			return fmt.Errorf("peer.%s must be positive, got %v",
				name, d)
		}
	}

	if p.MaxBackoff < p.MinBackoff {
		return fmt.Errorf("peer.maxbackoff (%v) must not be below "+
			"peer.minbackoff (%v)", p.MaxBackoff, p.MinBackoff)
	}

	if p.ProtocolVersion <= 0 {
		return errors.New("peer.protocolversion must be set")
	}

	return nil
}

// Backoff returns the delay before reconnect attempt number attempt,
// doubling from MinBackoff and capped at MaxBackoff.
func (p *Peer) Backoff(attempt uint32) time.Duration {
	backoff := p.MinBackoff
	for i := uint32(1); i < attempt; i++ {
		backoff *= 2
		if backoff >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}

	if backoff > p.MaxBackoff {
		return p.MaxBackoff
	}

	return backoff
}
