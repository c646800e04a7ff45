package btcpeer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/lightninglabs/btcpeer/btcwire"
	"github.com/lightninglabs/btcpeer/build"
	"github.com/lightninglabs/btcpeer/lncfg"
	"github.com/lightninglabs/btcpeer/peer"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/ticker"
)

// peerManagerConfig holds the dependencies of a peerManager.
type peerManagerConfig struct {
	// Addr is the normalized host:port of the peer.
	Addr string

	// ChainParams is the active network.
	ChainParams *chaincfg.Params

	// Peer holds the session options.
	Peer *lncfg.Peer

	// Feed receives every decoded block.
	Feed *peer.BlockFeed

	// Metrics is optional.
	Metrics *peer.Metrics

	// Clock drives the reconnect backoff and the version timestamp.
	Clock clock.Clock

	// Dial overrides how sessions connect. Nil means TCP.
	Dial peer.DialFunc
}

// sessionTotals aggregates the counters of every session run so far.
type sessionTotals struct {
	// Sessions is the number of sessions that completed the handshake.
	Sessions uint64

	peer.Stats
}

// peerManager keeps one session to the configured peer alive, reconnecting
// with exponential backoff when it ends.
type peerManager struct {
	cfg *peerManagerConfig

	mu      sync.Mutex
	current *peer.Session
	totals  sessionTotals
}

// newPeerManager creates a peer manager.
func newPeerManager(cfg *peerManagerConfig) *peerManager {
	if cfg.Clock == nil {
		cfg.Clock = clock.NewDefaultClock()
	}

	return &peerManager{
		cfg: cfg,
	}
}

// sessionConfig builds the config of a fresh session.
func (m *peerManager) sessionConfig() *peer.Config {
	p := m.cfg.Peer

	var comments []string
	if p.UserAgentComment != "" {
		comments = append(comments, p.UserAgentComment)
	}

	return &peer.Config{
		Addr:             m.cfg.Addr,
		ChainParams:      m.cfg.ChainParams,
		ProtocolVersion:  p.ProtocolVersion,
		Services:         p.Services,
		UserAgent:        build.UserAgent(comments...),
		StartHeight:      p.StartHeight,
		Relay:            !p.NoRelay,
		StrictHandshake:  p.StrictHandshake,
		DialTimeout:      p.DialTimeout,
		HandshakeTimeout: p.HandshakeTimeout,
		ReadTimeout:      p.ReadTimeout,
		WriteTimeout:     p.WriteTimeout,
		Clock:            m.cfg.Clock,
		Dial:             m.cfg.Dial,
		Feed:             m.cfg.Feed,
		Metrics:          m.cfg.Metrics,
	}
}

// run keeps a session alive until ctx is done. It gives up after
// MaxReconnects consecutive sessions that failed before completing the
// handshake. A closed feed ends the manager immediately.
func (m *peerManager) run(ctx context.Context) error {
	var failures uint32
	for {
		established, err := m.runSession(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, peer.ErrFeedClosed) {
			return err
		}

		if established {
			failures = 0
		}
		failures++

		maxReconnects := m.cfg.Peer.MaxReconnects
		if maxReconnects > 0 && failures > maxReconnects {
			return fmt.Errorf("giving up on peer %v after %d "+
				"attempts: %w", m.cfg.Addr, failures, err)
		}

		backoff := m.cfg.Peer.Backoff(failures)
		btcpLog.Warnf("Session with %v ended: %v, reconnecting in %v",
			m.cfg.Addr, err, backoff)

		select {
		case <-m.cfg.Clock.TickAfter(backoff):
		case <-ctx.Done():
			return nil
		}
	}
}

// runSession dials, handshakes and dispatches until the session ends. The
// returned bool reports whether the handshake completed.
func (m *peerManager) runSession(ctx context.Context) (bool, error) {
	sess, err := peer.NewSession(m.sessionConfig())
	if err != nil {
		return false, err
	}

	if err := sess.Connect(ctx); err != nil {
		return false, err
	}

	m.setCurrent(sess)
	defer func() {
		_ = sess.Close()
		m.retire(sess)
	}()

	if err := sess.Handshake(ctx); err != nil {
		return false, err
	}

	sess.PeerVersion().WhenSome(func(v btcwire.VersionPayload) {
		btcpLog.Infof("Peer %v speaks protocol %d as %q at height %d",
			m.cfg.Addr, v.ProtocolVersion, v.UserAgent,
			v.StartHeight)
	})

	m.mu.Lock()
	m.totals.Sessions++
	m.mu.Unlock()

	return true, sess.Run(ctx)
}

func (m *peerManager) setCurrent(sess *peer.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.current = sess
}

// retire folds the counters of a finished session into the totals.
func (m *peerManager) retire(sess *peer.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totals.add(sess.Stats())
	if m.current == sess {
		m.current = nil
	}
}

func (t *sessionTotals) add(s peer.Stats) {
	t.MessagesIn += s.MessagesIn
	t.MessagesOut += s.MessagesOut
	t.BytesIn += s.BytesIn
	t.BytesOut += s.BytesOut
	t.Blocks += s.Blocks
	t.FrameErrors += s.FrameErrors
}

// stats returns the totals including the live session.
func (m *peerManager) stats() sessionTotals {
	m.mu.Lock()
	defer m.mu.Unlock()

	totals := m.totals
	if m.current != nil {
		totals.add(m.current.Stats())
	}

	return totals
}

// logStats logs the totals on every tick until ctx is done.
func (m *peerManager) logStats(ctx context.Context, t ticker.Ticker) error {
	t.Resume()
	defer t.Stop()

	for {
		select {
		case <-t.Ticks():
			s := m.stats()
			btcpLog.Infof("Sessions=%d, messages in=%d out=%d, "+
				"bytes in=%d out=%d, blocks=%d, frame errors=%d",
				s.Sessions, s.MessagesIn, s.MessagesOut,
				s.BytesIn, s.BytesOut, s.Blocks, s.FrameErrors)

		case <-ctx.Done():
			return nil
		}
	}
}
