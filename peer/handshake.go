package peer

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/lightninglabs/btcpeer/btcwire"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// Handshake exchanges version messages with the peer. It sends our version,
// reads the peer's reply and answers with verack. In strict mode the reply
// must be a version and the peer's verack is awaited as well.
//
// On failure the session moves to StateFailed and a *HandshakeError is
// returned.
func (s *Session) Handshake(ctx context.Context) (err error) {
	if s.conn == nil {
		return &HandshakeError{State: s.State(), Err: ErrNotConnected}
	}
	if st := s.State(); st != StateConnected {
		return &HandshakeError{
			State: st,
			Err:   errors.New("handshake already attempted"),
		}
	}

	defer func() {
		s.cfg.Metrics.handshake(err)
		if err != nil {
			failed := &HandshakeError{State: s.State(), Err: err}
			s.setState(StateFailed)
			err = failed
		}
	}()

	deadline := time.Now().Add(s.cfg.HandshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := s.conn.SetDeadline(deadline); err != nil {
		return err
	}
	defer func() {
		_ = s.conn.SetDeadline(time.Time{})
	}()

	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetDeadline(aLongTimeAgo)
	})
	defer stop()

	version, err := s.newVersion()
	if err != nil {
		return err
	}
	payload, err := version.Encode()
	if err != nil {
		return err
	}

	log.Debugf("Sending version to %v: %v", s.conn.RemoteAddr(),
		spewClosure(version))

	if err := s.send(ctx, btcwire.CmdVersion, payload); err != nil {
		return s.handshakeIOErr(ctx, err)
	}
	s.setState(StateVersionSent)

	reply, err := s.readHandshakeMsg(ctx)
	if err != nil {
		return err
	}

	switch {
	case reply.Header.Command == btcwire.InVersion:
		s.recordPeerVersion(reply)

	case s.cfg.StrictHandshake:
		return fmt.Errorf("%w: got %q, want %q",
			ErrUnexpectedHandshakeMsg, reply.Header.Command,
			btcwire.InVersion)

	default:
		log.Debugf("Peer answered version with %q, continuing",
			reply.Header.Command)
	}

	if err := s.send(ctx, btcwire.CmdVerAck, nil); err != nil {
		return s.handshakeIOErr(ctx, err)
	}

	if s.cfg.StrictHandshake {
		if err := s.awaitVerAck(ctx); err != nil {
			return err
		}
	}

	s.setState(StateHandshakeComplete)

	log.Infof("Handshake with %v complete", s.conn.RemoteAddr())

	return nil
}

// handshakeIOErr prefers the context error when ctx ended the I/O.
func (s *Session) handshakeIOErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w", ctxErr, err)
	}

	return err
}

// readHandshakeMsg reads exactly one framed message.
func (s *Session) readHandshakeMsg(
	ctx context.Context) (*btcwire.Message, error) {

	msg, n, err := btcwire.ReadMessage(s.conn, s.magic)
	s.recordRead(n)
	if err != nil {
		return nil, s.handshakeIOErr(ctx, err)
	}

	s.messagesIn.Add(1)
	s.cfg.Metrics.messageReceived(msg.Header.Command)

	log.Debugf("Handshake received %q (%d bytes)", msg.Header.Command,
		msg.Header.Length)

	return msg, nil
}

// awaitVerAck reads until the peer's verack. Other messages are dropped.
func (s *Session) awaitVerAck(ctx context.Context) error {
	for {
		msg, err := s.readHandshakeMsg(ctx)
		if err != nil {
			return err
		}

		if msg.Header.Command == btcwire.InVerAck {
			return nil
		}

		log.Debugf("Ignoring %q while waiting for verack",
			msg.Header.Command)
	}
}

// recordPeerVersion decodes and keeps the peer's version. A version we cannot
// decode does not fail the handshake.
func (s *Session) recordPeerVersion(msg *btcwire.Message) {
	if err := msg.VerifyChecksum(); err != nil {
		log.Warnf("Peer version: %v", err)
		s.frameError(errKindChecksum)

		return
	}

	v, err := btcwire.DecodeVersion(msg.Payload)
	if err != nil {
		log.Warnf("Unable to decode peer version: %v", err)
		s.frameError(errKindDecode)

		return
	}

	log.Infof("Peer %v: version=%d agent=%q height=%d services=%#x",
		s.conn.RemoteAddr(), v.ProtocolVersion, v.UserAgent,
		v.StartHeight, v.Services)

	s.mu.Lock()
	s.peerVersion = fn.Some(*v)
	s.mu.Unlock()
}

// newVersion builds our version message for the current connection.
func (s *Session) newVersion() (*btcwire.VersionPayload, error) {
	nonce, err := randNonce()
	if err != nil {
		return nil, err
	}

	return &btcwire.VersionPayload{
		ProtocolVersion: s.cfg.ProtocolVersion,
		Services:        s.cfg.Services,
		Timestamp:       s.cfg.Clock.Now().Unix(),
		AddrRecv:        networkAddress(s.conn.RemoteAddr()),
		AddrFrom:        networkAddress(s.conn.LocalAddr()),
		Nonce:           nonce,
		UserAgent:       s.cfg.UserAgent,
		StartHeight:     s.cfg.StartHeight,
		Relay:           s.cfg.Relay,
	}, nil
}

// networkAddress converts addr for use in a version message. Addresses that
// are not IP based map to the unspecified address.
func networkAddress(addr net.Addr) btcwire.NetworkAddress {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return btcwire.NewNetworkAddress(tcp, 0)
	}

	ap, err := netip.ParseAddrPort(addr.String())
	if err != nil {
		return btcwire.NewNetworkAddress(nil, 0)
	}

	return btcwire.NewNetworkAddressFromAddrPort(ap, 0)
}

func randNonce() (uint64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("unable to read nonce: %w", err)
	}

	return binary.LittleEndian.Uint64(b[:]), nil
}
