package peer

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lightninglabs/btcpeer/btcwire"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// errSkipFrame tells the dispatch loop to drop the current frame and carry on
// with the next one.
var errSkipFrame = errors.New("skip frame")

// aLongTimeAgo is a deadline in the past used to unblock pending I/O.
var aLongTimeAgo = time.Unix(1, 0)

// Stats is a snapshot of a session's counters.
type Stats struct {
	MessagesIn  uint64
	MessagesOut uint64
	BytesIn     uint64
	BytesOut    uint64
	Blocks      uint64
	FrameErrors uint64
}

// Session is a single connection to a Bitcoin node. It owns the connection
// for its whole lifetime.
//
// NOTE: This structure MUST be initialized with NewSession.
type Session struct {
	cfg   *Config
	magic btcwire.Magic

	conn net.Conn

	state atomic.Uint32

	// peerVersion is the version message the peer sent during the
	// handshake, if it sent one.
	peerVersion fn.Option[btcwire.VersionPayload]
	mu          sync.Mutex

	messagesIn  atomic.Uint64
	messagesOut atomic.Uint64
	bytesIn     atomic.Uint64
	bytesOut    atomic.Uint64
	blocks      atomic.Uint64
	frameErrors atomic.Uint64

	closeOnce sync.Once
}

// NewSession validates cfg and returns a session that has not connected yet.
func NewSession(cfg *Config) (*Session, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid peer config: %w", err)
	}

	s := &Session{
		cfg:         cfg,
		magic:       btcwire.MagicFromNet(cfg.ChainParams.Net),
		peerVersion: fn.None[btcwire.VersionPayload](),
	}
	s.state.Store(uint32(StateConnected))

	return s, nil
}

// Connect dials the configured peer.
func (s *Session) Connect(ctx context.Context) error {
	if s.conn != nil {
		return fmt.Errorf("%w: already connected to %s", ErrConnection,
			s.cfg.Addr)
	}

	conn, err := s.cfg.Dial(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %w", ErrConnection, s.cfg.Addr,
			err)
	}
	s.conn = conn

	log.Infof("Connected to %v (local %v)", conn.RemoteAddr(),
		conn.LocalAddr())

	return nil
}

// Close drops the connection. It is safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.conn == nil {
			return
		}

		log.Debugf("Closing connection to %v", s.conn.RemoteAddr())
		err = s.conn.Close()
	})

	return err
}

// Addr returns the configured peer address.
func (s *Session) Addr() string {
	return s.cfg.Addr
}

// State returns the current handshake state.
func (s *Session) State() HandshakeState {
	return HandshakeState(s.state.Load())
}

func (s *Session) setState(st HandshakeState) {
	old := HandshakeState(s.state.Swap(uint32(st)))
	if old != st {
		log.Debugf("Handshake state %v -> %v", old, st)
	}
}

// PeerVersion returns the version message the peer sent during the
// handshake.
func (s *Session) PeerVersion() fn.Option[btcwire.VersionPayload] {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.peerVersion
}

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() Stats {
	return Stats{
		MessagesIn:  s.messagesIn.Load(),
		MessagesOut: s.messagesOut.Load(),
		BytesIn:     s.bytesIn.Load(),
		BytesOut:    s.bytesOut.Load(),
		Blocks:      s.blocks.Load(),
		FrameErrors: s.frameErrors.Load(),
	}
}

// Run is the dispatch loop. It reads one frame per iteration and routes it
// to its handler until ctx is done or a fatal error occurs. Malformed frames
// are skipped; the connection stays up.
func (s *Session) Run(ctx context.Context) error {
	if s.State() != StateHandshakeComplete {
		return fmt.Errorf("%w: state %v", ErrHandshakeIncomplete,
			s.State())
	}

	// Unblock any pending read or write once ctx is done.
	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetDeadline(aLongTimeAgo)
	})
	defer stop()

	log.Infof("Dispatching messages from %v", s.conn.RemoteAddr())

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := s.readFrame(ctx)
		switch {
		case errors.Is(err, errSkipFrame):
			continue

		case err != nil:
			return err
		}

		if err := s.dispatch(ctx, msg); err != nil {
			return err
		}
	}
}

// frameError records a skipped frame.
func (s *Session) frameError(kind frameErrorKind) {
	s.frameErrors.Add(1)
	s.cfg.Metrics.frameError(kind)
}

// readFrame reads and validates the next frame. It returns errSkipFrame for
// anomalies that leave the connection usable.
func (s *Session) readFrame(ctx context.Context) (*btcwire.Message, error) {
	err := s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	if err != nil {
		return nil, fmt.Errorf("%w: set read deadline: %w",
			ErrConnection, err)
	}

	// A cancel that raced the deadline above is caught here.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var hdrBytes [btcwire.MessageHeaderSize]byte
	n, err := io.ReadFull(s.conn, hdrBytes[:])
	s.recordRead(n)
	switch {
	case err == nil:

	case ctx.Err() != nil:
		return nil, ctx.Err()

	// Some bytes arrived but not a whole header. The stream ended
	// mid-header, which the next read will report.
	case errors.Is(err, io.ErrUnexpectedEOF):
		log.Debugf("Partial header of %d bytes from %v", n,
			s.conn.RemoteAddr())
		s.frameError(errKindTruncatedHeader)

		return nil, errSkipFrame

	default:
		return nil, fmt.Errorf("%w: read header: %w", ErrConnection,
			err)
	}

	hdr, err := btcwire.ParseHeader(hdrBytes[:], s.magic)
	switch {
	case errors.Is(err, btcwire.ErrBadMagic):
		log.Warnf("Skipping frame: %v", err)
		s.frameError(errKindBadMagic)

		return nil, errSkipFrame

	case errors.Is(err, btcwire.ErrMalformedCommand):
		log.Warnf("Skipping frame: %v", err)
		s.frameError(errKindMalformedCommand)

		// The length field is still usable, so stay framed by
		// consuming the payload.
		length := binary.LittleEndian.Uint32(hdrBytes[16:20])
		if err := s.discard(length); err != nil {
			return nil, err
		}

		return nil, errSkipFrame

	case err != nil:
		return nil, fmt.Errorf("%w: parse header: %w", ErrConnection,
			err)
	}

	if hdr.Length > btcwire.MaxPayloadSize {
		return nil, fmt.Errorf("%w: %s announced %d bytes: %w",
			ErrConnection, hdr.Command, hdr.Length,
			btcwire.ErrPayloadTooLarge)
	}

	payload := make([]byte, hdr.Length)
	n, err = io.ReadFull(s.conn, payload)
	s.recordRead(n)
	switch {
	case err == nil:

	case ctx.Err() != nil:
		return nil, ctx.Err()

	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		log.Warnf("Truncated %s payload: got %d of %d bytes",
			hdr.Command, n, hdr.Length)
		s.frameError(errKindTruncatedPayload)

		return nil, errSkipFrame

	default:
		return nil, fmt.Errorf("%w: read %s payload: %w",
			ErrConnection, hdr.Command, err)
	}

	msg := &btcwire.Message{Header: *hdr, Payload: payload}
	if err := msg.VerifyChecksum(); err != nil {
		log.Warnf("Dropping frame: %v", err)
		s.frameError(errKindChecksum)

		return nil, errSkipFrame
	}

	s.messagesIn.Add(1)
	s.cfg.Metrics.messageReceived(hdr.Command)

	return msg, nil
}

// discard reads and drops length payload bytes.
func (s *Session) discard(length uint32) error {
	if length > btcwire.MaxPayloadSize {
		return fmt.Errorf("%w: discarding %d bytes: %w", ErrConnection,
			length, btcwire.ErrPayloadTooLarge)
	}

	n, err := io.CopyN(io.Discard, s.conn, int64(length))
	s.recordRead(int(n))
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: discard payload: %w", ErrConnection,
			err)
	}

	return nil
}

func (s *Session) recordRead(n int) {
	if n <= 0 {
		return
	}
	s.bytesIn.Add(uint64(n))
	s.cfg.Metrics.read(n)
}

// send frames payload under cmd and writes it within the write timeout.
func (s *Session) send(ctx context.Context, cmd btcwire.Command,
	payload []byte) error {

	if s.conn == nil {
		return ErrNotConnected
	}

	err := s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	if err != nil {
		return fmt.Errorf("%w: set write deadline: %w", ErrConnection,
			err)
	}

	// The deadline above replaces the one set on cancellation, so ctx is
	// checked only after it is in place.
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("send %v: %w", cmd, err)
	}

	n, err := btcwire.WriteMessage(s.conn, s.magic, cmd, payload)
	if n > 0 {
		s.bytesOut.Add(uint64(n))
		s.cfg.Metrics.written(n)
	}
	if err != nil {
		return fmt.Errorf("%w: write %v: %w", ErrConnection, cmd, err)
	}

	s.messagesOut.Add(1)
	s.cfg.Metrics.messageSent(cmd)

	log.Tracef("Sent %v (%d bytes) to %v", cmd, n, s.conn.RemoteAddr())

	return nil
}
