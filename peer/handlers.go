package peer

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/wire"
	"github.com/lightninglabs/btcpeer/btcwire"
)

// pingNonceSize is the size of a ping payload.
const pingNonceSize = 8

// dispatch routes a verified message to its handler. Only errors that must
// end the session are returned.
func (s *Session) dispatch(ctx context.Context, msg *btcwire.Message) error {
	cmd := msg.Header.Command

	log.Tracef("Received %v (%d bytes) from %v", cmd, msg.Header.Length,
		s.conn.RemoteAddr())

	switch cmd {
	case btcwire.InPing:
		return s.handlePing(ctx, msg.Payload)

	case btcwire.InInv:
		return s.handleInv(ctx, msg.Payload)

	case btcwire.InGetHeaders:
		return s.handleGetHeaders(ctx, msg.Payload)

	case btcwire.InBlock:
		return s.handleBlock(ctx, msg.Payload)

	case btcwire.InVersion, btcwire.InVerAck:
		log.Debugf("Ignoring %v after handshake", cmd)

	default:
		log.Tracef("Ignoring unhandled command %q", cmd)
	}

	return nil
}

// handlePing echoes the ping nonce back in a pong.
func (s *Session) handlePing(ctx context.Context, payload []byte) error {
	if len(payload) < pingNonceSize {
		log.Warnf("Ping payload of %d bytes, want %d", len(payload),
			pingNonceSize)
		s.frameError(errKindDecode)

		return nil
	}

	return s.send(ctx, btcwire.CmdPong, payload[:pingNonceSize])
}

// handleInv requests every block announced in an inv. Transactions are not
// requested.
func (s *Session) handleInv(ctx context.Context, payload []byte) error {
	entries, err := btcwire.DecodeInv(payload)
	if err != nil {
		log.Warnf("Unable to decode inv: %v", err)
		s.frameError(errKindDecode)

		return nil
	}

	blocks := make([]btcwire.InvEntry, 0, len(entries))
	for _, e := range entries {
		if e.IsBlock() {
			blocks = append(blocks, e)
		}
	}

	log.Debugf("Inv with %d entries, %d blocks", len(entries),
		len(blocks))

	return s.requestData(ctx, blocks)
}

// handleGetHeaders asks the peer for every block in the locator.
func (s *Session) handleGetHeaders(ctx context.Context,
	payload []byte) error {

	msg, err := btcwire.DecodeGetHeaders(payload)
	if err != nil {
		log.Warnf("Unable to decode getheaders: %v", err)
		s.frameError(errKindDecode)

		return nil
	}

	blocks := make([]btcwire.InvEntry, 0, len(msg.Locators))
	for _, h := range msg.Locators {
		blocks = append(blocks, btcwire.InvEntry{
			Type: wire.InvTypeBlock,
			Hash: h,
		})
	}

	log.Debugf("Getheaders with %d locators, stop=%v", len(msg.Locators),
		msg.StopHash)

	return s.requestData(ctx, blocks)
}

// requestData sends getdata messages for entries.
func (s *Session) requestData(ctx context.Context,
	entries []btcwire.InvEntry) error {

	for _, payload := range btcwire.EncodeGetData(entries) {
		if err := s.send(ctx, btcwire.CmdGetData, payload); err != nil {
			return err
		}
	}

	return nil
}

// handleBlock decodes a block and publishes it to the feed. A block that
// fails to decode is dropped as a whole.
func (s *Session) handleBlock(ctx context.Context, payload []byte) error {
	rec, err := btcwire.DecodeBlock(payload)
	if err != nil {
		log.Warnf("Discarding block: %v", err)
		s.cfg.Metrics.blockDiscarded()
		s.frameError(errKindDecode)

		return nil
	}

	log.Infof("Received block %v with %d transactions", rec.Hash,
		len(rec.Transactions))
	log.Tracef("Block %v: %v", rec.Hash, spewClosure(rec.Header))

	if err := s.cfg.Feed.Publish(ctx, rec); err != nil {
		return fmt.Errorf("publish block %v: %w", rec.Hash, err)
	}

	s.blocks.Add(1)
	s.cfg.Metrics.blockDecoded()

	return nil
}
