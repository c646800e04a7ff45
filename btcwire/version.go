package btcwire

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/wire"
)

const (
	// MaxUserAgentLen is the longest user agent we will send. It is the
	// largest length whose varint prefix is a single byte.
	MaxUserAgentLen = 0xfc

	// ProtocolVersion is the protocol version advertised by default.
	ProtocolVersion = 70015
)

// ErrUserAgentTooLong is returned when encoding a version payload whose user
// agent exceeds MaxUserAgentLen.
var ErrUserAgentTooLong = errors.New("user agent too long")

// VersionPayload is the body of a version message.
type VersionPayload struct {
	// ProtocolVersion is the highest protocol version the sender speaks.
	ProtocolVersion int32

	// Services is the service bitfield of the sender.
	Services uint64

	// Timestamp is the sender's current Unix time in seconds.
	Timestamp int64

	// AddrRecv is the address of the node receiving the message.
	AddrRecv NetworkAddress

	// AddrFrom is the address of the sender.
	AddrFrom NetworkAddress

	// Nonce is a random value used to detect connections to self.
	Nonce uint64

	// UserAgent identifies the sender's software.
	UserAgent string

	// StartHeight is the best block height known to the sender.
	StartHeight int32

	// Relay asks the receiver to announce loose transactions.
	Relay bool
}

// Encode serializes the payload. The user agent length is written as a
// varint, which is a single byte for every length below 0xfd.
func (v *VersionPayload) Encode() ([]byte, error) {
	if len(v.UserAgent) > MaxUserAgentLen {
		return nil, fmt.Errorf("%w: %d bytes, max %d",
			ErrUserAgentTooLong, len(v.UserAgent), MaxUserAgentLen)
	}

	var buf bytes.Buffer
	buf.Grow(86 + len(v.UserAgent))

	if err := WriteUint32(&buf, uint32(v.ProtocolVersion)); err != nil {
		return nil, err
	}
	if err := WriteUint64(&buf, v.Services); err != nil {
		return nil, err
	}
	if err := WriteUint64(&buf, uint64(v.Timestamp)); err != nil {
		return nil, err
	}
	if err := v.AddrRecv.Encode(&buf); err != nil {
		return nil, err
	}
	if err := v.AddrFrom.Encode(&buf); err != nil {
		return nil, err
	}
	if err := WriteUint64(&buf, v.Nonce); err != nil {
		return nil, err
	}
	err := WriteVarInt(&buf, uint64(len(v.UserAgent)))
	if err != nil {
		return nil, err
	}
	if err := WriteBytes(&buf, []byte(v.UserAgent)); err != nil {
		return nil, err
	}
	if err := WriteUint32(&buf, uint32(v.StartHeight)); err != nil {
		return nil, err
	}

	var relay uint8
	if v.Relay {
		relay = 1
	}
	if err := WriteUint8(&buf, relay); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// DecodeVersion parses a version payload received from a peer. The relay
// flag is optional and defaults to true when absent.
func DecodeVersion(payload []byte) (*VersionPayload, error) {
	r := NewReader(payload)
	v := &VersionPayload{Relay: true}

	pver, err := r.ReadUint32()
	if err != nil {
		return nil, fmt.Errorf("protocol version: %w", err)
	}
	v.ProtocolVersion = int32(pver)

	if v.Services, err = r.ReadUint64(); err != nil {
		return nil, fmt.Errorf("services: %w", err)
	}

	ts, err := r.ReadUint64()
	if err != nil {
		return nil, fmt.Errorf("timestamp: %w", err)
	}
	v.Timestamp = int64(ts)

	if v.AddrRecv, err = DecodeNetworkAddress(r); err != nil {
		return nil, fmt.Errorf("addr_recv: %w", err)
	}

	// Everything past addr_recv was optional in early protocol versions,
	// which modern peers no longer speak.
	if v.AddrFrom, err = DecodeNetworkAddress(r); err != nil {
		return nil, fmt.Errorf("addr_from: %w", err)
	}
	if v.Nonce, err = r.ReadUint64(); err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}

	ua, err := r.ReadVarBytes(wire.MaxUserAgentLen)
	if err != nil {
		return nil, fmt.Errorf("user agent: %w", err)
	}
	v.UserAgent = string(ua)

	height, err := r.ReadUint32()
	if err != nil {
		return nil, fmt.Errorf("start height: %w", err)
	}
	v.StartHeight = int32(height)

	if r.Len() > 0 {
		relay, err := r.ReadUint8()
		if err != nil {
			return nil, fmt.Errorf("relay: %w", err)
		}
		v.Relay = relay != 0
	}

	return v, nil
}
