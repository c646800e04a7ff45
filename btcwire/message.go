package btcwire

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

const (
	// MessageHeaderSize is the number of bytes in a message header:
	// magic (4) + command (12) + payload length (4) + checksum (4).
	MessageHeaderSize = 24

	// ChecksumSize is the length of the payload checksum.
	ChecksumSize = 4

	// MaxPayloadSize is the largest payload a frame may announce. Anything
	// bigger means the stream is no longer framed correctly.
	MaxPayloadSize = wire.MaxMessagePayload
)

var (
	// ErrBadMagic is returned when a header does not start with the
	// expected network magic.
	ErrBadMagic = errors.New("bad network magic")

	// ErrMalformedCommand is returned when the command field of a header
	// is not a NUL padded printable ASCII name.
	ErrMalformedCommand = errors.New("malformed command")

	// ErrChecksumMismatch is returned when a payload does not hash to the
	// checksum carried in its header.
	ErrChecksumMismatch = errors.New("checksum mismatch")

	// ErrPayloadTooLarge is returned when a header announces a payload
	// above MaxPayloadSize.
	ErrPayloadTooLarge = errors.New("payload too large")
)

// Magic is the four byte network identifier that starts every message.
type Magic [4]byte

// MainNetMagic is the magic of the main Bitcoin network.
var MainNetMagic = MagicFromNet(wire.MainNet)

// MagicFromNet returns the on-wire magic bytes for the given network.
func MagicFromNet(net wire.BitcoinNet) Magic {
	var m Magic
	binary.LittleEndian.PutUint32(m[:], uint32(net))

	return m
}

// String returns the magic as hex.
func (m Magic) String() string {
	return hex.EncodeToString(m[:])
}

// MessageHeader is the decoded 24-byte prefix of a message.
type MessageHeader struct {
	// Magic identifies the network the message belongs to.
	Magic Magic

	// Command is the name of the message with its padding removed.
	Command InboundCommand

	// Length is the number of payload bytes following the header.
	Length uint32

	// Checksum is the first four bytes of the payload's double SHA-256.
	Checksum [ChecksumSize]byte
}

// Message is a framed message with its payload.
type Message struct {
	Header  MessageHeader
	Payload []byte
}

// VerifyChecksum checks the payload against the checksum in the header.
func (m *Message) VerifyChecksum() error {
	sum := Checksum(m.Payload)
	if sum != m.Header.Checksum {
		return fmt.Errorf("%w: %s header=%x computed=%x",
			ErrChecksumMismatch, m.Header.Command,
			m.Header.Checksum[:], sum[:])
	}

	return nil
}

// Checksum returns the first four bytes of SHA256(SHA256(payload)).
func Checksum(payload []byte) [ChecksumSize]byte {
	var sum [ChecksumSize]byte
	copy(sum[:], chainhash.DoubleHashB(payload))

	return sum
}

// ConstructMessage frames payload under cmd for the network identified by
// magic.
func ConstructMessage(magic Magic, cmd Command, payload []byte) []byte {
	name := cmd.Bytes()
	sum := Checksum(payload)

	msg := make([]byte, 0, MessageHeaderSize+len(payload))
	msg = append(msg, magic[:]...)
	msg = append(msg, name[:]...)
	msg = binary.LittleEndian.AppendUint32(msg, uint32(len(payload)))
	msg = append(msg, sum[:]...)
	msg = append(msg, payload...)

	return msg
}

// WriteMessage frames payload and writes it to w, returning the number of
// bytes written.
func WriteMessage(w io.Writer, magic Magic, cmd Command,
	payload []byte) (int, error) {

	return w.Write(ConstructMessage(magic, cmd, payload))
}

// ParseHeader decodes the first MessageHeaderSize bytes of b. Only the magic
// and the command field are validated; the checksum is left to the caller.
func ParseHeader(b []byte, magic Magic) (*MessageHeader, error) {
	if len(b) < MessageHeaderSize {
		return nil, fmt.Errorf("%w: header needs %d bytes, have %d",
			ErrTruncatedInput, MessageHeaderSize, len(b))
	}

	var hdr MessageHeader
	copy(hdr.Magic[:], b[0:4])
	if hdr.Magic != magic {
		return nil, fmt.Errorf("%w: got %v, want %v", ErrBadMagic,
			hdr.Magic, magic)
	}

	cmd, err := parseCommand(b[4 : 4+CommandSize])
	if err != nil {
		return nil, err
	}
	hdr.Command = cmd

	hdr.Length = binary.LittleEndian.Uint32(b[16:20])
	copy(hdr.Checksum[:], b[20:24])

	return &hdr, nil
}

// parseCommand trims the NUL padding from a command field. The name must be
// non-empty printable ASCII and every byte after the first NUL must be NUL.
func parseCommand(field []byte) (InboundCommand, error) {
	end := bytes.IndexByte(field, 0)
	if end == -1 {
		end = len(field)
	}

	if end == 0 {
		return "", fmt.Errorf("%w: empty name", ErrMalformedCommand)
	}

	for _, c := range field[:end] {
		if c <= 0x20 || c >= 0x7f {
			return "", fmt.Errorf("%w: non-printable byte %#x in %q",
				ErrMalformedCommand, c, field)
		}
	}

	for _, c := range field[end:] {
		if c != 0 {
			return "", fmt.Errorf("%w: data after padding in %q",
				ErrMalformedCommand, field)
		}
	}

	return InboundCommand(field[:end]), nil
}

// ReadMessage reads exactly one framed message from r. The checksum is not
// verified. The returned count is the number of bytes consumed.
func ReadMessage(r io.Reader, magic Magic) (*Message, int, error) {
	var hdrBytes [MessageHeaderSize]byte
	n, err := io.ReadFull(r, hdrBytes[:])
	if err != nil {
		return nil, n, err
	}

	hdr, err := ParseHeader(hdrBytes[:], magic)
	if err != nil {
		return nil, n, err
	}

	if hdr.Length > MaxPayloadSize {
		return nil, n, fmt.Errorf("%w: %d bytes for %s",
			ErrPayloadTooLarge, hdr.Length, hdr.Command)
	}

	payload := make([]byte, hdr.Length)
	m, err := io.ReadFull(r, payload)
	n += m
	if err != nil {
		return nil, n, err
	}

	return &Message{Header: *hdr, Payload: payload}, n, nil
}
