package btcwire

import "fmt"

// CommandSize is the fixed width of the command field in a message header.
const CommandSize = 12

// Command is a message this client sends. The set is closed: every value
// maps to exactly one command name on the wire.
type Command uint8

const (
	// CmdVersion opens the handshake.
	CmdVersion Command = iota

	// CmdVerAck acknowledges the peer's version.
	CmdVerAck

	// CmdPong answers a ping.
	CmdPong

	// CmdGetData requests the objects named in an inventory list.
	CmdGetData
)

// String returns the wire name of the command.
func (c Command) String() string {
	switch c {
	case CmdVersion:
		return "version"
	case CmdVerAck:
		return "verack"
	case CmdPong:
		return "pong"
	case CmdGetData:
		return "getdata"
	default:
		return fmt.Sprintf("<unknown cmd %d>", uint8(c))
	}
}

// Bytes returns the NUL padded 12-byte header field for the command.
func (c Command) Bytes() [CommandSize]byte {
	var b [CommandSize]byte
	copy(b[:], c.String())

	return b
}

// InboundCommand is the command name of a received message. Any name a peer
// sends is representable; only some are acted upon.
type InboundCommand string

// The inbound commands the client reacts to.
const (
	InVersion    InboundCommand = "version"
	InVerAck     InboundCommand = "verack"
	InPing       InboundCommand = "ping"
	InInv        InboundCommand = "inv"
	InBlock      InboundCommand = "block"
	InGetHeaders InboundCommand = "getheaders"
)

// Handled reports whether the client has a handler for the command.
func (c InboundCommand) Handled() bool {
	switch c {
	case InVersion, InVerAck, InPing, InInv, InBlock, InGetHeaders:
		return true
	default:
		return false
	}
}

// String returns the command name.
func (c InboundCommand) String() string {
	return string(c)
}
