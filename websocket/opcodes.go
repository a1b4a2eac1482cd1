// Package websocket implements the RFC 6455 WebSocket protocol engine:
// handshake negotiation, frame encoding/decoding, masking, fragmentation
// reassembly and the full-duplex dispatch loop between a byte transport
// and a message-oriented application boundary.
//
// The package provides three levels of access:
//   - Codec: a resumable frame/message codec over raw byte buffers,
//     synchronous and transport-independent.
//   - Conn: a pull-style connection API (Read/Write whole messages) created
//     by Upgrade (server) or Dial (client).
//   - Dispatcher: a channel-based full-duplex pump with automatic ping/pong
//     and close-handshake handling.
//
// RFC Reference: https://datatracker.ietf.org/doc/html/rfc6455
package websocket

import "fmt"

// OpCode identifies the purpose of a WebSocket frame (RFC 6455 Section 5.2).
//
// Opcodes 0x0-0x2 are data frames, 0x8-0xA are control frames.
// Opcodes 0x3-0x7 and 0xB-0xF are reserved and rejected on receipt.
type OpCode byte

const (
	// OpContinuation indicates a continuation frame (RFC 6455 Section 5.4).
	// Carries the next fragment of a message started by a text or binary
	// frame with FIN=0.
	OpContinuation OpCode = 0x0

	// OpText indicates a text data frame (RFC 6455 Section 5.6).
	// The complete message payload must be valid UTF-8.
	OpText OpCode = 0x1

	// OpBinary indicates a binary data frame (RFC 6455 Section 5.6).
	OpBinary OpCode = 0x2

	// OpClose indicates a close control frame (RFC 6455 Section 5.5.1).
	// Initiates or acknowledges the closing handshake.
	OpClose OpCode = 0x8

	// OpPing indicates a ping control frame (RFC 6455 Section 5.5.2).
	OpPing OpCode = 0x9

	// OpPong indicates a pong control frame (RFC 6455 Section 5.5.3).
	// Carries the application data of the ping it answers.
	OpPong OpCode = 0xA
)

// String returns the opcode name, or its hex value for reserved codes.
func (op OpCode) String() string {
	switch op {
	case OpContinuation:
		return "Continuation"
	case OpText:
		return "Text"
	case OpBinary:
		return "Binary"
	case OpClose:
		return "Close"
	case OpPing:
		return "Ping"
	case OpPong:
		return "Pong"
	default:
		return fmt.Sprintf("Reserved(0x%X)", byte(op))
	}
}

// isControl returns true for Close/Ping/Pong opcodes (0x8-0xF range).
//
// RFC 6455 Section 5.5: control frames must not be fragmented and their
// payload length must be <= 125 bytes.
func (op OpCode) isControl() bool {
	return op&0x08 != 0
}

// isData returns true for Continuation/Text/Binary opcodes.
func (op OpCode) isData() bool {
	return op == OpContinuation || op == OpText || op == OpBinary
}

// isValid returns true if the opcode is defined by RFC 6455.
// Opcodes 0x3-0x7 and 0xB-0xF are reserved.
func (op OpCode) isValid() bool {
	switch op {
	case OpContinuation, OpText, OpBinary, OpClose, OpPing, OpPong:
		return true
	default:
		return false
	}
}
