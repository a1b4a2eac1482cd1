package websocket

import (
	"bytes"
	"fmt"
	"unicode/utf8"
)

// assembler reconstructs application messages from the decoded frame
// sequence, enforcing the fragmentation rules of RFC 6455 Section 5.4.
//
// One assembler exists per connection and is owned exclusively by the Codec
// driving that connection; it is not safe for concurrent use and cannot be
// rewound. Control frames pass through untouched, so a Ping or Close arriving
// between fragments never disturbs the in-progress message.
type assembler struct {
	// active is non-nil only between an initial data frame with FIN=0 and
	// the terminating continuation frame with FIN=1.
	active *fragmentState

	// maxMessage bounds the assembled message size; exceeding it drops the
	// in-progress message and fails with ErrOverflow. Zero means unlimited.
	maxMessage int64

	// raw disables accumulation: fragments surface as ContinuationMessage
	// values carrying an Item marker, while ordering rules stay enforced.
	raw bool
}

// fragmentState holds one in-progress fragmented message.
type fragmentState struct {
	opcode OpCode
	buf    bytes.Buffer
}

// push consumes one decoded frame and returns the completed Message, if any.
// A nil Message with nil error means the frame was absorbed into an
// in-progress fragmented message.
//
//nolint:gocyclo,cyclop // fragmentation+control dispatch per RFC 6455 Section 5.4
func (a *assembler) push(f *frame) (*Message, error) {
	switch f.opcode {
	case OpClose:
		return &Message{Type: CloseMessage, Close: parseCloseReason(f.payload)}, nil

	case OpPing:
		return &Message{Type: PingMessage, Data: f.payload}, nil

	case OpPong:
		return &Message{Type: PongMessage, Data: f.payload}, nil

	case OpText, OpBinary:
		if a.active != nil {
			// The peer must finish the fragmented message with continuation
			// frames before starting a new one.
			return nil, ErrContinuationStarted
		}

		if f.fin {
			// Single-frame message.
			if f.opcode == OpText && !utf8.Valid(f.payload) {
				return nil, ErrInvalidUTF8
			}
			return &Message{Type: MessageType(f.opcode), Data: f.payload}, nil
		}

		// Initial fragment (FIN=0): message in progress.
		if a.raw {
			a.active = &fragmentState{opcode: f.opcode}
			item := ItemFirstText
			if f.opcode == OpBinary {
				item = ItemFirstBinary
			}
			return &Message{Type: ContinuationMessage, Item: item, Data: f.payload}, nil
		}

		if a.maxMessage > 0 && int64(len(f.payload)) > a.maxMessage {
			return nil, fmt.Errorf("%w: message of %d bytes", ErrOverflow, len(f.payload))
		}
		a.active = &fragmentState{opcode: f.opcode}
		a.active.buf.Write(f.payload)
		return nil, nil

	case OpContinuation:
		if a.active == nil {
			return nil, ErrContinuationNotStarted
		}

		if a.raw {
			if !f.fin {
				return &Message{Type: ContinuationMessage, Item: ItemContinue, Data: f.payload}, nil
			}
			a.active = nil
			return &Message{Type: ContinuationMessage, Item: ItemLast, Data: f.payload}, nil
		}

		if a.maxMessage > 0 && int64(a.active.buf.Len())+int64(len(f.payload)) > a.maxMessage {
			a.active = nil
			return nil, fmt.Errorf("%w: message above %d bytes", ErrOverflow, a.maxMessage)
		}
		a.active.buf.Write(f.payload)

		if !f.fin {
			return nil, nil
		}

		// Final fragment: emit the accumulated message.
		opcode := a.active.opcode
		payload := make([]byte, a.active.buf.Len())
		copy(payload, a.active.buf.Bytes())
		a.active = nil

		// RFC 6455 Section 8.1: validate UTF-8 over the complete message,
		// not per fragment; split points may fall inside a rune.
		if opcode == OpText && !utf8.Valid(payload) {
			return nil, ErrInvalidUTF8
		}
		return &Message{Type: MessageType(opcode), Data: payload}, nil

	default:
		// Reserved opcodes are rejected by the parser; anything else
		// reaching the assembler is a stream-level violation.
		return nil, fmt.Errorf("%w: %s", ErrBadOpCode, f.opcode)
	}
}
