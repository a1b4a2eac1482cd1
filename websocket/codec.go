package websocket

import (
	"bytes"
	"fmt"
	"unicode/utf8"
)

// Default size limits. Both are configurable per codec.
const (
	// defaultMaxFrameSize bounds a single frame payload.
	defaultMaxFrameSize = 32 * 1024 * 1024 // 32 MB

	// defaultMaxMessageSize bounds an assembled multi-frame message.
	defaultMaxMessageSize = 32 * 1024 * 1024 // 32 MB
)

// CodecOptions configures a Codec. The zero value is a server-mode codec
// with 32 MB frame and message limits and full message assembly.
type CodecOptions struct {
	// ClientMode selects the client masking rules: outbound frames are
	// masked with fresh random keys and inbound frames must be unmasked.
	// Server mode (default) is the inverse.
	ClientMode bool

	// MaxFrameSize bounds a single frame payload; frames advertising a
	// larger length are rejected with ErrOverflow before the payload is
	// buffered. Default 32 MB.
	MaxFrameSize int64

	// MaxMessageSize bounds an assembled multi-frame message; exceeding it
	// drops the in-progress message and fails with ErrOverflow.
	// Default 32 MB.
	MaxMessageSize int64

	// RawFragments disables message assembly: fragments are surfaced as
	// ContinuationMessage values with an Item marker. Fragmentation ordering
	// rules are still enforced.
	RawFragments bool
}

// Codec is the per-connection frame codec plus continuation assembler.
//
// Decode consumes raw transport bytes from an append-only buffer and
// produces application Messages; Encode turns outbound Messages into wire
// bytes. The codec is synchronous and transport-independent: it never
// blocks, reporting "need more bytes" instead, which keeps it testable in
// isolation and resumable from the dispatch loop.
//
// A Codec owns per-connection mutable state (the assembler buffer and the
// outbound fragment opcode) and must not be shared across connections or
// used concurrently from both paths without external ordering.
type Codec struct {
	serverMode bool
	maxFrame   int64
	asm        assembler

	// outFragment tracks the opcode of an outbound fragmented message
	// between EncodeFragment calls.
	outFragment *OpCode
}

// NewCodec creates a codec for one connection. opts may be nil.
func NewCodec(opts *CodecOptions) *Codec {
	if opts == nil {
		opts = &CodecOptions{}
	}
	maxFrame := opts.MaxFrameSize
	if maxFrame == 0 {
		maxFrame = defaultMaxFrameSize
	}
	maxMessage := opts.MaxMessageSize
	if maxMessage == 0 {
		maxMessage = defaultMaxMessageSize
	}

	return &Codec{
		serverMode: !opts.ClientMode,
		maxFrame:   maxFrame,
		asm: assembler{
			maxMessage: maxMessage,
			raw:        opts.RawFragments,
		},
	}
}

// Decode consumes complete frames from the front of buf and returns the next
// application Message, or (nil, nil) when buf does not yet hold enough bytes
// to complete one. Bytes are consumed exactly per parsed frame; partial
// frames are left in place for the caller to extend.
//
// Non-final fragments absorbed into the assembler do not produce a Message,
// so a single call may consume several frames.
func (c *Codec) Decode(buf *bytes.Buffer) (*Message, error) {
	for {
		consumed, f, err := parseFrame(buf.Bytes(), c.serverMode, c.maxFrame)
		if err != nil {
			return nil, err
		}
		if f == nil {
			return nil, nil
		}
		buf.Next(consumed)

		msg, err := c.asm.push(f)
		if err != nil {
			return nil, err
		}
		if msg != nil {
			return msg, nil
		}
	}
}

// Encode appends the wire encoding of msg to dst.
//
// Control payloads above 125 bytes fail with ErrInvalidLength; text messages
// must be valid UTF-8. ContinuationMessage values must follow the fragment
// ordering (First, Continue*, Last) or fail with the matching continuation
// error. NopMessage encodes to nothing.
func (c *Codec) Encode(msg Message, dst *bytes.Buffer) error {
	switch msg.Type {
	case TextMessage:
		if !utf8.Valid(msg.Data) {
			return ErrInvalidUTF8
		}
		encodeFrame(dst, true, OpText, c.maskKey(), msg.Data)
		return nil

	case BinaryMessage:
		encodeFrame(dst, true, OpBinary, c.maskKey(), msg.Data)
		return nil

	case PingMessage, PongMessage:
		opcode := OpPing
		if msg.Type == PongMessage {
			opcode = OpPong
		}
		if len(msg.Data) > maxControlPayload {
			return fmt.Errorf("%w: %d", ErrInvalidLength, len(msg.Data))
		}
		encodeFrame(dst, true, opcode, c.maskKey(), msg.Data)
		return nil

	case CloseMessage:
		payload := encodeCloseReason(msg.Close)
		if len(payload) > maxControlPayload {
			return fmt.Errorf("%w: %d", ErrInvalidLength, len(payload))
		}
		encodeFrame(dst, true, OpClose, c.maskKey(), payload)
		return nil

	case ContinuationMessage:
		return c.encodeFragment(msg, dst)

	case NopMessage:
		return nil

	default:
		return fmt.Errorf("%w: %d", ErrBadOpCode, msg.Type)
	}
}

// encodeFragment emits one frame of an outbound fragmented message,
// enforcing the First/Continue/Last ordering across calls.
func (c *Codec) encodeFragment(msg Message, dst *bytes.Buffer) error {
	switch msg.Item {
	case ItemFirstText, ItemFirstBinary:
		if c.outFragment != nil {
			return ErrContinuationStarted
		}
		opcode := OpText
		if msg.Item == ItemFirstBinary {
			opcode = OpBinary
		}
		c.outFragment = &opcode
		encodeFrame(dst, false, opcode, c.maskKey(), msg.Data)
		return nil

	case ItemContinue:
		if c.outFragment == nil {
			return ErrContinuationNotStarted
		}
		encodeFrame(dst, false, OpContinuation, c.maskKey(), msg.Data)
		return nil

	case ItemLast:
		if c.outFragment == nil {
			return ErrContinuationNotStarted
		}
		c.outFragment = nil
		encodeFrame(dst, true, OpContinuation, c.maskKey(), msg.Data)
		return nil

	default:
		return fmt.Errorf("%w: %s", ErrContinuationFragment, msg.Item)
	}
}

// maskKey returns a fresh mask key in client mode, nil in server mode.
// RFC 6455 Section 5.3: every client frame gets its own random key.
func (c *Codec) maskKey() *[4]byte {
	if c.serverMode {
		return nil
	}
	key := newMaskKey()
	return &key
}
