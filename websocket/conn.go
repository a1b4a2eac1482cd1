package websocket

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
)

// Conn is an established WebSocket connection (RFC 6455).
//
// Conn provides the pull-style API: whole-message reads with automatic
// fragmentation reassembly, control-frame handling and UTF-8 validation,
// plus thread-safe writes. Created by Upgrade (server side), Dial (client
// side) or NewConn (externally upgraded transports).
//
// Example:
//
//	conn, err := websocket.Upgrade(w, r, nil)
//	if err != nil {
//	    return err
//	}
//	defer conn.Close()
//
//	msgType, data, err := conn.Read()
//	conn.WriteText("Hello, WebSocket!")
type Conn struct {
	conn   net.Conn
	reader io.Reader // buffered transport reader
	codec  *Codec

	// readBuf accumulates unconsumed transport bytes for the resumable
	// codec; chunk is the reusable transport read buffer.
	readBuf bytes.Buffer
	chunk   []byte

	// Write synchronization (RFC 6455 Section 5.1): one frame at a time.
	writeMu  sync.Mutex
	writeBuf bytes.Buffer

	// Close synchronization.
	closeOnce sync.Once
	closed    bool
	closeMu   sync.RWMutex

	subprotocol string
}

// newConn creates a connection (internal constructor, called after a
// successful handshake).
func newConn(netConn net.Conn, reader io.Reader, codec *Codec, opts *UpgradeOptions) *Conn {
	chunkSize := defaultReadBufferSize
	if opts != nil && opts.ReadBufferSize > 0 {
		chunkSize = opts.ReadBufferSize
	}
	return &Conn{
		conn:   netConn,
		reader: reader,
		codec:  codec,
		chunk:  make([]byte, chunkSize),
	}
}

// NewConn wraps an already-upgraded transport in a WebSocket connection.
//
// Use this when the HTTP upgrade was performed outside this package, e.g. a
// hand-rolled server that needs exact control over the 101 response bytes.
// codec may be nil, selecting a default server-mode codec.
func NewConn(transport net.Conn, codec *Codec, opts *UpgradeOptions) *Conn {
	if codec == nil {
		codec = NewCodec(nil)
	}
	return newConn(transport, transport, codec, opts)
}

// Subprotocol returns the negotiated subprotocol, or "".
func (c *Conn) Subprotocol() string {
	return c.subprotocol
}

// NextMessage returns the next Message from the wire, including control
// messages. No automatic ping/pong or close handling happens here; that is
// the caller's job (Read and Dispatcher both build on this).
//
// Protocol errors are returned after a best-effort close frame carrying the
// matching status code has been sent.
func (c *Conn) NextMessage() (Message, error) {
	c.closeMu.RLock()
	if c.closed {
		c.closeMu.RUnlock()
		return Message{Type: NopMessage}, ErrClosed
	}
	c.closeMu.RUnlock()

	for {
		msg, err := c.codec.Decode(&c.readBuf)
		if err != nil {
			// Tell the peer why before tearing down.
			_ = c.CloseWithCode(closeCodeFor(err), "")
			return Message{Type: NopMessage}, err
		}
		if msg != nil {
			return *msg, nil
		}

		// Codec needs more bytes.
		n, err := c.reader.Read(c.chunk)
		if n > 0 {
			c.readBuf.Write(c.chunk[:n])
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return Message{Type: NopMessage}, ErrClosed
			}
			// A transport error after a local close is part of the normal
			// teardown, not a failure.
			c.closeMu.RLock()
			closed := c.closed
			c.closeMu.RUnlock()
			if closed {
				return Message{Type: NopMessage}, ErrClosed
			}
			return Message{Type: NopMessage}, fmt.Errorf("websocket: read transport: %w", err)
		}
	}
}

// Read reads the next complete data message from the connection.
//
// Automatically handles:
//   - Fragmentation: reassembles multi-frame messages (FIN=0 -> FIN=1)
//   - Control frames: answers Ping with Pong, absorbs Pong, completes the
//     close handshake on Close
//   - UTF-8 validation for text messages (RFC 6455 Section 8.1)
//
// Returns the message type (TextMessage or BinaryMessage), the complete
// payload, and ErrClosed once the connection is closed.
func (c *Conn) Read() (MessageType, []byte, error) {
	for {
		msg, err := c.NextMessage()
		if err != nil {
			return 0, nil, err
		}

		switch msg.Type {
		case PingMessage:
			// RFC 6455 Section 5.5.2: echo the application data.
			if err := c.Pong(msg.Data); err != nil {
				return 0, nil, err
			}

		case PongMessage:
			// Unsolicited or answering one of ours; nothing to do.

		case CloseMessage:
			c.handleCloseMessage(msg.Close)
			return 0, nil, ErrClosed

		case TextMessage, BinaryMessage:
			return msg.Type, msg.Data, nil

		case ContinuationMessage:
			// Raw-fragment codecs are for Dispatcher/Codec users; the
			// pull API only deals in complete messages.
			return 0, nil, ErrInvalidMessageType
		}
	}
}

// ReadText reads the next message and requires it to be text.
//
// Returns ErrInvalidMessageType if the message is binary.
func (c *Conn) ReadText() (string, error) {
	msgType, data, err := c.Read()
	if err != nil {
		return "", err
	}

	if msgType != TextMessage {
		return "", ErrInvalidMessageType
	}

	return string(data), nil
}

// ReadJSON reads the next text message and unmarshals it into v.
func (c *Conn) ReadJSON(v any) error {
	msgType, data, err := c.Read()
	if err != nil {
		return err
	}

	if msgType != TextMessage {
		return ErrInvalidMessageType
	}

	return json.Unmarshal(data, v)
}

// WriteMessage encodes msg and writes it to the transport. Writes are
// serialized; frames go out in submission order.
func (c *Conn) WriteMessage(msg Message) error {
	c.closeMu.RLock()
	if c.closed {
		c.closeMu.RUnlock()
		return ErrClosed
	}
	c.closeMu.RUnlock()

	return c.writeMessage(msg)
}

// writeMessage is WriteMessage without the closed check, for the close
// handshake itself.
func (c *Conn) writeMessage(msg Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.writeBuf.Reset()
	if err := c.codec.Encode(msg, &c.writeBuf); err != nil {
		return err
	}
	if _, err := c.conn.Write(c.writeBuf.Bytes()); err != nil {
		return fmt.Errorf("websocket: write transport: %w", err)
	}
	return nil
}

// Write writes a complete data message to the connection.
//
// Masking follows the connection role: client frames are masked with fresh
// random keys, server frames are not (RFC 6455 Section 5.1).
func (c *Conn) Write(messageType MessageType, data []byte) error {
	switch messageType {
	case TextMessage, BinaryMessage:
		return c.WriteMessage(Message{Type: messageType, Data: data})
	default:
		return ErrInvalidMessageType
	}
}

// WriteText writes a text message.
func (c *Conn) WriteText(text string) error {
	return c.Write(TextMessage, []byte(text))
}

// WriteJSON marshals v and writes it as a text message.
func (c *Conn) WriteJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	return c.Write(TextMessage, data)
}

// WriteFragment writes one fragment of an outbound fragmented message.
//
// Fragments must follow the protocol order: ItemFirstText or ItemFirstBinary,
// then zero or more ItemContinue, then ItemLast (RFC 6455 Section 5.4).
// Out-of-order fragments fail with the matching continuation error.
func (c *Conn) WriteFragment(item Item, data []byte) error {
	return c.WriteMessage(Message{Type: ContinuationMessage, Item: item, Data: data})
}

// Ping sends a ping frame (keep-alive). The payload is optional and limited
// to 125 bytes; the peer answers with a Pong carrying the same data.
func (c *Conn) Ping(data []byte) error {
	return c.WriteMessage(Message{Type: PingMessage, Data: data})
}

// Pong sends a pong frame, answering a ping or unsolicited.
//
// Read answers pings automatically, so a manual Pong is rarely needed.
func (c *Conn) Pong(data []byte) error {
	return c.WriteMessage(Message{Type: PongMessage, Data: data})
}

// Close sends a normal-closure close frame and closes the transport.
// Idempotent.
func (c *Conn) Close() error {
	return c.CloseWithCode(CloseNormalClosure, "")
}

// CloseWithCode sends a close frame with the given status code and reason,
// then closes the transport. Idempotent.
//
// This is the abrupt half of the close handshake: it does not wait for the
// peer's acknowledging close frame. Dispatcher implements the full bounded
// wait (RFC 6455 Section 7.1.2).
func (c *Conn) CloseWithCode(code CloseCode, reason string) error {
	var err error

	c.closeOnce.Do(func() {
		c.closeMu.Lock()
		c.closed = true
		c.closeMu.Unlock()

		writeErr := c.writeMessage(Message{
			Type:  CloseMessage,
			Close: &CloseReason{Code: code, Reason: reason},
		})

		closeErr := c.conn.Close()

		if writeErr != nil {
			err = writeErr
		} else {
			err = closeErr
		}
	})

	return err
}

// markClosed tears the transport down without sending a close frame, for
// callers that run their own close handshake. Subsequent reads and writes
// return ErrClosed.
func (c *Conn) markClosed() error {
	c.closeMu.Lock()
	c.closed = true
	c.closeMu.Unlock()
	return c.conn.Close()
}

// handleCloseMessage completes the close handshake for a peer-initiated
// close: echo the received status code (normal closure if none was given)
// and shut the transport down.
func (c *Conn) handleCloseMessage(reason *CloseReason) {
	code := CloseNormalClosure
	if reason != nil {
		code = reason.Code
	}
	_ = c.CloseWithCode(code, "")
}
