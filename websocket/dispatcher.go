package websocket

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/eapache/queue"
	"go.uber.org/zap"
)

// Dispatcher lifecycle states.
type dispatchState int

const (
	stateOpen dispatchState = iota
	stateClosingLocal
	stateClosingRemote
	stateClosed
)

func (s dispatchState) String() string {
	switch s {
	case stateOpen:
		return "open"
	case stateClosingLocal:
		return "closing-local"
	case stateClosingRemote:
		return "closing-remote"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// defaultCloseTimeout bounds the wait for the peer's close acknowledgment
// after a locally initiated close (RFC 6455 Section 7.1.2).
const defaultCloseTimeout = 5 * time.Second

// defaultSendQueueLimit bounds pending outbound messages before Send blocks.
const defaultSendQueueLimit = 64

// DispatcherOptions configures a Dispatcher. All fields are optional.
type DispatcherOptions struct {
	// Logger receives structured lifecycle and error events.
	// Defaults to a nop logger.
	Logger *zap.Logger

	// DisableAutoPong forwards inbound pings to the application instead of
	// answering them automatically.
	DisableAutoPong bool

	// CloseTimeout bounds the wait for the peer's close acknowledgment
	// after a local close. Default 5s.
	CloseTimeout time.Duration

	// SendQueueLimit bounds pending outbound messages; Send blocks once the
	// limit is reached so the dispatcher never buffers unboundedly.
	// Default 64.
	SendQueueLimit int
}

// Dispatcher is the full-duplex pump for one connection: it drives inbound
// bytes through the codec and assembler onto the Messages channel, and
// outbound Messages through the codec onto the transport, owning the
// close-handshake lifecycle (Open -> Closing -> Closed).
//
// The inbound and outbound paths run concurrently with each other but each
// preserves strict order: frames are decoded, assembled and encoded in
// arrival/submission order. All per-connection mutable state is owned by
// the two pump goroutines; nothing is shared across connections.
//
// Reactive rules evaluated inline in the inbound path, preserving frame
// order (RFC 6455 Sections 5.5.2, 5.5.1):
//   - Ping -> automatic Pong echo (unless disabled), not forwarded.
//   - Close -> echo close frame, report the reason, transition to Closed.
//
// Example:
//
//	d := websocket.NewDispatcher(conn, nil)
//	go func() {
//	    for msg := range d.Messages() {
//	        d.Send(msg) // echo
//	    }
//	}()
//	err := d.Run(ctx)
type Dispatcher struct {
	conn *Conn
	log  *zap.Logger

	autoPong     bool
	closeTimeout time.Duration

	// messages is the ordered inbound sequence; closed when the dispatcher
	// reaches Closed. Unbuffered: assembly never outruns the application.
	messages chan Message

	// Outbound path: bounded FIFO drained by the write loop. Send blocks on
	// cond while the queue is at its limit (transport backpressure).
	mu         sync.Mutex
	cond       *sync.Cond
	out        *queue.Queue
	queueLimit int
	state      dispatchState

	// wake signals the write loop that the queue is non-empty.
	wake chan struct{}

	// closeAck is signaled when the peer acknowledges a local close.
	closeAck chan struct{}

	// done is closed exactly once when the connection reaches Closed.
	done     chan struct{}
	doneOnce sync.Once

	errMu  sync.Mutex
	runErr error
}

// setErr records the first fatal error.
func (d *Dispatcher) setErr(err error) {
	d.errMu.Lock()
	if d.runErr == nil {
		d.runErr = err
	}
	d.errMu.Unlock()
}

// Err returns the first fatal error, or nil after a clean close.
func (d *Dispatcher) Err() error {
	d.errMu.Lock()
	defer d.errMu.Unlock()
	return d.runErr
}

// NewDispatcher creates a dispatcher over an established connection.
// opts may be nil. Call Run to start the pump.
func NewDispatcher(conn *Conn, opts *DispatcherOptions) *Dispatcher {
	if opts == nil {
		opts = &DispatcherOptions{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	closeTimeout := opts.CloseTimeout
	if closeTimeout == 0 {
		closeTimeout = defaultCloseTimeout
	}
	queueLimit := opts.SendQueueLimit
	if queueLimit == 0 {
		queueLimit = defaultSendQueueLimit
	}

	d := &Dispatcher{
		conn:         conn,
		log:          logger,
		autoPong:     !opts.DisableAutoPong,
		closeTimeout: closeTimeout,
		messages:     make(chan Message),
		out:          queue.New(),
		queueLimit:   queueLimit,
		wake:         make(chan struct{}, 1),
		closeAck:     make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// Messages returns the ordered inbound message sequence. The channel is
// closed when the connection reaches Closed; the final messages before the
// close include the peer's (or the error's) CloseMessage. The application
// must keep consuming until the channel closes; delivery is the
// backpressure point for the inbound path.
func (d *Dispatcher) Messages() <-chan Message {
	return d.messages
}

// Done is closed when the connection reaches the terminal Closed state.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

// Run drives the connection until it reaches Closed, returning the first
// fatal error (nil for a clean close handshake). Cancelling ctx closes the
// transport, aborting pending reads and any close-acknowledgment wait.
func (d *Dispatcher) Run(ctx context.Context) error {
	go d.writeLoop()

	if ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				d.log.Debug("context cancelled, shutting down transport")
				d.shutdown()
			case <-d.done:
			}
		}()
	}

	d.readLoop()
	return d.Err()
}

// Send submits an outbound message in order. It blocks while the outbound
// queue is at its limit and fails with ErrClosed once the connection has
// left the Open state.
//
// A CloseMessage is equivalent to calling Close with its reason.
func (d *Dispatcher) Send(msg Message) error {
	if msg.Type == CloseMessage {
		return d.Close(msg.Close)
	}

	d.mu.Lock()
	for d.state == stateOpen && d.out.Length() >= d.queueLimit {
		d.cond.Wait()
	}
	if d.state != stateOpen {
		d.mu.Unlock()
		return ErrClosed
	}
	d.out.Add(msg)
	d.mu.Unlock()

	d.wakeWriter()
	return nil
}

// Close initiates the closing handshake with an optional reason: the close
// frame is queued behind already-submitted messages, then the dispatcher
// waits (bounded by CloseTimeout) for the peer's acknowledgment before
// shutting the transport down. Idempotent once closing has begun.
func (d *Dispatcher) Close(reason *CloseReason) error {
	d.mu.Lock()
	if d.state != stateOpen {
		d.mu.Unlock()
		return ErrClosed
	}
	d.state = stateClosingLocal
	if reason == nil {
		reason = &CloseReason{Code: CloseNormalClosure}
	}
	d.out.Add(Message{Type: CloseMessage, Close: reason})
	d.mu.Unlock()

	d.log.Debug("close initiated locally", zap.Uint16("code", uint16(reason.Code)))
	d.wakeWriter()
	return nil
}

// readLoop is the inbound path: transport -> codec -> assembler -> Messages.
// It exits, closing the Messages channel, when the connection is Closed.
func (d *Dispatcher) readLoop() {
	defer close(d.messages)
	defer d.shutdown()

	for {
		msg, err := d.conn.NextMessage()
		if err != nil {
			d.finishRead(err)
			return
		}

		switch msg.Type {
		case PingMessage:
			if d.autoPong {
				// Echo inline so the pong keeps its place in frame order.
				if err := d.conn.WriteMessage(Message{Type: PongMessage, Data: msg.Data}); err != nil {
					d.finishRead(err)
					return
				}
				d.log.Debug("ping answered", zap.Int("payload_len", len(msg.Data)))
				continue
			}
			if !d.deliver(msg) {
				return
			}

		case CloseMessage:
			d.handleRemoteClose(msg)
			return

		default:
			if !d.deliver(msg) {
				return
			}
		}
	}
}

// handleRemoteClose completes the close handshake for a close frame from
// the peer: in Open, echo the received code (normal closure if none) and
// transition Closing(remote) -> Closed; in Closing(local), this is the
// acknowledgment we were waiting for.
func (d *Dispatcher) handleRemoteClose(msg Message) {
	d.mu.Lock()
	prev := d.state
	if prev == stateOpen {
		d.state = stateClosingRemote
	}
	d.mu.Unlock()
	d.cond.Broadcast()

	switch prev {
	case stateClosingLocal:
		d.log.Debug("close acknowledged by peer")
		select {
		case d.closeAck <- struct{}{}:
		default:
		}

	case stateOpen:
		code := CloseNormalClosure
		if msg.Close != nil {
			code = msg.Close.Code
		}
		d.log.Debug("close received, echoing", zap.Uint16("code", uint16(code)))
		_ = d.conn.CloseWithCode(code, "")
	}

	d.deliver(msg)
}

// finishRead classifies the read-path exit: a clean ErrClosed is a normal
// teardown; a protocol error is reported to the application as a close
// message carrying the mapped status code before the channel closes.
func (d *Dispatcher) finishRead(err error) {
	// A closed transport is the normal end of a completed or cancelled
	// teardown, not a protocol failure.
	if errors.Is(err, ErrClosed) || errors.Is(err, net.ErrClosed) {
		return
	}

	d.setErr(err)
	code := closeCodeFor(err)
	d.log.Warn("protocol error, closing connection",
		zap.Error(err),
		zap.Uint16("close_code", uint16(code)),
	)

	// NextMessage already sent the best-effort close frame; surface the
	// reason to the application so the failure is never a silent drop.
	d.deliver(Message{Type: CloseMessage, Close: &CloseReason{Code: code, Reason: err.Error()}})
}

// deliver hands a message to the application, blocking until it is consumed
// or the connection is torn down. Returns false when the dispatcher shut
// down before delivery.
func (d *Dispatcher) deliver(msg Message) bool {
	select {
	case d.messages <- msg:
		return true
	case <-d.done:
		return false
	}
}

// wakeWriter nudges the write loop. The wake channel has capacity one, so
// concurrent senders coalesce into a single signal and never block here.
func (d *Dispatcher) wakeWriter() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// writeLoop is the outbound path: Messages -> codec -> transport, drained
// strictly in submission order.
func (d *Dispatcher) writeLoop() {
	for {
		select {
		case <-d.wake:
		case <-d.done:
			return
		}

		for {
			d.mu.Lock()
			if d.out.Length() == 0 {
				d.mu.Unlock()
				break
			}
			msg := d.out.Remove().(Message)
			state := d.state
			d.mu.Unlock()
			d.cond.Broadcast()

			if msg.Type == CloseMessage {
				d.sendClose(msg, state)
				return
			}

			if err := d.conn.WriteMessage(msg); err != nil {
				d.log.Warn("write failed, shutting down", zap.Error(err))
				d.setErr(err)
				d.shutdown()
				return
			}
		}
	}
}

// sendClose writes the locally initiated close frame, then waits (bounded)
// for the peer's acknowledgment before finishing the teardown.
func (d *Dispatcher) sendClose(msg Message, state dispatchState) {
	code := CloseNormalClosure
	reason := ""
	if msg.Close != nil {
		code = msg.Close.Code
		reason = msg.Close.Reason
	}

	if state != stateClosingLocal {
		_ = d.conn.CloseWithCode(code, reason)
		return
	}

	// Write the close frame but keep the transport up: the peer may still
	// flush in-flight messages before acknowledging.
	if err := d.conn.writeMessage(Message{
		Type:  CloseMessage,
		Close: &CloseReason{Code: code, Reason: reason},
	}); err != nil {
		d.shutdown()
		return
	}

	select {
	case <-d.closeAck:
	case <-time.After(d.closeTimeout):
		d.log.Debug("close acknowledgment timeout", zap.Duration("timeout", d.closeTimeout))
	case <-d.done:
	}
	d.shutdown()
}

// shutdown moves the connection to the terminal Closed state: the transport
// is torn down in both directions, blocked senders are released and Done is
// closed. Idempotent.
func (d *Dispatcher) shutdown() {
	d.doneOnce.Do(func() {
		d.mu.Lock()
		d.state = stateClosed
		d.mu.Unlock()
		d.cond.Broadcast()

		// Unblock any pending read or close-acknowledgment wait.
		_ = d.conn.markClosed()

		close(d.done)
		d.log.Debug("connection closed")
	})
}
