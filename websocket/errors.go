package websocket

import (
	"errors"
	"net/http"
)

// Protocol errors (RFC 6455 Sections 5 and 7.4.1).
//
// Every protocol error is fatal to an open connection: the dispatcher sends a
// best-effort close frame carrying the code from closeCodeFor and shuts the
// transport down. Errors carrying a value (opcode, length) are wrapped with
// fmt.Errorf("%w: ...") so errors.Is still matches the sentinel.

var (
	// ErrUnmaskedFrame indicates an unmasked frame from a client.
	// RFC 6455 Section 5.3: client-to-server frames must be masked.
	ErrUnmaskedFrame = errors.New("websocket: received unmasked frame from client")

	// ErrMaskedFrame indicates a masked frame from a server.
	// RFC 6455 Section 5.3: server-to-client frames must not be masked.
	ErrMaskedFrame = errors.New("websocket: received masked frame from server")

	// ErrInvalidOpcode indicates a reserved opcode (0x3-0x7, 0xB-0xF).
	// RFC 6455 Section 5.2. Wrapped with the offending opcode value.
	ErrInvalidOpcode = errors.New("websocket: invalid opcode")

	// ErrInvalidLength indicates an invalid control frame: fragmented
	// (FIN=0) or payload length > 125 bytes (RFC 6455 Section 5.5).
	// Wrapped with the declared length.
	ErrInvalidLength = errors.New("websocket: invalid control frame length")

	// ErrBadOpCode indicates an opcode that is valid on the wire but
	// unexpected at this point of the message stream.
	ErrBadOpCode = errors.New("websocket: bad opcode")

	// ErrOverflow indicates a frame or assembled message exceeding the
	// configured size limit. Status code 1009 (message too big).
	ErrOverflow = errors.New("websocket: payload reached size limit")

	// ErrContinuationNotStarted indicates a continuation frame with no
	// in-progress fragmented message (RFC 6455 Section 5.4).
	ErrContinuationNotStarted = errors.New("websocket: continuation is not started")

	// ErrContinuationStarted indicates a new initial data frame while a
	// fragmented message is still being assembled.
	ErrContinuationStarted = errors.New("websocket: continuation already started")

	// ErrContinuationFragment indicates a fragment whose opcode cannot begin
	// or continue a message. Wrapped with the offending opcode.
	ErrContinuationFragment = errors.New("websocket: unknown continuation fragment")

	// ErrReservedBits indicates RSV1/RSV2/RSV3 set without a negotiated
	// extension (RFC 6455 Section 5.2). Status code 1002.
	ErrReservedBits = errors.New("websocket: reserved bits must be 0")

	// ErrInvalidUTF8 indicates a completed text message that is not valid
	// UTF-8 (RFC 6455 Section 8.1). Status code 1007.
	ErrInvalidUTF8 = errors.New("websocket: invalid UTF-8 in text message")
)

// Connection errors (runtime, not wire-level).

var (
	// ErrClosed indicates the connection is already closed.
	ErrClosed = errors.New("websocket: connection closed")

	// ErrInvalidMessageType indicates a message type invalid for the
	// operation, e.g. ReadText on a binary message.
	ErrInvalidMessageType = errors.New("websocket: invalid message type")

	// ErrOriginDenied indicates the CheckOrigin callback rejected the
	// upgrade request. Application-level security check, not an RFC
	// requirement.
	ErrOriginDenied = errors.New("websocket: origin check failed")

	// ErrHijackFailed indicates the HTTP connection cannot be hijacked,
	// which is required to take over the raw TCP stream.
	ErrHijackFailed = errors.New("websocket: cannot hijack connection")
)

// IsCloseError reports whether err represents a clean close (close frame
// sent or received), as opposed to a network or protocol failure.
func IsCloseError(err error) bool {
	return err != nil && errors.Is(err, ErrClosed)
}

// closeCodeFor maps a protocol error to the closest close status code to
// report to the peer before shutting the connection down.
func closeCodeFor(err error) CloseCode {
	switch {
	case errors.Is(err, ErrOverflow):
		return CloseMessageTooBig
	case errors.Is(err, ErrInvalidUTF8):
		return CloseInvalidFramePayloadData
	default:
		// Malformed frames, masking violations, fragmentation violations.
		return CloseProtocolError
	}
}

// HandshakeError is a typed opening-handshake failure (RFC 6455 Section 4).
//
// Handshake errors are recoverable in the HTTP sense: the connection is never
// upgraded and each value maps to a concrete HTTP error response via
// Response or WriteResponse. The constants compare with errors.Is.
type HandshakeError int

const (
	// ErrGetMethodRequired indicates a request method other than GET.
	ErrGetMethodRequired HandshakeError = iota + 1

	// ErrNoWebsocketUpgrade indicates a missing or non-websocket Upgrade header.
	ErrNoWebsocketUpgrade

	// ErrNoConnectionUpgrade indicates a Connection header without "upgrade".
	ErrNoConnectionUpgrade

	// ErrNoVersionHeader indicates a missing Sec-WebSocket-Version header.
	ErrNoVersionHeader

	// ErrUnsupportedVersion indicates a Sec-WebSocket-Version other than 13, 8 or 7.
	ErrUnsupportedVersion

	// ErrBadWebsocketKey indicates a missing Sec-WebSocket-Key header.
	ErrBadWebsocketKey
)

// Error implements the error interface.
func (e HandshakeError) Error() string {
	switch e {
	case ErrGetMethodRequired:
		return "websocket: handshake method not allowed"
	case ErrNoWebsocketUpgrade:
		return "websocket: upgrade header is expected"
	case ErrNoConnectionUpgrade:
		return "websocket: connection upgrade is expected"
	case ErrNoVersionHeader:
		return "websocket: version header is required"
	case ErrUnsupportedVersion:
		return "websocket: unsupported version"
	case ErrBadWebsocketKey:
		return "websocket: unknown websocket key"
	default:
		return "websocket: handshake error"
	}
}

// statusText is the reason phrase used in the error response body.
func (e HandshakeError) statusText() string {
	switch e {
	case ErrNoWebsocketUpgrade:
		return "No WebSocket Upgrade header found"
	case ErrNoConnectionUpgrade:
		return "No Connection upgrade"
	case ErrNoVersionHeader:
		return "WebSocket version header is required"
	case ErrUnsupportedVersion:
		return "Unsupported WebSocket version"
	case ErrBadWebsocketKey:
		return "Handshake error"
	default:
		return "Handshake error"
	}
}

// Response builds the HTTP error response for this handshake failure:
// 405 Method Not Allowed with "Allow: GET" for ErrGetMethodRequired,
// 400 Bad Request with a descriptive status line otherwise.
func (e HandshakeError) Response() *http.Response {
	resp := &http.Response{
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     make(http.Header),
	}

	if e == ErrGetMethodRequired {
		resp.StatusCode = http.StatusMethodNotAllowed
		resp.Status = "405 Method Not Allowed"
		resp.Header.Set("Allow", http.MethodGet)
		return resp
	}

	resp.StatusCode = http.StatusBadRequest
	resp.Status = "400 " + e.statusText()
	return resp
}

// WriteResponse writes the mapped HTTP error response to a standard
// net/http ResponseWriter.
func (e HandshakeError) WriteResponse(w http.ResponseWriter) {
	if e == ErrGetMethodRequired {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, e.statusText(), http.StatusMethodNotAllowed)
		return
	}
	http.Error(w, e.statusText(), http.StatusBadRequest)
}
