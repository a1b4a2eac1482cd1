package websocket

import (
	"bufio"
	"crypto/sha1" // #nosec G505 - SHA-1 required by RFC 6455 Section 1.3
	"encoding/base64"
	"net/http"
	"strings"
)

// Magic GUID from RFC 6455 Section 1.3.
// Used for computing Sec-WebSocket-Accept header.
const websocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// supportedVersions lists the Sec-WebSocket-Version tokens this server
// accepts. 13 is the RFC 6455 version; 8 and 7 are the hybi drafts that
// share its handshake.
var supportedVersions = []string{"13", "8", "7"}

// Default buffer sizes for WebSocket connections.
const (
	defaultReadBufferSize  = 4096
	defaultWriteBufferSize = 4096
)

// VerifyHandshake inspects an inbound HTTP request head and reports the
// first opening-handshake violation as a HandshakeError, or nil when the
// request is a well-formed upgrade.
//
// Checks run in order, short-circuiting on the first failure
// (RFC 6455 Section 4.2.1):
//  1. method is GET
//  2. Upgrade header contains "websocket"
//  3. Connection header contains "upgrade"
//  4. Sec-WebSocket-Version present and one of 13, 8, 7
//  5. Sec-WebSocket-Key present
//
// Header matching is permissive case-insensitive containment rather than
// strict token-list parsing; tightening it would break clients that send
// unconventional but accepted header values.
func VerifyHandshake(r *http.Request) error {
	if r.Method != http.MethodGet {
		return ErrGetMethodRequired
	}

	if !headerContains(r.Header.Get("Upgrade"), "websocket") {
		return ErrNoWebsocketUpgrade
	}

	if !headerContains(r.Header.Get("Connection"), "upgrade") {
		return ErrNoConnectionUpgrade
	}

	version := r.Header.Get("Sec-WebSocket-Version")
	if version == "" {
		return ErrNoVersionHeader
	}
	supported := false
	for _, v := range supportedVersions {
		if version == v {
			supported = true
			break
		}
	}
	if !supported {
		return ErrUnsupportedVersion
	}

	if r.Header.Get("Sec-WebSocket-Key") == "" {
		return ErrBadWebsocketKey
	}

	return nil
}

// HandshakeResponse builds the 101 Switching Protocols response for a
// request that passed VerifyHandshake: Upgrade and Connection directives
// plus the Sec-WebSocket-Accept derived from the client key.
//
// The caller may add headers (e.g. Sec-WebSocket-Protocol) before sending.
func HandshakeResponse(r *http.Request) *http.Response {
	resp := &http.Response{
		StatusCode: http.StatusSwitchingProtocols,
		Status:     "101 Switching Protocols",
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     make(http.Header),
	}
	resp.Header.Set("Upgrade", "websocket")
	resp.Header.Set("Connection", "Upgrade")
	resp.Header.Set("Sec-WebSocket-Accept", computeAcceptKey(r.Header.Get("Sec-WebSocket-Key")))
	return resp
}

// Handshake validates the upgrade request and, on success, returns the
// ready-to-finish 101 response. On failure the returned error is a
// HandshakeError whose Response method maps it to an HTTP error response.
func Handshake(r *http.Request) (*http.Response, error) {
	if err := VerifyHandshake(r); err != nil {
		return nil, err
	}
	return HandshakeResponse(r), nil
}

// UpgradeOptions configures WebSocket upgrade behavior.
//
// All fields are optional. Zero values use sensible defaults.
type UpgradeOptions struct {
	// Subprotocols is the list of subprotocols advertised by the server.
	// The first match from the client's requested list is selected.
	Subprotocols []string

	// CheckOrigin verifies the Origin header.
	// nil = allow all origins. Return false to reject the connection.
	CheckOrigin func(*http.Request) bool

	// ReadBufferSize sets the transport read chunk size (default: 4096).
	ReadBufferSize int

	// WriteBufferSize sets the transport write buffer size (default: 4096).
	WriteBufferSize int

	// MaxFrameSize bounds a single inbound frame payload (default: 32 MB).
	MaxFrameSize int64

	// MaxMessageSize bounds an assembled inbound message (default: 32 MB).
	MaxMessageSize int64
}

// Upgrade upgrades an HTTP connection to the WebSocket protocol and returns
// the server-side Conn.
//
// Implements RFC 6455 Section 4: verify the request, negotiate an optional
// subprotocol, send 101 Switching Protocols, then hijack the TCP connection
// and hand it to a server-mode codec.
//
// Handshake failures are returned as HandshakeError values; use
// HandshakeError.WriteResponse (or http.Error) to answer the client.
//
// Example:
//
//	func handler(w http.ResponseWriter, r *http.Request) {
//	    conn, err := websocket.Upgrade(w, r, nil)
//	    if err != nil {
//	        var hsErr websocket.HandshakeError
//	        if errors.As(err, &hsErr) {
//	            hsErr.WriteResponse(w)
//	        }
//	        return
//	    }
//	    defer conn.Close()
//
//	    msgType, data, _ := conn.Read()
//	    conn.Write(msgType, data)
//	}
func Upgrade(w http.ResponseWriter, r *http.Request, opts *UpgradeOptions) (*Conn, error) {
	if opts == nil {
		opts = &UpgradeOptions{}
	}
	if opts.ReadBufferSize == 0 {
		opts.ReadBufferSize = defaultReadBufferSize
	}
	if opts.WriteBufferSize == 0 {
		opts.WriteBufferSize = defaultWriteBufferSize
	}

	if err := VerifyHandshake(r); err != nil {
		return nil, err
	}

	// Origin check is application-level security, not part of the protocol
	// handshake proper.
	if opts.CheckOrigin != nil && !opts.CheckOrigin(r) {
		return nil, ErrOriginDenied
	}

	subprotocol := negotiateSubprotocol(r, opts.Subprotocols)

	// Send 101 Switching Protocols.
	w.Header().Set("Upgrade", "websocket")
	w.Header().Set("Connection", "Upgrade")
	w.Header().Set("Sec-WebSocket-Accept", computeAcceptKey(r.Header.Get("Sec-WebSocket-Key")))
	if subprotocol != "" {
		w.Header().Set("Sec-WebSocket-Protocol", subprotocol)
	}
	w.WriteHeader(http.StatusSwitchingProtocols)

	// Take over the TCP socket.
	hijacker, ok := w.(http.Hijacker)
	if !ok {
		return nil, ErrHijackFailed
	}

	netConn, bufrw, err := hijacker.Hijack()
	if err != nil {
		return nil, err
	}

	if err := bufrw.Flush(); err != nil {
		_ = netConn.Close()
		return nil, err
	}

	// Reuse the hijacked reader so bytes the client pipelined behind the
	// handshake are not lost.
	var reader *bufio.Reader
	if bufrw.Reader.Buffered() > 0 || bufrw.Reader.Size() >= opts.ReadBufferSize {
		reader = bufrw.Reader
	} else {
		reader = bufio.NewReaderSize(netConn, opts.ReadBufferSize)
	}

	codec := NewCodec(&CodecOptions{
		MaxFrameSize:   opts.MaxFrameSize,
		MaxMessageSize: opts.MaxMessageSize,
	})

	conn := newConn(netConn, reader, codec, opts)
	conn.subprotocol = subprotocol
	return conn, nil
}

// computeAcceptKey computes Sec-WebSocket-Accept from the client key.
//
// RFC 6455 Section 1.3:
//
//	Sec-WebSocket-Accept = base64(SHA-1(key + GUID))
//
// Example:
//
//	computeAcceptKey("dGhlIHNhbXBsZSBub25jZQ==")
//	// "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="
func computeAcceptKey(key string) string {
	// #nosec G401 - SHA-1 mandated by RFC 6455 Section 1.3, not used for security
	h := sha1.New()
	h.Write([]byte(key))
	h.Write([]byte(websocketGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// negotiateSubprotocol selects the first match from the client's requested
// subprotocols (RFC 6455 Section 1.9). Returns "" when nothing matches or
// no subprotocols are configured.
func negotiateSubprotocol(r *http.Request, serverProtos []string) string {
	if len(serverProtos) == 0 {
		return ""
	}

	for _, clientProto := range strings.Split(r.Header.Get("Sec-WebSocket-Protocol"), ",") {
		clientProto = strings.TrimSpace(clientProto)
		for _, serverProto := range serverProtos {
			if clientProto == serverProto {
				return clientProto
			}
		}
	}

	return ""
}

// headerContains reports whether the header value contains the token,
// case-insensitively. Deliberately a substring match, not token-list
// parsing; see VerifyHandshake.
func headerContains(header, token string) bool {
	return strings.Contains(strings.ToLower(header), token)
}

// CheckSameOrigin returns true if the Origin header matches the request
// host, or is absent (non-browser clients).
//
// Usage:
//
//	opts := &websocket.UpgradeOptions{CheckOrigin: websocket.CheckSameOrigin}
func CheckSameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}

	return origin == scheme+"://"+r.Host
}
