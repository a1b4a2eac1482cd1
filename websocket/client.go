package websocket

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// DialOptions contains options for a client connection.
type DialOptions struct {
	// Header is added to the handshake request.
	Header http.Header

	// Subprotocols is offered via Sec-WebSocket-Protocol.
	Subprotocols []string

	// MaxFrameSize / MaxMessageSize bound inbound frames and assembled
	// messages, as in UpgradeOptions.
	MaxFrameSize   int64
	MaxMessageSize int64
}

// Dial connects to a WebSocket server and performs the opening handshake
// (RFC 6455 Section 4.1), returning a client-mode connection: outbound
// frames are masked with fresh random keys and inbound frames must arrive
// unmasked.
//
// The server's Sec-WebSocket-Accept is verified against the sent key; a
// mismatch fails the handshake. The *http.Response is returned alongside
// any handshake failure for inspection.
//
// Only plain ws:// URLs are supported; TLS termination is the transport
// layer's concern.
func Dial(ctx context.Context, url string, opts *DialOptions) (*Conn, *http.Response, error) {
	if opts == nil {
		opts = &DialOptions{}
	}

	if strings.HasPrefix(url, "wss://") {
		return nil, nil, fmt.Errorf("websocket: wss:// requires an external TLS dialer")
	}
	if !strings.HasPrefix(url, "ws://") {
		return nil, nil, fmt.Errorf("websocket: invalid URL scheme: %s", url)
	}

	// Split host and path.
	url = strings.TrimPrefix(url, "ws://")
	host, path, found := strings.Cut(url, "/")
	if found {
		path = "/" + path
	} else {
		path = "/"
	}

	var dialer net.Dialer
	netConn, err := dialer.DialContext(ctx, "tcp", host)
	if err != nil {
		return nil, nil, fmt.Errorf("websocket: dial: %w", err)
	}

	key, err := generateKey()
	if err != nil {
		_ = netConn.Close()
		return nil, nil, err
	}

	// Build and send the handshake request.
	var req strings.Builder
	fmt.Fprintf(&req, "GET %s HTTP/1.1\r\n", path)
	fmt.Fprintf(&req, "Host: %s\r\n", host)
	req.WriteString("Upgrade: websocket\r\n")
	req.WriteString("Connection: Upgrade\r\n")
	fmt.Fprintf(&req, "Sec-WebSocket-Key: %s\r\n", key)
	req.WriteString("Sec-WebSocket-Version: 13\r\n")

	if len(opts.Subprotocols) > 0 {
		fmt.Fprintf(&req, "Sec-WebSocket-Protocol: %s\r\n", strings.Join(opts.Subprotocols, ", "))
	}
	for name, values := range opts.Header {
		for _, value := range values {
			fmt.Fprintf(&req, "%s: %s\r\n", name, value)
		}
	}
	req.WriteString("\r\n")

	if _, err := netConn.Write([]byte(req.String())); err != nil {
		_ = netConn.Close()
		return nil, nil, fmt.Errorf("websocket: write handshake: %w", err)
	}

	reader := bufio.NewReader(netConn)
	resp, err := http.ReadResponse(reader, &http.Request{Method: http.MethodGet})
	if err != nil {
		_ = netConn.Close()
		return nil, nil, fmt.Errorf("websocket: read handshake response: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusSwitchingProtocols {
		_ = netConn.Close()
		return nil, resp, fmt.Errorf("websocket: handshake failed: status %d", resp.StatusCode)
	}
	if !headerContains(resp.Header.Get("Upgrade"), "websocket") {
		_ = netConn.Close()
		return nil, resp, fmt.Errorf("websocket: invalid Upgrade header: %q", resp.Header.Get("Upgrade"))
	}

	// RFC 6455 Section 4.1 item 4: the accept key must be the hash of the
	// key we sent; anything else is not a WebSocket server.
	if accept := resp.Header.Get("Sec-WebSocket-Accept"); accept != computeAcceptKey(key) {
		_ = netConn.Close()
		return nil, resp, fmt.Errorf("websocket: invalid Sec-WebSocket-Accept: %q", accept)
	}

	codec := NewCodec(&CodecOptions{
		ClientMode:     true,
		MaxFrameSize:   opts.MaxFrameSize,
		MaxMessageSize: opts.MaxMessageSize,
	})

	conn := newConn(netConn, reader, codec, nil)
	conn.subprotocol = resp.Header.Get("Sec-WebSocket-Protocol")
	return conn, resp, nil
}

// generateKey returns a fresh base64-encoded 16-byte nonce for
// Sec-WebSocket-Key (RFC 6455 Section 4.1 item 7).
func generateKey() (string, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("websocket: generate key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(nonce), nil
}
