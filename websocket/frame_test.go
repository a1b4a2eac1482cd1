package websocket

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"testing"
)

// Role argument values for parseFrame, named for readability in fixtures.
const (
	asServer = true
	asClient = false
)

// TestParseFrame_TextUnmasked tests parsing an unmasked text frame on the
// client side. RFC 6455 Section 5.6: text frames contain UTF-8 data.
func TestParseFrame_TextUnmasked(t *testing.T) {
	data := []byte{
		0x81, // FIN=1, RSV=0, opcode=0x1 (text)
		0x05, // MASK=0, length=5
		'H', 'e', 'l', 'l', 'o',
	}

	consumed, f, err := parseFrame(data, asClient, 0)
	if err != nil {
		t.Fatalf("parseFrame failed: %v", err)
	}
	if f == nil {
		t.Fatal("expected a complete frame")
	}

	if consumed != len(data) {
		t.Errorf("expected %d bytes consumed, got %d", len(data), consumed)
	}
	if !f.fin {
		t.Error("expected FIN=1")
	}
	if f.opcode != OpText {
		t.Errorf("expected opcode text(0x1), got 0x%X", byte(f.opcode))
	}
	if f.masked {
		t.Error("expected unmasked frame")
	}
	if string(f.payload) != "Hello" {
		t.Errorf("expected payload 'Hello', got '%s'", f.payload)
	}
}

// TestParseFrame_TextMasked tests parsing a masked text frame on the server
// side. RFC 6455 Section 5.3: client-to-server frames must be masked.
func TestParseFrame_TextMasked(t *testing.T) {
	payload := []byte("Hello")
	mask := [4]byte{0x12, 0x34, 0x56, 0x78}

	masked := make([]byte, len(payload))
	copy(masked, payload)
	applyMask(masked, mask)

	data := []byte{
		0x81, // FIN=1, RSV=0, opcode=0x1 (text)
		0x85, // MASK=1, length=5
		mask[0], mask[1], mask[2], mask[3],
	}
	data = append(data, masked...)

	consumed, f, err := parseFrame(data, asServer, 0)
	if err != nil {
		t.Fatalf("parseFrame failed: %v", err)
	}
	if f == nil {
		t.Fatal("expected a complete frame")
	}

	if consumed != len(data) {
		t.Errorf("expected %d bytes consumed, got %d", len(data), consumed)
	}
	if !f.masked {
		t.Error("expected masked frame")
	}
	if f.mask != mask {
		t.Errorf("expected mask %v, got %v", mask, f.mask)
	}
	if string(f.payload) != "Hello" {
		t.Errorf("expected unmasked payload 'Hello', got '%s'", f.payload)
	}
}

// TestParseFrame_Binary tests parsing a binary frame.
func TestParseFrame_Binary(t *testing.T) {
	payload := []byte{0x00, 0xFF, 0xAA, 0x55}

	data := []byte{
		0x82, // FIN=1, RSV=0, opcode=0x2 (binary)
		0x04, // MASK=0, length=4
	}
	data = append(data, payload...)

	_, f, err := parseFrame(data, asClient, 0)
	if err != nil {
		t.Fatalf("parseFrame failed: %v", err)
	}

	if f.opcode != OpBinary {
		t.Errorf("expected opcode binary(0x2), got 0x%X", byte(f.opcode))
	}
	if !bytes.Equal(f.payload, payload) {
		t.Errorf("expected payload %v, got %v", payload, f.payload)
	}
}

// TestParseFrame_Fragmented tests parsing fragment headers.
// RFC 6455 Section 5.4: messages may be fragmented.
func TestParseFrame_Fragmented(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		wantFIN bool
		wantOp  OpCode
	}{
		{
			name: "first fragment (FIN=0)",
			data: []byte{
				0x01, // FIN=0, RSV=0, opcode=0x1 (text)
				0x03, // MASK=0, length=3
				'H', 'e', 'l',
			},
			wantFIN: false,
			wantOp:  OpText,
		},
		{
			name: "continuation (FIN=0)",
			data: []byte{
				0x00, // FIN=0, RSV=0, opcode=0x0 (continuation)
				0x02, // MASK=0, length=2
				'l', 'o',
			},
			wantFIN: false,
			wantOp:  OpContinuation,
		},
		{
			name: "final continuation (FIN=1)",
			data: []byte{
				0x80, // FIN=1, RSV=0, opcode=0x0 (continuation)
				0x01, // MASK=0, length=1
				'!',
			},
			wantFIN: true,
			wantOp:  OpContinuation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, f, err := parseFrame(tt.data, asClient, 0)
			if err != nil {
				t.Fatalf("parseFrame failed: %v", err)
			}

			if f.fin != tt.wantFIN {
				t.Errorf("expected FIN=%v, got FIN=%v", tt.wantFIN, f.fin)
			}
			if f.opcode != tt.wantOp {
				t.Errorf("expected opcode 0x%X, got 0x%X", byte(tt.wantOp), byte(f.opcode))
			}
		})
	}
}

// TestParseFrame_ControlFrames tests parsing control frames.
// RFC 6455 Section 5.5: close, ping, pong.
func TestParseFrame_ControlFrames(t *testing.T) {
	tests := []struct {
		name   string
		opcode OpCode
		data   []byte
	}{
		{
			name:   "close",
			opcode: OpClose,
			data:   []byte{0x88, 0x00}, // FIN=1, opcode=0x8, length=0
		},
		{
			name:   "ping",
			opcode: OpPing,
			data: []byte{
				0x89, // FIN=1, opcode=0x9
				0x04, // length=4
				'p', 'i', 'n', 'g',
			},
		},
		{
			name:   "pong",
			opcode: OpPong,
			data: []byte{
				0x8A, // FIN=1, opcode=0xA
				0x04, // length=4
				'p', 'o', 'n', 'g',
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, f, err := parseFrame(tt.data, asClient, 0)
			if err != nil {
				t.Fatalf("parseFrame failed: %v", err)
			}

			if f.opcode != tt.opcode {
				t.Errorf("expected opcode 0x%X, got 0x%X", byte(tt.opcode), byte(f.opcode))
			}
			if !f.fin {
				t.Error("control frames must have FIN=1")
			}
		})
	}
}

// TestParseFrame_ExtendedLength16 tests 16-bit extended payload length.
// RFC 6455 Section 5.2: length field 126 selects 16-bit encoding.
func TestParseFrame_ExtendedLength16(t *testing.T) {
	payloadLen := 1000
	payload := bytes.Repeat([]byte("A"), payloadLen)

	data := []byte{
		0x81, // FIN=1, opcode=0x1 (text)
		126,  // MASK=0, length=126 (triggers 16-bit)
	}
	lenBuf := make([]byte, 2)
	binary.BigEndian.PutUint16(lenBuf, uint16(payloadLen))
	data = append(data, lenBuf...)
	data = append(data, payload...)

	consumed, f, err := parseFrame(data, asClient, 0)
	if err != nil {
		t.Fatalf("parseFrame failed: %v", err)
	}

	if consumed != len(data) {
		t.Errorf("expected %d bytes consumed, got %d", len(data), consumed)
	}
	if len(f.payload) != payloadLen {
		t.Errorf("expected payload length %d, got %d", payloadLen, len(f.payload))
	}
}

// TestParseFrame_ExtendedLength64 tests 64-bit extended payload length.
// RFC 6455 Section 5.2: length field 127 selects 64-bit encoding.
func TestParseFrame_ExtendedLength64(t *testing.T) {
	payloadLen := 70000
	payload := bytes.Repeat([]byte("B"), payloadLen)

	data := []byte{
		0x82, // FIN=1, opcode=0x2 (binary)
		127,  // MASK=0, length=127 (triggers 64-bit)
	}
	lenBuf := make([]byte, 8)
	binary.BigEndian.PutUint64(lenBuf, uint64(payloadLen))
	data = append(data, lenBuf...)
	data = append(data, payload...)

	_, f, err := parseFrame(data, asClient, 0)
	if err != nil {
		t.Fatalf("parseFrame failed: %v", err)
	}

	if len(f.payload) != payloadLen {
		t.Errorf("expected payload length %d, got %d", payloadLen, len(f.payload))
	}
}

// TestParseFrame_Length64HighBit tests the 64-bit length sign bit.
// RFC 6455 Section 5.2: the most significant bit must be 0.
func TestParseFrame_Length64HighBit(t *testing.T) {
	data := []byte{
		0x82, // FIN=1, opcode=0x2 (binary)
		127,  // MASK=0, length=127 (triggers 64-bit)
		0x80, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // high bit set
	}

	_, _, err := parseFrame(data, asClient, 0)
	if !errors.Is(err, ErrOverflow) {
		t.Errorf("expected ErrOverflow, got %v", err)
	}
}

// TestParseFrame_InvalidOpcode tests reserved opcode detection.
// RFC 6455 Section 5.2: opcodes 0x3-0x7 and 0xB-0xF are reserved.
func TestParseFrame_InvalidOpcode(t *testing.T) {
	invalidOpcodes := []byte{0x3, 0x4, 0x5, 0x6, 0x7, 0xB, 0xC, 0xD, 0xE, 0xF}

	for _, opcode := range invalidOpcodes {
		t.Run(fmt.Sprintf("opcode_0x%X", opcode), func(t *testing.T) {
			data := []byte{
				0x80 | opcode, // FIN=1, reserved opcode
				0x00,          // MASK=0, length=0
			}

			_, _, err := parseFrame(data, asClient, 0)
			if !errors.Is(err, ErrInvalidOpcode) {
				t.Errorf("expected ErrInvalidOpcode, got %v", err)
			}
		})
	}
}

// TestParseFrame_ReservedBits tests RSV bit validation.
// RFC 6455 Section 5.2: RSV bits must be 0 unless an extension negotiated them.
func TestParseFrame_ReservedBits(t *testing.T) {
	tests := []struct {
		name  string
		byte0 byte
	}{
		{"RSV1", 0xC1}, // FIN=1, RSV1=1, opcode=0x1
		{"RSV2", 0xA1}, // FIN=1, RSV2=1, opcode=0x1
		{"RSV3", 0x91}, // FIN=1, RSV3=1, opcode=0x1
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := []byte{tt.byte0, 0x00}

			_, _, err := parseFrame(data, asClient, 0)
			if !errors.Is(err, ErrReservedBits) {
				t.Errorf("expected ErrReservedBits, got %v", err)
			}
		})
	}
}

// TestParseFrame_ControlFragmented tests the control fragmentation rule.
// RFC 6455 Section 5.5: control frames must not be fragmented.
func TestParseFrame_ControlFragmented(t *testing.T) {
	data := []byte{
		0x08, // FIN=0, opcode=0x8 (close): invalid
		0x00, // MASK=0, length=0
	}

	_, _, err := parseFrame(data, asClient, 0)
	if !errors.Is(err, ErrInvalidLength) {
		t.Errorf("expected ErrInvalidLength, got %v", err)
	}
}

// TestParseFrame_ControlTooLarge tests the control payload size limit.
// RFC 6455 Section 5.5: control frames must have payload <= 125 bytes.
func TestParseFrame_ControlTooLarge(t *testing.T) {
	data := []byte{
		0x88,       // FIN=1, opcode=0x8 (close)
		126,        // MASK=0, length=126 (triggers 16-bit)
		0x00, 0x7E, // 126 bytes: exceeds the 125 limit
	}
	data = append(data, make([]byte, 126)...)

	_, _, err := parseFrame(data, asClient, 0)
	if !errors.Is(err, ErrInvalidLength) {
		t.Errorf("expected ErrInvalidLength, got %v", err)
	}
}

// TestParseFrame_MaskingRole tests role-based masking enforcement.
// RFC 6455 Section 5.3: client frames masked, server frames unmasked.
func TestParseFrame_MaskingRole(t *testing.T) {
	unmasked := []byte{0x81, 0x05, 'H', 'e', 'l', 'l', 'o'}

	mask := [4]byte{0x12, 0x34, 0x56, 0x78}
	payload := []byte("Hello")
	maskedPayload := make([]byte, len(payload))
	copy(maskedPayload, payload)
	applyMask(maskedPayload, mask)
	masked := append([]byte{0x81, 0x85, mask[0], mask[1], mask[2], mask[3]}, maskedPayload...)

	t.Run("server rejects unmasked", func(t *testing.T) {
		_, _, err := parseFrame(unmasked, asServer, 0)
		if !errors.Is(err, ErrUnmaskedFrame) {
			t.Errorf("expected ErrUnmaskedFrame, got %v", err)
		}
	})

	t.Run("client rejects masked", func(t *testing.T) {
		_, _, err := parseFrame(masked, asClient, 0)
		if !errors.Is(err, ErrMaskedFrame) {
			t.Errorf("expected ErrMaskedFrame, got %v", err)
		}
	})
}

// TestParseFrame_FrameSizeLimit tests the declared-length bound. Oversized
// frames are rejected from the header alone, before any payload arrives.
func TestParseFrame_FrameSizeLimit(t *testing.T) {
	// Header advertising 1000 bytes; no payload attached at all.
	data := []byte{0x82, 126, 0x03, 0xE8}

	_, _, err := parseFrame(data, asClient, 64)
	if !errors.Is(err, ErrOverflow) {
		t.Errorf("expected ErrOverflow, got %v", err)
	}

	// The same header passes under a larger limit (incomplete, not an error).
	consumed, f, err := parseFrame(data, asClient, 4096)
	if err != nil || f != nil || consumed != 0 {
		t.Errorf("expected incomplete (0, nil, nil), got (%d, %v, %v)", consumed, f, err)
	}
}

// TestParseFrame_Incomplete tests resumable parsing: every truncation of a
// valid frame must report "need more" without consuming bytes.
func TestParseFrame_Incomplete(t *testing.T) {
	mask := [4]byte{0x12, 0x34, 0x56, 0x78}
	payload := []byte("Hello")
	maskedPayload := make([]byte, len(payload))
	copy(maskedPayload, payload)
	applyMask(maskedPayload, mask)
	full := append([]byte{0x81, 0x85, mask[0], mask[1], mask[2], mask[3]}, maskedPayload...)

	for cut := 0; cut < len(full); cut++ {
		consumed, f, err := parseFrame(full[:cut], asServer, 0)
		if err != nil {
			t.Fatalf("cut at %d: unexpected error: %v", cut, err)
		}
		if f != nil || consumed != 0 {
			t.Fatalf("cut at %d: expected incomplete, got consumed=%d frame=%v", cut, consumed, f)
		}
	}

	consumed, f, err := parseFrame(full, asServer, 0)
	if err != nil || f == nil || consumed != len(full) {
		t.Fatalf("full buffer: expected complete frame, got (%d, %v, %v)", consumed, f, err)
	}
}

// TestParseFrame_TrailingBytes verifies parsing stops at the frame boundary,
// leaving pipelined bytes for the next call.
func TestParseFrame_TrailingBytes(t *testing.T) {
	first := []byte{0x81, 0x02, 'h', 'i'}
	second := []byte{0x89, 0x00} // ping behind the text frame

	buf := append(append([]byte{}, first...), second...)

	consumed, f, err := parseFrame(buf, asClient, 0)
	if err != nil {
		t.Fatalf("parseFrame failed: %v", err)
	}
	if consumed != len(first) {
		t.Errorf("expected %d bytes consumed, got %d", len(first), consumed)
	}
	if string(f.payload) != "hi" {
		t.Errorf("expected payload 'hi', got '%s'", f.payload)
	}

	consumed, f, err = parseFrame(buf[consumed:], asClient, 0)
	if err != nil {
		t.Fatalf("second parseFrame failed: %v", err)
	}
	if f.opcode != OpPing || consumed != len(second) {
		t.Errorf("expected ping frame of %d bytes, got opcode 0x%X, consumed %d",
			len(second), byte(f.opcode), consumed)
	}
}

// TestEncodeFrame_Text tests encoding an unmasked text frame.
func TestEncodeFrame_Text(t *testing.T) {
	var buf bytes.Buffer
	encodeFrame(&buf, true, OpText, nil, []byte("Hello"))

	expected := []byte{
		0x81, // FIN=1, RSV=0, opcode=0x1
		0x05, // MASK=0, length=5
		'H', 'e', 'l', 'l', 'o',
	}

	if !bytes.Equal(buf.Bytes(), expected) {
		t.Errorf("expected %v, got %v", expected, buf.Bytes())
	}
}

// TestEncodeFrame_Masked tests encoding a masked frame.
func TestEncodeFrame_Masked(t *testing.T) {
	payload := []byte("Test")
	mask := [4]byte{0x12, 0x34, 0x56, 0x78}

	var buf bytes.Buffer
	encodeFrame(&buf, true, OpText, &mask, payload)

	data := buf.Bytes()

	if data[0] != 0x81 {
		t.Errorf("expected header byte 0x81, got 0x%02X", data[0])
	}
	if data[1] != 0x84 { // MASK=1, length=4
		t.Errorf("expected header byte 0x84, got 0x%02X", data[1])
	}
	if !bytes.Equal(data[2:6], mask[:]) {
		t.Errorf("expected mask %v, got %v", mask, data[2:6])
	}

	masked := make([]byte, len(payload))
	copy(masked, payload)
	applyMask(masked, mask)
	if !bytes.Equal(data[6:], masked) {
		t.Errorf("expected masked payload %v, got %v", masked, data[6:])
	}

	// The caller's slice must be left untouched.
	if string(payload) != "Test" {
		t.Errorf("encodeFrame mutated the caller's payload: %v", payload)
	}
}

// TestEncodeFrame_LengthEncodings tests the three length encodings.
// RFC 6455 Section 5.2: use the minimal encoding for the payload size.
func TestEncodeFrame_LengthEncodings(t *testing.T) {
	tests := []struct {
		name       string
		payloadLen int
		headerLen  int
		lenByte    byte
	}{
		{"7-bit max", 125, 2, 125},
		{"16-bit min", 126, 4, 126},
		{"16-bit max", 65535, 4, 126},
		{"64-bit min", 65536, 10, 127},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			encodeFrame(&buf, true, OpBinary, nil, make([]byte, tt.payloadLen))

			data := buf.Bytes()
			if len(data) != tt.headerLen+tt.payloadLen {
				t.Errorf("expected total size %d, got %d", tt.headerLen+tt.payloadLen, len(data))
			}
			if data[1]&0x7F != tt.lenByte {
				t.Errorf("expected length byte %d, got %d", tt.lenByte, data[1]&0x7F)
			}
		})
	}
}

// TestFrame_EncodeParseRoundTrip verifies encode/parse symmetry in both
// masking roles.
func TestFrame_EncodeParseRoundTrip(t *testing.T) {
	payload := []byte("round trip payload")

	t.Run("server to client", func(t *testing.T) {
		var buf bytes.Buffer
		encodeFrame(&buf, true, OpBinary, nil, payload)

		consumed, f, err := parseFrame(buf.Bytes(), asClient, 0)
		if err != nil {
			t.Fatalf("parseFrame failed: %v", err)
		}
		if consumed != buf.Len() {
			t.Errorf("expected %d bytes consumed, got %d", buf.Len(), consumed)
		}
		if !bytes.Equal(f.payload, payload) {
			t.Errorf("expected payload %v, got %v", payload, f.payload)
		}
	})

	t.Run("client to server", func(t *testing.T) {
		mask := newMaskKey()
		var buf bytes.Buffer
		encodeFrame(&buf, true, OpBinary, &mask, payload)

		consumed, f, err := parseFrame(buf.Bytes(), asServer, 0)
		if err != nil {
			t.Fatalf("parseFrame failed: %v", err)
		}
		if consumed != buf.Len() {
			t.Errorf("expected %d bytes consumed, got %d", buf.Len(), consumed)
		}
		if !bytes.Equal(f.payload, payload) {
			t.Errorf("expected payload %v, got %v", payload, f.payload)
		}
	})
}
