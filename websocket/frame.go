package websocket

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Payload length encoding (RFC 6455 Section 5.2).
const (
	// maxControlPayload is the maximum payload length for control frames.
	// RFC 6455 Section 5.5: control frames must have payload <= 125 bytes.
	maxControlPayload = 125

	// payloadLen7Bit, payloadLen16Bit, payloadLen64Bit are the 7-bit length
	// field thresholds: 0-125 literal, 126 = next 2 bytes, 127 = next 8 bytes.
	payloadLen7Bit  = 125
	payloadLen16Bit = 126
	payloadLen64Bit = 127
)

// frame represents a single WebSocket frame as defined in RFC 6455 Section 5.2.
//
// Frame structure:
//
//	 0                   1                   2                   3
//	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//	+-+-+-+-+-------+-+-------------+-------------------------------+
//	|F|R|R|R| opcode|M| Payload len |    Extended payload length    |
//	|I|S|S|S|  (4)  |A|     (7)     |             (16/64)           |
//	|N|V|V|V|       |S|             |   (if payload len==126/127)   |
//	| |1|2|3|       |K|             |                               |
//	+-+-+-+-+-------+-+-------------+ - - - - - - - - - - - - - - - +
//	|     Extended payload length continued, if payload len == 127  |
//	+ - - - - - - - - - - - - - - - +-------------------------------+
//	| Masking-key, if MASK set to 1 |          Payload Data         |
//	+-------------------------------- - - - - - - - - - - - - - - - +
//
// A frame lives only between decoding and assembly (inbound) or between
// submission and transmission (outbound); the payload slice is owned by the
// frame once parseFrame returns.
type frame struct {
	// fin indicates the final fragment of a message (FIN bit).
	fin bool

	// opcode identifies the frame purpose (4 bits).
	opcode OpCode

	// masked indicates the payload arrived masked (MASK bit).
	masked bool

	// mask is the 4-byte masking key; valid only when masked is true.
	mask [4]byte

	// payload is the frame payload, already unmasked.
	payload []byte
}

// parseFrame attempts to decode exactly one frame from the front of buf,
// which holds the unconsumed transport bytes.
//
// Returns the number of bytes consumed and the decoded frame with its payload
// unmasked. A (0, nil, nil) result means buf does not yet contain a complete
// frame; no bytes are consumed and the caller must retry with more input.
//
// Validation (header-only, reported before the payload is required):
//   - reserved bits set -> ErrReservedBits
//   - reserved opcode -> ErrInvalidOpcode
//   - fragmented control frame or control payload > 125 -> ErrInvalidLength
//   - 64-bit length with the high bit set -> ErrOverflow
//   - declared length above maxFrame -> ErrOverflow
//   - masking inconsistent with role -> ErrUnmaskedFrame / ErrMaskedFrame
//
// serverMode selects the masking expectation: servers require masked inbound
// frames, clients require unmasked ones (RFC 6455 Section 5.3).
func parseFrame(buf []byte, serverMode bool, maxFrame int64) (int, *frame, error) {
	if len(buf) < 2 {
		return 0, nil, nil
	}

	f := &frame{
		fin:    buf[0]&0x80 != 0,
		opcode: OpCode(buf[0] & 0x0F),
		masked: buf[1]&0x80 != 0,
	}

	// RSV bits are reserved for extensions; none are negotiated here.
	if buf[0]&0x70 != 0 {
		return 0, nil, ErrReservedBits
	}

	if !f.opcode.isValid() {
		return 0, nil, fmt.Errorf("%w: 0x%X", ErrInvalidOpcode, byte(f.opcode))
	}

	payloadLen := int64(buf[1] & 0x7F)
	offset := 2

	switch payloadLen {
	case payloadLen16Bit:
		if len(buf) < offset+2 {
			return 0, nil, nil
		}
		payloadLen = int64(binary.BigEndian.Uint16(buf[offset:]))
		offset += 2
	case payloadLen64Bit:
		if len(buf) < offset+8 {
			return 0, nil, nil
		}
		length := binary.BigEndian.Uint64(buf[offset:])
		// RFC 6455 Section 5.2: the most significant bit must be 0.
		if length&(1<<63) != 0 {
			return 0, nil, ErrOverflow
		}
		payloadLen = int64(length)
		offset += 8
	}

	// RFC 6455 Section 5.5: control frames must not be fragmented and carry
	// at most 125 bytes.
	if f.opcode.isControl() && (!f.fin || payloadLen > maxControlPayload) {
		return 0, nil, fmt.Errorf("%w: %d", ErrInvalidLength, payloadLen)
	}

	// Reject oversized frames before buffering the payload, bounding memory
	// against a hostile peer advertising a huge length.
	if maxFrame > 0 && payloadLen > maxFrame {
		return 0, nil, fmt.Errorf("%w: frame of %d bytes", ErrOverflow, payloadLen)
	}

	// RFC 6455 Section 5.3: masking is mandatory client-to-server and
	// forbidden server-to-client.
	if serverMode && !f.masked {
		return 0, nil, ErrUnmaskedFrame
	}
	if !serverMode && f.masked {
		return 0, nil, ErrMaskedFrame
	}

	if f.masked {
		if len(buf) < offset+4 {
			return 0, nil, nil
		}
		copy(f.mask[:], buf[offset:offset+4])
		offset += 4
	}

	if int64(len(buf)-offset) < payloadLen {
		return 0, nil, nil
	}

	if payloadLen > 0 {
		f.payload = make([]byte, payloadLen)
		copy(f.payload, buf[offset:offset+int(payloadLen)])
		if f.masked {
			applyMask(f.payload, f.mask)
		}
	}

	return offset + int(payloadLen), f, nil
}

// encodeFrame appends the wire format of one frame to dst: 2-byte header,
// extended length bytes as needed, the optional 4-byte mask key, then the
// payload (masked with the key when one is supplied).
//
// Callers are responsible for not encoding a control frame with FIN=0 or a
// payload above 125 bytes; encodeFrame does not re-validate.
func encodeFrame(dst *bytes.Buffer, fin bool, opcode OpCode, mask *[4]byte, payload []byte) {
	var b0 byte
	if fin {
		b0 |= 0x80
	}
	b0 |= byte(opcode) & 0x0F

	var b1 byte
	if mask != nil {
		b1 |= 0x80
	}

	payloadLen := len(payload)
	switch {
	case payloadLen <= payloadLen7Bit:
		dst.WriteByte(b0)
		dst.WriteByte(b1 | byte(payloadLen))
	case payloadLen <= 0xFFFF:
		dst.WriteByte(b0)
		dst.WriteByte(b1 | payloadLen16Bit)
		var ext [2]byte
		binary.BigEndian.PutUint16(ext[:], uint16(payloadLen))
		dst.Write(ext[:])
	default:
		dst.WriteByte(b0)
		dst.WriteByte(b1 | payloadLen64Bit)
		var ext [8]byte
		binary.BigEndian.PutUint64(ext[:], uint64(payloadLen))
		dst.Write(ext[:])
	}

	if mask == nil {
		dst.Write(payload)
		return
	}

	dst.Write(mask[:])

	// Mask a copy so the caller's payload is left untouched.
	masked := make([]byte, len(payload))
	copy(masked, payload)
	applyMask(masked, *mask)
	dst.Write(masked)
}
