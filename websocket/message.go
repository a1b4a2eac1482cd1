package websocket

import (
	"encoding/binary"
	"unicode/utf8"
)

// MessageType represents the application-visible kind of a Message.
//
// Data message types (Text, Binary, Continuation) map directly to the frame
// opcodes of RFC 6455 Section 5.6; control types map to Section 5.5.
type MessageType int

const (
	// ContinuationMessage carries a raw message fragment. Only produced when
	// the Codec runs in raw-fragment mode; the Item field identifies the
	// fragment's position within the message.
	ContinuationMessage MessageType = 0

	// TextMessage is a complete UTF-8 text message (opcode 0x1).
	TextMessage MessageType = 1

	// BinaryMessage is a complete binary message (opcode 0x2).
	BinaryMessage MessageType = 2

	// CloseMessage is a close control message (opcode 0x8).
	// The Close field carries the optional status code and reason.
	CloseMessage MessageType = 8

	// PingMessage is a ping control message (opcode 0x9).
	PingMessage MessageType = 9

	// PongMessage is a pong control message (opcode 0xA).
	PongMessage MessageType = 10

	// NopMessage carries no data and produces no frames when encoded.
	NopMessage MessageType = -1
)

// String returns string representation of message type.
func (mt MessageType) String() string {
	switch mt {
	case ContinuationMessage:
		return "Continuation"
	case TextMessage:
		return "Text"
	case BinaryMessage:
		return "Binary"
	case CloseMessage:
		return "Close"
	case PingMessage:
		return "Ping"
	case PongMessage:
		return "Pong"
	case NopMessage:
		return "Nop"
	default:
		return "Unknown"
	}
}

// Item marks the position of a raw fragment within a fragmented message.
//
// Only meaningful on Messages of type ContinuationMessage.
type Item int

const (
	// ItemFirstText is the initial fragment of a text message (FIN=0, opcode 0x1).
	ItemFirstText Item = iota + 1

	// ItemFirstBinary is the initial fragment of a binary message (FIN=0, opcode 0x2).
	ItemFirstBinary

	// ItemContinue is an intermediate fragment (FIN=0, opcode 0x0).
	ItemContinue

	// ItemLast is the terminating fragment (FIN=1, opcode 0x0).
	ItemLast
)

// String returns string representation of the fragment marker.
func (it Item) String() string {
	switch it {
	case ItemFirstText:
		return "FirstText"
	case ItemFirstBinary:
		return "FirstBinary"
	case ItemContinue:
		return "Continue"
	case ItemLast:
		return "Last"
	default:
		return "Unknown"
	}
}

// Message is the unit exchanged across the application boundary: either a
// complete data message assembled from one or more frames, a raw fragment
// (raw-fragment mode), or a control message.
//
// Exactly one interpretation applies depending on Type:
//   - TextMessage/BinaryMessage: Data holds the complete payload.
//   - ContinuationMessage: Data holds one fragment, Item marks its position.
//   - PingMessage/PongMessage: Data holds the control payload (<= 125 bytes).
//   - CloseMessage: Close holds the optional status code and reason.
//   - NopMessage: no payload.
type Message struct {
	Type  MessageType
	Data  []byte
	Item  Item
	Close *CloseReason
}

// Text builds a text Message.
func Text(s string) Message {
	return Message{Type: TextMessage, Data: []byte(s)}
}

// Binary builds a binary Message.
func Binary(data []byte) Message {
	return Message{Type: BinaryMessage, Data: data}
}

// CloseCode is a WebSocket close status code (RFC 6455 Section 7.4).
//
// The named constants cover the codes defined by the protocol; any other
// numeric value round-trips through close frames unchanged.
type CloseCode uint16

const (
	// CloseNormalClosure indicates normal closure (1000).
	CloseNormalClosure CloseCode = 1000

	// CloseGoingAway indicates the endpoint is going away (1001),
	// e.g. server shutdown or browser navigation.
	CloseGoingAway CloseCode = 1001

	// CloseProtocolError indicates a protocol violation (1002).
	CloseProtocolError CloseCode = 1002

	// CloseUnsupportedData indicates the endpoint received a data type it
	// cannot accept (1003).
	CloseUnsupportedData CloseCode = 1003

	// 1004 is reserved and must not be sent.

	// CloseNoStatusReceived (1005) is reserved; it is reported locally when a
	// close frame carried no status code and must not be sent on the wire.
	CloseNoStatusReceived CloseCode = 1005

	// CloseAbnormalClosure (1006) is reserved; it is reported locally when the
	// connection dropped without a close frame.
	CloseAbnormalClosure CloseCode = 1006

	// CloseInvalidFramePayloadData indicates inconsistent payload data (1007),
	// e.g. invalid UTF-8 in a text message.
	CloseInvalidFramePayloadData CloseCode = 1007

	// ClosePolicyViolation indicates a generic policy violation (1008).
	ClosePolicyViolation CloseCode = 1008

	// CloseMessageTooBig indicates a message too large to process (1009).
	CloseMessageTooBig CloseCode = 1009

	// CloseMandatoryExtension indicates a required extension was not
	// negotiated (1010).
	CloseMandatoryExtension CloseCode = 1010

	// CloseInternalServerErr indicates an unexpected server condition (1011).
	CloseInternalServerErr CloseCode = 1011

	// CloseServiceRestart indicates the server is restarting (1012).
	CloseServiceRestart CloseCode = 1012

	// CloseTryAgainLater indicates temporary overload (1013).
	CloseTryAgainLater CloseCode = 1013

	// CloseBadGateway indicates an invalid response from an upstream
	// server (1014).
	CloseBadGateway CloseCode = 1014

	// CloseTLSHandshake (1015) is reserved; it is reported locally on TLS
	// handshake failure and must not be sent on the wire.
	CloseTLSHandshake CloseCode = 1015
)

// String returns string representation of close code.
//
//nolint:cyclop // one case per RFC 6455 status code
func (cc CloseCode) String() string {
	switch cc {
	case CloseNormalClosure:
		return "Normal Closure"
	case CloseGoingAway:
		return "Going Away"
	case CloseProtocolError:
		return "Protocol Error"
	case CloseUnsupportedData:
		return "Unsupported Data"
	case CloseNoStatusReceived:
		return "No Status Received"
	case CloseAbnormalClosure:
		return "Abnormal Closure"
	case CloseInvalidFramePayloadData:
		return "Invalid Frame Payload Data"
	case ClosePolicyViolation:
		return "Policy Violation"
	case CloseMessageTooBig:
		return "Message Too Big"
	case CloseMandatoryExtension:
		return "Mandatory Extension"
	case CloseInternalServerErr:
		return "Internal Server Error"
	case CloseServiceRestart:
		return "Service Restart"
	case CloseTryAgainLater:
		return "Try Again Later"
	case CloseBadGateway:
		return "Bad Gateway"
	case CloseTLSHandshake:
		return "TLS Handshake"
	default:
		return "Other"
	}
}

// CloseReason is the optional body of a close frame: a status code plus a
// short UTF-8 description (RFC 6455 Section 7.1.6).
type CloseReason struct {
	Code   CloseCode
	Reason string
}

// encodeCloseReason serializes a close frame payload: 2-byte big-endian
// status code followed by the UTF-8 reason. A nil reason yields an empty
// payload (close frame without status).
func encodeCloseReason(reason *CloseReason) []byte {
	if reason == nil {
		return nil
	}
	payload := make([]byte, 2+len(reason.Reason))
	binary.BigEndian.PutUint16(payload, uint16(reason.Code))
	copy(payload[2:], reason.Reason)
	return payload
}

// parseCloseReason extracts the status code and reason from a close frame
// payload. Returns nil for an empty payload (no status supplied).
//
// RFC 6455 Section 5.5.1: a one-byte body and a non-UTF-8 reason are both
// payload errors surfaced as ErrInvalidLength / invalid data respectively;
// parsing is lenient here and validation happens in the codec.
func parseCloseReason(payload []byte) *CloseReason {
	if len(payload) < 2 {
		return nil
	}
	reason := &CloseReason{
		Code: CloseCode(binary.BigEndian.Uint16(payload[:2])),
	}
	if len(payload) > 2 && utf8.Valid(payload[2:]) {
		reason.Reason = string(payload[2:])
	}
	return reason
}
