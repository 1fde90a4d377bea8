package message

import (
	"encoding/binary"

	"github.com/freehold-rts/netcode-client/pkg/errors"
)

// Wire format for the game server connection.
//
// Frame format:
// [1 byte: message type][2 bytes: payload length, little-endian][payload]
//
// Server -> client message types:
//   0x01 = Welcome (sent once after the server accepts the connection)
//   0x02 = PingResponse
//
// Client -> server message types:
//   0x01 = Ping
//
// Every other type value is opaque to this layer and gets handed to the
// game as-is. The payload catalog lives with the server protocol docs.

const (
	FrameHeaderSize = 3
	MaxPayloadSize  = 65535
)

type ServerMessageType uint8

const (
	ServerMessageType_Welcome      ServerMessageType = 0x01
	ServerMessageType_PingResponse ServerMessageType = 0x02
)

type ClientMessageType uint8

const (
	ClientMessageType_Ping ClientMessageType = 0x01
)

type Frame struct {
	Type    uint8
	Length  uint16
	Payload []byte
}

func EncodeFrame(msgType uint8, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, &errors.PayloadTooLarge{
			MessageName: "Frame",
			PayloadSize: len(payload),
			MaximumSize: MaxPayloadSize,
		}
	}

	buf := make([]byte, FrameHeaderSize+len(payload))
	buf[0] = msgType
	binary.LittleEndian.PutUint16(buf[1:3], uint16(len(payload)))
	copy(buf[FrameHeaderSize:], payload)
	return buf, nil
}

// DecodeBuffer accumulates raw bytes off the wire and yields complete frames
// in arrival order. Bytes that do not yet form a complete frame stay buffered
// until more data arrives. Not safe for concurrent use - the connection's
// run loop is the only caller.
type DecodeBuffer struct {
	pending []byte
}

func CreateDecodeBuffer() *DecodeBuffer {
	return &DecodeBuffer{}
}

func (b *DecodeBuffer) Append(data []byte) {
	b.pending = append(b.pending, data...)
}

// Len reports the number of buffered bytes not yet consumed by NextFrame.
func (b *DecodeBuffer) Len() int {
	return len(b.pending)
}

// NextFrame pops the next complete frame off the front of the buffer. It
// returns false when the buffered bytes do not contain a full frame yet; no
// bytes are consumed in that case. The returned payload is a copy, callers
// may retain it.
func (b *DecodeBuffer) NextFrame() (Frame, bool) {
	if len(b.pending) < FrameHeaderSize {
		return Frame{}, false
	}

	payloadLength := binary.LittleEndian.Uint16(b.pending[1:3])
	frameSize := FrameHeaderSize + int(payloadLength)
	if len(b.pending) < frameSize {
		return Frame{}, false
	}

	payload := make([]byte, payloadLength)
	copy(payload, b.pending[FrameHeaderSize:frameSize])

	frame := Frame{
		Type:    b.pending[0],
		Length:  payloadLength,
		Payload: payload,
	}

	b.pending = b.pending[frameSize:]
	return frame, true
}

func (b *DecodeBuffer) Reset() {
	b.pending = nil
}
