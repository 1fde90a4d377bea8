package message

import (
	"encoding/binary"
	"math"

	"github.com/freehold-rts/netcode-client/pkg/errors"
)

// Latency probe payloads.
//
// Ping: [8 bytes: sequence number, little-endian u64]
// PingResponse: [8 bytes: sequence number][8 bytes: server time in seconds, IEEE-754 f64]
//
// The server echoes the sequence number unchanged and stamps the response
// with its own clock, which is what the offset estimation runs on.

const (
	pingPayloadSize         = 8
	pingResponsePayloadSize = 16
)

type Ping struct {
	Sequence uint64
}

type PingResponse struct {
	Sequence   uint64
	ServerTime float64
}

// EncodePing builds a complete ping frame, header included.
func EncodePing(sequence uint64) []byte {
	buf := make([]byte, FrameHeaderSize+pingPayloadSize)
	buf[0] = uint8(ClientMessageType_Ping)
	binary.LittleEndian.PutUint16(buf[1:3], pingPayloadSize)
	binary.LittleEndian.PutUint64(buf[FrameHeaderSize:], sequence)
	return buf
}

func ParsePing(payload []byte) (*Ping, error) {
	if len(payload) < pingPayloadSize {
		return nil, &errors.Underflow{
			MessageName: "Client::Ping",
			MsgSize:     len(payload),
			MinimumSize: pingPayloadSize,
		}
	}

	return &Ping{
		Sequence: binary.LittleEndian.Uint64(payload[0:8]),
	}, nil
}

// EncodePingResponse builds a complete ping response frame. Used by the
// server side of the protocol (see examples/echo-server) and by tests.
func EncodePingResponse(sequence uint64, serverTime float64) []byte {
	buf := make([]byte, FrameHeaderSize+pingResponsePayloadSize)
	buf[0] = uint8(ServerMessageType_PingResponse)
	binary.LittleEndian.PutUint16(buf[1:3], pingResponsePayloadSize)
	binary.LittleEndian.PutUint64(buf[FrameHeaderSize:], sequence)
	binary.LittleEndian.PutUint64(buf[FrameHeaderSize+8:], math.Float64bits(serverTime))
	return buf
}

// ParsePingResponse reads the sequence number and server timestamp from a
// ping response payload. Trailing bytes past the known fields are ignored.
func ParsePingResponse(payload []byte) (*PingResponse, error) {
	if len(payload) < pingResponsePayloadSize {
		return nil, &errors.Underflow{
			MessageName: "Server::PingResponse",
			MsgSize:     len(payload),
			MinimumSize: pingResponsePayloadSize,
		}
	}

	return &PingResponse{
		Sequence:   binary.LittleEndian.Uint64(payload[0:8]),
		ServerTime: math.Float64frombits(binary.LittleEndian.Uint64(payload[8:16])),
	}, nil
}

// EncodeWelcome builds the empty-payload welcome frame the server sends
// right after accepting a connection.
func EncodeWelcome() []byte {
	buf := make([]byte, FrameHeaderSize)
	buf[0] = uint8(ServerMessageType_Welcome)
	binary.LittleEndian.PutUint16(buf[1:3], 0)
	return buf
}
