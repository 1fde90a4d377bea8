package message

import (
	"math"
	"testing"

	"github.com/freehold-rts/netcode-client/pkg/errors"
)

func TestPingFrameRoundTrip(t *testing.T) {
	b := CreateDecodeBuffer()
	b.Append(EncodePing(12345))

	frame, ok := b.NextFrame()
	if !ok {
		t.Fatal("expected a complete ping frame")
	}
	if frame.Type != uint8(ClientMessageType_Ping) {
		t.Errorf("expected ping type tag 0x%02x, got 0x%02x", uint8(ClientMessageType_Ping), frame.Type)
	}

	ping, err := ParsePing(frame.Payload)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if ping.Sequence != 12345 {
		t.Errorf("expected sequence 12345, got %d", ping.Sequence)
	}
}

func TestPingSequenceBounds(t *testing.T) {
	for _, seq := range []uint64{0, 1, math.MaxUint64} {
		ping, err := ParsePing(EncodePing(seq)[FrameHeaderSize:])
		if err != nil {
			t.Fatalf("unexpected parse error for seq=%d: %v", seq, err)
		}
		if ping.Sequence != seq {
			t.Errorf("expected sequence %d, got %d", seq, ping.Sequence)
		}
	}
}

func TestPingResponseRoundTrip(t *testing.T) {
	b := CreateDecodeBuffer()
	b.Append(EncodePingResponse(77, 1234.5625))

	frame, ok := b.NextFrame()
	if !ok {
		t.Fatal("expected a complete ping response frame")
	}
	if ServerMessageType(frame.Type) != ServerMessageType_PingResponse {
		t.Errorf("expected ping response type tag, got 0x%02x", frame.Type)
	}

	resp, err := ParsePingResponse(frame.Payload)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if resp.Sequence != 77 {
		t.Errorf("expected sequence 77, got %d", resp.Sequence)
	}
	if resp.ServerTime != 1234.5625 {
		t.Errorf("expected server time 1234.5625, got %v", resp.ServerTime)
	}
}

func TestPingResponseNegativeServerTime(t *testing.T) {
	// A server restarting mid-session can legitimately report a timestamp
	// behind the client's; the codec must not mangle the sign.
	resp, err := ParsePingResponse(EncodePingResponse(1, -3.25)[FrameHeaderSize:])
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if resp.ServerTime != -3.25 {
		t.Errorf("expected server time -3.25, got %v", resp.ServerTime)
	}
}

func TestPingResponseIgnoresTrailingBytes(t *testing.T) {
	payload := EncodePingResponse(9, 2.5)[FrameHeaderSize:]
	payload = append(payload, 0xDE, 0xAD)

	resp, err := ParsePingResponse(payload)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if resp.Sequence != 9 || resp.ServerTime != 2.5 {
		t.Errorf("unexpected response: seq=%d serverTime=%v", resp.Sequence, resp.ServerTime)
	}
}

func TestParsePingResponseUnderflow(t *testing.T) {
	for _, size := range []int{0, 8, 15} {
		_, err := ParsePingResponse(make([]byte, size))
		if err == nil {
			t.Fatalf("expected underflow error for %d-byte payload, got nil", size)
		}
		if _, ok := err.(*errors.Underflow); !ok {
			t.Errorf("expected *errors.Underflow for %d-byte payload, got %T", size, err)
		}
	}
}

func TestParsePingUnderflow(t *testing.T) {
	_, err := ParsePing(make([]byte, 7))
	if err == nil {
		t.Fatal("expected underflow error, got nil")
	}
	if _, ok := err.(*errors.Underflow); !ok {
		t.Errorf("expected *errors.Underflow, got %T", err)
	}
}

func TestEncodeWelcome(t *testing.T) {
	welcome := EncodeWelcome()
	if len(welcome) != FrameHeaderSize {
		t.Fatalf("expected a header-only welcome frame, got %d bytes", len(welcome))
	}

	b := CreateDecodeBuffer()
	b.Append(welcome)
	frame, ok := b.NextFrame()
	if !ok {
		t.Fatal("expected the welcome frame to decode")
	}
	if ServerMessageType(frame.Type) != ServerMessageType_Welcome || frame.Length != 0 {
		t.Errorf("unexpected welcome frame: type=0x%02x length=%d", frame.Type, frame.Length)
	}
}
