package transport

import (
	"context"
	"crypto/tls"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// websocketTransport presents a WebSocket connection as a byte stream. Each
// Write sends one binary message; Read hands out buffered message bytes and
// only blocks on the socket once the previous message is drained. Message
// boundaries are preserved on the wire but nothing above this layer relies
// on them.
type websocketTransport struct {
	conn *websocket.Conn
	log  *zap.Logger

	// remainder holds undelivered bytes of the last binary message. Only the
	// reading goroutine touches it.
	remainder []byte

	mut_write sync.Mutex
	closed    atomic.Bool
}

func dialWebsocket(ctx context.Context, url string, tlsConf *tls.Config, logger *zap.Logger) (Transport, error) {
	dialer := *websocket.DefaultDialer
	if tlsConf != nil {
		dialer.TLSClientConfig = tlsConf
	}

	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}

	logger.Debug("Opened WebSocket connection", zap.String("url", url))

	return &websocketTransport{
		conn: conn,
		log:  logger,
	}, nil
}

func (t *websocketTransport) Read(p []byte) (int, error) {
	for len(t.remainder) == 0 {
		msgType, payload, err := t.conn.ReadMessage()
		if err != nil {
			return 0, err
		}
		if msgType != websocket.BinaryMessage {
			t.log.Info("Received non-binary message, ignoring", zap.Int("size", len(payload)))
			continue
		}
		t.remainder = payload
	}

	n := copy(p, t.remainder)
	t.remainder = t.remainder[n:]
	return n, nil
}

func (t *websocketTransport) Write(p []byte) (int, error) {
	t.mut_write.Lock()
	defer t.mut_write.Unlock()

	if err := t.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (t *websocketTransport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	return t.conn.Close()
}

func (t *websocketTransport) RemoteAddr() string {
	return t.conn.RemoteAddr().String()
}
