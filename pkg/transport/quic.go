package transport

import (
	"context"
	"crypto/tls"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quic-go/quic-go"
	"go.uber.org/zap"
)

// QuicAlpnProtocol is the ALPN token game servers accept QUIC sessions
// under.
const QuicAlpnProtocol = "freehold/1"

// quicTransport carries the session over a single bidirectional QUIC
// stream. QUIC's own keepalives run far apart; the session's latency probes
// are what actually keep the connection warm.
type quicTransport struct {
	conn   quic.Connection
	stream quic.Stream

	mut_write sync.Mutex
	closed    atomic.Bool
}

func dialQuic(ctx context.Context, address string, tlsConf *tls.Config, logger *zap.Logger) (Transport, error) {
	if tlsConf == nil {
		tlsConf = &tls.Config{}
	} else {
		tlsConf = tlsConf.Clone()
	}
	if len(tlsConf.NextProtos) == 0 {
		tlsConf.NextProtos = []string{QuicAlpnProtocol}
	}

	quicConf := &quic.Config{
		MaxIdleTimeout:  60 * time.Second,
		KeepAlivePeriod: 30 * time.Second,
	}

	conn, err := quic.DialAddr(ctx, address, tlsConf, quicConf)
	if err != nil {
		return nil, err
	}

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		conn.CloseWithError(0, "failed to open stream")
		return nil, err
	}

	logger.Debug("Opened QUIC stream",
		zap.String("remoteAddr", conn.RemoteAddr().String()),
		zap.Uint64("streamId", uint64(stream.StreamID())))

	return &quicTransport{
		conn:   conn,
		stream: stream,
	}, nil
}

func (t *quicTransport) Read(p []byte) (int, error) {
	return t.stream.Read(p)
}

func (t *quicTransport) Write(p []byte) (int, error) {
	t.mut_write.Lock()
	defer t.mut_write.Unlock()
	return t.stream.Write(p)
}

func (t *quicTransport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	return t.conn.CloseWithError(0, "client shutdown")
}

func (t *quicTransport) RemoteAddr() string {
	return t.conn.RemoteAddr().String()
}
