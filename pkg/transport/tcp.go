package transport

import (
	"context"
	"net"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

type tcpTransport struct {
	conn net.Conn

	mut_write sync.Mutex
	closed    atomic.Bool
}

func dialTcp(ctx context.Context, address string, logger *zap.Logger) (Transport, error) {
	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}

	// Latency probes and game commands are tiny; Nagle batching would sit on
	// them for no benefit.
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		tcpConn.SetNoDelay(true)
	}

	logger.Debug("Opened TCP connection", zap.String("remoteAddr", conn.RemoteAddr().String()))

	return &tcpTransport{conn: conn}, nil
}

func (t *tcpTransport) Read(p []byte) (int, error) {
	return t.conn.Read(p)
}

func (t *tcpTransport) Write(p []byte) (int, error) {
	t.mut_write.Lock()
	defer t.mut_write.Unlock()
	return t.conn.Write(p)
}

func (t *tcpTransport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	return t.conn.Close()
}

func (t *tcpTransport) RemoteAddr() string {
	return t.conn.RemoteAddr().String()
}
