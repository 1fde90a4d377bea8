// Package transport provides the reliable ordered byte streams a connection
// session runs over. The game talks to dedicated servers over raw TCP;
// WebSocket and QUIC carry the same stream for clients stuck behind proxies
// or browser-adjacent environments.
package transport

import (
	"context"
	"crypto/tls"
	"strings"

	"github.com/freehold-rts/netcode-client/pkg/errors"
	"go.uber.org/zap"
)

// Transport is a reliable, ordered byte stream to the game server. Read
// blocks until data arrives and must unblock with an error once Close is
// called - the session's shutdown path depends on that. Reads are expected
// from a single goroutine; writes may come from several and are serialized
// internally.
type Transport interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	RemoteAddr() string
}

// Dialer routes a connection string to the matching transport:
//
//	host:port        raw TCP (default)
//	tcp:host:port    raw TCP
//	ws://  wss://    WebSocket
//	quic:host:port   QUIC bidirectional stream
type Dialer struct {
	// TLS applies to wss:// and quic: dials. Leave nil for the defaults;
	// quic: fills in the game's ALPN protocol when unset.
	TLS    *tls.Config
	Logger *zap.Logger
}

func (d *Dialer) Dial(ctx context.Context, connectionString string) (Transport, error) {
	logger := d.Logger
	if logger == nil {
		logger = zap.Must(zap.NewDevelopment())
	}

	switch {
	case strings.HasPrefix(connectionString, "tcp:"):
		return dialTcp(ctx, strings.TrimPrefix(connectionString, "tcp:"), logger)
	case strings.HasPrefix(connectionString, "ws://"), strings.HasPrefix(connectionString, "wss://"):
		return dialWebsocket(ctx, connectionString, d.TLS, logger)
	case strings.HasPrefix(connectionString, "quic:"):
		return dialQuic(ctx, strings.TrimPrefix(connectionString, "quic:"), d.TLS, logger)
	case strings.HasPrefix(connectionString, "udp:"), strings.Contains(connectionString, "://"):
		// Datagram transports cannot carry this session - it needs the
		// server's byte stream delivered reliably and in order.
		return nil, &errors.UnsupportedScheme{ConnectionString: connectionString}
	default:
		// Bare host:port dials TCP.
		return dialTcp(ctx, connectionString, logger)
	}
}
