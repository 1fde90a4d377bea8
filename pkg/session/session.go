// Package session maintains the client's connection to the authoritative
// game server: it frames the inbound byte stream, measures round-trip
// latency with periodic probes, estimates the server clock offset, and
// detects a dead connection. The rest of the game consumes typed frames,
// a displayed server time, and three notifications - nothing else about
// the network surfaces above this package.
package session

import (
	"context"
	goerrors "errors"
	"fmt"
	"io"
	"math"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/freehold-rts/netcode-client/internal"
	"github.com/freehold-rts/netcode-client/pkg/errors"
	"github.com/freehold-rts/netcode-client/pkg/message"
	"github.com/freehold-rts/netcode-client/pkg/timesync"
	"github.com/freehold-rts/netcode-client/pkg/transport"
	utils "github.com/freehold-rts/netcode-client/pkg/util"
	"go.uber.org/zap"
)

const (
	DefaultPingInterval    = 500 * time.Millisecond
	DefaultLivenessTimeout = 5 * time.Second
	DefaultReadBufferSize  = 4096

	connectRetryInterval = 250 * time.Millisecond
)

type NotConnectedError struct{}

func (e *NotConnectedError) Error() string {
	return "Session is not connected to a server"
}

type AlreadyConnectedError struct{}

func (e *AlreadyConnectedError) Error() string {
	return "Session already holds a server connection - create a new session to reconnect"
}

type SessionClosedError struct{}

func (e *SessionClosedError) Error() string {
	return "Session has been shut down"
}

type WelcomeTimeoutError struct {
	Timeout time.Duration
}

func (e *WelcomeTimeoutError) Error() string {
	return fmt.Sprintf("Timed out after %v waiting for the server welcome message", e.Timeout)
}

// Callbacks deliver server activity to the game. All three fire on the
// session's run loop goroutine, one at a time and in arrival order; they
// must not block, or frame dispatch and liveness checks stall behind them.
type Callbacks struct {
	// OnFrame receives every decoded frame except ping responses, welcome
	// included. The payload is owned by the receiver.
	OnFrame func(payload []byte, msgType uint8, length uint16)

	// OnLatency fires once per completed probe round trip, in whole
	// milliseconds.
	OnLatency func(millis int)

	// OnConnectionLost fires exactly once per connection, on liveness
	// timeout or a failed read. Never fired by Shutdown.
	OnConnectionLost func()
}

type Params struct {
	// PingInterval is the latency probe cadence. Liveness and probe-table
	// eviction piggyback on the same tick.
	PingInterval time.Duration

	// LivenessTimeout is how long the session tolerates silence from the
	// server before declaring the connection lost. Keep it several probe
	// intervals wide.
	LivenessTimeout time.Duration

	// StaleProbeAge bounds how long an unanswered probe stays in the sent
	// table. Defaults to LivenessTimeout.
	StaleProbeAge time.Duration

	// SampleWindowSize is the estimator window; zero selects the default.
	SampleWindowSize int

	ReadBufferSize int

	Dialer    *transport.Dialer
	Logger    *zap.Logger
	Callbacks Callbacks
}

// Session is a single connection to a game server. One session serves one
// connection attempt: after a loss or shutdown, callers build a fresh one.
//
// Message parsing starts disabled so the game can connect, wait for the
// welcome, and register its handlers before frames start flowing; bytes
// received in the meantime accumulate and are decoded once parsing is
// enabled.
type Session struct {
	params Params
	log    *zap.Logger
	dialer *transport.Dialer

	ledger    *internal.ProbeLedger
	estimator *timesync.Estimator

	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup

	mut_transport sync.RWMutex
	transport     transport.Transport

	connecting     atomic.Bool
	connected      atomic.Bool
	connectionLost atomic.Bool
	shutdownBegan  atomic.Bool
	shutdownOnce   sync.Once

	connectionStart time.Time

	parsingEnabled  atomic.Bool
	welcomeReceived atomic.Bool
	welcomeWaiters  atomic.Int32
	welcomeCh       chan struct{}
	welcomeOnce     sync.Once

	inboundChunks chan []byte
	readErrs      chan error
	parseNudge    chan struct{}

	// lastReplyTime is client time of the newest probe reply; zero means
	// none yet, which the liveness check reads as "silent since connect".
	// Run loop goroutine only.
	lastReplyTime float64
}

func CreateSession(params Params) *Session {
	if params.PingInterval <= 0 {
		params.PingInterval = DefaultPingInterval
	}
	if params.LivenessTimeout <= 0 {
		params.LivenessTimeout = DefaultLivenessTimeout
	}
	if params.StaleProbeAge <= 0 {
		params.StaleProbeAge = params.LivenessTimeout
	}
	if params.ReadBufferSize <= 0 {
		params.ReadBufferSize = DefaultReadBufferSize
	}

	logger := params.Logger
	if logger == nil {
		logger = zap.Must(zap.NewDevelopment())
	}
	stringGen := utils.CreateRandomstringGenerator(time.Now().UnixMicro())
	log := logger.With(zap.String("session", stringGen.GetRandomString(6)))

	dialer := params.Dialer
	if dialer == nil {
		dialer = &transport.Dialer{Logger: log}
	}

	runCtx, runCancel := context.WithCancel(context.Background())

	return &Session{
		params:    params,
		log:       log,
		dialer:    dialer,
		ledger:    internal.CreateProbeLedger(),
		estimator: timesync.CreateEstimator(params.SampleWindowSize),
		runCtx:    runCtx,
		runCancel: runCancel,

		welcomeCh:     make(chan struct{}),
		inboundChunks: make(chan []byte, 64),
		readErrs:      make(chan error, 1),
		parseNudge:    make(chan struct{}, 1),
	}
}

// Connect dials the server and starts the session's read and run loops. ctx
// bounds dialing only; the established session lives until Shutdown. With
// retryUntilTimeout set, failed dials are retried every 250ms until the
// timeout window closes.
func (s *Session) Connect(ctx context.Context, address string, timeout time.Duration, retryUntilTimeout bool) error {
	if s.shutdownBegan.Load() {
		return &SessionClosedError{}
	}
	if s.connected.Load() {
		return &AlreadyConnectedError{}
	}
	if !s.connecting.CompareAndSwap(false, true) {
		return &AlreadyConnectedError{}
	}
	defer s.connecting.Store(false)

	deadline := time.Now().Add(timeout)
	attempts := 0
	var lastErr error

	for {
		attempts++

		dialCtx, dialRelease := context.WithDeadline(ctx, deadline)
		tr, err := s.dialer.Dial(dialCtx, address)
		dialRelease()

		if err == nil {
			return s.start(tr)
		}
		lastErr = err
		s.log.Debug("Connection attempt failed", zap.String("address", address), zap.Int("attempt", attempts), zap.Error(err))

		if !retryUntilTimeout || ctx.Err() != nil {
			break
		}

		select {
		case <-ctx.Done():
		case <-time.After(connectRetryInterval):
		}
		if ctx.Err() != nil || !time.Now().Before(deadline) {
			break
		}
	}

	return &errors.ConnectFailed{Address: address, Attempts: attempts, LastErr: lastErr}
}

func (s *Session) start(tr transport.Transport) error {
	s.mut_transport.Lock()
	if s.shutdownBegan.Load() {
		s.mut_transport.Unlock()
		tr.Close()
		return &SessionClosedError{}
	}
	s.transport = tr
	s.mut_transport.Unlock()

	s.connectionStart = time.Now()
	s.ledger.Reset()
	s.estimator.Reset()
	s.connectionLost.Store(false)
	s.connected.Store(true)

	s.wg.Add(2)
	go s.readLoop()
	go s.runLoop()

	s.log.Info("Connected to server", zap.String("remoteAddr", tr.RemoteAddr()))
	return nil
}

// Shutdown tears the session down and waits for its goroutines to finish.
// Idempotent, and safe on a session that never connected. Shutdown itself
// never triggers OnConnectionLost, and after it returns no callback is in
// flight.
func (s *Session) Shutdown() {
	s.shutdownBegan.Store(true)
	s.shutdownOnce.Do(func() {
		s.runCancel()

		s.mut_transport.Lock()
		tr := s.transport
		s.mut_transport.Unlock()
		if tr != nil {
			tr.Close()
		}

		s.connected.Store(false)
		s.wg.Wait()
		s.log.Info("Session shut down")
	})
}

// WaitForWelcome blocks until the server's welcome frame arrives or the
// timeout elapses. Decoding runs during the wait even while message parsing
// is disabled; frames ahead of the welcome dispatch normally, and the
// welcome itself is delivered to OnFrame too.
func (s *Session) WaitForWelcome(timeout time.Duration) error {
	if !s.connected.Load() {
		return &NotConnectedError{}
	}
	if s.welcomeReceived.Load() {
		return nil
	}

	s.welcomeWaiters.Add(1)
	defer s.welcomeWaiters.Add(-1)
	s.nudgeParse()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-s.welcomeCh:
		return nil
	case <-timer.C:
		return &WelcomeTimeoutError{Timeout: timeout}
	case <-s.runCtx.Done():
		return &SessionClosedError{}
	}
}

// SetMessageParsingEnabled toggles decode-on-arrival. While disabled,
// inbound bytes accumulate unparsed; enabling drains whatever is buffered
// straight away.
func (s *Session) SetMessageParsingEnabled(enable bool) {
	s.parsingEnabled.Store(enable)
	if enable {
		s.nudgeParse()
	}
}

// Send writes one fully-encoded frame to the server. Frames go out
// immediately - the TCP transport runs with Nagle disabled, and none of the
// transports buffer writes. A short write is reported as *errors.ShortWrite
// but does not tear the connection down.
func (s *Session) Send(data []byte) error {
	if !s.connected.Load() {
		return &NotConnectedError{}
	}
	return s.writeFrame(data)
}

// ConnectionLost reports whether this connection has been declared dead.
// It latches true at most once per session and never resets.
func (s *Session) ConnectionLost() bool {
	return s.connectionLost.Load()
}

// DisplayedServerTime estimates the server timeline instant the game should
// render right now, in server seconds. ok is false until the first probe
// response has seeded the estimator.
func (s *Session) DisplayedServerTime() (float64, bool) {
	if !s.connected.Load() {
		return 0, false
	}
	return s.estimator.DisplayServerTime(s.clientNow())
}

// CurrentPingAndOffset returns the smoothed round-trip time and clock
// offset in seconds, for diagnostics and the HUD network indicator.
func (s *Session) CurrentPingAndOffset() (rtt, offset float64, ok bool) {
	offset, rtt, ok = s.estimator.FilteredOffsetAndRtt()
	return rtt, offset, ok
}

// clientNow is seconds since the connection was established, on the
// monotonic clock.
func (s *Session) clientNow() float64 {
	return time.Since(s.connectionStart).Seconds()
}

func (s *Session) nudgeParse() {
	select {
	case s.parseNudge <- struct{}{}:
	default:
	}
}

func (s *Session) writeFrame(data []byte) error {
	s.mut_transport.RLock()
	tr := s.transport
	s.mut_transport.RUnlock()
	if tr == nil {
		return &NotConnectedError{}
	}

	n, err := tr.Write(data)
	if err != nil {
		return err
	}
	if n < len(data) {
		s.log.Warn("Error sending message: short write", zap.Int("written", n), zap.Int("size", len(data)))
		return &errors.ShortWrite{MessageSize: len(data), BytesWritten: n}
	}
	return nil
}

// readLoop pulls raw chunks off the transport and hands them to the run
// loop. It exits on read error or shutdown.
func (s *Session) readLoop() {
	defer s.wg.Done()

	buf := make([]byte, s.params.ReadBufferSize)
	for {
		n, err := s.transport.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case s.inboundChunks <- chunk:
			case <-s.runCtx.Done():
				return
			}
		}
		if err != nil {
			select {
			case s.readErrs <- err:
			case <-s.runCtx.Done():
			}
			return
		}
	}
}

// runLoop owns the decode buffer, the probe schedule, and callback
// dispatch. Everything that touches per-frame state happens here, on one
// goroutine.
func (s *Session) runLoop() {
	defer s.wg.Done()

	decode := message.CreateDecodeBuffer()
	ticker := time.NewTicker(s.params.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.runCtx.Done():
			return
		case chunk := <-s.inboundChunks:
			decode.Append(chunk)
			s.drainFrames(decode)
		case <-s.parseNudge:
			s.drainFrames(decode)
		case err := <-s.readErrs:
			s.handleReadError(err)
		case <-ticker.C:
			s.onProbeTick()
		}
	}
}

func (s *Session) shouldParse() bool {
	if s.parsingEnabled.Load() {
		return true
	}
	// A pending WaitForWelcome pumps decoding until the welcome shows up.
	return s.welcomeWaiters.Load() > 0 && !s.welcomeReceived.Load()
}

func (s *Session) drainFrames(decode *message.DecodeBuffer) {
	for s.shouldParse() {
		frame, ok := decode.NextFrame()
		if !ok {
			return
		}
		s.dispatchFrame(frame)
	}
}

func (s *Session) dispatchFrame(frame message.Frame) {
	switch message.ServerMessageType(frame.Type) {
	case message.ServerMessageType_PingResponse:
		// Probe plumbing stays internal to the session.
		s.handlePingResponse(frame.Payload)
		return
	case message.ServerMessageType_Welcome:
		s.markWelcomeReceived()
	}

	if cb := s.params.Callbacks.OnFrame; cb != nil {
		cb(frame.Payload, frame.Type, frame.Length)
	}
}

func (s *Session) markWelcomeReceived() {
	s.welcomeReceived.Store(true)
	s.welcomeOnce.Do(func() {
		s.log.Debug("Received server welcome")
		close(s.welcomeCh)
	})
}

func (s *Session) handlePingResponse(payload []byte) {
	resp, err := message.ParsePingResponse(payload)
	if err != nil {
		s.log.Warn("Malformed ping response", zap.Error(err))
		return
	}

	if s.connectionLost.Load() {
		// A reply that limps in after the liveness verdict must not feed
		// the estimator or revive anything.
		s.log.Debug("Dropping ping response on lost connection", zap.Uint64("sequence", resp.Sequence))
		return
	}

	sentAt, ok := s.ledger.Claim(resp.Sequence)
	if !ok {
		s.log.Debug("Ignoring unknown or stale ping response", zap.Uint64("sequence", resp.Sequence))
		return
	}

	now := s.clientNow()
	rtt := now - sentAt
	offset := resp.ServerTime - (sentAt + rtt/2)

	s.estimator.RecordSample(rtt, offset)
	s.lastReplyTime = now

	if cb := s.params.Callbacks.OnLatency; cb != nil {
		cb(int(math.Round(rtt * 1000)))
	}
}

func (s *Session) onProbeTick() {
	if s.connectionLost.Load() {
		return
	}

	now := s.clientNow()

	sequence := s.ledger.NextSequence()
	s.ledger.Record(sequence, now)
	if err := s.writeFrame(message.EncodePing(sequence)); err != nil {
		s.log.Warn("Failed to send latency probe", zap.Uint64("sequence", sequence), zap.Error(err))
	}

	// lastReplyTime zero means nothing has arrived since connect, so the
	// window is measured from connection start.
	if now-s.lastReplyTime > s.params.LivenessTimeout.Seconds() {
		s.markConnectionLost("liveness timeout: no probe replies from server")
		return
	}

	if evicted := s.ledger.EvictStale(now - s.params.StaleProbeAge.Seconds()); evicted > 0 {
		s.log.Debug("Evicted unanswered probe entries", zap.Int("count", evicted))
	}
}

func (s *Session) handleReadError(err error) {
	if s.runCtx.Err() != nil || goerrors.Is(err, net.ErrClosed) {
		// Shutdown closed the transport out from under the read loop.
		return
	}

	if goerrors.Is(err, io.EOF) {
		s.markConnectionLost("server closed the connection")
		return
	}
	s.markConnectionLost(fmt.Sprintf("read error: %v", err))
}

func (s *Session) markConnectionLost(reason string) {
	if !s.connectionLost.CompareAndSwap(false, true) {
		return
	}

	s.log.Warn("Connection to server lost", zap.String("reason", reason))

	if cb := s.params.Callbacks.OnConnectionLost; cb != nil {
		cb()
	}
}
