// Main package for the netprobe diagnostic client: it dials a game
// server, runs the latency/clock-sync session against it, and exposes
// what it measures as logs and Prometheus metrics.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/freehold-rts/netcode-client/pkg/discovery"
	"github.com/freehold-rts/netcode-client/pkg/session"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	// Metrics
	pingLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "netprobe_ping_latency_ms",
		Help:    "Round-trip latency reported by the session, in milliseconds",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})
	framesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "netprobe_frames_total",
		Help: "Total application frames received from the server",
	})
	connectionLostTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "netprobe_connection_lost_total",
		Help: "Total connection-loss events",
	})
	clockOffset = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "netprobe_clock_offset_seconds",
		Help: "Smoothed client/server clock offset, in seconds",
	})
)

func init() {
	prometheus.MustRegister(pingLatency)
	prometheus.MustRegister(framesTotal)
	prometheus.MustRegister(connectionLostTotal)
	prometheus.MustRegister(clockOffset)
}

func main() {
	if dotenvErr := godotenv.Load(); dotenvErr != nil && !os.IsNotExist(dotenvErr) {
		fmt.Printf("Failed to load .env file! %s", dotenvErr.Error())
	}

	logger := zap.Must(zap.NewProduction())
	if os.Getenv("APP_ENV") == "development" {
		logger = zap.Must(zap.NewDevelopment())
	}
	defer logger.Sync()

	//
	// Flags
	configPath := flag.String("config", "", "Path to a TOML config file")
	serverAddr := flag.String("server", "", "Server address (host:port, tcp:, ws://, wss://, or quic:)")
	discover := flag.Bool("discover", false, "Browse mDNS for a server instead of using -server")
	duration := flag.Duration("duration", 0, "Stop after this long (0 runs until interrupted)")
	flag.Parse()

	cfg := defaultProbeConfig()
	if *configPath != "" {
		loaded, err := loadProbeConfig(*configPath)
		if err != nil {
			logger.Error("Failed to load config file", zap.Error(err))
			return
		}
		cfg = loaded
	}
	if *serverAddr != "" {
		cfg.ServerAddr = *serverAddr
	}

	logger = logger.With(zap.String("client_id", cfg.ClientID))

	shutdownCtx, shutdownRelease := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer shutdownRelease()

	runCtx := shutdownCtx
	if *duration > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(shutdownCtx, *duration)
		defer cancel()
	}

	//
	// Metrics endpoint
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info("Starting metrics server", zap.String("addr", cfg.MetricsListenAddr))
		if err := http.ListenAndServe(cfg.MetricsListenAddr, mux); err != nil {
			logger.Error("Metrics server stopped", zap.Error(err))
		}
	}()

	//
	// Discovery
	if *discover {
		browser := discovery.CreateBrowser(&discovery.BrowserParams{
			Service: cfg.DiscoveryService,
			Logger:  logger,
		})
		servers, err := browser.Browse(0)
		if err != nil {
			logger.Error("Failed to browse mDNS", zap.Error(err))
			return
		}
		if len(servers) == 0 {
			logger.Error("No servers answered the mDNS query", zap.String("service", cfg.DiscoveryService))
			return
		}
		cfg.ServerAddr = servers[0].Addr()
		logger.Info("Using discovered server",
			zap.String("name", servers[0].Name),
			zap.String("addr", cfg.ServerAddr))
	}

	//
	// Session setup
	s := session.CreateSession(session.Params{
		PingInterval:     cfg.PingInterval,
		LivenessTimeout:  cfg.LivenessTimeout,
		SampleWindowSize: cfg.SampleWindow,
		Logger:           logger,
		Callbacks: session.Callbacks{
			OnFrame: func(payload []byte, msgType uint8, length uint16) {
				framesTotal.Inc()
			},
			OnLatency: func(millis int) {
				pingLatency.Observe(float64(millis))
			},
			OnConnectionLost: func() {
				connectionLostTotal.Inc()
				shutdownRelease()
			},
		},
	})
	defer s.Shutdown()

	logger.Info("Connecting to server", zap.String("addr", cfg.ServerAddr))
	if err := s.Connect(runCtx, cfg.ServerAddr, cfg.ConnectTimeout, cfg.RetryUntilTimeout); err != nil {
		logger.Error("Failed to connect to server", zap.Error(err))
		return
	}

	if err := s.WaitForWelcome(cfg.ConnectTimeout); err != nil {
		logger.Error("Server never sent a welcome", zap.Error(err))
		return
	}
	s.SetMessageParsingEnabled(true)

	//
	// Status loop
	wg := sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("Starting status report loop")
		defer logger.Info("Stopping status report loop")

		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				rtt, offset, ok := s.CurrentPingAndOffset()
				if !ok {
					logger.Info("Waiting for the first probe response")
					continue
				}
				clockOffset.Set(offset)

				fields := []zap.Field{
					zap.Float64("rtt_ms", rtt*1000),
					zap.Float64("offset_s", offset),
				}
				if displayTime, ok := s.DisplayedServerTime(); ok {
					fields = append(fields, zap.Float64("display_time_s", displayTime))
				}
				logger.Info("Session status", fields...)
			}
		}
	}()

	<-runCtx.Done()
	wg.Wait()

	logger.Info("Successfully shut down netprobe!")
}
