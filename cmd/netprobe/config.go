package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/freehold-rts/netcode-client/pkg/discovery"
	"github.com/freehold-rts/netcode-client/pkg/session"
	"github.com/google/uuid"
)

// netprobe config.toml key mapping to probe runtime settings.
type fileConfig struct {
	ServerAddr        string `toml:"server_addr"`
	ClientID          string `toml:"client_id"`
	PingIntervalMs    int    `toml:"ping_interval_ms"`
	LivenessTimeoutMs int    `toml:"liveness_timeout_ms"`
	SampleWindow      int    `toml:"sample_window"`
	ConnectTimeoutMs  int    `toml:"connect_timeout_ms"`
	RetryUntilTimeout bool   `toml:"retry_until_timeout"`
	MetricsListenAddr string `toml:"metrics_listen_addr"`
	DiscoveryService  string `toml:"discovery_service"`
}

type probeConfig struct {
	ServerAddr        string
	ClientID          string
	PingInterval      time.Duration
	LivenessTimeout   time.Duration
	SampleWindow      int
	ConnectTimeout    time.Duration
	RetryUntilTimeout bool
	MetricsListenAddr string
	DiscoveryService  string
}

func defaultProbeConfig() probeConfig {
	return probeConfig{
		ServerAddr:        "127.0.0.1:7632",
		ClientID:          uuid.NewString(),
		PingInterval:      session.DefaultPingInterval,
		LivenessTimeout:   session.DefaultLivenessTimeout,
		ConnectTimeout:    5 * time.Second,
		RetryUntilTimeout: true,
		MetricsListenAddr: ":9110",
		DiscoveryService:  discovery.DefaultService,
	}
}

// netprobe loader for TOML config with default overlay.
func loadProbeConfig(path string) (probeConfig, error) {
	cfg := defaultProbeConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return probeConfig{}, fmt.Errorf("load probe config: %w", err)
	}

	if meta.IsDefined("server_addr") {
		cfg.ServerAddr = strings.TrimSpace(raw.ServerAddr)
	}
	if meta.IsDefined("client_id") {
		cfg.ClientID = strings.TrimSpace(raw.ClientID)
	}
	if meta.IsDefined("ping_interval_ms") {
		if raw.PingIntervalMs <= 0 {
			return probeConfig{}, fmt.Errorf("load probe config: ping_interval_ms must be positive, got %d", raw.PingIntervalMs)
		}
		cfg.PingInterval = time.Duration(raw.PingIntervalMs) * time.Millisecond
	}
	if meta.IsDefined("liveness_timeout_ms") {
		if raw.LivenessTimeoutMs <= 0 {
			return probeConfig{}, fmt.Errorf("load probe config: liveness_timeout_ms must be positive, got %d", raw.LivenessTimeoutMs)
		}
		cfg.LivenessTimeout = time.Duration(raw.LivenessTimeoutMs) * time.Millisecond
	}
	if meta.IsDefined("sample_window") {
		if raw.SampleWindow < 0 {
			return probeConfig{}, fmt.Errorf("load probe config: sample_window must not be negative, got %d", raw.SampleWindow)
		}
		cfg.SampleWindow = raw.SampleWindow
	}
	if meta.IsDefined("connect_timeout_ms") {
		if raw.ConnectTimeoutMs <= 0 {
			return probeConfig{}, fmt.Errorf("load probe config: connect_timeout_ms must be positive, got %d", raw.ConnectTimeoutMs)
		}
		cfg.ConnectTimeout = time.Duration(raw.ConnectTimeoutMs) * time.Millisecond
	}
	if meta.IsDefined("retry_until_timeout") {
		cfg.RetryUntilTimeout = raw.RetryUntilTimeout
	}
	if meta.IsDefined("metrics_listen_addr") {
		cfg.MetricsListenAddr = strings.TrimSpace(raw.MetricsListenAddr)
	}
	if meta.IsDefined("discovery_service") {
		cfg.DiscoveryService = strings.TrimSpace(raw.DiscoveryService)
	}

	if cfg.LivenessTimeout < cfg.PingInterval {
		return probeConfig{}, fmt.Errorf(
			"load probe config: liveness_timeout_ms (%v) must not be shorter than ping_interval_ms (%v)",
			cfg.LivenessTimeout, cfg.PingInterval)
	}

	return cfg, nil
}
