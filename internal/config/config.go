// Package config loads and validates the daemon's layered configuration:
// a YAML file overlaid with DDARP_-prefixed environment variables, in the
// same koanf shape the teacher used for its Kafka ingester.
package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/twmb/franz-go/pkg/sasl"
	"github.com/twmb/franz-go/pkg/sasl/plain"
)

type Config struct {
	Service  ServiceConfig  `koanf:"service"`
	Probe    ProbeConfig    `koanf:"probe"`
	Routing  RoutingConfig  `koanf:"routing"`
	Topology TopologyConfig `koanf:"topology"`
	Seam     SeamConfig     `koanf:"seam"`
	Postgres PostgresConfig `koanf:"postgres"`
	History  HistoryConfig  `koanf:"history"`
}

type ServiceConfig struct {
	NodeID                 string `koanf:"node_id"`
	NodeKind               string `koanf:"node_kind"`
	ListenAddr             string `koanf:"listen_addr"`
	AdminListen            string `koanf:"admin_listen"`
	LogLevel               string `koanf:"log_level"`
	ShutdownTimeoutSeconds int    `koanf:"shutdown_timeout_seconds"`
}

type ProbeConfig struct {
	IntervalMs        int `koanf:"interval_ms"`
	RecvIdleTimeoutMs int `koanf:"recv_idle_timeout_ms"`
	SendTimeoutMs     int `koanf:"send_timeout_ms"`
	WindowSize        int `koanf:"window_size"`
	MinSamples        int `koanf:"min_samples"`
}

type RoutingConfig struct {
	RecomputeIntervalMs        int     `koanf:"recompute_interval_ms"`
	RouteExpireSeconds         int     `koanf:"route_expire_seconds"`
	RouteRefreshSeconds        int     `koanf:"route_refresh_seconds"`
	HysteresisImprovementRatio float64 `koanf:"hysteresis_improvement_ratio"`
	TunnelLatencyMsThreshold   float64 `koanf:"tunnel_latency_ms_threshold"`
	TunnelLossRatioThreshold   float64 `koanf:"tunnel_loss_ratio_threshold"`
}

type TopologyConfig struct {
	EdgeFreshnessSeconds  int     `koanf:"edge_freshness_seconds"`
	EdgeEvictSeconds      int     `koanf:"edge_evict_seconds"`
	LossUnusableThreshold float64 `koanf:"loss_unusable_threshold"`
}

type SeamConfig struct {
	Brokers     []string   `koanf:"brokers"`
	ClientID    string     `koanf:"client_id"`
	RouteTopic  string     `koanf:"route_topic"`
	TunnelTopic string     `koanf:"tunnel_topic"`
	TLS         TLSConfig  `koanf:"tls"`
	SASL        SASLConfig `koanf:"sasl"`
}

type TLSConfig struct {
	Enabled  bool   `koanf:"enabled"`
	CAFile   string `koanf:"ca_file"`
	CertFile string `koanf:"cert_file"`
	KeyFile  string `koanf:"key_file"`
}

type SASLConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Mechanism string `koanf:"mechanism"`
	Username  string `koanf:"username"`
	Password  string `koanf:"password"`
}

type PostgresConfig struct {
	DSN      string `koanf:"dsn"`
	MaxConns int32  `koanf:"max_conns"`
	MinConns int32  `koanf:"min_conns"`
}

type HistoryConfig struct {
	RetentionDays   int    `koanf:"retention_days"`
	Timezone        string `koanf:"timezone"`
	BatchSize       int    `koanf:"batch_size"`
	FlushIntervalMs int    `koanf:"flush_interval_ms"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	// Overlay environment variables: DDARP_SEAM__BROKERS → seam.brokers.
	// The flat core names below map straight to their nested keys.
	flatEnvKeys := map[string]string{
		"DDARP_NODE_ID":               "service.node_id",
		"DDARP_LISTEN_ADDR":           "service.listen_addr",
		"DDARP_PROBE_INTERVAL_MS":     "probe.interval_ms",
		"DDARP_RECOMPUTE_INTERVAL_MS": "routing.recompute_interval_ms",
	}
	if err := k.Load(env.Provider("DDARP_", ".", func(s string) string {
		if key, ok := flatEnvKeys[s]; ok {
			return key
		}
		s = strings.TrimPrefix(s, "DDARP_")
		s = strings.ToLower(s)
		s = strings.ReplaceAll(s, "__", ".")
		return s
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env config: %w", err)
	}

	cfg := &Config{
		Service: ServiceConfig{
			NodeKind:               "regular",
			ListenAddr:             ":7777",
			AdminListen:            ":8080",
			LogLevel:               "info",
			ShutdownTimeoutSeconds: 2,
		},
		Probe: ProbeConfig{
			IntervalMs:        1000,
			RecvIdleTimeoutMs: 1000,
			SendTimeoutMs:     1000,
			WindowSize:        100,
			MinSamples:        3,
		},
		Routing: RoutingConfig{
			RecomputeIntervalMs:        5000,
			RouteExpireSeconds:         120,
			RouteRefreshSeconds:        30,
			HysteresisImprovementRatio: 0.80,
			TunnelLatencyMsThreshold:   10,
			TunnelLossRatioThreshold:   0.01,
		},
		Topology: TopologyConfig{
			EdgeFreshnessSeconds:  30,
			EdgeEvictSeconds:      120,
			LossUnusableThreshold: 0.5,
		},
		Seam: SeamConfig{
			ClientID:    "ddarpd",
			RouteTopic:  "ddarp.routes",
			TunnelTopic: "ddarp.tunnels",
		},
		Postgres: PostgresConfig{
			MaxConns: 10,
			MinConns: 2,
		},
		History: HistoryConfig{
			RetentionDays:   30,
			Timezone:        "UTC",
			BatchSize:       100,
			FlushIntervalMs: 1000,
		},
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if len(cfg.Seam.Brokers) == 1 && strings.Contains(cfg.Seam.Brokers[0], ",") {
		cfg.Seam.Brokers = strings.Split(cfg.Seam.Brokers[0], ",")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Service.NodeID == "" {
		return fmt.Errorf("config: service.node_id is required")
	}
	if c.Service.NodeKind != "regular" && c.Service.NodeKind != "border" {
		return fmt.Errorf("config: service.node_kind must be \"regular\" or \"border\" (got %q)", c.Service.NodeKind)
	}
	if c.Service.ListenAddr == "" {
		return fmt.Errorf("config: service.listen_addr is required")
	}
	if c.Service.ShutdownTimeoutSeconds <= 0 {
		return fmt.Errorf("config: service.shutdown_timeout_seconds must be > 0 (got %d)", c.Service.ShutdownTimeoutSeconds)
	}
	if c.Probe.WindowSize <= 0 {
		return fmt.Errorf("config: probe.window_size must be > 0 (got %d)", c.Probe.WindowSize)
	}
	if c.Probe.MinSamples <= 0 || c.Probe.MinSamples > c.Probe.WindowSize {
		return fmt.Errorf("config: probe.min_samples must be in (0, window_size] (got %d)", c.Probe.MinSamples)
	}
	if c.Probe.IntervalMs <= 0 {
		return fmt.Errorf("config: probe.interval_ms must be > 0 (got %d)", c.Probe.IntervalMs)
	}
	if c.Routing.HysteresisImprovementRatio <= 0 || c.Routing.HysteresisImprovementRatio > 1 {
		return fmt.Errorf("config: routing.hysteresis_improvement_ratio must be in (0, 1] (got %v)", c.Routing.HysteresisImprovementRatio)
	}
	if c.Routing.RouteExpireSeconds <= c.Routing.RouteRefreshSeconds {
		return fmt.Errorf("config: routing.route_expire_seconds (%d) must exceed route_refresh_seconds (%d)",
			c.Routing.RouteExpireSeconds, c.Routing.RouteRefreshSeconds)
	}
	if c.Routing.TunnelLatencyMsThreshold <= 0 {
		return fmt.Errorf("config: routing.tunnel_latency_ms_threshold must be > 0 (got %v)", c.Routing.TunnelLatencyMsThreshold)
	}
	if c.Routing.TunnelLossRatioThreshold < 0 || c.Routing.TunnelLossRatioThreshold > 1 {
		return fmt.Errorf("config: routing.tunnel_loss_ratio_threshold must be in [0, 1] (got %v)", c.Routing.TunnelLossRatioThreshold)
	}
	if c.Topology.LossUnusableThreshold <= 0 || c.Topology.LossUnusableThreshold > 1 {
		return fmt.Errorf("config: topology.loss_unusable_threshold must be in (0, 1] (got %v)", c.Topology.LossUnusableThreshold)
	}
	if c.Topology.EdgeEvictSeconds <= c.Topology.EdgeFreshnessSeconds {
		return fmt.Errorf("config: topology.edge_evict_seconds (%d) must exceed edge_freshness_seconds (%d)",
			c.Topology.EdgeEvictSeconds, c.Topology.EdgeFreshnessSeconds)
	}
	if len(c.Seam.Brokers) == 0 {
		return fmt.Errorf("config: seam.brokers is required")
	}
	if c.Seam.RouteTopic == "" {
		return fmt.Errorf("config: seam.route_topic is required")
	}
	if c.Seam.TunnelTopic == "" {
		return fmt.Errorf("config: seam.tunnel_topic is required")
	}
	if c.Postgres.DSN == "" {
		return fmt.Errorf("config: postgres.dsn is required")
	}
	if c.Postgres.MaxConns <= 0 {
		return fmt.Errorf("config: postgres.max_conns must be > 0 (got %d)", c.Postgres.MaxConns)
	}
	if c.Postgres.MinConns < 0 {
		return fmt.Errorf("config: postgres.min_conns must be >= 0 (got %d)", c.Postgres.MinConns)
	}
	if c.History.RetentionDays <= 0 {
		return fmt.Errorf("config: history.retention_days must be > 0 (got %d)", c.History.RetentionDays)
	}
	if c.History.BatchSize <= 0 {
		return fmt.Errorf("config: history.batch_size must be > 0 (got %d)", c.History.BatchSize)
	}
	if c.History.FlushIntervalMs <= 0 {
		return fmt.Errorf("config: history.flush_interval_ms must be > 0 (got %d)", c.History.FlushIntervalMs)
	}
	if _, err := time.LoadLocation(c.History.Timezone); err != nil {
		return fmt.Errorf("config: history.timezone is invalid: %w", err)
	}
	return nil
}

// BuildTLSConfig creates a *tls.Config from the seam TLS settings. Returns nil if TLS is disabled.
func (s *SeamConfig) BuildTLSConfig() (*tls.Config, error) {
	if !s.TLS.Enabled {
		return nil, nil
	}
	tlsCfg := &tls.Config{}
	if s.TLS.CAFile != "" {
		caPEM, err := os.ReadFile(s.TLS.CAFile)
		if err != nil {
			return nil, fmt.Errorf("reading CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		tlsCfg.RootCAs = pool
	}
	if s.TLS.CertFile != "" && s.TLS.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(s.TLS.CertFile, s.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading client certificate: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}
	return tlsCfg, nil
}

// BuildSASLMechanism creates a SASL mechanism from the seam SASL settings. Returns nil if SASL is disabled.
func (s *SeamConfig) BuildSASLMechanism() sasl.Mechanism {
	if !s.SASL.Enabled {
		return nil
	}
	switch strings.ToUpper(s.SASL.Mechanism) {
	case "PLAIN":
		return plain.Auth{User: s.SASL.Username, Pass: s.SASL.Password}.AsMechanism()
	default:
		return nil
	}
}
