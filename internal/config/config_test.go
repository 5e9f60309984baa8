package config

import (
	"os"
	"path/filepath"
	"testing"
)

func validConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			NodeID:                 "node-a",
			NodeKind:               "regular",
			ListenAddr:             ":7777",
			AdminListen:            ":8080",
			LogLevel:               "info",
			ShutdownTimeoutSeconds: 2,
		},
		Probe: ProbeConfig{
			IntervalMs: 1000,
			WindowSize: 100,
			MinSamples: 3,
		},
		Routing: RoutingConfig{
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
			Brokers:     []string{"localhost:9092"},
			RouteTopic:  "ddarp.routes",
			TunnelTopic: "ddarp.tunnels",
		},
		Postgres: PostgresConfig{
			DSN:      "postgres://localhost/test",
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
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got error: %v", err)
	}
}

func TestValidate_NoNodeID(t *testing.T) {
	cfg := validConfig()
	cfg.Service.NodeID = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty node_id")
	}
}

func TestValidate_BadNodeKind(t *testing.T) {
	cfg := validConfig()
	cfg.Service.NodeKind = "relay"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid node_kind")
	}
}

func TestValidate_BorderNodeKindAllowed(t *testing.T) {
	cfg := validConfig()
	cfg.Service.NodeKind = "border"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected border node_kind to be valid, got error: %v", err)
	}
}

func TestValidate_NoBrokers(t *testing.T) {
	cfg := validConfig()
	cfg.Seam.Brokers = nil
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty seam brokers")
	}
}

func TestValidate_NoDSN(t *testing.T) {
	cfg := validConfig()
	cfg.Postgres.DSN = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}

func TestValidate_NoRouteTopic(t *testing.T) {
	cfg := validConfig()
	cfg.Seam.RouteTopic = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty route_topic")
	}
}

func TestValidate_NoTunnelTopic(t *testing.T) {
	cfg := validConfig()
	cfg.Seam.TunnelTopic = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty tunnel_topic")
	}
}

func TestValidate_HysteresisRatioOutOfRange(t *testing.T) {
	cfg := validConfig()
	cfg.Routing.HysteresisImprovementRatio = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for hysteresis ratio of 0")
	}
	cfg.Routing.HysteresisImprovementRatio = 1.5
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for hysteresis ratio > 1")
	}
}

func TestValidate_RouteExpireMustExceedRefresh(t *testing.T) {
	cfg := validConfig()
	cfg.Routing.RouteExpireSeconds = 10
	cfg.Routing.RouteRefreshSeconds = 30
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when route_expire_seconds <= route_refresh_seconds")
	}
}

func TestValidate_EdgeEvictMustExceedFreshness(t *testing.T) {
	cfg := validConfig()
	cfg.Topology.EdgeEvictSeconds = 10
	cfg.Topology.EdgeFreshnessSeconds = 30
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when edge_evict_seconds <= edge_freshness_seconds")
	}
}

func TestValidate_MinSamplesExceedsWindowSize(t *testing.T) {
	cfg := validConfig()
	cfg.Probe.WindowSize = 10
	cfg.Probe.MinSamples = 20
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when min_samples exceeds window_size")
	}
}

func TestValidate_BatchSizeZero(t *testing.T) {
	cfg := validConfig()
	cfg.History.BatchSize = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for batch_size = 0")
	}
}

func TestValidate_RetentionDaysZero(t *testing.T) {
	cfg := validConfig()
	cfg.History.RetentionDays = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for retention_days = 0")
	}
}

func TestValidate_ShutdownTimeoutZero(t *testing.T) {
	cfg := validConfig()
	cfg.Service.ShutdownTimeoutSeconds = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for shutdown_timeout_seconds = 0")
	}
}

func TestValidate_InvalidTimezone(t *testing.T) {
	cfg := validConfig()
	cfg.History.Timezone = "Not/A/Real/Zone"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid timezone")
	}
}

func TestValidate_ValidTimezone(t *testing.T) {
	cfg := validConfig()
	cfg.History.Timezone = "America/New_York"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got error: %v", err)
	}
}

func writeMinimalYAML(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	data := `
service:
  node_id: "node-a"
seam:
  brokers:
    - "localhost:9092"
  route_topic: "ddarp.routes"
  tunnel_topic: "ddarp.tunnels"
postgres:
  dsn: "postgres://localhost/test"
`
	if err := os.WriteFile(p, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoad_EnvOverrideDSN(t *testing.T) {
	p := writeMinimalYAML(t)
	t.Setenv("DDARP_POSTGRES__DSN", "postgres://envhost/envdb")

	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Postgres.DSN != "postgres://envhost/envdb" {
		t.Errorf("expected DSN from env, got %q", cfg.Postgres.DSN)
	}
}

func TestLoad_EnvOverrideLogLevel(t *testing.T) {
	p := writeMinimalYAML(t)
	t.Setenv("DDARP_SERVICE__LOG_LEVEL", "debug")

	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Service.LogLevel != "debug" {
		t.Errorf("expected log_level 'debug' from env, got %q", cfg.Service.LogLevel)
	}
}

func TestLoad_EnvEmptyNodeIDFailsValidation(t *testing.T) {
	p := writeMinimalYAML(t)
	t.Setenv("DDARP_SERVICE__NODE_ID", "")

	_, err := Load(p)
	if err == nil {
		t.Fatal("expected validation error for empty node_id via env")
	}
}
