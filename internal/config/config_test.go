package config

import (
	"os"
	"testing"
	"time"

	"github.com/rewired-gh/venuewatch/internal/models"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpfile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Remove(tmpfile.Name()) })

	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}
	return tmpfile.Name()
}

func TestLoadAndValidate(t *testing.T) {
	content := `
source:
  paths:
    - ./data/events.csv
  format: csv

analytics:
  closing_types:
    - Cancelled
    - Rejected
    - Trade
  anomaly_multiplier: 3
  grace_period: 30s
  novelty_threshold: 5
  granularity: 1m
  window_start: "2024-01-05T09:28:00Z"
  window_end: "2024-01-05T09:30:00Z"

patterns:
  top_k: 5
  targets:
    - "NewOrderRequest -> NewOrderAcknowledged -> Trade"
  transitions:
    - "NewOrderAcknowledged -> Trade"
  strict: true

telegram:
  bot_token: "test_token"
  chat_id: "test_chat_id"
  enabled: true

storage:
  db_path: "./data/test.db"
  max_runs: 10

logging:
  level: "info"
  format: "json"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Analytics.GracePeriod != 30*time.Second {
		t.Errorf("Unexpected grace period: %v", cfg.Analytics.GracePeriod)
	}
	if cfg.Analytics.Granularity != time.Minute {
		t.Errorf("Unexpected granularity: %v", cfg.Analytics.Granularity)
	}
	if cfg.Analytics.AnomalyMultiplier != 3 {
		t.Errorf("Unexpected anomaly multiplier: %f", cfg.Analytics.AnomalyMultiplier)
	}
	if len(cfg.Patterns.Targets) != 1 || !cfg.Patterns.Strict {
		t.Errorf("Unexpected patterns config: %+v", cfg.Patterns)
	}
	if cfg.Telegram.MaxRetries != 3 {
		t.Errorf("Expected default max retries 3, got %d", cfg.Telegram.MaxRetries)
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	mc, err := cfg.Analytics.MonitorConfig()
	if err != nil {
		t.Fatalf("MonitorConfig failed: %v", err)
	}
	if len(mc.ClosingTypes) != 3 || mc.ClosingTypes[2] != models.Trade {
		t.Errorf("Unexpected closing types: %v", mc.ClosingTypes)
	}
	wantStart := time.Date(2024, 1, 5, 9, 28, 0, 0, time.UTC)
	if !mc.WindowStart.Equal(wantStart) {
		t.Errorf("Unexpected window start: %v", mc.WindowStart)
	}
	if !mc.StreamStart.IsZero() {
		t.Errorf("Stream start should be left to the first event, got %v", mc.StreamStart)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "source:\n  paths: [events.json]\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	mc, err := cfg.Analytics.MonitorConfig()
	if err != nil {
		t.Fatalf("MonitorConfig failed: %v", err)
	}
	if mc.AnomalyMultiplier != 2 || mc.GracePeriod != time.Minute || mc.NoveltyThreshold != 20 || mc.Granularity != time.Second {
		t.Errorf("Unexpected defaults: %+v", mc)
	}
	if len(mc.ClosingTypes) != 2 || mc.ClosingTypes[0] != models.Cancelled || mc.ClosingTypes[1] != models.Rejected {
		t.Errorf("Unexpected default closing types: %v", mc.ClosingTypes)
	}
	if !mc.WindowStart.IsZero() || !mc.WindowEnd.IsZero() {
		t.Errorf("Expected open window, got %v..%v", mc.WindowStart, mc.WindowEnd)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("VENUEWATCH_ANALYTICS_NOVELTY_THRESHOLD", "7")
	cfg, err := Load(writeConfig(t, "source:\n  paths: [events.csv]\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Analytics.NoveltyThreshold != 7 {
		t.Errorf("Expected env override 7, got %d", cfg.Analytics.NoveltyThreshold)
	}
}

func validConfig() *Config {
	return &Config{
		Source: SourceConfig{Paths: []string{"events.csv"}},
		Analytics: AnalyticsConfig{
			ClosingTypes:      []string{"Cancelled", "Rejected"},
			AnomalyMultiplier: 2,
			GracePeriod:       time.Minute,
			NoveltyThreshold:  20,
			Granularity:       time.Second,
		},
		Patterns: PatternsConfig{TopK: 10},
		Storage:  StorageConfig{Enabled: true, MaxRuns: 10, DBPath: "./data/test.db"},
		Logging:  LoggingConfig{Level: "info", Format: "json"},
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}, wantErr: false},
		{name: "no source paths", mutate: func(c *Config) { c.Source.Paths = nil }, wantErr: true},
		{name: "unknown source format", mutate: func(c *Config) { c.Source.Format = "xml" }, wantErr: true},
		{name: "unknown closing type", mutate: func(c *Config) { c.Analytics.ClosingTypes = []string{"Expired"} }, wantErr: true},
		{name: "new order as closing type", mutate: func(c *Config) { c.Analytics.ClosingTypes = []string{"NewOrderRequest"} }, wantErr: true},
		{name: "empty closing types", mutate: func(c *Config) { c.Analytics.ClosingTypes = nil }, wantErr: true},
		{name: "zero multiplier", mutate: func(c *Config) { c.Analytics.AnomalyMultiplier = 0 }, wantErr: true},
		{name: "negative grace period", mutate: func(c *Config) { c.Analytics.GracePeriod = -time.Second }, wantErr: true},
		{name: "zero grace period", mutate: func(c *Config) { c.Analytics.GracePeriod = 0 }, wantErr: false},
		{name: "zero novelty threshold", mutate: func(c *Config) { c.Analytics.NoveltyThreshold = 0 }, wantErr: true},
		{name: "zero granularity", mutate: func(c *Config) { c.Analytics.Granularity = 0 }, wantErr: true},
		{name: "malformed window", mutate: func(c *Config) { c.Analytics.WindowStart = "yesterday" }, wantErr: true},
		{
			name: "window end before start",
			mutate: func(c *Config) {
				c.Analytics.WindowStart = "2024-01-05T09:30:00Z"
				c.Analytics.WindowEnd = "2024-01-05T09:28:00Z"
			},
			wantErr: true,
		},
		{name: "bad target shape", mutate: func(c *Config) { c.Patterns.Targets = []string{"NewOrderRequest -> Bogus"} }, wantErr: true},
		{name: "missing telegram token when enabled", mutate: func(c *Config) { c.Telegram = TelegramConfig{Enabled: true, ChatID: "1"} }, wantErr: true},
		{name: "missing telegram chat when enabled", mutate: func(c *Config) { c.Telegram = TelegramConfig{Enabled: true, BotToken: "t"} }, wantErr: true},
		{name: "zero max runs", mutate: func(c *Config) { c.Storage.MaxRuns = 0 }, wantErr: true},
		{name: "storage disabled ignores max runs", mutate: func(c *Config) { c.Storage = StorageConfig{} }, wantErr: false},
		{name: "metrics without address", mutate: func(c *Config) { c.Metrics = MetricsConfig{Enabled: true} }, wantErr: true},
		{name: "invalid log level", mutate: func(c *Config) { c.Logging.Level = "trace" }, wantErr: true},
		{name: "invalid log format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
