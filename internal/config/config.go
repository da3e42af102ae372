package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rewired-gh/venuewatch/internal/models"
	"github.com/rewired-gh/venuewatch/internal/monitor"
	"github.com/rewired-gh/venuewatch/internal/patterns"
)

// Config represents the complete application configuration
type Config struct {
	Source    SourceConfig    `mapstructure:"source"`
	Analytics AnalyticsConfig `mapstructure:"analytics"`
	Patterns  PatternsConfig  `mapstructure:"patterns"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// SourceConfig points at the event log to analyse
type SourceConfig struct {
	Paths  []string `mapstructure:"paths"`
	Format string   `mapstructure:"format"` // csv, json or empty to detect from extension
}

// AnalyticsConfig holds the tuning of the venue analytics engine
type AnalyticsConfig struct {
	ClosingTypes      []string      `mapstructure:"closing_types"`
	AnomalyMultiplier float64       `mapstructure:"anomaly_multiplier"`
	GracePeriod       time.Duration `mapstructure:"grace_period"`
	NoveltyThreshold  int           `mapstructure:"novelty_threshold"`
	Granularity       time.Duration `mapstructure:"granularity"`
	WindowStart       string        `mapstructure:"window_start"` // RFC3339, empty = open
	WindowEnd         string        `mapstructure:"window_end"`
	Shards            int           `mapstructure:"shards"` // 0 = sequential run with row flags
}

// PatternsConfig holds pattern mining and sequence filter settings
type PatternsConfig struct {
	TopK        int      `mapstructure:"top_k"`
	Targets     []string `mapstructure:"targets"`     // exact shapes, "A -> B"
	Transitions []string `mapstructure:"transitions"` // transition chains, "A -> B -> C"
	Strict      bool     `mapstructure:"strict"`      // transitions must happen within one order
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// StorageConfig holds run report storage configuration
type StorageConfig struct {
	DBPath  string `mapstructure:"db_path"`
	MaxRuns int    `mapstructure:"max_runs"`
	Enabled bool   `mapstructure:"enabled"`
}

// MetricsConfig holds Prometheus exporter configuration
type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
	Namespace  string `mapstructure:"namespace"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)

	setDefaults(v)

	// VENUEWATCH_ANALYTICS_GRACE_PERIOD overrides analytics.grace_period, etc.
	v.SetEnvPrefix("VENUEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	v.SetDefault("source.format", "")

	// Analytics defaults
	v.SetDefault("analytics.closing_types", []string{string(models.Cancelled), string(models.Rejected)})
	v.SetDefault("analytics.anomaly_multiplier", 2.0)
	v.SetDefault("analytics.grace_period", "1m")
	v.SetDefault("analytics.novelty_threshold", 20)
	v.SetDefault("analytics.granularity", "1s")
	v.SetDefault("analytics.window_start", "")
	v.SetDefault("analytics.window_end", "")
	v.SetDefault("analytics.shards", 0)

	v.SetDefault("patterns.top_k", 10)
	v.SetDefault("patterns.strict", false)

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	v.SetDefault("storage.enabled", true)
	v.SetDefault("storage.db_path", "./data/venuewatch.db")
	v.SetDefault("storage.max_runs", 50)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen_addr", ":9102")
	v.SetDefault("metrics.namespace", "venuewatch")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if len(c.Source.Paths) == 0 {
		return fmt.Errorf("source.paths must contain at least one event log")
	}
	validFormats := map[string]bool{"": true, "csv": true, "json": true}
	if !validFormats[c.Source.Format] {
		return fmt.Errorf("source.format must be one of: csv, json")
	}

	if _, err := c.Analytics.ClosingMessageTypes(); err != nil {
		return err
	}
	if c.Analytics.AnomalyMultiplier <= 0 {
		return fmt.Errorf("analytics.anomaly_multiplier must be positive")
	}
	if c.Analytics.GracePeriod < 0 {
		return fmt.Errorf("analytics.grace_period must not be negative")
	}
	if c.Analytics.NoveltyThreshold < 1 {
		return fmt.Errorf("analytics.novelty_threshold must be at least 1")
	}
	if c.Analytics.Granularity <= 0 {
		return fmt.Errorf("analytics.granularity must be positive")
	}
	start, end, err := c.Analytics.Window()
	if err != nil {
		return err
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return fmt.Errorf("analytics.window_end must not precede analytics.window_start")
	}
	if c.Analytics.Shards < 0 {
		return fmt.Errorf("analytics.shards must not be negative")
	}

	if c.Patterns.TopK < 0 {
		return fmt.Errorf("patterns.top_k must not be negative")
	}
	if _, err := patterns.ParseShapes(c.Patterns.Targets); err != nil {
		return fmt.Errorf("patterns.targets: %w", err)
	}
	if _, err := patterns.ParseShapes(c.Patterns.Transitions); err != nil {
		return fmt.Errorf("patterns.transitions: %w", err)
	}

	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	if c.Storage.Enabled && c.Storage.MaxRuns < 1 {
		return fmt.Errorf("storage.max_runs must be at least 1")
	}

	if c.Metrics.Enabled && c.Metrics.ListenAddr == "" {
		return fmt.Errorf("metrics.listen_addr is required when metrics are enabled")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// ClosingMessageTypes parses the configured closing message types.
func (a AnalyticsConfig) ClosingMessageTypes() ([]models.MessageType, error) {
	if len(a.ClosingTypes) == 0 {
		return nil, fmt.Errorf("analytics.closing_types must contain at least one message type")
	}
	types := make([]models.MessageType, 0, len(a.ClosingTypes))
	for _, s := range a.ClosingTypes {
		mt, err := models.ParseMessageType(s)
		if err != nil {
			return nil, fmt.Errorf("analytics.closing_types: %w", err)
		}
		if mt == models.NewOrderRequest {
			return nil, fmt.Errorf("analytics.closing_types must not contain %s", mt)
		}
		types = append(types, mt)
	}
	return types, nil
}

// Window parses the observation window bounds. Empty bounds are returned as zero times.
func (a AnalyticsConfig) Window() (time.Time, time.Time, error) {
	var start, end time.Time
	var err error
	if a.WindowStart != "" {
		if start, err = time.Parse(time.RFC3339Nano, a.WindowStart); err != nil {
			return start, end, fmt.Errorf("analytics.window_start: %w", err)
		}
	}
	if a.WindowEnd != "" {
		if end, err = time.Parse(time.RFC3339Nano, a.WindowEnd); err != nil {
			return start, end, fmt.Errorf("analytics.window_end: %w", err)
		}
	}
	return start, end, nil
}

// MonitorConfig converts the analytics section into the engine configuration.
func (a AnalyticsConfig) MonitorConfig() (monitor.Config, error) {
	closing, err := a.ClosingMessageTypes()
	if err != nil {
		return monitor.Config{}, err
	}
	start, end, err := a.Window()
	if err != nil {
		return monitor.Config{}, err
	}
	return monitor.Config{
		ClosingTypes:      closing,
		AnomalyMultiplier: a.AnomalyMultiplier,
		GracePeriod:       a.GracePeriod,
		NoveltyThreshold:  a.NoveltyThreshold,
		Granularity:       a.Granularity,
		WindowStart:       start,
		WindowEnd:         end,
	}, nil
}
