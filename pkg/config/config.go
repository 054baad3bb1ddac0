// Package config loads the pairstream configuration: a YAML file, an
// optional .env file and QS_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/yourusername/quantstream/pkg/client"
	"github.com/yourusername/quantstream/pkg/model"
)

// Config is the complete configuration of the pairstream service.
type Config struct {
	System   SystemConfig    `yaml:"system"`
	Pair     model.Selection `yaml:"pair"` // selection activated at startup
	Symbols  []string        `yaml:"symbols"`
	Snapshot SnapshotConfig  `yaml:"snapshot"`
	Live     LiveConfig      `yaml:"live"`
	Series   SeriesConfig    `yaml:"series"`
	API      APIConfig       `yaml:"api"`
	GRPC     GRPCConfig      `yaml:"grpc"`
	Logging  LoggingConfig   `yaml:"logging"`
	Feed     FeedConfig      `yaml:"feed"`
}

// SystemConfig contains service-level settings
type SystemConfig struct {
	Name         string `yaml:"name"`
	AutoActivate bool   `yaml:"auto_activate"` // activate Pair on startup
	PairsFile    string `yaml:"pairs_file"`    // optional preset pair list
}

// SnapshotConfig configures the historical snapshot endpoint
type SnapshotConfig struct {
	BaseURL     string        `yaml:"base_url"`
	Timeout     time.Duration `yaml:"timeout"`
	RetryCount  int           `yaml:"retry_count"`
	RetryWait   time.Duration `yaml:"retry_wait"`
	RefreshCron string        `yaml:"refresh_cron"` // six-field cron, empty disables
}

// LiveConfig configures the live tick channel
type LiveConfig struct {
	NATSURL       string `yaml:"nats_url"`
	SubjectPrefix string `yaml:"subject_prefix"`
	Codec         string `yaml:"codec"` // json, proto
	QueueSize     int    `yaml:"queue_size"`
	PendingLimit  int    `yaml:"pending_limit"`
}

// SeriesConfig bounds the in-memory series
type SeriesConfig struct {
	MaxPoints int `yaml:"max_points"`
}

// APIConfig contains HTTP REST API configuration
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// GRPCConfig contains the health service configuration
type GRPCConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	File string `yaml:"file"`
}

// FeedConfig drives cmd/tickfeed
type FeedConfig struct {
	Interval   time.Duration `yaml:"interval"`
	Warmup     int           `yaml:"warmup"`
	BasePrice  float64       `yaml:"base_price"`
	HedgePrice float64       `yaml:"hedge_price"`
	Volatility float64       `yaml:"volatility"`
	Seed       int64         `yaml:"seed"`
}

// Default returns a configuration with every default filled in.
func Default() *Config {
	return &Config{
		System: SystemConfig{Name: "pairstream"},
		Pair: model.Selection{
			Timeframe:  model.Timeframe1m,
			WindowSize: model.DefaultWindowSize,
		},
		Snapshot: SnapshotConfig{
			BaseURL:   "http://localhost:8000",
			Timeout:   30 * time.Second,
			RetryWait: time.Second,
		},
		Live: LiveConfig{
			NATSURL:       "nats://localhost:4222",
			SubjectPrefix: client.DefaultSubjectPrefix,
			Codec:         string(client.CodecJSON),
			QueueSize:     4096,
			PendingLimit:  1024,
		},
		Series: SeriesConfig{MaxPoints: 5000},
		API:    APIConfig{Enabled: true, Host: "0.0.0.0", Port: 8080},
		GRPC:   GRPCConfig{Enabled: true, Port: 9090},
		Feed: FeedConfig{
			Interval:   500 * time.Millisecond,
			Warmup:     200,
			BasePrice:  64000,
			HedgePrice: 3100,
			Volatility: 0.0005,
		},
	}
}

// Load reads envFile (if present), then path (if non-empty) over the
// defaults, then QS_* environment overrides, and validates the result.
func Load(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ApplyEnv applies QS_* overrides read through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}

	str("QS_NATS_URL", &c.Live.NATSURL)
	str("QS_SNAPSHOT_URL", &c.Snapshot.BaseURL)
	str("QS_BASE_SYMBOL", &c.Pair.BaseSymbol)
	str("QS_HEDGE_SYMBOL", &c.Pair.HedgeSymbol)
	str("QS_CODEC", &c.Live.Codec)
	if v, ok := lookup("QS_TIMEFRAME"); ok && v != "" {
		c.Pair.Timeframe = model.Timeframe(v)
	}
	for key, dst := range map[string]*int{
		"QS_WINDOW":    &c.Pair.WindowSize,
		"QS_API_PORT":  &c.API.Port,
		"QS_GRPC_PORT": &c.GRPC.Port,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}
	return nil
}

// Validate fills defaults, clamps the window and rejects unusable values.
func (c *Config) Validate() error {
	if c.Pair.Timeframe == "" {
		c.Pair.Timeframe = model.Timeframe1m
	}
	tf, err := model.ParseTimeframe(string(c.Pair.Timeframe))
	if err != nil {
		return fmt.Errorf("pair.timeframe: %w", err)
	}
	c.Pair.Timeframe = tf

	if c.Pair.WindowSize == 0 {
		c.Pair.WindowSize = model.DefaultWindowSize
	}
	if w := model.ClampWindow(c.Pair.WindowSize); w != c.Pair.WindowSize {
		log.Printf("[Config] Warning: pair.window %d clamped to %d", c.Pair.WindowSize, w)
		c.Pair.WindowSize = w
	}

	c.Pair.BaseSymbol = strings.ToUpper(strings.TrimSpace(c.Pair.BaseSymbol))
	c.Pair.HedgeSymbol = strings.ToUpper(strings.TrimSpace(c.Pair.HedgeSymbol))
	if c.Pair.BaseSymbol != "" || c.Pair.HedgeSymbol != "" {
		if err := c.Pair.Validate(); err != nil {
			return fmt.Errorf("pair: %w", err)
		}
	}
	if c.System.AutoActivate && c.Pair.BaseSymbol == "" {
		return fmt.Errorf("system.auto_activate requires pair.base_symbol and pair.hedge_symbol")
	}
	for i, s := range c.Symbols {
		c.Symbols[i] = strings.ToUpper(strings.TrimSpace(s))
	}

	if c.Snapshot.BaseURL == "" {
		return fmt.Errorf("snapshot.base_url is required")
	}
	if c.Live.NATSURL == "" {
		return fmt.Errorf("live.nats_url is required")
	}
	codec, err := client.ParseCodec(c.Live.Codec)
	if err != nil {
		return fmt.Errorf("live.codec: %w", err)
	}
	c.Live.Codec = string(codec)
	if c.Live.PendingLimit <= 0 {
		c.Live.PendingLimit = 1024
	}
	if c.Live.QueueSize <= 0 {
		c.Live.QueueSize = 4096
	}

	if c.API.Enabled && (c.API.Port <= 0 || c.API.Port > 65535) {
		return fmt.Errorf("api.port %d out of range", c.API.Port)
	}
	if c.GRPC.Enabled && (c.GRPC.Port <= 0 || c.GRPC.Port > 65535) {
		return fmt.Errorf("grpc.port %d out of range", c.GRPC.Port)
	}
	if c.Series.MaxPoints <= 0 {
		c.Series.MaxPoints = 5000
	}

	if c.Feed.Interval <= 0 {
		c.Feed.Interval = 500 * time.Millisecond
	}
	if c.Feed.Warmup < 2 {
		c.Feed.Warmup = 200
	}
	return nil
}

// Save writes the configuration to a YAML file
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
