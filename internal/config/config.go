// Package config loads the process configuration from a YAML file with
// environment-variable overrides, following the layering pattern the
// teacher's internal/config.ConfigLoader and the cryptorun pack example's
// infrastructure/db.LoadAppConfig both use: file first, env wins, defaults
// fill the rest.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the flat configuration surface for both ingestd and
// aggregatord. Every row of the configuration table in the specification
// has a field here; ConnectTimeoutMs, Symbols, VenueMap, Logging and
// Metrics are additional settings beyond that table.
type Config struct {
	Bus   BusConfig   `yaml:"bus"`
	Store StoreConfig `yaml:"store"`
	Cache CacheConfig `yaml:"cache"`

	Candle  CandleConfig  `yaml:"candle"`
	Ingest  IngestConfig  `yaml:"ingest"`
	Testing TestingConfig `yaml:"testing"`

	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type BusConfig struct {
	ServersURL       string `yaml:"servers_url"`
	ConnectTimeoutMs int    `yaml:"connect_timeout_ms"`
}

type StoreConfig struct {
	URL      string `yaml:"url"`
	Database string `yaml:"database"`
}

type CacheConfig struct {
	URL string `yaml:"url"`
}

type CandleConfig struct {
	IntervalsMs   []int64 `yaml:"intervals_ms"`
	MaxLateMs     int64   `yaml:"max_late_ms"`
	CacheLimit    int64   `yaml:"cache_limit"`
	DeliverPolicy string  `yaml:"deliver_policy"`
	ConsumerReset bool    `yaml:"consumer_reset"`
}

type IngestConfig struct {
	AdapterName    string            `yaml:"adapter_name"`
	EmitIntervalMs int64             `yaml:"emit_interval_ms"`
	Symbols        []string          `yaml:"symbols"`
	VenueMap       map[string]string `yaml:"venue_map"`
}

type TestingConfig struct {
	Enabled    bool  `yaml:"enabled"`
	ThrottleMs int64 `yaml:"throttle_ms"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type MetricsConfig struct {
	Port int `yaml:"port"`
}

// Load reads configPath if present, applies environment overrides, and
// fills any still-zero field with its documented default.
func Load(configPath string) (*Config, error) {
	var cfg Config

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", configPath, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", configPath, err)
		}
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("EQUITYSTREAM_BUS_URL"); v != "" {
		cfg.Bus.ServersURL = v
	}
	if v := os.Getenv("EQUITYSTREAM_STORE_URL"); v != "" {
		cfg.Store.URL = v
	}
	if v := os.Getenv("EQUITYSTREAM_STORE_DATABASE"); v != "" {
		cfg.Store.Database = v
	}
	if v := os.Getenv("EQUITYSTREAM_CACHE_URL"); v != "" {
		cfg.Cache.URL = v
	}
	if v := os.Getenv("EQUITYSTREAM_CANDLE_INTERVALS_MS"); v != "" {
		cfg.Candle.IntervalsMs = parseCSVInt64(v)
	}
	if v := os.Getenv("EQUITYSTREAM_CANDLE_MAX_LATE_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Candle.MaxLateMs = n
		}
	}
	if v := os.Getenv("EQUITYSTREAM_CANDLE_CACHE_LIMIT"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Candle.CacheLimit = n
		}
	}
	if v := os.Getenv("EQUITYSTREAM_CANDLE_DELIVER_POLICY"); v != "" {
		cfg.Candle.DeliverPolicy = v
	}
	if v := os.Getenv("EQUITYSTREAM_CANDLE_CONSUMER_RESET"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Candle.ConsumerReset = b
		}
	}
	if v := os.Getenv("EQUITYSTREAM_INGEST_ADAPTER"); v != "" {
		cfg.Ingest.AdapterName = v
	}
	if v := os.Getenv("EQUITYSTREAM_INGEST_EMIT_INTERVAL_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Ingest.EmitIntervalMs = n
		}
	}
	if v := os.Getenv("EQUITYSTREAM_TESTING_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Testing.Enabled = b
		}
	}
	if v := os.Getenv("EQUITYSTREAM_TESTING_THROTTLE_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Testing.ThrottleMs = n
		}
	}
	if v := os.Getenv("EQUITYSTREAM_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("EQUITYSTREAM_METRICS_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = n
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Bus.ServersURL == "" {
		cfg.Bus.ServersURL = "nats://localhost:4222"
	}
	if cfg.Bus.ConnectTimeoutMs == 0 {
		cfg.Bus.ConnectTimeoutMs = 5000
	}
	if cfg.Store.URL == "" {
		cfg.Store.URL = "http://localhost:8123"
	}
	if cfg.Store.Database == "" {
		cfg.Store.Database = "default"
	}
	if cfg.Cache.URL == "" {
		cfg.Cache.URL = "redis://localhost:6379"
	}
	if len(cfg.Candle.IntervalsMs) == 0 {
		cfg.Candle.IntervalsMs = []int64{1000, 5000, 60000}
	}
	if cfg.Candle.CacheLimit == 0 {
		cfg.Candle.CacheLimit = 2000
	}
	if cfg.Candle.DeliverPolicy == "" {
		cfg.Candle.DeliverPolicy = "new"
	}
	if cfg.Ingest.AdapterName == "" {
		cfg.Ingest.AdapterName = "synthetic"
	}
	if cfg.Ingest.EmitIntervalMs == 0 {
		cfg.Ingest.EmitIntervalMs = 1000
	}
	if len(cfg.Ingest.Symbols) == 0 {
		cfg.Ingest.Symbols = []string{"AAPL", "MSFT", "NVDA"}
	}
	if cfg.Testing.ThrottleMs == 0 {
		cfg.Testing.ThrottleMs = 200
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}
}

func parseCSVInt64(csv string) []int64 {
	parts := strings.Split(csv, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if n, err := strconv.ParseInt(p, 10, 64); err == nil {
			out = append(out, n)
		}
	}
	return out
}
