// Package config loads the bounce-stats YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/bouncestorage/bounce-stats/pkg/series"
	"github.com/bouncestorage/bounce-stats/pkg/usagestats"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file settings.
const (
	EnvInfluxURL = "BOUNCE_STATS_INFLUX_URL"
	EnvNATSURL   = "BOUNCE_STATS_NATS_URL"
)

var (
	// ErrNoObjectStores indicates a configuration without object stores.
	ErrNoObjectStores = errors.New("no object stores configured")
	// ErrDuplicateStore indicates two object stores share an id.
	ErrDuplicateStore = errors.New("duplicate object store id")
	// ErrMissingInflux indicates the series store location is incomplete.
	ErrMissingInflux = errors.New("influx url and database are required")
)

// InfluxConfig locates the time-series store holding bounce operation series.
type InfluxConfig struct {
	URL                  string        `yaml:"url"`
	Database             string        `yaml:"database"`
	Username             string        `yaml:"username"`
	Password             string        `yaml:"password"`
	Timeout              time.Duration `yaml:"timeout"`
	MaxConcurrentQueries int           `yaml:"max_concurrent_queries"`
}

// NotifyConfig configures completion events. An empty NATSURL disables them.
type NotifyConfig struct {
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
}

// ReportConfig configures Parquet report uploads. An empty Bucket disables them.
type ReportConfig struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
	Region string `yaml:"region"`
}

// ServeConfig configures the periodic aggregation server.
type ServeConfig struct {
	Listen   string        `yaml:"listen"`
	Interval time.Duration `yaml:"interval"`
}

// Config is the full bounce-stats configuration.
type Config struct {
	Influx       InfluxConfig             `yaml:"influx"`
	ObjectStores []usagestats.ObjectStore `yaml:"object_stores"`
	Notify       NotifyConfig             `yaml:"notify"`
	Report       ReportConfig             `yaml:"report"`
	Serve        ServeConfig              `yaml:"serve"`
}

// Default returns a configuration with every optional field set.
func Default() Config {
	client := series.DefaultClientConfig()
	return Config{
		Influx: InfluxConfig{
			Database:             "bounce",
			Timeout:              client.Timeout,
			MaxConcurrentQueries: client.MaxConcurrent,
		},
		Notify: NotifyConfig{
			Subject: "bounce.stats.complete",
		},
		Report: ReportConfig{
			Prefix: "bounce-stats",
		},
		Serve: ServeConfig{
			Listen:   ":9464",
			Interval: time.Minute,
		},
	}
}

// Load reads path, applies environment overrides and defaults, and validates
// the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg.applyEnv()
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvInfluxURL); v != "" {
		c.Influx.URL = v
	}
	if v := os.Getenv(EnvNATSURL); v != "" {
		c.Notify.NATSURL = v
	}
}

// ApplyDefaults fills zero values from Default.
func (c *Config) ApplyDefaults() {
	d := Default()
	if c.Influx.Database == "" {
		c.Influx.Database = d.Influx.Database
	}
	if c.Influx.Timeout <= 0 {
		c.Influx.Timeout = d.Influx.Timeout
	}
	if c.Influx.MaxConcurrentQueries <= 0 {
		c.Influx.MaxConcurrentQueries = d.Influx.MaxConcurrentQueries
	}
	if c.Notify.Subject == "" {
		c.Notify.Subject = d.Notify.Subject
	}
	if c.Report.Prefix == "" {
		c.Report.Prefix = d.Report.Prefix
	}
	if c.Serve.Listen == "" {
		c.Serve.Listen = d.Serve.Listen
	}
	if c.Serve.Interval <= 0 {
		c.Serve.Interval = d.Serve.Interval
	}
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if c.Influx.URL == "" || c.Influx.Database == "" {
		return ErrMissingInflux
	}
	if len(c.ObjectStores) == 0 {
		return ErrNoObjectStores
	}
	seen := make(map[int]bool, len(c.ObjectStores))
	for _, s := range c.ObjectStores {
		if seen[s.ID] {
			return fmt.Errorf("%w: %d", ErrDuplicateStore, s.ID)
		}
		seen[s.ID] = true
	}
	return nil
}

// SeriesClient returns the series client configuration.
func (c *Config) SeriesClient() series.ClientConfig {
	return series.ClientConfig{
		URL:           c.Influx.URL,
		Database:      c.Influx.Database,
		Username:      c.Influx.Username,
		Password:      c.Influx.Password,
		Timeout:       c.Influx.Timeout,
		MaxConcurrent: c.Influx.MaxConcurrentQueries,
	}
}
