package mirror

import (
	"errors"
	"fmt"
	"time"
)

// Config configures the NDJSON mirror export.
type Config struct {
	// Enabled turns the mirror on.
	Enabled bool `yaml:"enabled"`

	// Address is the HTTP endpoint records are POSTed to.
	Address string `yaml:"address"`

	// Headers are added to every request.
	Headers map[string]string `yaml:"headers"`

	// Compression is one of none, gzip, zstd, zlib, snappy. Defaults to gzip.
	Compression string `yaml:"compression"`

	// Source is stamped on every exported record, e.g. the host name.
	Source string `yaml:"source"`

	BatchSize     int           `yaml:"batch_size"`
	BatchTimeout  time.Duration `yaml:"batch_timeout"`
	ExportTimeout time.Duration `yaml:"export_timeout"`
	MaxQueueSize  int           `yaml:"max_queue_size"`
	Workers       int           `yaml:"workers"`

	// KeepAlive enables HTTP keep-alive. Defaults to true.
	KeepAlive *bool `yaml:"keep_alive"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	keepAlive := true

	return Config{
		Compression:   CompressionGzip,
		BatchSize:     500,
		BatchTimeout:  5 * time.Second,
		ExportTimeout: 15 * time.Second,
		MaxQueueSize:  20000,
		Workers:       1,
		KeepAlive:     &keepAlive,
	}
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()

	if c.Compression == "" {
		c.Compression = d.Compression
	}

	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}

	if c.BatchTimeout <= 0 {
		c.BatchTimeout = d.BatchTimeout
	}

	if c.ExportTimeout <= 0 {
		c.ExportTimeout = d.ExportTimeout
	}

	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = d.MaxQueueSize
	}

	if c.Workers <= 0 {
		c.Workers = d.Workers
	}

	if c.KeepAlive == nil {
		c.KeepAlive = d.KeepAlive
	}
}

// Validate checks the configuration. A disabled mirror is always valid.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.Address == "" {
		return errors.New("mirror address is required when enabled")
	}

	if c.BatchSize > c.MaxQueueSize {
		return fmt.Errorf(
			"batch_size (%d) cannot exceed max_queue_size (%d)",
			c.BatchSize, c.MaxQueueSize,
		)
	}

	if _, ok := codecs[c.Compression]; !ok {
		return fmt.Errorf("invalid compression type: %q", c.Compression)
	}

	return nil
}

func (c *Config) keepAlive() bool {
	return c.KeepAlive == nil || *c.KeepAlive
}
