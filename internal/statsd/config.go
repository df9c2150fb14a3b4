package statsd

import (
	"errors"
	"time"
)

// Config configures the statsd UDP listener.
type Config struct {
	// Enabled turns the listener on. Defaults to true.
	Enabled *bool `yaml:"enabled"`

	// Addr is the UDP listen address. Defaults to ":8125".
	Addr string `yaml:"addr"`

	// FlushInterval is how often the buffer is handed to the backend.
	// Defaults to 10s.
	FlushInterval time.Duration `yaml:"flush_interval"`

	// ReusePort sets SO_REUSEPORT on the socket (Linux only).
	ReusePort bool `yaml:"reuse_port"`

	// ChannelSize bounds parsed samples waiting for the run loop.
	// Samples are dropped when it is full. Defaults to 65536.
	ChannelSize int `yaml:"channel_size"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	enabled := true

	return Config{
		Enabled:       &enabled,
		Addr:          ":8125",
		FlushInterval: 10 * time.Second,
		ChannelSize:   65536,
	}
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()

	if c.Enabled == nil {
		c.Enabled = d.Enabled
	}

	if c.Addr == "" {
		c.Addr = d.Addr
	}

	if c.FlushInterval <= 0 {
		c.FlushInterval = d.FlushInterval
	}

	if c.ChannelSize <= 0 {
		c.ChannelSize = d.ChannelSize
	}
}

// IsEnabled reports whether the listener should run.
func (c *Config) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.IsEnabled() && c.FlushInterval < time.Second {
		return errors.New("flush_interval must be at least 1s")
	}

	return nil
}
