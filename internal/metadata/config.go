package metadata

import (
	"errors"
	"time"
)

// DefaultPaths maps template keys to instance metadata paths.
func DefaultPaths() map[string]string {
	return map[string]string{
		"InstanceId": "instance-id",
	}
}

// Config configures instance metadata lookups.
type Config struct {
	// Enabled turns metadata lookups on. Defaults to true.
	Enabled *bool `yaml:"enabled"`

	// Endpoint overrides the instance metadata service address.
	Endpoint string `yaml:"endpoint"`

	// Timeout bounds the whole lookup. Defaults to 10s.
	Timeout time.Duration `yaml:"timeout"`

	// Paths maps template keys to metadata paths, e.g.
	// AvailabilityZone: placement/availability-zone.
	Paths map[string]string `yaml:"paths"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	enabled := true

	return Config{
		Enabled: &enabled,
		Timeout: 10 * time.Second,
		Paths:   DefaultPaths(),
	}
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()

	if c.Enabled == nil {
		c.Enabled = d.Enabled
	}

	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}

	if len(c.Paths) == 0 {
		c.Paths = d.Paths
	}
}

// IsEnabled reports whether lookups should run.
func (c *Config) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	for key, path := range c.Paths {
		if key == "" || path == "" {
			return errors.New("metadata paths must have a non-empty key and path")
		}
	}

	return nil
}
