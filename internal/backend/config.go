package backend

import (
	"errors"
	"fmt"
)

// DefaultNamespace is used when no namespace is configured.
const DefaultNamespace = "unknown"

// DefaultWhitelist admits every metric name.
func DefaultWhitelist() []string {
	return []string{".*"}
}

// DefaultBlacklist drops the aggregator's own statsd.* metrics.
func DefaultBlacklist() []string {
	return []string{`statsd\.`}
}

// Config configures the CloudWatch backend.
type Config struct {
	// Namespace is the CloudWatch namespace for every batch.
	// Defaults to "unknown".
	Namespace string `yaml:"namespace"`

	// Dimensions are attached to every metric. Empty values are dropped.
	// Values may reference instance metadata, e.g. "{{ .InstanceId }}".
	Dimensions OrderedMap `yaml:"dimensions"`

	// Whitelist lists regular expressions a metric name must match.
	// Defaults to [".*"]. An explicitly empty list forwards nothing.
	Whitelist []string `yaml:"whitelist"`

	// Blacklist lists regular expressions that exclude a metric name.
	// Defaults to ["statsd\\."].
	Blacklist []string `yaml:"blacklist"`

	// MetricsLimit caps the distinct metric names ever forwarded.
	// 0 disables the limit.
	MetricsLimit int `yaml:"metrics_limit"`

	// Debug logs every flush.
	Debug bool `yaml:"debug"`

	// DumpMessages logs submission results in detail.
	DumpMessages bool `yaml:"dump_messages"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Namespace: DefaultNamespace,
		Whitelist: DefaultWhitelist(),
		Blacklist: DefaultBlacklist(),
	}
}

// ApplyDefaults fills unset fields. A nil pattern list gets its default;
// an empty, non-nil list is left alone.
func (c *Config) ApplyDefaults() {
	if c.Namespace == "" {
		c.Namespace = DefaultNamespace
	}

	if c.Whitelist == nil {
		c.Whitelist = DefaultWhitelist()
	}

	if c.Blacklist == nil {
		c.Blacklist = DefaultBlacklist()
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Namespace == "" {
		return errors.New("namespace is required")
	}

	if c.MetricsLimit < 0 {
		return fmt.Errorf("metrics_limit must be >= 0, got %d", c.MetricsLimit)
	}

	if _, err := NewFilter(c.Whitelist, c.Blacklist); err != nil {
		return err
	}

	return nil
}
