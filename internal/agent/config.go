package agent

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ethpandaops/cwbackend/internal/archive"
	"github.com/ethpandaops/cwbackend/internal/backend"
	"github.com/ethpandaops/cwbackend/internal/cloudwatch"
	"github.com/ethpandaops/cwbackend/internal/export"
	"github.com/ethpandaops/cwbackend/internal/export/mirror"
	"github.com/ethpandaops/cwbackend/internal/metadata"
	"github.com/ethpandaops/cwbackend/internal/statsd"
)

// CloudWatchConfig holds the backend options and the API client options
// in one "cloudwatch" section.
type CloudWatchConfig struct {
	Backend backend.Config    `yaml:",inline"`
	API     cloudwatch.Config `yaml:",inline"`
}

// Config is the top-level configuration for cwbackend.
type Config struct {
	// LogLevel sets the logging verbosity (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`

	// CloudWatch configures metric forwarding.
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`

	// Metadata configures instance metadata lookups for dimension templates.
	Metadata metadata.Config `yaml:"metadata"`

	// Statsd configures the UDP listener.
	Statsd statsd.Config `yaml:"statsd"`

	// Health configures the Prometheus health metrics server.
	Health export.HealthConfig `yaml:"health"`

	// Mirror configures the optional NDJSON export.
	Mirror mirror.Config `yaml:"mirror"`

	// Archive configures the optional ClickHouse archive.
	Archive archive.Config `yaml:"archive"`

	// ShutdownTimeout bounds the wait for in-flight batches on stop.
	// Defaults to 15s.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		CloudWatch: CloudWatchConfig{
			API: cloudwatch.DefaultConfig(),
		},
		Metadata: metadata.DefaultConfig(),
		Statsd:   statsd.DefaultConfig(),
		Health: export.HealthConfig{
			Addr: ":9090",
		},
		Mirror:          mirror.DefaultConfig(),
		Archive:         archive.DefaultConfig(),
		ShutdownTimeout: 15 * time.Second,
	}
}

// LoadConfig reads and parses a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	cfg := DefaultConfig()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for required fields and consistency.
func (c *Config) Validate() error {
	if c.CloudWatch.Backend.Namespace == "" {
		return errors.New(`cloudwatch config is missing "namespace"`)
	}

	if c.CloudWatch.API.Region == "" {
		return errors.New(`cloudwatch config is missing "region"`)
	}

	bcfg := c.CloudWatch.Backend
	bcfg.ApplyDefaults()

	if err := bcfg.Validate(); err != nil {
		return fmt.Errorf("cloudwatch: %w", err)
	}

	if err := c.CloudWatch.API.Validate(); err != nil {
		return fmt.Errorf("cloudwatch: %w", err)
	}

	if err := c.Metadata.Validate(); err != nil {
		return fmt.Errorf("metadata: %w", err)
	}

	scfg := c.Statsd
	scfg.ApplyDefaults()

	if err := scfg.Validate(); err != nil {
		return fmt.Errorf("statsd: %w", err)
	}

	mcfg := c.Mirror
	mcfg.ApplyDefaults()

	if err := mcfg.Validate(); err != nil {
		return fmt.Errorf("mirror: %w", err)
	}

	acfg := c.Archive
	acfg.ApplyDefaults()

	if err := acfg.Validate(); err != nil {
		return fmt.Errorf("archive: %w", err)
	}

	if c.ShutdownTimeout <= 0 {
		return errors.New("shutdown_timeout must be positive")
	}

	return nil
}
