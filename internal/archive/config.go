package archive

import (
	"fmt"
	"time"

	"github.com/ethpandaops/cwbackend/internal/export"
)

// DefaultTable is the table created by the bundled migrations.
const DefaultTable = "cloudwatch_records"

// Config configures the ClickHouse archive.
type Config struct {
	// Enabled turns the archive on.
	Enabled bool `yaml:"enabled"`

	ClickHouse export.ClickHouseConfig `yaml:"clickhouse"`

	// Migrate applies the bundled schema on start. Defaults to true.
	Migrate *bool `yaml:"migrate"`

	// Source is stored with every row, e.g. the host name.
	Source string `yaml:"source"`

	BatchSize     int           `yaml:"batch_size"`
	BatchTimeout  time.Duration `yaml:"batch_timeout"`
	ExportTimeout time.Duration `yaml:"export_timeout"`
	MaxQueueSize  int           `yaml:"max_queue_size"`
	Workers       int           `yaml:"workers"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	migrate := true

	return Config{
		ClickHouse: export.ClickHouseConfig{
			Database: "default",
			Table:    DefaultTable,
		},
		Migrate:       &migrate,
		BatchSize:     10000,
		BatchTimeout:  time.Second,
		ExportTimeout: 30 * time.Second,
		MaxQueueSize:  100000,
		Workers:       1,
	}
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()

	if c.ClickHouse.Table == "" {
		c.ClickHouse.Table = d.ClickHouse.Table
	}

	c.ClickHouse.ApplyDefaults()

	if c.Migrate == nil {
		c.Migrate = d.Migrate
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
}

// ShouldMigrate reports whether migrations run on start.
func (c *Config) ShouldMigrate() bool {
	return c.Migrate == nil || *c.Migrate
}

// Validate checks the configuration. A disabled archive is always valid.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if err := c.ClickHouse.Validate(); err != nil {
		return err
	}

	if c.BatchSize > c.MaxQueueSize {
		return fmt.Errorf(
			"batch_size (%d) cannot exceed max_queue_size (%d)",
			c.BatchSize, c.MaxQueueSize,
		)
	}

	return nil
}
