package cloudwatch

import (
	"errors"
	"time"
)

// Config configures the CloudWatch API client.
type Config struct {
	// Region is the AWS region metrics are published to.
	Region string `yaml:"region"`

	// Endpoint overrides the service endpoint, e.g. for localstack.
	Endpoint string `yaml:"endpoint"`

	// RequestTimeout bounds a single PutMetricData call.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// AccessKeyID and SecretAccessKey select static credentials.
	// When empty the default credential chain is used.
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		RequestTimeout: 10 * time.Second,
	}
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Region == "" {
		return errors.New("region is required")
	}

	if (c.AccessKeyID == "") != (c.SecretAccessKey == "") {
		return errors.New("access_key_id and secret_access_key must be set together")
	}

	return nil
}
