// Package metadata looks up EC2 instance metadata and renders dimension
// templates with it.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	"github.com/sirupsen/logrus"
)

// Resolver fetches instance metadata values.
type Resolver interface {
	// Resolve returns every value it could fetch, keyed by template key.
	// The error joins all lookups that failed.
	Resolve(ctx context.Context) (map[string]string, error)
}

type metadataAPI interface {
	GetMetadata(
		ctx context.Context,
		params *imds.GetMetadataInput,
		optFns ...func(*imds.Options),
	) (*imds.GetMetadataOutput, error)
}

type resolver struct {
	log logrus.FieldLogger
	cfg Config
	api metadataAPI
}

// NewResolver creates a Resolver backed by the instance metadata service.
func NewResolver(log logrus.FieldLogger, cfg Config) Resolver {
	cfg.ApplyDefaults()

	opts := imds.Options{}
	if cfg.Endpoint != "" {
		opts.Endpoint = cfg.Endpoint
	}

	return newResolver(log, cfg, imds.New(opts))
}

func newResolver(log logrus.FieldLogger, cfg Config, api metadataAPI) *resolver {
	cfg.ApplyDefaults()

	return &resolver{
		log: log.WithField("component", "metadata"),
		cfg: cfg,
		api: api,
	}
}

func (r *resolver) Resolve(ctx context.Context) (map[string]string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	keys := make([]string, 0, len(r.cfg.Paths))
	for k := range r.cfg.Paths {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	out := make(map[string]string, len(keys))

	var errs []error

	for _, key := range keys {
		path := r.cfg.Paths[key]

		value, err := r.fetch(ctx, path)
		if err != nil {
			errs = append(errs, fmt.Errorf("fetching %s: %w", path, err))

			continue
		}

		out[key] = value

		r.log.WithFields(logrus.Fields{
			"key":   key,
			"value": value,
		}).Debug("Resolved instance metadata")
	}

	return out, errors.Join(errs...)
}

func (r *resolver) fetch(ctx context.Context, path string) (string, error) {
	resp, err := r.api.GetMetadata(ctx, &imds.GetMetadataInput{Path: path})
	if err != nil {
		return "", err
	}
	defer resp.Content.Close()

	body, err := io.ReadAll(resp.Content)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	return strings.TrimSpace(string(body)), nil
}
