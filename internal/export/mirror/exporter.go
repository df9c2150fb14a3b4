// Package mirror streams forwarded records as NDJSON to an HTTP endpoint.
package mirror

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	processor "github.com/ethpandaops/go-batch-processor"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/cwbackend/internal/version"
)

// Exporter POSTs batches of rows to the configured address.
type Exporter struct {
	log        logrus.FieldLogger
	cfg        Config
	client     *http.Client
	compressor *Compressor
}

var _ processor.ItemExporter[Row] = (*Exporter)(nil)

// NewExporter creates an Exporter.
func NewExporter(log logrus.FieldLogger, cfg Config) (*Exporter, error) {
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	compressor, err := NewCompressor(cfg.Compression)
	if err != nil {
		return nil, err
	}

	return &Exporter{
		log: log.WithField("component", "mirror_exporter"),
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.ExportTimeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: cfg.Workers * 2,
				IdleConnTimeout:     90 * time.Second,
				DisableKeepAlives:   !cfg.keepAlive(),
			},
		},
		compressor: compressor,
	}, nil
}

// ExportItems sends rows as a single NDJSON request.
func (e *Exporter) ExportItems(ctx context.Context, rows []*Row) error {
	var body bytes.Buffer

	enc := json.NewEncoder(&body)
	n := 0

	for _, row := range rows {
		if row == nil {
			continue
		}

		if err := enc.Encode(row); err != nil {
			return fmt.Errorf("encoding row: %w", err)
		}

		n++
	}

	if n == 0 {
		return nil
	}

	payload, err := e.compressor.Compress(body.Bytes())
	if err != nil {
		return fmt.Errorf("compressing payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.Address, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-ndjson")
	req.Header.Set("User-Agent", version.UserAgent())

	if ce := e.compressor.ContentEncoding(); ce != "" {
		req.Header.Set("Content-Encoding", ce)
	}

	for k, v := range e.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	e.log.WithFields(logrus.Fields{
		"rows":       n,
		"bytes":      body.Len(),
		"compressed": len(payload),
	}).Debug("Mirrored records")

	return nil
}

// Shutdown releases the compressor.
func (e *Exporter) Shutdown(_ context.Context) error {
	return e.compressor.Close()
}
