// Package cloudwatch submits metric batches with the AWS PutMetricData API.
package cloudwatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/smithy-go"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/cwbackend/internal/backend"
)

// Error codes for failures that carry no API error code.
const (
	CodeNetworking     = "NetworkingError"
	CodeRequestTimeout = "RequestTimeout"
)

type putMetricDataAPI interface {
	PutMetricData(
		ctx context.Context,
		params *cloudwatch.PutMetricDataInput,
		optFns ...func(*cloudwatch.Options),
	) (*cloudwatch.PutMetricDataOutput, error)
}

// Client implements backend.Client on top of the CloudWatch API.
type Client struct {
	log logrus.FieldLogger
	cfg Config
	api putMetricDataAPI
}

// Ensure Client implements backend.Client.
var _ backend.Client = (*Client)(nil)

// New loads AWS configuration and creates a Client.
func New(ctx context.Context, log logrus.FieldLogger, cfg Config) (*Client, error) {
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}

	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken,
			)),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	api := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	log.WithFields(logrus.Fields{
		"region":   cfg.Region,
		"endpoint": cfg.Endpoint,
	}).Info("CloudWatch client created")

	return newClient(log, cfg, api), nil
}

func newClient(log logrus.FieldLogger, cfg Config, api putMetricDataAPI) *Client {
	cfg.ApplyDefaults()

	return &Client{
		log: log.WithField("component", "cloudwatch"),
		cfg: cfg,
		api: api,
	}
}

// PutBatch submits one batch. Failures are returned as *backend.SubmitError.
func (c *Client) PutBatch(ctx context.Context, batch backend.Batch) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	_, err := c.api.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(batch.Namespace),
		MetricData: toMetricData(batch.Records),
	})
	if err != nil {
		return toSubmitError(err)
	}

	return nil
}

func toMetricData(records []backend.Record) []types.MetricDatum {
	data := make([]types.MetricDatum, 0, len(records))

	for _, r := range records {
		datum := types.MetricDatum{
			MetricName: aws.String(r.Name),
			Timestamp:  aws.Time(r.Timestamp),
			Dimensions: toDimensions(r.Dimensions),
		}

		switch r.Kind {
		case backend.KindCount:
			datum.Unit = types.StandardUnitCount
			datum.Value = aws.Float64(r.Value)
		case backend.KindTiming:
			datum.Unit = types.StandardUnitMilliseconds
			datum.StatisticValues = toStatisticSet(r.Stats)
		case backend.KindGauge:
			datum.Unit = types.StandardUnitNone
			datum.Value = aws.Float64(r.Value)
		}

		data = append(data, datum)
	}

	return data
}

func toStatisticSet(stats *backend.TimingStats) *types.StatisticSet {
	if stats == nil {
		stats = &backend.TimingStats{SampleCount: 1}
	}

	return &types.StatisticSet{
		Minimum:     aws.Float64(stats.Minimum),
		Maximum:     aws.Float64(stats.Maximum),
		Sum:         aws.Float64(stats.Sum),
		SampleCount: aws.Float64(float64(stats.SampleCount)),
	}
}

func toDimensions(dims []backend.Dimension) []types.Dimension {
	out := make([]types.Dimension, 0, len(dims))

	for _, d := range dims {
		out = append(out, types.Dimension{
			Name:  aws.String(d.Name),
			Value: aws.String(d.Value),
		})
	}

	return out
}

// toSubmitError maps an SDK error onto a code and message.
func toSubmitError(err error) *backend.SubmitError {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return &backend.SubmitError{
			Code:    apiErr.ErrorCode(),
			Message: apiErr.ErrorMessage(),
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &backend.SubmitError{Code: CodeRequestTimeout, Message: err.Error()}
	}

	return &backend.SubmitError{Code: CodeNetworking, Message: err.Error()}
}
