package backend

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// MaxBatchSize is the most records PutMetricData accepts in one call.
const MaxBatchSize = 20

// CodeUnknown is used when a submission error carries no API code.
const CodeUnknown = "UnknownError"

// Client submits batches to the remote ingestion API.
type Client interface {
	// PutBatch submits one batch. A failure should be a *SubmitError so the
	// API code survives; any other error is reported as CodeUnknown.
	PutBatch(ctx context.Context, batch Batch) error
}

// SubmitError is a failed submission with a machine-readable code.
type SubmitError struct {
	Code    string
	Message string
}

func (e *SubmitError) Error() string {
	return e.Code + ": " + e.Message
}

// AsSubmitError converts err into a *SubmitError. It returns nil for nil.
func AsSubmitError(err error) *SubmitError {
	if err == nil {
		return nil
	}

	var se *SubmitError
	if errors.As(err, &se) {
		return se
	}

	return &SubmitError{Code: CodeUnknown, Message: err.Error()}
}

// Outcome is the result of one batch submission: success when Err is nil.
type Outcome struct {
	Batch    Batch
	Err      *SubmitError
	Duration time.Duration
}

// Success reports whether the batch was accepted.
func (o Outcome) Success() bool {
	return o.Err == nil
}

// OutcomeFunc handles a submission outcome. It may be called concurrently.
type OutcomeFunc func(Outcome)

// Submitter splits records into batches and submits each one in its own
// goroutine. Every submitted batch produces exactly one outcome.
type Submitter struct {
	client    Client
	namespace string
	batchSize int
	onOutcome OutcomeFunc

	wg       sync.WaitGroup
	inFlight atomic.Int64
}

// NewSubmitter creates a Submitter. A batchSize outside 1..MaxBatchSize
// falls back to MaxBatchSize.
func NewSubmitter(
	client Client,
	namespace string,
	batchSize int,
	onOutcome OutcomeFunc,
) *Submitter {
	if batchSize <= 0 || batchSize > MaxBatchSize {
		batchSize = MaxBatchSize
	}

	if onOutcome == nil {
		onOutcome = func(Outcome) {}
	}

	return &Submitter{
		client:    client,
		namespace: namespace,
		batchSize: batchSize,
		onOutcome: onOutcome,
	}
}

// Chunk splits records into consecutive slices of at most size records.
// The returned slices share records' backing array and are capped so that
// appending to one never overwrites the next.
func Chunk(records []Record, size int) [][]Record {
	if len(records) == 0 || size <= 0 {
		return nil
	}

	chunks := make([][]Record, 0, (len(records)+size-1)/size)

	for start := 0; start < len(records); start += size {
		end := min(start+size, len(records))
		chunks = append(chunks, records[start:end:end])
	}

	return chunks
}

// Submit dispatches records and returns the number of batches started.
// It does not wait for any of them to complete.
func (s *Submitter) Submit(ctx context.Context, records []Record) int {
	chunks := Chunk(records, s.batchSize)

	for _, chunk := range chunks {
		batch := Batch{
			Namespace: s.namespace,
			Records:   chunk,
		}

		s.wg.Add(1)
		s.inFlight.Add(1)

		go func() {
			defer s.wg.Done()
			defer s.inFlight.Add(-1)

			start := time.Now()
			err := s.client.PutBatch(ctx, batch)

			s.onOutcome(Outcome{
				Batch:    batch,
				Err:      AsSubmitError(err),
				Duration: time.Since(start),
			})
		}()
	}

	return len(chunks)
}

// InFlight returns the number of batches awaiting an outcome.
func (s *Submitter) InFlight() int64 {
	return s.inFlight.Load()
}

// Wait blocks until all in-flight batches complete or ctx is done.
func (s *Submitter) Wait(ctx context.Context) error {
	done := make(chan struct{})

	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
