package backend

import (
	"sync"
	"time"
)

// StatusSource is the source identifier passed to status callbacks.
const StatusSource = "cloudwatch"

// Health field names reported by Status.
const (
	FieldLastFlush     = "last_flush"
	FieldLastException = "last_exception"
)

// StatusFunc receives one health field per call.
type StatusFunc = func(err error, source, field string, value int64)

// Health tracks the outcome of chunk submissions.
type Health struct {
	mu            sync.RWMutex
	lastFlush     int64
	lastException int64
	lastError     *SubmitError

	now func() time.Time
}

// NewHealth creates a Health tracker with both timestamps set to start.
func NewHealth(start int64) *Health {
	return &Health{
		lastFlush:     start,
		lastException: start,
		now:           time.Now,
	}
}

// RecordSuccess marks a successful submission and returns the new timestamp.
func (h *Health) RecordSuccess() int64 {
	ts := h.now().Unix()

	h.mu.Lock()
	h.lastFlush = ts
	h.mu.Unlock()

	return ts
}

// RecordFailure marks a failed submission and returns the new timestamp.
func (h *Health) RecordFailure(err *SubmitError) int64 {
	ts := h.now().Unix()

	h.mu.Lock()
	h.lastException = ts
	h.lastError = err
	h.mu.Unlock()

	return ts
}

// LastFlush returns the time of the last successful submission.
func (h *Health) LastFlush() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.lastFlush
}

// LastException returns the time of the last failed submission.
func (h *Health) LastException() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.lastException
}

// LastError returns the most recent submission failure, if any.
func (h *Health) LastError() *SubmitError {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.lastError
}

// Status reports every tracked field to fn.
func (h *Health) Status(fn StatusFunc) {
	h.mu.RLock()
	lastFlush, lastException := h.lastFlush, h.lastException
	h.mu.RUnlock()

	fn(nil, StatusSource, FieldLastFlush, lastFlush)
	fn(nil, StatusSource, FieldLastException, lastException)
}
