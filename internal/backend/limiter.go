package backend

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Limiter caps the number of distinct metric names forwarded over the
// lifetime of the process. A name that has been admitted once keeps its slot
// until restart.
type Limiter struct {
	log   logrus.FieldLogger
	limit int

	mu   sync.Mutex
	seen map[string]struct{}
}

// NewLimiter creates a Limiter. A limit of 0 disables limiting.
func NewLimiter(log logrus.FieldLogger, limit int) *Limiter {
	return &Limiter{
		log:   log.WithField("component", "limiter"),
		limit: limit,
		seen:  make(map[string]struct{}, 64),
	}
}

// Enabled reports whether a ceiling is configured.
func (l *Limiter) Enabled() bool {
	return l.limit > 0
}

// Limit returns the records that fit under the ceiling, preserving order,
// and the number of records dropped.
func (l *Limiter) Limit(records []Record) ([]Record, int) {
	if !l.Enabled() {
		return records, 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	kept := make([]Record, 0, len(records))
	dropped := 0

	for _, r := range records {
		if _, ok := l.seen[r.Name]; ok {
			kept = append(kept, r)

			continue
		}

		if len(l.seen) >= l.limit {
			l.log.WithFields(logrus.Fields{
				"metric": r.Name,
				"limit":  l.limit,
			}).Warn("Metrics limit reached, dropping metric")

			dropped++

			continue
		}

		l.seen[r.Name] = struct{}{}
		kept = append(kept, r)
	}

	return kept, dropped
}

// Admitted returns the number of names currently holding a slot.
func (l *Limiter) Admitted() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.seen)
}
