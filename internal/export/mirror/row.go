package mirror

import (
	"time"

	"github.com/ethpandaops/cwbackend/internal/backend"
)

// Row is the NDJSON form of one forwarded record.
type Row struct {
	Timestamp  time.Time         `json:"timestamp"`
	Namespace  string            `json:"namespace"`
	Name       string            `json:"name"`
	Kind       string            `json:"kind"`
	Value      *float64          `json:"value,omitempty"`
	Min        *float64          `json:"min,omitempty"`
	Max        *float64          `json:"max,omitempty"`
	Sum        *float64          `json:"sum,omitempty"`
	Count      int               `json:"count,omitempty"`
	Dimensions map[string]string `json:"dimensions,omitempty"`
	Source     string            `json:"source,omitempty"`
}

// NewRow converts a record.
func NewRow(namespace, source string, r backend.Record) *Row {
	row := &Row{
		Timestamp: r.Timestamp,
		Namespace: namespace,
		Name:      r.Name,
		Kind:      r.Kind.String(),
		Source:    source,
	}

	if r.Stats != nil {
		s := *r.Stats
		row.Min, row.Max, row.Sum = &s.Minimum, &s.Maximum, &s.Sum
		row.Count = s.SampleCount
	} else {
		v := r.Value
		row.Value = &v
	}

	if len(r.Dimensions) > 0 {
		row.Dimensions = make(map[string]string, len(r.Dimensions))
		for _, d := range r.Dimensions {
			row.Dimensions[d.Name] = d.Value
		}
	}

	return row
}
