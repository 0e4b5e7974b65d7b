package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// OrderingKey is the integer recovered from a snapshot filename that fixes
// its position on an experiment axis.
type OrderingKey int64

// Record is one schema-less snapshot document: metric name to raw JSON value.
type Record map[string]json.RawMessage

// Value looks up a numeric field by name.
func (r Record) Value(name string) (float64, error) {
	raw, ok := r[name]
	if !ok {
		return 0, ErrMissingField
	}

	n, err := ParseNumber(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: field %q is not numeric", ErrMalformedInput, name)
	}

	v, err := n.Float64()
	if err != nil || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: field %q is out of range", ErrMalformedInput, name)
	}
	return v, nil
}

// ParseNumber decodes a raw JSON number literal. Strings holding digits,
// null and booleans are rejected.
func ParseNumber(raw json.RawMessage) (json.Number, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || (raw[0] != '-' && (raw[0] < '0' || raw[0] > '9')) {
		return "", fmt.Errorf("%w: %s is not a number", ErrMalformedInput, raw)
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	return n, nil
}

// Snapshot represents a single run's measurement record
type Snapshot struct {
	Key    OrderingKey
	Source string
	Record Record
}

// MetricSeries represents one metric over one axis, ordered by key
type MetricSeries struct {
	Metric string        `json:"metric"`
	Keys   []OrderingKey `json:"keys"`
	Values []float64     `json:"values"`
}

// Len returns the number of points in the series
func (s MetricSeries) Len() int {
	return len(s.Keys)
}

// Validate checks that keys and values line up and keys strictly increase
func (s MetricSeries) Validate() error {
	if len(s.Keys) != len(s.Values) {
		return fmt.Errorf("series %q has %d keys but %d values", s.Metric, len(s.Keys), len(s.Values))
	}
	for i := 1; i < len(s.Keys); i++ {
		if s.Keys[i] <= s.Keys[i-1] {
			return fmt.Errorf("series %q: key %d does not follow %d", s.Metric, s.Keys[i], s.Keys[i-1])
		}
	}
	return nil
}

// NormalizedSeries is a MetricSeries rescaled into [0, 1]
type NormalizedSeries struct {
	Metric string        `json:"metric"`
	Keys   []OrderingKey `json:"keys"`
	Values []float64     `json:"values"`
	// Degenerate is set when the source series had no spread.
	Degenerate bool `json:"degenerate"`
}

// Visible reports whether any normalized value is non-zero.
func (n NormalizedSeries) Visible() bool {
	for _, v := range n.Values {
		if v != 0 {
			return true
		}
	}
	return false
}

// AxisResult is the outward contract for one axis run: raw and normalized
// series per metric plus the axis label.
type AxisResult struct {
	Axis       string                      `json:"axis"`
	Label      string                      `json:"label"`
	Variant    string                      `json:"variant,omitempty"`
	Metrics    []string                    `json:"metrics"`
	Keys       []OrderingKey               `json:"keys"`
	Series     map[string]MetricSeries     `json:"series"`
	Normalized map[string]NormalizedSeries `json:"normalized,omitempty"`
	Skipped    []string                    `json:"skipped,omitempty"`
	// Failed maps metrics that could not be assembled to the reason.
	Failed map[string]string `json:"failed,omitempty"`
}

// DiffReport maps document identifiers to differing-line counts.
// Mean is the arithmetic mean of Entries, and exactly 0 when Entries is empty.
type DiffReport struct {
	Reference string         `json:"reference"`
	Entries   map[string]int `json:"documents"`
	Mean      float64        `json:"average"`
	Count     int            `json:"count"`
}

// NewDiffReport builds a report and computes its aggregate.
func NewDiffReport(reference string, entries map[string]int) DiffReport {
	if entries == nil {
		entries = make(map[string]int)
	}

	total := 0
	for _, c := range entries {
		total += c
	}

	mean := 0.0
	if len(entries) > 0 {
		mean = float64(total) / float64(len(entries))
	}

	return DiffReport{
		Reference: reference,
		Entries:   entries,
		Mean:      mean,
		Count:     len(entries),
	}
}

// Comparison holds several series aligned on the union of their keys.
type Comparison struct {
	Label   string        `json:"label"`
	Keys    []OrderingKey `json:"keys"`
	Columns []Column      `json:"columns"`
	// Reference names the column whose keys are marked, if any.
	Reference string `json:"reference,omitempty"`
}

// Column is one source in a Comparison. A nil entry means the source has no
// point at that key.
type Column struct {
	Source string     `json:"source"`
	Values []*float64 `json:"values"`
}

// Marked reports whether the reference column has a point at row i.
func (c *Comparison) Marked(i int) bool {
	if c.Reference == "" {
		return false
	}
	for _, col := range c.Columns {
		if col.Source == c.Reference {
			return i < len(col.Values) && col.Values[i] != nil
		}
	}
	return false
}
