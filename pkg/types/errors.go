package types

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound indicates an input directory or file does not exist.
	ErrNotFound = errors.New("input not found")
	// ErrMalformedInput indicates a snapshot file cannot be parsed.
	ErrMalformedInput = errors.New("malformed input")
	// ErrDuplicateKey indicates two inputs share an ordering key on one axis.
	ErrDuplicateKey = errors.New("duplicate ordering key")
	// ErrMissingField indicates a record lacks a requested metric.
	ErrMissingField = errors.New("missing field")
)

// InputError attributes a pipeline failure to the file, key and metric
// that caused it.
type InputError struct {
	Op     string
	Path   string
	Key    *OrderingKey
	Metric string
	Err    error
}

func (e *InputError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Path != "" {
		fmt.Fprintf(&b, " %s", e.Path)
	}
	if e.Key != nil {
		fmt.Fprintf(&b, " key=%d", *e.Key)
	}
	if e.Metric != "" {
		fmt.Fprintf(&b, " metric=%s", e.Metric)
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	return b.String()
}

func (e *InputError) Unwrap() error {
	return e.Err
}

// KeyRef returns a pointer to a copy of k, for InputError.Key.
func KeyRef(k OrderingKey) *OrderingKey {
	return &k
}
