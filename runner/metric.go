package runner

import (
	"encoding/json"
	"fmt"
)

// Metric is a measured value that may be unavailable on the current platform
type Metric[T any] struct {
	Value T
	Known bool
}

// Known creates a measured metric
func Known[T any](v T) Metric[T] {
	return Metric[T]{Value: v, Known: true}
}

// Unknown creates a metric that could not be measured
func Unknown[T any]() Metric[T] {
	return Metric[T]{}
}

// Get returns the value and whether it was measured
func (m Metric[T]) Get() (T, bool) {
	return m.Value, m.Known
}

func (m Metric[T]) String() string {
	if !m.Known {
		return "unknown"
	}
	return fmt.Sprint(m.Value)
}

// MarshalJSON writes null for unknown metrics
func (m Metric[T]) MarshalJSON() ([]byte, error) {
	if !m.Known {
		return []byte("null"), nil
	}
	return json.Marshal(m.Value)
}
