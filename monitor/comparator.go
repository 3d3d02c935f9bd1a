package monitor

import (
	"bytes"
	"context"
	"fmt"
)

// Comparison is the input of a comparator
type Comparison struct {
	// Input is the test case input. InputPath is set instead when the
	// input is a file
	Input     []byte
	InputPath string

	Produced []byte
	Expected []byte
}

// Outcome is the comparator decision
type Outcome struct {
	Match   bool
	Message string
}

// Comparator decides whether the produced output matches the expected one.
// An error means the comparison itself failed
type Comparator interface {
	Compare(ctx context.Context, c Comparison) (Outcome, error)
}

// ComparatorFunc adapts a function to Comparator
type ComparatorFunc func(ctx context.Context, c Comparison) (Outcome, error)

// Compare calls f
func (f ComparatorFunc) Compare(ctx context.Context, c Comparison) (Outcome, error) {
	return f(ctx, c)
}

// Exact matches byte for byte
type Exact struct{}

// Compare implements Comparator
func (Exact) Compare(_ context.Context, c Comparison) (Outcome, error) {
	if bytes.Equal(c.Produced, c.Expected) {
		return Outcome{Match: true}, nil
	}
	n := min(len(c.Produced), len(c.Expected))
	i := 0
	for i < n && c.Produced[i] == c.Expected[i] {
		i++
	}
	return Outcome{Message: fmt.Sprintf("output differs at byte %d", i)}, nil
}

// Lines matches line by line, ignoring trailing spaces on each line and
// trailing blank lines
type Lines struct{}

// Compare implements Comparator
func (Lines) Compare(_ context.Context, c Comparison) (Outcome, error) {
	produced := splitLines(c.Produced)
	expected := splitLines(c.Expected)
	for i := 0; i < len(produced) && i < len(expected); i++ {
		if !bytes.Equal(produced[i], expected[i]) {
			return Outcome{Message: fmt.Sprintf("line %d differs", i+1)}, nil
		}
	}
	if len(produced) != len(expected) {
		return Outcome{Message: fmt.Sprintf("expected %d lines, got %d", len(expected), len(produced))}, nil
	}
	return Outcome{Match: true}, nil
}

func splitLines(b []byte) [][]byte {
	lines := bytes.Split(b, []byte{'\n'})
	for i, l := range lines {
		lines[i] = bytes.TrimRight(l, " \t\r")
	}
	for len(lines) > 0 && len(lines[len(lines)-1]) == 0 {
		lines = lines[:len(lines)-1]
	}
	return lines
}
