package runner

import (
	"errors"
	"fmt"
	"strconv"
)

// Size stores number of byte for the object. E.g. Memory.
// Maximum size is bounded by 64-bit limit
type Size uint64

// Size units
const (
	KiB Size = 1 << (10 * (iota + 1))
	MiB
	GiB
)

var errEmptySize = errors.New("size: empty value")

// String stringer interface for print
func (s Size) String() string {
	t := uint64(s)
	switch {
	case t < 1<<10:
		return fmt.Sprintf("%d B", t)
	case t < 1<<20:
		return fmt.Sprintf("%.1f KiB", float64(t)/float64(1<<10))
	case t < 1<<30:
		return fmt.Sprintf("%.1f MiB", float64(t)/float64(1<<20))
	default:
		return fmt.Sprintf("%.1f GiB", float64(t)/float64(1<<30))
	}
}

// Set parse the size value from string, accepting an optional b suffix after
// one of the k, m, g unit letters (e.g. 64m, 1GiB is not accepted, 1gb is)
func (s *Size) Set(str string) error {
	if str == "" {
		return errEmptySize
	}
	switch str[len(str)-1] {
	case 'b', 'B':
		str = str[:len(str)-1]
	}
	if str == "" {
		return errEmptySize
	}

	factor := 0
	switch str[len(str)-1] {
	case 'k', 'K':
		factor = 10
		str = str[:len(str)-1]
	case 'm', 'M':
		factor = 20
		str = str[:len(str)-1]
	case 'g', 'G':
		factor = 30
		str = str[:len(str)-1]
	}

	t, err := strconv.ParseUint(str, 10, 64)
	if err != nil {
		return fmt.Errorf("size: %w", err)
	}
	if factor > 0 && t > (^uint64(0))>>factor {
		return fmt.Errorf("size: %q overflows", str)
	}
	*s = Size(t << factor)
	return nil
}

// Type is used by pflag to describe the flag value
func (s *Size) Type() string {
	return "size"
}

// UnmarshalText parses sizes from configuration files
func (s *Size) UnmarshalText(text []byte) error {
	return s.Set(string(text))
}

// MarshalText writes the size in bytes
func (s Size) MarshalText() ([]byte, error) {
	return []byte(strconv.FormatUint(uint64(s), 10)), nil
}

// Byte return size in bytes
func (s Size) Byte() uint64 {
	return uint64(s)
}

// KiB return size in KiB
func (s Size) KiB() uint64 {
	return uint64(s) >> 10
}

// MiB return size in MiB
func (s Size) MiB() uint64 {
	return uint64(s) >> 20
}

// GiB return size in GiB
func (s Size) GiB() uint64 {
	return uint64(s) >> 30
}
