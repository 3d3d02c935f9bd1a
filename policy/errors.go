package policy

import (
	"errors"
	"fmt"
)

// ErrInvalidPolicy is matched by errors.Is on every ConfigError
var ErrInvalidPolicy = errors.New("invalid sandbox policy")

// ConfigError is returned by Build when a policy field is invalid. It is
// only produced at build time, never during a run
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("policy: invalid %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Is reports ErrInvalidPolicy
func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidPolicy
}

func configError(field string, format string, a ...any) error {
	return &ConfigError{Field: field, Err: fmt.Errorf(format, a...)}
}
