package executor

import (
	"errors"
	"fmt"
)

// Sentinel errors for typed error checking
var (
	ErrInvalidRequest      = errors.New("invalid execution request")
	ErrTargetNotFound      = errors.New("target not found")
	ErrTargetNotExecutable = errors.New("target not executable")
	ErrSpawn               = errors.New("spawn failed")
	ErrSetup               = errors.New("sandbox setup failed")
	ErrWait                = errors.New("wait failed")
	ErrCanceled            = errors.New("execution canceled")
)

// Error wraps errors with the executor operation that failed
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("executor: %s: %s", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(op string, kind, cause error) error {
	if cause == nil {
		return &Error{Op: op, Err: kind}
	}
	return &Error{Op: op, Err: fmt.Errorf("%w: %w", kind, cause)}
}

// IsExecError returns true if the target could not be run at all. No child
// side effect happened
func IsExecError(err error) bool {
	return errors.Is(err, ErrTargetNotFound) || errors.Is(err, ErrTargetNotExecutable)
}

// IsRetryable returns true for host side spawn failures that may succeed
// when tried again
func IsRetryable(err error) bool {
	return errors.Is(err, ErrSpawn)
}
