package monitor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/judgecore/sandbox/executor"
)

// RetryConfig bounds the retries of host side spawn failures. Outcomes of
// the program itself are never retried
type RetryConfig struct {
	Attempts  int           `yaml:"attempts"`
	BaseDelay time.Duration `yaml:"baseDelay"`
	MaxDelay  time.Duration `yaml:"maxDelay"`
}

// DefaultRetry is used when the monitor options leave Retry empty
var DefaultRetry = RetryConfig{
	Attempts:  3,
	BaseDelay: 20 * time.Millisecond,
	MaxDelay:  500 * time.Millisecond,
}

// Backoff returns the delay before retry number n (starting at 0), doubling
// from base and capped at limit
func Backoff(n int, base, limit time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 0; i < n; i++ {
		if limit > 0 && delay > limit/2 {
			return limit
		}
		delay *= 2
	}
	if limit > 0 && delay > limit {
		return limit
	}
	return delay
}

// execute runs the request, retrying retryable failures. It returns the
// number of attempts made
func (m *Monitor) execute(ctx context.Context, log *zap.Logger, req *executor.Request) (*executor.Result, int, error) {
	return m.retrying(ctx, log, func() (*executor.Result, error) {
		return m.runner.Execute(ctx, req)
	})
}

// retrying calls run until it succeeds, fails for good or the attempts
// are used up
func (m *Monitor) retrying(ctx context.Context, log *zap.Logger, run func() (*executor.Result, error)) (*executor.Result, int, error) {
	attempts := max(m.retry.Attempts, 1)
	for n := 1; ; n++ {
		res, err := run()
		if err == nil || !executor.IsRetryable(err) || n >= attempts {
			return res, n, err
		}

		delay := Backoff(n-1, m.retry.BaseDelay, m.retry.MaxDelay)
		log.Warn("spawn failed, retrying", zap.Int("attempt", n), zap.Duration("delay", delay), zap.Error(err))
		m.metrics.retried()

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, n, fmt.Errorf("%w: %w", err, ctx.Err())
		case <-timer.C:
		}
	}
}
