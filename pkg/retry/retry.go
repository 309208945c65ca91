// Package retry runs operations that may fail temporarily, using
// exponential backoff from retry-go. It also exposes the permanent-error
// marker shared by the RPC gateway and the job queue.
package retry

import (
	"context"
	"time"

	retrygo "github.com/avast/retry-go/v4"
)

// Retry executes an operation with retry logic.
type Retry interface {
	// Execute runs operation until it succeeds, returns an error wrapped
	// with Permanent, the attempts are exhausted or ctx is done.
	Execute(ctx context.Context, operation func() error) error
}

type config struct {
	attempts uint
	delay    time.Duration
	maxDelay time.Duration
}

// Option configures the retrier
type Option func(*config)

type retrier struct {
	cfg config
}

var _ Retry = (*retrier)(nil)

// New returns a Retry with 3 attempts, 500ms base delay and 5s max delay
// unless overridden.
func New(opts ...Option) Retry {
	cfg := config{
		attempts: 3,
		delay:    500 * time.Millisecond,
		maxDelay: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.attempts == 0 {
		cfg.attempts = 1
	}

	return &retrier{cfg: cfg}
}

func (r *retrier) Execute(ctx context.Context, operation func() error) error {
	return retrygo.Do(operation,
		retrygo.Attempts(r.cfg.attempts),
		retrygo.Delay(r.cfg.delay),
		retrygo.MaxDelay(r.cfg.maxDelay),
		retrygo.DelayType(retrygo.BackOffDelay),
		retrygo.LastErrorOnly(true),
		retrygo.Context(ctx),
	)
}

// WithAttempts sets the maximum number of attempts (including the first one)
func WithAttempts(n uint) Option {
	return func(c *config) {
		c.attempts = n
	}
}

// WithDelay sets the base delay between attempts
func WithDelay(d time.Duration) Option {
	return func(c *config) {
		c.delay = d
	}
}

// WithMaxDelay caps the exponential growth of the delay
func WithMaxDelay(d time.Duration) Option {
	return func(c *config) {
		c.maxDelay = d
	}
}

// Permanent marks err as not worth retrying. Both Execute and the job
// queue honor the marker.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return retrygo.Unrecoverable(err)
}

// IsPermanent reports whether err was marked with Permanent
func IsPermanent(err error) bool {
	return err != nil && !retrygo.IsRecoverable(err)
}
