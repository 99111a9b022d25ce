// Package retry runs fallible operations with bounded exponential backoff.
//
// Only errors classified as RETRYABLE by the errors package are retried.
// A NOT_FOUND answer, cancellation and every other permanent failure end the
// invocation immediately.
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/2thetop/scalar/errors"
)

// Policy bounds retries.
type Policy struct {
	// MaxAttempts is the total number of calls, including the first.
	MaxAttempts int

	// MinWait is the wait before the second attempt.
	MinWait time.Duration

	// MaxWait caps the wait between attempts.
	MaxWait time.Duration
}

// DefaultPolicy returns the policy used for object downloads.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 6,
		MinWait:     250 * time.Millisecond,
		MaxWait:     10 * time.Second,
	}
}

// Outcome is the result of one Invoke.
type Outcome[T any] struct {
	// Attempted is false when the operation was never called, for example
	// because ctx was already done.
	Attempted bool

	// Succeeded is true when the last attempt returned no error.
	Succeeded bool

	// Result is the value returned by the successful attempt.
	Result T

	// Err is the terminal error. It is the last attempt's error, or a
	// CANCELED/TIMEOUT error when ctx ended the invocation.
	Err error

	// Attempts is the number of times the operation was called.
	Attempts int
}

// NotFound reports whether the invocation ended with a definitive
// "does not exist" answer.
func (o Outcome[T]) NotFound() bool {
	return !o.Succeeded && errors.IsNotFound(o.Err)
}

// Operation is one attempt. attempt starts at 1.
type Operation[T any] func(ctx context.Context, attempt int) (T, error)

// Option configures an Invoker.
type Option func(*config)

type config struct {
	logger     *slog.Logger
	newBackOff func(Policy) backoff.BackOff
	timer      backoff.Timer
}

// WithLogger sets the logger used to report retries.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithBackOff replaces the exponential backoff. The attempt limit of the
// policy is still applied on top of it.
func WithBackOff(fn func(Policy) backoff.BackOff) Option {
	return func(c *config) {
		c.newBackOff = fn
	}
}

// WithTimer replaces the timer used to wait between attempts.
// This is mainly useful for testing.
func WithTimer(timer backoff.Timer) Option {
	return func(c *config) {
		c.timer = timer
	}
}

// Invoker runs operations returning T under a Policy. It holds no per-call
// state and is safe for concurrent use unless WithTimer supplied a timer
// that is not.
type Invoker[T any] struct {
	policy Policy
	cfg    config
}

// New creates an Invoker. A MaxAttempts below one is treated as one.
func New[T any](policy Policy, opts ...Option) *Invoker[T] {
	cfg := config{
		logger:     slog.New(slog.DiscardHandler),
		newBackOff: exponential,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &Invoker[T]{policy: policy, cfg: cfg}
}

func exponential(p Policy) backoff.BackOff {
	return backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(p.MinWait),
		backoff.WithMaxInterval(p.MaxWait),
		backoff.WithMaxElapsedTime(0),
	)
}

// Invoke calls op once and, when shouldRetry is set, again for each
// retryable failure until it succeeds, fails permanently, ctx is done or the
// policy's attempt limit is reached.
func (i *Invoker[T]) Invoke(ctx context.Context, op Operation[T], shouldRetry bool) Outcome[T] {
	var out Outcome[T]
	if err := ctx.Err(); err != nil {
		out.Err = errors.FromContext(err)
		return out
	}

	var lastErr error
	attempt := func() (T, error) {
		out.Attempts++
		res, err := op(ctx, out.Attempts)
		if err == nil {
			return res, nil
		}

		lastErr = err
		if !shouldRetry || !errors.IsRetryable(err) || ctx.Err() != nil {
			return res, backoff.Permanent(err)
		}
		return res, err
	}

	var b backoff.BackOff = &backoff.StopBackOff{}
	if shouldRetry && i.policy.MaxAttempts > 1 {
		b = backoff.WithMaxRetries(i.cfg.newBackOff(i.policy), uint64(i.policy.MaxAttempts-1))
	}

	notify := func(err error, wait time.Duration) {
		i.cfg.logger.Debug("retrying after transient failure",
			"attempt", out.Attempts,
			"wait", wait,
			"error", err)
	}

	res, err := backoff.RetryNotifyWithTimerAndData(attempt, backoff.WithContext(b, ctx), notify, i.cfg.timer)
	out.Attempted = out.Attempts > 0
	if err == nil {
		out.Succeeded = true
		out.Result = res
		return out
	}

	switch {
	case ctx.Err() != nil && !errors.IsNotFound(lastErr):
		out.Err = errors.FromContext(ctx.Err())
	case lastErr != nil:
		out.Err = lastErr
	default:
		out.Err = err
	}
	return out
}
