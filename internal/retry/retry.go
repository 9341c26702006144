// Package retry wraps github.com/cenkalti/backoff/v5 with the retry
// classification the aggregate pipeline and saga command executor need:
// only FailedPrecondition and Unavailable are retryable (spec §4.6, §4.8,
// §7); everything else is fatal. Grounded on
// original_source/src/orchestration/aggregate/mod.rs's
// execute_command_with_retry, which wraps Rust's backon::ExponentialBuilder
// the same way.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/benjaminabbitt/angzarr-core/internal/metrics"
	"github.com/benjaminabbitt/angzarr-core/internal/model"
)

// Policy configures the exponential-backoff-with-jitter retry loop.
type Policy struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// DefaultPolicy matches the ceiling used throughout the pipeline and saga
// runner: a handful of attempts, capped backoff, so a stuck conflict fails
// fast rather than retrying forever.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:      5,
		InitialInterval: 20 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		Multiplier:      2.0,
	}
}

// IsRetryable reports whether err should be retried by the outer loop
// rather than returned to the caller immediately.
func IsRetryable(err error) bool {
	var fp *model.FailedPreconditionError
	if errors.As(err, &fp) {
		return true
	}
	var st *model.Status
	if errors.As(err, &st) {
		return st.Code == model.CodeFailedPrecondition || st.Code == model.CodeUnavailable
	}
	return false
}

// Do runs op, retrying on retryable errors per Policy with exponential
// backoff and jitter. op is expected to reload fresh state on each
// invocation — the retry loop never caches attempt state itself, since a
// reload on every attempt is what lets COMMUTATIVE succeed where STRICT
// would not. component labels the angzarr_retries_total counter so
// dashboards can separate pipeline retries from saga/PM dispatch retries
// and bus redelivery retries.
func Do[T any](ctx context.Context, p Policy, component string, op func(ctx context.Context) (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.Multiplier = p.Multiplier

	attempt := 0
	return backoff.Retry(ctx, func() (T, error) {
		if attempt > 0 {
			metrics.RetriesTotal.WithLabelValues(component).Inc()
		}
		attempt++
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		if !IsRetryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(p.MaxRetries+1)))
}
