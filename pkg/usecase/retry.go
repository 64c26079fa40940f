package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/secmon-lab/contrack/pkg/domain/types"
	"github.com/secmon-lab/contrack/pkg/utils/logging"
)

// RetryPolicy bounds the calls made to one external service
type RetryPolicy struct {
	// Timeout applies to every single attempt. Zero disables it.
	Timeout time.Duration
	// InitialInterval is the wait before the second attempt
	InitialInterval time.Duration
	// Multiplier grows the wait after every failed attempt
	Multiplier float64
	// MaxAttempts includes the first attempt
	MaxAttempts int
}

// DefaultRetryPolicy returns 30s per call, 2s/4s/8s/16s waits and 5 attempts
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Timeout:         30 * time.Second,
		InitialInterval: 2 * time.Second,
		Multiplier:      2,
		MaxAttempts:     5,
	}
}

// Budget returns the worst case wall time spent in one retried call
func (p RetryPolicy) Budget() time.Duration {
	attempts := max(p.MaxAttempts, 1)
	total := time.Duration(attempts) * p.Timeout
	wait := p.InitialInterval
	for i := 1; i < attempts; i++ {
		total += wait
		wait = time.Duration(float64(wait) * p.multiplier())
	}
	return total
}

func (p RetryPolicy) multiplier() float64 {
	if p.Multiplier < 1 {
		return 1
	}
	return p.Multiplier
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.Multiplier = p.multiplier()
	b.RandomizationFactor = 0
	b.MaxInterval = time.Hour
	b.MaxElapsedTime = 0
	b.Reset()

	retries := uint64(0)
	if p.MaxAttempts > 1 {
		retries = uint64(p.MaxAttempts - 1)
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, retries), ctx)
}

var (
	errTransientFailure = errors.New("transient failure")
	errPermanentFailure = errors.New("permanent failure")
)

// callWithRetry runs call until it succeeds, reports a permanent failure, or
// the policy is exhausted. The returned outcome is the one of the last
// attempt; when ctx ends first the outcome is transient and err is ctx.Err().
func callWithRetry(ctx context.Context, policy RetryPolicy, operation string, call func(ctx context.Context) (types.Outcome, error)) (types.Outcome, error) {
	var (
		outcome types.Outcome
		attempt int
	)

	op := func() error {
		attempt++
		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if policy.Timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, policy.Timeout)
		}
		defer cancel()

		var err error
		outcome, err = call(callCtx)
		switch outcome {
		case types.OutcomeSuccess:
			return nil
		case types.OutcomeTransient:
			if err == nil {
				err = errTransientFailure
			}
			return err
		default:
			if err == nil {
				err = errPermanentFailure
			}
			return backoff.Permanent(err)
		}
	}

	notify := func(err error, wait time.Duration) {
		logging.From(ctx).Warn("transient failure, retrying",
			OperationKey, operation,
			"attempt", attempt,
			"wait", wait,
			"error", err.Error(),
		)
	}

	err := backoff.RetryNotify(op, policy.backOff(ctx), notify)
	if err == nil {
		return types.OutcomeSuccess, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return types.OutcomeTransient, ctxErr
	}
	return outcome, err
}
