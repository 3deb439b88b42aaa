package orchestrator

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/speckit-dev/speckit/internal/errors"
	"github.com/speckit-dev/speckit/internal/executor"
	"github.com/speckit-dev/speckit/internal/logging"
)

// RetryConfig configures exponential backoff for executor transport errors.
// Task outcomes are never retried; only failures to reach the executor at
// all (spawn errors, unparseable replies) are.
type RetryConfig struct {
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	MaxElapsedTime      time.Duration
	Multiplier          float64
	RandomizationFactor float64
}

// DefaultRetryConfig returns the default retry policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval:     100 * time.Millisecond,
		MaxInterval:         10 * time.Second,
		MaxElapsedTime:      2 * time.Minute,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
	}
}

// RetryNotify observes a failed transport attempt before the next one is
// scheduled. attempt is the attempt that just failed, starting at 1.
type RetryNotify func(req executor.TaskRequest, attempt int, err error, next time.Duration)

// resilientExecutor wraps an executor with a circuit breaker and retry.
// The breaker counts only retryable transport errors; once it opens,
// dispatches fail immediately with ErrExecutorUnavailable instead of
// stacking timeouts on a dead executor.
type resilientExecutor struct {
	inner  executor.Executor
	cb     *gobreaker.CircuitBreaker
	retry  RetryConfig
	notify RetryNotify
	log    *logging.Logger
}

func newResilientExecutor(inner executor.Executor, retry RetryConfig, log *logging.Logger, notify RetryNotify) *resilientExecutor {
	if log == nil {
		log = logging.NewNop()
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        inner.Name(),
		MaxRequests: 3,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("executor circuit state changed",
				zap.String("executor", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.IsRetryable(err)
		},
	})
	return &resilientExecutor{inner: inner, cb: cb, retry: retry, notify: notify, log: log}
}

// Name implements executor.Executor.
func (e *resilientExecutor) Name() string { return e.inner.Name() }

// Execute implements executor.Executor. The returned error keeps the
// wrapped executor's transport/outcome split: a non-nil error still means
// the task never ran to a report.
func (e *resilientExecutor) Execute(ctx context.Context, req executor.TaskRequest) (executor.TaskResult, error) {
	var res executor.TaskResult
	attempt := 0

	op := func() error {
		attempt++
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(errors.NewExecutionError("task dispatch interrupted", err).WithTaskID(req.ID))
		}

		out, err := e.cb.Execute(func() (interface{}, error) {
			return e.inner.Execute(ctx, req)
		})
		if err != nil {
			if stderrors.Is(err, gobreaker.ErrOpenState) || stderrors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(errors.Wrapf(errors.ErrExecutorUnavailable,
					"executor %s circuit open", e.inner.Name()))
			}
			if ctx.Err() != nil || !errors.IsRetryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}

		res = out.(executor.TaskResult)
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = e.retry.InitialInterval
	policy.MaxInterval = e.retry.MaxInterval
	policy.MaxElapsedTime = e.retry.MaxElapsedTime
	policy.Multiplier = e.retry.Multiplier
	policy.RandomizationFactor = e.retry.RandomizationFactor

	err := backoff.RetryNotify(op, backoff.WithContext(policy, ctx), func(err error, next time.Duration) {
		e.log.Warn("retrying task dispatch",
			zap.String("task", req.ID),
			zap.Int("attempt", attempt),
			zap.Duration("next", next),
			zap.Error(err))
		if e.notify != nil {
			e.notify(req, attempt, err, next)
		}
	})
	return res, err
}
