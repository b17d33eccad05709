package model

import (
	"context"
	"errors"
	"math"
	"time"

	"council/logging"
)

// RetryConfig defines the backoff schedule for transient failures.
type RetryConfig struct {
	MaxAttempts   int           `json:"max_attempts"`   // Total attempts including the initial call
	InitialDelay  time.Duration `json:"initial_delay"`  // Delay before the first retry
	MaxDelay      time.Duration `json:"max_delay"`      // Ceiling for any single delay
	BackoffFactor float64       `json:"backoff_factor"` // Multiplier applied per retry
	Jitter        bool          `json:"jitter"`         // Spread delays to avoid thundering herd
}

// DefaultRetryConfig provides reasonable defaults for transient failures.
//
//nolint:gochecknoglobals // Sensible default config pattern
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:   3,
	InitialDelay:  time.Second,
	MaxDelay:      30 * time.Second,
	BackoffFactor: 2.0,
	Jitter:        true,
}

// Classifier determines if an error should be retried.
type Classifier func(error) bool

// DefaultClassifier retries transport errors only. Context cancellation and
// permanent backend failures are never retried.
func DefaultClassifier(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrUnavailable) {
		return false
	}
	return IsTransient(err)
}

// RetryCompleter wraps a Completer with exponential backoff. Exhausting the
// attempt budget surfaces the last error to the caller.
type RetryCompleter struct {
	inner      Completer
	config     RetryConfig
	classifier Classifier
	logger     logging.Logger
	// OnRetry is invoked before each retry attempt, for metrics.
	OnRetry func(attempt int, err error)
}

// RetryOptions configures a RetryCompleter.
type RetryOptions struct {
	Config     RetryConfig
	Classifier Classifier
	Logger     logging.Logger
}

// NewRetryCompleter wraps inner with the retry policy.
func NewRetryCompleter(inner Completer, optFns ...func(o *RetryOptions)) *RetryCompleter {
	opts := RetryOptions{
		Config:     DefaultRetryConfig,
		Classifier: DefaultClassifier,
		Logger:     logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Classifier == nil {
		opts.Classifier = DefaultClassifier
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &RetryCompleter{inner: inner, config: opts.Config, classifier: opts.Classifier, logger: opts.Logger}
}

// Complete implements Completer.
func (r *RetryCompleter) Complete(ctx context.Context, req Request) (Response, error) {
	var lastErr error
	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := r.delay(attempt)
			r.logger.Warn("retrying model call",
				"provider", r.inner.Info().Provider,
				"attempt", attempt,
				"delay", delay.String(),
				"error", lastErr)
			if r.OnRetry != nil {
				r.OnRetry(attempt, lastErr)
			}
			select {
			case <-ctx.Done():
				return Response{}, ctx.Err()
			case <-time.After(delay):
			}
		}
		resp, err := r.inner.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !r.classifier(err) {
			return Response{}, err
		}
	}
	return Response{}, lastErr
}

// Info implements Completer.
func (r *RetryCompleter) Info() Info { return r.inner.Info() }

func (r *RetryCompleter) delay(attempt int) time.Duration {
	d := time.Duration(float64(r.config.InitialDelay) * math.Pow(r.config.BackoffFactor, float64(attempt-2)))
	if d > r.config.MaxDelay {
		d = r.config.MaxDelay
	}
	if r.config.Jitter && d > 0 {
		sign := time.Duration(2*(time.Now().UnixNano()%2) - 1)
		d += time.Duration(float64(d)*0.1) * sign
		if d < 0 {
			d = r.config.InitialDelay
		}
	}
	return d
}
