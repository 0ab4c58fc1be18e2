package retry

import (
	"context"
	"errors"
	"time"

	errs "albumgrab/pkg/errors"
	"albumgrab/pkg/logger"
)

// Operation is a function that performs an operation that might need retrying
type Operation func() error

// SleepFunc blocks for the given delay or until the context is cancelled.
// Injectable so tests can observe delays without waiting them out.
type SleepFunc func(ctx context.Context, delay time.Duration) error

// Config holds retry configuration
type Config struct {
	// MaxAttempts is the total number of attempts, including the first
	MaxAttempts int
	// Backoff strategy applied between attempts
	Backoff BackoffStrategy
	// RetryIf determines if an error should be retried
	RetryIf func(error) bool
	// OnRetry is called before each retry attempt
	OnRetry func(attempt int, err error, delay time.Duration)
	// Sleep is the delay function; defaults to Wait
	Sleep SleepFunc
	// Logger for retry attempts
	Logger logger.Logger
}

// DefaultConfig returns a retry configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts: 3,
		Backoff:     &ConstantBackoff{Delay: time.Second},
		RetryIf:     DefaultRetryIf,
		Sleep:       Wait,
		Logger:      logger.GetLogger(),
	}
}

// DefaultRetryIf is the default retry predicate. Transport errors carrying
// an HTTP status are judged by the status: 429 and 5xx retry, client errors
// like 403 and 404 are final.
func DefaultRetryIf(err error) bool {
	if err == nil {
		return false
	}

	var typedErr *errs.Error
	if errors.As(err, &typedErr) {
		if typedErr.Type == errs.TypeTransport {
			return errs.IsRetryableStatusCode(typedErr.Code)
		}
		return errs.IsRetryable(typedErr.Type)
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	// Default to retrying unknown errors
	return true
}

// Do executes an operation with retry logic. It returns nil on the first
// success, or the error of the final attempt; intermediate failures are only
// logged, never surfaced.
func Do(ctx context.Context, op Operation, cfg *Config) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = Wait
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		if cfg.MaxAttempts > 0 && attempt > cfg.MaxAttempts {
			if cfg.Logger != nil {
				cfg.Logger.ErrorWithFields("max retry attempts exceeded", map[string]interface{}{
					"attempts":   attempt - 1,
					"last_error": lastErr.Error(),
				})
			}
			return lastErr
		}

		err := op()
		if err == nil {
			if attempt > 1 && cfg.Logger != nil {
				cfg.Logger.DebugWithFields("operation succeeded after retry", map[string]interface{}{
					"attempt": attempt,
				})
			}
			return nil
		}

		lastErr = err

		if !cfg.RetryIf(err) {
			if cfg.Logger != nil {
				cfg.Logger.DebugWithFields("error is not retryable", map[string]interface{}{
					"error": err.Error(),
				})
			}
			return err
		}

		// No point sleeping after the final attempt
		if cfg.MaxAttempts > 0 && attempt >= cfg.MaxAttempts {
			continue
		}

		delay := cfg.Backoff.NextDelay(attempt)

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, delay)
		}

		if cfg.Logger != nil {
			cfg.Logger.WarnWithFields("retrying operation", map[string]interface{}{
				"attempt":      attempt,
				"error":        err.Error(),
				"delay_ms":     delay.Milliseconds(),
				"max_attempts": cfg.MaxAttempts,
			})
		}

		if err := sleep(ctx, delay); err != nil {
			// Context cancelled while waiting
			return err
		}
	}
}
