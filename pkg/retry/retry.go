package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Common errors
var (
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
	ErrContextCanceled    = errors.New("context canceled during retry")
)

// Config contains retry configuration
type Config struct {
	// MaxRetries is the maximum number of retry attempts (0 = no retries)
	MaxRetries int
	// InitialInterval is the initial backoff interval (default: 2s)
	InitialInterval time.Duration
	// MaxInterval is the maximum backoff interval (default: 30s)
	MaxInterval time.Duration
	// Multiplier is the factor applied to the interval after each retry (default: 2.0)
	Multiplier float64
	// JitterFactor is the random jitter factor (0-1) applied to each interval
	JitterFactor float64
}

// DefaultConfig returns the retry configuration used by the update pipeline:
// 3 retries with exponential backoff 2s, 4s, 8s (capped at 30s).
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:      3,
		InitialInterval: 2 * time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
		JitterFactor:    0.1,
	}
}

func (c *Config) withDefaults() *Config {
	if c == nil {
		return DefaultConfig()
	}
	out := *c
	if out.InitialInterval <= 0 {
		out.InitialInterval = 2 * time.Second
	}
	if out.MaxInterval <= 0 {
		out.MaxInterval = 30 * time.Second
	}
	if out.Multiplier <= 0 {
		out.Multiplier = 2.0
	}
	if out.JitterFactor < 0 {
		out.JitterFactor = 0
	}
	if out.JitterFactor > 1 {
		out.JitterFactor = 1
	}
	return &out
}

// IntervalFor returns the backoff interval for a given zero-based attempt.
// The durable job queue uses this to compute a next-run timestamp instead of
// sleeping in-process.
func (c *Config) IntervalFor(attempt int) time.Duration {
	cfg := c.withDefaults()

	interval := float64(cfg.InitialInterval) * math.Pow(cfg.Multiplier, float64(attempt))

	if cfg.JitterFactor > 0 {
		jitter := interval * cfg.JitterFactor
		interval += (rand.Float64()*2 - 1) * jitter
	}

	if interval > float64(cfg.MaxInterval) {
		interval = float64(cfg.MaxInterval)
	}
	if interval < 0 {
		interval = float64(cfg.InitialInterval)
	}
	return time.Duration(interval)
}

// Operation is the function to be retried
type Operation func(ctx context.Context) error

// PermanentError wraps an error that must not be retried
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent marks an error as permanent (not retryable)
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err was marked with Permanent
func IsPermanent(err error) bool {
	var permErr *PermanentError
	return errors.As(err, &permErr)
}

// Do executes op, retrying transient failures with exponential backoff.
// Returns the last error once retries are exhausted.
func Do(ctx context.Context, cfg *Config, op Operation) error {
	c := cfg.withDefaults()

	var lastErr error
	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return ErrContextCanceled
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		var permErr *PermanentError
		if errors.As(err, &permErr) {
			return permErr.Err
		}

		if attempt == c.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return ErrContextCanceled
		case <-time.After(c.IntervalFor(attempt)):
		}
	}

	return errors.Join(ErrMaxRetriesExceeded, lastErr)
}
