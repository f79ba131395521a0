package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
)

// Config controls the retry behavior for a single operation.
type Config struct {
	MaxAttempts int           // Total attempts including the first one
	BaseDelay   time.Duration // Initial backoff interval
	MaxDelay    time.Duration // Backoff ceiling
	// Retryable decides whether a failure is worth retrying. A nil predicate
	// treats every error as transient.
	Retryable func(error) bool
}

// DefaultConfig matches the retry posture used for RPC calls.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    8 * time.Second,
	}
}

// Do runs op with exponential backoff until it succeeds, the attempt budget
// is exhausted, or ctx is cancelled. The label only appears in logs.
func Do(ctx context.Context, cfg Config, label string, op func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.BaseDelay
	bo.MaxInterval = cfg.MaxDelay
	bo.Multiplier = 2.0
	bo.MaxElapsedTime = 0 // Bounded by attempt count, not wall clock

	attempt := 0
	wrapped := func() error {
		attempt++
		err := op()
		if err == nil {
			return nil
		}
		if cfg.Retryable != nil && !cfg.Retryable(err) {
			return backoff.Permanent(err)
		}
		if attempt < cfg.MaxAttempts {
			log.WithFields(log.Fields{
				"op":      label,
				"attempt": attempt,
				"max":     cfg.MaxAttempts,
			}).Warnf("retrying after error: %v", err)
		}
		return err
	}

	limited := backoff.WithMaxRetries(backoff.WithContext(bo, ctx), uint64(cfg.MaxAttempts-1))
	return backoff.Retry(wrapped, limited)
}
