package service

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/aeromarket/transfercore/internal/apperr"
	"github.com/aeromarket/transfercore/pkg/metrics"
)

// maxTransitionRetries and retryBaseDelay implement a bounded number of
// retries with jittered backoff for transient Postgres errors
// (serialization failure 40001, deadlock detected 40P01) encountered while
// running a guarded state transition.
const (
	maxTransitionRetries = 3
	retryBaseDelay       = 50 * time.Millisecond
)

// isTransientPgError reports whether err is a retryable Postgres failure.
func isTransientPgError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return strings.Contains(err.Error(), "deadlock detected")
}

// withRetry runs fn, retrying on a transient Postgres error up to
// maxTransitionRetries times with jittered exponential backoff, and wraps
// any error surviving the last attempt as apperr.Transient.
func withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt <= maxTransitionRetries; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !isTransientPgError(err) {
			return err
		}
		if attempt == maxTransitionRetries {
			break
		}
		metrics.TransactionRetries.Inc()
		delay := retryBaseDelay * time.Duration(1<<attempt)
		jitter := time.Duration(rand.Int63n(int64(delay)))
		select {
		case <-time.After(delay + jitter):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return apperr.Transient(err, "transaction failed after %d retries", maxTransitionRetries)
}
