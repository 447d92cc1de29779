package service

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/aeromarket/transfercore/internal/apperr"
)

func TestIsTransientPgError(t *testing.T) {
	assert.True(t, isTransientPgError(&pgconn.PgError{Code: "40001"}))
	assert.True(t, isTransientPgError(&pgconn.PgError{Code: "40P01"}))
	assert.False(t, isTransientPgError(&pgconn.PgError{Code: "23505"}))
	assert.True(t, isTransientPgError(errors.New("deadlock detected while waiting for lock")))
	assert.False(t, isTransientPgError(errors.New("syntax error")))
}

func TestWithRetrySucceedsWithoutRetrying(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), func() error {
		calls++
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithRetryReturnsNonTransientImmediately(t *testing.T) {
	calls := 0
	sentinel := errors.New("not found")
	err := withRetry(context.Background(), func() error {
		calls++
		return sentinel
	})
	assert.Equal(t, sentinel, err)
	assert.Equal(t, 1, calls)
}

func TestWithRetryExhaustsAndWrapsTransient(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), func() error {
		calls++
		return &pgconn.PgError{Code: "40001"}
	})
	assert.Equal(t, maxTransitionRetries+1, calls)

	kind, ok := apperr.As(err)
	assert.True(t, ok)
	assert.Equal(t, apperr.KindTransient, kind)
}

func TestWithRetryAbortsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := withRetry(ctx, func() error {
		calls++
		return &pgconn.PgError{Code: "40001"}
	})
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, context.Canceled)
}
