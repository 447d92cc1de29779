package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/aeromarket/transfercore/internal/model"
	"github.com/aeromarket/transfercore/pkg/cache"
)

// TimerRepository persists scheduled timers (C3) in Postgres — the source
// of truth, surviving restarts — and optionally nudges a Redis Pub/Sub
// channel so the dispatcher can wake immediately instead of waiting out
// its poll interval. The Redis side is best-effort only.
type TimerRepository struct {
	pool  *pgxpool.Pool
	redis *redis.Client
}

// NewTimerRepository creates a new timer repository.
func NewTimerRepository(pool *pgxpool.Pool, redisClient *redis.Client) *TimerRepository {
	return &TimerRepository{pool: pool, redis: redisClient}
}

// Schedule upserts a TimerEntry keyed by externalId — duplicate scheduling
// of the same "<kind>:<jobId>[:<attempt>]" key collapses to one row,
// giving at-least-once delivery an idempotent key to dedupe against.
func (r *TimerRepository) Schedule(ctx context.Context, entry model.TimerEntry) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO timer_entries (external_id, kind, payload, fire_at, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		ON CONFLICT (external_id) DO UPDATE
		SET fire_at = EXCLUDED.fire_at, payload = EXCLUDED.payload,
		    state = EXCLUDED.state, updated_at = now()
		WHERE timer_entries.state = $5
	`, entry.ExternalID, entry.Kind, entry.Payload, entry.FireAt, model.TimerScheduled)
	if err != nil {
		return fmt.Errorf("timer: schedule %s: %w", entry.ExternalID, err)
	}

	// Best-effort wake: if this entry is due soon, nudge the dispatcher.
	if r.redis != nil && time.Until(entry.FireAt) < 30*time.Second {
		_ = r.redis.Publish(ctx, cache.TimerWakeChannel, entry.ExternalID).Err()
	}
	return nil
}

// Cancel marks a still-SCHEDULED entry CANCELLED. A no-op if it already
// fired — the dispatcher may have raced this call, and cancelling an
// already-fired timer is a benign no-op.
func (r *TimerRepository) Cancel(ctx context.Context, externalID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE timer_entries SET state = $1, updated_at = now()
		WHERE external_id = $2 AND state = $3
	`, model.TimerCancelled, externalID, model.TimerScheduled)
	if err != nil {
		return fmt.Errorf("timer: cancel %s: %w", externalID, err)
	}
	return nil
}

// DueEntries returns up to limit SCHEDULED entries whose fire_at has
// passed. The query runs outside a transaction, so its FOR UPDATE SKIP
// LOCKED row locks last only for the statement itself: another dispatcher
// (or an overlapping poll tick) can receive the same entry until MarkFired
// runs, and handlers rely on their own state guards to make a second
// delivery a no-op.
func (r *TimerRepository) DueEntries(ctx context.Context, now time.Time, limit int) ([]model.TimerEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT external_id, kind, payload, fire_at, state, created_at, updated_at
		FROM timer_entries
		WHERE state = $1 AND fire_at <= $2
		ORDER BY fire_at ASC
		LIMIT $3
		FOR UPDATE SKIP LOCKED
	`, model.TimerScheduled, now, limit)
	if err != nil {
		return nil, fmt.Errorf("timer: due entries: %w", err)
	}
	defer rows.Close()

	var entries []model.TimerEntry
	for rows.Next() {
		var e model.TimerEntry
		if err := rows.Scan(&e.ExternalID, &e.Kind, &e.Payload, &e.FireAt, &e.State, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("timer: scan: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// MarkFired flips an entry to FIRED once its handler has run successfully.
// A zero-row update means another dispatcher tick already claimed it —
// treated as success, never an error (same idempotent-no-op rule as the
// Job transitions).
func (r *TimerRepository) MarkFired(ctx context.Context, externalID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE timer_entries SET state = $1, updated_at = now()
		WHERE external_id = $2 AND state = $3
	`, model.TimerFired, externalID, model.TimerScheduled)
	if err != nil {
		return fmt.Errorf("timer: mark fired %s: %w", externalID, err)
	}
	return nil
}
