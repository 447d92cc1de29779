package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/aeromarket/transfercore/internal/model"
	"github.com/aeromarket/transfercore/internal/repository"
	"github.com/aeromarket/transfercore/pkg/cache"
	"github.com/aeromarket/transfercore/pkg/metrics"
)

// dispatchPollInterval is how often the dispatcher polls Postgres for due
// entries when it hasn't been woken early by the Redis wake channel.
const dispatchPollInterval = 2 * time.Second

// dispatchBatchSize bounds how many due timers one poll tick claims, so a
// backlog after an outage drains in bounded steps rather than one giant
// transaction.
const dispatchBatchSize = 100

// TimerHandler executes the side effect of a fired timer. The Auction
// Engine registers one handler per model.TimerKind.
type TimerHandler func(ctx context.Context, jobID uuid.UUID, attempt int) error

// TimerService is the C3 persistent, idempotent delayed-job scheduler. It
// is durable (Postgres-backed, survives restart), at-least-once, and fires
// immediately if a deadline has already passed by the time it is scheduled
// — the dispatcher's first poll tick after Schedule always includes rows
// due in the past.
type TimerService struct {
	repo     *repository.TimerRepository
	redis    *redis.Client
	handlers map[model.TimerKind]TimerHandler
}

// NewTimerService creates a TimerService with no handlers registered yet;
// call RegisterHandler before Run.
func NewTimerService(repo *repository.TimerRepository, redisClient *redis.Client) *TimerService {
	return &TimerService{
		repo:     repo,
		redis:    redisClient,
		handlers: make(map[model.TimerKind]TimerHandler),
	}
}

// RegisterHandler wires the transactional handler invoked when a timer of
// the given kind fires.
func (s *TimerService) RegisterHandler(kind model.TimerKind, handler TimerHandler) {
	s.handlers[kind] = handler
}

// externalID constructs the deterministic key
// "<kind>:<jobId>[:<attempt>]" — scheduling the same (kind, jobId, attempt)
// twice collapses to one row instead of double-firing.
func externalID(kind model.TimerKind, jobID uuid.UUID, attempt int) string {
	if attempt == 0 {
		return fmt.Sprintf("%s:%s", kind, jobID)
	}
	return fmt.Sprintf("%s:%s:%d", kind, jobID, attempt)
}

// Schedule durably schedules kind to fire at fireAt for jobID/attempt. If
// fireAt is already in the past, the very next dispatcher tick fires it —
// there is no separate "fire now" path.
func (s *TimerService) Schedule(ctx context.Context, kind model.TimerKind, jobID uuid.UUID, attempt int, fireAt time.Time) error {
	payload, err := json.Marshal(model.TimerPayload{JobID: jobID, Attempt: attempt})
	if err != nil {
		return fmt.Errorf("timer: marshal payload: %w", err)
	}
	entry := model.TimerEntry{
		ExternalID: externalID(kind, jobID, attempt),
		Kind:       kind,
		Payload:    payload,
		FireAt:     fireAt,
		State:      model.TimerScheduled,
	}
	return s.repo.Schedule(ctx, entry)
}

// Cancel cancels a previously scheduled timer; a no-op if it already fired.
func (s *TimerService) Cancel(ctx context.Context, kind model.TimerKind, jobID uuid.UUID, attempt int) error {
	return s.repo.Cancel(ctx, externalID(kind, jobID, attempt))
}

// Run starts the dispatch loop: a ticker-driven poll in the style of the
// order-schedule package's RunScheduleExpireTicker, plus a Redis Pub/Sub
// subscription that lets a freshly scheduled near-term timer wake the loop
// between ticks. Blocks until ctx is cancelled.
func (s *TimerService) Run(ctx context.Context) {
	ticker := time.NewTicker(dispatchPollInterval)
	defer ticker.Stop()

	wake := make(chan struct{}, 1)
	if s.redis != nil {
		go s.listenForWake(ctx, wake)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.dispatchDue(ctx)
		case <-wake:
			s.dispatchDue(ctx)
		}
	}
}

func (s *TimerService) listenForWake(ctx context.Context, wake chan<- struct{}) {
	sub := s.redis.Subscribe(ctx, cache.TimerWakeChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			select {
			case wake <- struct{}{}:
			default:
			}
		}
	}
}

// dispatchDue claims due entries and runs each entry's registered handler.
// A handler error is logged; the entry stays SCHEDULED (minus the row lock
// released at commit) so the next tick retries it — at-least-once delivery.
func (s *TimerService) dispatchDue(ctx context.Context) {
	now := time.Now()
	entries, err := s.repo.DueEntries(ctx, now, dispatchBatchSize)
	if err != nil {
		log.Error().Err(err).Msg("timer: fetch due entries failed")
		return
	}

	for _, entry := range entries {
		metrics.TimerDispatchLatency.Observe(now.Sub(entry.FireAt).Seconds())

		var payload model.TimerPayload
		if err := json.Unmarshal(entry.Payload, &payload); err != nil {
			log.Error().Err(err).Str("external_id", entry.ExternalID).Msg("timer: bad payload, dropping")
			_ = s.repo.MarkFired(ctx, entry.ExternalID)
			continue
		}

		handler, ok := s.handlers[entry.Kind]
		if !ok {
			log.Warn().Str("kind", string(entry.Kind)).Msg("timer: no handler registered")
			continue
		}

		if err := handler(ctx, payload.JobID, payload.Attempt); err != nil {
			log.Error().Err(err).
				Str("external_id", entry.ExternalID).
				Str("job_id", payload.JobID.String()).
				Msg("timer: handler failed, will retry next tick")
			continue
		}

		if err := s.repo.MarkFired(ctx, entry.ExternalID); err != nil {
			log.Error().Err(err).Str("external_id", entry.ExternalID).Msg("timer: mark fired failed")
		}
	}
}
