package service

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/aeromarket/transfercore/internal/model"
)

// IntentKind enumerates the typed notification intents the core emits.
type IntentKind string

const (
	IntentBroadcastNewJob     IntentKind = "BROADCAST_NEW_JOB"
	IntentJobOffer            IntentKind = "JOB_OFFER"
	IntentBidWon               IntentKind = "BID_WON"
	IntentJobEscalationToAdmin IntentKind = "JOB_ESCALATION_TO_ADMIN"
)

// Intent is the payload handed to a NotificationSink. Recipients lists every
// eligible operator for a broadcast and the single operator for an offer or
// a win; it is empty for an escalation to admin.
type Intent struct {
	Kind       IntentKind       `json:"kind"`
	JobID      uuid.UUID        `json:"job_id"`
	BidID      *uuid.UUID       `json:"bid_id,omitempty"`
	Recipients []uuid.UUID      `json:"recipients,omitempty"`
	Reason     model.EscalationReason `json:"reason,omitempty"`
}

// NotificationSink is the C4 delivery abstraction. A Send failure is
// logged by the caller and never propagates into a Job state transition —
// notifications are best-effort, generalizing the bid-engine example's
// Broadcaster interface from a single event type to the four intents this
// system needs.
type NotificationSink interface {
	Send(ctx context.Context, intent Intent) error
}

// LoggingSink is the default sink: every intent becomes one structured
// zerolog event. Always safe to construct, never fails.
type LoggingSink struct{}

// NewLoggingSink creates a LoggingSink.
func NewLoggingSink() *LoggingSink { return &LoggingSink{} }

// Send logs the intent at INFO and always returns nil.
func (s *LoggingSink) Send(_ context.Context, intent Intent) error {
	log.Info().
		Str("kind", string(intent.Kind)).
		Str("job_id", intent.JobID.String()).
		Int("recipients", len(intent.Recipients)).
		Msg("notify: intent emitted")
	return nil
}

// RedisSink LPUSHes JSON-encoded intents onto a per-kind Redis list, acting
// as a lightweight outbox for an out-of-scope downstream worker (email/SMS/
// push) to drain. Exercises redis/go-redis/v9 beyond the caching role it
// already has.
type RedisSink struct {
	client *redis.Client
}

// NewRedisSink creates a RedisSink.
func NewRedisSink(client *redis.Client) *RedisSink { return &RedisSink{client: client} }

func (s *RedisSink) listKey(kind IntentKind) string { return "notify:outbox:" + string(kind) }

// Send marshals intent and LPUSHes it; any failure is swallowed by the
// caller — Send itself still returns the error so a
// wrapping sink (e.g. a fan-out sink) can log it with full context.
func (s *RedisSink) Send(ctx context.Context, intent Intent) error {
	payload, err := json.Marshal(intent)
	if err != nil {
		return err
	}
	return s.client.LPush(ctx, s.listKey(intent.Kind), payload).Err()
}

// FanoutSink sends to every wrapped sink and logs (never returns) a failure
// from any of them, so one misbehaving sink can't block the others.
type FanoutSink struct {
	sinks []NotificationSink
}

// NewFanoutSink creates a FanoutSink wrapping the given sinks in order.
func NewFanoutSink(sinks ...NotificationSink) *FanoutSink { return &FanoutSink{sinks: sinks} }

// Send dispatches intent to every wrapped sink; failures are logged at WARN
// and never returned — a delivery failure must never block a state transition.
func (s *FanoutSink) Send(ctx context.Context, intent Intent) error {
	for _, sink := range s.sinks {
		if err := sink.Send(ctx, intent); err != nil {
			log.Warn().Err(err).Str("kind", string(intent.Kind)).Msg("notify: sink failed")
		}
	}
	return nil
}
