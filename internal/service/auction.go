package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/aeromarket/transfercore/internal/apperr"
	"github.com/aeromarket/transfercore/internal/model"
	"github.com/aeromarket/transfercore/internal/repository"
	"github.com/aeromarket/transfercore/internal/settings"
	"github.com/aeromarket/transfercore/pkg/metrics"
	"github.com/aeromarket/transfercore/pkg/money"
)

// AuctionEngine is the core: it owns every Job state transition, runs
// the acceptance cascade, and is the only component allowed to write to
// the jobs and bids tables. Every transition follows the same
// BeginTx/guarded UPDATE/RowsAffected pattern, generalized from a single
// booking-capacity check to the Job state machine, and wrapped in
// withRetry for transient Postgres errors. A transition whose guard misses
// (ErrAlreadyProcessed) lost a race and produces no follow-up side effects.
type AuctionEngine struct {
	jobs        jobStore
	bids        bidStore
	bookings    bookingStore
	eligibility *EligibilityService
	timers      timerScheduler
	notify      NotificationSink
	settings    *settings.Provider
}

// NewAuctionEngine wires the engine and registers its timer handlers.
func NewAuctionEngine(
	jobs *repository.JobRepository,
	bids *repository.BidRepository,
	bookings *repository.BookingRepository,
	eligibility *EligibilityService,
	timers *TimerService,
	notify NotificationSink,
	settingsProvider *settings.Provider,
) *AuctionEngine {
	e := &AuctionEngine{
		jobs:        jobs,
		bids:        bids,
		bookings:    bookings,
		eligibility: eligibility,
		timers:      timers,
		notify:      notify,
		settings:    settingsProvider,
	}
	timers.RegisterHandler(model.TimerCloseBidding, e.onCloseBidding)
	timers.RegisterHandler(model.TimerAcceptanceTimeout, e.onAcceptanceTimeout)
	return e
}

// CreateJobFromBookingPaid opens a new auction for a freshly paid booking:
// persists the read-model, creates the Job in OPEN_FOR_BIDDING, schedules
// its CLOSE_BIDDING timer, and broadcasts BROADCAST_NEW_JOB to every
// eligible operator.
func (e *AuctionEngine) CreateJobFromBookingPaid(ctx context.Context, booking model.Booking) (*model.Job, error) {
	booking.Status = model.BookingPaidStatus
	if err := e.bookings.Upsert(ctx, booking); err != nil {
		return nil, err
	}

	opensAt := time.Now()
	windowHours := e.settings.BiddingWindowHours(booking.JourneyType)
	closesAt := opensAt.Add(time.Duration(windowHours) * time.Hour)

	job, created, err := e.jobs.CreateJob(ctx, booking.ID, opensAt, closesAt, windowHours)
	if err != nil {
		return nil, err
	}
	if !created {
		// Duplicate BookingPaid delivery for a Job that already exists — a
		// no-op past the booking read-model refresh above.
		log.Debug().Str("job_id", job.ID.String()).Msg("auction: duplicate booking-paid event, job already exists")
		return job, nil
	}
	metrics.JobsCreated.Inc()

	if err := e.timers.Schedule(ctx, model.TimerCloseBidding, job.ID, 0, closesAt); err != nil {
		log.Error().Err(err).Str("job_id", job.ID.String()).Msg("auction: failed to schedule close-bidding timer")
	}

	operators, err := e.eligibility.EligibleOperators(ctx, booking)
	if err != nil {
		log.Error().Err(err).Str("job_id", job.ID.String()).Msg("auction: eligibility lookup failed, broadcast skipped")
	} else {
		recipients := make([]uuid.UUID, len(operators))
		for i, op := range operators {
			recipients[i] = op.ID
		}
		_ = e.notify.Send(ctx, Intent{Kind: IntentBroadcastNewJob, JobID: job.ID, Recipients: recipients})
	}

	return job, nil
}

// HandleBookingCancelled cancels the Job owned by a cancelled booking, if
// it has not already reached a terminal status. A Job already ASSIGNED,
// CANCELLED or COMPLETED is left untouched — cancellation mid-fulfilment
// is out of this engine's scope.
func (e *AuctionEngine) HandleBookingCancelled(ctx context.Context, bookingID uuid.UUID) error {
	if err := e.bookings.SetStatus(ctx, bookingID, model.BookingCancelled); err != nil {
		return err
	}

	job, err := e.jobs.GetJobByBookingID(ctx, bookingID)
	if err != nil {
		return apperr.NotFound("job for booking %s: %v", bookingID, err)
	}
	if job.Status.IsTerminal() {
		return nil
	}

	if err := withRetry(ctx, func() error {
		err := e.jobs.CancelJob(ctx, job.ID)
		if err == repository.ErrAlreadyProcessed {
			return nil
		}
		return err
	}); err != nil {
		return err
	}

	_ = e.timers.Cancel(ctx, model.TimerCloseBidding, job.ID, 0)
	if job.AcceptanceAttemptCount > 0 {
		_ = e.timers.Cancel(ctx, model.TimerAcceptanceTimeout, job.ID, job.AcceptanceAttemptCount)
	}
	return nil
}

// onCloseBidding is the CLOSE_BIDDING timer handler: selects the lowest
// pending bid (ties broken by earliest submission), opens the acceptance
// cascade, or escalates straight to NO_BIDS_RECEIVED.
func (e *AuctionEngine) onCloseBidding(ctx context.Context, jobID uuid.UUID, _ int) error {
	job, err := e.jobs.GetJob(ctx, nil, jobID, false)
	if err != nil {
		return err
	}
	if job.Status != model.JobOpenForBidding {
		// Already closed by a concurrent admin force-close — idempotent no-op.
		return nil
	}

	bids, err := e.bids.ListPendingOrdered(ctx, jobID)
	if err != nil {
		return err
	}

	if len(bids) == 0 {
		return e.escalateNoBids(ctx, job)
	}

	return e.offerFirstBid(ctx, job, bids[0])
}

func (e *AuctionEngine) escalateNoBids(ctx context.Context, job *model.Job) error {
	applied := true
	if err := withRetry(ctx, func() error {
		err := e.jobs.CloseBidding(ctx, job.ID, nil, nil, nil, nil)
		if err == repository.ErrAlreadyProcessed {
			applied = false
			return nil
		}
		return err
	}); err != nil {
		return err
	}
	if !applied {
		return nil
	}
	metrics.Escalations.WithLabelValues(string(model.ReasonNoBidsReceived)).Inc()
	_ = e.notify.Send(ctx, Intent{Kind: IntentJobEscalationToAdmin, JobID: job.ID, Reason: model.ReasonNoBidsReceived})
	return nil
}

func (e *AuctionEngine) offerFirstBid(ctx context.Context, job *model.Job, winning model.Bid) error {
	booking, err := e.bookings.GetBooking(ctx, job.BookingID)
	if err != nil {
		return err
	}
	margin := money.Round(booking.CustomerPrice.Sub(winning.Amount))

	acceptanceOpensAt := time.Now()
	acceptanceClosesAt := acceptanceOpensAt.Add(time.Duration(e.settings.AcceptanceWindowMinutes()) * time.Minute)

	applied := true
	if err := withRetry(ctx, func() error {
		err := e.jobs.CloseBidding(ctx, job.ID, &winning.ID, &margin, &acceptanceOpensAt, &acceptanceClosesAt)
		if err == repository.ErrAlreadyProcessed {
			applied = false
			return nil
		}
		return err
	}); err != nil {
		return err
	}
	if !applied {
		return nil
	}

	if err := e.bids.MarkOffered(ctx, winning.ID, acceptanceOpensAt); err != nil && err != repository.ErrAlreadyProcessed {
		return err
	}
	metrics.CascadeAttempts.Inc()

	if err := e.timers.Schedule(ctx, model.TimerAcceptanceTimeout, job.ID, 1, acceptanceClosesAt); err != nil {
		log.Error().Err(err).Str("job_id", job.ID.String()).Msg("auction: failed to schedule acceptance timeout")
	}

	_ = e.notify.Send(ctx, Intent{Kind: IntentJobOffer, JobID: job.ID, BidID: &winning.ID, Recipients: []uuid.UUID{winning.OperatorID}})
	return nil
}

// AcceptOffer is the Bid Gateway's acceptOffer entry point: the currently
// offered operator accepts. Guarded so a late decline/timeout racing this
// call cannot both win.
func (e *AuctionEngine) AcceptOffer(ctx context.Context, jobID, operatorID uuid.UUID) error {
	job, err := e.jobs.GetJob(ctx, nil, jobID, false)
	if err != nil {
		return apperr.NotFound("job %s: %v", jobID, err)
	}
	if job.Status != model.JobPendingAcceptance || job.CurrentOfferedBidID == nil {
		return apperr.Conflict("job %s is not awaiting acceptance", jobID)
	}

	now := time.Now()
	if job.AcceptanceClosesAt == nil || now.After(*job.AcceptanceClosesAt) {
		return apperr.Conflict("job %s's acceptance window has closed", jobID)
	}

	bid, err := e.bids.GetBid(ctx, *job.CurrentOfferedBidID)
	if err != nil {
		return err
	}
	if bid.OperatorID != operatorID {
		return apperr.Forbidden("operator %s does not hold the current offer on job %s", operatorID, jobID)
	}

	applied := true
	if err := withRetry(ctx, func() error {
		err := e.jobs.Assign(ctx, jobID, bid.ID, operatorID, now)
		if err == repository.ErrAlreadyProcessed {
			applied = false
			return nil
		}
		return err
	}); err != nil {
		return err
	}
	if !applied {
		return apperr.Conflict("job %s is no longer awaiting acceptance of bid %s", jobID, bid.ID)
	}

	if err := e.bids.MarkWon(ctx, bid.ID, jobID); err != nil && err != repository.ErrAlreadyProcessed {
		log.Error().Err(err).Str("bid_id", bid.ID.String()).Msg("auction: failed to mark bid won")
	}
	_ = e.timers.Cancel(ctx, model.TimerAcceptanceTimeout, jobID, job.AcceptanceAttemptCount)
	_ = e.bookings.SetStatus(ctx, job.BookingID, model.BookingAssigned)

	_ = e.notify.Send(ctx, Intent{Kind: IntentBidWon, JobID: jobID, BidID: &bid.ID, Recipients: []uuid.UUID{operatorID}})
	return nil
}

// DeclineOffer is the Bid Gateway's declineOffer entry point: the currently
// offered operator explicitly turns the job down. Advances the cascade the
// same way an acceptance-timeout firing would.
func (e *AuctionEngine) DeclineOffer(ctx context.Context, jobID, operatorID uuid.UUID) error {
	job, err := e.jobs.GetJob(ctx, nil, jobID, false)
	if err != nil {
		return apperr.NotFound("job %s: %v", jobID, err)
	}
	if job.Status != model.JobPendingAcceptance || job.CurrentOfferedBidID == nil {
		return apperr.Conflict("job %s is not awaiting acceptance", jobID)
	}
	if job.AcceptanceClosesAt == nil || time.Now().After(*job.AcceptanceClosesAt) {
		return apperr.Conflict("job %s's acceptance window has closed", jobID)
	}

	bid, err := e.bids.GetBid(ctx, *job.CurrentOfferedBidID)
	if err != nil {
		return err
	}
	if bid.OperatorID != operatorID {
		return apperr.Forbidden("operator %s does not hold the current offer on job %s", operatorID, jobID)
	}

	return e.advanceCascade(ctx, job, bid)
}

// onAcceptanceTimeout is the ACCEPTANCE_TIMEOUT timer handler: the
// currently offered operator neither accepted nor declined within the
// acceptance window, treated identically to an explicit decline.
func (e *AuctionEngine) onAcceptanceTimeout(ctx context.Context, jobID uuid.UUID, attempt int) error {
	job, err := e.jobs.GetJob(ctx, nil, jobID, false)
	if err != nil {
		return err
	}
	if job.Status != model.JobPendingAcceptance || job.CurrentOfferedBidID == nil || job.AcceptanceAttemptCount != attempt {
		// Already resolved (accepted/declined) or a later attempt is in
		// flight — idempotent no-op.
		return nil
	}

	bid, err := e.bids.GetBid(ctx, *job.CurrentOfferedBidID)
	if err != nil {
		return err
	}
	return e.advanceCascade(ctx, job, bid)
}

// advanceCascade marks the current bid DECLINED and offers the next
// lowest pending bid, or exhausts the cascade to NO_BIDS_RECEIVED if none
// remain.
func (e *AuctionEngine) advanceCascade(ctx context.Context, job *model.Job, currentBid *model.Bid) error {
	if err := e.bids.MarkDeclined(ctx, currentBid.ID); err != nil && err != repository.ErrAlreadyProcessed {
		return err
	}

	remaining, err := e.bids.ListPendingOrdered(ctx, job.ID)
	if err != nil {
		return err
	}

	if len(remaining) == 0 {
		exhausted := true
		if err := withRetry(ctx, func() error {
			err := e.jobs.NoBidsReceived(ctx, job.ID)
			if err == repository.ErrAlreadyProcessed {
				exhausted = false
				return nil
			}
			return err
		}); err != nil {
			return err
		}
		if !exhausted {
			return nil
		}
		metrics.Escalations.WithLabelValues(string(model.ReasonAllOperatorsReject)).Inc()
		_ = e.notify.Send(ctx, Intent{Kind: IntentJobEscalationToAdmin, JobID: job.ID, Reason: model.ReasonAllOperatorsReject})
		return nil
	}

	booking, err := e.bookings.GetBooking(ctx, job.BookingID)
	if err != nil {
		return err
	}

	next := remaining[0]
	margin := money.Round(booking.CustomerPrice.Sub(next.Amount))
	acceptanceOpensAt := time.Now()
	acceptanceClosesAt := acceptanceOpensAt.Add(time.Duration(e.settings.AcceptanceWindowMinutes()) * time.Minute)
	nextAttempt := job.AcceptanceAttemptCount + 1

	applied := true
	if err := withRetry(ctx, func() error {
		err := e.jobs.OfferToNext(ctx, job.ID, currentBid.ID, next.ID, margin, acceptanceOpensAt, acceptanceClosesAt)
		if err == repository.ErrAlreadyProcessed {
			applied = false
			return nil
		}
		return err
	}); err != nil {
		return err
	}
	if !applied {
		return nil
	}

	if err := e.bids.MarkOffered(ctx, next.ID, acceptanceOpensAt); err != nil && err != repository.ErrAlreadyProcessed {
		return err
	}
	metrics.CascadeAttempts.Inc()

	if err := e.timers.Schedule(ctx, model.TimerAcceptanceTimeout, job.ID, nextAttempt, acceptanceClosesAt); err != nil {
		log.Error().Err(err).Str("job_id", job.ID.String()).Msg("auction: failed to schedule next acceptance timeout")
	}

	_ = e.notify.Send(ctx, Intent{Kind: IntentJobOffer, JobID: job.ID, BidID: &next.ID, Recipients: []uuid.UUID{next.OperatorID}})
	return nil
}
