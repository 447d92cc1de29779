package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/aeromarket/transfercore/internal/apperr"
	"github.com/aeromarket/transfercore/internal/model"
	"github.com/aeromarket/transfercore/internal/repository"
	"github.com/aeromarket/transfercore/pkg/money"
)

// AdminService wraps AuctionEngine's repositories with the manual
// escape-hatch operations exposed to admins: forceCloseBidding,
// manualAssign, reopenBidding, cancelJob, completeJob.
type AdminService struct {
	engine *AuctionEngine
}

// NewAdminService creates an admin service bound to the given engine.
func NewAdminService(engine *AuctionEngine) *AdminService {
	return &AdminService{engine: engine}
}

// ForceCloseBidding ends bidding on an OPEN_FOR_BIDDING job immediately,
// running the same winner-selection the CLOSE_BIDDING timer would have.
func (s *AdminService) ForceCloseBidding(ctx context.Context, jobID uuid.UUID) error {
	job, err := s.engine.jobs.GetJob(ctx, nil, jobID, false)
	if err != nil {
		return apperr.NotFound("job %s: %v", jobID, err)
	}
	if job.Status != model.JobOpenForBidding {
		return apperr.Conflict("job %s is not open for bidding", jobID)
	}
	return s.engine.onCloseBidding(ctx, jobID, 0)
}

// ManualAssign assigns operatorID to jobID directly at amount, bypassing
// the cascade entirely. It applies to an OPEN_FOR_BIDDING or
// PENDING_ACCEPTANCE job and rejects a terminal one, NO_BIDS_RECEIVED
// included (ReopenBidding is the way out of escalation). It creates a synthetic WON bid for the assignment (so
// winning_bid_id/platform_margin stay populated the same as a cascade win)
// and marks every other non-terminal bid on the job LOST.
func (s *AdminService) ManualAssign(ctx context.Context, jobID, operatorID uuid.UUID, amount model.Money) error {
	job, err := s.engine.jobs.GetJob(ctx, nil, jobID, false)
	if err != nil {
		return apperr.NotFound("job %s: %v", jobID, err)
	}
	if job.Status.IsTerminal() {
		return apperr.Conflict("job %s is already in a terminal status %s", jobID, job.Status)
	}

	booking, err := s.engine.bookings.GetBooking(ctx, job.BookingID)
	if err != nil {
		return err
	}
	margin := money.Round(booking.CustomerPrice.Sub(amount))

	bid, err := s.engine.bids.CreateManualWonBid(ctx, jobID, operatorID, money.Round(amount))
	if err != nil {
		return err
	}

	if err := withRetry(ctx, func() error {
		err := s.engine.jobs.ManualAssign(ctx, jobID, operatorID, bid.ID, margin)
		if err == repository.ErrAlreadyProcessed {
			return nil
		}
		return err
	}); err != nil {
		return err
	}

	_ = s.engine.timers.Cancel(ctx, model.TimerCloseBidding, jobID, 0)
	if job.AcceptanceAttemptCount > 0 {
		_ = s.engine.timers.Cancel(ctx, model.TimerAcceptanceTimeout, jobID, job.AcceptanceAttemptCount)
	}
	_ = s.engine.bookings.SetStatus(ctx, job.BookingID, model.BookingAssigned)
	_ = s.engine.notify.Send(ctx, Intent{Kind: IntentBidWon, JobID: jobID, BidID: &bid.ID, Recipients: []uuid.UUID{operatorID}})
	return nil
}

// ReopenBidding reverts an escalated (NO_BIDS_RECEIVED) job back to
// OPEN_FOR_BIDDING with a fresh bidding window, and reschedules its
// CLOSE_BIDDING timer.
func (s *AdminService) ReopenBidding(ctx context.Context, jobID uuid.UUID) error {
	job, err := s.engine.jobs.GetJob(ctx, nil, jobID, false)
	if err != nil {
		return apperr.NotFound("job %s: %v", jobID, err)
	}
	if job.Status != model.JobNoBidsReceived {
		return apperr.Conflict("job %s is not escalated", jobID)
	}

	booking, err := s.engine.bookings.GetBooking(ctx, job.BookingID)
	if err != nil {
		return err
	}

	opensAt := time.Now()
	windowHours := s.engine.settings.BiddingWindowHours(booking.JourneyType)
	closesAt := opensAt.Add(time.Duration(windowHours) * time.Hour)

	if err := withRetry(ctx, func() error {
		err := s.engine.jobs.ReopenBidding(ctx, jobID, opensAt, closesAt)
		if err == repository.ErrAlreadyProcessed {
			return nil
		}
		return err
	}); err != nil {
		return err
	}

	if err := s.engine.timers.Schedule(ctx, model.TimerCloseBidding, jobID, 0, closesAt); err != nil {
		log.Error().Err(err).Str("job_id", jobID.String()).Msg("admin: failed to reschedule close-bidding timer")
	}
	return nil
}

// CancelJob cancels jobID from any non-terminal status — the admin
// counterpart to the BookingCancelled consumer, for cases where the
// booking itself stays active but the job must be pulled (e.g. duplicate).
func (s *AdminService) CancelJob(ctx context.Context, jobID uuid.UUID) error {
	job, err := s.engine.jobs.GetJob(ctx, nil, jobID, false)
	if err != nil {
		return apperr.NotFound("job %s: %v", jobID, err)
	}
	if job.Status.IsTerminal() {
		return apperr.Conflict("job %s is already in a terminal status %s", jobID, job.Status)
	}

	if err := withRetry(ctx, func() error {
		err := s.engine.jobs.CancelJob(ctx, jobID)
		if err == repository.ErrAlreadyProcessed {
			return nil
		}
		return err
	}); err != nil {
		return err
	}

	_ = s.engine.timers.Cancel(ctx, model.TimerCloseBidding, jobID, 0)
	if job.AcceptanceAttemptCount > 0 {
		_ = s.engine.timers.Cancel(ctx, model.TimerAcceptanceTimeout, jobID, job.AcceptanceAttemptCount)
	}
	return nil
}

// CompleteJob marks an ASSIGNED job COMPLETED — the transfer actually
// happened.
func (s *AdminService) CompleteJob(ctx context.Context, jobID uuid.UUID) error {
	job, err := s.engine.jobs.GetJob(ctx, nil, jobID, false)
	if err != nil {
		return apperr.NotFound("job %s: %v", jobID, err)
	}
	if job.Status != model.JobAssigned {
		return apperr.Conflict("job %s is not assigned", jobID)
	}

	return withRetry(ctx, func() error {
		err := s.engine.jobs.CompleteJob(ctx, jobID)
		if err == repository.ErrAlreadyProcessed {
			return nil
		}
		return err
	})
}
