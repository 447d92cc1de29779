package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/aeromarket/transfercore/internal/apperr"
	"github.com/aeromarket/transfercore/internal/model"
	"github.com/aeromarket/transfercore/internal/repository"
	"github.com/aeromarket/transfercore/internal/settings"
	"github.com/aeromarket/transfercore/pkg/metrics"
	"github.com/aeromarket/transfercore/pkg/money"
)

// BidGateway is the C6 entry point operators use to participate in an
// auction: place, revise, withdraw a bid, and accept/decline a current
// offer. It validates against the Job's live state and the Settings
// Provider's bid-amount bounds before ever touching the bids table, the
// same validate-then-persist shape a step-by-step fare estimation
// pipeline would use.
type BidGateway struct {
	jobs        jobStore
	bids        bidStore
	booking     bookingStore
	engine      *AuctionEngine
	eligibility *EligibilityService
	setting     *settings.Provider
}

// NewBidGateway creates a bid gateway bound to the given repositories,
// eligibility service, and auction engine.
func NewBidGateway(
	jobs *repository.JobRepository,
	bids *repository.BidRepository,
	booking *repository.BookingRepository,
	engine *AuctionEngine,
	eligibility *EligibilityService,
	settingsProvider *settings.Provider,
) *BidGateway {
	return &BidGateway{jobs: jobs, bids: bids, booking: booking, engine: engine, eligibility: eligibility, setting: settingsProvider}
}

// PlaceBid submits operatorID's offer on jobID.
//
// Steps:
//  1. Load the Job and confirm it is still OPEN_FOR_BIDDING.
//  2. Load the Booking to get customerPrice, the base for the bid-amount
//     bounds.
//  3. Re-check the operator is still eligible — approved, supports the
//     vehicle type, current documents — since broadcast and bid placement
//     can be far apart in time.
//  4. Validate amount falls within [minBidPercent, maxBidPercent] of
//     customerPrice.
//  5. Persist the PENDING bid.
func (g *BidGateway) PlaceBid(ctx context.Context, jobID, operatorID uuid.UUID, amount model.Money, notes *string) (*model.Bid, error) {
	job, err := g.jobs.GetJob(ctx, nil, jobID, false)
	if err != nil {
		return nil, apperr.NotFound("job %s: %v", jobID, err)
	}
	if job.Status != model.JobOpenForBidding {
		return nil, apperr.Conflict("job %s is not open for bidding", jobID)
	}

	booking, err := g.booking.GetBooking(ctx, job.BookingID)
	if err != nil {
		return nil, err
	}

	if err := g.eligibility.Check(ctx, operatorID, *booking); err != nil {
		return nil, err
	}

	minPct, maxPct := g.setting.MinBidPercent(), g.setting.MaxBidPercent()
	if !money.InRange(amount, booking.CustomerPrice, minPct, maxPct) {
		return nil, apperr.Validation("bid amount %s is outside the allowed range [%.0f%%, %.0f%%] of %s", amount, minPct*100, maxPct*100, booking.CustomerPrice)
	}

	bid, err := g.bids.PlaceBid(ctx, jobID, operatorID, money.Round(amount), notes)
	if err != nil {
		return nil, apperr.Conflict("place bid on job %s: %v", jobID, err)
	}
	metrics.BidsPlaced.WithLabelValues("place").Inc()
	log.Info().Str("job_id", jobID.String()).Str("operator_id", operatorID.String()).Str("amount", bid.Amount.String()).Msg("bidgateway: bid placed")
	return bid, nil
}

// UpdateBid revises the amount/notes of operatorID's still-pending bid.
func (g *BidGateway) UpdateBid(ctx context.Context, jobID, bidID, operatorID uuid.UUID, amount model.Money, notes *string) error {
	job, err := g.jobs.GetJob(ctx, nil, jobID, false)
	if err != nil {
		return apperr.NotFound("job %s: %v", jobID, err)
	}
	if job.Status != model.JobOpenForBidding {
		return apperr.Conflict("job %s is not open for bidding", jobID)
	}

	bid, err := g.bids.GetBid(ctx, bidID)
	if err != nil {
		return apperr.NotFound("bid %s: %v", bidID, err)
	}
	if bid.OperatorID != operatorID {
		return apperr.Forbidden("operator %s does not own bid %s", operatorID, bidID)
	}

	booking, err := g.booking.GetBooking(ctx, job.BookingID)
	if err != nil {
		return err
	}

	if err := g.eligibility.Check(ctx, operatorID, *booking); err != nil {
		return err
	}

	minPct, maxPct := g.setting.MinBidPercent(), g.setting.MaxBidPercent()
	if !money.InRange(amount, booking.CustomerPrice, minPct, maxPct) {
		return apperr.Validation("bid amount %s is outside the allowed range [%.0f%%, %.0f%%] of %s", amount, minPct*100, maxPct*100, booking.CustomerPrice)
	}

	if err := g.bids.UpdateBidAmount(ctx, bidID, money.Round(amount), notes); err != nil {
		if err == repository.ErrAlreadyProcessed {
			return apperr.Conflict("bid %s is no longer pending", bidID)
		}
		return err
	}
	metrics.BidsPlaced.WithLabelValues("update").Inc()
	return nil
}

// WithdrawBid pulls operatorID's still-pending bid out of contention.
func (g *BidGateway) WithdrawBid(ctx context.Context, bidID, operatorID uuid.UUID) error {
	bid, err := g.bids.GetBid(ctx, bidID)
	if err != nil {
		return apperr.NotFound("bid %s: %v", bidID, err)
	}
	if bid.OperatorID != operatorID {
		return apperr.Forbidden("operator %s does not own bid %s", operatorID, bidID)
	}

	if err := g.bids.WithdrawBid(ctx, bidID); err != nil {
		if err == repository.ErrAlreadyProcessed {
			return apperr.Conflict("bid %s is no longer pending", bidID)
		}
		return err
	}
	metrics.BidsPlaced.WithLabelValues("withdraw").Inc()
	return nil
}

// AcceptOffer delegates to the Auction Engine's guarded acceptance.
func (g *BidGateway) AcceptOffer(ctx context.Context, jobID, operatorID uuid.UUID) error {
	return g.engine.AcceptOffer(ctx, jobID, operatorID)
}

// DeclineOffer delegates to the Auction Engine's guarded decline, which
// advances the cascade to the next bidder.
func (g *BidGateway) DeclineOffer(ctx context.Context, jobID, operatorID uuid.UUID) error {
	return g.engine.DeclineOffer(ctx, jobID, operatorID)
}

// ListMyOffers returns operatorID's currently open offers (status OFFERED),
// newest first.
func (g *BidGateway) ListMyOffers(ctx context.Context, operatorID uuid.UUID) ([]model.Bid, error) {
	return g.bids.ListByOperator(ctx, operatorID)
}
