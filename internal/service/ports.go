package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/aeromarket/transfercore/internal/model"
)

// jobStore is the subset of *repository.JobRepository the service layer
// depends on. Declaring it here — at the consumer, not the repository —
// lets AuctionEngine, AdminService, and BidGateway be exercised in tests
// against a hand-written fake instead of a live Postgres connection.
type jobStore interface {
	CreateJob(ctx context.Context, bookingID uuid.UUID, opensAt, closesAt time.Time, windowHours int) (*model.Job, bool, error)
	GetJob(ctx context.Context, tx pgx.Tx, id uuid.UUID, forUpdate bool) (*model.Job, error)
	GetJobByBookingID(ctx context.Context, bookingID uuid.UUID) (*model.Job, error)
	CloseBidding(ctx context.Context, jobID uuid.UUID, winningBidID *uuid.UUID, margin *model.Money, acceptanceOpensAt, acceptanceClosesAt *time.Time) error
	OfferToNext(ctx context.Context, jobID uuid.UUID, expectedCurrentBidID, nextBidID uuid.UUID, margin model.Money, acceptanceOpensAt, acceptanceClosesAt time.Time) error
	Assign(ctx context.Context, jobID, expectedOfferedBidID, operatorID uuid.UUID, now time.Time) error
	NoBidsReceived(ctx context.Context, jobID uuid.UUID) error
	CancelJob(ctx context.Context, jobID uuid.UUID) error
	CompleteJob(ctx context.Context, jobID uuid.UUID) error
	ForceCloseBidding(ctx context.Context, jobID uuid.UUID, winningBidID *uuid.UUID, margin *model.Money, acceptanceOpensAt, acceptanceClosesAt *time.Time) error
	ReopenBidding(ctx context.Context, jobID uuid.UUID, opensAt, closesAt time.Time) error
	ManualAssign(ctx context.Context, jobID, operatorID, winningBidID uuid.UUID, margin model.Money) error
}

// bidStore is the subset of *repository.BidRepository the service layer
// depends on.
type bidStore interface {
	PlaceBid(ctx context.Context, jobID, operatorID uuid.UUID, amount model.Money, notes *string) (*model.Bid, error)
	UpdateBidAmount(ctx context.Context, bidID uuid.UUID, amount model.Money, notes *string) error
	WithdrawBid(ctx context.Context, bidID uuid.UUID) error
	GetBid(ctx context.Context, id uuid.UUID) (*model.Bid, error)
	ListPendingOrdered(ctx context.Context, jobID uuid.UUID) ([]model.Bid, error)
	MarkOffered(ctx context.Context, bidID uuid.UUID, offeredAt time.Time) error
	MarkWon(ctx context.Context, bidID, jobID uuid.UUID) error
	MarkDeclined(ctx context.Context, bidID uuid.UUID) error
	CreateManualWonBid(ctx context.Context, jobID, operatorID uuid.UUID, amount model.Money) (*model.Bid, error)
	ListByOperator(ctx context.Context, operatorID uuid.UUID) ([]model.Bid, error)
}

// bookingStore is the subset of *repository.BookingRepository the service
// layer depends on.
type bookingStore interface {
	Upsert(ctx context.Context, b model.Booking) error
	GetBooking(ctx context.Context, id uuid.UUID) (*model.Booking, error)
	SetStatus(ctx context.Context, id uuid.UUID, status model.BookingStatus) error
}

// operatorStore is the subset of *repository.OperatorRepository the
// eligibility service depends on.
type operatorStore interface {
	GetOperator(ctx context.Context, id uuid.UUID) (*model.Operator, error)
	ListEligible(ctx context.Context, vehicleType, postcodePrefix string, postcodeFilteringEnabled bool) ([]model.Operator, error)
}

// timerScheduler is the subset of *TimerService the auction engine depends
// on.
type timerScheduler interface {
	Schedule(ctx context.Context, kind model.TimerKind, jobID uuid.UUID, attempt int, fireAt time.Time) error
	Cancel(ctx context.Context, kind model.TimerKind, jobID uuid.UUID, attempt int) error
	RegisterHandler(kind model.TimerKind, handler TimerHandler)
}
