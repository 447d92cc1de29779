// Package repository provides database access for the auction core.
//
// JobRepository handles transactional Job state transitions as guarded
// UPDATEs (WHERE status = expected, checked via RowsAffected). The UPDATE's
// row lock and its guard serialize concurrent callers — an operator
// accepting an offer and the Timer Service firing a timeout at the same
// instant — through Postgres rather than racing in application memory:
// the second one to commit matches no row and gets ErrAlreadyProcessed.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aeromarket/transfercore/internal/model"
)

// JobRepository handles transactional Job persistence with row-level locking.
type JobRepository struct {
	pool *pgxpool.Pool
}

// NewJobRepository creates a new job repository.
func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

// DefaultTransitionTimeout is the maximum duration for a complete guarded
// transition transaction, including lock wait time.
const DefaultTransitionTimeout = 5 * time.Second

// ErrAlreadyProcessed signals a guarded UPDATE affected zero rows: the Job
// had already moved past the expected status by the time this caller's
// transaction committed. This is NOT an error to the caller — idempotent
// callers (the Timer Service in particular) must treat
// it as a no-op, so this sentinel exists purely so service code can detect
// and swallow it rather than retry or surface it.
var ErrAlreadyProcessed = errors.New("job: guarded transition affected no rows, already processed")

// CreateJob inserts a new Job for a freshly paid Booking, in
// OPEN_FOR_BIDDING, with its close-bidding deadline already computed by the
// caller (Settings Provider decides the window). booking_id is UNIQUE, so a
// duplicate BookingPaid delivery hits ON CONFLICT DO NOTHING instead of a
// constraint violation; the second return value reports whether this call
// actually created the row (false means the existing Job is returned as-is).
func (r *JobRepository) CreateJob(ctx context.Context, bookingID uuid.UUID, opensAt, closesAt time.Time, windowHours int) (*model.Job, bool, error) {
	job := &model.Job{}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO jobs (
			id, booking_id, status, bidding_opens_at, bidding_closes_at,
			bidding_duration_hours, acceptance_attempt_count
		) VALUES ($1, $2, $3, $4, $5, $6, 0)
		ON CONFLICT (booking_id) DO NOTHING
		RETURNING id, booking_id, status, bidding_opens_at, bidding_closes_at,
		          bidding_duration_hours, acceptance_attempt_count, created_at, updated_at
	`, uuid.New(), bookingID, model.JobOpenForBidding, opensAt, closesAt, windowHours).Scan(
		&job.ID, &job.BookingID, &job.Status, &job.BiddingOpensAt, &job.BiddingClosesAt,
		&job.BiddingDurationHours, &job.AcceptanceAttemptCount, &job.CreatedAt, &job.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		existing, getErr := r.GetJobByBookingID(ctx, bookingID)
		if getErr != nil {
			return nil, false, getErr
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("job: create: %w", err)
	}
	return job, true, nil
}

// GetJob fetches a Job by id. Pass forUpdate to take a row lock — callers
// must already be inside a transaction when they do.
func (r *JobRepository) GetJob(ctx context.Context, tx pgx.Tx, id uuid.UUID, forUpdate bool) (*model.Job, error) {
	lockClause := ""
	querier := queryRower(r.pool)
	if tx != nil {
		querier = tx
	}
	if forUpdate {
		lockClause = "FOR UPDATE"
	}
	query := fmt.Sprintf(`
		SELECT id, booking_id, status, bidding_opens_at, bidding_closes_at,
		       bidding_duration_hours, assigned_operator_id, winning_bid_id,
		       platform_margin, current_offered_bid_id, acceptance_opens_at,
		       acceptance_closes_at, acceptance_attempt_count, completed_at,
		       created_at, updated_at
		FROM jobs WHERE id = $1 %s`, lockClause)

	job := &model.Job{}
	err := querier.QueryRow(ctx, query, id).Scan(
		&job.ID, &job.BookingID, &job.Status, &job.BiddingOpensAt, &job.BiddingClosesAt,
		&job.BiddingDurationHours, &job.AssignedOperatorID, &job.WinningBidID,
		&job.PlatformMargin, &job.CurrentOfferedBidID, &job.AcceptanceOpensAt,
		&job.AcceptanceClosesAt, &job.AcceptanceAttemptCount, &job.CompletedAt,
		&job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("job: get %s: %w", id, err)
	}
	return job, nil
}

// queryRower lets GetJob accept either a pool or a tx without duplicating
// the scan logic; both satisfy this minimal interface.
type queryRowerIface interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func queryRower(pool *pgxpool.Pool) queryRowerIface { return pool }

// BeginTx starts a ReadCommitted transaction with the standard transition
// timeout applied to ctx. Callers must defer tx.Rollback(ctx).
func (r *JobRepository) BeginTx(ctx context.Context) (pgx.Tx, context.Context, context.CancelFunc, error) {
	txCtx, cancel := context.WithTimeout(ctx, DefaultTransitionTimeout)
	tx, err := r.pool.BeginTx(txCtx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		cancel()
		return nil, nil, nil, fmt.Errorf("job: begin tx: %w", err)
	}
	return tx, txCtx, cancel, nil
}

// CloseBidding folds BIDDING_CLOSED straight into PENDING_ACCEPTANCE (if a
// winning bid was selected by the caller) or NO_BIDS_RECEIVED, inside one
// guarded transaction. winningBidID is nil when the caller found no bids.
func (r *JobRepository) CloseBidding(ctx context.Context, jobID uuid.UUID, winningBidID *uuid.UUID, margin *model.Money, acceptanceOpensAt, acceptanceClosesAt *time.Time) error {
	tx, txCtx, cancel, err := r.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer cancel()
	defer tx.Rollback(txCtx)

	var newStatus model.JobStatus
	var tag pgx.CommandTag
	if winningBidID != nil {
		newStatus = model.JobPendingAcceptance
		tag, err = tx.Exec(txCtx, `
			UPDATE jobs
			SET status = $1, winning_bid_id = $2, current_offered_bid_id = $2,
			    platform_margin = $3, acceptance_opens_at = $4, acceptance_closes_at = $5,
			    acceptance_attempt_count = 1, updated_at = now()
			WHERE id = $6 AND status = $7
		`, newStatus, *winningBidID, margin, acceptanceOpensAt, acceptanceClosesAt, jobID, model.JobOpenForBidding)
	} else {
		newStatus = model.JobNoBidsReceived
		tag, err = tx.Exec(txCtx, `
			UPDATE jobs SET status = $1, updated_at = now()
			WHERE id = $2 AND status = $3
		`, newStatus, jobID, model.JobOpenForBidding)
	}
	if err != nil {
		return fmt.Errorf("job: close bidding %s: %w", jobID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyProcessed
	}
	if err := tx.Commit(txCtx); err != nil {
		return fmt.Errorf("job: close bidding commit: %w", err)
	}
	return nil
}

// OfferToNext advances the cascade: moves currentOfferedBidID/winningBidID
// forward to nextBidID, recomputes platform_margin for that bidder, bumps
// acceptance_attempt_count, and resets the acceptance deadline. Guard is
// PENDING_ACCEPTANCE with the previous offered bid still current, so a late
// accept/decline racing this call cannot both succeed.
func (r *JobRepository) OfferToNext(ctx context.Context, jobID uuid.UUID, expectedCurrentBidID, nextBidID uuid.UUID, margin model.Money, acceptanceOpensAt, acceptanceClosesAt time.Time) error {
	tx, txCtx, cancel, err := r.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer cancel()
	defer tx.Rollback(txCtx)

	tag, err := tx.Exec(txCtx, `
		UPDATE jobs
		SET current_offered_bid_id = $1, winning_bid_id = $1, platform_margin = $2,
		    acceptance_opens_at = $3, acceptance_closes_at = $4,
		    acceptance_attempt_count = acceptance_attempt_count + 1, updated_at = now()
		WHERE id = $5 AND status = $6 AND current_offered_bid_id = $7
	`, nextBidID, margin, acceptanceOpensAt, acceptanceClosesAt, jobID, model.JobPendingAcceptance, expectedCurrentBidID)
	if err != nil {
		return fmt.Errorf("job: offer to next %s: %w", jobID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyProcessed
	}
	return tx.Commit(txCtx)
}

// Assign transitions a Job to ASSIGNED on operator acceptance. Guard is
// PENDING_ACCEPTANCE with the expected offered bid still current and the
// acceptance window not yet elapsed as of now — an acceptance landing at
// exactly acceptance_closes_at still succeeds, one tick later does not.
func (r *JobRepository) Assign(ctx context.Context, jobID, expectedOfferedBidID, operatorID uuid.UUID, now time.Time) error {
	tx, txCtx, cancel, err := r.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer cancel()
	defer tx.Rollback(txCtx)

	tag, err := tx.Exec(txCtx, `
		UPDATE jobs
		SET status = $1, assigned_operator_id = $2, updated_at = now()
		WHERE id = $3 AND status = $4 AND current_offered_bid_id = $5
		      AND acceptance_closes_at >= $6
	`, model.JobAssigned, operatorID, jobID, model.JobPendingAcceptance, expectedOfferedBidID, now)
	if err != nil {
		return fmt.Errorf("job: assign %s: %w", jobID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyProcessed
	}
	return tx.Commit(txCtx)
}

// NoBidsReceived forces a Job with an exhausted cascade (every offered
// operator declined or timed out) to NO_BIDS_RECEIVED so it can be escalated.
func (r *JobRepository) NoBidsReceived(ctx context.Context, jobID uuid.UUID) error {
	tx, txCtx, cancel, err := r.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer cancel()
	defer tx.Rollback(txCtx)

	tag, err := tx.Exec(txCtx, `
		UPDATE jobs SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3
	`, model.JobNoBidsReceived, jobID, model.JobPendingAcceptance)
	if err != nil {
		return fmt.Errorf("job: exhaust cascade %s: %w", jobID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyProcessed
	}
	return tx.Commit(txCtx)
}

// ForceCloseBidding ends bidding regardless of the scheduled closesAt by
// delegating to CloseBidding with the same arguments and guard. The
// service layer's admin force-close does not call it: it runs the
// CLOSE_BIDDING handler, which calls CloseBidding directly.
func (r *JobRepository) ForceCloseBidding(ctx context.Context, jobID uuid.UUID, winningBidID *uuid.UUID, margin *model.Money, acceptanceOpensAt, acceptanceClosesAt *time.Time) error {
	return r.CloseBidding(ctx, jobID, winningBidID, margin, acceptanceOpensAt, acceptanceClosesAt)
}

// ReopenBidding reverts an escalated Job (NO_BIDS_RECEIVED) back to
// OPEN_FOR_BIDDING with a fresh window, the admin "reopen" operation.
func (r *JobRepository) ReopenBidding(ctx context.Context, jobID uuid.UUID, opensAt, closesAt time.Time) error {
	tx, txCtx, cancel, err := r.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer cancel()
	defer tx.Rollback(txCtx)

	tag, err := tx.Exec(txCtx, `
		UPDATE jobs
		SET status = $1, bidding_opens_at = $2, bidding_closes_at = $3,
		    winning_bid_id = NULL, current_offered_bid_id = NULL,
		    acceptance_opens_at = NULL, acceptance_closes_at = NULL,
		    acceptance_attempt_count = 0, updated_at = now()
		WHERE id = $4 AND status = $5
	`, model.JobOpenForBidding, opensAt, closesAt, jobID, model.JobNoBidsReceived)
	if err != nil {
		return fmt.Errorf("job: reopen %s: %w", jobID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyProcessed
	}
	return tx.Commit(txCtx)
}

// ManualAssign is the admin operation that assigns an operator directly,
// from any non-terminal status, bypassing the cascade. winningBidID is the
// synthetic bid the caller already created and marked WON for this
// assignment, so winning_bid_id/platform_margin stay consistent with the
// invariant that an ASSIGNED job always has both set.
func (r *JobRepository) ManualAssign(ctx context.Context, jobID, operatorID, winningBidID uuid.UUID, margin model.Money) error {
	tx, txCtx, cancel, err := r.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer cancel()
	defer tx.Rollback(txCtx)

	tag, err := tx.Exec(txCtx, `
		UPDATE jobs
		SET status = $1, assigned_operator_id = $2, winning_bid_id = $3,
		    current_offered_bid_id = $3, platform_margin = $4, updated_at = now()
		WHERE id = $5 AND status NOT IN ($6, $7, $8, $9)
	`, model.JobAssigned, operatorID, winningBidID, margin, jobID,
		model.JobAssigned, model.JobCancelled, model.JobCompleted, model.JobNoBidsReceived)
	if err != nil {
		return fmt.Errorf("job: manual assign %s: %w", jobID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyProcessed
	}
	return tx.Commit(txCtx)
}

// CancelJob transitions a Job to CANCELLED from any non-terminal status, the
// BookingCancelled consumer and the admin "cancel" operation both call this.
func (r *JobRepository) CancelJob(ctx context.Context, jobID uuid.UUID) error {
	tx, txCtx, cancel, err := r.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer cancel()
	defer tx.Rollback(txCtx)

	tag, err := tx.Exec(txCtx, `
		UPDATE jobs SET status = $1, updated_at = now()
		WHERE id = $2 AND status NOT IN ($3, $4, $5)
	`, model.JobCancelled, jobID, model.JobCancelled, model.JobCompleted, model.JobAssigned)
	if err != nil {
		return fmt.Errorf("job: cancel %s: %w", jobID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyProcessed
	}
	return tx.Commit(txCtx)
}

// CompleteJob transitions an ASSIGNED Job to COMPLETED.
func (r *JobRepository) CompleteJob(ctx context.Context, jobID uuid.UUID) error {
	tx, txCtx, cancel, err := r.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer cancel()
	defer tx.Rollback(txCtx)

	tag, err := tx.Exec(txCtx, `
		UPDATE jobs SET status = $1, completed_at = now(), updated_at = now()
		WHERE id = $2 AND status = $3
	`, model.JobCompleted, jobID, model.JobAssigned)
	if err != nil {
		return fmt.Errorf("job: complete %s: %w", jobID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyProcessed
	}
	return tx.Commit(txCtx)
}

// GetJobByBookingID looks a Job up by its owning Booking, used by the
// BookingCancelled consumer which only knows the bookingId.
func (r *JobRepository) GetJobByBookingID(ctx context.Context, bookingID uuid.UUID) (*model.Job, error) {
	job := &model.Job{}
	err := r.pool.QueryRow(ctx, `
		SELECT id, booking_id, status, bidding_opens_at, bidding_closes_at,
		       bidding_duration_hours, assigned_operator_id, winning_bid_id,
		       platform_margin, current_offered_bid_id, acceptance_opens_at,
		       acceptance_closes_at, acceptance_attempt_count, completed_at,
		       created_at, updated_at
		FROM jobs WHERE booking_id = $1
	`, bookingID).Scan(
		&job.ID, &job.BookingID, &job.Status, &job.BiddingOpensAt, &job.BiddingClosesAt,
		&job.BiddingDurationHours, &job.AssignedOperatorID, &job.WinningBidID,
		&job.PlatformMargin, &job.CurrentOfferedBidID, &job.AcceptanceOpensAt,
		&job.AcceptanceClosesAt, &job.AcceptanceAttemptCount, &job.CompletedAt,
		&job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("job: get by booking %s: %w", bookingID, err)
	}
	return job, nil
}
