package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aeromarket/transfercore/internal/model"
)

// BidRepository provides CRUD and cascade-ordering queries for Bids.
type BidRepository struct {
	pool *pgxpool.Pool
}

// NewBidRepository creates a new repository backed by the given PG pool.
func NewBidRepository(pool *pgxpool.Pool) *BidRepository {
	return &BidRepository{pool: pool}
}

const bidColumns = `id, job_id, operator_id, amount, notes, status, submitted_at, offered_at, responded_at`

func scanBid(row pgx.Row) (*model.Bid, error) {
	b := &model.Bid{}
	if err := row.Scan(&b.ID, &b.JobID, &b.OperatorID, &b.Amount, &b.Notes, &b.Status, &b.SubmittedAt, &b.OfferedAt, &b.RespondedAt); err != nil {
		return nil, err
	}
	return b, nil
}

// PlaceBid inserts a new PENDING bid. The caller (service layer) is
// responsible for checking eligibility and the bidding window; a partial
// unique index on (job_id, operator_id) WHERE status <> 'WITHDRAWN'
// rejects a second concurrent bid from the same operator at the DB level.
func (r *BidRepository) PlaceBid(ctx context.Context, jobID, operatorID uuid.UUID, amount model.Money, notes *string) (*model.Bid, error) {
	row := r.pool.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO bids (id, job_id, operator_id, amount, notes, status, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		RETURNING %s
	`, bidColumns), uuid.New(), jobID, operatorID, amount, notes, model.BidPending)
	bid, err := scanBid(row)
	if err != nil {
		return nil, fmt.Errorf("bid: place: %w", err)
	}
	return bid, nil
}

// UpdateBidAmount replaces the amount/notes of a still-PENDING bid (an
// operator revising their own offer before bidding closes).
func (r *BidRepository) UpdateBidAmount(ctx context.Context, bidID uuid.UUID, amount model.Money, notes *string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE bids SET amount = $1, notes = $2
		WHERE id = $3 AND status = $4
	`, amount, notes, bidID, model.BidPending)
	if err != nil {
		return fmt.Errorf("bid: update %s: %w", bidID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyProcessed
	}
	return nil
}

// WithdrawBid marks a PENDING bid WITHDRAWN.
func (r *BidRepository) WithdrawBid(ctx context.Context, bidID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE bids SET status = $1 WHERE id = $2 AND status = $3
	`, model.BidWithdrawn, bidID, model.BidPending)
	if err != nil {
		return fmt.Errorf("bid: withdraw %s: %w", bidID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyProcessed
	}
	return nil
}

// GetBid fetches a single bid by id.
func (r *BidRepository) GetBid(ctx context.Context, id uuid.UUID) (*model.Bid, error) {
	row := r.pool.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM bids WHERE id = $1`, bidColumns), id)
	bid, err := scanBid(row)
	if err != nil {
		return nil, fmt.Errorf("bid: get %s: %w", id, err)
	}
	return bid, nil
}

// ListPendingOrdered returns every PENDING bid for a Job ordered by
// (amount ASC, submitted_at ASC) — the cascade order: lowest price wins,
// ties broken by whoever bid first.
func (r *BidRepository) ListPendingOrdered(ctx context.Context, jobID uuid.UUID) ([]model.Bid, error) {
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM bids
		WHERE job_id = $1 AND status = $2
		ORDER BY amount ASC, submitted_at ASC
	`, bidColumns), jobID, model.BidPending)
	if err != nil {
		return nil, fmt.Errorf("bid: list pending for job %s: %w", jobID, err)
	}
	defer rows.Close()

	var bids []model.Bid
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, fmt.Errorf("bid: scan: %w", err)
		}
		bids = append(bids, *b)
	}
	return bids, rows.Err()
}

// MarkOffered flips a PENDING bid to OFFERED with offeredAt stamped, the
// first half of the cascade's "offer the next bidder" step.
func (r *BidRepository) MarkOffered(ctx context.Context, bidID uuid.UUID, offeredAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE bids SET status = $1, offered_at = $2
		WHERE id = $3 AND status = $4
	`, model.BidOffered, offeredAt, bidID, model.BidPending)
	if err != nil {
		return fmt.Errorf("bid: mark offered %s: %w", bidID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyProcessed
	}
	return nil
}

// MarkWon flips an OFFERED bid to WON (the accepted offer) and every other
// non-terminal bid on the same Job to LOST, inside one transaction.
func (r *BidRepository) MarkWon(ctx context.Context, bidID, jobID uuid.UUID) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("bid: mark won begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE bids SET status = $1, responded_at = now()
		WHERE id = $2 AND status = $3
	`, model.BidWon, bidID, model.BidOffered)
	if err != nil {
		return fmt.Errorf("bid: mark won %s: %w", bidID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyProcessed
	}

	if _, err := tx.Exec(ctx, `
		UPDATE bids SET status = $1
		WHERE job_id = $2 AND id <> $3 AND status IN ($4, $5)
	`, model.BidLost, jobID, bidID, model.BidPending, model.BidOffered); err != nil {
		return fmt.Errorf("bid: lose rest of job %s: %w", jobID, err)
	}

	return tx.Commit(ctx)
}

// CreateManualWonBid inserts a synthetic bid for an admin manual-assign
// action, already WON, and flips every other non-terminal bid on the job to
// LOST in the same transaction — the manual-assign analogue of
// PlaceBid+MarkWon collapsed into one step, since there is no prior PENDING
// bid to transition through.
func (r *BidRepository) CreateManualWonBid(ctx context.Context, jobID, operatorID uuid.UUID, amount model.Money) (*model.Bid, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("bid: manual won begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO bids (id, job_id, operator_id, amount, status, submitted_at, offered_at, responded_at)
		VALUES ($1, $2, $3, $4, $5, now(), now(), now())
		RETURNING %s
	`, bidColumns), uuid.New(), jobID, operatorID, amount, model.BidWon)
	bid, err := scanBid(row)
	if err != nil {
		return nil, fmt.Errorf("bid: manual won insert: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE bids SET status = $1
		WHERE job_id = $2 AND id <> $3 AND status IN ($4, $5)
	`, model.BidLost, jobID, bid.ID, model.BidPending, model.BidOffered); err != nil {
		return nil, fmt.Errorf("bid: manual won lose rest of job %s: %w", jobID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("bid: manual won commit: %w", err)
	}
	return bid, nil
}

// MarkDeclined flips an OFFERED bid to DECLINED, either an explicit decline
// or an acceptance-timeout firing.
func (r *BidRepository) MarkDeclined(ctx context.Context, bidID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE bids SET status = $1, responded_at = now()
		WHERE id = $2 AND status = $3
	`, model.BidDeclined, bidID, model.BidOffered)
	if err != nil {
		return fmt.Errorf("bid: mark declined %s: %w", bidID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyProcessed
	}
	return nil
}

// ListByOperator returns an operator's currently OFFERED bids, newest
// first — backs the "list my offers" GET /operators/{id}/offers endpoint,
// which surfaces open offers awaiting the operator's response, not the
// operator's full bid history.
func (r *BidRepository) ListByOperator(ctx context.Context, operatorID uuid.UUID) ([]model.Bid, error) {
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM bids WHERE operator_id = $1 AND status = $2 ORDER BY submitted_at DESC
	`, bidColumns), operatorID, model.BidOffered)
	if err != nil {
		return nil, fmt.Errorf("bid: list by operator %s: %w", operatorID, err)
	}
	defer rows.Close()

	var bids []model.Bid
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, fmt.Errorf("bid: scan: %w", err)
		}
		bids = append(bids, *b)
	}
	return bids, rows.Err()
}
