package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/aeromarket/transfercore/internal/model"
	"github.com/aeromarket/transfercore/internal/repository"
)

// The fakes in this file are in-memory stand-ins for the pgx-backed
// repositories, scoped to exactly the jobStore/bidStore/bookingStore/
// operatorStore/timerScheduler interfaces in ports.go. Every guarded
// mutation mirrors its SQL counterpart's WHERE-clause precondition and
// returns repository.ErrAlreadyProcessed on a miss, so the same state-guard
// behaviour the real transactions enforce is exercised here without a
// database.

type fakeJobStore struct {
	mu        sync.Mutex
	jobs      map[uuid.UUID]*model.Job
	byBooking map[uuid.UUID]uuid.UUID
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: make(map[uuid.UUID]*model.Job), byBooking: make(map[uuid.UUID]uuid.UUID)}
}

func (f *fakeJobStore) copy(j *model.Job) *model.Job {
	cp := *j
	return &cp
}

func (f *fakeJobStore) CreateJob(_ context.Context, bookingID uuid.UUID, opensAt, closesAt time.Time, windowHours int) (*model.Job, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.byBooking[bookingID]; ok {
		return f.copy(f.jobs[id]), false, nil
	}
	job := &model.Job{
		ID:                   uuid.New(),
		BookingID:            bookingID,
		Status:               model.JobOpenForBidding,
		BiddingOpensAt:       opensAt,
		BiddingClosesAt:      closesAt,
		BiddingDurationHours: windowHours,
	}
	f.jobs[job.ID] = job
	f.byBooking[bookingID] = job.ID
	return f.copy(job), true, nil
}

func (f *fakeJobStore) GetJob(_ context.Context, _ pgx.Tx, id uuid.UUID, _ bool) (*model.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job: get %s: not found", id)
	}
	return f.copy(j), nil
}

func (f *fakeJobStore) GetJobByBookingID(_ context.Context, bookingID uuid.UUID) (*model.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byBooking[bookingID]
	if !ok {
		return nil, fmt.Errorf("job: get by booking %s: not found", bookingID)
	}
	return f.copy(f.jobs[id]), nil
}

func (f *fakeJobStore) CloseBidding(_ context.Context, jobID uuid.UUID, winningBidID *uuid.UUID, margin *model.Money, acceptanceOpensAt, acceptanceClosesAt *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[jobID]
	if !ok || j.Status != model.JobOpenForBidding {
		return repository.ErrAlreadyProcessed
	}
	if winningBidID == nil {
		j.Status = model.JobNoBidsReceived
		return nil
	}
	j.Status = model.JobPendingAcceptance
	j.WinningBidID = winningBidID
	j.CurrentOfferedBidID = winningBidID
	j.PlatformMargin = margin
	j.AcceptanceOpensAt = acceptanceOpensAt
	j.AcceptanceClosesAt = acceptanceClosesAt
	j.AcceptanceAttemptCount = 1
	return nil
}

func (f *fakeJobStore) ForceCloseBidding(ctx context.Context, jobID uuid.UUID, winningBidID *uuid.UUID, margin *model.Money, acceptanceOpensAt, acceptanceClosesAt *time.Time) error {
	return f.CloseBidding(ctx, jobID, winningBidID, margin, acceptanceOpensAt, acceptanceClosesAt)
}

func (f *fakeJobStore) OfferToNext(_ context.Context, jobID uuid.UUID, expectedCurrentBidID, nextBidID uuid.UUID, margin model.Money, acceptanceOpensAt, acceptanceClosesAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[jobID]
	if !ok || j.Status != model.JobPendingAcceptance || j.CurrentOfferedBidID == nil || *j.CurrentOfferedBidID != expectedCurrentBidID {
		return repository.ErrAlreadyProcessed
	}
	j.CurrentOfferedBidID = &nextBidID
	j.WinningBidID = &nextBidID
	j.PlatformMargin = &margin
	j.AcceptanceOpensAt = &acceptanceOpensAt
	j.AcceptanceClosesAt = &acceptanceClosesAt
	j.AcceptanceAttemptCount++
	return nil
}

func (f *fakeJobStore) Assign(_ context.Context, jobID, expectedOfferedBidID, operatorID uuid.UUID, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[jobID]
	if !ok || j.Status != model.JobPendingAcceptance || j.CurrentOfferedBidID == nil || *j.CurrentOfferedBidID != expectedOfferedBidID {
		return repository.ErrAlreadyProcessed
	}
	if j.AcceptanceClosesAt == nil || j.AcceptanceClosesAt.Before(now) {
		return repository.ErrAlreadyProcessed
	}
	j.Status = model.JobAssigned
	j.AssignedOperatorID = &operatorID
	return nil
}

func (f *fakeJobStore) NoBidsReceived(_ context.Context, jobID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[jobID]
	if !ok || j.Status != model.JobPendingAcceptance {
		return repository.ErrAlreadyProcessed
	}
	j.Status = model.JobNoBidsReceived
	return nil
}

func (f *fakeJobStore) CancelJob(_ context.Context, jobID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[jobID]
	if !ok {
		return repository.ErrAlreadyProcessed
	}
	switch j.Status {
	case model.JobCancelled, model.JobCompleted, model.JobAssigned:
		return repository.ErrAlreadyProcessed
	}
	j.Status = model.JobCancelled
	return nil
}

func (f *fakeJobStore) CompleteJob(_ context.Context, jobID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[jobID]
	if !ok || j.Status != model.JobAssigned {
		return repository.ErrAlreadyProcessed
	}
	now := time.Now()
	j.Status = model.JobCompleted
	j.CompletedAt = &now
	return nil
}

func (f *fakeJobStore) ReopenBidding(_ context.Context, jobID uuid.UUID, opensAt, closesAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[jobID]
	if !ok || j.Status != model.JobNoBidsReceived {
		return repository.ErrAlreadyProcessed
	}
	j.Status = model.JobOpenForBidding
	j.BiddingOpensAt = opensAt
	j.BiddingClosesAt = closesAt
	j.WinningBidID = nil
	j.CurrentOfferedBidID = nil
	j.AcceptanceOpensAt = nil
	j.AcceptanceClosesAt = nil
	j.AcceptanceAttemptCount = 0
	return nil
}

func (f *fakeJobStore) ManualAssign(_ context.Context, jobID, operatorID, winningBidID uuid.UUID, margin model.Money) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[jobID]
	if !ok {
		return repository.ErrAlreadyProcessed
	}
	switch j.Status {
	case model.JobAssigned, model.JobCancelled, model.JobCompleted, model.JobNoBidsReceived:
		return repository.ErrAlreadyProcessed
	}
	j.Status = model.JobAssigned
	j.AssignedOperatorID = &operatorID
	j.WinningBidID = &winningBidID
	j.CurrentOfferedBidID = &winningBidID
	j.PlatformMargin = &margin
	return nil
}

type fakeBidStore struct {
	mu   sync.Mutex
	bids map[uuid.UUID]*model.Bid
}

func newFakeBidStore() *fakeBidStore {
	return &fakeBidStore{bids: make(map[uuid.UUID]*model.Bid)}
}

// seed inserts a bid directly, bypassing PlaceBid, so scenario tests can
// control submittedAt ordering deterministically.
func (f *fakeBidStore) seed(b model.Bid) model.Bid {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	cp := b
	f.bids[b.ID] = &cp
	return b
}

func (f *fakeBidStore) PlaceBid(_ context.Context, jobID, operatorID uuid.UUID, amount model.Money, notes *string) (*model.Bid, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := &model.Bid{
		ID: uuid.New(), JobID: jobID, OperatorID: operatorID, Amount: amount,
		Notes: notes, Status: model.BidPending, SubmittedAt: time.Now(),
	}
	f.bids[b.ID] = b
	cp := *b
	return &cp, nil
}

func (f *fakeBidStore) UpdateBidAmount(_ context.Context, bidID uuid.UUID, amount model.Money, notes *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bids[bidID]
	if !ok || b.Status != model.BidPending {
		return repository.ErrAlreadyProcessed
	}
	b.Amount = amount
	b.Notes = notes
	return nil
}

func (f *fakeBidStore) WithdrawBid(_ context.Context, bidID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bids[bidID]
	if !ok || b.Status != model.BidPending {
		return repository.ErrAlreadyProcessed
	}
	b.Status = model.BidWithdrawn
	return nil
}

func (f *fakeBidStore) GetBid(_ context.Context, id uuid.UUID) (*model.Bid, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bids[id]
	if !ok {
		return nil, fmt.Errorf("bid: get %s: not found", id)
	}
	cp := *b
	return &cp, nil
}

func (f *fakeBidStore) ListPendingOrdered(_ context.Context, jobID uuid.UUID) ([]model.Bid, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Bid
	for _, b := range f.bids {
		if b.JobID == jobID && b.Status == model.BidPending {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Amount.Equal(out[j].Amount) {
			return out[i].Amount.LessThan(out[j].Amount)
		}
		return out[i].SubmittedAt.Before(out[j].SubmittedAt)
	})
	return out, nil
}

func (f *fakeBidStore) MarkOffered(_ context.Context, bidID uuid.UUID, offeredAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bids[bidID]
	if !ok || b.Status != model.BidPending {
		return repository.ErrAlreadyProcessed
	}
	b.Status = model.BidOffered
	b.OfferedAt = &offeredAt
	return nil
}

func (f *fakeBidStore) MarkWon(_ context.Context, bidID, jobID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bids[bidID]
	if !ok || b.Status != model.BidOffered {
		return repository.ErrAlreadyProcessed
	}
	now := time.Now()
	b.Status = model.BidWon
	b.RespondedAt = &now
	for _, other := range f.bids {
		if other.JobID == jobID && other.ID != bidID && (other.Status == model.BidPending || other.Status == model.BidOffered) {
			other.Status = model.BidLost
		}
	}
	return nil
}

func (f *fakeBidStore) MarkDeclined(_ context.Context, bidID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bids[bidID]
	if !ok || b.Status != model.BidOffered {
		return repository.ErrAlreadyProcessed
	}
	now := time.Now()
	b.Status = model.BidDeclined
	b.RespondedAt = &now
	return nil
}

func (f *fakeBidStore) CreateManualWonBid(_ context.Context, jobID, operatorID uuid.UUID, amount model.Money) (*model.Bid, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	b := &model.Bid{
		ID: uuid.New(), JobID: jobID, OperatorID: operatorID, Amount: amount,
		Status: model.BidWon, SubmittedAt: now, OfferedAt: &now, RespondedAt: &now,
	}
	f.bids[b.ID] = b
	for _, other := range f.bids {
		if other.JobID == jobID && other.ID != b.ID && (other.Status == model.BidPending || other.Status == model.BidOffered) {
			other.Status = model.BidLost
		}
	}
	cp := *b
	return &cp, nil
}

func (f *fakeBidStore) ListByOperator(_ context.Context, operatorID uuid.UUID) ([]model.Bid, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Bid
	for _, b := range f.bids {
		if b.OperatorID == operatorID && b.Status == model.BidOffered {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	return out, nil
}

type fakeBookingStore struct {
	mu       sync.Mutex
	bookings map[uuid.UUID]*model.Booking
}

func newFakeBookingStore() *fakeBookingStore {
	return &fakeBookingStore{bookings: make(map[uuid.UUID]*model.Booking)}
}

func (f *fakeBookingStore) Upsert(_ context.Context, b model.Booking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := b
	f.bookings[b.ID] = &cp
	return nil
}

func (f *fakeBookingStore) GetBooking(_ context.Context, id uuid.UUID) (*model.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok {
		return nil, fmt.Errorf("booking: get %s: not found", id)
	}
	cp := *b
	return &cp, nil
}

func (f *fakeBookingStore) SetStatus(_ context.Context, id uuid.UUID, status model.BookingStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok {
		return fmt.Errorf("booking: set status %s: not found", id)
	}
	b.Status = status
	return nil
}

type fakeOperatorStore struct {
	mu        sync.Mutex
	operators map[uuid.UUID]*model.Operator
}

func newFakeOperatorStore() *fakeOperatorStore {
	return &fakeOperatorStore{operators: make(map[uuid.UUID]*model.Operator)}
}

func (f *fakeOperatorStore) put(op model.Operator) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := op
	f.operators[op.ID] = &cp
}

func (f *fakeOperatorStore) GetOperator(_ context.Context, id uuid.UUID) (*model.Operator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	op, ok := f.operators[id]
	if !ok {
		return nil, fmt.Errorf("operator: get %s: not found", id)
	}
	cp := *op
	return &cp, nil
}

func (f *fakeOperatorStore) ListEligible(_ context.Context, vehicleType, postcodePrefix string, postcodeFilteringEnabled bool) ([]model.Operator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []uuid.UUID
	for _, op := range f.operators {
		if op.ApprovalStatus != model.ApprovalApproved {
			continue
		}
		if !containsVehicleType(op.VehicleTypes, vehicleType) {
			continue
		}
		if postcodeFilteringEnabled {
			matched := false
			for _, sa := range op.ServiceAreas {
				if sa == postcodePrefix {
					matched = true
					break
				}
			}
			if !matched {
				continue
			}
		}
		ids = append(ids, op.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	out := make([]model.Operator, 0, len(ids))
	for _, id := range ids {
		out = append(out, *f.operators[id])
	}
	return out, nil
}

// fakeTimerScheduler records Schedule/Cancel calls without running any
// dispatch loop; scenario tests invoke the Auction Engine's timer handlers
// directly (as AdminService.ForceCloseBidding already does in production)
// instead of going through a real ticker.
type fakeTimerScheduler struct {
	mu        sync.Mutex
	scheduled []scheduledTimer
	cancelled []scheduledTimer
	handlers  map[model.TimerKind]TimerHandler
}

type scheduledTimer struct {
	kind    model.TimerKind
	jobID   uuid.UUID
	attempt int
	fireAt  time.Time
}

func newFakeTimerScheduler() *fakeTimerScheduler {
	return &fakeTimerScheduler{handlers: make(map[model.TimerKind]TimerHandler)}
}

func (f *fakeTimerScheduler) Schedule(_ context.Context, kind model.TimerKind, jobID uuid.UUID, attempt int, fireAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled = append(f.scheduled, scheduledTimer{kind, jobID, attempt, fireAt})
	return nil
}

func (f *fakeTimerScheduler) Cancel(_ context.Context, kind model.TimerKind, jobID uuid.UUID, attempt int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, scheduledTimer{kind: kind, jobID: jobID, attempt: attempt})
	return nil
}

func (f *fakeTimerScheduler) RegisterHandler(kind model.TimerKind, handler TimerHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[kind] = handler
}
