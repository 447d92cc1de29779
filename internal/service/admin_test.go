package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aeromarket/transfercore/internal/apperr"
	"github.com/aeromarket/transfercore/internal/model"
)

func newAdminHarness() (*engineHarness, *AdminService) {
	h := newEngineHarness()
	return h, NewAdminService(h.engine)
}

func TestForceCloseBidding_SelectsLowestBidLikeTheTimerWould(t *testing.T) {
	h, admin := newAdminHarness()
	operatorA, operatorB := uuid.New(), uuid.New()
	job, _ := h.seedJobWithBids(t, 100, map[uuid.UUID]float64{operatorA: 90, operatorB: 80})

	require.NoError(t, admin.ForceCloseBidding(context.Background(), job.ID))

	updated, err := h.jobs.GetJob(context.Background(), nil, job.ID, false)
	require.NoError(t, err)
	assert.Equal(t, model.JobPendingAcceptance, updated.Status)
	winningBid, err := h.bids.GetBid(context.Background(), *updated.CurrentOfferedBidID)
	require.NoError(t, err)
	assert.Equal(t, operatorB, winningBid.OperatorID)
}

func TestForceCloseBidding_RejectsJobNotOpen(t *testing.T) {
	h, admin := newAdminHarness()
	job, _ := h.seedJobWithBids(t, 100, map[uuid.UUID]float64{uuid.New(): 90})
	require.NoError(t, admin.ForceCloseBidding(context.Background(), job.ID))

	err := admin.ForceCloseBidding(context.Background(), job.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrConflict))
}

func TestManualAssign_CreatesSyntheticWonBidAndLosesTheRest(t *testing.T) {
	h, admin := newAdminHarness()
	operatorA, operatorB := uuid.New(), uuid.New()
	job, booking := h.seedJobWithBids(t, 100, map[uuid.UUID]float64{operatorA: 90, operatorB: 80})
	adminOperator := uuid.New()

	require.NoError(t, admin.ManualAssign(context.Background(), job.ID, adminOperator, money(70)))

	final, err := h.jobs.GetJob(context.Background(), nil, job.ID, false)
	require.NoError(t, err)
	assert.Equal(t, model.JobAssigned, final.Status)
	assert.Equal(t, adminOperator, *final.AssignedOperatorID)
	require.NotNil(t, final.WinningBidID)
	assert.True(t, final.PlatformMargin.Equal(money(30)), "platformMargin must be customerPrice - amount")

	winningBid, err := h.bids.GetBid(context.Background(), *final.WinningBidID)
	require.NoError(t, err)
	assert.Equal(t, model.BidWon, winningBid.Status)
	assert.Equal(t, adminOperator, winningBid.OperatorID)
	assert.True(t, winningBid.Amount.Equal(money(70)))

	for _, b := range h.bids.bids {
		if b.OperatorID == operatorA || b.OperatorID == operatorB {
			assert.Equal(t, model.BidLost, b.Status)
		}
	}

	reloadedBooking, err := h.bookings.GetBooking(context.Background(), booking.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingAssigned, reloadedBooking.Status)

	require.Len(t, h.notify.received, 1)
	assert.Equal(t, IntentBidWon, h.notify.received[0].Kind)
}

func TestManualAssign_RejectsTerminalJob(t *testing.T) {
	h, admin := newAdminHarness()
	job, _ := h.seedJobWithBids(t, 100, map[uuid.UUID]float64{uuid.New(): 90})
	require.NoError(t, h.jobs.CancelJob(context.Background(), job.ID))

	err := admin.ManualAssign(context.Background(), job.ID, uuid.New(), money(70))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrConflict))
}

func TestReopenBidding_ResetsAnEscalatedJobToOpen(t *testing.T) {
	h, admin := newAdminHarness()
	job, _ := h.seedJobWithBids(t, 100, map[uuid.UUID]float64{})
	require.NoError(t, h.engine.onCloseBidding(context.Background(), job.ID, 0))

	escalated, err := h.jobs.GetJob(context.Background(), nil, job.ID, false)
	require.NoError(t, err)
	require.Equal(t, model.JobNoBidsReceived, escalated.Status)

	require.NoError(t, admin.ReopenBidding(context.Background(), job.ID))

	reopened, err := h.jobs.GetJob(context.Background(), nil, job.ID, false)
	require.NoError(t, err)
	assert.Equal(t, model.JobOpenForBidding, reopened.Status)
	assert.Nil(t, reopened.WinningBidID)
}

func TestReopenBidding_RejectsJobNotEscalated(t *testing.T) {
	h, admin := newAdminHarness()
	job, _ := h.seedJobWithBids(t, 100, map[uuid.UUID]float64{uuid.New(): 90})

	err := admin.ReopenBidding(context.Background(), job.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrConflict))
}

func TestCancelJob_CancelsFromAnyNonTerminalStatus(t *testing.T) {
	h, admin := newAdminHarness()
	job, _ := h.seedJobWithBids(t, 100, map[uuid.UUID]float64{uuid.New(): 90})

	require.NoError(t, admin.CancelJob(context.Background(), job.ID))

	cancelled, err := h.jobs.GetJob(context.Background(), nil, job.ID, false)
	require.NoError(t, err)
	assert.Equal(t, model.JobCancelled, cancelled.Status)
}

func TestCancelJob_RejectsAlreadyTerminalJob(t *testing.T) {
	h, admin := newAdminHarness()
	job, _ := h.seedJobWithBids(t, 100, map[uuid.UUID]float64{uuid.New(): 90})
	require.NoError(t, admin.CancelJob(context.Background(), job.ID))

	err := admin.CancelJob(context.Background(), job.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrConflict))
}

func TestCompleteJob_RequiresAssignedStatus(t *testing.T) {
	h, admin := newAdminHarness()
	job, _ := h.seedJobWithBids(t, 100, map[uuid.UUID]float64{uuid.New(): 90})

	err := admin.CompleteJob(context.Background(), job.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrConflict))

	require.NoError(t, admin.ManualAssign(context.Background(), job.ID, uuid.New(), money(90)))
	require.NoError(t, admin.CompleteJob(context.Background(), job.ID))

	completed, err := h.jobs.GetJob(context.Background(), nil, job.ID, false)
	require.NoError(t, err)
	assert.Equal(t, model.JobCompleted, completed.Status)
	assert.NotNil(t, completed.CompletedAt)
}
