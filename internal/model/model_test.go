package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestJobStatusIsTerminal(t *testing.T) {
	terminal := []JobStatus{JobAssigned, JobNoBidsReceived, JobCancelled, JobCompleted}
	for _, s := range terminal {
		assert.True(t, s.IsTerminal(), "%s should be terminal", s)
	}

	nonTerminal := []JobStatus{JobOpenForBidding, JobBiddingClosed, JobPendingAcceptance}
	for _, s := range nonTerminal {
		assert.False(t, s.IsTerminal(), "%s should not be terminal", s)
	}
}

func TestDocumentExpired(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	noExpiry := Document{Type: DocInsurance}
	assert.False(t, noExpiry.Expired(now))

	past := now.Add(-24 * time.Hour)
	expired := Document{Type: DocOperatingLicense, ExpiresAt: &past}
	assert.True(t, expired.Expired(now))

	future := now.Add(24 * time.Hour)
	current := Document{Type: DocOperatingLicense, ExpiresAt: &future}
	assert.False(t, current.Expired(now))
}
