// Package model contains the domain types for the transfer-booking auction
// core. These structs map to the PostgreSQL schema defined in
// migrations/001_create_schema.up.sql.
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ─── Enums ──────────────────────────────────────────────────

// JourneyType classifies a booking's leg so the Settings Provider can pick
// the right bidding-window duration.
type JourneyType string

const (
	JourneyOneWay   JourneyType = "ONE_WAY"
	JourneyOutbound JourneyType = "OUTBOUND"
	JourneyReturn   JourneyType = "RETURN"
)

// BookingStatus tracks the local read-model of a consumed Booking. The core
// writes PAID (on BookingPaid), ASSIGNED (on accept / manual assign) and
// CANCELLED (on BookingCancelled); PENDING_PAYMENT is never written by it.
type BookingStatus string

const (
	BookingPendingPayment BookingStatus = "PENDING_PAYMENT"
	BookingPaidStatus     BookingStatus = "PAID"
	BookingAssigned       BookingStatus = "ASSIGNED"
	BookingCancelled      BookingStatus = "CANCELLED"
)

// JobStatus is the Job state machine's state. BIDDING_CLOSED is transient:
// the close-bidding transition folds straight into PENDING_ACCEPTANCE or
// NO_BIDS_RECEIVED inside one transaction, so it is never actually
// persisted — it exists here only to document the machine.
type JobStatus string

const (
	JobOpenForBidding    JobStatus = "OPEN_FOR_BIDDING"
	JobBiddingClosed     JobStatus = "BIDDING_CLOSED" // transient, never committed
	JobPendingAcceptance JobStatus = "PENDING_ACCEPTANCE"
	JobAssigned          JobStatus = "ASSIGNED"
	JobNoBidsReceived    JobStatus = "NO_BIDS_RECEIVED"
	JobCancelled         JobStatus = "CANCELLED"
	JobCompleted         JobStatus = "COMPLETED"
)

// IsTerminal reports whether a Job in this status is out of the automatic
// auction flow and closed to cancel and manual assign. Only admin
// operations move it on: CompleteJob (ASSIGNED to COMPLETED) and
// ReopenBidding (NO_BIDS_RECEIVED to OPEN_FOR_BIDDING).
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobAssigned, JobNoBidsReceived, JobCancelled, JobCompleted:
		return true
	default:
		return false
	}
}

// BidStatus tracks a single Bid's place in the cascade.
type BidStatus string

const (
	BidPending   BidStatus = "PENDING"
	BidOffered   BidStatus = "OFFERED"
	BidWon       BidStatus = "WON"
	BidLost      BidStatus = "LOST"
	BidDeclined  BidStatus = "DECLINED"
	BidWithdrawn BidStatus = "WITHDRAWN"
)

// ApprovalStatus gates whether an Operator may receive or bid on jobs.
type ApprovalStatus string

const (
	ApprovalPending   ApprovalStatus = "PENDING"
	ApprovalApproved  ApprovalStatus = "APPROVED"
	ApprovalRejected  ApprovalStatus = "REJECTED"
	ApprovalSuspended ApprovalStatus = "SUSPENDED"
)

// DocumentType enumerates the document kinds the Eligibility Filter checks
// for currency.
type DocumentType string

const (
	DocOperatingLicense DocumentType = "OPERATING_LICENSE"
	DocInsurance        DocumentType = "INSURANCE"
)

// TimerKind distinguishes the two timer firings the Auction Engine consumes.
type TimerKind string

const (
	TimerCloseBidding      TimerKind = "CLOSE_BIDDING"
	TimerAcceptanceTimeout TimerKind = "ACCEPTANCE_TIMEOUT"
)

// TimerState is the persisted lifecycle of a TimerEntry.
type TimerState string

const (
	TimerScheduled TimerState = "SCHEDULED"
	TimerFired     TimerState = "FIRED"
	TimerCancelled TimerState = "CANCELLED"
)

// EscalationReason explains why a Job could not be assigned automatically.
type EscalationReason string

const (
	ReasonNoBidsReceived     EscalationReason = "NO_BIDS_RECEIVED"
	ReasonAllOperatorsReject EscalationReason = "ALL_OPERATORS_REJECTED"
)

// ─── Money ──────────────────────────────────────────────────

// Money is a fixed-point currency amount (two decimal places). See
// pkg/money for arithmetic helpers; decimal.Decimal already marshals to a
// JSON string so bid amounts never round-trip through a float.
type Money = decimal.Decimal

// ─── Consumed entities ──────────────────────────────────────

// Booking is the core's read-model of the external booking record. It is
// immutable for the auction except for Status, which the Auction Engine
// updates on assignment and cancellation.
type Booking struct {
	ID              uuid.UUID     `json:"id"`
	CustomerID      uuid.UUID     `json:"customer_id"`
	CustomerPrice   Money         `json:"customer_price"`
	PickupPostcode  *string       `json:"pickup_postcode,omitempty"`
	PickupAddress   string        `json:"pickup_address"`
	DropoffAddress  string        `json:"dropoff_address"`
	DropoffPostcode *string       `json:"dropoff_postcode,omitempty"`
	VehicleType     string        `json:"vehicle_type"`
	PickupDatetime  time.Time     `json:"pickup_datetime"`
	JourneyType     JourneyType   `json:"journey_type"`
	BookingGroupID  *uuid.UUID    `json:"booking_group_id,omitempty"`
	Status          BookingStatus `json:"status"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Document is a single credential held by an Operator.
type Document struct {
	Type      DocumentType `json:"type"`
	ExpiresAt *time.Time   `json:"expires_at,omitempty"`
}

// Expired reports whether the document is no longer current as of now.
func (d Document) Expired(now time.Time) bool {
	return d.ExpiresAt != nil && d.ExpiresAt.Before(now)
}

// Operator is a transport provider eligible to bid, gated by the
// Eligibility Filter (C2).
type Operator struct {
	ID             uuid.UUID      `json:"id"`
	Name           string         `json:"name"`
	ApprovalStatus ApprovalStatus `json:"approval_status"`
	ServiceAreas   []string       `json:"service_areas"` // postcode prefixes
	VehicleTypes   []string       `json:"vehicle_types"`
	Documents      []Document     `json:"documents"`
	CompletedJobs  int64          `json:"completed_jobs"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// ─── Owned entities ─────────────────────────────────────────

// Job is the auction for a single Booking — one per booking, never deleted.
type Job struct {
	ID                     uuid.UUID  `json:"id"`
	BookingID              uuid.UUID  `json:"booking_id"`
	Status                 JobStatus  `json:"status"`
	BiddingOpensAt         time.Time  `json:"bidding_opens_at"`
	BiddingClosesAt        time.Time  `json:"bidding_closes_at"`
	BiddingDurationHours   int        `json:"bidding_duration_hours"`
	AssignedOperatorID     *uuid.UUID `json:"assigned_operator_id,omitempty"`
	WinningBidID           *uuid.UUID `json:"winning_bid_id,omitempty"`
	PlatformMargin         *Money     `json:"platform_margin,omitempty"`
	CurrentOfferedBidID    *uuid.UUID `json:"current_offered_bid_id,omitempty"`
	AcceptanceOpensAt      *time.Time `json:"acceptance_opens_at,omitempty"`
	AcceptanceClosesAt     *time.Time `json:"acceptance_closes_at,omitempty"`
	AcceptanceAttemptCount int        `json:"acceptance_attempt_count"`
	CompletedAt            *time.Time `json:"completed_at,omitempty"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

// Bid is a single operator's offer on a Job. At most one non-WITHDRAWN bid
// may exist per (JobID, OperatorID) — enforced logically by the repository
// and by a partial unique index in the schema.
type Bid struct {
	ID          uuid.UUID  `json:"id"`
	JobID       uuid.UUID  `json:"job_id"`
	OperatorID  uuid.UUID  `json:"operator_id"`
	Amount      Money      `json:"amount"`
	Notes       *string    `json:"notes,omitempty"`
	Status      BidStatus  `json:"status"`
	SubmittedAt time.Time  `json:"submitted_at"`
	OfferedAt   *time.Time `json:"offered_at,omitempty"`
	RespondedAt *time.Time `json:"responded_at,omitempty"`
}

// TimerEntry is a persisted delayed-job scheduled by the Timer Service
// (C3). ExternalID is constructed by the caller as
// "<kind>:<jobId>[:<attempt>]" so duplicate scheduling collapses to one row.
type TimerEntry struct {
	ExternalID string     `json:"external_id"`
	Kind       TimerKind  `json:"kind"`
	Payload    []byte     `json:"payload"`
	FireAt     time.Time  `json:"fire_at"`
	State      TimerState `json:"state"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// TimerPayload is the JSON-encoded content of TimerEntry.Payload for both
// timer kinds the core schedules.
type TimerPayload struct {
	JobID   uuid.UUID `json:"job_id"`
	Attempt int       `json:"attempt,omitempty"`
}
