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
)

// requiredDocumentTypes are the documents every bidding operator must hold
// current, per rule 3.
var requiredDocumentTypes = []model.DocumentType{model.DocOperatingLicense, model.DocInsurance}

// EligibilityService implements the C2 Eligibility Filter: which operators
// may see and bid on a given Booking.
//
// Rules, applied in order:
//  1. approval_status must be APPROVED.
//  2. the operator's vehicle_types must include the booking's vehicle_type.
//  3. every operator_document must be current (not expired) as of now.
//  4. when postcode filtering is enabled, one of the operator's
//     service_areas must match the booking's pickup postcode prefix.
type EligibilityService struct {
	operatorRepo operatorStore
	settings     *settings.Provider
}

// NewEligibilityService creates an eligibility service.
func NewEligibilityService(operatorRepo *repository.OperatorRepository, settingsProvider *settings.Provider) *EligibilityService {
	return &EligibilityService{operatorRepo: operatorRepo, settings: settingsProvider}
}

// EligibleOperators returns every operator allowed to bid on booking,
// deduplicated and ordered by operator id for deterministic broadcast
// ordering.
func (s *EligibilityService) EligibleOperators(ctx context.Context, booking model.Booking) ([]model.Operator, error) {
	filteringEnabled := s.settings.PostcodeFilteringEnabled()

	if filteringEnabled && booking.PickupPostcode == nil {
		log.Warn().Str("booking_id", booking.ID.String()).
			Msg("eligibility: postcode filtering is enabled but booking has no pickup postcode, broadcast suppressed")
		return nil, nil
	}

	var prefix string
	if filteringEnabled {
		prefix = settings.PostcodePrefix(*booking.PickupPostcode)
	}

	candidates, err := s.operatorRepo.ListEligible(ctx, booking.VehicleType, prefix, filteringEnabled)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	eligible := make([]model.Operator, 0, len(candidates))
	for _, op := range candidates {
		if documentsCurrent(op, now) {
			eligible = append(eligible, op)
		} else {
			log.Debug().Str("operator_id", op.ID.String()).Msg("eligibility: excluded for missing or expired document")
		}
	}
	return eligible, nil
}

// Check re-validates rules (1)-(3) for a single operator at bid-submission
// time: an operator may have been approved and broadcast to, then gone
// stale — suspended, or a document lapsed — before placing or revising a
// bid.
func (s *EligibilityService) Check(ctx context.Context, operatorID uuid.UUID, booking model.Booking) error {
	op, err := s.operatorRepo.GetOperator(ctx, operatorID)
	if err != nil {
		return apperr.NotFound("operator %s: %v", operatorID, err)
	}
	if op.ApprovalStatus != model.ApprovalApproved {
		return apperr.Forbidden("operator %s is not approved", operatorID)
	}
	if !containsVehicleType(op.VehicleTypes, booking.VehicleType) {
		return apperr.Validation("operator %s does not support vehicle type %s", operatorID, booking.VehicleType)
	}
	if !documentsCurrent(*op, time.Now()) {
		return apperr.Validation("operator %s has missing or expired documents", operatorID)
	}
	return nil
}

func containsVehicleType(vehicleTypes []string, vehicleType string) bool {
	for _, vt := range vehicleTypes {
		if vt == vehicleType {
			return true
		}
	}
	return false
}

// documentsCurrent reports whether the operator holds a current (not
// expired) document of every required type.
func documentsCurrent(op model.Operator, now time.Time) bool {
	held := make(map[model.DocumentType]bool, len(requiredDocumentTypes))
	for _, doc := range op.Documents {
		if doc.Expired(now) {
			return false
		}
		held[doc.Type] = true
	}
	for _, required := range requiredDocumentTypes {
		if !held[required] {
			return false
		}
	}
	return true
}
