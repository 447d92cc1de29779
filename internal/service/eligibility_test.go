package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aeromarket/transfercore/internal/apperr"
	"github.com/aeromarket/transfercore/internal/model"
	"github.com/aeromarket/transfercore/internal/settings"
)

func newEligibilityHarness() (*fakeOperatorStore, *EligibilityService) {
	viper.Set("AUCTION_POSTCODE_FILTERING_ENABLED", false)
	ops := newFakeOperatorStore()
	return ops, &EligibilityService{operatorRepo: ops, settings: settings.NewProvider()}
}

func TestContainsVehicleType(t *testing.T) {
	assert.True(t, containsVehicleType([]string{"SALOON", "MPV"}, "MPV"))
	assert.False(t, containsVehicleType([]string{"SALOON"}, "MPV"))
	assert.False(t, containsVehicleType(nil, "MPV"))
}

func TestDocumentsCurrent(t *testing.T) {
	now := time.Now()
	future := now.Add(24 * time.Hour)
	past := now.Add(-24 * time.Hour)

	cases := []struct {
		name string
		docs []model.Document
		want bool
	}{
		{"both present and unexpired", []model.Document{
			{Type: model.DocOperatingLicense, ExpiresAt: &future},
			{Type: model.DocInsurance, ExpiresAt: &future},
		}, true},
		{"missing insurance", []model.Document{
			{Type: model.DocOperatingLicense, ExpiresAt: &future},
		}, false},
		{"license expired", []model.Document{
			{Type: model.DocOperatingLicense, ExpiresAt: &past},
			{Type: model.DocInsurance, ExpiresAt: &future},
		}, false},
		{"no expiry set is always current", []model.Document{
			{Type: model.DocOperatingLicense},
			{Type: model.DocInsurance},
		}, true},
		{"no documents at all", nil, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			op := model.Operator{Documents: c.docs}
			assert.Equal(t, c.want, documentsCurrent(op, now))
		})
	}
}

func TestEligibleOperators_FiltersByApprovalVehicleTypeAndDocuments(t *testing.T) {
	ops, svc := newEligibilityHarness()
	approvedCurrent := approvedOperator("SALOON")
	suspended := approvedOperator("SALOON")
	suspended.ApprovalStatus = model.ApprovalSuspended
	wrongVehicle := approvedOperator("MPV")
	expiredDocs := approvedOperator("SALOON")
	past := time.Now().Add(-time.Hour)
	expiredDocs.Documents[0].ExpiresAt = &past

	ops.put(approvedCurrent)
	ops.put(suspended)
	ops.put(wrongVehicle)
	ops.put(expiredDocs)

	booking := model.Booking{ID: uuid.New(), VehicleType: "SALOON"}
	eligible, err := svc.EligibleOperators(context.Background(), booking)
	require.NoError(t, err)
	require.Len(t, eligible, 1)
	assert.Equal(t, approvedCurrent.ID, eligible[0].ID)
}

func TestEligibleOperators_SuppressesBroadcastWhenPostcodeFilteringEnabledButAbsent(t *testing.T) {
	ops, svc := newEligibilityHarness()
	viper.Set("AUCTION_POSTCODE_FILTERING_ENABLED", true)
	ops.put(approvedOperator("SALOON"))

	booking := model.Booking{ID: uuid.New(), VehicleType: "SALOON", PickupPostcode: nil}
	eligible, err := svc.EligibleOperators(context.Background(), booking)
	require.NoError(t, err)
	assert.Nil(t, eligible, "broadcast must be suppressed, not sent to zero recipients")
}

func TestEligibleOperators_MatchesOnPostcodePrefixWhenFilteringEnabled(t *testing.T) {
	ops, svc := newEligibilityHarness()
	viper.Set("AUCTION_POSTCODE_FILTERING_ENABLED", true)
	inArea := approvedOperator("SALOON")
	inArea.ServiceAreas = []string{"SW1"}
	outOfArea := approvedOperator("SALOON")
	outOfArea.ServiceAreas = []string{"E14"}
	ops.put(inArea)
	ops.put(outOfArea)

	postcode := "sw1 1aa"
	booking := model.Booking{ID: uuid.New(), VehicleType: "SALOON", PickupPostcode: &postcode}
	eligible, err := svc.EligibleOperators(context.Background(), booking)
	require.NoError(t, err)
	require.Len(t, eligible, 1)
	assert.Equal(t, inArea.ID, eligible[0].ID)
}

func TestCheck_RejectsSuspendedOperator(t *testing.T) {
	ops, svc := newEligibilityHarness()
	op := approvedOperator("SALOON")
	op.ApprovalStatus = model.ApprovalSuspended
	ops.put(op)

	err := svc.Check(context.Background(), op.ID, model.Booking{VehicleType: "SALOON"})
	require.Error(t, err)
	kind, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindForbidden, kind)
}

func TestCheck_AcceptsApprovedEligibleOperator(t *testing.T) {
	ops, svc := newEligibilityHarness()
	op := approvedOperator("SALOON")
	ops.put(op)

	require.NoError(t, svc.Check(context.Background(), op.ID, model.Booking{VehicleType: "SALOON"}))
}
