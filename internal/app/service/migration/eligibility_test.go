package migration

import (
	"testing"
	"time"

	"github.com/keymasterhq/keymaster/internal/platform/revenuecat"
	types "github.com/keymasterhq/keymaster/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectEligibleEntitlement_Lifetime(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	ents := []revenuecat.Entitlement{
		{EntitlementID: "pro", ExpiresAt: nil},
	}

	chosen, subType, err := selectEligibleEntitlement(ents, now)
	require.NoError(t, err)
	assert.Equal(t, "pro", chosen.EntitlementID)
	assert.Equal(t, types.SubscriptionTypeLifetime, subType)
}

func TestSelectEligibleEntitlement_Annual(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	exp := now.AddDate(1, 0, 0)
	ents := []revenuecat.Entitlement{
		{EntitlementID: "pro_yearly", ExpiresAt: &exp},
	}

	chosen, subType, err := selectEligibleEntitlement(ents, now)
	require.NoError(t, err)
	assert.Equal(t, "pro_yearly", chosen.EntitlementID)
	assert.Equal(t, types.SubscriptionTypeAnnual, subType)
}

func TestSelectEligibleEntitlement_ExactlyElevenMonths(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	exp := now.AddDate(0, 11, 0)
	ents := []revenuecat.Entitlement{
		{EntitlementID: "pro_yearly", ExpiresAt: &exp},
	}

	_, subType, err := selectEligibleEntitlement(ents, now)
	require.NoError(t, err)
	assert.Equal(t, types.SubscriptionTypeAnnual, subType)
}

func TestSelectEligibleEntitlement_MonthlyRejected(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	exp := now.AddDate(0, 1, 0)
	ents := []revenuecat.Entitlement{
		{EntitlementID: "pro_monthly", ExpiresAt: &exp},
	}

	_, _, err := selectEligibleEntitlement(ents, now)
	assert.ErrorIs(t, err, ErrNoEligiblePurchase)
}

func TestSelectEligibleEntitlement_Empty(t *testing.T) {
	_, _, err := selectEligibleEntitlement(nil, time.Now())
	assert.ErrorIs(t, err, ErrNoEligiblePurchase)
}

func TestSelectEligibleEntitlement_FirstMatchWins(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	monthly := now.AddDate(0, 1, 0)
	yearly := now.AddDate(1, 0, 0)
	ents := []revenuecat.Entitlement{
		{EntitlementID: "pro_monthly", ExpiresAt: &monthly},
		{EntitlementID: "pro_yearly", ExpiresAt: &yearly},
		{EntitlementID: "pro_lifetime", ExpiresAt: nil},
	}

	chosen, subType, err := selectEligibleEntitlement(ents, now)
	require.NoError(t, err)
	assert.Equal(t, "pro_yearly", chosen.EntitlementID)
	assert.Equal(t, types.SubscriptionTypeAnnual, subType)
}
