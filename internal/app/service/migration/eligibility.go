package migration

import (
	"errors"
	"time"

	"github.com/keymasterhq/keymaster/internal/platform/revenuecat"
	types "github.com/keymasterhq/keymaster/pkg/types"
)

// ErrNoEligiblePurchase is returned when none of the account's active
// entitlements qualifies for a license.
var ErrNoEligiblePurchase = errors.New("no eligible purchase found")

// annualThresholdMonths is how far out an entitlement must expire to count
// as an annual subscription. Slightly under a full year to absorb billing
// date jitter.
const annualThresholdMonths = 11

// selectEligibleEntitlement picks the first entitlement that is either
// lifetime (no expiry) or expires at least 11 months from now (annual).
// The winner determines the subscription type label and license expiry.
func selectEligibleEntitlement(entitlements []revenuecat.Entitlement, now time.Time) (*revenuecat.Entitlement, types.SubscriptionType, error) {
	cutoff := now.AddDate(0, annualThresholdMonths, 0)
	for i := range entitlements {
		e := &entitlements[i]
		if e.ExpiresAt == nil {
			return e, types.SubscriptionTypeLifetime, nil
		}
		if !e.ExpiresAt.Before(cutoff) {
			return e, types.SubscriptionTypeAnnual, nil
		}
	}
	return nil, "", ErrNoEligiblePurchase
}
