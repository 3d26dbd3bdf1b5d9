package purchase

import (
	"fmt"
	"time"

	"github.com/keymasterhq/keymaster/internal/platform/paddle"
)

// licenseExpiry derives the license expiry from a transaction's line items.
// Any item priced without a billing cycle denotes a lifetime product and the
// license never expires. Otherwise the first recurring item's cycle sets the
// expiry as now + interval * frequency.
func licenseExpiry(items []paddle.TransactionItem, now time.Time) (*time.Time, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("transaction has no line items")
	}

	for _, item := range items {
		if item.Price != nil && item.Price.BillingCycle == nil {
			return nil, nil // lifetime
		}
	}

	for _, item := range items {
		if item.Price == nil || item.Price.BillingCycle == nil {
			continue
		}
		cycle := item.Price.BillingCycle
		freq := cycle.Frequency
		if freq <= 0 {
			freq = 1
		}
		var expires time.Time
		switch cycle.Interval {
		case "month":
			expires = now.AddDate(0, freq, 0)
		case "year":
			expires = now.AddDate(freq, 0, 0)
		default:
			return nil, fmt.Errorf("unsupported billing interval %q", cycle.Interval)
		}
		return &expires, nil
	}

	return nil, fmt.Errorf("transaction has no priced line items")
}
