package purchase

import (
	"testing"
	"time"

	"github.com/keymasterhq/keymaster/internal/platform/paddle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func monthly(freq int) paddle.TransactionItem {
	return paddle.TransactionItem{Price: &paddle.Price{BillingCycle: &paddle.BillingCycle{Interval: "month", Frequency: freq}}}
}

func yearly(freq int) paddle.TransactionItem {
	return paddle.TransactionItem{Price: &paddle.Price{BillingCycle: &paddle.BillingCycle{Interval: "year", Frequency: freq}}}
}

func lifetime() paddle.TransactionItem {
	return paddle.TransactionItem{Price: &paddle.Price{ProductID: "pro_lifetime"}}
}

func TestLicenseExpiry(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	t.Run("monthly", func(t *testing.T) {
		exp, err := licenseExpiry([]paddle.TransactionItem{monthly(1)}, now)
		require.NoError(t, err)
		require.NotNil(t, exp)
		assert.Equal(t, now.AddDate(0, 1, 0), *exp)
	})

	t.Run("quarterly", func(t *testing.T) {
		exp, err := licenseExpiry([]paddle.TransactionItem{monthly(3)}, now)
		require.NoError(t, err)
		assert.Equal(t, now.AddDate(0, 3, 0), *exp)
	})

	t.Run("yearly", func(t *testing.T) {
		exp, err := licenseExpiry([]paddle.TransactionItem{yearly(1)}, now)
		require.NoError(t, err)
		assert.Equal(t, now.AddDate(1, 0, 0), *exp)
	})

	t.Run("lifetime has no expiry", func(t *testing.T) {
		exp, err := licenseExpiry([]paddle.TransactionItem{lifetime()}, now)
		require.NoError(t, err)
		assert.Nil(t, exp)
	})

	t.Run("lifetime wins over recurring items", func(t *testing.T) {
		exp, err := licenseExpiry([]paddle.TransactionItem{monthly(1), lifetime()}, now)
		require.NoError(t, err)
		assert.Nil(t, exp)
	})

	t.Run("zero frequency defaults to one", func(t *testing.T) {
		exp, err := licenseExpiry([]paddle.TransactionItem{yearly(0)}, now)
		require.NoError(t, err)
		assert.Equal(t, now.AddDate(1, 0, 0), *exp)
	})

	t.Run("empty items rejected", func(t *testing.T) {
		_, err := licenseExpiry(nil, now)
		assert.Error(t, err)
	})

	t.Run("unknown interval rejected", func(t *testing.T) {
		items := []paddle.TransactionItem{{Price: &paddle.Price{BillingCycle: &paddle.BillingCycle{Interval: "week", Frequency: 1}}}}
		_, err := licenseExpiry(items, now)
		assert.Error(t, err)
	})
}
