package license

import (
	"testing"
	"time"

	models "github.com/keymasterhq/keymaster/internal/models"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
)

func TestEvaluate_PrecedenceAndEffects(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name          string
		lic           *models.License
		activeDevices int
		deviceActive  bool
		wantValid     bool
		wantMessage   string
		wantExpire    bool
		wantNewAct    bool
	}{
		{
			name:        "revoked wins over expiry",
			lic:         &models.License{Status: models.LicenseStatusRevoked, ExpiresAt: &past, MaxActivations: 5},
			wantMessage: MsgRevoked,
		},
		{
			name:        "suspended",
			lic:         &models.License{Status: models.LicenseStatusSuspended, MaxActivations: 5},
			wantMessage: MsgSuspended,
		},
		{
			name:        "expired persists status",
			lic:         &models.License{Status: models.LicenseStatusActive, ExpiresAt: &past, MaxActivations: 5},
			wantMessage: MsgExpired,
			wantExpire:  true,
		},
		{
			name:        "already expired does not re-persist",
			lic:         &models.License{Status: models.LicenseStatusExpired, ExpiresAt: &past, MaxActivations: 5},
			wantMessage: MsgExpired,
		},
		{
			name:          "activation ceiling",
			lic:           &models.License{Status: models.LicenseStatusActive, MaxActivations: 1},
			activeDevices: 1,
			wantMessage:   MsgMaxActivations,
		},
		{
			name:          "same device re-validation is idempotent at the ceiling",
			lic:           &models.License{Status: models.LicenseStatusActive, MaxActivations: 1},
			activeDevices: 1,
			deviceActive:  true,
			wantValid:     true,
			wantMessage:   MsgValid,
		},
		{
			name:        "fresh device consumes a slot",
			lic:         &models.License{Status: models.LicenseStatusActive, ExpiresAt: &future, MaxActivations: 5},
			wantValid:   true,
			wantMessage: MsgValid,
			wantNewAct:  true,
		},
		{
			name:        "no expiry is valid forever",
			lic:         &models.License{Status: models.LicenseStatusActive, MaxActivations: 5},
			wantValid:   true,
			wantMessage: MsgValid,
			wantNewAct:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := evaluate(tt.lic, tt.activeDevices, tt.deviceActive, now)
			assert.Equal(t, tt.wantValid, v.valid)
			assert.Equal(t, tt.wantMessage, v.message)
			assert.Equal(t, tt.wantExpire, v.markExpired)
			assert.Equal(t, tt.wantNewAct, v.newActivation)
		})
	}
}

func TestLicenseExpired(t *testing.T) {
	now := time.Now()
	assert.False(t, (&models.License{}).Expired(now))
	assert.False(t, (&models.License{ExpiresAt: lo.ToPtr(now.Add(time.Minute))}).Expired(now))
	assert.True(t, (&models.License{ExpiresAt: lo.ToPtr(now.Add(-time.Minute))}).Expired(now))
}
