package license

import (
	"context"
	"errors"
	"fmt"
	"time"

	models "github.com/keymasterhq/keymaster/internal/models"
	"github.com/keymasterhq/keymaster/pkg/tool"

	"gorm.io/gorm"
)

// DeviceInfo is the optional request metadata accompanying a validation or
// deactivation call.
type DeviceInfo struct {
	Fingerprint string `json:"device_fingerprint"`
	IPAddress   string `json:"ip_address"`
	UserAgent   string `json:"user_agent"`
}

type ValidationResult struct {
	Valid   bool            `json:"valid"`
	Message string          `json:"message"`
	License *models.License `json:"license"`
}

// Validate runs the validation state machine for a presented key and applies
// its side effects: persisting expiry, and consuming a device slot for a new
// fingerprint. Every invocation appends an audit row regardless of outcome.
func (s *Service) Validate(ctx context.Context, key string, dev DeviceInfo) (*ValidationResult, error) {
	lic, err := s.GetByKey(ctx, key)
	if err != nil {
		if errors.Is(err, ErrLicenseNotFound) {
			s.audit(ctx, nil, key, false, MsgKeyNotFound, dev)
			return &ValidationResult{Valid: false, Message: MsgKeyNotFound}, nil
		}
		return nil, err
	}

	var v verdict
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		activeDevices, deviceActive, err := s.activationState(ctx, tx, lic.ID, dev.Fingerprint)
		if err != nil {
			return err
		}

		v = evaluate(lic, activeDevices, deviceActive, time.Now())

		if v.markExpired {
			lic.Status = models.LicenseStatusExpired
			if err := tx.Model(lic).Update("status", models.LicenseStatusExpired).Error; err != nil {
				return fmt.Errorf("failed to persist expiry: %w", err)
			}
		}
		if v.newActivation {
			now := time.Now()
			act := &models.LicenseActivation{
				ID:                tool.GenerateUUIDV7(),
				LicenseID:         lic.ID,
				DeviceFingerprint: dev.Fingerprint,
				IPAddress:         dev.IPAddress,
				UserAgent:         dev.UserAgent,
				ActivatedAt:       now,
			}
			if err := tx.Create(act).Error; err != nil {
				return fmt.Errorf("failed to create activation: %w", err)
			}
			lic.ActivationCount = activeDevices + 1
			updates := map[string]any{"activation_count": lic.ActivationCount}
			if lic.ActivatedAt == nil {
				lic.ActivatedAt = &now
				updates["activated_at"] = now
			}
			if err := tx.Model(lic).Updates(updates).Error; err != nil {
				return fmt.Errorf("failed to update activation count: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to validate license: %w", err)
	}

	s.audit(ctx, &lic.ID, key, v.valid, v.message, dev)

	res := &ValidationResult{Valid: v.valid, Message: v.message}
	if v.valid {
		res.License = lic
	}
	return res, nil
}

// Check is the read-only variant of Validate: same precedence chain, no side
// effects of any kind (no expiry persistence, no slot consumption, no audit).
func (s *Service) Check(ctx context.Context, key string, dev DeviceInfo) (*ValidationResult, error) {
	lic, err := s.GetByKey(ctx, key)
	if err != nil {
		if errors.Is(err, ErrLicenseNotFound) {
			return &ValidationResult{Valid: false, Message: MsgKeyNotFound}, nil
		}
		return nil, err
	}

	activeDevices, deviceActive, err := s.activationState(ctx, s.db, lic.ID, dev.Fingerprint)
	if err != nil {
		return nil, err
	}
	v := evaluate(lic, activeDevices, deviceActive, time.Now())
	res := &ValidationResult{Valid: v.valid, Message: v.message}
	if v.valid {
		res.License = lic
	}
	return res, nil
}

// Deactivate frees the activation slot held by the given fingerprint.
func (s *Service) Deactivate(ctx context.Context, key string, dev DeviceInfo) error {
	lic, err := s.GetByKey(ctx, key)
	if err != nil {
		if errors.Is(err, ErrLicenseNotFound) {
			s.audit(ctx, nil, key, false, "Deactivation: "+MsgKeyNotFound, dev)
			return ErrLicenseNotFound
		}
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("license_id = ? AND device_fingerprint = ?", lic.ID, dev.Fingerprint).
			Delete(&models.LicenseActivation{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete activation: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrDeviceNotActivated
		}
		return tx.Model(lic).Update("activation_count", gorm.Expr("activation_count - 1")).Error
	})
	if err != nil {
		if errors.Is(err, ErrDeviceNotActivated) {
			s.audit(ctx, &lic.ID, key, false, "Deactivation: device not activated", dev)
			return err
		}
		return err
	}

	s.audit(ctx, &lic.ID, key, true, "Deactivation: device deactivated", dev)
	return nil
}

func (s *Service) activationState(ctx context.Context, tx *gorm.DB, licenseID, fingerprint string) (activeDevices int, deviceActive bool, err error) {
	var count int64
	if err := tx.WithContext(ctx).Model(&models.LicenseActivation{}).
		Where("license_id = ?", licenseID).Count(&count).Error; err != nil {
		return 0, false, fmt.Errorf("failed to count activations: %w", err)
	}
	var deviceCount int64
	if err := tx.WithContext(ctx).Model(&models.LicenseActivation{}).
		Where("license_id = ? AND device_fingerprint = ?", licenseID, fingerprint).
		Count(&deviceCount).Error; err != nil {
		return 0, false, fmt.Errorf("failed to check device activation: %w", err)
	}
	return int(count), deviceCount > 0, nil
}
