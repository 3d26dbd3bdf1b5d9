// Package migration converts legacy RevenueCat accounts into license keys.
// Each external app user id is converted exactly once.
package migration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/keymasterhq/keymaster/internal/app/service/alerting"
	licsvc "github.com/keymasterhq/keymaster/internal/app/service/license"
	"github.com/keymasterhq/keymaster/internal/app/service/mailqueue"
	models "github.com/keymasterhq/keymaster/internal/models"
	"github.com/keymasterhq/keymaster/internal/platform/revenuecat"
	cfgpkg "github.com/keymasterhq/keymaster/pkg/config"
	"github.com/keymasterhq/keymaster/pkg/logctx"
	"github.com/keymasterhq/keymaster/pkg/retry"
	"github.com/keymasterhq/keymaster/pkg/tool"
	types "github.com/keymasterhq/keymaster/pkg/types"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrUpstreamUnavailable is returned when RevenueCat could not be reached
// after retries. Callers should tell the client to try again later.
var ErrUpstreamUnavailable = errors.New("revenuecat is unavailable")

// EntitlementFetcher is the slice of the RevenueCat API the migrator needs.
type EntitlementFetcher interface {
	GetActiveEntitlements(ctx context.Context, appUserID string) ([]revenuecat.Entitlement, error)
}

type Service struct {
	cfg    *cfgpkg.Config
	db     *gorm.DB
	log    *zap.SugaredLogger
	rc     EntitlementFetcher
	licSvc *licsvc.Service
	queue  *mailqueue.Service
	alerts *alerting.Service
}

func NewService(cfg *cfgpkg.Config, db *gorm.DB, log *zap.SugaredLogger, rc EntitlementFetcher, lic *licsvc.Service, queue *mailqueue.Service, alerts *alerting.Service) *Service {
	return &Service{cfg: cfg, db: db, log: log, rc: rc, licSvc: lic, queue: queue, alerts: alerts}
}

type Request struct {
	RCAppUserID string `json:"rc_app_user_id" binding:"required"`
	Email       string `json:"email" binding:"required,email"`
	Name        string `json:"name"`
}

type Result struct {
	LicenseKey       string                 `json:"license_key"`
	Email            string                 `json:"email"`
	SubscriptionType types.SubscriptionType `json:"subscription_type"`
	AlreadyMigrated  bool                   `json:"already_migrated,omitempty"`
}

// Migrate issues a license for a legacy RevenueCat account. A repeat call for
// the same app user id returns the previously issued key without touching
// RevenueCat again.
func (s *Service) Migrate(ctx context.Context, req Request) (*Result, error) {
	log := logctx.FromCtx(ctx, s.log)

	if prior, err := s.findPrior(ctx, req.RCAppUserID); err != nil {
		return nil, err
	} else if prior != nil {
		return prior, nil
	}

	entitlements, err := s.fetchEntitlements(ctx, req.RCAppUserID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	chosen, subType, err := selectEligibleEntitlement(entitlements, now)
	if err != nil {
		log.Infow("migration_rejected", "rc_app_user_id", req.RCAppUserID, "entitlements", len(entitlements))
		return nil, err
	}

	var result *Result
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// A concurrent call may have won the race since the first lookup; the
		// unique rc_app_user_id index is the final arbiter.
		var existing models.Migration
		err := tx.Where("rc_app_user_id = ?", req.RCAppUserID).First(&existing).Error
		if err == nil {
			var existingLic models.License
			if err := tx.Where("id = ?", existing.LicenseID).First(&existingLic).Error; err != nil {
				return fmt.Errorf("failed to load license for existing migration: %w", err)
			}
			result = &Result{
				LicenseKey:       existingLic.LicenseKey,
				Email:            existing.Email,
				SubscriptionType: existing.SubscriptionType,
				AlreadyMigrated:  true,
			}
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to check existing migration: %w", err)
		}

		user, err := s.findOrCreateUser(ctx, tx, req)
		if err != nil {
			return err
		}

		lic, err := s.licSvc.CreateInTx(ctx, tx, user.ID, chosen.ExpiresAt, map[string]any{
			"source":         string(types.WebhookSourceRevenueCat),
			"rc_app_user_id": req.RCAppUserID,
			"entitlement_id": chosen.EntitlementID,
		})
		if err != nil {
			return err
		}

		m := &models.Migration{
			ID:               tool.GenerateUUIDV7(),
			RCAppUserID:      req.RCAppUserID,
			Email:            req.Email,
			SubscriptionType: subType,
			LicenseID:        lic.ID,
			UserID:           user.ID,
		}
		if err := tx.Create(m).Error; err != nil {
			return fmt.Errorf("failed to create migration: %w", err)
		}

		result = &Result{LicenseKey: lic.LicenseKey, Email: req.Email, SubscriptionType: subType}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !result.AlreadyMigrated {
		if err := s.queue.EnqueueLicenseDelivery(ctx, result.Email, result.LicenseKey, ""); err != nil {
			log.Errorw("license_email_enqueue_failed", "email", result.Email, "error", err)
		}
		log.Infow("migration_processed", "rc_app_user_id", req.RCAppUserID, "subscription_type", subType)
	}
	return result, nil
}

func (s *Service) findPrior(ctx context.Context, rcAppUserID string) (*Result, error) {
	var m models.Migration
	err := s.db.WithContext(ctx).Where("rc_app_user_id = ?", rcAppUserID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check existing migration: %w", err)
	}
	var lic models.License
	if err := s.db.WithContext(ctx).Where("id = ?", m.LicenseID).First(&lic).Error; err != nil {
		return nil, fmt.Errorf("failed to load license for existing migration: %w", err)
	}
	return &Result{
		LicenseKey:       lic.LicenseKey,
		Email:            m.Email,
		SubscriptionType: m.SubscriptionType,
		AlreadyMigrated:  true,
	}, nil
}

func (s *Service) fetchEntitlements(ctx context.Context, rcAppUserID string) ([]revenuecat.Entitlement, error) {
	log := logctx.FromCtx(ctx, s.log)

	entitlements, err := retry.Do(ctx,
		func(ctx context.Context) ([]revenuecat.Entitlement, error) {
			return s.rc.GetActiveEntitlements(ctx, rcAppUserID)
		},
		retry.WithShouldRetry(apiRetryable),
		retry.WithOnRetry(func(attempt int, err error) {
			log.Warnw("revenuecat_fetch_retry", "rc_app_user_id", rcAppUserID, "attempt", attempt, "error", err)
		}),
	)
	if err == nil {
		return entitlements, nil
	}

	if apiRetryable(err) {
		s.alerts.Notify(ctx, "RevenueCat API unreachable",
			fmt.Sprintf("Entitlement lookup for %s failed after retries: %v", rcAppUserID, err))
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	// A 404 means the app user id does not exist upstream. That is a client
	// problem, reported the same way as an account with nothing to migrate.
	var apiErr *revenuecat.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == 404 {
		return nil, ErrNoEligiblePurchase
	}
	return nil, fmt.Errorf("revenuecat entitlement fetch failed: %w", err)
}

func apiRetryable(err error) bool {
	var apiErr *revenuecat.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return true
}

func (s *Service) findOrCreateUser(ctx context.Context, tx *gorm.DB, req Request) (*models.User, error) {
	var user models.User
	err := tx.WithContext(ctx).Where("email = ?", req.Email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		user = models.User{
			ID:    tool.GenerateUUIDV7(),
			Email: req.Email,
		}
		if req.Name != "" {
			user.Name = &req.Name
		}
		if err := tx.Create(&user).Error; err != nil {
			return nil, fmt.Errorf("failed to create user: %w", err)
		}
		return &user, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return &user, nil
}
