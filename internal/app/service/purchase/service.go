// Package purchase turns verified Paddle webhook events into licenses.
package purchase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	models "github.com/keymasterhq/keymaster/internal/models"
	"github.com/keymasterhq/keymaster/internal/app/service/alerting"
	licsvc "github.com/keymasterhq/keymaster/internal/app/service/license"
	"github.com/keymasterhq/keymaster/internal/app/service/mailqueue"
	"github.com/keymasterhq/keymaster/internal/app/service/webhook"
	"github.com/keymasterhq/keymaster/internal/platform/paddle"
	cfgpkg "github.com/keymasterhq/keymaster/pkg/config"
	"github.com/keymasterhq/keymaster/pkg/logctx"
	"github.com/keymasterhq/keymaster/pkg/retry"
	"github.com/keymasterhq/keymaster/pkg/tool"
	types "github.com/keymasterhq/keymaster/pkg/types"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CustomerFetcher is the slice of the Paddle API the processor needs.
type CustomerFetcher interface {
	GetCustomer(ctx context.Context, customerID string) (*paddle.Customer, error)
}

type Service struct {
	cfg    *cfgpkg.Config
	db     *gorm.DB
	log    *zap.SugaredLogger
	paddle CustomerFetcher
	licSvc *licsvc.Service
	queue  *mailqueue.Service
	alerts *alerting.Service
}

func NewService(cfg *cfgpkg.Config, db *gorm.DB, log *zap.SugaredLogger, customers CustomerFetcher, lic *licsvc.Service, queue *mailqueue.Service, alerts *alerting.Service) *Service {
	return &Service{cfg: cfg, db: db, log: log, paddle: customers, licSvc: lic, queue: queue, alerts: alerts}
}

// Result is the outcome of one processed webhook event. It is stored by the
// idempotency coordinator for replay on duplicate deliveries.
type Result struct {
	LicenseKey       string `json:"license_key,omitempty"`
	Email            string `json:"email,omitempty"`
	AlreadyProcessed bool   `json:"already_processed,omitempty"`
	Skipped          bool   `json:"skipped,omitempty"`
	SkipReason       string `json:"skip_reason,omitempty"`
}

// WorkFor returns the idempotency-coordinator work function for a Paddle
// event type, or nil when the event type has no side effects here.
func (s *Service) WorkFor(eventType string, data json.RawMessage) webhook.WorkFunc {
	switch eventType {
	case paddle.EventTransactionCompleted:
		return func(ctx context.Context) (any, error) {
			return s.HandleTransactionCompleted(ctx, data)
		}
	case paddle.EventAdjustmentUpdated:
		return func(ctx context.Context) (any, error) {
			return s.HandleAdjustmentUpdated(ctx, data)
		}
	default:
		return nil
	}
}

// HandleTransactionCompleted converts one completed Paddle transaction into a
// User + License + Purchase, atomically, and enqueues the delivery email.
func (s *Service) HandleTransactionCompleted(ctx context.Context, data json.RawMessage) (*Result, error) {
	log := logctx.FromCtx(ctx, s.log)

	var txn paddle.Transaction
	if err := json.Unmarshal(data, &txn); err != nil {
		return nil, webhook.NonRetryable(fmt.Errorf("malformed transaction payload: %w", err))
	}

	if txn.Status != paddle.TransactionStatusCompleted {
		// A skip must not make the provider hammer retries; acknowledge it.
		log.Infow("transaction_skipped", "transaction_id", txn.ID, "status", txn.Status)
		return &Result{Skipped: true, SkipReason: fmt.Sprintf("transaction status is %q, not completed", txn.Status)}, nil
	}
	if txn.CustomerID == "" {
		return nil, webhook.NonRetryable(fmt.Errorf("transaction %s has no customer id", txn.ID))
	}

	customer, err := s.fetchCustomer(ctx, txn.CustomerID)
	if err != nil {
		return nil, err
	}

	expiresAt, err := licenseExpiry(txn.Items, time.Now())
	if err != nil {
		return nil, webhook.NonRetryable(err)
	}

	var result *Result
	var lic *models.License
	var purchaseID string
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Double-check inside the transaction: two coordinator claims can
		// interleave; the unique transaction id is the final arbiter.
		var existing models.Purchase
		err := tx.Where("provider_id = ? AND transaction_id = ?", types.WebhookSourcePaddle, txn.ID).First(&existing).Error
		if err == nil {
			var existingLic models.License
			if err := tx.Where("id = ?", existing.LicenseID).First(&existingLic).Error; err != nil {
				return fmt.Errorf("failed to load license for existing purchase: %w", err)
			}
			result = &Result{LicenseKey: existingLic.LicenseKey, Email: existing.Email, AlreadyProcessed: true}
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to check existing purchase: %w", err)
		}

		user, err := s.findOrCreateUser(ctx, tx, customer)
		if err != nil {
			return err
		}

		lic, err = s.licSvc.CreateInTx(ctx, tx, user.ID, expiresAt, map[string]any{
			"source":         string(types.WebhookSourcePaddle),
			"transaction_id": txn.ID,
			"customer_id":    txn.CustomerID,
			"payload":        json.RawMessage(data),
		})
		if err != nil {
			return err
		}

		p := &models.Purchase{
			ID:            tool.GenerateUUIDV7(),
			ProviderID:    types.WebhookSourcePaddle,
			TransactionID: txn.ID,
			CustomerID:    txn.CustomerID,
			Email:         customer.Email,
			LicenseID:     lic.ID,
			UserID:        user.ID,
			EmailSent:     false,
			RawPayload:    datatypes.JSON(data),
		}
		if err := tx.Create(p).Error; err != nil {
			return fmt.Errorf("failed to create purchase: %w", err)
		}
		purchaseID = p.ID

		result = &Result{LicenseKey: lic.LicenseKey, Email: customer.Email}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !result.AlreadyProcessed {
		// Best-effort: the purchase is durable; a lost enqueue is logged,
		// never surfaced to the provider.
		if err := s.queue.EnqueueLicenseDelivery(ctx, result.Email, result.LicenseKey, purchaseID); err != nil {
			log.Errorw("license_email_enqueue_failed", "email", result.Email, "error", err)
		}
		log.Infow("purchase_processed", "transaction_id", txn.ID, "license_key", result.LicenseKey)
	}
	return result, nil
}

// HandleAdjustmentUpdated revokes the license behind a refunded transaction.
// Anything other than an approved refund is acknowledged as a no-op.
func (s *Service) HandleAdjustmentUpdated(ctx context.Context, data json.RawMessage) (*Result, error) {
	log := logctx.FromCtx(ctx, s.log)

	var adj paddle.Adjustment
	if err := json.Unmarshal(data, &adj); err != nil {
		return nil, webhook.NonRetryable(fmt.Errorf("malformed adjustment payload: %w", err))
	}

	if adj.Action != paddle.AdjustmentActionRefund || adj.Status != paddle.AdjustmentStatusApproved {
		return &Result{Skipped: true, SkipReason: fmt.Sprintf("adjustment %s/%s is not an approved refund", adj.Action, adj.Status)}, nil
	}

	var result *Result
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p models.Purchase
		err := tx.Where("provider_id = ? AND transaction_id = ?", types.WebhookSourcePaddle, adj.TransactionID).First(&p).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			result = &Result{Skipped: true, SkipReason: "no purchase for transaction, nothing to revoke"}
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to load purchase: %w", err)
		}

		var lic models.License
		if err := tx.Where("id = ?", p.LicenseID).First(&lic).Error; err != nil {
			return fmt.Errorf("failed to load license: %w", err)
		}
		if lic.Status == models.LicenseStatusRevoked {
			result = &Result{LicenseKey: lic.LicenseKey, AlreadyProcessed: true, Skipped: true, SkipReason: "license already revoked"}
			return nil
		}

		now := time.Now()
		note := fmt.Sprintf("Revoked by refund: adjustment %s, transaction %s", adj.ID, adj.TransactionID)
		updates := map[string]any{
			"status":     models.LicenseStatusRevoked,
			"revoked_at": now,
			"notes":      appendNote(lic.Notes, note),
		}
		if err := tx.Model(&lic).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to revoke license: %w", err)
		}
		result = &Result{LicenseKey: lic.LicenseKey}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Infow("adjustment_processed", "adjustment_id", adj.ID, "transaction_id", adj.TransactionID, "skipped", result.Skipped)
	return result, nil
}

// fetchCustomer wraps the Paddle customer lookup in bounded retry and
// translates exhaustion into the webhook error taxonomy. Permanent upstream
// unavailability additionally raises an operator alert.
func (s *Service) fetchCustomer(ctx context.Context, customerID string) (*paddle.Customer, error) {
	log := logctx.FromCtx(ctx, s.log)

	customer, err := retry.Do(ctx,
		func(ctx context.Context) (*paddle.Customer, error) {
			return s.paddle.GetCustomer(ctx, customerID)
		},
		retry.WithShouldRetry(apiRetryable),
		retry.WithOnRetry(func(attempt int, err error) {
			log.Warnw("paddle_customer_fetch_retry", "customer_id", customerID, "attempt", attempt, "error", err)
		}),
	)
	if err == nil {
		return customer, nil
	}

	if apiRetryable(err) {
		s.alerts.Notify(ctx, "Paddle API unreachable",
			fmt.Sprintf("Customer lookup for %s failed after retries: %v", customerID, err))
		return nil, webhook.Retryable(fmt.Errorf("paddle customer fetch failed: %w", err))
	}
	return nil, webhook.NonRetryable(fmt.Errorf("paddle customer fetch failed: %w", err))
}

func apiRetryable(err error) bool {
	var apiErr *paddle.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return true
}

func (s *Service) findOrCreateUser(ctx context.Context, tx *gorm.DB, customer *paddle.Customer) (*models.User, error) {
	var user models.User
	err := tx.WithContext(ctx).Where("email = ?", customer.Email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		user = models.User{
			ID:               tool.GenerateUUIDV7(),
			Email:            customer.Email,
			MarketingConsent: customer.MarketingConsent,
		}
		if customer.Name != "" {
			user.Name = &customer.Name
		}
		if err := tx.Create(&user).Error; err != nil {
			return nil, fmt.Errorf("failed to create user: %w", err)
		}
		return &user, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user.MarketingConsent != customer.MarketingConsent {
		user.MarketingConsent = customer.MarketingConsent
		if err := tx.Model(&user).Update("marketing_consent", customer.MarketingConsent).Error; err != nil {
			return nil, fmt.Errorf("failed to update marketing consent: %w", err)
		}
	}
	return &user, nil
}

func appendNote(notes, note string) string {
	if notes == "" {
		return note
	}
	return notes + "\n" + note
}
