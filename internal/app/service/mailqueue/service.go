// Package mailqueue is the durable outbox for outbound notification emails:
// enqueue persists a row, a periodic sweep delivers due rows and reschedules
// failures with a fixed backoff schedule.
package mailqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	models "github.com/keymasterhq/keymaster/internal/models"
	"github.com/keymasterhq/keymaster/internal/platform/mailer"
	cfgpkg "github.com/keymasterhq/keymaster/pkg/config"
	"github.com/keymasterhq/keymaster/pkg/logctx"
	"github.com/keymasterhq/keymaster/pkg/tool"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// backoffSchedule is indexed by (attempts - 1) and clamped to its last entry.
var backoffSchedule = []time.Duration{
	1 * time.Minute,
	5 * time.Minute,
	15 * time.Minute,
	60 * time.Minute,
	240 * time.Minute,
}

// metadataKeyPurchaseID links a queue item back to the purchase whose
// email_sent flag it confirms on delivery.
const metadataKeyPurchaseID = "purchase_id"

// staleSendingAge is how long a row may sit in SENDING before a sweep assumes
// the process holding it died between the claim and the outcome write, and
// reclaims it. Generous against slow transports; a reclaimed row costs one
// extra attempt, never a double delivery (sendOne re-checks SENT first).
const staleSendingAge = 15 * time.Minute

// backoffDelay returns the wait before the next send after the given number
// of failed attempts (1-indexed).
func backoffDelay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	if attempts > len(backoffSchedule) {
		attempts = len(backoffSchedule)
	}
	return backoffSchedule[attempts-1]
}

type Service struct {
	cfg       *cfgpkg.Config
	db        *gorm.DB
	log       *zap.SugaredLogger
	transport mailer.Transport
}

func NewService(cfg *cfgpkg.Config, db *gorm.DB, log *zap.SugaredLogger, transport mailer.Transport) *Service {
	return &Service{cfg: cfg, db: db, log: log, transport: transport}
}

type EnqueueRequest struct {
	Recipient   string
	Subject     string
	BodyText    string
	BodyHTML    string
	Metadata    map[string]any
	MaxAttempts int
}

// Enqueue persists a PENDING row due immediately.
func (s *Service) Enqueue(ctx context.Context, req *EnqueueRequest) (*models.EmailQueueItem, error) {
	if req == nil || req.Recipient == "" {
		return nil, fmt.Errorf("recipient is required")
	}
	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = s.cfg.EmailQueue.MaxAttempts
	}
	item := &models.EmailQueueItem{
		ID:          tool.GenerateUUIDV7(),
		Recipient:   req.Recipient,
		Subject:     req.Subject,
		BodyText:    req.BodyText,
		BodyHTML:    req.BodyHTML,
		Status:      models.EmailStatusPending,
		MaxAttempts: maxAttempts,
		NextRetryAt: time.Now(),
		Metadata:    datatypes.JSONMap(req.Metadata),
	}
	if item.Metadata == nil {
		item.Metadata = datatypes.JSONMap{}
	}
	if err := s.db.WithContext(ctx).Create(item).Error; err != nil {
		return nil, fmt.Errorf("failed to enqueue email: %w", err)
	}
	return item, nil
}

// Sweep selects due PENDING/RETRYING rows (oldest due first, bounded by the
// configured batch size) and sends them concurrently. One item's failure
// never blocks the others.
func (s *Service) Sweep(ctx context.Context) {
	log := logctx.FromCtx(ctx, s.log)

	batch := s.cfg.EmailQueue.BatchSize
	if batch <= 0 {
		batch = 10
	}

	now := time.Now()
	var due []*models.EmailQueueItem
	err := s.db.WithContext(ctx).
		Where("attempts < max_attempts").
		Where(
			s.db.Where("status IN ? AND next_retry_at <= ?",
				[]models.EmailStatus{models.EmailStatusPending, models.EmailStatusRetrying}, now).
				Or("status = ? AND last_attempt_at <= ?",
					models.EmailStatusSending, now.Add(-staleSendingAge)),
		).
		Order("next_retry_at asc").
		Limit(batch).
		Find(&due).Error
	if err != nil {
		log.Errorw("email_sweep_query_failed", "error", err)
		return
	}
	if len(due) == 0 {
		return
	}

	log.Infow("email_sweep_started", "items", len(due))
	var wg sync.WaitGroup
	for _, item := range due {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := s.sendOne(ctx, id); err != nil {
				log.Warnw("email_send_attempt_failed", "item_id", id, "error", err)
			}
		}(item.ID)
	}
	wg.Wait()
}

// sendOne performs one delivery attempt for a queue row. It re-fetches the
// row first: an overlapping sweep may have sent it already, in which case
// this is a no-op.
func (s *Service) sendOne(ctx context.Context, id string) error {
	log := logctx.FromCtx(ctx, s.log)

	var item models.EmailQueueItem
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&item).Error; err != nil {
		return fmt.Errorf("failed to load queue item: %w", err)
	}
	if item.Status == models.EmailStatusSent {
		return nil
	}

	now := time.Now()
	item.Status = models.EmailStatusSending
	item.Attempts++
	item.LastAttemptAt = &now
	if err := s.db.WithContext(ctx).Save(&item).Error; err != nil {
		return fmt.Errorf("failed to mark item sending: %w", err)
	}

	msgID, sendErr := s.send(ctx, &item)
	if sendErr == nil {
		sentAt := time.Now()
		item.Status = models.EmailStatusSent
		item.SentAt = &sentAt
		item.ProviderMessageID = &msgID
		item.LastError = nil
		if err := s.db.WithContext(ctx).Save(&item).Error; err != nil {
			return fmt.Errorf("failed to mark item sent: %w", err)
		}
		s.confirmPurchaseEmail(ctx, &item)
		log.Infow("email_sent", "item_id", item.ID, "recipient", item.Recipient, "attempts", item.Attempts)
		return nil
	}

	item.LastError = lo.ToPtr(sendErr.Error())
	if item.Attempts >= item.MaxAttempts {
		item.Status = models.EmailStatusFailed
		item.LastError = lo.ToPtr(fmt.Sprintf("max attempts (%d) reached: %v", item.MaxAttempts, sendErr))
	} else {
		item.Status = models.EmailStatusRetrying
		item.NextRetryAt = time.Now().Add(backoffDelay(item.Attempts))
	}
	if err := s.db.WithContext(ctx).Save(&item).Error; err != nil {
		return fmt.Errorf("failed to reschedule item: %w", err)
	}
	return sendErr
}

// confirmPurchaseEmail writes the delivery back to the originating purchase
// row, when the item carries one. Best-effort: the email is out either way.
func (s *Service) confirmPurchaseEmail(ctx context.Context, item *models.EmailQueueItem) {
	purchaseID, _ := item.Metadata[metadataKeyPurchaseID].(string)
	if purchaseID == "" {
		return
	}
	if err := s.db.WithContext(ctx).Model(&models.Purchase{}).
		Where("id = ?", purchaseID).Update("email_sent", true).Error; err != nil {
		logctx.FromCtx(ctx, s.log).Errorw("purchase_email_sent_update_failed", "purchase_id", purchaseID, "error", err)
	}
}

// send invokes the transport, converting panics into errors so one bad
// message cannot take down the sweep.
func (s *Service) send(ctx context.Context, item *models.EmailQueueItem) (msgID string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transport panic: %v", r)
		}
	}()
	return s.transport.Send(ctx, &mailer.Message{
		To:       item.Recipient,
		Subject:  item.Subject,
		BodyText: item.BodyText,
		BodyHTML: item.BodyHTML,
	})
}

// ErrNotRetryable is returned by Retry for rows not in FAILED state.
var ErrNotRetryable = errors.New("queue item is not in failed state")

// Retry is the operator-triggered reset of a FAILED row: attempts back to
// zero, due immediately, followed by one send attempt right away.
func (s *Service) Retry(ctx context.Context, id string) (*models.EmailQueueItem, error) {
	var item models.EmailQueueItem
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&item).Error; err != nil {
		return nil, err
	}
	if item.Status != models.EmailStatusFailed {
		return nil, ErrNotRetryable
	}

	if err := s.db.WithContext(ctx).Model(&item).Updates(map[string]any{
		"status":        models.EmailStatusPending,
		"attempts":      0,
		"next_retry_at": time.Now(),
		"last_error":    gorm.Expr("NULL"),
	}).Error; err != nil {
		return nil, fmt.Errorf("failed to reset queue item: %w", err)
	}

	if err := s.sendOne(ctx, id); err != nil {
		logctx.FromCtx(ctx, s.log).Warnw("manual_retry_send_failed", "item_id", id, "error", err)
	}

	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// Stats returns queue item counts grouped by status.
func (s *Service) Stats(ctx context.Context) (map[models.EmailStatus]int64, error) {
	type row struct {
		Status models.EmailStatus
		Count  int64
	}
	var rows []row
	if err := s.db.WithContext(ctx).Model(&models.EmailQueueItem{}).
		Select("status, count(*) as count").Group("status").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate queue items: %w", err)
	}
	stats := make(map[models.EmailStatus]int64, len(rows))
	for _, r := range rows {
		stats[r.Status] = r.Count
	}
	return stats, nil
}

// ListFailed returns FAILED rows, oldest first.
func (s *Service) ListFailed(ctx context.Context, limit int) ([]*models.EmailQueueItem, error) {
	if limit <= 0 {
		limit = 50
	}
	var items []*models.EmailQueueItem
	if err := s.db.WithContext(ctx).
		Where("status = ?", models.EmailStatusFailed).
		Order("updated_at asc").Limit(limit).Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to list failed items: %w", err)
	}
	return items, nil
}
