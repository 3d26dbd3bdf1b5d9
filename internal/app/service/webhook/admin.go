package webhook

import (
	"context"
	"fmt"

	models "github.com/keymasterhq/keymaster/internal/models"
	"gorm.io/gorm"
)

// Stats returns webhook event counts grouped by status.
func (c *Coordinator) Stats(ctx context.Context) (map[models.WebhookEventStatus]int64, error) {
	type row struct {
		Status models.WebhookEventStatus
		Count  int64
	}
	var rows []row
	if err := c.db.WithContext(ctx).Model(&models.WebhookEvent{}).
		Select("status, count(*) as count").Group("status").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate webhook events: %w", err)
	}
	stats := make(map[models.WebhookEventStatus]int64, len(rows))
	for _, r := range rows {
		stats[r.Status] = r.Count
	}
	return stats, nil
}

// ListFailed returns events stuck in FAILED or RETRYING, oldest first.
func (c *Coordinator) ListFailed(ctx context.Context, limit int) ([]*models.WebhookEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	var events []*models.WebhookEvent
	if err := c.db.WithContext(ctx).
		Where("status IN ?", []models.WebhookEventStatus{models.WebhookEventStatusFailed, models.WebhookEventStatusRetrying}).
		Order("updated_at asc").Limit(limit).Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to list failed events: %w", err)
	}
	return events, nil
}

// GetByID loads a single webhook event row.
func (c *Coordinator) GetByID(ctx context.Context, id string) (*models.WebhookEvent, error) {
	var event models.WebhookEvent
	if err := c.db.WithContext(ctx).Where("id = ?", id).First(&event).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

// ResetForRetry moves a FAILED event back to PENDING so a manual re-dispatch
// can claim it again. Returns the refreshed row.
func (c *Coordinator) ResetForRetry(ctx context.Context, id string) (*models.WebhookEvent, error) {
	event, err := c.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if event.Status == models.WebhookEventStatusCompleted || event.Status == models.WebhookEventStatusProcessing {
		return nil, fmt.Errorf("event %s is %s, not retryable", id, event.Status)
	}
	if err := c.db.WithContext(ctx).Model(event).
		Updates(map[string]any{"status": models.WebhookEventStatusPending, "last_error": gorm.Expr("NULL")}).Error; err != nil {
		return nil, fmt.Errorf("failed to reset event: %w", err)
	}
	event.Status = models.WebhookEventStatusPending
	event.LastError = nil
	return event, nil
}
