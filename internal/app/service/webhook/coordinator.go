// Package webhook implements the idempotency coordinator: it executes a unit
// of work keyed by (source, event id) at most once to completion, tolerating
// crashes mid-processing and duplicate deliveries.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	models "github.com/keymasterhq/keymaster/internal/models"
	"github.com/keymasterhq/keymaster/pkg/logctx"
	"github.com/keymasterhq/keymaster/pkg/tool"
	types "github.com/keymasterhq/keymaster/pkg/types"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// WorkFunc is the unit of work executed under idempotency protection. Its
// result is marshalled to JSON and stored for idempotent replay.
type WorkFunc func(ctx context.Context) (any, error)

// Outcome is what Process hands back to the HTTP layer.
type Outcome struct {
	// Result is the work function's JSON-encoded return value; on a replayed
	// event it is the stored outcome of the original run.
	Result json.RawMessage
	// NewEvent is false when a completed event was replayed without
	// re-invoking the work.
	NewEvent bool
}

type Coordinator struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func NewCoordinator(db *gorm.DB, log *zap.SugaredLogger) *Coordinator {
	return &Coordinator{db: db, log: log}
}

// Process executes work at most once to completion for (source, eventID).
//
// An empty eventID skips idempotency tracking entirely and always executes
// the work (legacy/untyped callers). Otherwise: a COMPLETED row short-circuits
// with the stored outcome; a PROCESSING row fails fast with ErrEventInFlight;
// anything else claims the row, runs the work, and records COMPLETED or
// FAILED/RETRYING depending on the error's retryability class.
//
// This narrows, but does not eliminate, a true concurrent double delivery;
// final exclusivity rests on the purchase processor's in-transaction
// double-check against its unique transaction id.
func (c *Coordinator) Process(ctx context.Context, source types.WebhookSource, eventType, eventID string, payload []byte, work WorkFunc) (*Outcome, error) {
	if eventID == "" {
		res, err := work(ctx)
		if err != nil {
			return nil, err
		}
		raw, _ := json.Marshal(res)
		return &Outcome{Result: raw, NewEvent: true}, nil
	}

	log := logctx.FromCtx(ctx, c.log).With("source", source, "event_id", eventID, "event_type", eventType)

	var event models.WebhookEvent
	err := c.db.WithContext(ctx).Where("source = ? AND event_id = ?", source, eventID).First(&event).Error
	switch {
	case err == nil:
		switch event.Status {
		case models.WebhookEventStatusCompleted:
			log.Infow("webhook_event_replayed")
			var stored json.RawMessage
			if event.Result != nil {
				stored = json.RawMessage(*event.Result)
			}
			return &Outcome{Result: stored, NewEvent: false}, nil
		case models.WebhookEventStatusProcessing:
			return nil, NonRetryable(ErrEventInFlight)
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		event = models.WebhookEvent{
			ID:      tool.GenerateUUIDV7(),
			Source:  source,
			EventID: eventID,
		}
	default:
		return nil, fmt.Errorf("failed to load webhook event: %w", err)
	}

	event.EventType = eventType
	event.Payload = datatypes.JSON(payload)
	event.Status = models.WebhookEventStatusProcessing
	event.Attempts++
	if err := c.db.WithContext(ctx).Save(&event).Error; err != nil {
		return nil, fmt.Errorf("failed to claim webhook event: %w", err)
	}

	res, workErr := work(ctx)
	if workErr != nil {
		status := models.WebhookEventStatusFailed
		if IsRetryable(workErr) {
			status = models.WebhookEventStatusRetrying
		}
		event.Status = status
		event.LastError = lo.ToPtr(workErr.Error())
		if err := c.db.WithContext(ctx).Save(&event).Error; err != nil {
			log.Errorw("webhook_event_mark_failed_error", "error", err)
		}
		log.Warnw("webhook_event_failed", "status", status, "error", workErr)
		return nil, workErr
	}

	raw, _ := json.Marshal(res)
	event.Status = models.WebhookEventStatusCompleted
	event.Result = lo.ToPtr(datatypes.JSON(raw))
	event.LastError = nil
	event.CompletedAt = lo.ToPtr(time.Now())
	if err := c.db.WithContext(ctx).Save(&event).Error; err != nil {
		// The work already committed its own transaction; a duplicate
		// delivery will be caught by the processor's double-check.
		log.Errorw("webhook_event_mark_completed_error", "error", err)
	}

	log.Infow("webhook_event_completed", "attempts", event.Attempts)
	return &Outcome{Result: raw, NewEvent: true}, nil
}
