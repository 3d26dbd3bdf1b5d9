package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	models "github.com/keymasterhq/keymaster/internal/models"
	"github.com/keymasterhq/keymaster/pkg/tool"
	types "github.com/keymasterhq/keymaster/pkg/types"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func newTestCoordinator(t *testing.T) (*Coordinator, *gorm.DB) {
	t.Helper()
	// Named shared-cache memory DB: a plain :memory: DSN would give every
	// pooled connection its own empty database.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.WebhookEvent{}))
	return NewCoordinator(db, zap.NewNop().Sugar()), db
}

func TestCoordinator_FirstDeliveryCompletes(t *testing.T) {
	coord, db := newTestCoordinator(t)
	ctx := context.Background()

	calls := 0
	out, err := coord.Process(ctx, types.WebhookSourcePaddle, "transaction.completed", "evt_1", []byte(`{"event_id":"evt_1"}`),
		func(ctx context.Context) (any, error) {
			calls++
			return map[string]string{"license_key": "AAAA-BBBB-CCCC-DDDD"}, nil
		})
	require.NoError(t, err)
	assert.True(t, out.NewEvent)
	assert.Equal(t, 1, calls)
	assert.JSONEq(t, `{"license_key":"AAAA-BBBB-CCCC-DDDD"}`, string(out.Result))

	var event models.WebhookEvent
	require.NoError(t, db.Where("source = ? AND event_id = ?", types.WebhookSourcePaddle, "evt_1").First(&event).Error)
	assert.Equal(t, models.WebhookEventStatusCompleted, event.Status)
	assert.Equal(t, 1, event.Attempts)
	assert.NotNil(t, event.CompletedAt)
	require.NotNil(t, event.Result)
	assert.JSONEq(t, `{"license_key":"AAAA-BBBB-CCCC-DDDD"}`, string(*event.Result))
}

func TestCoordinator_DuplicateDeliveryReplaysStoredResult(t *testing.T) {
	coord, db := newTestCoordinator(t)
	ctx := context.Background()

	first, err := coord.Process(ctx, types.WebhookSourcePaddle, "transaction.completed", "evt_dup", []byte(`{}`),
		func(ctx context.Context) (any, error) {
			return map[string]string{"license_key": "AAAA-BBBB-CCCC-DDDD"}, nil
		})
	require.NoError(t, err)
	require.True(t, first.NewEvent)

	calls := 0
	second, err := coord.Process(ctx, types.WebhookSourcePaddle, "transaction.completed", "evt_dup", []byte(`{}`),
		func(ctx context.Context) (any, error) {
			calls++
			return map[string]string{"license_key": "WRON-GWRO-NGWR-ONG0"}, nil
		})
	require.NoError(t, err)
	assert.False(t, second.NewEvent)
	assert.Equal(t, 0, calls, "completed event must not re-run its work")
	assert.Equal(t, json.RawMessage(first.Result), second.Result)

	var count int64
	require.NoError(t, db.Model(&models.WebhookEvent{}).Where("event_id = ?", "evt_dup").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestCoordinator_InFlightRowConflicts(t *testing.T) {
	coord, db := newTestCoordinator(t)
	ctx := context.Background()

	seeded := &models.WebhookEvent{
		ID:        tool.GenerateUUIDV7(),
		Source:    types.WebhookSourcePaddle,
		EventID:   "evt_busy",
		EventType: "transaction.completed",
		Payload:   datatypes.JSON(`{}`),
		Status:    models.WebhookEventStatusProcessing,
		Attempts:  1,
	}
	require.NoError(t, db.Create(seeded).Error)

	_, err := coord.Process(ctx, types.WebhookSourcePaddle, "transaction.completed", "evt_busy", []byte(`{}`),
		func(ctx context.Context) (any, error) {
			t.Fatal("in-flight event must not run its work")
			return nil, nil
		})
	require.ErrorIs(t, err, ErrEventInFlight)
	assert.False(t, IsRetryable(err))

	var event models.WebhookEvent
	require.NoError(t, db.Where("event_id = ?", "evt_busy").First(&event).Error)
	assert.Equal(t, models.WebhookEventStatusProcessing, event.Status)
	assert.Equal(t, 1, event.Attempts, "conflicting delivery must not re-claim the row")
}

func TestCoordinator_WorkFailureClassification(t *testing.T) {
	tests := []struct {
		name       string
		workErr    error
		wantStatus models.WebhookEventStatus
	}{
		{"non-retryable marks failed", NonRetryable(errors.New("malformed payload")), models.WebhookEventStatusFailed},
		{"retryable marks retrying", Retryable(errors.New("upstream 503")), models.WebhookEventStatusRetrying},
		{"unclassified defaults to retrying", errors.New("something broke"), models.WebhookEventStatusRetrying},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			coord, db := newTestCoordinator(t)
			eventID := fmt.Sprintf("evt_fail_%d", i)

			_, err := coord.Process(context.Background(), types.WebhookSourcePaddle, "transaction.completed", eventID, []byte(`{}`),
				func(ctx context.Context) (any, error) {
					return nil, tt.workErr
				})
			require.ErrorIs(t, err, tt.workErr)

			var event models.WebhookEvent
			require.NoError(t, db.Where("event_id = ?", eventID).First(&event).Error)
			assert.Equal(t, tt.wantStatus, event.Status)
			assert.Equal(t, 1, event.Attempts)
			require.NotNil(t, event.LastError)
			assert.Contains(t, *event.LastError, tt.workErr.Error())
			assert.Nil(t, event.CompletedAt)
		})
	}
}

func TestCoordinator_FailedEventRerunsAndCompletes(t *testing.T) {
	coord, db := newTestCoordinator(t)
	ctx := context.Background()

	_, err := coord.Process(ctx, types.WebhookSourcePaddle, "transaction.completed", "evt_recover", []byte(`{}`),
		func(ctx context.Context) (any, error) {
			return nil, Retryable(errors.New("transient"))
		})
	require.Error(t, err)

	out, err := coord.Process(ctx, types.WebhookSourcePaddle, "transaction.completed", "evt_recover", []byte(`{}`),
		func(ctx context.Context) (any, error) {
			return map[string]bool{"ok": true}, nil
		})
	require.NoError(t, err)
	assert.True(t, out.NewEvent)

	var event models.WebhookEvent
	require.NoError(t, db.Where("event_id = ?", "evt_recover").First(&event).Error)
	assert.Equal(t, models.WebhookEventStatusCompleted, event.Status)
	assert.Equal(t, 2, event.Attempts)
	assert.Nil(t, event.LastError)
}

func TestCoordinator_EmptyEventIDRunsUntracked(t *testing.T) {
	coord, db := newTestCoordinator(t)

	calls := 0
	out, err := coord.Process(context.Background(), types.WebhookSourcePaddle, "transaction.completed", "", []byte(`{}`),
		func(ctx context.Context) (any, error) {
			calls++
			return map[string]bool{"ok": true}, nil
		})
	require.NoError(t, err)
	assert.True(t, out.NewEvent)
	assert.Equal(t, 1, calls)

	var count int64
	require.NoError(t, db.Model(&models.WebhookEvent{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}
