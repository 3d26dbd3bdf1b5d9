package mailqueue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	models "github.com/keymasterhq/keymaster/internal/models"
	"github.com/keymasterhq/keymaster/internal/platform/mailer"
	cfgpkg "github.com/keymasterhq/keymaster/pkg/config"
	"github.com/keymasterhq/keymaster/pkg/tool"
	types "github.com/keymasterhq/keymaster/pkg/types"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type stubTransport struct {
	mu   sync.Mutex
	err  error
	sent []*mailer.Message
}

func (s *stubTransport) Send(ctx context.Context, msg *mailer.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.sent = append(s.sent, msg)
	return fmt.Sprintf("msg-%d", len(s.sent)), nil
}

func (s *stubTransport) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func newTestService(t *testing.T, transport mailer.Transport) (*Service, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.EmailQueueItem{}, &models.Purchase{}))

	cfg := &cfgpkg.Config{}
	cfg.EmailQueue.BatchSize = 10
	cfg.EmailQueue.MaxAttempts = 5
	cfg.License.ProductName = "Keymaster"
	return NewService(cfg, db, zap.NewNop().Sugar(), transport), db
}

func TestLicenseDelivery_ConfirmsPurchaseEmailSent(t *testing.T) {
	tr := &stubTransport{}
	svc, db := newTestService(t, tr)
	ctx := context.Background()

	p := &models.Purchase{
		ID:            tool.GenerateUUIDV7(),
		ProviderID:    types.WebhookSourcePaddle,
		TransactionID: "txn_1",
		CustomerID:    "ctm_1",
		Email:         "buyer@example.com",
		LicenseID:     tool.GenerateUUIDV7(),
		UserID:        tool.GenerateUUIDV7(),
		EmailSent:     false,
		RawPayload:    datatypes.JSON(`{}`),
	}
	require.NoError(t, db.Create(p).Error)

	require.NoError(t, svc.EnqueueLicenseDelivery(ctx, p.Email, "AAAA-BBBB-CCCC-DDDD", p.ID))
	svc.Sweep(ctx)

	require.Equal(t, 1, tr.sentCount())
	assert.Contains(t, tr.sent[0].BodyText, "AAAA-BBBB-CCCC-DDDD")

	var item models.EmailQueueItem
	require.NoError(t, db.Where("recipient = ?", p.Email).First(&item).Error)
	assert.Equal(t, models.EmailStatusSent, item.Status)
	require.NotNil(t, item.ProviderMessageID)
	assert.NotNil(t, item.SentAt)

	var got models.Purchase
	require.NoError(t, db.Where("id = ?", p.ID).First(&got).Error)
	assert.True(t, got.EmailSent, "delivery must be written back to the purchase row")
}

func TestLicenseDelivery_WithoutPurchaseSendsNormally(t *testing.T) {
	tr := &stubTransport{}
	svc, db := newTestService(t, tr)
	ctx := context.Background()

	require.NoError(t, svc.EnqueueLicenseDelivery(ctx, "migrated@example.com", "EEEE-FFFF-GGGG-HHHH", ""))
	svc.Sweep(ctx)

	require.Equal(t, 1, tr.sentCount())
	var item models.EmailQueueItem
	require.NoError(t, db.Where("recipient = ?", "migrated@example.com").First(&item).Error)
	assert.Equal(t, models.EmailStatusSent, item.Status)
	_, hasLink := item.Metadata[metadataKeyPurchaseID]
	assert.False(t, hasLink)
}

func TestSweep_ReclaimsStaleSendingRow(t *testing.T) {
	tr := &stubTransport{}
	svc, db := newTestService(t, tr)
	ctx := context.Background()

	// Simulates a crash after the SENDING claim but before the outcome write.
	stale := time.Now().Add(-time.Hour)
	item := &models.EmailQueueItem{
		ID:            tool.GenerateUUIDV7(),
		Recipient:     "stranded@example.com",
		Subject:       "Your Keymaster license key",
		BodyText:      "body",
		Status:        models.EmailStatusSending,
		Attempts:      1,
		MaxAttempts:   5,
		NextRetryAt:   stale,
		LastAttemptAt: &stale,
		Metadata:      datatypes.JSONMap{},
	}
	require.NoError(t, db.Create(item).Error)

	svc.Sweep(ctx)

	require.Equal(t, 1, tr.sentCount())
	var got models.EmailQueueItem
	require.NoError(t, db.Where("id = ?", item.ID).First(&got).Error)
	assert.Equal(t, models.EmailStatusSent, got.Status)
}

func TestSweep_LeavesFreshSendingRowAlone(t *testing.T) {
	tr := &stubTransport{}
	svc, db := newTestService(t, tr)
	ctx := context.Background()

	now := time.Now()
	item := &models.EmailQueueItem{
		ID:            tool.GenerateUUIDV7(),
		Recipient:     "in-progress@example.com",
		Subject:       "Your Keymaster license key",
		BodyText:      "body",
		Status:        models.EmailStatusSending,
		Attempts:      1,
		MaxAttempts:   5,
		NextRetryAt:   now,
		LastAttemptAt: &now,
		Metadata:      datatypes.JSONMap{},
	}
	require.NoError(t, db.Create(item).Error)

	svc.Sweep(ctx)

	assert.Equal(t, 0, tr.sentCount())
	var got models.EmailQueueItem
	require.NoError(t, db.Where("id = ?", item.ID).First(&got).Error)
	assert.Equal(t, models.EmailStatusSending, got.Status)
	assert.Equal(t, 1, got.Attempts)
}

func TestSweep_FailureRetriesThenFails(t *testing.T) {
	tr := &stubTransport{err: errors.New("smtp down")}
	svc, db := newTestService(t, tr)
	ctx := context.Background()

	queued, err := svc.Enqueue(ctx, &EnqueueRequest{
		Recipient:   "unlucky@example.com",
		Subject:     "s",
		BodyText:    "b",
		MaxAttempts: 2,
	})
	require.NoError(t, err)

	svc.Sweep(ctx)

	var got models.EmailQueueItem
	require.NoError(t, db.Where("id = ?", queued.ID).First(&got).Error)
	assert.Equal(t, models.EmailStatusRetrying, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.WithinDuration(t, time.Now().Add(backoffDelay(1)), got.NextRetryAt, 10*time.Second)

	// Force the row due again for the final attempt.
	require.NoError(t, db.Model(&got).Update("next_retry_at", time.Now().Add(-time.Minute)).Error)
	svc.Sweep(ctx)

	require.NoError(t, db.Where("id = ?", queued.ID).First(&got).Error)
	assert.Equal(t, models.EmailStatusFailed, got.Status)
	assert.Equal(t, 2, got.Attempts)
	require.NotNil(t, got.LastError)
	assert.Contains(t, *got.LastError, "max attempts (2) reached")
}
