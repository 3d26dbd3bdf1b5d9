package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/keymasterhq/keymaster/internal/platform/paddle"
	cfgpkg "github.com/keymasterhq/keymaster/pkg/config"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newWebhookTestRouter(secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := &cfgpkg.Config{}
	cfg.Paddle.WebhookSecret = secret
	r := gin.New()
	RegisterWebhookRoutes(r.Group("/api/v1"), cfg, nil, nil, zap.NewNop().Sugar())
	return r
}

func TestPaddleWebhook_MissingSignature(t *testing.T) {
	r := newWebhookTestRouter("whsec_test")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/paddle", bytes.NewBufferString(`{}`))
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	var resp struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "invalid signature", resp.Error)
}

func TestPaddleWebhook_TamperedBody(t *testing.T) {
	r := newWebhookTestRouter("whsec_test")

	body := []byte(`{"event_id":"evt_1","event_type":"transaction.completed"}`)
	sig := paddle.SignPayload(body, "whsec_test", time.Now())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/paddle", bytes.NewBufferString(`{"event_id":"evt_2"}`))
	req.Header.Set(PaddleSignatureHeader, sig)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPaddleWebhook_UnhandledEventTypeAcked(t *testing.T) {
	r := newWebhookTestRouter("whsec_test")

	body := []byte(`{"event_id":"evt_1","event_type":"subscription.created","data":{}}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/paddle", bytes.NewBuffer(body))
	req.Header.Set(PaddleSignatureHeader, paddle.SignPayload(body, "whsec_test", time.Now()))
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			NewEvent bool `json:"new_event"`
			Result   struct {
				Skipped bool `json:"skipped"`
			} `json:"result"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.True(t, resp.Data.Result.Skipped)
}

func TestPaddleWebhook_MalformedEnvelope(t *testing.T) {
	r := newWebhookTestRouter("whsec_test")

	body := []byte(`not json`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/paddle", bytes.NewBuffer(body))
	req.Header.Set(PaddleSignatureHeader, paddle.SignPayload(body, "whsec_test", time.Now()))
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}
