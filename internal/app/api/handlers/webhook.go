package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/keymasterhq/keymaster/internal/app/service/purchase"
	"github.com/keymasterhq/keymaster/internal/app/service/webhook"
	"github.com/keymasterhq/keymaster/internal/platform/paddle"
	cfgpkg "github.com/keymasterhq/keymaster/pkg/config"
	"github.com/keymasterhq/keymaster/pkg/logctx"
	"github.com/keymasterhq/keymaster/pkg/response"
	types "github.com/keymasterhq/keymaster/pkg/types"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// PaddleSignatureHeader carries the ts/h1 HMAC signature of the raw body.
const PaddleSignatureHeader = "Paddle-Signature"

const maxWebhookBody = 1 << 20

// WebhookAck is the success payload: the processor's result plus whether this
// delivery actually ran the work or replayed a previously completed event.
type WebhookAck struct {
	NewEvent bool            `json:"new_event"`
	Result   json.RawMessage `json:"result"`
}

// @Summary      Paddle Webhook
// @Description  Receives Paddle billing events. The raw body must carry a valid Paddle-Signature header.
// @Tags         Webhook
// @Accept       json
// @Produce      json
// @Param        payload body paddle.Event true "Paddle webhook event envelope"
// @Success      200  {object}  handlers.RespWebhook
// @Failure      400  {object}  handlers.RespError
// @Failure      401  {object}  handlers.RespError
// @Failure      409  {object}  handlers.RespError
// @Failure      500  {object}  handlers.RespError
// @Router       /api/v1/webhooks/paddle [post]
func ApiPaddleWebhook(cfg *cfgpkg.Config, coord *webhook.Coordinator, proc *purchase.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
		if err != nil {
			c.JSON(http.StatusBadRequest, response.Err[any]("failed to read body"))
			return
		}

		// Signature first; nothing below runs on an unauthenticated payload.
		sig := c.GetHeader(PaddleSignatureHeader)
		if err := paddle.VerifySignature(sig, body, cfg.Paddle.WebhookSecret, time.Now()); err != nil {
			logctx.FromCtx(c, log).Warnw("webhook_signature_rejected", "error", err)
			c.JSON(http.StatusUnauthorized, response.Err[any]("invalid signature"))
			return
		}

		var event paddle.Event
		if err := json.Unmarshal(body, &event); err != nil {
			c.JSON(http.StatusBadRequest, response.Err[any]("malformed event payload"))
			return
		}

		work := proc.WorkFor(event.EventType, event.Data)
		if work == nil {
			// Unhandled event types are acknowledged so Paddle stops retrying.
			logctx.FromCtx(c, log).Infow("webhook_event_ignored", "event_type", event.EventType, "event_id", event.EventID)
			raw, _ := json.Marshal(&purchase.Result{Skipped: true, SkipReason: "event type not handled"})
			c.JSON(http.StatusOK, response.OK(&WebhookAck{NewEvent: true, Result: raw}))
			return
		}

		outcome, err := coord.Process(c.Request.Context(), types.WebhookSourcePaddle, event.EventType, event.EventID, body, work)
		if err != nil {
			if errors.Is(err, webhook.ErrEventInFlight) {
				c.JSON(http.StatusConflict, response.Err[any](err.Error()))
				return
			}
			if webhook.IsRetryable(err) {
				c.JSON(http.StatusInternalServerError, response.ErrRetryable[any](err.Error()))
				return
			}
			c.JSON(http.StatusBadRequest, response.Err[any](err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OK(&WebhookAck{NewEvent: outcome.NewEvent, Result: outcome.Result}))
	}
}

func RegisterWebhookRoutes(r gin.IRouter, cfg *cfgpkg.Config, coord *webhook.Coordinator, proc *purchase.Service, log *zap.SugaredLogger) {
	r.POST("/webhooks/paddle", ApiPaddleWebhook(cfg, coord, proc, log))
}
