package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/keymasterhq/keymaster/internal/app/service/mailqueue"
	"github.com/keymasterhq/keymaster/internal/app/service/purchase"
	"github.com/keymasterhq/keymaster/internal/app/service/webhook"
	"github.com/keymasterhq/keymaster/internal/platform/paddle"
	"github.com/keymasterhq/keymaster/pkg/response"
	types "github.com/keymasterhq/keymaster/pkg/types"

	"github.com/gin-gonic/gin"
)

func limitQuery(c *gin.Context) int {
	n, _ := strconv.Atoi(c.Query("limit"))
	return n
}

// @Summary      Email Queue Statistics (Admin)
// @Tags         Admin
// @Produce      json
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/admin/email_queue/stats [get]
func ApiEmailQueueStats(queue *mailqueue.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := queue.Stats(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, response.Err[any](err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OK(stats))
	}
}

// @Summary      List Failed Emails (Admin)
// @Tags         Admin
// @Produce      json
// @Param        limit query int false "Max rows to return"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/admin/email_queue/failed [get]
func ApiEmailQueueFailed(queue *mailqueue.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		items, err := queue.ListFailed(c.Request.Context(), limitQuery(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, response.Err[any](err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OK(items))
	}
}

// @Summary      Retry Failed Email (Admin)
// @Description  Resets a permanently failed email and attempts delivery immediately.
// @Tags         Admin
// @Produce      json
// @Param        id path string true "Email queue item id"
// @Success      200  {object}  handlers.RespOK
// @Failure      400  {object}  handlers.RespError
// @Router       /api/v1/admin/email_queue/{id}/retry [post]
func ApiEmailQueueRetry(queue *mailqueue.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		item, err := queue.Retry(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, response.Err[any](err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OK(item))
	}
}

// @Summary      Webhook Event Statistics (Admin)
// @Tags         Admin
// @Produce      json
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/admin/webhook_events/stats [get]
func ApiWebhookEventStats(coord *webhook.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := coord.Stats(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, response.Err[any](err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OK(stats))
	}
}

// @Summary      List Failed Webhook Events (Admin)
// @Tags         Admin
// @Produce      json
// @Param        limit query int false "Max rows to return"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/admin/webhook_events/failed [get]
func ApiWebhookEventsFailed(coord *webhook.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		events, err := coord.ListFailed(c.Request.Context(), limitQuery(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, response.Err[any](err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OK(events))
	}
}

// @Summary      Retry Webhook Event (Admin)
// @Description  Resets a failed event and re-runs its work under the usual idempotency protection.
// @Tags         Admin
// @Produce      json
// @Param        id path string true "Webhook event id"
// @Success      200  {object}  handlers.RespWebhook
// @Failure      400  {object}  handlers.RespError
// @Router       /api/v1/admin/webhook_events/{id}/retry [post]
func ApiWebhookEventRetry(coord *webhook.Coordinator, proc *purchase.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		event, err := coord.ResetForRetry(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, response.Err[any](err.Error()))
			return
		}
		if event.Source != types.WebhookSourcePaddle {
			c.JSON(http.StatusBadRequest, response.Err[any]("no dispatcher for source "+string(event.Source)))
			return
		}

		var pe paddle.Event
		if err := json.Unmarshal(event.Payload, &pe); err != nil {
			c.JSON(http.StatusBadRequest, response.Err[any]("stored payload is not a valid event"))
			return
		}
		work := proc.WorkFor(event.EventType, pe.Data)
		if work == nil {
			c.JSON(http.StatusBadRequest, response.Err[any]("no handler for event type "+event.EventType))
			return
		}

		outcome, err := coord.Process(c.Request.Context(), event.Source, event.EventType, event.EventID, event.Payload, work)
		if err != nil {
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

func RegisterAdminRoutes(r gin.IRouter, queue *mailqueue.Service, coord *webhook.Coordinator, proc *purchase.Service) {
	r.GET("/email_queue/stats", ApiEmailQueueStats(queue))
	r.GET("/email_queue/failed", ApiEmailQueueFailed(queue))
	r.POST("/email_queue/:id/retry", ApiEmailQueueRetry(queue))
	r.GET("/webhook_events/stats", ApiWebhookEventStats(coord))
	r.GET("/webhook_events/failed", ApiWebhookEventsFailed(coord))
	r.POST("/webhook_events/:id/retry", ApiWebhookEventRetry(coord, proc))
}
