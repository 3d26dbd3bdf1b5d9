package handlers

import (
	"errors"
	"net/http"

	migsvc "github.com/keymasterhq/keymaster/internal/app/service/migration"
	"github.com/keymasterhq/keymaster/pkg/response"

	"github.com/gin-gonic/gin"
)

// @Summary      Migrate RevenueCat Account
// @Description  Issues a license key for a legacy RevenueCat account with an eligible entitlement. Idempotent per app user id.
// @Tags         Migration
// @Accept       json
// @Produce      json
// @Param        request body migration.Request true "Migration request"
// @Success      200  {object}  handlers.RespMigration
// @Failure      400  {object}  handlers.RespError
// @Failure      503  {object}  handlers.RespError
// @Router       /api/v1/migrate [post]
func ApiMigrate(svc *migsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req migsvc.Request
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, response.Err[any](err.Error()))
			return
		}
		res, err := svc.Migrate(c.Request.Context(), req)
		if err != nil {
			switch {
			case errors.Is(err, migsvc.ErrNoEligiblePurchase):
				c.JSON(http.StatusBadRequest, response.Err[any](err.Error()))
			case errors.Is(err, migsvc.ErrUpstreamUnavailable):
				c.JSON(http.StatusServiceUnavailable, response.ErrRetryable[any](err.Error()))
			default:
				c.JSON(http.StatusInternalServerError, response.Err[any](err.Error()))
			}
			return
		}
		c.JSON(http.StatusOK, response.OK(res))
	}
}

func RegisterMigrationRoutes(r gin.IRouter, svc *migsvc.Service) {
	r.POST("/migrate", ApiMigrate(svc))
}
