package handlers

import (
	"errors"
	"net/http"

	licsvc "github.com/keymasterhq/keymaster/internal/app/service/license"
	"github.com/keymasterhq/keymaster/pkg/response"

	"github.com/gin-gonic/gin"
)

// KeyedDeviceRequest is the shared body of the key-addressed device
// operations (validate, check, deactivate).
type KeyedDeviceRequest struct {
	LicenseKey        string `json:"license_key" binding:"required"`
	DeviceFingerprint string `json:"device_fingerprint"`
}

func deviceInfo(c *gin.Context, req *KeyedDeviceRequest) licsvc.DeviceInfo {
	return licsvc.DeviceInfo{
		Fingerprint: req.DeviceFingerprint,
		IPAddress:   c.ClientIP(),
		UserAgent:   c.Request.UserAgent(),
	}
}

// @Summary      Create License (Admin)
// @Description  Issues a new license key for a user.
// @Tags         License
// @Accept       json
// @Produce      json
// @Param        request body license.CreateLicenseRequest true "Create license request"
// @Success      201  {object}  handlers.RespLicense
// @Router       /api/v1/licenses [post]
func ApiCreateLicense(svc *licsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req licsvc.CreateLicenseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, response.Err[any](err.Error()))
			return
		}
		lic, err := svc.Create(c.Request.Context(), &req)
		if err != nil {
			c.JSON(http.StatusInternalServerError, response.Err[any](err.Error()))
			return
		}
		c.JSON(http.StatusCreated, response.OK(lic))
	}
}

// @Summary      Get License (Admin)
// @Tags         License
// @Produce      json
// @Param        id path string true "License id"
// @Success      200  {object}  handlers.RespLicense
// @Failure      404  {object}  handlers.RespError
// @Router       /api/v1/licenses/{id} [get]
func ApiGetLicense(svc *licsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		lic, err := svc.GetByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			if errors.Is(err, licsvc.ErrLicenseNotFound) {
				c.JSON(http.StatusNotFound, response.Err[any](err.Error()))
				return
			}
			c.JSON(http.StatusInternalServerError, response.Err[any](err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OK(lic))
	}
}

// @Summary      Get License by Key (Admin)
// @Tags         License
// @Produce      json
// @Param        key path string true "License key"
// @Success      200  {object}  handlers.RespLicense
// @Failure      404  {object}  handlers.RespError
// @Router       /api/v1/licenses/key/{key} [get]
func ApiGetLicenseByKey(svc *licsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		lic, err := svc.GetByKey(c.Request.Context(), c.Param("key"))
		if err != nil {
			if errors.Is(err, licsvc.ErrLicenseNotFound) {
				c.JSON(http.StatusNotFound, response.Err[any](err.Error()))
				return
			}
			c.JSON(http.StatusInternalServerError, response.Err[any](err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OK(lic))
	}
}

// @Summary      List Licenses (Admin)
// @Description  Paginated, filterable license listing.
// @Tags         License
// @Accept       json
// @Produce      json
// @Param        request body license.ScanLicensesRequest true "List request with filters, pagination, and sorting"
// @Success      200  {object}  handlers.RespLicenseList
// @Router       /api/v1/licenses/list [post]
func ApiListLicenses(svc *licsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req licsvc.ScanLicensesRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, response.Err[any](err.Error()))
			return
		}
		res, err := svc.Scan(c.Request.Context(), &req)
		if err != nil {
			c.JSON(http.StatusInternalServerError, response.Err[any](err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OK(res))
	}
}

// @Summary      Update License (Admin)
// @Tags         License
// @Accept       json
// @Produce      json
// @Param        id path string true "License id"
// @Param        request body license.UpdateLicenseRequest true "Fields to update"
// @Success      200  {object}  handlers.RespLicense
// @Failure      404  {object}  handlers.RespError
// @Router       /api/v1/licenses/{id} [patch]
func ApiUpdateLicense(svc *licsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req licsvc.UpdateLicenseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, response.Err[any](err.Error()))
			return
		}
		lic, err := svc.Update(c.Request.Context(), c.Param("id"), &req)
		if err != nil {
			if errors.Is(err, licsvc.ErrLicenseNotFound) {
				c.JSON(http.StatusNotFound, response.Err[any](err.Error()))
				return
			}
			c.JSON(http.StatusInternalServerError, response.Err[any](err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OK(lic))
	}
}

type RevokeLicenseRequest struct {
	Reason string `json:"reason"`
}

// @Summary      Revoke License (Admin)
// @Description  Marks a license revoked. Revoking an already revoked license is a no-op.
// @Tags         License
// @Accept       json
// @Produce      json
// @Param        id path string true "License id"
// @Param        request body RevokeLicenseRequest false "Revocation reason"
// @Success      200  {object}  handlers.RespLicense
// @Failure      404  {object}  handlers.RespError
// @Router       /api/v1/licenses/{id}/revoke [post]
func ApiRevokeLicense(svc *licsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RevokeLicenseRequest
		_ = c.ShouldBindJSON(&req)
		lic, err := svc.Revoke(c.Request.Context(), c.Param("id"), req.Reason)
		if err != nil {
			if errors.Is(err, licsvc.ErrLicenseNotFound) {
				c.JSON(http.StatusNotFound, response.Err[any](err.Error()))
				return
			}
			c.JSON(http.StatusInternalServerError, response.Err[any](err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OK(lic))
	}
}

// @Summary      Delete License (Admin)
// @Description  Removes a license and its device activations.
// @Tags         License
// @Param        id path string true "License id"
// @Success      204
// @Failure      404  {object}  handlers.RespError
// @Router       /api/v1/licenses/{id} [delete]
func ApiDeleteLicense(svc *licsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
			if errors.Is(err, licsvc.ErrLicenseNotFound) {
				c.JSON(http.StatusNotFound, response.Err[any](err.Error()))
				return
			}
			c.JSON(http.StatusInternalServerError, response.Err[any](err.Error()))
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// @Summary      Validate License
// @Description  Validates a license key and activates the presenting device. Returns 200 with valid=false for rejected keys.
// @Tags         License
// @Accept       json
// @Produce      json
// @Param        request body KeyedDeviceRequest true "License key and device fingerprint"
// @Success      200  {object}  handlers.RespValidation
// @Router       /api/v1/licenses/validate [post]
func ApiValidateLicense(svc *licsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req KeyedDeviceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, response.Err[any](err.Error()))
			return
		}
		res, err := svc.Validate(c.Request.Context(), req.LicenseKey, deviceInfo(c, &req))
		if err != nil {
			c.JSON(http.StatusInternalServerError, response.Err[any](err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OK(res))
	}
}

// @Summary      Check License
// @Description  Read-only validation. Never consumes an activation slot and leaves no audit trail.
// @Tags         License
// @Accept       json
// @Produce      json
// @Param        request body KeyedDeviceRequest true "License key and device fingerprint"
// @Success      200  {object}  handlers.RespValidation
// @Router       /api/v1/licenses/check [post]
func ApiCheckLicense(svc *licsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req KeyedDeviceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, response.Err[any](err.Error()))
			return
		}
		res, err := svc.Check(c.Request.Context(), req.LicenseKey, deviceInfo(c, &req))
		if err != nil {
			c.JSON(http.StatusInternalServerError, response.Err[any](err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OK(res))
	}
}

// @Summary      Deactivate Device
// @Description  Frees the activation slot held by the given device fingerprint.
// @Tags         License
// @Accept       json
// @Produce      json
// @Param        request body KeyedDeviceRequest true "License key and device fingerprint"
// @Success      200  {object}  handlers.RespOK
// @Failure      404  {object}  handlers.RespError
// @Router       /api/v1/licenses/deactivate [post]
func ApiDeactivateLicense(svc *licsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req KeyedDeviceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, response.Err[any](err.Error()))
			return
		}
		err := svc.Deactivate(c.Request.Context(), req.LicenseKey, deviceInfo(c, &req))
		switch {
		case errors.Is(err, licsvc.ErrLicenseNotFound):
			c.JSON(http.StatusNotFound, response.Err[any](err.Error()))
		case errors.Is(err, licsvc.ErrDeviceNotActivated):
			c.JSON(http.StatusBadRequest, response.Err[any](err.Error()))
		case err != nil:
			c.JSON(http.StatusInternalServerError, response.Err[any](err.Error()))
		default:
			c.JSON(http.StatusOK, response.OK[any](nil))
		}
	}
}

func RegisterLicenseRoutes(r gin.IRouter, svc *licsvc.Service) {
	r.POST("/licenses", ApiCreateLicense(svc))
	r.POST("/licenses/list", ApiListLicenses(svc))
	r.POST("/licenses/validate", ApiValidateLicense(svc))
	r.POST("/licenses/check", ApiCheckLicense(svc))
	r.POST("/licenses/deactivate", ApiDeactivateLicense(svc))
	r.GET("/licenses/key/:key", ApiGetLicenseByKey(svc))
	r.GET("/licenses/:id", ApiGetLicense(svc))
	r.PATCH("/licenses/:id", ApiUpdateLicense(svc))
	r.DELETE("/licenses/:id", ApiDeleteLicense(svc))
	r.POST("/licenses/:id/revoke", ApiRevokeLicense(svc))
}
