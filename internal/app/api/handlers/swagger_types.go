package handlers

import (
	licsvc "github.com/keymasterhq/keymaster/internal/app/service/license"
	migsvc "github.com/keymasterhq/keymaster/internal/app/service/migration"
	models "github.com/keymasterhq/keymaster/internal/models"
)

// Concrete envelope instantiations for swagger docs; the handlers themselves
// use the generic response.APIResponse.

// RespOK is a generic success envelope for endpoints returning no specific data.
type RespOK struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
}

// RespError is the error envelope shared by all failure responses.
type RespError struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}

type RespLicense struct {
	Success bool           `json:"success"`
	Data    models.License `json:"data"`
}

type RespLicenseList struct {
	Success bool                        `json:"success"`
	Data    licsvc.ScanLicensesResponse `json:"data"`
}

type RespValidation struct {
	Success bool                    `json:"success"`
	Data    licsvc.ValidationResult `json:"data"`
}

type RespWebhook struct {
	Success bool       `json:"success"`
	Data    WebhookAck `json:"data"`
}

type RespMigration struct {
	Success bool          `json:"success"`
	Data    migsvc.Result `json:"data"`
}
