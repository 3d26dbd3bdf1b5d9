package license

import (
	"time"

	models "github.com/keymasterhq/keymaster/internal/models"
)

// Validation messages are part of the public API contract.
const (
	MsgKeyNotFound    = "License key not found"
	MsgRevoked        = "License has been revoked"
	MsgSuspended      = "License is suspended"
	MsgExpired        = "License has expired"
	MsgMaxActivations = "Maximum activations reached"
	MsgValid          = "License is valid"
)

// verdict is the outcome of the validation state machine, before any
// persistence happens.
type verdict struct {
	valid   bool
	message string
	// markExpired requests persisting status=expired.
	markExpired bool
	// newActivation requests consuming a device slot for the fingerprint.
	newActivation bool
}

// evaluate runs the validation precedence chain for a loaded license.
// activeDevices is the number of activation records currently held;
// deviceActive reports whether this fingerprint already holds one of them
// (re-validation from an activated device is idempotent and never consumes
// a second slot).
func evaluate(lic *models.License, activeDevices int, deviceActive bool, now time.Time) verdict {
	switch {
	case lic.Status == models.LicenseStatusRevoked:
		return verdict{message: MsgRevoked}
	case lic.Status == models.LicenseStatusSuspended:
		return verdict{message: MsgSuspended}
	case lic.Expired(now):
		return verdict{message: MsgExpired, markExpired: lic.Status != models.LicenseStatusExpired}
	case deviceActive:
		return verdict{valid: true, message: MsgValid}
	case activeDevices >= lic.MaxActivations:
		return verdict{message: MsgMaxActivations}
	default:
		return verdict{valid: true, message: MsgValid, newActivation: true}
	}
}
