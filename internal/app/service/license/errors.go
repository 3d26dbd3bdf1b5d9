package license

import "errors"

var (
	// ErrLicenseNotFound is returned when no license matches the given key or id.
	ErrLicenseNotFound = errors.New("license not found")
	// ErrDeviceNotActivated is returned by Deactivate when the fingerprint
	// holds no activation slot on the license.
	ErrDeviceNotActivated = errors.New("device is not activated on this license")
)
