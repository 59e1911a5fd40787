// Package common defines sentinel errors shared by the drawer box server
// layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors.
	ErrorInternal     = errors.New("internal error")
	ErrorInvalidInput = errors.New("invalid input")

	// Session lifecycle errors.
	ErrorInvalidSessionState = errors.New("invalid session state")

	// Drawer sequencing errors.
	ErrorNoEligibleTools    = errors.New("no eligible tools")
	ErrorNoPendingMovements = errors.New("no pending movements")

	// Device errors. Command failures are reported inside results and only
	// a capture failure aborts a confirmation.
	ErrorCaptureFailed         = errors.New("capture failed")
	ErrorHardwareCommandFailed = errors.New("hardware command failed")
)
