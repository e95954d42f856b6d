package store

import "errors"

// Domain errors for the store package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, store.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a hostname or IP does not match any device.
	ErrDeviceNotFound = errors.New("store: device not found")

	// ErrUserNotFound is returned when a (uid, hostname) pair does not exist.
	ErrUserNotFound = errors.New("store: user not found")

	// ErrRegistrationNotFound is returned when a registration ID does not exist.
	ErrRegistrationNotFound = errors.New("store: card registration not found")

	// ErrRegistrationNotPending is returned when completing or cancelling a
	// registration that has already been resolved.
	ErrRegistrationNotPending = errors.New("store: card registration not pending")
)
