package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDeviceOnline) {
//	    // refuse the delete
//	}
var (
	// ErrDeviceOnline is returned when deleting a device that is still online.
	// Devices must go offline (or time out) before they can be removed.
	ErrDeviceOnline = errors.New("device: still online")
)
