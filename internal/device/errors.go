package device

import "errors"

// Domain errors for the device package.
//
//	if errors.Is(err, device.ErrRegistryUnavailable) {
//	    // retryable: the backing store could not be read
//	}
var (
	// ErrRegistryUnavailable is returned when the backing store cannot be read.
	// It is retryable; callers decide whether to fail the request or degrade.
	ErrRegistryUnavailable = errors.New("device: registry unavailable")

	// ErrInvalidDevice is returned when a device row fails validation.
	ErrInvalidDevice = errors.New("device: invalid")
)
