package device

import (
	"fmt"
	"strings"
)

const (
	maxIDLength   = 128
	maxNameLength = 100
)

// Validate checks the fields the registry requires of every device.
// IDs end up in MQTT topic levels, so separators and wildcards are rejected.
func Validate(d Device) error {
	if d.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidDevice)
	}
	if len(d.ID) > maxIDLength {
		return fmt.Errorf("%w: id exceeds %d characters", ErrInvalidDevice, maxIDLength)
	}
	if strings.ContainsAny(d.ID, "/+#") {
		return fmt.Errorf("%w: id %q contains a topic separator or wildcard", ErrInvalidDevice, d.ID)
	}
	if d.Owner == "" {
		return fmt.Errorf("%w: owner is required", ErrInvalidDevice)
	}
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidDevice)
	}
	if len(d.Name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidDevice, maxNameLength)
	}
	return nil
}
