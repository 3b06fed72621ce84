package bus

import "errors"

// ErrTransport is returned when a command cannot be handed to the broker:
// the link is down, the broker did not acknowledge in time, or the bus is
// disabled. It is retryable by the caller.
var ErrTransport = errors.New("bus: transport error")
