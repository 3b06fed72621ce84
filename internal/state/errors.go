package state

import "errors"

// ErrStoreUnavailable wraps a persistence failure during Put. It is
// retryable; the in-memory state is left unchanged.
var ErrStoreUnavailable = errors.New("state: store unavailable")
