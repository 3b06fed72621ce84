package fulfilment

import "errors"

var (
	// ErrBadRequest means the envelope is missing required fields. The
	// transport answers 400.
	ErrBadRequest = errors.New("fulfilment: bad request")

	// ErrInternal means the request could not be completed because a
	// dependency failed or the deadline passed. The response envelope still
	// carries internalError; the transport answers 500.
	ErrInternal = errors.New("fulfilment: internal error")
)
