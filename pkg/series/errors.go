package series

import "errors"

var (
	// ErrMalformedName indicates a series name that does not encode a store and container.
	ErrMalformedName = errors.New("malformed series name")
	// ErrMissingColumn indicates a series lacks a column required to decode its points.
	ErrMissingColumn = errors.New("missing series column")
	// ErrBadValue indicates a point value that cannot be converted to the expected type.
	ErrBadValue = errors.New("bad point value")
	// ErrQueryStatus indicates the time-series store answered with a non-2xx status.
	ErrQueryStatus = errors.New("unexpected query status")
)
