package conversion

import "errors"

var (
	// ErrDurationTooLong rejects sessions above the hard ceiling outright;
	// they are not merely flagged.
	ErrDurationTooLong = errors.New("activity duration exceeds maximum")

	ErrInvalidRequest = errors.New("invalid conversion request")
)
