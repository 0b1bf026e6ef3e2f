package audit

import "errors"

var (
	ErrEmptyChain   = errors.New("audit chain is empty")
	ErrInvalidRange = errors.New("invalid audit range")
)
