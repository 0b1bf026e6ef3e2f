package batch

import "errors"

var (
	ErrBatchNotFound   = errors.New("batch not found")
	ErrEmptyBatch      = errors.New("batch has no items")
	ErrNotQueued       = errors.New("batch is not in a runnable state")
	ErrAlreadyTerminal = errors.New("batch already reached a terminal state")
	ErrNothingToRetry  = errors.New("no retryable failed items")
)
