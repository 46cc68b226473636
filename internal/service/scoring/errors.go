package scoring

import "errors"

// Sentinel errors for the scoring service layer.
var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrBatchInProgress = errors.New("lead scoring batch already running")
)
