package model

import "errors"

// Domain sentinel errors. Services translate these into the pkg/errors
// taxonomy at the application boundary.
var (
	ErrOrderNotFound     = errors.New("lab order not found")
	ErrResultNotFound    = errors.New("lab result not found")
	ErrOrderCancelled    = errors.New("order is cancelled")
	ErrOrderCompleted    = errors.New("order already completed")
	ErrDuplicateTestCode = errors.New("result already recorded for test code")
	ErrResultVerified    = errors.New("result already verified")
)
