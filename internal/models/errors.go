package models

import "errors"

// Custom errors
var (
	ErrNotFound            = errors.New("record not found")
	ErrDuplicateKey        = errors.New("duplicate key violation")
	ErrInvalidID           = errors.New("invalid ID format")
	ErrRunNameRequired     = errors.New("run name is required")
	ErrNoTrades            = errors.New("no trades produced")
	ErrInsufficientData    = errors.New("insufficient data for window")
	ErrConstraintViolation = errors.New("hard constraint violated")
	ErrStageFailed         = errors.New("pipeline stage failed")
	ErrLeakageDetected     = errors.New("train/test leakage detected")
)
