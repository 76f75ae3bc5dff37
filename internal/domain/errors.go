package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrValidation        = errors.New("validation failed")
	ErrRiskCheck         = errors.New("risk check failed")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotRunning        = errors.New("simulation not running")
	ErrAlreadyRunning    = errors.New("simulation already running")
	ErrBookUnavailable   = errors.New("order book unavailable")
	ErrLockHeld          = errors.New("lock held by another holder")
)
