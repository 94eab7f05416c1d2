package domain

import "errors"

var (
	ErrNotFound               = errors.New("not found")
	ErrAlreadyExists          = errors.New("already exists")
	ErrRateLimited            = errors.New("rate limited")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrLockHeld               = errors.New("lock already held")
	ErrVersionConflict        = errors.New("version conflict")
	ErrInvalidTradeInput      = errors.New("invalid trade input")
	ErrInvalidChallenge       = errors.New("invalid challenge parameters")
	ErrUnknownPlan            = errors.New("unknown plan")
	ErrChallengeNotActive     = errors.New("challenge not active")
	ErrInvalidState           = errors.New("invalid state for evaluation")
	ErrTerminalStateViolation = errors.New("terminal state violation")
)
