package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrDuplicateOperation = errors.New("duplicate operation")
	ErrAlreadyExists      = errors.New("already exists")
	ErrInvalidSignature   = errors.New("invalid signature")
	ErrInvalidPayload     = errors.New("invalid payload")
	ErrUnknownProduct     = errors.New("unknown product")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidPool        = errors.New("invalid credit pool")
	ErrInvariantViolation = errors.New("entitlement invariant violated")
	ErrClaimConflict      = errors.New("pending entitlement already claimed")
	ErrUnknownConsumption = errors.New("unknown consumption")
	ErrAlreadyRefunded    = errors.New("consumption already refunded")
)
