package domain

import "errors"

var (
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrInvalidTimeRange   = errors.New("invalid time range")
	ErrWindowExpired      = errors.New("edit window expired")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrDuplicateRequest   = errors.New("duplicate edit request")
	ErrInvalidInput       = errors.New("invalid input")
)
