package sentinel

import "errors"

// Sentinel dependency errors. Dependencies should return these (optionally wrapped)
// so services can translate them into domain errors exactly once.
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrDuplicate    = errors.New("duplicate")
	ErrUnavailable  = errors.New("unavailable")
	ErrReleased     = errors.New("released")
	ErrClosed       = errors.New("closed")
)
