package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrCorruptState       = errors.New("stored session state is unreadable")

	// Playground errors, rendered to user text by usecase.Present
	ErrCredentialMissing = errors.New("no api key configured")
	ErrUpstream          = errors.New("model provider request failed")
	ErrParse             = errors.New("model reply could not be parsed")
	ErrRender            = errors.New("preview could not be rendered")
	ErrStaleResponse     = errors.New("reply superseded by a newer request")
	ErrRateLimited       = errors.New("too many requests")
	ErrSessionBusy       = errors.New("session is busy")
	ErrUnavailable       = errors.New("feature not configured")
)
