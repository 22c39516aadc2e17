package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrQueueFull          = errors.New("generation queue is full")
	ErrProviderFailure    = errors.New("provider failure")
	ErrProviderAuth       = errors.New("provider authentication failed")
	ErrProviderTimeout    = errors.New("provider timed out")

	// ErrJobNotActive is returned when a transition targets a job that has
	// already reached a terminal status.
	ErrJobNotActive = errors.New("job is no longer active")
)

// ValidationError describes a rejected field of an inbound generation request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Is lets callers match any validation failure with ErrInvalidRequest.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidRequest
}
