package trip

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig is returned by Start when the trip configuration is rejected.
	ErrInvalidConfig = errors.New("invalid trip config")
	// ErrNotTracking is returned when a sample arrives outside the Tracking state.
	ErrNotTracking = errors.New("session is not tracking")
)

// LocationErrorKind classifies a failure of the location source.
type LocationErrorKind string

const (
	PermissionDenied LocationErrorKind = "permission_denied"
	Unavailable      LocationErrorKind = "unavailable"
)

// LocationError is a recoverable failure reported by the location source.
// It never ends a trip.
type LocationError struct {
	Kind    LocationErrorKind `json:"kind"`
	Message string            `json:"message,omitempty"`
}

func (e *LocationError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("location error: %s", e.Kind)
	}
	return fmt.Sprintf("location error: %s: %s", e.Kind, e.Message)
}

// LocationErrorFromCode maps a geolocation API error code (1 permission
// denied, 2 position unavailable, 3 timeout) to a LocationError.
func LocationErrorFromCode(code int, msg string) *LocationError {
	if code == 1 {
		return &LocationError{Kind: PermissionDenied, Message: msg}
	}
	return &LocationError{Kind: Unavailable, Message: msg}
}
