// Package source provides location feeds for a trip: positions pushed over
// HTTP, an XGPS UDP listener, and a simulated replay along a stored route.
package source

import (
	"context"
	"errors"

	"sleepystop/internal/trip"
)

var ErrNotWatching = errors.New("source has no active watch")

// Reading carries exactly one of a position sample or a location error.
type Reading struct {
	Sample *trip.PositionSample
	Err    *trip.LocationError
}

// Source starts a location subscription. The returned channel is closed
// when ctx is cancelled or the source runs out of positions.
type Source interface {
	Watch(ctx context.Context) (<-chan Reading, error)
}

// Locator answers a one-off position request.
type Locator interface {
	Current(ctx context.Context) (trip.PositionSample, error)
}

func send(ctx context.Context, ch chan<- Reading, r Reading) bool {
	select {
	case ch <- r:
		return true
	case <-ctx.Done():
		return false
	}
}

func unavailable(msg string) *trip.LocationError {
	return &trip.LocationError{Kind: trip.Unavailable, Message: msg}
}
