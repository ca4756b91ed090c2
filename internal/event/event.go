// Package event defines the envelope every outbound transport carries.
package event

import (
	"context"
	"encoding/json"
	"time"

	"sleepystop/internal/geo"
	"sleepystop/internal/notify"
	"sleepystop/internal/trip"
)

type Type string

const (
	TypeTripStarted   Type = "trip_started"
	TypeTrack         Type = "track"
	TypeAlert         Type = "alert"
	TypeLocationError Type = "location_error"
	TypeTripEnded     Type = "trip_ended"
)

// Alert is an AlertEvent dressed with its delivery cues.
type Alert struct {
	trip.AlertEvent
	Message string        `json:"message"`
	Style   notify.Style  `json:"style"`
	Tones   []notify.Tone `json:"tones"`
	Vibrate []int         `json:"vibrate"`
}

// Trip describes a trip lifecycle change.
type Trip struct {
	Destination geo.Coordinate `json:"destination"`
	Thresholds  []int          `json:"thresholds,omitempty"`
	State       trip.State     `json:"state"`
	// Reason says why an ended trip ended: arrived, stopped or source_closed.
	Reason string `json:"reason,omitempty"`
}

// Envelope wraps exactly one payload.
type Envelope struct {
	Type          Type                `json:"type"`
	TripID        string              `json:"tripId"`
	Timestamp     time.Time           `json:"timestamp"`
	Trip          *Trip               `json:"trip,omitempty"`
	Track         *trip.TrackUpdate   `json:"track,omitempty"`
	Alert         *Alert              `json:"alert,omitempty"`
	LocationError *trip.LocationError `json:"locationError,omitempty"`
}

// Sink receives envelopes. Implementations must not block for long; the
// tracking loop waits on them.
type Sink interface {
	Publish(ctx context.Context, ev Envelope) error
}

func NewTrack(tripID string, u trip.TrackUpdate) Envelope {
	return Envelope{Type: TypeTrack, TripID: tripID, Timestamp: u.Timestamp, Track: &u}
}

func NewAlert(tripID string, a trip.AlertEvent, style notify.Style) Envelope {
	return Envelope{
		Type:      TypeAlert,
		TripID:    tripID,
		Timestamp: a.Timestamp,
		Alert: &Alert{
			AlertEvent: a,
			Message:    notify.Message(a, style),
			Style:      style,
			Tones:      notify.Tones(style),
			Vibrate:    notify.Vibration(a.Kind),
		},
	}
}

func NewLocationError(tripID string, lerr *trip.LocationError, at time.Time) Envelope {
	return Envelope{Type: TypeLocationError, TripID: tripID, Timestamp: at, LocationError: lerr}
}

func NewTripStarted(tripID string, cfg trip.Config, at time.Time) Envelope {
	return Envelope{
		Type:      TypeTripStarted,
		TripID:    tripID,
		Timestamp: at,
		Trip:      &Trip{Destination: cfg.Destination, Thresholds: cfg.Thresholds, State: trip.StateTracking},
	}
}

func NewTripEnded(tripID string, cfg trip.Config, state trip.State, reason string, at time.Time) Envelope {
	return Envelope{
		Type:      TypeTripEnded,
		TripID:    tripID,
		Timestamp: at,
		Trip:      &Trip{Destination: cfg.Destination, State: state, Reason: reason},
	}
}

// Key is a dot-separated routing key, e.g. "alert.arrived" or "track".
func (e Envelope) Key() string {
	switch {
	case e.Alert != nil:
		return string(e.Type) + "." + string(e.Alert.Kind)
	case e.LocationError != nil:
		return string(e.Type) + "." + string(e.LocationError.Kind)
	default:
		return string(e.Type)
	}
}

func (e Envelope) Marshal() ([]byte, error) { return json.Marshal(e) }
