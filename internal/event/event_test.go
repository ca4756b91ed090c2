package event

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sleepystop/internal/notify"
	"sleepystop/internal/trip"
)

func TestNewAlertCarriesCues(t *testing.T) {
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	ev := NewAlert("trip-1", trip.AlertEvent{Kind: trip.ThresholdCrossed, ThresholdSeconds: 300, Timestamp: at}, notify.Funny)

	assert.Equal(t, TypeAlert, ev.Type)
	assert.Equal(t, at, ev.Timestamp)
	require.NotNil(t, ev.Alert)
	assert.Equal(t, "🚀 Wake up sleepy head! Arriving in 5m", ev.Alert.Message)
	assert.Len(t, ev.Alert.Tones, 3)
	assert.Equal(t, []int{200}, ev.Alert.Vibrate)
	assert.Equal(t, "alert.threshold_crossed", ev.Key())
}

func TestEnvelopeKey(t *testing.T) {
	assert.Equal(t, "track", NewTrack("t", trip.TrackUpdate{}).Key())
	assert.Equal(t, "alert.arrived", NewAlert("t", trip.AlertEvent{Kind: trip.Arrived}, notify.Normal).Key())
	assert.Equal(t, "location_error.permission_denied",
		NewLocationError("t", &trip.LocationError{Kind: trip.PermissionDenied}, time.Time{}).Key())
	assert.Equal(t, "trip_ended", NewTripEnded("t", trip.Config{}, trip.StateStopped, "stopped", time.Time{}).Key())
}

func TestEnvelopeJSONOmitsUnknownETA(t *testing.T) {
	ev := NewTrack("trip-1", trip.TrackUpdate{DistanceMeters: 120})
	b, err := ev.Marshal()
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(b, &raw))
	assert.Equal(t, "track", raw["type"])
	track := raw["track"].(map[string]any)
	assert.NotContains(t, track, "etaSeconds")
	assert.Equal(t, 120.0, track["distanceMeters"])
	assert.NotContains(t, raw, "alert")
}
