package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"sleepystop/internal/trip"
)

func TestMessage(t *testing.T) {
	tests := []struct {
		name  string
		alert trip.AlertEvent
		style Style
		want  string
	}{
		{name: "five minutes", alert: trip.AlertEvent{Kind: trip.ThresholdCrossed, ThresholdSeconds: 300}, style: Normal, want: "Arriving in 5m"},
		{name: "seconds", alert: trip.AlertEvent{Kind: trip.ThresholdCrossed, ThresholdSeconds: 30}, style: Normal, want: "Arriving in 30s"},
		{name: "fractional minutes", alert: trip.AlertEvent{Kind: trip.ThresholdCrossed, ThresholdSeconds: 90}, style: Normal, want: "Arriving in 1.5m"},
		{name: "funny", alert: trip.AlertEvent{Kind: trip.ThresholdCrossed, ThresholdSeconds: 180}, style: Funny, want: "🚀 Wake up sleepy head! Arriving in 3m"},
		{name: "aggressive arrival", alert: trip.AlertEvent{Kind: trip.Arrived}, style: Aggressive, want: "🚨 WAKE UP!!! You have arrived"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Message(tt.alert, tt.style))
		})
	}
}

func TestParseStyle(t *testing.T) {
	assert.Equal(t, Funny, ParseStyle(" Funny "))
	assert.Equal(t, Aggressive, ParseStyle("aggressive"))
	assert.Equal(t, Normal, ParseStyle("whisper"))
	assert.Equal(t, Normal, ParseStyle(""))
}

func TestTones(t *testing.T) {
	assert.Len(t, Tones(Normal), 2)
	assert.Len(t, Tones(Funny), 3)
	aggressive := Tones(Aggressive)
	assert.Len(t, aggressive, 4)
	assert.InDelta(t, 0.9, aggressive[3].Offset, 1e-9)
	assert.Equal(t, 1200.0, aggressive[0].FrequencyHz)
}

func TestVibration(t *testing.T) {
	assert.Equal(t, []int{200}, Vibration(trip.ThresholdCrossed))
	assert.Equal(t, []int{200, 100, 200}, Vibration(trip.Arrived))
}

func TestFormatETA(t *testing.T) {
	assert.Equal(t, "—", FormatETA(nil))
	assert.Equal(t, "45s", FormatETA(trip.Float(45.9)))
	assert.Equal(t, "1m 51s", FormatETA(trip.Float(111.2)))
	assert.Equal(t, "0s", FormatETA(trip.Float(-3)))
}

func TestFormatMetrics(t *testing.T) {
	assert.Equal(t, "1.11 km", FormatDistance(1111.95))
	assert.Equal(t, "36.0 km/h", FormatSpeed(trip.Float(10)))
	assert.Equal(t, "—", FormatSpeed(nil))
	assert.Equal(t, "Alerts: none", AlertsSummary(nil))
	assert.Equal(t, "Alerts: 5m, 3m", AlertsSummary([]int{180, 300}))
}
