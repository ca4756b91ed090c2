// Package notify holds the user-facing side of alerts: wording per alert
// style, sound and vibration cues, and display formatting of trip metrics.
// It decides what to say; sinks decide how to deliver it.
package notify

import (
	"fmt"
	"strings"

	"sleepystop/internal/trip"
)

// Style selects the tone of alert messages.
type Style string

const (
	Normal     Style = "normal"
	Funny      Style = "funny"
	Aggressive Style = "aggressive"
)

// ParseStyle maps a name to a Style. Unknown names fall back to Normal.
func ParseStyle(s string) Style {
	switch Style(strings.ToLower(strings.TrimSpace(s))) {
	case Funny:
		return Funny
	case Aggressive:
		return Aggressive
	default:
		return Normal
	}
}

func (s Style) prefix() string {
	switch s {
	case Funny:
		return "🚀 Wake up sleepy head! "
	case Aggressive:
		return "🚨 WAKE UP!!! "
	default:
		return ""
	}
}

// Tone is one beep of an alarm pattern. Offset and Length are in seconds.
type Tone struct {
	FrequencyHz float64 `json:"frequencyHz"`
	Offset      float64 `json:"offset"`
	Length      float64 `json:"length"`
	Volume      float64 `json:"volume"`
}

// Tones returns the alarm pattern for s.
func Tones(s Style) []Tone {
	switch s {
	case Funny:
		return []Tone{
			{FrequencyHz: 500, Offset: 0, Length: 0.15, Volume: 0.7},
			{FrequencyHz: 700, Offset: 0.2, Length: 0.15, Volume: 0.7},
			{FrequencyHz: 900, Offset: 0.4, Length: 0.2, Volume: 0.7},
		}
	case Aggressive:
		tones := make([]Tone, 0, 4)
		for i := 0; i < 4; i++ {
			tones = append(tones, Tone{FrequencyHz: 1200, Offset: float64(i) * 0.3, Length: 0.2, Volume: 1.0})
		}
		return tones
	default:
		return []Tone{
			{FrequencyHz: 700, Offset: 0, Length: 0.15, Volume: 0.6},
			{FrequencyHz: 700, Offset: 0.25, Length: 0.15, Volume: 0.6},
		}
	}
}

// Vibration returns the vibrate pattern in milliseconds for an alert kind.
func Vibration(kind trip.AlertKind) []int {
	if kind == trip.Arrived {
		return []int{200, 100, 200}
	}
	return []int{200}
}

// ThresholdLabel renders a threshold as minutes when it is at least one
// minute ("5m", "1.5m") and as seconds otherwise ("30s").
func ThresholdLabel(seconds int) string {
	if seconds >= 60 {
		return fmt.Sprintf("%gm", float64(seconds)/60)
	}
	return fmt.Sprintf("%ds", seconds)
}

// Message returns the text for an alert in the given style.
func Message(a trip.AlertEvent, s Style) string {
	var msg string
	switch a.Kind {
	case trip.Arrived:
		msg = "You have arrived"
	default:
		msg = "Arriving in " + ThresholdLabel(a.ThresholdSeconds)
	}
	return s.prefix() + msg
}
