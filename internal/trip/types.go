package trip

import (
	"math"
	"time"

	"sleepystop/internal/geo"
)

// PositionSample is one reading from the location source.
type PositionSample struct {
	Coord geo.Coordinate `json:"coord"`
	// ReportedSpeed is the sensor speed in m/s, nil when the sensor has none.
	ReportedSpeed *float64 `json:"reportedSpeed,omitempty"`
	// Accuracy is the horizontal accuracy radius in meters.
	Accuracy  *float64  `json:"accuracy,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// TrackUpdate is emitted once for every accepted sample.
type TrackUpdate struct {
	Coord            geo.Coordinate `json:"coord"`
	DistanceMeters   float64        `json:"distanceMeters"`
	SmoothedSpeedMps *float64       `json:"smoothedSpeedMps,omitempty"`
	UsedSpeedMps     *float64       `json:"usedSpeedMps,omitempty"`
	// ETASeconds is nil while no usable speed is known.
	ETASeconds *float64 `json:"etaSeconds,omitempty"`
	// Progress is in [0,1], nil until the initial distance is meaningful.
	Progress  *float64  `json:"progress,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// AlertKind distinguishes threshold alerts from arrival.
type AlertKind string

const (
	ThresholdCrossed AlertKind = "threshold_crossed"
	Arrived          AlertKind = "arrived"
)

// AlertEvent is a user-facing alert produced by a sample.
type AlertEvent struct {
	Kind AlertKind `json:"kind"`
	// ThresholdSeconds is set for ThresholdCrossed only.
	ThresholdSeconds int       `json:"thresholdSeconds,omitempty"`
	DistanceMeters   float64   `json:"distanceMeters"`
	Timestamp        time.Time `json:"timestamp"`
}

// Result is everything a single sample produced.
type Result struct {
	Update TrackUpdate
	// Alerts holds threshold crossings in ascending order, then Arrived.
	Alerts []AlertEvent
	// Ended is true when the sample finished the trip and the caller
	// should release its location subscription.
	Ended bool
}

// Float returns a pointer to v, for optional fields.
func Float(v float64) *float64 { return &v }

func finite(v *float64) bool {
	return v != nil && !math.IsNaN(*v) && !math.IsInf(*v, 0)
}
