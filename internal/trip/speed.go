package trip

import (
	"math"
	"time"

	"sleepystop/internal/geo"
)

// fix is the last accepted position and when it was taken.
type fix struct {
	coord geo.Coordinate
	at    time.Time
}

// SpeedEstimate is the outcome of one estimator step.
type SpeedEstimate struct {
	// Instant is the raw candidate for this sample, reported or derived.
	Instant *float64
	// Smoothed is the running average after this sample.
	Smoothed *float64
	// Used is the speed ETA should be computed from.
	Used *float64
}

// SpeedEstimator derives and smooths speed from position samples.
type SpeedEstimator struct {
	alpha           float64
	minValid        float64
	maxValid        float64
	minInterval     time.Duration
	minDisplacement float64
}

// NewSpeedEstimator builds an estimator from the trip configuration.
func NewSpeedEstimator(cfg Config) SpeedEstimator {
	return SpeedEstimator{
		alpha:           cfg.SpeedSmoothingAlpha,
		minValid:        cfg.MinValidSpeed,
		maxValid:        cfg.MaxValidSpeed,
		minInterval:     cfg.MinSampleInterval,
		minDisplacement: cfg.MinDisplacementMeters,
	}
}

// candidate returns the instantaneous speed for cur. A finite non-negative
// reported speed wins; otherwise it is derived from prev when enough time
// has passed and the move exceeds the jitter floor.
func (e SpeedEstimator) candidate(prev *fix, cur PositionSample) *float64 {
	if finite(cur.ReportedSpeed) && *cur.ReportedSpeed >= 0 {
		return Float(*cur.ReportedSpeed)
	}
	if prev == nil {
		return nil
	}
	dt := cur.Timestamp.Sub(prev.at)
	if dt <= 0 || dt < e.minInterval {
		return nil
	}
	floor := e.minDisplacement
	if finite(cur.Accuracy) && *cur.Accuracy > floor {
		floor = *cur.Accuracy
	}
	d := geo.Distance(prev.coord, cur.Coord)
	if d <= floor {
		return nil
	}
	return Float(d / dt.Seconds())
}

func (e SpeedEstimator) valid(v *float64) bool {
	return v != nil && *v > e.minValid && *v < e.maxValid
}

// estimate folds cur into the smoothed speed. An invalid or missing
// candidate leaves smoothed untouched.
func (e SpeedEstimator) estimate(prev *fix, cur PositionSample, smoothed *float64) SpeedEstimate {
	instant := e.candidate(prev, cur)

	next := smoothed
	if e.valid(instant) {
		if smoothed == nil {
			next = Float(*instant)
		} else {
			next = Float(e.alpha*(*instant) + (1-e.alpha)*(*smoothed))
		}
	}

	var used *float64
	switch {
	case next != nil && *next > e.minValid:
		used = next
	case instant != nil && *instant > e.minValid:
		used = instant
	}
	return SpeedEstimate{Instant: instant, Smoothed: next, Used: used}
}

// ETA returns the seconds needed to cover distance at speed, or nil when
// speed is unknown or not positive.
func ETA(distance float64, speed *float64) *float64 {
	if speed == nil || *speed <= 0 || math.IsNaN(*speed) {
		return nil
	}
	return Float(distance / *speed)
}
