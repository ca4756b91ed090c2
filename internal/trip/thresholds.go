package trip

import "math"

// ThresholdTracker owns fire-once alert thresholds, the initial distance
// used for progress, and arrival detection.
type ThresholdTracker struct {
	thresholds          []int // ascending
	arrivalRadius       float64
	minProgressDistance float64

	fired           map[int]bool
	initialDistance *float64
	arrived         bool
}

// NewThresholdTracker expects cfg to be normalized.
func NewThresholdTracker(cfg Config) *ThresholdTracker {
	return &ThresholdTracker{
		thresholds:          cfg.Thresholds,
		arrivalRadius:       cfg.ArrivalRadiusMeters,
		minProgressDistance: cfg.MinProgressDistanceMeters,
		fired:               make(map[int]bool, len(cfg.Thresholds)),
	}
}

// RecordInitialDistance keeps the first distance seen and ignores the rest.
func (t *ThresholdTracker) RecordInitialDistance(distance float64) {
	if t.initialDistance == nil {
		t.initialDistance = Float(distance)
	}
}

// InitialDistance returns the captured distance, nil before the first sample.
func (t *ThresholdTracker) InitialDistance() *float64 { return t.initialDistance }

// Progress returns the covered fraction of the initial distance in [0,1].
func (t *ThresholdTracker) Progress(distance float64) *float64 {
	if t.initialDistance == nil || *t.initialDistance <= t.minProgressDistance {
		return nil
	}
	p := (*t.initialDistance - distance) / *t.initialDistance
	return Float(math.Max(0, math.Min(1, p)))
}

// CheckThresholds marks and returns every unfired threshold that eta has
// reached, in ascending order. A nil eta crosses nothing.
func (t *ThresholdTracker) CheckThresholds(eta *float64) []int {
	if eta == nil {
		return nil
	}
	var crossed []int
	for _, th := range t.thresholds {
		if t.fired[th] || *eta > float64(th) {
			continue
		}
		t.fired[th] = true
		crossed = append(crossed, th)
	}
	return crossed
}

// CheckArrival reports arrival the first time distance is within the radius.
func (t *ThresholdTracker) CheckArrival(distance float64) bool {
	if t.arrived || distance > t.arrivalRadius {
		return false
	}
	t.arrived = true
	return true
}

// Fired returns the thresholds already fired, ascending.
func (t *ThresholdTracker) Fired() []int {
	var out []int
	for _, th := range t.thresholds {
		if t.fired[th] {
			out = append(out, th)
		}
	}
	return out
}
