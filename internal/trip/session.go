package trip

import (
	"fmt"

	"github.com/google/uuid"

	"sleepystop/internal/geo"
)

// State is the lifecycle position of a Session.
type State string

const (
	StateIdle     State = "idle"
	StateTracking State = "tracking"
	StateArrived  State = "arrived"
	StateStopped  State = "stopped"
)

// Session tracks one trip at a time. It is not safe for concurrent use;
// callers deliver samples one after another.
type Session struct {
	id    string
	state State
	cfg   Config

	speed   SpeedEstimator
	tracker *ThresholdTracker

	last     *fix
	smoothed *float64
}

// NewSession returns an idle session.
func NewSession() *Session {
	return &Session{state: StateIdle}
}

// Start begins a new trip, discarding any previous trip state. On an
// invalid config the session is left as it was.
func (s *Session) Start(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	cfg = cfg.normalized()
	s.clear()
	s.id = uuid.NewString()
	s.cfg = cfg
	s.speed = NewSpeedEstimator(cfg)
	s.tracker = NewThresholdTracker(cfg)
	s.state = StateTracking
	return nil
}

// OnSample runs one sample through the pipeline. Samples with unusable
// coordinates are dropped and yield a nil result.
func (s *Session) OnSample(sample PositionSample) (*Result, error) {
	if s.state != StateTracking {
		return nil, fmt.Errorf("%w: %s", ErrNotTracking, s.state)
	}
	if !sample.Coord.Valid() {
		return nil, nil
	}

	distance := geo.Distance(sample.Coord, s.cfg.Destination)
	est := s.speed.estimate(s.last, sample, s.smoothed)
	s.smoothed = est.Smoothed
	eta := ETA(distance, est.Used)

	s.tracker.RecordInitialDistance(distance)
	res := &Result{
		Update: TrackUpdate{
			Coord:            sample.Coord,
			DistanceMeters:   distance,
			SmoothedSpeedMps: est.Smoothed,
			UsedSpeedMps:     est.Used,
			ETASeconds:       eta,
			Progress:         s.tracker.Progress(distance),
			Timestamp:        sample.Timestamp,
		},
	}
	for _, th := range s.tracker.CheckThresholds(eta) {
		res.Alerts = append(res.Alerts, AlertEvent{
			Kind:             ThresholdCrossed,
			ThresholdSeconds: th,
			DistanceMeters:   distance,
			Timestamp:        sample.Timestamp,
		})
	}

	if s.last == nil || !sample.Timestamp.Before(s.last.at) {
		s.last = &fix{coord: sample.Coord, at: sample.Timestamp}
	}

	if s.tracker.CheckArrival(distance) {
		res.Alerts = append(res.Alerts, AlertEvent{
			Kind:           Arrived,
			DistanceMeters: distance,
			Timestamp:      sample.Timestamp,
		})
		res.Ended = true
		s.clear()
		s.state = StateArrived
	}
	return res, nil
}

// OnLocationError accepts a location failure while tracking. The session
// keeps tracking; the error is handed back for delivery.
func (s *Session) OnLocationError(lerr *LocationError) (*LocationError, error) {
	if s.state != StateTracking {
		return nil, fmt.Errorf("%w: %s", ErrNotTracking, s.state)
	}
	return lerr, nil
}

// Stop ends the trip and clears its state. It is safe in any state and
// reports whether a live trip was stopped, in which case the caller should
// release its location subscription.
func (s *Session) Stop() bool {
	wasTracking := s.state == StateTracking
	s.clear()
	if wasTracking {
		s.state = StateStopped
	}
	return wasTracking
}

func (s *Session) clear() {
	s.tracker = nil
	s.last = nil
	s.smoothed = nil
}

// State returns the current lifecycle state.
func (s *Session) State() State { return s.state }

// ID returns the identifier of the current or last trip.
func (s *Session) ID() string { return s.id }

// Config returns the configuration of the current or last trip.
func (s *Session) Config() Config { return s.cfg }

// Fired returns thresholds fired so far in the running trip.
func (s *Session) Fired() []int {
	if s.tracker == nil {
		return nil
	}
	return s.tracker.Fired()
}

// InitialDistance returns the distance captured from the first sample.
func (s *Session) InitialDistance() *float64 {
	if s.tracker == nil {
		return nil
	}
	return s.tracker.InitialDistance()
}

// SmoothedSpeed returns the running speed average, nil when unknown.
func (s *Session) SmoothedSpeed() *float64 { return s.smoothed }
