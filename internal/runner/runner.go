package runner

import (
	"context"
	"errors"
	"log"
	"slices"
	"sync"
	"time"

	"sleepystop/internal/event"
	"sleepystop/internal/geo"
	"sleepystop/internal/notify"
	"sleepystop/internal/source"
	"sleepystop/internal/trip"
)

// Finish reasons reported to metrics.
const (
	ReasonArrived      = "arrived"
	ReasonStopped      = "stopped"
	ReasonSourceClosed = "source_closed"
)

type Metrics interface {
	TripStarted()
	TripFinished(reason string)
	SampleHandled(d time.Duration, accepted bool)
	AlertFired(kind string, threshold int)
	LocationError(kind string)
	Track(distance float64, eta *float64)
}

// Runner owns the single trip session. It subscribes to the location
// source while a trip is tracking, feeds readings into the session one at
// a time and fans every outcome out to the sinks.
type Runner struct {
	base    context.Context
	src     source.Source
	sinks   []event.Sink
	metrics Metrics
	now     func() time.Time

	lifecycle sync.Mutex // serializes Start and Stop

	mu      sync.Mutex
	session *trip.Session
	style   notify.Style
	cancel  context.CancelFunc
	done    chan struct{}
	last    *trip.TrackUpdate
	fired   []int
}

// New returns an idle runner. Watches are derived from base, so cancelling
// base releases any live subscription.
func New(base context.Context, src source.Source, metrics Metrics, sinks ...event.Sink) *Runner {
	return &Runner{
		base:    base,
		src:     src,
		sinks:   sinks,
		metrics: metrics,
		now:     time.Now,
		session: trip.NewSession(),
	}
}

// Start begins a trip, ending any trip in progress first. It returns the
// new trip id.
func (r *Runner) Start(cfg trip.Config, style notify.Style) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}

	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()
	r.stop()

	watchCtx, cancel := context.WithCancel(r.base)
	ch, err := r.src.Watch(watchCtx)
	if err != nil {
		cancel()
		return "", err
	}

	r.mu.Lock()
	if err := r.session.Start(cfg); err != nil {
		r.mu.Unlock()
		cancel()
		return "", err
	}
	id := r.session.ID()
	cfg = r.session.Config()
	r.style = style
	r.cancel = cancel
	r.done = make(chan struct{})
	r.last = nil
	r.fired = nil
	done := r.done
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.TripStarted()
	}
	r.publish(event.NewTripStarted(id, cfg, r.now()))

	go r.loop(id, ch, done)
	return id, nil
}

// Stop ends the running trip and releases the location subscription. It
// reports whether a trip was live.
func (r *Runner) Stop() bool {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()
	return r.stop()
}

func (r *Runner) stop() bool {
	r.mu.Lock()
	live := r.session.Stop()
	id, cfg := r.session.ID(), r.session.Config()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	if live {
		if r.metrics != nil {
			r.metrics.TripFinished(ReasonStopped)
		}
		r.publish(event.NewTripEnded(id, cfg, trip.StateStopped, ReasonStopped, r.now()))
	}
	return live
}

// Wait blocks until the running trip's subscription loop has exited.
func (r *Runner) Wait() {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (r *Runner) loop(id string, ch <-chan source.Reading, done chan struct{}) {
	defer close(done)
	for rd := range ch {
		switch {
		case rd.Sample != nil:
			r.handleSample(id, *rd.Sample)
		case rd.Err != nil:
			r.handleLocationError(id, rd.Err)
		}
	}

	// The source ran dry without arrival or Stop.
	r.mu.Lock()
	if r.session.ID() != id || r.session.State() != trip.StateTracking {
		r.mu.Unlock()
		return
	}
	r.session.Stop()
	cfg := r.session.Config()
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.TripFinished(ReasonSourceClosed)
	}
	r.publish(event.NewTripEnded(id, cfg, trip.StateStopped, ReasonSourceClosed, r.now()))
}

func (r *Runner) handleSample(id string, s trip.PositionSample) {
	start := time.Now()

	r.mu.Lock()
	if r.session.ID() != id {
		r.mu.Unlock()
		return
	}
	res, err := r.session.OnSample(s)
	if err != nil {
		r.mu.Unlock()
		if !errors.Is(err, trip.ErrNotTracking) {
			log.Printf("trip %s sample error: %v", id, err)
		}
		return
	}
	if res == nil {
		r.mu.Unlock()
		if r.metrics != nil {
			r.metrics.SampleHandled(time.Since(start), false)
		}
		return
	}

	u := res.Update
	r.last = &u
	style := r.style
	evs := []event.Envelope{event.NewTrack(id, u)}
	for _, a := range res.Alerts {
		if a.Kind == trip.ThresholdCrossed {
			r.fired = append(r.fired, a.ThresholdSeconds)
		}
		evs = append(evs, event.NewAlert(id, a, style))
	}
	cfg := r.session.Config()
	if res.Ended && r.cancel != nil {
		r.cancel()
	}
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.Track(u.DistanceMeters, u.ETASeconds)
	}
	for _, a := range res.Alerts {
		if r.metrics != nil {
			r.metrics.AlertFired(string(a.Kind), a.ThresholdSeconds)
		}
	}
	if res.Ended {
		evs = append(evs, event.NewTripEnded(id, cfg, trip.StateArrived, ReasonArrived, u.Timestamp))
		if r.metrics != nil {
			r.metrics.TripFinished(ReasonArrived)
		}
	}
	r.publish(evs...)
	if r.metrics != nil {
		r.metrics.SampleHandled(time.Since(start), true)
	}
}

func (r *Runner) handleLocationError(id string, lerr *trip.LocationError) {
	r.mu.Lock()
	if r.session.ID() != id {
		r.mu.Unlock()
		return
	}
	out, err := r.session.OnLocationError(lerr)
	r.mu.Unlock()
	if err != nil {
		return
	}
	if r.metrics != nil {
		r.metrics.LocationError(string(out.Kind))
	}
	r.publish(event.NewLocationError(id, out, r.now()))
}

func (r *Runner) publish(evs ...event.Envelope) {
	for _, ev := range evs {
		for _, s := range r.sinks {
			if err := s.Publish(r.base, ev); err != nil {
				log.Printf("publish %s for trip %s error: %v", ev.Key(), ev.TripID, err)
			}
		}
	}
}

// Status is a snapshot of the runner for display.
type Status struct {
	State       trip.State        `json:"state"`
	TripID      string            `json:"tripId,omitempty"`
	Destination *geo.Coordinate   `json:"destination,omitempty"`
	Thresholds  []int             `json:"thresholds,omitempty"`
	Style       notify.Style      `json:"style,omitempty"`
	Last        *trip.TrackUpdate `json:"last,omitempty"`
	Fired       []int             `json:"fired"`
	Display     Display           `json:"display"`
}

// Display holds the snapshot rendered for humans.
type Display struct {
	Distance string `json:"distance"`
	ETA      string `json:"eta"`
	Speed    string `json:"speed"`
	Alerts   string `json:"alerts"`
}

func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := Status{
		State: r.session.State(),
		Fired: slices.Clone(r.fired),
	}
	if st.Fired == nil {
		st.Fired = []int{}
	}
	slices.Sort(st.Fired)
	if st.State != trip.StateIdle {
		cfg := r.session.Config()
		dest := cfg.Destination
		st.TripID = r.session.ID()
		st.Destination = &dest
		st.Thresholds = slices.Clone(cfg.Thresholds)
		st.Style = r.style
	}
	st.Display = Display{
		Distance: "—",
		ETA:      notify.FormatETA(nil),
		Speed:    notify.FormatSpeed(nil),
		Alerts:   notify.AlertsSummary(st.Fired),
	}
	if r.last != nil {
		u := *r.last
		st.Last = &u
		st.Display.Distance = notify.FormatDistance(u.DistanceMeters)
		st.Display.ETA = notify.FormatETA(u.ETASeconds)
		st.Display.Speed = notify.FormatSpeed(u.UsedSpeedMps)
	}
	return st
}
