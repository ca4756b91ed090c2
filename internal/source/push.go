package source

import (
	"context"
	"errors"
	"sync"

	"sleepystop/internal/trip"
)

var ErrBackpressure = errors.New("reading dropped: consumer is behind")

// Push is fed by callers (the HTTP position endpoint). Only one watch is
// live at a time; a new Watch replaces the previous one.
type Push struct {
	mu   sync.Mutex
	ch   chan Reading
	last *trip.PositionSample
}

func NewPush() *Push { return &Push{} }

func (p *Push) Watch(ctx context.Context) (<-chan Reading, error) {
	ch := make(chan Reading, 32)
	p.mu.Lock()
	if p.ch != nil {
		close(p.ch)
	}
	p.ch = ch
	p.last = nil
	p.mu.Unlock()

	go func() {
		<-ctx.Done()
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.ch == ch {
			close(ch)
			p.ch = nil
		}
	}()
	return ch, nil
}

// Publish hands r to the live watch without blocking.
func (p *Push) Publish(r Reading) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		return ErrNotWatching
	}
	if r.Sample != nil {
		s := *r.Sample
		p.last = &s
	}
	select {
	case p.ch <- r:
		return nil
	default:
		return ErrBackpressure
	}
}

// Watching reports whether a watch is live.
func (p *Push) Watching() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch != nil
}

// Current returns the last sample pushed to the live watch.
func (p *Push) Current(context.Context) (trip.PositionSample, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		return trip.PositionSample{}, unavailable("no position received yet")
	}
	return *p.last, nil
}
