package source

import (
	"context"
	"time"
)

// FallbackMessage is the text of the error forwarded when the fallback
// fix fails as well.
const FallbackMessage = "unable to determine location"

// WithFallback forwards every reading of src. After each location error
// it asks loc for one low-accuracy fix and forwards either that fix or a
// second Unavailable error.
type WithFallback struct {
	src     Source
	loc     Locator
	timeout time.Duration
}

func NewWithFallback(src Source, loc Locator, timeout time.Duration) *WithFallback {
	return &WithFallback{src: src, loc: loc, timeout: timeout}
}

func (f *WithFallback) Watch(ctx context.Context) (<-chan Reading, error) {
	in, err := f.src.Watch(ctx)
	if err != nil {
		return nil, err
	}
	out := make(chan Reading, cap(in)+1)
	go func() {
		defer close(out)
		for r := range in {
			if !send(ctx, out, r) {
				return
			}
			if r.Err == nil {
				continue
			}
			if !send(ctx, out, f.fallback(ctx)) {
				return
			}
		}
	}()
	return out, nil
}

func (f *WithFallback) fallback(ctx context.Context) Reading {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}
	s, err := f.loc.Current(ctx)
	if err != nil {
		return Reading{Err: unavailable(FallbackMessage)}
	}
	// A fallback fix is coarse: neither its accuracy nor its speed is trusted.
	s.Accuracy = nil
	s.ReportedSpeed = nil
	return Reading{Sample: &s}
}
