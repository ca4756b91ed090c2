package source

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"sleepystop/internal/db"
	"sleepystop/internal/geo"
	"sleepystop/internal/trip"
)

// Shape replays a route polyline at a constant speed. Sample timestamps
// advance by exactly one interval per tick.
type Shape struct {
	pts         []db.ShapePoint
	cum         []float64
	speed       float64
	interval    time.Duration
	reportSpeed bool
	now         func() time.Time

	mu   sync.Mutex
	last *trip.PositionSample
}

func NewShape(pts []db.ShapePoint, speedMps float64, interval time.Duration, reportSpeed bool) (*Shape, error) {
	if len(pts) < 2 {
		return nil, errors.New("shape needs at least two points")
	}
	if speedMps <= 0 || interval <= 0 {
		return nil, fmt.Errorf("invalid replay speed %v m/s or interval %v", speedMps, interval)
	}
	cum := db.CumDistances(pts)
	if cum[len(cum)-1] == 0 {
		return nil, errors.New("shape has zero length")
	}
	return &Shape{pts: pts, cum: cum, speed: speedMps, interval: interval, reportSpeed: reportSpeed, now: time.Now}, nil
}

// LoadShape reads shapeID through q and builds a replay source for it.
func LoadShape(ctx context.Context, q db.Querier, shapeID string, speedMps float64, interval time.Duration, reportSpeed bool) (*Shape, error) {
	pts, err := db.FetchShapePoints(ctx, q, shapeID)
	if err != nil {
		return nil, err
	}
	s, err := NewShape(pts, speedMps, interval, reportSpeed)
	if err != nil {
		return nil, fmt.Errorf("shape %s: %w", shapeID, err)
	}
	log.Printf("loaded shape %s: %d points, %.0fm", shapeID, len(pts), s.Length())
	return s, nil
}

func (s *Shape) Length() float64 { return s.cum[len(s.cum)-1] }

// End is the final point of the route, a natural destination.
func (s *Shape) End() geo.Coordinate { return s.pts[len(s.pts)-1].Coordinate }

func (s *Shape) Watch(ctx context.Context) (<-chan Reading, error) {
	s.mu.Lock()
	s.last = nil
	s.mu.Unlock()

	out := make(chan Reading, 1)
	go func() {
		defer close(out)
		tick := time.NewTicker(s.interval)
		defer tick.Stop()

		start := s.now()
		total := s.Length()
		for step := 0; ; step++ {
			dist := s.speed * s.interval.Seconds() * float64(step)
			coord, _ := db.InterpolateShape(s.pts, s.cum, dist)
			sample := trip.PositionSample{
				Coord:     coord,
				Timestamp: start.Add(time.Duration(step) * s.interval),
			}
			if s.reportSpeed {
				v := s.speed
				sample.ReportedSpeed = &v
			}
			s.mu.Lock()
			last := sample
			s.last = &last
			s.mu.Unlock()

			if !send(ctx, out, Reading{Sample: &sample}) {
				return
			}
			if dist >= total {
				log.Printf("shape replay finished after %d steps", step)
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
			}
		}
	}()
	return out, nil
}

func (s *Shape) Current(context.Context) (trip.PositionSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return trip.PositionSample{}, unavailable("replay not started")
	}
	return *s.last, nil
}
