package trip

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sleepystop/internal/geo"
)

var t0 = time.Date(2025, 3, 14, 8, 0, 0, 0, time.UTC)

func sample(lat, lon float64, at time.Duration, speed *float64) PositionSample {
	return PositionSample{Coord: geo.Coordinate{Lat: lat, Lon: lon}, ReportedSpeed: speed, Timestamp: t0.Add(at)}
}

func startedSession(t *testing.T, dest geo.Coordinate) *Session {
	t.Helper()
	s := NewSession()
	require.NoError(t, s.Start(DefaultConfig(dest)))
	require.Equal(t, StateTracking, s.State())
	return s
}

func alertThresholds(alerts []AlertEvent) []int {
	var out []int
	for _, a := range alerts {
		if a.Kind == ThresholdCrossed {
			out = append(out, a.ThresholdSeconds)
		}
	}
	return out
}

func TestSessionReportedSpeedFiresReachedThresholds(t *testing.T) {
	s := startedSession(t, geo.Coordinate{})

	res, err := s.OnSample(sample(0.01, 0, 0, Float(10)))
	require.NoError(t, err)
	require.NotNil(t, res)

	require.NotNil(t, res.Update.ETASeconds)
	assert.InDelta(t, 111.2, *res.Update.ETASeconds, 0.1)
	assert.InDelta(t, 1111.95, res.Update.DistanceMeters, 0.1)
	assert.Equal(t, []int{180, 300}, alertThresholds(res.Alerts))
	assert.False(t, res.Ended)
	require.NotNil(t, res.Update.Progress)
	assert.Equal(t, 0.0, *res.Update.Progress)
}

func TestSessionDerivedSpeedRejectsFrequentSamples(t *testing.T) {
	s := startedSession(t, geo.Coordinate{Lat: 1})

	res, err := s.OnSample(sample(0, 0, 0, nil))
	require.NoError(t, err)
	assert.Nil(t, res.Update.ETASeconds)
	assert.Nil(t, res.Update.SmoothedSpeedMps)

	res, err = s.OnSample(sample(0, 0, 500*time.Millisecond, nil))
	require.NoError(t, err)
	assert.Nil(t, res.Update.SmoothedSpeedMps)
	assert.Nil(t, res.Update.UsedSpeedMps)
	assert.Nil(t, res.Update.ETASeconds)
	assert.Empty(t, res.Alerts)
}

func TestSessionDerivedSpeed(t *testing.T) {
	s := startedSession(t, geo.Coordinate{Lat: 1})

	_, err := s.OnSample(sample(0, 0, 0, nil))
	require.NoError(t, err)
	res, err := s.OnSample(sample(0.0001, 0, time.Second, nil))
	require.NoError(t, err)

	require.NotNil(t, res.Update.SmoothedSpeedMps)
	assert.InDelta(t, 11.12, *res.Update.SmoothedSpeedMps, 0.01)
	require.NotNil(t, res.Update.ETASeconds)
	assert.InDelta(t, res.Update.DistanceMeters/11.12, *res.Update.ETASeconds, 1)
}

func TestSessionDerivedSpeedRespectsAccuracy(t *testing.T) {
	s := startedSession(t, geo.Coordinate{Lat: 1})

	_, err := s.OnSample(sample(0, 0, 0, nil))
	require.NoError(t, err)
	next := sample(0.0001, 0, time.Second, nil)
	next.Accuracy = Float(20)
	res, err := s.OnSample(next)
	require.NoError(t, err)
	assert.Nil(t, res.Update.SmoothedSpeedMps)
}

func TestSessionIgnoresInvalidSpeedInSmoothing(t *testing.T) {
	s := startedSession(t, geo.Coordinate{Lat: 1})

	for i, v := range []float64{5, 0.1, 6} {
		_, err := s.OnSample(sample(0, 0, time.Duration(i)*time.Second, Float(v)))
		require.NoError(t, err)
	}
	require.NotNil(t, s.SmoothedSpeed())
	assert.InDelta(t, 0.3*6+0.7*5, *s.SmoothedSpeed(), 1e-9)
}

func TestSessionMalformedSpeedFallsBackToDerived(t *testing.T) {
	s := startedSession(t, geo.Coordinate{Lat: 1})

	_, err := s.OnSample(sample(0, 0, 0, Float(math.NaN())))
	require.NoError(t, err)
	res, err := s.OnSample(sample(0.0001, 0, 2*time.Second, Float(math.Inf(1))))
	require.NoError(t, err)
	require.NotNil(t, res.Update.SmoothedSpeedMps)
	assert.InDelta(t, 5.56, *res.Update.SmoothedSpeedMps, 0.01)
}

func TestSessionArrival(t *testing.T) {
	s := startedSession(t, geo.Coordinate{})

	_, err := s.OnSample(sample(0.001, 0, 0, Float(5)))
	require.NoError(t, err)

	// ~20 m from the destination
	res, err := s.OnSample(sample(0.00018, 0, 20*time.Second, Float(5)))
	require.NoError(t, err)
	require.True(t, res.Ended)
	require.NotEmpty(t, res.Alerts)

	last := res.Alerts[len(res.Alerts)-1]
	assert.Equal(t, Arrived, last.Kind)
	arrivals := 0
	for _, a := range res.Alerts {
		if a.Kind == Arrived {
			arrivals++
		}
	}
	assert.Equal(t, 1, arrivals)
	assert.Equal(t, StateArrived, s.State())
	assert.Nil(t, s.SmoothedSpeed())
	assert.Empty(t, s.Fired())

	_, err = s.OnSample(sample(0.0001, 0, 21*time.Second, Float(5)))
	assert.ErrorIs(t, err, ErrNotTracking)
}

func TestSessionArrivalFollowsThresholdsInSameSample(t *testing.T) {
	s := startedSession(t, geo.Coordinate{})

	res, err := s.OnSample(sample(0.0001, 0, 0, Float(4)))
	require.NoError(t, err)
	require.True(t, res.Ended)
	require.Len(t, res.Alerts, 4)
	assert.Equal(t, []int{30, 180, 300}, alertThresholds(res.Alerts))
	assert.Equal(t, Arrived, res.Alerts[3].Kind)
}

func TestSessionThresholdsFireOnce(t *testing.T) {
	s := startedSession(t, geo.Coordinate{})

	// 1111.95 m away; speed chosen to drive ETA up and down.
	speeds := []float64{5.5, 11, 2.7, 7.5, 49, 2.7}
	counts := map[int]int{}
	for i, v := range speeds {
		res, err := s.OnSample(sample(0.01, 0, time.Duration(i)*time.Second, Float(v)))
		require.NoError(t, err)
		for _, th := range alertThresholds(res.Alerts) {
			counts[th]++
		}
	}
	for th, n := range counts {
		assert.Equal(t, 1, n, "threshold %d", th)
	}
	assert.Len(t, counts, 2)
	assert.Equal(t, []int{180, 300}, s.Fired())
}

func TestSessionInitialDistanceCapturedOnce(t *testing.T) {
	s := startedSession(t, geo.Coordinate{})

	first, err := s.OnSample(sample(0.01, 0, 0, nil))
	require.NoError(t, err)
	_, err = s.OnSample(sample(0.02, 0, time.Second, nil))
	require.NoError(t, err)
	res, err := s.OnSample(sample(0.005, 0, 2*time.Second, nil))
	require.NoError(t, err)

	require.NotNil(t, s.InitialDistance())
	assert.Equal(t, first.Update.DistanceMeters, *s.InitialDistance())
	require.NotNil(t, res.Update.Progress)
	assert.InDelta(t, 0.5, *res.Update.Progress, 1e-6)
}

func TestSessionProgressClamped(t *testing.T) {
	s := startedSession(t, geo.Coordinate{})

	_, err := s.OnSample(sample(0.01, 0, 0, nil))
	require.NoError(t, err)
	res, err := s.OnSample(sample(0.03, 0, time.Second, nil))
	require.NoError(t, err)
	require.NotNil(t, res.Update.Progress)
	assert.Equal(t, 0.0, *res.Update.Progress)
}

func TestSessionOutOfOrderSampleKeepsLastFix(t *testing.T) {
	s := startedSession(t, geo.Coordinate{Lat: 1})

	_, err := s.OnSample(sample(0, 0, 10*time.Second, nil))
	require.NoError(t, err)
	res, err := s.OnSample(sample(0.001, 0, 5*time.Second, nil))
	require.NoError(t, err)
	assert.Nil(t, res.Update.SmoothedSpeedMps)

	// measured against the 10s fix, not the stale 5s one
	res, err = s.OnSample(sample(0.0001, 0, 12*time.Second, nil))
	require.NoError(t, err)
	require.NotNil(t, res.Update.SmoothedSpeedMps)
	assert.InDelta(t, 5.56, *res.Update.SmoothedSpeedMps, 0.01)
}

func TestSessionDropsInvalidCoordinates(t *testing.T) {
	s := startedSession(t, geo.Coordinate{})

	res, err := s.OnSample(sample(math.NaN(), 0, 0, Float(10)))
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Nil(t, s.InitialDistance())
}

func TestSessionStop(t *testing.T) {
	s := NewSession()
	assert.False(t, s.Stop(), "stop before start")
	assert.Equal(t, StateIdle, s.State())

	require.NoError(t, s.Start(DefaultConfig(geo.Coordinate{})))
	assert.True(t, s.Stop())
	assert.False(t, s.Stop())
	assert.Equal(t, StateStopped, s.State())

	_, err := s.OnSample(sample(0.01, 0, 0, nil))
	assert.ErrorIs(t, err, ErrNotTracking)
}

func TestSessionRestartResetsState(t *testing.T) {
	s := startedSession(t, geo.Coordinate{})
	firstID := s.ID()

	_, err := s.OnSample(sample(0.01, 0, 0, Float(10)))
	require.NoError(t, err)
	require.NotEmpty(t, s.Fired())

	require.NoError(t, s.Start(DefaultConfig(geo.Coordinate{})))
	assert.NotEqual(t, firstID, s.ID())
	assert.Empty(t, s.Fired())
	assert.Nil(t, s.SmoothedSpeed())
	assert.Nil(t, s.InitialDistance())
}

func TestSessionStartRejectsInvalidConfig(t *testing.T) {
	s := NewSession()
	cfg := DefaultConfig(geo.Coordinate{})
	cfg.Thresholds = nil

	err := s.Start(cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Equal(t, StateIdle, s.State())
}

func TestSessionLocationError(t *testing.T) {
	s := NewSession()
	_, err := s.OnLocationError(&LocationError{Kind: Unavailable})
	assert.ErrorIs(t, err, ErrNotTracking)

	require.NoError(t, s.Start(DefaultConfig(geo.Coordinate{})))
	lerr, err := s.OnLocationError(&LocationError{Kind: PermissionDenied})
	require.NoError(t, err)
	assert.Equal(t, PermissionDenied, lerr.Kind)
	assert.Equal(t, StateTracking, s.State())
}
