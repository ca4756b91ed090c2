package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistance(t *testing.T) {
	tests := []struct {
		name    string
		a, b    Coordinate
		want    float64
		epsilon float64
	}{
		{name: "same point", a: Coordinate{52.52, 13.405}, b: Coordinate{52.52, 13.405}, want: 0, epsilon: 1e-9},
		{name: "hundredth degree of latitude", a: Coordinate{0.01, 0}, b: Coordinate{0, 0}, want: 1111.95, epsilon: 0.1},
		{name: "jakarta to bandung", a: Coordinate{-6.2, 106.816}, b: Coordinate{-6.9175, 107.6191}, want: 118000, epsilon: 3000},
		{name: "antipodal", a: Coordinate{0, 0}, b: Coordinate{0, 180}, want: math.Pi * EarthRadiusMeters, epsilon: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Distance(tt.a, tt.b), tt.epsilon)
		})
	}
}

func TestDistanceSymmetric(t *testing.T) {
	points := []Coordinate{
		{0, 0}, {51.5074, -0.1278}, {-33.8688, 151.2093}, {89.9, 10}, {-45, -179.9}, {40.7128, -74.006},
	}
	for _, a := range points {
		assert.InDelta(t, 0, Distance(a, a), 1e-6)
		for _, b := range points {
			assert.Equal(t, Distance(a, b), Distance(b, a), "distance(%v,%v)", a, b)
		}
	}
}

func TestCoordinateValid(t *testing.T) {
	assert.True(t, Coordinate{Lat: 54.9275, Lon: -1.8342}.Valid())
	assert.True(t, Coordinate{Lat: -90, Lon: 180}.Valid())
	assert.False(t, Coordinate{Lat: math.NaN(), Lon: 0}.Valid())
	assert.False(t, Coordinate{Lat: 0, Lon: math.Inf(1)}.Valid())
	assert.False(t, Coordinate{Lat: 91, Lon: 0}.Valid())
	assert.False(t, Coordinate{Lat: 0, Lon: -181}.Valid())
}

func TestBearing(t *testing.T) {
	origin := Coordinate{0, 0}
	assert.InDelta(t, 0, Bearing(origin, Coordinate{1, 0}), 1e-9)
	assert.InDelta(t, 90, Bearing(origin, Coordinate{0, 1}), 1e-9)
	assert.InDelta(t, 180, Bearing(origin, Coordinate{-1, 0}), 1e-9)
	assert.InDelta(t, 270, Bearing(origin, Coordinate{0, -1}), 1e-9)
}

func TestInterpolate(t *testing.T) {
	p := Interpolate(Coordinate{0, 0}, Coordinate{2, 4}, 0.25)
	assert.InDelta(t, 0.5, p.Lat, 1e-12)
	assert.InDelta(t, 1, p.Lon, 1e-12)
}
