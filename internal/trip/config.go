package trip

import (
	"fmt"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"

	"sleepystop/internal/geo"
)

// Defaults for a new trip. The noise-rejection values follow the stricter
// variant: 3 m displacement floor and a 50 m/s speed ceiling.
const (
	DefaultArrivalRadiusMeters       = 25.0
	DefaultSpeedSmoothingAlpha       = 0.3
	DefaultMinValidSpeed             = 0.2
	DefaultMaxValidSpeed             = 50.0
	DefaultMinSampleInterval         = time.Second
	DefaultMinDisplacementMeters     = 3.0
	DefaultMinProgressDistanceMeters = 10.0
)

// DefaultThresholds are the alert points in seconds before arrival.
var DefaultThresholds = []int{300, 180, 30}

// Config is fixed for the lifetime of one trip.
type Config struct {
	Destination geo.Coordinate `json:"destination" yaml:"destination"`
	// Thresholds are ETA values in seconds, each fires at most once.
	Thresholds          []int   `json:"thresholds" yaml:"thresholds" validate:"required,min=1,dive,gt=0"`
	ArrivalRadiusMeters float64 `json:"arrivalRadiusMeters" yaml:"arrivalRadiusMeters" validate:"gt=0"`
	// SpeedSmoothingAlpha is the weight given to the incoming speed sample.
	SpeedSmoothingAlpha       float64       `json:"speedSmoothingAlpha" yaml:"speedSmoothingAlpha" validate:"gt=0,lte=1"`
	MinValidSpeed             float64       `json:"minValidSpeed" yaml:"minValidSpeed" validate:"gte=0"`
	MaxValidSpeed             float64       `json:"maxValidSpeed" yaml:"maxValidSpeed" validate:"gtfield=MinValidSpeed"`
	MinSampleInterval         time.Duration `json:"minSampleInterval" yaml:"minSampleInterval" validate:"gte=0"`
	MinDisplacementMeters     float64       `json:"minDisplacementMeters" yaml:"minDisplacementMeters" validate:"gte=0"`
	MinProgressDistanceMeters float64       `json:"minProgressDistanceMeters" yaml:"minProgressDistanceMeters" validate:"gte=0"`
}

// DefaultConfig returns a configuration towards dest with default tuning.
func DefaultConfig(dest geo.Coordinate) Config {
	return Config{
		Destination:               dest,
		Thresholds:                slices.Clone(DefaultThresholds),
		ArrivalRadiusMeters:       DefaultArrivalRadiusMeters,
		SpeedSmoothingAlpha:       DefaultSpeedSmoothingAlpha,
		MinValidSpeed:             DefaultMinValidSpeed,
		MaxValidSpeed:             DefaultMaxValidSpeed,
		MinSampleInterval:         DefaultMinSampleInterval,
		MinDisplacementMeters:     DefaultMinDisplacementMeters,
		MinProgressDistanceMeters: DefaultMinProgressDistanceMeters,
	}
}

var validate = validator.New()

// Validate checks the configuration. All failures wrap ErrInvalidConfig.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if !c.Destination.Valid() {
		return fmt.Errorf("%w: destination %v out of range", ErrInvalidConfig, c.Destination)
	}
	return nil
}

// normalized returns a copy whose thresholds are ascending and unique.
func (c Config) normalized() Config {
	ts := slices.Clone(c.Thresholds)
	slices.Sort(ts)
	c.Thresholds = slices.Compact(ts)
	return c
}
