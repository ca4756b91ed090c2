package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"sleepystop/internal/geo"
	"sleepystop/internal/notify"
	"sleepystop/internal/trip"
)

const (
	SourcePush  = "push"
	SourceXGPS  = "xgps"
	SourceShape = "shape"
)

type Config struct {
	HTTPAddr    string `validate:"required"`
	MetricsAddr string

	NATSURL           string
	NATSSubjectPrefix string `validate:"required"`
	LogNATSSubjects   bool

	AMQPURL      string
	AMQPExchange string `validate:"required_with=AMQPURL"`

	RedisAddr       string
	RedisPassword   string
	GeocodeCacheTTL time.Duration `validate:"gte=0"`

	GeocoderURL       string        `validate:"omitempty,url"`
	GeocoderUserAgent string        `validate:"required"`
	GeocoderTimeout   time.Duration `validate:"gt=0"`

	// DatabaseURL is empty unless a database is configured.
	DatabaseURL string
	// City selects the latest GTFS import database for the city.
	City string

	LocationSource  string        `validate:"oneof=push xgps shape"`
	XGPSAddr        string        `validate:"required_if=LocationSource xgps"`
	ShapeID         string        `validate:"required_if=LocationSource shape"`
	SimSpeedMps     float64       `validate:"gt=0"`
	SimInterval     time.Duration `validate:"gt=0"`
	SimReportSpeed  bool
	FallbackTimeout time.Duration `validate:"gte=0"`
	LogTracks       bool

	AlertStyle notify.Style
	// Trip carries the tuning every new trip starts from; its destination
	// is filled per trip.
	Trip trip.Config

	// Destination and DestinationStopID start a trip at boot.
	Destination       string
	DestinationStopID string
}

// tuningFile is the layout of TRIP_CONFIG_FILE.
type tuningFile struct {
	Style  string `yaml:"style"`
	Tuning struct {
		Thresholds                []int          `yaml:"thresholds"`
		ArrivalRadiusMeters       *float64       `yaml:"arrivalRadiusMeters"`
		SpeedSmoothingAlpha       *float64       `yaml:"speedSmoothingAlpha"`
		MinValidSpeed             *float64       `yaml:"minValidSpeed"`
		MaxValidSpeed             *float64       `yaml:"maxValidSpeed"`
		MinSampleInterval         *time.Duration `yaml:"minSampleInterval"`
		MinDisplacementMeters     *float64       `yaml:"minDisplacementMeters"`
		MinProgressDistanceMeters *float64       `yaml:"minProgressDistanceMeters"`
	} `yaml:"tuning"`
}

var validate = validator.New()

// InitLogging routes the standard logger to stdout with microsecond stamps.
func InitLogging() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{
		Trip:       trip.DefaultConfig(geo.Coordinate{}),
		AlertStyle: notify.Normal,
	}

	cfg.HTTPAddr = getenvDefault("HTTP_ADDR", ":8080")
	// Separate metrics listener (e.g., ":9102"). /metrics is always on the API mux.
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	// Empty disables the NATS sink
	cfg.NATSURL = os.Getenv("NATS_URL")
	cfg.NATSSubjectPrefix = getenvDefault("NATS_SUBJECT_PREFIX", "sleepystop")
	cfg.LogNATSSubjects = parseBool(os.Getenv("LOG_NATS_SUBJECTS"))

	cfg.AMQPURL = os.Getenv("AMQP_URL")
	cfg.AMQPExchange = getenvDefault("AMQP_EXCHANGE", "sleepystop_topic")

	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")

	var err error
	if cfg.GeocodeCacheTTL, err = durationEnv("GEOCODE_CACHE_TTL_SEC", time.Second, 24*time.Hour, true); err != nil {
		return nil, err
	}
	cfg.GeocoderURL = os.Getenv("GEOCODER_URL")
	cfg.GeocoderUserAgent = getenvDefault("GEOCODER_USER_AGENT", "sleepystop/1.0")
	if cfg.GeocoderTimeout, err = durationEnv("GEOCODER_TIMEOUT_MS", time.Millisecond, 10*time.Second, false); err != nil {
		return nil, err
	}

	cfg.LocationSource = strings.ToLower(getenvDefault("LOCATION_SOURCE", SourcePush))
	cfg.XGPSAddr = getenvDefault("XGPS_ADDR", ":49002")
	cfg.ShapeID = os.Getenv("SHAPE_ID")
	if cfg.SimSpeedMps, err = floatEnv("SIM_SPEED_MPS", 8); err != nil {
		return nil, err
	}
	if cfg.SimInterval, err = durationEnv("SIM_INTERVAL_MS", time.Millisecond, time.Second, false); err != nil {
		return nil, err
	}
	cfg.SimReportSpeed = parseBool(os.Getenv("SIM_REPORT_SPEED"))
	if cfg.FallbackTimeout, err = durationEnv("FALLBACK_TIMEOUT_MS", time.Millisecond, 10*time.Second, true); err != nil {
		return nil, err
	}
	cfg.LogTracks = parseBool(os.Getenv("LOG_TRACKS"))

	cfg.City = firstNonEmpty(os.Getenv("CITY"), os.Getenv("CITY_NAME"))
	cfg.DatabaseURL = databaseURL()

	cfg.Destination = strings.TrimSpace(os.Getenv("DESTINATION"))
	cfg.DestinationStopID = strings.TrimSpace(os.Getenv("DESTINATION_STOP_ID"))

	if path := os.Getenv("TRIP_CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyTripEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints and cross-field requirements.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := c.Trip.Validate(); err != nil {
		return err
	}
	if c.DatabaseURL == "" && (c.LocationSource == SourceShape || c.DestinationStopID != "") {
		return errors.New("PGDATABASE or DATABASE_URL must be set when LOCATION_SOURCE=shape or DESTINATION_STOP_ID is used")
	}
	return nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read TRIP_CONFIG_FILE: %w", err)
	}
	var f tuningFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse TRIP_CONFIG_FILE %s: %w", path, err)
	}
	if f.Style != "" {
		c.AlertStyle = notify.ParseStyle(f.Style)
	}
	t := &f.Tuning
	if len(t.Thresholds) > 0 {
		c.Trip.Thresholds = t.Thresholds
	}
	setIf(&c.Trip.ArrivalRadiusMeters, t.ArrivalRadiusMeters)
	setIf(&c.Trip.SpeedSmoothingAlpha, t.SpeedSmoothingAlpha)
	setIf(&c.Trip.MinValidSpeed, t.MinValidSpeed)
	setIf(&c.Trip.MaxValidSpeed, t.MaxValidSpeed)
	setIf(&c.Trip.MinSampleInterval, t.MinSampleInterval)
	setIf(&c.Trip.MinDisplacementMeters, t.MinDisplacementMeters)
	setIf(&c.Trip.MinProgressDistanceMeters, t.MinProgressDistanceMeters)
	return nil
}

func (c *Config) applyTripEnv() error {
	if v := os.Getenv("ALERT_STYLE"); v != "" {
		c.AlertStyle = notify.ParseStyle(v)
	}
	if v := os.Getenv("ALERT_THRESHOLDS"); v != "" {
		ts, err := ParseThresholds(v)
		if err != nil {
			return fmt.Errorf("invalid ALERT_THRESHOLDS: %q", v)
		}
		c.Trip.Thresholds = ts
	}
	floats := []struct {
		key string
		dst *float64
	}{
		{"ARRIVAL_RADIUS_M", &c.Trip.ArrivalRadiusMeters},
		{"SPEED_ALPHA", &c.Trip.SpeedSmoothingAlpha},
		{"MIN_VALID_SPEED", &c.Trip.MinValidSpeed},
		{"MAX_VALID_SPEED", &c.Trip.MaxValidSpeed},
		{"MIN_DISPLACEMENT_M", &c.Trip.MinDisplacementMeters},
		{"MIN_PROGRESS_DISTANCE_M", &c.Trip.MinProgressDistanceMeters},
	}
	for _, f := range floats {
		v, err := floatEnv(f.key, *f.dst)
		if err != nil {
			return err
		}
		*f.dst = v
	}
	d, err := durationEnv("MIN_SAMPLE_INTERVAL_MS", time.Millisecond, c.Trip.MinSampleInterval, true)
	if err != nil {
		return err
	}
	c.Trip.MinSampleInterval = d
	return nil
}

// ParseThresholds parses a comma separated list of seconds, e.g. "300,180,30".
func ParseThresholds(s string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid threshold %q", part)
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil, errors.New("no thresholds")
	}
	return out, nil
}

// databaseURL prefers DATABASE_URL / PG_DSN, else builds from PG* vars when
// PGDATABASE (or CITY) is set.
func databaseURL() string {
	if dsn := firstNonEmpty(os.Getenv("DATABASE_URL"), os.Getenv("PG_DSN")); dsn != "" {
		return dsn
	}
	db := os.Getenv("PGDATABASE")
	// With CITY the meta database is 'postgres' when PGDATABASE is not set.
	if db == "" && firstNonEmpty(os.Getenv("CITY"), os.Getenv("CITY_NAME")) != "" {
		db = "postgres"
	}
	if db == "" {
		return ""
	}
	host := getenvDefault("PGHOST", "127.0.0.1")
	port := getenvDefault("PGPORT", "5432")
	user := getenvDefault("PGUSER", "postgres")
	pass := os.Getenv("PGPASSWORD")
	sslmode := getenvDefault("PGSSLMODE", "disable")
	if pass != "" {
		return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, db, sslmode)
	}
	return fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, db, sslmode)
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func floatEnv(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return f, nil
}

// durationEnv reads an integer count of unit.
func durationEnv(key string, unit, def time.Duration, allowZero bool) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 || (n == 0 && !allowZero) {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return time.Duration(n) * unit, nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}
