package metrics

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	ActiveTrips prometheus.Gauge

	TripsStarted  prometheus.Counter
	TripsFinished *prometheus.CounterVec // reason label: arrived|stopped|source_closed

	SamplesProcessed prometheus.Counter
	SamplesRejected  prometheus.Counter
	SampleDuration   prometheus.Histogram

	Alerts         *prometheus.CounterVec // kind, threshold labels
	LocationErrors *prometheus.CounterVec // kind label

	LastDistance prometheus.Gauge // meters, -1 with no active trip
	LastETA      prometheus.Gauge // seconds, -1 when unknown or no active trip

	Published       *prometheus.CounterVec // transport label
	PublishErrs     *prometheus.CounterVec
	NATSConnected   prometheus.Gauge
	PublishDuration *prometheus.HistogramVec

	GeocodeLookups *prometheus.CounterVec // outcome label: hit|miss|not_found|error

	ArrivalRadius  prometheus.Gauge // meters
	SmoothingAlpha prometheus.Gauge
}

func NewCollector(arrivalRadiusMeters, smoothingAlpha float64) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		ActiveTrips: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sleepystop_active_trips",
			Help: "1 while a trip is being tracked, 0 otherwise.",
		}),
		TripsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sleepystop_trips_started_total",
			Help: "Total trips started.",
		}),
		TripsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sleepystop_trips_finished_total",
			Help: "Total trips finished, by reason.",
		}, []string{"reason"}),
		SamplesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sleepystop_samples_processed_total",
			Help: "Position samples that produced a track update.",
		}),
		SamplesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sleepystop_samples_rejected_total",
			Help: "Position samples dropped for invalid coordinates.",
		}),
		SampleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sleepystop_sample_duration_seconds",
			Help:    "Duration of handling one position sample, including fan-out.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15),
		}),
		Alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sleepystop_alerts_total",
			Help: "Alerts fired, by kind and threshold.",
		}, []string{"kind", "threshold"}),
		LocationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sleepystop_location_errors_total",
			Help: "Location errors forwarded, by kind.",
		}, []string{"kind"}),
		LastDistance: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sleepystop_last_distance_meters",
			Help: "Distance to destination at the last update, -1 with no active trip.",
		}),
		LastETA: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sleepystop_last_eta_seconds",
			Help: "ETA at the last update, -1 when unknown or with no active trip.",
		}),
		Published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sleepystop_published_total",
			Help: "Total messages published, by transport.",
		}, []string{"transport"}),
		PublishErrs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sleepystop_publish_errors_total",
			Help: "Total publish errors, by transport.",
		}, []string{"transport"}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sleepystop_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		PublishDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sleepystop_publish_duration_seconds",
			Help:    "Duration to marshal and publish a message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}, []string{"transport"}),
		GeocodeLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sleepystop_geocode_lookups_total",
			Help: "Geocoding lookups, by outcome.",
		}, []string{"outcome"}),
		ArrivalRadius: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sleepystop_arrival_radius_meters",
			Help: "Configured default arrival radius.",
		}),
		SmoothingAlpha: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sleepystop_speed_smoothing_alpha",
			Help: "Configured default speed smoothing factor.",
		}),
	}

	reg.MustRegister(
		c.ActiveTrips, c.TripsStarted, c.TripsFinished,
		c.SamplesProcessed, c.SamplesRejected, c.SampleDuration,
		c.Alerts, c.LocationErrors, c.LastDistance, c.LastETA,
		c.Published, c.PublishErrs, c.NATSConnected, c.PublishDuration,
		c.GeocodeLookups, c.ArrivalRadius, c.SmoothingAlpha,
	)

	c.ArrivalRadius.Set(arrivalRadiusMeters)
	c.SmoothingAlpha.Set(smoothingAlpha)
	c.clearTrack()

	return c
}

func (c *Collector) TripStarted() {
	c.TripsStarted.Inc()
	c.ActiveTrips.Set(1)
}

func (c *Collector) TripFinished(reason string) {
	c.TripsFinished.WithLabelValues(reason).Inc()
	c.ActiveTrips.Set(0)
	c.clearTrack()
}

func (c *Collector) clearTrack() {
	c.LastDistance.Set(-1)
	c.LastETA.Set(-1)
}

func (c *Collector) SampleHandled(d time.Duration, accepted bool) {
	c.SampleDuration.Observe(d.Seconds())
	if accepted {
		c.SamplesProcessed.Inc()
	} else {
		c.SamplesRejected.Inc()
	}
}

func (c *Collector) AlertFired(kind string, threshold int) {
	c.Alerts.WithLabelValues(kind, strconv.Itoa(threshold)).Inc()
}

func (c *Collector) LocationError(kind string) { c.LocationErrors.WithLabelValues(kind).Inc() }

func (c *Collector) Track(distance float64, eta *float64) {
	c.LastDistance.Set(distance)
	if eta == nil {
		c.LastETA.Set(-1)
		return
	}
	c.LastETA.Set(*eta)
}

func (c *Collector) PublishedInc(transport string)  { c.Published.WithLabelValues(transport).Inc() }
func (c *Collector) PublishErrInc(transport string) { c.PublishErrs.WithLabelValues(transport).Inc() }
func (c *Collector) PublishObserve(transport string, d time.Duration) {
	c.PublishDuration.WithLabelValues(transport).Observe(d.Seconds())
}

func (c *Collector) NATSSetConnected(connected bool) {
	if connected {
		c.NATSConnected.Set(1)
	} else {
		c.NATSConnected.Set(0)
	}
}

func (c *Collector) GeocodeLookup(outcome string) { c.GeocodeLookups.WithLabelValues(outcome).Inc() }

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()
	log.Printf("metrics listening on %s", addr)
	return srv
}
