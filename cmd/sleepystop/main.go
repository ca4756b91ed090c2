package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"sleepystop/internal/config"
	"sleepystop/internal/db"
	"sleepystop/internal/event"
	"sleepystop/internal/geo"
	"sleepystop/internal/geocode"
	"sleepystop/internal/metrics"
	"sleepystop/internal/publisher"
	"sleepystop/internal/runner"
	"sleepystop/internal/server"
	"sleepystop/internal/source"
	"sleepystop/internal/stream"
)

func main() {
	config.InitLogging()

	// Load configuration from .env, environment and TRIP_CONFIG_FILE
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	mcol := metrics.NewCollector(cfg.Trip.ArrivalRadiusMeters, cfg.Trip.SpeedSmoothingAlpha)
	if cfg.MetricsAddr != "" {
		srv := mcol.Serve(cfg.MetricsAddr)
		defer shutdown(srv)
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Printf("redis ping error: %v (continuing without shared cache)", err)
		}
	}

	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pool, err = connectDB(ctx, cfg)
		if err != nil {
			log.Fatalf("db error: %v", err)
		}
		defer pool.Close()
	}

	geocoder := geocode.NewCached(
		geocode.NewClient(cfg.GeocoderURL, cfg.GeocoderUserAgent, cfg.GeocoderTimeout),
		rdb, cfg.GeocodeCacheTTL, mcol.GeocodeLookup,
	)

	// Location source
	var (
		src  source.Source
		loc  source.Locator
		push *source.Push
		sim  *source.Shape
	)
	switch cfg.LocationSource {
	case config.SourceXGPS:
		x := source.NewXGPS(cfg.XGPSAddr)
		src, loc = x, x
		log.Printf("reading XGPS positions on %s", cfg.XGPSAddr)
	case config.SourceShape:
		sim, err = source.LoadShape(ctx, pool, cfg.ShapeID, cfg.SimSpeedMps, cfg.SimInterval, cfg.SimReportSpeed)
		if err != nil {
			log.Fatalf("load shape %q: %v", cfg.ShapeID, err)
		}
		src, loc = sim, sim
		log.Printf("simulating shape %q (%.0f m at %.1f m/s)", cfg.ShapeID, sim.Length(), cfg.SimSpeedMps)
	default:
		push = source.NewPush()
		src, loc = push, push
	}
	if cfg.FallbackTimeout > 0 {
		src = source.NewWithFallback(src, loc, cfg.FallbackTimeout)
	}

	// Sinks
	hub := stream.NewHub(ctx, rdb)
	defer hub.Close()
	sinks := []event.Sink{publisher.LogPublisher{Tracks: cfg.LogTracks}, hub}
	if cfg.NATSURL != "" {
		pub, err := publisher.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubjectPrefix, cfg.LogNATSSubjects, mcol)
		if err != nil {
			log.Fatalf("nats error: %v", err)
		}
		defer pub.Close()
		sinks = append(sinks, pub)
	}
	if cfg.AMQPURL != "" {
		pub, err := publisher.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange, mcol)
		if err != nil {
			log.Fatalf("amqp error: %v", err)
		}
		defer pub.Close()
		sinks = append(sinks, pub)
	}

	run := runner.New(ctx, src, mcol, sinks...)

	var stops server.StopFinder
	if pool != nil {
		stops = func(ctx context.Context, stopID string) (db.Stop, error) {
			return db.FetchStop(ctx, pool, stopID)
		}
	}

	api := server.New(server.Options{
		Runner:   run,
		Geocoder: geocoder,
		Push:     push,
		Stops:    stops,
		Stream:   hub.Handler(),
		Metrics:  mcol.Handler(),
		Defaults: cfg.Trip,
		Style:    cfg.AlertStyle,
	})
	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: api.Handler(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server error: %v", err)
			cancel()
		}
	}()
	log.Printf("api listening on %s (location source %s)", cfg.HTTPAddr, cfg.LocationSource)

	if err := autostart(ctx, cfg, run, geocoder, stops, sim); err != nil {
		log.Printf("autostart: %v", err)
	}

	// Block until context cancelled
	<-ctx.Done()
	shutdown(httpSrv)
	run.Stop()
	log.Println("shutdown complete")
}

// connectDB opens the configured database. With CITY set, the configured
// DSN points at the meta database and the latest import is picked from it.
func connectDB(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if cfg.City == "" {
		return db.ConnectPostgres(ctx, cfg.DatabaseURL)
	}
	rootDSN, err := db.WithDBName(cfg.DatabaseURL, "postgres")
	if err != nil {
		return nil, err
	}
	meta, err := db.ConnectPostgres(ctx, rootDSN)
	if err != nil {
		return nil, err
	}
	name, err := db.ResolveLatestImportDBName(ctx, meta, cfg.City)
	meta.Close()
	if err != nil {
		return nil, err
	}
	dsn, err := db.WithDBName(cfg.DatabaseURL, name)
	if err != nil {
		return nil, err
	}
	log.Printf("Using database %q for city %q", name, cfg.City)
	return db.ConnectPostgres(ctx, dsn)
}

// autostart begins a trip at boot from DESTINATION, DESTINATION_STOP_ID or,
// for a simulated shape, the shape's final point.
func autostart(ctx context.Context, cfg *config.Config, run *runner.Runner, g geocode.Resolver, stops server.StopFinder, sim *source.Shape) error {
	var dest geo.Coordinate
	switch {
	case cfg.DestinationStopID != "":
		stop, err := stops(ctx, cfg.DestinationStopID)
		if err != nil {
			return err
		}
		log.Printf("destination stop %s %q", stop.ID, stop.Name)
		dest = stop.Coordinate
	case cfg.Destination != "":
		p, err := g.Resolve(ctx, cfg.Destination)
		if err != nil {
			return err
		}
		log.Printf("destination %q", p.DisplayName)
		dest = p.Coordinate
	case sim != nil:
		dest = sim.End()
	default:
		return nil
	}
	tc := cfg.Trip
	tc.Destination = dest
	_, err := run.Start(tc, cfg.AlertStyle)
	return err
}

func shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
