package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"slices"
	"time"

	"sleepystop/internal/db"
	"sleepystop/internal/geo"
	"sleepystop/internal/geocode"
	"sleepystop/internal/notify"
	"sleepystop/internal/runner"
	"sleepystop/internal/source"
	"sleepystop/internal/trip"
)

// TripRunner is the trip control surface the API drives.
type TripRunner interface {
	Start(cfg trip.Config, style notify.Style) (string, error)
	Stop() bool
	Status() runner.Status
}

// StopFinder looks up a transit stop by id.
type StopFinder func(ctx context.Context, stopID string) (db.Stop, error)

type Options struct {
	Runner   TripRunner
	Geocoder geocode.Resolver
	// Push is nil unless positions are fed over HTTP.
	Push *source.Push
	// Stops is nil without a database.
	Stops   StopFinder
	Stream  http.Handler
	Metrics http.Handler
	// Defaults is the tuning new trips start from.
	Defaults trip.Config
	Style    notify.Style
	Now      func() time.Time
}

type Server struct {
	opts Options
	mux  *http.ServeMux
}

func New(opts Options) *Server {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Server{opts: opts, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return logRequests(s.mux) }

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	s.mux.HandleFunc("GET /geocode", s.handleGeocode)
	s.mux.HandleFunc("POST /api/trip/start", s.handleStart)
	s.mux.HandleFunc("POST /api/trip/stop", s.handleStop)
	s.mux.HandleFunc("GET /api/trip/status", s.handleStatus)
	s.mux.HandleFunc("POST /api/trip/position", s.handlePosition)
	s.mux.HandleFunc("POST /api/trip/location-error", s.handleLocationError)
	if s.opts.Stream != nil {
		s.mux.Handle("GET /ws", s.opts.Stream)
	}
	if s.opts.Metrics != nil {
		s.mux.Handle("GET /metrics", s.opts.Metrics)
	}
}

func (s *Server) handleGeocode(w http.ResponseWriter, r *http.Request) {
	place := r.URL.Query().Get("place")
	if place == "" {
		writeError(w, http.StatusBadRequest, "place is required")
		return
	}
	p, err := s.opts.Geocoder.Resolve(r.Context(), place)
	switch {
	case errors.Is(err, geocode.ErrNotFound):
		writeError(w, http.StatusNotFound, "Place not found")
	case err != nil:
		log.Printf("geocode %q error: %v", place, err)
		writeError(w, http.StatusInternalServerError, "Geocoding failed")
	default:
		writeJSON(w, http.StatusOK, p)
	}
}

type startRequest struct {
	Place  string   `json:"place"`
	StopID string   `json:"stopId"`
	Lat    *float64 `json:"lat"`
	Lon    *float64 `json:"lon"`
	// Thresholds overrides the default alert points, in seconds.
	Thresholds          []int    `json:"thresholds"`
	Style               string   `json:"style"`
	ArrivalRadiusMeters *float64 `json:"arrivalRadiusMeters"`
}

type startResponse struct {
	TripID      string         `json:"tripId"`
	Destination geo.Coordinate `json:"destination"`
	Label       string         `json:"label,omitempty"`
	Status      runner.Status  `json:"status"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	dest, label, status, msg := s.resolveDestination(r.Context(), req)
	if status != 0 {
		writeError(w, status, msg)
		return
	}

	cfg := s.opts.Defaults
	cfg.Thresholds = slices.Clone(cfg.Thresholds)
	cfg.Destination = dest
	if len(req.Thresholds) > 0 {
		cfg.Thresholds = req.Thresholds
	}
	if req.ArrivalRadiusMeters != nil {
		cfg.ArrivalRadiusMeters = *req.ArrivalRadiusMeters
	}
	style := s.opts.Style
	if req.Style != "" {
		style = notify.ParseStyle(req.Style)
	}

	id, err := s.opts.Runner.Start(cfg, style)
	switch {
	case errors.Is(err, trip.ErrInvalidConfig):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		log.Printf("start trip error: %v", err)
		writeError(w, http.StatusInternalServerError, "could not start trip")
		return
	}
	writeJSON(w, http.StatusCreated, startResponse{
		TripID:      id,
		Destination: dest,
		Label:       label,
		Status:      s.opts.Runner.Status(),
	})
}

// resolveDestination picks explicit coordinates first, then a stop id,
// then a place name. A non-zero status reports failure.
func (s *Server) resolveDestination(ctx context.Context, req startRequest) (geo.Coordinate, string, int, string) {
	switch {
	case req.Lat != nil || req.Lon != nil:
		if req.Lat == nil || req.Lon == nil {
			return geo.Coordinate{}, "", http.StatusBadRequest, "lat and lon must be given together"
		}
		return geo.Coordinate{Lat: *req.Lat, Lon: *req.Lon}, "", 0, ""
	case req.StopID != "":
		if s.opts.Stops == nil {
			return geo.Coordinate{}, "", http.StatusBadRequest, "stop lookup is not configured"
		}
		stop, err := s.opts.Stops(ctx, req.StopID)
		if errors.Is(err, db.ErrStopNotFound) {
			return geo.Coordinate{}, "", http.StatusNotFound, "Stop not found"
		}
		if err != nil {
			log.Printf("stop %q lookup error: %v", req.StopID, err)
			return geo.Coordinate{}, "", http.StatusBadGateway, "Stop lookup failed"
		}
		return stop.Coordinate, stop.Name, 0, ""
	case req.Place != "":
		p, err := s.opts.Geocoder.Resolve(ctx, req.Place)
		if errors.Is(err, geocode.ErrNotFound) {
			return geo.Coordinate{}, "", http.StatusNotFound, "Place not found"
		}
		if err != nil {
			log.Printf("geocode %q error: %v", req.Place, err)
			return geo.Coordinate{}, "", http.StatusBadGateway, "Geocoding failed"
		}
		return p.Coordinate, p.DisplayName, 0, ""
	default:
		return geo.Coordinate{}, "", http.StatusBadRequest, "destination is required (place, stopId or lat/lon)"
	}
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"stopped": s.opts.Runner.Stop()})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.Runner.Status())
}

type positionRequest struct {
	Lat      *float64 `json:"lat"`
	Lon      *float64 `json:"lon"`
	Speed    *float64 `json:"speed"`
	Accuracy *float64 `json:"accuracy"`
	// Timestamp is in epoch milliseconds, as geolocation APIs report it.
	Timestamp *int64 `json:"timestamp"`
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	if s.opts.Push == nil {
		writeError(w, http.StatusConflict, "position push is disabled for this location source")
		return
	}
	var req positionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Lat == nil || req.Lon == nil {
		writeError(w, http.StatusBadRequest, "lat and lon are required")
		return
	}
	at := s.opts.Now()
	if req.Timestamp != nil {
		at = time.UnixMilli(*req.Timestamp)
	}
	sample := trip.PositionSample{
		Coord:         geo.Coordinate{Lat: *req.Lat, Lon: *req.Lon},
		ReportedSpeed: req.Speed,
		Accuracy:      req.Accuracy,
		Timestamp:     at,
	}
	s.push(w, source.Reading{Sample: &sample})
}

type locationErrorRequest struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (s *Server) handleLocationError(w http.ResponseWriter, r *http.Request) {
	if s.opts.Push == nil {
		writeError(w, http.StatusConflict, "position push is disabled for this location source")
		return
	}
	var req locationErrorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	s.push(w, source.Reading{Err: trip.LocationErrorFromCode(req.Code, req.Message)})
}

func (s *Server) push(w http.ResponseWriter, rd source.Reading) {
	switch err := s.opts.Push.Publish(rd); {
	case errors.Is(err, source.ErrNotWatching):
		writeError(w, http.StatusConflict, "no trip is tracking")
	case errors.Is(err, source.ErrBackpressure):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// Hijack passes through to the underlying writer so websocket upgrades work.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijack not supported")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if r.URL.Path == "/metrics" || r.URL.Path == "/api/trip/position" {
			return
		}
		log.Printf("%s %s %d %s", r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}
