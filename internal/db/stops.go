package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"sleepystop/internal/geo"
)

var ErrStopNotFound = errors.New("stop not found")

type Stop struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	geo.Coordinate
}

// FetchStop loads one GTFS stop, preferring stop_lat/stop_lon and falling
// back to the PostGIS stop_loc column.
func FetchStop(ctx context.Context, q Querier, stopID string) (Stop, error) {
	cols, err := hasColumns(ctx, q, "public", "stops", "stop_lat", "stop_lon")
	if err != nil {
		return Stop{}, fmt.Errorf("introspect stops columns: %w", err)
	}
	var stmt string
	if cols["stop_lat"] && cols["stop_lon"] {
		stmt = `SELECT stop_id, COALESCE(stop_name, ''), stop_lat, stop_lon
             FROM stops WHERE stop_id = $1`
	} else {
		loc, err := hasColumns(ctx, q, "public", "stops", "stop_loc")
		if err != nil {
			return Stop{}, fmt.Errorf("introspect stops stop_loc: %w", err)
		}
		if !loc["stop_loc"] {
			return Stop{}, fmt.Errorf("stops table missing expected columns (stop_lat/lon or stop_loc)")
		}
		stmt = `SELECT stop_id, COALESCE(stop_name, ''),
                    ST_Y(stop_loc::geometry), ST_X(stop_loc::geometry)
             FROM stops WHERE stop_id = $1`
	}
	var s Stop
	err = q.QueryRow(ctx, stmt, stopID).Scan(&s.ID, &s.Name, &s.Lat, &s.Lon)
	if errors.Is(err, pgx.ErrNoRows) {
		return Stop{}, fmt.Errorf("%w: %q", ErrStopNotFound, stopID)
	}
	if err != nil {
		return Stop{}, fmt.Errorf("query stop %q: %w", stopID, err)
	}
	return s, nil
}
