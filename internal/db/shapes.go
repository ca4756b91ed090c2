package db

import (
	"context"
	"fmt"

	"sleepystop/internal/geo"
)

type ShapePoint struct {
	geo.Coordinate
	Sequence     int
	DistTraveled float64 // meters, if available; 0 if missing
}

// FetchShapePoints loads a GTFS shape ordered by sequence. Both the plain
// shape_pt_lat/lon layout and the PostGIS shape_pt_loc layout are supported.
func FetchShapePoints(ctx context.Context, q Querier, shapeID string) ([]ShapePoint, error) {
	if shapeID == "" {
		return nil, nil
	}
	latlon, err := hasColumns(ctx, q, "public", "shapes", "shape_pt_lat", "shape_pt_lon")
	if err != nil {
		return nil, fmt.Errorf("introspect shapes columns: %w", err)
	}
	var stmt string
	if latlon["shape_pt_lat"] && latlon["shape_pt_lon"] {
		stmt = `SELECT shape_pt_lat, shape_pt_lon, shape_pt_sequence, COALESCE(shape_dist_traveled, 0)
             FROM shapes WHERE shape_id = $1 ORDER BY shape_pt_sequence`
	} else {
		loc, err := hasColumns(ctx, q, "public", "shapes", "shape_pt_loc")
		if err != nil {
			return nil, fmt.Errorf("introspect shapes shape_pt_loc: %w", err)
		}
		if !loc["shape_pt_loc"] {
			return nil, fmt.Errorf("shapes table missing expected columns (lat/lon or shape_pt_loc)")
		}
		stmt = `SELECT ST_Y(shape_pt_loc::geometry) AS lat,
                    ST_X(shape_pt_loc::geometry) AS lon,
                    shape_pt_sequence,
                    COALESCE(shape_dist_traveled, 0)
             FROM shapes WHERE shape_id = $1 ORDER BY shape_pt_sequence`
	}
	rows, err := q.Query(ctx, stmt, shapeID)
	if err != nil {
		return nil, fmt.Errorf("query shapes: %w", err)
	}
	defer rows.Close()
	var pts []ShapePoint
	for rows.Next() {
		var p ShapePoint
		if err := rows.Scan(&p.Lat, &p.Lon, &p.Sequence, &p.DistTraveled); err != nil {
			return nil, err
		}
		pts = append(pts, p)
	}
	return pts, rows.Err()
}

// CumDistances returns the distance along the shape at each point. Stored
// shape_dist_traveled values win when present, forced monotonic.
func CumDistances(pts []ShapePoint) []float64 {
	n := len(pts)
	if n == 0 {
		return nil
	}
	cum := make([]float64, n)
	if pts[0].DistTraveled > 0 {
		prev := 0.0
		for i := 0; i < n; i++ {
			d := pts[i].DistTraveled
			if d < prev {
				d = prev
			}
			cum[i] = d
			prev = d
		}
		return cum
	}
	sum := 0.0
	for i := 1; i < n; i++ {
		sum += geo.Distance(pts[i-1].Coordinate, pts[i].Coordinate)
		cum[i] = sum
	}
	return cum
}

// InterpolateShape returns the point dist meters along the shape and the
// bearing of the segment it falls on.
func InterpolateShape(pts []ShapePoint, cum []float64, dist float64) (geo.Coordinate, float64) {
	n := len(pts)
	if n == 0 {
		return geo.Coordinate{}, 0
	}
	total := cum[n-1]
	if total == 0 || n == 1 {
		return pts[0].Coordinate, 0
	}
	if dist <= 0 {
		return pts[0].Coordinate, geo.Bearing(pts[0].Coordinate, pts[1].Coordinate)
	}
	if dist >= total {
		return pts[n-1].Coordinate, geo.Bearing(pts[n-2].Coordinate, pts[n-1].Coordinate)
	}
	i := 1
	for i < n && cum[i] < dist {
		i++
	}
	if i >= n {
		i = n - 1
	}
	d0, d1 := cum[i-1], cum[i]
	p0, p1 := pts[i-1].Coordinate, pts[i].Coordinate
	if d1 == d0 {
		return p0, geo.Bearing(p0, p1)
	}
	return geo.Interpolate(p0, p1, (dist-d0)/(d1-d0)), geo.Bearing(p0, p1)
}
