// Package geocode resolves place names to coordinates.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"sleepystop/internal/geo"
)

const DefaultURL = "https://nominatim.openstreetmap.org/search"

var (
	ErrNotFound     = errors.New("place not found")
	ErrLookupFailed = errors.New("geocoding failed")
)

// Place is a resolved destination.
type Place struct {
	geo.Coordinate
	DisplayName string `json:"display_name"`
}

type Resolver interface {
	Resolve(ctx context.Context, place string) (Place, error)
}

// Client queries a Nominatim compatible search endpoint.
type Client struct {
	baseURL   string
	userAgent string
	http      *http.Client
}

func NewClient(baseURL, userAgent string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	return &Client{
		baseURL:   baseURL,
		userAgent: userAgent,
		http:      &http.Client{Timeout: timeout},
	}
}

type nominatimResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

func (c *Client) Resolve(ctx context.Context, place string) (Place, error) {
	place = strings.TrimSpace(place)
	if place == "" {
		return Place{}, ErrNotFound
	}
	q := url.Values{}
	q.Set("format", "json")
	q.Set("q", place)
	q.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return Place{}, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Place{}, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return Place{}, fmt.Errorf("%w: status %d", ErrLookupFailed, resp.StatusCode)
	}

	var results []nominatimResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return Place{}, fmt.Errorf("%w: decode: %v", ErrLookupFailed, err)
	}
	if len(results) == 0 {
		return Place{}, ErrNotFound
	}
	return parseResult(results[0])
}

func parseResult(r nominatimResult) (Place, error) {
	lat, err := strconv.ParseFloat(strings.TrimSpace(r.Lat), 64)
	if err != nil {
		return Place{}, fmt.Errorf("%w: invalid lat %q", ErrLookupFailed, r.Lat)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(r.Lon), 64)
	if err != nil {
		return Place{}, fmt.Errorf("%w: invalid lon %q", ErrLookupFailed, r.Lon)
	}
	p := Place{Coordinate: geo.Coordinate{Lat: lat, Lon: lon}, DisplayName: r.DisplayName}
	if !p.Valid() {
		return Place{}, fmt.Errorf("%w: coordinate out of range %v,%v", ErrLookupFailed, lat, lon)
	}
	return p, nil
}
