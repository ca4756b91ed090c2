package source

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"sleepystop/internal/geo"
	"sleepystop/internal/trip"
)

// XGPS listens for simulator position broadcasts of the form
// "XGPS<sim>,lon,lat,alt,hdg,gs" with ground speed in m/s.
type XGPS struct {
	addr string
	now  func() time.Time

	mu   sync.Mutex
	conn net.PacketConn
	last *trip.PositionSample
}

type xgpsFix struct {
	Lon, Lat, AltitudeMSL, TrueHeading, GroundSpeed float64
}

func NewXGPS(addr string) *XGPS {
	return &XGPS{addr: addr, now: time.Now}
}

func (x *XGPS) Watch(ctx context.Context) (<-chan Reading, error) {
	conn, err := net.ListenPacket("udp", x.addr)
	if err != nil {
		return nil, fmt.Errorf("listen udp %s: %w", x.addr, err)
	}
	x.mu.Lock()
	x.conn = conn
	x.last = nil
	x.mu.Unlock()
	log.Printf("listening for XGPS broadcasts on %s", conn.LocalAddr())

	out := make(chan Reading, 16)
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()
	go func() {
		defer close(out)
		buf := make([]byte, 1024)
		for {
			n, _, err := conn.ReadFrom(buf)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("xgps read error: %v", err)
				if !send(ctx, out, Reading{Err: unavailable(err.Error())}) {
					return
				}
				continue
			}
			if n < 6 || !bytes.HasPrefix(buf[:n], []byte("XGPS")) {
				continue
			}
			fix, err := parseXGPSPacket(buf[:n])
			if err != nil {
				log.Printf("xgps parse error: %v", err)
				continue
			}
			speed := fix.GroundSpeed
			s := trip.PositionSample{
				Coord:         geo.Coordinate{Lat: fix.Lat, Lon: fix.Lon},
				ReportedSpeed: &speed,
				Timestamp:     x.now(),
			}
			x.mu.Lock()
			x.last = &s
			x.mu.Unlock()
			if !send(ctx, out, Reading{Sample: &s}) {
				return
			}
		}
	}()
	return out, nil
}

// LocalAddr is the bound address of the live watch, nil before Watch.
func (x *XGPS) LocalAddr() net.Addr {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.conn == nil {
		return nil
	}
	return x.conn.LocalAddr()
}

func (x *XGPS) Current(context.Context) (trip.PositionSample, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.last == nil {
		return trip.PositionSample{}, unavailable("no XGPS packet received yet")
	}
	return *x.last, nil
}

func parseXGPSPacket(data []byte) (xgpsFix, error) {
	var fix xgpsFix
	parts := strings.Split(strings.TrimSpace(string(data)), ",")
	if len(parts) < 6 {
		return fix, fmt.Errorf("invalid data format: expected at least 6 parts, got %d", len(parts))
	}
	fields := []struct {
		name string
		dst  *float64
	}{
		{"longitude", &fix.Lon},
		{"latitude", &fix.Lat},
		{"altitude", &fix.AltitudeMSL},
		{"heading", &fix.TrueHeading},
		{"speed", &fix.GroundSpeed},
	}
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[i+1]), 64)
		if err != nil {
			return fix, fmt.Errorf("error parsing %s: %v", f.name, err)
		}
		*f.dst = v
	}
	return fix, nil
}
