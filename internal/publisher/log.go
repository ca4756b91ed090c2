package publisher

import (
	"context"
	"log"

	"sleepystop/internal/event"
	"sleepystop/internal/notify"
)

// LogPublisher writes envelopes to the process log in display form.
type LogPublisher struct {
	// Tracks enables a line per track update; alerts are always logged.
	Tracks bool
}

func (l LogPublisher) Publish(_ context.Context, ev event.Envelope) error {
	switch ev.Type {
	case event.TypeTrack:
		if l.Tracks && ev.Track != nil {
			u := ev.Track
			log.Printf("trip %s distance=%s eta=%s speed=%s lat=%.5f lon=%.5f",
				ev.TripID,
				notify.FormatDistance(u.DistanceMeters),
				notify.FormatETA(u.ETASeconds),
				notify.FormatSpeed(u.UsedSpeedMps),
				u.Coord.Lat, u.Coord.Lon)
		}
	case event.TypeAlert:
		if ev.Alert != nil {
			log.Printf("trip %s alert: %s", ev.TripID, ev.Alert.Message)
		}
	case event.TypeLocationError:
		if ev.LocationError != nil {
			log.Printf("trip %s %v", ev.TripID, ev.LocationError)
		}
	case event.TypeTripStarted:
		if ev.Trip != nil {
			log.Printf("trip %s started towards %.5f,%.5f thresholds=%v",
				ev.TripID, ev.Trip.Destination.Lat, ev.Trip.Destination.Lon, ev.Trip.Thresholds)
		}
	case event.TypeTripEnded:
		if ev.Trip != nil {
			log.Printf("trip %s ended: %s", ev.TripID, ev.Trip.Reason)
		}
	}
	return nil
}
