package publisher

import (
	"bytes"
	"context"
	"log"
	"os"
	"strings"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sleepystop/internal/event"
	"sleepystop/internal/geo"
	"sleepystop/internal/notify"
	"sleepystop/internal/trip"
)

func TestSubjectToken(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"abc", "abc"},
		{" a b ", "a_b"},
		{"a.b>c*d/e", "a_b_c_d_e"},
		{"", "_"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, subjectToken(tt.in), tt.in)
	}
}

func TestSubject(t *testing.T) {
	ev := event.NewAlert("trip.1", trip.AlertEvent{Kind: trip.Arrived}, notify.Normal)
	assert.Equal(t, "sleepystop.trip_1.alert.arrived", Subject("sleepystop", ev))

	track := event.NewTrack("t1", trip.TrackUpdate{})
	assert.Equal(t, "pfx.t1.track", Subject("pfx", track))
}

func TestAMQPMessage(t *testing.T) {
	at := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)

	msg, err := amqpMessage(event.NewTrack("t1", trip.TrackUpdate{DistanceMeters: 10, Timestamp: at}))
	require.NoError(t, err)
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp.Transient, msg.DeliveryMode)
	assert.Equal(t, "track", msg.Type)
	assert.Equal(t, "t1", msg.CorrelationId)
	assert.Equal(t, at, msg.Timestamp)
	assert.Contains(t, string(msg.Body), `"distanceMeters":10`)

	alert, err := amqpMessage(event.NewAlert("t1", trip.AlertEvent{Kind: trip.ThresholdCrossed, ThresholdSeconds: 30}, notify.Normal))
	require.NoError(t, err)
	assert.Equal(t, amqp.Persistent, alert.DeliveryMode)
	assert.Equal(t, uint8(5), alert.Priority)
}

type fakeMetrics struct {
	published, errs, observed int
}

func (f *fakeMetrics) PublishedInc(string)                  { f.published++ }
func (f *fakeMetrics) PublishErrInc(string)                 { f.errs++ }
func (f *fakeMetrics) PublishObserve(string, time.Duration) { f.observed++ }
func (f *fakeMetrics) NATSSetConnected(bool)                {}

func TestObserve(t *testing.T) {
	m := &fakeMetrics{}
	observe(m, "nats", time.Now(), nil)
	observe(m, "nats", time.Now(), assert.AnError)
	assert.Equal(t, 1, m.published)
	assert.Equal(t, 1, m.errs)
	assert.Equal(t, 2, m.observed)

	observe(nil, "nats", time.Now(), nil)
}

func TestLogPublisher(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	p := LogPublisher{}
	ctx := context.Background()
	require.NoError(t, p.Publish(ctx, event.NewTrack("t1", trip.TrackUpdate{DistanceMeters: 1500})))
	assert.Empty(t, buf.String())

	require.NoError(t, p.Publish(ctx, event.NewAlert("t1", trip.AlertEvent{Kind: trip.ThresholdCrossed, ThresholdSeconds: 180}, notify.Funny)))
	assert.Contains(t, buf.String(), "trip t1 alert: 🚀 Wake up sleepy head! Arriving in 3m")

	buf.Reset()
	p.Tracks = true
	require.NoError(t, p.Publish(ctx, event.NewTrack("t1", trip.TrackUpdate{Coord: geo.Coordinate{Lat: 1, Lon: 2}, DistanceMeters: 1500})))
	line := buf.String()
	assert.True(t, strings.Contains(line, "distance=1.50 km"), line)
	assert.Contains(t, line, "eta=—")

	buf.Reset()
	cfg := trip.Config{Destination: geo.Coordinate{Lat: 1, Lon: 2}, Thresholds: []int{30, 300}}
	require.NoError(t, p.Publish(ctx, event.NewTripStarted("t1", cfg, time.Time{})))
	require.NoError(t, p.Publish(ctx, event.NewTripEnded("t1", cfg, trip.StateArrived, "arrived", time.Time{})))
	assert.Contains(t, buf.String(), "trip t1 started towards 1.00000,2.00000 thresholds=[30 300]")
	assert.Contains(t, buf.String(), "trip t1 ended: arrived")
}
