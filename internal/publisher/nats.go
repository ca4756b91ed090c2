package publisher

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"sleepystop/internal/event"
)

type NATSPublisher struct {
	nc          *nats.Conn
	prefix      string
	logSubjects bool
	metrics     PublisherMetrics
}

type PublisherMetrics interface {
	PublishedInc(transport string)
	PublishErrInc(transport string)
	PublishObserve(transport string, d time.Duration)
	NATSSetConnected(connected bool)
}

func NewNATSPublisher(url, prefix string, logSubjects bool, m PublisherMetrics) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("sleepystop"),
		nats.DisconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Printf("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			log.Printf("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Printf("nats closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	return &NATSPublisher{nc: nc, prefix: prefix, logSubjects: logSubjects, metrics: m}, nil
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		_ = p.nc.Drain()
		p.nc.Close()
	}
}

// Publish sends ev on <prefix>.<tripID>.<key>, e.g. sleepystop.ab12.alert.arrived.
func (p *NATSPublisher) Publish(_ context.Context, ev event.Envelope) error {
	subject := Subject(p.prefix, ev)
	b, err := ev.Marshal()
	if err != nil {
		return err
	}
	if p.logSubjects {
		log.Printf("nats publish subject=%s", subject)
	}
	start := time.Now()
	err = p.nc.Publish(subject, b)
	observe(p.metrics, "nats", start, err)
	return err
}

// Subject builds the NATS subject for ev.
func Subject(prefix string, ev event.Envelope) string {
	return fmt.Sprintf("%s.%s.%s", subjectToken(prefix), subjectToken(ev.TripID), ev.Key())
}

func observe(m PublisherMetrics, transport string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.PublishObserve(transport, time.Since(start))
	if err != nil {
		m.PublishErrInc(transport)
	} else {
		m.PublishedInc(transport)
	}
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
