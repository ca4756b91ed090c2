package publisher

import (
	"context"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"sleepystop/internal/event"
)

// AMQPPublisher sends envelopes to a topic exchange with the envelope key
// as routing key, so consumers can bind e.g. "alert.*".
type AMQPPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	metrics  PublisherMetrics
}

func NewAMQPPublisher(url, exchange string, m PublisherMetrics) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	err = ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}
	log.Printf("connected to rabbitmq, exchange %s", exchange)
	return &AMQPPublisher{conn: conn, ch: ch, exchange: exchange, metrics: m}, nil
}

func (p *AMQPPublisher) Close() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

func (p *AMQPPublisher) Publish(ctx context.Context, ev event.Envelope) error {
	msg, err := amqpMessage(ev)
	if err != nil {
		return err
	}
	start := time.Now()
	err = p.ch.PublishWithContext(ctx,
		p.exchange, // exchange
		ev.Key(),   // routing key
		false,      // mandatory
		false,      // immediate
		msg,
	)
	observe(p.metrics, "amqp", start, err)
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", ev.Key(), err)
	}
	return nil
}

func amqpMessage(ev event.Envelope) (amqp.Publishing, error) {
	body, err := ev.Marshal()
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to marshal message: %w", err)
	}
	msg := amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Transient,
		Timestamp:     ev.Timestamp,
		Type:          string(ev.Type),
		CorrelationId: ev.TripID,
		Body:          body,
	}
	// alerts are what wakes people up; keep them across broker restarts
	if ev.Type == event.TypeAlert {
		msg.DeliveryMode = amqp.Persistent
		msg.Priority = 5
	}
	return msg, nil
}
