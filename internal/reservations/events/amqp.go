package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPPublisher sends events to a durable RabbitMQ queue as persistent
// messages over one long-lived channel.
type AMQPPublisher struct {
	mu    sync.Mutex
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

func NewAMQPPublisher(url, queue string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq queue declare: %w", err)
	}
	return &AMQPPublisher{conn: conn, ch: ch, queue: queue}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, events ...ReservationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for _, ev := range events {
		pub, err := toPublishing(ev)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := p.ch.PublishWithContext(ctx, "", p.queue, false, false, pub); err != nil {
			errs = append(errs, fmt.Errorf("publish %s for %s: %w", ev.Type, ev.ReservationID, err))
		}
	}
	return errors.Join(errs...)
}

func toPublishing(ev ReservationEvent) (amqp.Publishing, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal %s: %w", ev.Type, err)
	}
	return amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     ev.EventID,
		CorrelationId: ev.ReservationID,
		Type:          string(ev.Type),
		Timestamp:     ev.OccurredAt,
		AppId:         Source,
		Headers:       amqp.Table{"slot_key": ev.SlotKey()},
		Body:          body,
	}, nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return errors.Join(p.ch.Close(), p.conn.Close())
}
