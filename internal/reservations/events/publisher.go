package events

import (
	"context"
	"errors"
	"fmt"

	"courtq/pkg/kafka"
)

const Source = "courtq-reservations"

// Publisher delivers committed transitions to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, events ...ReservationEvent) error
	Close() error
}

type Noop struct{}

func (Noop) Publish(context.Context, ...ReservationEvent) error { return nil }
func (Noop) Close() error { return nil }

// KafkaPublisher writes each event keyed by its slot key.
type KafkaPublisher struct {
	producer *kafka.Producer
}

func NewKafkaPublisher(producer *kafka.Producer) *KafkaPublisher {
	return &KafkaPublisher{producer: producer}
}

func (p *KafkaPublisher) Publish(ctx context.Context, events ...ReservationEvent) error {
	var errs []error
	for _, ev := range events {
		msg, err := ToMessage(ev)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := p.producer.Publish(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("publish %s for %s: %w", ev.Type, ev.ReservationID, err))
		}
	}
	return errors.Join(errs...)
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

func ToMessage(ev ReservationEvent) (kafka.Message, error) {
	return kafka.NewMessage().
		WithKey(ev.SlotKey()).
		WithValue(ev).
		WithEventID(ev.EventID).
		WithEventType(string(ev.Type)).
		WithCorrelationID(ev.ReservationID).
		WithSchemaVersion(SchemaVersion).
		WithSource(Source).
		WithTimestamp(ev.OccurredAt).
		Build()
}
