package kafka

import (
	"context"
	"fmt"

	"rideshare/pkg/model"
)

// EventPublisher turns domain events into Kafka messages keyed by the user
// they are addressed to.
type EventPublisher struct {
	producer interface {
		Publish(ctx context.Context, msg Message) error
	}
	source string
}

func NewEventPublisher(producer *Producer, source string) *EventPublisher {
	return &EventPublisher{producer: producer, source: source}
}

func (p *EventPublisher) PublishEvent(ctx context.Context, event model.Event) error {
	msg, err := EncodeEvent(event, p.source)
	if err != nil {
		return err
	}
	return p.producer.Publish(ctx, msg)
}

func EncodeEvent(event model.Event, source string) (Message, error) {
	if event.TargetUserID == "" {
		return Message{}, fmt.Errorf("%w: event %s has no target user", ErrInvalidMessage, event.Type)
	}
	return NewMessage().
		WithKey(event.TargetUserID).
		WithValue(event).
		WithEventType(string(event.Type)).
		WithSource(source).
		WithTimestamp(event.OccurredAt).
		Build()
}

func DecodeEvent(msg Message) (model.Event, error) {
	var event model.Event
	if err := msg.DecodeValue(&event); err != nil {
		return model.Event{}, err
	}
	if event.TargetUserID == "" {
		event.TargetUserID = msg.Key
	}
	if event.TargetUserID == "" {
		return model.Event{}, NewPermanentError("event has no target user", ErrInvalidMessage)
	}
	return event, nil
}
