// Package consumer delivers published events to the realtime subscriptions
// of their target user.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	"rideshare/pkg/kafka"
	"rideshare/pkg/logger"
	"rideshare/pkg/model"
)

type Broadcaster interface {
	Publish(userID string, payload []byte) int
}

type EventConsumer struct {
	hub Broadcaster
	log *logger.Logger
}

func NewEventConsumer(hub Broadcaster, log *logger.Logger) *EventConsumer {
	return &EventConsumer{hub: hub, log: log}
}

// Handle is the kafka.MessageHandler for the events topic. A user with no
// open subscription is not an error; the event is simply not delivered.
func (c *EventConsumer) Handle(ctx context.Context, msg kafka.Message) error {
	event, err := kafka.DecodeEvent(msg)
	if err != nil {
		return err
	}
	if _, err := c.deliver(event); err != nil {
		return kafka.NewPermanentError("failed to encode event for delivery", err)
	}
	return nil
}

func (c *EventConsumer) deliver(event model.Event) (int, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal event %s: %w", event.Type, err)
	}
	delivered := c.hub.Publish(event.TargetUserID, payload)
	c.log.Debug("Event delivered",
		"type", event.Type,
		"target_user_id", event.TargetUserID,
		"subscribers", delivered,
	)
	return delivered, nil
}

// HubPublisher satisfies the dispatcher's event publisher without Kafka by
// delivering straight to the in-process hub. Used when Kafka is disabled.
type HubPublisher struct {
	consumer *EventConsumer
}

func NewHubPublisher(hub Broadcaster, log *logger.Logger) *HubPublisher {
	return &HubPublisher{consumer: NewEventConsumer(hub, log)}
}

func (p *HubPublisher) PublishEvent(_ context.Context, event model.Event) error {
	if event.TargetUserID == "" {
		return fmt.Errorf("event %s has no target user", event.Type)
	}
	_, err := p.consumer.deliver(event)
	return err
}
