package consumer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"rideshare/pkg/kafka"
	"rideshare/pkg/logger"
	"rideshare/pkg/model"
)

type fakeHub struct {
	userID   string
	payloads [][]byte
}

func (h *fakeHub) Publish(userID string, payload []byte) int {
	h.userID = userID
	h.payloads = append(h.payloads, payload)
	return 1
}

func TestHandle_DeliversToTarget(t *testing.T) {
	hub := &fakeHub{}
	c := NewEventConsumer(hub, logger.Discard())

	event := model.Event{
		Type:           model.EventConfirmationAccepted,
		TargetUserID:   "0b8d3f4c-1e2a-4c5d-8e9f-a1b2c3d4e5f6",
		ConfirmationID: "65a1b2c3d4e5f6a7b8c9d0f2",
		Status:         model.StatusAccepted,
		OccurredAt:     time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
	}
	msg, err := kafka.EncodeEvent(event, "test")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	if err := c.Handle(context.Background(), msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hub.userID != event.TargetUserID || len(hub.payloads) != 1 {
		t.Fatalf("expected delivery to %s, got %q (%d)", event.TargetUserID, hub.userID, len(hub.payloads))
	}

	var got model.Event
	if err := json.Unmarshal(hub.payloads[0], &got); err != nil {
		t.Fatalf("payload is not an event: %v", err)
	}
	if got.Type != event.Type || got.ConfirmationID != event.ConfirmationID {
		t.Errorf("unexpected payload %+v", got)
	}
}

func TestHandle_BadPayloadIsPermanent(t *testing.T) {
	c := NewEventConsumer(&fakeHub{}, logger.Discard())

	err := c.Handle(context.Background(), kafka.Message{Value: []byte("{not json")})
	if err == nil {
		t.Fatal("expected error")
	}
	if kafka.ClassifyError(err) != kafka.ErrorTypePermanent {
		t.Errorf("malformed events should not be retried: %v", err)
	}
}

func TestHubPublisher(t *testing.T) {
	hub := &fakeHub{}
	p := NewHubPublisher(hub, logger.Discard())

	if err := p.PublishEvent(context.Background(), model.Event{Type: model.EventMessageCreated}); err == nil {
		t.Error("expected error for event without target")
	}
	if err := p.PublishEvent(context.Background(), model.Event{Type: model.EventMessageCreated, TargetUserID: "u"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hub.userID != "u" {
		t.Errorf("expected delivery to u, got %q", hub.userID)
	}
}
