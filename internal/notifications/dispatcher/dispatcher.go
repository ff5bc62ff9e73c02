// Package dispatcher writes the side effects of a confirmation or listing
// change: a system chat message, a stored notification and a published
// event. Each effect is attempted independently and failures are only
// logged; the state change that triggered them is never rolled back.
package dispatcher

import (
	"context"
	"fmt"
	"time"

	"rideshare/pkg/logger"
	"rideshare/pkg/model"
)

const effectTimeout = 5 * time.Second

type ChangeKind string

const (
	ChangeRequested   ChangeKind = "requested"
	ChangeReRequested ChangeKind = "rerequested"
	ChangeAccepted    ChangeKind = "accepted"
	ChangeRejected    ChangeKind = "rejected"
	ChangeCancelled   ChangeKind = "cancelled"
	ChangeClosed      ChangeKind = "closed"
)

// StatusChange describes one confirmation after its transition.
type StatusChange struct {
	Kind         ChangeKind
	Confirmation *model.Confirmation
	Listing      *model.Listing
	Reason       string
}

type MessageStore interface {
	Create(ctx context.Context, msg *model.ChatMessage) error
}

type NotificationStore interface {
	Create(ctx context.Context, n *model.UserNotification) error
}

type EventPublisher interface {
	PublishEvent(ctx context.Context, event model.Event) error
}

type Dispatcher struct {
	messages      MessageStore
	notifications NotificationStore
	events        EventPublisher
	log           *logger.Logger
	now           func() time.Time
}

// NewDispatcher accepts a nil events publisher; events are then skipped.
func NewDispatcher(messages MessageStore, notifications NotificationStore, events EventPublisher, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		messages:      messages,
		notifications: notifications,
		events:        events,
		log:           log,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

type copyText struct {
	recipient string
	chat      string
	title     string
	body      string
	priority  model.NotificationPriority
	event     model.EventType
}

func (d *Dispatcher) compose(change StatusChange) (copyText, bool) {
	c, l := change.Confirmation, change.Listing
	when := l.ScheduledAt.UTC().Format("Jan 2 15:04")
	route := l.Route()

	switch change.Kind {
	case ChangeRequested, ChangeReRequested:
		verb, event := "requested", model.EventConfirmationRequested
		if change.Kind == ChangeReRequested {
			verb, event = "requested again", model.EventConfirmationRerequested
		}
		return copyText{
			recipient: c.OwnerID,
			title:     "New seat request",
			body:      fmt.Sprintf("A passenger %s %d seat(s) on your %s %s (%s).", verb, c.SeatsRequested, l.Kind, route, when),
			priority:  model.PriorityNormal,
			event:     event,
		}, true
	case ChangeAccepted:
		return copyText{
			recipient: c.PassengerID,
			chat:      fmt.Sprintf("🎉 Your request for the %s %s on %s has been ACCEPTED.", l.Kind, route, when),
			title:     "Request accepted",
			body:      fmt.Sprintf("Your seat on %s (%s) is confirmed.", route, when),
			priority:  model.PriorityHigh,
			event:     model.EventConfirmationAccepted,
		}, true
	case ChangeRejected:
		return copyText{
			recipient: c.PassengerID,
			chat:      fmt.Sprintf("Your request for the %s %s on %s has been REJECTED.", l.Kind, route, when),
			title:     "Request rejected",
			body:      fmt.Sprintf("Your request for %s (%s) was not accepted.", route, when),
			priority:  model.PriorityNormal,
			event:     model.EventConfirmationRejected,
		}, true
	case ChangeCancelled:
		return copyText{
			recipient: c.PassengerID,
			chat:      fmt.Sprintf("Your confirmed seat on the %s %s on %s has been CANCELLED by the owner.", l.Kind, route, when),
			title:     "Seat cancelled",
			body:      fmt.Sprintf("The owner cancelled your seat on %s (%s).", route, when),
			priority:  model.PriorityHigh,
			event:     model.EventConfirmationCancelled,
		}, true
	case ChangeClosed:
		reason := change.Reason
		if reason == "" {
			reason = "no reason given"
		}
		return copyText{
			recipient: c.PassengerID,
			chat:      fmt.Sprintf("The %s %s on %s has been CLOSED (%s). Your pending request was declined.", l.Kind, route, when, reason),
			title:     "Listing closed",
			body:      fmt.Sprintf("%s (%s) is no longer taking requests.", route, when),
			priority:  model.PriorityNormal,
			event:     model.EventConfirmationRejected,
		}, true
	}
	return copyText{}, false
}

// StatusChanged runs the side effects for a single confirmation. It uses a
// context detached from ctx's cancellation so a finished request does not
// abort them halfway.
func (d *Dispatcher) StatusChanged(ctx context.Context, change StatusChange) {
	if change.Confirmation == nil || change.Listing == nil {
		return
	}
	text, ok := d.compose(change)
	if !ok {
		d.log.Warn("Unknown status change kind", "kind", change.Kind)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), effectTimeout)
	defer cancel()

	c := change.Confirmation
	now := d.now()

	var msg *model.ChatMessage
	if text.chat != "" {
		msg = &model.ChatMessage{
			SenderID:       c.OwnerID,
			ReceiverID:     c.PassengerID,
			Content:        text.chat,
			MessageType:    model.MessageTypeSystem,
			ConfirmationID: c.ID,
			CreatedAt:      now,
		}
		if err := d.messages.Create(ctx, msg); err != nil {
			d.log.Error("Failed to create system message",
				"confirmation_id", c.ID,
				"kind", change.Kind,
				"error", err,
			)
			msg = nil
		}
	}

	n := &model.UserNotification{
		UserID:   text.recipient,
		Title:    text.title,
		Message:  text.body,
		Priority: text.priority,
		ActionData: &model.NotificationActionData{
			ConfirmationID: c.ID,
			RideID:         c.RideID,
			TripID:         c.TripID,
			Status:         c.Status,
			Action:         string(change.Kind),
		},
		CreatedAt: now,
	}
	if err := d.notifications.Create(ctx, n); err != nil {
		d.log.Error("Failed to create notification",
			"confirmation_id", c.ID,
			"user_id", text.recipient,
			"error", err,
		)
		n = nil
	}

	d.publish(ctx, model.Event{
		Type:           text.event,
		TargetUserID:   text.recipient,
		ListingKind:    change.Listing.Kind,
		ListingID:      change.Listing.ID,
		ConfirmationID: c.ID,
		Status:         c.Status,
		Message:        msg,
		Notification:   n,
		OccurredAt:     now,
	})
}

// ListingChanged tells the owner's other sessions that a listing was closed
// or reopened.
func (d *Dispatcher) ListingChanged(ctx context.Context, listing *model.Listing, eventType model.EventType) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), effectTimeout)
	defer cancel()

	d.publish(ctx, model.Event{
		Type:         eventType,
		TargetUserID: listing.OwnerID,
		ListingKind:  listing.Kind,
		ListingID:    listing.ID,
		OccurredAt:   d.now(),
	})
}

// MessageCreated forwards a user chat message to its receiver.
func (d *Dispatcher) MessageCreated(ctx context.Context, msg *model.ChatMessage) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), effectTimeout)
	defer cancel()

	d.publish(ctx, model.Event{
		Type:         model.EventMessageCreated,
		TargetUserID: msg.ReceiverID,
		Message:      msg,
		OccurredAt:   d.now(),
	})
}

func (d *Dispatcher) publish(ctx context.Context, event model.Event) {
	if d.events == nil {
		return
	}
	if err := d.events.PublishEvent(ctx, event); err != nil {
		d.log.Error("Failed to publish event",
			"type", event.Type,
			"target_user_id", event.TargetUserID,
			"error", err,
		)
	}
}
