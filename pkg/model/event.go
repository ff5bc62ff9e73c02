package model

import "time"

type EventType string

const (
	EventConfirmationRequested   EventType = "confirmation.requested"
	EventConfirmationRerequested EventType = "confirmation.rerequested"
	EventConfirmationAccepted    EventType = "confirmation.accepted"
	EventConfirmationRejected    EventType = "confirmation.rejected"
	EventConfirmationCancelled   EventType = "confirmation.cancelled"
	EventListingClosed           EventType = "listing.closed"
	EventListingReopened         EventType = "listing.reopened"
	EventMessageCreated          EventType = "message.created"
	EventNotificationCreated     EventType = "notification.created"
)

// Event is the row-change notification published to Kafka and fanned out to
// realtime subscribers of TargetUserID.
type Event struct {
	Type           EventType          `json:"type"`
	TargetUserID   string             `json:"target_user_id"`
	ListingKind    ListingKind        `json:"listing_kind,omitempty"`
	ListingID      string             `json:"listing_id,omitempty"`
	ConfirmationID string             `json:"confirmation_id,omitempty"`
	Status         ConfirmationStatus `json:"status,omitempty"`
	Message        *ChatMessage       `json:"message,omitempty"`
	Notification   *UserNotification  `json:"notification,omitempty"`
	OccurredAt     time.Time          `json:"occurred_at"`
}
