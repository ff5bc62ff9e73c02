package model

import "time"

type NotificationPriority string

const (
	PriorityLow    NotificationPriority = "low"
	PriorityNormal NotificationPriority = "normal"
	PriorityHigh   NotificationPriority = "high"
)

// NotificationActionData lets a client deep-link from a notification to the
// confirmation and listing it concerns.
type NotificationActionData struct {
	ConfirmationID string             `json:"confirmation_id,omitempty" bson:"confirmation_id,omitempty"`
	RideID         string             `json:"ride_id,omitempty" bson:"ride_id,omitempty"`
	TripID         string             `json:"trip_id,omitempty" bson:"trip_id,omitempty"`
	Status         ConfirmationStatus `json:"status,omitempty" bson:"status,omitempty"`
	Action         string             `json:"action,omitempty" bson:"action,omitempty"`
}

type UserNotification struct {
	ID         string                  `json:"id,omitempty" bson:"_id,omitempty"`
	UserID     string                  `json:"user_id" bson:"user_id"`
	Title      string                  `json:"title" bson:"title"`
	Message    string                  `json:"message" bson:"message"`
	Priority   NotificationPriority    `json:"priority" bson:"priority"`
	ActionData *NotificationActionData `json:"action_data,omitempty" bson:"action_data,omitempty"`
	IsRead     bool                    `json:"is_read" bson:"is_read"`
	ReadAt     *time.Time              `json:"read_at,omitempty" bson:"read_at,omitempty"`
	CreatedAt  time.Time               `json:"created_at" bson:"created_at"`
}
