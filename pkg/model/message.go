package model

import "time"

type MessageType string

const (
	MessageTypeUser   MessageType = "user"
	MessageTypeSystem MessageType = "system"
)

type ChatMessage struct {
	ID             string      `json:"id,omitempty" bson:"_id,omitempty"`
	SenderID       string      `json:"sender_id" bson:"sender_id" validate:"required,uuid"`
	ReceiverID     string      `json:"receiver_id" bson:"receiver_id" validate:"required,uuid,nefield=SenderID"`
	Content        string      `json:"content" bson:"content" validate:"required,min=1,max=2000"`
	MessageType    MessageType `json:"message_type" bson:"message_type" validate:"required,oneof=user system"`
	ConfirmationID string      `json:"confirmation_id,omitempty" bson:"confirmation_id,omitempty"`
	IsRead         bool        `json:"is_read" bson:"is_read"`
	ReadAt         *time.Time  `json:"read_at,omitempty" bson:"read_at,omitempty"`
	CreatedAt      time.Time   `json:"created_at" bson:"created_at"`
}

type SendMessageRequest struct {
	ReceiverID string `json:"receiver_id"`
	Content    string `json:"content"`
}
