package model

import (
	"errors"
	"time"
)

type ConfirmationStatus string

const (
	StatusPending  ConfirmationStatus = "pending"
	StatusAccepted ConfirmationStatus = "accepted"
	StatusRejected ConfirmationStatus = "rejected"
)

func (s ConfirmationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusRejected:
		return true
	}
	return false
}

var (
	ErrNoListingRef        = errors.New("confirmation references neither a ride nor a trip")
	ErrAmbiguousListingRef = errors.New("confirmation references both a ride and a trip")
)

// Confirmation is a passenger's request against one listing. Exactly one of
// RideID and TripID is set; Ref enforces that at the data-access boundary.
type Confirmation struct {
	ID             string             `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	RideID         string             `json:"ride_id,omitempty" bson:"ride_id,omitempty" validate:"omitempty,mongodb"`
	TripID         string             `json:"trip_id,omitempty" bson:"trip_id,omitempty" validate:"omitempty,mongodb"`
	OwnerID        string             `json:"owner_id" bson:"owner_id" validate:"required,uuid"`
	PassengerID    string             `json:"passenger_id" bson:"passenger_id" validate:"required,uuid,nefield=OwnerID"`
	SeatsRequested int                `json:"seats_requested" bson:"seats_requested" validate:"min=1,max=8"`
	Message        string             `json:"message,omitempty" bson:"message,omitempty" validate:"omitempty,max=500"`
	Status         ConfirmationStatus `json:"status" bson:"status" validate:"required,oneof=pending accepted rejected"`
	CreatedAt      time.Time          `json:"created_at" bson:"created_at"`
	ConfirmedAt    *time.Time         `json:"confirmed_at,omitempty" bson:"confirmed_at,omitempty"`
	UpdatedAt      time.Time          `json:"updated_at" bson:"updated_at"`
}

func (c *Confirmation) Ref() (ListingRef, error) {
	switch {
	case c.RideID != "" && c.TripID != "":
		return ListingRef{}, ErrAmbiguousListingRef
	case c.RideID != "":
		return ListingRef{Kind: KindRide, ID: c.RideID}, nil
	case c.TripID != "":
		return ListingRef{Kind: KindTrip, ID: c.TripID}, nil
	}
	return ListingRef{}, ErrNoListingRef
}

func (c *Confirmation) SetRef(ref ListingRef) {
	c.RideID, c.TripID = "", ""
	switch ref.Kind {
	case KindRide:
		c.RideID = ref.ID
	case KindTrip:
		c.TripID = ref.ID
	}
}

// RejectedAt is the instant the cooldown is measured from: the owner's
// decision time when recorded, otherwise the last row update.
func (c *Confirmation) RejectedAt() time.Time {
	if c.ConfirmedAt != nil {
		return *c.ConfirmedAt
	}
	return c.UpdatedAt
}

// ConfirmationRequest is the passenger's input for a new request.
type ConfirmationRequest struct {
	Kind           ListingKind `json:"kind" validate:"required,listing_kind"`
	ListingID      string      `json:"listing_id" validate:"required,mongodb"`
	SeatsRequested int         `json:"seats_requested" validate:"omitempty,min=1,max=8"`
	Message        string      `json:"message,omitempty" validate:"omitempty,max=500"`
}

type ConfirmationRole string

const (
	RolePassenger ConfirmationRole = "passenger"
	RoleOwner     ConfirmationRole = "owner"
)
