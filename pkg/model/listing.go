package model

import (
	"strings"
	"time"
)

type ListingKind string

const (
	KindRide ListingKind = "ride"
	KindTrip ListingKind = "trip"
)

const (
	DirectionToAirport   = "to_airport"
	DirectionFromAirport = "from_airport"
)

// ParseKind accepts the singular or plural resource name.
func ParseKind(s string) (ListingKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ride", "rides":
		return KindRide, true
	case "trip", "trips":
		return KindTrip, true
	}
	return "", false
}

func (k ListingKind) Plural() string {
	return string(k) + "s"
}

// ListingRef points at exactly one ride or trip.
type ListingRef struct {
	Kind ListingKind `json:"kind"`
	ID   string      `json:"id"`
}

type TripDetails struct {
	Airport      string `json:"airport" bson:"airport" validate:"required,airport_code"`
	Direction    string `json:"direction" bson:"direction" validate:"required,oneof=to_airport from_airport"`
	FlightNumber string `json:"flight_number,omitempty" bson:"flight_number,omitempty" validate:"omitempty,max=10"`
}

// Listing is a posted ride or airport trip. Expiry is derived from
// ScheduledAt and never stored.
type Listing struct {
	ID             string       `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	Kind           ListingKind  `json:"kind" bson:"kind" validate:"required,oneof=ride trip"`
	OwnerID        string       `json:"owner_id" bson:"owner_id" validate:"required,uuid"`
	Origin         string       `json:"origin" bson:"origin" validate:"required,min=2,max=100"`
	Destination    string       `json:"destination" bson:"destination" validate:"required,min=2,max=100"`
	ScheduledAt    time.Time    `json:"scheduled_at" bson:"scheduled_at" validate:"required"`
	SeatsAvailable int          `json:"seats_available" bson:"seats_available" validate:"min=0,max=8"`
	Price          float64      `json:"price" bson:"price" validate:"min=0,max=10000"`
	Currency       string       `json:"currency,omitempty" bson:"currency,omitempty" validate:"omitempty,iso4217"`
	Notes          string       `json:"notes,omitempty" bson:"notes,omitempty" validate:"omitempty,max=500"`
	Trip           *TripDetails `json:"trip,omitempty" bson:"trip,omitempty"`
	IsClosed       bool         `json:"is_closed" bson:"is_closed"`
	ClosedAt       *time.Time   `json:"closed_at,omitempty" bson:"closed_at,omitempty"`
	ClosedReason   string       `json:"closed_reason,omitempty" bson:"closed_reason,omitempty" validate:"omitempty,max=200"`
	CreatedAt      time.Time    `json:"created_at" bson:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at" bson:"updated_at"`
}

func (l *Listing) Ref() ListingRef {
	return ListingRef{Kind: l.Kind, ID: l.ID}
}

// IsExpired reports whether the scheduled departure is at or before now.
func (l *Listing) IsExpired(now time.Time) bool {
	return !l.ScheduledAt.After(now)
}

// Route is the short human label used in notification copy.
func (l *Listing) Route() string {
	return l.Origin + " → " + l.Destination
}

// ListingFilter narrows a listing search. Zero values are ignored.
type ListingFilter struct {
	Kind          ListingKind
	Origin        string
	Destination   string
	Airport       string
	From          *time.Time
	To            *time.Time
	IncludeClosed bool
}
