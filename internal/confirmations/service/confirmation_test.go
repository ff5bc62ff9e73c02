package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"rideshare/internal/confirmations/validator"
	listingsservice "rideshare/internal/listings/service"
	listingsvalidator "rideshare/internal/listings/validator"
	"rideshare/internal/notifications/dispatcher"
	"rideshare/pkg/config"
	apperrors "rideshare/pkg/errors"
	"rideshare/pkg/logger"
	"rideshare/pkg/model"
	"rideshare/pkg/session"
)

const (
	ownerID     = "6f1c2f0e-7d0b-4bb4-9a52-2b7c6f0b1a01"
	passengerID = "0b8d3f4c-1e2a-4c5d-8e9f-a1b2c3d4e5f6"
	otherID     = "9a7b6c5d-4e3f-4a1b-8c2d-0e1f2a3b4c5d"
	rideID      = "65a1b2c3d4e5f6a7b8c9d0e1"
	tripID      = "65a1b2c3d4e5f6a7b8c9d0e2"
)

var fixedNow = time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

var (
	owner     = session.Session{UserID: ownerID}
	passenger = session.Session{UserID: passengerID}
	stranger  = session.Session{UserID: otherID}
)

type recordingNotifier struct {
	changes []dispatcher.StatusChange
}

func (n *recordingNotifier) StatusChanged(ctx context.Context, change dispatcher.StatusChange) {
	n.changes = append(n.changes, change)
}

func (n *recordingNotifier) kinds() []dispatcher.ChangeKind {
	out := make([]dispatcher.ChangeKind, 0, len(n.changes))
	for _, c := range n.changes {
		out = append(out, c.Kind)
	}
	return out
}

func testConfig() *config.Config {
	return &config.Config{
		Log:                  logger.Discard(),
		ConfirmationCooldown: 10 * time.Minute,
		RetryMaxTries:        2,
		RetryInitialInterval: time.Millisecond,
		RetryMaxInterval:     time.Millisecond,
	}
}

func ride(seats int) *model.Listing {
	return &model.Listing{
		ID:             rideID,
		Kind:           model.KindRide,
		OwnerID:        ownerID,
		Origin:         "Campus",
		Destination:    "Airport",
		ScheduledAt:    fixedNow.Add(48 * time.Hour),
		SeatsAvailable: seats,
	}
}

type fixture struct {
	svc           *confirmationService
	confirmations *memoryConfirmations
	listings      *memoryListings
	notifier      *recordingNotifier
}

func newFixture(listings ...*model.Listing) *fixture {
	f := &fixture{
		confirmations: newMemoryConfirmations(),
		listings:      newMemoryListings(listings...),
		notifier:      &recordingNotifier{},
	}
	f.svc = NewConfirmationService(f.confirmations, f.listings, validator.NewConfirmationValidator(logger.Discard()), f.notifier, testConfig()).(*confirmationService)
	f.svc.now = func() time.Time { return fixedNow }
	return f
}

func (f *fixture) seed(status model.ConfirmationStatus, decidedAt *time.Time) *model.Confirmation {
	c := &model.Confirmation{
		RideID:         rideID,
		OwnerID:        ownerID,
		PassengerID:    passengerID,
		SeatsRequested: 1,
		Status:         status,
		ConfirmedAt:    decidedAt,
		CreatedAt:      fixedNow.Add(-time.Hour),
		UpdatedAt:      fixedNow.Add(-time.Hour),
	}
	return f.confirmations.put(c)
}

func rideRequest() *model.ConfirmationRequest {
	return &model.ConfirmationRequest{Kind: model.KindRide, ListingID: rideID, SeatsRequested: 1}
}

func TestRequest_CreatesPending(t *testing.T) {
	f := newFixture(ride(2))

	c, err := f.svc.Request(context.Background(), passenger, &model.ConfirmationRequest{
		Kind:      "rides",
		ListingID: rideID,
		Message:   "  two bags \x07",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Status != model.StatusPending || c.RideID != rideID || c.TripID != "" {
		t.Errorf("unexpected confirmation %+v", c)
	}
	if c.OwnerID != ownerID || c.PassengerID != passengerID || c.SeatsRequested != 1 {
		t.Errorf("owner, passenger or default seats wrong: %+v", c)
	}
	if c.Message != "two bags" {
		t.Errorf("message not sanitized: %q", c.Message)
	}
	if got := f.notifier.kinds(); len(got) != 1 || got[0] != dispatcher.ChangeRequested {
		t.Errorf("expected owner to be notified, got %v", got)
	}
}

func TestRequest_Refusals(t *testing.T) {
	closedAt := fixedNow.Add(-time.Minute)

	tests := []struct {
		name     string
		listing  func() *model.Listing
		caller   session.Session
		req      func() *model.ConfirmationRequest
		wantCode string
	}{
		{"own listing", func() *model.Listing { return ride(2) }, owner, rideRequest, apperrors.CodeForbidden},
		{"closed listing", func() *model.Listing {
			l := ride(2)
			l.IsClosed, l.ClosedAt = true, &closedAt
			return l
		}, passenger, rideRequest, apperrors.CodeListingClosed},
		{"departed listing", func() *model.Listing {
			l := ride(2)
			l.ScheduledAt = fixedNow.Add(-time.Second)
			return l
		}, passenger, rideRequest, apperrors.CodeListingExpired},
		{"too many seats", func() *model.Listing { return ride(2) }, passenger, func() *model.ConfirmationRequest {
			r := rideRequest()
			r.SeatsRequested = 3
			return r
		}, apperrors.CodeValidation},
		{"bad kind", func() *model.Listing { return ride(2) }, passenger, func() *model.ConfirmationRequest {
			r := rideRequest()
			r.Kind = "bus"
			return r
		}, apperrors.CodeValidation},
		{"bad listing id", func() *model.Listing { return ride(2) }, passenger, func() *model.ConfirmationRequest {
			r := rideRequest()
			r.ListingID = "nope"
			return r
		}, apperrors.CodeValidation},
		{"unknown listing", func() *model.Listing { return ride(2) }, passenger, func() *model.ConfirmationRequest {
			r := rideRequest()
			r.ListingID = tripID
			return r
		}, apperrors.CodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(tt.listing())

			_, err := f.svc.Request(context.Background(), tt.caller, tt.req())
			if !apperrors.HasCode(err, tt.wantCode) {
				t.Fatalf("expected %s, got %v", tt.wantCode, err)
			}
			if f.confirmations.creates != 0 {
				t.Errorf("refused request must not write a row")
			}
			if len(f.notifier.changes) != 0 {
				t.Errorf("refused request must not notify")
			}
		})
	}
}

func TestRequest_UnlimitedSeatsOnTrips(t *testing.T) {
	trip := ride(0)
	trip.ID, trip.Kind = tripID, model.KindTrip
	trip.Trip = &model.TripDetails{Airport: "JFK", Direction: model.DirectionToAirport}
	f := newFixture(trip)

	c, err := f.svc.Request(context.Background(), passenger, &model.ConfirmationRequest{Kind: model.KindTrip, ListingID: tripID, SeatsRequested: 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.TripID != tripID || c.RideID != "" {
		t.Errorf("expected trip reference only, got ride=%q trip=%q", c.RideID, c.TripID)
	}
}

func TestRequest_ExistingRow(t *testing.T) {
	for _, status := range []model.ConfirmationStatus{model.StatusPending, model.StatusAccepted} {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture(ride(2))
			f.seed(status, nil)

			_, err := f.svc.Request(context.Background(), passenger, rideRequest())
			if !apperrors.HasCode(err, apperrors.CodeConflict) {
				t.Fatalf("expected conflict, got %v", err)
			}
		})
	}

	t.Run("rejected goes through re-request", func(t *testing.T) {
		f := newFixture(ride(2))
		decided := fixedNow.Add(-11 * time.Minute)
		existing := f.seed(model.StatusRejected, &decided)

		c, err := f.svc.Request(context.Background(), passenger, rideRequest())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if c.ID != existing.ID {
			t.Errorf("expected the existing row to be reused")
		}
		if f.confirmations.creates != 0 {
			t.Errorf("re-request must not insert a new row")
		}
	})
}

func TestReRequest_Cooldown(t *testing.T) {
	tests := []struct {
		name          string
		elapsed       time.Duration
		wantAllowed   bool
		wantRemaining int
	}{
		{"just rejected", 0, false, 10},
		{"one ms in", time.Millisecond, false, 10},
		{"one minute in", time.Minute, false, 9},
		{"nine minutes one second", 9*time.Minute + time.Second, false, 1},
		{"one ms short", 10*time.Minute - time.Millisecond, false, 1},
		{"exactly at boundary", 10 * time.Minute, true, 0},
		{"well after", 3 * time.Hour, true, 0},
		{"rejection in the future", -5 * time.Minute, false, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(ride(2))
			decided := fixedNow.Add(-tt.elapsed)
			c := f.seed(model.StatusRejected, &decided)

			got, err := f.svc.ReRequest(context.Background(), passenger, c.ID)
			if tt.wantAllowed {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if got.ID != c.ID || got.Status != model.StatusPending || got.ConfirmedAt != nil {
					t.Errorf("expected same row back to pending with decision cleared, got %+v", got)
				}
				stored := f.confirmations.get(c.ID)
				if stored.Status != model.StatusPending || stored.ConfirmedAt != nil {
					t.Errorf("stored row not transitioned: %+v", stored)
				}
				if len(f.confirmations.rows) != 1 {
					t.Errorf("re-request must not create rows, have %d", len(f.confirmations.rows))
				}
				return
			}

			var appErr *apperrors.AppError
			if !errors.As(err, &appErr) || appErr.Code != apperrors.CodeCooldownActive {
				t.Fatalf("expected cooldown error, got %v", err)
			}
			if appErr.Details["remaining_minutes"] != tt.wantRemaining {
				t.Errorf("expected %d remaining minutes, got %v", tt.wantRemaining, appErr.Details["remaining_minutes"])
			}
			if f.confirmations.get(c.ID).Status != model.StatusRejected {
				t.Errorf("refused re-request must not mutate the row")
			}
		})
	}
}

func TestReRequest_FallsBackToUpdatedAt(t *testing.T) {
	f := newFixture(ride(2))
	c := f.seed(model.StatusRejected, nil)
	f.confirmations.mu.Lock()
	f.confirmations.rows[c.ID].UpdatedAt = fixedNow.Add(-4 * time.Minute)
	f.confirmations.mu.Unlock()

	_, err := f.svc.ReRequest(context.Background(), passenger, c.ID)
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) || appErr.Details["remaining_minutes"] != 6 {
		t.Fatalf("expected 6 minutes from updated_at, got %v", err)
	}
}

func TestReRequest_Gates(t *testing.T) {
	decided := fixedNow.Add(-time.Hour)
	closedAt := fixedNow.Add(-time.Minute)

	t.Run("not passenger", func(t *testing.T) {
		f := newFixture(ride(2))
		c := f.seed(model.StatusRejected, &decided)
		if _, err := f.svc.ReRequest(context.Background(), stranger, c.ID); !apperrors.HasCode(err, apperrors.CodeForbidden) {
			t.Errorf("expected forbidden, got %v", err)
		}
	})
	t.Run("not rejected", func(t *testing.T) {
		f := newFixture(ride(2))
		c := f.seed(model.StatusAccepted, &decided)
		if _, err := f.svc.ReRequest(context.Background(), passenger, c.ID); !apperrors.HasCode(err, apperrors.CodeInvalidTransition) {
			t.Errorf("expected invalid transition, got %v", err)
		}
	})
	t.Run("listing closed", func(t *testing.T) {
		l := ride(2)
		l.IsClosed, l.ClosedAt = true, &closedAt
		f := newFixture(l)
		c := f.seed(model.StatusRejected, &decided)
		if _, err := f.svc.ReRequest(context.Background(), passenger, c.ID); !apperrors.HasCode(err, apperrors.CodeListingClosed) {
			t.Errorf("expected listing closed, got %v", err)
		}
	})
	t.Run("listing departed", func(t *testing.T) {
		l := ride(2)
		l.ScheduledAt = fixedNow.Add(-time.Hour)
		f := newFixture(l)
		c := f.seed(model.StatusRejected, &decided)
		if _, err := f.svc.ReRequest(context.Background(), passenger, c.ID); !apperrors.HasCode(err, apperrors.CodeListingExpired) {
			t.Errorf("expected listing expired, got %v", err)
		}
	})
}

func TestOwnerDecisions(t *testing.T) {
	tests := []struct {
		name       string
		from       model.ConfirmationStatus
		act        func(*confirmationService, context.Context, session.Session, string) (*model.Confirmation, error)
		wantStatus model.ConfirmationStatus
		wantChange dispatcher.ChangeKind
		wantCode   string
	}{
		{"accept pending", model.StatusPending, (*confirmationService).Accept, model.StatusAccepted, dispatcher.ChangeAccepted, ""},
		{"reject pending", model.StatusPending, (*confirmationService).Reject, model.StatusRejected, dispatcher.ChangeRejected, ""},
		{"cancel accepted", model.StatusAccepted, (*confirmationService).Cancel, model.StatusRejected, dispatcher.ChangeCancelled, ""},
		{"accept accepted", model.StatusAccepted, (*confirmationService).Accept, "", "", apperrors.CodeInvalidTransition},
		{"cancel pending", model.StatusPending, (*confirmationService).Cancel, "", "", apperrors.CodeInvalidTransition},
		{"reject rejected", model.StatusRejected, (*confirmationService).Reject, "", "", apperrors.CodeInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(ride(2))
			c := f.seed(tt.from, nil)

			got, err := tt.act(f.svc, context.Background(), owner, c.ID)
			if tt.wantCode != "" {
				if !apperrors.HasCode(err, tt.wantCode) {
					t.Fatalf("expected %s, got %v", tt.wantCode, err)
				}
				if f.confirmations.get(c.ID).Status != tt.from {
					t.Errorf("refused decision must not mutate the row")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Status != tt.wantStatus || got.ConfirmedAt == nil || !got.ConfirmedAt.Equal(fixedNow) {
				t.Errorf("unexpected result %+v", got)
			}
			stored := f.confirmations.get(c.ID)
			if stored.Status != tt.wantStatus {
				t.Errorf("stored status %s, want %s", stored.Status, tt.wantStatus)
			}
			if kinds := f.notifier.kinds(); len(kinds) != 1 || kinds[0] != tt.wantChange {
				t.Errorf("expected %s side effect, got %v", tt.wantChange, kinds)
			}
		})
	}
}

func TestOwnerDecisions_OwnerReadFromListing(t *testing.T) {
	f := newFixture(ride(2))
	c := f.seed(model.StatusPending, nil)

	// A stale owner_id on the row does not grant authority.
	f.confirmations.mu.Lock()
	f.confirmations.rows[c.ID].OwnerID = otherID
	f.confirmations.mu.Unlock()

	if _, err := f.svc.Accept(context.Background(), stranger, c.ID); !apperrors.HasCode(err, apperrors.CodeForbidden) {
		t.Errorf("expected forbidden, got %v", err)
	}
	if _, err := f.svc.Accept(context.Background(), passenger, c.ID); !apperrors.HasCode(err, apperrors.CodeForbidden) {
		t.Errorf("passenger must not accept own request, got %v", err)
	}
	if _, err := f.svc.Accept(context.Background(), owner, c.ID); err != nil {
		t.Errorf("listing owner should be able to accept: %v", err)
	}
}

func TestAccept_RefusedOnClosedOrDepartedListing(t *testing.T) {
	closedAt := fixedNow.Add(-time.Minute)

	tests := []struct {
		name     string
		listing  func() *model.Listing
		wantCode string
	}{
		{"closed", func() *model.Listing {
			l := ride(2)
			l.IsClosed, l.ClosedAt = true, &closedAt
			return l
		}, apperrors.CodeListingClosed},
		{"departed", func() *model.Listing {
			l := ride(2)
			l.ScheduledAt = fixedNow.Add(-time.Hour)
			return l
		}, apperrors.CodeListingExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(tt.listing())
			c := f.seed(model.StatusPending, nil)

			if _, err := f.svc.Accept(context.Background(), owner, c.ID); !apperrors.HasCode(err, tt.wantCode) {
				t.Fatalf("expected %s, got %v", tt.wantCode, err)
			}
			if got := f.confirmations.get(c.ID).Status; got != model.StatusPending {
				t.Errorf("refused accept must not mutate the row, got %s", got)
			}
			if _, err := f.svc.Reject(context.Background(), owner, c.ID); err != nil {
				t.Errorf("reject should still work: %v", err)
			}
		})
	}
}

func TestAccept_SeatsExhausted(t *testing.T) {
	riders := []string{
		"1c9e3b52-8f0a-4d7e-9b61-3a2f5c4d6e70",
		"2d0f4c63-9a1b-4e8f-8c72-4b3a6d5e7f81",
	}

	tests := []struct {
		name    string
		seats   int
		wantErr bool
	}{
		{"full", 2, true},
		{"one left", 3, false},
		{"unlimited", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(ride(tt.seats))
			for _, id := range riders {
				f.confirmations.put(&model.Confirmation{
					RideID: rideID, OwnerID: ownerID, PassengerID: id,
					SeatsRequested: 1, Status: model.StatusAccepted,
				})
			}
			c := f.seed(model.StatusPending, nil)

			_, err := f.svc.Accept(context.Background(), owner, c.ID)
			if tt.wantErr {
				if !apperrors.HasCode(err, apperrors.CodeConflict) {
					t.Fatalf("expected conflict, got %v", err)
				}
				if f.confirmations.get(c.ID).Status != model.StatusPending {
					t.Errorf("row must stay pending")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

// closingListings closes the listing right after handing out the first
// read, the way a concurrent Close would.
type closingListings struct {
	*memoryListings
	reads int
}

func (c *closingListings) FindByID(ctx context.Context, kind model.ListingKind, id string) (*model.Listing, error) {
	l, err := c.memoryListings.FindByID(ctx, kind, id)
	c.reads++
	if err == nil && c.reads == 1 {
		c.memoryListings.MarkClosed(ctx, kind, id, "full", fixedNow)
	}
	return l, err
}

func TestRequest_ListingClosedDuringRequest(t *testing.T) {
	t.Run("new row", func(t *testing.T) {
		f := newFixture(ride(2))
		f.svc.listings = &closingListings{memoryListings: f.listings}

		_, err := f.svc.Request(context.Background(), passenger, rideRequest())
		if !apperrors.HasCode(err, apperrors.CodeListingClosed) {
			t.Fatalf("expected listing closed, got %v", err)
		}
		rows, _ := f.confirmations.FindByListing(context.Background(), model.ListingRef{Kind: model.KindRide, ID: rideID}, model.StatusPending)
		if len(rows) != 0 {
			t.Errorf("no row may stay pending on a closed listing, got %d", len(rows))
		}
		if len(f.notifier.changes) != 0 {
			t.Errorf("withdrawn request must not notify the owner")
		}
	})

	t.Run("re-request", func(t *testing.T) {
		f := newFixture(ride(2))
		decided := fixedNow.Add(-time.Hour)
		c := f.seed(model.StatusRejected, &decided)
		f.svc.listings = &closingListings{memoryListings: f.listings}

		_, err := f.svc.ReRequest(context.Background(), passenger, c.ID)
		if !apperrors.HasCode(err, apperrors.CodeListingClosed) {
			t.Fatalf("expected listing closed, got %v", err)
		}
		if got := f.confirmations.get(c.ID).Status; got != model.StatusRejected {
			t.Errorf("row must end rejected, got %s", got)
		}
	})
}

func TestRequest_RejectedRowTakesNewSeats(t *testing.T) {
	f := newFixture(ride(2))
	decided := fixedNow.Add(-11 * time.Minute)
	c := f.seed(model.StatusRejected, &decided)

	req := rideRequest()
	req.SeatsRequested, req.Message = 2, "late flight"
	if _, err := f.svc.Request(context.Background(), passenger, req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored := f.confirmations.get(c.ID)
	if stored.Status != model.StatusPending || stored.SeatsRequested != 2 || stored.Message != "late flight" {
		t.Errorf("re-request should store the new seats and message, got %+v", stored)
	}
}

func TestReRequest_StoredSeatsRechecked(t *testing.T) {
	f := newFixture(ride(2))
	decided := fixedNow.Add(-time.Hour)
	c := f.seed(model.StatusRejected, &decided)
	f.confirmations.mu.Lock()
	f.confirmations.rows[c.ID].SeatsRequested = 3
	f.confirmations.mu.Unlock()

	if _, err := f.svc.ReRequest(context.Background(), passenger, c.ID); !apperrors.HasCode(err, apperrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if f.confirmations.get(c.ID).Status != model.StatusRejected {
		t.Errorf("refused re-request must not mutate the row")
	}
}

// racingConfirmations lets another writer move the row between the
// service's read and its conditional update.
type racingConfirmations struct {
	*memoryConfirmations
	winner model.ConfirmationStatus
}

func (r racingConfirmations) UpdateStatus(ctx context.Context, id string, from, to model.ConfirmationStatus, confirmedAt *time.Time, now time.Time) (bool, error) {
	if _, err := r.memoryConfirmations.UpdateStatus(ctx, id, from, r.winner, confirmedAt, now); err != nil {
		return false, err
	}
	return r.memoryConfirmations.UpdateStatus(ctx, id, from, to, confirmedAt, now)
}

func TestDecision_LosesRace(t *testing.T) {
	f := newFixture(ride(2))
	c := f.seed(model.StatusPending, nil)
	f.svc.repo = racingConfirmations{memoryConfirmations: f.confirmations, winner: model.StatusRejected}

	_, err := f.svc.Accept(context.Background(), owner, c.ID)
	if !apperrors.HasCode(err, apperrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if got := f.confirmations.get(c.ID).Status; got != model.StatusRejected {
		t.Errorf("the first writer's status must stand, got %s", got)
	}
	if len(f.notifier.changes) != 0 {
		t.Errorf("a lost race must not notify")
	}
}

func TestEligibility(t *testing.T) {
	closedAt := fixedNow.Add(-time.Minute)
	tests := []struct {
		name          string
		listing       func() *model.Listing
		status        model.ConfirmationStatus
		decidedAgo    time.Duration
		wantCan       bool
		wantReason    string
		wantRemaining int
	}{
		{"pending", func() *model.Listing { return ride(2) }, model.StatusPending, 0, false, ReasonNotRejected, 0},
		{"cooling down", func() *model.Listing { return ride(2) }, model.StatusRejected, 3 * time.Minute, false, ReasonCooldown, 7},
		{"eligible", func() *model.Listing { return ride(2) }, model.StatusRejected, 20 * time.Minute, true, "", 0},
		{"closed", func() *model.Listing {
			l := ride(2)
			l.IsClosed, l.ClosedAt = true, &closedAt
			return l
		}, model.StatusRejected, 20 * time.Minute, false, ReasonListingClosed, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(tt.listing())
			decided := fixedNow.Add(-tt.decidedAgo)
			c := f.seed(tt.status, &decided)

			e, err := f.svc.Eligibility(context.Background(), passenger, c.ID)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if e.CanRequest != tt.wantCan || e.Reason != tt.wantReason || e.RemainingMinutes != tt.wantRemaining {
				t.Errorf("unexpected eligibility %+v", e)
			}
			if f.confirmations.get(c.ID).Status != tt.status {
				t.Errorf("eligibility must not mutate")
			}
		})
	}
}

func TestGetByID_PartiesOnly(t *testing.T) {
	f := newFixture(ride(2))
	c := f.seed(model.StatusPending, nil)

	for _, sess := range []session.Session{owner, passenger} {
		if _, err := f.svc.GetByID(context.Background(), sess, c.ID); err != nil {
			t.Errorf("%s should see the confirmation: %v", sess.UserID, err)
		}
	}
	if _, err := f.svc.GetByID(context.Background(), stranger, c.ID); !apperrors.HasCode(err, apperrors.CodeNotFound) {
		t.Errorf("stranger should get not found, got %v", err)
	}
}

func TestListMineAndForListing(t *testing.T) {
	f := newFixture(ride(2))
	f.seed(model.StatusPending, nil)

	items, total, err := f.svc.ListMine(context.Background(), passenger, "", "", 10, 0)
	if err != nil || total != 1 || len(items) != 1 {
		t.Errorf("passenger list: %d %d %v", total, len(items), err)
	}
	items, total, err = f.svc.ListMine(context.Background(), owner, model.RoleOwner, model.StatusAccepted, 10, 0)
	if err != nil || total != 0 || len(items) != 0 {
		t.Errorf("owner accepted list: %d %d %v", total, len(items), err)
	}
	if _, _, err := f.svc.ListMine(context.Background(), owner, "driver", "", 10, 0); !apperrors.HasCode(err, apperrors.CodeInvalidInput) {
		t.Errorf("expected invalid role error, got %v", err)
	}
	if _, _, err := f.svc.ListMine(context.Background(), owner, model.RoleOwner, "expired", 10, 0); !apperrors.HasCode(err, apperrors.CodeInvalidInput) {
		t.Errorf("expected invalid status error, got %v", err)
	}

	ref := model.ListingRef{Kind: model.KindRide, ID: rideID}
	if got, err := f.svc.ListForListing(context.Background(), owner, ref); err != nil || len(got) != 1 {
		t.Errorf("owner listing view: %d %v", len(got), err)
	}
	if _, err := f.svc.ListForListing(context.Background(), passenger, ref); !apperrors.HasCode(err, apperrors.CodeForbidden) {
		t.Errorf("expected forbidden for passenger, got %v", err)
	}
}

// Every row written through the service keeps a known status and exactly
// one listing reference.
func TestRowsStayWellFormed(t *testing.T) {
	trip := ride(0)
	trip.ID, trip.Kind = tripID, model.KindTrip
	trip.Trip = &model.TripDetails{Airport: "JFK", Direction: model.DirectionFromAirport}
	f := newFixture(ride(3), trip)
	ctx := context.Background()

	r, err := f.svc.Request(ctx, passenger, rideRequest())
	if err != nil {
		t.Fatal(err)
	}
	tr, err := f.svc.Request(ctx, passenger, &model.ConfirmationRequest{Kind: model.KindTrip, ListingID: tripID})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Accept(ctx, owner, r.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Cancel(ctx, owner, r.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Reject(ctx, owner, tr.ID); err != nil {
		t.Fatal(err)
	}

	for id, c := range f.confirmations.rows {
		if !c.Status.Valid() {
			t.Errorf("%s has status %q", id, c.Status)
		}
		if _, err := c.Ref(); err != nil {
			t.Errorf("%s: %v", id, err)
		}
	}
}

// Passenger requests a two-seat ride, the owner accepts, and the passenger
// receives both a system message and a notification.
func TestScenario_RequestThenAccept(t *testing.T) {
	f := newFixture(ride(2))
	messages, notes := &memoryMessages{}, &memoryNotifications{}
	f.svc.notifier = dispatcher.NewDispatcher(messages, notes, nil, logger.Discard())
	ctx := context.Background()

	c, err := f.svc.Request(ctx, passenger, rideRequest())
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := f.svc.Accept(ctx, owner, c.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}

	if got := f.confirmations.get(c.ID).Status; got != model.StatusAccepted {
		t.Fatalf("expected accepted, got %s", got)
	}

	var system *model.ChatMessage
	for _, m := range messages.rows {
		if m.MessageType == model.MessageTypeSystem && m.ReceiverID == passengerID {
			system = m
		}
	}
	if system == nil {
		t.Fatal("expected a system message to the passenger")
	}
	if !strings.Contains(system.Content, "ACCEPTED") || !strings.Contains(system.Content, "🎉") {
		t.Errorf("unexpected system message %q", system.Content)
	}

	var forPassenger int
	for _, n := range notes.rows {
		if n.UserID == passengerID && n.ActionData != nil && n.ActionData.Status == model.StatusAccepted {
			forPassenger++
		}
	}
	if forPassenger != 1 {
		t.Errorf("expected one acceptance notification for the passenger, got %d", forPassenger)
	}
}

// Owner closes a ride with a pending request; the request is rejected and
// the ride records the reason. Closing again keeps the first closure.
func TestScenario_CloseWithPending(t *testing.T) {
	f := newFixture(ride(2))
	messages, notes := &memoryMessages{}, &memoryNotifications{}
	d := dispatcher.NewDispatcher(messages, notes, nil, logger.Discard())
	f.svc.notifier = d
	ctx := context.Background()

	c, err := f.svc.Request(ctx, passenger, rideRequest())
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	listings := listingsservice.NewListingService(f.listings, listingsvalidator.NewListingValidator(logger.Discard()), f.confirmations, d, testConfig())

	closed, err := listings.Close(ctx, owner, model.KindRide, rideID, "car trouble")
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if !closed.IsClosed || closed.ClosedReason != "car trouble" || closed.ClosedAt == nil {
		t.Errorf("unexpected closed listing %+v", closed)
	}
	if got := f.confirmations.get(c.ID).Status; got != model.StatusRejected {
		t.Errorf("pending request should be rejected, got %s", got)
	}
	pending, _ := f.confirmations.FindByListing(ctx, closed.Ref(), model.StatusPending)
	if len(pending) != 0 {
		t.Errorf("expected no pending rows, got %d", len(pending))
	}

	var closureMsg bool
	for _, m := range messages.rows {
		if m.MessageType == model.MessageTypeSystem && strings.Contains(m.Content, "CLOSED") && strings.Contains(m.Content, "car trouble") {
			closureMsg = true
		}
	}
	if !closureMsg {
		t.Errorf("expected a closure system message")
	}

	firstClosedAt := *closed.ClosedAt
	again, err := listings.Close(ctx, owner, model.KindRide, rideID, "different")
	if err != nil {
		t.Fatalf("second close: %v", err)
	}
	if !again.IsClosed || !again.ClosedAt.Equal(firstClosedAt) || again.ClosedReason != "car trouble" {
		t.Errorf("second close changed the closure: %+v", again)
	}

	if _, err := f.svc.Request(ctx, stranger, rideRequest()); !apperrors.HasCode(err, apperrors.CodeListingClosed) {
		t.Errorf("requests against a closed ride must be refused, got %v", err)
	}
}
