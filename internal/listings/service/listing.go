package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	listingserrors "rideshare/internal/listings/errors"
	"rideshare/internal/listings/repository"
	"rideshare/internal/listings/validator"
	"rideshare/internal/notifications/dispatcher"
	"rideshare/pkg/config"
	apperrors "rideshare/pkg/errors"
	"rideshare/pkg/model"
	"rideshare/pkg/retry"
	"rideshare/pkg/sanitizer"
	"rideshare/pkg/session"
)

type ListingService interface {
	Create(ctx context.Context, sess session.Session, l *model.Listing) error
	GetByID(ctx context.Context, kind model.ListingKind, id string) (*model.Listing, error)
	Search(ctx context.Context, filter model.ListingFilter, limit int, offset int64) ([]*model.Listing, int64, error)
	ListByOwner(ctx context.Context, sess session.Session, kind model.ListingKind, limit int, offset int64) ([]*model.Listing, int64, error)
	Close(ctx context.Context, sess session.Session, kind model.ListingKind, id, reason string) (*model.Listing, error)
	Reopen(ctx context.Context, sess session.Session, kind model.ListingKind, id string) (*model.Listing, error)
}

// PendingSweeper rejects the pending confirmations of a listing. It must
// honour a transaction context passed to it.
type PendingSweeper interface {
	RejectPendingByListing(ctx context.Context, ref model.ListingRef, now time.Time) ([]*model.Confirmation, error)
}

type Notifier interface {
	StatusChanged(ctx context.Context, change dispatcher.StatusChange)
	ListingChanged(ctx context.Context, listing *model.Listing, eventType model.EventType)
}

type listingService struct {
	repo      repository.ListingRepository
	validator *validator.ListingValidator
	sweeper   PendingSweeper
	notifier  Notifier
	cfg       *config.Config
	now       func() time.Time
}

func NewListingService(
	repo repository.ListingRepository,
	validator *validator.ListingValidator,
	sweeper PendingSweeper,
	notifier Notifier,
	cfg *config.Config,
) ListingService {
	return &listingService{
		repo:      repo,
		validator: validator,
		sweeper:   sweeper,
		notifier:  notifier,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *listingService) Create(ctx context.Context, sess session.Session, l *model.Listing) error {
	l.ID = ""
	l.OwnerID = sess.UserID
	l.IsClosed, l.ClosedAt, l.ClosedReason = false, nil, ""
	s.sanitize(l)

	if err := s.validator.Validate(l, s.now()); err != nil {
		s.cfg.Log.Warn("Listing validation failed",
			"kind", l.Kind,
			"owner_id", l.OwnerID,
			"error", err,
		)
		return apperrors.Validation(fmt.Sprintf("%s validation failed", l.Kind), map[string]any{
			"error": err.Error(),
		})
	}

	if err := s.repo.Create(ctx, l); err != nil {
		s.cfg.Log.Error("Failed to create listing",
			"kind", l.Kind,
			"owner_id", l.OwnerID,
			"error", err,
		)
		return apperrors.Internal(fmt.Sprintf("Failed to create %s", l.Kind), err)
	}

	s.cfg.Log.Info("Listing created successfully",
		"id", l.ID,
		"kind", l.Kind,
		"owner_id", l.OwnerID,
		"scheduled_at", l.ScheduledAt,
	)
	return nil
}

func (s *listingService) GetByID(ctx context.Context, kind model.ListingKind, id string) (*model.Listing, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Listing ID cannot be empty")
	}

	l, err := s.repo.FindByID(ctx, kind, id)
	if err != nil {
		return nil, s.translate(err, kind, id, "Failed to retrieve listing")
	}
	return l, nil
}

// Search hides departed listings unless the caller asks for an explicit
// window, and hides closed listings unless IncludeClosed is set.
func (s *listingService) Search(ctx context.Context, filter model.ListingFilter, limit int, offset int64) ([]*model.Listing, int64, error) {
	if filter.Kind != model.KindRide && filter.Kind != model.KindTrip {
		return nil, 0, apperrors.InvalidInput("kind must be ride or trip")
	}
	filter.Origin = sanitizer.SanitizePlace(filter.Origin)
	filter.Destination = sanitizer.SanitizePlace(filter.Destination)
	filter.Airport = sanitizer.SanitizeAirportCode(filter.Airport)
	if filter.From == nil {
		now := s.now()
		filter.From = &now
	}
	if filter.To != nil && filter.To.Before(*filter.From) {
		return nil, 0, apperrors.InvalidInput("to must not be before from")
	}

	limit = config.NormalizePaginationLimit(limit)
	offset = config.NormalizeOffset(offset)

	return s.page(ctx,
		func(ctx context.Context) (int64, error) { return s.repo.Count(ctx, filter) },
		func(ctx context.Context) ([]*model.Listing, error) {
			return s.repo.Search(ctx, filter, limit, offset)
		},
	)
}

func (s *listingService) ListByOwner(ctx context.Context, sess session.Session, kind model.ListingKind, limit int, offset int64) ([]*model.Listing, int64, error) {
	limit = config.NormalizePaginationLimit(limit)
	offset = config.NormalizeOffset(offset)

	return s.page(ctx,
		func(ctx context.Context) (int64, error) {
			return s.repo.CountByOwner(ctx, kind, sess.UserID)
		},
		func(ctx context.Context) ([]*model.Listing, error) {
			return s.repo.FindByOwner(ctx, kind, sess.UserID, limit, offset)
		},
	)
}

func (s *listingService) page(
	ctx context.Context,
	countFn func(context.Context) (int64, error),
	findFn func(context.Context) ([]*model.Listing, error),
) ([]*model.Listing, int64, error) {
	var count int64
	var listings []*model.Listing
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		var err error
		count, err = countFn(ctx)
		if err != nil {
			s.cfg.Log.Error("Failed to count listings", "error", err)
			errCount = apperrors.Internal("Failed to count listings", err)
		}
	}()
	go func() {
		defer wg.Done()
		var err error
		listings, err = findFn(ctx)
		if err != nil {
			s.cfg.Log.Error("Failed to query listings", "error", err)
			errFind = apperrors.Internal("Failed to retrieve listings", err)
		}
	}()
	wg.Wait()

	if errCount != nil {
		return nil, 0, errCount
	}
	if errFind != nil {
		return nil, 0, errFind
	}
	if listings == nil {
		listings = []*model.Listing{}
	}
	return listings, count, nil
}

// Close marks the listing closed and rejects its pending confirmations in
// one transaction. Closing an already closed listing keeps its original
// closed_at and reason and only re-runs the sweep.
func (s *listingService) Close(ctx context.Context, sess session.Session, kind model.ListingKind, id, reason string) (*model.Listing, error) {
	reason = sanitizer.SanitizeReason(reason)
	if len([]rune(reason)) > 200 {
		return nil, apperrors.Validation("Close reason is too long", map[string]any{"max": 200})
	}

	var listing *model.Listing
	var swept []*model.Confirmation
	var newlyClosed bool
	var closedAt time.Time

	err := retry.Do(ctx, s.retryConfig(), s.cfg.Log, "close listing", func(ctx context.Context) error {
		current, err := s.ownedListing(ctx, sess, kind, id)
		if err != nil {
			return err
		}

		now := s.now()
		var matched bool
		var rejected []*model.Confirmation
		err = s.repo.ExecuteTransaction(ctx, func(txCtx context.Context) error {
			if !current.IsClosed {
				ok, err := s.repo.MarkClosed(txCtx, kind, id, reason, now)
				if err != nil {
					return err
				}
				matched = ok
			}
			pending, err := s.sweeper.RejectPendingByListing(txCtx, current.Ref(), now)
			if err != nil {
				return err
			}
			rejected = pending
			return nil
		})
		if err != nil {
			return err
		}

		// Rows inserted while the transaction ran are outside its snapshot.
		if late, err := s.sweeper.RejectPendingByListing(ctx, current.Ref(), now); err != nil {
			s.cfg.Log.Warn("Second pending sweep failed", "kind", kind, "id", id, "error", err)
		} else {
			rejected = append(rejected, late...)
		}

		if matched {
			current.IsClosed = true
			current.ClosedAt = &now
			current.ClosedReason = reason
			current.UpdatedAt = now
		} else if !current.IsClosed {
			// Closed concurrently by another request; report what is stored.
			if current, err = s.repo.FindByID(ctx, kind, id); err != nil {
				return err
			}
		}

		listing, swept, newlyClosed, closedAt = current, rejected, matched, now
		return nil
	})
	if err != nil {
		if apperrors.IsAppError(err) {
			s.cfg.Log.Warn("Listing close refused", "kind", kind, "id", id, "user_id", sess.UserID, "error", err)
			return nil, err
		}
		s.cfg.Log.Error("Failed to close listing", "kind", kind, "id", id, "error", err)
		return nil, apperrors.Internal(fmt.Sprintf("Failed to close %s", kind), err)
	}

	s.cfg.Log.Info("Listing closed",
		"kind", kind,
		"id", id,
		"newly_closed", newlyClosed,
		"rejected_pending", len(swept),
	)

	closeReason := listing.ClosedReason
	for _, c := range swept {
		c.Status = model.StatusRejected
		c.ConfirmedAt = &closedAt
		c.UpdatedAt = closedAt
		s.notifier.StatusChanged(ctx, dispatcher.StatusChange{
			Kind:         dispatcher.ChangeClosed,
			Confirmation: c,
			Listing:      listing,
			Reason:       closeReason,
		})
	}
	if newlyClosed {
		s.notifier.ListingChanged(ctx, listing, model.EventListingClosed)
	}
	return listing, nil
}

func (s *listingService) Reopen(ctx context.Context, sess session.Session, kind model.ListingKind, id string) (*model.Listing, error) {
	var listing *model.Listing

	err := retry.Do(ctx, s.retryConfig(), s.cfg.Log, "reopen listing", func(ctx context.Context) error {
		current, err := s.ownedListing(ctx, sess, kind, id)
		if err != nil {
			return err
		}
		if !current.IsClosed {
			return apperrors.ListingNotClosed(string(kind), id)
		}
		now := s.now()
		if current.IsExpired(now) {
			return apperrors.ListingExpired(string(kind), id)
		}

		matched, err := s.repo.ClearClosed(ctx, kind, id, now)
		if err != nil {
			return err
		}
		if !matched {
			return apperrors.ListingNotClosed(string(kind), id)
		}

		current.IsClosed = false
		current.ClosedAt = nil
		current.ClosedReason = ""
		current.UpdatedAt = now
		listing = current
		return nil
	})
	if err != nil {
		if apperrors.IsAppError(err) {
			s.cfg.Log.Warn("Listing reopen refused", "kind", kind, "id", id, "user_id", sess.UserID, "error", err)
			return nil, err
		}
		s.cfg.Log.Error("Failed to reopen listing", "kind", kind, "id", id, "error", err)
		return nil, apperrors.Internal(fmt.Sprintf("Failed to reopen %s", kind), err)
	}

	s.cfg.Log.Info("Listing reopened", "kind", kind, "id", id)
	s.notifier.ListingChanged(ctx, listing, model.EventListingReopened)
	return listing, nil
}

// ownedListing re-reads the listing from storage and checks the caller owns
// it. Lookup failures that are not business outcomes stay retryable.
func (s *listingService) ownedListing(ctx context.Context, sess session.Session, kind model.ListingKind, id string) (*model.Listing, error) {
	current, err := s.repo.FindByID(ctx, kind, id)
	if err != nil {
		if errors.Is(err, listingserrors.ErrNotFound) || errors.Is(err, listingserrors.ErrInvalidID) || errors.Is(err, listingserrors.ErrUnknownKind) {
			return nil, s.translate(err, kind, id, "")
		}
		return nil, err
	}
	if !sess.Is(current.OwnerID) {
		return nil, apperrors.Forbidden(fmt.Sprintf("Only the owner can change this %s", kind))
	}
	return current, nil
}

func (s *listingService) translate(err error, kind model.ListingKind, id, internalMsg string) error {
	switch {
	case errors.Is(err, listingserrors.ErrNotFound):
		return apperrors.NotFoundWithID(capitalize(string(kind)), id)
	case errors.Is(err, listingserrors.ErrInvalidID):
		return apperrors.InvalidInput(fmt.Sprintf("Invalid %s ID format", kind))
	case errors.Is(err, listingserrors.ErrUnknownKind):
		return apperrors.InvalidInput("kind must be ride or trip")
	}
	s.cfg.Log.Error("Listing storage failure", "kind", kind, "id", id, "error", err)
	return apperrors.Internal(internalMsg, err)
}

func (s *listingService) retryConfig() retry.Config {
	return retry.Config{
		MaxTries:        s.cfg.RetryMaxTries,
		InitialInterval: s.cfg.RetryInitialInterval,
		MaxInterval:     s.cfg.RetryMaxInterval,
	}
}

func (s *listingService) sanitize(l *model.Listing) {
	l.Origin = sanitizer.SanitizePlace(l.Origin)
	l.Destination = sanitizer.SanitizePlace(l.Destination)
	l.Notes = sanitizer.SanitizeMultiline(l.Notes)
	l.Currency = sanitizer.SanitizeCurrency(l.Currency)
	l.ScheduledAt = l.ScheduledAt.UTC().Truncate(time.Millisecond)
	if l.Trip != nil {
		l.Trip.Airport = sanitizer.SanitizeAirportCode(l.Trip.Airport)
		l.Trip.FlightNumber = sanitizer.SanitizeFlightNumber(l.Trip.FlightNumber)
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
