package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	confirmationserrors "rideshare/internal/confirmations/errors"
	"rideshare/internal/confirmations/lifecycle"
	"rideshare/internal/confirmations/repository"
	"rideshare/internal/confirmations/validator"
	listingserrors "rideshare/internal/listings/errors"
	"rideshare/internal/notifications/dispatcher"
	"rideshare/pkg/config"
	apperrors "rideshare/pkg/errors"
	"rideshare/pkg/model"
	"rideshare/pkg/sanitizer"
	"rideshare/pkg/session"
)

type ConfirmationService interface {
	Request(ctx context.Context, sess session.Session, req *model.ConfirmationRequest) (*model.Confirmation, error)
	ReRequest(ctx context.Context, sess session.Session, id string) (*model.Confirmation, error)
	Accept(ctx context.Context, sess session.Session, id string) (*model.Confirmation, error)
	Reject(ctx context.Context, sess session.Session, id string) (*model.Confirmation, error)
	Cancel(ctx context.Context, sess session.Session, id string) (*model.Confirmation, error)
	Eligibility(ctx context.Context, sess session.Session, id string) (*Eligibility, error)

	GetByID(ctx context.Context, sess session.Session, id string) (*model.Confirmation, error)
	ListMine(ctx context.Context, sess session.Session, role model.ConfirmationRole, status model.ConfirmationStatus, limit int, offset int64) ([]*model.Confirmation, int64, error)
	ListForListing(ctx context.Context, sess session.Session, ref model.ListingRef) ([]*model.Confirmation, error)
}

// ListingReader is the part of the listings store the lifecycle needs.
type ListingReader interface {
	FindByID(ctx context.Context, kind model.ListingKind, id string) (*model.Listing, error)
}

type Notifier interface {
	StatusChanged(ctx context.Context, change dispatcher.StatusChange)
}

// Eligibility is the passenger's view of whether a rejected request can be
// sent again.
type Eligibility struct {
	Status           model.ConfirmationStatus `json:"status"`
	CanRequest       bool                     `json:"can_request"`
	RemainingMinutes int                      `json:"remaining_minutes"`
	RetryAt          *time.Time               `json:"retry_at,omitempty"`
	Reason           string                   `json:"reason,omitempty"`
}

const (
	ReasonNotRejected    = "not_rejected"
	ReasonCooldown       = "cooldown"
	ReasonListingClosed  = "listing_closed"
	ReasonListingExpired = "listing_expired"
)

type confirmationService struct {
	repo      repository.ConfirmationRepository
	listings  ListingReader
	validator *validator.ConfirmationValidator
	notifier  Notifier
	cfg       *config.Config
	now       func() time.Time
}

func NewConfirmationService(
	repo repository.ConfirmationRepository,
	listings ListingReader,
	validator *validator.ConfirmationValidator,
	notifier Notifier,
	cfg *config.Config,
) ConfirmationService {
	return &confirmationService{
		repo:      repo,
		listings:  listings,
		validator: validator,
		notifier:  notifier,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
}

func (s *confirmationService) Request(ctx context.Context, sess session.Session, req *model.ConfirmationRequest) (*model.Confirmation, error) {
	if kind, ok := model.ParseKind(string(req.Kind)); ok {
		req.Kind = kind
	}
	if req.SeatsRequested == 0 {
		req.SeatsRequested = 1
	}
	req.Message = sanitizer.SanitizeMultiline(req.Message)

	if err := s.validator.ValidateRequest(req); err != nil {
		s.cfg.Log.Warn("Confirmation request validation failed",
			"passenger_id", sess.UserID,
			"listing_id", req.ListingID,
			"error", err,
		)
		return nil, apperrors.Validation("Confirmation request validation failed", map[string]any{
			"error": err.Error(),
		})
	}

	ref := model.ListingRef{Kind: req.Kind, ID: req.ListingID}
	listing, err := s.loadListing(ctx, ref)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.checkRequestable(sess, listing, now); err != nil {
		s.cfg.Log.Warn("Confirmation request refused",
			"passenger_id", sess.UserID,
			"kind", ref.Kind,
			"listing_id", ref.ID,
			"error", err,
		)
		return nil, err
	}
	if listing.SeatsAvailable > 0 && req.SeatsRequested > listing.SeatsAvailable {
		return nil, apperrors.Validation("Not enough seats", map[string]any{
			"seats_requested": req.SeatsRequested,
			"seats_available": listing.SeatsAvailable,
		})
	}

	existing, err := s.repo.FindByListingAndPassenger(ctx, ref, sess.UserID)
	switch {
	case err == nil:
		if existing.Status == model.StatusRejected {
			existing.SeatsRequested = req.SeatsRequested
			existing.Message = req.Message
			return s.reRequest(ctx, existing, listing)
		}
		return nil, apperrors.Conflict(fmt.Sprintf("You already have a %s request for this %s", existing.Status, ref.Kind))
	case !errors.Is(err, confirmationserrors.ErrNotFound):
		s.cfg.Log.Error("Failed to check existing confirmation", "listing_id", ref.ID, "passenger_id", sess.UserID, "error", err)
		return nil, apperrors.Internal("Failed to check existing requests", err)
	}

	status, err := lifecycle.Transition("", lifecycle.ActionRequest)
	if err != nil {
		return nil, apperrors.Internal("Confirmation lifecycle misconfigured", err)
	}
	c := &model.Confirmation{
		OwnerID:        listing.OwnerID,
		PassengerID:    sess.UserID,
		SeatsRequested: req.SeatsRequested,
		Message:        req.Message,
		Status:         status,
	}
	c.SetRef(ref)

	if err := s.validator.Validate(c); err != nil {
		return nil, apperrors.Validation("Confirmation validation failed", map[string]any{
			"error": err.Error(),
		})
	}

	if err := s.repo.Create(ctx, c); err != nil {
		if errors.Is(err, confirmationserrors.ErrDuplicate) {
			return nil, apperrors.Conflict(fmt.Sprintf("You already have a request for this %s", ref.Kind))
		}
		s.cfg.Log.Error("Failed to create confirmation", "listing_id", ref.ID, "passenger_id", sess.UserID, "error", err)
		return nil, apperrors.Internal("Failed to create request", err)
	}
	if err := s.withdrawIfClosed(ctx, c, ref); err != nil {
		return nil, err
	}

	s.cfg.Log.Info("Confirmation requested",
		"id", c.ID,
		"kind", ref.Kind,
		"listing_id", ref.ID,
		"passenger_id", c.PassengerID,
		"seats", c.SeatsRequested,
	)
	s.notifier.StatusChanged(ctx, dispatcher.StatusChange{
		Kind:         dispatcher.ChangeRequested,
		Confirmation: c,
		Listing:      listing,
	})
	return c, nil
}

func (s *confirmationService) ReRequest(ctx context.Context, sess session.Session, id string) (*model.Confirmation, error) {
	c, err := s.loadConfirmation(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sess.Is(c.PassengerID) {
		return nil, apperrors.Forbidden("Only the passenger can request again")
	}

	ref, err := c.Ref()
	if err != nil {
		return nil, apperrors.Internal("Confirmation has no listing", err)
	}
	listing, err := s.loadListing(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.reRequest(ctx, c, listing)
}

// reRequest moves a rejected row back to pending once the cooldown since
// the rejection has passed. The same row is reused.
func (s *confirmationService) reRequest(ctx context.Context, c *model.Confirmation, listing *model.Listing) (*model.Confirmation, error) {
	to, err := lifecycle.Transition(c.Status, lifecycle.ActionReRequest)
	if err != nil {
		return nil, apperrors.InvalidTransition(string(c.Status), string(lifecycle.ActionReRequest))
	}

	now := s.now()
	cooldown := lifecycle.CheckCooldown(c.RejectedAt(), now, s.cfg.ConfirmationCooldown)
	if !cooldown.Allowed {
		s.cfg.Log.Warn("Re-request refused by cooldown",
			"id", c.ID,
			"passenger_id", c.PassengerID,
			"remaining_minutes", cooldown.RemainingMinutes,
		)
		return nil, apperrors.CooldownActive(cooldown.RemainingMinutes, cooldown.RetryAt)
	}
	if listing.IsClosed {
		return nil, apperrors.ListingClosed(string(listing.Kind), listing.ID)
	}
	if listing.IsExpired(now) {
		return nil, apperrors.ListingExpired(string(listing.Kind), listing.ID)
	}
	if listing.SeatsAvailable > 0 && c.SeatsRequested > listing.SeatsAvailable {
		return nil, apperrors.Validation("Not enough seats", map[string]any{
			"seats_requested": c.SeatsRequested,
			"seats_available": listing.SeatsAvailable,
		})
	}

	matched, err := s.repo.Resubmit(ctx, c.ID, c.SeatsRequested, c.Message, now)
	if err != nil {
		s.cfg.Log.Error("Failed to re-request confirmation", "id", c.ID, "error", err)
		return nil, apperrors.Internal("Failed to update request", err)
	}
	if !matched {
		return nil, apperrors.Conflict("This request was changed by someone else, reload and try again")
	}

	c.Status = to
	c.ConfirmedAt = nil
	c.UpdatedAt = now

	ref, _ := c.Ref()
	if err := s.withdrawIfClosed(ctx, c, ref); err != nil {
		return nil, err
	}

	s.cfg.Log.Info("Confirmation re-requested", "id", c.ID, "passenger_id", c.PassengerID)
	s.notifier.StatusChanged(ctx, dispatcher.StatusChange{
		Kind:         dispatcher.ChangeReRequested,
		Confirmation: c,
		Listing:      listing,
	})
	return c, nil
}

func (s *confirmationService) Accept(ctx context.Context, sess session.Session, id string) (*model.Confirmation, error) {
	return s.decide(ctx, sess, id, lifecycle.ActionAccept, dispatcher.ChangeAccepted)
}

func (s *confirmationService) Reject(ctx context.Context, sess session.Session, id string) (*model.Confirmation, error) {
	return s.decide(ctx, sess, id, lifecycle.ActionReject, dispatcher.ChangeRejected)
}

func (s *confirmationService) Cancel(ctx context.Context, sess session.Session, id string) (*model.Confirmation, error) {
	return s.decide(ctx, sess, id, lifecycle.ActionCancel, dispatcher.ChangeCancelled)
}

// decide applies an owner action. Ownership is checked against the listing
// as stored now, and the write only lands if the row is still in the
// status it was read in.
func (s *confirmationService) decide(ctx context.Context, sess session.Session, id string, action lifecycle.Action, change dispatcher.ChangeKind) (*model.Confirmation, error) {
	c, err := s.loadConfirmation(ctx, id)
	if err != nil {
		return nil, err
	}
	ref, err := c.Ref()
	if err != nil {
		return nil, apperrors.Internal("Confirmation has no listing", err)
	}
	listing, err := s.loadListing(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !sess.Is(listing.OwnerID) {
		s.cfg.Log.Warn("Confirmation decision by non-owner refused",
			"id", id,
			"action", action,
			"user_id", sess.UserID,
		)
		return nil, apperrors.Forbidden(fmt.Sprintf("Only the owner of this %s can %s requests", ref.Kind, action))
	}

	to, err := lifecycle.Transition(c.Status, action)
	if err != nil {
		return nil, apperrors.InvalidTransition(string(c.Status), string(action))
	}
	now := s.now()
	if action == lifecycle.ActionAccept {
		if err := s.checkAcceptable(ctx, c, listing, now); err != nil {
			s.cfg.Log.Warn("Confirmation accept refused", "id", id, "error", err)
			return nil, err
		}
	}

	var confirmedAt *time.Time
	if lifecycle.Stamps(action) {
		confirmedAt = &now
	}

	matched, err := s.repo.UpdateStatus(ctx, c.ID, c.Status, to, confirmedAt, now)
	if err != nil {
		s.cfg.Log.Error("Failed to update confirmation", "id", id, "action", action, "error", err)
		return nil, apperrors.Internal("Failed to update request", err)
	}
	if !matched {
		return nil, apperrors.Conflict("This request was changed by someone else, reload and try again")
	}

	from := c.Status
	c.Status = to
	c.ConfirmedAt = confirmedAt
	c.UpdatedAt = now

	s.cfg.Log.Info("Confirmation updated",
		"id", c.ID,
		"action", action,
		"from", from,
		"to", to,
		"owner_id", sess.UserID,
	)
	s.notifier.StatusChanged(ctx, dispatcher.StatusChange{
		Kind:         change,
		Confirmation: c,
		Listing:      listing,
	})
	return c, nil
}

func (s *confirmationService) Eligibility(ctx context.Context, sess session.Session, id string) (*Eligibility, error) {
	c, err := s.loadConfirmation(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sess.Is(c.PassengerID) {
		return nil, apperrors.Forbidden("Only the passenger can check this request")
	}

	out := &Eligibility{Status: c.Status}
	if c.Status != model.StatusRejected {
		out.Reason = ReasonNotRejected
		return out, nil
	}

	cooldown := lifecycle.CheckCooldown(c.RejectedAt(), s.now(), s.cfg.ConfirmationCooldown)
	retryAt := cooldown.RetryAt
	out.RetryAt = &retryAt
	if !cooldown.Allowed {
		out.RemainingMinutes = cooldown.RemainingMinutes
		out.Reason = ReasonCooldown
		return out, nil
	}

	ref, err := c.Ref()
	if err != nil {
		return nil, apperrors.Internal("Confirmation has no listing", err)
	}
	listing, err := s.loadListing(ctx, ref)
	if err != nil {
		return nil, err
	}
	switch {
	case listing.IsClosed:
		out.Reason = ReasonListingClosed
	case listing.IsExpired(s.now()):
		out.Reason = ReasonListingExpired
	default:
		out.CanRequest = true
	}
	return out, nil
}

// GetByID is visible to the two parties only; anyone else sees not found.
func (s *confirmationService) GetByID(ctx context.Context, sess session.Session, id string) (*model.Confirmation, error) {
	c, err := s.loadConfirmation(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sess.Is(c.PassengerID) && !sess.Is(c.OwnerID) {
		return nil, apperrors.NotFoundWithID("Confirmation", id)
	}
	return c, nil
}

func (s *confirmationService) ListMine(ctx context.Context, sess session.Session, role model.ConfirmationRole, status model.ConfirmationStatus, limit int, offset int64) ([]*model.Confirmation, int64, error) {
	if role == "" {
		role = model.RolePassenger
	}
	if role != model.RolePassenger && role != model.RoleOwner {
		return nil, 0, apperrors.InvalidInput("role must be passenger or owner")
	}
	if status != "" && !status.Valid() {
		return nil, 0, apperrors.InvalidInput("status must be one of [pending accepted rejected]")
	}
	limit = config.NormalizePaginationLimit(limit)
	offset = config.NormalizeOffset(offset)

	var count int64
	var items []*model.Confirmation
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		var err error
		count, err = s.repo.CountByUser(ctx, role, sess.UserID, status)
		if err != nil {
			s.cfg.Log.Error("Failed to count confirmations", "user_id", sess.UserID, "role", role, "error", err)
			errCount = apperrors.Internal("Failed to count requests", err)
		}
	}()
	go func() {
		defer wg.Done()
		var err error
		items, err = s.repo.FindByUser(ctx, role, sess.UserID, status, limit, offset)
		if err != nil {
			s.cfg.Log.Error("Failed to list confirmations", "user_id", sess.UserID, "role", role, "error", err)
			errFind = apperrors.Internal("Failed to retrieve requests", err)
		}
	}()
	wg.Wait()

	if errCount != nil {
		return nil, 0, errCount
	}
	if errFind != nil {
		return nil, 0, errFind
	}
	if items == nil {
		items = []*model.Confirmation{}
	}
	return items, count, nil
}

func (s *confirmationService) ListForListing(ctx context.Context, sess session.Session, ref model.ListingRef) ([]*model.Confirmation, error) {
	listing, err := s.loadListing(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !sess.Is(listing.OwnerID) {
		return nil, apperrors.Forbidden(fmt.Sprintf("Only the owner can list requests for this %s", ref.Kind))
	}

	items, err := s.repo.FindByListing(ctx, ref, "")
	if err != nil {
		s.cfg.Log.Error("Failed to list confirmations for listing", "kind", ref.Kind, "listing_id", ref.ID, "error", err)
		return nil, apperrors.Internal("Failed to retrieve requests", err)
	}
	if items == nil {
		items = []*model.Confirmation{}
	}
	return items, nil
}

func (s *confirmationService) checkRequestable(sess session.Session, listing *model.Listing, now time.Time) error {
	switch {
	case sess.Is(listing.OwnerID):
		return apperrors.Forbidden(fmt.Sprintf("You cannot request a seat on your own %s", listing.Kind))
	case listing.IsClosed:
		return apperrors.ListingClosed(string(listing.Kind), listing.ID)
	case listing.IsExpired(now):
		return apperrors.ListingExpired(string(listing.Kind), listing.ID)
	}
	return nil
}

// checkAcceptable refuses an accept on a closed or departed listing, or one
// whose accepted seats would exceed the seats offered.
func (s *confirmationService) checkAcceptable(ctx context.Context, c *model.Confirmation, listing *model.Listing, now time.Time) error {
	if listing.IsClosed {
		return apperrors.ListingClosed(string(listing.Kind), listing.ID)
	}
	if listing.IsExpired(now) {
		return apperrors.ListingExpired(string(listing.Kind), listing.ID)
	}
	if listing.SeatsAvailable <= 0 {
		return nil
	}

	accepted, err := s.repo.FindByListing(ctx, listing.Ref(), model.StatusAccepted)
	if err != nil {
		s.cfg.Log.Error("Failed to count accepted seats", "kind", listing.Kind, "listing_id", listing.ID, "error", err)
		return apperrors.Internal("Failed to check seats", err)
	}
	taken := 0
	for _, a := range accepted {
		taken += a.SeatsRequested
	}
	if taken+c.SeatsRequested > listing.SeatsAvailable {
		return apperrors.Conflict("Not enough seats left to accept this request").WithDetails(map[string]any{
			"seats_requested": c.SeatsRequested,
			"seats_taken":     taken,
			"seats_available": listing.SeatsAvailable,
		})
	}
	return nil
}

// withdrawIfClosed re-reads the listing after a row became pending. A close
// that committed in between may have swept before the row existed, so the
// row rejects itself instead of staying pending on a closed listing.
func (s *confirmationService) withdrawIfClosed(ctx context.Context, c *model.Confirmation, ref model.ListingRef) error {
	listing, err := s.loadListing(ctx, ref)
	if err != nil {
		s.cfg.Log.Warn("Could not re-check listing after request", "id", c.ID, "listing_id", ref.ID, "error", err)
		return nil
	}
	now := s.now()

	var refusal error
	switch {
	case listing.IsClosed:
		refusal = apperrors.ListingClosed(string(ref.Kind), ref.ID)
	case listing.IsExpired(now):
		refusal = apperrors.ListingExpired(string(ref.Kind), ref.ID)
	default:
		return nil
	}

	if _, err := s.repo.UpdateStatus(ctx, c.ID, model.StatusPending, model.StatusRejected, &now, now); err != nil {
		s.cfg.Log.Error("Failed to withdraw request on closed listing", "id", c.ID, "error", err)
		return apperrors.Internal("Failed to update request", err)
	}
	s.cfg.Log.Warn("Request withdrawn, listing closed meanwhile", "id", c.ID, "kind", ref.Kind, "listing_id", ref.ID)
	return refusal
}

func (s *confirmationService) loadConfirmation(ctx context.Context, id string) (*model.Confirmation, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Confirmation ID cannot be empty")
	}
	c, err := s.repo.FindByID(ctx, id)
	if err != nil {
		switch {
		case errors.Is(err, confirmationserrors.ErrNotFound):
			return nil, apperrors.NotFoundWithID("Confirmation", id)
		case errors.Is(err, confirmationserrors.ErrInvalidID):
			return nil, apperrors.InvalidInput("Invalid confirmation ID format")
		}
		s.cfg.Log.Error("Failed to load confirmation", "id", id, "error", err)
		return nil, apperrors.Internal("Failed to retrieve request", err)
	}
	return c, nil
}

func (s *confirmationService) loadListing(ctx context.Context, ref model.ListingRef) (*model.Listing, error) {
	listing, err := s.listings.FindByID(ctx, ref.Kind, ref.ID)
	if err != nil {
		switch {
		case errors.Is(err, listingserrors.ErrNotFound):
			return nil, apperrors.NotFoundWithID("Listing", ref.ID)
		case errors.Is(err, listingserrors.ErrInvalidID), errors.Is(err, listingserrors.ErrUnknownKind):
			return nil, apperrors.InvalidInput(fmt.Sprintf("Invalid %s reference", ref.Kind))
		}
		s.cfg.Log.Error("Failed to load listing", "kind", ref.Kind, "listing_id", ref.ID, "error", err)
		return nil, apperrors.Internal("Failed to retrieve listing", err)
	}
	return listing, nil
}
