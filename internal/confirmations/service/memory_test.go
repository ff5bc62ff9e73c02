package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	confirmationserrors "rideshare/internal/confirmations/errors"
	listingserrors "rideshare/internal/listings/errors"
	mongotx "rideshare/pkg/db/mongo"
	"rideshare/pkg/model"
)

// memoryConfirmations is an in-memory ConfirmationRepository with the same
// conditional-update semantics as the Mongo one.
type memoryConfirmations struct {
	mu      sync.Mutex
	seq     int
	rows    map[string]*model.Confirmation
	creates int
}

func newMemoryConfirmations() *memoryConfirmations {
	return &memoryConfirmations{rows: map[string]*model.Confirmation{}}
}

func clone(c *model.Confirmation) *model.Confirmation {
	cp := *c
	if c.ConfirmedAt != nil {
		t := *c.ConfirmedAt
		cp.ConfirmedAt = &t
	}
	return &cp
}

func (m *memoryConfirmations) put(c *model.Confirmation) *model.Confirmation {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		m.seq++
		c.ID = fmt.Sprintf("%024x", m.seq)
	}
	m.rows[c.ID] = clone(c)
	return c
}

func (m *memoryConfirmations) get(id string) *model.Confirmation {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.rows[id]; ok {
		return clone(c)
	}
	return nil
}

func (m *memoryConfirmations) Create(ctx context.Context, c *model.Confirmation) error {
	ref, err := c.Ref()
	if err != nil {
		return err
	}
	if _, err := m.FindByListingAndPassenger(ctx, ref, c.PassengerID); err == nil {
		return confirmationserrors.ErrDuplicate
	}
	m.mu.Lock()
	m.creates++
	m.mu.Unlock()
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	m.put(c)
	return nil
}

func (m *memoryConfirmations) FindByID(ctx context.Context, id string) (*model.Confirmation, error) {
	if c := m.get(id); c != nil {
		return c, nil
	}
	return nil, fmt.Errorf("%w: %s", confirmationserrors.ErrNotFound, id)
}

func (m *memoryConfirmations) FindByListingAndPassenger(ctx context.Context, ref model.ListingRef, passengerID string) (*model.Confirmation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.rows {
		if r, _ := c.Ref(); r == ref && c.PassengerID == passengerID {
			return clone(c), nil
		}
	}
	return nil, confirmationserrors.ErrNotFound
}

func (m *memoryConfirmations) FindByListing(ctx context.Context, ref model.ListingRef, status model.ConfirmationStatus) ([]*model.Confirmation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Confirmation
	for _, c := range m.rows {
		if r, _ := c.Ref(); r == ref && (status == "" || c.Status == status) {
			out = append(out, clone(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryConfirmations) FindByUser(ctx context.Context, role model.ConfirmationRole, userID string, status model.ConfirmationStatus, limit int, offset int64) ([]*model.Confirmation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Confirmation
	for _, c := range m.rows {
		owner := role == model.RoleOwner && c.OwnerID == userID
		passenger := role == model.RolePassenger && c.PassengerID == userID
		if (owner || passenger) && (status == "" || c.Status == status) {
			out = append(out, clone(c))
		}
	}
	return out, nil
}

func (m *memoryConfirmations) CountByUser(ctx context.Context, role model.ConfirmationRole, userID string, status model.ConfirmationStatus) (int64, error) {
	items, _ := m.FindByUser(ctx, role, userID, status, 0, 0)
	return int64(len(items)), nil
}

func (m *memoryConfirmations) UpdateStatus(ctx context.Context, id string, from, to model.ConfirmationStatus, confirmedAt *time.Time, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[id]
	if !ok || c.Status != from {
		return false, nil
	}
	c.Status = to
	c.ConfirmedAt = confirmedAt
	c.UpdatedAt = now
	return true, nil
}

func (m *memoryConfirmations) Resubmit(ctx context.Context, id string, seats int, message string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[id]
	if !ok || c.Status != model.StatusRejected {
		return false, nil
	}
	c.Status, c.SeatsRequested, c.Message = model.StatusPending, seats, message
	c.ConfirmedAt, c.UpdatedAt = nil, now
	return true, nil
}

func (m *memoryConfirmations) RejectPendingByListing(ctx context.Context, ref model.ListingRef, now time.Time) ([]*model.Confirmation, error) {
	pending, _ := m.FindByListing(ctx, ref, model.StatusPending)
	var rejected []*model.Confirmation
	for _, p := range pending {
		at := now
		if ok, _ := m.UpdateStatus(ctx, p.ID, model.StatusPending, model.StatusRejected, &at, now); ok {
			rejected = append(rejected, p)
		}
	}
	return rejected, nil
}

func (m *memoryConfirmations) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return fn(ctx)
}

// memoryListings implements the listings repository for scenario tests.
type memoryListings struct {
	mu   sync.Mutex
	rows map[model.ListingRef]*model.Listing
}

func newMemoryListings(listings ...*model.Listing) *memoryListings {
	m := &memoryListings{rows: map[model.ListingRef]*model.Listing{}}
	for _, l := range listings {
		cp := *l
		m.rows[l.Ref()] = &cp
	}
	return m
}

func (m *memoryListings) Create(ctx context.Context, l *model.Listing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *l
	m.rows[l.Ref()] = &cp
	return nil
}

func (m *memoryListings) FindByID(ctx context.Context, kind model.ListingKind, id string) (*model.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.rows[model.ListingRef{Kind: kind, ID: id}]
	if !ok {
		return nil, fmt.Errorf("%w: %s %s", listingserrors.ErrNotFound, kind, id)
	}
	cp := *l
	return &cp, nil
}

func (m *memoryListings) Search(ctx context.Context, f model.ListingFilter, limit int, offset int64) ([]*model.Listing, error) {
	return nil, nil
}

func (m *memoryListings) Count(ctx context.Context, f model.ListingFilter) (int64, error) {
	return 0, nil
}

func (m *memoryListings) FindByOwner(ctx context.Context, kind model.ListingKind, ownerID string, limit int, offset int64) ([]*model.Listing, error) {
	return nil, nil
}

func (m *memoryListings) CountByOwner(ctx context.Context, kind model.ListingKind, ownerID string) (int64, error) {
	return 0, nil
}

func (m *memoryListings) MarkClosed(ctx context.Context, kind model.ListingKind, id, reason string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.rows[model.ListingRef{Kind: kind, ID: id}]
	if !ok || l.IsClosed {
		return false, nil
	}
	l.IsClosed, l.ClosedAt, l.ClosedReason, l.UpdatedAt = true, &at, reason, at
	return true, nil
}

func (m *memoryListings) ClearClosed(ctx context.Context, kind model.ListingKind, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.rows[model.ListingRef{Kind: kind, ID: id}]
	if !ok || !l.IsClosed {
		return false, nil
	}
	l.IsClosed, l.ClosedAt, l.ClosedReason, l.UpdatedAt = false, nil, "", at
	return true, nil
}

func (m *memoryListings) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return fn(ctx)
}

type memoryMessages struct {
	mu   sync.Mutex
	rows []*model.ChatMessage
}

func (m *memoryMessages) Create(ctx context.Context, msg *model.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, msg)
	return nil
}

type memoryNotifications struct {
	mu   sync.Mutex
	rows []*model.UserNotification
}

func (m *memoryNotifications) Create(ctx context.Context, n *model.UserNotification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, n)
	return nil
}
