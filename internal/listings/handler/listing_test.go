package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	apperrors "rideshare/pkg/errors"
	"rideshare/pkg/logger"
	"rideshare/pkg/model"
	"rideshare/pkg/session"

	"github.com/julienschmidt/httprouter"
)

type mockListingService struct {
	createFunc func(ctx context.Context, sess session.Session, l *model.Listing) error
	searchFunc func(ctx context.Context, f model.ListingFilter, limit int, offset int64) ([]*model.Listing, int64, error)
	closeFunc  func(ctx context.Context, sess session.Session, kind model.ListingKind, id, reason string) (*model.Listing, error)
	reopenFunc func(ctx context.Context, sess session.Session, kind model.ListingKind, id string) (*model.Listing, error)
}

func (m *mockListingService) Create(ctx context.Context, sess session.Session, l *model.Listing) error {
	return m.createFunc(ctx, sess, l)
}

func (m *mockListingService) GetByID(ctx context.Context, kind model.ListingKind, id string) (*model.Listing, error) {
	if id == "missing" {
		return nil, apperrors.NotFoundWithID("Ride", id)
	}
	return &model.Listing{ID: id, Kind: kind}, nil
}

func (m *mockListingService) Search(ctx context.Context, f model.ListingFilter, limit int, offset int64) ([]*model.Listing, int64, error) {
	return m.searchFunc(ctx, f, limit, offset)
}

func (m *mockListingService) ListByOwner(ctx context.Context, sess session.Session, kind model.ListingKind, limit int, offset int64) ([]*model.Listing, int64, error) {
	return []*model.Listing{}, 0, nil
}

func (m *mockListingService) Close(ctx context.Context, sess session.Session, kind model.ListingKind, id, reason string) (*model.Listing, error) {
	return m.closeFunc(ctx, sess, kind, id, reason)
}

func (m *mockListingService) Reopen(ctx context.Context, sess session.Session, kind model.ListingKind, id string) (*model.Listing, error) {
	return m.reopenFunc(ctx, sess, kind, id)
}

const (
	ownerID = "6f1c2f0e-7d0b-4bb4-9a52-2b7c6f0b1a01"
	rideID  = "65a1b2c3d4e5f6a7b8c9d0e1"
)

func serve(svc *mockListingService, req *http.Request) *httptest.ResponseRecorder {
	router := httprouter.New()
	NewListingHandler(svc, logger.Discard()).RegisterRoutes(router)
	req = req.WithContext(session.WithSession(req.Context(), session.Session{UserID: ownerID}))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreate_KindFromRoute(t *testing.T) {
	var gotKind model.ListingKind
	svc := &mockListingService{createFunc: func(ctx context.Context, sess session.Session, l *model.Listing) error {
		gotKind = l.Kind
		return nil
	}}

	body := `{"kind":"ride","origin":"Campus","destination":"JFK","scheduled_at":"2030-01-01T10:00:00Z"}`
	rec := serve(svc, httptest.NewRequest(http.MethodPost, "/api/v1/trips", strings.NewReader(body)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if gotKind != model.KindTrip {
		t.Errorf("kind must come from the route, got %s", gotKind)
	}
}

func TestSearch_ParsesFilter(t *testing.T) {
	svc := &mockListingService{searchFunc: func(ctx context.Context, f model.ListingFilter, limit int, offset int64) ([]*model.Listing, int64, error) {
		if f.Kind != model.KindRide || f.Origin != "campus" || !f.IncludeClosed || f.From == nil {
			t.Errorf("unexpected filter %+v", f)
		}
		return []*model.Listing{}, 0, nil
	}}

	rec := serve(svc, httptest.NewRequest(http.MethodGet, "/api/v1/rides?origin=campus&include_closed=true&from=2030-01-01T00:00:00Z", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSearch_BadParams(t *testing.T) {
	svc := &mockListingService{}
	for _, q := range []string{"from=yesterday", "include_closed=maybe", "limit=abc"} {
		rec := serve(svc, httptest.NewRequest(http.MethodGet, "/api/v1/rides?"+q, nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", q, rec.Code)
		}
	}
}

func TestGetByID(t *testing.T) {
	rec := serve(&mockListingService{}, httptest.NewRequest(http.MethodGet, "/api/v1/rides/id/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	rec = serve(&mockListingService{}, httptest.NewRequest(http.MethodGet, "/api/v1/rides/id/"+rideID, nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestCloseAndReopen(t *testing.T) {
	svc := &mockListingService{
		closeFunc: func(ctx context.Context, sess session.Session, kind model.ListingKind, id, reason string) (*model.Listing, error) {
			if reason != "" && reason != "full" {
				t.Errorf("unexpected reason %q", reason)
			}
			return &model.Listing{ID: id, Kind: kind, IsClosed: true, ClosedReason: reason}, nil
		},
		reopenFunc: func(ctx context.Context, sess session.Session, kind model.ListingKind, id string) (*model.Listing, error) {
			return nil, apperrors.ListingNotClosed(string(kind), id)
		},
	}

	rec := serve(svc, httptest.NewRequest(http.MethodPost, "/api/v1/rides/id/"+rideID+"/close", strings.NewReader(`{"reason":"full"}`)))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = serve(svc, httptest.NewRequest(http.MethodPost, "/api/v1/rides/id/"+rideID+"/close", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("close without body should succeed, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = serve(svc, httptest.NewRequest(http.MethodPost, "/api/v1/trips/id/"+rideID+"/reopen", nil))
	if rec.Code != http.StatusConflict || !strings.Contains(rec.Body.String(), apperrors.CodeListingNotClosed) {
		t.Errorf("expected 409 LISTING_NOT_CLOSED, got %d: %s", rec.Code, rec.Body.String())
	}
}
