package repository

import (
	"context"
	"testing"
	"time"

	"rideshare/pkg/config"
	"rideshare/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

const (
	rideID  = "65a1b2c3d4e5f6a7b8c9d0e1"
	ownerID = "6f1c2f0e-7d0b-4bb4-9a52-2b7c6f0b1a01"
)

func pendingDoc(id primitive.ObjectID, passengerID string) bson.D {
	return bson.D{
		{Key: "_id", Value: id},
		{Key: "ride_id", Value: rideID},
		{Key: "owner_id", Value: ownerID},
		{Key: "passenger_id", Value: passengerID},
		{Key: "seats_requested", Value: 1},
		{Key: "status", Value: string(model.StatusPending)},
	}
}

func newTestRepository(mt *mtest.T) *mongoConfirmationRepository {
	return &mongoConfirmationRepository{
		cfg:        &config.Config{ReadTimeout: time.Second, WriteTimeout: time.Second},
		collection: mt.Coll,
	}
}

func updated(n int) bson.D {
	return mtest.CreateSuccessResponse(
		bson.E{Key: "n", Value: n},
		bson.E{Key: "nModified", Value: n},
	)
}

func TestRejectPendingByListing_SkipsRowsDecidedMeanwhile(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("only matched rows are reported", func(mt *mtest.T) {
		first, second := primitive.NewObjectID(), primitive.NewObjectID()
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()

		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
				pendingDoc(first, "0b8d3f4c-1e2a-4c5d-8e9f-a1b2c3d4e5f6"),
				pendingDoc(second, "1c9e3b52-8f0a-4d7e-9b61-3a2f5c4d6e70"),
			),
			updated(1),
			// accepted by the owner between the read and the write
			updated(0),
		)

		repo := newTestRepository(mt)
		rejected, err := repo.RejectPendingByListing(context.Background(), model.ListingRef{Kind: model.KindRide, ID: rideID}, time.Now())
		if err != nil {
			mt.Fatalf("unexpected error: %v", err)
		}
		if len(rejected) != 1 || rejected[0].ID != first.Hex() {
			mt.Fatalf("expected only %s to be reported, got %+v", first.Hex(), rejected)
		}
	})

	mt.Run("nothing pending", func(mt *mtest.T) {
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))

		repo := newTestRepository(mt)
		rejected, err := repo.RejectPendingByListing(context.Background(), model.ListingRef{Kind: model.KindRide, ID: rideID}, time.Now())
		if err != nil {
			mt.Fatalf("unexpected error: %v", err)
		}
		if len(rejected) != 0 {
			mt.Errorf("expected no rows, got %d", len(rejected))
		}
	})
}

func TestResubmit_ReportsMatch(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	tests := []struct {
		name string
		n    int
		want bool
	}{
		{"still rejected", 1, true},
		{"changed meanwhile", 0, false},
	}

	for _, tt := range tests {
		mt.Run(tt.name, func(mt *mtest.T) {
			mt.AddMockResponses(updated(tt.n))

			repo := newTestRepository(mt)
			got, err := repo.Resubmit(context.Background(), primitive.NewObjectID().Hex(), 2, "late flight", time.Now())
			if err != nil {
				mt.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				mt.Errorf("matched = %v, want %v", got, tt.want)
			}
		})
	}

	mt.Run("invalid id", func(mt *mtest.T) {
		repo := newTestRepository(mt)
		if _, err := repo.Resubmit(context.Background(), "nope", 1, "", time.Now()); err == nil {
			mt.Error("expected invalid id error")
		}
	})
}
