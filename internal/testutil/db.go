package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/unisport/booking/internal/booking"
	"github.com/unisport/booking/internal/db"
)

// NewTestDB creates a temporary SQLite database with migrations applied.
func NewTestDB(t *testing.T) *db.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	database, err := db.New(dbPath)
	if err != nil {
		t.Fatalf("create test db: %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close()
	})

	return database
}

// CreateFacility inserts a facility and returns it with its generated ID.
func CreateFacility(t *testing.T, database *db.DB, f booking.Facility) booking.Facility {
	t.Helper()

	id, err := database.Queries.CreateFacility(context.Background(), f)
	if err != nil {
		t.Fatalf("create facility: %v", err)
	}
	f.ID = id
	return f
}

// CreateOrder inserts an order, generating a code when missing, and returns
// it with its generated ID.
func CreateOrder(t *testing.T, database *db.DB, o booking.Order) booking.Order {
	t.Helper()

	if o.Code == "" {
		o.Code = booking.NewOrderCode(o.Type, o.BookingDate)
	}
	if err := database.Queries.CreateOrder(context.Background(), &o); err != nil {
		t.Fatalf("create order: %v", err)
	}
	return o
}
