package checkin

// NOTE: Tests cannot use t.Parallel() due to shared package state.

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/unisport/booking/internal/booking"
	"github.com/unisport/booking/internal/db"
	"github.com/unisport/booking/internal/testutil"
)

func setupCheckinTest(t *testing.T) *db.DB {
	t.Helper()

	database := testutil.NewTestDB(t)

	queries = nil
	queriesOnce = sync.Once{}
	InitHandlers(database)

	t.Cleanup(func() {
		queries = nil
		queriesOnce = sync.Once{}
	})

	return database
}

func mustTimeOfDay(t *testing.T, s string) booking.TimeOfDay {
	t.Helper()
	parsed, err := booking.ParseTimeOfDay(s)
	if err != nil {
		t.Fatalf("parse time %q: %v", s, err)
	}
	return parsed
}

func checkinFacility(t *testing.T, database *db.DB) booking.Facility {
	t.Helper()
	return testutil.CreateFacility(t, database, booking.Facility{
		Name:         "Stadium",
		Sport:        "football",
		BookingType:  booking.BookingExclusive,
		OpenTime:     mustTimeOfDay(t, "08:00"),
		CloseTime:    mustTimeOfDay(t, "22:00"),
		WorkingDays:  booking.NewWeekdaySet(0, 1, 2, 3, 4, 5, 6),
		PricePerHour: 50000,
		IsActive:     true,
	})
}

func postCheckin(t *testing.T, code string) *httptest.ResponseRecorder {
	t.Helper()
	payload := fmt.Sprintf(`{"order_code":%q}`, code)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkin", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	HandleCheckin(w, req)
	return w
}

func TestHandleCheckin_ConfirmedTodayCompletes(t *testing.T) {
	database := setupCheckinTest(t)
	facility := checkinFacility(t, database)
	order := testutil.CreateOrder(t, database, booking.Order{
		FacilityID:  facility.ID,
		Type:        booking.OrderSlotBooking,
		Status:      booking.StatusConfirmed,
		BookingDate: booking.DateOnly(time.Now()),
		Slots:       []booking.TimeOfDay{mustTimeOfDay(t, "10:00")},
		TotalPrice:  50000,
	})

	w := postCheckin(t, order.Code)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var body checkinResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Status != string(booking.StatusCompleted) {
		t.Errorf("expected completed, got %s", body.Status)
	}

	// Scanning the same code again reports the earlier check-in.
	w = postCheckin(t, order.Code)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 on repeat scan, got %d", w.Code)
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Message == "" {
		t.Error("expected already-checked-in message on repeat scan")
	}
}

func TestHandleCheckin_WrongDay(t *testing.T) {
	database := setupCheckinTest(t)
	facility := checkinFacility(t, database)
	order := testutil.CreateOrder(t, database, booking.Order{
		FacilityID:  facility.ID,
		Type:        booking.OrderEntryFee,
		Status:      booking.StatusConfirmed,
		BookingDate: booking.DateOnly(time.Now()).AddDate(0, 0, 2),
		TotalPrice:  15000,
	})

	w := postCheckin(t, order.Code)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a future booking date, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandleCheckin_PendingRejected(t *testing.T) {
	database := setupCheckinTest(t)
	facility := checkinFacility(t, database)
	order := testutil.CreateOrder(t, database, booking.Order{
		FacilityID:  facility.ID,
		Type:        booking.OrderSlotBooking,
		Status:      booking.StatusPendingPayment,
		BookingDate: booking.DateOnly(time.Now()),
		Slots:       []booking.TimeOfDay{mustTimeOfDay(t, "10:00")},
		TotalPrice:  50000,
	})

	w := postCheckin(t, order.Code)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unpaid order, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandleCheckin_SubscriptionRejected(t *testing.T) {
	database := setupCheckinTest(t)
	facility := checkinFacility(t, database)
	today := booking.DateOnly(time.Now())
	order := testutil.CreateOrder(t, database, booking.Order{
		FacilityID:        facility.ID,
		Type:              booking.OrderSubscription,
		Status:            booking.StatusConfirmed,
		SubscriptionStart: today,
		SubscriptionEnd:   today.AddDate(0, 1, -1),
		SubscriptionDays:  booking.NewWeekdaySet(int(booking.WeekdayOf(today))),
		SubscriptionTimes: []booking.TimeOfDay{mustTimeOfDay(t, "18:00")},
		TotalPrice:        200000,
	})

	w := postCheckin(t, order.Code)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for subscription order, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandleCheckin_UnknownCode(t *testing.T) {
	setupCheckinTest(t)

	w := postCheckin(t, "SB-250310-FFFFFF")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestHandleCheckin_MissingCode(t *testing.T) {
	setupCheckinTest(t)

	w := postCheckin(t, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty code, got %d", w.Code)
	}
}
