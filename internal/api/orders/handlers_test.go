package orders

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
	"github.com/unisport/booking/internal/ratelimit"
	"github.com/unisport/booking/internal/testutil"
)

func setupOrderTest(t *testing.T) *db.DB {
	t.Helper()

	database := testutil.NewTestDB(t)

	queries = nil
	store = nil
	limiter = nil
	queriesOnce = sync.Once{}
	InitHandlers(database, 10*time.Minute)
	// Generous limits so tests never trip the per-IP throttle.
	limiter = ratelimit.New(&ratelimit.Config{
		CreateCooldown:   time.Nanosecond,
		CreateMaxPerHour: 10000,
	})

	t.Cleanup(func() {
		limiter.Close()
		queries = nil
		store = nil
		limiter = nil
		queriesOnce = sync.Once{}
	})

	return database
}

func allDays() booking.WeekdaySet {
	return booking.NewWeekdaySet(0, 1, 2, 3, 4, 5, 6)
}

func mustTimeOfDay(t *testing.T, s string) booking.TimeOfDay {
	t.Helper()
	parsed, err := booking.ParseTimeOfDay(s)
	if err != nil {
		t.Fatalf("parse time %q: %v", s, err)
	}
	return parsed
}

func futureDate(days int) time.Time {
	return booking.DateOnly(time.Now()).AddDate(0, 0, days)
}

func hourlyFacility(t *testing.T, database *db.DB, bookingType booking.BookingType, capacity int64) booking.Facility {
	t.Helper()
	return testutil.CreateFacility(t, database, booking.Facility{
		Name:         "Tennis Court",
		Sport:        "tennis",
		BookingType:  bookingType,
		MaxCapacity:  capacity,
		OpenTime:     mustTimeOfDay(t, "08:00"),
		CloseTime:    mustTimeOfDay(t, "22:00"),
		WorkingDays:  allDays(),
		PricePerHour: 50000,
		IsActive:     true,
	})
}

func postOrder(t *testing.T, payload string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.7:51234"
	w := httptest.NewRecorder()
	HandleOrderCreate(w, req)
	return w
}

func decodeOrder(t *testing.T, w *httptest.ResponseRecorder) orderResponse {
	t.Helper()
	var body orderResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode order response: %v", err)
	}
	return body
}

func TestHandleOrderCreate_SlotBooking(t *testing.T) {
	database := setupOrderTest(t)
	facility := hourlyFacility(t, database, booking.BookingExclusive, 0)

	date := futureDate(7).Format("2006-01-02")
	w := postOrder(t, fmt.Sprintf(
		`{"order_type":"slot_booking","facility_id":%d,"date":"%s","slots":["10:00","11:00"]}`,
		facility.ID, date))

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	body := decodeOrder(t, w)
	if body.Status != string(booking.StatusPendingPayment) {
		t.Errorf("expected pending_payment, got %s", body.Status)
	}
	if body.TotalPrice != 100000 {
		t.Errorf("expected price 100000 for two slots, got %d", body.TotalPrice)
	}
	if !strings.HasPrefix(body.OrderCode, "SB-") {
		t.Errorf("expected SB- order code prefix, got %s", body.OrderCode)
	}
	if body.BookingDate != date {
		t.Errorf("expected booking date %s, got %s", date, body.BookingDate)
	}
}

func TestHandleOrderCreate_SlotConflict(t *testing.T) {
	database := setupOrderTest(t)
	facility := hourlyFacility(t, database, booking.BookingExclusive, 0)

	date := futureDate(7)
	testutil.CreateOrder(t, database, booking.Order{
		FacilityID:  facility.ID,
		Type:        booking.OrderSlotBooking,
		Status:      booking.StatusConfirmed,
		BookingDate: date,
		Slots:       []booking.TimeOfDay{mustTimeOfDay(t, "10:00")},
		TotalPrice:  50000,
	})

	w := postOrder(t, fmt.Sprintf(
		`{"order_type":"slot_booking","facility_id":%d,"date":"%s","slots":["10:00"]}`,
		facility.ID, date.Format("2006-01-02")))

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode conflict response: %v", err)
	}
	if body["type"] != "conflict" {
		t.Errorf("expected conflict type marker, got %q", body["type"])
	}
	if !strings.Contains(body["error"], string(booking.ReasonFullyBookedExclusive)) {
		t.Errorf("expected conflict reason in message, got %q", body["error"])
	}
}

func TestHandleOrderCreate_Subscription(t *testing.T) {
	database := setupOrderTest(t)
	facility := hourlyFacility(t, database, booking.BookingOverlapping, 10)

	start := futureDate(7)
	w := postOrder(t, fmt.Sprintf(
		`{"order_type":"subscription","facility_id":%d,"start_date":"%s","months":1,"days_of_week":[%d],"start_times":["18:00"]}`,
		facility.ID, start.Format("2006-01-02"), int(booking.WeekdayOf(start))))

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	body := decodeOrder(t, w)
	if !strings.HasPrefix(body.OrderCode, "S-") {
		t.Errorf("expected S- order code prefix, got %s", body.OrderCode)
	}

	end := booking.SubscriptionEndDate(start, 1)
	if body.SubscriptionEndDate != end.Format("2006-01-02") {
		t.Errorf("expected end date %s, got %s", end.Format("2006-01-02"), body.SubscriptionEndDate)
	}
	occurrences := booking.CountOccurrences(start, end, booking.NewWeekdaySet(int(booking.WeekdayOf(start))))
	if want := int64(occurrences) * facility.PricePerHour; body.TotalPrice != want {
		t.Errorf("expected price %d, got %d", want, body.TotalPrice)
	}
}

func TestHandleOrderCreate_SubscriptionOnEntryFeeFacility(t *testing.T) {
	database := setupOrderTest(t)
	facility := hourlyFacility(t, database, booking.BookingEntryFee, 0)

	start := futureDate(7).Format("2006-01-02")
	w := postOrder(t, fmt.Sprintf(
		`{"order_type":"subscription","facility_id":%d,"start_date":"%s","months":1,"days_of_week":[0],"start_times":["18:00"]}`,
		facility.ID, start))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandleOrderCreate_EntryFee(t *testing.T) {
	database := setupOrderTest(t)
	facility := hourlyFacility(t, database, booking.BookingEntryFee, 0)

	date := futureDate(2).Format("2006-01-02")
	w := postOrder(t, fmt.Sprintf(
		`{"order_type":"entry_fee","facility_id":%d,"date":"%s"}`, facility.ID, date))

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	body := decodeOrder(t, w)
	if body.TotalPrice != facility.PricePerHour {
		t.Errorf("expected entry fee %d, got %d", facility.PricePerHour, body.TotalPrice)
	}
	if !strings.HasPrefix(body.OrderCode, "E-") {
		t.Errorf("expected E- order code prefix, got %s", body.OrderCode)
	}
}

func TestHandleOrderCreate_EntryFeeRejectsSlots(t *testing.T) {
	database := setupOrderTest(t)
	facility := hourlyFacility(t, database, booking.BookingEntryFee, 0)

	date := futureDate(2).Format("2006-01-02")
	w := postOrder(t, fmt.Sprintf(
		`{"order_type":"entry_fee","facility_id":%d,"date":"%s","slots":["10:00"]}`,
		facility.ID, date))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandleOrderCreate_PastDate(t *testing.T) {
	database := setupOrderTest(t)
	facility := hourlyFacility(t, database, booking.BookingExclusive, 0)

	date := futureDate(-1).Format("2006-01-02")
	w := postOrder(t, fmt.Sprintf(
		`{"order_type":"slot_booking","facility_id":%d,"date":"%s","slots":["10:00"]}`,
		facility.ID, date))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for past date, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandleOrderCreate_UnknownFacility(t *testing.T) {
	setupOrderTest(t)

	date := futureDate(2).Format("2006-01-02")
	w := postOrder(t, fmt.Sprintf(
		`{"order_type":"slot_booking","facility_id":999,"date":"%s","slots":["10:00"]}`, date))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown facility, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandleOrderGet(t *testing.T) {
	database := setupOrderTest(t)
	facility := hourlyFacility(t, database, booking.BookingExclusive, 0)
	created := testutil.CreateOrder(t, database, booking.Order{
		FacilityID:  facility.ID,
		Type:        booking.OrderSlotBooking,
		Status:      booking.StatusPendingPayment,
		BookingDate: futureDate(3),
		Slots:       []booking.TimeOfDay{mustTimeOfDay(t, "10:00")},
		TotalPrice:  50000,
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+created.Code, nil)
	req.SetPathValue("code", created.Code)
	w := httptest.NewRecorder()
	HandleOrderGet(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decodeOrder(t, w)
	if body.OrderCode != created.Code {
		t.Errorf("expected code %s, got %s", created.Code, body.OrderCode)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/orders/NOPE", nil)
	req.SetPathValue("code", "NOPE")
	w = httptest.NewRecorder()
	HandleOrderGet(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown code, got %d", w.Code)
	}
}

func TestHandleOrderConfirm(t *testing.T) {
	database := setupOrderTest(t)
	facility := hourlyFacility(t, database, booking.BookingExclusive, 0)
	created := testutil.CreateOrder(t, database, booking.Order{
		FacilityID:  facility.ID,
		Type:        booking.OrderSlotBooking,
		Status:      booking.StatusPendingPayment,
		BookingDate: futureDate(7),
		Slots:       []booking.TimeOfDay{mustTimeOfDay(t, "10:00")},
		TotalPrice:  50000,
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/"+created.Code+"/confirm", nil)
	req.SetPathValue("code", created.Code)
	w := httptest.NewRecorder()
	HandleOrderConfirm(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decodeOrder(t, w)
	if body.Status != string(booking.StatusConfirmed) {
		t.Errorf("expected confirmed, got %s", body.Status)
	}

	// Confirming twice is rejected.
	w = httptest.NewRecorder()
	HandleOrderConfirm(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for double confirm, got %d", w.Code)
	}
}

func TestHandleOrderConfirm_RaceLostToOtherOrder(t *testing.T) {
	database := setupOrderTest(t)
	facility := hourlyFacility(t, database, booking.BookingExclusive, 0)
	date := futureDate(7)

	pending := testutil.CreateOrder(t, database, booking.Order{
		FacilityID:  facility.ID,
		Type:        booking.OrderSlotBooking,
		Status:      booking.StatusPendingPayment,
		BookingDate: date,
		Slots:       []booking.TimeOfDay{mustTimeOfDay(t, "10:00")},
		TotalPrice:  50000,
	})
	// A competing order confirmed for the same slot after ours was placed.
	testutil.CreateOrder(t, database, booking.Order{
		FacilityID:  facility.ID,
		Type:        booking.OrderSlotBooking,
		Status:      booking.StatusConfirmed,
		BookingDate: date,
		Slots:       []booking.TimeOfDay{mustTimeOfDay(t, "10:00")},
		TotalPrice:  50000,
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/"+pending.Code+"/confirm", nil)
	req.SetPathValue("code", pending.Code)
	w := httptest.NewRecorder()
	HandleOrderConfirm(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 when the slot was taken, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandleOrderCancel(t *testing.T) {
	database := setupOrderTest(t)
	facility := hourlyFacility(t, database, booking.BookingExclusive, 0)
	created := testutil.CreateOrder(t, database, booking.Order{
		FacilityID:  facility.ID,
		Type:        booking.OrderSlotBooking,
		Status:      booking.StatusConfirmed,
		BookingDate: futureDate(7),
		Slots:       []booking.TimeOfDay{mustTimeOfDay(t, "10:00")},
		TotalPrice:  50000,
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/"+created.Code+"/cancel", nil)
	req.SetPathValue("code", created.Code)
	w := httptest.NewRecorder()
	HandleOrderCancel(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decodeOrder(t, w)
	if body.Status != string(booking.StatusCancelledUser) {
		t.Errorf("expected cancelled_user, got %s", body.Status)
	}

	// Cancelled orders stop blocking the slot for new bookings.
	w2 := postOrder(t, fmt.Sprintf(
		`{"order_type":"slot_booking","facility_id":%d,"date":"%s","slots":["10:00"]}`,
		facility.ID, created.BookingDate.Format("2006-01-02")))
	if w2.Code != http.StatusCreated {
		t.Fatalf("expected slot to free up after cancel, got %d: %s", w2.Code, w2.Body.String())
	}
}

func TestHandleOrderCreate_RateLimited(t *testing.T) {
	database := setupOrderTest(t)
	facility := hourlyFacility(t, database, booking.BookingExclusive, 0)

	limiter.Close()
	limiter = ratelimit.New(&ratelimit.Config{
		CreateCooldown:   time.Hour,
		CreateMaxPerHour: 1,
	})

	date := futureDate(7).Format("2006-01-02")
	w := postOrder(t, fmt.Sprintf(
		`{"order_type":"slot_booking","facility_id":%d,"date":"%s","slots":["10:00"]}`,
		facility.ID, date))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected first order to succeed, got %d: %s", w.Code, w.Body.String())
	}

	w = postOrder(t, fmt.Sprintf(
		`{"order_type":"slot_booking","facility_id":%d,"date":"%s","slots":["11:00"]}`,
		facility.ID, date))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 within cooldown, got %d: %s", w.Code, w.Body.String())
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header on 429")
	}
}
