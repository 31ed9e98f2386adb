// internal/api/facilities/handlers.go
package facilities

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/unisport/booking/internal/api/apiutil"
	"github.com/unisport/booking/internal/booking"
	appdb "github.com/unisport/booking/internal/db"
	"github.com/unisport/booking/internal/metrics"
)

var (
	queries     *appdb.Queries
	leadTime    time.Duration
	queriesOnce sync.Once
)

const facilityQueryTimeout = 5 * time.Second

var weekdayNames = [7]string{
	"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday",
}

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(database *appdb.DB, lead time.Duration) {
	if database == nil {
		return
	}
	queriesOnce.Do(func() {
		queries = database.Queries
		leadTime = lead
	})
}

func loadQueries() *appdb.Queries {
	return queries
}

type facilityResponse struct {
	ID           int64               `json:"id"`
	Name         string              `json:"name"`
	Sport        string              `json:"sport"`
	BookingType  booking.BookingType `json:"booking_type"`
	MaxCapacity  *int64              `json:"max_capacity"`
	OpenTime     string              `json:"open_time"`
	CloseTime    string              `json:"close_time"`
	WorkingDays  []int               `json:"working_days"`
	PricePerHour int64               `json:"price_per_hour"`
	IsActive     bool                `json:"is_active"`
}

func toFacilityResponse(f booking.Facility) facilityResponse {
	resp := facilityResponse{
		ID:           f.ID,
		Name:         f.Name,
		Sport:        f.Sport,
		BookingType:  f.BookingType,
		OpenTime:     f.OpenTime.String(),
		CloseTime:    f.CloseTime.String(),
		WorkingDays:  f.WorkingDays.Days(),
		PricePerHour: f.PricePerHour,
		IsActive:     f.IsActive,
	}
	if f.BookingType == booking.BookingOverlapping {
		capacity := f.MaxCapacity
		resp.MaxCapacity = &capacity
	}
	return resp
}

// loadActiveFacility resolves the {id} path value into an active facility.
// It writes the error response itself and reports success via ok.
func loadActiveFacility(ctx context.Context, w http.ResponseWriter, r *http.Request) (booking.Facility, bool) {
	facilityID, err := apiutil.FacilityIDFromPath(r)
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return booking.Facility{}, false
	}

	q := loadQueries()
	if q == nil {
		log.Ctx(ctx).Error().Msg("Database queries not initialized")
		apiutil.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
		return booking.Facility{}, false
	}

	facility, err := q.GetFacility(ctx, facilityID)
	if errors.Is(err, appdb.ErrNotFound) {
		apiutil.WriteError(w, http.StatusNotFound, "Facility not found or inactive")
		return booking.Facility{}, false
	}
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Int64("facility_id", facilityID).Msg("Failed to load facility")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to load facility")
		return booking.Facility{}, false
	}
	if !facility.IsActive {
		apiutil.WriteError(w, http.StatusNotFound, "Facility not found or inactive")
		return booking.Facility{}, false
	}
	return facility, true
}

// GET /api/v1/facilities
func HandleFacilityList(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	q := loadQueries()
	if q == nil {
		logger.Error().Msg("Database queries not initialized")
		apiutil.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), facilityQueryTimeout)
	defer cancel()

	facilities, err := q.ListActiveFacilities(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to list facilities")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to list facilities")
		return
	}

	out := make([]facilityResponse, 0, len(facilities))
	for _, f := range facilities {
		out = append(out, toFacilityResponse(f))
	}
	_ = apiutil.WriteJSON(w, http.StatusOK, map[string]any{"facilities": out})
}

// GET /api/v1/facilities/{id}
func HandleFacilityDetail(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), facilityQueryTimeout)
	defer cancel()

	facility, ok := loadActiveFacility(ctx, w, r)
	if !ok {
		return
	}
	_ = apiutil.WriteJSON(w, http.StatusOK, toFacilityResponse(facility))
}

type availabilityResponse struct {
	FacilityID          int64               `json:"facility_id"`
	FacilityBookingType booking.BookingType `json:"facility_booking_type"`
	Slots               []booking.DaySlot   `json:"slots"`
	Message             string              `json:"message,omitempty"`
}

// GET /api/v1/facilities/{id}/availability?date=YYYY-MM-DD
func HandleFacilityAvailability(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	ctx, cancel := context.WithTimeout(r.Context(), facilityQueryTimeout)
	defer cancel()

	facility, ok := loadActiveFacility(ctx, w, r)
	if !ok {
		return
	}

	resp := availabilityResponse{
		FacilityID:          facility.ID,
		FacilityBookingType: facility.BookingType,
		Slots:               []booking.DaySlot{},
	}

	// Entry-fee facilities have no hourly slots to list.
	if facility.BookingType == booking.BookingEntryFee {
		resp.Message = "This facility only offers entry-fee admission; hourly booking is not available."
		_ = apiutil.WriteJSON(w, http.StatusOK, resp)
		return
	}

	date, err := apiutil.ParseDateField(r.URL.Query().Get("date"), "date")
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	requestTime := time.Now()
	if date.Before(booking.DateOnly(requestTime)) {
		resp.Message = "Availability cannot be shown for a past date."
		_ = apiutil.WriteJSON(w, http.StatusOK, resp)
		return
	}

	if !facility.WorkingDays.Contains(booking.WeekdayOf(date)) {
		dayName := weekdayNames[booking.WeekdayOf(date)]
		resp.Message = "The facility is closed on this day (" + dayName + ")."
		_ = apiutil.WriteJSON(w, http.StatusOK, resp)
		return
	}

	service, err := booking.NewService(facility, loadQueries(), requestTime, leadTime)
	if err != nil {
		logger.Error().Err(err).Int64("facility_id", facility.ID).Msg("Failed to build availability service")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to check availability")
		return
	}

	slots := service.ListDaySlots(ctx, date)
	if slots != nil {
		resp.Slots = slots
	}
	if len(resp.Slots) == 0 {
		resp.Message = "No slots are available within the facility's working hours."
	}
	for _, slot := range resp.Slots {
		metrics.AvailabilityChecks.WithLabelValues(string(slot.Reason)).Inc()
	}
	_ = apiutil.WriteJSON(w, http.StatusOK, resp)
}

type subscriptionAvailabilityResponse struct {
	FacilityID          int64                `json:"facility_id"`
	FacilityBookingType booking.BookingType  `json:"facility_booking_type"`
	AvailabilityMatrix  booking.WeeklyMatrix `json:"availability_matrix"`
	Message             string               `json:"message,omitempty"`
}

// GET /api/v1/facilities/{id}/subscription-availability
func HandleSubscriptionAvailability(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	ctx, cancel := context.WithTimeout(r.Context(), facilityQueryTimeout)
	defer cancel()

	facility, ok := loadActiveFacility(ctx, w, r)
	if !ok {
		return
	}

	resp := subscriptionAvailabilityResponse{
		FacilityID:          facility.ID,
		FacilityBookingType: facility.BookingType,
		AvailabilityMatrix:  booking.WeeklyMatrix{},
	}

	if facility.BookingType == booking.BookingEntryFee {
		resp.Message = "Subscriptions do not apply to entry-fee facilities."
		_ = apiutil.WriteJSON(w, http.StatusOK, resp)
		return
	}

	service, err := booking.NewService(facility, loadQueries(), time.Now(), leadTime)
	if err != nil {
		logger.Error().Err(err).Int64("facility_id", facility.ID).Msg("Failed to build availability service")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to check availability")
		return
	}

	resp.AvailabilityMatrix = service.BuildWeeklyMatrix(ctx)
	_ = apiutil.WriteJSON(w, http.StatusOK, resp)
}
