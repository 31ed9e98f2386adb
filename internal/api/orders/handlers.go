// internal/api/orders/handlers.go
package orders

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/unisport/booking/internal/api/apiutil"
	"github.com/unisport/booking/internal/booking"
	appdb "github.com/unisport/booking/internal/db"
	"github.com/unisport/booking/internal/metrics"
	"github.com/unisport/booking/internal/ratelimit"
)

var (
	queries     *appdb.Queries
	store       *appdb.DB
	leadTime    time.Duration
	limiter     *ratelimit.Limiter
	queriesOnce sync.Once
)

const orderQueryTimeout = 5 * time.Second

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(database *appdb.DB, lead time.Duration) {
	if database == nil {
		return
	}
	queriesOnce.Do(func() {
		queries = database.Queries
		store = database
		leadTime = lead
		limiter = ratelimit.New(nil)
	})
}

type createOrderRequest struct {
	OrderType  string `json:"order_type"`
	FacilityID int64  `json:"facility_id"`

	// Slot bookings and entry-fee visits.
	Date  string   `json:"date,omitempty"`
	Slots []string `json:"slots,omitempty"`

	// Subscriptions.
	StartDate  string   `json:"start_date,omitempty"`
	Months     int      `json:"months,omitempty"`
	DaysOfWeek []int    `json:"days_of_week,omitempty"`
	StartTimes []string `json:"start_times,omitempty"`
}

type orderResponse struct {
	ID         int64  `json:"id"`
	OrderCode  string `json:"order_code"`
	FacilityID int64  `json:"facility_id"`
	OrderType  string `json:"order_type"`
	Status     string `json:"status"`
	TotalPrice int64  `json:"total_price"`

	BookingDate string   `json:"booking_date,omitempty"`
	Slots       []string `json:"slots,omitempty"`

	SubscriptionStartDate string   `json:"subscription_start_date,omitempty"`
	SubscriptionEndDate   string   `json:"subscription_end_date,omitempty"`
	DaysOfWeek            []int    `json:"days_of_week,omitempty"`
	SubscriptionTimes     []string `json:"subscription_times,omitempty"`
	DurationPerSlotHours  int      `json:"duration_per_slot_hours,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toOrderResponse(o booking.Order) orderResponse {
	resp := orderResponse{
		ID:         o.ID,
		OrderCode:  o.Code,
		FacilityID: o.FacilityID,
		OrderType:  string(o.Type),
		Status:     string(o.Status),
		TotalPrice: o.TotalPrice,
		CreatedAt:  o.CreatedAt,
		UpdatedAt:  o.UpdatedAt,
	}
	if !o.BookingDate.IsZero() {
		resp.BookingDate = o.BookingDate.Format("2006-01-02")
	}
	for _, slot := range o.Slots {
		resp.Slots = append(resp.Slots, slot.String())
	}
	if o.Type == booking.OrderSubscription {
		if !o.SubscriptionStart.IsZero() {
			resp.SubscriptionStartDate = o.SubscriptionStart.Format("2006-01-02")
		}
		if !o.SubscriptionEnd.IsZero() {
			resp.SubscriptionEndDate = o.SubscriptionEnd.Format("2006-01-02")
		}
		resp.DaysOfWeek = o.SubscriptionDays.Days()
		for _, t := range o.SubscriptionTimes {
			resp.SubscriptionTimes = append(resp.SubscriptionTimes, t.String())
		}
		resp.DurationPerSlotHours = o.SlotDurationHours
	}
	return resp
}

// buildOrder validates the type-specific parameters and assembles the order
// with its backend-calculated price. The request time anchors the "no past
// dates" checks.
func buildOrder(req createOrderRequest, facility booking.Facility, requestTime time.Time) (*booking.Order, error) {
	orderType := booking.OrderType(strings.TrimSpace(req.OrderType))
	if !orderType.Valid() {
		return nil, fmt.Errorf("order_type must be one of entry_fee, slot_booking, subscription")
	}

	today := booking.DateOnly(requestTime)
	order := &booking.Order{
		FacilityID: facility.ID,
		Type:       orderType,
		Status:     booking.StatusPendingPayment,
	}

	switch orderType {
	case booking.OrderSubscription:
		if facility.BookingType == booking.BookingEntryFee {
			return nil, fmt.Errorf("subscriptions are not offered for this facility")
		}
		start, err := apiutil.ParseDateField(req.StartDate, "start_date")
		if err != nil {
			return nil, err
		}
		if start.Before(today) {
			return nil, fmt.Errorf("start_date cannot be in the past")
		}
		if req.Months < 1 {
			return nil, fmt.Errorf("months must be greater than 0")
		}
		days, err := apiutil.ParseWeekdaysField(req.DaysOfWeek, "days_of_week")
		if err != nil {
			return nil, err
		}
		times, err := apiutil.ParseTimesField(req.StartTimes, "start_times")
		if err != nil {
			return nil, err
		}
		end := booking.SubscriptionEndDate(start, req.Months)
		order.SubscriptionStart = start
		order.SubscriptionEnd = end
		order.SubscriptionDays = days
		order.SubscriptionTimes = times
		order.SlotDurationHours = 1
		order.TotalPrice = facility.SubscriptionPrice(start, end, days, times)
		order.Code = booking.NewOrderCode(orderType, start)

	case booking.OrderSlotBooking:
		if facility.BookingType == booking.BookingEntryFee {
			return nil, fmt.Errorf("this facility only offers entry-fee admission")
		}
		date, err := apiutil.ParseDateField(req.Date, "date")
		if err != nil {
			return nil, err
		}
		if date.Before(today) {
			return nil, fmt.Errorf("date cannot be in the past")
		}
		slots, err := apiutil.ParseTimesField(req.Slots, "slots")
		if err != nil {
			return nil, err
		}
		order.BookingDate = date
		order.Slots = slots
		order.TotalPrice = facility.SlotBookingPrice(len(slots))
		order.Code = booking.NewOrderCode(orderType, date)

	case booking.OrderEntryFee:
		if facility.BookingType != booking.BookingEntryFee {
			return nil, fmt.Errorf("this facility does not offer entry-fee admission")
		}
		if len(req.Slots) > 0 {
			return nil, fmt.Errorf("slots do not apply to entry-fee orders")
		}
		date, err := apiutil.ParseDateField(req.Date, "date")
		if err != nil {
			return nil, err
		}
		if date.Before(today) {
			return nil, fmt.Errorf("date cannot be in the past")
		}
		order.BookingDate = date
		order.TotalPrice = facility.EntryFeePrice()
		order.Code = booking.NewOrderCode(orderType, date)
	}
	return order, nil
}

// POST /api/v1/orders
func HandleOrderCreate(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	q := queries
	database := store
	if q == nil || database == nil {
		logger.Error().Msg("Database queries not initialized")
		apiutil.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	clientIP := ratelimit.GetClientIP(r, false)
	if limit := limiter.CheckOrderCreate(clientIP); !limit.Allowed {
		ratelimit.LogRateLimitExceeded(clientIP, limit.Reason)
		w.Header().Set("Retry-After", fmt.Sprintf("%.0f", limit.RetryAfter.Seconds()))
		apiutil.WriteError(w, http.StatusTooManyRequests, "Too many order requests, slow down")
		return
	}

	var req createOrderRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.FacilityID <= 0 {
		apiutil.WriteError(w, http.StatusBadRequest, "facility_id must be greater than 0")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), orderQueryTimeout)
	defer cancel()

	facility, err := q.GetFacility(ctx, req.FacilityID)
	if errors.Is(err, appdb.ErrNotFound) {
		apiutil.WriteError(w, http.StatusBadRequest, "Facility not found or inactive")
		return
	}
	if err != nil {
		logger.Error().Err(err).Int64("facility_id", req.FacilityID).Msg("Failed to load facility")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to load facility")
		return
	}
	if !facility.IsActive {
		apiutil.WriteError(w, http.StatusBadRequest, "Facility not found or inactive")
		return
	}

	requestTime := time.Now()
	order, err := buildOrder(req, facility, requestTime)
	if err != nil {
		metrics.OrdersRejected.WithLabelValues("validation").Inc()
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Entry-fee admission has no per-slot occupancy to collide with.
	if order.Type != booking.OrderEntryFee {
		service, err := booking.NewService(facility, q, requestTime, leadTime)
		if err != nil {
			logger.Error().Err(err).Int64("facility_id", facility.ID).Msg("Failed to build availability service")
			apiutil.WriteError(w, http.StatusInternalServerError, "Failed to check availability")
			return
		}
		conflict, err := service.CheckOrder(ctx, order)
		if err != nil {
			metrics.OrdersRejected.WithLabelValues("validation").Inc()
			apiutil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		if conflict != nil {
			metrics.OrdersRejected.WithLabelValues("conflict").Inc()
			apiutil.WriteConflict(w, conflict.Message())
			return
		}
	}

	err = database.RunInTx(ctx, func(txdb *appdb.DB) error {
		return txdb.Queries.CreateOrder(ctx, order)
	})
	if err != nil {
		logger.Error().Err(err).Int64("facility_id", facility.ID).Msg("Failed to create order")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to create order")
		return
	}

	created, err := q.GetOrderByCode(ctx, order.Code)
	if err != nil {
		logger.Error().Err(err).Str("order_code", order.Code).Msg("Failed to reload created order")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to create order")
		return
	}

	limiter.RecordOrderCreate(clientIP)
	metrics.OrdersCreated.WithLabelValues(string(created.Type)).Inc()
	logger.Info().
		Str("order_code", created.Code).
		Int64("facility_id", created.FacilityID).
		Str("order_type", string(created.Type)).
		Int64("total_price", created.TotalPrice).
		Msg("Order created")
	_ = apiutil.WriteJSON(w, http.StatusCreated, toOrderResponse(created))
}

// loadOrderByCode resolves the {code} path value. It writes the error
// response itself and reports success via ok.
func loadOrderByCode(ctx context.Context, w http.ResponseWriter, r *http.Request) (booking.Order, bool) {
	code := strings.TrimSpace(r.PathValue("code"))
	if code == "" {
		apiutil.WriteError(w, http.StatusBadRequest, "order code is required")
		return booking.Order{}, false
	}

	q := queries
	if q == nil {
		log.Ctx(ctx).Error().Msg("Database queries not initialized")
		apiutil.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
		return booking.Order{}, false
	}

	order, err := q.GetOrderByCode(ctx, code)
	if errors.Is(err, appdb.ErrNotFound) {
		apiutil.WriteError(w, http.StatusNotFound, "Order not found")
		return booking.Order{}, false
	}
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("order_code", code).Msg("Failed to load order")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to load order")
		return booking.Order{}, false
	}
	return order, true
}

// GET /api/v1/orders/{code}
func HandleOrderGet(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), orderQueryTimeout)
	defer cancel()

	order, ok := loadOrderByCode(ctx, w, r)
	if !ok {
		return
	}
	_ = apiutil.WriteJSON(w, http.StatusOK, toOrderResponse(order))
}

// POST /api/v1/orders/{code}/confirm
//
// Confirmation stands in for the payment provider callback: the slots are
// re-validated against every other order before the transition, so a booking
// that raced past creation is rejected instead of double-booked.
func HandleOrderConfirm(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	ctx, cancel := context.WithTimeout(r.Context(), orderQueryTimeout)
	defer cancel()

	order, ok := loadOrderByCode(ctx, w, r)
	if !ok {
		return
	}
	if order.Status != booking.StatusPendingPayment {
		apiutil.WriteError(w, http.StatusBadRequest,
			fmt.Sprintf("order cannot be confirmed in status %s", order.Status))
		return
	}

	facility, err := queries.GetFacility(ctx, order.FacilityID)
	if err != nil {
		logger.Error().Err(err).Int64("facility_id", order.FacilityID).Msg("Failed to load facility")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to confirm order")
		return
	}

	if order.Type != booking.OrderEntryFee {
		service, err := booking.NewService(facility, queries, time.Now(), leadTime)
		if err != nil {
			logger.Error().Err(err).Int64("facility_id", facility.ID).Msg("Failed to build availability service")
			apiutil.WriteError(w, http.StatusInternalServerError, "Failed to confirm order")
			return
		}
		conflict, err := service.CheckOrder(ctx, &order)
		if err != nil {
			apiutil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		if conflict != nil {
			metrics.OrdersRejected.WithLabelValues("conflict").Inc()
			apiutil.WriteConflict(w, conflict.Message())
			return
		}
	}

	if err := queries.UpdateOrderStatus(ctx, order.ID, booking.StatusConfirmed); err != nil {
		logger.Error().Err(err).Str("order_code", order.Code).Msg("Failed to confirm order")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to confirm order")
		return
	}
	order.Status = booking.StatusConfirmed

	metrics.OrdersConfirmed.Inc()
	logger.Info().Str("order_code", order.Code).Msg("Order confirmed")
	_ = apiutil.WriteJSON(w, http.StatusOK, toOrderResponse(order))
}

// POST /api/v1/orders/{code}/cancel
func HandleOrderCancel(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	ctx, cancel := context.WithTimeout(r.Context(), orderQueryTimeout)
	defer cancel()

	order, ok := loadOrderByCode(ctx, w, r)
	if !ok {
		return
	}
	if order.Status != booking.StatusPendingPayment && order.Status != booking.StatusConfirmed {
		apiutil.WriteError(w, http.StatusBadRequest,
			fmt.Sprintf("order cannot be cancelled in status %s", order.Status))
		return
	}

	if err := queries.UpdateOrderStatus(ctx, order.ID, booking.StatusCancelledUser); err != nil {
		logger.Error().Err(err).Str("order_code", order.Code).Msg("Failed to cancel order")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to cancel order")
		return
	}
	order.Status = booking.StatusCancelledUser

	logger.Info().Str("order_code", order.Code).Msg("Order cancelled")
	_ = apiutil.WriteJSON(w, http.StatusOK, toOrderResponse(order))
}
