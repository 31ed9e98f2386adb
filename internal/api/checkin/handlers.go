// internal/api/checkin/handlers.go
//
// Staff-facing check-in: an order code scanned at the facility entrance is
// resolved and, when valid for today, marked as used.
package checkin

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
)

var (
	queries     *appdb.Queries
	queriesOnce sync.Once
)

const checkinQueryTimeout = 5 * time.Second

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(database *appdb.DB) {
	if database == nil {
		return
	}
	queriesOnce.Do(func() {
		queries = database.Queries
	})
}

type checkinRequest struct {
	OrderCode string `json:"order_code"`
}

type checkinResponse struct {
	OrderCode   string `json:"order_code"`
	FacilityID  int64  `json:"facility_id"`
	OrderType   string `json:"order_type"`
	Status      string `json:"status"`
	BookingDate string `json:"booking_date,omitempty"`
	Message     string `json:"message,omitempty"`
}

func toCheckinResponse(o booking.Order) checkinResponse {
	resp := checkinResponse{
		OrderCode:  o.Code,
		FacilityID: o.FacilityID,
		OrderType:  string(o.Type),
		Status:     string(o.Status),
	}
	if !o.BookingDate.IsZero() {
		resp.BookingDate = o.BookingDate.Format("2006-01-02")
	}
	return resp
}

// POST /api/v1/checkin
func HandleCheckin(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	q := queries
	if q == nil {
		logger.Error().Msg("Database queries not initialized")
		apiutil.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	var req checkinRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	code := strings.TrimSpace(req.OrderCode)
	if code == "" {
		apiutil.WriteError(w, http.StatusBadRequest, "order_code is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), checkinQueryTimeout)
	defer cancel()

	order, err := q.GetOrderByCode(ctx, strings.ToUpper(code))
	if errors.Is(err, appdb.ErrNotFound) {
		apiutil.WriteError(w, http.StatusNotFound, "Order not found")
		return
	}
	if err != nil {
		logger.Error().Err(err).Str("order_code", code).Msg("Failed to load order")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to load order")
		return
	}

	// Subscriptions recur; only single-visit orders are consumed at the door.
	if order.Type != booking.OrderSlotBooking && order.Type != booking.OrderEntryFee {
		apiutil.WriteError(w, http.StatusBadRequest,
			fmt.Sprintf("orders of type %s cannot be checked in", order.Type))
		return
	}

	if order.Status == booking.StatusCompleted {
		resp := toCheckinResponse(order)
		resp.Message = "Order was already checked in."
		_ = apiutil.WriteJSON(w, http.StatusOK, resp)
		return
	}
	if order.Status != booking.StatusConfirmed {
		apiutil.WriteError(w, http.StatusBadRequest,
			fmt.Sprintf("order cannot be checked in (status: %s)", order.Status))
		return
	}
	if !order.CoversDate(time.Now()) {
		apiutil.WriteError(w, http.StatusBadRequest, "order does not grant access today")
		return
	}

	if err := q.UpdateOrderStatus(ctx, order.ID, booking.StatusCompleted); err != nil {
		logger.Error().Err(err).Str("order_code", order.Code).Msg("Failed to complete order")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to complete order")
		return
	}
	order.Status = booking.StatusCompleted

	logger.Info().Str("order_code", order.Code).Msg("Order checked in")
	_ = apiutil.WriteJSON(w, http.StatusOK, toCheckinResponse(order))
}
