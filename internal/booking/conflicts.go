package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Conflict identifies the first occurrence that blocks an order from being
// admitted. Checks short-circuit, so later conflicts in the same request are
// never reported.
type Conflict struct {
	Date   time.Time
	Slot   TimeOfDay
	Reason Reason
}

// Message renders the conflict for API consumers. Dates use the DD.MM.YYYY
// form the client apps already display.
func (c *Conflict) Message() string {
	return fmt.Sprintf("slot %s at %s is not available (%s)",
		c.Date.Format("02.01.2006"), c.Slot, c.Reason)
}

// SlotBookingRequest describes a single-day booking to validate: one date and
// one or more hourly slot starts.
type SlotBookingRequest struct {
	Date  time.Time
	Slots []TimeOfDay
}

// SubscriptionRequest describes a recurring booking to validate: every date
// in [StartDate, EndDate] whose weekday is in Days, at every time in Times.
type SubscriptionRequest struct {
	StartDate time.Time
	EndDate   time.Time
	Days      WeekdaySet
	Times     []TimeOfDay
}

// CheckSlotBooking validates every requested slot and returns the first
// conflict, or nil when the whole booking fits. Malformed parameters are
// returned as errors so callers cannot mistake them for "no conflicts".
func (s *Service) CheckSlotBooking(ctx context.Context, req SlotBookingRequest, excludeOrderID int64) (*Conflict, error) {
	if req.Date.IsZero() {
		return nil, fmt.Errorf("booking date is required")
	}
	if len(req.Slots) == 0 {
		return nil, fmt.Errorf("at least one slot is required")
	}

	for _, slot := range req.Slots {
		result := s.CheckSlot(ctx, slot.At(req.Date), 1, excludeOrderID)
		if !result.Available {
			conflict := &Conflict{Date: DateOnly(req.Date), Slot: slot, Reason: result.Reason}
			log.Ctx(ctx).Info().
				Int64("facility_id", s.facility.ID).
				Str("date", conflict.Date.Format("2006-01-02")).
				Str("slot", slot.String()).
				Str("reason", string(result.Reason)).
				Msg("Slot booking conflict")
			return conflict, nil
		}
	}
	return nil, nil
}

// CheckSubscription walks every occurrence of the subscription pattern in
// date order and returns the first conflict, or nil when every occurrence
// fits. The scan is a plain double loop over days and times; subscription
// volumes are at most dozens of occurrences.
func (s *Service) CheckSubscription(ctx context.Context, req SubscriptionRequest, excludeOrderID int64) (*Conflict, error) {
	if req.StartDate.IsZero() || req.EndDate.IsZero() {
		return nil, fmt.Errorf("subscription start and end dates are required")
	}
	if DateOnly(req.EndDate).Before(DateOnly(req.StartDate)) {
		return nil, fmt.Errorf("subscription end date precedes start date")
	}
	if req.Days.IsEmpty() {
		return nil, fmt.Errorf("at least one weekday is required")
	}
	if len(req.Times) == 0 {
		return nil, fmt.Errorf("at least one start time is required")
	}

	end := DateOnly(req.EndDate)
	for date := DateOnly(req.StartDate); !date.After(end); date = date.AddDate(0, 0, 1) {
		if !req.Days.Contains(WeekdayOf(date)) {
			continue
		}
		for _, slot := range req.Times {
			result := s.CheckSlot(ctx, slot.At(date), 1, excludeOrderID)
			if !result.Available {
				conflict := &Conflict{Date: date, Slot: slot, Reason: result.Reason}
				log.Ctx(ctx).Info().
					Int64("facility_id", s.facility.ID).
					Str("date", date.Format("2006-01-02")).
					Str("slot", slot.String()).
					Str("reason", string(result.Reason)).
					Msg("Subscription conflict")
				return conflict, nil
			}
		}
	}
	return nil, nil
}

// CheckOrder dispatches to the type-specific conflict check for an order's
// occupancy data. Entry-fee orders never conflict per-slot.
func (s *Service) CheckOrder(ctx context.Context, order *Order) (*Conflict, error) {
	switch order.Type {
	case OrderSlotBooking:
		return s.CheckSlotBooking(ctx, SlotBookingRequest{
			Date:  order.BookingDate,
			Slots: order.Slots,
		}, order.ID)
	case OrderSubscription:
		return s.CheckSubscription(ctx, SubscriptionRequest{
			StartDate: order.SubscriptionStart,
			EndDate:   order.SubscriptionEnd,
			Days:      order.SubscriptionDays,
			Times:     order.SubscriptionTimes,
		}, order.ID)
	case OrderEntryFee:
		return nil, nil
	}
	return nil, fmt.Errorf("unknown order type %q", order.Type)
}
