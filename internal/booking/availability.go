package booking

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
)

// Reason identifies why a slot is or is not available. The string values are
// part of the API contract and must stay stable.
type Reason string

const (
	ReasonAvailable             Reason = "available"
	ReasonClosedDay             Reason = "facility_closed_on_day"
	ReasonClosedTime            Reason = "facility_closed_at_time"
	ReasonLeadTimeRestriction   Reason = "lead_time_restriction"
	ReasonFullyBookedExclusive  Reason = "fully_booked_exclusive"
	ReasonMaxCapacityReached    Reason = "max_capacity_reached"
	ReasonMisconfiguredCapacity Reason = "facility_misconfigured_no_capacity"
	ReasonUnknownError          Reason = "unknown_error"
)

// DefaultLeadTime is the minimum notice before a slot's start unless
// overridden by configuration.
const DefaultLeadTime = 10 * time.Minute

// Result is the structured outcome of a single slot availability check.
type Result struct {
	Available      bool
	Reason         Reason
	BookedCount    int
	AvailableSpots int
	MaxCapacity    int
	ErrorMessage   string // set only for ReasonUnknownError
}

// OrderSource supplies the orders that may conflict at a facility. Callers
// must return every order whose status creates conflicts, excluding the order
// with excludeOrderID when it is non-zero.
type OrderSource interface {
	ListConflictCandidates(ctx context.Context, facilityID, excludeOrderID int64) ([]Order, error)
}

// ErrNoOrderSource is returned by constructors when the order source is nil.
var ErrNoOrderSource = errors.New("booking: order source is required")

// Service answers availability questions for one facility against a request
// time pinned at construction, so multi-slot checks (subscription scans,
// matrix builds) see one consistent "now".
type Service struct {
	facility    Facility
	orders      OrderSource
	requestTime time.Time
	leadTime    time.Duration
}

// NewService pins requestTime (time.Now() when zero) and leadTime
// (DefaultLeadTime when zero or negative).
func NewService(facility Facility, orders OrderSource, requestTime time.Time, leadTime time.Duration) (*Service, error) {
	if orders == nil {
		return nil, ErrNoOrderSource
	}
	if requestTime.IsZero() {
		requestTime = time.Now()
	}
	if leadTime <= 0 {
		leadTime = DefaultLeadTime
	}
	return &Service{
		facility:    facility,
		orders:      orders,
		requestTime: requestTime,
		leadTime:    leadTime,
	}, nil
}

// Facility returns the facility this service was built for.
func (s *Service) Facility() Facility { return s.facility }

// RequestTime returns the pinned reference time.
func (s *Service) RequestTime() time.Time { return s.requestTime }

// baseMaxCapacity resolves the capacity ceiling for the facility's booking
// type. Zero for an overlapping facility signals misconfiguration; entry-fee
// facilities have no per-slot capacity at all.
func (s *Service) baseMaxCapacity() int {
	switch s.facility.BookingType {
	case BookingExclusive:
		return 1
	case BookingOverlapping:
		if s.facility.MaxCapacity > 0 {
			return int(s.facility.MaxCapacity)
		}
		return 0
	}
	return 0
}

// isOperationalAt gates a slot start against working days, opening hours and
// the lead-time restriction, in that order. The first failing check wins.
func (s *Service) isOperationalAt(start time.Time) (bool, Reason) {
	if !s.facility.WorkingDays.Contains(WeekdayOf(start)) {
		return false, ReasonClosedDay
	}

	slotStart := TimeOfDay(start.Hour()*60 + start.Minute())
	withinHours := false
	if s.facility.CloseTime == Midnight {
		// Open until end of day: no upper bound on slot starts.
		withinHours = slotStart >= s.facility.OpenTime
	} else {
		slotEnd := slotStart + TimeOfDay(SlotDuration/time.Minute)
		withinHours = slotStart >= s.facility.OpenTime && slotEnd <= s.facility.CloseTime
	}
	if !withinHours {
		return false, ReasonClosedTime
	}

	// Strict comparison: a slot starting exactly at now+lead is allowed.
	if start.Before(s.requestTime.Add(s.leadTime)) {
		return false, ReasonLeadTimeRestriction
	}

	return true, ""
}

// countActiveConflicts scans the facility's conflict-creating orders and
// counts those occupying the (date, slot) pair.
func (s *Service) countActiveConflicts(ctx context.Context, date time.Time, slot TimeOfDay, excludeOrderID int64) (int, error) {
	candidates, err := s.orders.ListConflictCandidates(ctx, s.facility.ID, excludeOrderID)
	if err != nil {
		return 0, err
	}
	count := 0
	for i := range candidates {
		if candidates[i].ActiveAt(date, slot) {
			count++
		}
	}
	return count, nil
}

// CheckSlot decides availability for a single slot start. It always returns a
// structured Result; data-source failures are folded into ReasonUnknownError
// rather than surfaced as errors, so callers building bulk responses never
// see a partial failure. capacityNeeded below 1 is treated as 1. Pass a
// non-zero excludeOrderID to re-validate an order against all others.
func (s *Service) CheckSlot(ctx context.Context, start time.Time, capacityNeeded int, excludeOrderID int64) Result {
	if capacityNeeded < 1 {
		capacityNeeded = 1
	}
	baseMax := s.baseMaxCapacity()

	operational, reason := s.isOperationalAt(start)
	if !operational {
		return Result{Reason: reason, MaxCapacity: baseMax}
	}

	slot := TimeOfDay(start.Hour()*60 + start.Minute())
	booked, err := s.countActiveConflicts(ctx, start, slot, excludeOrderID)
	if err != nil {
		log.Ctx(ctx).Error().
			Err(err).
			Int64("facility_id", s.facility.ID).
			Time("slot_start", start).
			Msg("Availability check failed to count conflicts")
		return Result{Reason: ReasonUnknownError, MaxCapacity: baseMax, ErrorMessage: err.Error()}
	}

	switch s.facility.BookingType {
	case BookingExclusive:
		if booked >= 1 {
			return Result{
				Reason:      ReasonFullyBookedExclusive,
				BookedCount: booked,
				MaxCapacity: baseMax,
			}
		}
	case BookingOverlapping:
		if baseMax == 0 {
			return Result{
				Reason:      ReasonMisconfiguredCapacity,
				BookedCount: booked,
			}
		}
		if booked+capacityNeeded > baseMax {
			return Result{
				Reason:         ReasonMaxCapacityReached,
				BookedCount:    booked,
				AvailableSpots: max(0, baseMax-booked),
				MaxCapacity:    baseMax,
			}
		}
	}

	spots := max(0, baseMax-booked)
	if s.facility.BookingType == BookingExclusive && booked == 0 {
		spots = 1
	}
	return Result{
		Available:      true,
		Reason:         ReasonAvailable,
		BookedCount:    booked,
		AvailableSpots: spots,
		MaxCapacity:    baseMax,
	}
}
