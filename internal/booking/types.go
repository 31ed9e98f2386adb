// Package booking implements the facility availability and booking-conflict
// engine: operating-hours gating, lead-time restrictions, capacity counting
// and conflict checks for slot bookings, subscriptions and entry-fee visits.
package booking

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// BookingType describes how a facility admits reservations.
type BookingType string

const (
	// BookingExclusive allows at most one active reservation per slot.
	BookingExclusive BookingType = "exclusive"
	// BookingOverlapping allows up to MaxCapacity concurrent reservations per slot.
	BookingOverlapping BookingType = "overlapping"
	// BookingEntryFee is a whole-day pass with no time-slot granularity.
	BookingEntryFee BookingType = "entry_fee"
)

func (b BookingType) Valid() bool {
	switch b {
	case BookingExclusive, BookingOverlapping, BookingEntryFee:
		return true
	}
	return false
}

// OrderType tags the occupancy shape of an order.
type OrderType string

const (
	OrderEntryFee     OrderType = "entry_fee"
	OrderSlotBooking  OrderType = "slot_booking"
	OrderSubscription OrderType = "subscription"
)

func (o OrderType) Valid() bool {
	switch o {
	case OrderEntryFee, OrderSlotBooking, OrderSubscription:
		return true
	}
	return false
}

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	StatusPendingPayment         OrderStatus = "pending_payment"
	StatusConfirmed              OrderStatus = "confirmed"
	StatusCompleted              OrderStatus = "completed"
	StatusCancelledUser          OrderStatus = "cancelled_user"
	StatusCancelledAdmin         OrderStatus = "cancelled_admin"
	StatusPaymentFailed          OrderStatus = "payment_failed"
	StatusExpiredAwaitingPayment OrderStatus = "expired_awaiting_payment"
	StatusRefundInitiated        OrderStatus = "refund_initiated"
	StatusRefunded               OrderStatus = "refunded"
)

// CreatesConflict reports whether an order in this status occupies capacity.
// Pending orders hold their slots until payment resolves or they expire.
func (s OrderStatus) CreatesConflict() bool {
	return s == StatusPendingPayment || s == StatusConfirmed
}

// SlotDuration is the booking granularity used for operating-hours gating.
// Subscriptions carry their own per-slot duration for pricing, but
// availability is always evaluated on one-hour slots.
const SlotDuration = time.Hour

const minutesPerDay = 24 * 60

// TimeOfDay is a wall-clock time expressed as minutes since midnight.
// Midnight (zero) doubles as the "open until end of day" close-time sentinel.
type TimeOfDay int

// Midnight is the close-time sentinel meaning no upper bound on slot starts.
const Midnight TimeOfDay = 0

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parsed, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: expected HH:MM", s)
	}
	return TimeOfDay(parsed.Hour()*60 + parsed.Minute()), nil
}

// ParseTimesOfDay parses a comma-separated list of "HH:MM" values into a
// sorted, de-duplicated slice.
func ParseTimesOfDay(s string) ([]TimeOfDay, error) {
	var out []TimeOfDay
	seen := make(map[TimeOfDay]struct{})
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		t, err := ParseTimeOfDay(part)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

// String formats the time as "HH:MM", wrapping past midnight.
func (t TimeOfDay) String() string {
	m := (int(t)%minutesPerDay + minutesPerDay) % minutesPerDay
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// AddHours returns the time n hours later, wrapping past midnight.
func (t TimeOfDay) AddHours(n int) TimeOfDay {
	return TimeOfDay((int(t) + n*60) % minutesPerDay)
}

// At anchors the time of day onto a calendar date in date's location.
func (t TimeOfDay) At(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), t.Hour(), t.Minute(), 0, 0, date.Location())
}

// FormatTimes renders a slice of times as a comma-separated "HH:MM" list.
func FormatTimes(times []TimeOfDay) string {
	parts := make([]string, 0, len(times))
	for _, t := range times {
		parts = append(parts, t.String())
	}
	return strings.Join(parts, ",")
}

// Weekday is a weekday index with Monday = 0 through Sunday = 6.
type Weekday int

// WeekdayOf converts a calendar date to the Monday-based weekday index.
func WeekdayOf(date time.Time) Weekday {
	return Weekday((int(date.Weekday()) + 6) % 7)
}

// WeekdaySet is a bitmask over Monday-based weekday indices.
type WeekdaySet uint8

// ParseWeekdaySet parses a comma-separated list of indices 0-6.
func ParseWeekdaySet(s string) (WeekdaySet, error) {
	var set WeekdaySet
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		day, err := strconv.Atoi(part)
		if err != nil || day < 0 || day > 6 {
			return 0, fmt.Errorf("invalid weekday %q: expected 0 (Monday) through 6 (Sunday)", part)
		}
		set |= 1 << day
	}
	return set, nil
}

// NewWeekdaySet builds a set from weekday indices, ignoring out-of-range values.
func NewWeekdaySet(days ...int) WeekdaySet {
	var set WeekdaySet
	for _, day := range days {
		if day >= 0 && day <= 6 {
			set |= 1 << day
		}
	}
	return set
}

func (s WeekdaySet) Contains(day Weekday) bool {
	if day < 0 || day > 6 {
		return false
	}
	return s&(1<<day) != 0
}

func (s WeekdaySet) IsEmpty() bool { return s == 0 }

// Days returns the contained weekday indices in ascending order.
func (s WeekdaySet) Days() []int {
	var days []int
	for day := 0; day < 7; day++ {
		if s&(1<<day) != 0 {
			days = append(days, day)
		}
	}
	return days
}

// String renders the set in the stored "0,1,2" form.
func (s WeekdaySet) String() string {
	parts := make([]string, 0, 7)
	for _, day := range s.Days() {
		parts = append(parts, strconv.Itoa(day))
	}
	return strings.Join(parts, ",")
}

// Facility is the bookable resource as seen by the engine. The engine reads
// facilities, never mutates them.
type Facility struct {
	ID           int64
	Name         string
	Sport        string
	BookingType  BookingType
	MaxCapacity  int64 // required for overlapping facilities, zero otherwise
	OpenTime     TimeOfDay
	CloseTime    TimeOfDay // Midnight means open until end of day
	WorkingDays  WeekdaySet
	PricePerHour int64 // minor currency units
	IsActive     bool
}

// Order is a placed reservation with type-specific occupancy data.
type Order struct {
	ID         int64
	Code       string
	FacilityID int64
	Type       OrderType
	Status     OrderStatus
	TotalPrice int64

	// Slot bookings and entry-fee visits.
	BookingDate time.Time // date-only, zero when unused
	Slots       []TimeOfDay

	// Subscriptions.
	SubscriptionStart time.Time // date-only, inclusive
	SubscriptionEnd   time.Time // date-only, inclusive
	SubscriptionDays  WeekdaySet
	SubscriptionTimes []TimeOfDay
	SlotDurationHours int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SameDate reports whether two timestamps fall on the same calendar date.
func SameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// DateOnly truncates a timestamp to its calendar date at midnight.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func dateBetween(date, start, end time.Time) bool {
	d := DateOnly(date)
	return !d.Before(DateOnly(start)) && !d.After(DateOnly(end))
}

// ActiveAt reports whether the order occupies the (date, slot) pair for
// conflict purposes: its status must hold capacity and its occupancy data
// must cover the slot. Entry-fee orders occupy the whole day.
func (o *Order) ActiveAt(date time.Time, slot TimeOfDay) bool {
	if !o.Status.CreatesConflict() {
		return false
	}
	switch o.Type {
	case OrderSlotBooking:
		if o.BookingDate.IsZero() || !SameDate(o.BookingDate, date) {
			return false
		}
		for _, s := range o.Slots {
			if s == slot {
				return true
			}
		}
		return false
	case OrderSubscription:
		if o.SubscriptionStart.IsZero() || o.SubscriptionEnd.IsZero() {
			return false
		}
		if !dateBetween(date, o.SubscriptionStart, o.SubscriptionEnd) {
			return false
		}
		if !o.SubscriptionDays.Contains(WeekdayOf(date)) {
			return false
		}
		for _, s := range o.SubscriptionTimes {
			if s == slot {
				return true
			}
		}
		return false
	case OrderEntryFee:
		return !o.BookingDate.IsZero() && SameDate(o.BookingDate, date)
	}
	return false
}

// CoversDate reports whether the order grants access on the given date,
// regardless of slot. Used for check-in validation.
func (o *Order) CoversDate(date time.Time) bool {
	switch o.Type {
	case OrderSlotBooking, OrderEntryFee:
		return !o.BookingDate.IsZero() && SameDate(o.BookingDate, date)
	case OrderSubscription:
		if o.SubscriptionStart.IsZero() || o.SubscriptionEnd.IsZero() {
			return false
		}
		return dateBetween(date, o.SubscriptionStart, o.SubscriptionEnd) &&
			o.SubscriptionDays.Contains(WeekdayOf(date))
	}
	return false
}
