package booking

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SubscriptionEndDate resolves the inclusive end date of a subscription
// starting at start and running for the given number of months.
func SubscriptionEndDate(start time.Time, months int) time.Time {
	return DateOnly(start).AddDate(0, months, -1)
}

// CountOccurrences counts the calendar dates in [start, end] whose weekday is
// in days.
func CountOccurrences(start, end time.Time, days WeekdaySet) int {
	count := 0
	last := DateOnly(end)
	for date := DateOnly(start); !date.After(last); date = date.AddDate(0, 0, 1) {
		if days.Contains(WeekdayOf(date)) {
			count++
		}
	}
	return count
}

// SubscriptionPrice prices a subscription as occurrences x times x the
// facility's hourly price.
func (f Facility) SubscriptionPrice(start, end time.Time, days WeekdaySet, times []TimeOfDay) int64 {
	return int64(CountOccurrences(start, end, days)) * int64(len(times)) * f.PricePerHour
}

// SlotBookingPrice prices a single-day booking of n hourly slots.
func (f Facility) SlotBookingPrice(n int) int64 {
	return int64(n) * f.PricePerHour
}

// EntryFeePrice prices a whole-day entry pass.
func (f Facility) EntryFeePrice() int64 {
	return f.PricePerHour
}

// NewOrderCode generates an opaque order code: a type prefix, the anchor date
// of the order, and a random suffix. Uniqueness is enforced by the store.
func NewOrderCode(orderType OrderType, anchor time.Time) string {
	prefix := "ORD"
	switch orderType {
	case OrderEntryFee:
		prefix = "E"
	case OrderSlotBooking:
		prefix = "SB"
	case OrderSubscription:
		prefix = "S"
	}
	if anchor.IsZero() {
		anchor = time.Now()
	}
	suffix := strings.ToUpper(uuid.New().String()[:6])
	return fmt.Sprintf("%s-%s-%s", prefix, anchor.Format("060102"), suffix)
}
