package booking

import (
	"context"
	"time"
)

// MatrixSlot is the per-slot summary inside the weekly subscription matrix.
type MatrixSlot struct {
	Available      bool   `json:"is_available_for_subscription"`
	AvailableSpots int    `json:"available_spots_for_subscription"`
	ReasonKey      Reason `json:"reason_key"`
}

// WeeklyMatrix is keyed by Monday-based weekday index, then by "HH:MM" slot
// start. Closed weekdays map to empty slot maps.
type WeeklyMatrix map[Weekday]map[string]MatrixSlot

// DaySlot is one hourly slot in a single-day availability listing.
type DaySlot struct {
	Time           string `json:"time"`
	Available      bool   `json:"is_available"`
	BookedCount    int    `json:"booked_count"`
	MaxCapacity    int    `json:"max_capacity"`
	AvailableSpots int    `json:"available_spots"`
	Reason         Reason `json:"reason"`
}

// lastSlotStart resolves the latest slot start within operating hours.
func lastSlotStart(f Facility) TimeOfDay {
	if f.CloseTime == Midnight {
		return TimeOfDay(minutesPerDay) - TimeOfDay(SlotDuration/time.Minute)
	}
	last := f.CloseTime - TimeOfDay(SlotDuration/time.Minute)
	if last < f.OpenTime {
		last = f.OpenTime
	}
	return last
}

// BuildWeeklyMatrix evaluates every working day and every hourly slot within
// operating hours for one representative week, answering "is this weekday at
// this time generally bookable going forward" rather than naming specific
// dates. The representative week starts on the Monday falling on or after
// the pinned request date, so every probed slot lies in the future.
func (s *Service) BuildWeeklyMatrix(ctx context.Context) WeeklyMatrix {
	matrix := make(WeeklyMatrix, 7)

	today := DateOnly(s.requestTime)
	baseMonday := today.AddDate(0, 0, (7-int(WeekdayOf(today)))%7)

	for day := Weekday(0); day < 7; day++ {
		slots := make(map[string]MatrixSlot)
		matrix[day] = slots
		if !s.facility.WorkingDays.Contains(day) {
			continue
		}

		refDate := baseMonday.AddDate(0, 0, int(day))
		last := lastSlotStart(s.facility)
		for slot := s.facility.OpenTime; slot <= last; slot = slot + TimeOfDay(SlotDuration/time.Minute) {
			result := s.CheckSlot(ctx, slot.At(refDate), 1, 0)
			slots[slot.String()] = MatrixSlot{
				Available:      result.Available,
				AvailableSpots: result.AvailableSpots,
				ReasonKey:      result.Reason,
			}
		}
	}
	return matrix
}

// ListDaySlots evaluates every hourly slot within operating hours for one
// calendar date. Callers are expected to reject entry-fee facilities and
// non-working days before asking for a slot listing.
func (s *Service) ListDaySlots(ctx context.Context, date time.Time) []DaySlot {
	var out []DaySlot
	last := lastSlotStart(s.facility)
	for slot := s.facility.OpenTime; slot <= last; slot = slot + TimeOfDay(SlotDuration/time.Minute) {
		result := s.CheckSlot(ctx, slot.At(date), 1, 0)
		out = append(out, DaySlot{
			Time:           slot.String(),
			Available:      result.Available,
			BookedCount:    result.BookedCount,
			MaxCapacity:    result.MaxCapacity,
			AvailableSpots: result.AvailableSpots,
			Reason:         result.Reason,
		})
	}
	return out
}
