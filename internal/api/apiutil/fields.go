package apiutil

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/unisport/booking/internal/booking"
)

const dateLayout = "2006-01-02"

func ParsePositiveInt64Field(raw string, field string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("%s is required", field)
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0", field)
	}
	return value, nil
}

// FacilityIDFromPath parses the {id} path segment as a facility ID.
func FacilityIDFromPath(r *http.Request) (int64, error) {
	return ParsePositiveInt64Field(r.PathValue("id"), "facility id")
}

// ParseDateField parses a required YYYY-MM-DD value. The date is resolved in
// the server's timezone so past-date and lead-time comparisons against the
// local clock stay consistent.
func ParseDateField(raw string, field string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%s is required", field)
	}
	parsed, err := time.ParseInLocation(dateLayout, raw, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be a valid date (YYYY-MM-DD)", field)
	}
	return parsed, nil
}

// ParseTimesField parses a list of HH:MM slot starts into sorted,
// de-duplicated times of day.
func ParseTimesField(raw []string, field string) ([]booking.TimeOfDay, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%s is required", field)
	}
	return booking.ParseTimesOfDay(strings.Join(raw, ","))
}

// ParseWeekdaysField parses weekday indices (Monday = 0) into a set.
func ParseWeekdaysField(raw []int, field string) (booking.WeekdaySet, error) {
	if len(raw) == 0 {
		return 0, fmt.Errorf("%s is required", field)
	}
	for _, day := range raw {
		if day < 0 || day > 6 {
			return 0, fmt.Errorf("%s must contain values 0 (Monday) through 6 (Sunday)", field)
		}
	}
	return booking.NewWeekdaySet(raw...), nil
}
