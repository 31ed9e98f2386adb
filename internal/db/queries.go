// internal/db/queries.go
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/unisport/booking/internal/booking"
)

// ErrNotFound is returned when a facility or order does not exist.
var ErrNotFound = errors.New("db: not found")

const (
	dateLayout      = "2006-01-02"
	timestampLayout = "2006-01-02 15:04:05"
)

// DBTX is satisfied by *sql.DB and *sql.Tx so queries run inside or outside
// a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Queries struct {
	db DBTX
}

func NewQueries(db DBTX) *Queries {
	return &Queries{db: db}
}

const facilityColumns = `id, name, sport, booking_type, max_capacity, open_time, close_time, working_days, price_per_hour, is_active`

func scanFacility(row interface{ Scan(...any) error }) (booking.Facility, error) {
	var (
		f           booking.Facility
		maxCapacity sql.NullInt64
		openTime    string
		closeTime   string
		workingDays string
		bookingType string
	)
	err := row.Scan(&f.ID, &f.Name, &f.Sport, &bookingType, &maxCapacity, &openTime, &closeTime, &workingDays, &f.PricePerHour, &f.IsActive)
	if err != nil {
		return booking.Facility{}, err
	}

	f.BookingType = booking.BookingType(bookingType)
	if !f.BookingType.Valid() {
		return booking.Facility{}, fmt.Errorf("facility %d: invalid booking type %q", f.ID, bookingType)
	}
	if maxCapacity.Valid {
		f.MaxCapacity = maxCapacity.Int64
	}
	if f.OpenTime, err = booking.ParseTimeOfDay(openTime); err != nil {
		return booking.Facility{}, fmt.Errorf("facility %d: %w", f.ID, err)
	}
	if f.CloseTime, err = booking.ParseTimeOfDay(closeTime); err != nil {
		return booking.Facility{}, fmt.Errorf("facility %d: %w", f.ID, err)
	}
	if f.WorkingDays, err = booking.ParseWeekdaySet(workingDays); err != nil {
		return booking.Facility{}, fmt.Errorf("facility %d: %w", f.ID, err)
	}
	return f, nil
}

// GetFacility loads one facility by ID.
func (q *Queries) GetFacility(ctx context.Context, id int64) (booking.Facility, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+facilityColumns+` FROM facilities WHERE id = ?`, id)
	facility, err := scanFacility(row)
	if errors.Is(err, sql.ErrNoRows) {
		return booking.Facility{}, ErrNotFound
	}
	if err != nil {
		return booking.Facility{}, fmt.Errorf("get facility %d: %w", id, err)
	}
	return facility, nil
}

// ListActiveFacilities lists facilities open for booking, ordered by name.
func (q *Queries) ListActiveFacilities(ctx context.Context) ([]booking.Facility, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+facilityColumns+` FROM facilities WHERE is_active = 1 ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list facilities: %w", err)
	}
	defer rows.Close()

	var out []booking.Facility
	for rows.Next() {
		facility, err := scanFacility(rows)
		if err != nil {
			return nil, fmt.Errorf("list facilities: %w", err)
		}
		out = append(out, facility)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list facilities: %w", err)
	}
	return out, nil
}

// CreateFacility inserts a facility and returns its ID.
func (q *Queries) CreateFacility(ctx context.Context, f booking.Facility) (int64, error) {
	var maxCapacity any
	if f.BookingType == booking.BookingOverlapping && f.MaxCapacity > 0 {
		maxCapacity = f.MaxCapacity
	}
	result, err := q.db.ExecContext(ctx,
		`INSERT INTO facilities (name, sport, booking_type, max_capacity, open_time, close_time, working_days, price_per_hour, is_active)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.Name, f.Sport, string(f.BookingType), maxCapacity,
		f.OpenTime.String(), f.CloseTime.String(), f.WorkingDays.String(),
		f.PricePerHour, f.IsActive,
	)
	if err != nil {
		return 0, fmt.Errorf("create facility: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create facility: %w", err)
	}
	return id, nil
}

const orderColumns = `id, order_code, facility_id, order_type, status, total_price,
	booking_date, slots, subscription_start_date, subscription_end_date,
	days_of_week, subscription_times, duration_per_slot_hours, created_at, updated_at`

func scanOrder(row interface{ Scan(...any) error }) (booking.Order, error) {
	var (
		o            booking.Order
		orderType    string
		status       string
		bookingDate  sql.NullString
		slots        sql.NullString
		subStart     sql.NullString
		subEnd       sql.NullString
		daysOfWeek   sql.NullString
		subTimes     sql.NullString
		slotDuration sql.NullInt64
	)
	err := row.Scan(&o.ID, &o.Code, &o.FacilityID, &orderType, &status, &o.TotalPrice,
		&bookingDate, &slots, &subStart, &subEnd, &daysOfWeek, &subTimes, &slotDuration,
		&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return booking.Order{}, err
	}

	o.Type = booking.OrderType(orderType)
	if !o.Type.Valid() {
		return booking.Order{}, fmt.Errorf("order %d: invalid order type %q", o.ID, orderType)
	}
	o.Status = booking.OrderStatus(status)

	parseDate := func(v sql.NullString, dst *time.Time, field string) error {
		if !v.Valid || v.String == "" {
			return nil
		}
		parsed, err := time.Parse(dateLayout, v.String)
		if err != nil {
			return fmt.Errorf("order %d: invalid %s %q", o.ID, field, v.String)
		}
		*dst = parsed
		return nil
	}
	if err := parseDate(bookingDate, &o.BookingDate, "booking_date"); err != nil {
		return booking.Order{}, err
	}
	if err := parseDate(subStart, &o.SubscriptionStart, "subscription_start_date"); err != nil {
		return booking.Order{}, err
	}
	if err := parseDate(subEnd, &o.SubscriptionEnd, "subscription_end_date"); err != nil {
		return booking.Order{}, err
	}

	if slots.Valid && slots.String != "" {
		if o.Slots, err = booking.ParseTimesOfDay(slots.String); err != nil {
			return booking.Order{}, fmt.Errorf("order %d: %w", o.ID, err)
		}
	}
	if subTimes.Valid && subTimes.String != "" {
		if o.SubscriptionTimes, err = booking.ParseTimesOfDay(subTimes.String); err != nil {
			return booking.Order{}, fmt.Errorf("order %d: %w", o.ID, err)
		}
	}
	if daysOfWeek.Valid && daysOfWeek.String != "" {
		if o.SubscriptionDays, err = booking.ParseWeekdaySet(daysOfWeek.String); err != nil {
			return booking.Order{}, fmt.Errorf("order %d: %w", o.ID, err)
		}
	}
	if slotDuration.Valid {
		o.SlotDurationHours = int(slotDuration.Int64)
	}
	return o, nil
}

func nullDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Format(dateLayout)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// CreateOrder inserts an order and fills in its generated ID.
func (q *Queries) CreateOrder(ctx context.Context, o *booking.Order) error {
	if o.SlotDurationHours <= 0 {
		o.SlotDurationHours = 1
	}
	result, err := q.db.ExecContext(ctx,
		`INSERT INTO orders (order_code, facility_id, order_type, status, total_price,
		     booking_date, slots, subscription_start_date, subscription_end_date,
		     days_of_week, subscription_times, duration_per_slot_hours)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.Code, o.FacilityID, string(o.Type), string(o.Status), o.TotalPrice,
		nullDate(o.BookingDate), nullString(booking.FormatTimes(o.Slots)),
		nullDate(o.SubscriptionStart), nullDate(o.SubscriptionEnd),
		nullString(o.SubscriptionDays.String()), nullString(booking.FormatTimes(o.SubscriptionTimes)),
		o.SlotDurationHours,
	)
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	o.ID = id
	return nil
}

// GetOrderByCode loads one order by its public code.
func (q *Queries) GetOrderByCode(ctx context.Context, code string) (booking.Order, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE order_code = ?`, code)
	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return booking.Order{}, ErrNotFound
	}
	if err != nil {
		return booking.Order{}, fmt.Errorf("get order %s: %w", code, err)
	}
	return order, nil
}

// UpdateOrderStatus transitions an order's status.
func (q *Queries) UpdateOrderStatus(ctx context.Context, id int64, status booking.OrderStatus) error {
	result, err := q.db.ExecContext(ctx,
		`UPDATE orders SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		string(status), id)
	if err != nil {
		return fmt.Errorf("update order %d status: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update order %d status: %w", id, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListConflictCandidates returns the facility's orders in conflict-creating
// statuses, excluding the order with excludeOrderID when non-zero. It
// satisfies booking.OrderSource.
func (q *Queries) ListConflictCandidates(ctx context.Context, facilityID, excludeOrderID int64) ([]booking.Order, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE facility_id = ?
		   AND status IN (?, ?)
		   AND (? = 0 OR id != ?)
		 ORDER BY id`,
		facilityID,
		string(booking.StatusPendingPayment), string(booking.StatusConfirmed),
		excludeOrderID, excludeOrderID,
	)
	if err != nil {
		return nil, fmt.Errorf("list conflict candidates: %w", err)
	}
	defer rows.Close()

	var out []booking.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("list conflict candidates: %w", err)
		}
		out = append(out, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list conflict candidates: %w", err)
	}
	return out, nil
}

// ExpirePendingOrders marks pending-payment orders created before cutoff as
// expired and returns how many were transitioned.
func (q *Queries) ExpirePendingOrders(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := q.db.ExecContext(ctx,
		`UPDATE orders SET status = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE status = ? AND created_at < ?`,
		string(booking.StatusExpiredAwaitingPayment),
		string(booking.StatusPendingPayment),
		cutoff.UTC().Format(timestampLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("expire pending orders: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expire pending orders: %w", err)
	}
	return affected, nil
}
