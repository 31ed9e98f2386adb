package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/unisport/booking/internal/db"
	"github.com/unisport/booking/internal/metrics"
)

const expiryJobTimeout = 2 * time.Minute

// RegisterExpiryJob schedules the pending-payment sweep: orders that sat in
// pending_payment longer than ttl are moved to expired_awaiting_payment so
// their slots stop counting against capacity.
func RegisterExpiryJob(database *db.DB, cronExpr string, ttl time.Duration) error {
	if database == nil {
		return fmt.Errorf("expiry job requires database")
	}
	if ttl <= 0 {
		return fmt.Errorf("expiry job requires a positive pending-payment TTL")
	}

	jobName := "expire_pending_orders"
	jobLogger := log.With().
		Str("component", "expire_pending_orders_job").
		Str("job_name", jobName).
		Str("cron", cronExpr).
		Logger()

	_, err := AddJob(jobName, cronExpr, func() {
		ctx, cancel := context.WithTimeout(context.Background(), expiryJobTimeout)
		defer cancel()
		ctx = jobLogger.WithContext(ctx)

		cutoff := time.Now().Add(-ttl)
		expired, err := database.Queries.ExpirePendingOrders(ctx, cutoff)
		if err != nil {
			jobLogger.Error().Err(err).Msg("Failed to expire pending orders")
			return
		}
		if expired > 0 {
			metrics.OrdersExpired.Add(float64(expired))
			jobLogger.Info().Int64("expired", expired).Msg("Expired pending orders")
		}
	})
	return err
}
