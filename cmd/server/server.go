// cmd/server/server.go
package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/unisport/booking/internal/api"
	"github.com/unisport/booking/internal/api/checkin"
	"github.com/unisport/booking/internal/api/facilities"
	"github.com/unisport/booking/internal/api/orders"
	"github.com/unisport/booking/internal/config"
	"github.com/unisport/booking/internal/db"
)

func newServer(cfg *config.Config, database *db.DB) *http.Server {
	leadTime := time.Duration(cfg.Booking.LeadTimeMinutes) * time.Minute
	facilities.InitHandlers(database, leadTime)
	orders.InitHandlers(database, leadTime)
	checkin.InitHandlers(database)

	router := http.NewServeMux()
	registerRoutes(router, cfg)

	// Setup middleware chain
	handler := api.ChainMiddleware(
		router,
		api.WithLogging,
		api.WithMetrics,
		api.WithRecovery,
		api.WithRequestID,
	)

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func registerRoutes(mux *http.ServeMux, cfg *config.Config) {
	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	if cfg.Features.EnableMetrics {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	// Facility routes
	mux.HandleFunc("GET /api/v1/facilities", facilities.HandleFacilityList)
	mux.HandleFunc("GET /api/v1/facilities/{id}", facilities.HandleFacilityDetail)
	mux.HandleFunc("GET /api/v1/facilities/{id}/availability", facilities.HandleFacilityAvailability)
	mux.HandleFunc("GET /api/v1/facilities/{id}/subscription-availability", facilities.HandleSubscriptionAvailability)

	// Order routes
	mux.HandleFunc("POST /api/v1/orders", orders.HandleOrderCreate)
	mux.HandleFunc("GET /api/v1/orders/{code}", orders.HandleOrderGet)
	mux.HandleFunc("POST /api/v1/orders/{code}/confirm", orders.HandleOrderConfirm)
	mux.HandleFunc("POST /api/v1/orders/{code}/cancel", orders.HandleOrderCancel)

	// Check-in routes
	mux.HandleFunc("POST /api/v1/checkin", checkin.HandleCheckin)
}
