// Package metrics exposes prometheus collectors for the booking backend.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unisport_http_requests_total",
			Help: "HTTP requests by route pattern and status code",
		},
		[]string{"route", "status"},
	)

	AvailabilityChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unisport_availability_checks_total",
			Help: "Slot availability checks by outcome reason",
		},
		[]string{"reason"},
	)

	OrdersCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unisport_orders_created_total",
			Help: "Orders admitted by order type",
		},
		[]string{"order_type"},
	)

	OrdersRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unisport_orders_rejected_total",
			Help: "Orders rejected at admission by conflict reason",
		},
		[]string{"reason"},
	)

	OrdersConfirmed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "unisport_orders_confirmed_total",
			Help: "Orders confirmed after payment",
		},
	)

	OrdersExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "unisport_orders_expired_total",
			Help: "Pending-payment orders expired by the cleanup job",
		},
	)
)
