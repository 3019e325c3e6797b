package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "bakery"

var (
	OrdersPlaced = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "orders_placed_total", Help: "Orders placed by order type"},
		[]string{"order_type"},
	)
	OrderTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "order_transitions_total", Help: "Successful order status transitions"},
		[]string{"from", "to"},
	)
	PaymentVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "payment_verifications_total", Help: "Payment verifications by source and outcome"},
		[]string{"source", "result"},
	)
	GatewayLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{Namespace: namespace, Name: "gateway_request_seconds", Help: "Payment gateway call latency"},
		[]string{"provider", "result"},
	)
	LocationReports = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "driver_location_reports_total", Help: "Driver location reports"},
		[]string{"result"},
	)
	DriversAvailable = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "drivers_available", Help: "Drivers that marked themselves available"})
	Notifications    = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "notifications_total", Help: "Notification dispatch attempts"},
		[]string{"channel", "result"},
	)
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "events_published_total", Help: "Events written to Kafka"},
		[]string{"topic", "result"},
	)
	KitchenClients = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "kitchen_ws_clients", Help: "Connected kitchen display clients"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
