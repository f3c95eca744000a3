package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradetalents_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tradetalents_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	UsersRegistered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tradetalents_users_registered_total",
			Help: "Total users registered",
		},
	)

	SessionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tradetalents_sessions_created_total",
			Help: "Total tutoring sessions created",
		},
	)

	SessionsJoined = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tradetalents_sessions_joined_total",
			Help: "Total session enrollments",
		},
	)

	CreditsSpent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tradetalents_credits_spent_total",
			Help: "Total credits spent on session enrollments",
		},
	)

	// Relay metrics
	RelayConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tradetalents_relay_connections",
			Help: "Currently connected relay clients",
		},
	)

	RelayRooms = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tradetalents_relay_rooms",
			Help: "Rooms with at least one member",
		},
	)

	MessagesRelayed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tradetalents_messages_relayed_total",
			Help: "Total chat messages fanned out",
		},
	)

	CalendarBroadcasts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tradetalents_calendar_broadcasts_total",
			Help: "Total global calendar-updated broadcasts",
		},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradetalents_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)
)
