package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dm_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dm_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dm_messages_sent_total",
			Help: "Messages persisted, by type",
		},
		[]string{"type"},
	)

	MessagesCensored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dm_messages_censored_total",
			Help: "Messages altered by moderation, by detected language",
		},
		[]string{"lang"},
	)

	MessagesRead = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dm_messages_read_total",
			Help: "Unread to read transitions, by entry point",
		},
		[]string{"source"},
	)

	SearchQueries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dm_search_queries_total",
			Help: "Total message searches",
		},
	)

	// Live connection metrics
	SocketEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dm_socket_events_total",
			Help: "Events received from live connections",
		},
		[]string{"event"},
	)

	SocketErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dm_socket_errors_total",
			Help: "Error events sent back to live connections",
		},
		[]string{"code"},
	)

	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dm_connections_active",
			Help: "Open live connections",
		},
	)

	OnlineUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dm_users_online",
			Help: "Users with at least one open connection",
		},
	)

	DeliveriesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dm_deliveries_dropped_total",
			Help: "Outbound frames dropped because a connection was slow or gone",
		},
	)

	ChannelLength = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dm_channel_length",
			Help: "Items waiting in an internal channel",
		},
		[]string{"channel"},
	)

	ChannelCapacity = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dm_channel_capacity",
			Help: "Capacity of an internal channel",
		},
		[]string{"channel"},
	)

	// Process metrics
	ProcessRSSBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dm_process_rss_bytes",
			Help: "Resident memory of the server process",
		},
	)

	ProcessCPUPercent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dm_process_cpu_percent",
			Help: "CPU usage of the server process",
		},
	)
)
