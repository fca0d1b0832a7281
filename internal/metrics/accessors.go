package metrics

import "github.com/prometheus/client_golang/prometheus"

// Emulated session metrics - exported for use by wseb and emulation packages
var (
	SessionsActive         prometheus.Gauge
	SessionsOpenedTotal    prometheus.Counter
	SessionsClosedTotal    *prometheus.CounterVec
	WriterAttachTotal      *prometheus.CounterVec
	WritersSupersededTotal prometheus.Counter
	ReconnectsTotal        prometheus.Counter
	TimeoutClosesTotal     prometheus.Counter
	FramesWrittenTotal     *prometheus.CounterVec
	FramesReceivedTotal    *prometheus.CounterVec
)

// Inactivity tracker metrics
var (
	InactivityPingsTotal  prometheus.Counter
	InactivityClosesTotal prometheus.Counter
)

// Native WebSocket metrics
var (
	WebsocketConnections prometheus.Gauge
)

// Middleware metrics - exported for use by middleware package
var (
	CreateRateLimited prometheus.Counter
	HTTPRequestsTotal *prometheus.CounterVec
)
