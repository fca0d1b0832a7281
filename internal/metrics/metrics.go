package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const defaultMetricsNamespace = "wsgate"

// Config contains metrics configuration.
type Config struct {
	// Namespace is the prometheus namespace for all metrics. If empty, defaults to "wsgate".
	Namespace string
	// ConstLabels are labels that will be added to all metrics as constant labels.
	ConstLabels map[string]string
	// Registerer is the prometheus registerer to use. If nil, prometheus.DefaultRegisterer is used.
	Registerer prometheus.Registerer
}

// Registry holds all gateway metrics.
type Registry struct {
	config Config

	// Emulated session metrics
	sessionsActive       prometheus.Gauge
	sessionsOpenedTotal  prometheus.Counter
	sessionsClosedTotal  *prometheus.CounterVec
	writerAttachTotal    *prometheus.CounterVec
	writersSuperseded    prometheus.Counter
	reconnectsTotal      prometheus.Counter
	timeoutClosesTotal   prometheus.Counter
	framesWrittenTotal   *prometheus.CounterVec
	framesReceivedTotal  *prometheus.CounterVec
	inactivityPingsTotal prometheus.Counter
	inactivityCloses     prometheus.Counter

	// Native WebSocket metrics
	websocketConnections prometheus.Gauge

	// Middleware metrics
	createRateLimited prometheus.Counter
	httpRequestsTotal *prometheus.CounterVec
}

func init() {
	// Metrics must be usable before Init is called (e.g. in tests), so populate
	// them using a private registry first.
	_ = Init(Config{Registerer: prometheus.NewRegistry()})
}

// Init initializes the metrics registry with the provided configuration.
// It creates all metrics and registers them with the provided registerer.
// If registerer is nil, prometheus.DefaultRegisterer is used.
// Returns an error if metric registration fails.
func Init(cfg Config) error {
	reg, err := newRegistry(cfg)
	if err != nil {
		return err
	}

	SessionsActive = reg.sessionsActive
	SessionsOpenedTotal = reg.sessionsOpenedTotal
	SessionsClosedTotal = reg.sessionsClosedTotal
	WriterAttachTotal = reg.writerAttachTotal
	WritersSupersededTotal = reg.writersSuperseded
	ReconnectsTotal = reg.reconnectsTotal
	TimeoutClosesTotal = reg.timeoutClosesTotal
	FramesWrittenTotal = reg.framesWrittenTotal
	FramesReceivedTotal = reg.framesReceivedTotal
	InactivityPingsTotal = reg.inactivityPingsTotal
	InactivityClosesTotal = reg.inactivityCloses

	WebsocketConnections = reg.websocketConnections

	CreateRateLimited = reg.createRateLimited
	HTTPRequestsTotal = reg.httpRequestsTotal

	return nil
}

func newRegistry(cfg Config) (*Registry, error) {
	registerer := cfg.Registerer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	metricsNamespace := cfg.Namespace
	if metricsNamespace == "" {
		metricsNamespace = defaultMetricsNamespace
	}

	constLabels := prometheus.Labels(cfg.ConstLabels)

	m := &Registry{
		config: cfg,
	}

	m.sessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   metricsNamespace,
		Subsystem:   "emulation",
		Name:        "sessions_active",
		Help:        "Number of active emulated sessions.",
		ConstLabels: constLabels,
	})

	m.sessionsOpenedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   metricsNamespace,
		Subsystem:   "emulation",
		Name:        "sessions_opened_total",
		Help:        "Total number of created emulated sessions.",
		ConstLabels: constLabels,
	})

	m.sessionsClosedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   metricsNamespace,
		Subsystem:   "emulation",
		Name:        "sessions_closed_total",
		Help:        "Total number of closed emulated sessions.",
		ConstLabels: constLabels,
	}, []string{"mode"})

	m.writerAttachTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   metricsNamespace,
		Subsystem:   "emulation",
		Name:        "writer_attach_total",
		Help:        "Number of downstream connection attach attempts by result.",
		ConstLabels: constLabels,
	}, []string{"result"})

	m.writersSuperseded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   metricsNamespace,
		Subsystem:   "emulation",
		Name:        "writers_superseded_total",
		Help:        "Number of pending downstream connections closed because a newer one arrived.",
		ConstLabels: constLabels,
	})

	m.reconnectsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   metricsNamespace,
		Subsystem:   "emulation",
		Name:        "reconnects_total",
		Help:        "Number of downstream connection switches.",
		ConstLabels: constLabels,
	})

	m.timeoutClosesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   metricsNamespace,
		Subsystem:   "emulation",
		Name:        "timeout_closes_total",
		Help:        "Number of sessions closed because no downstream connection arrived in time.",
		ConstLabels: constLabels,
	})

	m.framesWrittenTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   metricsNamespace,
		Subsystem:   "emulation",
		Name:        "frames_written_total",
		Help:        "Number of frames written to downstream connections.",
		ConstLabels: constLabels,
	}, []string{"type"})

	m.framesReceivedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   metricsNamespace,
		Subsystem:   "emulation",
		Name:        "frames_received_total",
		Help:        "Number of frames received from upstream connections.",
		ConstLabels: constLabels,
	}, []string{"type"})

	m.inactivityPingsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   metricsNamespace,
		Subsystem:   "inactivity",
		Name:        "pings_total",
		Help:        "Number of keepalive pings issued to idle sessions.",
		ConstLabels: constLabels,
	})

	m.inactivityCloses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   metricsNamespace,
		Subsystem:   "inactivity",
		Name:        "closes_total",
		Help:        "Number of sessions closed due to client inactivity.",
		ConstLabels: constLabels,
	})

	m.websocketConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   metricsNamespace,
		Subsystem:   "websocket",
		Name:        "connections_active",
		Help:        "Number of active native WebSocket connections.",
		ConstLabels: constLabels,
	})

	m.createRateLimited = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   metricsNamespace,
		Subsystem:   "node",
		Name:        "session_create_rate_limited_total",
		Help:        "Number of refused session create requests due to rate limit.",
		ConstLabels: constLabels,
	})

	m.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Subsystem:   "node",
			Name:        "incoming_http_requests_total",
			Help:        "Number of incoming HTTP requests",
			ConstLabels: constLabels,
		},
		[]string{"path", "method", "status"},
	)

	// Register all metrics
	var alreadyRegistered prometheus.AlreadyRegisteredError

	collectors := []prometheus.Collector{
		m.sessionsActive,
		m.sessionsOpenedTotal,
		m.sessionsClosedTotal,
		m.writerAttachTotal,
		m.writersSuperseded,
		m.reconnectsTotal,
		m.timeoutClosesTotal,
		m.framesWrittenTotal,
		m.framesReceivedTotal,
		m.inactivityPingsTotal,
		m.inactivityCloses,
		m.websocketConnections,
		m.createRateLimited,
		m.httpRequestsTotal,
	}

	for _, collector := range collectors {
		err := registerer.Register(collector)
		if err != nil {
			// Ignore if already registered (allows re-initialization in tests)
			if !errors.As(err, &alreadyRegistered) {
				return nil, err
			}
		}
	}

	return m, nil
}
