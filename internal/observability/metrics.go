package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the copilot engine.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	ActiveSessions   prometheus.Gauge
	SessionEvents    *prometheus.CounterVec
	WSMessages       *prometheus.CounterVec
	GatewayRequests  *prometheus.CounterVec
	GatewayLatency   *prometheus.HistogramVec
	CacheLookups     *prometheus.CounterVec
	CacheEvictions   *prometheus.CounterVec
	PlaybackOutcomes *prometheus.CounterVec
	Turns            *prometheus.CounterVec
	DashboardLoads   *prometheus.CounterVec
	RecordingEvents  *prometheus.CounterVec

	stages *stageWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of active console conversation sessions.",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session events by type.",
		}, []string{"event"}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		GatewayRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_requests_total",
			Help:      "Backend requests by route and outcome class.",
		}, []string{"route", "class"}),
		GatewayLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_request_latency_ms",
			Help:      "Backend request latency in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		}, []string{"route"}),
		CacheLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Response cache lookups by namespace and result.",
		}, []string{"namespace", "result"}),
		CacheEvictions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_evictions_total",
			Help:      "Response cache entries removed by prefix.",
		}, []string{"prefix"}),
		PlaybackOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_outcomes_total",
			Help:      "Speech playback tasks by terminal outcome.",
		}, []string{"outcome"}),
		Turns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversation_turns_total",
			Help:      "Conversation turns by language and result.",
		}, []string{"language", "result"}),
		DashboardLoads: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dashboard_loads_total",
			Help:      "Dashboard fetches by screen, call and outcome.",
		}, []string{"screen", "call", "outcome"}),
		RecordingEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recording_events_total",
			Help:      "Microphone capture transitions by event.",
		}, []string{"event"}),
		stages: newStageWindow(256),
	}
}

func (m *Metrics) ObserveGatewayRequest(route, class string, d time.Duration) {
	if m == nil {
		return
	}
	m.GatewayRequests.WithLabelValues(route, class).Inc()
	m.GatewayLatency.WithLabelValues(route).Observe(float64(d.Milliseconds()))
}

func (m *Metrics) ObserveCacheLookup(namespace string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(namespace, result).Inc()
}

func (m *Metrics) ObserveCacheEviction(prefix string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.CacheEvictions.WithLabelValues(prefix).Add(float64(n))
}

func (m *Metrics) ObservePlayback(outcome string) {
	if m == nil {
		return
	}
	m.PlaybackOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveTurn(language, result string) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(language, result).Inc()
}

func (m *Metrics) ObserveDashboard(screen, call, outcome string) {
	if m == nil {
		return
	}
	m.DashboardLoads.WithLabelValues(screen, call, outcome).Inc()
}

func (m *Metrics) ObserveRecording(event string) {
	if m == nil {
		return
	}
	m.RecordingEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) ObserveSessionEvent(event string) {
	if m == nil {
		return
	}
	m.SessionEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

func (m *Metrics) ObserveWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// ObserveStage records one latency sample for the rolling stage window.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stages.observe(stage, float64(d.Microseconds())/1000)
}

// ObserveIndicator counts a notable event, such as a rejected overlapping turn.
func (m *Metrics) ObserveIndicator(name string) {
	if m == nil {
		return
	}
	m.stages.count(name)
}

func (m *Metrics) SnapshotStages() StageSnapshot {
	if m == nil {
		return StageSnapshot{GeneratedAt: time.Now().UTC()}
	}
	return m.stages.snapshot()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
