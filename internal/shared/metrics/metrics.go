package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry = prometheus.NewRegistry()

	analysisStartedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vendorsec_analysis_started_total",
		Help: "Total analyses started",
	})
	analysisCompletedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vendorsec_analysis_completed_total",
		Help: "Total analyses completed",
	})
	analysisFailedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vendorsec_analysis_failed_total",
		Help: "Total analyses failed by stage",
	}, []string{"stage"})
	analysisDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "vendorsec_analysis_duration_ms",
		Help:    "Analysis duration in milliseconds",
		Buckets: []float64{1000, 5000, 15000, 30000, 60000, 120000, 300000, 600000},
	})

	inferenceCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vendorsec_inference_calls_total",
		Help: "Inference calls by outcome",
	}, []string{"outcome"})

	eventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vendorsec_events_published_total",
		Help: "Events published per namespace",
	}, []string{"namespace"})
	eventsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vendorsec_events_dropped_total",
		Help: "Events dropped from full subscriber buffers",
	}, []string{"namespace"})
	subscribers = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vendorsec_event_subscribers",
		Help: "Live event subscribers per namespace",
	}, []string{"namespace"})

	chatMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vendorsec_chat_messages_total",
		Help: "Chat messages stored by role",
	}, []string{"role"})
	chatFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vendorsec_chat_generation_failed_total",
		Help: "Chat generations that ended in an error",
	})

	uploadedBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vendorsec_uploaded_bytes_total",
		Help: "Bytes accepted by the upload endpoint",
	})
	sessionsExpired = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vendorsec_sessions_expired_total",
		Help: "Sessions removed by the TTL sweeper",
	})
)

func init() {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		analysisStartedTotal,
		analysisCompletedTotal,
		analysisFailedTotal,
		analysisDuration,
		inferenceCalls,
		eventsPublished,
		eventsDropped,
		subscribers,
		chatMessages,
		chatFailures,
		uploadedBytes,
		sessionsExpired,
	)
}

// IncAnalysisStarted increments the started counter.
func IncAnalysisStarted() { analysisStartedTotal.Inc() }

// IncAnalysisCompleted increments the completed counter.
func IncAnalysisCompleted() { analysisCompletedTotal.Inc() }

// IncAnalysisFailed increments the failed counter for the stage that failed.
func IncAnalysisFailed(stage string) { analysisFailedTotal.WithLabelValues(stage).Inc() }

// ObserveAnalysisDurationMs records an analysis duration in milliseconds.
func ObserveAnalysisDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	analysisDuration.Observe(value)
}

// IncInference records an inference call outcome ("ok", "retry", "error").
func IncInference(outcome string) { inferenceCalls.WithLabelValues(outcome).Inc() }

func IncEventPublished(namespace string) { eventsPublished.WithLabelValues(namespace).Inc() }

func IncEventDropped(namespace string) { eventsDropped.WithLabelValues(namespace).Inc() }

func AddSubscribers(namespace string, delta float64) { subscribers.WithLabelValues(namespace).Add(delta) }

func IncChatMessage(role string) { chatMessages.WithLabelValues(role).Inc() }

func IncChatFailure() { chatFailures.Inc() }

func AddUploadedBytes(n int64) { uploadedBytes.Add(float64(n)) }

func IncSessionsExpired(n int) { sessionsExpired.Add(float64(n)) }

// Registry exposes the process registry for tests and extra collectors.
func Registry() *prometheus.Registry { return registry }

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
