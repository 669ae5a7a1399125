package translate

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Actor lifecycle metrics
	actorState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ponte_actor_state",
			Help: "Current state of the translation actor (0=loading, 1=ready, 2=stopped)",
		},
		[]string{"direction"},
	)

	modelLoadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ponte_model_load_duration_seconds",
			Help:    "Time spent loading the translation model",
			Buckets: []float64{0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0},
		},
		[]string{"direction", "status"},
	)

	// Translation request metrics
	translationRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ponte_translation_requests_total",
			Help: "Total number of translation requests served by the worker",
		},
		[]string{"direction", "status"},
	)

	translationRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ponte_translation_request_duration_seconds",
			Help:    "Duration of model inference per request in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
		},
		[]string{"direction", "status"},
	)

	translationRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ponte_translation_request_size_bytes",
			Help:    "Size of translation request text in bytes",
			Buckets: []float64{16, 64, 256, 1000, 5000, 10000, 50000},
		},
		[]string{"direction"},
	)

	translationResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ponte_translation_response_size_bytes",
			Help:    "Size of translated text in bytes",
			Buckets: []float64{16, 64, 256, 1000, 5000, 10000, 50000},
		},
		[]string{"direction"},
	)

	// Queue metrics
	queueLength = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ponte_actor_queue_length",
			Help: "Requests waiting in the actor queue",
		},
		[]string{"direction"},
	)

	queueWaitTime = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ponte_actor_queue_wait_seconds",
			Help:    "Time a request spent queued before the worker picked it up",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1.0, 2.0, 5.0, 30.0},
		},
		[]string{"direction"},
	)

	queueRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ponte_actor_queue_rejections_total",
			Help: "Requests rejected because the actor queue was full",
		},
		[]string{"direction"},
	)

	repliesDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ponte_actor_replies_dropped_total",
			Help: "Replies dropped because the caller stopped waiting",
		},
		[]string{"direction"},
	)
)

// MetricsCollector records metrics for one actor.
type MetricsCollector struct {
	direction string
}

// NewMetricsCollector creates a collector labelled with the actor's direction.
func NewMetricsCollector(direction Direction) *MetricsCollector {
	return &MetricsCollector{direction: direction.String()}
}

// SetState records the actor's current lifecycle state.
func (mc *MetricsCollector) SetState(state ActorState) {
	actorState.WithLabelValues(mc.direction).Set(float64(state))
}

// RecordModelLoad records how long loading the model took.
func (mc *MetricsCollector) RecordModelLoad(duration time.Duration, success bool) {
	modelLoadDuration.WithLabelValues(mc.direction, statusLabel(success)).Observe(duration.Seconds())
}

// RecordTranslationRequest records metrics for a translation request.
func (mc *MetricsCollector) RecordTranslationRequest(duration time.Duration, success bool, requestSize, responseSize int) {
	status := statusLabel(success)
	translationRequestsTotal.WithLabelValues(mc.direction, status).Inc()
	translationRequestDuration.WithLabelValues(mc.direction, status).Observe(duration.Seconds())
	translationRequestSize.WithLabelValues(mc.direction).Observe(float64(requestSize))
	translationResponseSize.WithLabelValues(mc.direction).Observe(float64(responseSize))
}

// UpdateQueueLength records the number of queued requests.
func (mc *MetricsCollector) UpdateQueueLength(n int) {
	queueLength.WithLabelValues(mc.direction).Set(float64(n))
}

// RecordQueueWait records time a request spent waiting in the queue.
func (mc *MetricsCollector) RecordQueueWait(duration time.Duration) {
	queueWaitTime.WithLabelValues(mc.direction).Observe(duration.Seconds())
}

// RecordRejection records a submission refused by backpressure.
func (mc *MetricsCollector) RecordRejection() {
	queueRejectionsTotal.WithLabelValues(mc.direction).Inc()
}

// RecordDroppedReply records a reply the caller was no longer waiting for.
func (mc *MetricsCollector) RecordDroppedReply() {
	repliesDroppedTotal.WithLabelValues(mc.direction).Inc()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
