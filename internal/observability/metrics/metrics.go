package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "labmonitor_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	telemetryMessages *prometheus.CounterVec
	queueDrops        *prometheus.CounterVec

	classifications       *prometheus.CounterVec
	classificationLatency *prometheus.HistogramVec

	broadcastEvents  *prometheus.CounterVec
	viewersConnected prometheus.Gauge

	notifications   *prometheus.CounterVec
	endpointsPruned prometheus.Counter
	endpointsTotal  prometheus.Gauge

	transportConnected  prometheus.Gauge
	transportReconnects prometheus.Counter
	publishTotal        *prometheus.CounterVec

	cycleLatency prometheus.Histogram
)

// Init registers bridge metrics with the default registry. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		telemetryMessages = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "telemetry_messages_total",
				Help: "Inbound telemetry messages by result",
			},
			[]string{"result"},
		)
		queueDrops = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "queue_drops_total",
				Help: "Items dropped because a bounded queue was full",
			},
			[]string{"queue"},
		)
		classifications = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "classifications_total",
				Help: "Classification results by source",
			},
			[]string{"source"},
		)
		classificationLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "classification_latency_seconds",
				Help:    "Classification latency in seconds",
				Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2, 2.5},
			},
			[]string{"source"},
		)
		broadcastEvents = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "broadcast_events_total",
				Help: "Viewer broadcasts by event",
			},
			[]string{"event"},
		)
		viewersConnected = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "viewers_connected",
			Help: "Currently connected viewer sessions",
		})
		notifications = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "notifications_total",
				Help: "Push notification batches by tier and result",
			},
			[]string{"tier", "result"},
		)
		endpointsPruned = prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "endpoints_pruned_total",
			Help: "Endpoints removed after the push provider rejected them",
		})
		endpointsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "endpoints_registered",
			Help: "Registered notification endpoints",
		})
		transportConnected = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "transport_connected",
			Help: "1 when the broker link is up",
		})
		transportReconnects = prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "transport_reconnects_total",
			Help: "Broker reconnect attempts",
		})
		publishTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "transport_publish_total",
				Help: "Result publications by result",
			},
			[]string{"result"},
		)
		cycleLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    metricPrefix + "pipeline_cycle_seconds",
			Help:    "End-to-end processing time of one reading",
			Buckets: prometheus.DefBuckets,
		})

		prometheus.MustRegister(
			telemetryMessages,
			queueDrops,
			classifications,
			classificationLatency,
			broadcastEvents,
			viewersConnected,
			notifications,
			endpointsPruned,
			endpointsTotal,
			transportConnected,
			transportReconnects,
			publishTotal,
			cycleLatency,
		)
	})
}

// IncTelemetry counts an inbound message.
func IncTelemetry(result string) {
	if result == "" {
		result = resultSuccess
	}
	if telemetryMessages != nil {
		telemetryMessages.WithLabelValues(result).Inc()
	}
}

// IncQueueDrop counts a dropped queue item.
func IncQueueDrop(queue string) {
	if queue == "" {
		queue = "unknown"
	}
	if queueDrops != nil {
		queueDrops.WithLabelValues(queue).Inc()
	}
}

// ObserveClassification records classification latency by source.
func ObserveClassification(source string, duration time.Duration) {
	if source == "" {
		source = "unknown"
	}
	if classifications != nil {
		classifications.WithLabelValues(source).Inc()
	}
	if classificationLatency != nil {
		classificationLatency.WithLabelValues(source).Observe(duration.Seconds())
	}
}

// IncBroadcast counts a viewer broadcast.
func IncBroadcast(event string) {
	if broadcastEvents != nil {
		broadcastEvents.WithLabelValues(event).Inc()
	}
}

// SetViewers sets the connected viewer gauge.
func SetViewers(count int) {
	if viewersConnected != nil {
		viewersConnected.Set(float64(count))
	}
}

// IncNotification counts a push batch.
func IncNotification(tier, result string) {
	if tier == "" {
		tier = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if notifications != nil {
		notifications.WithLabelValues(tier, result).Inc()
	}
}

// AddEndpointsPruned counts pruned endpoints.
func AddEndpointsPruned(count int) {
	if count <= 0 {
		return
	}
	if endpointsPruned != nil {
		endpointsPruned.Add(float64(count))
	}
}

// SetEndpoints sets the registered endpoint gauge.
func SetEndpoints(count int) {
	if endpointsTotal != nil {
		endpointsTotal.Set(float64(count))
	}
}

// SetTransportConnected records broker link state.
func SetTransportConnected(up bool) {
	if transportConnected == nil {
		return
	}
	if up {
		transportConnected.Set(1)
		return
	}
	transportConnected.Set(0)
}

// IncTransportReconnect counts a reconnect attempt.
func IncTransportReconnect() {
	if transportReconnects != nil {
		transportReconnects.Inc()
	}
}

// IncPublish counts a result publication.
func IncPublish(result string) {
	if result == "" {
		result = resultSuccess
	}
	if publishTotal != nil {
		publishTotal.WithLabelValues(result).Inc()
	}
}

// ObserveCycle records one pipeline cycle.
func ObserveCycle(duration time.Duration) {
	if cycleLatency != nil {
		cycleLatency.Observe(duration.Seconds())
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError

	ResultMalformed = "malformed"
	ResultSkipped   = "skipped"
)
