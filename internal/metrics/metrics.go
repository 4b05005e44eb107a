package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudscale_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cloudscale_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cloudscale_http_response_size_bytes",
			Help:    "HTTP response size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "endpoint"},
	)

	// Poll loop metrics
	PollTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudscale_poll_total",
			Help: "Total number of metrics polls",
		},
		[]string{"source", "status"}, // status: ok, empty, error
	)

	PollDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cloudscale_poll_duration_seconds",
			Help:    "Time taken to fetch one metrics sample",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	LatestUsage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cloudscale_resource_usage_percent",
			Help: "Latest observed usage per dimension",
		},
		[]string{"resource_id", "dimension"},
	)

	// Alert metrics
	AlertsFiredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudscale_alerts_fired_total",
			Help: "Total number of alerts produced by the threshold evaluator",
		},
		[]string{"type", "severity"},
	)

	AlertHistorySize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cloudscale_alert_history_size",
			Help: "Number of alerts currently held in the history",
		},
	)

	AlertActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudscale_alert_actions_total",
			Help: "Total number of dismiss/acknowledge actions",
		},
		[]string{"action", "status"}, // status: ok, not_found
	)

	SoundCuesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudscale_sound_cues_total",
			Help: "Total number of sound cues dispatched",
		},
		[]string{"severity"},
	)

	SoundFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudscale_sound_failures_total",
			Help: "Total number of sound cues that failed to play",
		},
		[]string{"severity"},
	)

	WebsocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cloudscale_websocket_clients",
			Help: "Number of connected dashboard websocket clients",
		},
	)

	// Ingest metrics
	IngestSamplesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudscale_ingest_samples_total",
			Help: "Total number of metrics samples received",
		},
		[]string{"status"}, // accepted, rejected
	)

	IngestBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cloudscale_ingest_batch_size",
			Help:    "Size of sample batches received",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	IngestValidationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudscale_ingest_validation_errors_total",
			Help: "Total number of validation errors",
		},
		[]string{"error_type"},
	)

	// Worker metrics
	WorkerQueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cloudscale_worker_queue_size",
			Help: "Current size of the worker queue",
		},
	)

	WorkerQueueCapacity = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cloudscale_worker_queue_capacity",
			Help: "Capacity of the worker queue",
		},
	)

	WorkerProcessedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cloudscale_worker_processed_total",
			Help: "Total number of samples processed by workers",
		},
	)

	WorkerFailedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cloudscale_worker_failed_total",
			Help: "Total number of samples failed in workers",
		},
	)

	WorkerBatchPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cloudscale_worker_batch_publish_duration_seconds",
			Help:    "Time taken to publish a batch to Kafka",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	// Kafka metrics
	KafkaPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudscale_kafka_publish_total",
			Help: "Total number of messages published to Kafka",
		},
		[]string{"status"}, // status: success, failed
	)

	KafkaPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cloudscale_kafka_publish_duration_seconds",
			Help:    "Time taken to publish to Kafka",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	KafkaPublishRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cloudscale_kafka_publish_retries_total",
			Help: "Total number of Kafka publish retries",
		},
	)

	KafkaBytesWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cloudscale_kafka_bytes_written_total",
			Help: "Total bytes written to Kafka",
		},
	)

	KafkaMessagesConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudscale_kafka_messages_consumed_total",
			Help: "Total number of messages read from Kafka",
		},
		[]string{"status"}, // status: ok, decode_error, superseded
	)

	// Panic recovery
	PanicsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudscale_panics_recovered_total",
			Help: "Total number of panics recovered",
		},
		[]string{"component"},
	)
)
