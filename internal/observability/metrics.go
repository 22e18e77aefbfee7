package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mot",
		Name:      "frames_processed_total",
		Help:      "Total number of frames that produced a labeled frame",
	})

	FramesSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mot",
		Name:      "frames_skipped_total",
		Help:      "Total number of frames dropped by the pipeline",
	}, []string{"reason"})

	ObjectsDetected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mot",
		Name:      "objects_detected_total",
		Help:      "Total number of boxes returned by the detector",
	})

	ObjectsEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mot",
		Name:      "objects_emitted_total",
		Help:      "Total number of labeled objects emitted",
	})

	TracksActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "mot",
		Name:      "tracks_active",
		Help:      "Number of live tracks in the manager",
	})

	InferenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mot",
		Name:      "inference_duration_seconds",
		Help:      "Duration of ML inference stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"stage"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "mot",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket clients",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mot",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)
