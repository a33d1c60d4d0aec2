// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ItemsTotal counts queue items reaching a terminal state, by status.
	ItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wpbatch_items_total",
			Help: "Queue items that reached a terminal state.",
		},
		[]string{"status"},
	)

	KeyRotations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wpbatch_key_rotations_total",
			Help: "Times the generation API key pool advanced to the next key.",
		},
	)

	MediaUploadFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wpbatch_media_upload_failures_total",
			Help: "Thumbnail uploads that failed and fell back to inline data.",
		},
	)

	GenerationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "wpbatch_generation_duration_seconds",
			Help:    "Duration of one post generation, including retries across keys.",
			Buckets: []float64{5, 10, 20, 30, 60, 90, 120, 180, 300},
		},
	)

	PublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "wpbatch_publish_duration_seconds",
			Help:    "Duration of media upload plus post creation.",
			Buckets: prometheus.DefBuckets,
		},
	)

	QueuePending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wpbatch_queue_pending",
			Help: "Items of the current batch not yet in a terminal state.",
		},
	)

	// CommandsTotal counts remote commands handled, by command name.
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wpbatch_commands_total",
			Help: "Remote commands acknowledged by the poller.",
		},
		[]string{"command"},
	)
)

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
