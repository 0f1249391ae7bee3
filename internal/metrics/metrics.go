// Package metrics exposes Prometheus collectors for the worker. All names
// carry the voicenotes_ prefix.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RetrievalsTotal counts answered requests by where the response came from.
	RetrievalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicenotes_retrievals_total",
			Help: "Intercepted requests by strategy and response source",
		},
		[]string{"strategy", "source"},
	)

	PassThroughTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicenotes_pass_through_total",
			Help: "Requests forwarded to the origin without interception",
		},
		[]string{"reason"},
	)

	CacheWriteErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "voicenotes_cache_write_errors_total",
			Help: "Failed opportunistic cache writes",
		},
	)

	LifecycleTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicenotes_lifecycle_total",
			Help: "Install and activate attempts by outcome",
		},
		[]string{"phase", "outcome"},
	)

	GenerationsPurgedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "voicenotes_generations_purged_total",
			Help: "Superseded cache generations deleted during activation",
		},
	)

	WorkerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "voicenotes_worker_state",
			Help: "1 for the worker's current lifecycle state",
		},
		[]string{"state"},
	)

	PushEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicenotes_push_events_total",
			Help: "Push, notification click and sync events received",
		},
		[]string{"event"},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
