// Package telemetry owns the node's Prometheus registry: admin HTTP
// instrumentation, build and process info, and the gossip protocol metrics.
package telemetry

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "zephyrgossip"

var (
	Registry = prometheus.NewRegistry()
	factory  = promauto.With(Registry)

	RequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Admin HTTP requests by operation and status code.",
		},
		[]string{"op", "code"},
	)

	RequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency of admin HTTP requests.",
			// 1ms .. ~4s.
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 13),
		},
		[]string{"op"},
	)

	InFlight = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Admin HTTP requests being served.",
		},
		[]string{"op"},
	)

	buildInfo = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build info (constant 1, labeled by version, git_sha and go_version).",
		},
		[]string{"version", "git_sha", "go_version"},
	)

	startTime = time.Now()
	_         = factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds.",
		},
		func() float64 { return time.Since(startTime).Seconds() },
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// MetricsHandler serves the registry in the Prometheus exposition format.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}

// SetBuildInfo should be called once at startup with ldflags-provided values.
func SetBuildInfo(version, gitSHA string) {
	buildInfo.WithLabelValues(version, gitSHA, runtime.Version()).Set(1)
}

// Instrument wraps an admin handler so its requests are counted, timed and
// tracked in flight under the given op label:
//
//	mux.Handle("/members", telemetry.Instrument("members", http.HandlerFunc(n.Members)))
func Instrument(op string, next http.Handler) http.Handler {
	labels := prometheus.Labels{"op": op}
	return promhttp.InstrumentHandlerInFlight(InFlight.With(labels),
		promhttp.InstrumentHandlerDuration(RequestDuration.MustCurryWith(labels),
			promhttp.InstrumentHandlerCounter(RequestsTotal.MustCurryWith(labels), next)))
}
