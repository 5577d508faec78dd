package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	serverStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "localserve",
			Subsystem: "server",
			Name:      "starts_total",
			Help:      "Number of successful server launches.",
		}, []string{"name"},
	)
	serverStartFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "localserve",
			Subsystem: "server",
			Name:      "start_failures_total",
			Help:      "Number of rejected or failed launches.",
		}, []string{"name", "reason"},
	)
	serverStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "localserve",
			Subsystem: "server",
			Name:      "stops_total",
			Help:      "Number of stops by result (graceful, forced, still-running).",
		}, []string{"name", "result"},
	)
	reattach = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "localserve",
			Subsystem: "server",
			Name:      "reattach_total",
			Help:      "Re-attachment attempts from persisted identity by outcome.",
		}, []string{"name", "outcome"},
	)
	running = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "localserve",
			Subsystem: "server",
			Name:      "running",
			Help:      "1 while the supervised server is believed running.",
		}, []string{"name"},
	)
	logBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "localserve",
			Subsystem: "log",
			Name:      "read_bytes_total",
			Help:      "Bytes delivered by incremental log reads.",
		}, []string{"name"},
	)
	stopDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "localserve",
			Subsystem: "server",
			Name:      "stop_duration_seconds",
			Help:      "Time from stop request until the process was gone or given up on.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2, 5},
		}, []string{"name"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{serverStarts, serverStartFailures, serverStops, reattach, running, logBytes, stopDuration}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
// The caller is responsible for starting an HTTP server and wiring the route.
func Handler() http.Handler { return promhttp.Handler() }

// HandlerFor serves metrics gathered from g.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Below are lightweight helpers used by the supervisor to record metrics.
// They no-op if Register hasn't been called.

func IncStart(name string) {
	if regOK.Load() {
		serverStarts.WithLabelValues(name).Inc()
	}
}

func IncStartFailure(name, reason string) {
	if regOK.Load() {
		serverStartFailures.WithLabelValues(name, reason).Inc()
	}
}

func IncStop(name, result string) {
	if regOK.Load() {
		serverStops.WithLabelValues(name, result).Inc()
	}
}

func IncReattach(name, outcome string) {
	if regOK.Load() {
		reattach.WithLabelValues(name, outcome).Inc()
	}
}

func SetRunning(name string, v bool) {
	if regOK.Load() {
		var f float64
		if v {
			f = 1
		}
		running.WithLabelValues(name).Set(f)
	}
}

func AddLogBytes(name string, n int) {
	if regOK.Load() && n > 0 {
		logBytes.WithLabelValues(name).Add(float64(n))
	}
}

func ObserveStopDuration(name string, seconds float64) {
	if regOK.Load() {
		stopDuration.WithLabelValues(name).Observe(seconds)
	}
}
