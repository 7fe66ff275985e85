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

	launches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "potter",
			Subsystem: "guard",
			Name:      "launches_total",
			Help:      "Number of launches by outcome (proceed or exit).",
		}, []string{"outcome"},
	)
	collisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "potter",
			Subsystem: "guard",
			Name:      "collisions_total",
			Help:      "Number of startup collisions by classification kind.",
		}, []string{"kind"},
	)
	resolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "potter",
			Subsystem: "guard",
			Name:      "resolutions_total",
			Help:      "Number of collision resolutions by action.",
		}, []string{"action"},
	)
	terminations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "potter",
			Subsystem: "guard",
			Name:      "terminations_total",
			Help:      "Number of prior-instance terminations by result.",
		}, []string{"result"},
	)
	races = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "potter",
			Subsystem: "guard",
			Name:      "races_total",
			Help:      "Number of claim races lost to concurrent launches.",
		},
	)
	claimDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "potter",
			Subsystem: "guard",
			Name:      "claim_seconds",
			Help:      "Observed duration of the identity claim critical section.",
			Buckets:   prometheus.DefBuckets,
		},
	)
	instanceUp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "potter",
			Subsystem: "guard",
			Name:      "instance_up",
			Help:      "1 while this process holds instance ownership.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{launches, collisions, resolutions, terminations, races, claimDuration, instanceUp}
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

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncLaunch(outcome string) {
	if regOK.Load() {
		launches.WithLabelValues(outcome).Inc()
	}
}
func IncCollision(kind string) {
	if regOK.Load() {
		collisions.WithLabelValues(kind).Inc()
	}
}
func IncResolution(action string) {
	if regOK.Load() {
		resolutions.WithLabelValues(action).Inc()
	}
}
func IncTermination(result string) {
	if regOK.Load() {
		terminations.WithLabelValues(result).Inc()
	}
}
func IncRace() {
	if regOK.Load() {
		races.Inc()
	}
}
func ObserveClaimDuration(seconds float64) {
	if regOK.Load() {
		claimDuration.Observe(seconds)
	}
}
func SetInstanceUp(up bool) {
	if regOK.Load() {
		var value float64
		if up {
			value = 1
		}
		instanceUp.Set(value)
	}
}
