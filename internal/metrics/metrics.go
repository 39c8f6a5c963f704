// Package metrics exports driver activity as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"epdpanel/internal/epd"
)

const namespace = "epd"

// Observer counts driver events. It implements epd.Observer.
type Observer struct {
	reg *prometheus.Registry

	state       prometheus.Gauge
	transitions *prometheus.CounterVec
	refreshes   prometheus.Counter
	waits       *prometheus.CounterVec
	waitSeconds prometheus.Histogram
	planeBytes  *prometheus.CounterVec
}

// New registers the driver metrics on a fresh registry.
func New() *Observer {
	o := &Observer{
		reg: prometheus.NewRegistry(),
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "state",
			Help:      "Current controller lifecycle state (0=uninitialized .. 6=powered-off).",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Lifecycle transitions by target state.",
		}, []string{"to"}),
		refreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refreshes_total",
			Help:      "Display refresh cycles started.",
		}),
		waits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "busy_waits_total",
			Help:      "Busy waits by outcome.",
		}, []string{"outcome"}),
		waitSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "busy_wait_seconds",
			Help:      "Time spent waiting on the busy line.",
			Buckets:   []float64{0.005, 0.02, 0.1, 0.5, 1, 2, 3, 5, 10},
		}),
		planeBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plane_bytes_total",
			Help:      "Bytes transferred per data plane.",
		}, []string{"plane"}),
	}
	o.reg.MustRegister(o.state, o.transitions, o.refreshes, o.waits, o.waitSeconds, o.planeBytes)
	return o
}

// Registry exposes the underlying registry.
func (o *Observer) Registry() *prometheus.Registry {
	return o.reg
}

// Handler serves the registry in the Prometheus text format.
func (o *Observer) Handler() http.Handler {
	return promhttp.HandlerFor(o.reg, promhttp.HandlerOpts{})
}

func (o *Observer) StateChanged(_, to epd.State) {
	o.state.Set(float64(to))
	o.transitions.WithLabelValues(to.String()).Inc()
	if to == epd.Refreshing {
		o.refreshes.Inc()
	}
}

func (o *Observer) BusyWaited(res epd.WaitResult) {
	o.waits.WithLabelValues(res.Outcome.String()).Inc()
	if res.Outcome != epd.WaitSkipped {
		o.waitSeconds.Observe(res.Elapsed.Seconds())
	}
}

func (o *Observer) PlaneSent(cmd byte, n int) {
	o.planeBytes.WithLabelValues(epd.PlaneName(cmd)).Add(float64(n))
}

var _ epd.Observer = (*Observer)(nil)
