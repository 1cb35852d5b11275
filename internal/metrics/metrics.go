// Package metrics exposes simulator activity as Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cpusched"

// Run outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeShutdown  = "shutdown"
	OutcomeFailed    = "failed"
)

// Collector groups the simulator collectors on a private registry.
// All methods are safe to call on a nil *Collector.
type Collector struct {
	registry *prometheus.Registry

	runs            *prometheus.CounterVec
	ticks           *prometheus.CounterVec
	dispatches      *prometheus.CounterVec
	completions     prometheus.Counter
	contextSwitches prometheus.Counter
	demotions       prometheus.Counter
	rejections      prometheus.Counter
	runTicks        prometheus.Histogram
}

// New creates a Collector and registers its collectors.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Simulation runs by outcome.",
		}, []string{"outcome"}),
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Simulated ticks by CPU activity.",
		}, []string{"kind"}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatches_total",
			Help:      "Ticks granted to a process, by queue level.",
		}, []string{"level"}),
		completions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completions_total",
			Help:      "Processes that ran to completion.",
		}),
		contextSwitches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "context_switches_total",
			Help:      "Changes of the running process between busy ticks.",
		}),
		demotions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "demotions_total",
			Help:      "Multilevel queue level drops observed at dispatch.",
		}),
		rejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_processes_total",
			Help:      "Processes refused at admission.",
		}),
		runTicks: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_ticks",
			Help:      "Length of finished runs in ticks.",
			Buckets:   prometheus.ExponentialBuckets(8, 2, 12),
		}),
	}
	c.registry.MustRegister(
		c.runs, c.ticks, c.dispatches, c.completions,
		c.contextSwitches, c.demotions, c.rejections, c.runTicks,
	)
	return c
}

// Registry returns the registry backing the collector.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveTick counts one simulated tick.
func (c *Collector) ObserveTick(busy bool) {
	if c == nil {
		return
	}
	kind := "idle"
	if busy {
		kind = "busy"
	}
	c.ticks.WithLabelValues(kind).Inc()
}

// ObserveDispatch counts a tick granted at the given level.
func (c *Collector) ObserveDispatch(level int) {
	if c == nil {
		return
	}
	c.dispatches.WithLabelValues(strconv.Itoa(level)).Inc()
}

func (c *Collector) ObserveCompletion() {
	if c == nil {
		return
	}
	c.completions.Inc()
}

func (c *Collector) ObserveContextSwitch() {
	if c == nil {
		return
	}
	c.contextSwitches.Inc()
}

// ObserveDemotion counts n level drops.
func (c *Collector) ObserveDemotion(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.demotions.Add(float64(n))
}

func (c *Collector) ObserveRejection() {
	if c == nil {
		return
	}
	c.rejections.Inc()
}

// ObserveRun records a finished run.
func (c *Collector) ObserveRun(outcome string, ticks int) {
	if c == nil {
		return
	}
	c.runs.WithLabelValues(outcome).Inc()
	c.runTicks.Observe(float64(ticks))
}
