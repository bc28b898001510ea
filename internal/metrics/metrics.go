// Package metrics exports Execution Model activity as Prometheus metrics.
// A Collector is attached to a model with exec.WithObserver(c.Observe).
package metrics

import (
	"sync"

	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/exec"
	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/nodeid"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "intelligraph"

// Collector holds the metric vectors fed by observation events.
type Collector struct {
	evaluations *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	passes      *prometheus.CounterVec
	nodes       *prometheus.GaugeVec

	mu     sync.Mutex
	states map[nodeid.NodeUUID]exec.NodeEvalState
}

// New creates a collector and registers its metrics with reg.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		evaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "node_evaluations_total",
				Help:      "Total number of finished node evaluations.",
			},
			[]string{"type", "result"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "node_evaluation_duration_seconds",
				Help:      "Duration of node evaluations.",
				Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
			},
			[]string{"type"},
		),
		passes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "evaluation_passes_total",
				Help:      "Total number of finished evaluation passes.",
			},
			[]string{"result", "auto"},
		),
		nodes: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "nodes",
				Help:      "Number of tracked nodes per evaluation state.",
			},
			[]string{"state"},
		),
		states: make(map[nodeid.NodeUUID]exec.NodeEvalState),
	}
	reg.MustRegister(c.evaluations, c.duration, c.passes, c.nodes)
	return c
}

// Observe records one event. It is safe for concurrent use.
func (c *Collector) Observe(ev exec.Event) {
	switch ev.Kind {
	case exec.NodeEvaluated:
		c.evaluations.WithLabelValues(ev.TypeName, result(ev.Err)).Inc()
		c.duration.WithLabelValues(ev.TypeName).Observe(ev.Duration.Seconds())
	case exec.PassFinished:
		auto := "false"
		if ev.Auto {
			auto = "true"
		}
		c.passes.WithLabelValues(result(ev.Err), auto).Inc()
	case exec.NodeEvalStateChanged:
		c.trackState(ev.UUID, ev.State)
	}
}

func (c *Collector) trackState(uuid nodeid.NodeUUID, state exec.NodeEvalState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.states[uuid]; ok {
		c.nodes.WithLabelValues(prev.String()).Dec()
	}
	if state == exec.Invalid {
		delete(c.states, uuid)
		return
	}
	c.states[uuid] = state
	c.nodes.WithLabelValues(state.String()).Inc()
}

func result(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
