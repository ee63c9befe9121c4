// Package metrics exports driver state as Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "radeon_kms"

// Recorder holds every collector the driver updates. A nil *Recorder discards all
// updates so components can be built without metrics.
type Recorder struct {
	registry *prometheus.Registry

	budget       *prometheus.GaugeVec
	liveBuffers  *prometheus.GaugeVec
	liveBytes    *prometheus.GaugeVec
	flushes      *prometheus.CounterVec
	limitErrors  prometheus.Counter
	owned        prometheus.Gauge
	ownershipOps *prometheus.CounterVec
}

// New creates a Recorder with its own registry
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		budget: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "budget",
			Name:      "bytes",
			Help:      "Video memory partition computed for the current mode-set epoch.",
		}, []string{"region"}),
		liveBuffers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "buffers",
			Name:      "live",
			Help:      "Number of live buffer objects per memory domain.",
		}, []string{"domain"}),
		liveBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "buffers",
			Name:      "live_bytes",
			Help:      "Bytes held by live buffer objects per memory domain.",
		}, []string{"domain"}),
		flushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "flushes_total",
			Help:      "Command buffer submissions, by trigger.",
		}, []string{"trigger"}),
		limitErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "limit_exceeded_total",
			Help:      "Submissions rejected for exceeding a domain ceiling.",
		}),
		owned: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ownership",
			Name:      "owned",
			Help:      "1 while this driver holds display ownership.",
		}),
		ownershipOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ownership",
			Name:      "transitions_total",
			Help:      "Ownership transitions, by direction and result.",
		}, []string{"direction", "result"}),
	}

	r.registry.MustRegister(r.budget, r.liveBuffers, r.liveBytes, r.flushes, r.limitErrors, r.owned, r.ownershipOps)
	return r
}

// Registry returns the registry the collectors are registered with, for serving or gathering
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) SetBudget(framebuffer, cursors, residual, emitLimit int) {
	if r == nil {
		return
	}
	r.budget.WithLabelValues("framebuffer").Set(float64(framebuffer))
	r.budget.WithLabelValues("cursors").Set(float64(cursors))
	r.budget.WithLabelValues("residual").Set(float64(residual))
	r.budget.WithLabelValues("emit_limit").Set(float64(emitLimit))
}

func (r *Recorder) SetLiveBuffers(domain string, count, bytes int) {
	if r == nil {
		return
	}
	r.liveBuffers.WithLabelValues(domain).Set(float64(count))
	r.liveBytes.WithLabelValues(domain).Set(float64(bytes))
}

// Flushed counts one submission. Implicit flushes are the ones forced by a full buffer.
func (r *Recorder) Flushed(implicit bool) {
	if r == nil {
		return
	}
	trigger := "explicit"
	if implicit {
		trigger = "implicit"
	}
	r.flushes.WithLabelValues(trigger).Inc()
}

func (r *Recorder) LimitExceeded() {
	if r == nil {
		return
	}
	r.limitErrors.Inc()
}

// Ownership records the outcome of an acquire ("acquire") or release ("release")
func (r *Recorder) Ownership(direction string, owned bool, err error) {
	if r == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.ownershipOps.WithLabelValues(direction, result).Inc()
	if owned {
		r.owned.Set(1)
	} else {
		r.owned.Set(0)
	}
}
