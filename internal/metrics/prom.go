// Package metrics exports engine activity to Prometheus.
package metrics

import (
	"time"

	"biofilter_monitor/internal/engine"

	"github.com/prometheus/client_golang/prometheus"
)

var phases = []string{
	engine.PhaseIdle.String(),
	engine.PhasePM25Elevated.String(),
	engine.PhaseCO2Elevated.String(),
	engine.PhaseTempElevated.String(),
}

// PromObs implements engine.Observer on top of Prometheus collectors.
type PromObs struct {
	fetches     *prometheus.CounterVec
	fetchTime   prometheus.Histogram
	backoff     prometheus.Gauge
	phase       *prometheus.GaugeVec
	ownedFields prometheus.Gauge
	runs        *prometheus.CounterVec
	reg         prometheus.Registerer
}

var _ engine.Observer = (*PromObs)(nil)

// NewPromObs registers the engine collectors with reg. A nil reg uses
// prometheus.DefaultRegisterer.
func NewPromObs(reg prometheus.Registerer) *PromObs {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	p := &PromObs{
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "biofilter_fetch_total",
			Help: "Metrics fetch attempts by result.",
		}, []string{"result"}),
		fetchTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "biofilter_fetch_duration_seconds",
			Help:    "Latency of a single metrics fetch.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		backoff: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "biofilter_backoff_delay_seconds",
			Help: "Delay before the next scheduled fetch.",
		}),
		phase: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "biofilter_simulation_phase",
			Help: "1 for the current staged simulation phase, 0 otherwise.",
		}, []string{"phase"}),
		ownedFields: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "biofilter_owned_fields",
			Help: "Fields currently protected from fetched data.",
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "biofilter_simulation_runs_total",
			Help: "Finished staged simulation runs by outcome.",
		}, []string{"outcome"}),
		reg: reg,
	}
	reg.MustRegister(p.fetches, p.fetchTime, p.backoff, p.phase, p.ownedFields, p.runs)

	for _, r := range []string{"ok", "failed"} {
		p.fetches.WithLabelValues(r)
	}
	for _, o := range []string{"completed", "cancelled"} {
		p.runs.WithLabelValues(o)
	}
	p.Phase(engine.PhaseIdle.String())
	return p
}

// FetchDone counts a fetch and records its latency.
func (p *PromObs) FetchDone(ok bool, took time.Duration) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	p.fetches.WithLabelValues(result).Inc()
	p.fetchTime.Observe(took.Seconds())
}

// BackoffDelay records the delay chosen for the next fetch.
func (p *PromObs) BackoffDelay(d time.Duration) {
	p.backoff.Set(d.Seconds())
}

// Phase marks name as the current simulation phase.
func (p *PromObs) Phase(name string) {
	for _, ph := range phases {
		v := 0.0
		if ph == name {
			v = 1
		}
		p.phase.WithLabelValues(ph).Set(v)
	}
}

// OwnedFields records the size of the ownership mask.
func (p *PromObs) OwnedFields(n int) {
	p.ownedFields.Set(float64(n))
}

// RunFinished counts a completed or cancelled run.
func (p *PromObs) RunFinished(cancelled bool) {
	outcome := "completed"
	if cancelled {
		outcome = "cancelled"
	}
	p.runs.WithLabelValues(outcome).Inc()
}

// WatchViewers exports the live viewer count reported by fn.
func (p *PromObs) WatchViewers(fn func() int) {
	p.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "biofilter_viewers",
		Help: "Connected dashboard viewers.",
	}, func() float64 { return float64(fn()) }))
}
