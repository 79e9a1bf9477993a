package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mer-coder/curve-convert/pkg/convert"
)

const namespace = "curve_convert"

var _ convert.Observer = (*Recorder)(nil)

// Recorder 把步骤进度和运行结果记录为 prometheus 指标
type Recorder struct {
	stepTransitions *prometheus.CounterVec
	stepDuration    *prometheus.HistogramVec
	runs            *prometheus.CounterVec

	mu      sync.Mutex
	started map[stepKey]time.Time
	now     func() time.Time
}

type stepKey struct {
	run   string
	index int
}

// NewRecorder 在 reg 上注册指标
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		stepTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "step_transitions_total",
				Help:      "Step status transitions by step kind and status",
			},
			[]string{"kind", "status"},
		),
		stepDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_seconds",
				Help:      "Time from a step becoming active until it is done or failed",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"kind", "status"},
		),
		runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Finished conversion runs by direction and outcome",
			},
			[]string{"direction", "outcome"},
		),
		started: make(map[stepKey]time.Time),
		now:     time.Now,
	}
}

// OnStepUpdate 实现 convert.Observer
func (r *Recorder) OnStepUpdate(u convert.Update) {
	r.stepTransitions.WithLabelValues(u.Kind.String(), u.Status.String()).Inc()

	key := stepKey{run: u.RunID, index: u.StepIndex}
	r.mu.Lock()
	defer r.mu.Unlock()

	switch u.Status {
	case convert.StatusActive:
		r.started[key] = r.now()
	case convert.StatusDone, convert.StatusFailed:
		if start, ok := r.started[key]; ok {
			r.stepDuration.WithLabelValues(u.Kind.String(), u.Status.String()).Observe(r.now().Sub(start).Seconds())
			delete(r.started, key)
		}
	}
}

// RecordRun 记录一次结束的运行, 未结束的结果忽略
func (r *Recorder) RecordRun(direction convert.Direction, outcome convert.Outcome) {
	if !outcome.Finished() {
		return
	}
	r.runs.WithLabelValues(direction.String(), outcome.String()).Inc()

	// 被取消的步骤不会再有更新
	if outcome == convert.OutcomeCancelled {
		r.mu.Lock()
		r.started = make(map[stepKey]time.Time)
		r.mu.Unlock()
	}
}
