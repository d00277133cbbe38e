package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "billing"

// Recorder exports verification and activation metrics. A nil *Recorder is
// valid and records nothing.
type Recorder struct {
	verifications *prometheus.CounterVec
	activations   *prometheus.CounterVec
	hookFailures  *prometheus.CounterVec
	upstream      *prometheus.HistogramVec
}

func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &Recorder{
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifications_total",
			Help:      "Payment verification attempts by method, outcome and error code.",
		}, []string{"method", "outcome", "code"}),
		activations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activations_total",
			Help:      "Committed subscription activations by kind (created, renewed) and trust path.",
		}, []string{"kind", "trust"}),
		hookFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activation_hook_failures_total",
			Help:      "Post-activation hook failures.",
		}, []string{"hook"}),
		upstream: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_duration_seconds",
			Help:      "Latency of payment provider and chain RPC calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"upstream", "result"}),
	}

	var err error
	if r.verifications, err = register(reg, r.verifications); err != nil {
		return nil, err
	}
	if r.activations, err = register(reg, r.activations); err != nil {
		return nil, err
	}
	if r.hookFailures, err = register(reg, r.hookFailures); err != nil {
		return nil, err
	}
	if r.upstream, err = register(reg, r.upstream); err != nil {
		return nil, err
	}
	return r, nil
}

// register returns the already registered collector when one with the same
// descriptor exists, so several recorders can share a registry.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("register billing metric: %w", err)
	}
	return c, nil
}

func (r *Recorder) RecordVerification(method, outcome, code string) {
	if r == nil {
		return
	}
	r.verifications.WithLabelValues(method, outcome, code).Inc()
}

func (r *Recorder) RecordActivation(kind string, manualTrust bool) {
	if r == nil {
		return
	}
	trust := "verified"
	if manualTrust {
		trust = "manual"
	}
	r.activations.WithLabelValues(kind, trust).Inc()
}

func (r *Recorder) RecordHookFailure(hook string) {
	if r == nil {
		return
	}
	r.hookFailures.WithLabelValues(hook).Inc()
}

func (r *Recorder) RecordUpstream(upstream string, started time.Time, err error) {
	if r == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.upstream.WithLabelValues(upstream, result).Observe(time.Since(started).Seconds())
}
