package guideline

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	opLoad     = "load"
	opRefresh  = "refresh"
	opVersions = "versions"
	opResource = "resource"
)

// clientMetrics are the collectors behind WithPrometheus.
type clientMetrics struct {
	calls   *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

func newClientMetrics(reg prometheus.Registerer) (*clientMetrics, error) {
	m := &clientMetrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "guideline",
			Subsystem: "client",
			Name:      "operations_total",
			Help:      "Client operations by name and outcome.",
		}, []string{"operation", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "guideline",
			Subsystem: "client",
			Name:      "operation_duration_seconds",
			Help:      "Client operation latency in seconds.",
			Buckets:   []float64{.0001, .001, .01, .1, 1, 5, 15, 60},
		}, []string{"operation"}),
	}
	if err := registerShared(reg, &m.calls); err != nil {
		return nil, err
	}
	if err := registerShared(reg, &m.latency); err != nil {
		return nil, err
	}
	return m, nil
}

// registerShared registers c, or points it at an identical collector
// already registered by another client.
func registerShared[T prometheus.Collector](reg prometheus.Registerer, c *T) error {
	err := reg.Register(*c)
	if err == nil {
		return nil
	}
	var are prometheus.AlreadyRegisteredError
	if !errors.As(err, &are) {
		return fmt.Errorf("guideline: register metric: %w", err)
	}
	existing, ok := are.ExistingCollector.(T)
	if !ok {
		return fmt.Errorf("guideline: metric registered with type %T", are.ExistingCollector)
	}
	*c = existing
	return nil
}

// observer records the outcome of client operations.
type observer struct {
	logger  *slog.Logger
	metrics *clientMetrics
}

func newObserver(logger *slog.Logger, reg prometheus.Registerer) (*observer, error) {
	o := &observer{logger: logger}
	if reg != nil {
		m, err := newClientMetrics(reg)
		if err != nil {
			return nil, err
		}
		o.metrics = m
	}
	return o, nil
}

// outcome classifies err for the operations counter.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

func (o *observer) observe(op string, start time.Time, err error) {
	if o == nil {
		return
	}
	took := time.Since(start)
	res := outcome(err)

	if o.metrics != nil {
		o.metrics.calls.WithLabelValues(op, res).Inc()
		o.metrics.latency.WithLabelValues(op).Observe(took.Seconds())
	}

	if o.logger == nil {
		return
	}
	if res == "error" {
		o.logger.Warn("guideline operation failed", "op", op, "took", took, "error", err)
		return
	}
	o.logger.Debug("guideline operation", "op", op, "took", took, "outcome", res)
}
