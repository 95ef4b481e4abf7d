package execution

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	invocations  *prometheus.CounterVec
	failures     *prometheus.CounterVec
	computeUnits prometheus.Histogram
}

func NewMetrics(r prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "execution",
			Name:      "invocations",
			Help:      "number of program invocations",
		}, []string{"program"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "execution",
			Name:      "failures",
			Help:      "number of failed program invocations",
		}, []string{"program"}),
		computeUnits: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "execution",
			Name:      "compute_units",
			Help:      "compute units consumed per invocation",
			Buckets:   prometheus.ExponentialBuckets(100, 4, 8),
		}),
	}
	for _, c := range []prometheus.Collector{m.invocations, m.failures, m.computeUnits} {
		if err := r.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observe(program string, res *Result) {
	if m == nil {
		return
	}
	m.invocations.WithLabelValues(program).Inc()
	if res.Err != nil {
		m.failures.WithLabelValues(program).Inc()
	}
	m.computeUnits.Observe(float64(res.ComputeUnits))
}
