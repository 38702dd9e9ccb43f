package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus exports the latest value of every metric.
//
// Metrics:
//   - relsac_metric{name} - Most recent value recorded under name
//   - relsac_metric_step{name} - Step of the most recent value
//   - relsac_records_total - Count of recorded values
type Prometheus struct {
	values  *prometheus.GaugeVec
	steps   *prometheus.GaugeVec
	records prometheus.Counter
}

// NewPrometheus creates a Prometheus sink and registers its collectors
// with reg.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	factory := promauto.With(reg)
	return &Prometheus{
		values: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "relsac_metric",
				Help: "Most recent value of a training metric",
			},
			[]string{"name"},
		),
		steps: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "relsac_metric_step",
				Help: "Step at which a training metric was last recorded",
			},
			[]string{"name"},
		),
		records: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "relsac_records_total",
				Help: "Total number of recorded metric values",
			},
		),
	}
}

// Record implements the Sink interface
func (p *Prometheus) Record(name string, value float64, step int) {
	p.values.WithLabelValues(name).Set(value)
	p.steps.WithLabelValues(name).Set(float64(step))
	p.records.Inc()
}
