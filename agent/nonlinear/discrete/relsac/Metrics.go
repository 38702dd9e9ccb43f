package relsac

// MetricsSink receives named scalar diagnostics together with the
// training iteration they were produced at.
type MetricsSink interface {
	Record(name string, value float64, step int)
}

// nopSink discards every metric
type nopSink struct{}

func (nopSink) Record(string, float64, int) {}
