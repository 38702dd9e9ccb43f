// Package metrics implements sinks for the scalar metrics recorded
// during training
package metrics

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Sink records named scalar values at a step
type Sink interface {
	Record(name string, value float64, step int)
}

// Nop discards every record
type Nop struct{}

// Record implements the Sink interface
func (Nop) Record(string, float64, int) {}

// Point is a single recorded value
type Point struct {
	Step  int
	Value float64
}

// Memory stores every record in memory. It is safe for concurrent use.
type Memory struct {
	mu     sync.Mutex
	series map[string][]Point
}

// NewMemory returns a new, empty Memory sink
func NewMemory() *Memory {
	return &Memory{series: make(map[string][]Point)}
}

// Record implements the Sink interface
func (m *Memory) Record(name string, value float64, step int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.series[name] = append(m.series[name], Point{Step: step, Value: value})
}

// Series returns a copy of the points recorded under name
func (m *Memory) Series(name string) []Point {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Point(nil), m.series[name]...)
}

// Last returns the most recent value recorded under name
func (m *Memory) Last(name string) (Point, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.series[name]
	if len(s) == 0 {
		return Point{}, false
	}
	return s[len(s)-1], true
}

// Names returns the sorted names of all recorded series
func (m *Memory) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.series))
	for name := range m.series {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Zap debug logs every record
type Zap struct {
	logger *zap.Logger
}

// NewZap returns a sink logging to logger
func NewZap(logger *zap.Logger) Zap {
	return Zap{logger: logger}
}

// Record implements the Sink interface
func (z Zap) Record(name string, value float64, step int) {
	z.logger.Debug("metric", zap.String("name", name),
		zap.Float64("value", value), zap.Int("step", step))
}

// Multi fans every record out to several sinks
type Multi []Sink

// Record implements the Sink interface
func (m Multi) Record(name string, value float64, step int) {
	for _, s := range m {
		s.Record(name, value, step)
	}
}
