package network

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Module is anything that owns an ordered list of learnable parameters.
// Two modules of the same architecture list their parameters in the
// same order with the same shapes.
type Module interface {
	Params() []*Param
}

// Param is a single learnable tensor together with its gradient
// accumulator.
//
// Gradients computed by a Gorgonia tape machine are transient: they
// live on the graph's dual values only until the machine is reset.
// A Param keeps its own accumulator so that gradients from several
// backward passes can be summed, scaled and clipped before an
// optimizer step, and so that frozen parameters can refuse
// accumulation altogether.
//
// Param implements G.ValueGrad, so Gorgonia solvers can step it.
type Param struct {
	name   string
	node   *G.Node
	value  *tensor.Dense
	grad   *tensor.Dense
	frozen bool
	shared bool
}

// NewParam returns a new Param over value which is not backed by any
// computational graph.
func NewParam(name string, value *tensor.Dense) *Param {
	return &Param{
		name:  name,
		value: value,
		grad:  tensor.NewDense(tensor.Float64, value.Shape().Clone()),
	}
}

// NodeParam returns a new Param backed by the learnable node n. The
// node must already hold a *tensor.Dense value.
func NodeParam(n *G.Node) (*Param, error) {
	value, ok := n.Value().(*tensor.Dense)
	if !ok || value == nil {
		return nil, fmt.Errorf("nodeParam: node %v has no dense value", n.Name())
	}
	if value.Dtype() != tensor.Float64 {
		return nil, fmt.Errorf("nodeParam: node %v has dtype %v, want float64",
			n.Name(), value.Dtype())
	}
	p := NewParam(n.Name(), value)
	p.node = n
	return p, nil
}

// Name returns the parameter's name
func (p *Param) Name() string {
	return p.name
}

// Node returns the graph node backing the parameter, or nil
func (p *Param) Node() *G.Node {
	return p.node
}

// Tensor returns the tensor holding the parameter's value
func (p *Param) Tensor() *tensor.Dense {
	if p.node != nil {
		if v, ok := p.node.Value().(*tensor.Dense); ok && v != nil {
			return v
		}
	}
	return p.value
}

// Value implements G.Valuer
func (p *Param) Value() G.Value {
	return p.Tensor()
}

// Grad implements G.ValueGrad by returning the accumulated gradient
func (p *Param) Grad() (G.Value, error) {
	return p.grad, nil
}

// Data returns the parameter's backing values. Writes are visible to
// the network.
func (p *Param) Data() []float64 {
	return p.Tensor().Float64s()
}

// GradData returns the accumulated gradient's backing values
func (p *Param) GradData() []float64 {
	return p.grad.Float64s()
}

// Shape returns the parameter's shape
func (p *Param) Shape() tensor.Shape {
	return p.Tensor().Shape()
}

// RequiresGrad returns whether gradients are accumulated into p
func (p *Param) RequiresGrad() bool {
	return !p.frozen
}

// SetRequiresGrad enables or disables gradient accumulation
func (p *Param) SetRequiresGrad(requires bool) {
	p.frozen = !requires
}

// Shared returns whether the parameter is shared by all agents
func (p *Param) Shared() bool {
	return p.shared
}

// MarkShared flags the parameter as shared by all agents
func (p *Param) MarkShared() {
	p.shared = true
}

// Accumulate adds g to the accumulated gradient. Nothing is added when
// the parameter is frozen.
func (p *Param) Accumulate(g []float64) error {
	if p.frozen {
		return nil
	}
	dst := p.GradData()
	if len(g) != len(dst) {
		return Errorf("accumulate", ShapeMismatch,
			"gradient of length %v for parameter %v of shape %v", len(g),
			p.name, p.Shape())
	}
	floats.Add(dst, g)
	return nil
}

// AccumulateNode adds the gradient currently held by the backing
// graph node to the accumulated gradient and clears the node gradient.
// It must be called after a tape machine run and before the machine is
// reset. A frozen parameter only has its node gradient cleared.
func (p *Param) AccumulateNode() error {
	if p.node == nil {
		return fmt.Errorf("accumulateNode: parameter %v has no node", p.name)
	}
	g, err := p.node.Grad()
	if err != nil {
		return fmt.Errorf("accumulateNode: %v: %w", p.name, err)
	}
	dense, ok := g.(*tensor.Dense)
	if !ok {
		return fmt.Errorf("accumulateNode: %v: unexpected gradient type %T",
			p.name, g)
	}
	defer dense.Zero()

	if p.frozen {
		return nil
	}
	return p.Accumulate(dense.Float64s())
}

// ZeroNodeGrad clears the gradient held by the backing graph node.
// Tape machines add into node gradients on every run, so this must
// happen before each run whose gradients are read.
func (p *Param) ZeroNodeGrad() {
	if p.node == nil {
		return
	}
	g, err := p.node.Grad()
	if err != nil {
		// No dual value is bound yet
		return
	}
	if dense, ok := g.(*tensor.Dense); ok {
		dense.Zero()
	}
}

// Nodes returns the graph nodes backing params, in order
func Nodes(params []*Param) G.Nodes {
	nodes := make(G.Nodes, 0, len(params))
	for _, p := range params {
		if p.node != nil {
			nodes = append(nodes, p.node)
		}
	}
	return nodes
}

// Model returns params as Gorgonia ValueGrads so that Gorgonia solvers
// may step them.
func Model(params []*Param) []G.ValueGrad {
	model := make([]G.ValueGrad, len(params))
	for i, p := range params {
		model[i] = p
	}
	return model
}
