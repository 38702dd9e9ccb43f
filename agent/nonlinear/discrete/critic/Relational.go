// Package critic implements centralized action-value critics for
// multi-agent actor-critic algorithms using Gorgonia.
package critic

import (
	"fmt"

	"github.com/samuelfneumann/relsac/agent"
	"github.com/samuelfneumann/relsac/network"
	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Config describes the architecture of a Relational critic
type Config struct {
	ObsDims    []int // Observation features of each agent
	NumActions []int // Action set size of each agent
	UnaryDim   int   // Flattened per-sample size of unary features
	BinaryDim  int   // Flattened per-sample size of binary features
	Hidden     int
	Batch      int
	Init       G.InitWFn
}

// Relational is a centralized critic in which each agent's value is
// conditioned on its own observation, a relational embedding of the
// scene and the mean message of all other agents:
//
//	e_i     = enc_i([o_i, a_i])
//	r_i     = rel([unary_i, binary_i])         (shared)
//	m_i     = msg(e_i)                         (shared)
//	s_i     = state_i([o_i, r_i])
//	Q_i(·)  = head_i([s_i, mean_{j≠i} m_j])
//
// The relational encoder and the message layer are shared between all
// agents; their gradients receive contributions from every agent and
// are flagged as shared parameters.
type Relational struct {
	network.Base
	config  Config
	nAgents int

	obs, unary, binary, actions []*G.Node
	upstream                    []*G.Node
	allQ                        []G.Value

	vm G.VM
}

type agentNets struct {
	enc, state, head *network.MLP
}

// NewRelational returns a new Relational critic. The batch size must be
// at least 2.
func NewRelational(c Config) (*Relational, error) {
	n := len(c.ObsDims)
	switch {
	case n == 0:
		return nil, fmt.Errorf("newRelational: no agents")
	case len(c.NumActions) != n:
		return nil, fmt.Errorf("newRelational: %v observation sizes but %v "+
			"action set sizes", n, len(c.NumActions))
	case c.Batch < 2:
		return nil, fmt.Errorf("newRelational: batch must be at least 2, "+
			"got %v", c.Batch)
	case c.Hidden < 1:
		return nil, fmt.Errorf("newRelational: hidden size must be positive")
	case c.UnaryDim < 1 || c.BinaryDim < 1:
		return nil, fmt.Errorf("newRelational: unary and binary feature "+
			"sizes must be positive, got %v and %v", c.UnaryDim, c.BinaryDim)
	}

	r := &Relational{config: c, nAgents: n}
	g := G.NewGraph()
	lrelu := network.LeakyReLU()

	rel, err := network.NewMLP(g, "rel", c.UnaryDim+c.BinaryDim, nil,
		c.Hidden, nil, lrelu, c.Init)
	if err != nil {
		return nil, fmt.Errorf("newRelational: %w", err)
	}
	msg, err := network.NewMLP(g, "msg", c.Hidden, nil, c.Hidden, nil, lrelu,
		c.Init)
	if err != nil {
		return nil, fmt.Errorf("newRelational: %w", err)
	}
	params := append(append([]*network.Param{}, rel.Params()...),
		msg.Params()...)
	for _, p := range params {
		p.MarkShared()
	}

	nets := make([]agentNets, n)
	headIn := c.Hidden
	if n > 1 {
		headIn *= 2
	}
	for i := 0; i < n; i++ {
		nets[i].enc, err = network.NewMLP(g, fmt.Sprintf("enc%v", i),
			c.ObsDims[i]+c.NumActions[i], nil, c.Hidden, nil, lrelu, c.Init)
		if err != nil {
			return nil, fmt.Errorf("newRelational: %w", err)
		}
		nets[i].state, err = network.NewMLP(g, fmt.Sprintf("state%v", i),
			c.ObsDims[i]+c.Hidden, nil, c.Hidden, nil, lrelu, c.Init)
		if err != nil {
			return nil, fmt.Errorf("newRelational: %w", err)
		}
		nets[i].head, err = network.NewMLP(g, fmt.Sprintf("head%v", i),
			headIn, []int{c.Hidden}, c.NumActions[i], lrelu,
			network.Identity(), c.Init)
		if err != nil {
			return nil, fmt.Errorf("newRelational: %w", err)
		}
		params = append(params, nets[i].enc.Params()...)
		params = append(params, nets[i].state.Params()...)
		params = append(params, nets[i].head.Params()...)
	}

	if err := r.build(g, rel, msg, nets, params); err != nil {
		return nil, fmt.Errorf("newRelational: %w", err)
	}
	r.Base = network.NewBase(params)

	learnables := network.Nodes(params)
	r.vm = G.NewTapeMachine(g, G.BindDualValues(learnables...))
	return r, nil
}

// build adds the inputs, the forward pass and the gradient of the
// upstream weighted values to g
func (r *Relational) build(g *G.ExprGraph, rel, msg *network.MLP,
	nets []agentNets, params []*network.Param) error {
	c, n := r.config, r.nAgents
	input := func(name string, cols int) *G.Node {
		return G.NewMatrix(g, tensor.Float64, G.WithShape(c.Batch, cols),
			G.WithName(name), G.WithInit(G.Zeroes()))
	}

	r.obs = make([]*G.Node, n)
	r.unary = make([]*G.Node, n)
	r.binary = make([]*G.Node, n)
	r.actions = make([]*G.Node, n)
	r.upstream = make([]*G.Node, n)
	r.allQ = make([]G.Value, n)

	states := make([]*G.Node, n)
	messages := make([]*G.Node, n)
	for i := 0; i < n; i++ {
		r.obs[i] = input(fmt.Sprintf("obs%v", i), c.ObsDims[i])
		r.unary[i] = input(fmt.Sprintf("unary%v", i), c.UnaryDim)
		r.binary[i] = input(fmt.Sprintf("binary%v", i), c.BinaryDim)
		r.actions[i] = input(fmt.Sprintf("actions%v", i), c.NumActions[i])
		r.upstream[i] = G.NewVector(g, tensor.Float64, G.WithShape(c.Batch),
			G.WithName(fmt.Sprintf("upstream%v", i)), G.WithInit(G.Zeroes()))

		sa := G.Must(G.Concat(1, r.obs[i], r.actions[i]))
		embedding, err := nets[i].enc.Fwd(sa)
		if err != nil {
			return err
		}
		if messages[i], err = msg.Fwd(embedding); err != nil {
			return err
		}

		relational, err := rel.Fwd(G.Must(G.Concat(1, r.unary[i],
			r.binary[i])))
		if err != nil {
			return err
		}
		states[i], err = nets[i].state.Fwd(G.Must(G.Concat(1, r.obs[i],
			relational)))
		if err != nil {
			return err
		}
	}

	var cost *G.Node
	for i := 0; i < n; i++ {
		headIn := states[i]
		if n > 1 {
			headIn = G.Must(G.Concat(1, states[i], meanOthers(messages, i)))
		}
		allQ, err := nets[i].head.Fwd(headIn)
		if err != nil {
			return err
		}
		G.Read(allQ, &r.allQ[i])

		q := G.Must(G.Sum(G.Must(G.HadamardProd(allQ, r.actions[i])), 1))
		term := G.Must(G.Sum(G.Must(G.HadamardProd(q, r.upstream[i]))))
		if cost == nil {
			cost = term
		} else {
			cost = G.Must(G.Add(cost, term))
		}
	}

	if _, err := G.Grad(cost, network.Nodes(params)...); err != nil {
		return fmt.Errorf("could not compute gradient: %w", err)
	}
	return nil
}

// meanOthers returns the mean of all messages except the i-th
func meanOthers(messages []*G.Node, i int) *G.Node {
	var sum *G.Node
	for j, m := range messages {
		if j == i {
			continue
		}
		if sum == nil {
			sum = m
		} else {
			sum = G.Must(G.Add(sum, m))
		}
	}
	scale := G.NewConstant(1 / float64(len(messages)-1))
	return G.Must(G.Mul(sum, scale))
}

// Forward implements the agent.Critic interface
func (r *Relational) Forward(in agent.CriticInput,
	allQ bool) ([]agent.CriticOutput, error) {
	actions, err := r.run("forward", in, nil)
	if err != nil {
		return nil, err
	}

	b, out := r.config.Batch, make([]agent.CriticOutput, r.nAgents)
	for i := range out {
		k := r.config.NumActions[i]
		values := append([]float64(nil), r.allQ[i].Data().([]float64)...)
		acts := actions[i]

		q := make([]float64, b)
		for s := 0; s < b; s++ {
			for a := 0; a < k; a++ {
				q[s] += values[s*k+a] * acts[s*k+a]
			}
		}
		out[i].Q = q
		if allQ {
			out[i].AllQ = mat.NewDense(b, k, values)
		}
	}
	return out, nil
}

// Backward implements the agent.Critic interface
func (r *Relational) Backward(in agent.CriticInput, dQ [][]float64) error {
	if len(dQ) != r.nAgents {
		return network.Errorf("backward", network.ShapeMismatch,
			"upstream gradients for %v agents, want %v", len(dQ), r.nAgents)
	}
	for i := range dQ {
		if len(dQ[i]) != r.config.Batch {
			return network.Errorf("backward", network.ShapeMismatch,
				"agent %v: %v upstream gradients, want %v", i, len(dQ[i]),
				r.config.Batch)
		}
	}
	_, err := r.run("backward", in, dQ)
	return err
}

// ScaleSharedGradients implements the agent.Critic interface
func (r *Relational) ScaleSharedGradients(factor float64) {
	network.ScaleGrads(network.SharedParams(r.Params()), factor)
}

// Close releases the critic's tape machine
func (r *Relational) Close() error {
	return r.vm.Close()
}

// run binds in to the graph and runs it. If dQ is not nil, the
// resulting gradients are accumulated. The one-hot actions of each
// agent are returned.
func (r *Relational) run(op string, in agent.CriticInput,
	dQ [][]float64) ([][]float64, error) {
	if err := r.check(op, in); err != nil {
		return nil, err
	}
	defer r.vm.Reset()

	c := r.config
	actions := make([][]float64, r.nAgents)
	for i := 0; i < r.nAgents; i++ {
		bindings := []struct {
			node *G.Node
			t    *tensor.Dense
			cols int
		}{
			{r.obs[i], in.Obs[i], c.ObsDims[i]},
			{r.unary[i], in.Unary[i], c.UnaryDim},
			{r.binary[i], in.Binary[i], c.BinaryDim},
			{r.actions[i], in.Actions[i], c.NumActions[i]},
		}
		for _, bind := range bindings {
			if err := G.Let(bind.node, flatten(bind.t, c.Batch,
				bind.cols)); err != nil {
				return nil, fmt.Errorf("%v: %w", op, err)
			}
		}
		actions[i] = in.Actions[i].Float64s()

		upstream := make([]float64, c.Batch)
		if dQ != nil {
			copy(upstream, dQ[i])
		}
		err := G.Let(r.upstream[i], tensor.New(tensor.WithShape(c.Batch),
			tensor.WithBacking(upstream)))
		if err != nil {
			return nil, fmt.Errorf("%v: %w", op, err)
		}
	}

	network.ZeroNodeGrads(r.Params())
	if err := r.vm.RunAll(); err != nil {
		return nil, fmt.Errorf("%v: %w", op, err)
	}

	if dQ != nil {
		for _, p := range r.Params() {
			if err := p.AccumulateNode(); err != nil {
				return nil, fmt.Errorf("%v: %w", op, err)
			}
		}
	}
	return actions, nil
}

// check validates the shapes of every input tensor
func (r *Relational) check(op string, in agent.CriticInput) error {
	c := r.config
	fields := []struct {
		name    string
		tensors []*tensor.Dense
		size    func(i int) int
	}{
		{"obs", in.Obs, func(i int) int { return c.ObsDims[i] }},
		{"unary", in.Unary, func(int) int { return c.UnaryDim }},
		{"binary", in.Binary, func(int) int { return c.BinaryDim }},
		{"actions", in.Actions, func(i int) int { return c.NumActions[i] }},
	}

	for _, f := range fields {
		if len(f.tensors) != r.nAgents {
			return network.Errorf(op, network.ShapeMismatch,
				"%v for %v agents, want %v", f.name, len(f.tensors), r.nAgents)
		}
		for i, t := range f.tensors {
			if t == nil {
				return network.Errorf(op, network.ShapeMismatch,
					"agent %v: nil %v", i, f.name)
			}
			shape := t.Shape()
			if len(shape) == 0 || shape[0] != c.Batch ||
				shape.TotalSize() != c.Batch*f.size(i) {
				return network.Errorf(op, network.ShapeMismatch,
					"agent %v: %v has shape %v, want (%v, %v)", i, f.name,
					shape, c.Batch, f.size(i))
			}
		}
	}
	return nil
}

// flatten returns a (rows, cols) view of t's backing data
func flatten(t *tensor.Dense, rows, cols int) *tensor.Dense {
	if s := t.Shape(); len(s) == 2 && s[0] == rows && s[1] == cols {
		return t
	}
	return tensor.New(tensor.WithShape(rows, cols),
		tensor.WithBacking(t.Float64s()))
}
