package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// fcLayer implements a fully connected layer of a feed forward neural
// network
type fcLayer struct {
	weights *G.Node
	bias    *G.Node
	act     *Activation
}

// newFCLayer adds the learnable nodes of a fully connected layer to
// g. Weights have shape (inputs, outputs) and the bias has shape
// (1, outputs) so that it broadcasts along the batch dimension.
func newFCLayer(g *G.ExprGraph, name string, inputs, outputs int,
	act *Activation, init G.InitWFn) *fcLayer {
	weights := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(inputs, outputs),
		G.WithName(name+"W"),
		G.WithInit(init),
	)
	bias := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(1, outputs),
		G.WithName(name+"B"),
		G.WithInit(G.Zeroes()),
	)
	return &fcLayer{weights: weights, bias: bias, act: act}
}

// fwd adds the forward pass of the fcLayer to the computational graph
func (f *fcLayer) fwd(x *G.Node) (*G.Node, error) {
	out, err := G.Mul(x, f.weights)
	if err != nil {
		return nil, err
	}
	out, err = G.BroadcastAdd(out, f.bias, nil, []byte{0})
	if err != nil {
		return nil, err
	}
	return f.act.fwd(out)
}

// MLP is a multi-layered perceptron whose layers live on a single
// computational graph. The same MLP may be applied to several inputs
// on its graph; every application shares the MLP's parameters.
type MLP struct {
	name   string
	layers []*fcLayer
	params []*Param
}

// NewMLP adds the parameters of an MLP to g. Each hidden layer uses the
// activation hiddenAct and the output layer uses outAct. The name
// prefixes every parameter name and must be unique on g.
func NewMLP(g *G.ExprGraph, name string, inputs int, hidden []int,
	outputs int, hiddenAct, outAct *Activation, init G.InitWFn) (*MLP,
	error) {
	if inputs <= 0 || outputs <= 0 {
		return nil, fmt.Errorf("newMLP: %v: inputs and outputs must be "+
			"positive, got %v and %v", name, inputs, outputs)
	}

	sizes := append(append([]int{inputs}, hidden...), outputs)
	mlp := &MLP{name: name}
	for i := 0; i < len(sizes)-1; i++ {
		if sizes[i+1] <= 0 {
			return nil, fmt.Errorf("newMLP: %v: illegal layer size %v",
				name, sizes[i+1])
		}

		act := hiddenAct
		if i == len(sizes)-2 {
			act = outAct
		}
		layer := newFCLayer(g, fmt.Sprintf("%vL%v", name, i), sizes[i],
			sizes[i+1], act, init)
		mlp.layers = append(mlp.layers, layer)

		for _, n := range []*G.Node{layer.weights, layer.bias} {
			p, err := NodeParam(n)
			if err != nil {
				return nil, fmt.Errorf("newMLP: %w", err)
			}
			mlp.params = append(mlp.params, p)
		}
	}
	return mlp, nil
}

// Fwd adds the forward pass of the MLP on x to the graph and returns
// the output node.
func (m *MLP) Fwd(x *G.Node) (*G.Node, error) {
	var err error
	for i, layer := range m.layers {
		if x, err = layer.fwd(x); err != nil {
			return nil, fmt.Errorf("fwd: %v layer %v: %w", m.name, i, err)
		}
	}
	return x, nil
}

// Params implements the Module interface
func (m *MLP) Params() []*Param {
	return m.params
}
