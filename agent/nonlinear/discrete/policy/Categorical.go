// Package policy implements policies over discrete action sets using
// nonlinear function approximation with Gorgonia.
package policy

import (
	"fmt"

	"github.com/samuelfneumann/relsac/agent"
	"github.com/samuelfneumann/relsac/network"
	"github.com/samuelfneumann/relsac/utils/floatutils"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Categorical implements a softmax policy over a discrete action set
// whose logits are predicted by an MLP.
//
// The policy owns two computational graphs. The training graph takes
// a full batch of observations and computes, besides the logits, the
// log-probability of externally inputted actions (given as one-hot
// "action indices") and the surrogate
//
//	Σ_b upstream[b] * log π(a_b | s_b) + regWeight * mean(logits²)
//
// whose gradient Backward accumulates. The optional rollout graph
// takes a single observation and is used by Act. Its parameters are a
// copy of the training parameters, refreshed before every action.
type Categorical struct {
	network.Base
	features   int
	numActions int
	batch      int

	src rand.Source
	rng *rand.Rand

	net           *network.MLP
	obs           *G.Node
	actionIndices *G.Node
	upstream      *G.Node
	regWeight     *G.Node
	logitsVal     G.Value
	vm            G.VM

	rollout       *network.MLP
	rolloutObs    *G.Node
	rolloutLogits G.Value
	rolloutVM     G.VM
}

// NewCategorical returns a new Categorical policy over numActions
// actions for observations of the given number of features. The batch
// parameter fixes the number of observations passed to Forward and
// Backward and must be at least 2. If withRollout is true, a batch one
// graph is added so that the policy can Act.
func NewCategorical(name string, features, numActions, batch int,
	hidden []int, init G.InitWFn, withRollout bool,
	seed uint64) (*Categorical, error) {
	if batch < 2 {
		return nil, fmt.Errorf("newCategorical: batch must be at least 2, "+
			"got %v", batch)
	}
	if numActions < 1 {
		return nil, fmt.Errorf("newCategorical: need at least one action")
	}

	src := rand.NewSource(seed)
	c := &Categorical{
		features:   features,
		numActions: numActions,
		batch:      batch,
		src:        src,
		rng:        rand.New(src),
	}

	if err := c.buildTrain(name, hidden, init); err != nil {
		return nil, fmt.Errorf("newCategorical: %w", err)
	}
	if withRollout {
		if err := c.buildRollout(name, hidden, init); err != nil {
			return nil, fmt.Errorf("newCategorical: %w", err)
		}
	}
	c.Base = network.NewBase(c.net.Params())

	return c, nil
}

// buildTrain builds the batched training graph
func (c *Categorical) buildTrain(name string, hidden []int,
	init G.InitWFn) error {
	g := G.NewGraph()

	net, err := network.NewMLP(g, name, c.features, hidden, c.numActions,
		network.LeakyReLU(), network.Identity(), init)
	if err != nil {
		return err
	}
	c.net = net

	c.obs = G.NewMatrix(g, tensor.Float64, G.WithShape(c.batch, c.features),
		G.WithName(name+"Obs"), G.WithInit(G.Zeroes()))
	c.actionIndices = G.NewMatrix(g, tensor.Float64,
		G.WithShape(c.batch, c.numActions), G.WithName(name+"ActionIndices"),
		G.WithInit(G.Zeroes()))
	c.upstream = G.NewVector(g, tensor.Float64, G.WithShape(c.batch),
		G.WithName(name+"Upstream"), G.WithInit(G.Zeroes()))
	c.regWeight = G.NewScalar(g, tensor.Float64, G.WithName(name+"RegWeight"),
		G.WithValue(0.0))

	logits, err := net.Fwd(c.obs)
	if err != nil {
		return err
	}

	// Log probability of the actions inputted through actionIndices
	selected := G.Must(G.HadamardProd(c.actionIndices, logits))
	selected = G.Must(G.Sum(selected, 1))
	logPi := G.Must(G.Sub(selected, LogSumExp(logits, c.batch)))

	surrogate := G.Must(G.Sum(G.Must(G.HadamardProd(logPi, c.upstream))))
	reg := G.Must(G.Mean(G.Must(G.Square(logits))))
	cost := G.Must(G.Add(surrogate, G.Must(G.Mul(c.regWeight, reg))))

	learnables := network.Nodes(net.Params())
	if _, err := G.Grad(cost, learnables...); err != nil {
		return fmt.Errorf("could not compute gradient: %w", err)
	}

	G.Read(logits, &c.logitsVal)
	c.vm = G.NewTapeMachine(g, G.BindDualValues(learnables...))
	return nil
}

// buildRollout builds the single observation graph used to act
func (c *Categorical) buildRollout(name string, hidden []int,
	init G.InitWFn) error {
	g := G.NewGraph()

	net, err := network.NewMLP(g, name+"Rollout", c.features, hidden,
		c.numActions, network.LeakyReLU(), network.Identity(), init)
	if err != nil {
		return err
	}
	c.rollout = net

	c.rolloutObs = G.NewMatrix(g, tensor.Float64, G.WithShape(1, c.features),
		G.WithName(name+"RolloutObs"), G.WithInit(G.Zeroes()))
	logits, err := net.Fwd(c.rolloutObs)
	if err != nil {
		return err
	}

	G.Read(logits, &c.rolloutLogits)
	c.rolloutVM = G.NewTapeMachine(g)
	return nil
}

// LogSumExp adds to the graph the log-sum-exp of each row of logits,
// which has the given number of rows.
func LogSumExp(logits *G.Node, rows int) *G.Node {
	// Calculate the max logit per row
	max := G.Must(G.Max(logits, 1))
	column := G.Must(G.Reshape(max, tensor.Shape{rows, 1}))

	exponent := G.Must(G.BroadcastSub(logits, column, nil, []byte{1}))
	exponent = G.Must(G.Exp(exponent))

	// Sum along rows
	sum := G.Must(G.Sum(exponent, 1))

	return G.Must(G.Add(max, G.Must(G.Log(sum))))
}

// NumActions implements the agent.Policy interface
func (c *Categorical) NumActions() int {
	return c.numActions
}

// Forward implements the agent.Policy interface
func (c *Categorical) Forward(obs *tensor.Dense) (*agent.PolicySample,
	error) {
	if err := c.checkObs("forward", obs); err != nil {
		return nil, err
	}
	logits, err := c.run(obs, nil, nil, 0)
	if err != nil {
		return nil, fmt.Errorf("forward: %w", err)
	}

	sample := &agent.PolicySample{
		Actions: make([]int, c.batch),
		LogPi:   make([]float64, c.batch),
	}
	probs := make([]float64, c.batch*c.numActions)
	oneHot := make([]float64, c.batch*c.numActions)

	var entropy, reg float64
	for b := 0; b < c.batch; b++ {
		row := logits[b*c.numActions : (b+1)*c.numActions]
		p := floatutils.Softmax(probs[b*c.numActions:(b+1)*c.numActions], row)
		lse := floatutils.LogSumExp(row)

		a := int(distuv.NewCategorical(p, c.src).Rand())
		sample.Actions[b] = a
		sample.LogPi[b] = row[a] - lse
		oneHot[b*c.numActions+a] = 1

		for j, l := range row {
			if p[j] > 0 {
				entropy -= p[j] * (l - lse)
			}
			reg += l * l
		}
	}

	sample.Entropy = entropy / float64(c.batch)
	sample.Regularizers = []float64{reg / float64(len(logits))}
	sample.Probs = mat.NewDense(c.batch, c.numActions, probs)
	sample.OneHot = tensor.New(tensor.WithShape(c.batch, c.numActions),
		tensor.WithBacking(oneHot))

	return sample, nil
}

// Backward implements the agent.Policy interface
func (c *Categorical) Backward(obs *tensor.Dense, actions []int,
	dLogPi []float64, regWeight float64) error {
	if err := c.checkObs("backward", obs); err != nil {
		return err
	}
	if len(actions) != c.batch || len(dLogPi) != c.batch {
		return network.Errorf("backward", network.ShapeMismatch,
			"got %v actions and %v upstream gradients, want %v", len(actions),
			len(dLogPi), c.batch)
	}

	indices := make([]float64, c.batch*c.numActions)
	for b, a := range actions {
		if a < 0 || a >= c.numActions {
			return fmt.Errorf("backward: action %v out of range [0, %v)", a,
				c.numActions)
		}
		indices[b*c.numActions+a] = 1
	}

	if _, err := c.run(obs, indices, dLogPi, regWeight); err != nil {
		return fmt.Errorf("backward: %w", err)
	}
	return nil
}

// run runs the training graph once and, if upstream is not nil,
// accumulates the resulting gradients. The logits are returned.
func (c *Categorical) run(obs *tensor.Dense, indices, upstream []float64,
	regWeight float64) ([]float64, error) {
	defer c.vm.Reset()

	accumulate := upstream != nil
	if indices == nil {
		indices = make([]float64, c.batch*c.numActions)
	}
	if upstream == nil {
		upstream = make([]float64, c.batch)
	}

	if err := G.Let(c.obs, obs); err != nil {
		return nil, err
	}
	err := G.Let(c.actionIndices, tensor.New(
		tensor.WithShape(c.batch, c.numActions),
		tensor.WithBacking(indices),
	))
	if err != nil {
		return nil, err
	}
	err = G.Let(c.upstream, tensor.New(
		tensor.WithShape(c.batch),
		tensor.WithBacking(append([]float64(nil), upstream...)),
	))
	if err != nil {
		return nil, err
	}
	if err := G.Let(c.regWeight, regWeight); err != nil {
		return nil, err
	}

	network.ZeroNodeGrads(c.Params())
	if err := c.vm.RunAll(); err != nil {
		return nil, err
	}

	if accumulate {
		for _, p := range c.Params() {
			if err := p.AccumulateNode(); err != nil {
				return nil, err
			}
		}
	}

	logits := c.logitsVal.Data().([]float64)
	return append([]float64(nil), logits...), nil
}

// Act implements the agent.Policy interface
func (c *Categorical) Act(obs []float64, explore bool) (int, error) {
	if c.rollout == nil {
		return 0, fmt.Errorf("act: policy has no rollout graph")
	}
	if len(obs) != c.features {
		return 0, network.Errorf("act", network.ShapeMismatch,
			"observation has %v features, want %v", len(obs), c.features)
	}
	if err := network.HardUpdate(c.rollout, c.net); err != nil {
		return 0, fmt.Errorf("act: %w", err)
	}
	defer c.rolloutVM.Reset()

	err := G.Let(c.rolloutObs, tensor.New(
		tensor.WithShape(1, c.features),
		tensor.WithBacking(append([]float64(nil), obs...)),
	))
	if err != nil {
		return 0, fmt.Errorf("act: %w", err)
	}
	if err := c.rolloutVM.RunAll(); err != nil {
		return 0, fmt.Errorf("act: %w", err)
	}
	logits := c.rolloutLogits.Data().([]float64)

	if explore {
		p := floatutils.Softmax(nil, logits)
		return int(distuv.NewCategorical(p, c.src).Rand()), nil
	}

	// Break ties between maximal logits randomly
	_, maxIndices := floatutils.MaxSlice(logits)
	if len(maxIndices) == 1 {
		return maxIndices[0], nil
	}
	return maxIndices[c.rng.Intn(len(maxIndices))], nil
}

// Close releases the policy's tape machines
func (c *Categorical) Close() error {
	err := c.vm.Close()
	if c.rolloutVM != nil {
		if rErr := c.rolloutVM.Close(); err == nil {
			err = rErr
		}
	}
	return err
}

func (c *Categorical) checkObs(op string, obs *tensor.Dense) error {
	if obs == nil {
		return network.Errorf(op, network.ShapeMismatch, "nil observations")
	}
	shape := obs.Shape()
	if len(shape) != 2 || shape[0] != c.batch || shape[1] != c.features {
		return network.Errorf(op, network.ShapeMismatch,
			"observations have shape %v, want (%v, %v)", shape, c.batch,
			c.features)
	}
	return nil
}
