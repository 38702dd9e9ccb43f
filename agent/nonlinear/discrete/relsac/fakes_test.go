package relsac

import (
	"errors"
	"fmt"

	"github.com/samuelfneumann/relsac/agent"
	"github.com/samuelfneumann/relsac/network"
	"github.com/samuelfneumann/relsac/utils/floatutils"
	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"
)

func newTestParam(name string, values ...float64) *network.Param {
	return network.NewParam(name, tensor.New(tensor.WithShape(len(values)),
		tensor.WithBacking(append([]float64(nil), values...))))
}

// fakePolicy is a state independent softmax policy with logits θ. The
// sampled action of row b is fixed to b mod k so that updates are
// deterministic.
type fakePolicy struct {
	network.Base
	k int

	transfers int
	// failAccelerator makes every move to the accelerator fail
	failAccelerator bool

	// watched is inspected during Backward to observe the gradient gate
	watched       network.Module
	watchedFrozen []bool
	backwards     int
}

func newFakePolicy(k int) *fakePolicy {
	theta := make([]float64, k)
	for a := range theta {
		theta[a] = 0.1 * float64(a+1)
	}
	return &fakePolicy{
		Base: network.NewBase([]*network.Param{newTestParam("theta", theta...)}),
		k:    k,
	}
}

func (f *fakePolicy) theta() []float64 { return f.Params()[0].Data() }

func (f *fakePolicy) To(d network.Device) error {
	if f.failAccelerator && d == network.Accelerator {
		return errors.New("accelerator unavailable")
	}
	f.transfers++
	return f.Base.To(d)
}

func (f *fakePolicy) NumActions() int { return f.k }

func (f *fakePolicy) Forward(obs *tensor.Dense) (*agent.PolicySample, error) {
	batch := obs.Shape()[0]
	theta := f.theta()
	p := floatutils.Softmax(nil, theta)
	lse := floatutils.LogSumExp(theta)

	sample := &agent.PolicySample{
		Actions: make([]int, batch),
		LogPi:   make([]float64, batch),
	}
	oneHot := make([]float64, batch*f.k)
	probs := make([]float64, 0, batch*f.k)
	var reg float64
	for _, l := range theta {
		reg += l * l
	}
	for b := 0; b < batch; b++ {
		a := b % f.k
		sample.Actions[b] = a
		sample.LogPi[b] = theta[a] - lse
		oneHot[b*f.k+a] = 1
		probs = append(probs, p...)
	}
	for a := range p {
		sample.Entropy -= p[a] * (theta[a] - lse)
	}
	sample.Regularizers = []float64{reg / float64(f.k)}
	sample.Probs = mat.NewDense(batch, f.k, probs)
	sample.OneHot = tensor.New(tensor.WithShape(batch, f.k),
		tensor.WithBacking(oneHot))
	return sample, nil
}

func (f *fakePolicy) Backward(obs *tensor.Dense, actions []int,
	dLogPi []float64, regWeight float64) error {
	f.backwards++
	if f.watched != nil {
		// Mimic backpropagation through the critic
		for _, p := range f.watched.Params() {
			f.watchedFrozen = append(f.watchedFrozen, !p.RequiresGrad())
			ones := make([]float64, len(p.Data()))
			for j := range ones {
				ones[j] = 1
			}
			if err := p.Accumulate(ones); err != nil {
				return err
			}
		}
	}

	theta := f.theta()
	p := floatutils.Softmax(nil, theta)
	grad := make([]float64, f.k)
	for b, a := range actions {
		for j := range grad {
			indicator := 0.0
			if j == a {
				indicator = 1
			}
			grad[j] += dLogPi[b] * (indicator - p[j])
		}
	}
	for j := range grad {
		grad[j] += regWeight * 2 * theta[j] / float64(f.k)
	}
	return f.Params()[0].Accumulate(grad)
}

func (f *fakePolicy) Act(obs []float64, explore bool) (int, error) {
	_, max := floatutils.MaxSlice(f.theta())
	return max[0], nil
}

// fakeCritic computes
//
//	Q_i(s, a) = shared + bias_i + Σ_a head_i[a] * onehot_i[a]
//
// so that all of its gradients are known in closed form. The shared
// parameter receives a contribution from every agent.
type fakeCritic struct {
	network.Base
	numActions      []int
	transfers       int
	forwards        int
	failAccelerator bool
}

func newFakeCritic(numActions []int) *fakeCritic {
	params := []*network.Param{newTestParam("shared", 0.5)}
	params[0].MarkShared()

	biases := make([]float64, len(numActions))
	for i := range biases {
		biases[i] = 0.1 * float64(i)
	}
	params = append(params, newTestParam("bias", biases...))
	for i, k := range numActions {
		head := make([]float64, k)
		for a := range head {
			head[a] = 0.2 * float64(a)
		}
		params = append(params, newTestParam(fmt.Sprintf("head%v", i), head...))
	}
	return &fakeCritic{Base: network.NewBase(params), numActions: numActions}
}

func (f *fakeCritic) To(d network.Device) error {
	if f.failAccelerator && d == network.Accelerator {
		return errors.New("accelerator unavailable")
	}
	f.transfers++
	return f.Base.To(d)
}

func (f *fakeCritic) Forward(in agent.CriticInput,
	allQ bool) ([]agent.CriticOutput, error) {
	f.forwards++
	if len(in.Actions) != len(f.numActions) {
		return nil, network.Errorf("forward", network.ShapeMismatch,
			"actions for %v agents", len(in.Actions))
	}
	shared := f.Params()[0].Data()[0]
	bias := f.Params()[1].Data()

	out := make([]agent.CriticOutput, len(f.numActions))
	for i, k := range f.numActions {
		head := f.Params()[2+i].Data()
		acts := in.Actions[i].Float64s()
		batch := len(acts) / k

		q := make([]float64, batch)
		all := make([]float64, batch*k)
		for b := 0; b < batch; b++ {
			q[b] = shared + bias[i]
			for a := 0; a < k; a++ {
				q[b] += head[a] * acts[b*k+a]
				all[b*k+a] = shared + bias[i] + head[a]
			}
		}
		out[i].Q = q
		if allQ {
			out[i].AllQ = mat.NewDense(batch, k, all)
		}
	}
	return out, nil
}

func (f *fakeCritic) Backward(in agent.CriticInput, dQ [][]float64) error {
	params := f.Params()
	var dShared float64
	dBias := make([]float64, len(f.numActions))
	for i, k := range f.numActions {
		acts := in.Actions[i].Float64s()
		dHead := make([]float64, k)
		for b, g := range dQ[i] {
			dShared += g
			dBias[i] += g
			for a := 0; a < k; a++ {
				dHead[a] += g * acts[b*k+a]
			}
		}
		if err := params[2+i].Accumulate(dHead); err != nil {
			return err
		}
	}
	if err := params[0].Accumulate([]float64{dShared}); err != nil {
		return err
	}
	return params[1].Accumulate(dBias)
}

func (f *fakeCritic) ScaleSharedGradients(factor float64) {
	network.ScaleGrads(network.SharedParams(f.Params()), factor)
}

// fakeBuilder builds fake networks and remembers them in build order
type fakeBuilder struct {
	policies []*fakePolicy
	critics  []*fakeCritic
}

func (b *fakeBuilder) Policy(c Config, i int, rollout bool,
	seed uint64) (agent.Policy, error) {
	p := newFakePolicy(c.NumActions[i])
	b.policies = append(b.policies, p)
	return p, nil
}

func (b *fakeBuilder) Critic(c Config) (agent.Critic, error) {
	cr := newFakeCritic(c.NumActions)
	b.critics = append(b.critics, cr)
	return cr, nil
}

// live returns the live policy of agent i
func (b *fakeBuilder) live(i int) *fakePolicy { return b.policies[2*i] }

// target returns the target policy of agent i
func (b *fakeBuilder) target(i int) *fakePolicy { return b.policies[2*i+1] }

// memorySink stores every recorded metric
type memorySink struct {
	values map[string][]float64
	steps  map[string][]int
}

func newMemorySink() *memorySink {
	return &memorySink{values: map[string][]float64{}, steps: map[string][]int{}}
}

func (m *memorySink) Record(name string, value float64, step int) {
	m.values[name] = append(m.values[name], value)
	m.steps[name] = append(m.steps[name], step)
}
