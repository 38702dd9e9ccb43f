package relsac

import (
	"fmt"

	"github.com/samuelfneumann/relsac/agent"
	"github.com/samuelfneumann/relsac/network"
	"github.com/samuelfneumann/relsac/solver"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gorgonia.org/tensor"
)

// criticClipPerAgent is the gradient norm budget of the critic per
// agent
const criticClipPerAgent = 10.0

// CriticStats summarizes one critic update
type CriticStats struct {
	Loss      float64
	GradNorm  float64 // Norm after shared scaling, before clipping
	Iteration int     // Iteration counter after the update
}

// CriticEngine updates a centralized critic towards soft Bellman
// targets computed with a target critic and target policies. It owns
// the training iteration counter.
type CriticEngine struct {
	config   Config
	metrics  MetricsSink
	detailed bool
	logger   *zap.Logger

	iterations int
}

// NewCriticEngine returns a CriticEngine for c. A nil metrics sink or
// logger discards its output. If detailed is true, the per-parameter
// gradient and weight statistics are also recorded.
func NewCriticEngine(c Config, metrics MetricsSink, detailed bool,
	logger *zap.Logger) *CriticEngine {
	if metrics == nil {
		metrics = nopSink{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CriticEngine{
		config:   c,
		metrics:  metrics,
		detailed: detailed,
		logger:   logger,
	}
}

// Iterations returns the number of completed critic updates
func (e *CriticEngine) Iterations() int {
	return e.iterations
}

// Update performs a single optimizer step on critic with the loss
//
//	L = Σ_i mean_b (Q_i(s, a)[b] - y_i[b])²
//	y_i = r_i + γ Q'_i(s', a')(1 - done_i) [- log π'_i(a'_i | o'_i) / R]
//
// where Q' is targetCritic, a' are sampled from the target policies and
// the entropy term is only subtracted if soft is true. The targets are
// constants of the loss.
func (e *CriticEngine) Update(b Batch, critic, targetCritic agent.Critic,
	opt solver.Optimizer, targetPolicies []agent.Policy,
	soft bool) (CriticStats, error) {
	c := e.config
	if err := b.Validate(c); err != nil {
		return CriticStats{}, fmt.Errorf("updateCritic: %w", err)
	}
	if len(targetPolicies) != c.NAgents {
		return CriticStats{}, fmt.Errorf("updateCritic: %v target policies "+
			"for %v agents", len(targetPolicies), c.NAgents)
	}
	if err := e.checkDevices(critic, targetCritic, targetPolicies); err != nil {
		return CriticStats{}, err
	}

	// Next actions and their log-probabilities under the target policies
	nextActions := make([]*tensor.Dense, c.NAgents)
	nextLogPi := make([][]float64, c.NAgents)
	for i, pi := range targetPolicies {
		sample, err := pi.Forward(b.NextObs[i])
		if err != nil {
			return CriticStats{}, fmt.Errorf("updateCritic: agent %v: target "+
				"policy: %w", i, err)
		}
		nextActions[i] = sample.OneHot
		nextLogPi[i] = sample.LogPi
	}

	nextQ, err := targetCritic.Forward(b.Next(nextActions), false)
	if err != nil {
		return CriticStats{}, fmt.Errorf("updateCritic: target critic: %w",
			err)
	}
	current := b.Current()
	q, err := critic.Forward(current, false)
	if err != nil {
		return CriticStats{}, fmt.Errorf("updateCritic: critic: %w", err)
	}

	batch := float64(c.BatchSize)
	var loss float64
	dQ := make([][]float64, c.NAgents)
	for i := 0; i < c.NAgents; i++ {
		target := e.targets(b.Rewards[i], b.Dones[i], nextQ[i].Q,
			nextLogPi[i], soft)

		dQ[i] = make([]float64, c.BatchSize)
		var agentLoss float64
		for s := range target {
			diff := q[i].Q[s] - target[s]
			agentLoss += diff * diff
			dQ[i][s] = 2 * diff / batch
		}
		loss += agentLoss / batch
	}

	params := critic.Params()
	network.ZeroGrad(params)
	if err := critic.Backward(current, dQ); err != nil {
		return CriticStats{}, fmt.Errorf("updateCritic: backward: %w", err)
	}

	step := e.iterations + 1
	if e.detailed {
		e.recordParams(params, step)
	}

	// Shared parameters receive one gradient contribution per agent
	critic.ScaleSharedGradients(1 / float64(c.NAgents))
	norm, err := network.ClipGradNorm(params,
		criticClipPerAgent*float64(c.NAgents))
	if err != nil {
		return CriticStats{}, fmt.Errorf("updateCritic: %w", err)
	}
	if err := opt.Step(); err != nil {
		return CriticStats{}, fmt.Errorf("updateCritic: step: %w", err)
	}
	opt.ZeroGrad()

	e.iterations = step
	e.metrics.Record("losses/q_loss", loss, step)
	e.metrics.Record("grad_norms/q", norm, step)
	e.logger.Debug("critic updated",
		zap.Int("iteration", step),
		zap.Float64("loss", loss),
		zap.Float64("grad_norm", norm),
	)

	return CriticStats{Loss: loss, GradNorm: norm, Iteration: step}, nil
}

// targets returns the Bellman targets of one agent
func (e *CriticEngine) targets(rewards, dones, nextQ, logPi []float64,
	soft bool) []float64 {
	y := make([]float64, len(rewards))
	for s := range y {
		y[s] = rewards[s] + e.config.Gamma*nextQ[s]*(1-dones[s])
		if soft {
			y[s] -= logPi[s] / e.config.RewardScale
		}
	}
	return y
}

func (e *CriticEngine) checkDevices(critic, targetCritic agent.Critic,
	targetPolicies []agent.Policy) error {
	names := []string{"critic", "target critic"}
	nets := []network.Placeable{critic, targetCritic}
	for i, pi := range targetPolicies {
		names = append(names, fmt.Sprintf("target policy %v", i))
		nets = append(nets, pi)
	}
	return network.SameDevice("updateCritic", names, nets...)
}

// recordParams records gradient and weight statistics of every
// parameter before shared scaling and clipping
func (e *CriticEngine) recordParams(params []*network.Param, step int) {
	for _, p := range params {
		grad := p.GradData()
		sum := floats.Sum(grad)
		e.metrics.Record("grad/sum_"+p.Name(), sum, step)
		e.metrics.Record("grad/mean_"+p.Name(), sum/float64(len(grad)), step)
		e.metrics.Record("weight/mean_"+p.Name(),
			floats.Sum(p.Data())/float64(len(p.Data())), step)
	}
}
