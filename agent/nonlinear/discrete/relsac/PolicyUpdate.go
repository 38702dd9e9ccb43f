package relsac

import (
	"fmt"

	"github.com/samuelfneumann/relsac/agent"
	"github.com/samuelfneumann/relsac/network"
	"go.uber.org/zap"
	"gorgonia.org/tensor"
)

const (
	// RegWeight weighs the regularizers of each policy in its loss
	RegWeight = 1e-3

	// policyClip is the gradient norm budget of each policy
	policyClip = 0.5
)

// AgentPolicyStats summarizes the policy update of a single agent
type AgentPolicyStats struct {
	Loss      float64 // Objective plus weighted regularizers
	Objective float64
	Advantage float64 // Mean advantage of the sampled actions
	GradNorm  float64 // Norm before clipping
	Entropy   float64
}

// PolicyStats summarizes one update of all policies
type PolicyStats struct {
	Agents []AgentPolicyStats
}

// PolicyEngine updates the policies of all agents with a counterfactual
// baseline computed by the centralized critic.
type PolicyEngine struct {
	config  Config
	metrics MetricsSink
	logger  *zap.Logger
}

// NewPolicyEngine returns a PolicyEngine for c. A nil metrics sink or
// logger discards its output.
func NewPolicyEngine(c Config, metrics MetricsSink,
	logger *zap.Logger) *PolicyEngine {
	if metrics == nil {
		metrics = nopSink{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PolicyEngine{config: c, metrics: metrics, logger: logger}
}

// Update performs one optimizer step on the policy of every agent. Each
// agent samples an action from its live policy, and the critic
// evaluates the sampled joint action together with every alternative
// action of agent i. The advantage
//
//	A_i = Q_i(s, a) - Σ_a' π_i(a' | o_i) Q_i(s, (a', a_-i))
//
// is a constant of the loss
//
//	soft:      mean(log π_i(a_i | o_i) (log π_i(a_i | o_i) / R - A_i))
//	otherwise: mean(log π_i(a_i | o_i) (-A_i))
//
// to which the weighted policy regularizers are added. The critic is
// isolated from gradient accumulation during each backward pass. Metrics
// are recorded at the given step.
func (e *PolicyEngine) Update(b Batch, critic agent.Critic,
	agents []*Agent, soft bool, step int) (PolicyStats, error) {
	c := e.config
	if err := b.Validate(c); err != nil {
		return PolicyStats{}, fmt.Errorf("updatePolicies: %w", err)
	}
	if len(agents) != c.NAgents {
		return PolicyStats{}, fmt.Errorf("updatePolicies: %v agents, want %v",
			len(agents), c.NAgents)
	}
	if err := e.checkDevices(critic, agents); err != nil {
		return PolicyStats{}, err
	}

	samples := make([]*agent.PolicySample, c.NAgents)
	actions := make([]*tensor.Dense, c.NAgents)
	for i, a := range agents {
		sample, err := a.Policy.Forward(b.Obs[i])
		if err != nil {
			return PolicyStats{}, fmt.Errorf("updatePolicies: agent %v: %w",
				i, err)
		}
		samples[i] = sample
		actions[i] = sample.OneHot
		e.metrics.Record(fmt.Sprintf("agent%d/policy_entropy", i),
			sample.Entropy, step)
	}

	out, err := critic.Forward(agent.CriticInput{
		Obs:     b.Obs,
		Unary:   b.Unary,
		Binary:  b.Binary,
		Actions: actions,
	}, true)
	if err != nil {
		return PolicyStats{}, fmt.Errorf("updatePolicies: critic: %w", err)
	}

	stats := PolicyStats{Agents: make([]AgentPolicyStats, c.NAgents)}
	for i, a := range agents {
		st, err := e.updateAgent(b, critic, a, samples[i], out[i], soft)
		if err != nil {
			return PolicyStats{}, fmt.Errorf("updatePolicies: agent %v: %w",
				i, err)
		}
		stats.Agents[i] = st

		e.metrics.Record(fmt.Sprintf("agent%d/losses/pol_loss", i), st.Loss,
			step)
		e.metrics.Record(fmt.Sprintf("agent%d/grad_norms/pi", i), st.GradNorm,
			step)
		e.logger.Debug("policy updated",
			zap.Int("agent", i),
			zap.Int("iteration", step),
			zap.Float64("loss", st.Loss),
			zap.Float64("grad_norm", st.GradNorm),
		)
	}
	return stats, nil
}

// updateAgent computes the loss of a single agent and steps its
// optimizer
func (e *PolicyEngine) updateAgent(b Batch, critic agent.Critic, a *Agent,
	sample *agent.PolicySample, out agent.CriticOutput,
	soft bool) (AgentPolicyStats, error) {
	batch := len(sample.LogPi)
	if out.AllQ == nil {
		return AgentPolicyStats{}, fmt.Errorf("critic returned no action values")
	}
	rows, cols := out.AllQ.Dims()
	pRows, pCols := sample.Probs.Dims()
	if rows != pRows || cols != pCols || rows != batch {
		return AgentPolicyStats{}, network.Errorf("updatePolicies",
			network.ShapeMismatch, "action values (%v, %v), probabilities "+
				"(%v, %v), %v log-probabilities", rows, cols, pRows, pCols,
			batch)
	}

	var st AgentPolicyStats
	st.Entropy = sample.Entropy
	dLogPi := make([]float64, batch)
	for s := 0; s < batch; s++ {
		var baseline float64
		for k := 0; k < cols; k++ {
			baseline += sample.Probs.At(s, k) * out.AllQ.At(s, k)
		}
		adv := out.Q[s] - baseline

		logPi := sample.LogPi[s]
		coeff := -adv
		if soft {
			coeff = logPi/e.config.RewardScale - adv
		}
		st.Objective += logPi * coeff
		st.Advantage += adv
		dLogPi[s] = coeff / float64(batch)
	}
	st.Objective /= float64(batch)
	st.Advantage /= float64(batch)

	st.Loss = st.Objective
	for _, reg := range sample.Regularizers {
		st.Loss += RegWeight * reg
	}

	params := a.Policy.Params()
	network.ZeroGrad(params)
	err := network.Isolate(critic, func() error {
		return a.Policy.Backward(b.Obs[a.Index], sample.Actions, dLogPi,
			RegWeight)
	})
	if err != nil {
		return AgentPolicyStats{}, fmt.Errorf("backward: %w", err)
	}

	st.GradNorm, err = network.ClipGradNorm(params, policyClip)
	if err != nil {
		return AgentPolicyStats{}, err
	}
	if err := a.Optimizer.Step(); err != nil {
		return AgentPolicyStats{}, fmt.Errorf("step: %w", err)
	}
	a.Optimizer.ZeroGrad()
	return st, nil
}

func (e *PolicyEngine) checkDevices(critic agent.Critic,
	agents []*Agent) error {
	names := []string{"critic"}
	nets := []network.Placeable{critic}
	for i, a := range agents {
		names = append(names, fmt.Sprintf("policy %v", i))
		nets = append(nets, a.Policy)
	}
	return network.SameDevice("updatePolicies", names, nets...)
}
