// Package relsac implements a multi-agent soft actor-critic with a
// centralized relational critic and decentralized categorical policies.
//
// Each training iteration first regresses the critic towards soft
// Bellman targets computed with target networks, then improves every
// agent's policy against a counterfactual baseline computed by the
// freshly updated critic, and finally moves every target network
// towards its live counterpart:
//
//	sac, _ := relsac.New(config)
//	sac.PrepTraining(network.Host)
//	stats, err := sac.Step(batch, true)
//
// Rollouts only need the live policies:
//
//	sac.PrepRollouts(network.Host)
//	actions, err := sac.Act(observations, true)
package relsac

import (
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/samuelfneumann/relsac/agent"
	"github.com/samuelfneumann/relsac/network"
	"github.com/samuelfneumann/relsac/solver"
	"go.uber.org/zap"
)

// ErrNoCritic is returned by critic dependent operations of an
// instance restored for inference only
var ErrNoCritic = errors.New("relsac: instance has no critic")

// Agent holds the networks and the optimizer of a single agent
type Agent struct {
	Index        int
	Policy       agent.Policy
	TargetPolicy agent.Policy
	Optimizer    solver.Optimizer
}

// IterationStats summarizes one training iteration
type IterationStats struct {
	Critic CriticStats
	Policy PolicyStats
}

// Option configures a RelationalSAC
type Option func(*options)

type options struct {
	builder  Builder
	logger   *zap.Logger
	metrics  MetricsSink
	detailed bool
	runID    uuid.UUID
	noCritic bool
}

// WithBuilder sets the Builder used to construct all networks
func WithBuilder(b Builder) Option {
	return func(o *options) { o.builder = b }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics sets the sink receiving training metrics
func WithMetrics(m MetricsSink) Option {
	return func(o *options) { o.metrics = m }
}

// WithDetailedMetrics enables per-parameter critic metrics
func WithDetailedMetrics() Option {
	return func(o *options) { o.detailed = true }
}

// WithRunID sets the identifier of the training run. A random one is
// generated otherwise.
func WithRunID(id uuid.UUID) Option {
	return func(o *options) { o.runID = id }
}

// withoutCritic skips building the critic, its target and its optimizer
func withoutCritic() Option {
	return func(o *options) { o.noCritic = true }
}

// RelationalSAC orchestrates the training of a team of agents. It is
// not safe for concurrent use.
type RelationalSAC struct {
	config Config
	runID  uuid.UUID
	logger *zap.Logger

	agents          []*Agent
	critic          agent.Critic
	targetCritic    agent.Critic
	criticOptimizer solver.Optimizer

	criticEngine *CriticEngine
	policyEngine *PolicyEngine

	placement Placement
}

// New returns a new RelationalSAC. All networks are placed on the Host
// in training mode and every target network starts as an exact copy of
// its live network.
func New(c Config, opts ...Option) (*RelationalSAC, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("new: %w", err)
	}

	o := options{builder: GorgoniaBuilder{}, metrics: nopSink{}}
	for _, opt := range opts {
		opt(&o)
	}
	if v, ok := o.builder.(validator); ok {
		if err := v.Validate(c); err != nil {
			return nil, fmt.Errorf("new: %w", err)
		}
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.runID == uuid.Nil {
		o.runID = uuid.New()
	}
	logger := o.logger.With(zap.String("run_id", o.runID.String()))

	r := &RelationalSAC{
		config:    c,
		runID:     o.runID,
		logger:    logger,
		placement: hostPlacement(),
	}

	for i := 0; i < c.NAgents; i++ {
		a, err := newAgent(c, i, o.builder)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("new: agent %v: %w", i, err)
		}
		r.agents = append(r.agents, a)
	}

	if !o.noCritic {
		if err := r.buildCritic(o.builder); err != nil {
			r.Close()
			return nil, fmt.Errorf("new: %w", err)
		}
	}

	r.criticEngine = NewCriticEngine(c, o.metrics, o.detailed, logger)
	r.policyEngine = NewPolicyEngine(c, o.metrics, logger)

	logger.Info("relational SAC created",
		zap.Int("agents", c.NAgents),
		zap.Int("batch_size", c.BatchSize),
		zap.Bool("critic", r.critic != nil),
	)
	return r, nil
}

// newAgent builds the live and target policy of agent i
func newAgent(c Config, i int, b Builder) (*Agent, error) {
	seed := c.Seed + uint64(2*i)
	pi, err := b.Policy(c, i, true, seed)
	if err != nil {
		return nil, err
	}
	target, err := b.Policy(c, i, false, seed+1)
	if err != nil {
		closeAll(pi)
		return nil, err
	}
	if err := network.HardUpdate(target, pi); err != nil {
		closeAll(pi, target)
		return nil, err
	}
	opt, err := c.PolicySolver.Create(pi.Params())
	if err != nil {
		closeAll(pi, target)
		return nil, err
	}
	return &Agent{Index: i, Policy: pi, TargetPolicy: target, Optimizer: opt},
		nil
}

func (r *RelationalSAC) buildCritic(b Builder) error {
	critic, err := b.Critic(r.config)
	if err != nil {
		return fmt.Errorf("critic: %w", err)
	}
	r.critic = critic

	target, err := b.Critic(r.config)
	if err != nil {
		return fmt.Errorf("target critic: %w", err)
	}
	r.targetCritic = target
	if err := network.HardUpdate(target, critic); err != nil {
		return err
	}

	r.criticOptimizer, err = r.config.CriticSolver.Create(critic.Params())
	if err != nil {
		return fmt.Errorf("critic optimizer: %w", err)
	}
	return nil
}

// Config returns the construction parameters
func (r *RelationalSAC) Config() Config {
	return r.config
}

// RunID returns the identifier of the training run
func (r *RelationalSAC) RunID() uuid.UUID {
	return r.runID
}

// Agents returns the agents in index order
func (r *RelationalSAC) Agents() []*Agent {
	return r.agents
}

// Critic returns the live and the target critic, which are nil for
// inference only instances
func (r *RelationalSAC) Critic() (critic, target agent.Critic) {
	return r.critic, r.targetCritic
}

// Iterations returns the number of completed training iterations
func (r *RelationalSAC) Iterations() int {
	return r.criticEngine.Iterations()
}

// Placement returns the current placement of all networks
func (r *RelationalSAC) Placement() Placement {
	return r.placement
}

// UpdateCritic performs one critic update on b
func (r *RelationalSAC) UpdateCritic(b Batch, soft bool) (CriticStats,
	error) {
	if r.critic == nil {
		return CriticStats{}, ErrNoCritic
	}
	return r.criticEngine.Update(b, r.critic, r.targetCritic,
		r.criticOptimizer, r.targetPolicies(), soft)
}

// UpdatePolicies performs one update of every agent's policy on b
func (r *RelationalSAC) UpdatePolicies(b Batch, soft bool) (PolicyStats,
	error) {
	if r.critic == nil {
		return PolicyStats{}, ErrNoCritic
	}
	return r.policyEngine.Update(b, r.critic, r.agents, soft,
		r.criticEngine.Iterations())
}

// UpdateAllTargets moves the target critic and every target policy
// towards their live networks with the configured Tau
func (r *RelationalSAC) UpdateAllTargets() error {
	if r.critic == nil {
		return ErrNoCritic
	}
	tau := r.config.Tau
	if err := network.SoftUpdate(r.targetCritic, r.critic, tau); err != nil {
		return fmt.Errorf("updateAllTargets: critic: %w", err)
	}
	for _, a := range r.agents {
		if err := network.SoftUpdate(a.TargetPolicy, a.Policy, tau); err != nil {
			return fmt.Errorf("updateAllTargets: agent %v: %w", a.Index, err)
		}
	}
	return nil
}

// Step performs a full training iteration: a critic update, then an
// update of every policy, then a soft update of every target network.
// The first error aborts the iteration.
func (r *RelationalSAC) Step(b Batch, soft bool) (IterationStats, error) {
	var stats IterationStats
	var err error

	if stats.Critic, err = r.UpdateCritic(b, soft); err != nil {
		return IterationStats{}, fmt.Errorf("step: %w", err)
	}
	if stats.Policy, err = r.UpdatePolicies(b, soft); err != nil {
		return IterationStats{}, fmt.Errorf("step: %w", err)
	}
	if err = r.UpdateAllTargets(); err != nil {
		return IterationStats{}, fmt.Errorf("step: %w", err)
	}
	return stats, nil
}

// Act selects an action for every agent given one observation per
// agent. If explore is false the most probable actions are taken.
func (r *RelationalSAC) Act(obs [][]float64, explore bool) ([]int, error) {
	if len(obs) != r.config.NAgents {
		return nil, network.Errorf("act", network.ShapeMismatch,
			"%v observations for %v agents", len(obs), r.config.NAgents)
	}
	actions := make([]int, len(obs))
	for i, a := range r.agents {
		act, err := a.Policy.Act(obs[i], explore)
		if err != nil {
			return nil, fmt.Errorf("act: agent %v: %w", i, err)
		}
		actions[i] = act
	}
	return actions, nil
}

// PrepTraining switches every network to training mode and moves every
// role which does not yet reside on dev. Roles are moved one at a time
// and each is committed to the placement as soon as it has moved, so
// that after a failure the placement still describes where every
// network resides.
func (r *RelationalSAC) PrepTraining(dev network.Device) (Placement,
	error) {
	if !dev.Valid() {
		return r.placement, fmt.Errorf("prepTraining: invalid device %v", dev)
	}
	for _, n := range r.networks() {
		n.Train()
	}

	next := r.placement
	next.Mode = Training
	var moved bool
	fail := func(role string, err error) (Placement, error) {
		r.transition(next, moved)
		return r.placement, fmt.Errorf("prepTraining: %v: %w", role, err)
	}

	policyMoved, err := move(next.Policy, dev, r.policies())
	if err != nil {
		return fail("policies", err)
	}
	moved = moved || policyMoved
	next.Policy = dev

	targetMoved, err := move(next.TargetPolicy, dev, r.targetPolicies())
	if err != nil {
		return fail("target policies", err)
	}
	moved = moved || targetMoved
	next.TargetPolicy = dev

	if r.critic != nil {
		criticMoved, err := move(next.Critic, dev,
			[]agent.Critic{r.critic})
		if err != nil {
			return fail("critic", err)
		}
		moved = moved || criticMoved
		next.Critic = dev

		targetMoved, err = move(next.TargetCritic, dev,
			[]agent.Critic{r.targetCritic})
		if err != nil {
			return fail("target critic", err)
		}
		moved = moved || targetMoved
		next.TargetCritic = dev
	}

	r.transition(next, moved)
	return r.placement, nil
}

// PrepRollouts switches the live policies to evaluation mode and moves
// them to dev if they do not reside there yet. The critic and target
// networks are never touched.
func (r *RelationalSAC) PrepRollouts(dev network.Device) (Placement,
	error) {
	if !dev.Valid() {
		return r.placement, fmt.Errorf("prepRollouts: invalid device %v", dev)
	}
	for _, p := range r.policies() {
		p.Eval()
	}

	next := r.placement
	next.Mode = Rollout
	moved, err := move(next.Policy, dev, r.policies())
	if err != nil {
		r.transition(next, false)
		return r.placement, fmt.Errorf("prepRollouts: %w", err)
	}
	next.Policy = dev

	r.transition(next, moved)
	return r.placement, nil
}

func (r *RelationalSAC) transition(next Placement, moved bool) {
	if moved || next.Mode != r.placement.Mode {
		r.logger.Info("placement changed",
			zap.Stringer("from", r.placement),
			zap.Stringer("to", next),
		)
	}
	r.placement = next
}

func (r *RelationalSAC) policies() []agent.Policy {
	ps := make([]agent.Policy, len(r.agents))
	for i, a := range r.agents {
		ps[i] = a.Policy
	}
	return ps
}

func (r *RelationalSAC) targetPolicies() []agent.Policy {
	ps := make([]agent.Policy, len(r.agents))
	for i, a := range r.agents {
		ps[i] = a.TargetPolicy
	}
	return ps
}

// networks returns every network which has been built
func (r *RelationalSAC) networks() []network.Network {
	var nets []network.Network
	for _, a := range r.agents {
		nets = append(nets, a.Policy, a.TargetPolicy)
	}
	if r.critic != nil {
		nets = append(nets, r.critic)
	}
	if r.targetCritic != nil {
		nets = append(nets, r.targetCritic)
	}
	return nets
}

// Close releases the resources held by the networks
func (r *RelationalSAC) Close() error {
	return closeAll(r.networks()...)
}

// closeAll closes every value implementing io.Closer and returns the
// first error
func closeAll[T any](values ...T) error {
	var first error
	for _, v := range values {
		if c, ok := any(v).(io.Closer); ok {
			if err := c.Close(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}
