// Package config loads the configuration of training and evaluation
// runs from YAML files and environment variables.
package config

import (
	"fmt"

	"github.com/samuelfneumann/relsac/agent/nonlinear/discrete/relsac"
	"github.com/samuelfneumann/relsac/environment"
	"github.com/samuelfneumann/relsac/experiment"
	"github.com/samuelfneumann/relsac/experiment/checkpointer"
	"github.com/samuelfneumann/relsac/expreplay"
	"github.com/samuelfneumann/relsac/initwfn"
	"github.com/samuelfneumann/relsac/network"
	"github.com/samuelfneumann/relsac/solver"
	"github.com/samuelfneumann/relsac/utils/logging"
)

// Config is the configuration of a run
type Config struct {
	Agent   AgentConfig      `koanf:"agent"`
	Env     EnvConfig        `koanf:"env"`
	Train   TrainConfig      `koanf:"train"`
	Replay  expreplay.Config `koanf:"replay"`
	Log     logging.Config   `koanf:"log"`
	Metrics MetricsConfig    `koanf:"metrics"`
}

// AgentConfig holds the hyperparameters of the learner. The solver
// and initializer sections use the typed layout of solver.Solver and
// initwfn.InitWFn, with Type and Config keys.
type AgentConfig struct {
	Gamma        float64 `koanf:"gamma"`
	Tau          float64 `koanf:"tau"`
	RewardScale  float64 `koanf:"reward_scale"`
	BatchSize    int     `koanf:"batch_size"`
	PolicyHidden []int   `koanf:"policy_hidden"`
	CriticHidden int     `koanf:"critic_hidden"`
	Seed         uint64  `koanf:"seed"`

	PolicySolver *solver.Solver   `koanf:"-"`
	CriticSolver *solver.Solver   `koanf:"-"`
	Init         *initwfn.InitWFn `koanf:"-"`
}

// EnvConfig describes the rendezvous gridworld
type EnvConfig struct {
	Agents   int     `koanf:"agents"`
	Size     int     `koanf:"size"`
	MaxSteps int     `koanf:"max_steps"`
	Discount float64 `koanf:"discount"`
}

// TrainConfig describes the online experiment
type TrainConfig struct {
	Episodes       int    `koanf:"episodes"`
	StepsPerUpdate int    `koanf:"steps_per_update"`
	Updates        int    `koanf:"updates"`
	SaveInterval   int    `koanf:"save_interval"`
	OutDir         string `koanf:"out_dir"`
	Soft           bool   `koanf:"soft"`
	Device         string `koanf:"device"`

	CheckpointNaming checkpointer.Naming `koanf:"checkpoint_naming"`
}

// MetricsConfig controls where training metrics go
type MetricsConfig struct {
	// Addr is the listen address of the Prometheus endpoint, disabled
	// if empty
	Addr     string `koanf:"addr"`
	Detailed bool   `koanf:"detailed"`
}

// Validate returns an error describing the first illegal section of c
func (c *Config) Validate() error {
	switch {
	case c.Env.Agents < 2:
		return fmt.Errorf("validate: env: need at least two agents")
	case c.Env.Size < 2:
		return fmt.Errorf("validate: env: grid size must be at least 2")
	case c.Env.MaxSteps < 1:
		return fmt.Errorf("validate: env: max steps must be positive")
	case c.Env.Discount < 0 || c.Env.Discount > 1:
		return fmt.Errorf("validate: env: discount must be in [0, 1]")
	case c.Train.SaveInterval < 1:
		return fmt.Errorf("validate: train: save interval must be positive")
	case c.Train.OutDir == "":
		return fmt.Errorf("validate: train: missing output directory")
	case c.Agent.PolicySolver == nil || c.Agent.CriticSolver == nil:
		return fmt.Errorf("validate: agent: missing solver")
	case c.Agent.Init == nil:
		return fmt.Errorf("validate: agent: missing initializer")
	case c.Replay.MaxReplayCapacity < c.Agent.BatchSize:
		return fmt.Errorf("validate: replay: capacity %v below batch size %v",
			c.Replay.MaxReplayCapacity, c.Agent.BatchSize)
	}

	placeholder := environment.Spec{NAgents: 1, ObsDims: []int{1},
		NumActions: []int{1}, UnaryDim: 1, BinaryDim: 1}
	sac, err := c.SAC(placeholder)
	if err != nil {
		return fmt.Errorf("validate: agent: %w", err)
	}
	if err := (relsac.GorgoniaBuilder{}).Validate(sac); err != nil {
		return fmt.Errorf("validate: agent: %w", err)
	}
	if _, err := c.Experiment(); err != nil {
		return fmt.Errorf("validate: train: %w", err)
	}
	if err := c.Train.CheckpointNaming.Validate(); err != nil {
		return fmt.Errorf("validate: train: %w", err)
	}
	if err := c.Replay.Validate(); err != nil {
		return fmt.Errorf("validate: replay: %w", err)
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("validate: log: %w", err)
	}
	return nil
}

// SAC returns the learner configuration for an environment with the
// given Spec
func (c *Config) SAC(spec environment.Spec) (relsac.Config, error) {
	sac := relsac.Config{
		NAgents:      spec.NAgents,
		ObsDims:      spec.ObsDims,
		NumActions:   spec.NumActions,
		UnaryDim:     spec.UnaryDim,
		BinaryDim:    spec.BinaryDim,
		BatchSize:    c.Agent.BatchSize,
		Gamma:        c.Agent.Gamma,
		Tau:          c.Agent.Tau,
		RewardScale:  c.Agent.RewardScale,
		PolicyHidden: c.Agent.PolicyHidden,
		CriticHidden: c.Agent.CriticHidden,
		PolicySolver: c.Agent.PolicySolver,
		CriticSolver: c.Agent.CriticSolver,
		InitWFn:      c.Agent.Init,
		Seed:         c.Agent.Seed,
	}
	if err := sac.Validate(); err != nil {
		return relsac.Config{}, fmt.Errorf("sac: %w", err)
	}
	return sac, nil
}

// Experiment returns the configuration of the online experiment
func (c *Config) Experiment() (experiment.Config, error) {
	dev, err := network.ParseDevice(c.Train.Device)
	if err != nil {
		return experiment.Config{}, fmt.Errorf("experiment: %w", err)
	}
	exp := experiment.Config{
		Episodes:       c.Train.Episodes,
		StepsPerUpdate: c.Train.StepsPerUpdate,
		Updates:        c.Train.Updates,
		Soft:           c.Train.Soft,
		Device:         dev,
	}
	if err := exp.Validate(); err != nil {
		return experiment.Config{}, fmt.Errorf("experiment: %w", err)
	}
	return exp, nil
}
