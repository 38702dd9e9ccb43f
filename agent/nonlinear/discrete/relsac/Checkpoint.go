package relsac

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/samuelfneumann/relsac/network"
	"github.com/samuelfneumann/relsac/solver"
	"go.uber.org/zap"
)

// checkpointVersion is the version of the checkpoint record written by
// Save. Load rejects every other version.
const checkpointVersion = 1

// checkpoint is the record persisted by Save
type checkpoint struct {
	Version    int
	RunID      uuid.UUID
	Config     Config
	Agents     []agentRecord
	Critic     *criticRecord // nil for inference only instances
	Episode    int
	Iterations int
}

type agentRecord struct {
	Policy       []network.ParamState
	TargetPolicy []network.ParamState
	Optimizer    solver.State
}

type criticRecord struct {
	Critic       []network.ParamState
	TargetCritic []network.ParamState
	Optimizer    solver.State
}

// Save moves every network to the Host and writes the full training
// state together with the episode number to path. The file is written
// to a temporary location first and renamed over path, so that a
// partial checkpoint is never visible.
func (r *RelationalSAC) Save(path string, episode int) error {
	if _, err := r.PrepTraining(network.Host); err != nil {
		return fmt.Errorf("save: %w", err)
	}

	ck := checkpoint{
		Version:    checkpointVersion,
		RunID:      r.runID,
		Config:     r.config,
		Agents:     make([]agentRecord, len(r.agents)),
		Episode:    episode,
		Iterations: r.Iterations(),
	}
	for i, a := range r.agents {
		ck.Agents[i] = agentRecord{
			Policy:       network.Export(a.Policy),
			TargetPolicy: network.Export(a.TargetPolicy),
			Optimizer:    a.Optimizer.State(),
		}
	}
	if r.critic != nil {
		ck.Critic = &criticRecord{
			Critic:       network.Export(r.critic),
			TargetCritic: network.Export(r.targetCritic),
			Optimizer:    r.criticOptimizer.State(),
		}
	}

	if err := writeAtomic(path, ck); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	r.logger.Info("checkpoint saved",
		zap.String("path", path),
		zap.Int("episode", episode),
		zap.Int("iteration", ck.Iterations),
	)
	return nil
}

func writeAtomic(path string, ck checkpoint) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err = gob.NewEncoder(tmp).Encode(ck); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Load restores a RelationalSAC saved with Save and returns it together
// with the saved episode number. If includeCritic is false, neither the
// critic, its target nor its optimizer are built, and the returned
// instance can only be used for rollouts.
//
// A checkpoint which cannot be decoded or lacks required records
// results in a CorruptCheckpoint error; one whose parameters do not fit
// the networks built from its configuration results in an
// ArchitectureMismatch error. No instance is returned on error.
func Load(path string, includeCritic bool, opts ...Option) (*RelationalSAC,
	int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("load: %w", err)
	}
	defer f.Close()

	var ck checkpoint
	if err := gob.NewDecoder(f).Decode(&ck); err != nil {
		return nil, 0, network.Errorf("load", network.CorruptCheckpoint,
			"%v: %v", path, err)
	}
	if err := ck.validate(includeCritic); err != nil {
		return nil, 0, err
	}

	opts = append([]Option{WithRunID(ck.RunID)}, opts...)
	if !includeCritic {
		opts = append(opts, withoutCritic())
	}
	r, err := New(ck.Config, opts...)
	if err != nil {
		return nil, 0, network.Errorf("load", network.ArchitectureMismatch,
			"cannot build networks: %v", err)
	}

	if err := r.restore(ck, includeCritic); err != nil {
		r.Close()
		return nil, 0, err
	}
	r.criticEngine.iterations = ck.Iterations

	r.logger.Info("checkpoint loaded",
		zap.String("path", path),
		zap.Int("episode", ck.Episode),
		zap.Bool("critic", includeCritic),
	)
	return r, ck.Episode, nil
}

func (ck checkpoint) validate(includeCritic bool) error {
	switch {
	case ck.Version != checkpointVersion:
		return network.Errorf("load", network.CorruptCheckpoint,
			"unknown checkpoint version %v", ck.Version)
	case ck.Config.PolicySolver == nil || ck.Config.CriticSolver == nil:
		return network.Errorf("load", network.CorruptCheckpoint,
			"missing solver configuration")
	case len(ck.Agents) != ck.Config.NAgents:
		return network.Errorf("load", network.CorruptCheckpoint,
			"%v agent records for %v agents", len(ck.Agents),
			ck.Config.NAgents)
	case includeCritic && ck.Critic == nil:
		return network.Errorf("load", network.CorruptCheckpoint,
			"checkpoint holds no critic")
	}
	if err := ck.Config.Validate(); err != nil {
		return network.Errorf("load", network.CorruptCheckpoint, "%v", err)
	}
	for i, a := range ck.Agents {
		if a.Policy == nil || a.TargetPolicy == nil {
			return network.Errorf("load", network.CorruptCheckpoint,
				"agent %v: missing policy parameters", i)
		}
	}
	if includeCritic && (ck.Critic.Critic == nil ||
		ck.Critic.TargetCritic == nil) {
		return network.Errorf("load", network.CorruptCheckpoint,
			"missing critic parameters")
	}
	return nil
}

// restore imports the parameters and optimizer states of ck into the
// freshly built networks of r
func (r *RelationalSAC) restore(ck checkpoint, includeCritic bool) error {
	for i, a := range r.agents {
		rec := ck.Agents[i]
		if err := network.Import(a.Policy, rec.Policy); err != nil {
			return fmt.Errorf("load: agent %v: policy: %w", i, err)
		}
		if err := network.Import(a.TargetPolicy, rec.TargetPolicy); err != nil {
			return fmt.Errorf("load: agent %v: target policy: %w", i, err)
		}
		if err := loadState(a.Optimizer, rec.Optimizer); err != nil {
			return fmt.Errorf("load: agent %v: optimizer: %w", i, err)
		}
	}

	if !includeCritic {
		return nil
	}
	if err := network.Import(r.critic, ck.Critic.Critic); err != nil {
		return fmt.Errorf("load: critic: %w", err)
	}
	if err := network.Import(r.targetCritic, ck.Critic.TargetCritic); err != nil {
		return fmt.Errorf("load: target critic: %w", err)
	}
	if err := loadState(r.criticOptimizer, ck.Critic.Optimizer); err != nil {
		return fmt.Errorf("load: critic optimizer: %w", err)
	}
	return nil
}

// loadState loads s into opt, reporting every failure as an
// ArchitectureMismatch
func loadState(opt solver.Optimizer, s solver.State) error {
	err := opt.LoadState(s)
	if err == nil || network.IsArchitectureMismatch(err) {
		return err
	}
	return network.Errorf("loadState", network.ArchitectureMismatch, "%v",
		err)
}
