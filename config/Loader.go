package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes the environment variables overriding configuration
// keys
const EnvPrefix = "RELSAC_"

const maxConfigFileSize = 1024 * 1024 // 1MB

// defaults is the base layer of every configuration
const defaults = `
agent:
  gamma: 0.95
  tau: 0.01
  reward_scale: 10
  batch_size: 1024
  policy_hidden: [64, 64]
  critic_hidden: 64
  seed: 1
  policy_solver:
    Type: Adam
    Config: {StepSize: 0.01, Epsilon: 1.0e-8, Beta1: 0.9, Beta2: 0.999, WeightDecay: 0}
  critic_solver:
    Type: Adam
    Config: {StepSize: 0.01, Epsilon: 1.0e-8, Beta1: 0.9, Beta2: 0.999, WeightDecay: 0.001}
  init:
    Type: GlorotU
    Config: {Gain: 1}
env:
  agents: 3
  size: 8
  max_steps: 25
  discount: 0.95
train:
  episodes: 5000
  steps_per_update: 100
  updates: 4
  save_interval: 1000
  out_dir: models
  soft: true
  device: cpu
  checkpoint_naming: enumerate
replay:
  sample_method: uniform
  min_capacity: 1
  max_capacity: 1000000
log:
  level: info
  format: console
metrics:
  addr: ""
  detailed: false
`

// Load loads configuration from the YAML file at path, then overrides
// it with environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (RELSAC_TRAIN_EPISODES, etc.)
//  2. YAML config file, skipped if path is empty
//  3. Built in defaults
//
// # Environment Variable Mapping
//
// Environment variables are uppercased and prefixed with RELSAC_. The
// first underscore after the prefix separates the section from the
// field name:
//
//	RELSAC_TRAIN_EPISODES -> train.episodes
//	RELSAC_AGENT_REWARD_SCALE -> agent.reward_scale
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(rawbytes.Provider([]byte(defaults)),
		yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load: defaults: %w", err)
	}

	if path != "" {
		content, err := readFile(path)
		if err != nil {
			return nil, fmt.Errorf("load: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load: config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load: environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("load: failed to unmarshal config: %w", err)
	}
	if err := decodeTyped(k, "agent.policy_solver", &cfg.Agent.PolicySolver); err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	if err := decodeTyped(k, "agent.critic_solver", &cfg.Agent.CriticSolver); err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	if err := decodeTyped(k, "agent.init", &cfg.Agent.Init); err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("load: config validation failed: %w", err)
	}
	return &cfg, nil
}

// envKey maps an environment variable to a configuration key
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

// decodeTyped decodes the section at key into a JSON unmarshalled
// value such as a *solver.Solver
func decodeTyped[T any](k *koanf.Koanf, key string, into **T) error {
	raw, err := json.Marshal(k.Get(key))
	if err != nil {
		return fmt.Errorf("%v: %w", key, err)
	}
	value := new(T)
	if err := json.Unmarshal(raw, value); err != nil {
		return fmt.Errorf("%v: %w", key, err)
	}
	*into = value
	return nil
}

func readFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file %s exceeds %v bytes", path,
			maxConfigFileSize)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}
