// Package cmd implements the relsac command line interface
package cmd

import (
	"fmt"
	"os"

	"github.com/samuelfneumann/relsac/config"
	"github.com/samuelfneumann/relsac/environment/gridworld"
	"github.com/samuelfneumann/relsac/utils/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// configPath is the YAML configuration file, empty for defaults
	configPath string

	// version information
	version = "dev"
)

// run holds what every subcommand needs, set up before it runs
type run struct {
	config *config.Config
	logger *zap.Logger
}

var current run

// Execute runs the root command
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// NewRootCmd returns the root command with all subcommands attached
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "relsac",
		Short: "Train and evaluate relational multi-agent soft actor-critics",
		Long: `relsac trains teams of agents with a multi-agent soft actor-critic
whose centralized critic reasons over per-entity and pairwise features.

Configuration is read from a YAML file and overridden by RELSAC_ prefixed
environment variables, e.g. RELSAC_TRAIN_EPISODES=100.`,
		Version:           version,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
		PersistentPostRun: func(*cobra.Command, []string) {
			if current.logger != nil {
				_ = current.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "",
		"YAML configuration file")

	root.AddCommand(newTrainCmd())
	root.AddCommand(newEvaluateCmd())
	return root
}

// setup loads the configuration and builds the logger
func setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	current = run{config: cfg, logger: logger}
	return nil
}

// newEnvironment returns the configured gridworld
func newEnvironment(c *config.Config, seed uint64) (*gridworld.Rendezvous,
	error) {
	env, _, err := gridworld.New(c.Env.Agents, c.Env.Size, c.Env.MaxSteps,
		c.Env.Discount, seed)
	if err != nil {
		return nil, fmt.Errorf("could not create environment: %w", err)
	}
	return env, nil
}
