package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/samuelfneumann/relsac/agent/nonlinear/discrete/relsac"
	"github.com/samuelfneumann/relsac/experiment"
	"github.com/samuelfneumann/relsac/experiment/tracker"
	"github.com/samuelfneumann/relsac/utils/progressbar"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
)

func newEvaluateCmd() *cobra.Command {
	var checkpoint string
	var episodes int
	var seed uint64
	var progress bool
	var out string

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate the policies of a checkpoint",
		Long: `Evaluate the policies of a checkpoint on the rendezvous gridworld.

Agents always take their most probable action. Only the policies are
restored, so inference checkpoints are accepted. The rewards of every
step are written as JSON to --out, which defaults to
evaluate/episodes.json next to the checkpoint.

Examples:
  relsac evaluate --checkpoint models/<run id>/model.gob --episodes 20`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, logger := current.config, current.logger

			sac, episode, err := relsac.Load(checkpoint, false,
				relsac.WithLogger(logger))
			if err != nil {
				return fmt.Errorf("could not load checkpoint: %w", err)
			}
			defer sac.Close()
			logger.Info("loaded checkpoint", zap.String("path", checkpoint),
				zap.Int("episode", episode))

			env, err := newEnvironment(c, seed)
			if err != nil {
				return err
			}

			var onEpisode func()
			if progress {
				bar := progressbar.New(os.Stderr, 40, episodes)
				onEpisode = func() {
					bar.Increment()
					_ = bar.Display()
				}
				defer bar.Close()
			}

			if out == "" {
				out = filepath.Join(filepath.Dir(checkpoint), "evaluate",
					"episodes.json")
			}
			if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
				return fmt.Errorf("could not create output directory: %w", err)
			}
			record := tracker.NewEpisodes(out)

			returns, err := experiment.Evaluate(cmd.Context(), env, sac,
				episodes, onEpisode, record)
			if err != nil {
				return err
			}
			if err := record.Save(); err != nil {
				return err
			}
			logger.Info("saved episodes", zap.String("path", out))
			return report(cmd, returns)
		},
	}
	cmd.Flags().StringVar(&checkpoint, "checkpoint", "",
		"checkpoint to evaluate")
	cmd.Flags().IntVar(&episodes, "episodes", 10, "number of episodes")
	cmd.Flags().Uint64Var(&seed, "seed", 1, "environment seed")
	cmd.Flags().BoolVar(&progress, "progress", false,
		"display a progress bar")
	cmd.Flags().StringVar(&out, "out", "",
		"file to write per-episode rewards to")
	_ = cmd.MarkFlagRequired("checkpoint")
	return cmd
}

// report prints the mean and standard deviation of every agent's return
func report(cmd *cobra.Command, returns [][]float64) error {
	if len(returns) == 0 {
		return fmt.Errorf("no finished episodes")
	}
	out := cmd.OutOrStdout()
	for i := range returns[0] {
		agentReturns := make([]float64, len(returns))
		for ep, r := range returns {
			agentReturns[ep] = r[i]
		}
		mean, std := stat.MeanStdDev(agentReturns, nil)
		fmt.Fprintf(out, "agent %d: mean return %.4f (std %.4f) over %d "+
			"episodes\n", i, mean, std, len(returns))
	}
	return nil
}
