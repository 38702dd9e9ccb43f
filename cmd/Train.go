package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samuelfneumann/relsac/agent/nonlinear/discrete/relsac"
	"github.com/samuelfneumann/relsac/experiment"
	"github.com/samuelfneumann/relsac/experiment/checkpointer"
	"github.com/samuelfneumann/relsac/experiment/metrics"
	"github.com/samuelfneumann/relsac/experiment/tracker"
	"github.com/samuelfneumann/relsac/utils/progressbar"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newTrainCmd() *cobra.Command {
	var resume string
	var progress bool

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a team of agents on the rendezvous gridworld",
		Long: `Train a team of agents online on the rendezvous gridworld.

Checkpoints are written every train.save_interval episodes below
<out_dir>/<run id>/incremental, and a final checkpoint to
<out_dir>/<run id>/model.gob. Interrupting the run finishes the current
episode and writes the final checkpoint.

Examples:
  # Train with the defaults
  relsac train

  # Resume an interrupted run
  relsac train --config run.yaml --resume models/<run id>/model.gob`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt,
				syscall.SIGTERM)
			defer stop()
			return train(ctx, current, resume, progress)
		},
	}
	cmd.Flags().StringVar(&resume, "resume", "",
		"checkpoint to resume training from")
	cmd.Flags().BoolVar(&progress, "progress", false,
		"display a progress bar")
	return cmd
}

func train(ctx context.Context, r run, resume string, progress bool) error {
	c, logger := r.config, r.logger
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	var sink metrics.Sink = metrics.NewZap(logger)
	if c.Metrics.Addr != "" {
		sink = metrics.Multi{sink, metrics.NewPrometheus(registry)}
		shutdown := serveMetrics(c.Metrics.Addr, registry, logger)
		defer shutdown()
	}

	env, err := newEnvironment(c, c.Agent.Seed)
	if err != nil {
		return err
	}
	spec := env.Spec()

	opts := []relsac.Option{relsac.WithLogger(logger),
		relsac.WithMetrics(sink)}
	if c.Metrics.Detailed {
		opts = append(opts, relsac.WithDetailedMetrics())
	}

	var sac *relsac.RelationalSAC
	startEpisode := 0
	if resume != "" {
		sac, startEpisode, err = relsac.Load(resume, true, opts...)
		if err != nil {
			return fmt.Errorf("could not resume: %w", err)
		}
		logger.Info("resumed training", zap.String("checkpoint", resume),
			zap.Int("episode", startEpisode))
	} else {
		sacConfig, err := c.SAC(spec)
		if err != nil {
			return err
		}
		if sac, err = relsac.New(sacConfig, opts...); err != nil {
			return err
		}
	}
	defer sac.Close()

	runDir := filepath.Join(c.Train.OutDir, sac.RunID().String())
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return err
	}

	buffer, err := c.Replay.Create(spec, c.Agent.Seed+uint64(startEpisode))
	if err != nil {
		return err
	}
	names, err := checkpointer.Filenames(c.Train.CheckpointNaming,
		startEpisode/c.Train.SaveInterval,
		filepath.Join(runDir, "incremental", "model_ep"), ".gob")
	if err != nil {
		return err
	}
	check, err := checkpointer.NewNEpisode(c.Train.SaveInterval, sac, names)
	if err != nil {
		return err
	}
	expConfig, err := c.Experiment()
	if err != nil {
		return err
	}

	expOpts := []experiment.Option{
		experiment.WithLogger(logger),
		experiment.WithMetrics(sink),
		experiment.WithStartEpisode(startEpisode),
		experiment.WithCheckpointers(check),
		experiment.WithTrackers(
			tracker.NewReturn(filepath.Join(runDir, "returns.bin")),
			tracker.NewEpisodeLength(filepath.Join(runDir, "lengths.bin")),
		),
	}
	if progress {
		bar := progressbar.New(os.Stderr, 40, expConfig.Episodes)
		bar.Set(startEpisode)
		expOpts = append(expOpts, experiment.WithEpisodeCallback(
			func(episode int) {
				bar.Set(episode)
				_ = bar.Display()
			}))
		defer bar.Close()
	}

	exp, err := experiment.NewOnline(env, sac, buffer, expConfig, expOpts...)
	if err != nil {
		return err
	}

	runErr := exp.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}

	final := filepath.Join(runDir, "model.gob")
	if err := sac.Save(final, exp.Episode()); err != nil {
		return fmt.Errorf("could not save final checkpoint: %w", err)
	}
	logger.Info("saved final checkpoint", zap.String("path", final),
		zap.Int("episode", exp.Episode()))

	return exp.Save()
}

// serveMetrics serves the registry on addr until the returned function
// is called
func serveMetrics(addr string, registry *prometheus.Registry,
	logger *zap.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry,
		promhttp.HandlerOpts{Registry: registry}))
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("serving metrics", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}
}
