package experiment

import (
	"context"
	"errors"
	"fmt"

	"github.com/samuelfneumann/relsac/environment"
	"github.com/samuelfneumann/relsac/experiment/checkpointer"
	"github.com/samuelfneumann/relsac/experiment/metrics"
	"github.com/samuelfneumann/relsac/experiment/tracker"
	"github.com/samuelfneumann/relsac/expreplay"
	"github.com/samuelfneumann/relsac/network"
	ts "github.com/samuelfneumann/relsac/timestep"
	"go.uber.org/zap"
)

// Online is an Experiment that trains a team of agents online from a
// replay buffer. No offline evaluation is performed.
type Online struct {
	env     environment.Environment
	learner Learner
	buffer  *expreplay.Buffer
	config  Config

	trackers      []tracker.Tracker
	returns       *tracker.Return
	checkpointers []checkpointer.Checkpointer

	logger    *zap.Logger
	metrics   metrics.Sink
	onEpisode func(episode int)

	episode      int
	currentSteps int
}

// Option configures an Online experiment
type Option func(*Online)

// WithLogger sets the logger of the experiment
func WithLogger(l *zap.Logger) Option {
	return func(o *Online) { o.logger = l }
}

// WithMetrics sets the sink receiving episode metrics
func WithMetrics(m metrics.Sink) Option {
	return func(o *Online) { o.metrics = m }
}

// WithTrackers registers trackers with the experiment
func WithTrackers(t ...tracker.Tracker) Option {
	return func(o *Online) { o.trackers = append(o.trackers, t...) }
}

// WithCheckpointers sets the checkpointers called after every episode
func WithCheckpointers(c ...checkpointer.Checkpointer) Option {
	return func(o *Online) { o.checkpointers = append(o.checkpointers, c...) }
}

// WithEpisodeCallback sets a function called with the number of
// finished episodes after every episode
func WithEpisodeCallback(f func(episode int)) Option {
	return func(o *Online) { o.onEpisode = f }
}

// WithStartEpisode resumes counting episodes from episode, which is
// the number of episodes already finished
func WithStartEpisode(episode int) Option {
	return func(o *Online) { o.episode = episode }
}

// NewOnline creates and returns a new online experiment training l on
// e with transitions replayed from b.
func NewOnline(e environment.Environment, l Learner, b *expreplay.Buffer,
	c Config, opts ...Option) (*Online, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("newOnline: %w", err)
	}
	if b.MaxCapacity() < l.Config().BatchSize {
		return nil, fmt.Errorf("newOnline: buffer capacity %v below batch "+
			"size %v", b.MaxCapacity(), l.Config().BatchSize)
	}

	o := &Online{
		env:     e,
		learner: l,
		buffer:  b,
		config:  c,
		returns: tracker.NewReturn(""),
		logger:  zap.NewNop(),
		metrics: metrics.Nop{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Register registers a tracker.Tracker with an Experiment so that data
// generated during the experiment can be tracked and saved
func (o *Online) Register(t tracker.Tracker) {
	o.trackers = append(o.trackers, t)
}

// Episode returns the number of finished episodes
func (o *Online) Episode() int {
	return o.episode
}

// Returns returns the per-agent returns of every episode run by this
// experiment
func (o *Online) Returns() [][]float64 {
	return o.returns.Returns()
}

// RunEpisode runs a single episode of the experiment
func (o *Online) RunEpisode() (bool, error) {
	if o.episode >= o.config.Episodes {
		return true, nil
	}
	if _, err := o.learner.PrepRollouts(network.Host); err != nil {
		return false, fmt.Errorf("runEpisode: %w", err)
	}

	step, err := o.env.Reset()
	if err != nil {
		return false, fmt.Errorf("runEpisode: %w", err)
	}
	o.track(step)

	for !step.Last() {
		actions, err := o.learner.Act(step.Observations, true)
		if err != nil {
			return false, fmt.Errorf("runEpisode: %w", err)
		}
		next, err := o.env.Step(actions)
		if err != nil {
			return false, fmt.Errorf("runEpisode: %w", err)
		}
		if err := o.buffer.Add(ts.NewTransition(step, actions, next)); err != nil {
			return false, fmt.Errorf("runEpisode: %w", err)
		}
		o.track(next)

		o.currentSteps++
		if o.currentSteps%o.config.StepsPerUpdate == 0 {
			if err := o.update(); err != nil {
				return false, fmt.Errorf("runEpisode: %w", err)
			}
		}
		step = next
	}

	o.episode++
	o.recordEpisode(step)
	if err := o.checkpoint(); err != nil {
		return false, fmt.Errorf("runEpisode: %w", err)
	}
	if o.onEpisode != nil {
		o.onEpisode(o.episode)
	}

	return o.episode >= o.config.Episodes, nil
}

// update performs the configured number of training iterations, if
// the buffer holds enough transitions
func (o *Online) update() error {
	batchSize := o.learner.Config().BatchSize
	if o.buffer.Capacity() < batchSize {
		return nil
	}

	if _, err := o.learner.PrepTraining(o.config.Device); err != nil {
		return fmt.Errorf("update: %w", err)
	}
	for u := 0; u < o.config.Updates; u++ {
		batch, err := o.buffer.Sample(batchSize)
		if expreplay.IsInsufficientSamples(err) {
			break
		} else if err != nil {
			return fmt.Errorf("update: %w", err)
		}

		stats, err := o.learner.Step(batch, o.config.Soft)
		if err != nil {
			return fmt.Errorf("update: %w", err)
		}
		o.logger.Debug("training iteration",
			zap.Int("iteration", stats.Critic.Iteration),
			zap.Float64("q_loss", stats.Critic.Loss),
			zap.Float64("q_grad_norm", stats.Critic.GradNorm),
		)
	}

	if _, err := o.learner.PrepRollouts(network.Host); err != nil {
		return fmt.Errorf("update: %w", err)
	}
	return nil
}

// recordEpisode logs and records the returns of the episode ending in
// last
func (o *Online) recordEpisode(last ts.TimeStep) {
	returns, _ := o.returns.LastReturn()
	for i, ret := range returns {
		o.metrics.Record(fmt.Sprintf("agent%d/episode_return", i), ret,
			o.episode)
	}
	o.metrics.Record("episode/length", float64(last.Number), o.episode)

	o.logger.Info("episode finished",
		zap.Int("episode", o.episode),
		zap.Int("length", last.Number),
		zap.Bool("terminal", last.Terminal()),
		zap.Float64s("returns", returns),
		zap.Int("buffered", o.buffer.Capacity()),
	)
}

// checkpoint calls every checkpointer after an episode
func (o *Online) checkpoint() error {
	for _, c := range o.checkpointers {
		path, saved, err := c.Checkpoint(o.episode)
		if err != nil {
			return err
		}
		if saved {
			o.logger.Info("saved checkpoint", zap.String("path", path),
				zap.Int("episode", o.episode))
		}
	}
	return nil
}

// Run runs episodes until the episode limit is reached. Cancelling ctx
// stops the experiment after the current episode.
func (o *Online) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			o.logger.Warn("experiment cancelled", zap.Int("episode", o.episode),
				zap.Error(err))
			return err
		}
		done, err := o.RunEpisode()
		if err != nil {
			return fmt.Errorf("run: %w", err)
		}
		if done {
			return nil
		}
	}
}

// Save saves all the data cached by the Trackers to disk
func (o *Online) Save() error {
	var errs []error
	for _, t := range o.trackers {
		if err := t.Save(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// track tracks the current timestep by caching its data in each tracker
func (o *Online) track(t ts.TimeStep) {
	o.returns.Track(t)
	for _, tr := range o.trackers {
		tr.Track(t)
	}
}
