// Package jobs runs the periodic background work: materialization, sweeps,
// reminders, retention, reports and outbox dispatch.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/happiestt-talha/pentutor-api/internal/logging"
)

// ErrUnknownJob is returned by RunOnce for a name no job was registered under.
var ErrUnknownJob = errors.New("jobs: unknown job")

// Job is one periodic task. A failing run is logged and the job runs again on
// the next tick.
type Job struct {
	Name       string
	Interval   time.Duration
	RunOnStart bool
	Run        func(ctx context.Context) error
}

// Runner drives a set of jobs until its context ends.
type Runner struct {
	jobs   []Job
	logger *slog.Logger
}

// NewRunner validates jobs and returns a runner for them.
func NewRunner(logger *slog.Logger, jobs ...Job) (*Runner, error) {
	if logger == nil {
		logger = slog.Default()
	}
	seen := make(map[string]bool, len(jobs))
	for _, job := range jobs {
		if job.Name == "" {
			return nil, errors.New("job name cannot be empty")
		}
		if seen[job.Name] {
			return nil, fmt.Errorf("duplicate job %q", job.Name)
		}
		seen[job.Name] = true
		if job.Interval <= 0 {
			return nil, fmt.Errorf("job %q: interval must be positive", job.Name)
		}
		if job.Run == nil {
			return nil, fmt.Errorf("job %q: run function is required", job.Name)
		}
	}
	return &Runner{jobs: jobs, logger: logger.With("component", "jobs")}, nil
}

// Start runs every job on its own ticker and blocks until ctx is cancelled.
// Job failures never stop the runner.
func (r *Runner) Start(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)
	for _, job := range r.jobs {
		job := job
		group.Go(func() error {
			r.loop(ctx, job)
			return nil
		})
	}
	r.logger.InfoContext(ctx, "background jobs started", "count", len(r.jobs))
	err := group.Wait()
	r.logger.Info("background jobs stopped")
	return err
}

func (r *Runner) loop(ctx context.Context, job Job) {
	if job.RunOnStart {
		r.runOnce(ctx, job)
	}

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runOnce(ctx, job)
		}
	}
}

// RunOnce executes the named job immediately.
func (r *Runner) RunOnce(ctx context.Context, name string) error {
	for _, job := range r.jobs {
		if job.Name == name {
			return r.runOnce(ctx, job)
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownJob, name)
}

func (r *Runner) runOnce(ctx context.Context, job Job) error {
	logger := r.logger.With("job", job.Name)
	ctx = logging.ContextWithLogger(ctx, logger)

	started := time.Now()
	err := job.Run(ctx)
	elapsed := time.Since(started)
	if err != nil {
		if ctx.Err() != nil {
			logger.DebugContext(ctx, "job interrupted by shutdown", "error", err)
			return err
		}
		logger.ErrorContext(ctx, "job failed", "error", err, "duration", elapsed)
		return err
	}
	logger.DebugContext(ctx, "job finished", "duration", elapsed)
	return nil
}
