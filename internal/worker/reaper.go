package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/clipforge/clipforge/internal/repository"
	"github.com/clipforge/clipforge/internal/storage"
)

// Reaper periodically fails render jobs stuck in running (a worker died
// mid-render) and sweeps orphaned scratch directories.
type Reaper struct {
	jobs      repository.RenderJobRepository
	workspace *storage.Workspace
	staleAge  time.Duration
	schedule  string
	log       *slog.Logger
	cron      *cron.Cron
}

// NewReaper creates a reaper with a 6-field cron schedule.
func NewReaper(jobs repository.RenderJobRepository, workspace *storage.Workspace, staleAge time.Duration, schedule string, log *slog.Logger) *Reaper {
	return &Reaper{
		jobs:      jobs,
		workspace: workspace,
		staleAge:  staleAge,
		schedule:  schedule,
		log:       log,
	}
}

// Start schedules the sweep. Returns an error for an invalid schedule.
func (r *Reaper) Start() error {
	r.cron = cron.New(cron.WithSeconds())
	if _, err := r.cron.AddFunc(r.schedule, r.sweep); err != nil {
		return fmt.Errorf("scheduling reaper: %w", err)
	}
	r.cron.Start()
	r.log.Info("reaper scheduled", slog.String("schedule", r.schedule), slog.Duration("stale_age", r.staleAge))
	return nil
}

// Stop cancels the schedule and waits for a running sweep to finish.
func (r *Reaper) Stop() {
	if r.cron != nil {
		<-r.cron.Stop().Done()
	}
}

// sweep is one reaper pass.
func (r *Reaper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cutoff := time.Now().Add(-r.staleAge)
	jobs, err := r.jobs.GetStaleRunning(ctx, cutoff)
	if err != nil {
		r.log.Warn("listing stale jobs", slog.String("error", err.Error()))
		return
	}

	for _, job := range jobs {
		job.MarkFailed(errors.New("job exceeded maximum running time; worker presumed dead"))
		job.AppendLog("reaped as stale")
		if err := r.jobs.Update(ctx, job); err != nil {
			r.log.Warn("reaping stale job", slog.String("job_id", job.ID.String()), slog.String("error", err.Error()))
			continue
		}
		r.workspace.Remove(job.ID.String())
		r.log.Info("reaped stale job",
			slog.String("job_id", job.ID.String()),
			slog.Time("started_at", *job.StartedAt),
		)
	}

	if removed := r.workspace.SweepOrphans(r.staleAge); removed > 0 {
		r.log.Info("swept orphan directories", slog.Int("removed", removed))
	}
}
