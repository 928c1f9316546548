// Package worker acquires render jobs and drives them end to end: fetch
// assets, compile the timeline, run the encoder, publish artifacts, and
// record every state transition in the job store.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/clipforge/clipforge/internal/compiler"
	"github.com/clipforge/clipforge/internal/ffmpeg"
	"github.com/clipforge/clipforge/internal/models"
	"github.com/clipforge/clipforge/internal/observability"
	"github.com/clipforge/clipforge/internal/repository"
	"github.com/clipforge/clipforge/internal/storage"
	"github.com/clipforge/clipforge/internal/timeline"
)

// Progress checkpoints. Asset downloads fill 15-40 linearly; encoding fills
// 45-88 linearly in output seconds.
const (
	progressStarting    = 0
	progressProject     = 5
	progressPrepared    = 10
	progressAssetsFrom  = 15
	progressAssetsTo    = 40
	progressCompiled    = 42
	progressEncodeFrom  = 45
	progressEncodeTo    = 88
	progressThumbnail   = 90
	progressVideoUp     = 93
	progressThumbUp     = 96
	progressFinalizing  = 98
	progressComplete    = 100
	encodeThrottleSteps = 5
)

// AssetFetcher materializes timeline assets into a directory.
type AssetFetcher interface {
	FetchAll(ctx context.Context, t *timeline.Timeline, destDir string, progress func(done, total int)) (map[string]string, error)
}

// Engine runs encoder invocations.
type Engine interface {
	Run(ctx context.Context, args []string, progress ffmpeg.ProgressFunc) error
	Thumbnail(ctx context.Context, videoPath, outPath string) error
	ProbeDuration(ctx context.Context, path string) (float64, error)
}

// Publisher uploads artifacts to object storage.
type Publisher interface {
	UploadFile(ctx context.Context, key, localPath string) (string, error)
}

// Controller orchestrates one render job at a time.
type Controller struct {
	jobs      repository.RenderJobRepository
	projects  repository.ProjectRepository
	fetcher   AssetFetcher
	engine    Engine
	publisher Publisher
	workspace *storage.Workspace
	log       *slog.Logger
}

// NewController wires a controller.
func NewController(
	jobs repository.RenderJobRepository,
	projects repository.ProjectRepository,
	fetcher AssetFetcher,
	engine Engine,
	publisher Publisher,
	workspace *storage.Workspace,
	log *slog.Logger,
) *Controller {
	return &Controller{
		jobs:      jobs,
		projects:  projects,
		fetcher:   fetcher,
		engine:    engine,
		publisher: publisher,
		workspace: workspace,
		log:       log,
	}
}

// Render claims the job and drives it to a terminal state. The claim is a
// conditional update, so two workers handed the same ID race safely: the
// loser gets models.ErrJobNotClaimable and must treat the job as taken.
// Any other error has already been written to the job record as `failed`.
func (c *Controller) Render(ctx context.Context, jobID models.ULID) (err error) {
	job, err := c.jobs.Claim(ctx, jobID)
	if err != nil {
		return err
	}

	log := observability.WithJobID(c.log, jobID.String())
	log.Info("render started", slog.String("project_id", job.ProjectID.String()))

	defer c.workspace.Remove(jobID.String())
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("render panicked: %v", r)
		}
		if err != nil {
			c.failJob(job, err, log)
		}
	}()

	c.checkpoint(ctx, job, progressStarting, "starting render")

	project, err := c.projects.GetByID(ctx, job.ProjectID)
	if err != nil {
		return err
	}
	if project == nil {
		return fmt.Errorf("project %s not found", job.ProjectID)
	}
	if err := c.projects.SetStatus(ctx, project.ID, models.ProjectStatusRendering); err != nil {
		return err
	}
	c.checkpoint(ctx, job, progressProject, "project loaded")

	t, err := timeline.Parse([]byte(project.TimelineJSON))
	if err != nil {
		return fmt.Errorf("parsing timeline: %w", err)
	}

	workDir, err := c.workspace.JobDir(jobID.String())
	if err != nil {
		return err
	}
	c.checkpoint(ctx, job, progressPrepared, "working directory ready")

	paths, err := c.fetcher.FetchAll(ctx, t, workDir, func(done, total int) {
		span := progressAssetsTo - progressAssetsFrom
		pct := progressAssetsFrom + span*done/total
		c.progress(ctx, job, pct)
	})
	if err != nil {
		return err
	}
	c.checkpoint(ctx, job, progressAssetsTo, fmt.Sprintf("downloaded %d assets", len(paths)))

	outPath := filepath.Join(workDir, "output.mp4")
	result, err := compiler.Compile(t, paths, outPath)
	if err != nil {
		return fmt.Errorf("compiling timeline: %w", err)
	}
	for _, w := range result.Warnings {
		log.Warn("compiler warning", slog.String("warning", w))
		c.appendLog(ctx, job, "warning: "+w)
	}
	c.checkpoint(ctx, job, progressCompiled, "timeline compiled")

	if err := c.engine.Run(ctx, result.Args, c.encodeProgress(ctx, job, result.DurationSec)); err != nil {
		return err
	}
	c.checkpoint(ctx, job, progressEncodeTo, "encoding complete")

	thumbPath := filepath.Join(workDir, "thumbnail.jpg")
	if err := c.engine.Thumbnail(ctx, outPath, thumbPath); err != nil {
		return err
	}
	c.checkpoint(ctx, job, progressThumbnail, "thumbnail extracted")

	renderKey := storage.RenderKey(project.ID.String())
	outputURL, err := c.publisher.UploadFile(ctx, renderKey, outPath)
	if err != nil {
		return err
	}
	c.checkpoint(ctx, job, progressVideoUp, "video uploaded")

	thumbURL, err := c.publisher.UploadFile(ctx, storage.ThumbnailKeyFor(renderKey), thumbPath)
	if err != nil {
		return err
	}
	c.checkpoint(ctx, job, progressThumbUp, "thumbnail uploaded")

	duration := result.DurationSec
	if probed, err := c.engine.ProbeDuration(ctx, outPath); err == nil && probed > 0 {
		duration = probed
	}
	var sizeBytes int64
	if info, err := os.Stat(outPath); err == nil {
		sizeBytes = info.Size()
	}
	c.checkpoint(ctx, job, progressFinalizing, "finalizing")

	job.MarkFinished(outputURL, thumbURL, duration, sizeBytes)
	job.AppendLog("render complete")
	if err := c.jobs.Update(ctx, job); err != nil {
		return err
	}
	if err := c.projects.SetRenderResult(ctx, project.ID, outputURL, thumbURL, duration); err != nil {
		return err
	}

	log.Info("render finished",
		slog.Float64("duration_sec", duration),
		slog.Int64("size_bytes", sizeBytes),
	)
	return nil
}

// encodeProgress maps encoder media time onto the 45-88 band, throttled to
// ~one persisted update per 5% so the store is not hammered.
func (c *Controller) encodeProgress(ctx context.Context, job *models.RenderJob, totalSec float64) ffmpeg.ProgressFunc {
	last := progressEncodeFrom
	return func(seconds float64) {
		if totalSec <= 0 {
			return
		}
		frac := seconds / totalSec
		if frac > 1 {
			frac = 1
		}
		pct := progressEncodeFrom + int(float64(progressEncodeTo-progressEncodeFrom)*frac)
		if pct >= last+encodeThrottleSteps {
			last = pct
			c.progress(ctx, job, pct)
		}
	}
}

// checkpoint persists a progress value together with a log line.
func (c *Controller) checkpoint(ctx context.Context, job *models.RenderJob, pct int, message string) {
	c.progress(ctx, job, pct)
	c.appendLog(ctx, job, message)
}

func (c *Controller) progress(ctx context.Context, job *models.RenderJob, pct int) {
	if err := c.jobs.UpdateProgress(ctx, job.ID, pct); err != nil {
		c.log.Warn("persisting progress", slog.String("job_id", job.ID.String()), slog.String("error", err.Error()))
	}
}

func (c *Controller) appendLog(ctx context.Context, job *models.RenderJob, message string) {
	if err := c.jobs.AppendLog(ctx, job.ID, message); err != nil {
		c.log.Warn("appending job log", slog.String("job_id", job.ID.String()), slog.String("error", err.Error()))
	}
}

// failJob writes the terminal failed state. Uses a fresh context: the
// render context may already be canceled.
func (c *Controller) failJob(job *models.RenderJob, cause error, log *slog.Logger) {
	ctx := context.Background()
	job.MarkFailed(cause)
	job.AppendLog("render failed: " + cause.Error())
	if err := c.jobs.Update(ctx, job); err != nil {
		log.Error("writing failed job state", slog.String("error", err.Error()))
	}
	if err := c.projects.SetStatus(ctx, job.ProjectID, models.ProjectStatusFailed); err != nil {
		log.Error("writing failed project state", slog.String("error", err.Error()))
	}
	log.Error("render failed", slog.String("error", cause.Error()))
}
