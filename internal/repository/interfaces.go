// Package repository defines data access interfaces for persisted entities.
// All database access goes through these interfaces so workers and handlers
// can be tested against fakes.
package repository

import (
	"context"
	"time"

	"github.com/clipforge/clipforge/internal/models"
)

// RenderJobRepository defines operations for render job persistence.
type RenderJobRepository interface {
	// Create creates a new render job.
	Create(ctx context.Context, job *models.RenderJob) error
	// GetByID retrieves a render job by ID. Returns nil when not found.
	GetByID(ctx context.Context, id models.ULID) (*models.RenderJob, error)
	// GetByProjectID retrieves all jobs for a project, newest first.
	GetByProjectID(ctx context.Context, projectID models.ULID) ([]*models.RenderJob, error)
	// NextQueued returns the oldest queued job, or nil when none is waiting.
	NextQueued(ctx context.Context) (*models.RenderJob, error)
	// Claim atomically moves a queued job to running. Exactly one caller
	// wins when several workers race on the same job; losers get
	// models.ErrJobNotClaimable.
	Claim(ctx context.Context, id models.ULID) (*models.RenderJob, error)
	// Update persists the full job row.
	Update(ctx context.Context, job *models.RenderJob) error
	// UpdateProgress sets the job's progress, ignoring regressions and
	// writes to jobs that are no longer running.
	UpdateProgress(ctx context.Context, id models.ULID, progress int) error
	// AppendLog appends a timestamped line to the job's log.
	AppendLog(ctx context.Context, id models.ULID, message string) error
	// GetStaleRunning retrieves running jobs started before the cutoff.
	GetStaleRunning(ctx context.Context, cutoff time.Time) ([]*models.RenderJob, error)
}

// ProjectRepository defines operations for project persistence.
type ProjectRepository interface {
	// Create creates a new project.
	Create(ctx context.Context, project *models.Project) error
	// GetByID retrieves a project by ID. Returns nil when not found.
	GetByID(ctx context.Context, id models.ULID) (*models.Project, error)
	// Update persists the full project row.
	Update(ctx context.Context, project *models.Project) error
	// SetStatus updates only the project status.
	SetStatus(ctx context.Context, id models.ULID, status models.ProjectStatus) error
	// SetRenderResult records the published artifacts of a finished render.
	SetRenderResult(ctx context.Context, id models.ULID, outputURL, thumbnailURL string, durationSec float64) error
}

// AssetRepository defines read access to registered assets.
type AssetRepository interface {
	// GetByID retrieves an asset by its upstream identifier. Returns nil
	// when not found.
	GetByID(ctx context.Context, id string) (*models.Asset, error)
}

// ClipRenditionRepository defines operations for clip rendition persistence.
type ClipRenditionRepository interface {
	// Upsert creates the rendition or refreshes its URL and object key when
	// the (clip, resolution) pair already exists.
	Upsert(ctx context.Context, rendition *models.ClipRendition) error
	// GetByClipID retrieves all renditions of a clip.
	GetByClipID(ctx context.Context, clipID string) ([]*models.ClipRendition, error)
	// Get retrieves one rendition by clip and resolution. Returns nil when
	// not found.
	Get(ctx context.Context, clipID, resolution string) (*models.ClipRendition, error)
}
