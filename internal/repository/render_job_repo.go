package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/clipforge/clipforge/internal/models"
)

// renderJobRepo implements RenderJobRepository using GORM.
type renderJobRepo struct {
	db *gorm.DB
}

// NewRenderJobRepository creates a new RenderJobRepository.
func NewRenderJobRepository(db *gorm.DB) *renderJobRepo {
	return &renderJobRepo{db: db}
}

// Create creates a new render job.
func (r *renderJobRepo) Create(ctx context.Context, job *models.RenderJob) error {
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("creating render job: %w", err)
	}
	return nil
}

// GetByID retrieves a render job by ID.
func (r *renderJobRepo) GetByID(ctx context.Context, id models.ULID) (*models.RenderJob, error) {
	var job models.RenderJob
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&job).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting render job by ID: %w", err)
	}
	return &job, nil
}

// GetByProjectID retrieves all jobs for a project, newest first.
func (r *renderJobRepo) GetByProjectID(ctx context.Context, projectID models.ULID) ([]*models.RenderJob, error) {
	var jobs []*models.RenderJob
	if err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at DESC").
		Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("getting render jobs by project ID: %w", err)
	}
	return jobs, nil
}

// NextQueued returns the oldest queued job.
func (r *renderJobRepo) NextQueued(ctx context.Context) (*models.RenderJob, error) {
	var job models.RenderJob
	if err := r.db.WithContext(ctx).
		Where("status = ?", models.JobStatusQueued).
		Order("created_at ASC").
		First(&job).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting next queued job: %w", err)
	}
	return &job, nil
}

// Claim atomically moves a queued job to running. The conditional update is
// the cross-process lock: of N workers racing on the same ID, exactly one
// sees RowsAffected == 1.
func (r *renderJobRepo) Claim(ctx context.Context, id models.ULID) (*models.RenderJob, error) {
	now := models.Now()
	res := r.db.WithContext(ctx).
		Model(&models.RenderJob{}).
		Where("id = ? AND status = ?", id, models.JobStatusQueued).
		Updates(map[string]any{
			"status":     models.JobStatusRunning,
			"started_at": now,
			"progress":   0,
			"error":      "",
		})
	if res.Error != nil {
		return nil, fmt.Errorf("claiming render job: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, models.ErrJobNotClaimable
	}
	return r.GetByID(ctx, id)
}

// Update persists the full job row.
func (r *renderJobRepo) Update(ctx context.Context, job *models.RenderJob) error {
	if err := r.db.WithContext(ctx).Save(job).Error; err != nil {
		return fmt.Errorf("updating render job: %w", err)
	}
	return nil
}

// UpdateProgress sets the job's progress. The WHERE clause drops regressions
// and stray writes from a worker whose job was already reaped.
func (r *renderJobRepo) UpdateProgress(ctx context.Context, id models.ULID, progress int) error {
	if err := r.db.WithContext(ctx).
		Model(&models.RenderJob{}).
		Where("id = ? AND status = ? AND progress <= ?", id, models.JobStatusRunning, progress).
		Update("progress", progress).Error; err != nil {
		return fmt.Errorf("updating render job progress: %w", err)
	}
	return nil
}

// AppendLog appends a timestamped line to the job's log.
func (r *renderJobRepo) AppendLog(ctx context.Context, id models.ULID, message string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job models.RenderJob
		if err := tx.Where("id = ?", id).First(&job).Error; err != nil {
			return fmt.Errorf("loading render job for log append: %w", err)
		}
		job.AppendLog(message)
		if err := tx.Model(&job).Update("log", job.Log).Error; err != nil {
			return fmt.Errorf("appending render job log: %w", err)
		}
		return nil
	})
}

// GetStaleRunning retrieves running jobs started before the cutoff.
func (r *renderJobRepo) GetStaleRunning(ctx context.Context, cutoff time.Time) ([]*models.RenderJob, error) {
	var jobs []*models.RenderJob
	if err := r.db.WithContext(ctx).
		Where("status = ? AND started_at < ?", models.JobStatusRunning, cutoff).
		Order("started_at ASC").
		Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("getting stale running jobs: %w", err)
	}
	return jobs, nil
}
