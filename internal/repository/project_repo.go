package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/clipforge/clipforge/internal/models"
)

// projectRepo implements ProjectRepository using GORM.
type projectRepo struct {
	db *gorm.DB
}

// NewProjectRepository creates a new ProjectRepository.
func NewProjectRepository(db *gorm.DB) *projectRepo {
	return &projectRepo{db: db}
}

// Create creates a new project.
func (r *projectRepo) Create(ctx context.Context, project *models.Project) error {
	if err := r.db.WithContext(ctx).Create(project).Error; err != nil {
		return fmt.Errorf("creating project: %w", err)
	}
	return nil
}

// GetByID retrieves a project by ID.
func (r *projectRepo) GetByID(ctx context.Context, id models.ULID) (*models.Project, error) {
	var project models.Project
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&project).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting project by ID: %w", err)
	}
	return &project, nil
}

// Update persists the full project row.
func (r *projectRepo) Update(ctx context.Context, project *models.Project) error {
	if err := r.db.WithContext(ctx).Save(project).Error; err != nil {
		return fmt.Errorf("updating project: %w", err)
	}
	return nil
}

// SetStatus updates only the project status.
func (r *projectRepo) SetStatus(ctx context.Context, id models.ULID, status models.ProjectStatus) error {
	if err := r.db.WithContext(ctx).
		Model(&models.Project{}).
		Where("id = ?", id).
		Update("status", status).Error; err != nil {
		return fmt.Errorf("setting project status: %w", err)
	}
	return nil
}

// SetRenderResult records the published artifacts of a finished render.
func (r *projectRepo) SetRenderResult(ctx context.Context, id models.ULID, outputURL, thumbnailURL string, durationSec float64) error {
	if err := r.db.WithContext(ctx).
		Model(&models.Project{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        models.ProjectStatusFinished,
			"output_url":    outputURL,
			"thumbnail_url": thumbnailURL,
			"duration_sec":  durationSec,
		}).Error; err != nil {
		return fmt.Errorf("setting project render result: %w", err)
	}
	return nil
}
