package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/clipforge/clipforge/internal/models"
)

// clipRenditionRepo implements ClipRenditionRepository using GORM.
type clipRenditionRepo struct {
	db *gorm.DB
}

// NewClipRenditionRepository creates a new ClipRenditionRepository.
func NewClipRenditionRepository(db *gorm.DB) *clipRenditionRepo {
	return &clipRenditionRepo{db: db}
}

// Upsert creates the rendition or refreshes its URL and object key when the
// (clip, resolution) pair already exists.
func (r *clipRenditionRepo) Upsert(ctx context.Context, rendition *models.ClipRendition) error {
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "clip_id"}, {Name: "resolution"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"url", "object_key", "updated_at",
			}),
		}).
		Create(rendition).Error; err != nil {
		return fmt.Errorf("upserting clip rendition: %w", err)
	}
	return nil
}

// GetByClipID retrieves all renditions of a clip.
func (r *clipRenditionRepo) GetByClipID(ctx context.Context, clipID string) ([]*models.ClipRendition, error) {
	var renditions []*models.ClipRendition
	if err := r.db.WithContext(ctx).
		Where("clip_id = ?", clipID).
		Order("resolution ASC").
		Find(&renditions).Error; err != nil {
		return nil, fmt.Errorf("getting clip renditions: %w", err)
	}
	return renditions, nil
}

// Get retrieves one rendition by clip and resolution.
func (r *clipRenditionRepo) Get(ctx context.Context, clipID, resolution string) (*models.ClipRendition, error) {
	var rendition models.ClipRendition
	if err := r.db.WithContext(ctx).
		Where("clip_id = ? AND resolution = ?", clipID, resolution).
		First(&rendition).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting clip rendition: %w", err)
	}
	return &rendition, nil
}
