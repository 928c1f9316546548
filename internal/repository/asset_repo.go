package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/clipforge/clipforge/internal/models"
)

// assetRepo implements AssetRepository using GORM.
type assetRepo struct {
	db *gorm.DB
}

// NewAssetRepository creates a new AssetRepository.
func NewAssetRepository(db *gorm.DB) *assetRepo {
	return &assetRepo{db: db}
}

// GetByID retrieves an asset by its upstream identifier.
func (r *assetRepo) GetByID(ctx context.Context, id string) (*models.Asset, error) {
	var asset models.Asset
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&asset).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting asset by ID: %w", err)
	}
	return &asset, nil
}
