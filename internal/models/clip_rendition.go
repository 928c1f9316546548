package models

import "gorm.io/gorm"

// ClipRendition is a transcoded lower-resolution derivative of a public
// B-roll clip, stored under a predictable object key for fast selection at
// compose time.
type ClipRendition struct {
	BaseModel

	// ClipID identifies the source clip this rendition was derived from.
	ClipID string `gorm:"not null;size:64;index:idx_clip_resolution,unique" json:"clip_id"`

	// Resolution is the vertical resolution label, e.g. "720p".
	Resolution string `gorm:"not null;size:20;index:idx_clip_resolution,unique" json:"resolution"`

	// URL is the public URL of the rendition.
	URL string `gorm:"size:2048" json:"url"`

	// ObjectKey is the object-store key (clips/<clipId>/<resolution>.mp4).
	ObjectKey string `gorm:"size:1024" json:"object_key"`
}

// TableName returns the table name for ClipRendition.
func (ClipRendition) TableName() string {
	return "clip_renditions"
}

// Validate performs basic validation on the rendition.
func (r *ClipRendition) Validate() error {
	if r.ClipID == "" {
		return ErrClipIDRequired
	}
	if r.Resolution == "" {
		return ErrResolutionRequired
	}
	return nil
}

// BeforeCreate is a GORM hook that validates the rendition and generates its ULID.
func (r *ClipRendition) BeforeCreate(tx *gorm.DB) error {
	if err := r.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	return r.Validate()
}
