package models

import "gorm.io/gorm"

// ProjectStatus mirrors the latest finished render job of a project.
type ProjectStatus string

const (
	// ProjectStatusDraft indicates no render has been requested yet.
	ProjectStatusDraft ProjectStatus = "draft"
	// ProjectStatusRendering indicates a render job is in flight.
	ProjectStatusRendering ProjectStatus = "rendering"
	// ProjectStatusFinished indicates the latest render completed.
	ProjectStatusFinished ProjectStatus = "finished"
	// ProjectStatusFailed indicates the latest render failed.
	ProjectStatusFailed ProjectStatus = "failed"
)

// Project represents an authored video project. The timeline document is
// authored elsewhere and stored as JSON; the worker only reads it.
type Project struct {
	BaseModel

	// Title is the human-readable project name.
	Title string `gorm:"not null;size:255" json:"title"`

	// Width and Height define the output resolution in pixels.
	Width  int `gorm:"not null" json:"width"`
	Height int `gorm:"not null" json:"height"`

	// FPS is the output frame rate.
	FPS int `gorm:"not null;default:30" json:"fps"`

	// AspectMode records the authoring aspect preset (e.g. "16:9", "9:16").
	AspectMode string `gorm:"size:20" json:"aspect_mode,omitempty"`

	// TimelineJSON is the declarative timeline document (wire format).
	TimelineJSON string `gorm:"type:text" json:"timeline_json,omitempty"`

	// Status mirrors the latest render job.
	Status ProjectStatus `gorm:"not null;default:'draft';size:20;index" json:"status"`

	// OutputURL is the public URL of the latest finished render.
	OutputURL string `gorm:"size:2048" json:"output_url,omitempty"`

	// ThumbnailURL is the public URL of the latest thumbnail.
	ThumbnailURL string `gorm:"size:2048" json:"thumbnail_url,omitempty"`

	// DurationSec is the duration of the latest finished render in seconds.
	DurationSec float64 `json:"duration_sec,omitempty"`
}

// TableName returns the table name for Project.
func (Project) TableName() string {
	return "projects"
}

// Validate performs basic validation on the project.
func (p *Project) Validate() error {
	if p.Title == "" {
		return ErrTitleRequired
	}
	return nil
}

// BeforeCreate is a GORM hook that validates the project and generates its ULID.
func (p *Project) BeforeCreate(tx *gorm.DB) error {
	if err := p.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	return p.Validate()
}
