package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// JobStatus represents the current status of a render job.
type JobStatus string

const (
	// JobStatusQueued indicates the job is waiting to be picked up.
	JobStatusQueued JobStatus = "queued"
	// JobStatusRunning indicates the job is currently rendering.
	JobStatusRunning JobStatus = "running"
	// JobStatusFinished indicates the job completed successfully.
	JobStatusFinished JobStatus = "finished"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
)

// IsTerminal returns true for statuses a job never leaves.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusFinished || s == JobStatusFailed
}

// LogLine is one timestamped entry in a job's append-only log.
type LogLine struct {
	At      time.Time `json:"at"`
	Message string    `json:"message"`
}

// LogLines is stored as a JSON column on the job row.
type LogLines []LogLine

// Value implements driver.Valuer for JSON storage.
func (l LogLines) Value() (any, error) {
	if len(l) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("marshaling log lines: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner for JSON retrieval.
func (l *LogLines) Scan(value any) error {
	if value == nil {
		*l = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("unsupported type for LogLines: %T", value)
	}
	if len(data) == 0 {
		*l = nil
		return nil
	}
	if err := json.Unmarshal(data, l); err != nil {
		return fmt.Errorf("unmarshaling log lines: %w", err)
	}
	return nil
}

// GormDataType returns the GORM data type for LogLines.
func (LogLines) GormDataType() string {
	return "text"
}

// RenderJob represents one end-to-end render of a project's timeline.
type RenderJob struct {
	BaseModel

	// ProjectID is the project whose timeline this job renders.
	ProjectID ULID `gorm:"type:varchar(26);not null;index" json:"project_id"`

	// Status indicates the current status of the job. It only advances
	// queued -> running -> finished|failed and never leaves a terminal state.
	Status JobStatus `gorm:"not null;default:'queued';size:20;index" json:"status"`

	// Progress is the render progress in percent (0-100). Non-decreasing
	// within a single run.
	Progress int `gorm:"not null;default:0" json:"progress"`

	// Log is the append-only, timestamped job log shown to the user.
	Log LogLines `gorm:"type:text" json:"log,omitempty"`

	// OutputURL is the public URL of the rendered MP4. Non-null iff finished.
	OutputURL string `gorm:"size:2048" json:"output_url,omitempty"`

	// ThumbnailURL is the public URL of the still thumbnail.
	ThumbnailURL string `gorm:"size:2048" json:"thumbnail_url,omitempty"`

	// DurationSec is the duration of the rendered output in seconds.
	DurationSec float64 `json:"duration_sec,omitempty"`

	// SizeBytes is the size of the rendered output in bytes.
	SizeBytes int64 `json:"size_bytes,omitempty"`

	// Error contains the failure reason. Non-null iff failed.
	Error string `gorm:"size:4096" json:"error,omitempty"`

	// StartedAt is when the job transitioned to running.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the job reached a terminal state.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// TableName returns the table name for RenderJob.
func (RenderJob) TableName() string {
	return "render_jobs"
}

// IsFinished returns true if the job reached a terminal state.
func (j *RenderJob) IsFinished() bool {
	return j.Status.IsTerminal()
}

// MarkRunning marks the job as running.
func (j *RenderJob) MarkRunning() {
	j.Status = JobStatusRunning
	now := Now()
	j.StartedAt = &now
	j.Progress = 0
	j.Error = ""
}

// MarkFinished marks the job as finished with its published artifacts.
func (j *RenderJob) MarkFinished(outputURL, thumbnailURL string, durationSec float64, sizeBytes int64) {
	j.Status = JobStatusFinished
	j.Progress = 100
	j.OutputURL = outputURL
	j.ThumbnailURL = thumbnailURL
	j.DurationSec = durationSec
	j.SizeBytes = sizeBytes
	now := Now()
	j.CompletedAt = &now
}

// MarkFailed marks the job as failed with an error message.
func (j *RenderJob) MarkFailed(err error) {
	j.Status = JobStatusFailed
	if err != nil {
		j.Error = err.Error()
	}
	now := Now()
	j.CompletedAt = &now
}

// AppendLog appends a timestamped line to the job log.
func (j *RenderJob) AppendLog(message string) {
	j.Log = append(j.Log, LogLine{At: Now(), Message: message})
}

// Validate performs basic validation on the job.
func (j *RenderJob) Validate() error {
	if j.ProjectID.IsZero() {
		return ErrProjectIDRequired
	}
	return nil
}

// BeforeCreate is a GORM hook that validates the job and generates its ULID.
func (j *RenderJob) BeforeCreate(tx *gorm.DB) error {
	if err := j.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	return j.Validate()
}
