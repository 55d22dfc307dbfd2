package entity

import (
	"time"

	"github.com/google/uuid"
)

// Generation phases. A job starts in the initial design phase and is moved to
// upscaling when the design prediction succeeds and an upscale prediction is chained.
const (
	PhaseInitial   = "initial"
	PhaseUpscaling = "upscaling"
)

// Job statuses. completed and failed are terminal: once a job reaches either,
// no further writes for that provider job id are accepted.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusUpscaling  = "upscaling"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// TerminalStatuses lists the statuses after which a job record is immutable.
var TerminalStatuses = []string{StatusCompleted, StatusFailed}

type GenerationJob struct {
	ID      uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	JobID   string    `json:"job_id" gorm:"type:varchar(255);not null;uniqueIndex"` // provider-assigned prediction id, replaced on phase transition
	OwnerID uuid.UUID `json:"owner_id" gorm:"type:uuid;not null;index"`
	Phase   string    `json:"phase" gorm:"type:varchar(32);not null"`
	Status  string    `json:"status" gorm:"type:varchar(32);not null;index"`

	Prompt   string `json:"prompt" gorm:"type:text"`
	Style    string `json:"style" gorm:"type:varchar(128)"`
	RoomType string `json:"room_type" gorm:"type:varchar(128)"`
	Color    string `json:"color" gorm:"type:varchar(128)"`
	Material string `json:"material" gorm:"type:varchar(128)"`

	InputImageURL  string `json:"input_image_url" gorm:"type:varchar(1024)"`
	OutputImageURL string `json:"output_image_url" gorm:"type:varchar(1024)"`
	SizeBytes      int64  `json:"size_bytes"`

	CreatedAt time.Time `json:"created_at" gorm:"not null;autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// IsTerminal reports whether the job has reached a state that must not be overwritten.
func (j *GenerationJob) IsTerminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}
