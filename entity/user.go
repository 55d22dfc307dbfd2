package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type User struct {
	ID    uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Email string    `json:"email" gorm:"type:varchar(255);not null;uniqueIndex"`
	Plan  string    `json:"plan" gorm:"type:varchar(32);not null;default:free"`

	// Quota counters. Incremented exactly once per completed render, never
	// decremented by the reconciliation pipeline.
	UsedImages       int   `json:"used_images" gorm:"not null;default:0"`
	ImageLimit       int   `json:"image_limit" gorm:"not null;default:10"`
	StorageUsedBytes int64 `json:"storage_used_bytes" gorm:"not null;default:0"`
	StorageLimit     int64 `json:"storage_limit" gorm:"not null;default:1073741824"`

	// RenderURLs maps provider job id -> public render URL. A slot is created
	// empty at submission time and filled in by the reconciliation pipeline.
	RenderURLs datatypes.JSONMap `json:"render_urls" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"created_at" gorm:"not null;autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
