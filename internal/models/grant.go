package models

import (
	"time"

	"github.com/google/uuid"
)

// DownloadGrant is one entry of the explicit allow-list used when the
// download's access mode is "users".
type DownloadGrant struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;default:uuid_generate_v4();primaryKey"`
	DownloadID uuid.UUID `json:"downloadId" gorm:"type:uuid;not null;index"`
	UserID     uuid.UUID `json:"userId" gorm:"type:uuid;not null;index"`
	CreatedAt  time.Time `json:"createdAt" gorm:"autoCreateTime"`
}
