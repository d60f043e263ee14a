package models

import (
	"time"

	"github.com/google/uuid"
)

// DownloadAsset is one entry of a download's ordered file selection. The
// selection is immutable once the download is created.
type DownloadAsset struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;default:uuid_generate_v4();primaryKey"`
	DownloadID uuid.UUID `json:"downloadId" gorm:"type:uuid;index;not null"`
	AssetID    uuid.UUID `json:"assetId" gorm:"type:uuid;not null"` // reference into the asset library
	Filename   string    `json:"filename" gorm:"not null"`
	Path       string    `json:"path" gorm:"not null"`  // object-store key
	SizeBytes  int64     `json:"sizeBytes" gorm:"not null"`
	Index      int       `json:"index" gorm:"not null"` // per-download order (0,1,2…)
	Primary    bool      `json:"primary" gorm:"default:false"`
	CreatedAt  time.Time `json:"createdAt" gorm:"autoCreateTime"`
}
