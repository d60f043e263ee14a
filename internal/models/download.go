package models

import (
	"time"

	"github.com/google/uuid"
)

// DownloadStatus is the lifecycle of the Download record itself.
type DownloadStatus string

const (
	StatusPending     DownloadStatus = "pending"
	StatusReady       DownloadStatus = "ready"
	StatusInvalidated DownloadStatus = "invalidated"
	StatusFailed      DownloadStatus = "failed"
)

// ZipStatus is the lifecycle of the archive artifact, independent of Status.
type ZipStatus string

const (
	ZipNone        ZipStatus = "none"
	ZipBuilding    ZipStatus = "building"
	ZipReady       ZipStatus = "ready"
	ZipInvalidated ZipStatus = "invalidated"
	ZipFailed      ZipStatus = "failed"
)

// AccessMode is the visibility scope of a download. Legacy rows may still
// carry the aliases "team" and "restricted"; normalize before evaluating.
type AccessMode string

const (
	AccessPublic  AccessMode = "public"
	AccessBrand   AccessMode = "brand"
	AccessCompany AccessMode = "company"
	AccessUsers   AccessMode = "users"
)

// NormalizeAccessMode maps legacy aliases onto the canonical modes.
// The second return is false for modes it does not recognize.
func NormalizeAccessMode(m AccessMode) (AccessMode, bool) {
	switch m {
	case AccessPublic, AccessBrand, AccessCompany, AccessUsers:
		return m, true
	case "team":
		return AccessCompany, true
	case "restricted":
		return AccessUsers, true
	default:
		return m, false
	}
}

type Download struct {
	ID        uuid.UUID  `json:"id" gorm:"type:uuid;default:uuid_generate_v4();primaryKey"`
	TenantID  uuid.UUID  `json:"tenantId" gorm:"type:uuid;index;not null"`
	BrandID   *uuid.UUID `json:"brandId" gorm:"type:uuid;index"`
	CreatedBy uuid.UUID  `json:"createdBy" gorm:"type:uuid;not null"`
	Slug      string     `json:"slug" gorm:"uniqueIndex;not null"` // public unguessable token
	Title     string     `json:"title"`

	Status    DownloadStatus `json:"status" gorm:"not null;default:pending"`
	ZipStatus ZipStatus      `json:"zipStatus" gorm:"not null;default:none"`

	// Build progress. ChunkIndex only moves forward while ZipStatus is
	// building; TotalChunks is fixed when a build is claimed.
	ZipBuildChunkIndex int        `json:"zipBuildChunkIndex" gorm:"not null;default:0"`
	ZipTotalChunks     int        `json:"zipTotalChunks" gorm:"not null;default:0"`
	ZipBuildStartedAt  *time.Time `json:"zipBuildStartedAt"`
	ZipLastProgressAt  *time.Time `json:"zipLastProgressAt"`

	// Artifact. ZipPath is only set while ZipStatus is ready, except during
	// regeneration where the previous artifact is retained until the new
	// build succeeds.
	ZipPath          string `json:"-"`
	ZipSizeBytes     int64  `json:"zipSizeBytes"`
	ZipFailureReason string `json:"-"` // operator-facing, never returned publicly

	// Single-file mode delivers the asset itself; no archive is ever built.
	DirectAssetPath string `json:"-"`

	// Streaming is decided once at creation from EstimatedSizeBytes and
	// never changes afterwards.
	Streaming          bool  `json:"streaming" gorm:"not null;default:false"`
	EstimatedSizeBytes int64 `json:"estimatedSizeBytes" gorm:"not null;default:0"`
	AssetCount         int   `json:"assetCount" gorm:"not null;default:0"`

	AccessMode   AccessMode `json:"accessMode" gorm:"not null;default:public"`
	PasswordHash string     `json:"-"`

	ExpiresAt    *time.Time `json:"expiresAt"` // nil = non-expiring
	HardDeleteAt *time.Time `json:"-"`
	RevokedAt    *time.Time `json:"revokedAt"`

	LandingMessage string `json:"landingMessage"`
	ShowBranding   bool   `json:"showBranding" gorm:"default:true"`

	AccessCount int64 `json:"accessCount" gorm:"not null;default:0"`

	Deleted   bool      `json:"deleted" gorm:"default:false"`
	CreatedAt time.Time `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"autoUpdateTime"`

	Assets []DownloadAsset `json:"assets" gorm:"foreignKey:DownloadID"`
	Grants []DownloadGrant `json:"grants" gorm:"foreignKey:DownloadID"`
}

// IsExpired reports whether the download has passed its expiry. A nil
// ExpiresAt means non-expiring.
func (d *Download) IsExpired(now time.Time) bool {
	return d.ExpiresAt != nil && now.After(*d.ExpiresAt)
}

func (d *Download) IsRevoked() bool {
	return d.RevokedAt != nil
}

// SingleFile reports whether the download delivers one asset directly
// without an archive.
func (d *Download) SingleFile() bool {
	return d.DirectAssetPath != ""
}

// BuildTerminal reports whether the archive lifecycle can accept a new
// build claim. Building is the only non-terminal zip state.
func (d *Download) BuildTerminal() bool {
	return d.ZipStatus != ZipBuilding
}

// AllowedUserIDs returns the explicit allow-list for users mode.
func (d *Download) AllowedUserIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(d.Grants))
	for _, g := range d.Grants {
		ids = append(ids, g.UserID)
	}
	return ids
}
