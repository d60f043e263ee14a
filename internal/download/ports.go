package download

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/bundlevault/bundlevault/internal/models"
)

// Repository is the persistence port for download records. All build and
// management mutations are conditional updates against the expected prior
// state so that a concurrent worker and management action cannot silently
// overwrite each other.
type Repository interface {
	Create(ctx context.Context, d *models.Download) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Download, error)
	GetBySlug(ctx context.Context, slug string) (*models.Download, error)

	// ClaimBuild atomically transitions zip_status from a terminal state to
	// building, resetting the progress columns. Exactly one caller can win;
	// the bool reports whether this caller did.
	ClaimBuild(ctx context.Context, id uuid.UUID, totalChunks int, now time.Time) (bool, error)

	// RecordChunkProgress persists completion of chunk index (1-based).
	// The update only applies while building and while the stored index is
	// exactly index-1, preserving strictly sequential progress.
	RecordChunkProgress(ctx context.Context, id uuid.UUID, index int, now time.Time) error

	// FinishBuild moves the build to ready and swaps in the new artifact,
	// returning the previous artifact path (empty if none) so the caller
	// can delete the old object only after the new one is in place.
	FinishBuild(ctx context.Context, id uuid.UUID, path string, sizeBytes int64, now time.Time) (prevPath string, err error)

	FailBuild(ctx context.Context, id uuid.UUID, reason string, now time.Time) error

	SetRevoked(ctx context.Context, id uuid.UUID, now time.Time) error
	SetExpiry(ctx context.Context, id uuid.UUID, expiresAt *time.Time, hardDeleteAt time.Time) error
	SetAccess(ctx context.Context, id uuid.UUID, mode models.AccessMode, passwordHash string, allow []uuid.UUID) error
	SetTitle(ctx context.Context, id uuid.UUID, title string) error

	// ClearArtifact removes the artifact reference (explicit cleanup,
	// distinct from revocation) and returns the path that was cleared.
	ClearArtifact(ctx context.Context, id uuid.UUID) (prevPath string, err error)

	IncrementAccessCount(ctx context.Context, id uuid.UUID) error
	MarkDeleted(ctx context.Context, id uuid.UUID) error

	ListPurgeable(ctx context.Context, now time.Time, limit int) ([]models.Download, error)
	Purge(ctx context.Context, id uuid.UUID) error
}

// ObjectStore is the object-storage port: streamed reads, artifact upload,
// deletion, and presigned download URLs with a forced-download disposition.
type ObjectStore interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Upload(ctx context.Context, key string, r io.Reader) error
	Delete(ctx context.Context, key string) error
	PresignDownload(ctx context.Context, key, filename string, ttl time.Duration) (string, error)
}

// Queue dispatches build jobs to the worker pool, at-least-once.
type Queue interface {
	Dispatch(id uuid.UUID)
}
