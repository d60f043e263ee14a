package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bundlevault/bundlevault/internal/download"
	"github.com/bundlevault/bundlevault/internal/models"
)

// DownloadRepository implements download.Repository on Postgres. Every
// mutation that can race between the build worker and a management action
// is written as a conditional update: the WHERE clause names the expected
// prior state and RowsAffected tells us whether we won.
type DownloadRepository struct {
	db *gorm.DB
}

func NewDownloadRepository(db *gorm.DB) *DownloadRepository {
	return &DownloadRepository{db: db}
}

func (r *DownloadRepository) Create(ctx context.Context, d *models.Download) error {
	return r.db.WithContext(ctx).Create(d).Error
}

func (r *DownloadRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Download, error) {
	return r.getOne(ctx, "id = ?", id)
}

func (r *DownloadRepository) GetBySlug(ctx context.Context, slug string) (*models.Download, error) {
	return r.getOne(ctx, "slug = ?", slug)
}

func (r *DownloadRepository) getOne(ctx context.Context, cond string, arg any) (*models.Download, error) {
	var d models.Download
	err := r.db.WithContext(ctx).
		Preload("Assets", func(db *gorm.DB) *gorm.DB { return db.Order("\"index\" ASC") }).
		Preload("Grants").
		Where(cond, arg).
		Where("deleted = ?", false).
		First(&d).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, download.ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

// ClaimBuild is the conditional none/invalidated/failed -> building
// transition; only one caller can win it for a given record.
func (r *DownloadRepository) ClaimBuild(ctx context.Context, id uuid.UUID, totalChunks int, now time.Time) (bool, error) {
	tx := r.db.WithContext(ctx).Model(&models.Download{}).
		Where("id = ? AND zip_status IN ?", id, []models.ZipStatus{models.ZipNone, models.ZipInvalidated, models.ZipFailed, models.ZipReady}).
		Updates(map[string]any{
			"zip_status":            models.ZipBuilding,
			"zip_build_chunk_index": 0,
			"zip_total_chunks":      totalChunks,
			"zip_build_started_at":  now,
			"zip_last_progress_at":  now,
			"zip_failure_reason":    "",
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected == 1, nil
}

// RecordChunkProgress persists chunk `index` (1-based). The guard on the
// stored index keeps progress strictly sequential; losing the guard means
// the caller no longer owns the build.
func (r *DownloadRepository) RecordChunkProgress(ctx context.Context, id uuid.UUID, index int, now time.Time) error {
	tx := r.db.WithContext(ctx).Model(&models.Download{}).
		Where("id = ? AND zip_status = ? AND zip_build_chunk_index = ? AND zip_total_chunks >= ?",
			id, models.ZipBuilding, index-1, index).
		Updates(map[string]any{
			"zip_build_chunk_index": index,
			"zip_last_progress_at":  now,
		})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return fmt.Errorf("%w: chunk %d not applied", download.ErrInvalidTransition, index)
	}
	return nil
}

// FinishBuild swaps in the new artifact and returns the previous path so
// the worker can delete the old object only after the record points at
// the new one.
func (r *DownloadRepository) FinishBuild(ctx context.Context, id uuid.UUID, path string, sizeBytes int64, now time.Time) (string, error) {
	var prev string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var d models.Download
		if err := tx.Select("zip_path", "zip_status").Where("id = ?", id).First(&d).Error; err != nil {
			return err
		}
		if d.ZipStatus != models.ZipBuilding {
			return fmt.Errorf("%w: finish on %s build", download.ErrInvalidTransition, d.ZipStatus)
		}
		prev = d.ZipPath

		res := tx.Model(&models.Download{}).
			Where("id = ? AND zip_status = ?", id, models.ZipBuilding).
			Updates(map[string]any{
				"zip_status":           models.ZipReady,
				"zip_path":             path,
				"zip_size_bytes":       sizeBytes,
				"zip_failure_reason":   "",
				"zip_last_progress_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: finish lost the build claim", download.ErrInvalidTransition)
		}
		return nil
	})
	return prev, err
}

func (r *DownloadRepository) FailBuild(ctx context.Context, id uuid.UUID, reason string, now time.Time) error {
	tx := r.db.WithContext(ctx).Model(&models.Download{}).
		Where("id = ? AND zip_status = ?", id, models.ZipBuilding).
		Updates(map[string]any{
			"zip_status":           models.ZipFailed,
			"zip_failure_reason":   reason,
			"zip_last_progress_at": now,
		})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return fmt.Errorf("%w: failure on non-building record", download.ErrInvalidTransition)
	}
	return nil
}

func (r *DownloadRepository) SetRevoked(ctx context.Context, id uuid.UUID, now time.Time) error {
	// Idempotent: an already revoked record keeps its original timestamp.
	return r.db.WithContext(ctx).Model(&models.Download{}).
		Where("id = ? AND revoked_at IS NULL", id).
		Update("revoked_at", now).Error
}

func (r *DownloadRepository) SetExpiry(ctx context.Context, id uuid.UUID, expiresAt *time.Time, hardDeleteAt time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Download{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"expires_at":     expiresAt,
			"hard_delete_at": hardDeleteAt,
		}).Error
}

func (r *DownloadRepository) SetAccess(ctx context.Context, id uuid.UUID, mode models.AccessMode, passwordHash string, allow []uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Download{}).Where("id = ?", id).
			Updates(map[string]any{
				"access_mode":   mode,
				"password_hash": passwordHash,
			}).Error; err != nil {
			return err
		}
		if err := tx.Where("download_id = ?", id).Delete(&models.DownloadGrant{}).Error; err != nil {
			return err
		}
		for _, userID := range allow {
			grant := models.DownloadGrant{DownloadID: id, UserID: userID}
			if err := tx.Create(&grant).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *DownloadRepository) SetTitle(ctx context.Context, id uuid.UUID, title string) error {
	return r.db.WithContext(ctx).Model(&models.Download{}).
		Where("id = ?", id).
		Update("title", title).Error
}

func (r *DownloadRepository) ClearArtifact(ctx context.Context, id uuid.UUID) (string, error) {
	var prev string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var d models.Download
		if err := tx.Select("zip_path", "zip_status").Where("id = ?", id).First(&d).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return download.ErrNotFound
			}
			return err
		}
		if d.ZipStatus == models.ZipBuilding {
			return download.ErrBuildConflict
		}
		prev = d.ZipPath

		return tx.Model(&models.Download{}).
			Where("id = ? AND zip_status <> ?", id, models.ZipBuilding).
			Updates(map[string]any{
				"zip_status":     models.ZipInvalidated,
				"zip_path":       "",
				"zip_size_bytes": 0,
			}).Error
	})
	return prev, err
}

func (r *DownloadRepository) IncrementAccessCount(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&models.Download{}).
		Where("id = ?", id).
		UpdateColumn("access_count", gorm.Expr("access_count + 1")).Error
}

func (r *DownloadRepository) MarkDeleted(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&models.Download{}).
		Where("id = ?", id).
		Update("deleted", true).Error
}

func (r *DownloadRepository) ListPurgeable(ctx context.Context, now time.Time, limit int) ([]models.Download, error) {
	var out []models.Download
	err := r.db.WithContext(ctx).
		Where("(hard_delete_at IS NOT NULL AND hard_delete_at < ?) OR deleted = ?", now, true).
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *DownloadRepository) Purge(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("download_id = ?", id).Delete(&models.DownloadGrant{}).Error; err != nil {
			return err
		}
		if err := tx.Where("download_id = ?", id).Delete(&models.DownloadAsset{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&models.Download{}).Error
	})
}
