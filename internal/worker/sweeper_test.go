package worker

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bundlevault/bundlevault/internal/events"
	"github.com/bundlevault/bundlevault/internal/models"
)

type purgeRepo struct {
	memRepo
	purgeable []models.Download
	purged    []uuid.UUID
}

func (r *purgeRepo) ListPurgeable(context.Context, time.Time, int) ([]models.Download, error) {
	return r.purgeable, nil
}

func (r *purgeRepo) Purge(_ context.Context, id uuid.UUID) error {
	r.purged = append(r.purged, id)
	return nil
}

func TestSweep(t *testing.T) {
	withArtifact := models.Download{ID: uuid.New(), TenantID: uuid.New(), ZipPath: "archives/gone.zip"}
	withoutArtifact := models.Download{ID: uuid.New(), TenantID: uuid.New()}

	repo := &purgeRepo{purgeable: []models.Download{withArtifact, withoutArtifact}}
	store := newMemStore()
	store.objects["archives/gone.zip"] = []byte("zip")

	s := NewSweeper(repo, store, events.NopSink{}, time.Hour)
	s.sweep(context.Background())

	if len(repo.purged) != 2 {
		t.Fatalf("purged %d records, want 2", len(repo.purged))
	}
	if len(store.deleted) != 1 || store.deleted[0] != "archives/gone.zip" {
		t.Errorf("artifact deletion = %v, want just the stored archive", store.deleted)
	}
}
