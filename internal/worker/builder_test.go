package worker

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bundlevault/bundlevault/internal/download"
	"github.com/bundlevault/bundlevault/internal/events"
	"github.com/bundlevault/bundlevault/internal/models"
)

// memRepo implements just enough of download.Repository for the builder,
// mirroring the conditional-update behavior of the real one.
type memRepo struct {
	d         *models.Download
	progress  []int
	failedMsg string
}

func (r *memRepo) Create(context.Context, *models.Download) error { return nil }

func (r *memRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Download, error) {
	if r.d == nil || r.d.ID != id {
		return nil, download.ErrNotFound
	}
	cp := *r.d
	return &cp, nil
}

func (r *memRepo) GetBySlug(context.Context, string) (*models.Download, error) {
	return nil, download.ErrNotFound
}

func (r *memRepo) ClaimBuild(_ context.Context, _ uuid.UUID, totalChunks int, now time.Time) (bool, error) {
	if r.d.ZipStatus == models.ZipBuilding {
		return false, nil
	}
	r.d.ZipStatus = models.ZipBuilding
	r.d.ZipBuildChunkIndex = 0
	r.d.ZipTotalChunks = totalChunks
	r.d.ZipBuildStartedAt = &now
	r.d.ZipLastProgressAt = &now
	return true, nil
}

func (r *memRepo) RecordChunkProgress(_ context.Context, _ uuid.UUID, index int, now time.Time) error {
	if r.d.ZipStatus != models.ZipBuilding || r.d.ZipBuildChunkIndex != index-1 {
		return download.ErrInvalidTransition
	}
	r.d.ZipBuildChunkIndex = index
	r.d.ZipLastProgressAt = &now
	r.progress = append(r.progress, index)
	return nil
}

func (r *memRepo) FinishBuild(_ context.Context, _ uuid.UUID, path string, sizeBytes int64, _ time.Time) (string, error) {
	if r.d.ZipStatus != models.ZipBuilding {
		return "", download.ErrInvalidTransition
	}
	prev := r.d.ZipPath
	r.d.ZipStatus = models.ZipReady
	r.d.ZipPath = path
	r.d.ZipSizeBytes = sizeBytes
	return prev, nil
}

func (r *memRepo) FailBuild(_ context.Context, _ uuid.UUID, reason string, _ time.Time) error {
	if r.d.ZipStatus != models.ZipBuilding {
		return download.ErrInvalidTransition
	}
	r.d.ZipStatus = models.ZipFailed
	r.d.ZipFailureReason = reason
	r.failedMsg = reason
	return nil
}

func (r *memRepo) SetRevoked(context.Context, uuid.UUID, time.Time) error      { return nil }
func (r *memRepo) SetExpiry(context.Context, uuid.UUID, *time.Time, time.Time) error {
	return nil
}
func (r *memRepo) SetAccess(context.Context, uuid.UUID, models.AccessMode, string, []uuid.UUID) error {
	return nil
}
func (r *memRepo) SetTitle(context.Context, uuid.UUID, string) error { return nil }
func (r *memRepo) ClearArtifact(context.Context, uuid.UUID) (string, error) {
	return "", nil
}
func (r *memRepo) IncrementAccessCount(context.Context, uuid.UUID) error { return nil }
func (r *memRepo) MarkDeleted(context.Context, uuid.UUID) error          { return nil }
func (r *memRepo) ListPurgeable(context.Context, time.Time, int) ([]models.Download, error) {
	return nil, nil
}
func (r *memRepo) Purge(context.Context, uuid.UUID) error { return nil }

type memStore struct {
	objects map[string][]byte
	deleted []string
	getErr  map[string]error
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}, getErr: map[string]error{}}
}

func (s *memStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	if err := s.getErr[key]; err != nil {
		return nil, err
	}
	b, ok := s.objects[key]
	if !ok {
		return nil, errors.New("no such object: " + key)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (s *memStore) Upload(_ context.Context, key string, r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.objects[key] = b
	return nil
}

func (s *memStore) Delete(_ context.Context, key string) error {
	delete(s.objects, key)
	s.deleted = append(s.deleted, key)
	return nil
}

func (s *memStore) PresignDownload(context.Context, string, string, time.Duration) (string, error) {
	return "", errors.New("not used")
}

func buildingRecord(assetCount int) (*memRepo, *memStore) {
	store := newMemStore()
	d := &models.Download{
		ID:         uuid.New(),
		TenantID:   uuid.New(),
		AssetCount: assetCount,
		ZipStatus:  models.ZipNone,
	}
	for i := 0; i < assetCount; i++ {
		key := fmt.Sprintf("assets/%03d", i)
		store.objects[key] = []byte(fmt.Sprintf("contents of %d", i))
		d.Assets = append(d.Assets, models.DownloadAsset{
			DownloadID: d.ID,
			AssetID:    uuid.New(),
			Filename:   fmt.Sprintf("file-%03d.bin", i),
			Path:       key,
			Index:      i,
		})
	}
	repo := &memRepo{d: d}
	return repo, store
}

func TestBuild_Success(t *testing.T) {
	repo, store := buildingRecord(250)
	chunkSize := 100
	if _, err := repo.ClaimBuild(context.Background(), repo.d.ID, download.ChunkCount(250, chunkSize), time.Now()); err != nil {
		t.Fatal(err)
	}

	b := NewBuilder(repo, store, events.NopSink{}, chunkSize)
	if err := b.Build(context.Background(), repo.d.ID); err != nil {
		t.Fatal(err)
	}

	d := repo.d
	if d.ZipStatus != models.ZipReady {
		t.Fatalf("zip status = %s, want ready", d.ZipStatus)
	}
	if d.ZipPath == "" || d.ZipSizeBytes <= 0 {
		t.Fatalf("ready without artifact: path=%q size=%d", d.ZipPath, d.ZipSizeBytes)
	}
	if !strings.HasPrefix(d.ZipPath, "archives/"+d.TenantID.String()+"/") {
		t.Errorf("artifact key %q not under the tenant prefix", d.ZipPath)
	}

	// Progress was persisted strictly sequentially, one row per chunk.
	if want := []int{1, 2, 3}; len(repo.progress) != 3 || repo.progress[0] != 1 || repo.progress[1] != 2 || repo.progress[2] != 3 {
		t.Errorf("chunk progress = %v, want %v", repo.progress, want)
	}

	// The uploaded object is a valid archive with all 250 entries.
	raw := store.objects[d.ZipPath]
	if int64(len(raw)) != d.ZipSizeBytes {
		t.Errorf("recorded size %d != object size %d", d.ZipSizeBytes, len(raw))
	}
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		t.Fatalf("artifact is not a valid zip: %v", err)
	}
	if len(zr.File) != 250 {
		t.Errorf("expected 250 entries, got %d", len(zr.File))
	}
}

func TestBuild_FailureMarksRecord(t *testing.T) {
	repo, store := buildingRecord(5)
	store.getErr["assets/003"] = errors.New("connection reset")
	if _, err := repo.ClaimBuild(context.Background(), repo.d.ID, 1, time.Now()); err != nil {
		t.Fatal(err)
	}

	b := NewBuilder(repo, store, events.NopSink{}, 100)
	if err := b.Build(context.Background(), repo.d.ID); err == nil {
		t.Fatal("expected build error")
	}

	if repo.d.ZipStatus != models.ZipFailed {
		t.Fatalf("zip status = %s, want failed", repo.d.ZipStatus)
	}
	if !strings.Contains(repo.failedMsg, "assets/003") {
		t.Errorf("failure reason %q should name the failing object", repo.failedMsg)
	}
	if repo.d.ZipPath != "" {
		t.Error("failed build must not leave an artifact reference")
	}
}

func TestBuild_StaleJobIsNoop(t *testing.T) {
	repo, store := buildingRecord(2)
	// Never claimed: zip_status is none, so the job is stale.
	b := NewBuilder(repo, store, events.NopSink{}, 100)
	if err := b.Build(context.Background(), repo.d.ID); err != nil {
		t.Fatalf("stale job should be dropped silently, got %v", err)
	}
	if repo.d.ZipStatus != models.ZipNone {
		t.Errorf("zip status = %s, want none", repo.d.ZipStatus)
	}
}

func TestBuild_RegenerateDeletesOldArtifactAfterSwap(t *testing.T) {
	repo, store := buildingRecord(3)
	repo.d.ZipPath = "archives/old.zip"
	store.objects["archives/old.zip"] = []byte("old zip")
	if _, err := repo.ClaimBuild(context.Background(), repo.d.ID, 1, time.Now()); err != nil {
		t.Fatal(err)
	}

	b := NewBuilder(repo, store, events.NopSink{}, 100)
	if err := b.Build(context.Background(), repo.d.ID); err != nil {
		t.Fatal(err)
	}

	if repo.d.ZipPath == "archives/old.zip" {
		t.Fatal("record still points at the old artifact")
	}
	if len(store.deleted) != 1 || store.deleted[0] != "archives/old.zip" {
		t.Errorf("old artifact should be deleted exactly once after the swap, got %v", store.deleted)
	}
	if _, ok := store.objects[repo.d.ZipPath]; !ok {
		t.Error("new artifact object missing")
	}
}
