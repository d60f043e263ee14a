package download

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bundlevault/bundlevault/internal/models"
	"github.com/bundlevault/bundlevault/internal/policy"
)

func readyDownload(t *testing.T, svc *Service, repo *fakeRepo, store *fakeStore) *models.Download {
	t.Helper()
	d, err := svc.Create(context.Background(), baseParams(selectionOf(2, 10)))
	if err != nil {
		t.Fatal(err)
	}
	store.objects["archives/a.zip"] = []byte("zip")
	if _, err := repo.FinishBuild(context.Background(), d.ID, "archives/a.zip", 3, time.Now()); err != nil {
		t.Fatal(err)
	}
	got, _ := repo.GetByID(context.Background(), d.ID)
	return got
}

func TestResolve_Precedence(t *testing.T) {
	ctx := context.Background()
	anon := policy.Principal{}

	t.Run("unknown slug", func(t *testing.T) {
		svc := testService(newFakeRepo(), newFakeStore(), &fakeQueue{})
		_, state, err := svc.Resolve(ctx, "nope", anon, false)
		if err != nil || state != StateNotFound {
			t.Errorf("state = %s, err = %v; want not_found", state, err)
		}
	})

	t.Run("revoked wins over everything", func(t *testing.T) {
		repo := newFakeRepo()
		store := newFakeStore()
		svc := testService(repo, store, &fakeQueue{})
		d := readyDownload(t, svc, repo, store)
		if err := svc.Revoke(ctx, d.ID, uuid.New()); err != nil {
			t.Fatal(err)
		}
		_, state, _ := svc.Resolve(ctx, d.Slug, anon, false)
		if state != StateRevoked {
			t.Errorf("state = %s, want revoked even with a ready artifact", state)
		}
	})

	t.Run("access denial precedes expiry", func(t *testing.T) {
		repo := newFakeRepo()
		store := newFakeStore()
		svc := testService(repo, store, &fakeQueue{})
		d := readyDownload(t, svc, repo, store)
		past := time.Now().Add(-time.Hour)
		if err := repo.SetAccess(ctx, d.ID, models.AccessCompany, "", nil); err != nil {
			t.Fatal(err)
		}
		if err := repo.SetExpiry(ctx, d.ID, &past, past.AddDate(0, 0, 30)); err != nil {
			t.Fatal(err)
		}
		_, state, _ := svc.Resolve(ctx, d.Slug, anon, false)
		if state != StateAccessDenied {
			t.Errorf("state = %s, want access_denied before expired", state)
		}
	})

	t.Run("expired even with ready artifact", func(t *testing.T) {
		repo := newFakeRepo()
		store := newFakeStore()
		svc := testService(repo, store, &fakeQueue{})
		d := readyDownload(t, svc, repo, store)
		past := time.Now().Add(-time.Minute)
		if err := repo.SetExpiry(ctx, d.ID, &past, past.AddDate(0, 0, 30)); err != nil {
			t.Fatal(err)
		}
		_, state, _ := svc.Resolve(ctx, d.Slug, anon, false)
		if state != StateExpired {
			t.Errorf("state = %s, want expired", state)
		}
	})

	t.Run("building reads as processing", func(t *testing.T) {
		repo := newFakeRepo()
		svc := testService(repo, newFakeStore(), &fakeQueue{})
		d, err := svc.Create(ctx, baseParams(selectionOf(250, 1024)))
		if err != nil {
			t.Fatal(err)
		}
		_, state, _ := svc.Resolve(ctx, d.Slug, anon, false)
		if state != StateProcessing {
			t.Errorf("state = %s, want processing", state)
		}
	})

	t.Run("failed build reads as failed", func(t *testing.T) {
		repo := newFakeRepo()
		svc := testService(repo, newFakeStore(), &fakeQueue{})
		d, err := svc.Create(ctx, baseParams(selectionOf(250, 1024)))
		if err != nil {
			t.Fatal(err)
		}
		if err := repo.FailBuild(ctx, d.ID, "upload exploded", time.Now()); err != nil {
			t.Fatal(err)
		}
		_, state, _ := svc.Resolve(ctx, d.Slug, anon, false)
		if state != StateFailed {
			t.Errorf("state = %s, want failed", state)
		}
	})

	t.Run("password gates ready and unlock passes it", func(t *testing.T) {
		repo := newFakeRepo()
		store := newFakeStore()
		queue := &fakeQueue{}
		svc := testService(repo, store, queue)
		p := baseParams(selectionOf(2, 10))
		p.Password = "sesame"
		d, err := svc.Create(ctx, p)
		if err != nil {
			t.Fatal(err)
		}
		store.objects["archives/a.zip"] = []byte("zip")
		if _, err := repo.FinishBuild(ctx, d.ID, "archives/a.zip", 3, time.Now()); err != nil {
			t.Fatal(err)
		}

		_, state, _ := svc.Resolve(ctx, d.Slug, anon, false)
		if state != StatePasswordRequired {
			t.Fatalf("state = %s, want password_required", state)
		}
		_, state, _ = svc.Resolve(ctx, d.Slug, anon, true)
		if state != StateReady {
			t.Errorf("unlocked state = %s, want ready", state)
		}
	})

	t.Run("streaming download is ready without artifact", func(t *testing.T) {
		repo := newFakeRepo()
		svc := testService(repo, newFakeStore(), &fakeQueue{})
		d, err := svc.Create(ctx, baseParams(selectionOf(6, 100<<20)))
		if err != nil {
			t.Fatal(err)
		}
		got, state, _ := svc.Resolve(ctx, d.Slug, anon, false)
		if state != StateReady {
			t.Fatalf("state = %s, want ready", state)
		}
		if got.ZipPath != "" {
			t.Error("streaming download must have no artifact path")
		}
	})

	t.Run("soft-deleted reads as not found", func(t *testing.T) {
		repo := newFakeRepo()
		store := newFakeStore()
		svc := testService(repo, store, &fakeQueue{})
		d := readyDownload(t, svc, repo, store)
		if err := svc.Delete(ctx, d.ID); err != nil {
			t.Fatal(err)
		}
		_, state, _ := svc.Resolve(ctx, d.Slug, anon, false)
		if state != StateNotFound {
			t.Errorf("state = %s, want not_found", state)
		}
	})
}

func TestDeliveryFilename(t *testing.T) {
	t.Run("multi-file uses the title", func(t *testing.T) {
		d := &models.Download{Title: "Q3 assets"}
		if got := DeliveryFilename(d); got != "Q3 assets.zip" {
			t.Errorf("got %q", got)
		}
	})
	t.Run("untitled falls back", func(t *testing.T) {
		d := &models.Download{}
		if got := DeliveryFilename(d); got != "download.zip" {
			t.Errorf("got %q", got)
		}
	})
	t.Run("single file uses the primary asset name", func(t *testing.T) {
		d := &models.Download{
			DirectAssetPath: "assets/abc",
			Assets: []models.DownloadAsset{
				{Filename: "other.png"},
				{Filename: "hero.png", Primary: true},
			},
		}
		if got := DeliveryFilename(d); got != "hero.png" {
			t.Errorf("got %q", got)
		}
	})
}
