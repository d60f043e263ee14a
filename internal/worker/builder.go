// Package worker runs the asynchronous side of the fulfillment engine:
// the chunked archive build and the retention sweep.
package worker

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/bundlevault/bundlevault/internal/archive"
	"github.com/bundlevault/bundlevault/internal/download"
	"github.com/bundlevault/bundlevault/internal/events"
	"github.com/bundlevault/bundlevault/internal/models"
)

// Builder assembles the ZIP artifact for one download. It assumes the
// build has already been claimed (zip_status=building); the claim is the
// concurrency control, not this type.
type Builder struct {
	repo      download.Repository
	store     download.ObjectStore
	sink      events.Sink
	chunkSize int
	now       func() time.Time
}

func NewBuilder(repo download.Repository, store download.ObjectStore, sink events.Sink, chunkSize int) *Builder {
	if chunkSize < 1 {
		chunkSize = 1
	}
	return &Builder{repo: repo, store: store, sink: sink, chunkSize: chunkSize, now: time.Now}
}

// Build spools the archive to a temp file chunk by chunk, persisting
// progress after each chunk, then uploads it and finalizes the record.
// There is no resume: a crash mid-build leaves the record building with
// stale progress until the owner regenerates.
func (b *Builder) Build(ctx context.Context, id uuid.UUID) error {
	d, err := b.repo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("load download %s: %w", id, err)
	}
	if d.ZipStatus != models.ZipBuilding {
		// Stale job: the claim moved on without us (at-least-once queue).
		return nil
	}

	key, size, err := b.assemble(ctx, d)
	if err != nil {
		if errors.Is(err, download.ErrInvalidTransition) {
			// Lost the claim mid-build; whoever owns it now decides the outcome.
			log.Printf("build %s: lost claim: %v", id, err)
			return nil
		}
		if failErr := b.repo.FailBuild(ctx, id, err.Error(), b.now()); failErr != nil {
			log.Printf("build %s: record failure: %v", id, failErr)
		}
		b.sink.Emit(events.Event{Type: events.BuildFailed, DownloadID: id, TenantID: d.TenantID, At: b.now()})
		return fmt.Errorf("build %s: %w", id, err)
	}

	prev, err := b.repo.FinishBuild(ctx, id, key, size, b.now())
	if err != nil {
		// The uploaded object is orphaned; remove it rather than leak it.
		if delErr := b.store.Delete(ctx, key); delErr != nil {
			log.Printf("build %s: remove orphan %s: %v", id, key, delErr)
		}
		return fmt.Errorf("build %s: finish: %w", id, err)
	}
	if prev != "" && prev != key {
		// Old artifact from a regenerated build; safe to drop now that the
		// record points at the new one.
		if err := b.store.Delete(ctx, prev); err != nil {
			log.Printf("build %s: remove previous artifact %s: %v", id, prev, err)
		}
	}

	b.sink.Emit(events.Event{
		Type: events.BuildSucceeded, DownloadID: id, TenantID: d.TenantID, At: b.now(),
		Detail: map[string]string{"sizeBytes": fmt.Sprint(size)},
	})
	return nil
}

func (b *Builder) assemble(ctx context.Context, d *models.Download) (key string, size int64, err error) {
	tmp, err := os.CreateTemp("", "bundlevault-*.zip")
	if err != nil {
		return "", 0, fmt.Errorf("create spool file: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	zw := zip.NewWriter(tmp)
	assets := d.Assets
	total := download.ChunkCount(len(assets), b.chunkSize)

	for chunk := 0; chunk < total; chunk++ {
		lo := chunk * b.chunkSize
		hi := min(lo+b.chunkSize, len(assets))
		for _, a := range assets[lo:hi] {
			if err := ctx.Err(); err != nil {
				return "", 0, err
			}
			if err := archive.WriteEntry(ctx, zw, b.store, a); err != nil {
				return "", 0, err
			}
		}
		if err := b.repo.RecordChunkProgress(ctx, d.ID, chunk+1, b.now()); err != nil {
			return "", 0, err
		}
	}

	if err := zw.Close(); err != nil {
		return "", 0, fmt.Errorf("finalize archive: %w", err)
	}
	info, err := tmp.Stat()
	if err != nil {
		return "", 0, fmt.Errorf("stat spool file: %w", err)
	}
	if _, err := tmp.Seek(0, 0); err != nil {
		return "", 0, fmt.Errorf("rewind spool file: %w", err)
	}

	// Key is unique per build so a regenerated artifact never overwrites
	// the previous one before FinishBuild swaps the reference.
	key = fmt.Sprintf("archives/%s/%s.zip", d.TenantID, uuid.New())
	if err := b.store.Upload(ctx, key, tmp); err != nil {
		return "", 0, fmt.Errorf("upload archive: %w", err)
	}
	return key, info.Size(), nil
}
