package worker

import (
	"context"
	"log"
	"time"

	"github.com/bundlevault/bundlevault/internal/download"
	"github.com/bundlevault/bundlevault/internal/events"
)

const sweepBatchSize = 100

// Sweeper purges records past their hard-delete timestamp along with any
// remaining archive artifact. Selected source assets belong to the asset
// library and are never touched.
type Sweeper struct {
	repo     download.Repository
	store    download.ObjectStore
	sink     events.Sink
	interval time.Duration
	now      func() time.Time
}

func NewSweeper(repo download.Repository, store download.ObjectStore, sink events.Sink, interval time.Duration) *Sweeper {
	return &Sweeper{repo: repo, store: store, sink: sink, interval: interval, now: time.Now}
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	purgeable, err := s.repo.ListPurgeable(ctx, s.now(), sweepBatchSize)
	if err != nil {
		log.Printf("retention sweep: list: %v", err)
		return
	}
	for _, d := range purgeable {
		if d.ZipPath != "" {
			if err := s.store.Delete(ctx, d.ZipPath); err != nil {
				log.Printf("retention sweep: delete artifact %s: %v", d.ZipPath, err)
				continue // retry next sweep rather than orphan the object
			}
		}
		if err := s.repo.Purge(ctx, d.ID); err != nil {
			log.Printf("retention sweep: purge %s: %v", d.ID, err)
			continue
		}
		s.sink.Emit(events.Event{Type: events.DownloadPurged, DownloadID: d.ID, TenantID: d.TenantID, At: s.now()})
	}
}
