package worker

import (
	"context"
	"log"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// Dispatcher is the in-process build queue. Per-download exclusivity comes
// from the claimed state transition, not from here; the semaphore only
// bounds how many builds run at once.
type Dispatcher struct {
	builder *Builder
	jobs    chan uuid.UUID
	sem     *semaphore.Weighted
}

func NewDispatcher(builder *Builder, maxConcurrent int64) *Dispatcher {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Dispatcher{
		builder: builder,
		jobs:    make(chan uuid.UUID, 256),
		sem:     semaphore.NewWeighted(maxConcurrent),
	}
}

// Dispatch enqueues a build job without blocking the caller. A full queue
// drops the job; the record stays building and the stall monitor will
// flag it for regeneration.
func (d *Dispatcher) Dispatch(id uuid.UUID) {
	select {
	case d.jobs <- id:
	default:
		log.Printf("build queue full, dropping job for %s", id)
	}
}

// Run consumes jobs until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-d.jobs:
			if err := d.sem.Acquire(ctx, 1); err != nil {
				return
			}
			go func(id uuid.UUID) {
				defer d.sem.Release(1)
				if err := d.builder.Build(ctx, id); err != nil {
					log.Printf("build worker: %v", err)
				}
			}(id)
		}
	}
}
