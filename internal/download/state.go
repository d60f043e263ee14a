package download

import (
	"fmt"
	"time"

	"github.com/bundlevault/bundlevault/internal/models"
)

// BuildEvent is the closed set of transitions a build can go through.
type BuildEvent interface {
	buildEvent()
}

// BuildStarted claims a new build cycle and fixes the chunk count.
type BuildStarted struct {
	TotalChunks int
}

// BuildChunkCompleted advances progress by exactly one chunk.
type BuildChunkCompleted struct {
	Index int // 1-based index of the chunk that just finished
}

// BuildSucceeded finalizes the artifact.
type BuildSucceeded struct {
	Path      string
	SizeBytes int64
}

// BuildFailed terminates the build with an operator-facing reason.
type BuildFailed struct {
	Reason string
}

func (BuildStarted) buildEvent()        {}
func (BuildChunkCompleted) buildEvent() {}
func (BuildSucceeded) buildEvent()      {}
func (BuildFailed) buildEvent()         {}

// ApplyBuildEvent mutates the download in memory, enforcing monotonic chunk
// progression and terminal-state rules. Chunk k+1 is only accepted after
// chunk k; any event other than BuildStarted on a non-building record is
// rejected. The repository applies the same guards as conditional updates,
// so a lost race surfaces there even if the in-memory copy was stale.
func ApplyBuildEvent(d *models.Download, ev BuildEvent, now time.Time) error {
	switch e := ev.(type) {
	case BuildStarted:
		if !d.BuildTerminal() {
			return fmt.Errorf("%w: build already in progress", ErrInvalidTransition)
		}
		if e.TotalChunks < 1 {
			return fmt.Errorf("%w: total chunks must be positive", ErrInvalidTransition)
		}
		d.ZipStatus = models.ZipBuilding
		d.ZipBuildChunkIndex = 0
		d.ZipTotalChunks = e.TotalChunks
		d.ZipBuildStartedAt = &now
		d.ZipLastProgressAt = &now
		return nil

	case BuildChunkCompleted:
		if d.ZipStatus != models.ZipBuilding {
			return fmt.Errorf("%w: chunk progress on %s build", ErrInvalidTransition, d.ZipStatus)
		}
		if e.Index != d.ZipBuildChunkIndex+1 {
			return fmt.Errorf("%w: chunk %d after chunk %d", ErrInvalidTransition, e.Index, d.ZipBuildChunkIndex)
		}
		if e.Index > d.ZipTotalChunks {
			return fmt.Errorf("%w: chunk %d of %d", ErrInvalidTransition, e.Index, d.ZipTotalChunks)
		}
		d.ZipBuildChunkIndex = e.Index
		d.ZipLastProgressAt = &now
		return nil

	case BuildSucceeded:
		if d.ZipStatus != models.ZipBuilding {
			return fmt.Errorf("%w: success on %s build", ErrInvalidTransition, d.ZipStatus)
		}
		if e.Path == "" || e.SizeBytes <= 0 {
			return fmt.Errorf("%w: ready requires artifact path and size", ErrInvalidTransition)
		}
		d.ZipStatus = models.ZipReady
		d.ZipPath = e.Path
		d.ZipSizeBytes = e.SizeBytes
		d.ZipFailureReason = ""
		d.ZipLastProgressAt = &now
		return nil

	case BuildFailed:
		if d.ZipStatus != models.ZipBuilding {
			return fmt.Errorf("%w: failure on %s build", ErrInvalidTransition, d.ZipStatus)
		}
		d.ZipStatus = models.ZipFailed
		d.ZipFailureReason = e.Reason
		d.ZipLastProgressAt = &now
		return nil

	default:
		return fmt.Errorf("%w: unknown event %T", ErrInvalidTransition, ev)
	}
}

// ChunkCount returns ceil(assetCount / chunkSize).
func ChunkCount(assetCount, chunkSize int) int {
	if chunkSize < 1 {
		chunkSize = 1
	}
	return (assetCount + chunkSize - 1) / chunkSize
}
