package download

import (
	"time"

	"github.com/bundlevault/bundlevault/internal/models"
)

// assumedThroughput is the conservative assembly rate used to estimate how
// long a build should take from the stored size estimate.
const assumedThroughput = 8 << 20 // bytes per second

const minBuildEstimate = time.Minute

// Health is the advisory view of a running build. Neither signal triggers
// any remediation; regenerate is the only recovery path.
type Health struct {
	Stalled       bool `json:"stalled"`
	PossiblyStuck bool `json:"possiblyStuck"`
}

// IsStalled reports whether a building download has gone without chunk
// progress for longer than the threshold.
func IsStalled(d *models.Download, now time.Time, threshold time.Duration) bool {
	if d.ZipStatus != models.ZipBuilding || d.ZipLastProgressAt == nil {
		return false
	}
	return now.Sub(*d.ZipLastProgressAt) > threshold
}

// EstimateBuildDuration converts the creation-time size estimate into an
// expected build duration, with a floor for tiny selections.
func EstimateBuildDuration(sizeBytes int64) time.Duration {
	est := time.Duration(sizeBytes/assumedThroughput) * time.Second
	if est < minBuildEstimate {
		return minBuildEstimate
	}
	return est
}

// IsPossiblyStuck is the looser heuristic: the build has been running for
// several times longer than the size-based estimate.
func IsPossiblyStuck(d *models.Download, now time.Time) bool {
	if d.ZipStatus != models.ZipBuilding || d.ZipBuildStartedAt == nil {
		return false
	}
	return now.Sub(*d.ZipBuildStartedAt) > 4*EstimateBuildDuration(d.EstimatedSizeBytes)
}

// CheckHealth derives both advisory signals for a record.
func CheckHealth(d *models.Download, now time.Time, stallThreshold time.Duration) Health {
	return Health{
		Stalled:       IsStalled(d, now, stallThreshold),
		PossiblyStuck: IsPossiblyStuck(d, now),
	}
}
