package download

import (
	"testing"
	"time"

	"github.com/bundlevault/bundlevault/internal/models"
)

func TestIsStalled(t *testing.T) {
	threshold := 180 * time.Second
	progress := t0

	tests := []struct {
		name   string
		status models.ZipStatus
		lastAt *time.Time
		now    time.Time
		want   bool
	}{
		{"building with fresh progress", models.ZipBuilding, &progress, t0.Add(30 * time.Second), false},
		{"building exactly at threshold", models.ZipBuilding, &progress, t0.Add(threshold), false},
		{"building past threshold", models.ZipBuilding, &progress, t0.Add(threshold + time.Second), true},
		{"ready is never stalled", models.ZipReady, &progress, t0.Add(time.Hour), false},
		{"failed is never stalled", models.ZipFailed, &progress, t0.Add(time.Hour), false},
		{"building without progress timestamp", models.ZipBuilding, nil, t0.Add(time.Hour), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &models.Download{ZipStatus: tt.status, ZipLastProgressAt: tt.lastAt}
			if got := IsStalled(d, tt.now, threshold); got != tt.want {
				t.Errorf("IsStalled() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsPossiblyStuck(t *testing.T) {
	started := t0

	t.Run("small build well within estimate", func(t *testing.T) {
		d := &models.Download{
			ZipStatus:          models.ZipBuilding,
			ZipBuildStartedAt:  &started,
			EstimatedSizeBytes: 1 << 20,
		}
		if IsPossiblyStuck(d, t0.Add(2*time.Minute)) {
			t.Error("should not be stuck within 4x the floor estimate")
		}
	})

	t.Run("small build vastly over estimate", func(t *testing.T) {
		d := &models.Download{
			ZipStatus:          models.ZipBuilding,
			ZipBuildStartedAt:  &started,
			EstimatedSizeBytes: 1 << 20,
		}
		if !IsPossiblyStuck(d, t0.Add(time.Hour)) {
			t.Error("an hour on a tiny build should read as stuck")
		}
	})

	t.Run("terminal build is never stuck", func(t *testing.T) {
		d := &models.Download{
			ZipStatus:         models.ZipReady,
			ZipBuildStartedAt: &started,
		}
		if IsPossiblyStuck(d, t0.Add(24*time.Hour)) {
			t.Error("ready build flagged as stuck")
		}
	})
}

func TestScenario_250FilesStallDetection(t *testing.T) {
	// 250 files with chunk size 100 -> 3 chunks; two completed ticks leave
	// the index at 2, and silence past the threshold flags a stall.
	total := ChunkCount(250, 100)
	if total != 3 {
		t.Fatalf("ChunkCount(250, 100) = %d, want 3", total)
	}

	d := &models.Download{ZipStatus: models.ZipNone, AssetCount: 250}
	if err := ApplyBuildEvent(d, BuildStarted{TotalChunks: total}, t0); err != nil {
		t.Fatal(err)
	}
	if err := ApplyBuildEvent(d, BuildChunkCompleted{Index: 1}, t0.Add(10*time.Second)); err != nil {
		t.Fatal(err)
	}
	if err := ApplyBuildEvent(d, BuildChunkCompleted{Index: 2}, t0.Add(20*time.Second)); err != nil {
		t.Fatal(err)
	}
	if d.ZipBuildChunkIndex != 2 {
		t.Fatalf("chunk index = %d, want 2", d.ZipBuildChunkIndex)
	}

	threshold := 180 * time.Second
	if IsStalled(d, t0.Add(21*time.Second), threshold) {
		t.Error("stalled right after progress")
	}
	if !IsStalled(d, t0.Add(20*time.Second).Add(threshold+time.Second), threshold) {
		t.Error("expected stall once progress went quiet past the threshold")
	}
}
