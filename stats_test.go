package stereoslam

import (
	"testing"

	"github.com/oakfield-robotics/stereoslam/internal/testutil"
)

func TestSessionStatsRecordSuccessAndFailure(t *testing.T) {
	var stats SessionStats

	stats.record(TrackOutcome{OK: true, InlierRatio: 0.9, KeyframeAdded: true})
	stats.record(TrackOutcome{OK: true, InlierRatio: 0.7})
	stats.record(TrackOutcome{OK: false, Reason: "lost"})

	snap := stats.snapshot()
	if snap.PairsProcessed != 3 {
		t.Fatalf("PairsProcessed = %d, want 3", snap.PairsProcessed)
	}
	if snap.PairsSucceeded != 2 {
		t.Fatalf("PairsSucceeded = %d, want 2", snap.PairsSucceeded)
	}
	if snap.PairsFailed != 1 {
		t.Fatalf("PairsFailed = %d, want 1", snap.PairsFailed)
	}
	if snap.KeyframesAdded != 1 {
		t.Fatalf("KeyframesAdded = %d, want 1", snap.KeyframesAdded)
	}
	testutil.AssertAlmostEqual(t, snap.MeanInlierRatio(), 0.8, 1e-9, "mean inlier ratio")
}

func TestSessionStatsMeanInlierRatioWithNoSuccesses(t *testing.T) {
	var stats SessionStats
	stats.record(TrackOutcome{OK: false})
	if got := stats.snapshot().MeanInlierRatio(); got != 0 {
		t.Fatalf("MeanInlierRatio() = %v, want 0", got)
	}
}

func TestSessionStatsRecordMapBoundary(t *testing.T) {
	var stats SessionStats
	stats.recordMapBoundary(1)
	stats.recordMapBoundary(2)
	snap := stats.snapshot()
	if len(snap.MapBoundaries) != 2 || snap.MapBoundaries[0] != 1 || snap.MapBoundaries[1] != 2 {
		t.Fatalf("MapBoundaries = %v, want [1 2]", snap.MapBoundaries)
	}
}
