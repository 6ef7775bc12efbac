package stereoslam

import (
	"testing"
	"time"

	"gocv.io/x/gocv"

	"github.com/oakfield-robotics/stereoslam/internal/testutil"
)

func TestNewWorldRejectsInvalidCalibration(t *testing.T) {
	c := sampleCalibration()
	c.OK = false
	if _, err := NewWorld(c); err == nil {
		t.Fatal("expected NewWorld to reject an invalid calibration")
	}
}

func TestNewWorldOpensOneEmptyMap(t *testing.T) {
	w, err := NewWorld(sampleCalibration())
	if err != nil {
		t.Fatalf("NewWorld: %v", err)
	}
	maps := w.Maps()
	if len(maps) != 1 {
		t.Fatalf("len(w.Maps()) = %d, want 1", len(maps))
	}
	if maps[0].State() != MapEmpty {
		t.Fatalf("initial map state = %v, want MapEmpty", maps[0].State())
	}
	if len(w.Path()) != 0 || len(w.SparseCloud()) != 0 || len(w.Frames()) != 0 {
		t.Fatal("a freshly constructed World must report an empty path, cloud, and frame set")
	}
}

func TestWorldTrackSkipsEmptyImage(t *testing.T) {
	w, err := NewWorld(sampleCalibration())
	if err != nil {
		t.Fatalf("NewWorld: %v", err)
	}
	now := time.Now()
	outcome, err := w.Track(
		StampedImage{Timestamp: now, Pixels: gocv.NewMat()},
		StampedImage{Timestamp: now, Pixels: gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8U)},
	)
	if err != nil {
		t.Fatalf("Track: %v", err)
	}
	if outcome.OK {
		t.Fatal("expected Track to report failure for an empty image")
	}
	if len(w.Maps()[0].Keyframes()) != 0 {
		t.Fatal("an empty-image pair must not advance the active map")
	}
}

func TestWorldTrackSkipsMismatchedImageSizes(t *testing.T) {
	w, err := NewWorld(sampleCalibration())
	if err != nil {
		t.Fatalf("NewWorld: %v", err)
	}
	now := time.Now()
	outcome, err := w.Track(
		StampedImage{Timestamp: now, Pixels: gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8U)},
		StampedImage{Timestamp: now, Pixels: gocv.NewMatWithSize(240, 320, gocv.MatTypeCV8U)},
	)
	if err != nil {
		t.Fatalf("Track: %v", err)
	}
	if outcome.OK {
		t.Fatal("expected Track to report failure for mismatched image sizes")
	}
}

func TestWorldOpenContinuationMapStartsAtLastKnownPose(t *testing.T) {
	w, err := NewWorld(sampleCalibration())
	if err != nil {
		t.Fatalf("NewWorld: %v", err)
	}
	closed := w.maps[0]
	closed.state = MapClosed
	lastPose := startStereo(t)
	closed.keyframes = append(closed.keyframes, &StereoFrame{
		left:  newMonoFrame(lastPose.Left, gocv.NewMat()),
		right: newMonoFrame(lastPose.Right, gocv.NewMat()),
	})

	w.openContinuationMap(closed)

	maps := w.Maps()
	if len(maps) != 2 {
		t.Fatalf("len(w.Maps()) = %d, want 2", len(maps))
	}
	if maps[1].State() != MapEmpty {
		t.Fatalf("continuation map state = %v, want MapEmpty", maps[1].State())
	}
	got := maps[1].startProjection
	testutil.AssertAlmostEqual(t, got.Baseline(), lastPose.Baseline(), 1e-9, "continuation map baseline")
}
