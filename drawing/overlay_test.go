package drawing

import (
	"testing"

	"gocv.io/x/gocv"

	"github.com/oakfield-robotics/stereoslam/geometry"
	"github.com/oakfield-robotics/stereoslam/internal/testutil"
)

func blankFrame() gocv.Mat {
	return gocv.NewMatWithSize(64, 96, gocv.MatTypeCV8UC3)
}

func TestDrawKeypointsModifiesFrame(t *testing.T) {
	frame := blankFrame()
	defer frame.Close()
	pristine := frame.Clone()
	defer pristine.Close()

	points := []geometry.Point2d{{X: 10, Y: 10}, {X: 48, Y: 32}, {X: 80, Y: 50}}
	DrawKeypoints(&frame, points, nil, 3, 1)

	if sim := testutil.ImageSimilarity(&frame, &pristine, 0); sim >= 1.0 {
		t.Fatal("drawing keypoints left the frame untouched")
	}
}

func TestDrawKeypointsIsDeterministic(t *testing.T) {
	points := []geometry.Point2d{{X: 10, Y: 10}, {X: 48, Y: 32}}

	a := blankFrame()
	defer a.Close()
	b := blankFrame()
	defer b.Close()
	DrawKeypoints(&a, points, nil, 3, 1)
	DrawKeypoints(&b, points, nil, 3, 1)

	if sim := testutil.ImageSimilarity(&a, &b, 0); sim < 1.0 {
		t.Fatalf("two identical draws differ, similarity %v", sim)
	}
}

func TestDrawKeypointsEmptyInputIsNoop(t *testing.T) {
	frame := blankFrame()
	defer frame.Close()
	pristine := frame.Clone()
	defer pristine.Close()

	DrawKeypoints(&frame, nil, nil, 3, 1)
	if sim := testutil.ImageSimilarity(&frame, &pristine, 0); sim < 1.0 {
		t.Fatal("drawing zero keypoints must not touch the frame")
	}
}

func TestDrawTracksModifiesFrame(t *testing.T) {
	frame := blankFrame()
	defer frame.Close()
	pristine := frame.Clone()
	defer pristine.Close()

	tracks := []Track{
		{From: geometry.Point2d{X: 5, Y: 5}, To: geometry.Point2d{X: 30, Y: 20}},
		{From: geometry.Point2d{X: 60, Y: 40}, To: geometry.Point2d{X: 70, Y: 55}},
	}
	DrawTracks(&frame, tracks, 1)

	if sim := testutil.ImageSimilarity(&frame, &pristine, 0); sim >= 1.0 {
		t.Fatal("drawing tracks left the frame untouched")
	}
}

func TestDrawStereoCorrespondencesCanvasSize(t *testing.T) {
	left := blankFrame()
	defer left.Close()
	right := blankFrame()
	defer right.Close()

	matches := []Correspondence{
		{Left: geometry.Point2d{X: 10, Y: 10}, Right: geometry.Point2d{X: 6, Y: 10}},
	}
	canvas := DrawStereoCorrespondences(left, right, matches)
	defer canvas.Close()

	if canvas.Cols() != left.Cols()+right.Cols() {
		t.Fatalf("canvas width = %d, want %d", canvas.Cols(), left.Cols()+right.Cols())
	}
	if canvas.Rows() != left.Rows() {
		t.Fatalf("canvas height = %d, want %d", canvas.Rows(), left.Rows())
	}
}

func TestPaletteChooseColorIsStable(t *testing.T) {
	p := NewPalette(nil)
	if p.ChooseColor(42) != p.ChooseColor(42) {
		t.Fatal("the same key must always map to the same color")
	}
}

func TestPaletteSetRejectsUnknownName(t *testing.T) {
	p := NewPalette(nil)
	if err := p.Set("viridis"); err == nil {
		t.Fatal("expected an error for an unsupported palette name")
	}
	if err := p.Set("tab20"); err != nil {
		t.Fatalf("Set(tab20): %v", err)
	}
}
