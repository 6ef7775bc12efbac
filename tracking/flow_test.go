package tracking

import (
	"testing"

	"gocv.io/x/gocv"

	"github.com/oakfield-robotics/stereoslam/geometry"
	"github.com/oakfield-robotics/stereoslam/internal/testutil"
)

func TestPutFloat32RoundTripsThroughBytes(t *testing.T) {
	data := make([]byte, 8)
	putFloat32(data, 0, 1.5)
	putFloat32(data, 4, -2.25)

	m, err := gocv.NewMatFromBytes(1, 1, gocv.MatTypeCV32FC2, data)
	if err != nil {
		t.Fatalf("NewMatFromBytes: %v", err)
	}
	defer m.Close()

	v := m.GetVecfAt(0, 0)
	testutil.AssertAlmostEqual(t, float64(v[0]), 1.5, 1e-6, "first float32 lane")
	testutil.AssertAlmostEqual(t, float64(v[1]), -2.25, 1e-6, "second float32 lane")
}

func TestPointsToMatPreservesCoordinates(t *testing.T) {
	points := []geometry.Point2d{{X: 10, Y: 20}, {X: -1.5, Y: 3.25}}
	m, err := pointsToMat(points)
	if err != nil {
		t.Fatalf("pointsToMat: %v", err)
	}
	defer m.Close()

	if m.Rows() != len(points) || m.Cols() != 1 {
		t.Fatalf("pointsToMat produced a %dx%d Mat, want %dx1", m.Rows(), m.Cols(), len(points))
	}
	for i, p := range points {
		v := m.GetVecfAt(i, 0)
		testutil.AssertAlmostEqual(t, float64(v[0]), p.X, 1e-5, "x")
		testutil.AssertAlmostEqual(t, float64(v[1]), p.Y, 1e-5, "y")
	}
}

func TestToGrayOnAlreadyGrayImage(t *testing.T) {
	img := gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8U)
	defer img.Close()

	gray := toGray(img)
	defer gray.Close()
	if gray.Channels() != 1 {
		t.Fatalf("toGray on a single-channel image produced %d channels, want 1", gray.Channels())
	}
}

func TestToGrayOnColorImage(t *testing.T) {
	img := gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8UC3)
	defer img.Close()

	gray := toGray(img)
	defer gray.Close()
	if gray.Channels() != 1 {
		t.Fatalf("toGray on a 3-channel image produced %d channels, want 1", gray.Channels())
	}
}

func TestNewFlowTrackerDefaults(t *testing.T) {
	ft := NewFlowTracker()
	if ft.MaxPoints != 1000 {
		t.Errorf("MaxPoints = %d, want 1000", ft.MaxPoints)
	}
	if ft.MinDistance != 7 {
		t.Errorf("MinDistance = %v, want 7", ft.MinDistance)
	}
}

func TestFlowTrackerTrackRejectsEmptySeed(t *testing.T) {
	ft := NewFlowTracker()
	img := gocv.NewMatWithSize(8, 8, gocv.MatTypeCV8U)
	defer img.Close()
	if _, _, _, err := ft.Track(img, img, nil); err == nil {
		t.Fatal("expected an error tracking with zero seed points")
	}
}
