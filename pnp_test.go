package stereoslam

import (
	"math"
	"testing"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/mat"

	"github.com/oakfield-robotics/stereoslam/geometry"
	"github.com/oakfield-robotics/stereoslam/internal/testutil"
)

func newTestProjection(t *testing.T) *ProjectionMatrix {
	t.Helper()
	identity := mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
	origin := mat.NewDense(3, 1, []float64{0, 0, 0})
	p, err := NewProjectionMatrix(500, 500, 320, 240, identity, origin)
	if err != nil {
		t.Fatalf("NewProjectionMatrix: %v", err)
	}
	return p
}

// linkedPosePoint builds one left-frame FramePoint carrying both a prior
// temporal link and a MapPoint, the pose-point predicate.
func linkedPosePoint(t *testing.T, m *Map, frame *MonoFrame, pixel Point2d, pos Point3d) *FramePoint {
	t.Helper()
	prevFrame := newMonoFrame(frame.projection.Clone(), gocv.NewMat())
	prev := prevFrame.addDetection(pixel, RGBA{})
	curr := frame.addDetection(pixel, RGBA{})
	setTemporalLink(prev, curr)

	handle, _ := m.points.alloc(pos, RGBA{})
	curr.setMapPoint(m, handle)
	return curr
}

func TestPosePointsFiltersUnlinkedObservations(t *testing.T) {
	m := &Map{points: newMapPointArena()}
	frame := newMonoFrame(newTestProjection(t), gocv.NewMat())

	linked := linkedPosePoint(t, m, frame, Point2d{X: 300, Y: 200}, Point3d{X: 0, Y: 0, Z: 5})

	// A bare detection: no prev link, no MapPoint.
	frame.addDetection(Point2d{X: 10, Y: 10}, RGBA{})

	// Has a MapPoint but no prev link.
	noPrev := frame.addDetection(Point2d{X: 20, Y: 20}, RGBA{})
	handle, _ := m.points.alloc(Point3d{X: 1, Y: 1, Z: 1}, RGBA{})
	noPrev.setMapPoint(m, handle)

	sf := &StereoFrame{left: frame, right: frame}
	got := posePoints(sf)
	if len(got) != 1 || got[0] != linked {
		t.Fatalf("posePoints() = %v, want exactly the one fully-linked observation", got)
	}
}

func TestSolvePnPTooFewPoints(t *testing.T) {
	tuning := DefaultTuning()
	tuning.MinTrackPoints = 10

	m := &Map{points: newMapPointArena()}
	frame := newMonoFrame(newTestProjection(t), gocv.NewMat())
	var points []*FramePoint
	for i := 0; i < 3; i++ {
		points = append(points, linkedPosePoint(t, m, frame, Point2d{X: float64(300 + i), Y: 200}, Point3d{X: 0, Y: 0, Z: 5}))
	}

	result, err := solvePnP(points, tuning, nil)
	if err != nil {
		t.Fatalf("solvePnP returned an unexpected error: %v", err)
	}
	if result.OK {
		t.Fatal("expected solvePnP to fail fast when below MinTrackPoints")
	}
	if result.Reason == "" {
		t.Fatal("expected a non-empty failure reason")
	}
}

// synthScene places landmarks on a 3-D grid in front of the camera and
// projects them through the given pose, returning parallel object/pixel
// slices.
func synthScene(pose pnpPose, k [4]float64, n int) (object [][3]float64, image [][2]float64) {
	r := geometry.RotationFromAxisAngle(pose.rvec)
	i := 0
	for i < n {
		x := -1.0 + 0.37*float64(i%7)
		y := -0.8 + 0.29*float64((i/7)%6)
		z := 4.0 + 0.53*float64(i%5)
		proj, ok := projectWithPose(r, pose.tvec, k, [3]float64{x, y, z})
		i++
		if !ok {
			continue
		}
		object = append(object, [3]float64{x, y, z})
		image = append(image, proj)
	}
	return object, image
}

func TestEstimatePoseLinearRecoversKnownPose(t *testing.T) {
	truth := pnpPose{rvec: [3]float64{0, 0.04, 0}, tvec: [3]float64{0.1, -0.05, 0.3}}
	k := [4]float64{500, 500, 320, 240}
	object, image := synthScene(truth, k, 40)

	sample := []int{0, 5, 11, 17, 23, 31}
	got, ok := estimatePoseLinear(object, image, k, sample)
	if !ok {
		t.Fatal("estimatePoseLinear failed on noise-free correspondences")
	}
	for i := 0; i < 3; i++ {
		testutil.AssertAlmostEqual(t, got.tvec[i], truth.tvec[i], 1e-4, "translation component")
		testutil.AssertAlmostEqual(t, got.rvec[i], truth.rvec[i], 1e-4, "rotation component")
	}
}

func TestSolvePnPRecoversPoseWithOutliers(t *testing.T) {
	truth := pnpPose{rvec: [3]float64{0.02, -0.03, 0.01}, tvec: [3]float64{0.05, 0.02, 0.2}}
	k := [4]float64{500, 500, 320, 240}
	object, image := synthScene(truth, k, 60)

	// Corrupt a fifth of the observations far beyond the reprojection
	// threshold.
	for i := 0; i < len(image); i += 5 {
		image[i][0] += 40
		image[i][1] -= 25
	}

	m := &Map{points: newMapPointArena()}
	frame := newMonoFrame(newTestProjection(t), gocv.NewMat())
	points := make([]*FramePoint, len(object))
	for i := range object {
		points[i] = linkedPosePoint(t, m, frame,
			Point2d{X: image[i][0], Y: image[i][1]},
			Point3d{X: object[i][0], Y: object[i][1], Z: object[i][2]})
	}

	tuning := DefaultTuning()
	result, err := solvePnP(points, tuning, nil)
	if err != nil {
		t.Fatalf("solvePnP: %v", err)
	}
	if !result.OK {
		t.Fatalf("solvePnP failed: %s", result.Reason)
	}
	if result.InlierRatio < 0.7 {
		t.Fatalf("inlier ratio = %v, want >= 0.7 with 20%% outliers", result.InlierRatio)
	}
	gotT := result.Translation
	for i := 0; i < 3; i++ {
		if d := math.Abs(gotT.At(i, 0) - truth.tvec[i]); d > 1e-2 {
			t.Fatalf("translation[%d] = %v, want %v within 1e-2", i, gotT.At(i, 0), truth.tvec[i])
		}
	}
}

func TestSanitizeOutliersClearsNonInliers(t *testing.T) {
	m := &Map{points: newMapPointArena()}
	frame := newMonoFrame(newTestProjection(t), gocv.NewMat())

	inlier := linkedPosePoint(t, m, frame, Point2d{X: 300, Y: 200}, Point3d{X: 0, Y: 0, Z: 5})
	outlier := linkedPosePoint(t, m, frame, Point2d{X: 310, Y: 210}, Point3d{X: 0.1, Y: 0, Z: 5})
	points := []*FramePoint{inlier, outlier}

	result := pnpResult{OK: true, inlierIndex: map[int]bool{0: true}}
	sanitizeOutliers(points, result)

	if inlier.Prev() == nil || inlier.MapPoint() == nil {
		t.Fatal("the inlier's prev link and MapPoint must survive sanitization")
	}
	if outlier.Prev() != nil || outlier.MapPoint() != nil {
		t.Fatal("the outlier's prev link and MapPoint must be cleared")
	}
}

func TestRansacIterations(t *testing.T) {
	if got := ransacIterations(0.99, 1.0, 6); got != 1 {
		t.Fatalf("all-inlier data should need one draw, got %d", got)
	}
	few := ransacIterations(0.99, 0.9, 6)
	many := ransacIterations(0.99, 0.5, 6)
	if few >= many {
		t.Fatalf("cleaner data must need fewer draws: %d vs %d", few, many)
	}
	if got := ransacIterations(0.99, 0, 6); got != math.MaxInt32 {
		t.Fatalf("zero inlier fraction must not terminate early, got %d", got)
	}
}

func TestReprojectionErrorBehindCamera(t *testing.T) {
	pose := pnpPose{}
	k := [4]float64{500, 500, 320, 240}
	if e := reprojectionError(pose, k, [3]float64{0, 0, -1}, [2]float64{320, 240}); !math.IsInf(e, 1) {
		t.Fatalf("a point behind the camera must report infinite error, got %v", e)
	}
}
