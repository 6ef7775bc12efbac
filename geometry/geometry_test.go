package geometry

import (
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/oakfield-robotics/stereoslam/internal/testutil"
)

func identityProjection(t *testing.T) *ProjectionMatrix {
	t.Helper()
	rotation := mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
	translation := mat.NewDense(3, 1, []float64{0, 0, 0})
	p, err := NewProjectionMatrix(500, 500, 320, 240, rotation, translation)
	if err != nil {
		t.Fatalf("NewProjectionMatrix: %v", err)
	}
	return p
}

func TestProjectionMatrixIntrinsics(t *testing.T) {
	p := identityProjection(t)
	testutil.AssertAlmostEqual(t, p.Fx(), 500, 1e-9, "Fx")
	testutil.AssertAlmostEqual(t, p.Fy(), 500, 1e-9, "Fy")
	testutil.AssertAlmostEqual(t, p.Cx(), 320, 1e-9, "Cx")
	testutil.AssertAlmostEqual(t, p.Cy(), 240, 1e-9, "Cy")
}

func TestProjectionMatrixRejectsBadShapes(t *testing.T) {
	badRotation := mat.NewDense(2, 2, []float64{1, 0, 0, 1})
	translation := mat.NewDense(3, 1, []float64{0, 0, 0})
	if _, err := NewProjectionMatrix(1, 1, 0, 0, badRotation, translation); err == nil {
		t.Fatal("expected an error for a non-3x3 rotation")
	}

	rotation := mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
	badTranslation := mat.NewDense(2, 1, []float64{0, 0})
	if _, err := NewProjectionMatrix(1, 1, 0, 0, rotation, badTranslation); err == nil {
		t.Fatal("expected an error for a non-3x1 translation")
	}
}

func TestProjectPointAtOrigin(t *testing.T) {
	p := identityProjection(t)
	pixel, err := p.Project(Point3d{X: 0, Y: 0, Z: 2})
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	testutil.AssertAlmostEqual(t, pixel.X, 320, 1e-9, "pixel.X")
	testutil.AssertAlmostEqual(t, pixel.Y, 240, 1e-9, "pixel.Y")
}

func TestProjectRejectsPointAtInfinity(t *testing.T) {
	p := identityProjection(t)
	if _, err := p.Project(Point3d{X: 1, Y: 1, Z: 0}); err == nil {
		t.Fatal("expected an error projecting a point with zero depth")
	}
}

func TestCameraZMatchesDepth(t *testing.T) {
	p := identityProjection(t)
	z := p.CameraZ(Point3d{X: 1, Y: -1, Z: 5})
	testutil.AssertAlmostEqual(t, z, 5, 1e-9, "CameraZ")
}

func TestSetPoseRoundTrip(t *testing.T) {
	p := identityProjection(t)
	rotation := mat.NewDense(3, 3, []float64{0, -1, 0, 1, 0, 0, 0, 0, 1})
	translation := mat.NewDense(3, 1, []float64{1, 2, 3})
	p.SetPose(rotation, translation)

	testutil.AssertMatrixAlmostEqual(t, p.Rotation(), rotation, 1e-9, "Rotation after SetPose")
	testutil.AssertMatrixAlmostEqual(t, p.Translation(), translation, 1e-9, "Translation after SetPose")
}

func TestShiftPrincipalPoint(t *testing.T) {
	p := identityProjection(t)
	p.ShiftPrincipalPoint(10, -5)
	testutil.AssertAlmostEqual(t, p.Cx(), 330, 1e-9, "Cx after shift")
	testutil.AssertAlmostEqual(t, p.Cy(), 235, 1e-9, "Cy after shift")
}

func TestCloneIsIndependent(t *testing.T) {
	p := identityProjection(t)
	clone := p.Clone()
	clone.ShiftPrincipalPoint(100, 100)
	if p.Cx() == clone.Cx() {
		t.Fatal("mutating the clone should not affect the original")
	}
}

func TestStereoCameraMatrixBaseline(t *testing.T) {
	left := identityProjection(t)
	rightTranslation := mat.NewDense(3, 1, []float64{0.12, 0, 0})
	rightRotation := mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
	right, err := NewProjectionMatrix(500, 500, 320, 240, rightRotation, rightTranslation)
	if err != nil {
		t.Fatalf("NewProjectionMatrix: %v", err)
	}

	stereo := StereoCameraMatrix{Left: left, Right: right}
	testutil.AssertAlmostEqual(t, stereo.Baseline(), 0.12, 1e-9, "baseline")
	if err := stereo.Valid(); err != nil {
		t.Fatalf("Valid: %v", err)
	}
}

func TestStereoCameraMatrixInvalidZeroBaseline(t *testing.T) {
	left := identityProjection(t)
	right := identityProjection(t)
	stereo := StereoCameraMatrix{Left: left, Right: right}
	if err := stereo.Valid(); err == nil {
		t.Fatal("expected a zero-baseline stereo pair to be invalid")
	}
}

func TestPointArithmetic(t *testing.T) {
	a := Point2d{X: 3, Y: 4}
	b := Point2d{X: 0, Y: 0}
	testutil.AssertAlmostEqual(t, a.Sub(b).Norm(), 5, 1e-9, "2d distance")

	c := Point3d{X: 1, Y: 2, Z: 2}
	testutil.AssertAlmostEqual(t, c.Norm(), 3, 1e-9, "3d norm")
}
