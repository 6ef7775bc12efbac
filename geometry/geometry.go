// Package geometry holds the camera-projection and point primitives shared
// by the root stereoslam package and the tracking subpackage. It exists
// purely to break the import cycle that would otherwise result from
// tracking.Tracker needing these types while stereoslam needs
// tracking.Tracker.
package geometry

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// =============================================================================
// ProjectionMatrix
// =============================================================================

// ProjectionMatrix is a 3x4 camera projection matrix P = K [R | t] mapping a
// homogeneous world point to a homogeneous image point. The intrinsics are
// carried alongside the composed matrix: once a pose with a non-identity
// rotation is folded in, the left 3x3 block is K*R and fx/fy/cx/cy can no
// longer be read off the matrix itself.
type ProjectionMatrix struct {
	m              *mat.Dense // 3x4
	fx, fy, cx, cy float64
}

// NewProjectionMatrix builds a ProjectionMatrix from intrinsics (fx, fy, cx,
// cy), a 3x3 rotation and a 3x1 translation (both given in the world frame:
// x_cam = R*x_world + t).
func NewProjectionMatrix(fx, fy, cx, cy float64, rotation, translation *mat.Dense) (*ProjectionMatrix, error) {
	if rr, rc := rotation.Dims(); rr != 3 || rc != 3 {
		return nil, fmt.Errorf("geometry: rotation must be 3x3, got %dx%d", rr, rc)
	}
	if tr, tc := translation.Dims(); tr != 3 || tc != 1 {
		return nil, fmt.Errorf("geometry: translation must be 3x1, got %dx%d", tr, tc)
	}

	k := mat.NewDense(3, 3, []float64{
		fx, 0, cx,
		0, fy, cy,
		0, 0, 1,
	})

	rt := mat.NewDense(3, 4, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			rt.Set(i, j, rotation.At(i, j))
		}
		rt.Set(i, 3, translation.At(i, 0))
	}

	p := mat.NewDense(3, 4, nil)
	p.Mul(k, rt)

	return &ProjectionMatrix{m: p, fx: fx, fy: fy, cx: cx, cy: cy}, nil
}

// NewProjectionMatrixFromRaw wraps an already-composed 3x4 matrix whose
// rotation block is the identity, e.g. the rectification outputs P1/P2.
// With R = I the left 3x3 block is K itself, so the intrinsics are read
// directly off the matrix.
func NewProjectionMatrixFromRaw(p *mat.Dense) *ProjectionMatrix {
	return &ProjectionMatrix{
		m:  mat.DenseCopyOf(p),
		fx: p.At(0, 0),
		fy: p.At(1, 1),
		cx: p.At(0, 2),
		cy: p.At(1, 2),
	}
}

// Matrix returns the raw 3x4 matrix. Callers must not mutate it directly;
// use ShiftPrincipalPoint for the one supported in-place edit.
func (p *ProjectionMatrix) Matrix() *mat.Dense {
	return p.m
}

func (p *ProjectionMatrix) intrinsics() (fx, fy, cx, cy float64) {
	return p.fx, p.fy, p.cx, p.cy
}

// Fx returns the horizontal focal length in pixels.
func (p *ProjectionMatrix) Fx() float64 { fx, _, _, _ := p.intrinsics(); return fx }

// Fy returns the vertical focal length in pixels.
func (p *ProjectionMatrix) Fy() float64 { _, fy, _, _ := p.intrinsics(); return fy }

// Cx returns the horizontal principal point in pixels.
func (p *ProjectionMatrix) Cx() float64 { _, _, cx, _ := p.intrinsics(); return cx }

// Cy returns the vertical principal point in pixels.
func (p *ProjectionMatrix) Cy() float64 { _, _, _, cy := p.intrinsics(); return cy }

// ShiftPrincipalPoint moves (cx, cy) by (dx, dy) pixels in place, rebuilding
// the composed matrix under the current pose. Used by
// calibration-sensitivity tests and by rectification adjustments made
// upstream of this package.
func (p *ProjectionMatrix) ShiftPrincipalPoint(dx, dy float64) {
	rotation := p.Rotation()
	translation := p.Translation()
	p.cx += dx
	p.cy += dy
	p.SetPose(rotation, translation)
}

// Rotation returns the 3x3 rotation block R of P = K[R|t].
func (p *ProjectionMatrix) Rotation() *mat.Dense {
	k := mat.NewDense(3, 3, []float64{
		p.Fx(), 0, p.Cx(),
		0, p.Fy(), p.Cy(),
		0, 0, 1,
	})
	var kInv mat.Dense
	if err := kInv.Inverse(k); err != nil {
		return mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
	}
	rt := mat.NewDense(3, 3, nil)
	rt.Mul(&kInv, p.m.Slice(0, 3, 0, 3))
	return mat.DenseCopyOf(rt)
}

// Translation returns the 3x1 translation block t of P = K[R|t].
func (p *ProjectionMatrix) Translation() *mat.Dense {
	k := mat.NewDense(3, 3, []float64{
		p.Fx(), 0, p.Cx(),
		0, p.Fy(), p.Cy(),
		0, 0, 1,
	})
	var kInv mat.Dense
	if err := kInv.Inverse(k); err != nil {
		return mat.NewDense(3, 1, nil)
	}
	lastCol := mat.NewDense(3, 1, []float64{p.m.At(0, 3), p.m.At(1, 3), p.m.At(2, 3)})
	t := mat.NewDense(3, 1, nil)
	t.Mul(&kInv, lastCol)
	return t
}

// SetPose rebuilds P = K[R|t] for the given rotation/translation, keeping
// the current intrinsics. Used by the pose recovery step to publish a new
// camera pose without constructing a fresh ProjectionMatrix.
func (p *ProjectionMatrix) SetPose(rotation, translation *mat.Dense) {
	fx, fy, cx, cy := p.intrinsics()
	k := mat.NewDense(3, 3, []float64{
		fx, 0, cx,
		0, fy, cy,
		0, 0, 1,
	})
	rt := mat.NewDense(3, 4, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			rt.Set(i, j, rotation.At(i, j))
		}
		rt.Set(i, 3, translation.At(i, 0))
	}
	p.m.Mul(k, rt)
}

// Clone returns an independent copy of the projection matrix.
func (p *ProjectionMatrix) Clone() *ProjectionMatrix {
	return &ProjectionMatrix{m: mat.DenseCopyOf(p.m), fx: p.fx, fy: p.fy, cx: p.cx, cy: p.cy}
}

// Project projects a 3-D world point into this camera's pixel plane.
func (p *ProjectionMatrix) Project(point Point3d) (Point2d, error) {
	homog := mat.NewDense(4, 1, []float64{point.X, point.Y, point.Z, 1})
	img := mat.NewDense(3, 1, nil)
	img.Mul(p.m, homog)
	w := img.At(2, 0)
	if math.Abs(w) < 1e-12 {
		return Point2d{}, fmt.Errorf("geometry: point projects to infinity (w=%g)", w)
	}
	return Point2d{X: img.At(0, 0) / w, Y: img.At(1, 0) / w}, nil
}

// CameraZ returns the depth of a world point in this camera's own frame
// (z = R*point + t, third row), used for the cheirality check ("point is in
// front of the camera") that gates triangulation acceptance.
func (p *ProjectionMatrix) CameraZ(point Point3d) float64 {
	r := p.Rotation()
	t := p.Translation()
	return r.At(2, 0)*point.X + r.At(2, 1)*point.Y + r.At(2, 2)*point.Z + t.At(2, 0)
}

// =============================================================================
// StereoCameraMatrix
// =============================================================================

// StereoCameraMatrix is a rigidly-coupled pair of projection matrices
// sharing a common world frame.
type StereoCameraMatrix struct {
	Left  *ProjectionMatrix
	Right *ProjectionMatrix
}

// Baseline returns ‖t_left − t_right‖, the distance between the optical
// centers of the two cameras.
func (s StereoCameraMatrix) Baseline() float64 {
	tl := s.Left.Translation()
	tr := s.Right.Translation()
	dx := tl.At(0, 0) - tr.At(0, 0)
	dy := tl.At(1, 0) - tr.At(1, 0)
	dz := tl.At(2, 0) - tr.At(2, 0)
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Clone returns an independent deep copy of the stereo pair.
func (s StereoCameraMatrix) Clone() StereoCameraMatrix {
	return StereoCameraMatrix{Left: s.Left.Clone(), Right: s.Right.Clone()}
}

// Valid reports whether both projection matrices have finite entries and
// the pair has a positive baseline. Checked by Calibration.StartProjection,
// which World construction calls; loading a calibration does not check it.
func (s StereoCameraMatrix) Valid() error {
	for _, p := range []*ProjectionMatrix{s.Left, s.Right} {
		r, c := p.m.Dims()
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				v := p.m.At(i, j)
				if math.IsNaN(v) || math.IsInf(v, 0) {
					return fmt.Errorf("geometry: projection matrix has non-finite entry at (%d,%d)", i, j)
				}
			}
		}
	}
	if s.Baseline() <= 0 {
		return fmt.Errorf("geometry: stereo baseline must be positive, got %g", s.Baseline())
	}
	return nil
}

// =============================================================================
// Points
// =============================================================================

// Point2d is a 2-D pixel coordinate.
type Point2d struct {
	X, Y float64
}

// Sub returns the vector p - q.
func (p Point2d) Sub(q Point2d) Point2d {
	return Point2d{X: p.X - q.X, Y: p.Y - q.Y}
}

// Norm returns the Euclidean length of p treated as a vector.
func (p Point2d) Norm() float64 {
	return math.Hypot(p.X, p.Y)
}

// Point3d is a 3-D world or camera-frame coordinate.
type Point3d struct {
	X, Y, Z float64
}

// Sub returns the vector p - q.
func (p Point3d) Sub(q Point3d) Point3d {
	return Point3d{X: p.X - q.X, Y: p.Y - q.Y, Z: p.Z - q.Z}
}

// Norm returns the Euclidean length of p treated as a vector.
func (p Point3d) Norm() float64 {
	return math.Sqrt(p.X*p.X + p.Y*p.Y + p.Z*p.Z)
}

// RGBA is a color sample, stored as plain 0-255 channels so ColorPoint3d
// stays independent of any particular imaging backend's byte order.
type RGBA struct {
	R, G, B, A uint8
}

// ColorPoint3d is a colored 3-D point, the unit World.SparseCloud() returns.
type ColorPoint3d struct {
	Point Point3d
	Color RGBA
}
