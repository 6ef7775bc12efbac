package stereoslam

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// triangulateResult is the outcome of attempting to triangulate one
// correspondence; ok is false whenever any acceptance test fails, in which
// case the point is silently discarded with no map-level effect.
type triangulateResult struct {
	position Point3d
	ok       bool
}

// triangulatePoint performs linear DLT triangulation of one 2-D
// correspondence (pixelA in cameraA, pixelB in cameraB) and applies the
// dehomogenization, cheirality, and reprojection-error acceptance tests.
//
// DLT: for each camera with projection P and pixel (u, v), the equations
// u*(P_row3 . X) - (P_row1 . X) = 0
// v*(P_row3 . X) - (P_row2 . X) = 0
// are stacked across both cameras into a 4x4 system A X = 0, solved by the
// singular vector of A associated with its smallest singular value.
func triangulatePoint(cameraA, cameraB *ProjectionMatrix, pixelA, pixelB Point2d, maxReprojErr float64) triangulateResult {
	a := buildDLTRows(cameraA, pixelA)
	b := buildDLTRows(cameraB, pixelB)

	A := mat.NewDense(4, 4, nil)
	for i := 0; i < 2; i++ {
		for j := 0; j < 4; j++ {
			A.Set(i, j, a[i][j])
			A.Set(i+2, j, b[i][j])
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(A, mat.SVDFull); !ok {
		return triangulateResult{}
	}
	var v mat.Dense
	svd.VTo(&v)
	// The solution is the last column of V (smallest singular value).
	rows, cols := v.Dims()
	last := cols - 1
	homog := make([]float64, rows)
	for i := 0; i < rows; i++ {
		homog[i] = v.At(i, last)
	}

	w := homog[3]
	if math.Abs(w) < 1e-9 {
		return triangulateResult{}
	}
	point := Point3d{X: homog[0] / w, Y: homog[1] / w, Z: homog[2] / w}

	if cameraA.CameraZ(point) <= 0 || cameraB.CameraZ(point) <= 0 {
		return triangulateResult{}
	}

	projA, err := cameraA.Project(point)
	if err != nil || projA.Sub(pixelA).Norm() > maxReprojErr {
		return triangulateResult{}
	}
	projB, err := cameraB.Project(point)
	if err != nil || projB.Sub(pixelB).Norm() > maxReprojErr {
		return triangulateResult{}
	}

	return triangulateResult{position: point, ok: true}
}

// buildDLTRows returns the two homogeneous-system rows a single camera
// contributes to the 4x4 DLT system for one observation.
func buildDLTRows(camera *ProjectionMatrix, pixel Point2d) [2][4]float64 {
	p := camera.Matrix()
	row := func(i int) [4]float64 {
		return [4]float64{p.At(i, 0), p.At(i, 1), p.At(i, 2), p.At(i, 3)}
	}
	p1, p2, p3 := row(0), row(1), row(2)

	var out [2][4]float64
	for j := 0; j < 4; j++ {
		out[0][j] = pixel.X*p3[j] - p1[j]
		out[1][j] = pixel.Y*p3[j] - p2[j]
	}
	return out
}

// triangulateStereoPair triangulates every point in pts (left FramePoints
// carrying a resolvable stereo partner) against the frame's own left/right
// projection matrices. For each accepted point it either creates a new
// MapPoint (when neither observation already carries one) or updates the
// existing landmark in place, then propagates the reference.
func (m *Map) triangulateStereoPair(frame *StereoFrame, pts []*FramePoint, tuning Tuning) int {
	accepted := 0
	leftProj := frame.left.projection
	rightProj := frame.right.projection

	for _, left := range pts {
		right := left.Stereo()
		if right == nil {
			continue
		}
		if left.Pixel().Sub(right.Pixel()).Norm() < tuning.MinStereoDisparity {
			continue
		}

		result := triangulatePoint(leftProj, rightProj, left.Pixel(), right.Pixel(), tuning.MaxReprojectionError)
		if !result.ok {
			continue
		}

		existing := left.MapPoint()
		if existing == nil {
			existing = right.MapPoint()
		}
		if existing != nil {
			existing.update(result.position, left.Color())
			if left.MapPoint() == nil {
				left.setMapPoint(m, existing.self)
			}
		} else {
			handle, _ := m.points.alloc(result.position, left.Color())
			left.setMapPoint(m, handle)
		}
		left.propagateMapPoint()
		accepted++
	}
	return accepted
}

// triangulateAcrossFrames triangulates each current left observation
// against the projection matrix of the oldest ancestor frame it is linked
// to via prev-chains, subject to the camera-baseline and pixel-displacement
// parallax guards and the cheirality test in triangulatePoint.
func (m *Map) triangulateAcrossFrames(frame *StereoFrame, pts []*FramePoint, tuning Tuning) int {
	accepted := 0
	currentProj := frame.left.projection

	for _, curr := range pts {
		ancestor := curr
		for ancestor.Prev() != nil {
			ancestor = ancestor.Prev()
		}
		if ancestor == curr {
			continue
		}
		ancestorFrame := ancestor.Frame()
		if ancestorFrame == nil {
			continue
		}
		ancestorProj := ancestorFrame.projection

		baselineDist := cameraDistance(ancestorProj, currentProj)
		minBaseline := tuning.MinAdjacentCameraMultiplier * m.startBaseline
		if baselineDist < minBaseline {
			continue
		}
		if curr.Pixel().Sub(ancestor.Pixel()).Norm() < tuning.MinPointsDistance {
			continue
		}

		result := triangulatePoint(ancestorProj, currentProj, ancestor.Pixel(), curr.Pixel(), tuning.MaxReprojectionError)
		if !result.ok {
			continue
		}

		existing := curr.MapPoint()
		if existing == nil {
			existing = ancestor.MapPoint()
		}
		if existing != nil {
			existing.update(result.position, curr.Color())
			if curr.MapPoint() == nil {
				curr.setMapPoint(m, existing.self)
			}
		} else {
			handle, _ := m.points.alloc(result.position, curr.Color())
			curr.setMapPoint(m, handle)
		}
		curr.propagateMapPoint()
		accepted++
	}
	return accepted
}

// cameraDistance returns the Euclidean distance between two cameras'
// optical centers (their translation vectors).
func cameraDistance(a, b *ProjectionMatrix) float64 {
	ta, tb := a.Translation(), b.Translation()
	dx := ta.At(0, 0) - tb.At(0, 0)
	dy := ta.At(1, 0) - tb.At(1, 0)
	dz := ta.At(2, 0) - tb.At(2, 0)
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}
