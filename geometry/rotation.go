package geometry

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// RotationFromAxisAngle converts an axis-angle (Rodrigues) vector into a
// 3x3 rotation matrix. The vector's direction is the rotation axis and its
// magnitude the rotation angle in radians; the zero vector maps to the
// identity.
func RotationFromAxisAngle(v [3]float64) *mat.Dense {
	theta := math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
	if theta < 1e-12 {
		return mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
	}
	kx, ky, kz := v[0]/theta, v[1]/theta, v[2]/theta
	c, s := math.Cos(theta), math.Sin(theta)
	oc := 1 - c
	return mat.NewDense(3, 3, []float64{
		c + kx*kx*oc, kx*ky*oc - kz*s, kx*kz*oc + ky*s,
		ky*kx*oc + kz*s, c + ky*ky*oc, ky*kz*oc - kx*s,
		kz*kx*oc - ky*s, kz*ky*oc + kx*s, c + kz*kz*oc,
	})
}

// AxisAngleFromRotation converts a 3x3 rotation matrix into its axis-angle
// vector, the inverse of RotationFromAxisAngle. Rotations within ~1e-9 of
// the identity (or of a half-turn's sin singularity) collapse to the zero
// vector, which is adequate for the incremental rotations pose recovery
// and bundle adjustment trade through this representation.
func AxisAngleFromRotation(r *mat.Dense) [3]float64 {
	trace := r.At(0, 0) + r.At(1, 1) + r.At(2, 2)
	theta := math.Acos(math.Max(-1, math.Min(1, (trace-1)/2)))
	if theta < 1e-9 {
		return [3]float64{}
	}
	sinTheta := math.Sin(theta)
	if sinTheta < 1e-9 {
		return [3]float64{}
	}
	scale := theta / (2 * sinTheta)
	return [3]float64{
		(r.At(2, 1) - r.At(1, 2)) * scale,
		(r.At(0, 2) - r.At(2, 0)) * scale,
		(r.At(1, 0) - r.At(0, 1)) * scale,
	}
}
