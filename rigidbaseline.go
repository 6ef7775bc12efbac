package stereoslam

import "gonum.org/v1/gonum/mat"

// rigidBaseline is the fixed rigid transform from the left camera frame to
// the right camera frame of a stereo rig: x_right = Rel*x_left + Tel.
// The rig is rigid, so the transform is computed once from a Map's
// starting calibration and reapplied on every pose update to derive the
// right camera's pose from a freshly recovered left pose.
type rigidBaseline struct {
	Rel *mat.Dense // 3x3
	Tel *mat.Dense // 3x1
}

// newRigidBaseline derives the left-to-right transform from a
// StereoCameraMatrix's starting rotation/translation pair.
func newRigidBaseline(start StereoCameraMatrix) rigidBaseline {
	rLeft := start.Left.Rotation()
	rRight := start.Right.Rotation()
	tLeft := start.Left.Translation()
	tRight := start.Right.Translation()

	var rLeftInv mat.Dense
	_ = rLeftInv.Inverse(rLeft) // rotation matrices are always invertible

	var rel mat.Dense
	rel.Mul(rRight, &rLeftInv)

	var relTLeft mat.Dense
	relTLeft.Mul(&rel, tLeft)

	tel := mat.NewDense(3, 1, nil)
	tel.Sub(tRight, &relTLeft)

	return rigidBaseline{Rel: mat.DenseCopyOf(&rel), Tel: tel}
}

// apply computes the right camera's (rotation, translation) pair from a
// freshly recovered left pose.
func (b rigidBaseline) apply(leftRotation, leftTranslation *mat.Dense) (*mat.Dense, *mat.Dense) {
	var rRight mat.Dense
	rRight.Mul(b.Rel, leftRotation)

	var relT mat.Dense
	relT.Mul(b.Rel, leftTranslation)
	tRight := mat.NewDense(3, 1, nil)
	tRight.Add(&relT, b.Tel)

	return mat.DenseCopyOf(&rRight), tRight
}

// applyRigidBaseline is a convenience wrapper used by Map.Track: it derives
// the rigid transform from start fresh each call. Map.Track calls this once
// per pair, which is cheap relative to PnP/triangulation; a Map that wants
// to avoid recomputation can cache a rigidBaseline instead.
func applyRigidBaseline(leftRotation, leftTranslation *mat.Dense, start StereoCameraMatrix) rigidPose {
	b := newRigidBaseline(start)
	r, t := b.apply(leftRotation, leftTranslation)
	return rigidPose{rotation: r, translation: t}
}

// rigidPose is a plain (rotation, translation) pair, returned instead of a
// *ProjectionMatrix since the caller already owns the right frame's
// ProjectionMatrix and only needs the new pose to feed into SetPose.
type rigidPose struct {
	rotation    *mat.Dense
	translation *mat.Dense
}

func (p rigidPose) Rotation() *mat.Dense    { return p.rotation }
func (p rigidPose) Translation() *mat.Dense { return p.translation }
