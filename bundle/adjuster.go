// Package bundle implements local windowed bundle adjustment: non-linear
// refinement of a sliding window of recent keyframe poses and the
// landmarks they observe, minimizing Huber-robustified reprojection error.
//
// The package exposes Adjuster, a narrow interface any Levenberg-Marquardt
// or third-party solver (Ceres, g2o) could implement; the tracking core
// only depends on this interface, never on a concrete solver.
package bundle

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Observation is one 2-D pixel observation of a landmark in a frame,
// carried into the optimizer as plain data rather than a live graph
// reference: BA operates on a snapshot, never on the live point graph.
type Observation struct {
	FrameIndex    int
	LandmarkIndex int
	Pixel         [2]float64
}

// Frame is one keyframe's pose in the window: rotation (Rodrigues 3-vector)
// and translation. Left/right observations of the same keyframe share this
// pose through Rig's fixed relative transform.
type Frame struct {
	Rotation    [3]float64
	Translation [3]float64
	Fixed       bool // true for the anchor (oldest keyframe in the window)
}

// Rig describes the stereo intrinsics and the fixed left-to-right
// transform shared by every frame in the window. Only the left pose is a
// decision variable; the right camera's pose is derived from it through
// this transform.
type Rig struct {
	LeftK, RightK  [4]float64 // fx, fy, cx, cy
	RightFromLeftR [9]float64 // 3x3, row-major
	RightFromLeftT [3]float64
}

// Landmark is one 3-D point in the window.
type Landmark struct {
	Position [3]float64
}

// Window is the snapshot an Adjuster refines: the last N keyframes and
// every landmark any of them observes.
type Window struct {
	Rig          Rig
	Frames       []Frame
	Landmarks    []Landmark
	Observations []Observation // each references a Left or Right reprojection
	IsRight      []bool        // parallel to Observations: true if the observation is on the rig's right camera
}

// Report summarizes one adjustment run.
type Report struct {
	Iterations  int
	InitialCost float64
	FinalCost   float64
	Converged   bool
}

// Adjuster refines a Window in place. Implementations must leave
// observations outside the window untouched; they operate on the snapshot
// alone and never reach back into the live graph.
type Adjuster interface {
	Adjust(window *Window, maxIterations int) (Report, error)
}

// HuberDelta is the robustifier's transition point, in pixels, below which
// residuals are treated as Gaussian (squared) and above which they are
// down-weighted linearly.
const HuberDelta = 1.0

// LevenbergMarquardt is the default Adjuster: a dense Levenberg-Marquardt
// solver over pose (6 DoF per non-fixed frame) and point (3 DoF per
// landmark) variables, Huber-robustified reprojection cost, built directly
// on gonum.org/v1/gonum/mat the way the rest of this module does its
// linear algebra.
type LevenbergMarquardt struct {
	// Lambda0 is the initial damping factor.
	Lambda0 float64
	// LambdaUp / LambdaDown scale the damping factor on a rejected/accepted
	// step.
	LambdaUp, LambdaDown float64
	// Tolerance is the minimum relative cost improvement below which the
	// solver declares convergence.
	Tolerance float64
}

// NewLevenbergMarquardt returns an LM adjuster with conservative defaults.
func NewLevenbergMarquardt() *LevenbergMarquardt {
	return &LevenbergMarquardt{
		Lambda0:    1e-3,
		LambdaUp:   10,
		LambdaDown: 0.1,
		Tolerance:  1e-6,
	}
}

// Adjust runs up to maxIterations of Levenberg-Marquardt over window,
// anchoring every Frame with Fixed = true. On non-convergence the last
// feasible iterate is kept.
func (lm *LevenbergMarquardt) Adjust(window *Window, maxIterations int) (Report, error) {
	if len(window.Frames) == 0 || len(window.Landmarks) == 0 {
		return Report{}, fmt.Errorf("bundle: empty window")
	}

	params := packParams(window)
	lambda := lm.Lambda0

	initialCost := computeCost(window, params)
	cost := initialCost
	report := Report{InitialCost: initialCost}

	for iter := 0; iter < maxIterations; iter++ {
		residuals, jacobian := buildResidualsAndJacobian(window, params)
		if residuals.Len() == 0 {
			break
		}

		JT := jacobian.T()
		var JTJ mat.Dense
		JTJ.Mul(JT, jacobian)
		var JTr mat.VecDense
		JTr.MulVec(JT, residuals)

		rows, _ := JTJ.Dims()
		damped := mat.NewDense(rows, rows, nil)
		damped.Copy(&JTJ)
		for i := 0; i < rows; i++ {
			damped.Set(i, i, damped.At(i, i)*(1+lambda))
		}

		var delta mat.VecDense
		if err := delta.SolveVec(damped, &JTr); err != nil {
			lambda *= lm.LambdaUp
			continue
		}

		candidate := make([]float64, len(params))
		for i := range params {
			candidate[i] = params[i] - delta.AtVec(i)
		}

		newCost := computeCost(window, candidate)
		if newCost < cost {
			improvement := (cost - newCost) / math.Max(cost, 1e-12)
			params = candidate
			cost = newCost
			lambda *= lm.LambdaDown
			report.Iterations++
			if improvement < lm.Tolerance {
				report.Converged = true
				break
			}
		} else {
			lambda *= lm.LambdaUp
		}
	}

	unpackParams(window, params)
	report.FinalCost = cost
	return report, nil
}

// paramsPerFrame is 6 (3 rotation + 3 translation); paramsPerLandmark is 3.
const paramsPerFrame = 6
const paramsPerLandmark = 3

func packParams(w *Window) []float64 {
	var out []float64
	for _, f := range w.Frames {
		if f.Fixed {
			continue
		}
		out = append(out, f.Rotation[0], f.Rotation[1], f.Rotation[2])
		out = append(out, f.Translation[0], f.Translation[1], f.Translation[2])
	}
	for _, l := range w.Landmarks {
		out = append(out, l.Position[0], l.Position[1], l.Position[2])
	}
	return out
}

func unpackParams(w *Window, params []float64) {
	idx := 0
	for i := range w.Frames {
		if w.Frames[i].Fixed {
			continue
		}
		w.Frames[i].Rotation = [3]float64{params[idx], params[idx+1], params[idx+2]}
		w.Frames[i].Translation = [3]float64{params[idx+3], params[idx+4], params[idx+5]}
		idx += paramsPerFrame
	}
	for i := range w.Landmarks {
		w.Landmarks[i].Position = [3]float64{params[idx], params[idx+1], params[idx+2]}
		idx += paramsPerLandmark
	}
}

// freeFrameIndex maps a frame index in w.Frames to its offset in the
// packed parameter vector, or -1 if that frame is fixed (the anchor).
func freeFrameIndex(w *Window, frameIdx int) int {
	offset := 0
	for i, f := range w.Frames {
		if i == frameIdx {
			if f.Fixed {
				return -1
			}
			return offset
		}
		if !f.Fixed {
			offset += paramsPerFrame
		}
	}
	return -1
}

func numFreeFrameParams(w *Window) int {
	n := 0
	for _, f := range w.Frames {
		if !f.Fixed {
			n += paramsPerFrame
		}
	}
	return n
}

// computeCost evaluates the total Huber-robustified reprojection cost of
// window at the given packed parameters, without mutating window.
func computeCost(w *Window, params []float64) float64 {
	residuals, _ := buildResidualsAndJacobian(w, params)
	total := 0.0
	for i := 0; i < residuals.Len(); i++ {
		r := residuals.AtVec(i)
		total += huberCost(r)
	}
	return total
}

func huberCost(r float64) float64 {
	a := math.Abs(r)
	if a <= HuberDelta {
		return 0.5 * r * r
	}
	return HuberDelta * (a - 0.5*HuberDelta)
}

// huberWeight returns the IRLS weight applied to a residual's Jacobian row
// so that the Gauss-Newton normal equations approximate the Huber cost.
func huberWeight(r float64) float64 {
	a := math.Abs(r)
	if a <= HuberDelta {
		return 1.0
	}
	return math.Sqrt(HuberDelta / a)
}

// buildResidualsAndJacobian evaluates every observation's reprojection
// residual (x and y components, Huber-weighted) at params and assembles
// the sparse-in-structure-but-densely-stored Jacobian the normal equations
// need. Landmark/frame blocks a given observation does not touch are left
// zero.
func buildResidualsAndJacobian(w *Window, params []float64) (*mat.VecDense, *mat.Dense) {
	numParams := len(params)
	numObs := len(w.Observations)
	if numObs == 0 || numParams == 0 {
		return mat.NewVecDense(0, nil), mat.NewDense(0, 0, nil)
	}

	residuals := mat.NewVecDense(numObs*2, nil)
	jacobian := mat.NewDense(numObs*2, numParams, nil)

	frameOffsets := make([]int, len(w.Frames))
	for i := range w.Frames {
		frameOffsets[i] = freeFrameIndex(w, i)
	}
	landmarkBase := numFreeFrameParams(w)

	for obsIdx, obs := range w.Observations {
		frame := frameAtParams(w, obs.FrameIndex, params, frameOffsets)
		landmarkOffset := landmarkBase + obs.LandmarkIndex*paramsPerLandmark
		point := [3]float64{params[landmarkOffset], params[landmarkOffset+1], params[landmarkOffset+2]}

		k := w.Rig.LeftK
		rot, trans := frame.Rotation, frame.Translation
		if w.IsRight[obsIdx] {
			k = w.Rig.RightK
			rot, trans = applyRigOffset(w.Rig, frame.Rotation, frame.Translation)
		}

		proj, camPoint, ok := project(rot, trans, k, point)
		resX := obs.Pixel[0] - proj[0]
		resY := obs.Pixel[1] - proj[1]
		if !ok {
			resX, resY = 0, 0
		}

		weight := huberWeight(math.Hypot(resX, resY))
		residuals.SetVec(obsIdx*2, resX*weight)
		residuals.SetVec(obsIdx*2+1, resY*weight)

		fillNumericJacobian(jacobian, obsIdx, obs, w, params, frameOffsets, landmarkBase, weight, camPoint)
	}

	return residuals, jacobian
}

func frameAtParams(w *Window, frameIdx int, params []float64, offsets []int) Frame {
	f := w.Frames[frameIdx]
	if off := offsets[frameIdx]; off >= 0 {
		f.Rotation = [3]float64{params[off], params[off+1], params[off+2]}
		f.Translation = [3]float64{params[off+3], params[off+4], params[off+5]}
	}
	return f
}

// applyRigOffset composes the left pose with the rig's fixed
// right-from-left transform to get the right camera's pose.
func applyRigOffset(rig Rig, rot, trans [3]float64) ([3]float64, [3]float64) {
	R := rodrigues(rot)
	var relR [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			relR[i][j] = rig.RightFromLeftR[i*3+j]
		}
	}
	var composed [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			sum := 0.0
			for k := 0; k < 3; k++ {
				sum += relR[i][k] * R[k][j]
			}
			composed[i][j] = sum
		}
	}
	newTrans := [3]float64{}
	for i := 0; i < 3; i++ {
		sum := rig.RightFromLeftT[i]
		for k := 0; k < 3; k++ {
			sum += relR[i][k] * trans[k]
		}
		newTrans[i] = sum
	}
	return rotationToRodrigues(composed), newTrans
}

// project maps a 3-D point through a Rodrigues-rotation + translation pose
// and pinhole intrinsics k = (fx, fy, cx, cy). ok is false if the point is
// behind the camera.
func project(rot, trans [3]float64, k [4]float64, point [3]float64) ([2]float64, [3]float64, bool) {
	R := rodrigues(rot)
	cam := [3]float64{}
	for i := 0; i < 3; i++ {
		cam[i] = R[i][0]*point[0] + R[i][1]*point[1] + R[i][2]*point[2] + trans[i]
	}
	if cam[2] <= 1e-9 {
		return [2]float64{}, cam, false
	}
	fx, fy, cx, cy := k[0], k[1], k[2], k[3]
	return [2]float64{
		fx*cam[0]/cam[2] + cx,
		fy*cam[1]/cam[2] + cy,
	}, cam, true
}

// rodrigues converts a Rodrigues rotation vector to a 3x3 rotation matrix.
// bundle carries its own array-based conversion so the solver's inner loop
// allocates no matrices.
func rodrigues(v [3]float64) [3][3]float64 {
	theta := math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
	if theta < 1e-12 {
		return [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	}
	kx, ky, kz := v[0]/theta, v[1]/theta, v[2]/theta
	c, s := math.Cos(theta), math.Sin(theta)
	K := [3][3]float64{
		{0, -kz, ky},
		{kz, 0, -kx},
		{-ky, kx, 0},
	}
	var R [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			identity := 0.0
			if i == j {
				identity = 1
			}
			kk := K[i][0]*K[0][j] + K[i][1]*K[1][j] + K[i][2]*K[2][j]
			R[i][j] = identity + s*K[i][j] + (1-c)*kk
		}
	}
	return R
}

// rotationToRodrigues is an approximate inverse of rodrigues, sufficient
// for the small incremental rotations BA composes each iteration.
func rotationToRodrigues(R [3][3]float64) [3]float64 {
	trace := R[0][0] + R[1][1] + R[2][2]
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
		(R[2][1] - R[1][2]) * scale,
		(R[0][2] - R[2][0]) * scale,
		(R[1][0] - R[0][1]) * scale,
	}
}

// fillNumericJacobian fills the two rows of jacobian belonging to
// observation obsIdx using central-difference numeric differentiation over
// the observation's own frame and landmark parameter blocks, at the cost
// of two project() calls per parameter touched.
func fillNumericJacobian(jacobian *mat.Dense, obsIdx int, obs Observation, w *Window, params []float64, frameOffsets []int, landmarkBase int, weight float64, _ [3]float64) {
	const eps = 1e-6

	touch := func(paramIdx int) {
		orig := params[paramIdx]
		params[paramIdx] = orig + eps
		plus := evalResidual(w, obs, obsIdx, params, frameOffsets, landmarkBase)
		params[paramIdx] = orig - eps
		minus := evalResidual(w, obs, obsIdx, params, frameOffsets, landmarkBase)
		params[paramIdx] = orig

		jacobian.Set(obsIdx*2, paramIdx, weight*(plus[0]-minus[0])/(2*eps))
		jacobian.Set(obsIdx*2+1, paramIdx, weight*(plus[1]-minus[1])/(2*eps))
	}

	if off := frameOffsets[obs.FrameIndex]; off >= 0 {
		for i := 0; i < paramsPerFrame; i++ {
			touch(off + i)
		}
	}
	landmarkOffset := landmarkBase + obs.LandmarkIndex*paramsPerLandmark
	for i := 0; i < paramsPerLandmark; i++ {
		touch(landmarkOffset + i)
	}
}

func evalResidual(w *Window, obs Observation, obsIdx int, params []float64, frameOffsets []int, landmarkBase int) [2]float64 {
	frame := frameAtParams(w, obs.FrameIndex, params, frameOffsets)
	landmarkOffset := landmarkBase + obs.LandmarkIndex*paramsPerLandmark
	point := [3]float64{params[landmarkOffset], params[landmarkOffset+1], params[landmarkOffset+2]}

	k := w.Rig.LeftK
	rot, trans := frame.Rotation, frame.Translation
	if w.IsRight[obsIdx] {
		k = w.Rig.RightK
		rot, trans = applyRigOffset(w.Rig, frame.Rotation, frame.Translation)
	}
	proj, _, ok := project(rot, trans, k, point)
	if !ok {
		return [2]float64{}
	}
	return [2]float64{obs.Pixel[0] - proj[0], obs.Pixel[1] - proj[1]}
}
