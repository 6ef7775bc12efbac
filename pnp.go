package stereoslam

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/oakfield-robotics/stereoslam/geometry"
)

// pnpResult is the outcome of one pose-recovery attempt. Failure is
// reported through OK/Reason rather than a non-nil error for the
// expected-failure paths (too few points, inlier ratio too low); error is
// reserved for unexpected solver faults.
type pnpResult struct {
	OK          bool
	Reason      string
	InlierRatio float64
	Rotation    *mat.Dense // 3x3
	Translation *mat.Dense // 3x1
	inlierIndex map[int]bool
}

// poseGuess is an extrinsic starting point for solvePnP, supplied by
// internal/motionmodel's constant-velocity predictor. It is advisory only:
// RANSAC-PnP still recovers and validates the authoritative pose.
type poseGuess struct {
	Rotation    *mat.Dense // 3x3
	Translation *mat.Dense // 3x1
}

// posePoints collects the current left frame's pose points: left
// observations carrying both a previous temporal link and an associated
// MapPoint.
func posePoints(frame *StereoFrame) []*FramePoint {
	var out []*FramePoint
	for _, fp := range frame.left.Points() {
		if fp.Prev() != nil && fp.MapPoint() != nil {
			out = append(out, fp)
		}
	}
	return out
}

// pnpMinimalSample is the number of correspondences per RANSAC hypothesis.
// The linear pose estimate needs six 3D-2D pairs to constrain all eleven
// degrees of freedom of the projective camera it solves for.
const pnpMinimalSample = 6

// pnpPose is a camera pose candidate in axis-angle + translation form,
// the parameterization the refinement step optimizes over.
type pnpPose struct {
	rvec [3]float64
	tvec [3]float64
}

// solvePnP recovers the current left-camera pose from pose points via
// RANSAC over linear pose hypotheses, followed by iterative refinement on
// the consensus set. tuning.MinTrackPoints gates the attempt;
// tuning.MaxReprojectionError, PnPMaxIterations and PnPConfidence
// parameterize the RANSAC loop. guess, if non-nil, is evaluated as an
// extra hypothesis (internal/motionmodel's constant-velocity prediction);
// the correspondences still decide the authoritative pose.
func solvePnP(points []*FramePoint, tuning Tuning, guess *poseGuess) (pnpResult, error) {
	if len(points) < tuning.MinTrackPoints {
		return pnpResult{OK: false, Reason: fmt.Sprintf("pnp: only %d pose points, need >= %d", len(points), tuning.MinTrackPoints)}, nil
	}

	object := make([][3]float64, len(points))
	image := make([][2]float64, len(points))
	for i, fp := range points {
		pos := fp.MapPoint().Position
		pixel := fp.Pixel()
		object[i] = [3]float64{pos.X, pos.Y, pos.Z}
		image[i] = [2]float64{pixel.X, pixel.Y}
	}

	cam := points[0].Frame().Projection()
	k := [4]float64{cam.Fx(), cam.Fy(), cam.Cx(), cam.Cy()}

	// A fixed seed keeps pose recovery reproducible for a given input set;
	// RANSAC needs randomness across iterations, not across runs.
	rng := rand.New(rand.NewSource(int64(len(points))))

	best := pnpPose{}
	bestCount := -1
	consider := func(pose pnpPose) {
		count := 0
		for i := range object {
			if reprojectionError(pose, k, object[i], image[i]) <= tuning.MaxReprojectionError {
				count++
			}
		}
		if count > bestCount {
			bestCount = count
			best = pose
		}
	}

	if guess != nil {
		consider(pnpPose{
			rvec: geometry.AxisAngleFromRotation(guess.Rotation),
			tvec: [3]float64{guess.Translation.At(0, 0), guess.Translation.At(1, 0), guess.Translation.At(2, 0)},
		})
	}

	maxIters := tuning.PnPMaxIterations
	for iter := 0; iter < maxIters; iter++ {
		sample := rng.Perm(len(points))[:pnpMinimalSample]
		pose, ok := estimatePoseLinear(object, image, k, sample)
		if !ok {
			continue
		}
		consider(pose)

		if bestCount > 0 {
			w := float64(bestCount) / float64(len(points))
			if needed := ransacIterations(tuning.PnPConfidence, w, pnpMinimalSample); needed < maxIters {
				maxIters = needed
			}
		}
	}

	if bestCount < pnpMinimalSample {
		return pnpResult{OK: false, Reason: fmt.Sprintf("pnp: no consensus (best hypothesis explains %d of %d points)", bestCount, len(points))}, nil
	}

	inliers := inlierSet(best, k, object, image, tuning.MaxReprojectionError)
	refined := refinePose(best, k, object, image, inliers)
	refinedInliers := inlierSet(refined, k, object, image, tuning.MaxReprojectionError)
	if len(refinedInliers) >= len(inliers) {
		best = refined
		inliers = refinedInliers
	}

	inlierIdx := make(map[int]bool, len(inliers))
	for _, i := range inliers {
		inlierIdx[i] = true
	}
	ratio := float64(len(inliers)) / float64(len(points))
	if ratio < tuning.MinTrackInliersRatio {
		return pnpResult{OK: false, Reason: fmt.Sprintf("pnp: inlier ratio %.3f below minimum %.3f", ratio, tuning.MinTrackInliersRatio), InlierRatio: ratio}, nil
	}

	return pnpResult{
		OK:          true,
		InlierRatio: ratio,
		Rotation:    geometry.RotationFromAxisAngle(best.rvec),
		Translation: mat.NewDense(3, 1, []float64{best.tvec[0], best.tvec[1], best.tvec[2]}),
		inlierIndex: inlierIdx,
	}, nil
}

// sanitizeOutliers severs prev/next links and clears the MapPoint reference
// of every pose point the solver did not mark as an inlier; they remain as
// pure 2-D observations.
func sanitizeOutliers(points []*FramePoint, result pnpResult) {
	for i, fp := range points {
		if result.inlierIndex[i] {
			continue
		}
		fp.clearTemporalLinks()
		fp.clearMapPoint()
	}
}

// reprojectionError returns the pixel distance between an observation and
// the projection of its 3-D point under pose, or +Inf for points at or
// behind the camera plane.
func reprojectionError(pose pnpPose, k [4]float64, object [3]float64, image [2]float64) float64 {
	r := geometry.RotationFromAxisAngle(pose.rvec)
	camX := r.At(0, 0)*object[0] + r.At(0, 1)*object[1] + r.At(0, 2)*object[2] + pose.tvec[0]
	camY := r.At(1, 0)*object[0] + r.At(1, 1)*object[1] + r.At(1, 2)*object[2] + pose.tvec[1]
	camZ := r.At(2, 0)*object[0] + r.At(2, 1)*object[1] + r.At(2, 2)*object[2] + pose.tvec[2]
	if camZ <= 1e-9 {
		return math.Inf(1)
	}
	u := k[0]*camX/camZ + k[2]
	v := k[1]*camY/camZ + k[3]
	return math.Hypot(u-image[0], v-image[1])
}

func inlierSet(pose pnpPose, k [4]float64, object [][3]float64, image [][2]float64, threshold float64) []int {
	var out []int
	for i := range object {
		if reprojectionError(pose, k, object[i], image[i]) <= threshold {
			out = append(out, i)
		}
	}
	return out
}

// estimatePoseLinear recovers a pose hypothesis from the sampled
// correspondences by solving the homogeneous DLT system for the full 3x4
// projective camera, stripping the known intrinsics, and projecting the
// remaining 3x3 block onto the rotation group.
func estimatePoseLinear(object [][3]float64, image [][2]float64, k [4]float64, sample []int) (pnpPose, bool) {
	a := mat.NewDense(2*len(sample), 12, nil)
	for row, idx := range sample {
		x, y, z := object[idx][0], object[idx][1], object[idx][2]
		u, v := image[idx][0], image[idx][1]
		a.SetRow(2*row, []float64{
			x, y, z, 1, 0, 0, 0, 0, -u * x, -u * y, -u * z, -u,
		})
		a.SetRow(2*row+1, []float64{
			0, 0, 0, 0, x, y, z, 1, -v * x, -v * y, -v * z, -v,
		})
	}

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDFull); !ok {
		return pnpPose{}, false
	}
	var vt mat.Dense
	svd.VTo(&vt)
	_, cols := vt.Dims()
	last := cols - 1

	m := mat.NewDense(3, 4, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 4; j++ {
			m.Set(i, j, vt.At(i*4+j, last))
		}
	}

	kInv := mat.NewDense(3, 3, []float64{
		1 / k[0], 0, -k[2] / k[0],
		0, 1 / k[1], -k[3] / k[1],
		0, 0, 1,
	})
	var b mat.Dense
	b.Mul(kInv, m)

	b3 := mat.DenseCopyOf(b.Slice(0, 3, 0, 3))
	det := mat.Det(b3)
	if math.Abs(det) < 1e-15 {
		return pnpPose{}, false
	}
	// The DLT solution is defined up to sign; pick the one with a
	// right-handed rotation block so the projection onto the rotation group
	// below lands on the correct chirality.
	if det < 0 {
		b.Scale(-1, &b)
		b3.Scale(-1, b3)
	}

	var rsvd mat.SVD
	if ok := rsvd.Factorize(b3, mat.SVDFull); !ok {
		return pnpPose{}, false
	}
	sigma := rsvd.Values(nil)
	scale := 3 / (sigma[0] + sigma[1] + sigma[2])

	var u, vmat mat.Dense
	rsvd.UTo(&u)
	rsvd.VTo(&vmat)
	var rot mat.Dense
	rot.Mul(&u, vmat.T())
	if mat.Det(&rot) < 0 {
		flip := mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, -1})
		var tmp mat.Dense
		tmp.Mul(&u, flip)
		rot.Mul(&tmp, vmat.T())
	}

	return pnpPose{
		rvec: geometry.AxisAngleFromRotation(&rot),
		tvec: [3]float64{scale * b.At(0, 3), scale * b.At(1, 3), scale * b.At(2, 3)},
	}, true
}

// refinePose runs a short Gauss-Newton descent of the summed squared
// reprojection error over the inlier set, starting from pose. Numeric
// central-difference Jacobians keep it free of any auto-diff machinery; the
// step is accepted only while the cost decreases.
func refinePose(pose pnpPose, k [4]float64, object [][3]float64, image [][2]float64, inliers []int) pnpPose {
	const (
		iterations = 10
		eps        = 1e-6
	)
	if len(inliers) < pnpMinimalSample {
		return pose
	}

	params := []float64{
		pose.rvec[0], pose.rvec[1], pose.rvec[2],
		pose.tvec[0], pose.tvec[1], pose.tvec[2],
	}
	poseAt := func(p []float64) pnpPose {
		return pnpPose{
			rvec: [3]float64{p[0], p[1], p[2]},
			tvec: [3]float64{p[3], p[4], p[5]},
		}
	}
	cost := func(p []float64) float64 {
		pose := poseAt(p)
		total := 0.0
		for _, idx := range inliers {
			e := reprojectionError(pose, k, object[idx], image[idx])
			if math.IsInf(e, 1) {
				return math.Inf(1)
			}
			total += e * e
		}
		return total
	}

	current := cost(params)
	for iter := 0; iter < iterations; iter++ {
		residuals := mat.NewVecDense(2*len(inliers), nil)
		jacobian := mat.NewDense(2*len(inliers), 6, nil)

		pose := poseAt(params)
		r := geometry.RotationFromAxisAngle(pose.rvec)
		for row, idx := range inliers {
			proj, ok := projectWithPose(r, pose.tvec, k, object[idx])
			if !ok {
				continue
			}
			residuals.SetVec(2*row, image[idx][0]-proj[0])
			residuals.SetVec(2*row+1, image[idx][1]-proj[1])
		}
		for col := 0; col < 6; col++ {
			orig := params[col]
			params[col] = orig + eps
			plusPose := poseAt(params)
			plusRot := geometry.RotationFromAxisAngle(plusPose.rvec)
			params[col] = orig - eps
			minusPose := poseAt(params)
			minusRot := geometry.RotationFromAxisAngle(minusPose.rvec)
			params[col] = orig

			for row, idx := range inliers {
				plus, okPlus := projectWithPose(plusRot, plusPose.tvec, k, object[idx])
				minus, okMinus := projectWithPose(minusRot, minusPose.tvec, k, object[idx])
				if !okPlus || !okMinus {
					continue
				}
				jacobian.Set(2*row, col, (plus[0]-minus[0])/(2*eps))
				jacobian.Set(2*row+1, col, (plus[1]-minus[1])/(2*eps))
			}
		}

		var jtj mat.Dense
		jtj.Mul(jacobian.T(), jacobian)
		var jtr mat.VecDense
		jtr.MulVec(jacobian.T(), residuals)
		var delta mat.VecDense
		if err := delta.SolveVec(&jtj, &jtr); err != nil {
			break
		}

		candidate := make([]float64, 6)
		for i := range params {
			candidate[i] = params[i] + delta.AtVec(i)
		}
		next := cost(candidate)
		if next >= current {
			break
		}
		params = candidate
		current = next
	}

	return poseAt(params)
}

func projectWithPose(r *mat.Dense, t [3]float64, k [4]float64, object [3]float64) ([2]float64, bool) {
	camX := r.At(0, 0)*object[0] + r.At(0, 1)*object[1] + r.At(0, 2)*object[2] + t[0]
	camY := r.At(1, 0)*object[0] + r.At(1, 1)*object[1] + r.At(1, 2)*object[2] + t[1]
	camZ := r.At(2, 0)*object[0] + r.At(2, 1)*object[1] + r.At(2, 2)*object[2] + t[2]
	if camZ <= 1e-9 {
		return [2]float64{}, false
	}
	return [2]float64{k[0]*camX/camZ + k[2], k[1]*camY/camZ + k[3]}, true
}

// ransacIterations returns the number of RANSAC draws needed to sample at
// least one all-inlier minimal set with the given confidence, assuming an
// inlier fraction of w.
func ransacIterations(confidence, w float64, sampleSize int) int {
	if w >= 1 {
		return 1
	}
	if w <= 0 {
		return math.MaxInt32
	}
	denom := math.Log(1 - math.Pow(w, float64(sampleSize)))
	if denom >= 0 {
		return math.MaxInt32
	}
	n := math.Log(1-confidence) / denom
	if n < 1 {
		return 1
	}
	return int(math.Ceil(n))
}
