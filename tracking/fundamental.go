package tracking

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/oakfield-robotics/stereoslam/geometry"
)

// fundamentalSampleSize is the minimal correspondence count for the
// eight-point algorithm.
const fundamentalSampleSize = 8

// estimateFundamentalRANSAC fits a fundamental matrix to the given
// correspondences with the normalized eight-point algorithm inside a RANSAC
// loop. It returns the model refit over the consensus set and a parallel
// inlier mask; the mask is all-false and the matrix nil when no sample
// produces a usable model.
func estimateFundamentalRANSAC(from, to []geometry.Point2d, threshold, confidence float64, maxIters int, rng *rand.Rand) (*mat.Dense, []bool) {
	n := len(from)
	mask := make([]bool, n)
	if n < fundamentalSampleSize {
		return nil, mask
	}

	var best *mat.Dense
	bestCount := 0
	thresholdSq := threshold * threshold

	iters := maxIters
	for iter := 0; iter < iters; iter++ {
		sample := rng.Perm(n)[:fundamentalSampleSize]
		f := fitFundamental(from, to, sample)
		if f == nil {
			continue
		}
		count := 0
		for i := 0; i < n; i++ {
			if sampsonDistanceSq(f, from[i], to[i]) <= thresholdSq {
				count++
			}
		}
		if count > bestCount {
			bestCount = count
			best = f

			w := float64(count) / float64(n)
			if w > 0 && w < 1 {
				denom := math.Log(1 - math.Pow(w, fundamentalSampleSize))
				if denom < 0 {
					if needed := int(math.Ceil(math.Log(1-confidence) / denom)); needed < iters && needed >= 1 {
						iters = needed
					}
				}
			}
		}
	}
	if best == nil || bestCount < fundamentalSampleSize {
		return nil, mask
	}

	var inliers []int
	for i := 0; i < n; i++ {
		if sampsonDistanceSq(best, from[i], to[i]) <= thresholdSq {
			inliers = append(inliers, i)
			mask[i] = true
		}
	}
	if refit := fitFundamental(from, to, inliers); refit != nil {
		best = refit
		for i := 0; i < n; i++ {
			mask[i] = sampsonDistanceSq(best, from[i], to[i]) <= thresholdSq
		}
	}
	return best, mask
}

// fitFundamental runs the normalized eight-point algorithm over the indexed
// correspondences: Hartley-normalize both point sets, solve the homogeneous
// epipolar system by SVD, enforce the rank-2 constraint, and denormalize.
func fitFundamental(from, to []geometry.Point2d, indices []int) *mat.Dense {
	if len(indices) < fundamentalSampleSize {
		return nil
	}

	fromNorm, tFrom := normalizePoints(from, indices)
	toNorm, tTo := normalizePoints(to, indices)

	a := mat.NewDense(len(indices), 9, nil)
	for row := range indices {
		x1, y1 := fromNorm[row].X, fromNorm[row].Y
		x2, y2 := toNorm[row].X, toNorm[row].Y
		a.SetRow(row, []float64{
			x2 * x1, x2 * y1, x2,
			y2 * x1, y2 * y1, y2,
			x1, y1, 1,
		})
	}

	// Full factorization: with exactly eight rows the system is 8x9 and the
	// null-space vector lives in the column a thin SVD would omit.
	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDFull); !ok {
		return nil
	}
	var v mat.Dense
	svd.VTo(&v)
	_, cols := v.Dims()
	last := cols - 1

	f := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			f.Set(i, j, v.At(i*3+j, last))
		}
	}

	// Rank-2 enforcement: zero the smallest singular value.
	var fsvd mat.SVD
	if ok := fsvd.Factorize(f, mat.SVDFull); !ok {
		return nil
	}
	sigma := fsvd.Values(nil)
	var u, vf mat.Dense
	fsvd.UTo(&u)
	fsvd.VTo(&vf)
	d := mat.NewDense(3, 3, []float64{
		sigma[0], 0, 0,
		0, sigma[1], 0,
		0, 0, 0,
	})
	var ud mat.Dense
	ud.Mul(&u, d)
	f.Mul(&ud, vf.T())

	// Denormalize: F = T_to' * F_norm * T_from.
	var tmp mat.Dense
	tmp.Mul(tTo.T(), f)
	var out mat.Dense
	out.Mul(&tmp, tFrom)
	return &out
}

// normalizePoints translates the indexed points to their centroid and
// scales them so the mean distance from the origin is sqrt(2), returning
// the transformed points and the 3x3 transform that produced them.
func normalizePoints(points []geometry.Point2d, indices []int) ([]geometry.Point2d, *mat.Dense) {
	var cx, cy float64
	for _, idx := range indices {
		cx += points[idx].X
		cy += points[idx].Y
	}
	n := float64(len(indices))
	cx /= n
	cy /= n

	var meanDist float64
	for _, idx := range indices {
		meanDist += math.Hypot(points[idx].X-cx, points[idx].Y-cy)
	}
	meanDist /= n
	scale := 1.0
	if meanDist > 1e-12 {
		scale = math.Sqrt2 / meanDist
	}

	out := make([]geometry.Point2d, len(indices))
	for i, idx := range indices {
		out[i] = geometry.Point2d{
			X: (points[idx].X - cx) * scale,
			Y: (points[idx].Y - cy) * scale,
		}
	}
	t := mat.NewDense(3, 3, []float64{
		scale, 0, -scale * cx,
		0, scale, -scale * cy,
		0, 0, 1,
	})
	return out, t
}

// sampsonDistanceSq is the first-order geometric error of a correspondence
// under fundamental matrix f, in squared pixels.
func sampsonDistanceSq(f *mat.Dense, from, to geometry.Point2d) float64 {
	// l = F * x_from, l' = F' * x_to
	lx := f.At(0, 0)*from.X + f.At(0, 1)*from.Y + f.At(0, 2)
	ly := f.At(1, 0)*from.X + f.At(1, 1)*from.Y + f.At(1, 2)
	lz := f.At(2, 0)*from.X + f.At(2, 1)*from.Y + f.At(2, 2)

	ltx := f.At(0, 0)*to.X + f.At(1, 0)*to.Y + f.At(2, 0)
	lty := f.At(0, 1)*to.X + f.At(1, 1)*to.Y + f.At(2, 1)

	numerator := to.X*lx + to.Y*ly + lz
	denom := lx*lx + ly*ly + ltx*ltx + lty*lty
	if denom < 1e-12 {
		return math.Inf(1)
	}
	return numerator * numerator / denom
}
