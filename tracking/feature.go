package tracking

import (
	"fmt"
	"math"
	"math/rand"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/mat"

	"github.com/oakfield-robotics/stereoslam/geometry"
	"github.com/oakfield-robotics/stereoslam/internal/scipy"
)

// MatchStrategy selects how FeatureTracker pairs descriptors between two
// keypoint sets.
type MatchStrategy int

const (
	// MatchRatioCrossCheck keeps a pair only if it wins Lowe's ratio test
	// in the forward direction and the reverse match agrees. This is the
	// default.
	MatchRatioCrossCheck MatchStrategy = iota

	// MatchOptimalAssignment solves a global minimum-cost assignment over
	// the full descriptor-distance matrix instead of greedy nearest
	// neighbours. More expensive, occasionally better on repetitive
	// texture.
	MatchOptimalAssignment
)

// FeatureTracker implements Tracker using ORB keypoints and descriptors.
// Candidate pairs come from descriptor matching (ratio test + cross-check
// by default); a RANSAC fundamental-matrix fit over the candidates then
// rejects pairs inconsistent with a single rigid motion, exactly as
// FlowTracker does for optical-flow correspondences.
type FeatureTracker struct {
	orb       gocv.ORB
	matcher   gocv.BFMatcher
	emptyMask gocv.Mat

	// Strategy selects the descriptor pairing step.
	Strategy MatchStrategy

	// RatioThreshold is Lowe's ratio: the best descriptor distance must be
	// below this fraction of the second best for the match to survive.
	RatioThreshold float64

	// MaxDescriptorDistance rejects pairs whose descriptor distance
	// exceeds this value under either strategy.
	MaxDescriptorDistance float64

	// SeedSnapRadius is the maximum pixel distance between a caller seed
	// point and a detected keypoint for the two to be identified. Matches
	// whose source keypoint lies near no seed are dropped, so FromIndex
	// always indexes the caller's seedPoints.
	SeedSnapRadius float64

	// RansacReprojThreshold, Confidence and RansacMaxIters parameterize
	// the fundamental-matrix outlier rejection.
	RansacReprojThreshold float64
	Confidence            float64
	RansacMaxIters        int

	rng *rand.Rand
}

// NewFeatureTracker constructs a FeatureTracker with default ORB
// parameters. Callers must call Close when done to release the underlying
// OpenCV objects.
func NewFeatureTracker() *FeatureTracker {
	return &FeatureTracker{
		orb:                   gocv.NewORB(),
		matcher:               gocv.NewBFMatcher(),
		emptyMask:             gocv.NewMat(),
		Strategy:              MatchRatioCrossCheck,
		RatioThreshold:        0.75,
		MaxDescriptorDistance: 64,
		SeedSnapRadius:        2.0,
		RansacReprojThreshold: 3.0,
		Confidence:            0.99,
		RansacMaxIters:        200,
		rng:                   rand.New(rand.NewSource(1)),
	}
}

// Close releases the ORB detector and matcher.
func (t *FeatureTracker) Close() error {
	if err := t.orb.Close(); err != nil {
		return err
	}
	if err := t.matcher.Close(); err != nil {
		return err
	}
	return t.emptyMask.Close()
}

// ExtractPoints detects ORB keypoints in image and returns their pixel
// locations. Descriptors are recomputed internally by Track, since the
// Tracker interface only carries points between calls.
func (t *FeatureTracker) ExtractPoints(image gocv.Mat) ([]geometry.Point2d, error) {
	kps, desc := t.orb.DetectAndCompute(image, t.emptyMask)
	defer desc.Close()
	if len(kps) == 0 {
		return nil, errNoPoints("FeatureTracker.ExtractPoints")
	}
	out := make([]geometry.Point2d, len(kps))
	for i, kp := range kps {
		out[i] = geometry.Point2d{X: kp.X, Y: kp.Y}
	}
	return out, nil
}

// candidatePair is a descriptor match between prev keypoint prevIdx and
// next keypoint nextIdx, before seed snapping and epipolar filtering.
type candidatePair struct {
	prevIdx  int
	nextIdx  int
	distance float64
}

// Track matches ORB descriptors between prevImage and nextImage, snaps the
// matched source keypoints onto the caller's seedPoints, and filters the
// survivors with a RANSAC fundamental fit. FromIndex in the returned
// matches indexes seedPoints; seeds near no detected keypoint simply go
// unmatched.
func (t *FeatureTracker) Track(prevImage, nextImage gocv.Mat, seedPoints []geometry.Point2d) ([]Match, []geometry.Point2d, *mat.Dense, error) {
	if len(seedPoints) == 0 {
		return nil, nil, nil, errNoPoints("FeatureTracker.Track seed")
	}

	prevKps, prevDesc := t.orb.DetectAndCompute(prevImage, t.emptyMask)
	defer prevDesc.Close()
	nextKps, nextDesc := t.orb.DetectAndCompute(nextImage, t.emptyMask)
	defer nextDesc.Close()

	if len(prevKps) == 0 || len(nextKps) == 0 {
		return nil, nil, nil, errNoPoints("FeatureTracker.Track")
	}

	var candidates []candidatePair
	var err error
	switch t.Strategy {
	case MatchOptimalAssignment:
		candidates, err = t.matchOptimal(prevDesc, nextDesc)
	default:
		candidates = t.matchRatioCrossCheck(prevDesc, nextDesc)
	}
	if err != nil {
		return nil, nil, nil, err
	}
	if len(candidates) == 0 {
		return nil, nil, nil, errNoPoints("FeatureTracker.Track descriptor match")
	}

	// Snap each candidate's source keypoint onto the nearest caller seed.
	type snapped struct {
		seedIdx int
		from    geometry.Point2d
		to      geometry.Point2d
	}
	var pairs []snapped
	usedSeed := make(map[int]bool)
	for _, c := range candidates {
		from := geometry.Point2d{X: prevKps[c.prevIdx].X, Y: prevKps[c.prevIdx].Y}
		seedIdx := nearestSeed(from, seedPoints, t.SeedSnapRadius)
		if seedIdx < 0 || usedSeed[seedIdx] {
			continue
		}
		usedSeed[seedIdx] = true
		pairs = append(pairs, snapped{
			seedIdx: seedIdx,
			from:    from,
			to:      geometry.Point2d{X: nextKps[c.nextIdx].X, Y: nextKps[c.nextIdx].Y},
		})
	}
	if len(pairs) == 0 {
		return nil, nil, nil, errNoPoints("FeatureTracker.Track seed snap")
	}

	from := make([]geometry.Point2d, len(pairs))
	to := make([]geometry.Point2d, len(pairs))
	for i, p := range pairs {
		from[i] = p.from
		to[i] = p.to
	}
	fundamental, inlierMask := estimateFundamentalRANSAC(
		from, to, t.RansacReprojThreshold, t.Confidence, t.RansacMaxIters, t.rng,
	)

	matches := make([]Match, 0, len(pairs))
	nextPoints := make([]geometry.Point2d, 0, len(pairs))
	for i, p := range pairs {
		if fundamental != nil && !inlierMask[i] {
			continue
		}
		nextPoints = append(nextPoints, p.to)
		matches = append(matches, Match{FromIndex: p.seedIdx, ToIndex: len(nextPoints) - 1})
	}
	if len(matches) == 0 {
		return nil, nil, nil, errNoPoints("FeatureTracker.Track RANSAC")
	}

	return matches, nextPoints, fundamental, nil
}

// matchRatioCrossCheck pairs descriptors with Lowe's ratio test in both
// directions, keeping only mutually-agreeing matches under
// MaxDescriptorDistance.
func (t *FeatureTracker) matchRatioCrossCheck(prevDesc, nextDesc gocv.Mat) []candidatePair {
	forward := t.matcher.KnnMatch(prevDesc, nextDesc, 2)
	backward := t.matcher.KnnMatch(nextDesc, prevDesc, 2)

	reverse := make(map[int]int)
	for _, pair := range backward {
		if m, ok := ratioBest(pair, t.RatioThreshold); ok {
			reverse[m.QueryIdx] = m.TrainIdx
		}
	}

	var out []candidatePair
	for _, pair := range forward {
		m, ok := ratioBest(pair, t.RatioThreshold)
		if !ok || m.Distance > t.MaxDescriptorDistance {
			continue
		}
		if back, ok := reverse[m.TrainIdx]; !ok || back != m.QueryIdx {
			continue
		}
		out = append(out, candidatePair{prevIdx: m.QueryIdx, nextIdx: m.TrainIdx, distance: m.Distance})
	}
	return out
}

// ratioBest applies Lowe's ratio test to one KnnMatch row.
func ratioBest(pair []gocv.DMatch, ratio float64) (gocv.DMatch, bool) {
	if len(pair) == 0 {
		return gocv.DMatch{}, false
	}
	if len(pair) == 1 {
		return pair[0], true
	}
	if pair[0].Distance < ratio*pair[1].Distance {
		return pair[0], true
	}
	return gocv.DMatch{}, false
}

// matchOptimal solves a global minimum-cost assignment over the full
// descriptor-distance matrix via internal/scipy's Hungarian wrapper.
func (t *FeatureTracker) matchOptimal(prevDesc, nextDesc gocv.Mat) ([]candidatePair, error) {
	prevVecs, err := descriptorsToDense(prevDesc)
	if err != nil {
		return nil, err
	}
	nextVecs, err := descriptorsToDense(nextDesc)
	if err != nil {
		return nil, err
	}

	dist := scipy.Cdist(prevVecs, nextVecs, scipy.MetricEuclidean)
	rows, cols := dist.Dims()
	cost := make([][]float64, rows)
	for i := 0; i < rows; i++ {
		cost[i] = make([]float64, cols)
		for j := 0; j < cols; j++ {
			cost[i][j] = dist.At(i, j)
		}
	}

	assignments, _, _ := scipy.LinearSumAssignment(cost, t.MaxDescriptorDistance)
	var out []candidatePair
	for _, a := range assignments {
		if a.RowIdx >= rows || a.ColIdx >= cols {
			continue // padding index from squaring the cost matrix
		}
		out = append(out, candidatePair{prevIdx: a.RowIdx, nextIdx: a.ColIdx, distance: cost[a.RowIdx][a.ColIdx]})
	}
	return out, nil
}

// nearestSeed returns the index of the seed closest to p within radius, or
// -1 if none qualifies.
func nearestSeed(p geometry.Point2d, seeds []geometry.Point2d, radius float64) int {
	bestIdx := -1
	bestDist := radius
	for i, s := range seeds {
		d := math.Hypot(p.X-s.X, p.Y-s.Y)
		if d <= bestDist {
			bestDist = d
			bestIdx = i
		}
	}
	return bestIdx
}

// descriptorsToDense converts an ORB descriptor Mat (CV_8U, one row per
// keypoint) into a gonum *mat.Dense of the same shape so it can be fed to
// scipy.Cdist.
func descriptorsToDense(desc gocv.Mat) (*mat.Dense, error) {
	if desc.Empty() {
		return nil, fmt.Errorf("tracking: empty descriptor matrix")
	}
	rows, cols := desc.Rows(), desc.Cols()
	data := make([]float64, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			data[i*cols+j] = float64(desc.GetUCharAt(i, j))
		}
	}
	return mat.NewDense(rows, cols, data), nil
}
