package tracking

import (
	"fmt"
	"math"
	"math/rand"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/mat"

	"github.com/oakfield-robotics/stereoslam/geometry"
)

// FlowTracker implements Tracker using sparse Lucas-Kanade optical flow:
// corners are detected with GoodFeaturesToTrack and propagated
// frame-to-frame with CalcOpticalFlowPyrLK. A RANSAC fundamental-matrix fit
// over the surviving correspondences rejects flow outliers inconsistent
// with a single rigid motion; the rejected points are not returned.
type FlowTracker struct {
	// MaxPoints is the maximum number of corners requested from
	// GoodFeaturesToTrack when extracting fresh seed points.
	MaxPoints int

	// QualityLevel is GoodFeaturesToTrack's minimal accepted corner
	// quality, relative to the best corner found.
	QualityLevel float64

	// MinDistance is the minimum pixel distance GoodFeaturesToTrack
	// enforces between returned corners.
	MinDistance float64

	// RansacReprojThreshold is the maximum epipolar distance (pixels) for
	// a correspondence to be kept as a fundamental-matrix inlier.
	RansacReprojThreshold float64

	// Confidence is the RANSAC confidence level of the fundamental fit.
	Confidence float64

	// RansacMaxIters caps the fundamental fit's RANSAC loop.
	RansacMaxIters int

	rng *rand.Rand
}

// NewFlowTracker returns a FlowTracker with corner-detection defaults
// (quality 0.01, 7 px min separation) and a RANSAC reprojection threshold
// tuned for frame-to-frame tracking.
func NewFlowTracker() *FlowTracker {
	return &FlowTracker{
		MaxPoints:             1000,
		QualityLevel:          0.01,
		MinDistance:           7,
		RansacReprojThreshold: 3.0,
		Confidence:            0.99,
		RansacMaxIters:        200,
		rng:                   rand.New(rand.NewSource(1)),
	}
}

// ExtractPoints detects corners in image using GoodFeaturesToTrack.
func (t *FlowTracker) ExtractPoints(image gocv.Mat) ([]geometry.Point2d, error) {
	gray := toGray(image)
	defer gray.Close()

	corners := gocv.NewMat()
	defer corners.Close()

	gocv.GoodFeaturesToTrack(gray, &corners, t.MaxPoints, t.QualityLevel, t.MinDistance)
	if corners.Rows() == 0 {
		return nil, errNoPoints("FlowTracker.ExtractPoints")
	}

	out := make([]geometry.Point2d, corners.Rows())
	for i := 0; i < corners.Rows(); i++ {
		v := corners.GetVecfAt(i, 0)
		out[i] = geometry.Point2d{X: float64(v[0]), Y: float64(v[1])}
	}
	return out, nil
}

// Track propagates seedPoints from prevImage into nextImage with
// CalcOpticalFlowPyrLK, then fits a fundamental matrix over the surviving
// correspondences via RANSAC and drops the outliers.
func (t *FlowTracker) Track(prevImage, nextImage gocv.Mat, seedPoints []geometry.Point2d) ([]Match, []geometry.Point2d, *mat.Dense, error) {
	if len(seedPoints) == 0 {
		return nil, nil, nil, errNoPoints("FlowTracker.Track seed")
	}

	prevGray := toGray(prevImage)
	defer prevGray.Close()
	nextGray := toGray(nextImage)
	defer nextGray.Close()

	prevPts, err := pointsToMat(seedPoints)
	if err != nil {
		return nil, nil, nil, err
	}
	defer prevPts.Close()

	nextPts := gocv.NewMat()
	defer nextPts.Close()
	status := gocv.NewMat()
	defer status.Close()
	errOut := gocv.NewMat()
	defer errOut.Close()

	gocv.CalcOpticalFlowPyrLK(prevGray, nextGray, prevPts, nextPts, &status, &errOut)

	var fromIdx []int
	var survivedFrom, survivedTo []geometry.Point2d
	for i := 0; i < status.Rows(); i++ {
		if status.GetUCharAt(i, 0) != 1 {
			continue
		}
		v := nextPts.GetVecfAt(i, 0)
		survivedFrom = append(survivedFrom, seedPoints[i])
		survivedTo = append(survivedTo, geometry.Point2d{X: float64(v[0]), Y: float64(v[1])})
		fromIdx = append(fromIdx, i)
	}
	if len(survivedFrom) < fundamentalSampleSize {
		return nil, nil, nil, fmt.Errorf("tracking: optical flow tracked only %d points, need >= %d for RANSAC", len(survivedFrom), fundamentalSampleSize)
	}

	fundamental, inlierMask := estimateFundamentalRANSAC(
		survivedFrom, survivedTo,
		t.RansacReprojThreshold, t.Confidence, t.RansacMaxIters, t.rng,
	)

	matches := make([]Match, 0, len(fromIdx))
	nextPoints := make([]geometry.Point2d, 0, len(fromIdx))
	for i := range fromIdx {
		if fundamental != nil && !inlierMask[i] {
			continue
		}
		nextPoints = append(nextPoints, survivedTo[i])
		matches = append(matches, Match{FromIndex: fromIdx[i], ToIndex: len(nextPoints) - 1})
	}
	if len(matches) == 0 {
		return nil, nil, nil, errNoPoints("FlowTracker.Track RANSAC")
	}

	return matches, nextPoints, fundamental, nil
}

func toGray(image gocv.Mat) gocv.Mat {
	if image.Channels() == 1 {
		return image.Clone()
	}
	gray := gocv.NewMat()
	gocv.CvtColor(image, &gray, gocv.ColorBGRToGray)
	return gray
}

// pointsToMat converts []geometry.Point2d into the CV_32FC2 Mat gocv's
// optical-flow routines expect: one row per point, interleaved x/y.
func pointsToMat(points []geometry.Point2d) (gocv.Mat, error) {
	data := make([]byte, len(points)*8)
	for i, p := range points {
		putFloat32(data, i*8, float32(p.X))
		putFloat32(data, i*8+4, float32(p.Y))
	}
	return gocv.NewMatFromBytes(len(points), 1, gocv.MatTypeCV32FC2, data)
}

func putFloat32(data []byte, offset int, v float32) {
	bits := math.Float32bits(v)
	data[offset] = byte(bits)
	data[offset+1] = byte(bits >> 8)
	data[offset+2] = byte(bits >> 16)
	data[offset+3] = byte(bits >> 24)
}
