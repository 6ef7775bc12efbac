// Package tracking provides the inter-frame correspondence abstraction the
// mapping pipeline runs on top of: given two images, find pixel
// correspondences between them. Two implementations are provided,
// FlowTracker (sparse optical flow) and FeatureTracker (descriptor
// matching); both speak the same Tracker interface so the pipeline never
// needs to know which one is in use.
package tracking

import (
	"fmt"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/mat"

	"github.com/oakfield-robotics/stereoslam/geometry"
)

// Match is one correspondence: the index of a point in the "from" set and
// the index of the point it was matched to in the "to" set.
type Match struct {
	FromIndex int
	ToIndex   int
}

// Tracker finds correspondences between consecutive images and extracts
// fresh seed points from a single image. Implementations must be safe to
// reuse across calls but need not be safe for concurrent use: the pipeline
// drives a single Tracker serially from its ingest goroutine.
type Tracker interface {
	// ExtractPoints detects a fresh set of candidate points in image,
	// independent of any previous frame. Used to seed a new Map.
	ExtractPoints(image gocv.Mat) ([]geometry.Point2d, error)

	// Track finds correspondences between seedPoints (detected in
	// prevImage) and their counterparts in nextImage. It also returns the
	// fundamental matrix fit over the accepted correspondences, used by
	// callers that want to reject points inconsistent with a single rigid
	// motion. Both implementations fit it by RANSAC and drop the outliers
	// themselves; it is nil when no model could be fitted.
	//
	// The returned Match.FromIndex indexes seedPoints; Match.ToIndex
	// indexes the matched points in nextImage, returned as the second
	// return value.
	Track(prevImage, nextImage gocv.Mat, seedPoints []geometry.Point2d) (matches []Match, nextPoints []geometry.Point2d, fundamental *mat.Dense, err error)
}

// errNoPoints is returned by both implementations when a frame yields zero
// seed points; the pipeline treats this as "tracking lost" rather than a
// hard error.
func errNoPoints(stage string) error {
	return fmt.Errorf("tracking: %s found no points", stage)
}
