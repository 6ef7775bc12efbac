package stereoslam

// Tuning holds the tunable constants governing acceptance tests, pose
// recovery, and bundle adjustment. The zero value is not meaningful; use
// DefaultTuning() and override individual fields.
type Tuning struct {
	// MaxReprojectionError is the pixel acceptance threshold used by both
	// triangulation and PnP RANSAC.
	MaxReprojectionError float64

	// MinStereoDisparity is the minimum pixel disparity a left/right pair
	// must have before it is offered to stereo triangulation.
	MinStereoDisparity float64

	// MinAdjacentPointsDistance is the minimum 2-D displacement a temporal
	// correspondence must have to be accepted as a track.
	MinAdjacentPointsDistance float64

	// MinPointsDistance gates cross-frame triangulation only: the pixel
	// displacement between the current observation and its deepest
	// ancestor must exceed this many pixels. It is deliberately much
	// coarser than MinAdjacentPointsDistance, which gates track
	// acceptance, not triangulation.
	MinPointsDistance float64

	// MinAdjacentCameraMultiplier scales the map's starting baseline to
	// produce the minimum camera-to-camera distance required before
	// cross-frame triangulation is attempted.
	MinAdjacentCameraMultiplier float64

	// MinTrackInliersRatio: PnP inlier ratios below this are reported as
	// tracking failure.
	MinTrackInliersRatio float64

	// GoodTrackInliersRatio: PnP inlier ratios at or above this skip
	// keyframe insertion (pose-only update).
	GoodTrackInliersRatio float64

	// MinConnectedPoints is the minimum number of live observations a
	// MapPoint must retain to survive pruning.
	MinConnectedPoints int

	// MinTrackPoints is the minimum number of pose points required to
	// attempt PnP at all.
	MinTrackPoints int

	// BAWindow is the number of most recent keyframes (N) included in
	// local bundle adjustment.
	BAWindow int

	// BAMaxIterations is the Levenberg-Marquardt iteration cap.
	BAMaxIterations int

	// PnPMaxIterations is the RANSAC-PnP iteration cap.
	PnPMaxIterations int

	// PnPConfidence is the RANSAC-PnP confidence level.
	PnPConfidence float64

	// TrackerKind selects which Tracker implementation World constructs:
	// "flow" or "features".
	TrackerKind string
}

// DefaultTuning returns the default tuning table.
func DefaultTuning() Tuning {
	return Tuning{
		MaxReprojectionError:        2.0,
		MinStereoDisparity:          2.0,
		MinAdjacentPointsDistance:   1.0,
		MinPointsDistance:           10.0,
		MinAdjacentCameraMultiplier: 0.5,
		MinTrackInliersRatio:        0.4,
		GoodTrackInliersRatio:       0.8,
		MinConnectedPoints:          2,
		MinTrackPoints:              30,
		BAWindow:                    5,
		BAMaxIterations:             10,
		PnPMaxIterations:            100,
		PnPConfidence:               0.99,
		TrackerKind:                 "flow",
	}
}
