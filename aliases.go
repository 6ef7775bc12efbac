package stereoslam

import "github.com/oakfield-robotics/stereoslam/geometry"

// These aliases let the root package spell geometry's exported names
// without a qualifier, the same way drawing.Color aliases color.Color.
type (
	ProjectionMatrix   = geometry.ProjectionMatrix
	StereoCameraMatrix = geometry.StereoCameraMatrix
	Point2d            = geometry.Point2d
	Point3d            = geometry.Point3d
	RGBA               = geometry.RGBA
	ColorPoint3d       = geometry.ColorPoint3d
)

// NewProjectionMatrix constructs a ProjectionMatrix; see geometry.NewProjectionMatrix.
var NewProjectionMatrix = geometry.NewProjectionMatrix

var newProjectionMatrixFromRaw = geometry.NewProjectionMatrixFromRaw
