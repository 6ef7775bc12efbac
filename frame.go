package stereoslam

import (
	"time"

	"gocv.io/x/gocv"
)

// =============================================================================
// MonoFrame
// =============================================================================

// MonoFrame is one image of a stereo pair together with the pose it was
// captured at and the 2-D observations detected or tracked into it.
//
// There is no processed-frame/keyframe type split; a single `retained`
// flag on the enclosing StereoFrame covers it. A MonoFrame holds an image
// buffer until that flag flips, at which point ReleaseImage drops it.
type MonoFrame struct {
	projection *ProjectionMatrix
	image      gocv.Mat
	hasImage   bool
	points     *framePointArena
}

// newMonoFrame creates a MonoFrame at the given pose, owning its own copy
// of img; the caller keeps ownership of the original.
func newMonoFrame(projection *ProjectionMatrix, img gocv.Mat) *MonoFrame {
	f := &MonoFrame{
		projection: projection,
		image:      gocv.NewMat(),
		points:     newFramePointArena(),
	}
	if !img.Empty() {
		f.image.Close()
		f.image = img.Clone()
		f.hasImage = true
	}
	return f
}

// Projection returns this frame's camera projection matrix.
func (f *MonoFrame) Projection() *ProjectionMatrix { return f.projection }

// Image returns the frame's raw pixels and whether they are still
// resident. Keyframe insertion releases this buffer.
func (f *MonoFrame) Image() (gocv.Mat, bool) { return f.image, f.hasImage }

// ReleaseImage frees the frame's pixel buffer. Called once when the
// enclosing StereoFrame is promoted to a keyframe.
func (f *MonoFrame) ReleaseImage() {
	if f.hasImage {
		f.image.Close()
		f.image = gocv.NewMat()
		f.hasImage = false
	}
}

// Points returns every FramePoint ever created on this frame, including
// ones whose downstream links have since been cleared (they remain valid
// bare 2-D observations for as long as the frame lives).
func (f *MonoFrame) Points() []*FramePoint { return f.points.all() }

// addDetection creates a brand new FramePoint (no prior link) at pixel,
// e.g. from Tracker.ExtractPoints.
func (f *MonoFrame) addDetection(pixel Point2d, color RGBA) *FramePoint {
	_, fp := f.points.alloc(pixel, color)
	fp.frame = f
	return fp
}

// =============================================================================
// StereoFrame / KeyFrame
// =============================================================================

// StereoFrame is a time-stamped left/right image pair belonging to one Map.
// retained marks it as a keyframe: its image buffers have been released and
// it participates in local bundle adjustment.
//
// KeyFrame is not a distinct Go type; it is the same StereoFrame with
// Retained() true, and Map.Keyframes returns exactly the StereoFrames for
// which that holds.
type StereoFrame struct {
	left, right *MonoFrame
	timestamp   time.Time
	parentMap   *Map
	retained    bool
}

// KeyFrame is an alias naming the retained state of a StereoFrame, kept so
// call sites can write stereoslam.KeyFrame when they mean "a StereoFrame
// that has been promoted into the map".
type KeyFrame = StereoFrame

// newStereoFrame creates a fresh (non-keyframe) stereo pair.
func newStereoFrame(parent *Map, left, right *MonoFrame, timestamp time.Time) *StereoFrame {
	return &StereoFrame{left: left, right: right, timestamp: timestamp, parentMap: parent}
}

// Left returns the left-camera MonoFrame.
func (s *StereoFrame) Left() *MonoFrame { return s.left }

// Right returns the right-camera MonoFrame.
func (s *StereoFrame) Right() *MonoFrame { return s.right }

// Timestamp returns the capture time of this pair.
func (s *StereoFrame) Timestamp() time.Time { return s.timestamp }

// ParentMap returns the Map this frame belongs to.
func (s *StereoFrame) ParentMap() *Map { return s.parentMap }

// Retained reports whether this pair has been promoted to a keyframe.
func (s *StereoFrame) Retained() bool { return s.retained }

// ProjectionMatrix returns the left/right projection pair for this frame.
func (s *StereoFrame) ProjectionMatrix() StereoCameraMatrix {
	return StereoCameraMatrix{Left: s.left.projection, Right: s.right.projection}
}

// StereoPoints returns every left-side FramePoint that currently has a
// resolvable right-side stereo partner.
func (s *StereoFrame) StereoPoints() []*FramePoint {
	left := s.left.Points()
	out := make([]*FramePoint, 0, len(left))
	for _, fp := range left {
		if fp.Stereo() != nil {
			out = append(out, fp)
		}
	}
	return out
}

// promote marks the frame as a keyframe and releases its raw image
// buffers.
func (s *StereoFrame) promote() {
	s.retained = true
	s.releaseImages()
}

// releaseImages frees both image buffers without promoting the frame, used
// when a pair is rejected or tracked pose-only.
func (s *StereoFrame) releaseImages() {
	s.left.ReleaseImage()
	s.right.ReleaseImage()
}
