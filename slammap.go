package stereoslam

import (
	"fmt"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/oakfield-robotics/stereoslam/bundle"
	"github.com/oakfield-robotics/stereoslam/internal/motionmodel"
	"github.com/oakfield-robotics/stereoslam/tracking"
)

// defaultMotionDt is the nominal interval between consecutive stereo pairs
// used to seed internal/motionmodel's constant-velocity transition matrix.
// It need not match the real frame rate: PnP corrects any drift every pair.
const defaultMotionDt = 0.1

// MapState is the lifecycle state of a Map: Empty until the first
// successful stereo triangulation, Initialized while tracking, Closed
// (terminal) once tracking is lost. World opens a new Map on closure.
type MapState int

const (
	MapEmpty MapState = iota
	MapInitialized
	MapClosed
)

func (s MapState) String() string {
	switch s {
	case MapEmpty:
		return "empty"
	case MapInitialized:
		return "initialized"
	case MapClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// TrackOutcome reports the result of one Map.Track or World.Track call.
// Expected failures (too few matches, low inlier ratio, bad input pair)
// come back with OK=false and a reason rather than an error.
type TrackOutcome struct {
	OK            bool
	Reason        string
	InlierRatio   float64
	KeyframeAdded bool
}

// Map owns one ordered sequence of keyframes plus the set of live
// MapPoints they observe. A Map is opened at World construction or
// whenever tracking is lost on the previous Map; it is never destroyed,
// only closed.
type Map struct {
	mu sync.RWMutex

	state MapState

	startProjection StereoCameraMatrix
	startBaseline   float64

	keyframes []*StereoFrame
	points    *mapPointArena

	tracker  tracking.Tracker
	tuning   Tuning
	motion   *motionmodel.Predictor
	adjuster bundle.Adjuster

	// prevLeftImage is a retained copy of the newest keyframe's left image,
	// kept alive after the keyframe itself drops its buffers so the next
	// pair's temporal match still has pixels to track from.
	prevLeftImage gocv.Mat
	hasPrevLeft   bool

	lastLeftPoints []*FramePoint

	// baMu serializes optimizer runs; baWG lets shutdown drain them.
	baMu sync.Mutex
	baWG sync.WaitGroup
}

// newMap opens a fresh Map at the given starting stereo calibration,
// initially empty and awaiting its first keyframe.
func newMap(start StereoCameraMatrix, tracker tracking.Tracker, tuning Tuning) *Map {
	return &Map{
		state:           MapEmpty,
		startProjection: start,
		startBaseline:   start.Baseline(),
		points:          newMapPointArena(),
		tracker:         tracker,
		tuning:          tuning,
		motion:          motionmodel.NewPredictor(defaultMotionDt),
		adjuster:        bundle.NewLevenbergMarquardt(),
	}
}

// State returns the map's current lifecycle state.
func (m *Map) State() MapState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Keyframes returns a snapshot of every retained StereoFrame, oldest first.
func (m *Map) Keyframes() []*StereoFrame {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*StereoFrame, len(m.keyframes))
	copy(out, m.keyframes)
	return out
}

// MapPoints returns a snapshot of every live MapPoint.
func (m *Map) MapPoints() []*MapPoint {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.points.all()
}

// Track ingests one stereo pair. The first pair is extracted, stereo
// matched and triangulated; every later pair runs temporal match, stereo
// match, PnP and cross-frame triangulation, then pruning and keyframe
// insertion when the inlier ratio is low.
// Callers must hold no external lock; Track takes the map's write lock for
// its mutation windows. Bundle adjustment triggered by a keyframe
// insertion runs on a separate goroutine against a snapshot and writes
// back under the same lock.
func (m *Map) Track(left, right gocv.Mat, timestamp time.Time) (TrackOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == MapClosed {
		return TrackOutcome{OK: false, Reason: "map: track called on a closed map"}, nil
	}

	if len(m.keyframes) == 0 {
		return m.trackFirstPairLocked(left, right, timestamp)
	}
	return m.trackSubsequentPairLocked(left, right, timestamp)
}

// trackFirstPairLocked bootstraps the map from its first pair: extract,
// stereo-match, triangulate, and promote unconditionally to the first
// keyframe at the map's start projection.
func (m *Map) trackFirstPairLocked(left, right gocv.Mat, timestamp time.Time) (TrackOutcome, error) {
	leftFrame := newMonoFrame(m.startProjection.Left.Clone(), left)
	rightFrame := newMonoFrame(m.startProjection.Right.Clone(), right)
	frame := newStereoFrame(m, leftFrame, rightFrame, timestamp)

	points, err := m.tracker.ExtractPoints(left)
	if err != nil {
		frame.releaseImages()
		return TrackOutcome{OK: false, Reason: fmt.Sprintf("map: initial extraction failed: %v", err)}, nil
	}
	for _, pt := range points {
		leftFrame.addDetection(pt, sampleColor(left, pt))
	}

	if err := m.stereoMatchLocked(frame); err != nil {
		frame.releaseImages()
		return TrackOutcome{OK: false, Reason: fmt.Sprintf("map: initial stereo match failed: %v", err)}, nil
	}

	accepted := m.triangulateStereoPair(frame, frame.StereoPoints(), m.tuning)
	if accepted < m.tuning.MinTrackPoints {
		frame.releaseImages()
		return TrackOutcome{OK: false, Reason: fmt.Sprintf("map: only %d initial landmarks triangulated, need >= %d", accepted, m.tuning.MinTrackPoints)}, nil
	}

	m.state = MapInitialized
	m.retainLeftImageLocked(left)
	frame.promote()
	m.keyframes = append(m.keyframes, frame)
	m.lastLeftPoints = frame.left.Points()
	m.motion.Observe(leftFrame.projection.Rotation(), leftFrame.projection.Translation())

	return TrackOutcome{OK: true, InlierRatio: 1.0, KeyframeAdded: true}, nil
}

// trackSubsequentPairLocked handles every pair after the first: track
// against the newest keyframe, recover the pose, and decide whether the
// pair becomes a keyframe.
func (m *Map) trackSubsequentPairLocked(left, right gocv.Mat, timestamp time.Time) (TrackOutcome, error) {
	prevKeyframe := m.keyframes[len(m.keyframes)-1]

	leftFrame := newMonoFrame(prevKeyframe.left.projection.Clone(), left)
	rightFrame := newMonoFrame(prevKeyframe.right.projection.Clone(), right)
	frame := newStereoFrame(m, leftFrame, rightFrame, timestamp)

	if err := m.temporalMatchLocked(prevKeyframe, frame); err != nil {
		frame.releaseImages()
		m.closeLocked()
		return TrackOutcome{OK: false, Reason: fmt.Sprintf("map: temporal match failed: %v", err)}, nil
	}

	if err := m.stereoMatchLocked(frame); err != nil {
		frame.releaseImages()
		m.closeLocked()
		return TrackOutcome{OK: false, Reason: fmt.Sprintf("map: stereo match failed: %v", err)}, nil
	}

	var guess *poseGuess
	if rotation, translation, ok := m.motion.Predict(); ok {
		guess = &poseGuess{Rotation: rotation, Translation: translation}
	}

	points := posePoints(frame)
	result, err := solvePnP(points, m.tuning, guess)
	if err != nil {
		frame.releaseImages()
		return TrackOutcome{}, err
	}
	if !result.OK {
		frame.releaseImages()
		m.closeLocked()
		return TrackOutcome{OK: false, Reason: result.Reason, InlierRatio: result.InlierRatio}, nil
	}
	sanitizeOutliers(points, result)
	m.motion.Observe(result.Rotation, result.Translation)

	leftFrame.projection.SetPose(result.Rotation, result.Translation)
	rightPose := applyRigidBaseline(result.Rotation, result.Translation, m.startProjection)
	rightFrame.projection.SetPose(rightPose.Rotation(), rightPose.Translation())

	m.triangulateAcrossFrames(frame, frame.left.Points(), m.tuning)

	keyframeAdded := false
	if result.InlierRatio < m.tuning.GoodTrackInliersRatio {
		m.pruneLocked(frame)
		m.spawnCandidatesLocked(frame)
		if err := m.stereoMatchLocked(frame); err != nil {
			logf("keyframe candidate stereo match failed: %v", err)
		}
		m.triangulateStereoPair(frame, frame.StereoPoints(), m.tuning)
		m.retainLeftImageLocked(left)
		frame.promote()
		m.keyframes = append(m.keyframes, frame)
		keyframeAdded = true
		m.scheduleAdjustLocked(m.tuning.BAWindow)
	} else {
		frame.releaseImages()
	}
	m.lastLeftPoints = frame.left.Points()

	return TrackOutcome{OK: true, InlierRatio: result.InlierRatio, KeyframeAdded: keyframeAdded}, nil
}

// closeLocked transitions the map to its terminal state and drops the
// retained tracking image.
func (m *Map) closeLocked() {
	m.state = MapClosed
	if m.hasPrevLeft {
		m.prevLeftImage.Close()
		m.hasPrevLeft = false
	}
}

// retainLeftImageLocked keeps a copy of the newest keyframe's left image
// for the next pair's temporal match, replacing (and releasing) the
// previously retained one.
func (m *Map) retainLeftImageLocked(left gocv.Mat) {
	if m.hasPrevLeft {
		m.prevLeftImage.Close()
	}
	m.prevLeftImage = left.Clone()
	m.hasPrevLeft = true
}

// stereoMatchLocked tracks from the pair's left image to its right image,
// links mutual stereo partners, and propagates existing MapPoint
// references onto the new right-side observations. Correspondences whose
// disparity falls below the tuning minimum are skipped; they cannot be
// triangulated reliably.
func (m *Map) stereoMatchLocked(frame *StereoFrame) error {
	leftPoints := frame.left.Points()
	if len(leftPoints) == 0 {
		return fmt.Errorf("no left-side candidate points to stereo match")
	}
	seeds := make([]Point2d, len(leftPoints))
	for i, fp := range leftPoints {
		seeds[i] = fp.Pixel()
	}

	leftImg, _ := frame.left.Image()
	rightImg, _ := frame.right.Image()
	matches, nextPoints, _, err := m.tracker.Track(leftImg, rightImg, seeds)
	if err != nil {
		return err
	}

	for _, match := range matches {
		leftFp := leftPoints[match.FromIndex]
		if leftFp.Stereo() != nil {
			continue
		}
		pixel := nextPoints[match.ToIndex]
		if leftFp.Pixel().Sub(pixel).Norm() < m.tuning.MinStereoDisparity {
			continue
		}
		rightFp := frame.right.addDetection(pixel, sampleColor(rightImg, pixel))
		leftFp.setStereo(rightFp)
		if lm := leftFp.MapPoint(); lm != nil {
			rightFp.setMapPoint(m, lm.self)
		}
	}
	return nil
}

// temporalMatchLocked tracks from the newest keyframe's left image (the
// retained copy) into the current pair's left image, seeded by the
// keyframe's FramePoints, linking next/prev and propagating MapPoint
// references. Correspondences that moved less than the tuning minimum are
// dropped.
func (m *Map) temporalMatchLocked(prev *StereoFrame, curr *StereoFrame) error {
	prevPoints := prev.left.Points()
	if len(prevPoints) == 0 {
		return fmt.Errorf("no previous left-side points to seed temporal match")
	}
	if !m.hasPrevLeft {
		return fmt.Errorf("no retained image for the previous keyframe")
	}
	seeds := make([]Point2d, len(prevPoints))
	for i, fp := range prevPoints {
		seeds[i] = fp.Pixel()
	}

	currImg, _ := curr.left.Image()
	matches, nextPoints, _, err := m.tracker.Track(m.prevLeftImage, currImg, seeds)
	if err != nil {
		return err
	}

	for _, match := range matches {
		prevFp := prevPoints[match.FromIndex]
		pixel := nextPoints[match.ToIndex]
		if prevFp.Pixel().Sub(pixel).Norm() < m.tuning.MinAdjacentPointsDistance {
			continue
		}
		currFp := curr.left.addDetection(pixel, sampleColor(currImg, pixel))
		setTemporalLink(prevFp, currFp)
		if lm := prevFp.MapPoint(); lm != nil {
			currFp.setMapPoint(m, lm.self)
		}
	}
	return nil
}

// pruneLocked removes weak landmarks: a current-frame observation whose
// landmark has fewer than MinConnectedPoints live observations and no
// surviving next-frame link causes that landmark's removal from the map.
// Remaining references resolve to absent from then on.
func (m *Map) pruneLocked(frame *StereoFrame) {
	counts := m.countObservationsLocked()
	for _, fp := range frame.left.Points() {
		mp := fp.MapPoint()
		if mp == nil {
			continue
		}
		if fp.Next() != nil {
			continue
		}
		if counts[mp.self] >= m.tuning.MinConnectedPoints {
			continue
		}
		m.points.free(mp.self)
	}
}

// countObservationsLocked recomputes each MapPoint's observation count by
// walking every keyframe's FramePoints. The count is derived rather than
// incremented inline, since an observation can go from live to
// dangling-absent without its landmark being told.
func (m *Map) countObservationsLocked() map[mapPointHandle]int {
	counts := make(map[mapPointHandle]int)
	for _, kf := range m.keyframes {
		for _, side := range []*MonoFrame{kf.left, kf.right} {
			for _, fp := range side.Points() {
				if mp := fp.MapPoint(); mp != nil {
					counts[mp.self]++
				}
			}
		}
	}
	for _, fp := range m.lastLeftPoints {
		if mp := fp.MapPoint(); mp != nil {
			counts[mp.self]++
		}
	}
	for h, c := range counts {
		if mp := m.points.get(h); mp != nil {
			mp.observationCount = c
		}
	}
	return counts
}

// spawnCandidatesLocked extracts a fresh batch of candidate points on the
// promoted frame's left image, so future temporal tracking has seeds even
// where existing tracks have died out.
func (m *Map) spawnCandidatesLocked(frame *StereoFrame) {
	img, ok := frame.left.Image()
	if !ok {
		return
	}
	points, err := m.tracker.ExtractPoints(img)
	if err != nil {
		return
	}
	existing := frame.left.Points()
	for _, pt := range points {
		if tooCloseToExisting(pt, existing) {
			continue
		}
		frame.left.addDetection(pt, sampleColor(img, pt))
	}
}

func tooCloseToExisting(pt Point2d, existing []*FramePoint) bool {
	const minSeparation = 4.0
	for _, fp := range existing {
		if pt.Sub(fp.Pixel()).Norm() < minSeparation {
			return true
		}
	}
	return false
}

// sampleColor reads the pixel color at pt, tolerating grayscale input and
// out-of-bounds coordinates (subpixel tracking can land a match fractionally
// outside the image).
func sampleColor(img gocv.Mat, pt Point2d) RGBA {
	if img.Empty() {
		return RGBA{}
	}
	x, y := int(pt.X+0.5), int(pt.Y+0.5)
	if x < 0 || y < 0 || x >= img.Cols() || y >= img.Rows() {
		return RGBA{}
	}
	switch img.Channels() {
	case 3:
		v := img.GetVecbAt(y, x) // BGR byte order
		return RGBA{R: v[2], G: v[1], B: v[0], A: 255}
	case 1:
		g := img.GetUCharAt(y, x)
		return RGBA{R: g, G: g, B: g, A: 255}
	default:
		return RGBA{}
	}
}
