package stereoslam

import (
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/oakfield-robotics/stereoslam/tracking"
)

// logf reports a recoverable warning through the standard log package.
// Image errors and bundle-adjustment non-convergence are advisory, not
// failures, so a handful of prefixed log lines covers the need.
func logf(format string, args ...any) {
	log.Printf("stereoslam: "+format, args...)
}

// StampedImage is one timestamped frame from the external image source.
// The engine never takes ownership of Pixels; it copies what it retains.
type StampedImage struct {
	Timestamp time.Time
	Pixels    gocv.Mat
}

// World is the top-level façade: it owns the ordered sequence of Maps
// opened over a session, the starting calibration, the reusable Tracker,
// and the shared Tuning. It decides when tracking has been lost and a new
// Map must be opened.
type World struct {
	mu sync.RWMutex

	calibration Calibration
	tuning      Tuning
	tracker     tracking.Tracker

	maps  []*Map
	stats SessionStats
}

// Option configures a World at construction time.
type Option func(*World)

// WithTuning overrides the default tuning table.
func WithTuning(t Tuning) Option {
	return func(w *World) { w.tuning = t }
}

// WithTracker overrides the Tracker implementation constructed from
// tuning.TrackerKind.
func WithTracker(t tracking.Tracker) Option {
	return func(w *World) { w.tracker = t }
}

// NewWorld constructs a World from a validated Calibration. An initial
// empty Map is opened immediately at the calibration's starting pose.
func NewWorld(calibration Calibration, opts ...Option) (*World, error) {
	start, err := calibration.StartProjection()
	if err != nil {
		return nil, fmt.Errorf("stereoslam: invalid calibration: %w", err)
	}

	w := &World{
		calibration: calibration,
		tuning:      DefaultTuning(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.tracker == nil {
		w.tracker = newTrackerFromKind(w.tuning.TrackerKind)
	}

	w.maps = append(w.maps, newMap(start, w.tracker, w.tuning))
	return w, nil
}

func newTrackerFromKind(kind string) tracking.Tracker {
	switch kind {
	case "features":
		return tracking.NewFeatureTracker()
	default:
		return tracking.NewFlowTracker()
	}
}

// Track ingests one stereo pair. If the active map reports a track
// failure and has closed itself, World opens a fresh empty Map whose starting
// projection equals the last known pose, so the next pair starts a new
// track from where the old one left off.
func (w *World) Track(left, right StampedImage) (TrackOutcome, error) {
	if outcome, skip := validateStereoPair(left, right); skip {
		logf("skipping pair at %s: %s", left.Timestamp.Format(time.RFC3339Nano), outcome.Reason)
		w.recordOutcome(outcome)
		return outcome, nil
	}

	w.mu.RLock()
	active := w.maps[len(w.maps)-1]
	w.mu.RUnlock()

	outcome, err := active.Track(left.Pixels, right.Pixels, left.Timestamp)
	if err != nil {
		return outcome, err
	}

	w.recordOutcome(outcome)

	if !outcome.OK && active.State() == MapClosed {
		w.openContinuationMap(active)
	}
	return outcome, nil
}

// validateStereoPair screens out empty and size-mismatched pairs before
// they reach the tracking pipeline: such a pair is skipped with a
// recoverable warning and the pose is not advanced.
func validateStereoPair(left, right StampedImage) (TrackOutcome, bool) {
	if left.Pixels.Empty() || right.Pixels.Empty() {
		return TrackOutcome{OK: false, Reason: "stereo pair has an empty image"}, true
	}
	if left.Pixels.Rows() != right.Pixels.Rows() || left.Pixels.Cols() != right.Pixels.Cols() {
		return TrackOutcome{OK: false, Reason: fmt.Sprintf(
			"stereo pair size mismatch: left %dx%d, right %dx%d",
			left.Pixels.Cols(), left.Pixels.Rows(), right.Pixels.Cols(), right.Pixels.Rows(),
		)}, true
	}
	return TrackOutcome{}, false
}

func (w *World) recordOutcome(outcome TrackOutcome) {
	w.mu.Lock()
	w.stats.record(outcome)
	w.mu.Unlock()
}

// openContinuationMap opens a new Map starting at closed's last known
// pose and records a discontinuity marker in the session stats
// (SessionStats.MapBoundaries). Path() itself carries no marker between
// the two tracks.
func (w *World) openContinuationMap(closed *Map) {
	w.mu.Lock()
	defer w.mu.Unlock()

	lastPose := closed.startProjection
	if kfs := closed.Keyframes(); len(kfs) > 0 {
		lastPose = kfs[len(kfs)-1].ProjectionMatrix().Clone()
	}
	w.maps = append(w.maps, newMap(lastPose, w.tracker, w.tuning))
	w.stats.recordMapBoundary(len(w.maps) - 1)
}

// Path returns the ordered poses of every keyframe across every Map opened
// this session.
func (w *World) Path() []StereoCameraMatrix {
	w.mu.RLock()
	maps := append([]*Map(nil), w.maps...)
	w.mu.RUnlock()

	var out []StereoCameraMatrix
	for _, m := range maps {
		for _, kf := range m.Keyframes() {
			out = append(out, kf.ProjectionMatrix())
		}
	}
	return out
}

// SparseCloud returns every live MapPoint across every Map, flattened and
// colored.
func (w *World) SparseCloud() []ColorPoint3d {
	w.mu.RLock()
	maps := append([]*Map(nil), w.maps...)
	w.mu.RUnlock()

	var out []ColorPoint3d
	for _, m := range maps {
		for _, mp := range m.MapPoints() {
			out = append(out, ColorPoint3d{Point: mp.Position, Color: mp.Color})
		}
	}
	return out
}

// Frames returns every retained StereoFrame across every Map, an
// iteration-safe snapshot taken under read locks.
func (w *World) Frames() []*StereoFrame {
	w.mu.RLock()
	maps := append([]*Map(nil), w.maps...)
	w.mu.RUnlock()

	var out []*StereoFrame
	for _, m := range maps {
		out = append(out, m.Keyframes()...)
	}
	return out
}

// Stats returns the session's accumulated diagnostics.
func (w *World) Stats() SessionStats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats.snapshot()
}

// Maps returns a snapshot of the ordered sequence of Maps opened this
// session, for callers that need per-map detail
// World.Path/SparseCloud flatten away.
func (w *World) Maps() []*Map {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]*Map(nil), w.maps...)
}

// Close drains every map's in-flight bundle adjustment and releases the
// tracker's resources. The World must not be used after Close.
func (w *World) Close() error {
	for _, m := range w.Maps() {
		m.WaitForAdjust()
	}
	if closer, ok := w.tracker.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
