package stereoslam

import (
	"errors"
	"math"
	"testing"
	"time"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/mat"

	"github.com/oakfield-robotics/stereoslam/geometry"
	"github.com/oakfield-robotics/stereoslam/tracking"
)

// evenSteps returns n evenly spaced values covering [lo, hi].
func evenSteps(lo, hi float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = lo + (hi-lo)*float64(i)/float64(n-1)
	}
	return out
}

// cubeScene lays synthetic landmarks on a grid in front of the rig.
func cubeScene() []Point3d {
	xs := evenSteps(-1, 1, 8)
	ys := evenSteps(-0.8, 0.8, 8)
	zs := evenSteps(4, 6, 5)
	var out []Point3d
	for i, x := range xs {
		for j, y := range ys {
			out = append(out, Point3d{X: x, Y: y, Z: zs[(i+j)%len(zs)]})
		}
	}
	return out
}

// rigSimTracker plays the role of both the image source and the tracker
// over a known scene and a scripted rig trajectory: it answers every
// tracker call with the exact projections of the scene at the current
// scripted pose. Stereo calls are distinguished from temporal calls by the
// target image's width (the tests build right-camera images one column
// wider). Correspondences are resolved geometrically (nearest projected
// scene point to each seed), so it tolerates the pipeline's own filtering
// between calls.
type rigSimTracker struct {
	scene []Point3d
	start StereoCameraMatrix

	// forwardStep is the rig's forward motion per pair along +z.
	forwardStep float64

	// pair counts how many pairs the simulated rig has advanced through;
	// it increments on each temporal-match call.
	pair int

	// fail makes every subsequent Track call report tracking loss.
	fail bool
}

func (s *rigSimTracker) leftAt(pair int) *ProjectionMatrix {
	p := s.start.Left.Clone()
	identity := mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
	t := mat.NewDense(3, 1, []float64{0, 0, -s.forwardStep * float64(pair)})
	p.SetPose(identity, t)
	return p
}

func (s *rigSimTracker) rightAt(pair int) *ProjectionMatrix {
	left := s.leftAt(pair)
	pose := applyRigidBaseline(left.Rotation(), left.Translation(), s.start)
	p := s.start.Right.Clone()
	p.SetPose(pose.Rotation(), pose.Translation())
	return p
}

func (s *rigSimTracker) ExtractPoints(gocv.Mat) ([]geometry.Point2d, error) {
	proj := s.leftAt(s.pair)
	var out []geometry.Point2d
	for _, p := range s.scene {
		if pixel, err := proj.Project(p); err == nil {
			out = append(out, pixel)
		}
	}
	return out, nil
}

func (s *rigSimTracker) Track(prev, next gocv.Mat, seeds []geometry.Point2d) ([]tracking.Match, []geometry.Point2d, *mat.Dense, error) {
	if s.fail {
		return nil, nil, nil, errNoCorrespondences
	}
	stereo := next.Cols() != prev.Cols()

	seedProj := s.leftAt(s.pair)
	if !stereo {
		s.pair++
	}
	var targetProj *ProjectionMatrix
	if stereo {
		targetProj = s.rightAt(s.pair)
	} else {
		targetProj = s.leftAt(s.pair)
	}

	var matches []tracking.Match
	var nextPoints []geometry.Point2d
	for i, seed := range seeds {
		sceneIdx := -1
		best := 0.5 // a seed must sit on a projected scene point
		for j, p := range s.scene {
			pixel, err := seedProj.Project(p)
			if err != nil {
				continue
			}
			if d := pixel.Sub(seed).Norm(); d < best {
				best = d
				sceneIdx = j
			}
		}
		if sceneIdx < 0 {
			continue
		}
		pixel, err := targetProj.Project(s.scene[sceneIdx])
		if err != nil {
			continue
		}
		nextPoints = append(nextPoints, pixel)
		matches = append(matches, tracking.Match{FromIndex: i, ToIndex: len(nextPoints) - 1})
	}
	return matches, nextPoints, nil, nil
}

var errNoCorrespondences = errors.New("simulated tracking loss")

func simImages() (gocv.Mat, gocv.Mat) {
	left := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8U)
	right := gocv.NewMatWithSize(480, 641, gocv.MatTypeCV8U)
	return left, right
}

func newSimMap(t *testing.T) (*Map, *rigSimTracker) {
	t.Helper()
	start := startStereo(t)
	sim := &rigSimTracker{scene: cubeScene(), start: start, forwardStep: 0.1}
	return newMap(start, sim, DefaultTuning()), sim
}

func TestFirstPairBootstrapsMap(t *testing.T) {
	m, _ := newSimMap(t)
	left, right := simImages()
	defer left.Close()
	defer right.Close()

	outcome, err := m.Track(left, right, time.Now())
	if err != nil {
		t.Fatalf("Track: %v", err)
	}
	if !outcome.OK || !outcome.KeyframeAdded {
		t.Fatalf("first pair outcome = %+v, want OK with a keyframe", outcome)
	}
	if m.State() != MapInitialized {
		t.Fatalf("map state = %v, want MapInitialized", m.State())
	}
	if got := len(m.MapPoints()); got < DefaultTuning().MinTrackPoints {
		t.Fatalf("only %d landmarks after bootstrap, want >= %d", got, DefaultTuning().MinTrackPoints)
	}

	kf := m.Keyframes()[0]
	if _, resident := kf.Left().Image(); resident {
		t.Fatal("keyframe promotion must release the raw image buffers")
	}

	// Stereo links must be mutual, and every landmark must reproject into
	// both observing cameras within the acceptance threshold.
	for _, fp := range kf.StereoPoints() {
		partner := fp.Stereo()
		if partner.Stereo() != fp {
			t.Fatal("stereo link is not symmetric")
		}
		mp := fp.MapPoint()
		if mp == nil {
			continue
		}
		for _, obs := range []*FramePoint{fp, partner} {
			pixel, err := obs.Frame().Projection().Project(mp.Position)
			if err != nil {
				t.Fatalf("landmark projects to infinity: %v", err)
			}
			if d := pixel.Sub(obs.Pixel()).Norm(); d > DefaultTuning().MaxReprojectionError {
				t.Fatalf("reprojection error %v exceeds the acceptance threshold", d)
			}
		}
	}
}

func TestSecondPairRecoversForwardMotion(t *testing.T) {
	m, sim := newSimMap(t)
	left, right := simImages()
	defer left.Close()
	defer right.Close()

	if outcome, err := m.Track(left, right, time.Now()); err != nil || !outcome.OK {
		t.Fatalf("first pair failed: %+v, %v", outcome, err)
	}

	left2, right2 := simImages()
	defer left2.Close()
	defer right2.Close()
	outcome, err := m.Track(left2, right2, time.Now())
	if err != nil {
		t.Fatalf("second pair: %v", err)
	}
	if !outcome.OK {
		t.Fatalf("second pair failed: %+v", outcome)
	}
	if outcome.InlierRatio < DefaultTuning().GoodTrackInliersRatio {
		t.Fatalf("noise-free correspondences gave inlier ratio %v", outcome.InlierRatio)
	}
	if outcome.KeyframeAdded {
		t.Fatal("a good track must not insert a keyframe")
	}

	if len(m.lastLeftPoints) == 0 {
		t.Fatal("no tracked points survived the second pair")
	}
	pose := m.lastLeftPoints[0].Frame().Projection()
	translation := pose.Translation()
	if d := math.Abs(translation.At(2, 0) - (-sim.forwardStep)); d > 5e-3 {
		t.Fatalf("recovered z translation = %v, want %v within 5e-3", translation.At(2, 0), -sim.forwardStep)
	}
	for _, i := range []int{0, 1} {
		if d := math.Abs(translation.At(i, 0)); d > 5e-3 {
			t.Fatalf("recovered translation[%d] = %v, want ~0", i, translation.At(i, 0))
		}
	}

	// Temporal links created by the pair must be mutual.
	for _, fp := range m.lastLeftPoints {
		if prev := fp.Prev(); prev != nil && prev.Next() != fp {
			t.Fatal("temporal link is not symmetric")
		}
	}

	// The keyframe sequence is unchanged: the pose-only pair is not
	// retained.
	if got := len(m.Keyframes()); got != 1 {
		t.Fatalf("keyframe count = %d, want 1", got)
	}
}

func TestTrackingLossClosesMap(t *testing.T) {
	m, sim := newSimMap(t)
	left, right := simImages()
	defer left.Close()
	defer right.Close()
	if outcome, err := m.Track(left, right, time.Now()); err != nil || !outcome.OK {
		t.Fatalf("first pair failed: %+v, %v", outcome, err)
	}

	sim.fail = true
	left2, right2 := simImages()
	defer left2.Close()
	defer right2.Close()
	outcome, err := m.Track(left2, right2, time.Now())
	if err != nil {
		t.Fatalf("Track: %v", err)
	}
	if outcome.OK {
		t.Fatal("expected tracking loss to be reported")
	}
	if m.State() != MapClosed {
		t.Fatalf("map state = %v, want MapClosed after tracking loss", m.State())
	}

	// A closed map refuses further pairs; the World opens a new one.
	if outcome, _ := m.Track(left2, right2, time.Now()); outcome.OK {
		t.Fatal("a closed map must refuse further tracking")
	}
}

func TestBaselineInvariantAcrossTrackedPairs(t *testing.T) {
	m, _ := newSimMap(t)
	left, right := simImages()
	defer left.Close()
	defer right.Close()
	if outcome, err := m.Track(left, right, time.Now()); err != nil || !outcome.OK {
		t.Fatalf("first pair failed: %+v, %v", outcome, err)
	}

	want := m.startBaseline
	for _, kf := range m.Keyframes() {
		got := kf.ProjectionMatrix().Baseline()
		if math.Abs(got-want) > 1e-9 {
			t.Fatalf("keyframe baseline = %v, want %v", got, want)
		}
	}
}
