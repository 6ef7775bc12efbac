package stereoslam

import (
	"gonum.org/v1/gonum/mat"

	"github.com/oakfield-robotics/stereoslam/bundle"
	"github.com/oakfield-robotics/stereoslam/geometry"
)

// baSnapshot ties a bundle.Window copy to the live keyframes and landmarks
// it was taken from, so the optimizer can write the refined values back
// onto the graph once the iterations finish.
type baSnapshot struct {
	win       bundle.Window
	keyframes []*StereoFrame
	mapPoints []*MapPoint
}

// scheduleAdjustLocked snapshots the last n keyframes (and every MapPoint
// any of them observes) and hands the snapshot to the optimizer
// goroutine. The caller holds the map's write lock, which makes the
// snapshot atomic; the Levenberg-Marquardt iterations then run without
// blocking ingest, and the refined poses and positions are written back
// under a fresh write lock. Observers may read a pose that is about to be
// refined; the keyframe sequence itself never reorders.
func (m *Map) scheduleAdjustLocked(n int) {
	snap := m.snapshotWindowLocked(n)
	if snap == nil {
		return
	}
	m.baWG.Add(1)
	go func() {
		defer m.baWG.Done()
		m.runAdjust(snap)
	}()
}

// adjustLast is the synchronous form of scheduleAdjustLocked, for callers
// (and tests) that need the refinement completed before reading poses.
func (m *Map) adjustLast(n int) {
	m.mu.Lock()
	snap := m.snapshotWindowLocked(n)
	m.mu.Unlock()
	if snap == nil {
		return
	}
	m.runAdjust(snap)
}

// WaitForAdjust blocks until every scheduled adjustment has written back.
func (m *Map) WaitForAdjust() {
	m.baWG.Wait()
}

// snapshotWindowLocked copies the last n keyframes' poses and observed
// landmarks into a bundle.Window. The oldest keyframe in the window is the
// anchor and stays fixed. Returns nil when the window is too small to
// constrain anything.
func (m *Map) snapshotWindowLocked(n int) *baSnapshot {
	if n < 2 || len(m.keyframes) < 2 {
		return nil
	}
	start := len(m.keyframes) - n
	if start < 0 {
		start = 0
	}
	window := m.keyframes[start:]

	landmarkIndex := make(map[mapPointHandle]int)
	var landmarks []bundle.Landmark
	var mapPoints []*MapPoint

	observationIndex := func(mp *MapPoint) int {
		idx, ok := landmarkIndex[mp.self]
		if ok {
			return idx
		}
		idx = len(landmarks)
		landmarkIndex[mp.self] = idx
		landmarks = append(landmarks, bundle.Landmark{Position: [3]float64{mp.Position.X, mp.Position.Y, mp.Position.Z}})
		mapPoints = append(mapPoints, mp)
		return idx
	}

	frames := make([]bundle.Frame, len(window))
	var observations []bundle.Observation
	var isRight []bool

	for i, kf := range window {
		frames[i] = bundle.Frame{
			Rotation:    geometry.AxisAngleFromRotation(kf.left.projection.Rotation()),
			Translation: vecOf(kf.left.projection.Translation()),
			Fixed:       i == 0,
		}
		for _, fp := range kf.left.Points() {
			if mp := fp.MapPoint(); mp != nil {
				observations = append(observations, bundle.Observation{
					FrameIndex:    i,
					LandmarkIndex: observationIndex(mp),
					Pixel:         [2]float64{fp.Pixel().X, fp.Pixel().Y},
				})
				isRight = append(isRight, false)
			}
		}
		for _, fp := range kf.right.Points() {
			if mp := fp.MapPoint(); mp != nil {
				observations = append(observations, bundle.Observation{
					FrameIndex:    i,
					LandmarkIndex: observationIndex(mp),
					Pixel:         [2]float64{fp.Pixel().X, fp.Pixel().Y},
				})
				isRight = append(isRight, true)
			}
		}
	}
	if len(landmarks) == 0 || len(observations) == 0 {
		return nil
	}

	rig := newRigidBaseline(m.startProjection)
	return &baSnapshot{
		win: bundle.Window{
			Rig: bundle.Rig{
				LeftK:          intrinsicsVec(window[0].left.projection),
				RightK:         intrinsicsVec(window[0].right.projection),
				RightFromLeftR: matToArray9(rig.Rel),
				RightFromLeftT: vecOf(rig.Tel),
			},
			Frames:       frames,
			Landmarks:    landmarks,
			Observations: observations,
			IsRight:      isRight,
		},
		keyframes: append([]*StereoFrame(nil), window...),
		mapPoints: mapPoints,
	}
}

// runAdjust executes one adjustment over snap. Runs are serialized so two
// overlapping windows never interleave their write-backs.
func (m *Map) runAdjust(snap *baSnapshot) {
	m.baMu.Lock()
	defer m.baMu.Unlock()

	report, err := m.adjuster.Adjust(&snap.win, m.tuning.BAMaxIterations)
	if err != nil {
		logf("bundle adjustment failed: %v", err)
		return
	}
	if !report.Converged {
		logf("bundle adjustment did not converge after %d iterations (cost %.4f -> %.4f); keeping last iterate", report.Iterations, report.InitialCost, report.FinalCost)
	}

	m.mu.Lock()
	m.writeBackLocked(snap)
	m.mu.Unlock()
}

// writeBackLocked publishes the refined poses and landmark positions onto
// the live graph.
func (m *Map) writeBackLocked(snap *baSnapshot) {
	for i, kf := range snap.keyframes {
		if snap.win.Frames[i].Fixed {
			continue
		}
		rotation := geometry.RotationFromAxisAngle(snap.win.Frames[i].Rotation)
		translation := mat.NewDense(3, 1, snap.win.Frames[i].Translation[:])
		kf.left.projection.SetPose(rotation, translation)
		rightPose := applyRigidBaseline(rotation, translation, m.startProjection)
		kf.right.projection.SetPose(rightPose.Rotation(), rightPose.Translation())
	}
	for i, mp := range snap.mapPoints {
		if m.points.get(mp.self) == nil {
			continue // pruned while the optimizer ran
		}
		pos := snap.win.Landmarks[i].Position
		mp.update(Point3d{X: pos[0], Y: pos[1], Z: pos[2]}, mp.Color)
	}
}

func vecOf(m *mat.Dense) [3]float64 {
	return [3]float64{m.At(0, 0), m.At(1, 0), m.At(2, 0)}
}

func intrinsicsVec(p *ProjectionMatrix) [4]float64 {
	return [4]float64{p.Fx(), p.Fy(), p.Cx(), p.Cy()}
}

func matToArray9(m *mat.Dense) [9]float64 {
	var out [9]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i*3+j] = m.At(i, j)
		}
	}
	return out
}
