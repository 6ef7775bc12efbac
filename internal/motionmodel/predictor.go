// Package motionmodel predicts the rig's next pose from its recent pose
// history, seeding PnP with an initial guess. The temporal tracker's
// search is not narrowed by it. It is additive only: PnP still recovers the
// authoritative pose from 2D-3D correspondences, the predictor only
// supplies a starting point. No inertial sensor is consulted here, only
// the rig's own pose history, so this does not reopen IMU fusion.
package motionmodel

import (
	"gonum.org/v1/gonum/mat"
)

// Predictor runs a constant-velocity filter over the rig's left-camera
// translation across successive pairs. Rotation is predicted by holding
// the last observed orientation: most frame-to-frame rotation in a
// vehicle/handheld rig is small enough that zero rotational velocity is a
// safe default and avoids the singularities of differentiating
// axis-angle vectors.
type Predictor struct {
	filter       *constVelocityFilter
	lastRotation *mat.Dense // 3x3, held constant between updates
	initialized  bool
}

// NewPredictor constructs a Predictor. dt is the nominal time between
// consecutive pairs, used as the constant-velocity step; it need not be
// exact, since PnP corrects any drift every frame.
func NewPredictor(dt float64) *Predictor {
	return &Predictor{filter: newConstVelocityFilter(dt)}
}

// Predict returns the predicted (rotation, translation) for the next pose,
// or (nil, nil, false) if no observation has been recorded yet.
func (p *Predictor) Predict() (*mat.Dense, *mat.Dense, bool) {
	if !p.initialized {
		return nil, nil, false
	}
	p.filter.predict()
	pos := p.filter.pos
	translation := mat.NewDense(3, 1, []float64{pos[0], pos[1], pos[2]})
	return p.lastRotation, translation, true
}

// Observe folds a newly recovered pose (from PnP) back into the filter,
// per the standard predict/update cycle: call Predict before PnP to seed
// it, then Observe after PnP succeeds to correct the filter's state.
func (p *Predictor) Observe(rotation, translation *mat.Dense) {
	z := [3]float64{translation.At(0, 0), translation.At(1, 0), translation.At(2, 0)}
	if !p.initialized {
		p.filter.reset(z)
		p.initialized = true
	} else {
		p.filter.update(z)
	}
	p.lastRotation = mat.DenseCopyOf(rotation)
}
