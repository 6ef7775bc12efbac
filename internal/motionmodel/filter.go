package motionmodel

import (
	"gonum.org/v1/gonum/mat"
)

// constVelocityFilter estimates a 3-vector and its velocity from
// position-only measurements under a constant-velocity motion model. The
// Kalman predict/update cycle is written out in the position/velocity
// block structure this one model has — the transition is
// [[I, dt*I], [0, I]] and the measurement picks off the position — so the
// covariance lives as three 3x3 blocks instead of a generic 6x6 matrix,
// and the prediction step needs no matrix products at all.
type constVelocityFilter struct {
	dt float64

	pos, vel [3]float64

	// Covariance blocks of the stacked (position, velocity) state. The
	// velocity-position block is ppv's transpose throughout, which both
	// the predict and update formulas preserve.
	ppp, ppv, pvv *mat.Dense

	// processNoise inflates both diagonal blocks each predict;
	// measurementNoise is the (diagonal) position-measurement covariance.
	processNoise     float64
	measurementNoise float64
}

func newConstVelocityFilter(dt float64) *constVelocityFilter {
	return &constVelocityFilter{
		dt:               dt,
		ppp:              diag3(1),
		ppv:              mat.NewDense(3, 3, nil),
		pvv:              diag3(1),
		processNoise:     1,
		measurementNoise: 1,
	}
}

func diag3(v float64) *mat.Dense {
	return mat.NewDense(3, 3, []float64{v, 0, 0, 0, v, 0, 0, 0, v})
}

func addDiag(m *mat.Dense, v float64) {
	for i := 0; i < 3; i++ {
		m.Set(i, i, m.At(i, i)+v)
	}
}

// reset pins the state to a first position fix with zero velocity and
// restores the initial uncertainty.
func (f *constVelocityFilter) reset(pos [3]float64) {
	f.pos = pos
	f.vel = [3]float64{}
	f.ppp = diag3(1)
	f.ppv = mat.NewDense(3, 3, nil)
	f.pvv = diag3(1)
}

// predict advances one step of the constant-velocity model:
//
//	pos += dt * vel
//	Ppp += dt*(Ppv + Ppv') + dt^2 * Pvv + q*I
//	Ppv += dt * Pvv
//	Pvv += q*I
//
// which is F P F' + Q spelled out for F = [[I, dt*I], [0, I]].
func (f *constVelocityFilter) predict() {
	for i := range f.pos {
		f.pos[i] += f.dt * f.vel[i]
	}

	var dtPvv mat.Dense
	dtPvv.Scale(f.dt, f.pvv)

	var sym mat.Dense
	sym.Add(f.ppv, f.ppv.T())
	sym.Scale(f.dt, &sym)

	var dt2Pvv mat.Dense
	dt2Pvv.Scale(f.dt, &dtPvv)

	f.ppp.Add(f.ppp, &sym)
	f.ppp.Add(f.ppp, &dt2Pvv)
	addDiag(f.ppp, f.processNoise)

	f.ppv.Add(f.ppv, &dtPvv)
	addDiag(f.pvv, f.processNoise)
}

// update folds a position measurement into the state. With the
// measurement reading off the position block, the innovation covariance
// is S = Ppp + r*I and the gain splits into a position part Kp = Ppp*S^-1
// and a velocity part Kv = Ppv'*S^-1. A singular S skips the update and
// lets the prediction stand.
func (f *constVelocityFilter) update(z [3]float64) {
	s := mat.DenseCopyOf(f.ppp)
	addDiag(s, f.measurementNoise)
	var sInv mat.Dense
	if err := sInv.Inverse(s); err != nil {
		return
	}

	var kp, kv mat.Dense
	kp.Mul(f.ppp, &sInv)
	kv.Mul(f.ppv.T(), &sInv)

	innovation := [3]float64{z[0] - f.pos[0], z[1] - f.pos[1], z[2] - f.pos[2]}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			f.pos[i] += kp.At(i, j) * innovation[j]
			f.vel[i] += kv.At(i, j) * innovation[j]
		}
	}

	// (I - K H) P, blockwise: the position rows lose Kp times the old
	// position blocks, the velocity block loses Kv times Ppv.
	var kpPpp, kpPpv, kvPpv mat.Dense
	kpPpp.Mul(&kp, f.ppp)
	kpPpv.Mul(&kp, f.ppv)
	kvPpv.Mul(&kv, f.ppv)

	f.ppp.Sub(f.ppp, &kpPpp)
	f.ppv.Sub(f.ppv, &kpPpv)
	f.pvv.Sub(f.pvv, &kvPpv)
}
