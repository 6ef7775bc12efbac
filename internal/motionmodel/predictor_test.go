package motionmodel

import (
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/oakfield-robotics/stereoslam/internal/testutil"
)

func identityRotation() *mat.Dense {
	return mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
}

func TestPredictBeforeAnyObserveReturnsFalse(t *testing.T) {
	p := NewPredictor(0.1)
	rotation, translation, ok := p.Predict()
	if ok || rotation != nil || translation != nil {
		t.Fatalf("Predict() before any Observe = (%v, %v, %v), want (nil, nil, false)", rotation, translation, ok)
	}
}

func TestPredictAfterSingleObserveHoldsPosition(t *testing.T) {
	p := NewPredictor(0.1)
	translation := mat.NewDense(3, 1, []float64{1, 2, 3})
	p.Observe(identityRotation(), translation)

	rotation, predicted, ok := p.Predict()
	if !ok {
		t.Fatal("expected Predict to succeed after one Observe")
	}
	testutil.AssertMatrixAlmostEqual(t, predicted, translation, 1e-9, "predicted translation with zero initial velocity")
	testutil.AssertMatrixAlmostEqual(t, rotation, identityRotation(), 1e-9, "held rotation")
}

func TestObserveUpdatesHeldRotation(t *testing.T) {
	p := NewPredictor(0.1)
	p.Observe(identityRotation(), mat.NewDense(3, 1, []float64{0, 0, 0}))

	turned := mat.NewDense(3, 3, []float64{0, -1, 0, 1, 0, 0, 0, 0, 1})
	p.Observe(turned, mat.NewDense(3, 1, []float64{0, 0, 1}))

	rotation, _, ok := p.Predict()
	if !ok {
		t.Fatal("expected Predict to succeed after two Observe calls")
	}
	testutil.AssertMatrixAlmostEqual(t, rotation, turned, 1e-9, "most recently observed rotation")
}

func TestObserveDoesNotAliasCallerRotation(t *testing.T) {
	p := NewPredictor(0.1)
	rotation := identityRotation()
	p.Observe(rotation, mat.NewDense(3, 1, []float64{0, 0, 0}))

	rotation.Set(0, 0, 99)

	held, _, _ := p.Predict()
	if held.At(0, 0) == 99 {
		t.Fatal("Predictor must keep its own copy of the observed rotation, not alias the caller's matrix")
	}
}
