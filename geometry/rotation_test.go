package geometry

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/oakfield-robotics/stereoslam/internal/testutil"
)

func TestRotationFromAxisAngleIdentity(t *testing.T) {
	r := RotationFromAxisAngle([3]float64{})
	identity := mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
	testutil.AssertMatrixAlmostEqual(t, r, identity, 1e-12, "zero vector maps to identity")
}

func TestRotationFromAxisAngleQuarterTurnZ(t *testing.T) {
	r := RotationFromAxisAngle([3]float64{0, 0, math.Pi / 2})
	want := mat.NewDense(3, 3, []float64{
		0, -1, 0,
		1, 0, 0,
		0, 0, 1,
	})
	testutil.AssertMatrixAlmostEqual(t, r, want, 1e-12, "quarter turn about z")
}

func TestAxisAngleRoundTrip(t *testing.T) {
	cases := [][3]float64{
		{0.1, 0, 0},
		{0, -0.2, 0.05},
		{0.3, 0.2, -0.1},
		{1.2, -0.7, 0.4},
	}
	for _, v := range cases {
		got := AxisAngleFromRotation(RotationFromAxisAngle(v))
		for i := 0; i < 3; i++ {
			testutil.AssertAlmostEqual(t, got[i], v[i], 1e-9, "axis-angle component")
		}
	}
}

func TestRotationIsOrthonormal(t *testing.T) {
	r := RotationFromAxisAngle([3]float64{0.4, -0.3, 0.8})
	var rtr mat.Dense
	rtr.Mul(r.T(), r)
	identity := mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
	testutil.AssertMatrixAlmostEqual(t, &rtr, identity, 1e-12, "R'R = I")
	testutil.AssertAlmostEqual(t, mat.Det(r), 1, 1e-12, "det(R) = 1")
}
