// Package scipy hosts the small numeric helpers the feature-matching path
// is built on: pairwise descriptor distances and optimal assignment.
package scipy

import (
	"fmt"
	"math"
	"math/bits"

	"gonum.org/v1/gonum/mat"
)

// Metric selects the distance function Cdist applies to each row pair.
type Metric string

const (
	// MetricEuclidean is the L2 distance, the default for float-valued
	// descriptor vectors.
	MetricEuclidean Metric = "euclidean"

	// MetricSqEuclidean is the squared L2 distance; cheaper when only the
	// ordering matters.
	MetricSqEuclidean Metric = "sqeuclidean"

	// MetricHamming counts differing bits, treating each entry as a byte.
	// The natural metric for binary descriptors such as ORB's.
	MetricHamming Metric = "hamming"
)

// Cdist computes the pairwise distance matrix between the rows of XA
// (m x n) and the rows of XB (p x n), returning an m x p matrix. It panics
// on mismatched column counts or an unknown metric; both are programming
// errors, not data conditions.
func Cdist(XA, XB *mat.Dense, metric Metric) *mat.Dense {
	rowsA, colsA := XA.Dims()
	rowsB, colsB := XB.Dims()
	if colsA != colsB {
		panic(fmt.Sprintf("scipy: Cdist row width mismatch: %d vs %d", colsA, colsB))
	}

	dist := rowDistance(metric)
	result := mat.NewDense(rowsA, rowsB, nil)
	for i := 0; i < rowsA; i++ {
		rowA := XA.RawRowView(i)
		for j := 0; j < rowsB; j++ {
			result.Set(i, j, dist(rowA, XB.RawRowView(j)))
		}
	}
	return result
}

func rowDistance(metric Metric) func(a, b []float64) float64 {
	switch metric {
	case MetricEuclidean:
		return func(a, b []float64) float64 {
			return math.Sqrt(sqEuclidean(a, b))
		}
	case MetricSqEuclidean:
		return sqEuclidean
	case MetricHamming:
		return hammingBits
	default:
		panic(fmt.Sprintf("scipy: unsupported metric %q", metric))
	}
}

func sqEuclidean(a, b []float64) float64 {
	var sum float64
	for k := range a {
		diff := a[k] - b[k]
		sum += diff * diff
	}
	return sum
}

// hammingBits counts differing bits across byte-valued entries. Values are
// truncated to their low 8 bits, matching the CV_8U descriptor rows this
// package sees.
func hammingBits(a, b []float64) float64 {
	var sum int
	for k := range a {
		sum += bits.OnesCount8(uint8(a[k]) ^ uint8(b[k]))
	}
	return float64(sum)
}
