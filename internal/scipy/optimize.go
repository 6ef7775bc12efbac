package scipy

import (
	hungarian "github.com/arthurkushman/go-hungarian"
)

// Assignment is one matched (row, column) index pair from
// LinearSumAssignment.
type Assignment struct {
	RowIdx int
	ColIdx int
}

// LinearSumAssignment finds the assignment between two sets that minimizes
// total cost, then rejects individual assignments costing more than
// maxCost. Rectangular matrices are padded to square with zero-profit dummy
// entries; assignments landing on padding are filtered out along with the
// over-threshold ones. Returns the surviving assignments plus the row and
// column indices left unmatched.
//
// The underlying solver is github.com/arthurkushman/go-hungarian, which
// maximizes profit, so costs are flipped around an offset above the largest
// entry before solving.
func LinearSumAssignment(costMatrix [][]float64, maxCost float64) ([]Assignment, []int, []int) {
	numRows := len(costMatrix)
	if numRows == 0 {
		return nil, nil, nil
	}
	numCols := len(costMatrix[0])
	if numCols == 0 {
		unmatchedRows := make([]int, numRows)
		for i := range unmatchedRows {
			unmatchedRows[i] = i
		}
		return nil, unmatchedRows, nil
	}

	maxProfit := 1.0
	for _, row := range costMatrix {
		for _, c := range row {
			if c+1 > maxProfit {
				maxProfit = c + 1
			}
		}
	}

	size := numRows
	if numCols > size {
		size = numCols
	}
	profitMatrix := make([][]float64, size)
	for i := range profitMatrix {
		profitMatrix[i] = make([]float64, size)
		for j := range profitMatrix[i] {
			if i < numRows && j < numCols {
				profitMatrix[i][j] = maxProfit - costMatrix[i][j]
			}
		}
	}

	result := hungarian.SolveMax(profitMatrix)

	var assignments []Assignment
	matchedRows := make(map[int]bool)
	matchedCols := make(map[int]bool)
	for rowIdx, cols := range result {
		for colIdx, profit := range cols {
			cost := maxProfit - profit
			if rowIdx < numRows && colIdx < numCols && cost <= maxCost {
				assignments = append(assignments, Assignment{RowIdx: rowIdx, ColIdx: colIdx})
				matchedRows[rowIdx] = true
				matchedCols[colIdx] = true
			}
		}
	}

	var unmatchedRows, unmatchedCols []int
	for i := 0; i < numRows; i++ {
		if !matchedRows[i] {
			unmatchedRows = append(unmatchedRows, i)
		}
	}
	for j := 0; j < numCols; j++ {
		if !matchedCols[j] {
			unmatchedCols = append(unmatchedCols, j)
		}
	}

	return assignments, unmatchedRows, unmatchedCols
}
