package traj

import (
	"math"

	"github.com/gonum/matrix/mat64"
)

const pivotε = 1e-15

// SolveCorrection solves J Δx = r for the Newton correction, dispatching on
// the shape of J. Square systems use Gaussian elimination with partial
// pivoting; near-zero pivots are skipped so rank-deficient systems degrade
// to a partial correction instead of failing. Under-determined systems return
// the damped minimum-norm solution Jᵀ(JJᵀ+λI)⁻¹r and over-determined systems
// the damped least-squares solution of (JᵀJ+λI)Δx = Jᵀr.
func SolveCorrection(J *mat64.Dense, r []float64, damping float64) []float64 {
	m, n := J.Dims()
	switch {
	case m == n:
		return gaussSolve(J, r)
	case m < n:
		// JJᵀ is m×m
		var JJT mat64.Dense
		JJT.Mul(J, J.T())
		for i := 0; i < m; i++ {
			JJT.Set(i, i, JJT.At(i, i)+damping)
		}
		y := gaussSolve(&JJT, r)
		dx := make([]float64, n)
		for j := 0; j < n; j++ {
			sum := 0.0
			for i := 0; i < m; i++ {
				sum += J.At(i, j) * y[i]
			}
			dx[j] = sum
		}
		return dx
	default:
		// JᵀJ is n×n
		var JTJ mat64.Dense
		JTJ.Mul(J.T(), J)
		for i := 0; i < n; i++ {
			JTJ.Set(i, i, JTJ.At(i, i)+damping)
		}
		JTr := make([]float64, n)
		for i := 0; i < n; i++ {
			sum := 0.0
			for k := 0; k < m; k++ {
				sum += J.At(k, i) * r[k]
			}
			JTr[i] = sum
		}
		return gaussSolve(&JTJ, JTr)
	}
}

// gaussSolve solves the square system Ax = b by Gaussian elimination with
// partial pivoting. Pivots below pivotε are skipped and the corresponding
// unknowns set to zero. Neither input is mutated.
func gaussSolve(A *mat64.Dense, b []float64) []float64 {
	n := len(b)
	// Augmented working copy
	aug := mat64.NewDense(n, n+1, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			aug.Set(i, j, A.At(i, j))
		}
		aug.Set(i, n, b[i])
	}

	for col := 0; col < n; col++ {
		maxRow := col
		maxVal := math.Abs(aug.At(col, col))
		for row := col + 1; row < n; row++ {
			if v := math.Abs(aug.At(row, col)); v > maxVal {
				maxVal = v
				maxRow = row
			}
		}
		if maxRow != col {
			for k := 0; k <= n; k++ {
				tmp := aug.At(col, k)
				aug.Set(col, k, aug.At(maxRow, k))
				aug.Set(maxRow, k, tmp)
			}
		}
		if math.Abs(aug.At(col, col)) < pivotε {
			continue
		}
		for row := col + 1; row < n; row++ {
			factor := aug.At(row, col) / aug.At(col, col)
			for k := col; k <= n; k++ {
				aug.Set(row, k, aug.At(row, k)-factor*aug.At(col, k))
			}
		}
	}

	dx := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		if math.Abs(aug.At(i, i)) < pivotε {
			dx[i] = 0
			continue
		}
		sum := aug.At(i, n)
		for j := i + 1; j < n; j++ {
			sum -= aug.At(i, j) * dx[j]
		}
		dx[i] = sum / aug.At(i, i)
	}
	return dx
}
