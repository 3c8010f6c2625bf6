package volatility

import (
	"errors"
	"math"
)

// errSingular is returned when the normal equations cannot be solved.
var errSingular = errors.New("singular system")

// polyfit returns least-squares coefficients c0..c_degree of
// y = c0 + c1*x + ... + c_degree*x^degree.
func polyfit(xs, ys []float64, degree int) ([]float64, error) {
	n := degree + 1
	if len(xs) != len(ys) || len(xs) < n {
		return nil, errSingular
	}

	// Normal equations: (XᵀX) c = Xᵀy, augmented as an n x (n+1) matrix.
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n+1)
	}
	for k, x := range xs {
		pow := make([]float64, 2*n-1)
		pow[0] = 1
		for p := 1; p < len(pow); p++ {
			pow[p] = pow[p-1] * x
		}
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				m[i][j] += pow[i+j]
			}
			m[i][n] += pow[i] * ys[k]
		}
	}

	// Gaussian elimination with partial pivoting.
	for col := 0; col < n; col++ {
		pivot := col
		for r := col + 1; r < n; r++ {
			if math.Abs(m[r][col]) > math.Abs(m[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(m[pivot][col]) < 1e-12 {
			return nil, errSingular
		}
		m[col], m[pivot] = m[pivot], m[col]
		for r := col + 1; r < n; r++ {
			f := m[r][col] / m[col][col]
			for c := col; c <= n; c++ {
				m[r][c] -= f * m[col][c]
			}
		}
	}

	coef := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		sum := m[i][n]
		for j := i + 1; j < n; j++ {
			sum -= m[i][j] * coef[j]
		}
		coef[i] = sum / m[i][i]
		if math.IsNaN(coef[i]) || math.IsInf(coef[i], 0) {
			return nil, errSingular
		}
	}
	return coef, nil
}

// polyval evaluates coefficients from polyfit at x.
func polyval(coef []float64, x float64) float64 {
	y := 0.0
	for i := len(coef) - 1; i >= 0; i-- {
		y = y*x + coef[i]
	}
	return y
}
