package gcomp

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// maxCondition is the largest QR condition number accepted before ridging
const maxCondition = 1e12

// LinearModel is ordinary least squares with an intercept. Rank-deficient
// designs fall back to a ridge solve.
type LinearModel struct {
	ridge        float64
	interactions bool
	coef         []float64
	ridged       bool
}

// Ridged reports whether the last fit needed the ridge fallback
func (m *LinearModel) Ridged() bool {
	return m.ridged
}

// Coefficients returns the fitted coefficients, intercept first
func (m *LinearModel) Coefficients() []float64 {
	out := make([]float64, len(m.coef))
	copy(out, m.coef)
	return out
}

func (m *LinearModel) design(x []float64) []float64 {
	row := make([]float64, 0, 2*len(x))
	row = append(row, 1)
	row = append(row, x...)
	if m.interactions {
		for j := 1; j < len(x); j++ {
			row = append(row, x[0]*x[j])
		}
	}
	return row
}

// Fit solves the least-squares problem by QR
func (m *LinearModel) Fit(X [][]float64, y []float64) error {
	if err := checkTraining(X, y); err != nil {
		return err
	}
	n := len(X)
	p := len(m.design(X[0]))

	A := mat.NewDense(n, p, nil)
	for i, x := range X {
		A.SetRow(i, m.design(x))
	}
	b := mat.NewVecDense(n, append([]float64(nil), y...))

	m.ridged = false
	var beta mat.VecDense
	if !m.solveQR(A, b, n, p, &beta) {
		if err := m.solveRidge(A, b, p, &beta); err != nil {
			return fmt.Errorf("linear fit: %w", err)
		}
		m.ridged = true
	}

	m.coef = make([]float64, p)
	for j := range m.coef {
		m.coef[j] = beta.AtVec(j)
	}
	return nil
}

// solveQR reports false when the design is wide or badly conditioned
func (m *LinearModel) solveQR(A *mat.Dense, b *mat.VecDense, n, p int, beta *mat.VecDense) bool {
	if n < p {
		return false
	}
	var qr mat.QR
	qr.Factorize(A)
	if qr.Cond() > maxCondition {
		return false
	}
	return qr.SolveVecTo(beta, false, b) == nil
}

// solveRidge solves (AᵀA + λI)β = Aᵀb, leaving the intercept unpenalised
func (m *LinearModel) solveRidge(A *mat.Dense, b *mat.VecDense, p int, beta *mat.VecDense) error {
	var ata mat.Dense
	ata.Mul(A.T(), A)
	for j := 1; j < p; j++ {
		ata.Set(j, j, ata.At(j, j)+m.ridge)
	}
	var atb mat.VecDense
	atb.MulVec(A.T(), b)

	var chol mat.Cholesky
	if ok := chol.Factorize(mat.NewSymDense(p, symmetric(&ata, p))); ok {
		return chol.SolveVecTo(beta, &atb)
	}
	return beta.SolveVec(&ata, &atb)
}

func symmetric(a *mat.Dense, p int) []float64 {
	data := make([]float64, p*p)
	for i := 0; i < p; i++ {
		for j := 0; j < p; j++ {
			data[i*p+j] = (a.At(i, j) + a.At(j, i)) / 2
		}
	}
	return data
}

// Predict evaluates the fitted hyperplane
func (m *LinearModel) Predict(x []float64) float64 {
	row := m.design(x)
	var out float64
	for j, c := range m.coef {
		if j < len(row) {
			out += c * row[j]
		}
	}
	return out
}
