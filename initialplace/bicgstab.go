// Copyright 2025 The goplace Authors. SPDX-License-Identifier: Apache-2.0

// Package initialplace implements component G of spec.md §4.G: a
// bound-to-bound (B2B) quadratic wirelength approximation solved per
// axis with a hand-rolled BiCGSTAB sparse solver.
//
// The sparse matrix is assembled as per-row adjacency lists (Matrix)
// rather than reused from a third-party sparse package: none of the example
// repos' dependency graphs carry a sparse linear-algebra library (gonum's
// mat.Dense is dense-only), so the row-adjacency assembly and
// BiCGSTAB iteration here are written directly, grounded on
// original_source/src/gpl/src/initialPlace.cpp's updatePinInfo /
// createSparseMatrix / cpuSparseSolve sequence. See DESIGN.md.
package initialplace

import "math"

// Matrix is a symmetric sparse matrix in row-adjacency form: Diag[i] is
// A[i][i], and Off[i] holds the (column, value) off-diagonal entries of
// row i. Built once per axis per outer iteration by System, consumed by
// BiCGStab.
type Matrix struct {
	Diag []float64
	Off  [][]offEntry
}

type offEntry struct {
	col int
	val float64
}

// NewMatrix allocates an n×n zeroed sparse matrix.
func NewMatrix(n int) *Matrix {
	return &Matrix{Diag: make([]float64, n), Off: make([][]offEntry, n)}
}

// AddDiag accumulates into A[i][i].
func (m *Matrix) AddDiag(i int, v float64) { m.Diag[i] += v }

// AddOff accumulates into A[i][j] (i != j), merging with an existing
// entry for the same column if present.
func (m *Matrix) AddOff(i, j int, v float64) {
	row := m.Off[i]
	for k := range row {
		if row[k].col == j {
			row[k].val += v
			return
		}
	}
	m.Off[i] = append(m.Off[i], offEntry{col: j, val: v})
}

// MulVec computes y = A*x.
func (m *Matrix) MulVec(x, y []float64) {
	for i := range y {
		sum := m.Diag[i] * x[i]
		for _, e := range m.Off[i] {
			sum += e.val * x[e.col]
		}
		y[i] = sum
	}
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func norm2(a []float64) float64 { return math.Sqrt(dot(a, a)) }

// BiCGStab solves A*x = b via the biconjugate gradient stabilized method
// with an identity preconditioner (spec.md §4.G: "identity preconditioner
// suffices in practice"), warm-started from x, for at most maxIter
// iterations or until the relative residual drops to tol.
//
// Returns the number of iterations performed and the final relative
// residual norm.
func BiCGStab(a *Matrix, b, x []float64, tol float64, maxIter int) (iters int, residual float64) {
	n := len(b)
	r := make([]float64, n)
	ax := make([]float64, n)
	a.MulVec(x, ax)
	for i := range r {
		r[i] = b[i] - ax[i]
	}
	bNorm := norm2(b)
	if bNorm == 0 {
		bNorm = 1
	}
	residual = norm2(r) / bNorm
	if residual <= tol {
		return 0, residual
	}

	rHat := append([]float64(nil), r...)
	rho, alpha, omega := 1.0, 1.0, 1.0
	v := make([]float64, n)
	p := make([]float64, n)
	s := make([]float64, n)
	t := make([]float64, n)

	for iters = 1; iters <= maxIter; iters++ {
		rhoNew := dot(rHat, r)
		if rhoNew == 0 {
			break
		}
		if iters == 1 {
			copy(p, r)
		} else {
			beta := (rhoNew / rho) * (alpha / omega)
			for i := range p {
				p[i] = r[i] + beta*(p[i]-omega*v[i])
			}
		}
		a.MulVec(p, v)
		denom := dot(rHat, v)
		if denom == 0 {
			break
		}
		alpha = rhoNew / denom
		for i := range s {
			s[i] = r[i] - alpha*v[i]
		}
		if norm2(s)/bNorm <= tol {
			for i := range x {
				x[i] += alpha * p[i]
			}
			residual = norm2(s) / bNorm
			break
		}
		a.MulVec(s, t)
		tt := dot(t, t)
		if tt == 0 {
			omega = 0
		} else {
			omega = dot(t, s) / tt
		}
		for i := range x {
			x[i] += alpha*p[i] + omega*s[i]
		}
		for i := range r {
			r[i] = s[i] - omega*t[i]
		}
		residual = norm2(r) / bNorm
		if residual <= tol {
			break
		}
		rho = rhoNew
		if omega == 0 {
			break
		}
	}
	if iters > maxIter {
		iters = maxIter
	}
	return iters, residual
}
