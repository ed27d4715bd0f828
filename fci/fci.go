// Package fci solves the full configuration interaction problem in a determinant basis.
package fci

import (
	"log/slog"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Solver diagonalizes the active-space Hamiltonian.
// Spaces with at most DenseLimit determinants are diagonalized directly,
// larger ones with Davidson iterations.
type Solver struct {
	NRoots     int
	ConvTol    float64
	MaxCycle   int
	MaxSpace   int
	Lindep     float64
	DenseLimit int
	Logger     *slog.Logger
}

func NewSolver() *Solver {
	s := &Solver{
		NRoots:     1,
		ConvTol:    1e-10,
		MaxCycle:   100,
		MaxSpace:   12,
		Lindep:     1e-14,
		DenseLimit: 1000,
		Logger:     slog.Default(),
	}
	return s
}

// Kernel returns the lowest NRoots energies, ecore included, and their CI vectors.
// tol and maxCycle override the solver defaults when positive.
// The phase of the first root is aligned with ci0 when ci0 is given.
func (s *Solver) Kernel(h1 mat.Matrix, eri []float64, norb int, nelec [2]int, ci0 []float64, ecore, tol float64, maxCycle int) ([]float64, [][]float64, error) {
	if norb*norb*norb*norb != len(eri) {
		return nil, nil, errors.Errorf("eri length %d, norb %d", len(eri), norb)
	}
	if nelec[0] > norb || nelec[1] > norb || nelec[0] < 0 || nelec[1] < 0 {
		return nil, nil, errors.Errorf("%v electrons in %d orbitals", nelec, norb)
	}
	if tol <= 0 {
		tol = s.ConvTol
	}
	if maxCycle <= 0 {
		maxCycle = s.MaxCycle
	}
	sp := getSpace(norb, nelec)
	n := sp.size()
	nroots := max(min(s.NRoots, n), 1)
	if ci0 != nil && len(ci0) != n {
		return nil, nil, errors.Errorf("ci0 length %d, expected %d", len(ci0), n)
	}

	h2eff := AbsorbH1e(h1, eri, norb, nelec, 0.5)
	var es []float64
	var cs [][]float64
	if n <= s.DenseLimit {
		var err error
		es, cs, err = s.dense(sp, h2eff, nroots)
		if err != nil {
			return nil, nil, errors.Wrap(err, "")
		}
	} else {
		hdiag := sp.diagonal(h1, eri)
		aop := func(x []float64) []float64 {
			out := make([]float64, len(x))
			sp.contract(h2eff, x, out)
			return out
		}
		guess := initialGuess(hdiag, ci0, nroots)
		var conv bool
		es, cs, conv = s.davidson(aop, hdiag, guess, nroots, tol, maxCycle)
		if !conv {
			s.Logger.Info("fci davidson not converged", "tol", tol, "max_cycle", maxCycle)
		}
	}

	if ci0 != nil && floats.Dot(ci0, cs[0]) < 0 {
		floats.Scale(-1, cs[0])
	}
	for i := range es {
		es[i] += ecore
	}
	return es, cs, nil
}

// MakeRDM12 calls the package function of the same name.
func (s *Solver) MakeRDM12(c []float64, norb int, nelec [2]int) (*mat.Dense, []float64) {
	return MakeRDM12(c, norb, nelec)
}

// AbsorbH1e calls the package function of the same name.
func (s *Solver) AbsorbH1e(h1 mat.Matrix, eri []float64, norb int, nelec [2]int, fac float64) []float64 {
	return AbsorbH1e(h1, eri, norb, nelec, fac)
}

// Contract2e calls the package function of the same name.
func (s *Solver) Contract2e(h2eff, c []float64, norb int, nelec [2]int) []float64 {
	return Contract2e(h2eff, c, norb, nelec)
}

// SpinSquare calls the package function of the same name.
func (s *Solver) SpinSquare(c []float64, norb int, nelec [2]int) (float64, float64) {
	return SpinSquare(c, norb, nelec)
}

func (s *Solver) dense(sp *space, h2eff []float64, nroots int) ([]float64, [][]float64, error) {
	n := sp.size()
	h := mat.NewSymDense(n, nil)
	unit := make([]float64, n)
	col := make([]float64, n)
	for j := 0; j < n; j++ {
		unit[j] = 1
		for i := range col {
			col[i] = 0
		}
		sp.contract(h2eff, unit, col)
		unit[j] = 0
		for i := 0; i <= j; i++ {
			h.SetSym(i, j, col[i])
		}
	}
	var eig mat.EigenSym
	if ok := eig.Factorize(h, true); !ok {
		return nil, nil, errors.Errorf("eigendecomposition of %d determinants failed", n)
	}
	vals := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)
	cs := make([][]float64, nroots)
	for k := range cs {
		cs[k] = mat.Col(nil, k, &vecs)
	}
	return vals[:nroots], cs, nil
}

// initialGuess returns ci0 followed by unit vectors on the determinants of lowest diagonal energy.
func initialGuess(hdiag, ci0 []float64, nroots int) [][]float64 {
	guess := make([][]float64, 0, nroots)
	if ci0 != nil {
		guess = append(guess, append([]float64(nil), ci0...))
	}
	idx := make([]int, len(hdiag))
	floats.Argsort(append([]float64(nil), hdiag...), idx)
	for _, i := range idx {
		if len(guess) >= nroots+1 {
			break
		}
		x := make([]float64, len(hdiag))
		x[i] = 1
		guess = append(guess, x)
	}
	return guess
}

func precondition(r, hdiag []float64, e float64) []float64 {
	x := make([]float64, len(r))
	for i, v := range r {
		d := hdiag[i] - e
		if math.Abs(d) < 1e-8 {
			d = 1e-8
		}
		x[i] = v / d
	}
	return x
}
