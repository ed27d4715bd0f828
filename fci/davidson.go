package fci

import (
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/fumin/casscf/util"
)

// davidson finds the lowest nroots eigenpairs of the symmetric operator aop.
func (s *Solver) davidson(aop func([]float64) []float64, hdiag []float64, guess [][]float64, nroots int, tol float64, maxCycle int) ([]float64, [][]float64, bool) {
	maxSpace := max(s.MaxSpace, nroots+2)
	xs := make([][]float64, 0, maxSpace)
	axs := make([][]float64, 0, maxSpace)
	add := func(x []float64) bool {
		orthogonalize(x, xs)
		norm := floats.Norm(x, 2)
		if norm*norm < s.Lindep {
			return false
		}
		floats.Scale(1/norm, x)
		xs = append(xs, x)
		axs = append(axs, aop(x))
		return true
	}
	for _, g := range guess {
		add(g)
	}
	nroots = min(nroots, len(xs))

	throttler := util.NewSkipThrottler(10 * time.Second)
	eOld := make([]float64, nroots)
	for i := range eOld {
		eOld[i] = math.Inf(1)
	}
	var e []float64
	var x, ax [][]float64
	conv := false
	for icyc := 0; icyc < maxCycle; icyc++ {
		e, x, ax = ritz(xs, axs, nroots)
		rs := make([][]float64, nroots)
		conv = true
		var rmax float64
		for k := 0; k < nroots; k++ {
			rs[k] = make([]float64, len(hdiag))
			floats.AddScaledTo(rs[k], ax[k], -e[k], x[k])
			rnorm := floats.Norm(rs[k], 2)
			rmax = max(rmax, rnorm)
			if math.Abs(e[k]-eOld[k]) > tol || rnorm > math.Sqrt(tol) {
				conv = false
			}
		}
		if throttler.Ok() {
			s.Logger.Debug("fci davidson", "cycle", icyc, "e", e, "max|r|", rmax, "space", len(xs))
		}
		copy(eOld, e)
		if conv {
			break
		}

		if len(xs)+nroots > maxSpace {
			xs, axs = xs[:0], axs[:0]
			for k := 0; k < nroots; k++ {
				xs = append(xs, x[k])
				axs = append(axs, ax[k])
			}
		}
		added := false
		for k := 0; k < nroots; k++ {
			if add(precondition(rs[k], hdiag, e[k])) {
				added = true
			}
		}
		if !added {
			break
		}
	}
	return e, x, conv
}

// ritz solves the projected eigenproblem of the orthonormal basis xs.
func ritz(xs, axs [][]float64, nroots int) ([]float64, [][]float64, [][]float64) {
	n := len(xs)
	h := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			v := 0.5 * (floats.Dot(xs[i], axs[j]) + floats.Dot(xs[j], axs[i]))
			h.SetSym(i, j, v)
		}
	}
	var eig mat.EigenSym
	eig.Factorize(h, true)
	vals := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	nroots = min(nroots, n)
	x := make([][]float64, nroots)
	ax := make([][]float64, nroots)
	for k := 0; k < nroots; k++ {
		x[k] = make([]float64, len(xs[0]))
		ax[k] = make([]float64, len(xs[0]))
		for i := 0; i < n; i++ {
			floats.AddScaled(x[k], vecs.At(i, k), xs[i])
			floats.AddScaled(ax[k], vecs.At(i, k), axs[i])
		}
	}
	return vals[:nroots], x, ax
}

func orthogonalize(x []float64, basis [][]float64) {
	for pass := 0; pass < 2; pass++ {
		for _, b := range basis {
			floats.AddScaled(x, -floats.Dot(b, x), b)
		}
	}
}
