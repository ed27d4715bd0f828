package mcscf

import (
	"iter"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ahStep is one iterate of the augmented-Hessian Davidson solver.
type ahStep struct {
	// converged is set when the eigenproblem is solved or the subspace became linearly dependent.
	converged bool
	ihop      int
	// w is the augmented-Hessian eigenvalue.
	w float64
	// x is the trial step and hx the Hessian applied to it.
	x, hx []float64
	// residual is v0 (g + (H - w) x).
	residual []float64
	// seig is the smallest eigenvalue of the subspace overlap.
	seig float64
}

// ahDavidson solves the augmented-Hessian eigenproblem
//
//	| 0  g^T | |1|     |1|
//	| g  H   | |x| = w |x|
//
// in a growing subspace seeded by x0, yielding the current step after every
// subspace extension. gop is read anew every iteration, so callers may shift the
// gradient between yields.
func ahDavidson(hop func([]float64) []float64, gop func() []float64, precond func([]float64, float64) []float64, x0 []float64, tol float64, maxCycle int, lindep float64, logger *slog.Logger) iter.Seq[ahStep] {
	return func(yield func(ahStep) bool) {
		toloose := math.Sqrt(tol)
		problemSize := len(x0)
		maxCycle = min(maxCycle, problemSize)
		xs := [][]float64{x0}
		axs := [][]float64{hop(x0)}
		// sub[i][j] and ovl[i][j] hold x_i.ax_j and x_i.x_j for j <= i.
		sub := [][]float64{{floats.Dot(x0, axs[0])}}
		ovl := [][]float64{{floats.Dot(x0, x0)}}

		var wt float64
		for istep := 0; istep < maxCycle; istep++ {
			g := gop()
			nx := len(xs)
			nvec := nx + 1
			heff := mat.NewDense(nvec, nvec, nil)
			ovlp := mat.NewDense(nvec, nvec, nil)
			ovlp.Set(0, 0, 1)
			for i := 0; i < nx; i++ {
				gi := floats.Dot(xs[i], g)
				heff.Set(i+1, 0, gi)
				heff.Set(0, i+1, gi)
				for j := 0; j <= i; j++ {
					heff.Set(i+1, j+1, sub[i][j])
					heff.Set(j+1, i+1, sub[i][j])
					ovlp.Set(i+1, j+1, ovl[i][j])
					ovlp.Set(j+1, i+1, ovl[i][j])
				}
			}

			wlast := wt
			w, v, seig := safeEigh(heff, ovlp, lindep)
			sel := selectRoot(v)
			wt = w[sel]
			if wt < 1e-4 {
				logNegativeHessian(heff, ovlp, lindep, logger)
			}
			v0 := v.At(0, sel)
			s0 := seig[0]

			xtrial, hx, ok := trialStep(v, sel, xs, axs, lindep)
			if !ok {
				logger.Debug("AH root without gradient component", "istep", istep+1, "v[0]", v0, "eig", wt)
				zero := make([]float64, problemSize)
				yield(ahStep{converged: true, ihop: istep + 1, w: wt, x: zero, hx: zero, residual: zero, seig: s0})
				return
			}
			dx := make([]float64, problemSize)
			copy(dx, hx)
			floats.AddScaled(dx, v0, g)
			floats.AddScaled(dx, -wt*v0, xtrial)
			normDx := floats.Norm(dx, 2)
			logger.Debug("AH step", "istep", istep+1, "index", sel, "|dx|", normDx, "eig", wt, "v[0]", v0, "lindep", s0)
			floats.Scale(1/v0, hx)

			if (math.Abs(wt-wlast) < tol && normDx < toloose) || s0 < lindep || istep+1 == problemSize {
				if !yield(ahStep{converged: true, ihop: istep + 1, w: wt, x: xtrial, hx: hx, residual: dx, seig: s0}) {
					return
				}
				if s0 < lindep || normDx < lindep {
					return
				}
				continue
			}
			if !yield(ahStep{ihop: istep + 1, w: wt, x: xtrial, hx: hx, residual: dx, seig: s0}) {
				return
			}

			xn := precond(dx, wt)
			axn := hop(xn)
			row := make([]float64, nx+1)
			orow := make([]float64, nx+1)
			for j := 0; j < nx; j++ {
				row[j] = floats.Dot(xn, axs[j])
				orow[j] = floats.Dot(xn, xs[j])
			}
			row[nx] = floats.Dot(xn, axn)
			orow[nx] = floats.Dot(xn, xn)
			xs = append(xs, xn)
			axs = append(axs, axn)
			sub = append(sub, row)
			ovl = append(ovl, orow)
		}
	}
}

// trialStep expands the root sel of the subspace eigenvectors v into the step
// x = sum_i v_i x_i / v_0 and the unscaled sum_i v_i H x_i.
// It fails when the root has no component along the gradient.
func trialStep(v *mat.Dense, sel int, xs, axs [][]float64, lindep float64) ([]float64, []float64, bool) {
	v0 := v.At(0, sel)
	if !(math.Abs(v0) >= lindep) {
		return nil, nil, false
	}
	n := len(xs[0])
	x, hx := make([]float64, n), make([]float64, n)
	for i := range xs {
		floats.AddScaled(x, v.At(i+1, sel)/v0, xs[i])
		floats.AddScaled(hx, v.At(i+1, sel), axs[i])
	}
	return x, hx, true
}

// selectRoot picks the lowest root with a significant component along the gradient direction.
func selectRoot(v *mat.Dense) int {
	_, n := v.Dims()
	best := 0
	for k := 0; k < n; k++ {
		if math.Abs(v.At(0, k)) > 0.1 {
			return k
		}
		if math.Abs(v.At(0, k)) > math.Abs(v.At(0, best)) {
			best = k
		}
	}
	return best
}

func logNegativeHessian(heff, ovlp *mat.Dense, lindep float64, logger *slog.Logger) {
	n, _ := heff.Dims()
	if n < 2 {
		return
	}
	h := heff.Slice(1, n, 1, n)
	s := ovlp.Slice(1, n, 1, n)
	e, _, _ := safeEigh(h, s, lindep)
	var neg []float64
	for _, x := range e {
		if x < -1e-5 {
			neg = append(neg, x)
		}
	}
	if len(neg) > 0 {
		logger.Debug("negative hessians found", "e", neg)
	}
}

// safeEigh solves h c = e s c in the subspace where s has eigenvalues above lindep.
// It returns the eigenvalues in ascending order, the eigenvectors in columns and all eigenvalues of s.
func safeEigh(h, s mat.Matrix, lindep float64) ([]float64, *mat.Dense, []float64) {
	n, _ := s.Dims()
	seig, sv, ok := symEig(s)
	if !ok {
		seig = make([]float64, n)
		sv = eye(n)
	}
	keep := make([]int, 0, n)
	for i, x := range seig {
		if x > lindep {
			keep = append(keep, i)
		}
	}
	if len(keep) == 0 {
		keep = append(keep, n-1)
	}
	t := mat.NewDense(n, len(keep), nil)
	for k, i := range keep {
		f := 1 / math.Sqrt(math.Max(seig[i], lindep))
		for r := 0; r < n; r++ {
			t.Set(r, k, sv.At(r, i)*f)
		}
	}
	e, c, ok := symEig(sandwich(t, h, t))
	if !ok {
		e = make([]float64, len(keep))
		c = eye(len(keep))
	}
	return e, mul(t, c), seig
}
