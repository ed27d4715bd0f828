package mcscf

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// RotationStep is the result of Rotator.Next.
// Unless Done is set, U is the rotation accumulated since the start of the macro iteration,
// GOrb the gradient at the start of the inner loop that produced it, and JKCount the
// number of Hessian and gradient builds so far.
type RotationStep struct {
	Done    bool
	U       *mat.Dense
	GOrb    []float64
	JKCount int
}

// Rotator runs the micro iterations of one macro iteration.
// The active-space densities are read from densities before every keyframe,
// so the caller may update them between calls to Next.
type Rotator struct {
	c           *CASSCF
	mo          *mat.Dense
	eris        *ERIS
	densities   func() (*mat.Dense, []float64)
	convTolGrad float64
	maxStepsize float64

	h                           *GHop
	gorb, gkf                   []float64
	normGKF0, normGKF, normGOrb float64
	x0                          []float64
	dr, dxi, hdxi               []float64
	u                           *mat.Dense
	ahStartCycle                int
	jkcount                     int

	started bool
	done    bool
}

// NewRotator prepares the micro iterations at orbitals mo.
// x0 seeds the first augmented-Hessian subspace and defaults to the gradient.
func (c *CASSCF) NewRotator(mo *mat.Dense, densities func() (*mat.Dense, []float64), eris *ERIS, x0 []float64, convTolGrad, maxStepsize float64) *Rotator {
	r := &Rotator{
		c:            c,
		mo:           mo,
		eris:         eris,
		densities:    densities,
		convTolGrad:  convTolGrad,
		maxStepsize:  maxStepsize,
		ahStartCycle: c.AHStartCycle,
	}
	casdm1, casdm2 := densities()
	r.h = c.GenGHop(mo, casdm1, casdm2, eris)
	r.gorb = r.h.GOrb
	r.gkf = r.gorb
	r.normGOrb = floats.Norm(r.gorb, 2)
	r.normGKF0, r.normGKF = r.normGOrb, r.normGOrb
	c.Logger.Debug("micro start", "|g|", r.normGOrb)

	n := len(r.gorb)
	r.dr = make([]float64, n)
	r.dxi = make([]float64, n)
	r.hdxi = make([]float64, n)
	if len(x0) == n {
		r.x0 = x0
	} else {
		r.x0 = r.gorb
	}
	return r
}

// Next advances to the next accumulated rotation.
func (r *Rotator) Next() RotationStep {
	if r.done {
		return RotationStep{Done: true}
	}
	if r.started {
		if step, fallback := r.keyframe(); fallback {
			r.done = true
			return step
		}
	}
	r.started = true
	return r.inner()
}

func (r *Rotator) precond(x []float64, e float64) []float64 {
	out := make([]float64, len(x))
	for i := range x {
		d := r.h.HDiag[i] - (e - r.c.AHLevelShift)
		if math.Abs(d) < 1e-8 {
			d = 1e-8
		}
		out[i] = x[i] / d
	}
	if norm := floats.Norm(out, 2); norm > 0 {
		floats.Scale(1/norm, out)
	}
	return out
}

// inner takes augmented-Hessian steps until the gradient estimate converges,
// leaves the trust region, or the inner cycle cap is hit.
func (r *Rotator) inner() RotationStep {
	c := r.c
	ahStartTol := math.Min(r.normGOrb*c.AHGradTrustRegion, c.AHStartTol)
	c.Logger.Debug("set ah_start_tol", "ah_start_tol", ahStartTol, "ah_start_cycle", r.ahStartCycle, "max_cycle", c.MaxCycleMicroInner)
	gorb0 := r.gorb
	imic, ihop := 0, 0
	gop := func() []float64 { return r.gorb }
	steps := ahDavidson(r.h.HOp, gop, r.precond, r.x0, c.AHConvTol, c.AHMaxCycle, c.AHLindep, c.Logger)
	for s := range steps {
		ihop = s.ihop
		normResidual := floats.Norm(s.residual, 2)
		if !(s.converged || s.ihop == c.AHMaxCycle || (normResidual < ahStartTol && s.ihop >= r.ahStartCycle) || s.seig < c.AHLindep) {
			continue
		}
		imic++
		dxi, hdxi := s.x, s.hx
		dxmax := maxAbs(dxi)
		if dxmax > r.maxStepsize {
			scale := r.maxStepsize / dxmax
			c.Logger.Debug("scale rotation size", "scale", scale)
			floats.Scale(scale, dxi)
			floats.Scale(scale, hdxi)
		}
		r.dxi, r.hdxi = dxi, hdxi

		gorb := make([]float64, len(r.gorb))
		floats.AddTo(gorb, r.gorb, hdxi)
		r.gorb = gorb
		floats.Add(r.dr, dxi)
		r.normGOrb = floats.Norm(r.gorb, 2)
		c.Logger.Debug("imic", "imic", imic, "ihop", s.ihop, "|g[o]|", r.normGOrb, "|dxi|", floats.Norm(dxi, 2), "max(|x|)", dxmax, "|dr|", floats.Norm(r.dr, 2), "eig", s.w, "seig", s.seig)

		if imic > 1 && r.normGOrb > r.normGKF*c.AHGradTrustRegion {
			break
		}
		if imic >= c.MaxCycleMicroInner || r.normGOrb < r.convTolGrad*.3 {
			break
		}
	}

	r.u = c.UpdateRotateMatrix(r.dr, nil)
	r.jkcount += ihop
	c.Logger.Debug("aug_hess", "inner iters", imic, "jk", r.jkcount)
	return RotationStep{U: r.u, GOrb: gorb0, JKCount: r.jkcount}
}

// keyframe recomputes the gradient at the accumulated rotation with the current densities.
// It reports true when the rotation left the trust region and must be cut back.
func (r *Rotator) keyframe() (RotationStep, bool) {
	c := r.c
	casdm1, casdm2 := r.densities()
	r.h = c.GenGHop(r.mo, casdm1, casdm2, r.eris)
	gkf1 := r.h.GOrbUpdate(r.u, c.WithDep4)
	r.jkcount++

	normGKF1 := floats.Norm(gkf1, 2)
	normDG := floats.Distance(gkf1, r.gorb, 2)
	c.Logger.Debug("keyframe", "|g|", normGKF1, "|g-correction|", normDG)

	if normDG > r.normGOrb*c.AHGradTrustRegion && normGKF1 > r.normGKF && normGKF1 > r.normGKF0*c.AHGradTrustRegion {
		c.Logger.Debug("keyframe out of trust region", "|g|", normGKF1, "|g_last|", r.normGOrb)
		if (!c.WithDep4 && r.normGKF > 5e-4) || c.depFallback {
			dr := make([]float64, len(r.dr))
			floats.SubTo(dr, r.dr, r.dxi)
			g := make([]float64, len(r.gkf))
			floats.SubTo(g, r.gkf, r.hdxi)
			return RotationStep{U: c.UpdateRotateMatrix(dr, nil), GOrb: g, JKCount: r.jkcount}, true
		}
		gkf1 = r.h.GOrbUpdate(r.u, true)
		r.jkcount++
		normGKF1 = floats.Norm(gkf1, 2)
		normDG = floats.Distance(gkf1, r.gorb, 2)
		c.Logger.Debug("keyframe with dep4", "|g|", normGKF1, "|g-correction|", normDG)
	}

	r.gorb, r.gkf = gkf1, gkf1
	r.normGOrb, r.normGKF = normGKF1, normGKF1
	r.x0 = r.dxi
	r.ahStartCycle--
	return RotationStep{}, false
}

func maxAbs(x []float64) float64 {
	var m float64
	for _, v := range x {
		m = math.Max(m, math.Abs(v))
	}
	return m
}
