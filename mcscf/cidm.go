package mcscf

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ciUpdate is the active-space response to a trial orbital rotation.
type ciUpdate struct {
	casdm1 *mat.Dense
	casdm2 []float64
	// gci is the CI gradient, nil when the solver path does not produce one.
	gci []float64
	ci  []float64
}

// updateCasdm updates the CI vector for orbitals rotated by u, with the active-space
// Hamiltonian expanded to second order in u - 1, or exactly when WithDep4 is set.
func (c *CASSCF) updateCasdm(mo, u *mat.Dense, ci []float64, eCAS float64, eris *ERIS, normGOrb float64) (ciUpdate, error) {
	nmo, ncore, ncas := c.nmo, c.NCore, c.NCAS
	nocc := ncore + ncas

	ua := cols(u, ncore, nocc)
	ra := cols(u, ncore, nocc)
	for i := 0; i < ncas; i++ {
		ra.Set(ncore+i, i, ra.At(ncore+i, i)-1)
	}
	h1eMO := sandwich(mo, c.mf.HCore(), mo)
	ddm := mat.NewDense(nmo, nmo, nil)
	for p := 0; p < nmo; p++ {
		for q := 0; q < nmo; q++ {
			var s float64
			for i := 0; i < ncore; i++ {
				s += u.At(p, i) * u.At(q, i)
			}
			ddm.Set(p, q, 2*s)
		}
	}
	for i := 0; i < ncore; i++ {
		ddm.Set(i, i, ddm.At(i, i)-2)
	}

	var h1 *mat.Dense
	var h2 []float64
	if c.WithDep4 {
		mo1 := mul(mo, u)
		mo1A := cols(mo1, ncore, nocc)
		vj, vk := c.mf.GetJK(coreDensity(mo1, ncore))
		h1 = sandwich(ua, h1eMO, ua)
		h1.Add(h1, sandwich(mo1A, jMinusHalfK(vj, vk)[0], mo1A))
		eris.paaa = c.exactPAAA(mo, u)
		eris.paaaU = u
		n3 := ncas * ncas * ncas
		h2 = make([]float64, ncas*n3)
		copy(h2, eris.paaa[ncore*n3:nocc*n3])
	} else {
		h1, h2 = c.expandActiveHamiltonian(h1eMO, ua, ra, ddm, eris)
	}

	var ecore float64
	for p := 0; p < nmo; p++ {
		for q := 0; q < nmo; q++ {
			ecore += (h1eMO.At(p, q) + eris.VhfC.At(p, q)) * ddm.At(p, q)
		}
	}

	ci1, g, err := c.solveApproxCI(h1, h2, ci, ecore, eCAS, normGOrb)
	if err != nil {
		return ciUpdate{}, errors.Wrap(err, "")
	}
	if g != nil {
		ovlp := floats.Dot(ci, ci1)
		normG := floats.Norm(g, 2)
		if 1-math.Abs(ovlp) > normG*c.CIGradTrustRegion {
			c.Logger.Debug("ci1 out of trust region", "<ci1|ci0>", ovlp, "|g|", normG)
			ci1 = make([]float64, len(ci))
			floats.AddTo(ci1, ci, g)
			floats.Scale(1/floats.Norm(ci1, 2), ci1)
		}
	}
	casdm1, casdm2 := c.solver.MakeRDM12(ci1, ncas, c.NElecAS)
	return ciUpdate{casdm1: casdm1, casdm2: casdm2, gci: g, ci: ci1}, nil
}

// expandActiveHamiltonian returns the active-space one- and two-electron integrals
// of the rotated orbitals to second order in the rotation, from the cached integrals.
func (c *CASSCF) expandActiveHamiltonian(h1eMO, ua, ra, ddm *mat.Dense, eris *ERIS) (*mat.Dense, []float64) {
	nmo, ncore, ncas := c.nmo, c.NCore, c.NCAS
	n2 := ncas * ncas
	n3 := n2 * ncas

	jk := sandwich(ua, eris.VhfC, ua)
	// p1aa[i,b,c,d] = sum_q ua[q,b] (iq|cd)
	p1aa := make([]float64, nmo*n3)
	// paa1[i,u,v,y] = sum_q (iu|qv) ra[q,y]
	paa1 := make([]float64, nmo*n3)
	for i := 0; i < nmo; i++ {
		for u := 0; u < ncas; u++ {
			for v := 0; v < ncas; v++ {
				var s float64
				for q := 0; q < nmo; q++ {
					d := ddm.At(i, q)
					s += d*eris.ppaa(i, q, u, v) - .5*d*eris.papa(i, u, q, v)
				}
				jk.Set(u, v, jk.At(u, v)+s)
			}
		}
		for q := 0; q < nmo; q++ {
			for b := 0; b < ncas; b++ {
				uqb := ua.At(q, b)
				if uqb == 0 {
					continue
				}
				dst := p1aa[i*n3+b*n2 : i*n3+(b+1)*n2]
				src := eris.PPAA[(i*nmo+q)*n2 : (i*nmo+q+1)*n2]
				floats.AddScaled(dst, uqb, src)
			}
		}
		for u := 0; u < ncas; u++ {
			for v := 0; v < ncas; v++ {
				for y := 0; y < ncas; y++ {
					var s float64
					for q := 0; q < nmo; q++ {
						s += eris.papa(i, u, q, v) * ra.At(q, y)
					}
					paa1[i*n3+(u*ncas+v)*ncas+y] = s
				}
			}
		}
	}
	h1 := sandwich(ua, h1eMO, ua)
	h1.Add(h1, jk)

	aa11 := make([]float64, ncas*n3)
	a11a := make([]float64, ncas*n3)
	for i := 0; i < nmo; i++ {
		for a := 0; a < ncas; a++ {
			floats.AddScaled(aa11[a*n3:(a+1)*n3], ua.At(i, a), p1aa[i*n3:(i+1)*n3])
			floats.AddScaled(a11a[a*n3:(a+1)*n3], ra.At(i, a), paa1[i*n3:(i+1)*n3])
		}
	}

	at := func(t []float64, a, b, cc, d int) float64 { return t[((a*ncas+b)*ncas+cc)*ncas+d] }
	h2 := make([]float64, ncas*n3)
	for a := 0; a < ncas; a++ {
		for b := 0; b < ncas; b++ {
			for cc := 0; cc < ncas; cc++ {
				for d := 0; d < ncas; d++ {
					coul := at(aa11, a, b, cc, d) + at(aa11, cc, d, a, b) - eris.ppaa(ncore+a, ncore+b, cc, d)
					exch := at(a11a, a, b, cc, d) + at(a11a, b, a, cc, d) + at(a11a, a, b, d, cc) + at(a11a, b, a, d, cc)
					h2[((a*ncas+b)*ncas+cc)*ncas+d] = coul + exch
				}
			}
		}
	}
	return h1, h2
}

// solveApproxCI solves the CI problem of the trial Hamiltonian approximately.
// The returned CI gradient is nil unless the solver can contract the Hamiltonian.
func (c *CASSCF) solveApproxCI(h1 *mat.Dense, h2, ci0 []float64, ecore, eCAS, normGOrb float64) ([]float64, []float64, error) {
	ncas, nelec := c.NCAS, c.NElecAS
	tol := math.Max(c.ConvTol, normGOrb*normGOrb*.1)

	if c.caps.SupportsApproxKernel {
		ci1, err := c.caps.approx.ApproxKernel(h1, h2, ncas, nelec, ci0, tol)
		if err != nil {
			return nil, nil, errors.Wrap(err, "")
		}
		return ci1, nil, nil
	}
	if !c.caps.SupportsHamiltonianContraction {
		_, cis, err := c.solver.Kernel(h1, h2, ncas, nelec, ci0, 0, tol, c.CIResponseSpace)
		if err != nil {
			return nil, nil, errors.Wrap(err, "")
		}
		return cis[0], nil, nil
	}

	ct := c.caps.contractor
	h2eff := ct.AbsorbH1e(h1, h2, ncas, nelec, .5)
	hc := ct.Contract2e(h2eff, ci0, ncas, nelec)
	g := make([]float64, len(ci0))
	floats.AddScaledTo(g, hc, -(eCAS - ecore), ci0)

	if c.CIResponseSpace > 7 {
		c.Logger.Debug("CI step by full response")
		_, cis, err := c.solver.Kernel(h1, h2, ncas, nelec, ci0, 0, tol, 0)
		if err != nil {
			return nil, nil, errors.Wrap(err, "")
		}
		return cis[0], g, nil
	}

	nd := min(max(c.CIResponseSpace, 2), len(ci0))
	c.Logger.Debug("CI step by subspace response", "dim", nd)
	xs := [][]float64{ci0}
	axs := [][]float64{hc}
	heff := mat.NewDense(nd, nd, nil)
	seff := mat.NewDense(nd, nd, nil)
	heff.Set(0, 0, floats.Dot(ci0, hc))
	seff.Set(0, 0, 1)
	for i := 1; i < nd; i++ {
		x := make([]float64, len(ci0))
		floats.AddScaledTo(x, axs[i-1], -eCAS, xs[i-1])
		xs = append(xs, x)
		axs = append(axs, ct.Contract2e(h2eff, x, ncas, nelec))
		for j := 0; j <= i; j++ {
			hv := floats.Dot(xs[i], axs[j])
			sv := floats.Dot(xs[i], xs[j])
			heff.Set(i, j, hv)
			heff.Set(j, i, hv)
			seff.Set(i, j, sv)
			seff.Set(j, i, sv)
		}
	}
	_, v, _ := safeEigh(heff, seff, 1e-15)
	ci1 := make([]float64, len(ci0))
	for i := range xs {
		floats.AddScaled(ci1, v.At(i, 0), xs[i])
	}
	return ci1, g, nil
}
