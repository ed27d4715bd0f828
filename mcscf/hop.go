package mcscf

import (
	"gonum.org/v1/gonum/mat"
)

// GHop holds the orbital gradient and Hessian of the CASSCF energy at fixed orbitals and densities.
// All vectors use the packing of PackUniqVar.
type GHop struct {
	// GOrb is the orbital gradient.
	GOrb []float64
	// HDiag approximates the Hessian diagonal for preconditioning.
	HDiag []float64

	c      *CASSCF
	mo     *mat.Dense
	casdm1 *mat.Dense
	casdm2 []float64
	eris   *ERIS

	nmo, ncore, ncas, nocc int

	h1eMO *mat.Dense
	vhfA  *mat.Dense
	vhfCA *mat.Dense
	dm1   *mat.Dense
	// g is the unpacked gradient before antisymmetrization.
	g *mat.Dense
	// hdm2 has shape (nmo, ncas, nmo, ncas).
	hdm2 []float64
	// gDM2 is the two-electron part of the active gradient columns, shape (nmo, ncas).
	gDM2 *mat.Dense
	// jkcaa has shape (nocc, ncas).
	jkcaa *mat.Dense
}

// GenGHop builds the gradient, Hessian diagonal and Hessian operator at orbitals mo.
func (c *CASSCF) GenGHop(mo, casdm1 *mat.Dense, casdm2 []float64, eris *ERIS) *GHop {
	nmo, ncore, ncas := c.nmo, c.NCore, c.NCAS
	nocc := ncore + ncas
	h := &GHop{
		c: c, mo: mo, casdm1: casdm1, casdm2: casdm2, eris: eris,
		nmo: nmo, ncore: ncore, ncas: ncas, nocc: nocc,
	}
	dm2 := func(a, b, cc, d int) float64 { return casdm2[((a*ncas+b)*ncas+cc)*ncas+d] }

	h.dm1 = mat.NewDense(nmo, nmo, nil)
	for i := 0; i < ncore; i++ {
		h.dm1.Set(i, i, 2)
	}
	for u := 0; u < ncas; u++ {
		for v := 0; v < ncas; v++ {
			h.dm1.Set(ncore+u, ncore+v, casdm1.At(u, v))
		}
	}

	// dm2tmp[x,y,u,v] = casdm2[u,x,y,v] + casdm2[x,u,y,v]
	n4 := ncas * ncas * ncas * ncas
	dm2tmp := make([]float64, n4)
	for x := 0; x < ncas; x++ {
		for y := 0; y < ncas; y++ {
			for u := 0; u < ncas; u++ {
				for v := 0; v < ncas; v++ {
					dm2tmp[((x*ncas+y)*ncas+u)*ncas+v] = dm2(u, x, y, v) + dm2(x, u, y, v)
				}
			}
		}
	}

	h.jkcaa = mat.NewDense(nocc, ncas, nil)
	h.vhfA = mat.NewDense(nmo, nmo, nil)
	h.hdm2 = make([]float64, nmo*ncas*nmo*ncas)
	h.gDM2 = mat.NewDense(nmo, ncas, nil)
	jtmp := make([]float64, nmo*ncas*ncas)
	ktmp := make([]float64, nmo*ncas*ncas)
	for i := 0; i < nmo; i++ {
		if i < nocc {
			for u := 0; u < ncas; u++ {
				var v float64
				for k := 0; k < ncas; k++ {
					v += (6*eris.papa(i, u, i, k) - 2*eris.ppaa(i, i, u, k)) * casdm1.At(u, k)
				}
				h.jkcaa.Set(i, u, v)
			}
		}
		for q := 0; q < nmo; q++ {
			var v float64
			for u := 0; u < ncas; u++ {
				for w := 0; w < ncas; w++ {
					d := casdm1.At(u, w)
					v += eris.ppaa(i, q, u, w)*d - 0.5*eris.papa(i, u, q, w)*d
				}
			}
			h.vhfA.Set(i, q, v)
		}
		for k := range jtmp {
			jtmp[k], ktmp[k] = 0, 0
		}
		for q := 0; q < nmo; q++ {
			out := jtmp[q*ncas*ncas : (q+1)*ncas*ncas]
			kout := ktmp[q*ncas*ncas : (q+1)*ncas*ncas]
			for x := 0; x < ncas; x++ {
				for y := 0; y < ncas; y++ {
					jv := eris.ppaa(i, q, x, y)
					kv := eris.papa(i, x, q, y)
					xy := (x*ncas + y) * ncas * ncas
					for uv := 0; uv < ncas*ncas; uv++ {
						out[uv] += jv * casdm2[xy+uv]
						kout[uv] += kv * dm2tmp[xy+uv]
					}
				}
			}
		}
		for u := 0; u < ncas; u++ {
			for q := 0; q < nmo; q++ {
				for v := 0; v < ncas; v++ {
					h.hdm2[((i*ncas+u)*nmo+q)*ncas+v] = ktmp[(q*ncas+u)*ncas+v] + jtmp[(q*ncas+u)*ncas+v]
				}
			}
		}
		for v := 0; v < ncas; v++ {
			var s float64
			for u := 0; u < ncas; u++ {
				s += jtmp[((ncore+u)*ncas+u)*ncas+v]
			}
			h.gDM2.Set(i, v, s)
		}
	}

	h.vhfCA = mat.NewDense(nmo, nmo, nil)
	h.vhfCA.Add(eris.VhfC, h.vhfA)
	h.h1eMO = sandwich(mo, c.mf.HCore(), mo)

	// Gradient.
	h.g = mat.NewDense(nmo, nmo, nil)
	for p := 0; p < nmo; p++ {
		for i := 0; i < ncore; i++ {
			h.g.Set(p, i, 2*(h.h1eMO.At(p, i)+h.vhfCA.At(p, i)))
		}
		for u := 0; u < ncas; u++ {
			var v float64
			for w := 0; w < ncas; w++ {
				v += (h.h1eMO.At(p, ncore+w) + eris.VhfC.At(p, ncore+w)) * casdm1.At(w, u)
			}
			h.g.Set(p, ncore+u, v+h.gDM2.At(p, u))
		}
	}
	h.GOrb = c.PackUniqVar(antisym(h.g))
	h.HDiag = c.PackUniqVar(h.hessianDiagonal())
	return h
}

// antisym returns a - a^T.
func antisym(a *mat.Dense) *mat.Dense {
	var m mat.Dense
	m.Sub(a, a.T())
	return &m
}

func (h *GHop) hessianDiagonal() *mat.Dense {
	nmo, ncore, ncas, nocc := h.nmo, h.ncore, h.ncas, h.nocc
	eris := h.eris
	hd := mat.NewDense(nmo, nmo, nil)
	for i := 0; i < nmo; i++ {
		for j := 0; j < nmo; j++ {
			hd.Set(i, j, h.h1eMO.At(i, i)*h.dm1.At(j, j)-h.h1eMO.At(i, j)*h.dm1.At(i, j))
		}
	}
	hd = plusT(hd)

	for i := 0; i < nmo; i++ {
		for j := 0; j < nmo; j++ {
			hd.Set(i, j, hd.At(i, j)-h.g.At(i, i)-h.g.At(j, j))
		}
		hd.Set(i, i, hd.At(i, i)+2*h.g.At(i, i))
	}

	for i := 0; i < nmo; i++ {
		for j := 0; j < ncore; j++ {
			hd.Set(i, j, hd.At(i, j)+2*h.vhfCA.At(i, i))
			hd.Set(j, i, hd.At(j, i)+2*h.vhfCA.At(i, i))
		}
	}
	for i := 0; i < ncore; i++ {
		hd.Set(i, i, hd.At(i, i)-4*h.vhfCA.At(i, i))
	}

	for i := 0; i < nmo; i++ {
		for u := 0; u < ncas; u++ {
			t := eris.VhfC.At(i, i) * h.casdm1.At(u, u)
			hd.Set(i, ncore+u, hd.At(i, ncore+u)+t)
			hd.Set(ncore+u, i, hd.At(ncore+u, i)+t)
		}
	}
	for u := 0; u < ncas; u++ {
		for v := 0; v < ncas; v++ {
			t := -eris.VhfC.At(ncore+u, ncore+v)*h.casdm1.At(u, v) - eris.VhfC.At(ncore+v, ncore+u)*h.casdm1.At(v, u)
			hd.Set(ncore+u, ncore+v, hd.At(ncore+u, ncore+v)+t)
		}
	}

	for p := ncore; p < nmo; p++ {
		for i := 0; i < ncore; i++ {
			t := 6*eris.KPC.At(p, i) - 2*eris.JPC.At(p, i)
			hd.Set(p, i, hd.At(p, i)+t)
			hd.Set(i, p, hd.At(i, p)+t)
		}
	}

	for i := 0; i < nocc; i++ {
		for u := 0; u < ncas; u++ {
			t := h.jkcaa.At(i, u)
			hd.Set(i, ncore+u, hd.At(i, ncore+u)-t)
			hd.Set(ncore+u, i, hd.At(ncore+u, i)-t)
		}
	}

	for i := 0; i < nmo; i++ {
		for u := 0; u < ncas; u++ {
			t := h.hdm2[((i*ncas+u)*nmo+i)*ncas+u]
			hd.Set(ncore+u, i, hd.At(ncore+u, i)+t)
			hd.Set(i, ncore+u, hd.At(i, ncore+u)+t)
		}
	}
	return hd
}

// contractHDM2 returns out[p][u] = sum_rv hdm2[p,u,r,v] x[r][ncore+v].
func (h *GHop) contractHDM2(x mat.Matrix) *mat.Dense {
	nmo, ncas := h.nmo, h.ncas
	out := mat.NewDense(nmo, ncas, nil)
	for p := 0; p < nmo; p++ {
		for u := 0; u < ncas; u++ {
			base := (p*ncas + u) * nmo * ncas
			var s float64
			for r := 0; r < nmo; r++ {
				for v := 0; v < ncas; v++ {
					s += h.hdm2[base+r*ncas+v] * x.At(r, h.ncore+v)
				}
			}
			out.Set(p, u, s)
		}
	}
	return out
}

// setActiveColumns sets g[:, act] = (g + v)[:, act] casdm1.
func (h *GHop) setActiveColumns(g, v *mat.Dense) {
	for p := 0; p < h.nmo; p++ {
		row := make([]float64, h.ncas)
		for u := 0; u < h.ncas; u++ {
			var s float64
			for w := 0; w < h.ncas; w++ {
				s += (g.At(p, h.ncore+w) + v.At(p, h.ncore+w)) * h.casdm1.At(w, u)
			}
			row[u] = s
		}
		for u, s := range row {
			g.Set(p, h.ncore+u, s)
		}
	}
}

// gdep1 expands the gradient to first order in u - 1.
func (h *GHop) gdep1(u *mat.Dense) *mat.Dense {
	nmo, ncore, ncas, nocc := h.nmo, h.ncore, h.ncas, h.nocc
	dt := mat.DenseCopyOf(u)
	dt.Sub(dt, eye(nmo))
	mo1 := mul(h.mo, dt)

	hdt := mul(h.h1eMO, dt)
	g := mat.NewDense(nmo, nmo, nil)
	g.Add(h.h1eMO, hdt)
	g.Add(g, hdt.T())
	for p := 0; p < nmo; p++ {
		for q := nocc; q < nmo; q++ {
			g.Set(p, q, 0)
		}
	}

	nao, _ := h.mo.Dims()
	dmCore := mat.NewDense(nao, nao, nil)
	for a := 0; a < nao; a++ {
		for b := 0; b < nao; b++ {
			var s float64
			for i := 0; i < ncore; i++ {
				s += h.mo.At(a, i) * mo1.At(b, i)
			}
			dmCore.Set(a, b, 2*s)
		}
	}
	dmCore = plusT(dmCore)
	moA := cols(h.mo, ncore, nocc)
	mo1A := cols(mo1, ncore, nocc)
	dmCas := mul(mul(moA, h.casdm1), mo1A.T())
	dmCas = plusT(dmCas)
	vj, vk := h.c.mf.GetJK(dmCore, dmCas)
	v := jMinusHalfK(vj, vk)

	response := func(vhf, vao *mat.Dense) *mat.Dense {
		t := mul(vhf, dt)
		t = plusT(t)
		t.Add(t, vhf)
		t.Add(t, sandwich(h.mo, vao, h.mo))
		return t
	}
	vhfc := response(h.eris.VhfC, v[0])
	vhfa := response(h.vhfA, v[1])

	for p := 0; p < nmo; p++ {
		for i := 0; i < ncore; i++ {
			g.Set(p, i, 2*(g.At(p, i)+vhfc.At(p, i)+vhfa.At(p, i)))
		}
	}
	h.setActiveColumns(g, vhfc)

	t := h.contractHDM2(dt)
	ug := mul(u.T(), h.gDM2)
	for p := 0; p < nmo; p++ {
		for w := 0; w < ncas; w++ {
			g.Set(p, ncore+w, g.At(p, ncore+w)+t.At(p, w)+ug.At(p, w))
		}
	}
	return g
}

// gdep4 evaluates the gradient at the rotated orbitals with the exact active integrals.
func (h *GHop) gdep4(u *mat.Dense) *mat.Dense {
	nmo, ncore, ncas, nocc := h.nmo, h.ncore, h.ncas, h.nocc
	mo1 := mul(h.mo, u)

	g := mat.NewDense(nmo, nmo, nil)
	uh := sandwich(u, h.h1eMO, u)
	for p := 0; p < nmo; p++ {
		for q := 0; q < nocc; q++ {
			g.Set(p, q, uh.At(p, q))
		}
	}

	dmCore := coreDensity(mo1, ncore)
	dmCore.Sub(dmCore, coreDensity(h.mo, ncore))
	dmCas := activeDensity(mo1, ncore, h.casdm1)
	dmCas.Sub(dmCas, activeDensity(h.mo, ncore, h.casdm1))
	vj, vk := h.c.mf.GetJK(dmCore, dmCas)
	v := jMinusHalfK(vj, vk)

	vhfc1 := sandwich(mo1, v[0], mo1)
	vhfc1.Add(vhfc1, sandwich(u, h.eris.VhfC, u))
	vhfa1 := sandwich(mo1, v[1], mo1)
	vhfa1.Add(vhfa1, sandwich(u, h.vhfA, u))

	for p := 0; p < nmo; p++ {
		for i := 0; i < ncore; i++ {
			g.Set(p, i, 2*(g.At(p, i)+vhfc1.At(p, i)+vhfa1.At(p, i)))
		}
	}
	h.setActiveColumns(g, vhfc1)

	paaa := h.eris.paaa
	if paaa == nil || h.eris.paaaU != u {
		paaa = h.c.exactPAAA(h.mo, u)
	}
	n3 := ncas * ncas * ncas
	for p := 0; p < nmo; p++ {
		for t := 0; t < ncas; t++ {
			var s float64
			pa := paaa[p*n3 : (p+1)*n3]
			d2 := h.casdm2[t*n3 : (t+1)*n3]
			for k, x := range pa {
				s += x * d2[k]
			}
			g.Set(p, ncore+t, g.At(p, ncore+t)+s)
		}
	}
	return g
}

// GOrbUpdate returns the orbital gradient at the rotation u,
// exactly when dep4 is set and to first order in u - 1 otherwise.
func (h *GHop) GOrbUpdate(u *mat.Dense, dep4 bool) []float64 {
	var g *mat.Dense
	if dep4 {
		g = h.gdep4(u)
	} else {
		g = h.gdep1(u)
	}
	return h.c.PackUniqVar(antisym(g))
}

// HOp returns the Hessian applied to the packed rotation x.
func (h *GHop) HOp(x []float64) []float64 {
	nmo, ncore, ncas := h.nmo, h.ncore, h.ncas
	x1 := h.c.UnpackUniqVar(x)

	x2 := mul(mul(h.h1eMO, x1), h.dm1)
	x2.Sub(x2, mul(h.g.T(), x1))

	for i := 0; i < ncore; i++ {
		for q := 0; q < nmo; q++ {
			var s float64
			for r := ncore; r < nmo; r++ {
				s += x1.At(i, r) * h.vhfCA.At(r, q)
			}
			x2.Set(i, q, x2.At(i, q)+2*s)
		}
	}

	xv := mul(x1, h.eris.VhfC)
	for u := 0; u < ncas; u++ {
		for q := 0; q < nmo; q++ {
			var s float64
			for w := 0; w < ncas; w++ {
				s += h.casdm1.At(u, w) * xv.At(ncore+w, q)
			}
			x2.Set(ncore+u, q, x2.At(ncore+u, q)+s)
		}
	}

	t := h.contractHDM2(x1)
	for p := 0; p < nmo; p++ {
		for u := 0; u < ncas; u++ {
			x2.Set(p, ncore+u, x2.At(p, ncore+u)+t.At(p, u))
		}
	}

	if ncore > 0 {
		va, vc := h.updateJKInAH(x1)
		for u := 0; u < ncas; u++ {
			for q := 0; q < nmo; q++ {
				x2.Set(ncore+u, q, x2.At(ncore+u, q)+va.At(u, q))
			}
		}
		for i := 0; i < ncore; i++ {
			for q := ncore; q < nmo; q++ {
				x2.Set(i, q, x2.At(i, q)+vc.At(i, q-ncore))
			}
		}
	}
	return h.c.PackUniqVar(antisym(x2))
}

// updateJKInAH returns the core-response terms of the Hessian for the rotation r.
func (h *GHop) updateJKInAH(r *mat.Dense) (*mat.Dense, *mat.Dense) {
	nmo, ncore, ncas := h.nmo, h.ncore, h.ncas
	nocc := ncore + ncas
	mo := h.mo
	nao, _ := mo.Dims()

	// dm3 = C_core r[:ncore, ncore:] C[:, ncore:]^T + h.c.
	dm3 := mat.NewDense(nao, nao, nil)
	rc := mat.NewDense(ncore, nao, nil)
	for i := 0; i < ncore; i++ {
		for a := 0; a < nao; a++ {
			var s float64
			for q := ncore; q < nmo; q++ {
				s += r.At(i, q) * mo.At(a, q)
			}
			rc.Set(i, a, s)
		}
	}
	for a := 0; a < nao; a++ {
		for b := 0; b < nao; b++ {
			var s float64
			for i := 0; i < ncore; i++ {
				s += mo.At(a, i) * rc.At(i, b)
			}
			dm3.Set(a, b, s)
		}
	}
	dm3 = plusT(dm3)

	// dm4 = C_act casdm1 r[act] C^T + h.c.
	moA := cols(mo, ncore, nocc)
	ra := mat.NewDense(ncas, nmo, nil)
	for u := 0; u < ncas; u++ {
		for q := 0; q < nmo; q++ {
			ra.Set(u, q, r.At(ncore+u, q))
		}
	}
	dm4 := mul(mul(mul(moA, h.casdm1), ra), mo.T())
	dm4 = plusT(dm4)

	dm34 := mat.NewDense(nao, nao, nil)
	dm34.Scale(2, dm3)
	dm34.Add(dm34, dm4)
	vj, vk := h.c.mf.GetJK(dm3, dm34)
	v := make([]*mat.Dense, 2)
	for k := range v {
		v[k] = mat.NewDense(nao, nao, nil)
		v[k].Scale(2, vj[k])
		v[k].Sub(v[k], vk[k])
	}

	va := mul(mul(h.casdm1, moA.T()), mul(v[0], mo))
	moC := cols(mo, 0, ncore)
	moV := cols(mo, ncore, nmo)
	vc := sandwich(moC, v[1], moV)
	return va, vc
}
