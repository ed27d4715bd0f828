package mcscf

import (
	"gonum.org/v1/gonum/mat"

	"github.com/fumin/casscf/ao2mo"
)

// ERIS caches the integrals of the current orbitals that the optimizer needs.
// It is rebuilt after every macro iteration and never modified in between,
// apart from the exact paaa block attached by the dep4 CI update.
type ERIS struct {
	nmo, ncore, ncas int

	// PPAA is (pq|uv) with shape (nmo, nmo, ncas, ncas).
	PPAA []float64
	// PAPA is (pu|qv) with shape (nmo, ncas, nmo, ncas).
	PAPA []float64
	// VhfC is the core Coulomb-exchange potential C^T (J - K/2)[D_core] C.
	VhfC *mat.Dense
	// JPC is (pp|ii) and KPC is (pi|ip) for p in all orbitals and i in core, shape (nmo, ncore).
	JPC, KPC *mat.Dense

	paaa  []float64
	paaaU *mat.Dense
}

// AO2MO builds the integral cache of orbitals mo.
func (c *CASSCF) AO2MO(mo *mat.Dense) *ERIS {
	nmo, ncore, ncas := c.nmo, c.NCore, c.NCAS
	nocc := ncore + ncas
	eri := c.mf.ERI()
	moA := cols(mo, ncore, nocc)

	e := &ERIS{nmo: nmo, ncore: ncore, ncas: ncas}
	e.PPAA = ao2mo.General(eri, mo, mo, moA, moA)
	e.PAPA = ao2mo.General(eri, mo, moA, mo, moA)

	vj, vk := c.mf.GetJK(coreDensity(mo, ncore))
	e.VhfC = sandwich(mo, jMinusHalfK(vj, vk)[0], mo)

	if ncore > 0 {
		moC := cols(mo, 0, ncore)
		ppcc := ao2mo.General(eri, mo, mo, moC, moC)
		pccp := ao2mo.General(eri, mo, moC, moC, mo)
		e.JPC = mat.NewDense(nmo, ncore, nil)
		e.KPC = mat.NewDense(nmo, ncore, nil)
		for p := 0; p < nmo; p++ {
			for i := 0; i < ncore; i++ {
				e.JPC.Set(p, i, ppcc[((p*nmo+p)*ncore+i)*ncore+i])
				e.KPC.Set(p, i, pccp[((p*ncore+i)*ncore+i)*nmo+p])
			}
		}
	}
	return e
}

// ppaa returns (pq|uv).
func (e *ERIS) ppaa(p, q, u, v int) float64 {
	return e.PPAA[((p*e.nmo+q)*e.ncas+u)*e.ncas+v]
}

// papa returns (pu|qv).
func (e *ERIS) papa(p, u, q, v int) float64 {
	return e.PAPA[((p*e.ncas+u)*e.nmo+q)*e.ncas+v]
}

// exactPAAA returns (pu|vw) in the rotated orbitals mo u, shape (nmo, ncas, ncas, ncas).
func (c *CASSCF) exactPAAA(mo, u *mat.Dense) []float64 {
	mo1 := mul(mo, u)
	mo1A := cols(mo1, c.NCore, c.NCore+c.NCAS)
	return ao2mo.General(c.mf.ERI(), mo1, mo1A, mo1A, mo1A)
}

// casERI returns (uv|wx) over the active orbitals.
func (e *ERIS) casERI() []float64 {
	n := e.ncas
	out := make([]float64, n*n*n*n)
	for u := 0; u < n; u++ {
		for v := 0; v < n; v++ {
			src := e.PPAA[((e.ncore+u)*e.nmo+e.ncore+v)*n*n : ((e.ncore+u)*e.nmo+e.ncore+v+1)*n*n]
			copy(out[(u*n+v)*n*n:], src)
		}
	}
	return out
}
