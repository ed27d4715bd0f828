package mcscf

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Canonical holds canonicalized orbitals with the matching CI vector.
type Canonical struct {
	MoCoeff  *mat.Dense
	CI       []float64
	MoEnergy []float64
	CasDM1   *mat.Dense
}

// Canonicalize diagonalizes the core and virtual blocks of the generalized Fock matrix.
// With NatOrb, the active orbitals become natural orbitals in descending occupation
// and the CI vector is solved again in them.
func (c *CASSCF) Canonicalize(mo *mat.Dense, ci []float64, eris *ERIS, casdm1 *mat.Dense) (Canonical, error) {
	nmo, ncore, ncas := c.nmo, c.NCore, c.NCAS
	nocc := ncore + ncas
	if casdm1 == nil {
		casdm1, _ = c.solver.MakeRDM12(ci, ncas, c.NElecAS)
	}
	fock := c.fockMO(mo, eris, casdm1)

	rot := eye(nmo)
	blocks := [][2]int{{0, ncore}, {nocc, nmo}}
	if c.NatOrb {
		blocks = append(blocks, [2]int{ncore, nocc})
	}
	for _, b := range blocks {
		lo, hi := b[0], b[1]
		if hi <= lo {
			continue
		}
		var vecs *mat.Dense
		var ok bool
		if lo == ncore && hi == nocc {
			_, vecs, ok = naturalOrbitals(casdm1)
		} else {
			_, vecs, ok = symEig(fock.Slice(lo, hi, lo, hi))
		}
		if !ok {
			return Canonical{}, errors.Errorf("eigendecomposition of block [%d, %d) failed", lo, hi)
		}
		for i := lo; i < hi; i++ {
			for j := lo; j < hi; j++ {
				rot.Set(i, j, vecs.At(i-lo, j-lo))
			}
		}
	}

	can := Canonical{MoCoeff: mul(mo, rot), CI: ci, CasDM1: casdm1}
	f1 := sandwich(rot, fock, rot)
	can.MoEnergy = make([]float64, nmo)
	for i := range can.MoEnergy {
		can.MoEnergy[i] = f1.At(i, i)
	}

	if c.NatOrb {
		eris1 := c.AO2MO(can.MoCoeff)
		_, _, ci1, err := c.casci(can.MoCoeff, nil, eris1)
		if err != nil {
			return Canonical{}, errors.Wrap(err, "")
		}
		can.CI = ci1
		can.CasDM1, _ = c.solver.MakeRDM12(ci1, ncas, c.NElecAS)
	}
	return can, nil
}

// fockMO returns the generalized Fock matrix h + V_core + V_active in the orbitals mo.
func (c *CASSCF) fockMO(mo *mat.Dense, eris *ERIS, casdm1 *mat.Dense) *mat.Dense {
	vj, vk := c.mf.GetJK(activeDensity(mo, c.NCore, casdm1))
	f := sandwich(mo, c.mf.HCore(), mo)
	f.Add(f, eris.VhfC)
	f.Add(f, sandwich(mo, jMinusHalfK(vj, vk)[0], mo))
	return f
}

func (c *CASSCF) fockEnergies(mo *mat.Dense, eris *ERIS, casdm1 *mat.Dense) []float64 {
	f := c.fockMO(mo, eris, casdm1)
	e := make([]float64, c.nmo)
	for i := range e {
		e[i] = f.At(i, i)
	}
	return e
}

// naturalOrbitals returns the occupations of casdm1 in descending order with the orbitals in columns.
func naturalOrbitals(casdm1 mat.Matrix) ([]float64, *mat.Dense, bool) {
	vals, vecs, ok := symEig(casdm1)
	if !ok {
		return nil, nil, false
	}
	n := len(vals)
	occ := make([]float64, n)
	out := mat.NewDense(n, n, nil)
	for k := 0; k < n; k++ {
		occ[k] = vals[n-1-k]
		for i := 0; i < n; i++ {
			out.Set(i, k, vecs.At(i, n-1-k))
		}
	}
	return occ, out, true
}

func naturalOccupations(casdm1 mat.Matrix) []float64 {
	occ, _, _ := naturalOrbitals(casdm1)
	return occ
}
