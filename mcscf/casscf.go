// Package mcscf implements the one-step CASSCF optimizer: orbital rotations are
// found with an augmented-Hessian Newton method coupled to an approximate CI response.
package mcscf

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// CASSCF optimizes orbitals and the active-space wavefunction together.
type CASSCF struct {
	Options
	NCore   int
	NCAS    int
	NElecAS [2]int

	// Callback, when set, observes every micro and macro iteration.
	Callback func(Event)
	// Chk, when set, receives a snapshot after every macro iteration.
	Chk Checkpointer

	mf     MeanField
	solver CISolver
	caps   capabilities
	nmo    int
	// depFallback is true when the exact dep4 keyframe gradient cannot be used.
	depFallback bool
	// mo0 holds the starting orbitals of the latest Kernel call, for overlap diagnostics.
	mo0 *mat.Dense
}

// New returns a CASSCF with ncas active orbitals holding nelecas electrons above ncore core orbitals.
func New(mf MeanField, ncore, ncas int, nelecas [2]int, solver CISolver) (*CASSCF, error) {
	nmo := mf.NAO()
	if ncore < 0 || ncas < 1 || ncore+ncas > nmo {
		return nil, errors.Wrapf(ErrInvalidPartition, "ncore %d ncas %d nmo %d", ncore, ncas, nmo)
	}
	if nelecas[0] < 0 || nelecas[1] < 0 || nelecas[0] > ncas || nelecas[1] > ncas {
		return nil, errors.Wrapf(ErrInvalidPartition, "%v electrons in %d active orbitals", nelecas, ncas)
	}
	c := &CASSCF{
		Options: DefaultOptions(),
		NCore:   ncore,
		NCAS:    ncas,
		NElecAS: nelecas,
		mf:      mf,
		solver:  solver,
		caps:    resolveCapabilities(solver),
		nmo:     nmo,
	}
	if df, ok := mf.(DensityFitted); ok && df.DensityFitted() {
		c.depFallback = true
	}
	if u, ok := mf.(Unrestricted); ok && u.Unrestricted() {
		c.depFallback = true
	}
	return c, nil
}

// uniqVarIndices returns, in row-major order, the flat indices of the non-redundant rotations.
func (c *CASSCF) uniqVarIndices() []int {
	nmo, ncore, ncas := c.nmo, c.NCore, c.NCAS
	nocc := ncore + ncas
	mask := make([]bool, nmo*nmo)
	for i := ncore; i < nocc; i++ {
		for j := 0; j < ncore; j++ {
			mask[i*nmo+j] = true
		}
	}
	for i := nocc; i < nmo; i++ {
		for j := 0; j < nocc; j++ {
			mask[i*nmo+j] = true
		}
	}
	if c.InternalRotation {
		for i := ncore; i < nocc; i++ {
			for j := ncore; j < i; j++ {
				mask[i*nmo+j] = true
			}
		}
	}
	freeze := func(k int) {
		if k < 0 || k >= nmo {
			return
		}
		for j := 0; j < nmo; j++ {
			mask[k*nmo+j] = false
			mask[j*nmo+k] = false
		}
	}
	for k := 0; k < c.Frozen.Count; k++ {
		freeze(k)
	}
	for _, k := range c.Frozen.Indices {
		freeze(k)
	}

	idx := make([]int, 0)
	for i, ok := range mask {
		if ok {
			idx = append(idx, i)
		}
	}
	return idx
}

// validateFrozen checks the frozen orbitals against the number of orbitals.
func (c *CASSCF) validateFrozen() error {
	if c.Frozen.Count > c.nmo {
		return errors.Wrapf(ErrInvalidOptions, "frozen %d, only %d orbitals", c.Frozen.Count, c.nmo)
	}
	for _, k := range c.Frozen.Indices {
		if k >= c.nmo {
			return errors.Wrapf(ErrInvalidOptions, "frozen orbital %d, only %d orbitals", k, c.nmo)
		}
	}
	return nil
}

// PackUniqVar extracts the non-redundant elements of an nmo x nmo matrix.
func (c *CASSCF) PackUniqVar(m mat.Matrix) []float64 {
	idx := c.uniqVarIndices()
	v := make([]float64, len(idx))
	for k, i := range idx {
		v[k] = m.At(i/c.nmo, i%c.nmo)
	}
	return v
}

// UnpackUniqVar returns the antisymmetric matrix whose lower non-redundant part is v.
func (c *CASSCF) UnpackUniqVar(v []float64) *mat.Dense {
	idx := c.uniqVarIndices()
	m := mat.NewDense(c.nmo, c.nmo, nil)
	for k, i := range idx {
		p, q := i/c.nmo, i%c.nmo
		m.Set(p, q, m.At(p, q)+v[k])
		m.Set(q, p, m.At(q, p)-v[k])
	}
	return m
}

// UpdateRotateMatrix returns u0 exp(unpack(dx)), with u0 the identity when nil.
func (c *CASSCF) UpdateRotateMatrix(dx []float64, u0 *mat.Dense) *mat.Dense {
	var u mat.Dense
	u.Exp(c.UnpackUniqVar(dx))
	if u0 == nil {
		return &u
	}
	var out mat.Dense
	out.Mul(u0, &u)
	return &out
}
