package scf

import (
	"gonum.org/v1/gonum/mat"
)

// diis is Pulay's direct inversion in the iterative subspace.
type diis struct {
	space int
	focks []*mat.Dense
	errs  []*mat.Dense
}

func newDIIS(space int) *diis {
	return &diis{space: space}
}

// update records fock and its error vector and returns the extrapolated Fock matrix.
func (d *diis) update(fock, errVec *mat.Dense) *mat.Dense {
	d.focks = append(d.focks, mat.DenseCopyOf(fock))
	d.errs = append(d.errs, mat.DenseCopyOf(errVec))
	if len(d.focks) > d.space {
		d.focks = d.focks[1:]
		d.errs = d.errs[1:]
	}
	n := len(d.focks)
	if n < 2 {
		return fock
	}

	b := mat.NewDense(n+1, n+1, nil)
	for i := 0; i < n; i++ {
		b.Set(i, n, -1)
		b.Set(n, i, -1)
		for j := 0; j <= i; j++ {
			var e mat.Dense
			e.MulElem(d.errs[i], d.errs[j])
			v := mat.Sum(&e)
			b.Set(i, j, v)
			b.Set(j, i, v)
		}
	}
	rhs := mat.NewVecDense(n+1, nil)
	rhs.SetVec(n, -1)

	var lu mat.LU
	lu.Factorize(b)
	var coefs mat.VecDense
	if err := lu.SolveVecTo(&coefs, false, rhs); err != nil {
		return fock
	}
	r, c := fock.Dims()
	out := mat.NewDense(r, c, nil)
	for i, f := range d.focks {
		var part mat.Dense
		part.Scale(coefs.AtVec(i), f)
		out.Add(out, &part)
	}
	return out
}
