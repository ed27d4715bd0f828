package mcscf

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

func eye(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}

// cols copies columns [j, l) of a into a new matrix, nil when empty.
func cols(a mat.Matrix, j, l int) *mat.Dense {
	r, _ := a.Dims()
	if l <= j {
		return nil
	}
	m := mat.NewDense(r, l-j, nil)
	for i := 0; i < r; i++ {
		for k := j; k < l; k++ {
			m.Set(i, k-j, a.At(i, k))
		}
	}
	return m
}

func mul(a, b mat.Matrix) *mat.Dense {
	var m mat.Dense
	m.Mul(a, b)
	return &m
}

// sandwich returns a^T m b.
func sandwich(a, m, b mat.Matrix) *mat.Dense {
	var t, out mat.Dense
	t.Mul(a.T(), m)
	out.Mul(&t, b)
	return &out
}

// plusT returns a + a^T.
func plusT(a *mat.Dense) *mat.Dense {
	var m mat.Dense
	m.Add(a, a.T())
	return &m
}

// frobenius returns the Frobenius norm of a.
func frobenius(a mat.Matrix) float64 {
	r, c := a.Dims()
	var s float64
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := a.At(i, j)
			s += v * v
		}
	}
	return math.Sqrt(s)
}

// jMinusHalfK returns J - K/2 for each density matrix.
func jMinusHalfK(vj, vk []*mat.Dense) []*mat.Dense {
	out := make([]*mat.Dense, len(vj))
	for i := range vj {
		var m mat.Dense
		m.Scale(-0.5, vk[i])
		m.Add(&m, vj[i])
		out[i] = &m
	}
	return out
}

// coreDensity returns 2 C_core C_core^T for the first ncore columns of mo.
func coreDensity(mo mat.Matrix, ncore int) *mat.Dense {
	nao, _ := mo.Dims()
	dm := mat.NewDense(nao, nao, nil)
	for i := 0; i < nao; i++ {
		for j := 0; j < nao; j++ {
			var v float64
			for k := 0; k < ncore; k++ {
				v += mo.At(i, k) * mo.At(j, k)
			}
			dm.Set(i, j, 2*v)
		}
	}
	return dm
}

// activeDensity returns C_act casdm1 C_act^T.
func activeDensity(mo mat.Matrix, ncore int, casdm1 mat.Matrix) *mat.Dense {
	ncas, _ := casdm1.Dims()
	moA := cols(mo, ncore, ncore+ncas)
	var t, out mat.Dense
	t.Mul(moA, casdm1)
	out.Mul(&t, moA.T())
	return &out
}

// symEig diagonalizes the symmetric part of a and returns ascending eigenvalues with eigenvectors in columns.
func symEig(a mat.Matrix) ([]float64, *mat.Dense, bool) {
	n, _ := a.Dims()
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			s.SetSym(i, j, 0.5*(a.At(i, j)+a.At(j, i)))
		}
	}
	var eig mat.EigenSym
	if ok := eig.Factorize(s, true); !ok {
		return nil, nil, false
	}
	var v mat.Dense
	eig.VectorsTo(&v)
	return eig.Values(nil), &v, true
}
