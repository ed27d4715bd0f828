// Package ao2mo transforms two-electron integrals from the atomic to the molecular orbital basis.
package ao2mo

import (
	"gonum.org/v1/gonum/mat"
)

// General returns (ij|kl) with i, j, k, l running over the columns of c1, c2, c3, c4.
// eri holds the AO integrals (pq|rs) row-major with dimension nao^4.
// The result is row-major with shape (n1, n2, n3, n4).
func General(eri []float64, c1, c2, c3, c4 mat.Matrix) []float64 {
	nao, n1 := c1.Dims()
	_, n2 := c2.Dims()
	_, n3 := c3.Dims()
	_, n4 := c4.Dims()

	// (pq|rs) -> (pq|rl)
	t1 := quarter(eri, nao*nao*nao, nao, c4, n4)
	// (pq|rl) -> (pq|kl)
	t2 := make([]float64, nao*nao*n3*n4)
	for pq := 0; pq < nao*nao; pq++ {
		for k := 0; k < n3; k++ {
			out := t2[(pq*n3+k)*n4 : (pq*n3+k+1)*n4]
			for r := 0; r < nao; r++ {
				c := c3.At(r, k)
				if c == 0 {
					continue
				}
				in := t1[(pq*nao+r)*n4 : (pq*nao+r+1)*n4]
				for l, v := range in {
					out[l] += c * v
				}
			}
		}
	}
	// (pq|kl) -> (pj|kl)
	m := n3 * n4
	t3 := make([]float64, nao*n2*m)
	for p := 0; p < nao; p++ {
		for j := 0; j < n2; j++ {
			out := t3[(p*n2+j)*m : (p*n2+j+1)*m]
			for q := 0; q < nao; q++ {
				c := c2.At(q, j)
				if c == 0 {
					continue
				}
				in := t2[(p*nao+q)*m : (p*nao+q+1)*m]
				for kl, v := range in {
					out[kl] += c * v
				}
			}
		}
	}
	// (pj|kl) -> (ij|kl)
	m = n2 * n3 * n4
	t4 := make([]float64, n1*m)
	for i := 0; i < n1; i++ {
		out := t4[i*m : (i+1)*m]
		for p := 0; p < nao; p++ {
			c := c1.At(p, i)
			if c == 0 {
				continue
			}
			in := t3[p*m : (p+1)*m]
			for jkl, v := range in {
				out[jkl] += c * v
			}
		}
	}
	return t4
}

// Full returns (ij|kl) with all indices running over the columns of c.
func Full(eri []float64, c mat.Matrix) []float64 {
	return General(eri, c, c, c, c)
}

// quarter contracts the last index of a (rows, nao) array with c.
func quarter(a []float64, rows, nao int, c mat.Matrix, n int) []float64 {
	out := make([]float64, rows*n)
	for r := 0; r < rows; r++ {
		in := a[r*nao : (r+1)*nao]
		o := out[r*n : (r+1)*n]
		for s, v := range in {
			if v == 0 {
				continue
			}
			for l := 0; l < n; l++ {
				o[l] += v * c.At(s, l)
			}
		}
	}
	return out
}
