package integrals

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/mathext"
)

// boys returns the Boys function F_n(x).
func boys(n int, x float64) float64 {
	nf := float64(n)
	if x < 1e-12 {
		return 1/(2*nf+1) - x/(2*nf+3)
	}
	return mathext.GammaIncReg(nf+0.5, x) * math.Gamma(nf+0.5) / (2 * math.Pow(x, nf+0.5))
}

func dist2(a, b [3]float64) float64 {
	dx, dy, dz := a[0]-b[0], a[1]-b[1], a[2]-b[2]
	return dx*dx + dy*dy + dz*dz
}

// gaussianCenter returns the center of the product of two Gaussians.
func gaussianCenter(a float64, ra [3]float64, b float64, rb [3]float64) [3]float64 {
	p := a + b
	return [3]float64{
		(a*ra[0] + b*rb[0]) / p,
		(a*ra[1] + b*rb[1]) / p,
		(a*ra[2] + b*rb[2]) / p,
	}
}

func overlapPrim(a float64, ra [3]float64, b float64, rb [3]float64) float64 {
	p := a + b
	return math.Pow(math.Pi/p, 1.5) * math.Exp(-a*b/p*dist2(ra, rb))
}

func overlapShell(s1, s2 Shell) float64 {
	var v float64
	for _, p1 := range s1.Prims {
		for _, p2 := range s2.Prims {
			n := primNorm(p1.Alpha) * primNorm(p2.Alpha) * p1.Coeff * p2.Coeff
			v += n * overlapPrim(p1.Alpha, s1.Center, p2.Alpha, s2.Center)
		}
	}
	return v
}

func kineticShell(s1, s2 Shell) float64 {
	var v float64
	r2 := dist2(s1.Center, s2.Center)
	for _, p1 := range s1.Prims {
		for _, p2 := range s2.Prims {
			n := primNorm(p1.Alpha) * primNorm(p2.Alpha) * p1.Coeff * p2.Coeff
			mu := p1.Alpha * p2.Alpha / (p1.Alpha + p2.Alpha)
			v += n * mu * (3 - 2*mu*r2) * overlapPrim(p1.Alpha, s1.Center, p2.Alpha, s2.Center)
		}
	}
	return v
}

func nuclearShell(s1, s2 Shell, atoms []Atom) float64 {
	var v float64
	r2 := dist2(s1.Center, s2.Center)
	for _, p1 := range s1.Prims {
		for _, p2 := range s2.Prims {
			n := primNorm(p1.Alpha) * primNorm(p2.Alpha) * p1.Coeff * p2.Coeff
			p := p1.Alpha + p2.Alpha
			k := math.Exp(-p1.Alpha * p2.Alpha / p * r2)
			rp := gaussianCenter(p1.Alpha, s1.Center, p2.Alpha, s2.Center)
			for _, a := range atoms {
				v -= n * float64(a.Z) * 2 * math.Pi / p * k * boys(0, p*dist2(rp, a.Coords))
			}
		}
	}
	return v
}

func eriShell(s1, s2, s3, s4 Shell) float64 {
	var v float64
	r12 := dist2(s1.Center, s2.Center)
	r34 := dist2(s3.Center, s4.Center)
	for _, p1 := range s1.Prims {
		for _, p2 := range s2.Prims {
			p := p1.Alpha + p2.Alpha
			kab := math.Exp(-p1.Alpha * p2.Alpha / p * r12)
			rp := gaussianCenter(p1.Alpha, s1.Center, p2.Alpha, s2.Center)
			nab := primNorm(p1.Alpha) * primNorm(p2.Alpha) * p1.Coeff * p2.Coeff
			for _, p3 := range s3.Prims {
				for _, p4 := range s4.Prims {
					q := p3.Alpha + p4.Alpha
					kcd := math.Exp(-p3.Alpha * p4.Alpha / q * r34)
					rq := gaussianCenter(p3.Alpha, s3.Center, p4.Alpha, s4.Center)
					ncd := primNorm(p3.Alpha) * primNorm(p4.Alpha) * p3.Coeff * p4.Coeff
					pre := 2 * math.Pow(math.Pi, 2.5) / (p * q * math.Sqrt(p+q))
					v += nab * ncd * pre * kab * kcd * boys(0, p*q/(p+q)*dist2(rp, rq))
				}
			}
		}
	}
	return v
}

// Ovlp returns the AO overlap matrix.
func (m *Molecule) Ovlp() *mat.Dense {
	return m.oneElectron(overlapShell)
}

// Kinetic returns the AO kinetic energy matrix.
func (m *Molecule) Kinetic() *mat.Dense {
	return m.oneElectron(kineticShell)
}

// Nuclear returns the AO electron-nucleus attraction matrix.
func (m *Molecule) Nuclear() *mat.Dense {
	return m.oneElectron(func(a, b Shell) float64 { return nuclearShell(a, b, m.Atoms) })
}

// HCore returns the core Hamiltonian T + V.
func (m *Molecule) HCore() *mat.Dense {
	h := m.Kinetic()
	h.Add(h, m.Nuclear())
	return h
}

func (m *Molecule) oneElectron(f func(a, b Shell) float64) *mat.Dense {
	n := len(m.Basis)
	out := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			v := f(m.Basis[i], m.Basis[j])
			out.Set(i, j, v)
			out.Set(j, i, v)
		}
	}
	return out
}

// ERI returns the two-electron integrals (ij|kl) in chemists' notation as a
// row-major nao^4 array.
func (m *Molecule) ERI() []float64 {
	n := len(m.Basis)
	eri := make([]float64, n*n*n*n)
	idx := func(i, j, k, l int) int { return ((i*n+j)*n+k)*n + l }
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			for k := 0; k < n; k++ {
				for l := 0; l <= k; l++ {
					if i*(i+1)/2+j < k*(k+1)/2+l {
						continue
					}
					v := eriShell(m.Basis[i], m.Basis[j], m.Basis[k], m.Basis[l])
					for _, ijkl := range [8][4]int{
						{i, j, k, l}, {j, i, k, l}, {i, j, l, k}, {j, i, l, k},
						{k, l, i, j}, {l, k, i, j}, {k, l, j, i}, {l, k, j, i},
					} {
						eri[idx(ijkl[0], ijkl[1], ijkl[2], ijkl[3])] = v
					}
				}
			}
		}
	}
	return eri
}
