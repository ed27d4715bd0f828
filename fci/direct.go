package fci

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// space is the determinant basis of norb orbitals with nelec[0] alpha and nelec[1] beta electrons.
// A CI vector c is stored row-major with c[ia*nb+ib].
type space struct {
	norb  int
	nelec [2]int
	a, b  *stringSet
}

func (sp *space) size() int { return len(sp.a.strs) * len(sp.b.strs) }

var (
	spacesMu sync.Mutex
	spaces   = make(map[[3]int]*space)
)

func getSpace(norb int, nelec [2]int) *space {
	spacesMu.Lock()
	defer spacesMu.Unlock()
	key := [3]int{norb, nelec[0], nelec[1]}
	if s, ok := spaces[key]; ok {
		return s
	}
	s := &space{norb: norb, nelec: nelec, a: newStringSet(norb, nelec[0]), b: newStringSet(norb, nelec[1])}
	spaces[key] = s
	return s
}

// Size returns the number of determinants.
func Size(norb int, nelec [2]int) int {
	return getSpace(norb, nelec).size()
}

// AbsorbH1e folds the one-electron integrals into a two-electron operator so that
// Contract2e(AbsorbH1e(h1, eri, norb, nelec, 0.5), c) equals H c, where
// H = sum_pq h1_pq E_pq + 1/2 sum_pqrs (pq|rs) (E_pq E_rs - delta_qr E_ps).
func AbsorbH1e(h1 mat.Matrix, eri []float64, norb int, nelec [2]int, fac float64) []float64 {
	n2 := norb * norb
	h1e := make([]float64, n2)
	for p := 0; p < norb; p++ {
		for q := 0; q < norb; q++ {
			v := h1.At(p, q)
			for r := 0; r < norb; r++ {
				v -= 0.5 * eri[((p*norb+r)*norb+r)*norb+q]
			}
			h1e[p*norb+q] = v
		}
	}
	ne := float64(nelec[0] + nelec[1])
	if ne == 0 {
		ne = 1
	}
	h2 := make([]float64, n2*n2)
	copy(h2, eri)
	for pq := 0; pq < n2; pq++ {
		f := h1e[pq] / ne
		for k := 0; k < norb; k++ {
			kk := k*norb + k
			h2[pq*n2+kk] += f
			h2[kk*n2+pq] += f
		}
	}
	floats.Scale(fac, h2)
	return h2
}

// Contract2e returns sum_pqrs h2eff_pqrs E_pq E_rs c.
func Contract2e(h2eff []float64, c []float64, norb int, nelec [2]int) []float64 {
	sp := getSpace(norb, nelec)
	out := make([]float64, len(c))
	sp.contract(h2eff, c, out)
	return out
}

func (sp *space) contract(h2eff, c, out []float64) {
	n2 := sp.norb * sp.norb
	nb := len(sp.b.strs)
	second := func(ka, kb, rs int, v float64) {
		for _, l := range sp.a.links[ka] {
			out[l.addr*nb+kb] += h2eff[(l.p*sp.norb+l.q)*n2+rs] * l.sign * v
		}
		for _, l := range sp.b.links[kb] {
			out[ka*nb+l.addr] += h2eff[(l.p*sp.norb+l.q)*n2+rs] * l.sign * v
		}
	}
	for ia := range sp.a.strs {
		for ib := range sp.b.strs {
			v := c[ia*nb+ib]
			if v == 0 {
				continue
			}
			for _, l := range sp.a.links[ia] {
				second(l.addr, ib, l.p*sp.norb+l.q, l.sign*v)
			}
			for _, l := range sp.b.links[ib] {
				second(ia, l.addr, l.p*sp.norb+l.q, l.sign*v)
			}
		}
	}
}

// excitations returns t[pq] = E_pq c.
func (sp *space) excitations(c []float64) [][]float64 {
	nb := len(sp.b.strs)
	t := make([][]float64, sp.norb*sp.norb)
	for i := range t {
		t[i] = make([]float64, len(c))
	}
	for ia := range sp.a.strs {
		for ib := range sp.b.strs {
			v := c[ia*nb+ib]
			if v == 0 {
				continue
			}
			for _, l := range sp.a.links[ia] {
				t[l.p*sp.norb+l.q][l.addr*nb+ib] += l.sign * v
			}
			for _, l := range sp.b.links[ib] {
				t[l.p*sp.norb+l.q][ia*nb+l.addr] += l.sign * v
			}
		}
	}
	return t
}

// MakeRDM12 returns the spin-traced density matrices dm1_pq = <E_pq> and
// dm2_pqrs = <E_pq E_rs> - delta_qr dm1_ps, the latter row-major with dimension norb^4.
func MakeRDM12(c []float64, norb int, nelec [2]int) (*mat.Dense, []float64) {
	sp := getSpace(norb, nelec)
	t := sp.excitations(c)
	dm1 := mat.NewDense(norb, norb, nil)
	for p := 0; p < norb; p++ {
		for q := 0; q < norb; q++ {
			dm1.Set(p, q, floats.Dot(c, t[p*norb+q]))
		}
	}
	n2 := norb * norb
	dm2 := make([]float64, n2*n2)
	for p := 0; p < norb; p++ {
		for q := 0; q < norb; q++ {
			tqp := t[q*norb+p]
			for rs := 0; rs < n2; rs++ {
				dm2[(p*norb+q)*n2+rs] = floats.Dot(tqp, t[rs])
			}
			for s := 0; s < norb; s++ {
				dm2[((p*norb+q)*norb+q)*norb+s] -= dm1.At(p, s)
			}
		}
	}
	return dm1, dm2
}

// SpinSquare returns <S^2> and the multiplicity 2S+1.
func SpinSquare(c []float64, norb int, nelec [2]int) (float64, float64) {
	_, dm2 := MakeRDM12(c, norb, nelec)
	n := float64(nelec[0] + nelec[1])
	ss := n * (4 - n) / 4
	for p := 0; p < norb; p++ {
		for q := 0; q < norb; q++ {
			ss -= 0.5 * dm2[((p*norb+q)*norb+q)*norb+p]
		}
	}
	if math.Abs(ss) < 1e-12 {
		ss = 0
	}
	s := math.Sqrt(ss+0.25) - 0.5
	return ss, 2*s + 1
}

// diagonal returns <I|H|I> for every determinant I.
func (sp *space) diagonal(h1 mat.Matrix, eri []float64) []float64 {
	norb := sp.norb
	jk := func(i, j int) (float64, float64) {
		return eri[((i*norb+i)*norb+j)*norb+j], eri[((i*norb+j)*norb+j)*norb+i]
	}
	nb := len(sp.b.strs)
	hd := make([]float64, sp.size())
	occB := make([][]int, nb)
	for ib, s := range sp.b.strs {
		occB[ib] = occupied(s, norb)
	}
	sameSpin := func(occ []int) float64 {
		var e float64
		for _, i := range occ {
			e += h1.At(i, i)
			for _, j := range occ {
				jv, kv := jk(i, j)
				e += 0.5 * (jv - kv)
			}
		}
		return e
	}
	eb := make([]float64, nb)
	for ib := range sp.b.strs {
		eb[ib] = sameSpin(occB[ib])
	}
	for ia, s := range sp.a.strs {
		occA := occupied(s, norb)
		ea := sameSpin(occA)
		for ib := range sp.b.strs {
			e := ea + eb[ib]
			for _, i := range occA {
				for _, j := range occB[ib] {
					jv, _ := jk(i, j)
					e += jv
				}
			}
			hd[ia*nb+ib] = e
		}
	}
	return hd
}
