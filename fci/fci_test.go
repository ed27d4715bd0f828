package fci

import (
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/fumin/casscf/ao2mo"
	"github.com/fumin/casscf/integrals"
	"github.com/fumin/casscf/scf"
)

// randomHamiltonian returns a symmetric h1 and a positive semidefinite eri with eightfold symmetry.
func randomHamiltonian(norb int, seed int64) (*mat.Dense, []float64) {
	rng := rand.New(rand.NewSource(seed))
	h1 := mat.NewDense(norb, norb, nil)
	for i := 0; i < norb; i++ {
		for j := 0; j <= i; j++ {
			v := rng.NormFloat64() * 0.5
			if i == j {
				v -= float64(norb-i) * 0.5
			}
			h1.Set(i, j, v)
			h1.Set(j, i, v)
		}
	}
	n2 := norb * norb
	eri := make([]float64, n2*n2)
	for l := 0; l < 3; l++ {
		b := make([]float64, n2)
		for i := 0; i < norb; i++ {
			for j := 0; j <= i; j++ {
				v := rng.NormFloat64() * 0.3
				b[i*norb+j] = v
				b[j*norb+i] = v
			}
		}
		for pq := 0; pq < n2; pq++ {
			for rs := 0; rs < n2; rs++ {
				eri[pq*n2+rs] += b[pq] * b[rs]
			}
		}
	}
	return h1, eri
}

func energyFromRDM(h1 mat.Matrix, eri []float64, dm1 mat.Matrix, dm2 []float64, norb int) float64 {
	var e float64
	for p := 0; p < norb; p++ {
		for q := 0; q < norb; q++ {
			e += h1.At(p, q) * dm1.At(p, q)
		}
	}
	return e + 0.5*floats.Dot(eri, dm2)
}

func TestStrings(t *testing.T) {
	t.Parallel()
	tests := []struct {
		norb  int
		nelec int
		strs  []uint64
	}{
		{norb: 4, nelec: 2, strs: []uint64{0b0011, 0b0101, 0b0110, 0b1001, 0b1010, 0b1100}},
		{norb: 3, nelec: 0, strs: []uint64{0}},
		{norb: 3, nelec: 3, strs: []uint64{0b111}},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%d %d", test.norb, test.nelec), func(t *testing.T) {
			t.Parallel()
			ss := newStringSet(test.norb, test.nelec)
			if len(ss.strs) != len(test.strs) {
				t.Fatalf("%b, expected %b", ss.strs, test.strs)
			}
			for i, s := range test.strs {
				if ss.strs[i] != s {
					t.Fatalf("%b, expected %b", ss.strs, test.strs)
				}
			}
			for i, links := range ss.links {
				if len(links) != test.nelec*(test.norb-test.nelec+1) {
					t.Fatalf("%d %d", i, len(links))
				}
			}
		})
	}
}

func TestParity(t *testing.T) {
	t.Parallel()
	// a2^+ a0 on |0 1> with orbital 1 in between.
	if s := parity(0b010, 2, 0); s != -1 {
		t.Fatalf("%f", s)
	}
	if s := parity(0b1001, 1, 2); s != 1 {
		t.Fatalf("%f", s)
	}
}

func TestOneOrbital(t *testing.T) {
	t.Parallel()
	h1 := mat.NewDense(1, 1, []float64{-1})
	eri := []float64{0.5}
	e, c, err := NewSolver().Kernel(h1, eri, 1, [2]int{1, 1}, nil, 0.25, 0, 0)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if math.Abs(e[0]-(-1.25)) > 1e-12 || math.Abs(math.Abs(c[0][0])-1) > 1e-12 {
		t.Fatalf("%v %v", e, c)
	}
}

func TestDenseDavidson(t *testing.T) {
	t.Parallel()
	tests := []struct {
		norb   int
		nelec  [2]int
		nroots int
	}{
		{norb: 4, nelec: [2]int{2, 2}, nroots: 1},
		{norb: 5, nelec: [2]int{2, 1}, nroots: 1},
		{norb: 4, nelec: [2]int{2, 2}, nroots: 3},
	}
	for i, test := range tests {
		t.Run(fmt.Sprintf("%d %v %d", test.norb, test.nelec, test.nroots), func(t *testing.T) {
			t.Parallel()
			h1, eri := randomHamiltonian(test.norb, int64(i))
			dense := NewSolver()
			dense.NRoots = test.nroots
			ed, cd, err := dense.Kernel(h1, eri, test.norb, test.nelec, nil, 0, 0, 0)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			if len(ed) != test.nroots || len(cd) != test.nroots {
				t.Fatalf("%d %d", len(ed), len(cd))
			}
			for k := 1; k < len(ed); k++ {
				if ed[k] < ed[k-1] {
					t.Fatalf("%v", ed)
				}
			}

			davidson := NewSolver()
			davidson.NRoots = test.nroots
			davidson.DenseLimit = 0
			ev, cv, err := davidson.Kernel(h1, eri, test.norb, test.nelec, nil, 0, 1e-12, 200)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			for k := range ed {
				if math.Abs(ed[k]-ev[k]) > 1e-8 {
					t.Fatalf("%d %v, expected %v", k, ev, ed)
				}
			}
			if ovlp := math.Abs(floats.Dot(cd[0], cv[0])); math.Abs(ovlp-1) > 1e-5 {
				t.Fatalf("%f", ovlp)
			}
		})
	}
}

func TestRDM(t *testing.T) {
	t.Parallel()
	const norb = 4
	nelec := [2]int{2, 1}
	h1, eri := randomHamiltonian(norb, 7)
	e, c, err := NewSolver().Kernel(h1, eri, norb, nelec, nil, 0, 0, 0)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	dm1, dm2 := MakeRDM12(c[0], norb, nelec)
	n := float64(nelec[0] + nelec[1])
	if tr := mat.Trace(dm1); math.Abs(tr-n) > 1e-10 {
		t.Fatalf("%f", tr)
	}
	var tr2 float64
	for p := 0; p < norb; p++ {
		for q := 0; q < norb; q++ {
			tr2 += dm2[((p*norb+p)*norb+q)*norb+q]
			if math.Abs(dm1.At(p, q)-dm1.At(q, p)) > 1e-12 {
				t.Fatalf("%d %d", p, q)
			}
		}
	}
	if math.Abs(tr2-n*(n-1)) > 1e-10 {
		t.Fatalf("%f", tr2)
	}
	if erdm := energyFromRDM(h1, eri, dm1, dm2, norb); math.Abs(erdm-e[0]) > 1e-10 {
		t.Fatalf("%f %f", erdm, e[0])
	}

	// <c|H|c> for an arbitrary normalized vector.
	rng := rand.New(rand.NewSource(3))
	x := make([]float64, Size(norb, nelec))
	for i := range x {
		x[i] = rng.NormFloat64()
	}
	floats.Scale(1/floats.Norm(x, 2), x)
	hx := Contract2e(AbsorbH1e(h1, eri, norb, nelec, 0.5), x, norb, nelec)
	dm1, dm2 = MakeRDM12(x, norb, nelec)
	if ex, erdm := floats.Dot(x, hx), energyFromRDM(h1, eri, dm1, dm2, norb); math.Abs(ex-erdm) > 1e-10 {
		t.Fatalf("%f %f", ex, erdm)
	}
}

func TestDiagonal(t *testing.T) {
	t.Parallel()
	const norb = 4
	nelec := [2]int{2, 2}
	h1, eri := randomHamiltonian(norb, 11)
	sp := getSpace(norb, nelec)
	hd := sp.diagonal(h1, eri)
	h2eff := AbsorbH1e(h1, eri, norb, nelec, 0.5)
	unit := make([]float64, sp.size())
	for i := range unit {
		unit[i] = 1
		hx := Contract2e(h2eff, unit, norb, nelec)
		if math.Abs(hx[i]-hd[i]) > 1e-10 {
			t.Fatalf("%d %f, expected %f", i, hd[i], hx[i])
		}
		unit[i] = 0
	}
}

func TestH2(t *testing.T) {
	t.Parallel()
	tests := []struct {
		basis string
		e     float64
	}{
		{basis: "sto-3g", e: -1.13727594},
		{basis: "6-31g", e: math.NaN()},
	}
	for _, test := range tests {
		t.Run(test.basis, func(t *testing.T) {
			t.Parallel()
			a, _ := integrals.NewAtom("H", 0, 0, 0)
			b, _ := integrals.NewAtom("H", 0, 0, 1.4)
			mol, err := integrals.NewMolecule([]integrals.Atom{a, b}, test.basis, 0)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			mf, err := scf.NewRHF(mol)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			ehf, err := mf.Kernel()
			if err != nil {
				t.Fatalf("%+v", err)
			}

			norb := mf.NAO()
			var h1 mat.Dense
			h1.Mul(mf.MoCoeff.T(), mf.HCore())
			h1.Mul(&h1, mf.MoCoeff)
			eri := ao2mo.Full(mf.ERI(), mf.MoCoeff)
			e, c, err := NewSolver().Kernel(&h1, eri, norb, [2]int{1, 1}, nil, mf.EnergyNuc(), 0, 0)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			if !math.IsNaN(test.e) && math.Abs(e[0]-test.e) > 1e-6 {
				t.Fatalf("%f, expected %f", e[0], test.e)
			}
			if e[0] >= ehf {
				t.Fatalf("%f %f", e[0], ehf)
			}
			ss, multip := SpinSquare(c[0], norb, [2]int{1, 1})
			if math.Abs(ss) > 1e-8 || math.Abs(multip-1) > 1e-8 {
				t.Fatalf("%f %f", ss, multip)
			}
		})
	}
}

func TestSpinSquareTriplet(t *testing.T) {
	t.Parallel()
	// One alpha and one beta electron in orbitals 0 and 1, antisymmetric in the alpha and beta strings.
	norb := 2
	nelec := [2]int{1, 1}
	c := make([]float64, Size(norb, nelec))
	// c[ia*nb+ib], strings are 0b01 and 0b10.
	c[0*2+1] = 1 / math.Sqrt2
	c[1*2+0] = -1 / math.Sqrt2
	ss, multip := SpinSquare(c, norb, nelec)
	if math.Abs(ss-2) > 1e-12 || math.Abs(multip-3) > 1e-12 {
		t.Fatalf("%f %f", ss, multip)
	}
}

func TestMain(m *testing.M) {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds | log.Llongfile | log.LstdFlags)

	m.Run()
}
