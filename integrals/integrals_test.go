package integrals

import (
	"flag"
	"log"
	"math"
	"testing"
)

func h2(t *testing.T, basis string, r float64) *Molecule {
	a, err := NewAtom("H", 0, 0, 0)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	b, err := NewAtom("H", 0, 0, r)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	mol, err := NewMolecule([]Atom{a, b}, basis, 0)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	return mol
}

func TestH2STO3G(t *testing.T) {
	t.Parallel()
	// Values are from Szabo and Ostlund, Modern Quantum Chemistry, section 3.5.2.
	mol := h2(t, "STO-3G", 1.4)
	const tol = 1e-3

	s := mol.Ovlp()
	if math.Abs(s.At(0, 0)-1) > 1e-8 || math.Abs(s.At(0, 1)-0.6593) > tol {
		t.Fatalf("%v", s.RawMatrix().Data)
	}
	kin := mol.Kinetic()
	if math.Abs(kin.At(0, 0)-0.7600) > tol || math.Abs(kin.At(0, 1)-0.2365) > tol {
		t.Fatalf("%v", kin.RawMatrix().Data)
	}
	h := mol.HCore()
	if math.Abs(h.At(0, 0)-(-1.1204)) > tol || math.Abs(h.At(0, 1)-(-0.9584)) > tol {
		t.Fatalf("%v", h.RawMatrix().Data)
	}

	eri := mol.ERI()
	n := mol.NAO()
	at := func(i, j, k, l int) float64 { return eri[((i*n+j)*n+k)*n+l] }
	tests := []struct {
		idx [4]int
		v   float64
	}{
		{idx: [4]int{0, 0, 0, 0}, v: 0.7746},
		{idx: [4]int{1, 1, 1, 1}, v: 0.7746},
		{idx: [4]int{0, 0, 1, 1}, v: 0.5697},
		{idx: [4]int{1, 0, 0, 0}, v: 0.4441},
		{idx: [4]int{0, 1, 1, 1}, v: 0.4441},
		{idx: [4]int{1, 0, 1, 0}, v: 0.2970},
		{idx: [4]int{0, 1, 1, 0}, v: 0.2970},
	}
	for _, test := range tests {
		i := test.idx
		if v := at(i[0], i[1], i[2], i[3]); math.Abs(v-test.v) > tol {
			t.Fatalf("%v %f, expected %f", i, v, test.v)
		}
	}

	if e := mol.EnergyNuc(); math.Abs(e-1/1.4) > 1e-12 {
		t.Fatalf("%f", e)
	}
	if mol.NElectron() != 2 {
		t.Fatalf("%d", mol.NElectron())
	}
}

func TestNormalized(t *testing.T) {
	t.Parallel()
	tests := []struct {
		basis string
		nao   int
	}{
		{basis: "sto-3g", nao: 2},
		{basis: "6-31g", nao: 4},
	}
	for _, test := range tests {
		t.Run(test.basis, func(t *testing.T) {
			t.Parallel()
			mol := h2(t, test.basis, Angstrom(0.74))
			if mol.NAO() != test.nao {
				t.Fatalf("%d, expected %d", mol.NAO(), test.nao)
			}
			s := mol.Ovlp()
			for i := 0; i < mol.NAO(); i++ {
				if math.Abs(s.At(i, i)-1) > 1e-10 {
					t.Fatalf("%d %f", i, s.At(i, i))
				}
				for j := 0; j < mol.NAO(); j++ {
					if s.At(i, j) != s.At(j, i) {
						t.Fatalf("%d %d", i, j)
					}
				}
			}
		})
	}
}

func TestERISymmetry(t *testing.T) {
	t.Parallel()
	mol := h2(t, "6-31g", 1.4)
	eri := mol.ERI()
	n := mol.NAO()
	at := func(i, j, k, l int) float64 { return eri[((i*n+j)*n+k)*n+l] }
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			for k := 0; k < n; k++ {
				for l := 0; l < n; l++ {
					v := at(i, j, k, l)
					for _, w := range []float64{at(j, i, k, l), at(i, j, l, k), at(k, l, i, j)} {
						if math.Abs(v-w) > 1e-14 {
							t.Fatalf("%d %d %d %d %f %f", i, j, k, l, v, w)
						}
					}
				}
			}
		}
	}
}

func TestBoys(t *testing.T) {
	t.Parallel()
	tests := []struct {
		x float64
		v float64
	}{
		{x: 0, v: 1},
		{x: 1e-14, v: 1},
		{x: 1, v: math.Sqrt(math.Pi) / 2 * math.Erf(1)},
		{x: 25, v: math.Sqrt(math.Pi/25) / 2 * math.Erf(5)},
	}
	for _, test := range tests {
		if v := boys(0, test.x); math.Abs(v-test.v) > 1e-12 {
			t.Fatalf("%g %g, expected %g", test.x, v, test.v)
		}
	}
}

func TestUnknown(t *testing.T) {
	t.Parallel()
	if _, err := NewAtom("Xx", 0, 0, 0); err == nil {
		t.Fatalf("expected error")
	}
	a, _ := NewAtom("He", 0, 0, 0)
	if _, err := NewMolecule([]Atom{a}, "cc-pvdz", 0); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := NewMolecule([]Atom{a}, "sto-3g", 3); err == nil {
		t.Fatalf("expected error")
	}
}

func TestMain(m *testing.M) {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds | log.Llongfile | log.LstdFlags)

	m.Run()
}
