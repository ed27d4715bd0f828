package mcscf

import (
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/fumin/casscf/fci"
	"github.com/fumin/casscf/integrals"
	"github.com/fumin/casscf/scf"
)

// hydrogens returns the converged RHF of hydrogen atoms at coords, in bohr.
func hydrogens(t testing.TB, basis string, coords [][3]float64) *scf.RHF {
	atoms := make([]integrals.Atom, 0, len(coords))
	for _, x := range coords {
		a, err := integrals.NewAtom("H", x[0], x[1], x[2])
		if err != nil {
			t.Fatalf("%+v", err)
		}
		atoms = append(atoms, a)
	}
	mol, err := integrals.NewMolecule(atoms, basis, 0)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	mf, err := scf.NewRHF(mol)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if _, err := mf.Kernel(); err != nil {
		t.Fatalf("%+v", err)
	}
	return mf
}

func h2(t testing.TB, basis string) *scf.RHF {
	return hydrogens(t, basis, [][3]float64{{0, 0, 0}, {0, 0, 1.4}})
}

// h4 is a distorted square of four hydrogens.
func h4(t testing.TB) *scf.RHF {
	return hydrogens(t, "sto-3g", [][3]float64{{0, 0, 0}, {0, 0, 1.4}, {0, 1.3, 0.2}, {0.1, 1.2, 1.6}})
}

func h8(t testing.TB) *scf.RHF {
	angstrom := [][3]float64{
		{1, -1, 0}, {0, -1, -1}, {1, -.5, -1}, {0, -.5, 0},
		{0, -.5, -1}, {0, 0, -1}, {1, -.5, 0}, {0, 1, 1},
	}
	coords := make([][3]float64, len(angstrom))
	for i, x := range angstrom {
		for k := range x {
			coords[i][k] = integrals.Angstrom(x[k])
		}
	}
	return hydrogens(t, "sto-3g", coords)
}

// fakeMF has only a dimension, enough for the variable packing.
type fakeMF struct{ n int }

func (f fakeMF) NAO() int           { return f.n }
func (f fakeMF) HCore() *mat.Dense  { return mat.NewDense(f.n, f.n, nil) }
func (f fakeMF) Ovlp() *mat.Dense   { return eye(f.n) }
func (f fakeMF) ERI() []float64     { return make([]float64, f.n*f.n*f.n*f.n) }
func (f fakeMF) EnergyNuc() float64 { return 0 }
func (f fakeMF) GetJK(dms ...*mat.Dense) ([]*mat.Dense, []*mat.Dense) {
	vj := make([]*mat.Dense, len(dms))
	vk := make([]*mat.Dense, len(dms))
	for i := range dms {
		vj[i] = mat.NewDense(f.n, f.n, nil)
		vk[i] = mat.NewDense(f.n, f.n, nil)
	}
	return vj, vk
}

func randomMatrix(n int, rng *rand.Rand) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			m.Set(i, j, rng.Float64()*2-1)
		}
	}
	return m
}

func TestUniqVar(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		internal bool
		frozen   Frozen
		n        int
	}{
		{name: "default", n: 11},
		{name: "internal", internal: true, n: 12},
		{name: "frozen count", frozen: Frozen{Count: 1}, n: 6},
		{name: "frozen indices", frozen: Frozen{Indices: []int{5}}, n: 8},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			c, err := New(fakeMF{n: 6}, 1, 2, [2]int{1, 1}, fci.NewSolver())
			if err != nil {
				t.Fatalf("%+v", err)
			}
			c.InternalRotation = test.internal
			c.Frozen = test.frozen

			v := c.PackUniqVar(randomMatrix(6, rand.New(rand.NewSource(0))))
			if len(v) != test.n {
				t.Fatalf("%d, expected %d", len(v), test.n)
			}
			k := c.UnpackUniqVar(v)
			var kt mat.Dense
			kt.Add(k, k.T())
			if frobenius(&kt) != 0 {
				t.Fatalf("%v", mat.Formatted(k))
			}
			if v2 := c.PackUniqVar(k); !floats.Equal(v, v2) {
				t.Fatalf("%v %v", v2, v)
			}
		})
	}
}

func TestUpdateRotateMatrix(t *testing.T) {
	t.Parallel()
	c, err := New(fakeMF{n: 5}, 1, 2, [2]int{1, 1}, fci.NewSolver())
	if err != nil {
		t.Fatalf("%+v", err)
	}
	rng := rand.New(rand.NewSource(1))
	v := c.PackUniqVar(randomMatrix(5, rng))
	floats.Scale(.3, v)

	u := c.UpdateRotateMatrix(v, nil)
	var utu mat.Dense
	utu.Mul(u.T(), u)
	if !mat.EqualApprox(&utu, eye(5), 1e-12) {
		t.Fatalf("%v", mat.Formatted(&utu))
	}

	// Rotations generated by the same matrix compose additively.
	u2 := c.UpdateRotateMatrix(v, u)
	v2 := make([]float64, len(v))
	floats.ScaleTo(v2, 2, v)
	if expected := c.UpdateRotateMatrix(v2, nil); !mat.EqualApprox(u2, expected, 1e-12) {
		t.Fatalf("%v\n%v", mat.Formatted(u2), mat.Formatted(expected))
	}

	if id := c.UpdateRotateMatrix(make([]float64, len(v)), nil); !mat.EqualApprox(id, eye(5), 1e-15) {
		t.Fatalf("%v", mat.Formatted(id))
	}
}

func TestNewInvalid(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		ncore   int
		ncas    int
		nelecas [2]int
	}{
		{name: "too many orbitals", ncore: 2, ncas: 3, nelecas: [2]int{1, 1}},
		{name: "no active orbitals", ncore: 1, ncas: 0, nelecas: [2]int{0, 0}},
		{name: "negative core", ncore: -1, ncas: 2, nelecas: [2]int{1, 1}},
		{name: "too many electrons", ncore: 0, ncas: 2, nelecas: [2]int{3, 1}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			_, err := New(fakeMF{n: 4}, test.ncore, test.ncas, test.nelecas, fci.NewSolver())
			if errors.Cause(err) != ErrInvalidPartition {
				t.Fatalf("%+v", err)
			}
		})
	}
}

func TestMain(m *testing.M) {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds | log.Llongfile | log.LstdFlags)

	m.Run()
}

func Example() {
	a, _ := integrals.NewAtom("H", 0, 0, 0)
	b, _ := integrals.NewAtom("H", 0, 0, 1.4)
	mol, err := integrals.NewMolecule([]integrals.Atom{a, b}, "sto-3g", 0)
	if err != nil {
		log.Fatalf("%+v", err)
	}
	mf, err := scf.NewRHF(mol)
	if err != nil {
		log.Fatalf("%+v", err)
	}
	if _, err := mf.Kernel(); err != nil {
		log.Fatalf("%+v", err)
	}

	mc, err := New(mf, 0, 2, [2]int{1, 1}, fci.NewSolver())
	if err != nil {
		log.Fatalf("%+v", err)
	}
	res, err := mc.Kernel(mf.MoCoeff, nil)
	if err != nil {
		log.Fatalf("%+v", err)
	}
	fmt.Printf("converged %v, E = %.5f\n", res.Converged, res.ETot)
	fmt.Println(math.Abs(res.ETot-mf.ETot) > 1e-2)
	// Output:
	// converged true, E = -1.13728
	// true
}
