// Package integrals computes Gaussian-basis molecular integrals for s-type basis sets.
package integrals

import (
	"math"

	"github.com/pkg/errors"
)

// BohrAngstrom is the Bohr radius in Angstrom.
const BohrAngstrom = 0.52917720859

// Angstrom converts a length in Angstrom to bohr.
func Angstrom(x float64) float64 { return x / BohrAngstrom }

var atomicNumbers = map[string]int{
	"H":  1,
	"He": 2,
}

// Atom is a nucleus with coordinates in bohr.
type Atom struct {
	Symbol string
	Z      int
	Coords [3]float64
}

// NewAtom returns an atom with coordinates given in bohr.
func NewAtom(symbol string, x, y, z float64) (Atom, error) {
	zz, ok := atomicNumbers[symbol]
	if !ok {
		return Atom{}, errors.Errorf("unsupported element %q", symbol)
	}
	return Atom{Symbol: symbol, Z: zz, Coords: [3]float64{x, y, z}}, nil
}

// Molecule is a set of atoms with an s-type basis.
type Molecule struct {
	Atoms  []Atom
	Basis  []Shell
	Charge int
}

// NewMolecule builds the basis functions for atoms.
func NewMolecule(atoms []Atom, basis string, charge int) (*Molecule, error) {
	if len(atoms) == 0 {
		return nil, errors.Errorf("no atoms")
	}
	shells, err := buildShells(atoms, basis)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	m := &Molecule{Atoms: atoms, Basis: shells, Charge: charge}
	if m.NElectron() < 0 {
		return nil, errors.Errorf("charge %d exceeds nuclear charge", charge)
	}
	return m, nil
}

// NAO returns the number of atomic orbitals.
func (m *Molecule) NAO() int { return len(m.Basis) }

// NElectron returns the number of electrons.
func (m *Molecule) NElectron() int {
	n := -m.Charge
	for _, a := range m.Atoms {
		n += a.Z
	}
	return n
}

// EnergyNuc returns the nuclear repulsion energy.
func (m *Molecule) EnergyNuc() float64 {
	var e float64
	for i, a := range m.Atoms {
		for _, b := range m.Atoms[:i] {
			e += float64(a.Z*b.Z) / math.Sqrt(dist2(a.Coords, b.Coords))
		}
	}
	return e
}
