package integrals

import (
	"math"
	"strings"

	"github.com/pkg/errors"
)

// Primitive is a normalized s-type Gaussian exp(-Alpha r^2) with contraction coefficient Coeff.
type Primitive struct {
	Alpha float64
	Coeff float64
}

// Shell is a contracted s-type Gaussian centered at Center.
type Shell struct {
	Center [3]float64
	Prims  []Primitive
}

// basisSets holds s-only basis sets keyed by lowercased name and element symbol.
// Values are from the EMSL basis set exchange.
var basisSets = map[string]map[string][][]Primitive{
	"sto-3g": {
		"H": {
			{{3.42525091, 0.15432897}, {0.62391373, 0.53532814}, {0.16885540, 0.44463454}},
		},
		"He": {
			{{6.36242139, 0.15432897}, {1.15892300, 0.53532814}, {0.31364979, 0.44463454}},
		},
	},
	"6-31g": {
		"H": {
			{{18.7311370, 0.03349460}, {2.8253937, 0.23472695}, {0.6401217, 0.81375733}},
			{{0.1612778, 1.0}},
		},
		"He": {
			{{38.4216340, 0.0237660}, {5.7780300, 0.1546790}, {1.2417740, 0.4696300}},
			{{0.2979640, 1.0}},
		},
	},
}

func buildShells(atoms []Atom, basisName string) ([]Shell, error) {
	set, ok := basisSets[strings.ToLower(basisName)]
	if !ok {
		return nil, errors.Errorf("unknown basis %q", basisName)
	}
	shells := make([]Shell, 0)
	for _, a := range atoms {
		contractions, ok := set[a.Symbol]
		if !ok {
			return nil, errors.Errorf("basis %q has no functions for %s", basisName, a.Symbol)
		}
		for _, c := range contractions {
			prims := make([]Primitive, len(c))
			copy(prims, c)
			shells = append(shells, normalize(Shell{Center: a.Coords, Prims: prims}))
		}
	}
	return shells, nil
}

// normalize rescales the contraction coefficients so that <s|s> = 1.
func normalize(s Shell) Shell {
	norm := overlapShell(s, s)
	f := 1 / math.Sqrt(norm)
	for i := range s.Prims {
		s.Prims[i].Coeff *= f
	}
	return s
}

func primNorm(alpha float64) float64 {
	return math.Pow(2*alpha/math.Pi, 0.75)
}
