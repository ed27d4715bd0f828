// Package casscf runs one-step CASSCF calculations on small molecules described by a YAML file.
package casscf

import (
	"log/slog"
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/fumin/casscf/chkfile"
	"github.com/fumin/casscf/fci"
	"github.com/fumin/casscf/integrals"
	"github.com/fumin/casscf/mcscf"
	"github.com/fumin/casscf/scf"
)

const (
	UnitBohr     = "bohr"
	UnitAngstrom = "angstrom"
)

// Atom is a nucleus in the configuration file.
type Atom struct {
	Symbol string    `yaml:"symbol"`
	Coords []float64 `yaml:"coords"`
}

// SCFOptions configures the mean-field calculation that provides the starting orbitals.
type SCFOptions struct {
	ConvTol     float64 `yaml:"conv_tol"`
	ConvTolGrad float64 `yaml:"conv_tol_grad"`
	MaxCycle    int     `yaml:"max_cycle"`
	DIISSpace   int     `yaml:"diis_space"`
}

// Config describes a calculation.
type Config struct {
	Atoms  []Atom `yaml:"atoms"`
	Unit   string `yaml:"unit"`
	Basis  string `yaml:"basis"`
	Charge int    `yaml:"charge"`

	NCore int `yaml:"ncore"`
	NCAS  int `yaml:"ncas"`
	// NElecAS holds the alpha and beta electrons of the active space.
	NElecAS []int `yaml:"nelecas"`

	SCF    SCFOptions    `yaml:"scf"`
	CASSCF mcscf.Options `yaml:"casscf"`
	// Chk is the checkpoint file, none when empty.
	Chk string `yaml:"chk"`
}

func DefaultConfig() Config {
	cfg := Config{
		Unit:  UnitAngstrom,
		Basis: "sto-3g",
		SCF: SCFOptions{
			ConvTol:     1e-10,
			ConvTolGrad: 1e-7,
			MaxCycle:    50,
			DIISSpace:   8,
		},
		CASSCF: mcscf.DefaultOptions(),
	}
	return cfg
}

// LoadConfig reads the YAML file at fpath over the defaults.
func LoadConfig(fpath string) (Config, error) {
	b, err := os.ReadFile(fpath)
	if err != nil {
		return Config{}, errors.Wrap(err, "")
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, errors.Wrap(err, fpath)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, errors.Wrap(err, fpath)
	}
	return cfg, nil
}

func (cfg Config) Validate() error {
	if len(cfg.Atoms) == 0 {
		return errors.Errorf("no atoms")
	}
	for i, a := range cfg.Atoms {
		if len(a.Coords) != 3 {
			return errors.Errorf("atom %d %s has %d coordinates", i, a.Symbol, len(a.Coords))
		}
	}
	switch strings.ToLower(cfg.Unit) {
	case UnitBohr, UnitAngstrom:
	default:
		return errors.Errorf("unknown unit %q", cfg.Unit)
	}
	if len(cfg.NElecAS) != 2 {
		return errors.Errorf("nelecas must list alpha and beta electrons, got %v", cfg.NElecAS)
	}
	if cfg.SCF.MaxCycle < 1 || cfg.SCF.DIISSpace < 1 || !(cfg.SCF.ConvTol > 0) || !(cfg.SCF.ConvTolGrad > 0) {
		return errors.Errorf("scf %+v", cfg.SCF)
	}
	if err := cfg.CASSCF.Validate(); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

// Molecule builds the molecule with coordinates converted to bohr.
func (cfg Config) Molecule() (*integrals.Molecule, error) {
	scale := 1.0
	if strings.ToLower(cfg.Unit) == UnitAngstrom {
		scale = 1 / integrals.BohrAngstrom
	}
	atoms := make([]integrals.Atom, 0, len(cfg.Atoms))
	for _, a := range cfg.Atoms {
		atom, err := integrals.NewAtom(a.Symbol, a.Coords[0]*scale, a.Coords[1]*scale, a.Coords[2]*scale)
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
		atoms = append(atoms, atom)
	}
	mol, err := integrals.NewMolecule(atoms, cfg.Basis, cfg.Charge)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return mol, nil
}

// Report is the outcome of Run.
type Report struct {
	EHF          float64
	SCFConverged bool
	// RunID identifies the checkpoint records of this run, empty without a checkpoint file.
	RunID string
	*mcscf.Result
}

// Run computes the RHF orbitals and optimizes the CASSCF wavefunction from them.
func Run(cfg Config) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	logger := cfg.CASSCF.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mol, err := cfg.Molecule()
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	mf, err := scf.NewRHF(mol)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	mf.ConvTol = cfg.SCF.ConvTol
	mf.ConvTolGrad = cfg.SCF.ConvTolGrad
	mf.MaxCycle = cfg.SCF.MaxCycle
	mf.DIISSpace = cfg.SCF.DIISSpace
	mf.Logger = logger
	ehf, err := mf.Kernel()
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	if !mf.Converged {
		logger.Warn("SCF not converged, continuing with its orbitals", "E", ehf)
	}

	mc, err := mcscf.New(mf, cfg.NCore, cfg.NCAS, [2]int{cfg.NElecAS[0], cfg.NElecAS[1]}, fci.NewSolver())
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	mc.Options = cfg.CASSCF
	mc.Logger = logger
	report := &Report{EHF: ehf, SCFConverged: mf.Converged}
	if cfg.Chk != "" {
		store, err := chkfile.Open(cfg.Chk)
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
		defer store.Close()
		mc.Chk = store
		report.RunID = store.RunID
	}

	res, err := mc.Kernel(mf.MoCoeff, nil)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	report.Result = res
	return report, nil
}
