package mcscf

import (
	"gonum.org/v1/gonum/mat"

	"github.com/fumin/casscf/chkfile"
)

// MeanField supplies the AO integrals and Fock builds.
type MeanField interface {
	NAO() int
	HCore() *mat.Dense
	Ovlp() *mat.Dense
	// GetJK returns J_ij = sum_kl (ij|kl) D_kl and K_ij = sum_kl (ik|lj) D_kl for every D.
	GetJK(dms ...*mat.Dense) ([]*mat.Dense, []*mat.Dense)
	// ERI returns (ij|kl) over AOs, row-major with dimension nao^4.
	ERI() []float64
	EnergyNuc() float64
}

// DensityFitted is implemented by mean fields with density-fitted integrals.
type DensityFitted interface {
	DensityFitted() bool
}

// Unrestricted is implemented by spin-unrestricted mean fields.
type Unrestricted interface {
	Unrestricted() bool
}

// CISolver solves the active-space problem.
type CISolver interface {
	// Kernel returns the energies, ecore included, and CI vectors of every computed root.
	// tol and maxCycle fall back to the solver defaults when not positive.
	Kernel(h1 mat.Matrix, eri []float64, norb int, nelec [2]int, ci0 []float64, ecore, tol float64, maxCycle int) ([]float64, [][]float64, error)
	// MakeRDM12 returns dm1_pq = <E_pq> and dm2_pqrs = <E_pq E_rs> - delta_qr dm1_ps.
	MakeRDM12(c []float64, norb int, nelec [2]int) (*mat.Dense, []float64)
}

// ApproxKernelSolver is a CISolver with a cheaper approximate kernel.
type ApproxKernelSolver interface {
	ApproxKernel(h1 mat.Matrix, eri []float64, norb int, nelec [2]int, ci0 []float64, tol float64) ([]float64, error)
}

// HamiltonianContractor is a CISolver that can apply the active-space Hamiltonian to a CI vector.
type HamiltonianContractor interface {
	AbsorbH1e(h1 mat.Matrix, eri []float64, norb int, nelec [2]int, fac float64) []float64
	Contract2e(h2eff, c []float64, norb int, nelec [2]int) []float64
}

// SpinSquarer is a CISolver that reports <S^2> and the multiplicity.
type SpinSquarer interface {
	SpinSquare(c []float64, norb int, nelec [2]int) (float64, float64)
}

// Checkpointer persists a snapshot after every macro iteration.
type Checkpointer interface {
	Save(rec chkfile.Record) error
}

// capabilities are the optional features of the CI solver, resolved once in New.
type capabilities struct {
	SupportsApproxKernel           bool
	SupportsHamiltonianContraction bool
	SupportsSpinSquare             bool

	approx     ApproxKernelSolver
	contractor HamiltonianContractor
	spin       SpinSquarer
}

func resolveCapabilities(solver CISolver) capabilities {
	var caps capabilities
	if s, ok := solver.(ApproxKernelSolver); ok {
		caps.SupportsApproxKernel = true
		caps.approx = s
	}
	if s, ok := solver.(HamiltonianContractor); ok {
		caps.SupportsHamiltonianContraction = true
		caps.contractor = s
	}
	if s, ok := solver.(SpinSquarer); ok {
		caps.SupportsSpinSquare = true
		caps.spin = s
	}
	return caps
}
