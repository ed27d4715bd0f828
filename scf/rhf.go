// Package scf implements restricted Hartree-Fock for closed-shell molecules.
package scf

import (
	"log/slog"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/fumin/casscf/integrals"
)

// RHF is a closed-shell Hartree-Fock mean field.
// After Kernel, MoCoeff, MoEnergy and MoOcc describe the converged orbitals.
type RHF struct {
	ConvTol     float64
	ConvTolGrad float64
	MaxCycle    int
	DIISSpace   int
	Logger      *slog.Logger

	Converged bool
	ETot      float64
	MoCoeff   *mat.Dense
	MoEnergy  []float64
	MoOcc     []float64

	mol   *integrals.Molecule
	hcore *mat.Dense
	s     *mat.Dense
	eri   []float64
}

// NewRHF computes the AO integrals of mol.
func NewRHF(mol *integrals.Molecule) (*RHF, error) {
	if mol.NElectron()%2 != 0 {
		return nil, errors.Errorf("odd number of electrons %d", mol.NElectron())
	}
	r := &RHF{
		ConvTol:     1e-10,
		ConvTolGrad: 1e-7,
		MaxCycle:    50,
		DIISSpace:   8,
		Logger:      slog.Default(),
		mol:         mol,
		hcore:       mol.HCore(),
		s:           mol.Ovlp(),
		eri:         mol.ERI(),
	}
	return r, nil
}

func (r *RHF) NAO() int           { return r.mol.NAO() }
func (r *RHF) NElectron() int     { return r.mol.NElectron() }
func (r *RHF) EnergyNuc() float64 { return r.mol.EnergyNuc() }
func (r *RHF) ERI() []float64     { return r.eri }

// HCore returns a copy of the core Hamiltonian.
func (r *RHF) HCore() *mat.Dense { return mat.DenseCopyOf(r.hcore) }

// Ovlp returns a copy of the AO overlap matrix.
func (r *RHF) Ovlp() *mat.Dense { return mat.DenseCopyOf(r.s) }

// GetJK returns the Coulomb and exchange matrices of each density matrix,
// J_ij = sum_kl (ij|kl) D_kl and K_ij = sum_kl (ik|lj) D_kl.
func (r *RHF) GetJK(dms ...*mat.Dense) ([]*mat.Dense, []*mat.Dense) {
	n := r.NAO()
	vj := make([]*mat.Dense, len(dms))
	vk := make([]*mat.Dense, len(dms))
	for d, dm := range dms {
		dmData := make([]float64, n*n)
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				dmData[i*n+j] = dm.At(i, j)
			}
		}
		j := make([]float64, n*n)
		k := make([]float64, n*n)
		for p := 0; p < n; p++ {
			for q := 0; q < n; q++ {
				eriPQ := r.eri[(p*n+q)*n*n : (p*n+q+1)*n*n]
				var jv float64
				for rs, v := range eriPQ {
					jv += v * dmData[rs]
				}
				j[p*n+q] = jv
				// (pq|rs) D_qr contributes to K_ps.
				for rr := 0; rr < n; rr++ {
					dqr := dmData[q*n+rr]
					if dqr == 0 {
						continue
					}
					row := eriPQ[rr*n : (rr+1)*n]
					for s, v := range row {
						k[p*n+s] += v * dqr
					}
				}
			}
		}
		vj[d] = mat.NewDense(n, n, j)
		vk[d] = mat.NewDense(n, n, k)
	}
	return vj, vk
}

// MakeRDM1 returns the AO density matrix of the occupied orbitals.
func MakeRDM1(moCoeff *mat.Dense, moOcc []float64) *mat.Dense {
	nao, nmo := moCoeff.Dims()
	dm := mat.NewDense(nao, nao, nil)
	for i := 0; i < nao; i++ {
		for j := 0; j < nao; j++ {
			var v float64
			for p := 0; p < nmo; p++ {
				v += moOcc[p] * moCoeff.At(i, p) * moCoeff.At(j, p)
			}
			dm.Set(i, j, v)
		}
	}
	return dm
}

// Kernel runs the SCF iterations and returns the total energy.
// Non-convergence is reported through r.Converged.
func (r *RHF) Kernel() (float64, error) {
	n := r.NAO()
	nocc := r.NElectron() / 2
	if nocc > n {
		return 0, errors.Errorf("%d occupied orbitals in %d basis functions", nocc, n)
	}
	x, err := orthogonalizer(r.s)
	if err != nil {
		return 0, errors.Wrap(err, "")
	}

	r.MoOcc = make([]float64, n)
	for i := 0; i < nocc; i++ {
		r.MoOcc[i] = 2
	}
	r.MoCoeff, r.MoEnergy, err = eigOrth(r.hcore, x)
	if err != nil {
		return 0, errors.Wrap(err, "")
	}

	diis := newDIIS(r.DIISSpace)
	var eLast float64
	r.Converged = false
	for cycle := 0; cycle < r.MaxCycle; cycle++ {
		dm := MakeRDM1(r.MoCoeff, r.MoOcc)
		fock := r.fock(dm)
		r.ETot = r.energy(dm, fock)

		errVec := commutator(fock, dm, r.s, x)
		rms := math.Sqrt(stat.Mean(sq(errVec.RawMatrix().Data), nil))
		de := r.ETot - eLast
		eLast = r.ETot
		r.Logger.Debug("scf", "cycle", cycle, "E", r.ETot, "dE", de, "rms", rms)
		if cycle > 0 && math.Abs(de) < r.ConvTol && rms < r.ConvTolGrad {
			r.Converged = true
			break
		}

		fock = diis.update(fock, errVec)
		r.MoCoeff, r.MoEnergy, err = eigOrth(fock, x)
		if err != nil {
			return 0, errors.Wrap(err, "")
		}
	}
	r.Logger.Info("scf", "converged", r.Converged, "E", r.ETot)
	return r.ETot, nil
}

func (r *RHF) fock(dm *mat.Dense) *mat.Dense {
	vj, vk := r.GetJK(dm)
	f := mat.DenseCopyOf(r.hcore)
	f.Add(f, vj[0])
	vk[0].Scale(-0.5, vk[0])
	f.Add(f, vk[0])
	return f
}

func (r *RHF) energy(dm, fock *mat.Dense) float64 {
	n := r.NAO()
	var e float64
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			e += 0.5 * dm.At(i, j) * (r.hcore.At(i, j) + fock.At(i, j))
		}
	}
	return e + r.EnergyNuc()
}

// orthogonalizer returns S^-1/2.
func orthogonalizer(s *mat.Dense) (*mat.Dense, error) {
	n, _ := s.Dims()
	var eig mat.EigenSym
	if ok := eig.Factorize(symmetric(s), true); !ok {
		return nil, errors.Errorf("overlap eigendecomposition failed")
	}
	vals := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)
	for _, v := range vals {
		if v < 1e-10 {
			return nil, errors.Errorf("linearly dependent basis %v", vals)
		}
	}
	x := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			var v float64
			for k := 0; k < n; k++ {
				v += vecs.At(i, k) * vecs.At(j, k) / math.Sqrt(vals[k])
			}
			x.Set(i, j, v)
		}
	}
	return x, nil
}

// eigOrth solves F C = S C e given X = S^-1/2.
func eigOrth(f, x *mat.Dense) (*mat.Dense, []float64, error) {
	var fp mat.Dense
	fp.Mul(x.T(), f)
	fp.Mul(&fp, x)
	var eig mat.EigenSym
	if ok := eig.Factorize(symmetric(&fp), true); !ok {
		return nil, nil, errors.Errorf("fock eigendecomposition failed")
	}
	var vecs mat.Dense
	eig.VectorsTo(&vecs)
	var c mat.Dense
	c.Mul(x, &vecs)
	return &c, eig.Values(nil), nil
}

// commutator returns X^T (FDS - SDF) X.
func commutator(f, dm, s, x *mat.Dense) *mat.Dense {
	var fds, sdf mat.Dense
	fds.Mul(f, dm)
	fds.Mul(&fds, s)
	sdf.Mul(s, dm)
	sdf.Mul(&sdf, f)
	fds.Sub(&fds, &sdf)
	fds.Mul(x.T(), &fds)
	fds.Mul(&fds, x)
	return &fds
}

func symmetric(a mat.Matrix) *mat.SymDense {
	n, _ := a.Dims()
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			s.SetSym(i, j, 0.5*(a.At(i, j)+a.At(j, i)))
		}
	}
	return s
}

func sq(x []float64) []float64 {
	y := make([]float64, len(x))
	for i, v := range x {
		y[i] = v * v
	}
	return y
}
