package mcscf

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/fumin/casscf/chkfile"
	"github.com/fumin/casscf/util"
)

// Result is the outcome of Kernel.
type Result struct {
	Converged bool
	// ETot is the total energy and ECAS the active-space part of it.
	ETot float64
	ECAS float64
	CI   []float64
	// MoCoeff holds the optimized orbitals in columns.
	MoCoeff  *mat.Dense
	MoEnergy []float64
	// CasDM1 is the active one-particle density of CI in the returned orbitals.
	CasDM1 *mat.Dense

	Macro      int
	TotalMicro int
	TotalJK    int
}

// OptimizerState is the state that macro iterations pass to each other.
type OptimizerState struct {
	MaxStepsize float64
}

// Kernel optimizes the orbitals mo and the CI vector, starting from ci0 when it is not nil.
// Running out of macro iterations is not an error and is reported in Result.Converged.
func (c *CASSCF) Kernel(mo *mat.Dense, ci0 []float64) (*Result, error) {
	if err := c.Validate(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	if err := c.validateFrozen(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	if r, cc := mo.Dims(); r != c.mf.NAO() || cc != c.nmo {
		return nil, errors.Errorf("orbitals %dx%d, expected %dx%d", r, cc, c.mf.NAO(), c.nmo)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	log := c.Logger
	c.mo0 = mo
	c.dumpFlags()
	log.Debug("start 1-step CASSCF")

	eris := c.AO2MO(mo)
	eTot, eCAS, ci, err := c.casci(mo, ci0, eris)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	log.Info("CASCI", append([]any{"E", eTot}, c.spinAttrs(ci)...)...)
	if c.NCAS == c.nmo && !c.InternalRotation {
		casdm1, _ := c.solver.MakeRDM12(ci, c.NCAS, c.NElecAS)
		res := &Result{Converged: true, ETot: eTot, ECAS: eCAS, CI: ci, MoCoeff: mo, CasDM1: casdm1}
		can, err := c.Canonicalize(mo, ci, eris, casdm1)
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
		res.MoCoeff, res.CI, res.MoEnergy, res.CasDM1 = can.MoCoeff, can.CI, can.MoEnergy, can.CasDM1
		return res, nil
	}

	convTolGrad := c.convTolGrad()
	log.Info("set conv_tol_grad", "conv_tol_grad", convTolGrad)
	convTolDDM := convTolGrad * 3
	state := &OptimizerState{MaxStepsize: c.MaxStepsize}
	de, elast := eTot, eTot
	var r0 []float64

	casdm1, casdm2 := c.solver.MakeRDM12(ci, c.NCAS, c.NElecAS)
	normDDM := 1e2
	casdm1Prev, casdm1Last := casdm1, casdm1
	res := &Result{}
	progress := util.NewSkipThrottler(10 * time.Second)
	var normGOrb0 float64
	imacro := 0
	for !res.Converged && imacro < c.MaxCycleMacro {
		imacro++
		maxCycleMicro := c.microCycleScheduler(state)
		maxStepsize := c.maxStepsizeScheduler(state, de)
		densities := func() (*mat.Dense, []float64) { return casdm1, casdm2 }
		rota := c.NewRotator(mo, densities, eris, r0, convTolGrad*.3, maxStepsize)

		imicro, njk := 0, 0
		var u *mat.Dense
		for {
			step := rota.Next()
			if step.Done {
				break
			}
			u, njk = step.U, step.JKCount
			imicro++
			normGOrb := floats.Norm(step.GOrb, 2)
			if imicro == 1 {
				normGOrb0 = normGOrb
			}
			du := mat.DenseCopyOf(u)
			du.Sub(du, eye(c.nmo))
			normT := frobenius(du)
			if imicro >= maxCycleMicro {
				log.Debug("micro", "imicro", imicro, "|u-1|", normT, "|g[o]|", normGOrb)
				break
			}

			upd, err := c.updateCasdm(mo, u, ci, eCAS, eris, normGOrb)
			if err != nil {
				return nil, errors.Wrap(err, "")
			}
			casdm1, casdm2, ci = upd.casdm1, upd.casdm2, upd.ci
			normDDM = frobenius(sub(casdm1, casdm1Last))
			normDDMMicro := frobenius(sub(casdm1, casdm1Prev))
			casdm1Prev = casdm1
			ev := Event{
				Version: EventVersion, Kind: MicroIteration,
				Macro: imacro, Micro: imicro, TotalMicro: res.TotalMicro, TotalJK: res.TotalJK,
				ETot: eTot, ECAS: eCAS,
				NormGOrb: normGOrb, NormT: normT, NormDDM: normDDM, MaxStepsize: maxStepsize,
			}
			if upd.gci != nil {
				ev.NormGCI, ev.HasGCI = floats.Norm(upd.gci, 2), true
				log.Debug("micro", "imicro", imicro, "|u-1|", normT, "|g[o]|", normGOrb, "|g[c]|", ev.NormGCI, "|ddm|", normDDM)
			} else {
				log.Debug("micro", "imicro", imicro, "|u-1|", normT, "|g[o]|", normGOrb, "|g[c]|", nil, "|ddm|", normDDM)
			}
			c.emit(ev)
			if progress.Ok() {
				log.Info("micro", "imacro", imacro, "imicro", imicro, "E", eTot, "|g[o]|", normGOrb, "|ddm|", normDDM)
			}

			if normT < convTolGrad || (normGOrb < convTolGrad*.5 && (normDDM < convTolDDM*.4 || normDDMMicro < convTolDDM*.4)) {
				break
			}
		}
		res.TotalMicro += imicro
		res.TotalJK += njk

		mo = c.rotateMO(mo, u)
		eris = c.AO2MO(mo)
		eTot, eCAS, ci, err = c.casci(mo, ci, eris)
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
		casdm1, casdm2 = c.solver.MakeRDM12(ci, c.NCAS, c.NElecAS)
		normDDM = frobenius(sub(casdm1, casdm1Last))
		casdm1Prev, casdm1Last = casdm1, casdm1

		de, elast = eTot-elast, eTot
		if math.Abs(de) < c.ConvTol && normGOrb0 < convTolGrad && normDDM < convTolDDM {
			res.Converged = true
		}
		log.Info("macro iter", append([]any{"imacro", imacro, "JK", njk, "micro", imicro, "E", eTot, "dE", de}, c.spinAttrs(ci)...)...)
		log.Info("macro iter", "|grad[o]|", normGOrb0, "|ddm|", normDDM)

		if err := c.dumpChk(mo, eTot, eCAS, ci, casdm1, nil); err != nil {
			return nil, errors.Wrap(err, "")
		}
		c.emit(Event{
			Version: EventVersion, Kind: MacroIteration,
			Macro: imacro, Micro: imicro, TotalMicro: res.TotalMicro, TotalJK: res.TotalJK,
			ETot: eTot, ECAS: eCAS, DE: de,
			NormGOrb: normGOrb0, NormDDM: normDDM, MaxStepsize: maxStepsize, Converged: res.Converged,
		})
		r0 = c.PackUniqVar(u)
	}
	res.Macro = imacro
	if res.Converged {
		log.Info("1-step CASSCF converged", "macro", imacro, "JK", res.TotalJK, "micro", res.TotalMicro)
	} else {
		log.Info("1-step CASSCF not converged", "macro", imacro, "JK", res.TotalJK, "micro", res.TotalMicro)
	}

	res.ETot, res.ECAS, res.CI, res.MoCoeff, res.CasDM1 = eTot, eCAS, ci, mo, casdm1
	if c.Canonicalization {
		log.Info("CASSCF canonicalization")
		can, err := c.Canonicalize(mo, ci, eris, casdm1)
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
		res.MoCoeff, res.CI, res.MoEnergy, res.CasDM1 = can.MoCoeff, can.CI, can.MoEnergy, can.CasDM1
	} else {
		res.MoEnergy = c.fockEnergies(mo, eris, casdm1)
	}
	if err := c.dumpChk(res.MoCoeff, res.ETot, res.ECAS, res.CI, res.CasDM1, res.MoEnergy); err != nil {
		return nil, errors.Wrap(err, "")
	}
	log.Info("CASSCF energy", "E", res.ETot)
	return res, nil
}

// casci solves the active-space problem at orbitals mo.
// The active Hamiltonian is the bare one plus the core potential, and the core energy
// includes the nuclear repulsion.
func (c *CASSCF) casci(mo *mat.Dense, ci0 []float64, eris *ERIS) (float64, float64, []float64, error) {
	ncore, ncas := c.NCore, c.NCAS
	h1eMO := sandwich(mo, c.mf.HCore(), mo)
	ecore := c.mf.EnergyNuc()
	for i := 0; i < ncore; i++ {
		ecore += 2*h1eMO.At(i, i) + eris.VhfC.At(i, i)
	}
	h1eff := mat.NewDense(ncas, ncas, nil)
	for u := 0; u < ncas; u++ {
		for v := 0; v < ncas; v++ {
			h1eff.Set(u, v, h1eMO.At(ncore+u, ncore+v)+eris.VhfC.At(ncore+u, ncore+v))
		}
	}
	es, cis, err := c.solver.Kernel(h1eff, eris.casERI(), ncas, c.NElecAS, ci0, ecore, 0, 0)
	if err != nil {
		return 0, 0, nil, errors.Wrap(err, "")
	}
	if len(es) != 1 || len(cis) != 1 {
		return 0, 0, nil, errors.Wrapf(ErrMultipleRoots, "%d roots", len(es))
	}
	c.Logger.Debug("CAS space CI energy", "e_cas", es[0]-ecore)
	return es[0], es[0] - ecore, cis[0], nil
}

// rotateMO returns mo u.
func (c *CASSCF) rotateMO(mo, u *mat.Dense) *mat.Dense {
	mo1 := mul(mo, u)
	if c.Logger.Enabled(context.Background(), slog.LevelDebug) {
		ncore, nocc := c.NCore, c.NCore+c.NCAS
		s := sandwich(cols(mo1, ncore, nocc), c.mf.Ovlp(), cols(c.mo0, ncore, nocc))
		c.Logger.Debug("active space overlap to initial guess", "SVD", singularValues(s))
		ua := mat.DenseCopyOf(u.Slice(ncore, nocc, ncore, nocc))
		c.Logger.Debug("active space overlap to last step", "SVD", singularValues(ua))
	}
	return mo1
}

func singularValues(a mat.Matrix) []float64 {
	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDNone); !ok {
		return nil
	}
	return svd.Values(nil)
}

func (c *CASSCF) microCycleScheduler(state *OptimizerState) int {
	return c.MaxCycleMicro
}

// maxStepsizeScheduler halves the step cap after an energy increase and restores it otherwise.
func (c *CASSCF) maxStepsizeScheduler(state *OptimizerState, de float64) float64 {
	if de > c.ConvTol {
		state.MaxStepsize *= .5
		c.Logger.Debug("set max_stepsize", "max_stepsize", state.MaxStepsize)
	} else {
		state.MaxStepsize = c.MaxStepsize
	}
	return state.MaxStepsize
}

// spinAttrs returns the log attributes of <S^2> when the solver can compute it.
func (c *CASSCF) spinAttrs(ci []float64) []any {
	if !c.caps.SupportsSpinSquare {
		return nil
	}
	ss, _ := c.caps.spin.SpinSquare(ci, c.NCAS, c.NElecAS)
	return []any{"S^2", ss}
}

func (c *CASSCF) emit(ev Event) {
	if c.Callback != nil {
		c.Callback(ev)
	}
}

// dumpChk saves a snapshot when a checkpointer is set.
// Active occupations are natural occupations with NatOrb and the casdm1 diagonal otherwise.
func (c *CASSCF) dumpChk(mo *mat.Dense, eTot, eCAS float64, ci []float64, casdm1 *mat.Dense, moEnergy []float64) error {
	if c.Chk == nil {
		return nil
	}
	ncore := c.NCore
	occ := make([]float64, c.nmo)
	for i := 0; i < ncore; i++ {
		occ[i] = 2
	}
	if c.NatOrb {
		copy(occ[ncore:], naturalOccupations(casdm1))
	} else {
		for u := 0; u < c.NCAS; u++ {
			occ[ncore+u] = casdm1.At(u, u)
		}
	}
	rec := chkfile.Record{
		ETot:     eTot,
		ECAS:     eCAS,
		NCore:    ncore,
		NCAS:     c.NCAS,
		MoCoeff:  mo,
		MoOcc:    occ,
		MoEnergy: moEnergy,
		CasDM1:   casdm1,
	}
	if c.ChkCI {
		rec.CI = ci
	}
	if err := c.Chk.Save(rec); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

func (c *CASSCF) dumpFlags() {
	nvir := c.nmo - c.NCore - c.NCAS
	c.Logger.Info("CASSCF flags",
		"CAS", c.NElecAS, "ncas", c.NCAS, "ncore", c.NCore, "nvir", nvir,
		"frozen", c.Frozen,
		"max_cycle_macro", c.MaxCycleMacro,
		"max_cycle_micro", c.MaxCycleMicro,
		"conv_tol", c.ConvTol,
		"conv_tol_grad", c.ConvTolGrad,
		"max_cycle_micro_inner", c.MaxCycleMicroInner,
		"max_stepsize", c.MaxStepsize,
		"ah_max_cycle", c.AHMaxCycle,
		"ah_conv_tol", c.AHConvTol,
		"ah_lindep", c.AHLindep,
		"ah_level_shift", c.AHLevelShift,
		"ah_start_tol", c.AHStartTol,
		"ah_start_cycle", c.AHStartCycle,
		"ah_grad_trust_region", c.AHGradTrustRegion,
		"ci_response_space", c.CIResponseSpace,
		"ci_grad_trust_region", c.CIGradTrustRegion,
		"with_dep4", c.WithDep4,
		"natorb", c.NatOrb,
		"canonicalization", c.Canonicalization,
		"internal_rotation", c.InternalRotation,
	)
}

func sub(a, b mat.Matrix) *mat.Dense {
	var m mat.Dense
	m.Sub(a, b)
	return &m
}
