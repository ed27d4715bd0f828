package mcscf

import (
	"log/slog"
	"math"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Options configures the one-step CASSCF optimizer.
type Options struct {
	// ConvTol is the energy convergence threshold.
	ConvTol float64 `yaml:"conv_tol"`
	// ConvTolGrad is the orbital gradient threshold, sqrt(ConvTol) when zero.
	ConvTolGrad        float64 `yaml:"conv_tol_grad"`
	MaxCycleMacro      int     `yaml:"max_cycle_macro"`
	MaxCycleMicro      int     `yaml:"max_cycle_micro"`
	MaxCycleMicroInner int     `yaml:"max_cycle_micro_inner"`
	// MaxStepsize caps the largest orbital rotation of one step.
	// It is halved whenever the energy rises between macro iterations.
	MaxStepsize float64 `yaml:"max_stepsize"`

	AHLevelShift      float64 `yaml:"ah_level_shift"`
	AHConvTol         float64 `yaml:"ah_conv_tol"`
	AHMaxCycle        int     `yaml:"ah_max_cycle"`
	AHLindep          float64 `yaml:"ah_lindep"`
	AHStartTol        float64 `yaml:"ah_start_tol"`
	AHStartCycle      int     `yaml:"ah_start_cycle"`
	AHGradTrustRegion float64 `yaml:"ah_grad_trust_region"`

	CIResponseSpace   int     `yaml:"ci_response_space"`
	CIGradTrustRegion float64 `yaml:"ci_grad_trust_region"`

	WithDep4         bool   `yaml:"with_dep4"`
	InternalRotation bool   `yaml:"internal_rotation"`
	Canonicalization bool   `yaml:"canonicalization"`
	NatOrb           bool   `yaml:"natorb"`
	ChkCI            bool   `yaml:"chk_ci"`
	Frozen           Frozen `yaml:"frozen"`

	Logger *slog.Logger `yaml:"-"`
}

func DefaultOptions() Options {
	opts := Options{
		ConvTol:            1e-7,
		MaxCycleMacro:      50,
		MaxCycleMicro:      4,
		MaxCycleMicroInner: 4,
		MaxStepsize:        .03,

		AHLevelShift:      1e-8,
		AHConvTol:         1e-12,
		AHMaxCycle:        30,
		AHLindep:          1e-14,
		AHStartTol:        2.5,
		AHStartCycle:      3,
		AHGradTrustRegion: 3,

		CIResponseSpace:   4,
		CIGradTrustRegion: 3,

		Canonicalization: true,
		Logger:           slog.Default(),
	}
	return opts
}

// convTolGrad returns ConvTolGrad or its default.
func (o Options) convTolGrad() float64 {
	if o.ConvTolGrad > 0 {
		return o.ConvTolGrad
	}
	return math.Sqrt(o.ConvTol)
}

func (o Options) Validate() error {
	positive := []struct {
		name string
		v    float64
	}{
		{"conv_tol", o.ConvTol},
		{"max_stepsize", o.MaxStepsize},
		{"ah_conv_tol", o.AHConvTol},
		{"ah_lindep", o.AHLindep},
		{"ah_start_tol", o.AHStartTol},
		{"ah_grad_trust_region", o.AHGradTrustRegion},
		{"ci_grad_trust_region", o.CIGradTrustRegion},
	}
	for _, p := range positive {
		if !(p.v > 0) {
			return errors.Wrapf(ErrInvalidOptions, "%s %g", p.name, p.v)
		}
	}
	counts := []struct {
		name string
		v    int
	}{
		{"max_cycle_macro", o.MaxCycleMacro},
		{"max_cycle_micro", o.MaxCycleMicro},
		{"max_cycle_micro_inner", o.MaxCycleMicroInner},
		{"ah_max_cycle", o.AHMaxCycle},
		{"ci_response_space", o.CIResponseSpace},
	}
	for _, c := range counts {
		if c.v < 1 {
			return errors.Wrapf(ErrInvalidOptions, "%s %d", c.name, c.v)
		}
	}
	if o.ConvTolGrad < 0 || o.AHLevelShift < 0 || o.AHStartCycle < 0 {
		return errors.Wrapf(ErrInvalidOptions, "conv_tol_grad %g ah_level_shift %g ah_start_cycle %d", o.ConvTolGrad, o.AHLevelShift, o.AHStartCycle)
	}
	if o.Frozen.Count < 0 {
		return errors.Wrapf(ErrInvalidOptions, "frozen %d", o.Frozen.Count)
	}
	for _, i := range o.Frozen.Indices {
		if i < 0 {
			return errors.Wrapf(ErrInvalidOptions, "frozen %v", o.Frozen.Indices)
		}
	}
	return nil
}

// Frozen excludes orbitals from rotation, either the first Count orbitals or
// the orbitals listed in Indices.
type Frozen struct {
	Count   int
	Indices []int
}

func (f Frozen) IsZero() bool {
	return f.Count == 0 && len(f.Indices) == 0
}

// UnmarshalYAML accepts an integer or a list of integers.
func (f *Frozen) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var n int
		if err := node.Decode(&n); err != nil {
			return errors.Wrap(err, "")
		}
		*f = Frozen{Count: n}
	case yaml.SequenceNode:
		var idx []int
		if err := node.Decode(&idx); err != nil {
			return errors.Wrap(err, "")
		}
		*f = Frozen{Indices: idx}
	default:
		return errors.Errorf("frozen must be an integer or a list, line %d", node.Line)
	}
	return nil
}

func (f Frozen) MarshalYAML() (any, error) {
	if len(f.Indices) > 0 {
		return f.Indices, nil
	}
	return f.Count, nil
}
