package mcscf

import (
	"math"
	"slices"
	"testing"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

func TestOptionsYAML(t *testing.T) {
	t.Parallel()
	tests := []struct {
		doc    string
		frozen Frozen
		check  func(Options) bool
	}{
		{
			doc:   "conv_tol: 1e-9\nmax_stepsize: 0.05\n",
			check: func(o Options) bool { return o.ConvTol == 1e-9 && o.MaxStepsize == .05 && o.MaxCycleMacro == 50 },
		},
		{
			doc:    "frozen: 2\nwith_dep4: true\n",
			frozen: Frozen{Count: 2},
			check:  func(o Options) bool { return o.WithDep4 && o.Canonicalization },
		},
		{
			doc:    "frozen: [0, 3]\nnatorb: true\ncanonicalization: false\n",
			frozen: Frozen{Indices: []int{0, 3}},
			check:  func(o Options) bool { return o.NatOrb && !o.Canonicalization },
		},
	}
	for _, test := range tests {
		opts := DefaultOptions()
		if err := yaml.Unmarshal([]byte(test.doc), &opts); err != nil {
			t.Fatalf("%+v", err)
		}
		if opts.Frozen.Count != test.frozen.Count || !slices.Equal(opts.Frozen.Indices, test.frozen.Indices) {
			t.Fatalf("%q %+v", test.doc, opts.Frozen)
		}
		if !test.check(opts) {
			t.Fatalf("%q %+v", test.doc, opts)
		}
		if err := opts.Validate(); err != nil {
			t.Fatalf("%+v", err)
		}

		b, err := yaml.Marshal(opts)
		if err != nil {
			t.Fatalf("%+v", err)
		}
		var back Options
		if err := yaml.Unmarshal(b, &back); err != nil {
			t.Fatalf("%+v", err)
		}
		if back.Frozen.Count != opts.Frozen.Count || !slices.Equal(back.Frozen.Indices, opts.Frozen.Indices) || back.ConvTol != opts.ConvTol {
			t.Fatalf("%s", b)
		}
	}

	var opts Options
	if err := yaml.Unmarshal([]byte("frozen: {a: 1}\n"), &opts); err == nil {
		t.Fatalf("expected error")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		modify func(*Options)
	}{
		{name: "conv_tol", modify: func(o *Options) { o.ConvTol = 0 }},
		{name: "nan stepsize", modify: func(o *Options) { o.MaxStepsize = math.NaN() }},
		{name: "micro", modify: func(o *Options) { o.MaxCycleMicro = 0 }},
		{name: "level shift", modify: func(o *Options) { o.AHLevelShift = -1 }},
		{name: "frozen", modify: func(o *Options) { o.Frozen = Frozen{Indices: []int{-1}} }},
	}
	for _, test := range tests {
		opts := DefaultOptions()
		test.modify(&opts)
		if err := opts.Validate(); errors.Cause(err) != ErrInvalidOptions {
			t.Fatalf("%s %+v", test.name, err)
		}
	}

	opts := DefaultOptions()
	if g := opts.convTolGrad(); math.Abs(g-math.Sqrt(1e-7)) > 1e-15 {
		t.Fatalf("%g", g)
	}
	opts.ConvTolGrad = 1e-5
	if g := opts.convTolGrad(); g != 1e-5 {
		t.Fatalf("%g", g)
	}
}

func TestEventKind(t *testing.T) {
	t.Parallel()
	if MicroIteration.String() != "micro" || MacroIteration.String() != "macro" || EventKind(7).String() != "unknown" {
		t.Fatalf("%s %s", MicroIteration, MacroIteration)
	}
}
