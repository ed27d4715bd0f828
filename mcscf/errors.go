package mcscf

import (
	"github.com/pkg/errors"
)

var (
	// ErrMultipleRoots is returned when the CI solver yields more than one state.
	// Use a state-averaged or state-specific wrapper to optimize excited states.
	ErrMultipleRoots = errors.New("multiple roots are detected in the CI solver, CASSCF does not know which state to optimize")
	// ErrInvalidPartition is returned when the core and active spaces do not fit in the orbitals.
	ErrInvalidPartition = errors.New("invalid orbital partition")
	// ErrInvalidOptions is returned by Options.Validate.
	ErrInvalidOptions = errors.New("invalid options")
)
