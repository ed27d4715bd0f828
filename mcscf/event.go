package mcscf

// EventVersion is incremented whenever a field of Event changes meaning.
const EventVersion = 1

// EventKind tells micro iteration events from macro iteration events.
type EventKind int

const (
	MicroIteration EventKind = iota
	MacroIteration
)

func (k EventKind) String() string {
	switch k {
	case MicroIteration:
		return "micro"
	case MacroIteration:
		return "macro"
	default:
		return "unknown"
	}
}

// Event is passed to CASSCF.Callback after every micro and macro iteration.
// Fields that do not apply to the event kind are zero.
type Event struct {
	Version int
	Kind    EventKind

	Macro int
	Micro int
	// TotalMicro and TotalJK accumulate over all finished macro iterations.
	TotalMicro int
	TotalJK    int

	// ETot and ECAS are the total and active-space energies of the last CASCI.
	ETot float64
	ECAS float64
	// DE is the energy change of the macro iteration.
	DE float64

	// NormGOrb is the orbital gradient norm, at the start of the macro iteration for macro events.
	NormGOrb float64
	// NormGCI is the CI gradient norm, valid only when HasGCI is set.
	NormGCI float64
	HasGCI  bool
	// NormT is |u - 1| of the accumulated rotation.
	NormT   float64
	NormDDM float64

	MaxStepsize float64
	Converged   bool
}
