package model

import "fmt"

// Phase is the battle lifecycle stage. Transitions only move forward.
type Phase int

const (
	PhasePending Phase = iota
	PhaseRunning
	PhaseFinalizing
	PhaseFinalized
)

func (p Phase) String() string {
	switch p {
	case PhasePending:
		return "PENDING"
	case PhaseRunning:
		return "RUNNING"
	case PhaseFinalizing:
		return "FINALIZING"
	case PhaseFinalized:
		return "FINALIZED"
	default:
		return "UNKNOWN"
	}
}

// CanAdvanceTo reports whether next is exactly one step ahead of p.
func (p Phase) CanAdvanceTo(next Phase) bool {
	return next == p+1 && next <= PhaseFinalized
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(text []byte) error {
	for c := PhasePending; c <= PhaseFinalized; c++ {
		if c.String() == string(text) {
			*p = c
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", text)
}
