package entity

import (
	"fmt"
)

// RailState is the lifecycle stage of a rail. Values are ordered; a rail
// never moves to a lower value.
type RailState uint8

const (
	RailStateZeroRate RailState = iota
	RailStateActive
	RailStateTerminated
	RailStateFinalized
)

func (s RailState) String() string {
	switch s {
	case RailStateZeroRate:
		return "ZERORATE"
	case RailStateActive:
		return "ACTIVE"
	case RailStateTerminated:
		return "TERMINATED"
	case RailStateFinalized:
		return "FINALIZED"
	default:
		return "UNKNOWN"
	}
}

// ParseRailState is the inverse of String.
func ParseRailState(s string) (RailState, error) {
	switch s {
	case "ZERORATE":
		return RailStateZeroRate, nil
	case "ACTIVE":
		return RailStateActive, nil
	case "TERMINATED":
		return RailStateTerminated, nil
	case "FINALIZED":
		return RailStateFinalized, nil
	default:
		return 0, fmt.Errorf("unknown rail state %q", s)
	}
}

// CanTransitionTo reports whether next is a legal successor of s.
// Legal moves: ZERORATE->ACTIVE, ZERORATE|ACTIVE->TERMINATED,
// TERMINATED->FINALIZED.
func (s RailState) CanTransitionTo(next RailState) bool {
	switch next {
	case RailStateActive:
		return s == RailStateZeroRate
	case RailStateTerminated:
		return s == RailStateZeroRate || s == RailStateActive
	case RailStateFinalized:
		return s == RailStateTerminated
	default:
		return false
	}
}

// IsTerminated is true once the rail has been terminated, including after
// finalization.
func (s RailState) IsTerminated() bool {
	return s == RailStateTerminated || s == RailStateFinalized
}

func (s RailState) MarshalText() ([]byte, error) {
	if s > RailStateFinalized {
		return nil, fmt.Errorf("invalid rail state %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *RailState) UnmarshalText(text []byte) error {
	parsed, err := ParseRailState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
