// Package adapter models the local radio's operational state.
package adapter

import (
	"fmt"
	"strings"
)

// State is the radio adapter status as reported by the platform.
type State int

const (
	Unknown State = iota
	Resetting
	Unsupported
	Unauthorized
	PoweredOff
	PoweredOn
)

var stateNames = [...]string{
	Unknown:      "unknown",
	Resetting:    "resetting",
	Unsupported:  "unsupported",
	Unauthorized: "unauthorized",
	PoweredOff:   "poweredOff",
	PoweredOn:    "poweredOn",
}

func (s State) String() string {
	if s < Unknown || s > PoweredOn {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText renders the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name, case-insensitively.
func (s *State) UnmarshalText(text []byte) error {
	parsed, err := ParseState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseState returns the State with the given name, ignoring case.
func ParseState(name string) (State, error) {
	for i, n := range stateNames {
		if strings.EqualFold(n, name) {
			return State(i), nil
		}
	}
	return Unknown, fmt.Errorf("unknown adapter state %q", name)
}

// Available reports whether scanning is possible in this state.
func (s State) Available() bool {
	return s == PoweredOn
}

// Unavailable reports states where the radio cannot be used without operator
// action (no hardware, no permission, switched off).
func (s State) Unavailable() bool {
	switch s {
	case Unsupported, Unauthorized, PoweredOff:
		return true
	default:
		return false
	}
}
