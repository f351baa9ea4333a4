package agent

import (
	"encoding/json"
	"fmt"
)

// State is one of the mutually exclusive agent states.
type State string

const (
	StateIdle     State = "idle"
	StateBusy     State = "busy"
	StateError    State = "error"
	StateShutdown State = "shutdown"
)

// Status is a snapshot of an agent's state. Description is only carried by
// the busy and error states.
type Status struct {
	State       State
	Description string
}

// StatusIdle returns the idle status.
func StatusIdle() Status { return Status{State: StateIdle} }

// StatusBusy returns a busy status describing the work in progress.
func StatusBusy(description string) Status {
	return Status{State: StateBusy, Description: description}
}

// StatusError returns an error status.
func StatusError(description string) Status {
	return Status{State: StateError, Description: description}
}

// StatusShutdown returns the terminal status.
func StatusShutdown() Status { return Status{State: StateShutdown} }

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool { return s.State == StateShutdown }

func (s Status) String() string {
	switch s.State {
	case StateBusy, StateError:
		if s.Description == "" {
			return string(s.State)
		}
		return fmt.Sprintf("%s: %s", s.State, s.Description)
	default:
		return string(s.State)
	}
}

type statusWire struct {
	State       State   `json:"state"`
	Description *string `json:"description,omitempty"`
}

// MarshalJSON encodes the status as {"state": ..., "description": ...}.
// Description is present exactly for the busy and error states.
func (s Status) MarshalJSON() ([]byte, error) {
	w := statusWire{State: s.State}
	switch s.State {
	case StateBusy, StateError:
		d := s.Description
		w.Description = &d
	case StateIdle, StateShutdown:
	default:
		return nil, fmt.Errorf("%w: unknown state %q", ErrMalformedMessage, s.State)
	}
	return json.Marshal(w)
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var w statusWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: status: %v", ErrMalformedMessage, err)
	}
	switch w.State {
	case StateBusy, StateError:
		if w.Description == nil {
			return fmt.Errorf("%w: %s status requires description", ErrMalformedMessage, w.State)
		}
		*s = Status{State: w.State, Description: *w.Description}
	case StateIdle, StateShutdown:
		if w.Description != nil {
			return fmt.Errorf("%w: %s status carries no description", ErrMalformedMessage, w.State)
		}
		*s = Status{State: w.State}
	default:
		return fmt.Errorf("%w: unknown state %q", ErrMalformedMessage, w.State)
	}
	return nil
}
