package agent

import (
	"encoding/json"
	"fmt"
)

// Info combines an agent's identity, its advertised capabilities and the
// status at the time Info was called.
type Info struct {
	ID                    string
	Name                  string
	Version               string
	Description           string
	Capabilities          []string
	SupportedMessageTypes []MessageType
	Status                Status
}

// Supports reports whether t is among the advertised message types.
func (i Info) Supports(t MessageType) bool {
	for _, s := range i.SupportedMessageTypes {
		if s == t {
			return true
		}
	}
	return false
}

type infoWire struct {
	ID                    *string       `json:"id"`
	Name                  string        `json:"name"`
	Version               string        `json:"version"`
	Description           string        `json:"description"`
	Capabilities          []string      `json:"capabilities"`
	SupportedMessageTypes []MessageType `json:"supported_message_types"`
	Status                *Status       `json:"status"`
}

func (i Info) MarshalJSON() ([]byte, error) {
	caps := i.Capabilities
	if caps == nil {
		caps = []string{}
	}
	types := i.SupportedMessageTypes
	if types == nil {
		types = []MessageType{}
	}
	status := i.Status
	return json.Marshal(infoWire{
		ID:                    &i.ID,
		Name:                  i.Name,
		Version:               i.Version,
		Description:           i.Description,
		Capabilities:          caps,
		SupportedMessageTypes: types,
		Status:                &status,
	})
}

// UnmarshalJSON requires id and status; unknown message types are rejected.
func (i *Info) UnmarshalJSON(data []byte) error {
	var w infoWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: info: %v", ErrMalformedMessage, err)
	}
	if w.ID == nil {
		return fmt.Errorf("%w: info: id is required", ErrMalformedMessage)
	}
	if w.Status == nil {
		return fmt.Errorf("%w: info: status is required", ErrMalformedMessage)
	}
	for _, t := range w.SupportedMessageTypes {
		if !knownMessageType(t) {
			return fmt.Errorf("%w: info: unknown message type %q", ErrMalformedMessage, t)
		}
	}
	*i = Info{
		ID:                    *w.ID,
		Name:                  w.Name,
		Version:               w.Version,
		Description:           w.Description,
		Capabilities:          w.Capabilities,
		SupportedMessageTypes: w.SupportedMessageTypes,
		Status:                *w.Status,
	}
	if i.Capabilities == nil {
		i.Capabilities = []string{}
	}
	if i.SupportedMessageTypes == nil {
		i.SupportedMessageTypes = []MessageType{}
	}
	return nil
}

func knownMessageType(t MessageType) bool {
	for _, k := range AllMessageTypes {
		if k == t {
			return true
		}
	}
	return false
}
