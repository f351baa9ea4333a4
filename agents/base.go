package agents

import (
	"context"
	"fmt"

	"github.com/aixgo-dev/agentkit/agent"
)

// BaseAgent provides common functionality for all agents.
// Embed it in agent structs to get Info, Status, CanHandle and Shutdown.
type BaseAgent struct {
	agent.Lifecycle

	name        string
	version     string
	description string
	types       []agent.MessageType
}

// NewBaseAgent creates a base agent advertising the given message types.
func NewBaseAgent(name, version, description string, types ...agent.MessageType) *BaseAgent {
	return &BaseAgent{
		name:        name,
		version:     version,
		description: description,
		types:       types,
	}
}

// Info returns the agent's identity and live status.
func (b *BaseAgent) Info() agent.Info {
	cfg := b.Config()
	caps := cfg.Capabilities
	if caps == nil {
		caps = []string{}
	}
	types := make([]agent.MessageType, len(b.types))
	copy(types, b.types)
	return agent.Info{
		ID:                    cfg.AgentID,
		Name:                  b.name,
		Version:               b.version,
		Description:           b.description,
		Capabilities:          caps,
		SupportedMessageTypes: types,
		Status:                b.Status(),
	}
}

// Supports reports whether the agent handles message type t.
func (b *BaseAgent) Supports(t agent.MessageType) bool {
	for _, s := range b.types {
		if s == t {
			return true
		}
	}
	return false
}

// BeginMessage checks that msg can be handled in the current state and marks
// the agent busy. The returned end function must be called when handling
// completes.
func (b *BaseAgent) BeginMessage(msg agent.Message) (end func(error), err error) {
	if err := b.Guard(); err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, agent.Malformed("", "nil message")
	}
	if !b.Supports(msg.Kind()) {
		return nil, agent.Unsupported(msg.Kind(), b.Config().AgentID)
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return b.Begin(fmt.Sprintf("handling %s", msg.Kind()))
}

// Shutdown moves the agent into the terminal state.
func (b *BaseAgent) Shutdown(ctx context.Context) error {
	return b.Stop()
}
