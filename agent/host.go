package agent

import "context"

// Host owns agent instances, routes messages to them and enforces each
// agent's MaxConcurrentTasks before calling ExecuteTask.
//
// Implementations must serialize calls into a single agent instance and
// may call distinct instances in parallel.
type Host interface {
	// Add initializes a with cfg and registers it under cfg.AgentID.
	Add(ctx context.Context, a Agent, cfg Config) error

	// Remove shuts the agent down and forgets it.
	Remove(ctx context.Context, agentID string) error

	// Deliver hands msg to one agent and returns its reply, if any.
	Deliver(ctx context.Context, agentID string, msg Message) (Message, error)

	// Execute admits and runs a task on one agent.
	Execute(ctx context.Context, agentID, taskID, data string) (Result, error)

	// Statuses returns the live status of every agent keyed by id.
	Statuses() map[string]Status

	// Close shuts every agent down. Later calls fail.
	Close(ctx context.Context) error
}
