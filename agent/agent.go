package agent

import "context"

// Agent is the interface every agent implementation must satisfy. A host
// drives agents only through this interface.
//
// The contract is synchronous: each call runs to completion before its
// result is observed. Hosts serialize calls into a single instance, so
// implementations need no locking of their own unless they share state
// across instances.
type Agent interface {
	// Initialize hands the agent its configuration. On success the agent is
	// idle. On failure the agent is in the error state and stays unusable
	// until Initialize succeeds. Incompatible configuration fails with an
	// error wrapping ErrInvalidConfig.
	Initialize(ctx context.Context, cfg Config) error

	// Info returns the agent's identity, advertisement and live status.
	// It never fails and does not change state.
	Info() Info

	// HandleMessage dispatches on the message variant. It returns a reply,
	// or nil when the message is accepted without an immediate reply.
	// Unsupported or malformed messages fail with a *ProtocolError and
	// leave the agent's state unchanged.
	HandleMessage(ctx context.Context, msg Message) (Message, error)

	// ExecuteTask runs one unit of work. Task-level failures are reported
	// as a Failure result. A non-nil error means the call could not be
	// serviced at all, for example because the agent is not initialized.
	ExecuteTask(ctx context.Context, taskID, data string) (Result, error)

	// CanHandle reports whether capability was declared at initialization.
	CanHandle(capability string) bool

	// Status returns the current state. It never fails.
	Status() Status

	// Shutdown releases the agent's resources and moves it into the
	// terminal shutdown state. Every later call except Status and Info
	// fails with ErrShutdown.
	Shutdown(ctx context.Context) error
}
