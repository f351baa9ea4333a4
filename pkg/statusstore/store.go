// Package statusstore keeps the host's aggregated view of its agents: the
// latest Info snapshot of each agent and the last heartbeat it emitted.
package statusstore

import (
	"context"
	"errors"

	"github.com/aixgo-dev/agentkit/agent"
)

var (
	// ErrNotFound is returned when no record exists for an agent.
	ErrNotFound = errors.New("status record not found")

	// ErrStaleHeartbeat is returned when a heartbeat carries a timestamp
	// older than the one already stored for its agent.
	ErrStaleHeartbeat = errors.New("stale heartbeat")

	// ErrStoreClosed is returned by every operation after Close.
	ErrStoreClosed = errors.New("status store closed")
)

// Store persists agent snapshots and heartbeats.
type Store interface {
	// PutInfo stores the latest snapshot of an agent, replacing any previous one.
	PutInfo(ctx context.Context, info agent.Info) error

	// GetInfo returns the stored snapshot for agentID.
	GetInfo(ctx context.Context, agentID string) (agent.Info, error)

	// ListInfos returns every stored snapshot ordered by agent id.
	ListInfos(ctx context.Context) ([]agent.Info, error)

	// RecordHeartbeat stores hb as the latest heartbeat of hb.AgentID. A
	// timestamp lower than the stored one fails with ErrStaleHeartbeat and
	// leaves the stored heartbeat unchanged.
	RecordHeartbeat(ctx context.Context, hb agent.Heartbeat) error

	// LastHeartbeat returns the latest heartbeat of agentID.
	LastHeartbeat(ctx context.Context, agentID string) (agent.Heartbeat, error)

	// Delete removes everything stored for agentID.
	Delete(ctx context.Context, agentID string) error

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend's resources.
	Close() error
}
