package runtime

import (
	"errors"
	"time"

	"github.com/aixgo-dev/agentkit/pkg/statusstore"
)

var (
	// ErrAgentNotFound is returned when an agent is not registered
	ErrAgentNotFound = errors.New("agent not found")

	// ErrAgentAlreadyRegistered is returned when trying to register an agent with a duplicate id
	ErrAgentAlreadyRegistered = errors.New("agent already registered")

	// ErrCapacityExceeded is returned when an agent has no free task slot
	ErrCapacityExceeded = errors.New("agent task capacity exceeded")

	// ErrNoCapableAgent is returned when no registered agent can handle a capability
	ErrNoCapableAgent = errors.New("no capable agent")

	// ErrRateLimited is returned when a message exceeds the agent's delivery rate
	ErrRateLimited = errors.New("agent rate limited")

	// ErrCircuitOpen is returned while an agent's circuit breaker is open
	ErrCircuitOpen = errors.New("agent circuit open")

	// ErrHostClosed is returned by every call after Close
	ErrHostClosed = errors.New("host closed")

	// ErrDuplicateTask is returned when a task id is already in flight on an agent
	ErrDuplicateTask = errors.New("task already in flight")

	// ErrTaskNotFound is returned when progress is reported for an unknown task
	ErrTaskNotFound = errors.New("task not found")
)

// AdmissionPolicy decides what happens to a task when its agent has
// MaxConcurrentTasks tasks in flight.
type AdmissionPolicy string

const (
	// AdmissionBlock waits for a free slot or for the context to end.
	AdmissionBlock AdmissionPolicy = "block"
	// AdmissionReject fails immediately with ErrCapacityExceeded.
	AdmissionReject AdmissionPolicy = "reject"
)

// HostConfig contains configuration options for creating a host
type HostConfig struct {
	// Admission is applied to tasks and to rate limited messages.
	// Default: AdmissionBlock
	Admission AdmissionPolicy

	// MessagesPerSecond limits deliveries per agent (0 = unlimited)
	MessagesPerSecond float64

	// Burst is the rate limiter bucket size
	// Default: 1
	Burst int

	// BreakerMaxFailures opens an agent's circuit after that many
	// consecutive infrastructure failures (0 = no breaker)
	BreakerMaxFailures uint32

	// BreakerTimeout is how long a circuit stays open
	// Default: 30s
	BreakerTimeout time.Duration

	// Store receives agent snapshots and heartbeats (nil = not persisted)
	Store statusstore.Store

	// HeartbeatSchedule is a cron spec for heartbeat emission ("" = disabled)
	HeartbeatSchedule string

	// FanoutLimit bounds concurrent deliveries in Publish and ExecuteParallel
	// Default: 8
	FanoutLimit int

	// TaskRetention is the number of finished task records kept
	// Default: 1024
	TaskRetention int

	// EnableMetrics enables Prometheus metrics collection
	// Default: true
	EnableMetrics bool
}

// DefaultConfig returns a HostConfig with sensible defaults
func DefaultConfig() *HostConfig {
	return &HostConfig{
		Admission:      AdmissionBlock,
		Burst:          1,
		BreakerTimeout: 30 * time.Second,
		FanoutLimit:    8,
		TaskRetention:  1024,
		EnableMetrics:  true,
	}
}

// Option is a functional option for configuring a host
type Option func(*HostConfig)

// WithAdmissionPolicy sets the policy applied when an agent is at capacity
func WithAdmissionPolicy(policy AdmissionPolicy) Option {
	return func(cfg *HostConfig) {
		cfg.Admission = policy
	}
}

// WithRateLimit limits message deliveries per agent
func WithRateLimit(messagesPerSecond float64, burst int) Option {
	return func(cfg *HostConfig) {
		cfg.MessagesPerSecond = messagesPerSecond
		cfg.Burst = burst
	}
}

// WithBreaker enables a circuit breaker per agent
func WithBreaker(maxFailures uint32, timeout time.Duration) Option {
	return func(cfg *HostConfig) {
		cfg.BreakerMaxFailures = maxFailures
		cfg.BreakerTimeout = timeout
	}
}

// WithStore sets the status store
func WithStore(store statusstore.Store) Option {
	return func(cfg *HostConfig) {
		cfg.Store = store
	}
}

// WithHeartbeatSchedule sets the cron spec used by StartHeartbeats
func WithHeartbeatSchedule(spec string) Option {
	return func(cfg *HostConfig) {
		cfg.HeartbeatSchedule = spec
	}
}

// WithFanoutLimit sets the maximum number of concurrent fan-out deliveries
func WithFanoutLimit(limit int) Option {
	return func(cfg *HostConfig) {
		cfg.FanoutLimit = limit
	}
}

// WithTaskRetention sets how many finished task records are kept
func WithTaskRetention(n int) Option {
	return func(cfg *HostConfig) {
		cfg.TaskRetention = n
	}
}

// WithMetrics enables or disables metrics collection
func WithMetrics(enabled bool) Option {
	return func(cfg *HostConfig) {
		cfg.EnableMetrics = enabled
	}
}
