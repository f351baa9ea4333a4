package agent

import (
	"errors"
	"fmt"
)

var (
	// ErrNotInitialized is returned when an operation needs an initialized agent.
	ErrNotInitialized = errors.New("agent not initialized")

	// ErrAlreadyInitialized is returned by a second Initialize on a healthy agent.
	ErrAlreadyInitialized = errors.New("agent already initialized")

	// ErrShutdown is returned by every operation attempted after Shutdown.
	ErrShutdown = errors.New("agent is shut down")

	// ErrFaulted is returned while an agent sits in the error state after an
	// unrecoverable fault. Initialize may be retried.
	ErrFaulted = errors.New("agent is in error state")

	// ErrInternal marks an unrecoverable fault inside an agent implementation.
	// Returning an error wrapping it moves the agent into the error state.
	ErrInternal = errors.New("internal agent fault")

	// ErrUnsupportedMessage is returned for message variants an agent does not handle.
	ErrUnsupportedMessage = errors.New("unsupported message")

	// ErrMalformedMessage is returned for messages with missing or invalid fields.
	ErrMalformedMessage = errors.New("malformed message")

	// ErrInvalidConfig is returned when a Config is rejected.
	ErrInvalidConfig = errors.New("invalid agent config")

	// ErrInvalidProgress is returned for Partial progress outside [0, 1].
	ErrInvalidProgress = errors.New("progress out of range")

	// ErrProgressRegression is returned when a Partial result reports less
	// progress than a previous one for the same task.
	ErrProgressRegression = errors.New("progress regressed")

	// ErrTaskFinished is returned when a result arrives for a task that already
	// reported its terminal result.
	ErrTaskFinished = errors.New("task already finished")

	// ErrUnknownAgentType is returned by the registry for unregistered types.
	ErrUnknownAgentType = errors.New("unknown agent type")
)

// ConfigError describes why a Config was rejected.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid agent config: %s", e.Reason)
	}
	return fmt.Sprintf("invalid agent config: %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidConfig }

// ProtocolError describes a message an agent refused to handle.
type ProtocolError struct {
	Type   MessageType
	Reason string
	// Unsupported distinguishes an unsupported variant from a malformed one.
	Unsupported bool
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s message: %s", e.Type, e.Reason)
}

func (e *ProtocolError) Unwrap() error {
	if e.Unsupported {
		return ErrUnsupportedMessage
	}
	return ErrMalformedMessage
}

// Unsupported builds a ProtocolError for a message variant the agent does not handle.
func Unsupported(t MessageType, agentID string) error {
	return &ProtocolError{
		Type:        t,
		Reason:      fmt.Sprintf("not supported by agent %q", agentID),
		Unsupported: true,
	}
}

// Malformed builds a ProtocolError for a message with invalid fields.
func Malformed(t MessageType, format string, args ...any) error {
	return &ProtocolError{Type: t, Reason: fmt.Sprintf(format, args...)}
}

// ErrorKind is the failure category of an error returned by an Agent.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindConfig
	KindProtocol
	KindShutdown
	KindInfrastructure
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindConfig:
		return "config"
	case KindProtocol:
		return "protocol"
	case KindShutdown:
		return "shutdown"
	default:
		return "infrastructure"
	}
}

// Classify maps an error onto the failure taxonomy. Task-level failures never
// reach it since they travel inside a Result.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrShutdown):
		return KindShutdown
	case errors.Is(err, ErrInvalidConfig):
		return KindConfig
	case errors.Is(err, ErrUnsupportedMessage), errors.Is(err, ErrMalformedMessage):
		return KindProtocol
	default:
		return KindInfrastructure
	}
}
