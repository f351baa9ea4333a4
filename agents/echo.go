package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/aixgo-dev/agentkit/agent"
)

// Echo capabilities.
const (
	CapabilityEcho    = "echo"
	CapabilityUpper   = "upper"
	CapabilityLower   = "lower"
	CapabilityReverse = "reverse"
	CapabilityQuery   = "query"
)

var echoCapabilities = map[string]struct{}{
	CapabilityEcho:    {},
	CapabilityUpper:   {},
	CapabilityLower:   {},
	CapabilityReverse: {},
	CapabilityQuery:   {},
}

// Echo executes tasks by transforming their content according to the
// "mode" setting: identity, upper, lower or reverse.
//
// Task messages are answered with a Response for the task. Queries are
// answered when the agent declares the "query" capability. Broadcasts and
// heartbeats are accepted without a reply.
type Echo struct {
	*BaseAgent
	mode      string
	transform func(string) string
}

type echoSettings struct {
	Mode string `mapstructure:"mode"`
}

func init() {
	agent.Register("echo", func() agent.Agent { return NewEcho() })
}

// NewEcho creates an uninitialized echo agent.
func NewEcho() *Echo {
	return &Echo{
		BaseAgent: NewBaseAgent("echo", "1.0.0", "Transforms task content",
			agent.MessageTask, agent.MessageQuery, agent.MessageBroadcast, agent.MessageHeartbeat),
	}
}

// Initialize validates the mode and the declared capabilities.
func (e *Echo) Initialize(ctx context.Context, cfg agent.Config) error {
	var (
		mode string
		fn   func(string) string
	)
	err := e.Init(cfg, func(cfg agent.Config) error {
		for _, c := range cfg.Capabilities {
			if _, ok := echoCapabilities[c]; !ok {
				return &agent.ConfigError{Field: "capabilities", Reason: fmt.Sprintf("unsupported capability %q", c)}
			}
		}
		var s echoSettings
		if err := cfg.DecodeSettings(&s); err != nil {
			return err
		}
		f, err := transformFunc(s.Mode)
		if err != nil {
			return &agent.ConfigError{Field: "settings.mode", Reason: err.Error()}
		}
		mode, fn = s.Mode, f
		if mode == "" {
			mode = ModeIdentity
		}
		return nil
	})
	if err != nil {
		return err
	}
	e.mode, e.transform = mode, fn
	return nil
}

// Mode returns the configured transform mode.
func (e *Echo) Mode() string { return e.mode }

// ExecuteTask transforms data. Empty content is a task failure.
func (e *Echo) ExecuteTask(ctx context.Context, taskID, data string) (agent.Result, error) {
	end, err := e.Begin("task " + taskID)
	if err != nil {
		return nil, err
	}
	defer end(nil)
	return e.run(data), nil
}

func (e *Echo) run(data string) agent.Result {
	if strings.TrimSpace(data) == "" {
		return agent.Failure{Message: "empty task content"}
	}
	return agent.Success{Message: e.transform(data)}
}

// HandleMessage dispatches on the message variant.
func (e *Echo) HandleMessage(ctx context.Context, msg agent.Message) (reply agent.Message, err error) {
	end, err := e.BeginMessage(msg)
	if err != nil {
		return nil, err
	}
	defer func() { end(err) }()

	switch m := msg.(type) {
	case *agent.Task:
		resp := agent.NewResponse(m.ID, e.run(m.Content))
		for k, v := range m.Metadata {
			resp.Metadata[k] = v
		}
		return resp, nil
	case *agent.Query:
		if !e.CanHandle(CapabilityQuery) {
			return nil, agent.Unsupported(m.Kind(), e.Config().AgentID)
		}
		return agent.NewResponse(m.ID, e.answer(m.Query)), nil
	default:
		return nil, nil
	}
}

func (e *Echo) answer(q string) agent.Result {
	switch q {
	case "mode":
		return agent.Success{Message: e.mode}
	case "capabilities":
		return agent.Success{Message: strings.Join(e.Config().Capabilities, ",")}
	default:
		return e.run(q)
	}
}
