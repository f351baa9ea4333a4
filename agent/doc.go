// Package agent defines the contract between a host process and the agents
// it drives, and the message vocabulary they exchange.
//
// # Agents
//
// An agent implements the Agent interface. Most implementations embed a
// Lifecycle, which provides the state machine shared by every agent:
//
//	type Counter struct {
//	    agent.Lifecycle
//	    n int
//	}
//
//	func (c *Counter) Initialize(ctx context.Context, cfg agent.Config) error {
//	    return c.Init(cfg, nil)
//	}
//
//	func (c *Counter) ExecuteTask(ctx context.Context, id, data string) (agent.Result, error) {
//	    end, err := c.Begin("task " + id)
//	    if err != nil {
//	        return nil, err
//	    }
//	    defer end(nil)
//	    c.n++
//	    return agent.Success{Message: strconv.Itoa(c.n)}, nil
//	}
//
// Register a factory so hosts can create the agent from configuration:
//
//	func init() {
//	    agent.Register("counter", func() agent.Agent { return &Counter{} })
//	}
//
// # Messages
//
// Message is a closed set of variants: *Task, *Response, *Query, *Broadcast
// and *Heartbeat. Result is Success, Failure or Partial. Switch on the
// concrete type to dispatch:
//
//	switch m := msg.(type) {
//	case *agent.Task:
//	    return agent.NewResponse(m.ID, agent.Success{Message: "done"}), nil
//	case *agent.Broadcast:
//	    return nil, nil
//	default:
//	    return nil, agent.Unsupported(msg.Kind(), c.Config().AgentID)
//	}
//
// # Wire format
//
// MarshalMessage and UnmarshalMessage convert messages to and from a JSON
// envelope of the form {"type": "task", "data": {...}}. Results use the same
// envelope. Unknown variant tags and missing required fields are rejected;
// unknown fields are ignored.
//
// # Errors
//
// Classify maps any error returned by an agent to one of the error kinds:
// configuration, protocol, shutdown or infrastructure. Task-level failures
// are never errors; they are Failure results.
package agent
