package agents

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"

	"github.com/aixgo-dev/agentkit/agent"
)

// Observer records broadcasts carrying a subscribed tag and the latest
// heartbeat of every agent it hears from. It executes no work: Task messages
// are rejected and ExecuteTask reports a failure.
//
// Queries:
//
//	count          number of recorded broadcasts
//	last:<agent>   "<timestamp> <status>" of the agent's latest heartbeat
type Observer struct {
	*BaseAgent

	mu         sync.Mutex
	subscribe  map[string]struct{}
	broadcasts []agent.Broadcast
	heartbeats map[string]agent.Heartbeat
	limit      int
}

type observerSettings struct {
	Subscribe []string `mapstructure:"subscribe"`
	Limit     int      `mapstructure:"limit"`
}

const defaultObserverLimit = 1000

func init() {
	agent.Register("observer", func() agent.Agent { return NewObserver() })
}

// NewObserver creates an uninitialized observer.
func NewObserver() *Observer {
	return &Observer{
		BaseAgent: NewBaseAgent("observer", "1.0.0", "Records broadcasts and heartbeats",
			agent.MessageQuery, agent.MessageBroadcast, agent.MessageHeartbeat),
		heartbeats: make(map[string]agent.Heartbeat),
	}
}

// Initialize reads the "subscribe" setting (comma separated tags) and the
// optional "limit" on retained broadcasts.
func (o *Observer) Initialize(ctx context.Context, cfg agent.Config) error {
	var s observerSettings
	err := o.Init(cfg, func(cfg agent.Config) error {
		if err := cfg.DecodeSettings(&s); err != nil {
			return err
		}
		if s.Limit < 0 {
			return &agent.ConfigError{Field: "settings.limit", Reason: "must be >= 0"}
		}
		for _, tag := range s.Subscribe {
			if strings.TrimSpace(tag) == "" {
				return &agent.ConfigError{Field: "settings.subscribe", Reason: "empty tag"}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.subscribe = make(map[string]struct{}, len(s.Subscribe))
	for _, tag := range s.Subscribe {
		o.subscribe[strings.TrimSpace(tag)] = struct{}{}
	}
	o.limit = s.Limit
	if o.limit == 0 {
		o.limit = defaultObserverLimit
	}
	return nil
}

// ExecuteTask always reports a task failure.
func (o *Observer) ExecuteTask(ctx context.Context, taskID, data string) (agent.Result, error) {
	end, err := o.Begin("task " + taskID)
	if err != nil {
		return nil, err
	}
	defer end(nil)
	return agent.Failure{Message: "observer does not execute tasks"}, nil
}

// HandleMessage records broadcasts and heartbeats and answers queries.
func (o *Observer) HandleMessage(ctx context.Context, msg agent.Message) (reply agent.Message, err error) {
	end, err := o.BeginMessage(msg)
	if err != nil {
		return nil, err
	}
	defer func() { end(err) }()

	switch m := msg.(type) {
	case *agent.Broadcast:
		o.record(m)
		return nil, nil
	case *agent.Heartbeat:
		return nil, o.beat(m)
	case *agent.Query:
		return agent.NewResponse(m.ID, o.answer(m.Query)), nil
	default:
		return nil, agent.Unsupported(msg.Kind(), o.Config().AgentID)
	}
}

func (o *Observer) record(b *agent.Broadcast) {
	o.mu.Lock()
	defer o.mu.Unlock()

	matched := false
	for _, tag := range b.Tags {
		if _, ok := o.subscribe[tag]; ok {
			matched = true
			break
		}
	}
	if !matched {
		return
	}
	o.broadcasts = append(o.broadcasts, *agent.CloneMessage(b).(*agent.Broadcast))
	if len(o.broadcasts) > o.limit {
		o.broadcasts = o.broadcasts[len(o.broadcasts)-o.limit:]
	}
}

func (o *Observer) beat(h *agent.Heartbeat) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if last, ok := o.heartbeats[h.AgentID]; ok && h.Timestamp < last.Timestamp {
		log.Printf("[Observer] Rejected heartbeat from %s: timestamp %d < %d", h.AgentID, h.Timestamp, last.Timestamp)
		return agent.Malformed(agent.MessageHeartbeat, "timestamp for %s went backwards from %d to %d", h.AgentID, last.Timestamp, h.Timestamp)
	}
	o.heartbeats[h.AgentID] = *h
	return nil
}

func (o *Observer) answer(q string) agent.Result {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch {
	case q == "count":
		return agent.Success{Message: strconv.Itoa(len(o.broadcasts))}
	case strings.HasPrefix(q, "last:"):
		id := strings.TrimPrefix(q, "last:")
		h, ok := o.heartbeats[id]
		if !ok {
			return agent.Failuref("no heartbeat from %s", id)
		}
		return agent.Success{Message: fmt.Sprintf("%d %s", h.Timestamp, h.Status)}
	default:
		return agent.Failuref("unknown query %q", q)
	}
}

// Broadcasts returns a copy of the recorded broadcasts, oldest first.
func (o *Observer) Broadcasts() []agent.Broadcast {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]agent.Broadcast, len(o.broadcasts))
	copy(out, o.broadcasts)
	return out
}

// Shutdown drops recorded state and moves the agent into the terminal state.
func (o *Observer) Shutdown(ctx context.Context) error {
	if err := o.BaseAgent.Shutdown(ctx); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.broadcasts = nil
	o.heartbeats = make(map[string]agent.Heartbeat)
	return nil
}
