package agent

import (
	"fmt"

	"github.com/google/uuid"
)

// MessageType names a Message variant. It doubles as the variant tag of the
// canonical JSON encoding.
type MessageType string

const (
	MessageTask      MessageType = "task"
	MessageResponse  MessageType = "response"
	MessageQuery     MessageType = "query"
	MessageBroadcast MessageType = "broadcast"
	MessageHeartbeat MessageType = "heartbeat"
)

// AllMessageTypes lists every variant in declaration order.
var AllMessageTypes = []MessageType{
	MessageTask,
	MessageResponse,
	MessageQuery,
	MessageBroadcast,
	MessageHeartbeat,
}

// Message is the closed set of values exchanged between a host and its agents:
// *Task, *Response, *Query, *Broadcast or *Heartbeat.
type Message interface {
	// Kind returns the variant tag.
	Kind() MessageType

	// Validate reports a *ProtocolError when required fields are missing.
	Validate() error

	isMessage()
}

// Task is a unit of work addressed by a unique id. A nil Metadata map is
// the same value as an empty one: it encodes as {} and decodes as an empty
// map.
type Task struct {
	ID       string
	Content  string
	Metadata map[string]string
}

// Response replies to a prior Task, correlated by TaskID. Metadata follows
// the same nil-is-empty rule as Task.
type Response struct {
	TaskID   string
	Result   Result
	Metadata map[string]string
}

// Query asks a question. ResponseTo optionally threads it to an earlier message id.
type Query struct {
	ID         string
	Query      string
	ResponseTo *string
}

// Broadcast is a fan-out notification. Tags are ordered topic labels.
type Broadcast struct {
	Sender  string
	Content string
	Tags    []string
}

// Heartbeat is a liveness signal. Timestamp never decreases for one AgentID.
type Heartbeat struct {
	AgentID   string
	Status    string
	Timestamp uint64
}

func (*Task) isMessage()      {}
func (*Response) isMessage()  {}
func (*Query) isMessage()     {}
func (*Broadcast) isMessage() {}
func (*Heartbeat) isMessage() {}

func (*Task) Kind() MessageType      { return MessageTask }
func (*Response) Kind() MessageType  { return MessageResponse }
func (*Query) Kind() MessageType     { return MessageQuery }
func (*Broadcast) Kind() MessageType { return MessageBroadcast }
func (*Heartbeat) Kind() MessageType { return MessageHeartbeat }

// NewTaskID returns a fresh task or query id.
func NewTaskID() string {
	return uuid.New().String()
}

// NewTask creates a task with a generated id and empty metadata.
func NewTask(content string) *Task {
	return &Task{
		ID:       NewTaskID(),
		Content:  content,
		Metadata: make(map[string]string),
	}
}

// WithMetadata sets a metadata key and returns the task for chaining:
//
//	t := agent.NewTask("summarize").
//	    WithMetadata("priority", "high").
//	    WithMetadata("source", "api")
func (t *Task) WithMetadata(key, value string) *Task {
	if t.Metadata == nil {
		t.Metadata = make(map[string]string)
	}
	t.Metadata[key] = value
	return t
}

func (t *Task) Validate() error {
	if t.ID == "" {
		return Malformed(MessageTask, "id is required")
	}
	return nil
}

// NewResponse creates a reply to the task with the given id.
func NewResponse(taskID string, result Result) *Response {
	return &Response{
		TaskID:   taskID,
		Result:   result,
		Metadata: make(map[string]string),
	}
}

func (r *Response) Validate() error {
	if r.TaskID == "" {
		return Malformed(MessageResponse, "task_id is required")
	}
	if r.Result == nil {
		return Malformed(MessageResponse, "result is required")
	}
	if err := r.Result.Validate(); err != nil {
		return Malformed(MessageResponse, "result: %v", err)
	}
	return nil
}

// NewQuery creates a query with a generated id.
func NewQuery(query string) *Query {
	return &Query{ID: NewTaskID(), Query: query}
}

// InReplyTo threads the query to an earlier message id.
func (q *Query) InReplyTo(id string) *Query {
	q.ResponseTo = &id
	return q
}

// Correlation returns the threaded message id, if any.
func (q *Query) Correlation() (string, bool) {
	if q.ResponseTo == nil {
		return "", false
	}
	return *q.ResponseTo, true
}

func (q *Query) Validate() error {
	if q.ID == "" {
		return Malformed(MessageQuery, "id is required")
	}
	if q.ResponseTo != nil && *q.ResponseTo == "" {
		return Malformed(MessageQuery, "response_to must not be empty when set")
	}
	return nil
}

// HasTag reports whether the broadcast carries tag.
func (b *Broadcast) HasTag(tag string) bool {
	for _, t := range b.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

func (b *Broadcast) Validate() error {
	if b.Sender == "" {
		return Malformed(MessageBroadcast, "sender is required")
	}
	return nil
}

func (h *Heartbeat) Validate() error {
	if h.AgentID == "" {
		return Malformed(MessageHeartbeat, "agent_id is required")
	}
	return nil
}

// CloneMessage returns a copy of m that shares no maps or slices with it.
func CloneMessage(m Message) Message {
	switch v := m.(type) {
	case *Task:
		c := *v
		c.Metadata = cloneMap(v.Metadata)
		return &c
	case *Response:
		c := *v
		c.Metadata = cloneMap(v.Metadata)
		return &c
	case *Query:
		c := *v
		if v.ResponseTo != nil {
			id := *v.ResponseTo
			c.ResponseTo = &id
		}
		return &c
	case *Broadcast:
		c := *v
		c.Tags = cloneSlice(v.Tags)
		return &c
	case *Heartbeat:
		c := *v
		return &c
	default:
		return m
	}
}

// Describe returns a short human-readable summary of m for logs.
func Describe(m Message) string {
	switch v := m.(type) {
	case *Task:
		return fmt.Sprintf("Task{ID:%s}", v.ID)
	case *Response:
		return fmt.Sprintf("Response{TaskID:%s, Result:%s}", v.TaskID, describeResult(v.Result))
	case *Query:
		return fmt.Sprintf("Query{ID:%s}", v.ID)
	case *Broadcast:
		return fmt.Sprintf("Broadcast{Sender:%s, Tags:%v}", v.Sender, v.Tags)
	case *Heartbeat:
		return fmt.Sprintf("Heartbeat{AgentID:%s, Timestamp:%d}", v.AgentID, v.Timestamp)
	case nil:
		return "<nil>"
	default:
		return fmt.Sprintf("%T", m)
	}
}

func describeResult(r Result) string {
	if r == nil {
		return "<nil>"
	}
	return string(r.Kind())
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneSlice(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}
