package agent

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Canonical encoding
//
// Messages and results are encoded as a tagged envelope:
//
//	{"type":"task","data":{"id":"t1","content":"x","metadata":{}}}
//	{"type":"partial","data":{"message":"half way","progress":0.5}}
//
// Decoding rejects unknown variant tags and documents missing a required
// field. Collections (metadata, tags) may be absent and decode as empty.
// Query.response_to is optional: absent or null decodes to nil. Fields the
// decoder does not know are ignored.

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type taskWire struct {
	ID       *string           `json:"id"`
	Content  *string           `json:"content"`
	Metadata map[string]string `json:"metadata"`
}

type responseWire struct {
	TaskID   *string           `json:"task_id"`
	Result   json.RawMessage   `json:"result"`
	Metadata map[string]string `json:"metadata"`
}

type queryWire struct {
	ID         *string `json:"id"`
	Query      *string `json:"query"`
	ResponseTo *string `json:"response_to,omitempty"`
}

type broadcastWire struct {
	Sender  *string  `json:"sender"`
	Content *string  `json:"content"`
	Tags    []string `json:"tags"`
}

type heartbeatWire struct {
	AgentID   *string `json:"agent_id"`
	Status    *string `json:"status"`
	Timestamp *uint64 `json:"timestamp"`
}

type textResultWire struct {
	Message *string `json:"message"`
}

type partialWire struct {
	Message  *string  `json:"message"`
	Progress *float64 `json:"progress"`
}

// MarshalMessage encodes m in the canonical representation.
func MarshalMessage(m Message) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil message", ErrMalformedMessage)
	}
	return json.Marshal(m)
}

// UnmarshalMessage decodes a canonical message document.
func UnmarshalMessage(data []byte) (Message, error) {
	env, err := decodeEnvelope(data)
	if err != nil {
		return nil, err
	}
	var m Message
	switch MessageType(env.Type) {
	case MessageTask:
		t, err := decodeTask(env.Data)
		if err != nil {
			return nil, err
		}
		m = t
	case MessageResponse:
		r, err := decodeResponse(env.Data)
		if err != nil {
			return nil, err
		}
		m = r
	case MessageQuery:
		q, err := decodeQuery(env.Data)
		if err != nil {
			return nil, err
		}
		m = q
	case MessageBroadcast:
		b, err := decodeBroadcast(env.Data)
		if err != nil {
			return nil, err
		}
		m = b
	case MessageHeartbeat:
		h, err := decodeHeartbeat(env.Data)
		if err != nil {
			return nil, err
		}
		m = h
	default:
		return nil, fmt.Errorf("%w: unknown message type %q", ErrMalformedMessage, env.Type)
	}
	return m, nil
}

// MarshalResult encodes r in the canonical representation.
func MarshalResult(r Result) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: nil result", ErrMalformedMessage)
	}
	return json.Marshal(r)
}

// UnmarshalResult decodes a canonical result document.
func UnmarshalResult(data []byte) (Result, error) {
	env, err := decodeEnvelope(data)
	if err != nil {
		return nil, err
	}
	switch ResultType(env.Type) {
	case ResultSuccess:
		msg, err := decodeText(env.Data, env.Type)
		if err != nil {
			return nil, err
		}
		return Success{Message: msg}, nil
	case ResultError:
		msg, err := decodeText(env.Data, env.Type)
		if err != nil {
			return nil, err
		}
		return Failure{Message: msg}, nil
	case ResultPartial:
		var w partialWire
		if err := decodeData(env.Data, &w, env.Type); err != nil {
			return nil, err
		}
		if w.Message == nil || w.Progress == nil {
			return nil, fmt.Errorf("%w: partial result requires message and progress", ErrMalformedMessage)
		}
		p, err := NewPartial(*w.Message, *w.Progress)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: unknown result type %q", ErrMalformedMessage, env.Type)
	}
}

// Envelope carries any Message through encoding/json, for example as a field
// of a larger document.
type Envelope struct {
	Message Message
}

func (e Envelope) MarshalJSON() ([]byte, error) {
	return MarshalMessage(e.Message)
}

func (e *Envelope) UnmarshalJSON(data []byte) error {
	m, err := UnmarshalMessage(data)
	if err != nil {
		return err
	}
	e.Message = m
	return nil
}

func (t Task) MarshalJSON() ([]byte, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return encodeEnvelope(string(MessageTask), taskWire{
		ID:       &t.ID,
		Content:  &t.Content,
		Metadata: nonNilMap(t.Metadata),
	})
}

func (r Response) MarshalJSON() ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	result, err := MarshalResult(r.Result)
	if err != nil {
		return nil, err
	}
	return encodeEnvelope(string(MessageResponse), responseWire{
		TaskID:   &r.TaskID,
		Result:   result,
		Metadata: nonNilMap(r.Metadata),
	})
}

func (q Query) MarshalJSON() ([]byte, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return encodeEnvelope(string(MessageQuery), queryWire{
		ID:         &q.ID,
		Query:      &q.Query,
		ResponseTo: q.ResponseTo,
	})
}

func (b Broadcast) MarshalJSON() ([]byte, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	tags := b.Tags
	if tags == nil {
		tags = []string{}
	}
	return encodeEnvelope(string(MessageBroadcast), broadcastWire{
		Sender:  &b.Sender,
		Content: &b.Content,
		Tags:    tags,
	})
}

func (h Heartbeat) MarshalJSON() ([]byte, error) {
	if err := h.Validate(); err != nil {
		return nil, err
	}
	return encodeEnvelope(string(MessageHeartbeat), heartbeatWire{
		AgentID:   &h.AgentID,
		Status:    &h.Status,
		Timestamp: &h.Timestamp,
	})
}

func (t *Task) UnmarshalJSON(data []byte) error {
	return unmarshalVariant(data, MessageTask, func(raw json.RawMessage) error {
		v, err := decodeTask(raw)
		if err == nil {
			*t = *v
		}
		return err
	})
}

func (r *Response) UnmarshalJSON(data []byte) error {
	return unmarshalVariant(data, MessageResponse, func(raw json.RawMessage) error {
		v, err := decodeResponse(raw)
		if err == nil {
			*r = *v
		}
		return err
	})
}

func (q *Query) UnmarshalJSON(data []byte) error {
	return unmarshalVariant(data, MessageQuery, func(raw json.RawMessage) error {
		v, err := decodeQuery(raw)
		if err == nil {
			*q = *v
		}
		return err
	})
}

func (b *Broadcast) UnmarshalJSON(data []byte) error {
	return unmarshalVariant(data, MessageBroadcast, func(raw json.RawMessage) error {
		v, err := decodeBroadcast(raw)
		if err == nil {
			*b = *v
		}
		return err
	})
}

func (h *Heartbeat) UnmarshalJSON(data []byte) error {
	return unmarshalVariant(data, MessageHeartbeat, func(raw json.RawMessage) error {
		v, err := decodeHeartbeat(raw)
		if err == nil {
			*h = *v
		}
		return err
	})
}

func (r Success) MarshalJSON() ([]byte, error) {
	return encodeEnvelope(string(ResultSuccess), textResultWire{Message: &r.Message})
}

func (r Failure) MarshalJSON() ([]byte, error) {
	return encodeEnvelope(string(ResultError), textResultWire{Message: &r.Message})
}

func (r Partial) MarshalJSON() ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return encodeEnvelope(string(ResultPartial), partialWire{Message: &r.Message, Progress: &r.Progress})
}

func decodeTask(raw json.RawMessage) (*Task, error) {
	var w taskWire
	if err := decodeData(raw, &w, string(MessageTask)); err != nil {
		return nil, err
	}
	if w.ID == nil || w.Content == nil {
		return nil, Malformed(MessageTask, "id and content are required")
	}
	t := &Task{ID: *w.ID, Content: *w.Content, Metadata: nonNilMap(w.Metadata)}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func decodeResponse(raw json.RawMessage) (*Response, error) {
	var w responseWire
	if err := decodeData(raw, &w, string(MessageResponse)); err != nil {
		return nil, err
	}
	if w.TaskID == nil || len(w.Result) == 0 {
		return nil, Malformed(MessageResponse, "task_id and result are required")
	}
	result, err := UnmarshalResult(w.Result)
	if err != nil {
		return nil, Malformed(MessageResponse, "result: %v", err)
	}
	r := &Response{TaskID: *w.TaskID, Result: result, Metadata: nonNilMap(w.Metadata)}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

func decodeQuery(raw json.RawMessage) (*Query, error) {
	var w queryWire
	if err := decodeData(raw, &w, string(MessageQuery)); err != nil {
		return nil, err
	}
	if w.ID == nil || w.Query == nil {
		return nil, Malformed(MessageQuery, "id and query are required")
	}
	q := &Query{ID: *w.ID, Query: *w.Query, ResponseTo: w.ResponseTo}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return q, nil
}

func decodeBroadcast(raw json.RawMessage) (*Broadcast, error) {
	var w broadcastWire
	if err := decodeData(raw, &w, string(MessageBroadcast)); err != nil {
		return nil, err
	}
	if w.Sender == nil || w.Content == nil {
		return nil, Malformed(MessageBroadcast, "sender and content are required")
	}
	tags := w.Tags
	if tags == nil {
		tags = []string{}
	}
	b := &Broadcast{Sender: *w.Sender, Content: *w.Content, Tags: tags}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

func decodeHeartbeat(raw json.RawMessage) (*Heartbeat, error) {
	var w heartbeatWire
	if err := decodeData(raw, &w, string(MessageHeartbeat)); err != nil {
		return nil, err
	}
	if w.AgentID == nil || w.Status == nil || w.Timestamp == nil {
		return nil, Malformed(MessageHeartbeat, "agent_id, status and timestamp are required")
	}
	h := &Heartbeat{AgentID: *w.AgentID, Status: *w.Status, Timestamp: *w.Timestamp}
	if err := h.Validate(); err != nil {
		return nil, err
	}
	return h, nil
}

func decodeText(raw json.RawMessage, variant string) (string, error) {
	var w textResultWire
	if err := decodeData(raw, &w, variant); err != nil {
		return "", err
	}
	if w.Message == nil {
		return "", fmt.Errorf("%w: %s result requires message", ErrMalformedMessage, variant)
	}
	return *w.Message, nil
}

func encodeEnvelope(variant string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Type: variant, Data: raw})
}

func decodeEnvelope(data []byte) (envelope, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return envelope{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if env.Type == "" {
		return envelope{}, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	}
	if len(env.Data) == 0 || bytes.Equal(env.Data, []byte("null")) {
		return envelope{}, fmt.Errorf("%w: %s: missing data", ErrMalformedMessage, env.Type)
	}
	return env, nil
}

func unmarshalVariant(data []byte, want MessageType, decode func(json.RawMessage) error) error {
	env, err := decodeEnvelope(data)
	if err != nil {
		return err
	}
	if MessageType(env.Type) != want {
		return fmt.Errorf("%w: expected %s, got %q", ErrMalformedMessage, want, env.Type)
	}
	return decode(env.Data)
}

func decodeData(raw json.RawMessage, v any, variant string) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedMessage, variant, err)
	}
	return nil
}

// nonNilMap makes nil and empty maps indistinguishable on the wire
func nonNilMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
