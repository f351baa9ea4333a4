package statusstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aixgo-dev/agentkit/agent"
)

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu         sync.RWMutex
	infos      map[string]agent.Info
	heartbeats map[string]agent.Heartbeat
	closed     bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		infos:      make(map[string]agent.Info),
		heartbeats: make(map[string]agent.Heartbeat),
	}
}

func (s *MemoryStore) PutInfo(ctx context.Context, info agent.Info) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.infos[info.ID] = cloneInfo(info)
	return nil
}

func (s *MemoryStore) GetInfo(ctx context.Context, agentID string) (agent.Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return agent.Info{}, ErrStoreClosed
	}
	info, ok := s.infos[agentID]
	if !ok {
		return agent.Info{}, fmt.Errorf("%w: %s", ErrNotFound, agentID)
	}
	return cloneInfo(info), nil
}

func (s *MemoryStore) ListInfos(ctx context.Context) ([]agent.Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	out := make([]agent.Info, 0, len(s.infos))
	for _, info := range s.infos {
		out = append(out, cloneInfo(info))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) RecordHeartbeat(ctx context.Context, hb agent.Heartbeat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	if last, ok := s.heartbeats[hb.AgentID]; ok && hb.Timestamp < last.Timestamp {
		return fmt.Errorf("%w: %s at %d, have %d", ErrStaleHeartbeat, hb.AgentID, hb.Timestamp, last.Timestamp)
	}
	s.heartbeats[hb.AgentID] = hb
	return nil
}

func (s *MemoryStore) LastHeartbeat(ctx context.Context, agentID string) (agent.Heartbeat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return agent.Heartbeat{}, ErrStoreClosed
	}
	hb, ok := s.heartbeats[agentID]
	if !ok {
		return agent.Heartbeat{}, fmt.Errorf("%w: %s", ErrNotFound, agentID)
	}
	return hb, nil
}

func (s *MemoryStore) Delete(ctx context.Context, agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	delete(s.infos, agentID)
	delete(s.heartbeats, agentID)
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func cloneInfo(info agent.Info) agent.Info {
	out := info
	if info.Capabilities != nil {
		out.Capabilities = make([]string, len(info.Capabilities))
		copy(out.Capabilities, info.Capabilities)
	}
	if info.SupportedMessageTypes != nil {
		out.SupportedMessageTypes = make([]agent.MessageType, len(info.SupportedMessageTypes))
		copy(out.SupportedMessageTypes, info.SupportedMessageTypes)
	}
	return out
}
