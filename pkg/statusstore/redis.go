package statusstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aixgo-dev/agentkit/agent"
	"github.com/redis/go-redis/v9"
)

// ErrContention is returned when a heartbeat could not be recorded because
// other writers kept changing the same key.
var ErrContention = errors.New("heartbeat write contention")

const (
	defaultPrefix = "agentkit:"

	// heartbeatRetries bounds optimistic transaction retries when several
	// hosts record heartbeats for the same agent.
	heartbeatRetries = 5
)

// RedisStore implements Store using Redis. Snapshots and heartbeats are
// stored as JSON strings, with a set indexing the known agent ids.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	mu     sync.RWMutex
	closed bool
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// Addr is the Redis server address (host:port).
	Addr string `yaml:"addr"`
	// Password is the Redis password (optional).
	Password string `yaml:"password"`
	// DB is the Redis database number.
	DB int `yaml:"db"`
	// Prefix is the key prefix for all keys (default: "agentkit:").
	Prefix string `yaml:"prefix"`
	// TTL expires records of agents that stop reporting (0 = never expire).
	TTL time.Duration `yaml:"ttl"`
	// PoolSize is the connection pool size (default: 10).
	PoolSize int `yaml:"pool_size"`
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: poolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewRedisStoreFromClient(client, cfg.Prefix, cfg.TTL), nil
}

// NewRedisStoreFromClient creates a store from an existing client.
// This is useful for testing with miniredis.
func NewRedisStoreFromClient(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

// Key helpers
func (s *RedisStore) infoKey(agentID string) string {
	return s.prefix + "info:" + agentID
}

func (s *RedisStore) heartbeatKey(agentID string) string {
	return s.prefix + "heartbeat:" + agentID
}

func (s *RedisStore) indexKey() string {
	return s.prefix + "agents"
}

func (s *RedisStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

func (s *RedisStore) PutInfo(ctx context.Context, info agent.Info) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("marshal info: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.infoKey(info.ID), data, s.ttl)
	pipe.SAdd(ctx, s.indexKey(), info.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save info: %w", err)
	}
	return nil
}

func (s *RedisStore) GetInfo(ctx context.Context, agentID string) (agent.Info, error) {
	if err := s.checkOpen(); err != nil {
		return agent.Info{}, err
	}
	data, err := s.client.Get(ctx, s.infoKey(agentID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return agent.Info{}, fmt.Errorf("%w: %s", ErrNotFound, agentID)
	}
	if err != nil {
		return agent.Info{}, fmt.Errorf("load info: %w", err)
	}
	var info agent.Info
	if err := json.Unmarshal(data, &info); err != nil {
		return agent.Info{}, fmt.Errorf("unmarshal info: %w", err)
	}
	return info, nil
}

// ListInfos skips index entries whose snapshot expired and prunes them
// from the index.
func (s *RedisStore) ListInfos(ctx context.Context) ([]agent.Info, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	sort.Strings(ids)

	out := make([]agent.Info, 0, len(ids))
	var stale []any
	for _, id := range ids {
		info, err := s.GetInfo(ctx, id)
		if errors.Is(err, ErrNotFound) {
			stale = append(stale, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	if len(stale) > 0 {
		_ = s.client.SRem(ctx, s.indexKey(), stale...).Err()
	}
	return out, nil
}

// RecordHeartbeat compares and sets inside a WATCH transaction so that
// concurrent writers cannot move the stored timestamp backwards.
func (s *RedisStore) RecordHeartbeat(ctx context.Context, hb agent.Heartbeat) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	data, err := agent.MarshalMessage(&hb)
	if err != nil {
		return fmt.Errorf("marshal heartbeat: %w", err)
	}
	key := s.heartbeatKey(hb.AgentID)

	txf := func(tx *redis.Tx) error {
		prev, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			last, err := decodeHeartbeat(prev)
			if err != nil {
				return err
			}
			if hb.Timestamp < last.Timestamp {
				return fmt.Errorf("%w: %s at %d, have %d", ErrStaleHeartbeat, hb.AgentID, hb.Timestamp, last.Timestamp)
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		return err
	}

	for i := 0; i < heartbeatRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("%w: %s", ErrContention, hb.AgentID)
}

func (s *RedisStore) LastHeartbeat(ctx context.Context, agentID string) (agent.Heartbeat, error) {
	if err := s.checkOpen(); err != nil {
		return agent.Heartbeat{}, err
	}
	data, err := s.client.Get(ctx, s.heartbeatKey(agentID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return agent.Heartbeat{}, fmt.Errorf("%w: %s", ErrNotFound, agentID)
	}
	if err != nil {
		return agent.Heartbeat{}, fmt.Errorf("load heartbeat: %w", err)
	}
	return decodeHeartbeat(data)
}

func (s *RedisStore) Delete(ctx context.Context, agentID string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.infoKey(agentID), s.heartbeatKey(agentID))
	pipe.SRem(ctx, s.indexKey(), agentID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete %s: %w", agentID, err)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.client.Close()
}

func decodeHeartbeat(data []byte) (agent.Heartbeat, error) {
	msg, err := agent.UnmarshalMessage(data)
	if err != nil {
		return agent.Heartbeat{}, fmt.Errorf("decode stored heartbeat: %w", err)
	}
	hb, ok := msg.(*agent.Heartbeat)
	if !ok {
		return agent.Heartbeat{}, fmt.Errorf("decode stored heartbeat: unexpected %s message", msg.Kind())
	}
	return *hb, nil
}
