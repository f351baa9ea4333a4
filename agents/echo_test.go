package agents

import (
	"context"
	"testing"

	"github.com/aixgo-dev/agentkit/agent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEcho(t *testing.T, mode string, caps ...string) *Echo {
	t.Helper()
	e := NewEcho()
	cfg := agent.Config{
		AgentID:            "echo-1",
		AgentType:          "echo",
		Capabilities:       caps,
		MaxConcurrentTasks: 1,
		Settings:           map[string]string{},
	}
	if mode != "" {
		cfg.Settings["mode"] = mode
	}
	require.NoError(t, e.Initialize(context.Background(), cfg))
	return e
}

func TestEcho_Initialize(t *testing.T) {
	t.Run("defaults to identity", func(t *testing.T) {
		e := newEcho(t, "", CapabilityEcho)
		assert.Equal(t, ModeIdentity, e.Mode())
		assert.Equal(t, agent.StatusIdle(), e.Status())
	})

	t.Run("rejects unknown mode", func(t *testing.T) {
		e := NewEcho()
		err := e.Initialize(context.Background(), agent.Config{
			AgentID: "e", AgentType: "echo", Settings: map[string]string{"mode": "shout"},
		})
		assert.ErrorIs(t, err, agent.ErrInvalidConfig)
		assert.Equal(t, agent.StateError, e.Status().State)
	})

	t.Run("rejects unsupported capability", func(t *testing.T) {
		e := NewEcho()
		err := e.Initialize(context.Background(), agent.Config{
			AgentID: "e", AgentType: "echo", Capabilities: []string{"echo", "translate"},
		})
		var cerr *agent.ConfigError
		require.ErrorAs(t, err, &cerr)
		assert.Equal(t, "capabilities", cerr.Field)
	})

	t.Run("rejects unknown setting", func(t *testing.T) {
		e := NewEcho()
		err := e.Initialize(context.Background(), agent.Config{
			AgentID: "e", AgentType: "echo", Settings: map[string]string{"volume": "11"},
		})
		assert.ErrorIs(t, err, agent.ErrInvalidConfig)
	})
}

func TestEcho_ExecuteTask(t *testing.T) {
	tests := []struct {
		mode  string
		input string
		want  agent.Result
	}{
		{ModeIdentity, "Hello", agent.Success{Message: "Hello"}},
		{ModeUpper, "Hello", agent.Success{Message: "HELLO"}},
		{ModeLower, "Hello", agent.Success{Message: "hello"}},
		{ModeReverse, "héllo", agent.Success{Message: "olléh"}},
		{ModeUpper, "", agent.Failure{Message: "empty task content"}},
		{ModeUpper, "   ", agent.Failure{Message: "empty task content"}},
	}
	for _, tt := range tests {
		t.Run(tt.mode+"/"+tt.input, func(t *testing.T) {
			e := newEcho(t, tt.mode, CapabilityEcho)
			got, err := e.ExecuteTask(context.Background(), "t1", tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("not initialized", func(t *testing.T) {
		_, err := NewEcho().ExecuteTask(context.Background(), "t1", "x")
		assert.ErrorIs(t, err, agent.ErrNotInitialized)
	})
}

func TestEcho_HandleMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("task yields response with metadata", func(t *testing.T) {
		e := newEcho(t, ModeUpper, CapabilityEcho)
		reply, err := e.HandleMessage(ctx, &agent.Task{ID: "t1", Content: "x", Metadata: map[string]string{"trace": "abc"}})
		require.NoError(t, err)
		resp, ok := reply.(*agent.Response)
		require.True(t, ok)
		assert.Equal(t, "t1", resp.TaskID)
		assert.Equal(t, agent.Success{Message: "X"}, resp.Result)
		assert.Equal(t, "abc", resp.Metadata["trace"])
	})

	t.Run("query answered with query capability", func(t *testing.T) {
		e := newEcho(t, ModeReverse, CapabilityEcho, CapabilityQuery)
		reply, err := e.HandleMessage(ctx, &agent.Query{ID: "q1", Query: "mode"})
		require.NoError(t, err)
		resp := reply.(*agent.Response)
		assert.Equal(t, "q1", resp.TaskID)
		assert.Equal(t, agent.Success{Message: ModeReverse}, resp.Result)

		reply, err = e.HandleMessage(ctx, &agent.Query{ID: "q2", Query: "abc"})
		require.NoError(t, err)
		assert.Equal(t, agent.Success{Message: "cba"}, reply.(*agent.Response).Result)
	})

	t.Run("query without capability is unsupported", func(t *testing.T) {
		e := newEcho(t, "", CapabilityEcho)
		_, err := e.HandleMessage(ctx, &agent.Query{ID: "q1", Query: "mode"})
		assert.ErrorIs(t, err, agent.ErrUnsupportedMessage)
		assert.Equal(t, agent.StatusIdle(), e.Status())
	})

	t.Run("broadcast and heartbeat yield no reply", func(t *testing.T) {
		e := newEcho(t, "", CapabilityEcho)
		reply, err := e.HandleMessage(ctx, &agent.Broadcast{Sender: "A", Content: "hi", Tags: []string{"ops"}})
		require.NoError(t, err)
		assert.Nil(t, reply)

		reply, err = e.HandleMessage(ctx, &agent.Heartbeat{AgentID: "other", Status: "idle", Timestamp: 5})
		require.NoError(t, err)
		assert.Nil(t, reply)
	})

	t.Run("response is unsupported", func(t *testing.T) {
		e := newEcho(t, "", CapabilityEcho)
		_, err := e.HandleMessage(ctx, agent.NewResponse("t1", agent.Success{Message: "ok"}))
		var perr *agent.ProtocolError
		require.ErrorAs(t, err, &perr)
		assert.True(t, perr.Unsupported)
	})

	t.Run("malformed task", func(t *testing.T) {
		e := newEcho(t, "", CapabilityEcho)
		_, err := e.HandleMessage(ctx, &agent.Task{Content: "x"})
		assert.ErrorIs(t, err, agent.ErrMalformedMessage)
	})

	t.Run("after shutdown", func(t *testing.T) {
		e := newEcho(t, "", CapabilityEcho)
		require.NoError(t, e.Shutdown(ctx))
		_, err := e.HandleMessage(ctx, &agent.Task{ID: "t1", Content: "x"})
		assert.ErrorIs(t, err, agent.ErrShutdown)
		_, err = e.ExecuteTask(ctx, "t1", "x")
		assert.ErrorIs(t, err, agent.ErrShutdown)
		assert.Equal(t, agent.StatusShutdown(), e.Info().Status)
	})
}

func TestEcho_Info(t *testing.T) {
	e := newEcho(t, "", CapabilityEcho, CapabilityUpper)
	info := e.Info()
	assert.Equal(t, "echo-1", info.ID)
	assert.Equal(t, "echo", info.Name)
	assert.Equal(t, []string{CapabilityEcho, CapabilityUpper}, info.Capabilities)
	assert.True(t, info.Supports(agent.MessageQuery))
	assert.False(t, info.Supports(agent.MessageResponse))
	assert.True(t, e.CanHandle(CapabilityUpper))
	assert.False(t, e.CanHandle(CapabilityLower))
}

func TestRegisteredTypes(t *testing.T) {
	for _, typ := range []string{"echo", "observer", "batch"} {
		a, err := agent.New(typ)
		require.NoError(t, err, typ)
		assert.Equal(t, typ, a.Info().Name)
	}
}
