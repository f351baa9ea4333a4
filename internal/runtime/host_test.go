package runtime

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aixgo-dev/agentkit/agent"
	"github.com/aixgo-dev/agentkit/pkg/statusstore"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubAgent is a controllable agent. It records the messages it handles and
// the highest number of calls that were ever inside it at once.
type stubAgent struct {
	agent.Lifecycle
	types []agent.MessageType

	initErr error
	exec    func(ctx context.Context, taskID, data string) (agent.Result, error)
	handle  func(ctx context.Context, msg agent.Message) (agent.Message, error)

	mu       sync.Mutex
	received []agent.Message

	inCall    atomic.Int32
	maxInCall atomic.Int32
}

func newStub(types ...agent.MessageType) *stubAgent {
	return &stubAgent{types: types}
}

func (s *stubAgent) Initialize(ctx context.Context, cfg agent.Config) error {
	return s.Init(cfg, func(agent.Config) error { return s.initErr })
}

func (s *stubAgent) Info() agent.Info {
	cfg := s.Config()
	return agent.Info{
		ID:                    cfg.AgentID,
		Name:                  "stub",
		Version:               "0.0.1",
		Capabilities:          cfg.Capabilities,
		SupportedMessageTypes: s.types,
		Status:                s.Status(),
	}
}

func (s *stubAgent) enter() func() {
	n := s.inCall.Add(1)
	for {
		m := s.maxInCall.Load()
		if n <= m || s.maxInCall.CompareAndSwap(m, n) {
			break
		}
	}
	return func() { s.inCall.Add(-1) }
}

func (s *stubAgent) HandleMessage(ctx context.Context, msg agent.Message) (agent.Message, error) {
	defer s.enter()()
	end, err := s.Begin("handling " + string(msg.Kind()))
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.received = append(s.received, msg)
	s.mu.Unlock()

	var reply agent.Message
	if s.handle != nil {
		reply, err = s.handle(ctx, msg)
	}
	end(err)
	return reply, err
}

func (s *stubAgent) ExecuteTask(ctx context.Context, taskID, data string) (agent.Result, error) {
	defer s.enter()()
	end, err := s.Begin("task " + taskID)
	if err != nil {
		return nil, err
	}
	var res agent.Result = agent.Success{Message: data}
	if s.exec != nil {
		res, err = s.exec(ctx, taskID, data)
	}
	end(err)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *stubAgent) Shutdown(ctx context.Context) error {
	return s.Stop()
}

func (s *stubAgent) messages() []agent.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]agent.Message, len(s.received))
	copy(out, s.received)
	return out
}

// gate blocks ExecuteTask until released and signals each entry.
type gate struct {
	entered chan string
	release chan struct{}
}

func newGate() *gate {
	return &gate{entered: make(chan string, 16), release: make(chan struct{})}
}

func (g *gate) exec(ctx context.Context, taskID, data string) (agent.Result, error) {
	g.entered <- taskID
	<-g.release
	return agent.Success{Message: data}, nil
}

func cfgFor(id string, maxTasks int, caps ...string) agent.Config {
	if caps == nil {
		caps = []string{}
	}
	return agent.Config{
		AgentID:            id,
		AgentType:          "stub",
		Capabilities:       caps,
		MaxConcurrentTasks: maxTasks,
		Settings:           map[string]string{},
	}
}

func addStub(t *testing.T, h *Host, id string, maxTasks int, s *stubAgent, caps ...string) {
	t.Helper()
	require.NoError(t, h.Add(context.Background(), s, cfgFor(id, maxTasks, caps...)))
}

func TestHost_AddAndRemove(t *testing.T) {
	ctx := context.Background()
	store := statusstore.NewMemoryStore()
	h := NewHost(WithStore(store))

	a, b := newStub(), newStub()
	addStub(t, h, "a", 1, a)
	addStub(t, h, "b", 1, b)

	assert.Equal(t, []string{"a", "b"}, h.List())
	assert.Equal(t, agent.StatusIdle(), a.Status())

	err := h.Add(ctx, newStub(), cfgFor("a", 1))
	assert.ErrorIs(t, err, ErrAgentAlreadyRegistered)

	bad := newStub()
	bad.initErr = errors.New("missing endpoint")
	err = h.Add(ctx, bad, cfgFor("c", 1))
	assert.ErrorIs(t, err, agent.ErrInvalidConfig)
	assert.Equal(t, agent.StateError, bad.Status().State)
	assert.Equal(t, []string{"a", "b"}, h.List())

	assert.ErrorIs(t, h.Add(ctx, nil, cfgFor("d", 1)), agent.ErrInvalidConfig)
	assert.ErrorIs(t, h.Add(ctx, newStub(), agent.Config{AgentType: "stub"}), agent.ErrInvalidConfig)

	got, err := h.Get("a")
	require.NoError(t, err)
	assert.Same(t, a, got)
	_, err = h.Get("zzz")
	assert.ErrorIs(t, err, ErrAgentNotFound)

	_, err = store.GetInfo(ctx, "a")
	require.NoError(t, err)

	require.NoError(t, h.Remove(ctx, "a"))
	assert.Equal(t, agent.StatusShutdown(), a.Status())
	assert.Equal(t, []string{"b"}, h.List())
	_, err = store.GetInfo(ctx, "a")
	assert.ErrorIs(t, err, statusstore.ErrNotFound)
	assert.ErrorIs(t, h.Remove(ctx, "a"), ErrAgentNotFound)
}

func TestHost_Execute(t *testing.T) {
	ctx := context.Background()
	h := NewHost()

	s := newStub()
	s.exec = func(ctx context.Context, taskID, data string) (agent.Result, error) {
		if data == "" {
			return agent.Failure{Message: "empty"}, nil
		}
		return agent.Success{Message: "done " + data}, nil
	}
	addStub(t, h, "w", 1, s)

	t.Run("success", func(t *testing.T) {
		res, err := h.Execute(ctx, "w", "t1", "x")
		require.NoError(t, err)
		assert.Equal(t, agent.Success{Message: "done x"}, res)

		rec, ok := h.Task("w", "t1")
		require.True(t, ok)
		assert.Equal(t, TaskSucceeded, rec.State)
		assert.Equal(t, 1.0, rec.Progress)
		assert.False(t, rec.Finished.IsZero())
	})

	t.Run("task failure is a result", func(t *testing.T) {
		res, err := h.Execute(ctx, "w", "t2", "")
		require.NoError(t, err)
		assert.Equal(t, agent.Failure{Message: "empty"}, res)

		rec, _ := h.Task("w", "t2")
		assert.Equal(t, TaskFailed, rec.State)
	})

	t.Run("finished id may run again", func(t *testing.T) {
		_, err := h.Execute(ctx, "w", "t1", "y")
		assert.NoError(t, err)
	})

	t.Run("unknown agent", func(t *testing.T) {
		_, err := h.Execute(ctx, "nope", "t3", "x")
		assert.ErrorIs(t, err, ErrAgentNotFound)
	})

	t.Run("empty task id", func(t *testing.T) {
		_, err := h.Execute(ctx, "w", "", "x")
		assert.ErrorIs(t, err, agent.ErrMalformedMessage)
	})

	assert.Len(t, h.Tasks(), 2)
}

func TestHost_ZeroCapacity(t *testing.T) {
	h := NewHost()
	s := newStub()
	addStub(t, h, "w", 0, s)

	_, err := h.Execute(context.Background(), "w", "t1", "x")
	assert.ErrorIs(t, err, ErrCapacityExceeded)
	assert.Equal(t, int32(0), s.maxInCall.Load())
}

func TestHost_AdmissionReject(t *testing.T) {
	ctx := context.Background()
	h := NewHost(WithAdmissionPolicy(AdmissionReject))

	g := newGate()
	s := newStub()
	s.exec = g.exec
	addStub(t, h, "w", 1, s)

	done := make(chan error, 1)
	go func() {
		_, err := h.Execute(ctx, "w", "t1", "x")
		done <- err
	}()
	<-g.entered

	_, err := h.Execute(ctx, "w", "t2", "x")
	assert.ErrorIs(t, err, ErrCapacityExceeded)

	close(g.release)
	require.NoError(t, <-done)

	_, err = h.Execute(ctx, "w", "t3", "x")
	assert.NoError(t, err)
}

func TestHost_AdmissionBlock(t *testing.T) {
	ctx := context.Background()
	h := NewHost()

	g := newGate()
	s := newStub()
	s.exec = g.exec
	addStub(t, h, "w", 1, s)

	done := make(chan error, 1)
	go func() {
		_, err := h.Execute(ctx, "w", "t1", "x")
		done <- err
	}()
	<-g.entered

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err := h.Execute(short, "w", "t2", "x")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	_, ok := h.Task("w", "t2")
	assert.False(t, ok)

	close(g.release)
	require.NoError(t, <-done)
}

func TestHost_DuplicateTask(t *testing.T) {
	ctx := context.Background()
	h := NewHost(WithAdmissionPolicy(AdmissionReject))

	g := newGate()
	s := newStub()
	s.exec = g.exec
	addStub(t, h, "w", 2, s)

	done := make(chan error, 1)
	go func() {
		_, err := h.Execute(ctx, "w", "t1", "x")
		done <- err
	}()
	<-g.entered

	_, err := h.Execute(ctx, "w", "t1", "x")
	assert.ErrorIs(t, err, ErrDuplicateTask)

	close(g.release)
	require.NoError(t, <-done)
}

func TestHost_SerializesCallsPerInstance(t *testing.T) {
	h := NewHost()

	s := newStub()
	s.exec = func(ctx context.Context, taskID, data string) (agent.Result, error) {
		time.Sleep(5 * time.Millisecond)
		return agent.Success{Message: taskID}, nil
	}
	other := newStub()
	addStub(t, h, "w", 4, s)
	addStub(t, h, "o", 4, other)

	reqs := []TaskRequest{
		{AgentID: "w", TaskID: "t1"},
		{AgentID: "w", TaskID: "t2"},
		{AgentID: "w", TaskID: "t3"},
		{AgentID: "w", TaskID: "t4"},
		{AgentID: "o", TaskID: "t5", Data: "five"},
		{AgentID: "missing", TaskID: "t6"},
	}
	results, errs := h.ExecuteParallel(context.Background(), reqs)

	assert.Len(t, results, 5)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs["t6"], ErrAgentNotFound)
	assert.Equal(t, agent.Success{Message: "t3"}, results["t3"])
	assert.Equal(t, agent.Success{Message: "five"}, results["t5"])
	assert.Equal(t, int32(1), s.maxInCall.Load())
}

func TestHost_Deliver(t *testing.T) {
	ctx := context.Background()
	h := NewHost()

	s := newStub(agent.MessageTask, agent.MessageQuery)
	s.handle = func(ctx context.Context, msg agent.Message) (agent.Message, error) {
		switch m := msg.(type) {
		case *agent.Task:
			return agent.NewResponse(m.ID, agent.Success{Message: m.Content}), nil
		case *agent.Query:
			return nil, agent.Malformed(agent.MessageQuery, "unknown query %q", m.Query)
		}
		return nil, nil
	}
	addStub(t, h, "w", 1, s)

	task := agent.NewTask("hello").WithMetadata("k", "v")
	reply, err := h.Deliver(ctx, "w", task)
	require.NoError(t, err)
	resp, ok := reply.(*agent.Response)
	require.True(t, ok)
	assert.Equal(t, task.ID, resp.TaskID)

	rec, ok := h.Task("w", task.ID)
	require.True(t, ok)
	assert.Equal(t, TaskSucceeded, rec.State)

	// the agent received a copy
	got := s.messages()[0].(*agent.Task)
	got.Metadata["k"] = "changed"
	assert.Equal(t, "v", task.Metadata["k"])

	_, err = h.Deliver(ctx, "w", agent.NewQuery("what"))
	assert.ErrorIs(t, err, agent.ErrMalformedMessage)
	assert.Equal(t, agent.StatusIdle(), s.Status(), "protocol errors leave state unchanged")

	_, err = h.Deliver(ctx, "w", nil)
	assert.ErrorIs(t, err, agent.ErrMalformedMessage)

	_, err = h.Deliver(ctx, "nope", task)
	assert.ErrorIs(t, err, ErrAgentNotFound)
}

func TestHost_Route(t *testing.T) {
	ctx := context.Background()
	h := NewHost()

	g := newGate()
	busy := newStub(agent.MessageQuery)
	busy.exec = g.exec
	idle := newStub(agent.MessageQuery)
	addStub(t, h, "first", 1, busy, "search")
	addStub(t, h, "second", 1, idle, "search")
	addStub(t, h, "third", 1, newStub(agent.MessageQuery), "other")

	id, _, err := h.Route(ctx, "search", agent.NewQuery("q"))
	require.NoError(t, err)
	assert.Equal(t, "first", id)

	done := make(chan error, 1)
	go func() {
		_, err := h.Execute(ctx, "first", "t1", "x")
		done <- err
	}()
	<-g.entered
	require.Equal(t, agent.StateBusy, busy.Status().State)

	id, _, err = h.Route(ctx, "search", agent.NewQuery("q"))
	require.NoError(t, err)
	assert.Equal(t, "second", id)
	assert.Len(t, idle.messages(), 1)

	_, _, err = h.Route(ctx, "translate", agent.NewQuery("q"))
	assert.ErrorIs(t, err, ErrNoCapableAgent)

	close(g.release)
	require.NoError(t, <-done)
}

func TestHost_Publish(t *testing.T) {
	ctx := context.Background()
	h := NewHost(WithFanoutLimit(2))

	replier := newStub(agent.MessageBroadcast)
	replier.handle = func(ctx context.Context, msg agent.Message) (agent.Message, error) {
		b := msg.(*agent.Broadcast)
		if !b.HasTag("ops") {
			return nil, nil
		}
		return &agent.Broadcast{Sender: "replier", Content: "ack", Tags: []string{}}, nil
	}
	silent := newStub(agent.MessageBroadcast)
	deaf := newStub(agent.MessageTask)
	sender := newStub(agent.MessageBroadcast)
	addStub(t, h, "replier", 1, replier)
	addStub(t, h, "silent", 1, silent)
	addStub(t, h, "deaf", 1, deaf)
	addStub(t, h, "sender", 1, sender)

	replies, errs, err := h.Publish(ctx, &agent.Broadcast{Sender: "sender", Content: "hi", Tags: []string{"ops"}})
	require.NoError(t, err)
	assert.Empty(t, errs)
	require.Len(t, replies, 1)
	assert.Equal(t, "ack", replies["replier"].(*agent.Broadcast).Content)
	assert.Len(t, silent.messages(), 1)
	assert.Empty(t, deaf.messages())
	assert.Empty(t, sender.messages())

	replies, _, err = h.Publish(ctx, &agent.Broadcast{Sender: "ext", Content: "hi", Tags: []string{"dev"}})
	require.NoError(t, err)
	assert.Empty(t, replies)
	assert.Len(t, sender.messages(), 1)

	_, _, err = h.Publish(ctx, &agent.Broadcast{Content: "no sender"})
	assert.ErrorIs(t, err, agent.ErrMalformedMessage)
}

func TestHost_RateLimit(t *testing.T) {
	ctx := context.Background()

	t.Run("reject", func(t *testing.T) {
		h := NewHost(WithAdmissionPolicy(AdmissionReject), WithRateLimit(1, 1))
		addStub(t, h, "w", 1, newStub(agent.MessageQuery))

		_, err := h.Deliver(ctx, "w", agent.NewQuery("one"))
		require.NoError(t, err)
		_, err = h.Deliver(ctx, "w", agent.NewQuery("two"))
		assert.ErrorIs(t, err, ErrRateLimited)
	})

	t.Run("block gives up at the deadline", func(t *testing.T) {
		h := NewHost(WithRateLimit(0.5, 1))
		addStub(t, h, "w", 1, newStub(agent.MessageQuery))

		_, err := h.Deliver(ctx, "w", agent.NewQuery("one"))
		require.NoError(t, err)

		short, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()
		_, err = h.Deliver(short, "w", agent.NewQuery("two"))
		assert.ErrorIs(t, err, ErrRateLimited)
	})
}

func TestHost_Breaker(t *testing.T) {
	ctx := context.Background()
	h := NewHost(WithBreaker(2, time.Minute))

	failing := newStub(agent.MessageQuery)
	failing.exec = func(ctx context.Context, taskID, data string) (agent.Result, error) {
		return nil, errors.New("backend down")
	}
	failing.handle = func(ctx context.Context, msg agent.Message) (agent.Message, error) {
		return nil, agent.Malformed(agent.MessageQuery, "bad query")
	}
	addStub(t, h, "w", 1, failing)

	for i := 0; i < 3; i++ {
		_, err := h.Deliver(ctx, "w", agent.NewQuery("q"))
		assert.ErrorIs(t, err, agent.ErrMalformedMessage, "protocol errors never open the circuit")
	}

	_, err := h.Execute(ctx, "w", "t1", "x")
	assert.EqualError(t, err, "backend down")
	rec, ok := h.Task("w", "t1")
	require.True(t, ok)
	assert.Equal(t, TaskAborted, rec.State)
	assert.Equal(t, "backend down", rec.Err)

	_, err = h.Execute(ctx, "w", "t2", "x")
	assert.EqualError(t, err, "backend down")

	_, err = h.Execute(ctx, "w", "t3", "x")
	assert.ErrorIs(t, err, ErrCircuitOpen)
	_, ok = h.Task("w", "t3")
	assert.False(t, ok)

	inst, err := h.lookup("w")
	require.NoError(t, err)
	assert.Equal(t, gobreaker.StateOpen, inst.breaker.state())

	var disabled *breaker
	assert.Equal(t, gobreaker.StateClosed, disabled.state())
}

func TestHost_ReportProgress(t *testing.T) {
	ctx := context.Background()
	h := NewHost()

	s := newStub()
	s.exec = func(ctx context.Context, taskID, data string) (agent.Result, error) {
		return agent.NewPartial("started", 0.5)
	}
	addStub(t, h, "w", 2, s)

	res, err := h.Execute(ctx, "w", "t1", "x")
	require.NoError(t, err)
	assert.Equal(t, agent.ResultPartial, res.Kind())

	rec, _ := h.Task("w", "t1")
	assert.Equal(t, TaskPartial, rec.State)
	assert.Equal(t, 0.5, rec.Progress)

	_, err = h.Execute(ctx, "w", "t1", "x")
	assert.ErrorIs(t, err, ErrDuplicateTask)

	assert.ErrorIs(t, h.ReportProgress("w", "t1", agent.Partial{Message: "back", Progress: 0.4}), agent.ErrProgressRegression)
	assert.ErrorIs(t, h.ReportProgress("w", "t1", agent.Partial{Message: "over", Progress: 1.5}), agent.ErrInvalidProgress)
	require.NoError(t, h.ReportProgress("w", "t1", agent.Partial{Message: "more", Progress: 0.8}))
	require.NoError(t, h.ReportProgress("w", "t1", agent.Success{Message: "done"}))
	assert.ErrorIs(t, h.ReportProgress("w", "t1", agent.Success{Message: "again"}), agent.ErrTaskFinished)
	assert.ErrorIs(t, h.ReportProgress("w", "t9", agent.Success{Message: "?"}), ErrTaskNotFound)
	assert.ErrorIs(t, h.ReportProgress("zzz", "t1", agent.Success{Message: "?"}), ErrAgentNotFound)

	rec, _ = h.Task("w", "t1")
	assert.Equal(t, TaskSucceeded, rec.State)
	assert.Equal(t, 1.0, rec.Progress)
}

func TestHost_TaskRetention(t *testing.T) {
	ctx := context.Background()
	h := NewHost(WithTaskRetention(2))
	addStub(t, h, "w", 1, newStub())

	for _, id := range []string{"t1", "t2", "t3"} {
		_, err := h.Execute(ctx, "w", id, "x")
		require.NoError(t, err)
	}

	tasks := h.Tasks()
	require.Len(t, tasks, 2)
	_, ok := h.Task("w", "t1")
	assert.False(t, ok)
	_, ok = h.Task("w", "t3")
	assert.True(t, ok)
}

func TestHost_Heartbeats(t *testing.T) {
	ctx := context.Background()
	store := statusstore.NewMemoryStore()
	h := NewHost(WithStore(store))

	listener := newStub(agent.MessageHeartbeat)
	worker := newStub(agent.MessageTask)
	addStub(t, h, "listener", 1, listener)
	addStub(t, h, "worker", 1, worker)

	first := h.EmitHeartbeats(ctx)
	require.Len(t, first, 2)
	assert.Equal(t, "worker", first[1].AgentID)
	assert.Equal(t, "idle", first[1].Status)

	msgs := listener.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "worker", msgs[0].(*agent.Heartbeat).AgentID)
	assert.Empty(t, worker.messages())

	stored, err := store.LastHeartbeat(ctx, "worker")
	require.NoError(t, err)
	assert.Equal(t, first[1], stored)

	second := h.EmitHeartbeats(ctx)
	for i := range second {
		assert.Greater(t, second[i].Timestamp, first[i].Timestamp)
	}
}

func TestHost_ConcurrentHeartbeatsStayOrdered(t *testing.T) {
	ctx := context.Background()
	h := NewHost()

	var (
		mu          sync.Mutex
		last        = make(map[string]uint64)
		delivered   int
		regressions int
	)
	slow := newStub(agent.MessageHeartbeat)
	slow.handle = func(ctx context.Context, msg agent.Message) (agent.Message, error) {
		hb := msg.(*agent.Heartbeat)
		time.Sleep(20 * time.Microsecond)
		mu.Lock()
		defer mu.Unlock()
		delivered++
		if hb.Timestamp < last[hb.AgentID] {
			regressions++
		}
		last[hb.AgentID] = hb.Timestamp
		return nil, nil
	}
	addStub(t, h, "recipient", 1, slow)
	for _, id := range []string{"s1", "s2", "s3", "s4"} {
		addStub(t, h, id, 1, newStub())
	}

	const emissions = 200
	var wg sync.WaitGroup
	for i := 0; i < emissions; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.EmitHeartbeats(ctx)
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, emissions*4, delivered)
	assert.Zero(t, regressions)
}

func TestHost_StartHeartbeats(t *testing.T) {
	h := NewHost(WithHeartbeatSchedule("@every 1s"))
	listener := newStub(agent.MessageHeartbeat)
	addStub(t, h, "listener", 1, listener)
	addStub(t, h, "worker", 1, newStub())

	require.NoError(t, h.StartHeartbeats())
	assert.Error(t, h.StartHeartbeats())

	assert.Eventually(t, func() bool {
		return len(listener.messages()) > 0
	}, 3*time.Second, 50*time.Millisecond)

	require.NoError(t, h.Close(context.Background()))

	bad := NewHost(WithHeartbeatSchedule("every so often"))
	assert.Error(t, bad.StartHeartbeats())
}

func TestHost_Close(t *testing.T) {
	ctx := context.Background()
	h := NewHost()
	a, b := newStub(), newStub()
	addStub(t, h, "a", 1, a)
	addStub(t, h, "b", 1, b)

	require.NoError(t, h.Close(ctx))

	assert.Equal(t, map[string]agent.Status{
		"a": agent.StatusShutdown(),
		"b": agent.StatusShutdown(),
	}, h.Statuses())

	_, err := h.Execute(ctx, "a", "t1", "x")
	assert.ErrorIs(t, err, ErrHostClosed)
	_, err = h.Deliver(ctx, "a", agent.NewQuery("q"))
	assert.ErrorIs(t, err, ErrHostClosed)
	assert.ErrorIs(t, h.Add(ctx, newStub(), cfgFor("c", 1)), ErrHostClosed)
	assert.ErrorIs(t, h.Remove(ctx, "a"), ErrHostClosed)
	_, _, err = h.Route(ctx, "x", agent.NewQuery("q"))
	assert.ErrorIs(t, err, ErrHostClosed)
	assert.Nil(t, h.EmitHeartbeats(ctx))
	assert.ErrorIs(t, h.Close(ctx), ErrHostClosed)
}

func TestHost_StatusesAndInfos(t *testing.T) {
	ctx := context.Background()
	store := statusstore.NewMemoryStore()
	h := NewHost(WithStore(store))

	addStub(t, h, "a", 1, newStub(agent.MessageTask), "echo")
	addStub(t, h, "b", 1, newStub())

	assert.Equal(t, map[string]agent.Status{
		"a": agent.StatusIdle(),
		"b": agent.StatusIdle(),
	}, h.Statuses())

	infos := h.Infos()
	require.Len(t, infos, 2)
	assert.Equal(t, "a", infos[0].ID)
	assert.Equal(t, []string{"echo"}, infos[0].Capabilities)

	require.NoError(t, h.SyncStore(ctx))
	list, err := store.ListInfos(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
