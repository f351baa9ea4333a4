package runtime

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/aixgo-dev/agentkit/agent"
	"github.com/aixgo-dev/agentkit/internal/observability"
	metrics "github.com/aixgo-dev/agentkit/pkg/observability"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Host owns agent instances and drives them through the agent contract.
// Calls into one instance are serialized; distinct instances run in
// parallel. Status, Info and CanHandle are treated as pure reads and are
// not serialized, so a busy agent can be observed while it works.
type Host struct {
	config *HostConfig

	mu      sync.RWMutex
	agents  map[string]*instance
	pending map[string]struct{}
	order   []string
	closed  bool
	cron    *cron.Cron

	// emitMu keeps heartbeat emissions from interleaving at a recipient
	emitMu sync.Mutex

	tasks   *taskTable
	limiter *rateLimiter
}

var _ agent.Host = (*Host)(nil)

// instance is one registered agent and the host state kept for it
type instance struct {
	id      string
	cfg     agent.Config
	agent   agent.Agent
	call    sync.Mutex
	slots   *semaphore.Weighted // nil when the agent accepts no tasks
	breaker *breaker

	hbMu   sync.Mutex
	lastHB uint64
}

// nextHeartbeat returns a timestamp in milliseconds that is strictly
// greater than the previous one for this agent.
func (i *instance) nextHeartbeat() uint64 {
	i.hbMu.Lock()
	defer i.hbMu.Unlock()
	ts := uint64(time.Now().UnixMilli())
	if ts <= i.lastHB {
		ts = i.lastHB + 1
	}
	i.lastHB = ts
	return ts
}

// TaskRequest addresses one task in ExecuteParallel
type TaskRequest struct {
	AgentID string
	TaskID  string
	Data    string
}

// NewHost creates a new Host with the given options
func NewHost(opts ...Option) *Host {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	return &Host{
		config:  cfg,
		agents:  make(map[string]*instance),
		pending: make(map[string]struct{}),
		tasks:   newTaskTable(cfg.TaskRetention),
		limiter: newRateLimiter(cfg.MessagesPerSecond, cfg.Burst),
	}
}

// Add initializes a with cfg and registers it under cfg.AgentID. An agent
// that fails to initialize is not registered.
func (h *Host) Add(ctx context.Context, a agent.Agent, cfg agent.Config) error {
	if a == nil {
		return &agent.ConfigError{Reason: "nil agent"}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	id := cfg.AgentID

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrHostClosed
	}
	_, exists := h.agents[id]
	_, adding := h.pending[id]
	if exists || adding {
		h.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAgentAlreadyRegistered, id)
	}
	h.pending[id] = struct{}{}
	h.mu.Unlock()

	spanCtx, span := observability.StartSpanWithOtel(ctx, "host.add", observability.AgentAttributes(id, cfg.AgentType))
	err := a.Initialize(spanCtx, cfg.Clone())
	observability.EndSpan(span, err, agent.Classify(err).String())

	h.mu.Lock()
	delete(h.pending, id)
	if err != nil {
		h.mu.Unlock()
		log.Printf("[Host] Failed to initialize agent %s (%s): %v", id, cfg.AgentType, err)
		return err
	}
	if h.closed {
		h.mu.Unlock()
		_ = a.Shutdown(ctx)
		return ErrHostClosed
	}

	inst := &instance{
		id:      id,
		cfg:     cfg.Clone(),
		agent:   a,
		breaker: newBreaker(id, h.config.BreakerMaxFailures, h.config.BreakerTimeout),
	}
	if cfg.MaxConcurrentTasks > 0 {
		inst.slots = semaphore.NewWeighted(int64(cfg.MaxConcurrentTasks))
	}
	h.agents[id] = inst
	h.order = append(h.order, id)
	count := len(h.agents)
	h.mu.Unlock()

	if h.config.EnableMetrics {
		metrics.SetRegisteredAgents(count)
	}
	h.syncState(inst)
	h.publishInfo(ctx, inst)
	log.Printf("[Host] Added agent %s (%s)", id, cfg.AgentType)
	return nil
}

// Remove shuts the agent down and forgets it. The agent is removed even when
// Shutdown fails; the error is returned.
func (h *Host) Remove(ctx context.Context, agentID string) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrHostClosed
	}
	inst, exists := h.agents[agentID]
	if !exists {
		h.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
	}
	delete(h.agents, agentID)
	for i, id := range h.order {
		if id == agentID {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
	count := len(h.agents)
	h.mu.Unlock()

	spanCtx, span := observability.StartSpanWithOtel(ctx, "host.remove", observability.AgentAttributes(agentID, inst.cfg.AgentType))
	inst.call.Lock()
	err := inst.agent.Shutdown(spanCtx)
	inst.call.Unlock()
	observability.EndSpan(span, err, agent.Classify(err).String())

	h.tasks.forgetAgent(agentID)
	h.limiter.forget(agentID)
	if store := h.config.Store; store != nil {
		if serr := store.Delete(ctx, agentID); serr != nil {
			log.Printf("[Host] Failed to delete %s from status store: %v", agentID, serr)
		}
	}
	if h.config.EnableMetrics {
		metrics.ForgetAgent(agentID)
		metrics.SetRegisteredAgents(count)
	}
	log.Printf("[Host] Removed agent %s", agentID)
	return err
}

// Get retrieves a registered agent by id
func (h *Host) Get(agentID string) (agent.Agent, error) {
	inst, err := h.lookup(agentID)
	if err != nil {
		return nil, err
	}
	return inst.agent, nil
}

// List returns the registered agent ids in registration order
func (h *Host) List() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, len(h.order))
	copy(out, h.order)
	return out
}

// Deliver hands a copy of msg to one agent and returns its reply, if any.
// Deliveries are subject to the rate limit and the agent's breaker.
func (h *Host) Deliver(ctx context.Context, agentID string, msg agent.Message) (agent.Message, error) {
	inst, err := h.lookup(agentID)
	if err != nil {
		return nil, err
	}
	if err := h.admitMessage(ctx, inst); err != nil {
		return nil, err
	}
	return h.dispatch(ctx, inst, msg)
}

// Route delivers msg to the first idle agent, in registration order, that
// can handle capability. When every capable agent is busy the first busy
// one is used. It returns the id of the agent that received msg.
func (h *Host) Route(ctx context.Context, capability string, msg agent.Message) (string, agent.Message, error) {
	inst, err := h.pick(capability)
	if err != nil {
		return "", nil, err
	}
	if err := h.admitMessage(ctx, inst); err != nil {
		return inst.id, nil, err
	}
	reply, err := h.dispatch(ctx, inst, msg)
	return inst.id, reply, err
}

func (h *Host) pick(capability string) (*instance, error) {
	instances, err := h.snapshot()
	if err != nil {
		return nil, err
	}
	var fallback *instance
	for _, inst := range instances {
		if !inst.agent.CanHandle(capability) {
			continue
		}
		switch inst.agent.Status().State {
		case agent.StateIdle:
			return inst, nil
		case agent.StateBusy:
			if fallback == nil {
				fallback = inst
			}
		}
	}
	if fallback != nil {
		return fallback, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNoCapableAgent, capability)
}

// Publish fans b out to every agent that advertises broadcast support,
// except its sender. Each agent decides on the tags itself. Replies and
// errors are keyed by agent id; agents that accepted b without replying
// appear in neither map.
func (h *Host) Publish(ctx context.Context, b *agent.Broadcast) (map[string]agent.Message, map[string]error, error) {
	if b == nil {
		return nil, nil, fmt.Errorf("%w: nil broadcast", agent.ErrMalformedMessage)
	}
	if err := b.Validate(); err != nil {
		return nil, nil, err
	}
	instances, err := h.snapshot()
	if err != nil {
		return nil, nil, err
	}

	targets := make([]*instance, 0, len(instances))
	for _, inst := range instances {
		if inst.id == b.Sender || !inst.agent.Info().Supports(agent.MessageBroadcast) {
			continue
		}
		targets = append(targets, inst)
	}

	ctx, span := observability.StartSpanWithOtel(ctx, "host.publish",
		trace.WithAttributes(
			attribute.String("broadcast.sender", b.Sender),
			attribute.StringSlice("broadcast.tags", b.Tags),
			attribute.Int("agents.count", len(targets)),
		),
	)
	defer span.End()

	replies := make(map[string]agent.Message)
	errs := make(map[string]error)
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(h.fanout())
	for _, inst := range targets {
		g.Go(func() error {
			reply, err := h.admitAndDispatch(ctx, inst, b)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				errs[inst.id] = err
			case reply != nil:
				replies[inst.id] = reply
			}
			return nil
		})
	}
	_ = g.Wait()

	span.SetAttributes(
		attribute.Int("execution.reply_count", len(replies)),
		attribute.Int("execution.error_count", len(errs)),
	)
	return replies, errs, nil
}

// Execute admits and runs a task on one agent. Task-level failures come
// back as agent.Failure; the error is reserved for tasks that could not be
// serviced.
func (h *Host) Execute(ctx context.Context, agentID, taskID, data string) (res agent.Result, err error) {
	inst, err := h.lookup(agentID)
	if err != nil {
		return nil, err
	}
	if taskID == "" {
		return nil, agent.Malformed(agent.MessageTask, "empty task id")
	}

	ctx, span := observability.StartSpanWithOtel(ctx, "host.execute",
		observability.AgentAttributes(agentID, inst.cfg.AgentType),
		trace.WithAttributes(attribute.String("task.id", taskID)),
	)
	defer func() {
		if res != nil {
			span.SetAttributes(attribute.String("task.result", string(res.Kind())))
		}
		observability.EndSpan(span, err, agent.Classify(err).String())
	}()

	release, err := h.admitTask(ctx, inst)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := h.tasks.begin(agentID, taskID); err != nil {
		h.recordRejection(agentID, "duplicate")
		return nil, err
	}

	if h.config.EnableMetrics {
		metrics.TaskStarted(agentID)
	}
	start := time.Now()
	var result agent.Result
	err = inst.breaker.run(func() error {
		inst.call.Lock()
		defer inst.call.Unlock()
		r, callErr := inst.agent.ExecuteTask(ctx, taskID, data)
		if callErr == nil && r == nil {
			callErr = fmt.Errorf("%w: agent %s returned no result for task %s", agent.ErrInternal, agentID, taskID)
		}
		result = r
		return callErr
	})
	duration := time.Since(start)
	if h.config.EnableMetrics {
		metrics.TaskFinished(agentID)
	}
	defer h.syncState(inst)

	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			h.tasks.remove(agentID, taskID)
			h.recordRejection(agentID, "circuit_open")
			return nil, err
		}
		h.tasks.abort(agentID, taskID, err)
		if h.config.EnableMetrics {
			metrics.RecordTask(agentID, string(TaskAborted), duration)
		}
		return nil, err
	}

	if obsErr := h.tasks.observe(agentID, taskID, result); obsErr != nil {
		log.Printf("[Host] Agent %s reported an invalid result for task %s: %v", agentID, taskID, obsErr)
	}
	if h.config.EnableMetrics {
		metrics.RecordTask(agentID, string(result.Kind()), duration)
	}
	return result, nil
}

// ExecuteParallel runs reqs concurrently, bounded by the fan-out limit.
// Results and errors are keyed by task id.
func (h *Host) ExecuteParallel(ctx context.Context, reqs []TaskRequest) (map[string]agent.Result, map[string]error) {
	results := make(map[string]agent.Result)
	errs := make(map[string]error)
	var mu sync.Mutex

	ctx, span := observability.StartSpanWithOtel(ctx, "host.execute_parallel",
		trace.WithAttributes(attribute.Int("tasks.count", len(reqs))),
	)
	defer span.End()

	var g errgroup.Group
	g.SetLimit(h.fanout())
	for _, req := range reqs {
		g.Go(func() error {
			res, err := h.Execute(ctx, req.AgentID, req.TaskID, req.Data)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs[req.TaskID] = err
			} else {
				results[req.TaskID] = res
			}
			return nil
		})
	}
	_ = g.Wait()

	span.SetAttributes(
		attribute.Int("execution.success_count", len(results)),
		attribute.Int("execution.error_count", len(errs)),
	)
	return results, errs
}

// ReportProgress records a result for a task the host knows about. Partial
// progress must not decrease and a finished task accepts no more results.
func (h *Host) ReportProgress(agentID, taskID string, r agent.Result) error {
	if _, err := h.lookup(agentID); err != nil {
		return err
	}
	return h.tasks.observe(agentID, taskID, r)
}

// Task returns the host's record of one task
func (h *Host) Task(agentID, taskID string) (TaskRecord, bool) {
	return h.tasks.get(agentID, taskID)
}

// Tasks returns a snapshot of the host task table ordered by start time
func (h *Host) Tasks() []TaskRecord {
	return h.tasks.snapshot()
}

// Statuses returns the live status of every agent keyed by id
func (h *Host) Statuses() map[string]agent.Status {
	instances := h.instances()
	out := make(map[string]agent.Status, len(instances))
	for _, inst := range instances {
		out[inst.id] = inst.agent.Status()
	}
	return out
}

// Infos returns every agent's Info in registration order
func (h *Host) Infos() []agent.Info {
	instances := h.instances()
	out := make([]agent.Info, 0, len(instances))
	for _, inst := range instances {
		out = append(out, inst.agent.Info())
	}
	return out
}

// SyncStore writes every agent's Info to the status store
func (h *Host) SyncStore(ctx context.Context) error {
	store := h.config.Store
	if store == nil {
		return nil
	}
	var errs []error
	for _, inst := range h.instances() {
		if err := store.PutInfo(ctx, inst.agent.Info()); err != nil {
			errs = append(errs, fmt.Errorf("store %s: %w", inst.id, err))
		}
	}
	return errors.Join(errs...)
}

// Close stops heartbeats and shuts every agent down concurrently, waiting
// for in-flight calls to finish. Later calls fail with ErrHostClosed.
func (h *Host) Close(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrHostClosed
	}
	h.closed = true
	instances := h.orderedLocked()
	h.mu.Unlock()

	h.stopHeartbeats()

	var mu sync.Mutex
	var errs []error
	var g errgroup.Group
	for _, inst := range instances {
		g.Go(func() error {
			inst.call.Lock()
			err := inst.agent.Shutdown(ctx)
			inst.call.Unlock()
			if err != nil && !errors.Is(err, agent.ErrShutdown) {
				mu.Lock()
				errs = append(errs, fmt.Errorf("shutdown %s: %w", inst.id, err))
				mu.Unlock()
			}
			h.syncState(inst)
			h.publishInfo(ctx, inst)
			return nil
		})
	}

	// Wait for all agents to stop with timeout
	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	log.Printf("[Host] Closed %d agents", len(instances))
	mu.Lock()
	defer mu.Unlock()
	return errors.Join(errs...)
}

// Closed reports whether Close has been called
func (h *Host) Closed() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.closed
}

func (h *Host) lookup(agentID string) (*instance, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return nil, ErrHostClosed
	}
	inst, exists := h.agents[agentID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
	}
	return inst, nil
}

// snapshot returns the instances in registration order, failing once closed
func (h *Host) snapshot() ([]*instance, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return nil, ErrHostClosed
	}
	return h.orderedLocked(), nil
}

// instances returns the instances in registration order, even once closed
func (h *Host) instances() []*instance {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.orderedLocked()
}

func (h *Host) orderedLocked() []*instance {
	out := make([]*instance, 0, len(h.order))
	for _, id := range h.order {
		out = append(out, h.agents[id])
	}
	return out
}

func (h *Host) fanout() int {
	if h.config.FanoutLimit <= 0 {
		return -1
	}
	return h.config.FanoutLimit
}

// admitTask takes one of the agent's task slots
func (h *Host) admitTask(ctx context.Context, inst *instance) (func(), error) {
	if inst.slots == nil {
		h.recordRejection(inst.id, "no_capacity")
		return nil, fmt.Errorf("%w: %s accepts no tasks", ErrCapacityExceeded, inst.id)
	}
	if h.config.Admission == AdmissionReject {
		if !inst.slots.TryAcquire(1) {
			h.recordRejection(inst.id, "capacity")
			return nil, fmt.Errorf("%w: %s", ErrCapacityExceeded, inst.id)
		}
	} else if err := inst.slots.Acquire(ctx, 1); err != nil {
		h.recordRejection(inst.id, "canceled")
		return nil, fmt.Errorf("waiting for a task slot on %s: %w", inst.id, err)
	}
	return func() { inst.slots.Release(1) }, nil
}

// admitMessage applies the rate limit under the admission policy
func (h *Host) admitMessage(ctx context.Context, inst *instance) error {
	if h.config.Admission == AdmissionReject {
		if !h.limiter.allow(inst.id) {
			h.recordRejection(inst.id, "rate_limited")
			return fmt.Errorf("%w: %s", ErrRateLimited, inst.id)
		}
		return nil
	}
	if err := h.limiter.wait(ctx, inst.id); err != nil {
		h.recordRejection(inst.id, "rate_limited")
		return err
	}
	return nil
}

func (h *Host) admitAndDispatch(ctx context.Context, inst *instance, msg agent.Message) (agent.Message, error) {
	if err := h.admitMessage(ctx, inst); err != nil {
		return nil, err
	}
	return h.dispatch(ctx, inst, msg)
}

// dispatch serializes one HandleMessage call into inst and records what the
// reply says about tasks the host tracks.
func (h *Host) dispatch(ctx context.Context, inst *instance, msg agent.Message) (reply agent.Message, err error) {
	if msg == nil {
		return nil, fmt.Errorf("%w: nil message", agent.ErrMalformedMessage)
	}
	kind := msg.Kind()

	ctx, span := observability.StartSpanWithOtel(ctx, "host.deliver",
		observability.AgentAttributes(inst.id, inst.cfg.AgentType),
		trace.WithAttributes(attribute.String("message.type", string(kind))),
	)
	defer func() { observability.EndSpan(span, err, agent.Classify(err).String()) }()

	err = inst.breaker.run(func() error {
		inst.call.Lock()
		defer inst.call.Unlock()
		var callErr error
		reply, callErr = inst.agent.HandleMessage(ctx, agent.CloneMessage(msg))
		return callErr
	})
	defer h.syncState(inst)

	if h.config.EnableMetrics {
		metrics.RecordAgentMessage(inst.id, string(kind))
	}
	if err != nil {
		if h.config.EnableMetrics {
			metrics.RecordMessageError(inst.id, agent.Classify(err).String())
		}
		return nil, err
	}

	if task, ok := msg.(*agent.Task); ok {
		h.tasks.track(inst.id, task.ID)
	}
	if resp, ok := reply.(*agent.Response); ok {
		if obsErr := h.tasks.observe(inst.id, resp.TaskID, resp.Result); obsErr != nil &&
			!ignorable(obsErr) && !errors.Is(obsErr, ErrTaskNotFound) {
			log.Printf("[Host] Agent %s replied out of sequence for task %s: %v", inst.id, resp.TaskID, obsErr)
		}
	}
	return reply, nil
}

func (h *Host) recordRejection(agentID, reason string) {
	if h.config.EnableMetrics {
		metrics.RecordRejection(agentID, reason)
	}
}

func (h *Host) syncState(inst *instance) {
	if h.config.EnableMetrics {
		metrics.SetAgentState(inst.id, string(inst.agent.Status().State))
	}
}

func (h *Host) publishInfo(ctx context.Context, inst *instance) {
	store := h.config.Store
	if store == nil {
		return
	}
	if err := store.PutInfo(ctx, inst.agent.Info()); err != nil {
		log.Printf("[Host] Failed to store info for %s: %v", inst.id, err)
	}
}
