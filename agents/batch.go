package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/aixgo-dev/agentkit/agent"
)

// Batch processes task content in chunks of "chunk_size" runes, applying the
// "mode" transform to each chunk, and reports Partial progress between
// chunks.
//
// ExecuteTask processes every chunk and returns the terminal result. A Task
// message starts the task and processes its first chunk only; the caller
// advances it with Query{query: "step", response_to: taskID} and inspects it
// with Query{query: "progress", response_to: taskID}.
type Batch struct {
	*BaseAgent

	chunkSize int
	retain    int
	transform func(string) string

	tasks    map[string]*batchTask
	finished []string
	progress *agent.ProgressTracker
}

type batchTask struct {
	chunks []string
	done   int
	out    strings.Builder
	result agent.Result
}

type batchSettings struct {
	ChunkSize int    `mapstructure:"chunk_size"`
	Mode      string `mapstructure:"mode"`
	Retain    int    `mapstructure:"retain"`
}

const (
	defaultChunkSize = 8
	defaultRetain    = 256
)

func init() {
	agent.Register("batch", func() agent.Agent { return NewBatch() })
}

// NewBatch creates an uninitialized batch agent.
func NewBatch() *Batch {
	return &Batch{
		BaseAgent: NewBaseAgent("batch", "1.0.0", "Processes content in chunks with progress reporting",
			agent.MessageTask, agent.MessageQuery, agent.MessageBroadcast, agent.MessageHeartbeat),
		tasks:    make(map[string]*batchTask),
		progress: agent.NewProgressTracker(),
	}
}

// Initialize reads chunk_size (default 8), mode and retain, the number of
// finished tasks kept for progress queries (default 256).
func (b *Batch) Initialize(ctx context.Context, cfg agent.Config) error {
	s := batchSettings{ChunkSize: defaultChunkSize, Retain: defaultRetain}
	var fn func(string) string
	err := b.Init(cfg, func(cfg agent.Config) error {
		if err := cfg.DecodeSettings(&s); err != nil {
			return err
		}
		if s.ChunkSize <= 0 {
			return &agent.ConfigError{Field: "settings.chunk_size", Reason: fmt.Sprintf("must be > 0, got %d", s.ChunkSize)}
		}
		if s.Retain < 0 {
			return &agent.ConfigError{Field: "settings.retain", Reason: "must be >= 0"}
		}
		f, err := transformFunc(s.Mode)
		if err != nil {
			return &agent.ConfigError{Field: "settings.mode", Reason: err.Error()}
		}
		fn = f
		return nil
	})
	if err != nil {
		return err
	}
	b.chunkSize, b.retain, b.transform = s.ChunkSize, s.Retain, fn
	return nil
}

// ExecuteTask runs every chunk of data and returns the terminal result.
func (b *Batch) ExecuteTask(ctx context.Context, taskID, data string) (res agent.Result, err error) {
	end, err := b.Begin("task " + taskID)
	if err != nil {
		return nil, err
	}
	defer func() { end(err) }()

	if _, exists := b.tasks[taskID]; exists {
		return agent.Failuref("task %s already exists", taskID), nil
	}
	t, failure := b.start(taskID, data)
	if failure != nil {
		return failure, nil
	}
	for t.result == nil {
		if err := b.step(taskID, t); err != nil {
			return nil, err
		}
	}
	return t.result, nil
}

// HandleMessage starts tasks and answers step and progress queries.
func (b *Batch) HandleMessage(ctx context.Context, msg agent.Message) (reply agent.Message, err error) {
	end, err := b.BeginMessage(msg)
	if err != nil {
		return nil, err
	}
	defer func() { end(err) }()

	switch m := msg.(type) {
	case *agent.Task:
		if _, exists := b.tasks[m.ID]; exists {
			return nil, agent.Malformed(agent.MessageTask, "duplicate task id %s", m.ID)
		}
		t, failure := b.start(m.ID, m.Content)
		if failure != nil {
			return agent.NewResponse(m.ID, failure), nil
		}
		if err := b.step(m.ID, t); err != nil {
			return nil, err
		}
		return agent.NewResponse(m.ID, b.current(t)), nil
	case *agent.Query:
		return b.query(m)
	default:
		return nil, nil
	}
}

func (b *Batch) query(q *agent.Query) (agent.Message, error) {
	if q.Query != "step" && q.Query != "progress" {
		return agent.NewResponse(q.ID, agent.Failuref("unknown query %q", q.Query)), nil
	}
	taskID, ok := q.Correlation()
	if !ok {
		return nil, agent.Malformed(agent.MessageQuery, "%s query requires response_to", q.Query)
	}
	t, ok := b.tasks[taskID]
	if !ok {
		return nil, agent.Malformed(agent.MessageQuery, "unknown task %s", taskID)
	}
	if q.Query == "step" && t.result == nil {
		if err := b.step(taskID, t); err != nil {
			return nil, err
		}
	}
	return agent.NewResponse(taskID, b.current(t)), nil
}

// start registers a task. Empty content yields a failure without
// registering anything.
func (b *Batch) start(taskID, data string) (*batchTask, agent.Result) {
	if data == "" {
		return nil, agent.Failure{Message: "empty task content"}
	}
	t := &batchTask{chunks: chunk(data, b.chunkSize)}
	b.tasks[taskID] = t
	return t, nil
}

// step processes the next chunk and records the resulting progress.
func (b *Batch) step(taskID string, t *batchTask) error {
	t.out.WriteString(b.transform(t.chunks[t.done]))
	t.done++

	var r agent.Result
	if t.done == len(t.chunks) {
		r = agent.Success{Message: t.out.String()}
	} else {
		p, err := agent.NewPartial(fmt.Sprintf("%d/%d chunks", t.done, len(t.chunks)), float64(t.done)/float64(len(t.chunks)))
		if err != nil {
			return fmt.Errorf("%w: %v", agent.ErrInternal, err)
		}
		r = p
	}
	if err := b.progress.Observe(taskID, r); err != nil {
		return fmt.Errorf("%w: %v", agent.ErrInternal, err)
	}
	if r.Terminal() {
		t.result = r
		b.retire(taskID)
	}
	return nil
}

func (b *Batch) current(t *batchTask) agent.Result {
	if t.result != nil {
		return t.result
	}
	return agent.Partial{
		Message:  fmt.Sprintf("%d/%d chunks", t.done, len(t.chunks)),
		Progress: float64(t.done) / float64(len(t.chunks)),
	}
}

func (b *Batch) retire(taskID string) {
	b.finished = append(b.finished, taskID)
	for len(b.finished) > b.retain {
		old := b.finished[0]
		b.finished = b.finished[1:]
		delete(b.tasks, old)
		b.progress.Forget(old)
	}
}

// Progress returns the recorded progress of a task.
func (b *Batch) Progress(taskID string) (progress float64, finished bool, ok bool) {
	return b.progress.Progress(taskID)
}

// Shutdown drops the task table and moves the agent into the terminal state.
func (b *Batch) Shutdown(ctx context.Context) error {
	if err := b.BaseAgent.Shutdown(ctx); err != nil {
		return err
	}
	b.tasks = make(map[string]*batchTask)
	b.finished = nil
	return nil
}

func chunk(s string, size int) []string {
	r := []rune(s)
	chunks := make([]string, 0, (len(r)+size-1)/size)
	for len(r) > 0 {
		n := size
		if n > len(r) {
			n = len(r)
		}
		chunks = append(chunks, string(r[:n]))
		r = r[n:]
	}
	return chunks
}
