package runtime

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aixgo-dev/agentkit/agent"
)

// TaskState is the host's view of a task.
type TaskState string

const (
	// TaskRunning tasks are admitted and have no result yet.
	TaskRunning TaskState = "running"
	// TaskPartial tasks reported progress but no terminal result.
	TaskPartial TaskState = "partial"
	// TaskSucceeded tasks ended with agent.Success.
	TaskSucceeded TaskState = "succeeded"
	// TaskFailed tasks ended with agent.Failure.
	TaskFailed TaskState = "failed"
	// TaskAborted tasks could not be serviced: the agent returned a hard error.
	TaskAborted TaskState = "aborted"
)

// Done reports whether the task reached a final state.
func (s TaskState) Done() bool {
	return s == TaskSucceeded || s == TaskFailed || s == TaskAborted
}

// TaskRecord is a snapshot of one entry of the host task table.
type TaskRecord struct {
	AgentID  string
	TaskID   string
	State    TaskState
	Progress float64
	Result   agent.Result
	Err      string
	Started  time.Time
	Finished time.Time
}

type taskKey struct {
	agentID string
	taskID  string
}

// taskTable tracks tasks dispatched by the host. Only tasks that have not
// reached a final state count as duplicates; finished records are kept up
// to the retention limit, oldest dropped first.
type taskTable struct {
	mu        sync.Mutex
	records   map[taskKey]*TaskRecord
	finished  []taskKey
	retention int
	progress  map[string]*agent.ProgressTracker
}

func newTaskTable(retention int) *taskTable {
	return &taskTable{
		records:   make(map[taskKey]*TaskRecord),
		retention: retention,
		progress:  make(map[string]*agent.ProgressTracker),
	}
}

// begin registers a running task. It fails with ErrDuplicateTask while a
// task with the same id is unfinished on the same agent.
func (t *taskTable) begin(agentID, taskID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := taskKey{agentID, taskID}
	if rec, ok := t.records[key]; ok {
		if !rec.State.Done() {
			return fmt.Errorf("%w: %s on %s", ErrDuplicateTask, taskID, agentID)
		}
		t.dropFinished(key)
	}
	t.tracker(agentID).Forget(taskID)
	t.records[key] = &TaskRecord{
		AgentID: agentID,
		TaskID:  taskID,
		State:   TaskRunning,
		Started: time.Now(),
	}
	return nil
}

// track registers taskID unless it is already unfinished. Used for tasks
// that arrive as messages, where the agent itself decides about duplicates.
func (t *taskTable) track(agentID, taskID string) {
	t.mu.Lock()
	rec, ok := t.records[taskKey{agentID, taskID}]
	t.mu.Unlock()
	if ok && !rec.State.Done() {
		return
	}
	_ = t.begin(agentID, taskID)
}

// observe applies r to an existing record through the progress tracker.
func (t *taskTable) observe(agentID, taskID string, r agent.Result) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := taskKey{agentID, taskID}
	rec, ok := t.records[key]
	if !ok {
		return fmt.Errorf("%w: %s on %s", ErrTaskNotFound, taskID, agentID)
	}
	if rec.State == TaskAborted {
		return fmt.Errorf("%w: %s", agent.ErrTaskFinished, taskID)
	}
	if err := t.tracker(agentID).Observe(taskID, r); err != nil {
		return err
	}

	rec.Result = r
	rec.Progress, _, _ = t.tracker(agentID).Progress(taskID)
	switch r.Kind() {
	case agent.ResultPartial:
		rec.State = TaskPartial
	case agent.ResultSuccess:
		rec.State = TaskSucceeded
	default:
		rec.State = TaskFailed
	}
	if rec.State.Done() {
		t.markFinished(key, rec)
	}
	return nil
}

// abort records a hard error. The task id may be dispatched again.
func (t *taskTable) abort(agentID, taskID string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := taskKey{agentID, taskID}
	rec, ok := t.records[key]
	if !ok || rec.State.Done() {
		return
	}
	rec.State = TaskAborted
	rec.Err = err.Error()
	t.tracker(agentID).Forget(taskID)
	t.markFinished(key, rec)
}

// remove drops a task that was never dispatched.
func (t *taskTable) remove(agentID, taskID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.records, taskKey{agentID, taskID})
	t.tracker(agentID).Forget(taskID)
}

// forgetAgent drops every record of agentID.
func (t *taskTable) forgetAgent(agentID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key := range t.records {
		if key.agentID == agentID {
			delete(t.records, key)
		}
	}
	kept := t.finished[:0]
	for _, key := range t.finished {
		if key.agentID != agentID {
			kept = append(kept, key)
		}
	}
	t.finished = kept
	delete(t.progress, agentID)
}

func (t *taskTable) get(agentID, taskID string) (TaskRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[taskKey{agentID, taskID}]
	if !ok {
		return TaskRecord{}, false
	}
	return *rec, true
}

// snapshot returns every record ordered by start time.
func (t *taskTable) snapshot() []TaskRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TaskRecord, 0, len(t.records))
	for _, rec := range t.records {
		out = append(out, *rec)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Started.Equal(out[j].Started) {
			return out[i].TaskID < out[j].TaskID
		}
		return out[i].Started.Before(out[j].Started)
	})
	return out
}

func (t *taskTable) tracker(agentID string) *agent.ProgressTracker {
	tr, ok := t.progress[agentID]
	if !ok {
		tr = agent.NewProgressTracker()
		t.progress[agentID] = tr
	}
	return tr
}

func (t *taskTable) markFinished(key taskKey, rec *TaskRecord) {
	rec.Finished = time.Now()
	t.finished = append(t.finished, key)
	for len(t.finished) > t.retention {
		oldest := t.finished[0]
		t.finished = t.finished[1:]
		if old, ok := t.records[oldest]; ok && old.State.Done() {
			delete(t.records, oldest)
			t.tracker(oldest.agentID).Forget(oldest.taskID)
		}
	}
}

func (t *taskTable) dropFinished(key taskKey) {
	for i, k := range t.finished {
		if k == key {
			t.finished = append(t.finished[:i], t.finished[i+1:]...)
			return
		}
	}
}

// ignorable reports whether an observe error only means the agent repeated
// a result the table already holds.
func ignorable(err error) bool {
	return errors.Is(err, agent.ErrTaskFinished)
}
