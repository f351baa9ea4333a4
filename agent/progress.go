package agent

import (
	"fmt"
	"sync"
)

// ProgressTracker enforces the result sequence of each task: Partial progress
// never decreases and exactly one terminal result ends the task.
//
// ProgressTracker is safe for concurrent use.
type ProgressTracker struct {
	mu    sync.Mutex
	tasks map[string]*taskProgress
}

type taskProgress struct {
	progress float64
	terminal Result
}

// NewProgressTracker creates an empty tracker.
func NewProgressTracker() *ProgressTracker {
	return &ProgressTracker{tasks: make(map[string]*taskProgress)}
}

// Observe records r for taskID. It returns ErrProgressRegression,
// ErrInvalidProgress or ErrTaskFinished when r would break the sequence;
// the tracked state is unchanged in that case.
func (t *ProgressTracker) Observe(taskID string, r Result) error {
	if r == nil {
		return fmt.Errorf("%w: nil result for task %s", ErrMalformedMessage, taskID)
	}
	if err := r.Validate(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	tp, ok := t.tasks[taskID]
	if !ok {
		tp = &taskProgress{}
		t.tasks[taskID] = tp
	}
	if tp.terminal != nil {
		return fmt.Errorf("%w: %s", ErrTaskFinished, taskID)
	}

	switch v := r.(type) {
	case Partial:
		if v.Progress < tp.progress {
			return fmt.Errorf("%w: task %s from %.3f to %.3f", ErrProgressRegression, taskID, tp.progress, v.Progress)
		}
		tp.progress = v.Progress
	default:
		if r.Kind() == ResultSuccess {
			tp.progress = 1
		}
		tp.terminal = r
	}
	return nil
}

// Progress returns the last observed progress for taskID and whether the
// task has finished.
func (t *ProgressTracker) Progress(taskID string) (progress float64, finished bool, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tp, exists := t.tasks[taskID]
	if !exists {
		return 0, false, false
	}
	return tp.progress, tp.terminal != nil, true
}

// Forget drops all state for taskID.
func (t *ProgressTracker) Forget(taskID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.tasks, taskID)
}

// Len returns the number of tracked tasks.
func (t *ProgressTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.tasks)
}
