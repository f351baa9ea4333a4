package agent

import (
	"errors"
	"fmt"
	"sync"
)

type phase int

const (
	phaseUninitialized phase = iota
	phaseReady
	phaseFaulted
	phaseShutdown
)

// Lifecycle implements the agent state machine. Embed it in an Agent
// implementation and call Begin around every unit of work:
//
//	func (a *MyAgent) ExecuteTask(ctx context.Context, id, data string) (agent.Result, error) {
//	    end, err := a.life.Begin("task " + id)
//	    if err != nil {
//	        return nil, err
//	    }
//	    result, err := a.run(ctx, data)
//	    end(err)
//	    return result, err
//	}
//
// Transitions:
//
//	uninitialized --Init ok--> idle --Begin--> busy --end--> idle
//	uninitialized --Init fails--> error --Init ok--> idle
//	busy --end(ErrInternal)--> error
//	any --Stop--> shutdown (terminal)
//
// Lifecycle is safe for concurrent use. Its zero value is an uninitialized agent.
type Lifecycle struct {
	mu     sync.RWMutex
	phase  phase
	fault  string
	active int
	busy   string
	cfg    Config
	caps   map[string]struct{}
}

// Init validates cfg, runs check (when not nil) and moves to idle. On failure
// the lifecycle moves to the error state and the error is returned. A healthy
// agent rejects re-initialization with ErrAlreadyInitialized and keeps its
// current Config.
func (l *Lifecycle) Init(cfg Config, check func(Config) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.phase {
	case phaseShutdown:
		return ErrShutdown
	case phaseReady:
		return fmt.Errorf("%w: %s", ErrAlreadyInitialized, l.cfg.AgentID)
	}

	err := cfg.Validate()
	if err == nil && check != nil {
		err = check(cfg)
	}
	if err != nil {
		if !errors.Is(err, ErrInvalidConfig) {
			err = &ConfigError{Reason: err.Error()}
		}
		l.phase = phaseFaulted
		l.fault = err.Error()
		return err
	}

	l.cfg = cfg.Clone()
	l.caps = make(map[string]struct{}, len(cfg.Capabilities))
	for _, c := range cfg.Capabilities {
		l.caps[c] = struct{}{}
	}
	l.phase = phaseReady
	l.fault = ""
	l.active = 0
	l.busy = ""
	return nil
}

// Begin marks the start of a unit of work described by desc and returns the
// function that ends it. end(err) returns the agent to idle, or to the error
// state when err wraps ErrInternal.
func (l *Lifecycle) Begin(desc string) (end func(err error), err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.guardLocked(); err != nil {
		return nil, err
	}
	l.active++
	l.busy = desc

	var once sync.Once
	return func(err error) {
		once.Do(func() { l.end(err) })
	}, nil
}

func (l *Lifecycle) end(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.active > 0 {
		l.active--
	}
	if l.phase != phaseReady {
		return
	}
	if errors.Is(err, ErrInternal) {
		l.phase = phaseFaulted
		l.fault = err.Error()
		l.active = 0
		return
	}
	if l.active == 0 {
		l.busy = ""
	}
}

// Guard returns the error an operation must fail with in the current state,
// or nil when the agent can do work.
func (l *Lifecycle) Guard() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.guardLocked()
}

func (l *Lifecycle) guardLocked() error {
	switch l.phase {
	case phaseUninitialized:
		return ErrNotInitialized
	case phaseFaulted:
		return fmt.Errorf("%w: %s", ErrFaulted, l.fault)
	case phaseShutdown:
		return ErrShutdown
	}
	return nil
}

// Fail moves a live agent into the error state.
func (l *Lifecycle) Fail(reason string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.phase == phaseShutdown {
		return
	}
	l.phase = phaseFaulted
	l.fault = reason
	l.active = 0
}

// Stop moves the agent into the terminal shutdown state. A second Stop
// returns ErrShutdown.
func (l *Lifecycle) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.phase == phaseShutdown {
		return ErrShutdown
	}
	l.phase = phaseShutdown
	l.active = 0
	l.busy = ""
	return nil
}

// Status projects the state machine onto a Status. An agent that was never
// initialized reports an error status.
func (l *Lifecycle) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()

	switch l.phase {
	case phaseUninitialized:
		return StatusError(ErrNotInitialized.Error())
	case phaseFaulted:
		return StatusError(l.fault)
	case phaseShutdown:
		return StatusShutdown()
	}
	if l.active > 0 {
		return StatusBusy(l.busy)
	}
	return StatusIdle()
}

// Initialized reports whether Init succeeded and the agent is not faulted
// or shut down.
func (l *Lifecycle) Initialized() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.phase == phaseReady
}

// Config returns a copy of the accepted configuration. It is the zero Config
// until Init succeeds.
func (l *Lifecycle) Config() Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg.Clone()
}

// CanHandle reports whether capability was declared in the accepted Config.
func (l *Lifecycle) CanHandle(capability string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.caps[capability]
	return ok
}
