package runtime

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/aixgo-dev/agentkit/agent"
	"github.com/sony/gobreaker/v2"
)

// breaker trips after consecutive infrastructure failures of one agent.
// Protocol, configuration and shutdown errors are the caller's problem and
// never count against the agent. A nil breaker runs every call.
type breaker struct {
	agentID string
	cb      *gobreaker.CircuitBreaker[struct{}]
}

func newBreaker(agentID string, maxFailures uint32, timeout time.Duration) *breaker {
	if maxFailures == 0 {
		return nil
	}
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "agent:" + agentID,
		MaxRequests: 1, // allow 1 probe in half-open state
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("[Host] Circuit %s: %s -> %s", name, from, to)
		},
		IsSuccessful: func(err error) bool {
			return agent.Classify(err) != agent.KindInfrastructure
		},
	})
	return &breaker{agentID: agentID, cb: cb}
}

// run calls fn through the breaker
func (b *breaker) run(fn func() error) error {
	if b == nil {
		return fn()
	}
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s", ErrCircuitOpen, b.agentID)
	}
	return err
}

func (b *breaker) state() gobreaker.State {
	if b == nil {
		return gobreaker.StateClosed
	}
	return b.cb.State()
}
