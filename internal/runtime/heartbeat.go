package runtime

import (
	"context"
	"errors"
	"fmt"
	"log"
	goruntime "runtime"

	"github.com/aixgo-dev/agentkit/agent"
	metrics "github.com/aixgo-dev/agentkit/pkg/observability"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
)

// StartHeartbeats runs EmitHeartbeats on the configured cron schedule until
// Close. It does nothing when no schedule is configured.
func (h *Host) StartHeartbeats() error {
	spec := h.config.HeartbeatSchedule
	if spec == "" {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHostClosed
	}
	if h.cron != nil {
		return errors.New("heartbeats already started")
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(log.Default()))))
	if _, err := c.AddFunc(spec, func() { h.EmitHeartbeats(context.Background()) }); err != nil {
		return fmt.Errorf("heartbeat schedule %q: %w", spec, err)
	}
	c.Start()
	h.cron = c
	log.Printf("[Heartbeat] Scheduled %q", spec)
	return nil
}

func (h *Host) stopHeartbeats() {
	h.mu.Lock()
	c := h.cron
	h.cron = nil
	h.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
}

// EmitHeartbeats builds one heartbeat per agent, records it in the status
// store and delivers it to every other agent that accepts heartbeats. Each
// recipient sees the heartbeats in agent registration order. Emissions are
// serialized, so a recipient never sees an agent's timestamp go backwards.
// It returns the heartbeats emitted.
func (h *Host) EmitHeartbeats(ctx context.Context) []agent.Heartbeat {
	h.emitMu.Lock()
	defer h.emitMu.Unlock()

	instances, err := h.snapshot()
	if err != nil {
		return nil
	}

	store := h.config.Store
	beats := make([]agent.Heartbeat, 0, len(instances))
	for _, inst := range instances {
		hb := agent.Heartbeat{
			AgentID:   inst.id,
			Status:    inst.agent.Status().String(),
			Timestamp: inst.nextHeartbeat(),
		}
		beats = append(beats, hb)

		if h.config.EnableMetrics {
			metrics.RecordHeartbeat(inst.id)
		}
		if store != nil {
			if err := store.RecordHeartbeat(ctx, hb); err != nil {
				log.Printf("[Heartbeat] Failed to store heartbeat of %s: %v", inst.id, err)
			}
			if err := store.PutInfo(ctx, inst.agent.Info()); err != nil {
				log.Printf("[Heartbeat] Failed to store info of %s: %v", inst.id, err)
			}
		}
	}

	var g errgroup.Group
	g.SetLimit(h.fanout())
	for _, recipient := range instances {
		if recipient.agent.Status().IsTerminal() || !recipient.agent.Info().Supports(agent.MessageHeartbeat) {
			continue
		}
		g.Go(func() error {
			for _, hb := range beats {
				if hb.AgentID == recipient.id {
					continue
				}
				if _, err := h.dispatch(ctx, recipient, &hb); err != nil {
					log.Printf("[Heartbeat] Delivering heartbeat of %s to %s failed: %v", hb.AgentID, recipient.id, err)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	if h.config.EnableMetrics {
		metrics.SetGoroutines(goruntime.NumGoroutine())
	}
	return beats
}
