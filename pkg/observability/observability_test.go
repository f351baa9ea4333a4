package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aixgo-dev/agentkit/agent"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	InitMetrics()
	InitMetrics()

	RecordTask("m1", "success", 20*time.Millisecond)
	RecordTask("m1", "success", 10*time.Millisecond)
	RecordTask("m1", "error", time.Millisecond)
	assert.Equal(t, 2.0, testutil.ToFloat64(tasksTotal.WithLabelValues("m1", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(tasksTotal.WithLabelValues("m1", "error")))

	TaskStarted("m1")
	TaskStarted("m1")
	TaskFinished("m1")
	assert.Equal(t, 1.0, testutil.ToFloat64(tasksInFlight.WithLabelValues("m1")))

	RecordRejection("m1", "capacity")
	RecordAgentMessage("m1", "query")
	RecordMessageError("m1", "protocol")
	RecordHeartbeat("m1")
	assert.Equal(t, 1.0, testutil.ToFloat64(admissionRejections.WithLabelValues("m1", "capacity")))
	assert.Equal(t, 1.0, testutil.ToFloat64(messagesTotal.WithLabelValues("m1", "query")))
	assert.Equal(t, 1.0, testutil.ToFloat64(messageErrors.WithLabelValues("m1", "protocol")))
	assert.Equal(t, 1.0, testutil.ToFloat64(heartbeatsTotal.WithLabelValues("m1")))

	SetAgentState("m1", "busy")
	assert.Equal(t, 1.0, testutil.ToFloat64(agentState.WithLabelValues("m1", "busy")))
	assert.Equal(t, 0.0, testutil.ToFloat64(agentState.WithLabelValues("m1", "idle")))
	SetAgentState("m1", "idle")
	assert.Equal(t, 0.0, testutil.ToFloat64(agentState.WithLabelValues("m1", "busy")))
	assert.Equal(t, 1.0, testutil.ToFloat64(agentState.WithLabelValues("m1", "idle")))

	SetRegisteredAgents(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(registeredAgents))

	ForgetAgent("m1")
	assert.Equal(t, 0, testutil.CollectAndCount(tasksTotal))
	assert.Equal(t, 0, testutil.CollectAndCount(agentState))
}

func TestHostStateFrom(t *testing.T) {
	st := HostStateFrom(map[string]agent.Status{
		"a": agent.StatusIdle(),
		"b": agent.StatusBusy("task t1"),
		"c": agent.StatusError("boom"),
		"d": agent.StatusError("boom"),
	}, false, "redis")

	assert.Equal(t, HostState{
		Registered:   4,
		Busy:         1,
		Faulted:      []string{"c", "d"},
		StoreBackend: "redis",
	}, st)
}

func TestHealthChecker_Check(t *testing.T) {
	ctx := context.Background()
	hc := NewHealthChecker()
	assert.Equal(t, HealthStatusHealthy, hc.Check(ctx).Status)

	state := HostState{Registered: 2, StoreBackend: "memory"}
	hc.SetHostState(func() HostState { return state })
	hc.RegisterCheck(StoreCheck(func(context.Context) error { return nil }))

	resp := hc.Check(ctx)
	assert.Equal(t, HealthStatusHealthy, resp.Status)
	require.NotNil(t, resp.Host)
	assert.Equal(t, 2, resp.Host.Registered)
	assert.Equal(t, HealthStatusHealthy, resp.Checks["status_store"].Status)
	assert.True(t, hc.Ready(ctx))

	state.Faulted = []string{"a"}
	assert.Equal(t, HealthStatusDegraded, hc.Check(ctx).Status)
	assert.True(t, hc.Ready(ctx))

	hc.RegisterCheck(&HealthCheck{Name: "cache", CheckFunc: func(context.Context) error { return errors.New("cold") }})
	resp = hc.Check(ctx)
	assert.Equal(t, HealthStatusDegraded, resp.Status)
	assert.Equal(t, "cold", resp.Checks["cache"].Message)

	hc.RegisterCheck(StoreCheck(func(context.Context) error { return errors.New("down") }))
	resp = hc.Check(ctx)
	assert.Equal(t, HealthStatusUnhealthy, resp.Status)
	assert.Equal(t, "down", resp.Checks["status_store"].Message)
	assert.False(t, hc.Ready(ctx))
}

func TestHealthChecker_ClosedHostNotReady(t *testing.T) {
	hc := NewHealthChecker()
	hc.SetHostState(func() HostState { return HostState{Registered: 1, Closed: true} })

	resp := hc.Check(context.Background())
	assert.Equal(t, HealthStatusUnhealthy, resp.Status)
	assert.False(t, hc.Ready(context.Background()))

	rec := httptest.NewRecorder()
	hc.ReadinessHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "not ready")

	rec = httptest.NewRecorder()
	hc.HealthHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthChecker_Timeout(t *testing.T) {
	hc := NewHealthChecker()
	hc.RegisterCheck(&HealthCheck{
		Name:     "slow",
		Timeout:  10 * time.Millisecond,
		Critical: true,
		CheckFunc: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})
	resp := hc.Check(context.Background())
	assert.Equal(t, HealthStatusUnhealthy, resp.Status)
	assert.Contains(t, resp.Checks["slow"].Message, "deadline exceeded")
}

func TestServer_Handler(t *testing.T) {
	InitMetrics()
	InitHealthChecker().SetHostState(func() HostState {
		return HostState{Registered: 3, StoreBackend: "memory"}
	})
	RecordHeartbeat("srv")

	srv := httptest.NewServer(NewServer(0).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health/live")
	require.NoError(t, err)
	var live map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&live))
	resp.Body.Close()
	assert.Equal(t, "alive", live["status"])

	resp, err = http.Get(srv.URL + "/health")
	require.NoError(t, err)
	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	resp.Body.Close()
	assert.Equal(t, HealthStatusHealthy, health.Status)
	require.NotNil(t, health.Host)
	assert.Equal(t, 3, health.Host.Registered)
	assert.Equal(t, "memory", health.Host.StoreBackend)

	resp, err = http.Get(srv.URL + "/health/ready")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/plain")
}

func TestServer_ShutdownBeforeStart(t *testing.T) {
	assert.NoError(t, NewServer(0).Shutdown(context.Background()))
}
