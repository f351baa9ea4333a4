package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/aixgo-dev/agentkit/agent"
	"golang.org/x/sync/errgroup"
)

// HealthStatus represents the health status of the host
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// worse reports whether s is a worse status than other
func (s HealthStatus) worse(other HealthStatus) bool {
	rank := map[HealthStatus]int{HealthStatusHealthy: 0, HealthStatusDegraded: 1, HealthStatusUnhealthy: 2}
	return rank[s] > rank[other]
}

// HealthCheck is one dependency probed on every health request. A failing
// critical check makes the host unhealthy, any other failure degrades it.
type HealthCheck struct {
	Name      string
	CheckFunc func(context.Context) error
	Timeout   time.Duration
	Critical  bool
}

// HostState summarizes the agent host for health responses.
type HostState struct {
	Registered   int      `json:"registered"`
	Busy         int      `json:"busy"`
	Faulted      []string `json:"faulted,omitempty"`
	Closed       bool     `json:"closed"`
	StoreBackend string   `json:"store_backend,omitempty"`
}

// HostStateFrom builds a HostState from the host's agent statuses.
func HostStateFrom(statuses map[string]agent.Status, closed bool, storeBackend string) HostState {
	st := HostState{Registered: len(statuses), Closed: closed, StoreBackend: storeBackend}
	for id, s := range statuses {
		switch s.State {
		case agent.StateBusy:
			st.Busy++
		case agent.StateError:
			st.Faulted = append(st.Faulted, id)
		}
	}
	sort.Strings(st.Faulted)
	return st
}

// HealthChecker runs the registered checks and folds in the host state.
type HealthChecker struct {
	mu     sync.RWMutex
	checks map[string]*HealthCheck
	host   func() HostState
}

// HealthResponse is the body served on /health
type HealthResponse struct {
	Status    HealthStatus           `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
	Uptime    string                 `json:"uptime"`
	Host      *HostState             `json:"host,omitempty"`
	Checks    map[string]CheckStatus `json:"checks"`
}

// CheckStatus is the outcome of one health check
type CheckStatus struct {
	Status   HealthStatus `json:"status"`
	Message  string       `json:"message,omitempty"`
	Duration string       `json:"duration"`
}

var (
	globalChecker  *HealthChecker
	startTime      = time.Now()
	version        = "0.1.0"
	initHealthOnce sync.Once
)

// NewHealthChecker creates an empty checker
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{checks: make(map[string]*HealthCheck)}
}

// InitHealthChecker initializes the global health checker
func InitHealthChecker() *HealthChecker {
	initHealthOnce.Do(func() {
		globalChecker = NewHealthChecker()
	})
	return globalChecker
}

// GetHealthChecker returns the global health checker
func GetHealthChecker() *HealthChecker {
	return InitHealthChecker()
}

// RegisterCheck adds or replaces a check by name
func (hc *HealthChecker) RegisterCheck(check *HealthCheck) {
	if check.Timeout == 0 {
		check.Timeout = 5 * time.Second
	}
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checks[check.Name] = check
}

// SetHostState sets the source of the host summary. A closed host is
// unhealthy and a host with faulted agents is degraded.
func (hc *HealthChecker) SetHostState(fn func() HostState) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.host = fn
}

// Check runs every check concurrently and combines them with the host state
func (hc *HealthChecker) Check(ctx context.Context) HealthResponse {
	hc.mu.RLock()
	checks := make([]*HealthCheck, 0, len(hc.checks))
	for _, c := range hc.checks {
		checks = append(checks, c)
	}
	hostFn := hc.host
	hc.mu.RUnlock()

	resp := HealthResponse{
		Status:    HealthStatusHealthy,
		Timestamp: time.Now(),
		Version:   version,
		Uptime:    time.Since(startTime).Round(time.Second).String(),
		Checks:    make(map[string]CheckStatus, len(checks)),
	}

	var mu sync.Mutex
	var g errgroup.Group
	for _, check := range checks {
		g.Go(func() error {
			status := runCheck(ctx, check)
			mu.Lock()
			defer mu.Unlock()
			resp.Checks[check.Name] = status
			if status.Status.worse(resp.Status) {
				resp.Status = status.Status
			}
			return nil
		})
	}
	_ = g.Wait()

	if hostFn != nil {
		st := hostFn()
		resp.Host = &st
		switch {
		case st.Closed:
			resp.Status = HealthStatusUnhealthy
		case len(st.Faulted) > 0 && resp.Status == HealthStatusHealthy:
			resp.Status = HealthStatusDegraded
		}
	}
	return resp
}

// Ready reports whether the host should receive traffic: it is open and no
// critical check fails.
func (hc *HealthChecker) Ready(ctx context.Context) bool {
	return hc.Check(ctx).Status != HealthStatusUnhealthy
}

// runCheck bounds check by its timeout even when CheckFunc ignores ctx
func runCheck(ctx context.Context, check *HealthCheck) CheckStatus {
	start := time.Now()
	checkCtx, cancel := context.WithTimeout(ctx, check.Timeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- check.CheckFunc(checkCtx) }()

	var err error
	select {
	case err = <-errCh:
	case <-checkCtx.Done():
		err = checkCtx.Err()
	}

	status := CheckStatus{Status: HealthStatusHealthy, Duration: time.Since(start).String()}
	if err != nil {
		status.Status = HealthStatusDegraded
		if check.Critical {
			status.Status = HealthStatusUnhealthy
		}
		status.Message = err.Error()
	}
	return status
}

// HealthHandler serves the full health response. Unhealthy maps to 503.
func (hc *HealthChecker) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := hc.Check(r.Context())
		code := http.StatusOK
		if resp.Status == HealthStatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, resp)
	}
}

// ReadinessHandler answers 200 while Ready and 503 otherwise
func (hc *HealthChecker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if hc.Ready(r.Context()) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
			return
		}
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
	}
}

// LivenessHandler answers 200 as long as the process serves requests
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// StoreCheck creates a critical check over the status store's Ping
func StoreCheck(pingFunc func(context.Context) error) *HealthCheck {
	return &HealthCheck{
		Name:      "status_store",
		CheckFunc: pingFunc,
		Timeout:   5 * time.Second,
		Critical:  true,
	}
}
