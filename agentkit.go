// Package agentkit wires a host configuration file into a running agent
// host: status store, agents created from the registry, heartbeats, metrics,
// health checks and tracing.
package agentkit

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aixgo-dev/agentkit/agent"
	_ "github.com/aixgo-dev/agentkit/agents" // registers the reference agents
	"github.com/aixgo-dev/agentkit/internal/observability"
	"github.com/aixgo-dev/agentkit/internal/runtime"
	"github.com/aixgo-dev/agentkit/pkg/config"
	metrics "github.com/aixgo-dev/agentkit/pkg/observability"
	"github.com/aixgo-dev/agentkit/pkg/statusstore"
)

// shutdownTimeout bounds graceful teardown in Run
const shutdownTimeout = 30 * time.Second

// System is a host together with the infrastructure built for it from
// configuration.
type System struct {
	Config *config.Config
	Host   *runtime.Host
	Store  statusstore.Store

	server *metrics.Server
}

// OpenStore creates the status store selected by cfg
func OpenStore(cfg config.StoreConfig) (statusstore.Store, error) {
	switch cfg.Backend {
	case "", config.StoreMemory:
		return statusstore.NewMemoryStore(), nil
	case config.StoreRedis:
		return statusstore.NewRedisStore(cfg.Redis)
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.Backend)
	}
}

// HostOptions translates the host section of cfg into runtime options
func HostOptions(cfg *config.Config, store statusstore.Store) []runtime.Option {
	return []runtime.Option{
		runtime.WithAdmissionPolicy(runtime.AdmissionPolicy(cfg.Host.Admission)),
		runtime.WithRateLimit(cfg.Host.RateLimit.MessagesPerSecond, cfg.Host.RateLimit.Burst),
		runtime.WithBreaker(cfg.Host.Breaker.MaxFailures, cfg.Host.Breaker.Timeout),
		runtime.WithFanoutLimit(cfg.Host.FanoutLimit),
		runtime.WithTaskRetention(cfg.Host.TaskRetention),
		runtime.WithHeartbeatSchedule(cfg.Heartbeat.Schedule),
		runtime.WithStore(store),
	}
}

// NewSystem opens the store, creates a host and adds every configured agent,
// created from registry by agent type. A nil registry means the default one.
// On failure everything created so far is torn down.
func NewSystem(ctx context.Context, cfg *config.Config, registry *agent.Registry) (*System, error) {
	if registry == nil {
		registry = agent.DefaultRegistry()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	store, err := OpenStore(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to open status store: %w", err)
	}

	host := runtime.NewHost(HostOptions(cfg, store)...)
	sys := &System{Config: cfg, Host: host, Store: store}

	for _, ac := range cfg.Agents {
		a, err := registry.New(ac.AgentType)
		if err == nil {
			err = host.Add(ctx, a, ac)
		}
		if err != nil {
			_ = sys.Close(ctx)
			return nil, fmt.Errorf("failed to add agent %s: %w", ac.AgentID, err)
		}
	}
	return sys, nil
}

// Start begins heartbeat emission and, when a metrics port is configured,
// serves metrics and health checks. Server errors are sent on the returned
// channel.
func (s *System) Start() (<-chan error, error) {
	errCh := make(chan error, 1)

	if err := s.Host.StartHeartbeats(); err != nil {
		return nil, err
	}

	checker := metrics.InitHealthChecker()
	checker.RegisterCheck(metrics.StoreCheck(s.Store.Ping))
	checker.SetHostState(s.HostState)

	if port := s.Config.Observability.MetricsPort; port > 0 {
		metrics.InitMetrics()
		s.server = metrics.NewServer(port)
		go func() {
			if err := s.server.Start(); err != nil {
				errCh <- fmt.Errorf("observability server: %w", err)
			}
		}()
	}
	return errCh, nil
}

// HostState summarizes the host for health checks
func (s *System) HostState() metrics.HostState {
	return metrics.HostStateFrom(s.Host.Statuses(), s.Host.Closed(), s.Config.Store.Backend)
}

// Close shuts the host down, then stops the server and closes the store
func (s *System) Close(ctx context.Context) error {
	var errs []error
	if err := s.Host.Close(ctx); err != nil && !errors.Is(err, runtime.ErrHostClosed) {
		errs = append(errs, err)
	}
	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("observability server: %w", err))
		}
	}
	if err := s.Store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("status store: %w", err))
	}
	return errors.Join(errs...)
}

// Run starts a host from a config file and blocks until ctx is done or the
// process receives SIGINT or SIGTERM.
func Run(ctx context.Context, configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	traceCfg := observability.ConfigFromEnv()
	traceCfg.ExporterType = cfg.Observability.TracingExporter
	if err := observability.Init(traceCfg); err != nil {
		log.Printf("Warning: Failed to initialize tracing: %v", err)
		// Continue even if tracing fails
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sys, err := NewSystem(ctx, cfg, nil)
	if err != nil {
		return err
	}
	errCh, err := sys.Start()
	if err != nil {
		_ = sys.Close(context.Background())
		return err
	}
	log.Printf("[Host] Started %s", cfg)

	var runErr error
	select {
	case <-ctx.Done():
		log.Println("[Host] Shutting down...")
	case runErr = <-errCh:
		log.Printf("[Host] Error: %v", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := sys.Close(shutdownCtx); err != nil {
		log.Printf("Warning: shutdown: %v", err)
	}
	if err := observability.Shutdown(shutdownCtx); err != nil {
		log.Printf("Warning: Failed to shutdown tracing: %v", err)
	}
	return runErr
}
