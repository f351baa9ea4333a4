package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Task metrics
	tasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentkit_tasks_total",
			Help: "Total number of executed tasks by result kind",
		},
		[]string{"agent", "result"},
	)

	taskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agentkit_task_duration_seconds",
			Help:    "Task execution duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"agent"},
	)

	tasksInFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "agentkit_tasks_in_flight",
			Help: "Number of admitted tasks not yet finished",
		},
		[]string{"agent"},
	)

	admissionRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentkit_admission_rejections_total",
			Help: "Total number of tasks or messages refused before reaching an agent",
		},
		[]string{"agent", "reason"},
	)

	// Message metrics
	messagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentkit_messages_total",
			Help: "Total number of messages delivered to agents",
		},
		[]string{"agent", "type"},
	)

	messageErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentkit_message_errors_total",
			Help: "Total number of message deliveries that failed, by error kind",
		},
		[]string{"agent", "kind"},
	)

	heartbeatsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentkit_heartbeats_total",
			Help: "Total number of heartbeats emitted per agent",
		},
		[]string{"agent"},
	)

	// Agent state
	agentState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "agentkit_agent_state",
			Help: "1 for the state each agent is currently in, 0 otherwise",
		},
		[]string{"agent", "state"},
	)

	registeredAgents = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "agentkit_registered_agents",
			Help: "Number of agents registered with the host",
		},
	)

	goroutines = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "agentkit_goroutines",
			Help: "Number of goroutines",
		},
	)

	initOnce sync.Once
)

// agentStates lists the label values of the agent state gauge.
var agentStates = []string{"idle", "busy", "error", "shutdown"}

// InitMetrics registers the metrics with the default Prometheus registry.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			tasksTotal,
			taskDuration,
			tasksInFlight,
			admissionRejections,
			messagesTotal,
			messageErrors,
			heartbeatsTotal,
			agentState,
			registeredAgents,
			goroutines,
		)
	})
}

// MetricsHandler returns an HTTP handler for Prometheus metrics
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordTask records a finished task and its result kind.
func RecordTask(agent, result string, duration time.Duration) {
	tasksTotal.WithLabelValues(agent, result).Inc()
	taskDuration.WithLabelValues(agent).Observe(duration.Seconds())
}

// TaskStarted increments the in-flight gauge for agent.
func TaskStarted(agent string) {
	tasksInFlight.WithLabelValues(agent).Inc()
}

// TaskFinished decrements the in-flight gauge for agent.
func TaskFinished(agent string) {
	tasksInFlight.WithLabelValues(agent).Dec()
}

// RecordRejection records a task or message refused by admission control,
// rate limiting or circuit breaking.
func RecordRejection(agent, reason string) {
	admissionRejections.WithLabelValues(agent, reason).Inc()
}

// RecordAgentMessage records a message delivered to agent.
func RecordAgentMessage(agent, msgType string) {
	messagesTotal.WithLabelValues(agent, msgType).Inc()
}

// RecordMessageError records a failed delivery classified by kind.
func RecordMessageError(agent, kind string) {
	messageErrors.WithLabelValues(agent, kind).Inc()
}

// RecordHeartbeat records a heartbeat emitted for agent.
func RecordHeartbeat(agent string) {
	heartbeatsTotal.WithLabelValues(agent).Inc()
}

// SetAgentState marks state as the current state of agent.
func SetAgentState(agent, state string) {
	for _, s := range agentStates {
		v := 0.0
		if s == state {
			v = 1
		}
		agentState.WithLabelValues(agent, s).Set(v)
	}
}

// ForgetAgent drops every per-agent series for agent.
func ForgetAgent(agent string) {
	labels := prometheus.Labels{"agent": agent}
	tasksTotal.DeletePartialMatch(labels)
	taskDuration.DeletePartialMatch(labels)
	tasksInFlight.DeletePartialMatch(labels)
	admissionRejections.DeletePartialMatch(labels)
	messagesTotal.DeletePartialMatch(labels)
	messageErrors.DeletePartialMatch(labels)
	heartbeatsTotal.DeletePartialMatch(labels)
	agentState.DeletePartialMatch(labels)
}

// SetRegisteredAgents sets the registered agents gauge
func SetRegisteredAgents(count int) {
	registeredAgents.Set(float64(count))
}

// SetGoroutines sets the goroutines gauge
func SetGoroutines(count int) {
	goroutines.Set(float64(count))
}
