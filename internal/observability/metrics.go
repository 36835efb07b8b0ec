// Package observability centralizes this runtime's Prometheus metrics,
// OpenTelemetry tracing, and slog logging helpers so every component
// configures them the same way.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the process-wide metrics registry. Construct one with
// NewMetrics and share it across the queue, the agent runtime, and
// its tool executor.
type Metrics struct {
	// QueueSubmitted counts requests accepted onto the queue.
	QueueSubmitted prometheus.Counter
	// QueueCompleted counts requests that finished normally.
	QueueCompleted prometheus.Counter
	// QueueFailed counts requests that errored (not cancelled/timed out).
	QueueFailed prometheus.Counter
	// QueueTimedOut counts requests that hit request_timeout.
	QueueTimedOut prometheus.Counter
	// QueueCancelled counts requests whose cancellation token fired.
	QueueCancelled prometheus.Counter
	// QueueRejected counts submissions rejected by backpressure (QueueFull).
	QueueRejected prometheus.Counter
	// QueueDepth is the current number of requests waiting in the queue.
	QueueDepth prometheus.Gauge
	// QueuePeakDepth is the highest QueueDepth observed since startup.
	QueuePeakDepth prometheus.Gauge
	// TokensPerSecond is a moving average of decode throughput.
	TokensPerSecond prometheus.Gauge
	// DecodeDuration measures wall-clock time per generation request.
	DecodeDuration prometheus.Histogram

	// MCPCallDuration measures tools/call latency by server and tool.
	MCPCallDuration *prometheus.HistogramVec
	// MCPCallCounter counts MCP calls by server, tool, and outcome.
	MCPCallCounter *prometheus.CounterVec
	// MCPServerHealthy reports 1/0 liveness per server.
	MCPServerHealthy *prometheus.GaugeVec

	// SessionCount is the current number of live sessions.
	SessionCount prometheus.Gauge
	// SessionsEvicted counts sessions removed by TTL or capacity sweep.
	SessionsEvicted prometheus.Counter

	// ToolCallIterations tracks how many tool-call loop iterations a
	// generation needed before terminating.
	ToolCallIterations prometheus.Histogram

	// Registry backs every collector above. Expose it on a /metrics
	// handler; each NewMetrics call gets its own so constructing more
	// than one Metrics in the same process (or test binary) never
	// collides.
	Registry *prometheus.Registry
}

// NewMetrics builds a fresh, independent registry and registers the
// runtime's metrics on it. Safe to call more than once in the same
// process (e.g. once per test) since nothing is shared with
// prometheus.DefaultRegisterer.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		QueueSubmitted: f.NewCounter(prometheus.CounterOpts{
			Name: "llama_agent_queue_submitted_total",
			Help: "Total requests submitted to the inference queue.",
		}),
		QueueCompleted: f.NewCounter(prometheus.CounterOpts{
			Name: "llama_agent_queue_completed_total",
			Help: "Total requests completed normally.",
		}),
		QueueFailed: f.NewCounter(prometheus.CounterOpts{
			Name: "llama_agent_queue_failed_total",
			Help: "Total requests that failed with a non-timeout, non-cancel error.",
		}),
		QueueTimedOut: f.NewCounter(prometheus.CounterOpts{
			Name: "llama_agent_queue_timed_out_total",
			Help: "Total requests that exceeded request_timeout.",
		}),
		QueueCancelled: f.NewCounter(prometheus.CounterOpts{
			Name: "llama_agent_queue_cancelled_total",
			Help: "Total requests cancelled via their cancellation token.",
		}),
		QueueRejected: f.NewCounter(prometheus.CounterOpts{
			Name: "llama_agent_queue_rejected_total",
			Help: "Total submissions rejected because the queue was full.",
		}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "llama_agent_queue_depth",
			Help: "Current number of requests waiting in the inference queue.",
		}),
		QueuePeakDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "llama_agent_queue_peak_depth",
			Help: "Highest queue depth observed since process start.",
		}),
		TokensPerSecond: f.NewGauge(prometheus.GaugeOpts{
			Name: "llama_agent_tokens_per_second",
			Help: "Moving average of decode throughput in tokens/sec.",
		}),
		DecodeDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "llama_agent_decode_duration_seconds",
			Help:    "Wall-clock duration of one generation request.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
		MCPCallDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "llama_agent_mcp_call_duration_seconds",
				Help:    "Duration of tools/call RPCs by server and tool.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
			[]string{"server", "tool"},
		),
		MCPCallCounter: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llama_agent_mcp_calls_total",
				Help: "MCP tool calls by server, tool, and outcome.",
			},
			[]string{"server", "tool", "outcome"},
		),
		MCPServerHealthy: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "llama_agent_mcp_server_healthy",
				Help: "1 if the MCP server process is healthy, 0 otherwise.",
			},
			[]string{"server"},
		),
		SessionCount: f.NewGauge(prometheus.GaugeOpts{
			Name: "llama_agent_sessions",
			Help: "Current number of live sessions.",
		}),
		SessionsEvicted: f.NewCounter(prometheus.CounterOpts{
			Name: "llama_agent_sessions_evicted_total",
			Help: "Sessions removed by TTL or max-sessions eviction.",
		}),
		ToolCallIterations: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "llama_agent_tool_call_iterations",
			Help:    "Number of tool-call loop iterations per generation.",
			Buckets: []float64{0, 1, 2, 3, 4, 5, 6, 7, 8},
		}),
	}
}
