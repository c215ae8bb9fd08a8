package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting runtime metrics.
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	defer metrics.LLMRequestDuration.WithLabelValues("anthropic", "claude-3-opus").Observe(time.Since(start).Seconds())
type Metrics struct {
	// StepCounter counts loop-driver steps by outcome.
	// Labels: outcome (completed|interrupted|max_steps|provider_error)
	StepCounter *prometheus.CounterVec

	// LLMRequestDuration measures LLM stream latency in seconds.
	// Labels: provider, model
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestCounter counts LLM requests by provider, model, and status.
	LLMRequestCounter *prometheus.CounterVec

	// LLMTokensUsed tracks token consumption.
	// Labels: provider, model, type (prompt|completion)
	LLMTokensUsed *prometheus.CounterVec

	// ToolExecutionCounter counts tool invocations by name and status.
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	ToolExecutionDuration *prometheus.HistogramVec

	// WireDroppedEvents counts events dropped by the event bus due to a full
	// subscriber buffer.
	WireDroppedEvents *prometheus.CounterVec

	// CompactionCounter counts compaction passes by outcome.
	CompactionCounter *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
// This should be called once at process startup.
func NewMetrics() *Metrics {
	return &Metrics{
		StepCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coreagent_steps_total",
				Help: "Total number of loop-driver steps by outcome",
			},
			[]string{"outcome"},
		),

		LLMRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coreagent_llm_request_duration_seconds",
				Help:    "Duration of LLM stream requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),

		LLMRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coreagent_llm_requests_total",
				Help: "Total number of LLM requests by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),

		LLMTokensUsed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coreagent_llm_tokens_total",
				Help: "Total number of tokens used by provider, model, and type",
			},
			[]string{"provider", "model", "type"},
		),

		ToolExecutionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coreagent_tool_executions_total",
				Help: "Total number of tool executions by tool name and status",
			},
			[]string{"tool_name", "status"},
		),

		ToolExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coreagent_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name"},
		),

		WireDroppedEvents: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coreagent_wire_dropped_events_total",
				Help: "Total number of events dropped by a subscriber's full buffer",
			},
			[]string{"event_type"},
		),

		CompactionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coreagent_compactions_total",
				Help: "Total number of compaction passes by outcome",
			},
			[]string{"outcome"},
		),
	}
}

// RecordLLMRequest records metrics for an LLM stream request.
func (m *Metrics) RecordLLMRequest(provider, model, status string, durationSeconds float64, promptTokens, completionTokens int) {
	m.LLMRequestCounter.WithLabelValues(provider, model, status).Inc()
	m.LLMRequestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
	if promptTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	}
}

// RecordToolExecution records metrics for a tool execution.
func (m *Metrics) RecordToolExecution(toolName, status string, durationSeconds float64) {
	m.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(durationSeconds)
}

// RecordStep records a completed loop-driver step.
func (m *Metrics) RecordStep(outcome string) {
	m.StepCounter.WithLabelValues(outcome).Inc()
}

// RecordDroppedEvent records an event dropped by the Wire due to backpressure.
func (m *Metrics) RecordDroppedEvent(eventType string) {
	m.WireDroppedEvents.WithLabelValues(eventType).Inc()
}

// RecordCompaction records a compaction pass.
func (m *Metrics) RecordCompaction(outcome string) {
	m.CompactionCounter.WithLabelValues(outcome).Inc()
}
