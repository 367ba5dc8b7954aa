package usage

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

func agentIDAttr(agentID string) attribute.KeyValue {
	return attribute.String("agent_id", agentID)
}

// Metrics holds OpenTelemetry counters for the tracker's token, tool-call and
// turn totals, built
// the way MrWong99-glyphoxa's agent stack exports otel metrics (its go.mod
// pulls go.opentelemetry.io/otel/metric + exporters/prometheus). This is
// supplementary to the in-memory AgentUsage the spec requires: nothing in §3
// or §8 depends on it. Tracker neither holds nor calls a Metrics; a caller
// that owns one calls ObserveStep/ObserveTurn itself, and every method below
// is a no-op on a nil *Metrics.
type Metrics struct {
	tokensTotal   metric.Int64Counter
	toolCallsTotal metric.Int64Counter
	turnsTotal    metric.Int64Counter
}

// NewMetrics builds counters on meter. meter is typically obtained from an
// otel/exporters/prometheus-backed MeterProvider so /metrics can scrape
// agent_host_tokens_total, agent_host_tool_calls_total, agent_host_turns_total.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	tokens, err := meter.Int64Counter("agent_host_tokens_total",
		metric.WithDescription("cumulative input+output tokens recorded by the usage tracker"))
	if err != nil {
		return nil, err
	}
	toolCalls, err := meter.Int64Counter("agent_host_tool_calls_total",
		metric.WithDescription("cumulative tool calls recorded by the usage tracker"))
	if err != nil {
		return nil, err
	}
	turns, err := meter.Int64Counter("agent_host_turns_total",
		metric.WithDescription("cumulative turns recorded by the usage tracker"))
	if err != nil {
		return nil, err
	}
	return &Metrics{tokensTotal: tokens, toolCallsTotal: toolCalls, turnsTotal: turns}, nil
}

// ObserveStep mirrors a just-recorded UsageStep's token and tool-call counts
// into the otel counters, tagged with the agent id.
func (m *Metrics) ObserveStep(ctx context.Context, agentID string, inputTokens, outputTokens, toolCalls int) {
	if m == nil {
		return
	}
	attr := metric.WithAttributes(agentIDAttr(agentID))
	m.tokensTotal.Add(ctx, int64(inputTokens+outputTokens), attr)
	if toolCalls > 0 {
		m.toolCallsTotal.Add(ctx, int64(toolCalls), attr)
	}
}

// ObserveTurn mirrors a completed turn into the otel counters.
func (m *Metrics) ObserveTurn(ctx context.Context, agentID string) {
	if m == nil {
		return
	}
	m.turnsTotal.Add(ctx, 1, metric.WithAttributes(agentIDAttr(agentID)))
}
