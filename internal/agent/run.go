package agent

import (
	"context"
	"time"

	"github.com/datalayer/agent-host/internal/hosttypes"
	"github.com/datalayer/agent-host/internal/usage"
)

// RunResult is the outcome of one Run call (a "turn"): the final text plus
// one hosttypes.UsageStep (built by usage.StepFromMessage) per response
// message the model binding produced, per
// §4.5/§4.8 step 6. ToolNames/ToolCallCount are the flattened union across
// every step, for callers that only care about "what tools fired this turn"
// and not the per-step breakdown.
type RunResult struct {
	FinalText     string
	Steps         []hosttypes.UsageStep
	ToolNames     []string
	ToolCallCount int
	StartedAt     time.Time
	Duration      time.Duration
}

// Run executes one prompt-to-final-response cycle against the agent's
// current effective toolset, per the glossary's definition of "turn".
func (a *RunningAgent) Run(ctx context.Context, prompt string) (RunResult, error) {
	tools := a.EffectiveTools()

	start := time.Now()
	result, err := a.model.Run(ctx, prompt, tools)
	duration := time.Since(start)
	if err != nil {
		return RunResult{}, err
	}

	// fantasy reports per-message usage but not a per-message timestamp, so
	// every step within this turn is stamped with the turn's own start/end;
	// StartedAt/Duration on RunResult carry the precise turn-level timing.
	steps := make([]hosttypes.UsageStep, len(result.Steps))
	var toolNames []string
	for i, step := range result.Steps {
		steps[i] = usage.StepFromMessage(
			step.InputTokens, step.OutputTokens, step.CacheReadTokens, step.CacheWriteTokens,
			step.ToolNames, start, start.Add(duration),
		)
		toolNames = append(toolNames, step.ToolNames...)
	}

	return RunResult{
		FinalText:     result.FinalText,
		Steps:         steps,
		ToolNames:     toolNames,
		ToolCallCount: len(toolNames),
		StartedAt:     start,
		Duration:      duration,
	}, nil
}
