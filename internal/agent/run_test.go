package agent

import (
	"context"
	"testing"

	"charm.land/fantasy"

	"github.com/datalayer/agent-host/internal/hosttypes"
	"github.com/datalayer/agent-host/internal/model"
)

type fakeBinding struct {
	result model.Result
}

func (f *fakeBinding) ModelID() string { return "fake/model" }

func (f *fakeBinding) Run(ctx context.Context, prompt string, tools []fantasy.AgentTool) (model.Result, error) {
	return f.result, nil
}

func TestRun_OneUsageStepPerResponseMessage(t *testing.T) {
	a := &RunningAgent{
		spec: hosttypes.AgentSpec{ID: "agent-1"},
		model: &fakeBinding{result: model.Result{
			FinalText: "it's sunny",
			Steps: []model.StepUsage{
				{InputTokens: 100, OutputTokens: 20},
				{InputTokens: 50, OutputTokens: 30, ToolNames: []string{"get_weather"}},
				{InputTokens: 40, OutputTokens: 10},
			},
		}},
	}

	result, err := a.Run(context.Background(), "what's the weather in nyc?")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(result.Steps) != 3 {
		t.Fatalf("len(Steps) = %d, want 3", len(result.Steps))
	}

	wantIn := []int{100, 50, 40}
	wantOut := []int{20, 30, 10}
	for i, step := range result.Steps {
		if step.InputTokens != wantIn[i] {
			t.Errorf("Steps[%d].InputTokens = %d, want %d", i, step.InputTokens, wantIn[i])
		}
		if step.OutputTokens != wantOut[i] {
			t.Errorf("Steps[%d].OutputTokens = %d, want %d", i, step.OutputTokens, wantOut[i])
		}
	}

	if result.ToolCallCount != 1 || len(result.ToolNames) != 1 || result.ToolNames[0] != "get_weather" {
		t.Errorf("ToolNames = %v, ToolCallCount = %d, want [get_weather], 1", result.ToolNames, result.ToolCallCount)
	}
}
