package model

import (
	"testing"

	"charm.land/fantasy"
)

func TestStepUsagesOf_OnePerResponseMessage(t *testing.T) {
	steps := []fantasy.StepResult{
		{
			Response: fantasy.Message{
				Role:    fantasy.MessageRoleAssistant,
				Content: []fantasy.MessagePart{fantasy.TextPart{Text: "checking the weather"}},
			},
			Usage: fantasy.Usage{InputTokens: 100, OutputTokens: 20},
		},
		{
			Response: fantasy.Message{
				Role: fantasy.MessageRoleAssistant,
				Content: []fantasy.MessagePart{
					fantasy.ToolCallPart{ToolCallID: "call-1", ToolName: "get_weather", Input: `{"city":"nyc"}`},
				},
			},
			Usage: fantasy.Usage{InputTokens: 50, OutputTokens: 30},
		},
		{
			Response: fantasy.Message{
				Role:    fantasy.MessageRoleAssistant,
				Content: []fantasy.MessagePart{fantasy.TextPart{Text: "it's sunny"}},
			},
			Usage: fantasy.Usage{InputTokens: 40, OutputTokens: 10},
		},
	}

	got := stepUsagesOf(steps)
	if len(got) != 3 {
		t.Fatalf("len(steps) = %d, want 3", len(got))
	}

	wantIn := []int{100, 50, 40}
	wantOut := []int{20, 30, 10}
	for i, step := range got {
		if step.InputTokens != wantIn[i] {
			t.Errorf("step[%d].InputTokens = %d, want %d", i, step.InputTokens, wantIn[i])
		}
		if step.OutputTokens != wantOut[i] {
			t.Errorf("step[%d].OutputTokens = %d, want %d", i, step.OutputTokens, wantOut[i])
		}
	}

	if names := got[1].ToolNames; len(names) != 1 || names[0] != "get_weather" {
		t.Errorf("step[1].ToolNames = %v, want [get_weather]", names)
	}
	if len(got[0].ToolNames) != 0 {
		t.Errorf("step[0].ToolNames = %v, want none", got[0].ToolNames)
	}
}

func TestStepUsagesOf_FallsBackToTokenizerWhenUsageMissing(t *testing.T) {
	steps := []fantasy.StepResult{
		{
			Response: fantasy.Message{
				Role:    fantasy.MessageRoleAssistant,
				Content: []fantasy.MessagePart{fantasy.TextPart{Text: "no usage reported here"}},
			},
		},
	}

	got := stepUsagesOf(steps)
	if len(got) != 1 {
		t.Fatalf("len(steps) = %d, want 1", len(got))
	}
	if got[0].OutputTokens == 0 {
		t.Error("expected a non-zero estimated OutputTokens when the provider reports none")
	}
}
