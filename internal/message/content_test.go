package message

import (
	"testing"

	"charm.land/fantasy"
)

func TestUnmarshalParts_RoundTrip(t *testing.T) {
	raw := []byte(`[
		{"type":"text","data":{"text":"hello"}},
		{"type":"tool_call","data":{"id":"call-1","name":"get_weather","input":"{}","finished":true}}
	]`)

	parts, err := UnmarshalParts(raw)
	if err != nil {
		t.Fatalf("UnmarshalParts: %v", err)
	}

	m := Message{Role: RoleAssistant, Parts: parts}
	if got := m.Content(); got != "hello" {
		t.Errorf("Content() = %q, want %q", got, "hello")
	}
	calls := m.ToolCalls()
	if len(calls) != 1 || calls[0].Name != "get_weather" {
		t.Errorf("ToolCalls() = %+v, want one get_weather call", calls)
	}
}

func TestUnmarshalParts_UnknownType(t *testing.T) {
	if _, err := UnmarshalParts([]byte(`[{"type":"bogus","data":{}}]`)); err == nil {
		t.Error("expected an error for an unknown part type")
	}
}

func TestFromFantasyMessage_ExtractsToolCallsAndText(t *testing.T) {
	msg := fantasy.Message{
		Role: fantasy.MessageRoleAssistant,
		Content: []fantasy.MessagePart{
			fantasy.TextPart{Text: "it's sunny"},
			fantasy.ToolCallPart{ToolCallID: "call-1", ToolName: "get_weather", Input: `{"city":"nyc"}`},
		},
	}

	m := FromFantasyMessage(msg)
	if got := m.Content(); got != "it's sunny" {
		t.Errorf("Content() = %q, want %q", got, "it's sunny")
	}
	calls := m.ToolCalls()
	if len(calls) != 1 || calls[0].Name != "get_weather" || calls[0].ID != "call-1" {
		t.Errorf("ToolCalls() = %+v, want one get_weather/call-1", calls)
	}
}
