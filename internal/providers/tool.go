package providers

import (
	"context"
	"encoding/json"
	"fmt"

	"charm.land/fantasy"
	"github.com/mark3labs/mcp-go/mcp"
)

// CallTool invokes originalName (the tool's name as the provider itself
// exposes it, not the `<id>_`-prefixed name other components use) on a
// running instance. Grounded on the teacher's mcpFantasyTool.Run.
func (inst *ProviderInstance) CallTool(ctx context.Context, originalName string, arguments any) (*mcp.CallToolResult, error) {
	if inst.Client == nil {
		return nil, fmt.Errorf("provider %q has no live client", inst.Provider.ID)
	}
	return inst.Client.CallTool(ctx, mcp.CallToolRequest{
		Request: mcp.Request{Method: "tools/call"},
		Params: mcp.CallToolParams{
			Name:      originalName,
			Arguments: arguments,
		},
	})
}

// agentTool adapts one provider tool to fantasy.AgentTool, under its
// `<id>_`-prefixed name, so the agent factory (C8) can hand a flat tool list
// to the model binding regardless of which provider a tool came from.
// Grounded on the teacher's mcpFantasyTool.
type agentTool struct {
	info            fantasy.ToolInfo
	instance        *ProviderInstance
	originalName    string
	providerOptions fantasy.ProviderOptions
}

// AgentTools returns every discovered tool on inst as a fantasy.AgentTool,
// named `<prefix><originalName>`.
func (inst *ProviderInstance) AgentTools() []fantasy.AgentTool {
	out := make([]fantasy.AgentTool, 0, len(inst.Provider.Tools))
	for _, t := range inst.Provider.Tools {
		if !t.Enabled {
			continue
		}
		parameters, required := splitSchema(t.InputSchema)
		out = append(out, &agentTool{
			info: fantasy.ToolInfo{
				Name:        inst.ToolPrefix + t.Name,
				Description: t.Description,
				Parameters:  parameters,
				Required:    required,
			},
			instance:     inst,
			originalName: t.Name,
		})
	}
	return out
}

func splitSchema(schema map[string]any) (map[string]any, []string) {
	parameters := map[string]any{}
	if props, ok := schema["properties"].(map[string]any); ok {
		parameters = props
	}
	var required []string
	if req, ok := schema["required"].([]any); ok {
		for _, r := range req {
			if s, ok := r.(string); ok {
				required = append(required, s)
			}
		}
	}
	return parameters, required
}

func (t *agentTool) Info() fantasy.ToolInfo { return t.info }

func (t *agentTool) Run(ctx context.Context, call fantasy.ToolCall) (fantasy.ToolResponse, error) {
	var arguments any
	if call.Input != "" && call.Input != "{}" {
		arguments = json.RawMessage(call.Input)
	}

	result, err := t.instance.CallTool(ctx, t.originalName, arguments)
	if err != nil {
		return fantasy.ToolResponse{}, fmt.Errorf("calling provider tool %q: %w", t.info.Name, err)
	}

	marshaled, err := json.Marshal(result)
	if err != nil {
		return fantasy.ToolResponse{}, fmt.Errorf("marshaling provider tool result: %w", err)
	}
	if result.IsError {
		return fantasy.NewTextErrorResponse(string(marshaled)), nil
	}
	return fantasy.NewTextResponse(string(marshaled)), nil
}

func (t *agentTool) ProviderOptions() fantasy.ProviderOptions { return t.providerOptions }

func (t *agentTool) SetProviderOptions(opts fantasy.ProviderOptions) { t.providerOptions = opts }
