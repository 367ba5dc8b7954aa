// Package codeexec implements the code-execution toolset the agent factory
// (§4.6 step 2) builds when an agent has code execution enabled: a registry
// of every tool reachable from inside the sandbox (provider tools filtered
// by the agent's current provider selection, plus skill scripts), and four
// meta-tools the model calls directly — execute_code, search_tools,
// get_tool_details, call_tool — modeled on the discovery-tool pattern the
// teacher's own tool manager uses for listing/describing MCP tools
// (internal/tools/mcp.go's list_tools handshake), generalized here to cover
// a sandbox that runs arbitrary generated code rather than only packaged
// MCP calls.
package codeexec

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"charm.land/fantasy"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/datalayer/agent-host/internal/hostlog"
	"github.com/datalayer/agent-host/internal/sandbox"
)

// validateAgainstSchema compiles schema and validates argsJSON against it,
// mirroring goadesign-goa-ai's validatePayloadJSONAgainstSchema: a nil or
// empty schema always validates, so a RegisteredTool built without an
// InputSchema accepts any arguments.
func validateAgainstSchema(schema map[string]any, argsJSON string) error {
	if len(schema) == 0 {
		return nil
	}
	var doc any
	if err := json.Unmarshal([]byte(argsJSON), &doc); err != nil {
		return fmt.Errorf("unmarshal arguments: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("tool-args.json", schema); err != nil {
		return fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := c.Compile("tool-args.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	return compiled.Validate(doc)
}

// RegisteredTool is one callable tool the sandbox (and the discovery
// meta-tools) can see, independent of whether it came from a running
// provider or a skill.
type RegisteredTool struct {
	Name        string
	Description string
	InputSchema map[string]any
	Run         func(ctx context.Context, argsJSON string) (string, bool, error)
}

// Registry is the tool set the code-execution toolset exposes to generated
// code and to the search_tools/get_tool_details/call_tool meta-tools.
// Ordinary map operations are sufficient: the registry is rebuilt wholesale
// on every retool (§4.7) rather than mutated incrementally, so it needs no
// lock of its own — callers swap the whole Toolset, never edit one in place
// concurrently with a running one.
type Registry struct {
	tools map[string]RegisteredTool
	order []string
}

// NewRegistry builds a Registry from the supplied fantasy.AgentTool values —
// normally the AgentTools() of every provider instance selected for this
// agent — so the sandbox can call any of them without the caller needing to
// know provider boundaries.
func NewRegistry(agentTools []fantasy.AgentTool) *Registry {
	r := &Registry{tools: make(map[string]RegisteredTool, len(agentTools))}
	for _, t := range agentTools {
		info := t.Info()
		tool := t
		r.add(RegisteredTool{
			Name:        info.Name,
			Description: info.Description,
			InputSchema: schemaFromInfo(info),
			Run: func(ctx context.Context, argsJSON string) (string, bool, error) {
				resp, err := tool.Run(ctx, fantasy.ToolCall{Input: argsJSON})
				if err != nil {
					return "", false, err
				}
				return resp.Content, resp.IsError, nil
			},
		})
	}
	return r
}

func (r *Registry) add(t RegisteredTool) {
	if _, exists := r.tools[t.Name]; !exists {
		r.order = append(r.order, t.Name)
	}
	r.tools[t.Name] = t
}

// AddSkillCaller registers a skill script under `skill__<name>`, routing
// calls back into the skills toolset per §4.6 step 4(b).
func (r *Registry) AddSkillCaller(name, description string, inputSchema map[string]any, caller sandbox.ToolCaller) {
	r.add(RegisteredTool{
		Name:        "skill__" + name,
		Description: description,
		InputSchema: inputSchema,
		Run: func(ctx context.Context, argsJSON string) (string, bool, error) {
			out, err := caller(ctx, []byte(argsJSON))
			if err != nil {
				return "", true, err
			}
			return string(out), false, nil
		},
	})
}

// Names returns every registered tool name in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Lookup returns the registered tool by name.
func (r *Registry) Lookup(name string) (RegisteredTool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

func schemaFromInfo(info fantasy.ToolInfo) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": info.Parameters,
	}
	if len(info.Required) > 0 {
		schema["required"] = info.Required
	}
	return schema
}

// Config composes the workspace/generated/skills paths and optional
// tool-proxy URL the toolset needs, per §4.6 step 2.
type Config struct {
	WorkspaceDir string
	GeneratedDir string
	SkillsDir    string
	ToolProxyURL string
}

// Toolset is the code-execution toolset: a sandbox, the tool registry it
// exposes inside generated code, and the four meta-tools handed to the
// model. One Toolset is owned by one agent wrapper instance at a time;
// retooling (§4.7) discards it and builds a fresh one rather than mutating
// it in place, matching the teacher's own "rebuild, don't patch" approach
// to MCP reconnects.
type Toolset struct {
	sb       sandbox.Sandbox
	registry *Registry
	config   Config
	logger   zerolog.Logger
}

// NewToolset constructs the toolset; it does not yet register anything with
// the sandbox or discover tools — call Start for that.
func NewToolset(sb sandbox.Sandbox, registry *Registry, cfg Config, logger *zerolog.Logger) *Toolset {
	return &Toolset{sb: sb, registry: registry, config: cfg, logger: hostlog.Or(logger)}
}

// Start registers every registry tool as a sandbox tool-caller and logs the
// discovered set, satisfying §4.6 step 3.
func (ts *Toolset) Start(ctx context.Context) error {
	for _, name := range ts.registry.Names() {
		tool := ts.registry.tools[name]
		ts.sb.RegisterToolCaller(name, func(ctx context.Context, args []byte) ([]byte, error) {
			out, isError, err := tool.Run(ctx, string(args))
			if err != nil {
				return nil, err
			}
			if isError {
				return nil, fmt.Errorf("%s", out)
			}
			return []byte(out), nil
		})
	}
	ts.logger.Info().
		Int("tool_count", len(ts.registry.order)).
		Strs("tools", ts.registry.Names()).
		Msg("codeexec: toolset started")
	return nil
}

// RegisterSkillCaller wires skill__<name> calls from inside generated code
// back to the skills toolset, per §4.6 step 4(b). Must be called before
// Start so the caller is present in the registered tool-caller set.
func (ts *Toolset) RegisterSkillCaller(name, description string, inputSchema map[string]any, caller sandbox.ToolCaller) {
	ts.registry.AddSkillCaller(name, description, inputSchema, caller)
}

// AgentTools returns the four meta-tools the model calls directly:
// execute_code, search_tools, get_tool_details, call_tool.
func (ts *Toolset) AgentTools() []fantasy.AgentTool {
	return []fantasy.AgentTool{
		&executeCodeTool{ts: ts},
		&searchToolsTool{ts: ts},
		&getToolDetailsTool{ts: ts},
		&callToolTool{ts: ts},
	}
}

const defaultExecTimeout = 30 * time.Second

type executeCodeArgs struct {
	Code           string `json:"code"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

type executeCodeTool struct{ ts *Toolset }

func (t *executeCodeTool) Info() fantasy.ToolInfo {
	return fantasy.ToolInfo{
		Name: "execute_code",
		Description: "Run a snippet of code in the agent's sandbox. Registered tools are " +
			"callable from inside the snippet by name; skill scripts are callable as skill__<skill_id>__<script_name>. " +
			"Use search_tools and get_tool_details to discover what is available before writing code.",
		Parameters: map[string]any{
			"code":            map[string]any{"type": "string", "description": "The code to run."},
			"timeout_seconds": map[string]any{"type": "integer", "description": "Optional execution timeout in seconds."},
		},
		Required: []string{"code"},
	}
}

func (t *executeCodeTool) Run(ctx context.Context, call fantasy.ToolCall) (fantasy.ToolResponse, error) {
	var args executeCodeArgs
	if err := json.Unmarshal([]byte(call.Input), &args); err != nil {
		return fantasy.NewTextErrorResponse(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	timeout := defaultExecTimeout
	if args.TimeoutSeconds > 0 {
		timeout = time.Duration(args.TimeoutSeconds) * time.Second
	}

	const maxInfraRetries = 2
	var result sandbox.CodeResult
	var err error
	for attempt := 0; attempt <= maxInfraRetries; attempt++ {
		result, err = t.ts.sb.RunCode(ctx, args.Code, timeout)
		if err == nil && !result.InfraError {
			break
		}
		if !result.InfraError {
			break
		}
		t.ts.logger.Warn().Int("attempt", attempt+1).Msg("codeexec: sandbox infra error, retrying")
	}
	if err != nil {
		return fantasy.NewTextErrorResponse(err.Error()), nil
	}

	payload := map[string]any{
		"stdout": result.Stdout,
		"stderr": result.Stderr,
		"result": result.Result,
	}
	marshaled, _ := json.Marshal(payload)
	if result.IsError {
		return fantasy.NewTextErrorResponse(string(marshaled)), nil
	}
	return fantasy.NewTextResponse(string(marshaled)), nil
}

func (t *executeCodeTool) ProviderOptions() fantasy.ProviderOptions        { return nil }
func (t *executeCodeTool) SetProviderOptions(opts fantasy.ProviderOptions) {}

type searchToolsArgs struct {
	Query string `json:"query,omitempty"`
}

type searchToolsTool struct{ ts *Toolset }

func (t *searchToolsTool) Info() fantasy.ToolInfo {
	return fantasy.ToolInfo{
		Name:        "search_tools",
		Description: "List registered tool names, optionally filtered by a case-insensitive substring match on name or description.",
		Parameters: map[string]any{
			"query": map[string]any{"type": "string", "description": "Optional substring filter."},
		},
	}
}

func (t *searchToolsTool) Run(ctx context.Context, call fantasy.ToolCall) (fantasy.ToolResponse, error) {
	var args searchToolsArgs
	_ = json.Unmarshal([]byte(call.Input), &args)
	query := strings.ToLower(strings.TrimSpace(args.Query))

	var matches []string
	for _, name := range t.ts.registry.Names() {
		tool := t.ts.registry.tools[name]
		if query == "" || strings.Contains(strings.ToLower(name), query) ||
			strings.Contains(strings.ToLower(tool.Description), query) {
			matches = append(matches, name)
		}
	}
	sort.Strings(matches)

	marshaled, _ := json.Marshal(map[string]any{"tools": matches})
	return fantasy.NewTextResponse(string(marshaled)), nil
}

func (t *searchToolsTool) ProviderOptions() fantasy.ProviderOptions        { return nil }
func (t *searchToolsTool) SetProviderOptions(opts fantasy.ProviderOptions) {}

type getToolDetailsArgs struct {
	Name string `json:"name"`
}

type getToolDetailsTool struct{ ts *Toolset }

func (t *getToolDetailsTool) Info() fantasy.ToolInfo {
	return fantasy.ToolInfo{
		Name:        "get_tool_details",
		Description: "Return the full description and input schema for one registered tool, by name.",
		Parameters: map[string]any{
			"name": map[string]any{"type": "string", "description": "The exact tool name, as returned by search_tools."},
		},
		Required: []string{"name"},
	}
}

func (t *getToolDetailsTool) Run(ctx context.Context, call fantasy.ToolCall) (fantasy.ToolResponse, error) {
	var args getToolDetailsArgs
	if err := json.Unmarshal([]byte(call.Input), &args); err != nil {
		return fantasy.NewTextErrorResponse(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	tool, ok := t.ts.registry.Lookup(args.Name)
	if !ok {
		return fantasy.NewTextErrorResponse(fmt.Sprintf("unknown tool %q", args.Name)), nil
	}
	marshaled, _ := json.Marshal(map[string]any{
		"name":         tool.Name,
		"description":  tool.Description,
		"input_schema": tool.InputSchema,
	})
	return fantasy.NewTextResponse(string(marshaled)), nil
}

func (t *getToolDetailsTool) ProviderOptions() fantasy.ProviderOptions        { return nil }
func (t *getToolDetailsTool) SetProviderOptions(opts fantasy.ProviderOptions) {}

type callToolArgs struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// callToolTool lets the model invoke a registered tool directly, without
// writing sandbox code, for the common one-shot case.
type callToolTool struct{ ts *Toolset }

func (t *callToolTool) Info() fantasy.ToolInfo {
	return fantasy.ToolInfo{
		Name:        "call_tool",
		Description: "Call one registered tool directly by name with JSON arguments, without writing sandbox code.",
		Parameters: map[string]any{
			"name":      map[string]any{"type": "string", "description": "The exact tool name, as returned by search_tools."},
			"arguments": map[string]any{"type": "object", "description": "Arguments to pass to the tool."},
		},
		Required: []string{"name"},
	}
}

func (t *callToolTool) Run(ctx context.Context, call fantasy.ToolCall) (fantasy.ToolResponse, error) {
	var args callToolArgs
	if err := json.Unmarshal([]byte(call.Input), &args); err != nil {
		return fantasy.NewTextErrorResponse(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	tool, ok := t.ts.registry.Lookup(args.Name)
	if !ok {
		return fantasy.NewTextErrorResponse(fmt.Sprintf("unknown tool %q", args.Name)), nil
	}

	argsJSON := "{}"
	if len(args.Arguments) > 0 {
		argsJSON = string(args.Arguments)
	}
	if err := validateAgainstSchema(tool.InputSchema, argsJSON); err != nil {
		return fantasy.NewTextErrorResponse(fmt.Sprintf("arguments for %q failed validation: %v", args.Name, err)), nil
	}
	out, isError, err := tool.Run(ctx, argsJSON)
	if err != nil {
		return fantasy.NewTextErrorResponse(err.Error()), nil
	}
	if isError {
		return fantasy.NewTextErrorResponse(out), nil
	}
	return fantasy.NewTextResponse(out), nil
}

func (t *callToolTool) ProviderOptions() fantasy.ProviderOptions        { return nil }
func (t *callToolTool) SetProviderOptions(opts fantasy.ProviderOptions) {}
