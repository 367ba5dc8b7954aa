package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"charm.land/fantasy"

	"github.com/datalayer/agent-host/internal/sandbox"
	"github.com/datalayer/agent-host/internal/skills"
)

// skillToolset is the skills toolset §4.6 step 1 builds: one callable tool
// per skill script, executed inside a sandbox so a skill's generated code
// can share state (variables, installed packages) with execute_code calls
// on the same agent. Grounded on the teacher's skills prompt-only design
// (internal/skills/prompt_builder.go) extended here with an actual
// execution path, since this host's skills carry runnable scripts rather
// than being instructions-only.
type skillToolset struct {
	skills []*skills.Skill
	sb     sandbox.Sandbox
}

// newSkillToolset builds a skillToolset over the given sandbox proxy. Per
// §4.6 step 1, this sandbox must be the same proxy the code-execution
// toolset uses when both are present, so `execute_code` and `run_skill`
// share interpreter state.
func newSkillToolset(loaded []*skills.Skill, sb sandbox.Sandbox) *skillToolset {
	return &skillToolset{skills: loaded, sb: sb}
}

// AgentTools exposes one tool per (skill, script) pair, named
// `skill__<skill_id>__<script_name>`, so a model without code execution
// enabled can still invoke skill scripts directly.
func (st *skillToolset) AgentTools() []fantasy.AgentTool {
	var tools []fantasy.AgentTool
	for _, s := range st.skills {
		for _, script := range s.Scripts {
			tools = append(tools, &skillScriptTool{toolset: st, skill: s, script: script})
		}
	}
	return tools
}

// Caller returns a sandbox.ToolCaller that runs skillID's script scriptName,
// suitable for registration as `skill__<skillID>__<scriptName>` inside the
// code-execution toolset's registry, per §4.6 step 4(b).
func (st *skillToolset) Caller(skillID, scriptName string) (sandbox.ToolCaller, bool) {
	for _, s := range st.skills {
		if s.ID() != skillID {
			continue
		}
		for _, script := range s.Scripts {
			if script.Name != scriptName {
				continue
			}
			return func(ctx context.Context, args []byte) ([]byte, error) {
				return st.runScript(ctx, s, script, args)
			}, true
		}
	}
	return nil, false
}

func (st *skillToolset) runScript(ctx context.Context, s *skills.Skill, script skills.Script, argsJSON []byte) ([]byte, error) {
	var args map[string]any
	if len(argsJSON) > 0 {
		if err := json.Unmarshal(argsJSON, &args); err != nil {
			return nil, fmt.Errorf("decoding arguments for skill script %s/%s: %w", s.ID(), script.Name, err)
		}
	}
	code := generateSkillInvocation(s, script, args)
	result, err := st.sb.RunCode(ctx, code, 0)
	if err != nil {
		return nil, fmt.Errorf("running skill script %s/%s: %w", s.ID(), script.Name, err)
	}
	if result.IsError {
		return nil, fmt.Errorf("skill script %s/%s failed: %s", s.ID(), script.Name, result.Stderr)
	}
	return []byte(result.Result), nil
}

// generateSkillInvocation produces the host-side skill binding §4.6 step
// 4(a) names: a small generated snippet that loads the skill's directory
// onto the sandbox's path and calls its named entry point with the given
// arguments, encoded as JSON on stdin-equivalent variables.
func generateSkillInvocation(s *skills.Skill, script skills.Script, args map[string]any) string {
	argsJSON, _ := json.Marshal(args)
	var b strings.Builder
	fmt.Fprintf(&b, "# generated skill binding for %s/%s\n", s.ID(), script.Name)
	fmt.Fprintf(&b, "import json, sys\n")
	fmt.Fprintf(&b, "sys.path.insert(0, %q)\n", s.Path)
	fmt.Fprintf(&b, "_args = json.loads(%q)\n", string(argsJSON))
	fmt.Fprintf(&b, "%s(**_args)\n", script.Name)
	return b.String()
}

// skillScriptTool adapts one skill script to fantasy.AgentTool.
type skillScriptTool struct {
	toolset *skillToolset
	skill   *skills.Skill
	script  skills.Script
	opts    fantasy.ProviderOptions
}

func (t *skillScriptTool) Info() fantasy.ToolInfo {
	properties := map[string]any{}
	var required []string
	for _, p := range t.script.Parameters {
		properties[p.Name] = map[string]any{
			"type":        p.Type,
			"description": p.Description,
		}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	desc := t.script.Description
	if t.script.Returns != "" {
		desc = strings.TrimSpace(desc + "\nReturns: " + t.script.Returns)
	}
	return fantasy.ToolInfo{
		Name:        "skill__" + t.skill.ID() + "__" + t.script.Name,
		Description: desc,
		Parameters:  properties,
		Required:    required,
	}
}

func (t *skillScriptTool) Run(ctx context.Context, call fantasy.ToolCall) (fantasy.ToolResponse, error) {
	out, err := t.toolset.runScript(ctx, t.skill, t.script, []byte(call.Input))
	if err != nil {
		return fantasy.NewTextErrorResponse(err.Error()), nil
	}
	return fantasy.NewTextResponse(string(out)), nil
}

func (t *skillScriptTool) ProviderOptions() fantasy.ProviderOptions        { return t.opts }
func (t *skillScriptTool) SetProviderOptions(opts fantasy.ProviderOptions) { t.opts = opts }
