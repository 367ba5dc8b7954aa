package agent

import (
	"context"
	"fmt"

	"charm.land/fantasy"
	"github.com/rs/zerolog"

	"github.com/datalayer/agent-host/internal/codeexec"
	"github.com/datalayer/agent-host/internal/hosttypes"
	"github.com/datalayer/agent-host/internal/model"
	"github.com/datalayer/agent-host/internal/models"
	"github.com/datalayer/agent-host/internal/providers"
	"github.com/datalayer/agent-host/internal/sandbox"
	"github.com/datalayer/agent-host/internal/skills"
)

// BuildOptions are the per-agent toggles §4.6 names as inputs alongside the
// AgentSpec: whether code execution and skills are enabled, which skills are
// selected, and the provider selection to start from.
type BuildOptions struct {
	CodeExecutionEnabled bool
	SkillsEnabled        bool
	SkillIDs             []string
	ProviderSelection    []hosttypes.ProviderSelection
}

// ToolProxyRegistrar lets the tool-call proxy (C11) learn about skill
// callers as they're created, per §4.6 step 4(c) — "register the same
// caller with the tool-call proxy for remote-sandbox routing." Optional:
// a factory with no registrar configured simply skips that step, which is
// correct when the sandbox runs in-process and never needs the proxy.
type ToolProxyRegistrar func(toolsetName, toolName string, caller sandbox.ToolCaller)

// Factory builds RunningAgent instances from an AgentSpec, per §4.6's
// six-step composition algorithm. One Factory is shared by every agent the
// process creates; it holds the process-wide managers and the loaded skill
// catalog, not any per-agent state.
type Factory struct {
	ProviderManager *providers.Manager
	SandboxManager  *sandbox.Manager
	AllSkills       []*skills.Skill

	WorkspaceDir string
	GeneratedDir string
	SkillsDir    string
	ToolProxyURL string

	ToolProxyRegistrar ToolProxyRegistrar

	Logger zerolog.Logger
}

// Build materializes a RunningAgent for spec, per §4.6.
func (f *Factory) Build(ctx context.Context, spec hosttypes.AgentSpec, opts BuildOptions) (*RunningAgent, error) {
	logger := newLogger(&f.Logger, spec.ID)

	var auxToolsets []AuxToolset
	var skillSet *skillToolset

	// Step 1: skills toolset, sharing the sandbox proxy with code execution
	// so state persists across execute_code and run_skill calls.
	if opts.SkillsEnabled && len(opts.SkillIDs) > 0 {
		selected := skills.Select(f.AllSkills, opts.SkillIDs)
		sb := f.SandboxManager.NewProxy()
		skillSet = newSkillToolset(selected, sb)
		auxToolsets = append(auxToolsets, skillSet)
	}

	var codeExecToolset *codeexec.Toolset
	var rebuild rebuildFunc
	if opts.CodeExecutionEnabled {
		toolset, err := f.buildCodeExecToolset(ctx, opts.ProviderSelection, skillSet, logger)
		if err != nil {
			return nil, fmt.Errorf("building code-execution toolset for agent %s: %w", spec.ID, err)
		}
		codeExecToolset = toolset
		auxToolsets = append(auxToolsets, toolset)
		rebuild = f.rebuildClosure(skillSet, logger)
	}

	// Step 5: augmented system prompt. SystemPromptTemplate may carry
	// {{agent_id}}/{{agent_name}}/{{workspace_dir}} placeholders, expanded
	// here before the skills section is appended.
	systemPrompt := func() string {
		base := skills.NewPromptTemplate(spec.ID, spec.SystemPromptTemplate).Expand(map[string]string{
			"agent_id":      spec.ID,
			"agent_name":    spec.Name,
			"workspace_dir": f.WorkspaceDir,
		})
		pb := skills.NewPromptBuilder(base)
		if skillSet != nil {
			pb = pb.WithSkills(skillSet.skills)
		}
		return pb.Build()
	}

	modelID := spec.Model
	binding, err := model.NewBinding(ctx, &models.ProviderConfig{ModelString: modelID}, systemPrompt)
	if err != nil {
		return nil, fmt.Errorf("building model binding for agent %s: %w", spec.ID, err)
	}

	ra := &RunningAgent{
		spec:                 spec,
		model:                binding,
		providerManager:      f.ProviderManager,
		selection:            append([]hosttypes.ProviderSelection(nil), opts.ProviderSelection...),
		codeExecutionEnabled: opts.CodeExecutionEnabled,
		codeExecToolset:      codeExecToolset,
		rebuild:              rebuild,
		auxToolsets:          auxToolsets,
		logger:               logger,
	}
	return ra, nil
}

// buildCodeExecToolset implements §4.6 steps 2–4: register running
// providers (filtered by selection) into the toolset's registry, compose
// its config, start it, then wire skill callers into it both as sandbox
// tool-callers and (if a registrar is configured) into the tool-call proxy.
func (f *Factory) buildCodeExecToolset(ctx context.Context, selection []hosttypes.ProviderSelection, skillSet *skillToolset, logger zerolog.Logger) (*codeexec.Toolset, error) {
	registry := codeexec.NewRegistry(providerAgentTools(f.ProviderManager, selection))

	sb := f.SandboxManager.NewProxy()
	cfg := codeexec.Config{
		WorkspaceDir: f.WorkspaceDir,
		GeneratedDir: f.GeneratedDir,
		SkillsDir:    f.SkillsDir,
		ToolProxyURL: f.ToolProxyURL,
	}
	toolset := codeexec.NewToolset(sb, registry, cfg, &logger)

	if skillSet != nil {
		for _, s := range skillSet.skills {
			for _, script := range s.Scripts {
				caller, ok := skillSet.Caller(s.ID(), script.Name)
				if !ok {
					continue
				}
				name := s.ID() + "__" + script.Name
				toolset.RegisterSkillCaller(name, script.Description, scriptSchema(script), caller)
				if f.ToolProxyRegistrar != nil {
					f.ToolProxyRegistrar("skills", "skill__"+name, caller)
				}
			}
		}
	}

	if err := toolset.Start(ctx); err != nil {
		return nil, err
	}
	return toolset, nil
}

func scriptSchema(script skills.Script) map[string]any {
	properties := map[string]any{}
	var required []string
	for _, p := range script.Parameters {
		properties[p.Name] = map[string]any{"type": p.Type, "description": p.Description}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]any{"type": "object", "properties": properties}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// rebuildClosure returns the closure UpdateProviders/SetCodeExecution invoke
// to rebuild the code-execution toolset against a new provider selection,
// per §4.7: it fetches a fresh sandbox proxy on every call so an outstanding
// sandbox reconfiguration is observed.
func (f *Factory) rebuildClosure(skillSet *skillToolset, logger zerolog.Logger) rebuildFunc {
	return func(ctx context.Context, selection []hosttypes.ProviderSelection) (*codeexec.Toolset, error) {
		return f.buildCodeExecToolset(ctx, selection, skillSet, logger)
	}
}

// providerAgentTools flattens the AgentTools of every selected provider's
// running instance into one slice, skipping selections that aren't running
// (a warning is logged by the caller's EffectiveTools path on ordinary runs;
// at build time a missing provider just contributes no tools yet).
func providerAgentTools(mgr *providers.Manager, selection []hosttypes.ProviderSelection) []fantasy.AgentTool {
	var out []fantasy.AgentTool
	for _, sel := range selection {
		inst, ok := mgr.Get(sel.ID, sel.Origin)
		if !ok {
			continue
		}
		out = append(out, inst.AgentTools()...)
	}
	return out
}
