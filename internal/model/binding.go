// Package model adapts concrete language-model providers to the
// ModelBinding interface §6 calls for: "Concrete language-model providers;
// they are consumed through the ModelBinding interface." The core never
// imports a specific provider SDK directly — it depends on this package's
// Binding interface, and the one implementation here (fantasyBinding) is
// built from the teacher's own internal/models.CreateProvider, which wires
// every fantasy/providers/* package the teacher depended on (anthropic,
// openai, google, azure, bedrock, openrouter, vercel, openaicompat,
// ollama-over-HTTP).
package model

import (
	"context"

	"charm.land/fantasy"

	"github.com/datalayer/agent-host/internal/message"
	"github.com/datalayer/agent-host/internal/models"
	"github.com/datalayer/agent-host/internal/usage"
)

// StepUsage is the token/tool accounting for one response message within a
// Run call's tool-calling loop — one entry per turn's §4.5/§4.8 "one
// UsageStep per response message" rule.
type StepUsage struct {
	InputTokens      int
	OutputTokens     int
	CacheReadTokens  int
	CacheWriteTokens int
	ToolNames        []string
}

// Result is the outcome of one Run call: the final assistant-visible text
// plus one StepUsage per response message fantasy produced along the way.
type Result struct {
	FinalText string
	Steps     []StepUsage
}

// Binding is the ModelBinding interface §6 names: the one seam between the
// core and a concrete model SDK.
type Binding interface {
	ModelID() string
	// Run executes one prompt-to-final-response cycle (a "turn", per the
	// glossary) against the bound model with the supplied tools attached.
	// Any tool calls the model makes during the turn are dispatched
	// through the fantasy.AgentTool.Run methods the tools already
	// implement; Run returns only once the model produces a final,
	// non-tool-call response.
	Run(ctx context.Context, prompt string, tools []fantasy.AgentTool) (Result, error)
}

// fantasyBinding wraps one fantasy.LanguageModel. A fresh fantasy.Agent is
// built per Run call because the tool list changes across calls (dynamic
// retooling, §4.7) and fantasy.Agent binds its tools at construction time.
type fantasyBinding struct {
	modelID       string
	languageModel fantasy.LanguageModel
	systemPrompt  func() string
	closer        func() error
}

// NewBinding resolves modelID through models.CreateProvider and returns a
// Binding wrapping it. systemPrompt is read fresh on every Run call so a
// factory rebuild (e.g. a skills-section regeneration) is observed without
// needing a new Binding.
func NewBinding(ctx context.Context, cfg *models.ProviderConfig, systemPrompt func() string) (Binding, error) {
	result, err := models.CreateProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	var closer func() error
	if result.Closer != nil {
		closer = result.Closer.Close
	}
	return &fantasyBinding{
		modelID:       cfg.ModelString,
		languageModel: result.Model,
		systemPrompt:  systemPrompt,
		closer:        closer,
	}, nil
}

func (b *fantasyBinding) ModelID() string { return b.modelID }

func (b *fantasyBinding) Run(ctx context.Context, prompt string, tools []fantasy.AgentTool) (Result, error) {
	opts := []fantasy.AgentOption{fantasy.WithSystemPrompt(b.systemPrompt())}
	if len(tools) > 0 {
		opts = append(opts, fantasy.WithTools(tools...))
	}
	runner := fantasy.NewAgent(b.languageModel, opts...)

	res, err := runner.Generate(ctx, fantasy.AgentCall{Prompt: prompt})
	if err != nil {
		return Result{}, err
	}

	return Result{
		FinalText: res.Response.Content.Text(),
		Steps:     stepUsagesOf(res.Steps),
	}, nil
}

// stepUsagesOf converts fantasy's per-response-message step results into one
// StepUsage per message, per §4.5/§4.8 step 6. A step whose reported input
// and output token counts are both zero (providers that don't report usage
// at all) takes its output count from the process's default tokenizer on
// that message's text, so a step is never silently dropped from the count.
func stepUsagesOf(steps []fantasy.StepResult) []StepUsage {
	tokenizer := usage.DefaultTokenizer()
	stepUsages := make([]StepUsage, len(steps))
	for i, step := range steps {
		msg := message.FromFantasyMessage(step.Response)

		inputTokens, outputTokens := step.Usage.InputTokens, step.Usage.OutputTokens
		if inputTokens == 0 && outputTokens == 0 {
			outputTokens = tokenizer.CountTokens(msg.Content())
		}

		stepUsages[i] = StepUsage{
			InputTokens:      inputTokens,
			OutputTokens:     outputTokens,
			CacheReadTokens:  step.Usage.CacheReadTokens,
			CacheWriteTokens: step.Usage.CacheWriteTokens,
			ToolNames:        toolNames(msg.ToolCalls()),
		}
	}
	return stepUsages
}

func toolNames(calls []message.ToolCall) []string {
	if len(calls) == 0 {
		return nil
	}
	names := make([]string, len(calls))
	for i, c := range calls {
		names[i] = c.Name
	}
	return names
}

// Close releases any resource the underlying provider holds (e.g. a
// locally loaded model). Safe to call on a Binding with no closer.
func Close(b Binding) error {
	fb, ok := b.(*fantasyBinding)
	if !ok || fb.closer == nil {
		return nil
	}
	return fb.closer()
}
