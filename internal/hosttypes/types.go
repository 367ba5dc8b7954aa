// Package hosttypes holds the semantic record types shared across the agent
// host: providers, tools, agents, model bindings, identities, and usage.
// Keeping them in one leaf package lets every other component depend on the
// data model without depending on each other.
package hosttypes

import "time"

// TransportKind is the wire mechanism a provider speaks.
type TransportKind string

const (
	TransportStdio      TransportKind = "stdio"
	TransportHTTP       TransportKind = "http"
	TransportSSE        TransportKind = "sse"
	TransportStreamable TransportKind = "streamable"
	TransportInProcess  TransportKind = "inprocess"
)

// Origin distinguishes the two disjoint provider catalogs.
type Origin string

const (
	OriginPredefined Origin = "predefined"
	OriginConfigured Origin = "configured"
)

// ProviderTool is a callable function exposed by a provider, described by a
// JSON-Schema-compatible object.
type ProviderTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Enabled     bool           `json:"enabled"`
	InputSchema map[string]any `json:"input_schema"`
}

// Provider is the static description of an MCP server, predefined or
// user-configured, independent of whether it is currently running.
type Provider struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Kind     TransportKind `json:"transport"`
	Command  []string      `json:"command,omitempty"`
	Args     []string      `json:"args,omitempty"`
	Env      map[string]string `json:"env,omitempty"`
	URL      string        `json:"url,omitempty"`
	Options  map[string]any `json:"options,omitempty"`

	RequiredEnvVars []string `json:"required_env_vars,omitempty"`
	IsConfig        bool     `json:"is_config"`
	IsRunning       bool     `json:"is_running"`
	Tools           []ProviderTool `json:"tools,omitempty"`
}

// IsAvailable reports whether every required env var is set and non-empty in
// the supplied environment snapshot (e.g. os.Environ() turned into a map, or
// the composed environment a start() call would use).
func (p Provider) IsAvailable(env map[string]string) bool {
	for _, name := range p.RequiredEnvVars {
		if env[name] == "" {
			return false
		}
	}
	return true
}

// Clone deep-copies a Provider so catalog merges never alias the original
// catalog record.
func (p Provider) Clone() Provider {
	cp := p
	cp.Command = append([]string(nil), p.Command...)
	cp.Args = append([]string(nil), p.Args...)
	cp.RequiredEnvVars = append([]string(nil), p.RequiredEnvVars...)
	cp.Tools = append([]ProviderTool(nil), p.Tools...)
	if p.Env != nil {
		cp.Env = make(map[string]string, len(p.Env))
		for k, v := range p.Env {
			cp.Env[k] = v
		}
	}
	if p.Options != nil {
		cp.Options = make(map[string]any, len(p.Options))
		for k, v := range p.Options {
			cp.Options[k] = v
		}
	}
	return cp
}

// ProviderSelection references a provider by id and the catalog it was
// selected from, as carried in an AgentSpec or a retooling request.
type ProviderSelection struct {
	ID     string `json:"id"`
	Origin Origin `json:"origin"`
}

// AgentSpec is the durable (process-local) description of an agent: enough
// to materialize a RunningAgent from it.
type AgentSpec struct {
	ID                   string              `json:"id"`
	Name                 string              `json:"name"`
	Description          string              `json:"description,omitempty"`
	Providers            []ProviderSelection `json:"providers,omitempty"`
	SkillIDs             []string            `json:"skill_ids,omitempty"`
	WelcomeMessage       string              `json:"welcome_message,omitempty"`
	SystemPromptTemplate string              `json:"system_prompt_template,omitempty"`
	Model                string              `json:"model,omitempty"`
	Emoji                string              `json:"emoji,omitempty"`
	Color                string              `json:"color,omitempty"`
}

// Identity is an OAuth-ish provider identity carried per request.
type Identity struct {
	ProviderName string `json:"provider"`
	AccessToken  string `json:"access_token"`
}

// UsageStep records one model request/response cycle.
type UsageStep struct {
	Sequence         int           `json:"sequence"`
	InputTokens      int           `json:"input_tokens"`
	OutputTokens     int           `json:"output_tokens"`
	CacheReadTokens  int           `json:"cache_read_tokens"`
	CacheWriteTokens int           `json:"cache_write_tokens"`
	ToolCallCount    int           `json:"tool_call_count"`
	ToolNames        []string      `json:"tool_names,omitempty"`
	StartedAt        time.Time     `json:"started_at"`
	Duration         time.Duration `json:"duration"`
}

// MessageTokens splits message-history token accounting by role.
type MessageTokens struct {
	System    int `json:"system"`
	User      int `json:"user"`
	Assistant int `json:"assistant"`
	Tool      int `json:"tool"`
}

// AgentUsage accumulates usage for one agent across its lifetime. Steps is
// append-only; the cumulative counters always equal the sum of their steps.
type AgentUsage struct {
	InputTokens      int             `json:"input_tokens"`
	OutputTokens     int             `json:"output_tokens"`
	CacheReadTokens  int             `json:"cache_read_tokens"`
	CacheWriteTokens int             `json:"cache_write_tokens"`
	Requests         int             `json:"requests"`
	ToolCalls        int             `json:"tool_calls"`
	Turns            int             `json:"turns"`
	Steps            []UsageStep     `json:"steps"`
	MessageTokens    MessageTokens   `json:"message_tokens"`
}

// TotalTokens is the sum of input and output tokens across every step,
// satisfying spec §8 property 6.
func (u AgentUsage) TotalTokens() int {
	return u.InputTokens + u.OutputTokens
}

// SandboxVariant is the kind of code-execution backend the sandbox manager
// currently owns.
type SandboxVariant string

const (
	SandboxLocalEval     SandboxVariant = "local-eval"
	SandboxRemoteNotebook SandboxVariant = "remote-notebook"
)

// SandboxConfig describes how the sandbox manager should (re)configure its
// single concrete sandbox.
type SandboxConfig struct {
	Variant      SandboxVariant    `json:"variant"`
	ServerURL    string            `json:"server_url,omitempty"`
	Token        string            `json:"token,omitempty"`
	ToolProxyURL string            `json:"tool_proxy_url,omitempty"`
	Env          map[string]string `json:"env,omitempty"`
}

// SandboxStatus is the read-only status the sandbox manager exposes for
// health reporting.
type SandboxStatus struct {
	Variant      SandboxVariant `json:"variant"`
	Endpoint     string         `json:"endpoint,omitempty"`
	Running      bool           `json:"running"`
	ToolProxyURL string         `json:"tool_proxy_url,omitempty"`
}
