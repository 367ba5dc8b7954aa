// Package toolproxy implements C11: the HTTP endpoint a sandboxed code
// execution can call when it runs in a different process or container from
// the host and so cannot speak a provider's own transport directly.
// Grounded on the teacher's internal/tools/mcp.go CallTool dispatch (same
// "resolve by prefix, forward the call, return the raw result" shape),
// generalized to also carry skill-script callers registered by the agent
// factory (§4.6 step 4(c)).
package toolproxy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/datalayer/agent-host/internal/hostlog"
	"github.com/datalayer/agent-host/internal/providers"
	"github.com/datalayer/agent-host/internal/sandbox"
)

// defaultToolsetRPS and defaultToolsetBurst bound how fast one toolset can
// be called through the proxy, so a runaway generated-code loop can't
// hammer a provider subprocess or remote sandbox. Grounded on
// goadesign-goa-ai's model-client rate limiter shape, simplified here to a
// plain per-toolset token bucket since the proxy has no tokens-per-minute
// budget to adapt against.
const (
	defaultToolsetRPS   = 10
	defaultToolsetBurst = 20
)

// Proxy routes POST /tool/{toolset}/{tool_name} to either a running
// provider instance (toolset == the provider's id/tool-prefix) or a
// registered skill caller (toolset == "skills").
type Proxy struct {
	providerManager *providers.Manager

	mu       sync.RWMutex
	skills   map[string]sandbox.ToolCaller // keyed by tool_name as registered (skill__<id>__<script>)
	limiters map[string]*rate.Limiter      // keyed by toolset
	logger   zerolog.Logger
}

// New returns a Proxy backed by mgr for provider-tool dispatch.
func New(mgr *providers.Manager, logger *zerolog.Logger) *Proxy {
	return &Proxy{
		providerManager: mgr,
		skills:          make(map[string]sandbox.ToolCaller),
		limiters:        make(map[string]*rate.Limiter),
		logger:          hostlog.Or(logger),
	}
}

// limiterFor returns the toolset's rate limiter, creating it on first use.
func (p *Proxy) limiterFor(toolset string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	lim, ok := p.limiters[toolset]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(defaultToolsetRPS), defaultToolsetBurst)
		p.limiters[toolset] = lim
	}
	return lim
}

// RegisterSkillCaller implements agent.ToolProxyRegistrar: it records caller
// under toolName so `POST /tool/skills/{tool_name}` reaches it, per §4.6
// step 4(c). toolsetName is accepted to match the registrar signature but
// only "skills" is meaningful here; any other value is ignored.
func (p *Proxy) RegisterSkillCaller(toolsetName, toolName string, caller sandbox.ToolCaller) {
	if toolsetName != "skills" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.skills[toolName] = caller
}

// Handler returns the http.Handler implementing POST /tool/{toolset}/{tool_name}.
func (p *Proxy) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /tool/{toolset}/{tool_name}", p.handleCall)
	return mux
}

func (p *Proxy) handleCall(w http.ResponseWriter, r *http.Request) {
	toolset := r.PathValue("toolset")
	toolName := r.PathValue("tool_name")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading request body: "+err.Error())
		return
	}

	if err := p.limiterFor(toolset).Wait(r.Context()); err != nil {
		writeError(w, http.StatusTooManyRequests, "rate limit wait canceled: "+err.Error())
		return
	}

	var result []byte
	var callErr error
	if toolset == "skills" {
		result, callErr = p.callSkill(r.Context(), toolName, body)
	} else {
		result, callErr = p.callProvider(r.Context(), toolset, toolName, body)
	}

	if callErr != nil {
		p.logger.Warn().Err(callErr).Str("toolset", toolset).Str("tool_name", toolName).Msg("toolproxy: tool call failed")
		writeError(w, http.StatusInternalServerError, callErr.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result)
}

func (p *Proxy) callSkill(ctx context.Context, toolName string, body []byte) ([]byte, error) {
	p.mu.RLock()
	caller, ok := p.skills[toolName]
	p.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("toolproxy: no skill tool registered for %q", toolName)
	}
	return caller(ctx, body)
}

func (p *Proxy) callProvider(ctx context.Context, providerID, toolName string, body []byte) ([]byte, error) {
	inst, ok := p.providerManager.GetUnscoped(providerID)
	if !ok {
		return nil, fmt.Errorf("toolproxy: no running provider %q", providerID)
	}
	var args any
	if len(body) > 0 {
		args = json.RawMessage(body)
	}
	result, err := inst.CallTool(ctx, toolName, args)
	if err != nil {
		return nil, err
	}
	return json.Marshal(result)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}
