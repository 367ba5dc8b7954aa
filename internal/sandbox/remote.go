package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/datalayer/agent-host/internal/hosttypes"
)

// remoteNotebookSandbox talks to an out-of-process kernel over HTTP
// (variant remote-notebook). Because the kernel does not inherit the host
// process's environment, configured env vars are injected by running a
// one-shot snippet in the kernel — §4.2's "Environment injection" rule.
type remoteNotebookSandbox struct {
	mu         sync.Mutex
	id         string
	serverURL  string
	token      string
	httpClient *http.Client
	executing  bool
	logger     zerolog.Logger
}

func newRemoteNotebookSandbox(serverURL, token string, logger zerolog.Logger) *remoteNotebookSandbox {
	return &remoteNotebookSandbox{
		id:         uuid.NewString(),
		serverURL:  serverURL,
		token:      token,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		logger:     logger,
	}
}

func (s *remoteNotebookSandbox) ID() string                        { return s.id }
func (s *remoteNotebookSandbox) Variant() hosttypes.SandboxVariant { return hosttypes.SandboxRemoteNotebook }

func (s *remoteNotebookSandbox) Start(ctx context.Context) error {
	return s.post(ctx, "/kernel/start", nil, nil)
}

func (s *remoteNotebookSandbox) Stop(ctx context.Context) error {
	return s.post(ctx, "/kernel/stop", nil, nil)
}

// InjectEnv runs a one-shot snippet in the kernel that sets the process
// environment there, since the remote kernel does not inherit this host's
// environment.
func (s *remoteNotebookSandbox) InjectEnv(ctx context.Context, env map[string]string) error {
	if len(env) == 0 {
		return nil
	}
	snippet := envInjectionSnippet(env)
	result, err := s.RunCode(ctx, snippet, 30*time.Second)
	if err != nil {
		return fmt.Errorf("injecting env into remote kernel: %w", err)
	}
	if result.IsError || result.InfraError {
		return fmt.Errorf("remote kernel rejected env-injection snippet: %s", result.Stderr)
	}
	return nil
}

// envInjectionSnippet renders a Python os.environ.update(...) call; the
// remote-notebook variant is modeled as a Jupyter-style Python kernel, the
// most common concrete case of "local-jupyter"/"remote-notebook" in the
// spec's SandboxConfig.Variant.
func envInjectionSnippet(env map[string]string) string {
	data, _ := json.Marshal(env)
	return fmt.Sprintf("import os\nos.environ.update(%s)\n", pyDictLiteral(data))
}

// pyDictLiteral returns the JSON object literal unchanged: it comes from a
// map[string]string, so it holds only string keys and string values, and
// that JSON is already valid Python dict syntax.
func pyDictLiteral(jsonObj []byte) string {
	s := string(jsonObj)
	return s
}

type runCodeRequest struct {
	Code    string `json:"code"`
	Timeout int64  `json:"timeout_ms,omitempty"`
}

type runCodeResponse struct {
	Stdout  string `json:"stdout"`
	Stderr  string `json:"stderr"`
	Result  string `json:"result"`
	IsError bool   `json:"is_error"`
}

func (s *remoteNotebookSandbox) RunCode(ctx context.Context, code string, timeout time.Duration) (CodeResult, error) {
	s.mu.Lock()
	s.executing = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.executing = false
		s.mu.Unlock()
	}()

	req := runCodeRequest{Code: code}
	if timeout > 0 {
		req.Timeout = timeout.Milliseconds()
	}

	var resp runCodeResponse
	start := time.Now()
	err := s.post(ctx, "/kernel/execute", req, &resp)
	duration := time.Since(start)

	if err != nil {
		return CodeResult{InfraError: true, Duration: duration}, fmt.Errorf("remote sandbox infrastructure failure: %w", err)
	}

	return CodeResult{
		Stdout:   resp.Stdout,
		Stderr:   resp.Stderr,
		Result:   resp.Result,
		IsError:  resp.IsError,
		Duration: duration,
	}, nil
}

func (s *remoteNotebookSandbox) SetVariable(ctx context.Context, name string, value string) error {
	encoded, _ := json.Marshal(value)
	code := fmt.Sprintf("%s = %s\n", name, string(encoded))
	result, err := s.RunCode(ctx, code, 10*time.Second)
	if err != nil {
		return err
	}
	if result.IsError {
		return fmt.Errorf("setting variable %s failed in remote kernel: %s", name, result.Stderr)
	}
	return nil
}

func (s *remoteNotebookSandbox) InstallPackage(ctx context.Context, name string) error {
	code := fmt.Sprintf("import subprocess, sys\nsubprocess.run([sys.executable, '-m', 'pip', 'install', %q], check=True)\n", name)
	result, err := s.RunCode(ctx, code, 2*time.Minute)
	if err != nil {
		return err
	}
	if result.IsError {
		return fmt.Errorf("installing package %s failed in remote kernel: %s", name, result.Stderr)
	}
	return nil
}

func (s *remoteNotebookSandbox) RegisterToolCaller(name string, caller ToolCaller) {
	// Remote sandboxes invoke tools by calling back into the tool-call proxy
	// (C11) over HTTP; the caller itself is only meaningful host-side, so
	// registration here is a bookkeeping no-op — the generated bindings
	// embed the tool-proxy URL instead (see agent package, SandboxConfig).
}

func (s *remoteNotebookSandbox) IsExecuting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.executing
}

func (s *remoteNotebookSandbox) Interrupt(ctx context.Context) error {
	return s.post(ctx, "/kernel/interrupt", nil, nil)
}

func (s *remoteNotebookSandbox) HasCapability(name string) bool {
	switch name {
	case CapabilityRemoteKernel, CapabilityToolProxyURL:
		return true
	default:
		return false
	}
}

func (s *remoteNotebookSandbox) post(ctx context.Context, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.serverURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("remote sandbox returned %s: %s", resp.Status, string(data))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

var _ Sandbox = (*remoteNotebookSandbox)(nil)
