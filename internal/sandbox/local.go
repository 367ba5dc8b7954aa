package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/datalayer/agent-host/internal/hosttypes"
)

// localEvalSandbox runs code in a subprocess that shares the host process's
// environment (variant local-eval). Variables set via SetVariable are kept
// in an in-memory map and exported as environment variables to every
// subsequent RunCode call, giving the sandbox persistent-across-calls state
// without needing a long-lived REPL subprocess.
type localEvalSandbox struct {
	mu          sync.Mutex
	id          string
	shell       string // interpreter, e.g. "bash" or "python3"
	vars        map[string]string
	toolCallers map[string]ToolCaller
	executing   bool
	logger      zerolog.Logger
}

// newLocalEvalSandbox constructs a local-eval sandbox. shell defaults to
// "bash" when empty.
func newLocalEvalSandbox(shell string, logger zerolog.Logger) *localEvalSandbox {
	if shell == "" {
		shell = "bash"
	}
	return &localEvalSandbox{
		id:          uuid.NewString(),
		shell:       shell,
		vars:        make(map[string]string),
		toolCallers: make(map[string]ToolCaller),
		logger:      logger,
	}
}

func (s *localEvalSandbox) ID() string                           { return s.id }
func (s *localEvalSandbox) Variant() hosttypes.SandboxVariant    { return hosttypes.SandboxLocalEval }
func (s *localEvalSandbox) Start(ctx context.Context) error      { return nil }
func (s *localEvalSandbox) Stop(ctx context.Context) error       { return nil }

// InjectEnv is a no-op for local-eval: the kernel shares the host process,
// so there is nothing to inject, per §4.2's environment-injection rule.
func (s *localEvalSandbox) InjectEnv(ctx context.Context, env map[string]string) error {
	return nil
}

func (s *localEvalSandbox) RunCode(ctx context.Context, code string, timeout time.Duration) (CodeResult, error) {
	s.mu.Lock()
	s.executing = true
	env := make([]string, 0, len(s.vars))
	for k, v := range s.vars {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.executing = false
		s.mu.Unlock()
	}()

	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, s.shell, "-c", code)
	cmd.Env = append(cmd.Environ(), env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	result := CodeResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		if runCtx.Err() != nil {
			// Timeout or cancellation: the subprocess itself is fine, the
			// run didn't complete — treated as a code-level failure, not
			// sandbox infrastructure failure.
			result.IsError = true
			return result, fmt.Errorf("sandbox run cancelled: %w", runCtx.Err())
		}
		var exitErr *exec.ExitError
		if isExitError(err, &exitErr) {
			result.IsError = true
			return result, nil
		}
		// Couldn't even start the interpreter: infrastructure failure.
		result.InfraError = true
		return result, fmt.Errorf("sandbox infrastructure failure: %w", err)
	}

	return result, nil
}

func isExitError(err error, target **exec.ExitError) bool {
	ee, ok := err.(*exec.ExitError)
	if ok {
		*target = ee
	}
	return ok
}

func (s *localEvalSandbox) SetVariable(ctx context.Context, name string, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vars[name] = value
	return nil
}

func (s *localEvalSandbox) InstallPackage(ctx context.Context, name string) error {
	// local-eval shares the host's environment; package installation is the
	// operator's responsibility. Accepted as a no-op success so callers
	// using the same toolset against either variant don't need to branch.
	s.logger.Debug().Str("package", name).Msg("sandbox: local-eval ignores InstallPackage")
	return nil
}

func (s *localEvalSandbox) RegisterToolCaller(name string, caller ToolCaller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.toolCallers[name] = caller
}

func (s *localEvalSandbox) IsExecuting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.executing
}

func (s *localEvalSandbox) Interrupt(ctx context.Context) error {
	// Subprocess-per-call design: RunCode's own context cancellation is the
	// interrupt mechanism, there is no separate long-lived process to signal.
	return nil
}

func (s *localEvalSandbox) HasCapability(name string) bool {
	return name == CapabilityNamespaces
}

var _ Sandbox = (*localEvalSandbox)(nil)
