// Package usage implements C6: per-agent/per-step/per-session token and call
// accounting, a model→context-window table, and a tokenizer abstraction.
// Grounded on the teacher's internal/ui/usage_tracker.go (session/last-request
// stats split, the UpdateUsage shape) generalized from a single TUI session to
// the spec's per-agent AgentUsage with an append-only step list, and on
// internal/models/registry.go for the context-window/provider lookup idiom.
package usage

import (
	"encoding/json"
)

// Tokenizer counts tokens in text or JSON values. This package provides one
// implementation, EstimatingTokenizer, the always-available fallback;
// SetDefaultTokenizer lets a caller plug in a real tokenizer (e.g. a
// tiktoken-compatible BPE counter) without this package depending on it.
type Tokenizer interface {
	CountTokens(text string) int
	CountTokensJSON(value any) int
}

// EstimatingTokenizer estimates tokens as len(text)/4, the fallback the
// teacher's ui.estimateTokens helper uses when no real tokenizer is wired.
type EstimatingTokenizer struct{}

func (EstimatingTokenizer) CountTokens(text string) int {
	return len(text) / 4
}

func (t EstimatingTokenizer) CountTokensJSON(value any) int {
	data, err := json.Marshal(value)
	if err != nil {
		return 0
	}
	return t.CountTokens(string(data))
}

var _ Tokenizer = EstimatingTokenizer{}

// defaultTokenizer is process-wide but replaceable, mirroring §9's note that
// singletons become process-level values passed by reference; a convenience
// accessor remains for call sites that don't thread a Tokenizer explicitly.
var defaultTokenizer Tokenizer = EstimatingTokenizer{}

// SetDefaultTokenizer installs a real tokenizer (e.g. a BPE implementation)
// as the process default. Passing nil restores the estimating fallback.
func SetDefaultTokenizer(t Tokenizer) {
	if t == nil {
		defaultTokenizer = EstimatingTokenizer{}
		return
	}
	defaultTokenizer = t
}

// DefaultTokenizer returns the currently installed default tokenizer.
func DefaultTokenizer() Tokenizer {
	return defaultTokenizer
}
