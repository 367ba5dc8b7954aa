package usage

import "strings"

// defaultContextWindow is returned for any model identifier with no table
// entry and no matching prefix, per §4.5/§8.
const defaultContextWindow = 128_000

// contextWindows is the static model→window-size table. Grounded on the
// teacher's internal/models/registry.go ModelInfo.Limit.Context field, which
// is populated per-model from the catwalk embedded database; this host
// ships a small static table instead of vendoring catwalk, since usage
// accounting only needs the window size, not full pricing/capability data.
var contextWindows = map[string]int{
	"claude-opus-4-5":          200_000,
	"claude-sonnet-4-5":        200_000,
	"claude-haiku-4-5":         200_000,
	"gpt-5":                    400_000,
	"gpt-5-mini":               400_000,
	"gpt-4.1":                  1_000_000,
	"gpt-4o":                   128_000,
	"o3":                       200_000,
	"gemini-2.5-pro":           2_000_000,
	"gemini-2.5-flash":         1_000_000,
	"llama-3.3-70b":            128_000,
	"mistral-large":            128_000,
	"deepseek-v3":              128_000,
}

// ContextWindow looks up the context window size for modelID. Model strings
// may be given as "provider:model" or "provider/model"; the prefix is
// stripped before the exact-match lookup. If there's still no exact match,
// prefix matching against the table (table key is a prefix of modelID) is
// attempted next, per §4.5 "prefix matching is attempted after exact match".
// Falls back to 128,000.
func ContextWindow(modelID string) int {
	stripped := stripProviderPrefix(modelID)

	if window, ok := contextWindows[stripped]; ok {
		return window
	}
	if window, ok := contextWindows[modelID]; ok {
		return window
	}

	for prefix, window := range contextWindows {
		if strings.HasPrefix(stripped, prefix) {
			return window
		}
	}

	return defaultContextWindow
}

func stripProviderPrefix(modelID string) string {
	if i := strings.IndexAny(modelID, ":/"); i >= 0 {
		return modelID[i+1:]
	}
	return modelID
}

// RegisterContextWindow lets a caller add or override a table entry, e.g.
// after fetching a live model catalog.
func RegisterContextWindow(modelID string, window int) {
	contextWindows[modelID] = window
}
