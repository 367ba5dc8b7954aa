// Package hostconfig implements the configuration loader (C3): parsing the
// user-configured provider file, expanding ${VAR} placeholders, and merging
// entries with catalog defaults per §4.3's rule. The substitution function is
// grounded on the teacher's internal/config/substitution.go but narrowed to
// spec.md §4.3's exclusive ${NAME} syntax (the teacher also supports
// ${env://NAME} and ${VAR:-default}; this host only needs the plain form,
// and a missing variable expands to empty string with a warning rather than
// erroring, per §4.3 and §8 property 5).
package hostconfig

import (
	"fmt"
	"regexp"

	"github.com/rs/zerolog"
)

var placeholderPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Expand replaces every ${NAME} occurrence in s with env[NAME]. A missing
// variable expands to the empty string; a warning is logged (not returned as
// an error) via logger, matching §4.3's "missing variables expand to empty
// string with a warning".
func Expand(s string, env map[string]string, logger zerolog.Logger) string {
	return placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		if v, ok := env[name]; ok {
			return v
		}
		logger.Warn().Str("var", name).Msg("config: referenced environment variable is not set, expanding to empty string")
		return ""
	})
}

// ExpandMap returns a new map holding every value of m expanded with the
// same rules as Expand; m itself is not mutated.
func ExpandMap(m map[string]string, env map[string]string, logger zerolog.Logger) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = Expand(v, env, logger)
	}
	return out
}

// ExpandSlice expands every element of s using the same rules as Expand.
func ExpandSlice(s []string, env map[string]string, logger zerolog.Logger) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	for i, v := range s {
		out[i] = Expand(v, env, logger)
	}
	return out
}

// HasPlaceholders reports whether s contains at least one ${NAME} token,
// mirroring the teacher's HasEnvVars helper.
func HasPlaceholders(s string) bool {
	return placeholderPattern.MatchString(s)
}

// ComposeEnv merges process env, extra_env, and config env in the order
// §4.1 step 1 specifies: "process env ⊕ extra_env ⊕ expanded config.env",
// with ${VAR} in config.env expanded against the composed (process+extra)
// environment so extra_env is visible to it.
func ComposeEnv(processEnv, extraEnv, configEnv map[string]string, logger zerolog.Logger) map[string]string {
	composed := make(map[string]string, len(processEnv)+len(extraEnv)+len(configEnv))
	for k, v := range processEnv {
		composed[k] = v
	}
	for k, v := range extraEnv {
		composed[k] = v
	}
	// Expand config.env values against process+extra before overlaying, so a
	// reference from config.env to an extra_env-only variable resolves.
	base := make(map[string]string, len(composed))
	for k, v := range composed {
		base[k] = v
	}
	for k, v := range configEnv {
		composed[k] = Expand(v, base, logger)
	}
	return composed
}

// EnvToSlice converts a map into the "KEY=VALUE" slice form subprocess
// execution needs.
func EnvToSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, fmt.Sprintf("%s=%s", k, v))
	}
	return out
}
