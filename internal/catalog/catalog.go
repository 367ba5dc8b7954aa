// Package catalog is the static table of predefined providers (C2): the
// catalog registry plus helpers to check whether a catalog entry's required
// environment variables are actually set. Grounded on the teacher's
// internal/builtin/registry.go (in-process server factories become
// "inprocess" catalog entries here) generalized to also cover the stdio and
// http predefined providers spec.md's data model describes.
package catalog

import (
	"os"
	"sort"
	"sync"

	"github.com/datalayer/agent-host/internal/hosttypes"
)

// Catalog is the process-wide table of predefined providers. It is
// read-mostly: entries are registered once at startup (by RegisterDefaults or
// a caller's own Register call) and rarely mutated afterward; Register takes
// the write lock and every Get/List call takes the read lock.
type Catalog struct {
	mu      sync.RWMutex
	entries map[string]hosttypes.Provider
}

// New returns an empty catalog. Call RegisterDefaults to populate it with the
// host's built-in predefined providers.
func New() *Catalog {
	return &Catalog{entries: make(map[string]hosttypes.Provider)}
}

// Register adds or replaces a catalog entry by id.
func (c *Catalog) Register(p hosttypes.Provider) {
	p.IsConfig = false
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[p.ID] = p
}

// Get returns a deep copy of the catalog record for id, or false if absent.
func (c *Catalog) Get(id string) (hosttypes.Provider, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.entries[id]
	if !ok {
		return hosttypes.Provider{}, false
	}
	return p.Clone(), true
}

// List returns a copy of every catalog entry, sorted by id, with IsRunning
// cleared. It does not check availability; Available does that per id.
func (c *Catalog) List() []hosttypes.Provider {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]hosttypes.Provider, 0, len(c.entries))
	for _, p := range c.entries {
		cp := p.Clone()
		cp.IsRunning = false
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Available reports whether the catalog entry for id has every required env
// var set and non-empty in the current process environment.
func (c *Catalog) Available(id string) bool {
	p, ok := c.Get(id)
	if !ok {
		return false
	}
	return p.IsAvailable(processEnvMap())
}

func processEnvMap() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				env[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	return env
}

// RegisterDefaults populates the catalog with the host's predefined
// providers: the in-process builtin servers (filesystem, bash, fetch — ported
// from the teacher's internal/builtin/registry.go) plus a small set of
// well-known stdio/http MCP servers a real deployment would ship, each
// gated on the env vars they require (mirrors §4.3/§6's "required_env_vars").
func RegisterDefaults(c *Catalog) {
	c.Register(hosttypes.Provider{
		ID:   "fs",
		Name: "Filesystem",
		Kind: hosttypes.TransportInProcess,
		Options: map[string]any{
			"allowed_directories": []string{"."},
		},
	})
	c.Register(hosttypes.Provider{
		ID:   "bash",
		Name: "Bash",
		Kind: hosttypes.TransportInProcess,
	})
	c.Register(hosttypes.Provider{
		ID:   "fetch",
		Name: "Fetch",
		Kind: hosttypes.TransportInProcess,
	})
	c.Register(hosttypes.Provider{
		ID:              "github",
		Name:            "GitHub",
		Kind:            hosttypes.TransportStdio,
		Command:         []string{"docker", "run", "-i", "--rm", "ghcr.io/github/github-mcp-server"},
		Env:             map[string]string{"GITHUB_PERSONAL_ACCESS_TOKEN": "${GITHUB_TOKEN}"},
		RequiredEnvVars: []string{"GITHUB_TOKEN"},
	})
	c.Register(hosttypes.Provider{
		ID:              "google-drive",
		Name:            "Google Drive",
		Kind:            hosttypes.TransportHTTP,
		URL:             "https://mcp.example.com/google-drive",
		RequiredEnvVars: []string{"GOOGLE_ACCESS_TOKEN"},
	})
}
