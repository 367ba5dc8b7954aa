package hostconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/datalayer/agent-host/internal/catalog"
	"github.com/datalayer/agent-host/internal/hosttypes"
)

// FileServerEntry is one entry of the user-configured provider file's
// "mcpServers" map, per §6's file format.
type FileServerEntry struct {
	Command   string            `json:"command,omitempty"`
	Args      []string          `json:"args,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
	Transport string            `json:"transport,omitempty"`
	URL       string            `json:"url,omitempty"`
}

// File is the top-level shape of ~/.datalayer/mcp.json.
type File struct {
	MCPServers map[string]FileServerEntry `json:"mcpServers"`
}

// DefaultPath returns host-home/.datalayer/mcp.json, per §6.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".datalayer/mcp.json"
	}
	return filepath.Join(home, ".datalayer", "mcp.json")
}

// Load reads and parses the user-configured provider file at path. A missing
// file is non-fatal: it returns an empty File, per §6 "Missing file is
// non-fatal: the configured-provider set is empty."
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &File{MCPServers: map[string]FileServerEntry{}}, nil
		}
		return nil, fmt.Errorf("reading provider config %s: %w", path, err)
	}

	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing provider config %s: %w", path, err)
	}
	if f.MCPServers == nil {
		f.MCPServers = map[string]FileServerEntry{}
	}
	return &f, nil
}

// Merge applies §4.3's merge rule for a configured entry with id X:
//
//  1. If the entry specifies a command, use it verbatim (modulo env
//     expansion); the display name (and the transport kind, if the entry
//     leaves it unset) falls back to the catalog record for X if present.
//     No other catalog field is copied.
//  2. Otherwise, if X exists in the predefined catalog, start from the
//     catalog record (deep-copied) and overlay the entry's env on top of the
//     catalog's env.
//  3. Otherwise, return an error ("no config found").
//
// The merged record always carries IsConfig=true.
func Merge(id string, entry FileServerEntry, cat *catalog.Catalog) (hosttypes.Provider, error) {
	if entry.Command != "" {
		p := hosttypes.Provider{
			ID:      id,
			Name:    id,
			Kind:    transportKind(entry),
			Command: append([]string{entry.Command}, entry.Args...),
			Args:    entry.Args,
			Env:     entry.Env,
			URL:     entry.URL,
			IsConfig: true,
		}
		if base, ok := cat.Get(id); ok {
			p.Name = base.Name
			if p.Kind == "" {
				p.Kind = base.Kind
			}
		}
		return p, nil
	}

	base, ok := cat.Get(id)
	if !ok {
		return hosttypes.Provider{}, fmt.Errorf("no config found for provider %q: no command given and no catalog entry", id)
	}

	merged := base.Clone()
	merged.IsConfig = true
	if merged.Env == nil {
		merged.Env = map[string]string{}
	}
	for k, v := range entry.Env {
		merged.Env[k] = v
	}
	if entry.URL != "" {
		merged.URL = entry.URL
	}
	if entry.Transport != "" {
		merged.Kind = hosttypes.TransportKind(entry.Transport)
	}
	return merged, nil
}

func transportKind(entry FileServerEntry) hosttypes.TransportKind {
	if entry.Transport != "" {
		return hosttypes.TransportKind(entry.Transport)
	}
	if entry.URL != "" {
		return hosttypes.TransportHTTP
	}
	return hosttypes.TransportStdio
}

// LoadAndMerge loads the provider file at path and merges every entry
// against cat, logging (not failing) entries that cannot be merged.
func LoadAndMerge(path string, cat *catalog.Catalog, logger zerolog.Logger) (map[string]hosttypes.Provider, error) {
	file, err := Load(path)
	if err != nil {
		return nil, err
	}

	out := make(map[string]hosttypes.Provider, len(file.MCPServers))
	for id, entry := range file.MCPServers {
		merged, err := Merge(id, entry, cat)
		if err != nil {
			logger.Warn().Err(err).Str("provider_id", id).Msg("config: skipping unmergeable provider entry")
			continue
		}
		out[id] = merged
	}
	return out, nil
}
