// Package builtin implements the in-process predefined providers: MCP
// servers that run inside the host process instead of as a subprocess or
// remote endpoint, dispatched by C4 when a Provider's transport kind is
// "inprocess". Grounded on the teacher's internal/builtin/registry.go
// (the BuiltinServerWrapper + name-keyed factory registry shape); the
// factories are rewritten for this host's predefined set — filesystem keeps
// the teacher's own mcp-filesystem-server dependency, bash and fetch are
// written fresh against mark3labs/mcp-go's server package directly, since
// the teacher's own bodies for those two were not part of what this host
// inherited.
package builtin

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-filesystem-server/filesystemserver"
	"github.com/mark3labs/mcp-go/server"
)

// Registry holds factory functions for every in-process provider this host
// ships. CreateServer looks a factory up by the provider id used in the
// catalog (C2)'s "inprocess" entries.
type Registry struct {
	servers map[string]func(options map[string]any) (*server.MCPServer, error)
}

// NewRegistry returns a registry populated with every builtin server this
// host ships: filesystem, bash, and fetch.
func NewRegistry() *Registry {
	r := &Registry{
		servers: make(map[string]func(options map[string]any) (*server.MCPServer, error)),
	}
	r.registerFilesystemServer()
	r.registerBashServer()
	r.registerFetchServer()
	return r
}

// CreateServer builds a fresh *server.MCPServer instance for name, passing
// along provider-specific options from the catalog entry (e.g.
// allowed_directories for fs).
func (r *Registry) CreateServer(name string, options map[string]any) (*server.MCPServer, error) {
	factory, ok := r.servers[name]
	if !ok {
		return nil, fmt.Errorf("unknown builtin provider: %s", name)
	}
	return factory(options)
}

// ListServers returns the ids of every builtin provider this registry can
// create, useful for the catalog to validate its "inprocess" entries at
// startup.
func (r *Registry) ListServers() []string {
	names := make([]string, 0, len(r.servers))
	for name := range r.servers {
		names = append(names, name)
	}
	return names
}

func (r *Registry) registerFilesystemServer() {
	r.servers["fs"] = func(options map[string]any) (*server.MCPServer, error) {
		var allowedDirs []string
		if dirs, ok := options["allowed_directories"]; ok {
			switch v := dirs.(type) {
			case []string:
				allowedDirs = v
			case []any:
				allowedDirs = make([]string, 0, len(v))
				for _, dir := range v {
					s, ok := dir.(string)
					if !ok {
						return nil, fmt.Errorf("allowed_directories must be an array of strings")
					}
					allowedDirs = append(allowedDirs, s)
				}
			case string:
				allowedDirs = []string{v}
			default:
				return nil, fmt.Errorf("allowed_directories must be a string or array of strings")
			}
		} else {
			cwd, err := os.Getwd()
			if err != nil {
				return nil, fmt.Errorf("getting working directory for default allowed_directories: %w", err)
			}
			allowedDirs = []string{cwd}
		}

		return filesystemserver.NewFilesystemServer(allowedDirs)
	}
}
