package providers

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/datalayer/agent-host/internal/catalog"
	"github.com/datalayer/agent-host/internal/hostconfig"
	"github.com/datalayer/agent-host/internal/hosttypes"
)

// StartFromConfigFile is a one-shot operation: it loads the user-configured
// provider file, merges every entry against the catalog's defaults, starts
// each one (in parallel via errgroup), and signals the initialization
// barrier when done — success or failure, per §4.1. Calling it more than
// once per process life is a no-op on the second and later calls, guarded
// by initStarted under the manager's mutex.
func (m *Manager) StartFromConfigFile(ctx context.Context, path string, cat *catalog.Catalog) error {
	m.mu.Lock()
	if m.initStarted {
		m.mu.Unlock()
		return nil
	}
	m.initStarted = true
	done := m.initDone
	m.mu.Unlock()

	defer close(done)

	merged, err := hostconfig.LoadAndMerge(path, cat, m.logger)
	if err != nil {
		m.logger.Error().Err(err).Str("path", path).Msg("providers: failed to load configured-provider file")
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for id, cfg := range merged {
		id, cfg := id, cfg
		g.Go(func() error {
			if _, err := m.Start(gctx, id, hosttypes.OriginConfigured, cfg, nil); err != nil {
				m.logger.Warn().Err(err).Str("provider_id", id).Msg("providers: configured provider failed to start during init")
			}
			return nil
		})
	}
	// Errors from individual starts are recorded in the sticky failure map,
	// not propagated here — start_from_config_file always completes and
	// signals the barrier regardless of per-provider outcome, per §4.1.
	_ = g.Wait()

	return nil
}
