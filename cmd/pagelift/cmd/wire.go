package cmd

import (
	"fmt"
	"log/slog"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/pagelift/pagelift/internal/config"
	"github.com/pagelift/pagelift/internal/dispatch"
	"github.com/pagelift/pagelift/internal/document"
	"github.com/pagelift/pagelift/internal/engine"
	"github.com/pagelift/pagelift/internal/orchestrate"
)

// services bundles the wired runtime for one command invocation.
type services struct {
	registry *engine.Registry
	pool     *dispatch.Pool
	service  *orchestrate.Service
}

// close releases the worker pool and engine instances.
func (s *services) close() {
	s.pool.Stop()
	if err := s.registry.Close(); err != nil {
		slog.Warn("closing engines", "error", err)
	}
}

// buildServices wires registry, pool, dispatcher and facade from the
// resolved configuration.
func buildServices(cmd *cobra.Command, cfg *config.Config) (*services, error) {
	workers := cfg.Pool.Workers
	if cmd.Flags().Changed("workers") {
		if w, err := cmd.Flags().GetInt("workers"); err == nil && w > 0 {
			workers = w
		}
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	reg := cfg.BuildRegistry(workers)
	pool := dispatch.NewPool(workers)
	disp := dispatch.NewDispatcher(pool, reg, cfg.ToDispatchConfig(), slog.Default())
	norm := document.NewNormalizer(cfg.ToRenderConfig())
	selector := engine.NewSelector(reg, cfg.ToSelectorConfig())

	svc, err := orchestrate.New(cfg.ToOrchestrateConfig(), norm, reg, selector, disp, slog.Default())
	if err != nil {
		pool.Stop()
		_ = reg.Close()
		return nil, fmt.Errorf("initialize service: %w", err)
	}

	return &services{registry: reg, pool: pool, service: svc}, nil
}
