// Package commands implements the CLI subcommands for the automation
// binary.
package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fixl-developer/tma-automation/internal/config"
	"github.com/fixl-developer/tma-automation/internal/store"
	"github.com/fixl-developer/tma-automation/internal/store/memory"
	redisstore "github.com/fixl-developer/tma-automation/internal/store/redis"
	"github.com/fixl-developer/tma-automation/pkg/types"
)

// newStore creates the configured storage backend.
func newStore(cfg *types.ProjectConfig) (store.Store, error) {
	switch cfg.Provider {
	case "memory":
		return memory.New(), nil
	case "redis":
		if cfg.Redis == nil {
			return nil, fmt.Errorf("redis config is required when provider is redis")
		}
		return redisstore.New(cfg.Redis), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}

// seedPacks loads pack definitions from the configured directories into the
// store. Seeded records overwrite stale copies of themselves but never touch
// operator-created records.
func seedPacks(ctx context.Context, cfg *types.ProjectConfig, st store.Store) error {
	now := time.Now()
	for _, dir := range cfg.PackDirs {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			continue
		}
		files, err := config.LoadPackDir(dir)
		if err != nil {
			return fmt.Errorf("loading packs from %s: %w", dir, err)
		}
		for _, pf := range files {
			pack := pf.Pack
			if pack.Health == "" {
				pack.Health = types.HealthOK
			}
			pack.RuleIDs = nil
			if pack.CreatedAt.IsZero() {
				pack.CreatedAt = now
			}
			pack.UpdatedAt = now
			if err := st.PutPack(ctx, pack); err != nil {
				return fmt.Errorf("seeding pack %q: %w", pack.ID, err)
			}
			for _, rule := range pf.Rules {
				if rule.CreatedAt.IsZero() {
					rule.CreatedAt = now
				}
				rule.UpdatedAt = now
				if err := st.PutRule(ctx, rule); err != nil {
					return fmt.Errorf("seeding rule %q: %w", rule.ID, err)
				}
			}
			for _, wf := range pf.Workflows {
				if wf.Version == 0 {
					wf.Version = 1
				}
				if wf.CreatedAt.IsZero() {
					wf.CreatedAt = now
				}
				if err := st.PutWorkflow(ctx, wf); err != nil {
					return fmt.Errorf("seeding workflow %q: %w", wf.ID, err)
				}
			}
		}
	}
	return nil
}

// parseDuration reads a config duration with a fallback.
func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
