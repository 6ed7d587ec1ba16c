// Package config handles loading and validation of automation.yaml project
// configuration and seed pack definitions.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fixl-developer/tma-automation/pkg/types"
)

// Load reads and parses automation.yaml from the given directory.
func Load(dir string) (*types.ProjectConfig, error) {
	path := filepath.Join(dir, "automation.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg types.ProjectConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func validate(cfg *types.ProjectConfig) error {
	switch cfg.Provider {
	case "memory":
	case "redis":
		if cfg.Redis == nil {
			return fmt.Errorf("redis config is required when provider is redis")
		}
		if cfg.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required")
		}
	case "":
		return fmt.Errorf("provider is required")
	default:
		return fmt.Errorf("unknown provider %q", cfg.Provider)
	}
	if cfg.Archiver != nil && cfg.Archiver.Enabled {
		if cfg.Archiver.DSN == "" {
			return fmt.Errorf("archiver.dsn is required when archiver is enabled")
		}
		if cfg.Archiver.Interval != "" {
			if _, err := time.ParseDuration(cfg.Archiver.Interval); err != nil {
				return fmt.Errorf("archiver.interval: %w", err)
			}
		}
	}
	if cfg.Scheduler != nil && cfg.Scheduler.TickInterval != "" {
		if _, err := time.ParseDuration(cfg.Scheduler.TickInterval); err != nil {
			return fmt.Errorf("scheduler.tickInterval: %w", err)
		}
	}
	if cfg.Health != nil && cfg.Health.Interval != "" {
		if _, err := time.ParseDuration(cfg.Health.Interval); err != nil {
			return fmt.Errorf("health.interval: %w", err)
		}
	}
	for i, p := range cfg.SLA {
		if p.Module == "" || p.TargetMs <= 0 {
			return fmt.Errorf("sla[%d]: module and positive targetMs are required", i)
		}
	}
	return nil
}

// PackFile is the on-disk seed format: one pack plus its rules and any
// workflows it ships with.
type PackFile struct {
	Pack      types.Pack       `yaml:"pack"`
	Rules     []types.Rule     `yaml:"rules,omitempty"`
	Workflows []types.Workflow `yaml:"workflows,omitempty"`
}

// LoadPackDir loads all YAML pack files from a directory.
func LoadPackDir(dir string) ([]PackFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading pack dir %s: %w", dir, err)
	}

	var out []PackFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}
		pf, err := LoadPackFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		out = append(out, *pf)
	}
	return out, nil
}

// LoadPackFile loads and validates a single pack YAML file.
func LoadPackFile(path string) (*PackFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}

	var pf PackFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if pf.Pack.ID == "" || pf.Pack.Name == "" {
		return nil, fmt.Errorf("pack file %s: pack id and name are required", path)
	}
	for i, rule := range pf.Rules {
		if rule.PackID == "" {
			pf.Rules[i].PackID = pf.Pack.ID
		} else if rule.PackID != pf.Pack.ID {
			return nil, fmt.Errorf("pack file %s: rule %q belongs to pack %q", path, rule.ID, rule.PackID)
		}
		if err := pf.Rules[i].Validate(); err != nil {
			return nil, fmt.Errorf("pack file %s: rule %q: %w", path, rule.ID, err)
		}
	}
	for _, wf := range pf.Workflows {
		if err := wf.Validate(); err != nil {
			return nil, fmt.Errorf("pack file %s: workflow %q: %w", path, wf.ID, err)
		}
	}
	return &pf, nil
}
