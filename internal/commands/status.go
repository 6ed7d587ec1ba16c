package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/fixl-developer/tma-automation/internal/config"
	"github.com/fixl-developer/tma-automation/internal/store"
	"github.com/fixl-developer/tma-automation/pkg/types"
)

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	var packID string

	cmd := &cobra.Command{
		Use:   "status [pack-id]",
		Short: "Show pack health and recent rule executions",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				packID = args[0]
			}
			return runStatus(packID)
		},
	}
	return cmd
}

func runStatus(packID string) error {
	cfg, err := config.Load(".")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	st, err := newStore(cfg)
	if err != nil {
		return fmt.Errorf("creating store: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := st.Start(ctx); err != nil {
		return fmt.Errorf("connecting to store: %w", err)
	}
	defer func() { _ = st.Stop(ctx) }()

	if packID != "" {
		return showPackStatus(ctx, st, packID)
	}
	return showAllPacks(ctx, st)
}

func showAllPacks(ctx context.Context, st store.Store) error {
	packs, err := st.ListPacks(ctx)
	if err != nil {
		return fmt.Errorf("listing packs: %w", err)
	}

	if len(packs) == 0 {
		fmt.Println("No packs registered.")
		return nil
	}

	bold := color.New(color.Bold)
	_, _ = bold.Println("Registered Packs:")
	fmt.Println()

	for _, p := range packs {
		fmt.Printf("  %-30s %-12s health=%-18s rules=%d\n",
			p.ID, p.Status, healthString(p.Health), len(p.RuleIDs))
	}
	fmt.Println()
	return nil
}

func showPackStatus(ctx context.Context, st store.Store, packID string) error {
	pack, err := st.GetPack(ctx, packID)
	if err != nil {
		return fmt.Errorf("pack not found: %w", err)
	}

	bold := color.New(color.Bold)
	_, _ = bold.Printf("Pack: %s (%s)\n", pack.Name, pack.ID)
	fmt.Printf("  Status:   %s\n", pack.Status)
	fmt.Printf("  Health:   %s\n", healthString(pack.Health))
	fmt.Printf("  Adoption: %d tenants\n", pack.TenantAdoption)

	if len(pack.RuleIDs) > 0 {
		fmt.Println()
		_, _ = bold.Println("  Rules:")
		for _, ruleID := range pack.RuleIDs {
			rule, err := st.GetRule(ctx, ruleID)
			if err != nil {
				fmt.Printf("    %-30s (missing)\n", ruleID)
				continue
			}
			fmt.Printf("    %-30s %-10s trigger=%-10s runs=%d fail=%d avg=%.0fms\n",
				rule.ID, rule.Status, rule.Trigger.Kind,
				rule.Stats.ExecutionCount, rule.Stats.FailureCount, rule.Stats.AvgDurationMs)

			execs, err := st.ListExecutions(ctx, ruleID, 3)
			if err != nil {
				continue
			}
			for _, exec := range execs {
				fmt.Printf("      %s  %s  %dms  %s\n",
					exec.ID, executionString(exec.Status), exec.DurationMs,
					exec.StartedAt.Format(time.RFC3339))
			}
		}
	}

	fmt.Println()
	return nil
}

func healthString(h types.PackHealth) string {
	switch h {
	case types.HealthOK:
		return color.GreenString(string(h))
	case types.HealthWarning:
		return color.YellowString(string(h))
	case types.HealthError:
		return color.RedString(string(h))
	default:
		return string(h)
	}
}

func executionString(s types.ExecutionStatus) string {
	switch s {
	case types.ExecutionSuccess:
		return color.GreenString(string(s))
	case types.ExecutionFailed:
		return color.RedString(string(s))
	default:
		return color.YellowString(string(s))
	}
}
