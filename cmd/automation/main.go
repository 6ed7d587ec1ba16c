package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fixl-developer/tma-automation/internal/commands"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "automation",
		Short: "Tenant automation engine: packs, rules, workflows, schedules",
		Long: `The automation engine routes domain events to tenant-scoped rules,
evaluates their conditions, runs their actions with retry and idempotency
guards, and drives multi-step workflows through guarded state transitions.
Every dispatch is recorded in an append-only execution log that feeds pack
health and SLA reporting.`,
		Version: version,
	}

	root.AddCommand(
		commands.NewServeCmd(),
		commands.NewValidateCmd(),
		commands.NewStatusCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
