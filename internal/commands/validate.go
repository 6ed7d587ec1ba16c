package commands

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/fixl-developer/tma-automation/internal/config"
)

// NewValidateCmd creates the validate command.
func NewValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate automation.yaml and all seed pack definitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate()
		},
	}
}

func runValidate() error {
	cfg, err := config.Load(".")
	if err != nil {
		color.Red("✗ config: %v", err)
		return err
	}
	color.Green("✓ automation.yaml")

	failed := false
	for _, dir := range cfg.PackDirs {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			color.Yellow("○ %s: directory missing, skipped", dir)
			continue
		}
		files, err := config.LoadPackDir(dir)
		if err != nil {
			color.Red("✗ %s: %v", dir, err)
			failed = true
			continue
		}
		for _, pf := range files {
			color.Green("✓ pack %s (%d rules, %d workflows)",
				pf.Pack.ID, len(pf.Rules), len(pf.Workflows))
		}
	}

	if failed {
		return fmt.Errorf("validation failed")
	}
	return nil
}
