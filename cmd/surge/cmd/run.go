package cmd

import (
	"github.com/spf13/cobra"

	"github.com/surgeproject/surge/internal/orchestrator"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Runs one demo execution end to end",
		RunE:  runDemo,
	}
	return cmd
}

func runDemo(_ *cobra.Command, _ []string) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}
	return orchestrator.Run(config)
}
