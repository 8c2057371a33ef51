package cmd

import (
	"github.com/spf13/cobra"

	"github.com/surgeproject/surge/internal/common/app"
	"github.com/surgeproject/surge/internal/orchestrator"
)

func cleanupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Deletes the demo stream and scales the worker fleet to zero",
		RunE:  runCleanup,
	}
	return cmd
}

func runCleanup(_ *cobra.Command, _ []string) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := app.CreateContextWithShutdown()
	system, err := orchestrator.Bootstrap(ctx, config)
	if err != nil {
		return err
	}
	return system.Orchestrator.Cleanup(ctx)
}
