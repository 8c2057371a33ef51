package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/surgeproject/surge/internal/common/app"
	"github.com/surgeproject/surge/internal/orchestrator"
)

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Prints the observed state of the demo resources as JSON",
		RunE:  printStatus,
	}
	return cmd
}

func printStatus(cmd *cobra.Command, _ []string) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := app.CreateContextWithShutdown()
	system, err := orchestrator.Bootstrap(ctx, config)
	if err != nil {
		return err
	}
	state, err := system.Orchestrator.Resynchronize(ctx)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
