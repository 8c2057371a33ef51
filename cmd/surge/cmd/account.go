package cmd

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/surgeproject/surge/internal/common/app"
	"github.com/surgeproject/surge/internal/orchestrator"
)

func accountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Account level capability operations",
	}
	cmd.AddCommand(enableWarmCmd())
	return cmd
}

func enableWarmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enable-warm",
		Short: "Requests the account capability warm capacity depends on",
		Long: "Requests the account capability warm capacity depends on. The request " +
			"raises account limits and may take time to be granted, so it has to be " +
			"confirmed with --yes.",
		RunE: runEnableWarm,
	}
	cmd.Flags().Bool("yes", false, "Confirm the capability request")
	return cmd
}

func runEnableWarm(cmd *cobra.Command, _ []string) error {
	confirmed, err := cmd.Flags().GetBool("yes")
	if err != nil {
		return err
	}
	if !confirmed {
		return errors.New("enabling warm capacity raises account limits; re-run with --yes to confirm")
	}

	config, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := app.CreateContextWithShutdown()
	system, err := orchestrator.Bootstrap(ctx, config)
	if err != nil {
		return err
	}
	if err := system.Provider.Account().EnableWarmCapacity(ctx); err != nil {
		return err
	}
	log.Info("warm capacity capability requested")
	return nil
}
