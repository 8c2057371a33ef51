package cmd

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/surgeproject/surge/internal/common/app"
	"github.com/surgeproject/surge/internal/orchestrator"
)

func warmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "warm",
		Short: "Moves the demo stream onto provisioned warm capacity",
		RunE:  runWarm,
	}
	cmd.Flags().Int("units", 0, "Capacity units to provision the stream with")
	if err := cmd.MarkFlagRequired("units"); err != nil {
		panic(err)
	}
	return cmd
}

func runWarm(cmd *cobra.Command, _ []string) error {
	units, err := cmd.Flags().GetInt("units")
	if err != nil {
		return err
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

	handle, err := system.Streams.EnsureStream(ctx, config.Stream.Name)
	if err != nil {
		return err
	}
	handle, err = system.Streams.SetWarmCapacity(ctx, handle, units)
	if err != nil {
		return err
	}
	log.Infof("stream %s is warm at %d capacity units", handle.Name, handle.CapacityUnits)
	return nil
}
