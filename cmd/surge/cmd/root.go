package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/surgeproject/surge/internal/common"
	commonconfig "github.com/surgeproject/surge/internal/common/config"
	"github.com/surgeproject/surge/internal/orchestrator/configuration"
)

const (
	CustomConfigLocation string = "config"
)

func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "surge",
		SilenceUsage: true,
		Short:        "Drives the elastic stream scaling demo",
	}

	cmd.PersistentFlags().StringSlice(
		CustomConfigLocation,
		[]string{},
		"Fully qualified path to application configuration file (for multiple config files repeat this arg or separate paths with commas)")

	cmd.AddCommand(
		runCmd(),
		statusCmd(),
		cleanupCmd(),
		warmCmd(),
		accountCmd(),
	)

	return cmd
}

func loadConfig() (configuration.Configuration, error) {
	var config configuration.Configuration
	userSpecifiedConfigs := viper.GetStringSlice(CustomConfigLocation)

	common.LoadConfig(&config, "./config/surge", userSpecifiedConfigs)

	err := commonconfig.Validate(config)
	if err != nil {
		commonconfig.LogValidationErrors(err)
	}
	return config, err
}
