package main

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/surgeproject/surge/internal/common"
	commonconfig "github.com/surgeproject/surge/internal/common/config"
	"github.com/surgeproject/surge/internal/worker"
	"github.com/surgeproject/surge/internal/worker/configuration"
)

const CustomConfigLocation string = "config"

func init() {
	pflag.StringSlice(
		CustomConfigLocation,
		[]string{},
		"Fully qualified path to application configuration file (for multiple config files repeat this arg or separate paths with commas)",
	)
	pflag.Parse()
}

func main() {
	common.ConfigureLogging()
	common.BindCommandlineArguments()

	var config configuration.Configuration
	userSpecifiedConfigs := viper.GetStringSlice(CustomConfigLocation)
	common.LoadConfig(&config, "./config/surgeworker", userSpecifiedConfigs)

	if err := commonconfig.Validate(config); err != nil {
		commonconfig.LogValidationErrors(err)
		os.Exit(1)
	}

	if err := worker.Run(config); err != nil {
		log.WithError(err).Error("worker stopped with an error")
		os.Exit(1)
	}
}
