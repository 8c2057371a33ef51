package main

import (
	"os"

	"github.com/surgeproject/surge/cmd/surge/cmd"
	"github.com/surgeproject/surge/internal/common"
)

func main() {
	common.ConfigureLogging()
	common.BindCommandlineArguments()
	err := cmd.RootCmd().Execute()
	if err != nil {
		os.Exit(1)
	}
}
