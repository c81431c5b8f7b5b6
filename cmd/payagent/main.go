package main

import (
	"os"

	"payagent/internal/apps/common"
	cobraPkg "payagent/internal/apps/common/cobra"
	"payagent/internal/apps/common/commands"
	payagentCmd "payagent/internal/apps/payagent/commands"
	"payagent/internal/di"
)

const binaryName = "payagent"

func main() {
	os.Exit(run())
}

func run() int {
	appCtx, err := common.NewContext(binaryName)
	if err != nil {
		return commands.ReportError(os.Stderr, binaryName, err)
	}

	// Initialize dependency injection container
	container := di.NewContainer(appCtx.Config)
	if err := container.Initialize(); err != nil {
		return commands.ReportError(os.Stderr, binaryName, err)
	}
	defer container.Close()

	rootCmd := cobraPkg.NewRootCommand(appCtx)
	rootCmd.AddCommand(payagentCmd.GetCommands(appCtx, container.GetClientSet())...)

	if err := rootCmd.Execute(); err != nil {
		return commands.ReportError(os.Stderr, binaryName, err)
	}
	return 0
}
