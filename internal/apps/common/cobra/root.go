package cobra

import (
	"fmt"

	"payagent/internal/apps/common"
	"payagent/internal/buildinfo"

	"github.com/spf13/cobra"
)

func NewRootCommand(appCtx *common.Context) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   appCtx.BinaryName,
		Short: "Operator client for the payment assistant",
		Long: `An operator client for the payment assistant service: review extracted
transactions, approve them singly or by batch, and watch the agent pay them,
entering the step-up PIN when asked.`,
		DisableAutoGenTag: true,
		Version:           buildinfo.Version,
		SilenceErrors:     true,
		SilenceUsage:      true,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Display the version of " + appCtx.BinaryName,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appCtx.BinaryName, buildinfo.String())
		},
	})

	return rootCmd
}
