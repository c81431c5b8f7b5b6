package payagent

import (
	"fmt"

	"payagent/internal/apps/common"
	"payagent/internal/apps/common/commands"
	"payagent/internal/di"
	"payagent/internal/ui"

	"github.com/spf13/cobra"
)

func NewAuditsCmd(appCtx *common.Context, clients *di.ClientSet) *cobra.Command {
	var limit, width int

	cmd := &cobra.Command{
		Use:   "audits",
		Short: "Show the service's recent audit records",
		Long: `Show the most recent audit records, newest first. Card numbers and IBANs in
raw responses are masked.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			base := commands.NewBaseCommand(appCtx, clients)
			base.Out = cmd.OutOrStdout()
			ctx, cancel := base.Context(cmd)
			defer cancel()

			if err := base.RequireSession(); err != nil {
				return err
			}

			records, err := clients.API.Audits(ctx)
			if err != nil {
				return err
			}
			if limit > 0 && len(records) > limit {
				records = records[:limit]
			}
			fmt.Fprint(base.Out, ui.RenderAudits(records, width))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of records to show (0 for all)")
	cmd.Flags().IntVar(&width, "width", 60, "Truncate raw responses to this many characters")
	return cmd
}
