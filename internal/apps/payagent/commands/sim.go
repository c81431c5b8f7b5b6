package payagent

import (
	"time"

	"payagent/internal/apps/common"
	"payagent/internal/apps/common/commands"
	"payagent/internal/di"
	"payagent/internal/simulator"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func NewSimCmd(appCtx *common.Context, clients *di.ClientSet) *cobra.Command {
	var addr string
	var step time.Duration
	var seed int

	cmd := &cobra.Command{
		Use:   "sim",
		Short: "Run a local simulator of the payment assistant",
		Long: `Serve the payment assistant API locally. Uploads are "extracted" after one
agent step, and approved transactions walk through the PIN step to PAID.
Point api.base_url (or PAYAGENT_BASE_URL) at it to try the client.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			base := commands.NewBaseCommand(appCtx, clients)
			base.Out = cmd.OutOrStdout()
			ctx, cancel := base.Context(cmd)
			defer cancel()

			cfg := simulator.ConfigFrom(appCtx.Config)
			if addr != "" {
				cfg.Addr = addr
			}
			if step > 0 {
				cfg.AgentStep = step
			}

			sim := simulator.New(cfg)
			for i := 0; i < seed; i++ {
				account := "000123456789"
				sim.AddTransaction("b0", "Seeded Vendor", decimal.NewFromInt(int64(100*(i+1))), &account)
			}
			return sim.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (defaults to simulator.addr)")
	cmd.Flags().DurationVar(&step, "agent-step", 0, "Delay of each simulated agent step")
	cmd.Flags().IntVar(&seed, "seed", 0, "Insert this many transactions ready for approval")
	return cmd
}
