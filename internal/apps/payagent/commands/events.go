package payagent

import (
	"fmt"

	"payagent/internal/apps/common"
	"payagent/internal/apps/common/commands"
	"payagent/internal/clients/datadog"
	"payagent/internal/di"
	"payagent/internal/errors"
	"payagent/internal/ui"

	"github.com/spf13/cobra"
)

func NewEventsCmd(appCtx *common.Context, clients *di.ClientSet) *cobra.Command {
	var query, from string
	var limit int

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Search lifecycle events forwarded to Datadog",
		Long: `Search the session, anomaly and monitor events this client forwarded to
Datadog. The query defaults to the configured service.`,
		Example: `  payagent events --query 'service:payagent @event:anomaly_opened' --from now-1d`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			base := commands.NewBaseCommand(appCtx, clients)
			base.Out = cmd.OutOrStdout()
			ctx, cancel := base.Context(cmd)
			defer cancel()

			if clients.Datadog == nil {
				return errors.Configuration("datadog forwarding is disabled").
					WithContext("hint", "set datadog.enabled and DD_API_KEY")
			}

			resp, err := clients.Datadog.SearchLogs(ctx, datadog.LogSearchParams{
				Query: query,
				From:  from,
				Limit: limit,
			})
			if err != nil {
				return err
			}

			fmt.Fprintln(base.Out, ui.Header(fmt.Sprintf("EVENTS (%d)", len(resp.Data))))
			for _, ev := range resp.Data {
				fmt.Fprintf(base.Out, "%s  %-8s %s\n",
					attribute(ev, "timestamp"), attribute(ev, "status"),
					ui.TruncateText(ui.MaskSensitive(attribute(ev, "message")), 100))
			}
			if resp.Links["next"] != "" {
				fmt.Fprintln(base.Out, ui.Muted("more events available, narrow --from or raise --limit"))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&query, "query", "q", "", "Datadog log query")
	cmd.Flags().StringVar(&from, "from", "now-1h", "Start of the search window")
	cmd.Flags().IntVarP(&limit, "limit", "n", 25, "Maximum number of events")
	return cmd
}

func attribute(ev datadog.LogEvent, key string) string {
	v, ok := ev.Attributes[key]
	if !ok || v == nil {
		return "-"
	}
	return fmt.Sprint(v)
}
