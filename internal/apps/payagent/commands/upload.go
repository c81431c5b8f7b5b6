package payagent

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"payagent/internal/apps/common"
	"payagent/internal/apps/common/commands"
	"payagent/internal/di"
	"payagent/internal/errors"
	"payagent/internal/ui"

	"github.com/spf13/cobra"
)

func NewUploadCmd(appCtx *common.Context, clients *di.ClientSet) *cobra.Command {
	var noWait bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload an invoice for extraction",
		Long: `Upload an invoice document. Unless --no-wait is given, polling continues
until the extracted transactions show up in the queue.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base := commands.NewBaseCommand(appCtx, clients)
			base.Out = cmd.OutOrStdout()
			ctx, cancel := base.Context(cmd)
			defer cancel()

			if err := base.RequireSession(); err != nil {
				return err
			}

			path := args[0]
			f, err := os.Open(path)
			if err != nil {
				return errors.Wrap(err, errors.ErrorTypeValidation, "cannot read the invoice").
					WithContext("path", path)
			}
			defer f.Close()

			receipt, err := clients.API.Upload(ctx, filepath.Base(path), f)
			if err != nil {
				return err
			}
			base.PrintSuccess("Uploaded %s (%s, invoice %s)", filepath.Base(path), receipt.Status, receipt.InvoiceID)
			if noWait {
				return nil
			}

			clients.Poller.StartAdaptive(ctx)
			base.PrintInfo("Waiting for extraction...")

			timer := time.NewTimer(timeout)
			defer timer.Stop()
			select {
			case <-clients.Poller.AdaptiveDone():
			case <-timer.C:
				clients.Poller.Stop()
				return errors.Timeout("waiting for extracted transactions").
					WithContext("invoice_id", receipt.InvoiceID)
			case <-ctx.Done():
				clients.Poller.Stop()
				return nil
			}

			if !clients.Session.Authenticated() {
				return errors.Unauthorized("session expired while waiting for extraction")
			}
			// the adaptive loop only ends on an empty queue when its tick budget ran out
			if clients.Repository.Len() == 0 {
				return errors.Timeout("waiting for extracted transactions").
					WithContext("invoice_id", receipt.InvoiceID).
					WithContext("max_ticks", appCtx.Config.Polling.AdaptiveMaxTicks)
			}
			fmt.Fprint(base.Out, ui.RenderQueue(queueRows(clients), clients.Repository.FetchedAt()))
			return nil
		},
	}

	cmd.Flags().BoolVar(&noWait, "no-wait", false, "Return right after the upload")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "How long to wait for extraction")
	return cmd
}
