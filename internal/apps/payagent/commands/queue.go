package payagent

import (
	"context"
	"fmt"
	"io"

	"payagent/internal/apps/common"
	"payagent/internal/apps/common/commands"
	"payagent/internal/di"
	"payagent/internal/errors"
	"payagent/internal/ui"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const clearScreen = "\x1b[H\x1b[2J"

func NewQueueCmd(appCtx *common.Context, clients *di.ClientSet) *cobra.Command {
	var watch, pick bool
	var output string

	cmd := &cobra.Command{
		Use:   "queue",
		Short: "List transactions awaiting review",
		Long: `List the pending transactions with the action each one is eligible for.
--watch keeps the list reconciled with the service until interrupted.
--pick lets you choose a transaction and act on it.
--output also writes the list to a plain-text report.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			base := commands.NewBaseCommand(appCtx, clients)
			base.Out = cmd.OutOrStdout()
			ctx, cancel := base.Context(cmd)
			defer cancel()

			if err := base.RequireSession(); err != nil {
				return err
			}
			if watch {
				return watchQueue(ctx, base, clients)
			}

			if err := clients.Orchestrator.Refresh(ctx); err != nil {
				return err
			}
			rows := queueRows(clients)
			fmt.Fprint(base.Out, ui.RenderQueue(rows, clients.Repository.FetchedAt()))
			printAnomalies(base.Out, clients)

			if output != "" {
				if err := ui.WriteQueueReport(rows, clients.Repository.Anomalies(), clients.Repository.FetchedAt(), output); err != nil {
					return err
				}
				base.PrintSuccess("Report written to %s", output)
			}
			if pick {
				return pickAndAct(ctx, base, clients, rows)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Keep polling and redraw on every change")
	cmd.Flags().BoolVar(&pick, "pick", false, "Pick a transaction to act on")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Also write the list to this file")
	return cmd
}

func queueRows(clients *di.ClientSet) []ui.QueueRow {
	snapshot := clients.Repository.Snapshot()
	rows := make([]ui.QueueRow, 0, len(snapshot))
	for _, tx := range snapshot {
		el := clients.Orchestrator.Eligibility(tx)
		rows = append(rows, ui.QueueRow{Transaction: tx, Action: string(el.Action), Note: el.Reason})
	}
	return rows
}

func printAnomalies(w io.Writer, clients *di.ClientSet) {
	for _, a := range clients.Repository.Anomalies() {
		fmt.Fprintln(w, ui.Warning(fmt.Sprintf("%s moved back from %s to %s at %s",
			a.TransactionID, a.From.Label(), a.To.Label(), a.ObservedAt.Format("15:04:05"))))
	}
}

// watchQueue runs the queue poller and a renderer side by side. Both stop on
// interrupt; an invalidated session ends the watch with an unauthorized error.
func watchQueue(ctx context.Context, base *commands.BaseCommand, clients *di.ClientSet) error {
	g, gctx := errgroup.WithContext(ctx)

	invalidated := make(chan string, 1)
	unsubscribe := clients.Session.OnInvalidate(func(reason string) {
		select {
		case invalidated <- reason:
		default:
		}
	})
	defer unsubscribe()

	updates, stop := clients.Repository.Subscribe()
	defer stop()

	if !clients.Poller.StartQueue(gctx) {
		return errors.Internal("queue polling is already running")
	}
	defer clients.Poller.StopQueue()

	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case reason := <-invalidated:
			return errors.Unauthorized("session invalidated: " + reason)
		}
	})

	g.Go(func() error {
		render := func() {
			out := ui.RenderQueue(queueRows(clients), clients.Repository.FetchedAt())
			if ui.IsInteractive() {
				out = clearScreen + out
			}
			fmt.Fprint(base.Out, out)
			printAnomalies(base.Out, clients)
			fmt.Fprintln(base.Out, ui.Muted("watching, ctrl-c to stop"))
		}
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-updates:
				render()
			}
		}
	})

	return g.Wait()
}

const (
	actionApprove = "Approve"
	actionAccount = "Set account number"
	actionMonitor = "Monitor"
	actionBack    = "Back"
)

func pickAndAct(ctx context.Context, base *commands.BaseCommand, clients *di.ClientSet, rows []ui.QueueRow) error {
	if !ui.IsInteractive() {
		return errors.Validation("--pick needs a terminal")
	}
	if len(rows) == 0 {
		return nil
	}

	index, err := ui.PickRow(rows)
	if err != nil {
		return err
	}
	tx := rows[index].Transaction
	fmt.Fprint(base.Out, ui.RenderTransaction(tx))

	actions := []string{actionApprove, actionAccount, actionMonitor, actionBack}
	action, err := ui.PickAction(actions)
	if err != nil {
		return err
	}

	switch action {
	case actionApprove:
		return approve(ctx, base, clients, tx.ID, false, false)
	case actionAccount:
		current := ""
		if tx.AccountNumber != nil {
			current = *tx.AccountNumber
		}
		account, err := ui.PromptText("Account number", current)
		if err != nil {
			return err
		}
		return update(ctx, base, clients, tx.ID, updateFlags{account: &account})
	case actionMonitor:
		return monitorTransaction(ctx, base, clients, tx.ID, monitorOptions{})
	}
	return nil
}
