package payagent

import (
	"context"
	"fmt"
	"strings"

	"payagent/internal/apps/common"
	"payagent/internal/apps/common/batch"
	"payagent/internal/apps/common/commands"
	"payagent/internal/di"
	"payagent/internal/errors"
	"payagent/internal/txn/domain"
	"payagent/internal/txn/service"
	"payagent/internal/ui"

	"github.com/spf13/cobra"
)

func NewApproveCmd(appCtx *common.Context, clients *di.ClientSet) *cobra.Command {
	var noMonitor, plain bool
	var file string

	cmd := &cobra.Command{
		Use:   "approve <transaction-id>",
		Short: "Approve one transaction and watch it being paid",
		Long: `Approve a transaction under review. The agent then starts the payment and
a live monitor opens so you can enter the PIN when asked. Transactions already
in flight are not approved again; their monitor is opened instead.
--file approves every id listed in a file without monitoring and writes the
outcomes next to it.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base := commands.NewBaseCommand(appCtx, clients)
			base.Out = cmd.OutOrStdout()
			ctx, cancel := base.Context(cmd)
			defer cancel()

			if (file == "") == (len(args) == 0) {
				return errors.Validation("pass either a transaction id or --file")
			}
			if err := base.RequireSession(); err != nil {
				return err
			}
			if file != "" {
				return approveFile(ctx, base, clients, file)
			}
			return approve(ctx, base, clients, domain.ID(args[0]), noMonitor, plain)
		},
	}

	cmd.Flags().BoolVar(&noMonitor, "no-monitor", false, "Return after approval without watching the payment")
	cmd.Flags().BoolVar(&plain, "plain", false, "Print status lines instead of the dashboard")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Approve the ids listed in this file, one per line")
	return cmd
}

func approveFile(ctx context.Context, base *commands.BaseCommand, clients *di.ClientSet, path string) error {
	ids, err := batch.ReadIDsFromFile(path)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		base.PrintInfo("No transaction ids in %s", path)
		return nil
	}
	if err := clients.Orchestrator.Refresh(ctx); err != nil {
		return err
	}

	results := batch.Process(ctx, ids, func(ctx context.Context, id domain.ID) (string, error) {
		res, err := clients.Orchestrator.ApproveSingle(ctx, id)
		if err != nil {
			return "", err
		}
		if res.Monitor != nil && !res.Resumed {
			res.Monitor.Close()
		}
		switch res.Effect {
		case service.EffectApproved:
			return "approved", nil
		case service.EffectOpenMonitor:
			return "already " + res.Transaction.Status.Label(), nil
		default:
			return res.Reason, nil
		}
	})

	for i, r := range results {
		line := fmt.Sprintf("[%d/%d] %s: %s", i+1, len(results), r.ID, r.Outcome)
		if r.Err != nil {
			base.PrintWarning("%s (%v)", line, r.Err)
			continue
		}
		base.PrintInfo("%s", line)
	}

	outputPath := path + "_results.txt"
	if err := batch.WriteResults(results, outputPath); err != nil {
		return err
	}
	base.PrintSuccess("Results written to %s", outputPath)

	if failed := batch.Failed(results); failed > 0 {
		for _, r := range results {
			if errors.IsUnauthorized(r.Err) {
				return r.Err
			}
		}
		return errors.New(errors.ErrorTypeValidation, fmt.Sprintf("%d of %d approvals failed", failed, len(results)))
	}
	return nil
}

func approve(ctx context.Context, base *commands.BaseCommand, clients *di.ClientSet, id domain.ID, noMonitor, plain bool) error {
	res, err := clients.Orchestrator.ApproveSingle(ctx, id)
	if err != nil {
		return err
	}

	switch res.Effect {
	case service.EffectNone:
		base.PrintInfo("%s: %s", id, res.Reason)
		return nil
	case service.EffectOpenMonitor:
		base.PrintInfo("%s is %s, not approving again", id, res.Transaction.Status.Label())
	case service.EffectApproved:
		base.PrintSuccess("Approved %s (%s)", id, res.Ack.Status)
	}

	if res.Monitor == nil {
		return nil
	}
	if noMonitor {
		// an existing monitor keeps running for whoever opened it
		if !res.Resumed {
			res.Monitor.Close()
		}
		return nil
	}
	return watchSession(ctx, base, clients, res.Monitor, monitorOptions{plain: plain})
}

func NewApproveBatchCmd(appCtx *common.Context, clients *di.ClientSet) *cobra.Command {
	var batchID string
	var yes bool

	cmd := &cobra.Command{
		Use:   "approve-batch",
		Short: "Approve every ready transaction of a batch",
		Long: `Approve the batch of the first pending transaction, or the batch named with
--batch. Only transactions with complete payee details are queued by the service.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			base := commands.NewBaseCommand(appCtx, clients)
			base.Out = cmd.OutOrStdout()
			ctx, cancel := base.Context(cmd)
			defer cancel()

			if err := base.RequireSession(); err != nil {
				return err
			}
			if err := clients.Orchestrator.Refresh(ctx); err != nil {
				return err
			}

			if batches := clients.Repository.BatchIDs(); len(batches) > 1 && batchID == "" {
				base.PrintWarning("Pending transactions span batches %s; only the first is approved, use --batch to choose",
					strings.Join(batches, ", "))
			}

			if !yes && ui.IsInteractive() && clients.Repository.Len() > 0 {
				label := "Approve the first pending batch"
				if batchID != "" {
					label = fmt.Sprintf("Approve batch %s", batchID)
				}
				ok, err := ui.Confirm(label)
				if err != nil {
					return err
				}
				if !ok {
					return nil
				}
			}

			var res *service.BatchResult
			var err error
			if batchID != "" {
				res, err = clients.Orchestrator.ApproveBatchID(ctx, batchID)
			} else {
				res, err = clients.Orchestrator.ApproveBatch(ctx)
			}
			if err != nil {
				return err
			}

			if res.Skipped {
				base.PrintInfo("No transactions awaiting approval")
				return nil
			}
			if res.Approval.Count == 0 {
				base.PrintInfo("Batch %s has no transaction ready for approval (%s)", res.BatchID, res.Approval.Status)
				return nil
			}
			base.PrintSuccess("Batch %s: %d transactions queued for payment", res.BatchID, res.Approval.Count)
			for _, task := range res.Approval.TaskIDs {
				base.PrintInfo("  task %s", task)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&batchID, "batch", "", "Batch to approve (defaults to the first pending transaction's batch)")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

type updateFlags struct {
	account *string
	ifsc    *string
	remarks *string
}

func NewUpdateCmd(appCtx *common.Context, clients *di.ClientSet) *cobra.Command {
	var account, ifsc, remarks string

	cmd := &cobra.Command{
		Use:   "update <transaction-id>",
		Short: "Edit the payee details of a transaction under review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base := commands.NewBaseCommand(appCtx, clients)
			base.Out = cmd.OutOrStdout()
			ctx, cancel := base.Context(cmd)
			defer cancel()

			if err := base.RequireSession(); err != nil {
				return err
			}

			var flags updateFlags
			if cmd.Flags().Changed("account-number") {
				flags.account = &account
			}
			if cmd.Flags().Changed("ifsc") {
				flags.ifsc = &ifsc
			}
			if cmd.Flags().Changed("remarks") {
				flags.remarks = &remarks
			}
			return update(ctx, base, clients, domain.ID(args[0]), flags)
		},
	}

	cmd.Flags().StringVar(&account, "account-number", "", "Payee account number")
	cmd.Flags().StringVar(&ifsc, "ifsc", "", "Payee bank IFSC code")
	cmd.Flags().StringVar(&remarks, "remarks", "", "Free-text remarks")
	return cmd
}

func update(ctx context.Context, base *commands.BaseCommand, clients *di.ClientSet, id domain.ID, flags updateFlags) error {
	change := domain.TransactionUpdate{
		AccountNumber: flags.account,
		IFSCCode:      flags.ifsc,
		Remarks:       flags.remarks,
	}
	if change.IsEmpty() {
		return errors.Validation("nothing to update, pass --account-number, --ifsc or --remarks")
	}

	updated, err := clients.Orchestrator.UpdateField(ctx, id, change)
	if err != nil {
		return err
	}
	base.PrintSuccess("Updated %s", id)
	if updated != nil {
		fmt.Fprint(base.Out, ui.RenderTransaction(*updated))
		if el := clients.Orchestrator.Eligibility(*updated); el.CanApprove {
			base.PrintInfo("Ready for approval: %s approve %s", base.AppCtx.BinaryName, id)
		}
	}
	return nil
}
