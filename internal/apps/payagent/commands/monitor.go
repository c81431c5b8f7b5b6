package payagent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"payagent/internal/apps/common"
	"payagent/internal/apps/common/commands"
	"payagent/internal/di"
	"payagent/internal/errors"
	"payagent/internal/logging"
	tuimonitor "payagent/internal/tui/monitor"
	"payagent/internal/txn/domain"
	txnmonitor "payagent/internal/txn/monitor"
	"payagent/internal/ui"

	"github.com/spf13/cobra"
)

type monitorOptions struct {
	plain    bool
	openFeed bool
}

func NewMonitorCmd(appCtx *common.Context, clients *di.ClientSet) *cobra.Command {
	var opts monitorOptions

	cmd := &cobra.Command{
		Use:   "monitor <transaction-id>",
		Short: "Watch the agent pay a transaction",
		Long: `Poll one transaction until it is paid, showing the agent's live screen feed
and accepting the step-up PIN when the payment provider asks for it.
The dashboard writes logs to payagent.log in the state directory.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base := commands.NewBaseCommand(appCtx, clients)
			base.Out = cmd.OutOrStdout()
			ctx, cancel := base.Context(cmd)
			defer cancel()

			if err := base.RequireSession(); err != nil {
				return err
			}
			return monitorTransaction(ctx, base, clients, domain.ID(args[0]), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.openFeed, "open-feed", false, "Open the live screen feed in the browser")
	cmd.Flags().BoolVar(&opts.plain, "plain", false, "Print status lines instead of the dashboard")
	return cmd
}

func monitorTransaction(ctx context.Context, base *commands.BaseCommand, clients *di.ClientSet, id domain.ID, opts monitorOptions) error {
	session, resumed := clients.Monitors.Open(ctx, id, nil)
	if resumed {
		base.PrintInfo("Resuming the open monitor of %s", id)
	}
	return watchSession(ctx, base, clients, session, opts)
}

func watchSession(ctx context.Context, base *commands.BaseCommand, clients *di.ClientSet, session *txnmonitor.Session, opts monitorOptions) error {
	cfg := base.AppCtx.Config

	if opts.openFeed {
		if err := ui.OpenURL(clients.API.LiveFeedURL(time.Now())); err != nil {
			base.PrintWarning("%v", err)
		}
	}

	if ui.IsInteractive() && !opts.plain {
		restore, err := redirectLogs(cfg.StateDir())
		if err != nil {
			base.Logger.Warn("Logging stays on stderr: %v", err)
		} else {
			defer restore()
		}
		if _, err := tuimonitor.Run(ctx, session, ui.OpenURL, cfg.Monitor.PINMinLength, cfg.Monitor.PINMaxLength); err != nil && ctx.Err() == nil {
			session.Close()
			return errors.Wrap(err, errors.ErrorTypeInternal, "monitor dashboard failed")
		}
	} else {
		streamSession(ctx, base, session, cfg.Monitor.PINMinLength, cfg.Monitor.PINMaxLength)
	}

	return reportClose(base, session)
}

// pinSession is the part of a monitor the plain view drives
type pinSession interface {
	ID() domain.ID
	State() txnmonitor.State
	Updates() <-chan txnmonitor.State
	Done() <-chan struct{}
	ProvidePIN(ctx context.Context, pin string) error
}

var (
	promptPIN   = ui.PromptPIN
	interactive = ui.IsInteractive
)

// streamSession prints every status change. On a terminal it prompts for
// the PIN once per wait, and again when the agent is still waiting for it
// after a PIN went through.
func streamSession(ctx context.Context, base *commands.BaseCommand, session pinSession, pinMin, pinMax int) {
	var last domain.Status
	var lastErr string
	prompted := false
	sentAt := -1

	for {
		var st txnmonitor.State
		select {
		case st = <-session.Updates():
		case <-session.Done():
			return
		}

		if st.HasSnapshot && st.Status != last {
			line := fmt.Sprintf("%s  %s", st.UpdatedAt.Format("15:04:05"), ui.FormatStatus(st.Status))
			if st.Optimistic {
				line += ui.Muted(" (unconfirmed)")
			}
			base.PrintInfo("%s", line)
			last = st.Status
			prompted = false
			sentAt = -1
		}
		if st.LastError != "" && st.LastError != lastErr {
			base.PrintWarning("poll failed: %s", st.LastError)
		}
		lastErr = st.LastError

		waiting := st.Status == domain.StatusWaitingForPIN && !st.Optimistic && !st.PINPending
		// a poll in flight while the PIN was sent may predate it, so the
		// second poll after the send is the first that reflects the agent
		if waiting && prompted && sentAt >= 0 && st.Polls > sentAt+1 {
			base.PrintWarning("The agent is still waiting for the PIN, it may have been rejected")
			prompted = false
			sentAt = -1
		}

		if waiting && !prompted && interactive() {
			prompted = true
			pin, err := promptPIN(pinMin, pinMax)
			if err != nil {
				base.PrintWarning("PIN entry cancelled, run `%s pin %s` to retry", base.AppCtx.BinaryName, session.ID())
				continue
			}
			if err := session.ProvidePIN(ctx, pin); err != nil {
				base.PrintWarning("PIN not sent: %v", err)
				prompted = false
			} else {
				sentAt = session.State().Polls
				base.PrintInfo("PIN sent, waiting for the agent")
			}
		}
	}
}

func reportClose(base *commands.BaseCommand, session *txnmonitor.Session) error {
	st := session.State()
	if !st.Closed {
		// the dashboard was left while the monitor still runs
		session.Close()
		st = session.State()
	}

	switch st.Reason {
	case txnmonitor.ReasonCompleted:
		base.PrintSuccess("%s paid", session.ID())
	case txnmonitor.ReasonUnauthenticated:
		return errors.Unauthorized("session expired while monitoring").
			WithContext("transaction_id", session.ID().String())
	default:
		status := "unknown"
		if st.HasSnapshot {
			status = st.Status.Label()
		}
		base.PrintInfo("Monitor of %s %s, last status %s", session.ID(), st.Reason, status)
	}
	return nil
}

// redirectLogs sends log output to payagent.log while a full-screen view owns
// the terminal.
func redirectLogs(stateDir string) (func(), error) {
	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(stateDir, "payagent.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, err
	}
	logging.SetOutput(f)
	return func() {
		logging.SetOutput(os.Stderr)
		_ = f.Close()
	}, nil
}

func NewPINCmd(appCtx *common.Context, clients *di.ClientSet) *cobra.Command {
	var pin string
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "pin <transaction-id>",
		Short: "Send the step-up PIN for a transaction waiting for it",
		Long: `Send the PIN the payment provider asks for. The PIN is prompted for unless
--pin is given. It is only sent while the transaction waits for a PIN.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base := commands.NewBaseCommand(appCtx, clients)
			base.Out = cmd.OutOrStdout()
			ctx, cancel := base.Context(cmd)
			defer cancel()

			if err := base.RequireSession(); err != nil {
				return err
			}

			id := domain.ID(args[0])
			session, resumed := clients.Monitors.Open(ctx, id, nil)
			if !resumed {
				defer session.Close()
			}

			st, err := awaitAuthoritative(ctx, session, wait)
			if err != nil {
				return err
			}
			if st.Status != domain.StatusWaitingForPIN {
				return errors.Validation("transaction is not waiting for a PIN").
					WithContext("status", string(st.Status))
			}

			if pin == "" {
				if !interactive() {
					return errors.Validation("--pin is required without a terminal")
				}
				pin, err = promptPIN(appCtx.Config.Monitor.PINMinLength, appCtx.Config.Monitor.PINMaxLength)
				if err != nil {
					return err
				}
			}
			if err := session.ProvidePIN(ctx, pin); err != nil {
				return err
			}
			base.PrintSuccess("PIN sent for %s", id)
			return nil
		},
	}

	cmd.Flags().StringVar(&pin, "pin", "", "PIN to send (prompted for when omitted)")
	cmd.Flags().DurationVar(&wait, "wait", 10*time.Second, "How long to wait for the transaction status")
	return cmd
}

// awaitAuthoritative waits for the first status fetched from the service
func awaitAuthoritative(ctx context.Context, session *txnmonitor.Session, wait time.Duration) (txnmonitor.State, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	if st := session.State(); st.HasSnapshot && !st.Optimistic && st.Polls > 0 {
		return st, nil
	}
	for {
		select {
		case st := <-session.Updates():
			if st.HasSnapshot && !st.Optimistic && st.Polls > 0 {
				return st, nil
			}
		case <-session.Done():
			if session.CloseReason() == txnmonitor.ReasonUnauthenticated {
				return session.State(), errors.Unauthorized("session expired")
			}
			return session.State(), errors.Validation("monitor closed before the status was known")
		case <-timer.C:
			last := session.State().LastError
			return session.State(), errors.Timeout("fetching the transaction status").WithContext("last_error", last)
		case <-ctx.Done():
			return session.State(), ctx.Err()
		}
	}
}
