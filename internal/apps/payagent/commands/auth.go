package payagent

import (
	"payagent/internal/apps/common"
	"payagent/internal/apps/common/commands"
	"payagent/internal/di"
	"payagent/internal/errors"
	"payagent/internal/ui"

	"github.com/spf13/cobra"
)

func NewLoginCmd(appCtx *common.Context, clients *di.ClientSet) *cobra.Command {
	var username string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the payment assistant",
		Long: `Sign in and store the session credential in the state directory.
The password is read from PAYAGENT_PASSWORD or prompted for.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			base := commands.NewBaseCommand(appCtx, clients)
			base.Out = cmd.OutOrStdout()
			ctx, cancel := base.Context(cmd)
			defer cancel()

			if username == "" {
				username = appCtx.Config.API.Username
			}
			password := appCtx.Config.API.Password

			if password == "" || username == "" {
				if !ui.IsInteractive() {
					return errors.Validation("username and PAYAGENT_PASSWORD are required without a terminal")
				}
				var err error
				username, password, err = ui.PromptCredentials(username)
				if err != nil {
					return err
				}
			}

			if _, err := clients.API.Login(ctx, username, password); err != nil {
				return err
			}
			clients.Repository.Reset()
			base.PrintSuccess("Signed in as %s", username)
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "Username (defaults to api.username)")
	return cmd
}

func NewLogoutCmd(appCtx *common.Context, clients *di.ClientSet) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			base := commands.NewBaseCommand(appCtx, clients)
			base.Out = cmd.OutOrStdout()

			clients.Monitors.CloseAll()
			if err := clients.Session.Clear(); err != nil {
				return errors.Wrap(err, errors.ErrorTypeInternal, "failed to clear the stored session")
			}
			clients.Repository.Reset()
			base.PrintSuccess("Signed out")
			return nil
		},
	}
}

func NewWhoamiCmd(appCtx *common.Context, clients *di.ClientSet) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Check the stored session against the service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			base := commands.NewBaseCommand(appCtx, clients)
			base.Out = cmd.OutOrStdout()
			ctx, cancel := base.Context(cmd)
			defer cancel()

			if err := base.RequireSession(); err != nil {
				return err
			}
			// a refresh proves the credential is still accepted
			if err := clients.Orchestrator.Refresh(ctx); err != nil {
				return err
			}
			base.PrintSuccess("Signed in to %s", appCtx.Config.API.BaseURL)
			base.PrintInfo("%d transactions awaiting review", clients.Repository.Len())
			return nil
		},
	}
}
