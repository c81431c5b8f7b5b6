package payagent

import (
	"context"
	"fmt"
	"os"
	"time"

	"payagent/internal/apps/common"
	"payagent/internal/apps/common/commands"
	"payagent/internal/clients/datadog"
	"payagent/internal/di"
	"payagent/internal/errors"
	"payagent/internal/ui"

	"github.com/spf13/cobra"
)

type check struct {
	name string
	run  func(ctx context.Context) (string, error)
}

func NewDoctorCmd(appCtx *common.Context, clients *di.ClientSet) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, connectivity and the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			base := commands.NewBaseCommand(appCtx, clients)
			base.Out = cmd.OutOrStdout()
			ctx, cancel := base.Context(cmd)
			defer cancel()

			failed := 0
			for _, c := range doctorChecks(appCtx, clients) {
				cctx, ccancel := context.WithTimeout(ctx, 10*time.Second)
				detail, err := c.run(cctx)
				ccancel()

				if err != nil {
					failed++
					fmt.Fprintln(base.Out, ui.Failure(fmt.Sprintf("%-10s %v", c.name, err)))
					continue
				}
				fmt.Fprintln(base.Out, ui.Success(fmt.Sprintf("%-10s %s", c.name, detail)))
			}

			if failed > 0 {
				return errors.New(errors.ErrorTypeConfiguration, fmt.Sprintf("%d checks failed", failed))
			}
			return nil
		},
	}
}

func doctorChecks(appCtx *common.Context, clients *di.ClientSet) []check {
	cfg := appCtx.Config
	return []check{
		{name: "state", run: func(ctx context.Context) (string, error) {
			dir := cfg.StateDir()
			info, err := os.Stat(dir)
			if err != nil {
				return "", err
			}
			if !info.IsDir() {
				return "", fmt.Errorf("%s is not a directory", dir)
			}
			return dir, nil
		}},
		{name: "service", run: func(ctx context.Context) (string, error) {
			if err := clients.API.Health(ctx); err != nil {
				return "", err
			}
			return cfg.API.BaseURL, nil
		}},
		{name: "session", run: func(ctx context.Context) (string, error) {
			if !clients.Session.Authenticated() {
				return "", errors.Unauthorized("not signed in")
			}
			if err := clients.Orchestrator.Refresh(ctx); err != nil {
				return "", err
			}
			return fmt.Sprintf("valid, %d pending", clients.Repository.Len()), nil
		}},
		{name: "datadog", run: func(ctx context.Context) (string, error) {
			if clients.Datadog == nil {
				return "disabled", nil
			}
			_, err := clients.Datadog.SearchLogs(ctx, datadog.LogSearchParams{Limit: 1})
			if err != nil {
				return "", err
			}
			return "forwarding as " + cfg.Datadog.Service, nil
		}},
	}
}
