package commands

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"payagent/internal/apps/common"
	"payagent/internal/di"
	"payagent/internal/errors"
	"payagent/internal/logging"
	"payagent/internal/ui"

	"github.com/spf13/cobra"
)

// BaseCommand provides common functionality for all commands
type BaseCommand struct {
	AppCtx  *common.Context
	Clients *di.ClientSet
	Logger  *logging.Logger
	Out     io.Writer
}

// NewBaseCommand creates a new base command
func NewBaseCommand(appCtx *common.Context, clients *di.ClientSet) *BaseCommand {
	return &BaseCommand{
		AppCtx:  appCtx,
		Clients: clients,
		Logger:  logging.NewDefaultLogger(appCtx.BinaryName + "-cmd"),
		Out:     os.Stdout,
	}
}

// Context returns a context cancelled on SIGINT or SIGTERM
func (bc *BaseCommand) Context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// RequireSession fails fast when no credential is stored
func (bc *BaseCommand) RequireSession() error {
	if !bc.Clients.Session.Authenticated() {
		return errors.Unauthorized("not signed in")
	}
	return nil
}

// ValidateRequiredFlags validates that required flags are provided
func (bc *BaseCommand) ValidateRequiredFlags(cmd *cobra.Command, required []string) error {
	for _, flag := range required {
		if value, _ := cmd.Flags().GetString(flag); value == "" {
			return errors.Validation(fmt.Sprintf("required flag --%s not provided", flag))
		}
	}
	return nil
}

// PrintSuccess prints a success message with consistent formatting
func (bc *BaseCommand) PrintSuccess(message string, args ...any) {
	fmt.Fprintln(bc.Out, ui.Success(fmt.Sprintf(message, args...)))
}

// PrintInfo prints an info message with consistent formatting
func (bc *BaseCommand) PrintInfo(message string, args ...any) {
	fmt.Fprintf(bc.Out, "%s\n", fmt.Sprintf(message, args...))
}

// PrintWarning prints a warning line
func (bc *BaseCommand) PrintWarning(message string, args ...any) {
	fmt.Fprintln(bc.Out, ui.Warning(fmt.Sprintf(message, args...)))
}

// ReportError prints err for the operator and returns the process exit
// code. An unauthorized error asks for a new sign-in.
func ReportError(w io.Writer, binary string, err error) int {
	if err == nil {
		return 0
	}

	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		fmt.Fprintln(w, ui.Failure(appErr.Message))
		keys := make([]string, 0, len(appErr.Context))
		for k := range appErr.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "  %s: %v\n", k, appErr.Context[k])
		}
		if appErr.Cause != nil {
			fmt.Fprintf(w, "  cause: %v\n", appErr.Cause)
		}
		if appErr.Type == errors.ErrorTypeUnauthorized {
			fmt.Fprintf(w, "Your session is missing or has expired. Run `%s login` and try again.\n", binary)
		}
		return 1
	}

	fmt.Fprintln(w, ui.Failure(err.Error()))
	return 1
}
