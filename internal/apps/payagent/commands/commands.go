package payagent

import (
	"payagent/internal/apps/common"
	"payagent/internal/di"

	"github.com/spf13/cobra"
)

func GetCommands(appCtx *common.Context, clients *di.ClientSet) []*cobra.Command {
	return []*cobra.Command{
		NewLoginCmd(appCtx, clients),
		NewLogoutCmd(appCtx, clients),
		NewWhoamiCmd(appCtx, clients),
		NewQueueCmd(appCtx, clients),
		NewApproveCmd(appCtx, clients),
		NewApproveBatchCmd(appCtx, clients),
		NewUpdateCmd(appCtx, clients),
		NewMonitorCmd(appCtx, clients),
		NewPINCmd(appCtx, clients),
		NewAuditsCmd(appCtx, clients),
		NewUploadCmd(appCtx, clients),
		NewDoctorCmd(appCtx, clients),
		NewEventsCmd(appCtx, clients),
		NewSimCmd(appCtx, clients),
	}
}
