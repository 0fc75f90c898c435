package cli

import (
	"github.com/absmach/fedcycle/pkg/sdk"
	"github.com/spf13/cobra"
)

var (
	cycleReq sdk.CycleRequest
	offset   uint64
	limit    uint64
)

func NewCyclesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cycles [view|create|checkpoints]",
		Short: "Cycles",
		Long:  `View and open cycles of a model, list its checkpoints.`,
	}

	viewCmd := &cobra.Command{
		Use:   "view <model_id>",
		Short: "View cycle",
		Long:  `View the current cycle of a model.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			c, err := fsdk.GetCycle(args[0])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, c)
		},
	}

	createCmd := &cobra.Command{
		Use:   "create <model_id>",
		Short: "Create cycle",
		Long: `Open a cycle for a model that has none open. Unset flags fall back
to the server config of the process and the latest checkpoint.

Examples:
  fedcycle-cli cycles create 5f7c1b04-0e5b-4a29-9a53-3f9c2f8f4b1e --max-workers 20 --cycle-length 3600`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			c, err := fsdk.CreateCycle(args[0], cycleReq)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, c)
		},
	}
	createCmd.Flags().Uint64Var(&cycleReq.Version, "checkpoint", 0, "checkpoint number to train on")
	createCmd.Flags().Uint64Var(&cycleReq.MaxWorkers, "max-workers", 0, "maximum number of diffs to average")
	createCmd.Flags().Uint64Var(&cycleReq.MinWorkers, "min-workers", 0, "minimum number of diffs to average")
	createCmd.Flags().Uint64Var(&cycleReq.CycleLength, "cycle-length", 0, "cycle length in seconds")

	checkpointsCmd := &cobra.Command{
		Use:   "checkpoints <model_id>",
		Short: "List checkpoints",
		Long:  `List checkpoint metadata of a model.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			page, err := fsdk.ListCheckpoints(args[0], offset, limit)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, page)
		},
	}
	checkpointsCmd.Flags().Uint64VarP(&offset, "offset", "o", defOffset, "offset")
	checkpointsCmd.Flags().Uint64VarP(&limit, "limit", "l", defLimit, "limit")

	cmd.AddCommand(viewCmd, createCmd, checkpointsCmd)

	return cmd
}
