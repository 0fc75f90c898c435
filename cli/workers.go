package cli

import (
	"os"
	"path/filepath"

	"github.com/absmach/fedcycle/pkg/sdk"
	"github.com/spf13/cobra"
)

var (
	token   string
	metrics sdk.Metrics
	outFile string
)

func NewWorkersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers [authenticate|metrics|join|checkpoint|plan|report]",
		Short: "Worker flow",
		Long:  `Drive the worker side of a cycle by hand.`,
	}

	authCmd := &cobra.Command{
		Use:   "authenticate <model_name> <model_version>",
		Short: "Authenticate worker",
		Long:  `Exchange a token for a worker id.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 2 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			a, err := fsdk.Authenticate(token, args[0], args[1])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, a)
		},
	}
	authCmd.Flags().StringVarP(&token, "token", "t", "", "worker auth token")

	metricsCmd := &cobra.Command{
		Use:   "metrics <worker_id>",
		Short: "Report metrics",
		Long:  `Report network measurements of a worker.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			w, err := fsdk.ReportMetrics(args[0], metrics)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, w)
		},
	}
	metricsCmd.Flags().Float64Var(&metrics.Ping, "ping", 0, "ping in milliseconds")
	metricsCmd.Flags().Float64Var(&metrics.Download, "download", 0, "download speed")
	metricsCmd.Flags().Float64Var(&metrics.Upload, "upload", 0, "upload speed")

	joinCmd := &cobra.Command{
		Use:   "join <worker_id> <model_name> <model_version>",
		Short: "Join cycle",
		Long:  `Request to join the open cycle of a model.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 3 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			res, err := fsdk.RequestJoin(sdk.JoinRequest{
				WorkerID: args[0],
				Model:    args[1],
				Version:  args[2],
			})
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, res)
		},
	}

	checkpointCmd := &cobra.Command{
		Use:   "checkpoint <worker_id> <cycle_id> <request_key>",
		Short: "Download checkpoint",
		Long:  `Download the checkpoint a cycle trains on.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 3 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			cp, err := fsdk.DownloadCheckpoint(args[0], args[1], args[2])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			if err := os.WriteFile(outFile, cp.Payload, 0o600); err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			cp.Payload = nil
			logJSONCmd(*cmd, cp)
		},
	}
	checkpointCmd.Flags().StringVarP(&outFile, "out", "o", "checkpoint.bin", "output file")

	planCmd := &cobra.Command{
		Use:   "plan <worker_id> <cycle_id> <request_key> <name>",
		Short: "Download plan",
		Long:  `Download a client plan.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 4 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			plan, err := fsdk.DownloadPlan(args[0], args[1], args[2], args[3])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			if err := os.WriteFile(filepath.Base(args[3]), plan, 0o600); err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logOKCmd(*cmd)
		},
	}

	reportCmd := &cobra.Command{
		Use:   "report <worker_id> <request_key> <diff_file>",
		Short: "Report diff",
		Long:  `Submit an encoded diff and consume the request key.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 3 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			diff, err := os.ReadFile(args[2])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			if err := fsdk.Report(args[0], args[1], diff); err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logOKCmd(*cmd)
		},
	}

	cmd.AddCommand(authCmd, metricsCmd, joinCmd, checkpointCmd, planCmd, reportCmd)

	return cmd
}
