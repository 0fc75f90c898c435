package cli

import (
	"github.com/absmach/fedcycle"
	"github.com/absmach/fedcycle/pkg/sdk"
	"github.com/spf13/cobra"
)

func NewProcessesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "processes [host|cycle]",
		Short: "FL processes",
		Long:  `Host FL processes and inspect their cycles.`,
	}

	hostCmd := &cobra.Command{
		Use:   "host <config.toml>",
		Short: "Host processes",
		Long: `Host every process listed in a bootstrap config file.

Examples:
  fedcycle-cli processes host ./config.toml`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			cfg, err := fedcycle.LoadConfig(args[0])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}

			for _, p := range cfg.Processes {
				hosted, err := hostProcess(p)
				if err != nil {
					logErrorCmd(*cmd, err)

					return
				}
				logJSONCmd(*cmd, hosted)
			}
		},
	}

	cycleCmd := &cobra.Command{
		Use:   "cycle <process_id>",
		Short: "View process cycle",
		Long:  `View the current cycle of a process.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			c, err := fsdk.GetProcessCycle(args[0])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, c)
		},
	}

	cmd.AddCommand(hostCmd, cycleCmd)

	return cmd
}

func hostProcess(p fedcycle.ProcessConfig) (sdk.HostedProcess, error) {
	a, err := p.ReadArtifacts()
	if err != nil {
		return sdk.HostedProcess{}, err
	}

	sc := p.ServerConfig

	return fsdk.HostProcess(sdk.HostProcessRequest{
		Name:          p.Name,
		Version:       p.Version,
		Model:         a.Model,
		Plans:         a.Plans,
		AveragingPlan: a.AveragingPlan,
		ClientConfig:  p.ClientConfig,
		ServerConfig: sdk.ServerConfig{
			MaxWorkers:          sc.MaxWorkers,
			MinWorkers:          sc.MinWorkers,
			PoolSelection:       sc.PoolSelection,
			NumCycles:           sc.NumCycles,
			CooldownCycles:      sc.CooldownCycles,
			CycleLength:         sc.CycleLength,
			MinUploadSpeed:      sc.MinUploadSpeed,
			MinDownloadSpeed:    sc.MinDownloadSpeed,
			ExpectedFailureRate: sc.ExpectedFailureRate,
			Confidence:          sc.Confidence,
			SearchTolerance:     sc.SearchTolerance,
			MinCycleTimeLeft:    sc.MinCycleTimeLeft,
			PriorRequestRate:    sc.PriorRequestRate,
		},
	})
}
