package main

import (
	"log"
	"os"

	"github.com/absmach/fedcycle/cli"
	"github.com/absmach/fedcycle/pkg/sdk"
	"github.com/spf13/cobra"
)

const (
	defCoordinatorURL   = "http://localhost:7070"
	defTLSVerification  = false
	envCoordinatorURL   = "FEDCYCLE_COORDINATOR_URL"
	flagCoordinatorURL  = "coordinator-url"
	flagTLSVerification = "tls-verification"
)

func main() {
	var (
		coordinatorURL  string
		tlsVerification bool
	)

	rootCmd := &cobra.Command{
		Use:   "fedcycle-cli",
		Short: "fedcycle CLI",
		Long:  `fedcycle CLI is a command line interface for the federated learning cycle coordinator.`,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			sdkConf := sdk.Config{
				CoordinatorURL:  coordinatorURL,
				TLSVerification: tlsVerification,
			}
			cli.SetSDK(sdk.NewSDK(sdkConf))
		},
	}

	url := defCoordinatorURL
	if v, ok := os.LookupEnv(envCoordinatorURL); ok {
		url = v
	}
	rootCmd.PersistentFlags().StringVarP(&coordinatorURL, flagCoordinatorURL, "c", url, "coordinator URL")
	rootCmd.PersistentFlags().BoolVar(&tlsVerification, flagTLSVerification, defTLSVerification, "verify TLS certificates")

	rootCmd.AddCommand(cli.NewProcessesCmd())
	rootCmd.AddCommand(cli.NewCyclesCmd())
	rootCmd.AddCommand(cli.NewWorkersCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
