package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	httpcmd "github.com/echohealth/echo_backend/cmd/http"
	systemcmd "github.com/echohealth/echo_backend/cmd/system"
	"github.com/echohealth/echo_backend/pkg/constants"
)

var (
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   constants.AppName,
	Short: "Echo Health telehealth backend.",
	Long: `Echo Health connects patients with licensed doctors for remote consultations.
This binary serves the HTTP API and carries the maintenance commands for the
store and the doctor wallet ledger.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global config flag, available for all commands.
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "config file path")

	rootCmd.AddCommand(systemcmd.NewSystemCommand())
	rootCmd.AddCommand(httpcmd.NewHTTPCommand())
}
