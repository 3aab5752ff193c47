package http

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/echohealth/echo_backend/cmd/internal/cli"
	"github.com/echohealth/echo_backend/config"
)

// NewHTTPCommand groups the commands that run or inspect the Echo API.
func NewHTTPCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "http",
		Short: "Run or inspect the Echo HTTP API",
		Long: "Commands for the patient, doctor and admin API.\n" +
			"`start` serves requests, `check` validates the configuration and " +
			"reports which optional integrations are switched on.",
	}

	cmd.AddCommand(NewStartCommand(), newCheckCommand())

	return cmd
}

func newCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and list enabled integrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}
			writeIntegrations(cmd.OutOrStdout(), cfg)
			return nil
		},
	}
}

func writeIntegrations(w io.Writer, cfg *config.Config) {
	onOff := func(b bool) string {
		if b {
			return "on"
		}
		return "off"
	}
	fmt.Fprintf(w, "listen      :%d (%s)\n", cfg.Server.Port, cfg.Server.Environment)
	fmt.Fprintf(w, "store       %s\n", cfg.Database.Driver)
	fmt.Fprintf(w, "redis       %s\n", onOff(cfg.Redis.Addr != ""))
	fmt.Fprintf(w, "mpesa       %s\n", onOff(cfg.MPesa.ConsumerKey != ""))
	fmt.Fprintf(w, "email       %s\n", onOff(cfg.Email.Enabled))
	fmt.Fprintf(w, "s3          %s\n", onOff(cfg.S3.Bucket != ""))
	fmt.Fprintf(w, "nats        %s\n", onOff(cfg.Nats.URL != ""))
	fmt.Fprintf(w, "payouts     min %d %s, timeout %s\n",
		cfg.Wallet.MinWithdrawal, cfg.Wallet.Currency, cfg.Wallet.PayoutTimeout())
}
