package system

import "github.com/spf13/cobra"

// NewSystemCommand groups operator tooling: schema migration, first-run
// setup, admin bootstrap, and the withdrawal reconciliation commands.
func NewSystemCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "system",
		Aliases: []string{"sys"},
		Short:   "Operator commands for the Echo store and ledger",
	}

	cmd.AddCommand(
		NewInitCommand(),
		NewMigrateCommand(),
		NewCreateAdminCommand(),
		NewWithdrawalsCommand(),
		NewGenDocsCommand(),
	)

	return cmd
}
