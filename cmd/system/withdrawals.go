package system

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/echohealth/echo_backend/cmd/internal/cli"
	"github.com/echohealth/echo_backend/config"
	"github.com/echohealth/echo_backend/internal/repo"
	"github.com/echohealth/echo_backend/internal/service/ledger"
	"github.com/echohealth/echo_backend/pkg/database"
	"github.com/echohealth/echo_backend/pkg/mpesa"
)

// NewWithdrawalsCommand groups operator tooling for withdrawals whose
// payout outcome is unknown or failed.
func NewWithdrawalsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "withdrawals",
		Short: "Inspect and repair wallet withdrawals",
	}

	cmd.AddCommand(newWithdrawalsListCommand())
	cmd.AddCommand(newWithdrawalsRetryCommand())
	cmd.AddCommand(newWithdrawalsReverseCommand())

	return cmd
}

// withLedger opens the store and builds a ledger service bound to the
// configured M-Pesa gateway for the duration of fn.
func withLedger(cmd *cobra.Command, fn func(ctx context.Context, svc ledger.Service) error) error {
	cfg, err := cli.LoadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := context.Background()
	store, err := database.OpenStore(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()

	return fn(ctx, newLedger(store, cfg))
}

func newLedger(store repo.Store, cfg *config.Config) ledger.Service {
	gw := mpesa.New(mpesa.FromCentralConfig(cfg.MPesa))
	return ledger.New(store, gw, nil, ledger.FromCentralConfig(cfg.Wallet))
}

func newWithdrawalsListCommand() *cobra.Command {
	var (
		status    string
		olderThan time.Duration
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List withdrawals, by default PENDING ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd, func(ctx context.Context, svc ledger.Service) error {
				txs, err := svc.ListWithdrawals(ctx, ledger.WithdrawalFilter{
					Status:    repo.TransactionStatus(status),
					OlderThan: olderThan,
					Limit:     limit,
				})
				if err != nil {
					return err
				}
				return printWithdrawals(txs)
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", string(repo.TxPending), "withdrawal status: PENDING, COMPLETED or FAILED")
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "only withdrawals created at least this long ago, e.g. 15m")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum rows to print")

	return cmd
}

func newWithdrawalsRetryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "retry <transaction-id>",
		Short: "Re-send a PENDING withdrawal to the payout gateway",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid transaction id: %w", err)
			}
			return withLedger(cmd, func(ctx context.Context, svc ledger.Service) error {
				res, err := svc.RetryWithdrawal(ctx, id)
				if res != nil {
					fmt.Printf("%s %s amount=%d ref=%s\n", res.TransactionID, res.Status, res.Amount, res.ExternalReference)
				}
				return err
			})
		},
	}
}

func newWithdrawalsReverseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reverse <transaction-id>",
		Short: "Credit back a FAILED withdrawal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid transaction id: %w", err)
			}
			return withLedger(cmd, func(ctx context.Context, svc ledger.Service) error {
				tx, err := svc.ReverseWithdrawal(ctx, id)
				if err != nil {
					return err
				}
				fmt.Printf("reversal %s credited %d\n", tx.ID, tx.Amount)
				return nil
			})
		},
	}
}

func printWithdrawals(txs []*repo.Transaction) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tWALLET\tAMOUNT\tSTATUS\tDESTINATION\tCREATED")
	for _, t := range txs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
			t.ID, t.WalletID, t.Amount, t.Status, t.Destination, t.CreatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}
