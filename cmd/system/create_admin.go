package system

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/echohealth/echo_backend/cmd/internal/cli"
	"github.com/echohealth/echo_backend/internal/service/account"
	"github.com/echohealth/echo_backend/pkg/database"
	"github.com/echohealth/echo_backend/pkg/logs"
	"github.com/echohealth/echo_backend/pkg/util/password"
)

func NewCreateAdminCommand() *cobra.Command {
	var (
		emailAddr string
		name      string
		plain     string
	)

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an administrator account",
		Long: `Create an approved administrator account. Admins cannot self-register
through the API. When --password is omitted a random one is generated and
printed once.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}
			slog.SetDefault(logs.New(cfg))

			ctx := context.Background()
			store, err := database.OpenStore(ctx, cfg.Database)
			if err != nil {
				return fmt.Errorf("failed to open store: %w", err)
			}
			defer store.Close()

			generated := plain == ""
			if generated {
				plain = password.Generate(20)
			}

			hasher := password.New(password.FromCentralConfig(cfg.Password))
			svc := account.New(store, hasher, nil, nil, nil, nil, account.Options{
				MinPasswordLength: cfg.Authentication.MinPasswordLength,
			})

			a, err := svc.CreateAdmin(ctx, emailAddr, plain, name)
			if err != nil {
				return fmt.Errorf("failed to create admin: %w", err)
			}

			fmt.Printf("Admin %s created (id %s).\n", a.Email, a.ID)
			if generated {
				fmt.Printf("Generated password: %s\n", plain)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&emailAddr, "email", "", "admin email address")
	cmd.Flags().StringVar(&name, "name", "", "admin full name")
	cmd.Flags().StringVar(&plain, "password", "", "admin password (generated when empty)")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}
