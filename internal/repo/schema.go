package repo

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

const (
	tableAccounts     = "accounts"
	tableAppointments = "appointments"
	tableWallets      = "wallets"
	tableTransactions = "transactions"
)

var (
	// AccountsColumns holds the columns for the "accounts" table.
	AccountsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "email", Type: field.TypeString, Unique: true, Size: 320},
		{Name: "secret_hash", Type: field.TypeString},
		{Name: "role", Type: field.TypeEnum, Enums: []string{"admin", "doctor", "patient"}},
		{Name: "approval_state", Type: field.TypeEnum, Enums: []string{"PENDING", "APPROVED", "REJECTED"}, Default: "PENDING"},
		{Name: "full_name", Type: field.TypeString, Size: 200},
		{Name: "phone", Type: field.TypeString, Size: 32, Default: ""},
		{Name: "specialty", Type: field.TypeString, Size: 120, Default: ""},
		{Name: "consultation_fee", Type: field.TypeInt64, Default: 0},
		{Name: "sessions_completed", Type: field.TypeInt, Default: 0},
		{Name: "document_key", Type: field.TypeString, Default: ""},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "updated_at", Type: field.TypeTime},
	}
	AccountsTable = &schema.Table{
		Name:       tableAccounts,
		Columns:    AccountsColumns,
		PrimaryKey: []*schema.Column{AccountsColumns[0]},
		Indexes: []*schema.Index{
			{Name: "account_role_approval_state", Unique: false, Columns: []*schema.Column{AccountsColumns[3], AccountsColumns[4]}},
		},
	}

	// AppointmentsColumns holds the columns for the "appointments" table.
	AppointmentsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "doctor_id", Type: field.TypeUUID},
		{Name: "patient_id", Type: field.TypeUUID},
		{Name: "date", Type: field.TypeString, Size: 10},
		{Name: "time", Type: field.TypeString, Size: 5},
		{Name: "status", Type: field.TypeEnum, Enums: []string{"SCHEDULED", "RESCHEDULED", "COMPLETED", "CANCELLED"}, Default: "SCHEDULED"},
		{Name: "notes", Type: field.TypeString, Size: 2147483647, Default: ""},
		{Name: "fee", Type: field.TypeInt64, Default: 0},
		{Name: "completed_at", Type: field.TypeTime, Nullable: true},
		{Name: "cancelled_at", Type: field.TypeTime, Nullable: true},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "updated_at", Type: field.TypeTime},
	}
	AppointmentsTable = &schema.Table{
		Name:       tableAppointments,
		Columns:    AppointmentsColumns,
		PrimaryKey: []*schema.Column{AppointmentsColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "appointments_accounts_doctor",
				Columns:    []*schema.Column{AppointmentsColumns[1]},
				RefColumns: []*schema.Column{AccountsColumns[0]},
				OnDelete:   schema.NoAction,
			},
			{
				Symbol:     "appointments_accounts_patient",
				Columns:    []*schema.Column{AppointmentsColumns[2]},
				RefColumns: []*schema.Column{AccountsColumns[0]},
				OnDelete:   schema.NoAction,
			},
		},
		Indexes: []*schema.Index{
			{Name: "appointment_doctor_id_date", Unique: false, Columns: []*schema.Column{AppointmentsColumns[1], AppointmentsColumns[3]}},
			{Name: "appointment_patient_id", Unique: false, Columns: []*schema.Column{AppointmentsColumns[2]}},
		},
	}

	// WalletsColumns holds the columns for the "wallets" table.
	WalletsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "owner_id", Type: field.TypeUUID, Unique: true},
		{Name: "balance", Type: field.TypeInt64, Default: 0},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "updated_at", Type: field.TypeTime},
	}
	WalletsTable = &schema.Table{
		Name:       tableWallets,
		Columns:    WalletsColumns,
		PrimaryKey: []*schema.Column{WalletsColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "wallets_accounts_owner",
				Columns:    []*schema.Column{WalletsColumns[1]},
				RefColumns: []*schema.Column{AccountsColumns[0]},
				OnDelete:   schema.NoAction,
			},
		},
		Annotation: &entsql.Annotation{
			Checks: map[string]string{"wallet_balance_non_negative": "balance >= 0"},
		},
	}

	// TransactionsColumns holds the columns for the "transactions" table.
	TransactionsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "wallet_id", Type: field.TypeUUID},
		{Name: "amount", Type: field.TypeInt64},
		{Name: "type", Type: field.TypeEnum, Enums: []string{"CREDIT", "WITHDRAWAL", "REFUND"}},
		{Name: "status", Type: field.TypeEnum, Enums: []string{"PENDING", "COMPLETED", "FAILED"}},
		{Name: "description", Type: field.TypeString, Size: MaxDescriptionLen, Default: ""},
		{Name: "destination", Type: field.TypeString, Size: 32, Default: ""},
		{Name: "external_reference", Type: field.TypeString, Size: 120, Default: ""},
		{Name: "appointment_id", Type: field.TypeUUID, Unique: true, Nullable: true},
		{Name: "reverses_id", Type: field.TypeUUID, Unique: true, Nullable: true},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "updated_at", Type: field.TypeTime},
	}
	TransactionsTable = &schema.Table{
		Name:       tableTransactions,
		Columns:    TransactionsColumns,
		PrimaryKey: []*schema.Column{TransactionsColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "transactions_wallets_transactions",
				Columns:    []*schema.Column{TransactionsColumns[1]},
				RefColumns: []*schema.Column{WalletsColumns[0]},
				OnDelete:   schema.NoAction,
			},
		},
		Indexes: []*schema.Index{
			{Name: "transaction_wallet_id_created_at", Unique: false, Columns: []*schema.Column{TransactionsColumns[1], TransactionsColumns[10]}},
			{Name: "transaction_type_status", Unique: false, Columns: []*schema.Column{TransactionsColumns[3], TransactionsColumns[4]}},
		},
		Annotation: &entsql.Annotation{
			Checks: map[string]string{"transaction_amount_positive": "amount > 0"},
		},
	}

	// Tables holds all the tables in the schema.
	Tables = []*schema.Table{
		AccountsTable,
		AppointmentsTable,
		WalletsTable,
		TransactionsTable,
	}
)

func init() {
	AppointmentsTable.ForeignKeys[0].RefTable = AccountsTable
	AppointmentsTable.ForeignKeys[1].RefTable = AccountsTable
	WalletsTable.ForeignKeys[0].RefTable = AccountsTable
	TransactionsTable.ForeignKeys[0].RefTable = WalletsTable
}

// Migrate creates or upgrades the schema on drv.
func Migrate(ctx context.Context, drv dialect.Driver) error {
	m, err := schema.NewMigrate(drv, schema.WithForeignKeys(true))
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	if err := m.Create(ctx, Tables...); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}
