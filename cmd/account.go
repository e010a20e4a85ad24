package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/smtpbridge/internal/account"
	"github.com/teemow/smtpbridge/internal/audit"
	"github.com/teemow/smtpbridge/internal/logging"
)

func newAccountCmd() *cobra.Command {
	var cfg StoreConfig

	cmd := &cobra.Command{
		Use:   "account",
		Short: "Inspect and maintain registered accounts",
		Long: `Inspect and maintain the accounts stored by smtpbridge.

Tokens and API keys are never printed. Deleting an account does not revoke its
Google grant; the user can remove access at https://myaccount.google.com/permissions.`,
	}
	cmd.PersistentFlags().StringVar(&cfg.DBType, "db-type", account.DBTypeSQLite, "Database type: sqlite or mysql. Can also use SMTPBRIDGE_DB_TYPE env var.")
	cmd.PersistentFlags().StringVar(&cfg.DSN, "db-dsn", "", "Database DSN. Can also use SMTPBRIDGE_DB_DSN env var.")
	cmd.PersistentFlags().StringVar(&cfg.EncryptionKey, "encryption-key", "", "AES-256 key for tokens at rest. Can also use SMTPBRIDGE_ENCRYPTION_KEY env var.")

	var (
		asJSON   bool
		auditLog *audit.Logger
	)

	withStore := func(run func(ctx context.Context, st *account.Store, out io.Writer, args []string) error) func(*cobra.Command, []string) error {
		return func(c *cobra.Command, args []string) error {
			loadStoreEnvVars(c, &cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger, err := logging.NewLogger(c.ErrOrStderr(), logging.Options{})
			if err != nil {
				return err
			}
			st, db, _, err := openStore(cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = account.Close(db) }()
			auditLog = audit.NewLogger(logger)
			return run(c.Context(), st, c.OutOrStdout(), args)
		}
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List registered accounts",
		Args:  cobra.NoArgs,
		RunE: withStore(func(ctx context.Context, st *account.Store, out io.Writer, _ []string) error {
			accounts, err := st.List(ctx)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(out, accounts)
			}
			return writeAccountTable(out, accounts, time.Now())
		}),
	}
	listCmd.Flags().BoolVar(&asJSON, "json", false, "Print accounts as JSON")

	showCmd := &cobra.Command{
		Use:   "show <email>",
		Short: "Show one account",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(func(ctx context.Context, st *account.Store, out io.Writer, args []string) error {
			acc, err := st.GetByEmail(ctx, args[0])
			if err != nil {
				return err
			}
			return writeJSON(out, acc)
		}),
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <email>",
		Short: "Delete an account and its stored tokens",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(func(ctx context.Context, st *account.Store, out io.Writer, args []string) error {
			email := account.NormalizeEmail(args[0])
			if err := st.Delete(ctx, email); err != nil {
				if errors.Is(err, account.ErrAccountNotFound) {
					return fmt.Errorf("no account registered for %s", email)
				}
				return err
			}
			auditLog.AccountDeleted(email)
			fmt.Fprintf(out, "Deleted account %s\n", email)
			return nil
		}),
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Encrypt tokens stored in plaintext by older releases",
		Args:  cobra.NoArgs,
		RunE: withStore(func(ctx context.Context, st *account.Store, out io.Writer, _ []string) error {
			n, err := st.MigrateLegacyPlaintext(ctx)
			if err != nil {
				return fmt.Errorf("migration stopped after %d accounts: %w", n, err)
			}
			fmt.Fprintf(out, "Encrypted tokens of %d accounts\n", n)
			return nil
		}),
	}

	cmd.AddCommand(listCmd, showCmd, deleteCmd, migrateCmd)
	return cmd
}

func writeAccountTable(out io.Writer, accounts []account.Account, now time.Time) error {
	if len(accounts) == 0 {
		_, err := fmt.Fprintln(out, "No accounts registered")
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "EMAIL\tREGISTERED\tACCESS TOKEN")
	for i := range accounts {
		acc := &accounts[i]
		fmt.Fprintf(w, "%s\t%s\t%s\n", acc.Email, acc.CreatedAt.UTC().Format(time.RFC3339), tokenState(acc, now))
	}
	return w.Flush()
}

func tokenState(acc *account.Account, now time.Time) string {
	expiry, ok := acc.Expiry()
	if !acc.HasAccessToken() || !ok {
		return "none"
	}
	if !now.Before(expiry) {
		return "expired"
	}
	return "valid until " + expiry.UTC().Format(time.RFC3339)
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
