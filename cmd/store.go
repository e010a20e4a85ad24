package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/teemow/smtpbridge/internal/account"
	"github.com/teemow/smtpbridge/internal/crypto"
)

// StoreConfig selects the account database and the secrets that protect it.
type StoreConfig struct {
	DBType        string
	DSN           string
	EncryptionKey string
	BcryptCost    int
	// StrictEncryption rejects token columns written before encryption at rest.
	StrictEncryption bool
	Debug            bool
}

func addStoreFlags(cmd *cobra.Command, cfg *StoreConfig) {
	cmd.Flags().StringVar(&cfg.DBType, "db-type", account.DBTypeSQLite, "Database type: sqlite or mysql. Can also use SMTPBRIDGE_DB_TYPE env var.")
	cmd.Flags().StringVar(&cfg.DSN, "db-dsn", "", "Database DSN (file path for sqlite). Can also use SMTPBRIDGE_DB_DSN env var. Default for sqlite: "+account.DefaultSQLitePath)
	cmd.Flags().StringVar(&cfg.EncryptionKey, "encryption-key", "", "AES-256 key for tokens at rest (base64 or 64 hex chars). REQUIRED. Can also use SMTPBRIDGE_ENCRYPTION_KEY env var. Generate with: smtpbridge keygen")
	cmd.Flags().IntVar(&cfg.BcryptCost, "bcrypt-cost", crypto.DefaultHashCost, "bcrypt cost for API key hashes. Can also use SMTPBRIDGE_BCRYPT_COST env var.")
	cmd.Flags().BoolVar(&cfg.StrictEncryption, "strict-encryption", false, "Refuse to read unencrypted tokens left by older releases. Can also use SMTPBRIDGE_STRICT_ENCRYPTION env var.")
}

// loadStoreEnvVars applies environment variables for flags that were not
// explicitly set.
func loadStoreEnvVars(cmd *cobra.Command, cfg *StoreConfig) {
	envString(cmd, "db-type", "SMTPBRIDGE_DB_TYPE", &cfg.DBType)
	envString(cmd, "db-dsn", "SMTPBRIDGE_DB_DSN", &cfg.DSN)
	envString(cmd, "encryption-key", "SMTPBRIDGE_ENCRYPTION_KEY", &cfg.EncryptionKey)
	envInt(cmd, "bcrypt-cost", "SMTPBRIDGE_BCRYPT_COST", &cfg.BcryptCost)
	envBool(cmd, "strict-encryption", "SMTPBRIDGE_STRICT_ENCRYPTION", &cfg.StrictEncryption)
}

// Validate checks the configuration without touching the database.
func (c StoreConfig) Validate() error {
	if c.EncryptionKey == "" {
		return errors.New("encryption key is required (--encryption-key or SMTPBRIDGE_ENCRYPTION_KEY)")
	}
	if _, err := crypto.ParseKey(c.EncryptionKey); err != nil {
		return fmt.Errorf("invalid encryption key: %w", err)
	}
	switch c.DBType {
	case account.DBTypeSQLite, "":
	case account.DBTypeMySQL:
		if c.DSN == "" {
			return errors.New("mysql requires --db-dsn or SMTPBRIDGE_DB_DSN")
		}
	default:
		return fmt.Errorf("unsupported database type %q (must be %q or %q)", c.DBType, account.DBTypeSQLite, account.DBTypeMySQL)
	}
	return nil
}

// openStore opens the database and builds the account store on it. The
// caller closes the returned handle with account.Close.
func openStore(cfg StoreConfig, logger *slog.Logger) (*account.Store, *gorm.DB, *crypto.Hasher, error) {
	key, err := crypto.ParseKey(cfg.EncryptionKey)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("invalid encryption key: %w", err)
	}
	cipher, err := crypto.NewCipher(key)
	if err != nil {
		return nil, nil, nil, err
	}
	hasher, err := crypto.NewHasher(cfg.BcryptCost)
	if err != nil {
		return nil, nil, nil, err
	}

	db, err := account.Open(account.DBConfig{Type: cfg.DBType, DSN: cfg.DSN, Debug: cfg.Debug}, logger)
	if err != nil {
		return nil, nil, nil, err
	}

	store := account.NewStore(db, cipher, hasher,
		account.WithLogger(logger),
		account.WithLegacyPlaintext(!cfg.StrictEncryption),
	)
	return store, db, hasher, nil
}

func envString(cmd *cobra.Command, flag, env string, dst *string) {
	if cmd.Flags().Changed(flag) {
		return
	}
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func envBool(cmd *cobra.Command, flag, env string, dst *bool) {
	if cmd.Flags().Changed(flag) {
		return
	}
	if v := os.Getenv(env); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			*dst = parsed
		} else {
			slog.Warn("ignoring invalid boolean env var", "env", env, "value", v)
		}
	}
}

func envInt(cmd *cobra.Command, flag, env string, dst *int) {
	if cmd.Flags().Changed(flag) {
		return
	}
	if v := os.Getenv(env); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			*dst = parsed
		} else {
			slog.Warn("ignoring invalid integer env var", "env", env, "value", v)
		}
	}
}
