package account

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Supported database types.
const (
	DBTypeSQLite = "sqlite"
	DBTypeMySQL  = "mysql"
)

// DefaultSQLitePath is used when no DSN is configured for sqlite.
const DefaultSQLitePath = "smtpbridge.db"

// sqlitePragmas puts sqlite in write-ahead-log mode so readers are not
// blocked by a writer, and makes writers wait for locks instead of failing.
const sqlitePragmas = "_journal_mode=WAL&_busy_timeout=5000"

// DBConfig selects and configures the database backend.
type DBConfig struct {
	// Type is DBTypeSQLite (default) or DBTypeMySQL.
	Type string
	// DSN is a file path for sqlite or a go-sql-driver DSN for mysql.
	// MySQL DSNs should set clientFoundRows=true so that an update which
	// leaves a row unchanged still counts as a match.
	DSN string
	// Debug logs every SQL statement at debug level.
	Debug bool
}

// Open connects to the configured database and migrates the schema.
func Open(cfg DBConfig, logger *slog.Logger) (*gorm.DB, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var dialector gorm.Dialector
	switch strings.ToLower(cfg.Type) {
	case "", DBTypeSQLite:
		dialector = sqlite.Open(sqliteDSN(cfg.DSN))
	case DBTypeMySQL:
		if cfg.DSN == "" {
			return nil, errors.New("mysql requires a DSN")
		}
		dialector = mysql.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         newGormLogger(logger, cfg.Debug),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := Migrate(db); err != nil {
		_ = Close(db)
		return nil, err
	}
	return db, nil
}

// Migrate creates or updates the accounts table.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Account{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func sqliteDSN(dsn string) string {
	if dsn == "" {
		dsn = DefaultSQLitePath
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&" + sqlitePragmas
	}
	return dsn + "?" + sqlitePragmas
}

// isDuplicateError reports whether err is a unique constraint violation.
// Drivers that do not translate errors are matched on their message.
func isDuplicateError(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "Duplicate entry")
}
