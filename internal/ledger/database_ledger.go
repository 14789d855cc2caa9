package ledger

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	sqliteDialector "github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	// ErrUnsupportedDialect indicates that no GORM dialector is available for the scheme.
	ErrUnsupportedDialect = errors.New("ledger.unsupported_dialect")

	errEmptyDatabaseURL    = errors.New("ledger.empty_database_url")
	errSQLiteEmptyPath     = errors.New("ledger.sqlite.empty_path")
	errSQLiteInvalidURL    = errors.New("ledger.sqlite.invalid_url")
	errUnsupportedNoScheme = errors.New("ledger.unsupported_no_scheme")
)

// DatabaseLedger persists user identities using GORM. Correctness under
// concurrent first-time logins rests on the unique index over external_id:
// the losing insert fails and re-reads the winner's row.
type DatabaseLedger struct {
	db          *gorm.DB
	driverLabel string
}

// Driver exposes the selected database driver label.
func (store *DatabaseLedger) Driver() string {
	return store.driverLabel
}

type userRecord struct {
	UserID     string `gorm:"column:user_id;primaryKey"`
	ExternalID string `gorm:"column:external_id;uniqueIndex;not null"`
}

func (userRecord) TableName() string {
	return "users"
}

// Open connects to the players database identified by a URL (sqlite:// or
// postgres://) and returns the connection with its driver label. Shared by
// the ledger and the settings store, which persist to the same database.
func Open(ctx context.Context, databaseURL string) (*gorm.DB, string, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, "", fmt.Errorf("ledger.open: %w", errEmptyDatabaseURL)
	}
	dialector, driverLabel, err := resolveDialector(databaseURL)
	if err != nil {
		return nil, "", err
	}
	gormDB, openErr := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if openErr != nil {
		return nil, "", fmt.Errorf("ledger.open.%s: %w", driverLabel, openErr)
	}
	return gormDB, driverLabel, nil
}

// NewDatabaseLedger constructs a GORM-backed ledger from a database URL
// (sqlite:// or postgres://).
func NewDatabaseLedger(ctx context.Context, databaseURL string) (*DatabaseLedger, error) {
	gormDB, driverLabel, openErr := Open(ctx, databaseURL)
	if openErr != nil {
		return nil, openErr
	}
	if migrateErr := gormDB.WithContext(ctx).AutoMigrate(&userRecord{}); migrateErr != nil {
		return nil, fmt.Errorf("ledger.migrate.%s: %w", driverLabel, migrateErr)
	}
	return &DatabaseLedger{
		db:          gormDB,
		driverLabel: driverLabel,
	}, nil
}

// Resolve looks up the user id for an external identity, allocating a fresh
// one on first login. The canonical row is always re-read after an insert so
// both sides of a concurrent race return the same user id.
func (store *DatabaseLedger) Resolve(ctx context.Context, providerID int, uniqueID string) (string, error) {
	externalID := ExternalID(providerID, uniqueID)

	var record userRecord
	lookupErr := store.db.WithContext(ctx).Where("external_id = ?", externalID).Take(&record).Error
	if lookupErr == nil {
		return record.UserID, nil
	}
	if !errors.Is(lookupErr, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("ledger.resolve.%s: %w", store.driverLabel, lookupErr)
	}

	userID, idErr := newUserID()
	if idErr != nil {
		return "", idErr
	}
	createErr := store.db.WithContext(ctx).Create(&userRecord{UserID: userID, ExternalID: externalID}).Error
	if createErr != nil {
		// Most likely the unique constraint rejected a losing concurrent
		// insert; the re-select below decides whether that was the case.
		var winner userRecord
		reselectErr := store.db.WithContext(ctx).Where("external_id = ?", externalID).Take(&winner).Error
		if reselectErr != nil {
			return "", fmt.Errorf("ledger.resolve.%s: %w", store.driverLabel, createErr)
		}
		return winner.UserID, nil
	}

	var canonical userRecord
	if rereadErr := store.db.WithContext(ctx).Where("external_id = ?", externalID).Take(&canonical).Error; rereadErr != nil {
		return "", fmt.Errorf("ledger.resolve.%s: %w", store.driverLabel, rereadErr)
	}
	return canonical.UserID, nil
}

func resolveDialector(databaseURL string) (gorm.Dialector, string, error) {
	parsed, err := url.Parse(databaseURL)
	if err != nil {
		return nil, "", fmt.Errorf("ledger.parse_url: %w", err)
	}
	if parsed.Scheme == "" {
		return nil, "", fmt.Errorf("ledger.dialect: %w", errUnsupportedNoScheme)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "postgres", "postgresql":
		return postgres.Open(databaseURL), "postgres", nil
	case "sqlite", "sqlite3":
		dsn, dsnErr := buildSQLiteDSN(parsed)
		if dsnErr != nil {
			return nil, "", fmt.Errorf("ledger.sqlite: %w", dsnErr)
		}
		return sqliteDialector.Open(dsn), "sqlite", nil
	default:
		return nil, "", fmt.Errorf("ledger.dialect.%s: %w", strings.ToLower(parsed.Scheme), ErrUnsupportedDialect)
	}
}

func buildSQLiteDSN(parsed *url.URL) (string, error) {
	if parsed == nil {
		return "", errSQLiteInvalidURL
	}
	var builder strings.Builder
	switch {
	case parsed.Opaque != "":
		builder.WriteString(parsed.Opaque)
	case parsed.Host != "":
		builder.WriteString(parsed.Host)
		if parsed.Path != "" {
			if !strings.HasPrefix(parsed.Path, "/") {
				builder.WriteString("/")
			}
			builder.WriteString(parsed.Path)
		}
	default:
		builder.WriteString(parsed.Path)
	}
	if builder.Len() == 0 {
		return "", errSQLiteEmptyPath
	}
	if parsed.RawQuery != "" {
		builder.WriteString("?")
		builder.WriteString(parsed.RawQuery)
	}
	return builder.String(), nil
}
