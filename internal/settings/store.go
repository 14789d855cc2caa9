// Package settings stores per-player settings documents and exposes them over
// HTTP to callers holding a settings-purpose capability token.
package settings

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"gorm.io/gorm"

	"github.com/airmash-refugees/airmash-services/internal/ledger"
)

// Store persists one settings document per user id.
type Store interface {
	GetSettings(ctx context.Context, userID string) (string, error)
	PutSettings(ctx context.Context, userID string, document string) error
}

type settingsRecord struct {
	UserID   string `gorm:"column:user_id;primaryKey"`
	Settings string `gorm:"column:settings;not null"`
}

func (settingsRecord) TableName() string {
	return "player_settings"
}

// DatabaseStore persists settings with GORM, sharing the players database
// with the identity ledger.
type DatabaseStore struct {
	db          *gorm.DB
	driverLabel string
}

// NewDatabaseStore connects to the database URL (sqlite:// or postgres://)
// and migrates the settings table.
func NewDatabaseStore(ctx context.Context, databaseURL string) (*DatabaseStore, error) {
	gormDB, driverLabel, openErr := ledger.Open(ctx, databaseURL)
	if openErr != nil {
		return nil, openErr
	}
	if migrateErr := gormDB.WithContext(ctx).AutoMigrate(&settingsRecord{}); migrateErr != nil {
		return nil, fmt.Errorf("settings.migrate.%s: %w", driverLabel, migrateErr)
	}
	return &DatabaseStore{db: gormDB, driverLabel: driverLabel}, nil
}

// GetSettings returns the stored document, or empty when the user has none.
func (store *DatabaseStore) GetSettings(ctx context.Context, userID string) (string, error) {
	var record settingsRecord
	lookupErr := store.db.WithContext(ctx).Where("user_id = ?", userID).Take(&record).Error
	if errors.Is(lookupErr, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if lookupErr != nil {
		return "", fmt.Errorf("settings.get.%s: %w", store.driverLabel, lookupErr)
	}
	return record.Settings, nil
}

// PutSettings replaces the user's document.
func (store *DatabaseStore) PutSettings(ctx context.Context, userID string, document string) error {
	record := settingsRecord{UserID: userID, Settings: document}
	saveErr := store.db.WithContext(ctx).Save(&record).Error
	if saveErr != nil {
		return fmt.Errorf("settings.put.%s: %w", store.driverLabel, saveErr)
	}
	return nil
}

// MemoryStore keeps settings in a mutex-guarded map, for tests and local runs.
type MemoryStore struct {
	mutex  sync.Mutex
	byUser map[string]string
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byUser: make(map[string]string)}
}

// GetSettings returns the stored document, or empty when the user has none.
func (store *MemoryStore) GetSettings(ctx context.Context, userID string) (string, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return store.byUser[userID], nil
}

// PutSettings replaces the user's document.
func (store *MemoryStore) PutSettings(ctx context.Context, userID string, document string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.byUser[userID] = document
	return nil
}
