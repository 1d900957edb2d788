// Package token obtains the short-lived credential that scopes the
// streaming channel, and remembers when the issuing endpoint is absent so
// the client stops asking.
package token

import (
	"errors"
	"fmt"
	"sync"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// AvailabilityRegistry records whether the token endpoint is known to be
// permanently absent in this deployment. The flag is sticky: once set it is
// never cleared automatically, so a missing endpoint is probed at most once
// per storage lifetime.
type AvailabilityRegistry interface {
	// Unavailable reports whether the endpoint has been marked absent.
	Unavailable() (bool, error)

	// MarkUnavailable sets the sticky flag. Setting it twice is harmless.
	MarkUnavailable() error
}

// endpointStateRecord persists the sticky flag in SQLite.
type endpointStateRecord struct {
	Key         string `gorm:"primaryKey;column:key"`
	Unavailable bool   `gorm:"column:unavailable"`
}

// TableName specifies the table name for GORM
func (endpointStateRecord) TableName() string {
	return "stream_endpoint_state"
}

const tokenEndpointKey = "stream_token_endpoint"

// SQLiteRegistry is the durable registry implementation backed by the
// client's local state database.
type SQLiteRegistry struct {
	db *gorm.DB
	mu sync.Mutex
}

// NewSQLiteRegistry opens or creates the state database at dbPath.
func NewSQLiteRegistry(dbPath string) (*SQLiteRegistry, error) {
	dsn := dbPath + "?_busy_timeout=5000&_journal_mode=WAL"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open stream state database: %w", err)
	}

	if err := db.AutoMigrate(&endpointStateRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate stream state database: %w", err)
	}

	return &SQLiteRegistry{db: db}, nil
}

// Unavailable implements AvailabilityRegistry.
func (r *SQLiteRegistry) Unavailable() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var record endpointStateRecord
	err := r.db.Where("key = ?", tokenEndpointKey).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return record.Unavailable, nil
}

// MarkUnavailable implements AvailabilityRegistry.
func (r *SQLiteRegistry) MarkUnavailable() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record := endpointStateRecord{
		Key:         tokenEndpointKey,
		Unavailable: true,
	}
	return r.db.Save(&record).Error
}

// MemoryRegistry is an in-process registry for tests and callers without a
// durable store.
type MemoryRegistry struct {
	mu          sync.Mutex
	unavailable bool
}

// NewMemoryRegistry creates an empty in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{}
}

// Unavailable implements AvailabilityRegistry.
func (r *MemoryRegistry) Unavailable() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unavailable, nil
}

// MarkUnavailable implements AvailabilityRegistry.
func (r *MemoryRegistry) MarkUnavailable() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unavailable = true
	return nil
}
