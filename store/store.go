// Package store is the persistence layer: the subscription and track ledger
// plus the download history, backed by SQLite through gorm.
package store

import (
	"errors"
	"fmt"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("store: not found")

// Store owns the ledger database. Methods are safe for concurrent use;
// SQLite serializes writers underneath.
type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

// Open opens (or creates) the SQLite ledger at path and migrates the schema.
func Open(path string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}
	if err := db.AutoMigrate(&Subscription{}, &Track{}, &HistoryEntry{}); err != nil {
		return nil, fmt.Errorf("migrate ledger: %w", err)
	}
	log.Info("Ledger opened", zap.String("path", path))
	return &Store{db: db, log: log}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
