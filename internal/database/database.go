// Package database persists the import history ledger in a local SQLite
// file. Only completed sessions are recorded here; all in-flight session
// state lives in memory inside the pipeline.
package database

import (
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Store wraps the history database
type Store struct {
	db *gorm.DB
}

// Open opens (creating if needed) the history database at path and
// migrates the schema. Pass ":memory:" for an in-process database.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	if err := db.AutoMigrate(&ImportSession{}, &ImportRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// RecordSession persists a finished session and its per-file records
func (s *Store) RecordSession(session *ImportSession) error {
	return s.db.Create(session).Error
}

// RecentSessions returns the most recent sessions, newest first
func (s *Store) RecentSessions(limit int) ([]ImportSession, error) {
	if limit <= 0 {
		limit = 20
	}
	var sessions []ImportSession
	err := s.db.Order("started_at DESC").Limit(limit).Find(&sessions).Error
	return sessions, err
}

// SessionRecords returns the per-file records for a session
func (s *Store) SessionRecords(sessionID string) ([]ImportRecord, error) {
	var records []ImportRecord
	err := s.db.Where("session_id = ?", sessionID).Order("id").Find(&records).Error
	return records, err
}

// Close closes the underlying connection
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
