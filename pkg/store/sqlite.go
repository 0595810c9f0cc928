package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// kvEntry is one row of a logical table.
type kvEntry struct {
	Table     string `gorm:"column:table_name;primaryKey;size:128"`
	Key       string `gorm:"column:entry_key;primaryKey;size:256"`
	Value     string `gorm:"not null"`
	UpdatedAt time.Time
}

func (kvEntry) TableName() string { return "kv_entries" }

// SQLiteKV stores every logical table in a single kv_entries table.
type SQLiteKV struct {
	db *gorm.DB
}

// OpenSQLite opens (or creates) the database at path, applies PRAGMAs and
// migrates the schema.
func OpenSQLite(path string) (*SQLiteKV, error) {
	if !strings.HasPrefix(path, "file:") {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("sqlite store: create dir: %w", err)
			}
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite store: open: %w", err)
	}

	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=FULL;")
	db.Exec("PRAGMA busy_timeout=5000;")

	// Single writer: the bot handles one message at a time.
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	}

	if err := db.AutoMigrate(&kvEntry{}); err != nil {
		return nil, fmt.Errorf("sqlite store: migrate: %w", err)
	}
	return &SQLiteKV{db: db}, nil
}

func (s *SQLiteKV) Get(table, key string) (string, bool, error) {
	var e kvEntry
	err := s.db.Where("table_name = ? AND entry_key = ?", table, key).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("sqlite store: get %s/%s: %w", table, key, err)
	}
	return e.Value, true, nil
}

func (s *SQLiteKV) Set(table, key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}
	e := kvEntry{Table: table, Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "table_name"}, {Name: "entry_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&e).Error
	if err != nil {
		return fmt.Errorf("sqlite store: set %s/%s: %w", table, key, err)
	}
	return nil
}

func (s *SQLiteKV) Delete(table, key string) error {
	err := s.db.Where("table_name = ? AND entry_key = ?", table, key).Delete(&kvEntry{}).Error
	if err != nil {
		return fmt.Errorf("sqlite store: delete %s/%s: %w", table, key, err)
	}
	return nil
}

func (s *SQLiteKV) Iterate(table string, fn func(key, value string) error) error {
	var rows []kvEntry
	if err := s.db.Where("table_name = ?", table).Order("entry_key").Find(&rows).Error; err != nil {
		return fmt.Errorf("sqlite store: list %s: %w", table, err)
	}
	for _, r := range rows {
		if err := fn(r.Key, r.Value); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteKV) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
