package state

import (
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// WarmEntry is the GORM model backing the session-durable tier. Values are
// stored as JSON text.
type WarmEntry struct {
	Key       string    `gorm:"primaryKey;column:key"`
	Value     string    `gorm:"column:value;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// TableName keeps the table name stable regardless of struct renames.
func (WarmEntry) TableName() string { return "warm_state" }

type warmStore struct {
	db *gorm.DB
}

func openWarmStore(path string) (*warmStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("warm store path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&WarmEntry{}); err != nil {
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(2)
		sqlDB.SetMaxIdleConns(2)
	}
	return &warmStore{db: db}, nil
}

func (s *warmStore) Get(key string) (any, error) {
	var entry WarmEntry
	err := s.db.First(&entry, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeValue(entry.Value)
}

// Set upserts the key. The call returns only after sqlite has acknowledged
// the write, so an ack implies the value survives a restart within the
// session.
func (s *warmStore) Set(key string, value any) error {
	encoded, err := encodeValue(value)
	if err != nil {
		return err
	}
	entry := WarmEntry{Key: key, Value: encoded, UpdatedAt: time.Now()}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
}

func (s *warmStore) Delete(key string) error {
	return s.db.Delete(&WarmEntry{}, "key = ?", key).Error
}

func (s *warmStore) Query(pred Predicate) iter.Seq2[string, any] {
	return func(yield func(string, any) bool) {
		rows, err := s.db.Model(&WarmEntry{}).Order("key").Rows()
		if err != nil {
			return
		}
		defer rows.Close()
		for rows.Next() {
			var entry WarmEntry
			if err := s.db.ScanRows(rows, &entry); err != nil {
				return
			}
			value, err := decodeValue(entry.Value)
			if err != nil {
				continue
			}
			if pred != nil && !pred(entry.Key, value) {
				continue
			}
			if !yield(entry.Key, value) {
				return
			}
		}
	}
}

func (s *warmStore) Close() error {
	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
