package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type stateRecord struct {
	Key       string `gorm:"primaryKey"`
	Value     []byte `gorm:"not null"`
	UpdatedAt time.Time
}

func (stateRecord) TableName() string {
	return "client_state"
}

// SQLiteStore хранит состояние клиента в локальном файле SQLite.
type SQLiteStore struct {
	db *gorm.DB
}

// NewSQLiteStore открывает (или создаёт) базу по указанному пути.
// Путь ":memory:" создаёт базу в памяти.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&stateRecord{}); err != nil {
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Get возвращает значение по ключу.
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	var rec stateRecord
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get state %q: %w", key, err)
	}
	return rec.Value, nil
}

// Set сохраняет значение по ключу.
func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte) error {
	return s.SetMany(ctx, map[string][]byte{key: value})
}

// SetMany сохраняет значения в одной транзакции.
func (s *SQLiteStore) SetMany(ctx context.Context, values map[string][]byte) error {
	if len(values) == 0 {
		return nil
	}

	now := time.Now()
	records := make([]stateRecord, 0, len(values))
	for k, v := range values {
		records = append(records, stateRecord{Key: k, Value: v, UpdatedAt: now})
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).Create(&records).Error
	})
	if err != nil {
		return fmt.Errorf("upsert state: %w", err)
	}
	return nil
}

// Delete удаляет ключи.
func (s *SQLiteStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	if err := s.db.WithContext(ctx).Where("key IN ?", keys).Delete(&stateRecord{}).Error; err != nil {
		return fmt.Errorf("delete state: %w", err)
	}
	return nil
}

// Close закрывает соединение с базой.
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
