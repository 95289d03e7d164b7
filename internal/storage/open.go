package storage

import (
	"context"

	"go.uber.org/zap"

	"github.com/mmeshcher/coffeetime-storefront/internal/config"
)

// Open выбирает реализацию хранилища по конфигурации: PostgreSQL, если задан
// DATABASE_URI, затем Redis, затем локальный файл SQLite. Если путь к файлу не
// задан, состояние хранится только в памяти процесса.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Store, error) {
	switch {
	case cfg.DatabaseURI != "":
		logger.Debug("using postgres state store")
		s, err := NewPostgresStore(ctx, cfg.DatabaseURI)
		if err != nil {
			return nil, err
		}
		return s, nil
	case cfg.RedisAddr != "":
		logger.Debug("using redis state store", zap.String("addr", cfg.RedisAddr))
		s, err := NewRedisStore(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, err
		}
		return s, nil
	case cfg.StatePath != "":
		logger.Debug("using sqlite state store", zap.String("path", cfg.StatePath))
		s, err := NewSQLiteStore(cfg.StatePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		logger.Warn("no persistent state configured, session and cart will not survive restart")
		return NewMemoryStore(), nil
	}
}
