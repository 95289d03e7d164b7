package storage

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore хранит состояние клиента в PostgreSQL.
type PostgresStore struct {
	pool   *pgxpool.Pool
	delays []time.Duration
}

// NewPostgresStore создаёт хранилище и применяет миграции схемы.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &PostgresStore{
		pool:   pool,
		delays: []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second},
	}

	if err := s.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return s, nil
}

func (s *PostgresStore) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(s.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (s *PostgresStore) withRetry(ctx context.Context, fn func() error) error {
	var err error

	for i := 0; i <= len(s.delays); i++ {
		err = fn()
		if err == nil || !isRetryable(err) || i == len(s.delays) {
			return err
		}

		timer := time.NewTimer(s.delays[i])
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}

	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Get возвращает значение по ключу.
func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.withRetry(ctx, func() error {
		return s.pool.QueryRow(ctx,
			`SELECT value FROM client_state WHERE key = $1`,
			key,
		).Scan(&value)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get state %q: %w", key, err)
	}
	return value, nil
}

// Set сохраняет значение по ключу.
func (s *PostgresStore) Set(ctx context.Context, key string, value []byte) error {
	return s.SetMany(ctx, map[string][]byte{key: value})
}

// SetMany сохраняет значения в одной транзакции.
func (s *PostgresStore) SetMany(ctx context.Context, values map[string][]byte) error {
	return s.withRetry(ctx, func() error {
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		for k, v := range values {
			_, err := tx.Exec(ctx,
				`INSERT INTO client_state (key, value, updated_at) VALUES ($1, $2, NOW())
				 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
				k, v,
			)
			if err != nil {
				return fmt.Errorf("upsert state %q: %w", k, err)
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

// Delete удаляет ключи.
func (s *PostgresStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	return s.withRetry(ctx, func() error {
		_, err := s.pool.Exec(ctx, `DELETE FROM client_state WHERE key = ANY($1)`, keys)
		if err != nil {
			return fmt.Errorf("delete state: %w", err)
		}
		return nil
	})
}
