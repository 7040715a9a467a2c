package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oriys/pulsar/internal/domain"
)

func (s *PostgresStore) FindByKey(ctx context.Context, key string) (*domain.CacheEntry, error) {
	var (
		e         domain.CacheEntry
		value     *string
		expiresAt *time.Time
	)
	err := s.pool.QueryRow(ctx, `
		SELECT cache_key, value, created_at, expires_at
		FROM cache_entries
		WHERE cache_key = $1
	`, key).Scan(&e.Key, &value, &e.CreatedAt, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find cache entry %q: %w", key, err)
	}
	if value != nil {
		e.Value = *value
	}
	e.ExpiresAt = expiresAt
	return &e, nil
}

// Upsert relies on the unique cache_key constraint; created_at is only
// written by the insert branch.
func (s *PostgresStore) Upsert(ctx context.Context, entry *domain.CacheEntry) error {
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO cache_entries (cache_key, value, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (cache_key) DO UPDATE SET
			value = EXCLUDED.value,
			expires_at = EXCLUDED.expires_at
		RETURNING created_at
	`, entry.Key, entry.Value, createdAt, entry.ExpiresAt).Scan(&entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert cache entry %q: %w", entry.Key, err)
	}
	return nil
}

func (s *PostgresStore) DeleteByKey(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM cache_entries WHERE cache_key = $1`, key); err != nil {
		return fmt.Errorf("delete cache entry %q: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) ExistsByKey(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM cache_entries WHERE cache_key = $1)`, key).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check cache entry %q: %w", key, err)
	}
	return exists, nil
}

func (s *PostgresStore) DeleteByKeyExpiredBefore(ctx context.Context, key string, ts time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM cache_entries
		WHERE cache_key = $1 AND expires_at IS NOT NULL AND expires_at < $2
	`, key, ts)
	if err != nil {
		return false, fmt.Errorf("delete expired cache entry %q: %w", key, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) DeleteExpiredBefore(ctx context.Context, ts time.Time) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin sweep: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := acquireSweepLock(ctx, tx); err != nil {
		return 0, err
	}
	tag, err := tx.Exec(ctx, `DELETE FROM cache_entries WHERE expires_at < $1`, ts)
	if err != nil {
		return 0, fmt.Errorf("delete expired cache entries: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit sweep: %w", err)
	}
	return tag.RowsAffected(), nil
}
