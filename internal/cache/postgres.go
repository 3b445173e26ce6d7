package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/JonMunkholm/sanandem/internal/database"
)

// PostgresStore keeps entries in the statistics_cache table.
type PostgresStore struct {
	db database.DBTX
}

// NewPostgresStore creates a store over the statistics_cache table.
func NewPostgresStore(db database.DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	var e Entry
	err := p.db.QueryRow(ctx,
		"SELECT cache_data, expires_at FROM statistics_cache WHERE cache_key = $1", key,
	).Scan(&e.Data, &e.ExpiresAt)
	if database.IsNoRows(err) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("select cache entry: %w", err)
	}
	return e, true, nil
}

func (p *PostgresStore) Set(ctx context.Context, key string, e Entry) error {
	_, err := p.db.Exec(ctx, `INSERT INTO statistics_cache (cache_key, cache_data, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (cache_key) DO UPDATE SET cache_data = EXCLUDED.cache_data, expires_at = EXCLUDED.expires_at`,
		key, e.Data, e.ExpiresAt)
	if err != nil {
		return fmt.Errorf("upsert cache entry: %w", err)
	}
	return nil
}

func (p *PostgresStore) Delete(ctx context.Context, keys ...string) error {
	if _, err := p.db.Exec(ctx, "DELETE FROM statistics_cache WHERE cache_key = ANY($1)", keys); err != nil {
		return fmt.Errorf("delete cache entries: %w", err)
	}
	return nil
}

func (p *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := p.db.Exec(ctx, "DELETE FROM statistics_cache WHERE expires_at <= $1", now)
	if err != nil {
		return 0, fmt.Errorf("delete expired cache entries: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (p *PostgresStore) Clear(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, "DELETE FROM statistics_cache"); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	return nil
}
