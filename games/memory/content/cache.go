/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package content

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Seednode/quizmatch/games/memory"
	"github.com/gosimple/slug"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS generations (
    cache_key TEXT PRIMARY KEY,
    topic TEXT NOT NULL,
    pair_count INTEGER NOT NULL,
    pairs TEXT NOT NULL,
    created_at INTEGER NOT NULL
);
`

// Cache stores generated pairs in SQLite, keyed by topic and count, so a
// repeated topic does not cost another model call until the entry expires.
// Cache failures are logged and fall through to the inner source.
type Cache struct {
	db    *sql.DB
	inner memory.ContentSource
	ttl   time.Duration
	logf  Logf
	now   func() time.Time
}

func OpenCache(dsn string, inner memory.ContentSource, ttl time.Duration, logf Logf) (*Cache, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	c := &Cache{db: db, inner: inner, ttl: ttl, logf: logf, now: time.Now}

	if n, err := c.Purge(context.Background()); err != nil {
		logf.printf("failed to purge expired entries: %v", err)
	} else if n > 0 {
		logf.printf("purged %d expired entries", n)
	}

	return c, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

func cacheKey(topic string, count int) string {
	return slug.Make(topic) + ":" + strconv.Itoa(count)
}

func (c *Cache) cutoff() int64 {
	if c.ttl <= 0 {
		return 0
	}
	return c.now().Add(-c.ttl).UnixNano()
}

func (c *Cache) lookup(ctx context.Context, key string) ([]memory.Pair, error) {
	var raw string
	err := c.db.QueryRowContext(ctx,
		`SELECT pairs FROM generations WHERE cache_key = ? AND created_at > ?`,
		key, c.cutoff(),
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up %s: %w", key, err)
	}

	var pairs []memory.Pair
	if err := json.Unmarshal([]byte(raw), &pairs); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", key, err)
	}

	return pairs, nil
}

func (c *Cache) store(ctx context.Context, key, topic string, count int, pairs []memory.Pair) error {
	raw, err := json.Marshal(pairs)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO generations (cache_key, topic, pair_count, pairs, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET pairs = excluded.pairs, created_at = excluded.created_at
	`, key, topic, count, string(raw), c.now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to store %s: %w", key, err)
	}

	return nil
}

// Purge deletes expired entries and reports how many were removed.
func (c *Cache) Purge(ctx context.Context) (int64, error) {
	if c.ttl <= 0 {
		return 0, nil
	}

	res, err := c.db.ExecContext(ctx, `DELETE FROM generations WHERE created_at <= ?`, c.cutoff())
	if err != nil {
		return 0, fmt.Errorf("failed to purge cache: %w", err)
	}

	return res.RowsAffected()
}

func (c *Cache) Generate(ctx context.Context, topic string, count int) ([]memory.Pair, error) {
	key := cacheKey(topic, count)

	pairs, err := c.lookup(ctx, key)
	switch {
	case err != nil:
		c.logf.printf("%v", err)
	case len(pairs) > 0:
		c.logf.printf("cache hit for %s", key)
		return pairs, nil
	}

	pairs, err = c.inner.Generate(ctx, topic, count)
	if err != nil {
		return nil, err
	}

	if err := c.store(ctx, key, topic, count, pairs); err != nil {
		c.logf.printf("%v", err)
	}

	return pairs, nil
}
