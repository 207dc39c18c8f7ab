// Package sqlite provides a durable tokenstore.Backend on a single SQLite
// file. Several processes may open the same file; each batch is a transaction.
package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aussiebroadwan/authclient/pkg/tokenstore"

	_ "modernc.org/sqlite"
)

// Backend stores session keys in a kv table. Expiry is kept as unix
// milliseconds with 0 meaning "never".
type Backend struct {
	db  *sql.DB
	now func() time.Time
}

var _ tokenstore.Backend = (*Backend)(nil)

// Open opens (creating if needed) the database at dsn and applies migrations.
func Open(ctx context.Context, dsn string) (*Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// Another process may hold the write lock briefly.
	for _, pragma := range []string{
		`PRAGMA busy_timeout = 5000;`,
		`PRAGMA journal_mode = WAL;`,
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	b := &Backend{db: db, now: time.Now}
	if err := b.ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}
	return b, nil
}

// SetClock overrides the time source used for expiry, for tests.
func (b *Backend) SetClock(now func() time.Time) { b.now = now }

// Ping verifies the database connection is still alive.
func (b *Backend) Ping(ctx context.Context) error {
	return b.db.PingContext(ctx)
}

// Close closes the database handle.
func (b *Backend) Close() error { return b.db.Close() }

// Load returns the value for key if it exists and has not expired.
func (b *Backend) Load(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		value     []byte
		expiresAt int64
	)
	err := b.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM kv WHERE key = ?`, key,
	).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	if expiresAt != 0 && b.now().UnixMilli() >= expiresAt {
		return nil, false, nil
	}
	return value, true, nil
}

// LoadAll reads every key with a single statement, so the values come from
// one snapshot of the table.
func (b *Backend) LoadAll(ctx context.Context, keys ...string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")

	rows, err := b.db.QueryContext(ctx,
		`SELECT key, value, expires_at FROM kv WHERE key IN (`+placeholders+`)`, args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	now := b.now().UnixMilli()
	for rows.Next() {
		var (
			key       string
			value     []byte
			expiresAt int64
		)
		if err := rows.Scan(&key, &value, &expiresAt); err != nil {
			return nil, err
		}
		if expiresAt != 0 && now >= expiresAt {
			continue
		}
		out[key] = value
	}
	return out, rows.Err()
}

// SaveAll upserts (or deletes, for nil values) every entry in one transaction.
func (b *Backend) SaveAll(ctx context.Context, entries []tokenstore.Entry) error {
	return b.withTx(ctx, func(tx *sql.Tx) error {
		return saveEntries(ctx, tx, entries)
	})
}

// CompareAndSave applies entries only if key still holds expected. The
// expired-row purge of key runs first so the transaction holds the write
// lock before it reads; another process cannot slip a write in between.
func (b *Backend) CompareAndSave(ctx context.Context, key string, expected []byte, entries []tokenstore.Entry) (bool, error) {
	applied := false
	err := b.withTx(ctx, func(tx *sql.Tx) error {
		now := b.now().UnixMilli()
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM kv WHERE key = ? AND expires_at != 0 AND expires_at <= ?`, key, now,
		); err != nil {
			return fmt.Errorf("purge %s: %w", key, err)
		}

		var current []byte
		err := tx.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("load %s: %w", key, err)
		}
		if !bytes.Equal(current, expected) {
			return nil
		}

		if err := saveEntries(ctx, tx, entries); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

func saveEntries(ctx context.Context, tx *sql.Tx, entries []tokenstore.Entry) error {
	for _, e := range entries {
		if e.Value == nil {
			if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, e.Key); err != nil {
				return fmt.Errorf("delete %s: %w", e.Key, err)
			}
			continue
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO kv (key, value, expires_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
			e.Key, e.Value, unixMilli(e.ExpiresAt),
		)
		if err != nil {
			return fmt.Errorf("upsert %s: %w", e.Key, err)
		}
	}
	return nil
}

// Delete removes keys in one transaction.
func (b *Backend) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return b.withTx(ctx, func(tx *sql.Tx) error {
		for _, k := range keys {
			if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, k); err != nil {
				return fmt.Errorf("delete %s: %w", k, err)
			}
		}
		return nil
	})
}

// DeleteExpired purges rows whose expiry has passed and returns how many
// were removed.
func (b *Backend) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := b.db.ExecContext(ctx,
		`DELETE FROM kv WHERE expires_at != 0 AND expires_at <= ?`, b.now().UnixMilli(),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (b *Backend) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		_ = tx.Rollback() // no-op after commit
	}()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
