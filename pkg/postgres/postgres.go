// Package postgres provides a prefs.Backend on a PostgreSQL table and a
// prefs.Watcher for one of its rows using LISTEN/NOTIFY.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/secureguard/prefs"
)

// Defaults for the backing table and notification channel.
const (
	DefaultTable   = "prefs_kv"
	DefaultChannel = "prefs_changed"
)

// SQLSTATE codes reported when the server runs out of room.
const (
	codeDiskFull          = "53100"
	codeProgramLimit      = "54000"
	codeOutOfMemory       = "53200"
	codeStringDataTooLong = "22001"
)

// Backend stores entries as rows of a two-column table. Rows are ordered
// by a serial column assigned on first insert.
type Backend struct {
	pool    *pgxpool.Pool
	table   string
	channel string
}

// Option configures a Backend.
type Option func(*Backend)

// WithTable sets the table name. Defaults to "prefs_kv".
func WithTable(table string) Option {
	return func(b *Backend) {
		b.table = table
	}
}

// WithChannel sets the channel EnsureSchema's trigger notifies on.
// Defaults to "prefs_changed".
func WithChannel(channel string) Option {
	return func(b *Backend) {
		b.channel = channel
	}
}

// New creates a Backend using pool.
func New(pool *pgxpool.Pool, opts ...Option) *Backend {
	b := &Backend{
		pool:    pool,
		table:   DefaultTable,
		channel: DefaultChannel,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) ident() string {
	return pgx.Identifier{b.table}.Sanitize()
}

// EnsureSchema creates the table and a trigger that sends the key of every
// inserted or updated row to the Backend's channel.
func (b *Backend) EnsureSchema(ctx context.Context) error {
	fn := pgx.Identifier{b.table + "_notify"}.Sanitize()
	trigger := pgx.Identifier{b.table + "_notify_trigger"}.Sanitize()
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			seq   BIGSERIAL NOT NULL
		);

		CREATE OR REPLACE FUNCTION %[2]s() RETURNS trigger AS $$
		BEGIN
			PERFORM pg_notify(%[4]s, NEW.key);
			RETURN NEW;
		END;
		$$ LANGUAGE plpgsql;

		DROP TRIGGER IF EXISTS %[3]s ON %[1]s;
		CREATE TRIGGER %[3]s
			AFTER INSERT OR UPDATE ON %[1]s
			FOR EACH ROW EXECUTE FUNCTION %[2]s();
	`, b.ident(), fn, trigger, quoteLiteral(b.channel))
	if _, err := b.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// translate maps server resource errors to prefs.ErrQuotaExceeded.
func translate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeDiskFull, codeProgramLimit, codeOutOfMemory, codeStringDataTooLong:
			return fmt.Errorf("%w: %w", prefs.ErrQuotaExceeded, err)
		}
	}
	return err
}

// GetItem implements prefs.Backend.
func (b *Backend) GetItem(ctx context.Context, key string) (string, bool, error) {
	var value string
	query := fmt.Sprintf("SELECT value FROM %s WHERE key = $1", b.ident())
	err := b.pool.QueryRow(ctx, query, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("postgres get %s: %w", key, err)
	}
	return value, true, nil
}

// SetItem implements prefs.Backend. Updating a row keeps its position.
func (b *Backend) SetItem(ctx context.Context, key, value string) error {
	query := fmt.Sprintf(`INSERT INTO %s (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, b.ident())
	if _, err := b.pool.Exec(ctx, query, key, value); err != nil {
		return fmt.Errorf("postgres set %s: %w", key, translate(err))
	}
	return nil
}

// RemoveItem implements prefs.Backend.
func (b *Backend) RemoveItem(ctx context.Context, key string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE key = $1", b.ident())
	if _, err := b.pool.Exec(ctx, query, key); err != nil {
		return fmt.Errorf("postgres delete %s: %w", key, err)
	}
	return nil
}

// Keys implements prefs.Backend, oldest first.
func (b *Backend) Keys(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf("SELECT key FROM %s ORDER BY seq", b.ident())
	rows, err := b.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres keys: %w", err)
	}
	keys, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres keys: %w", err)
	}
	return keys, nil
}

// Clear implements prefs.Backend.
func (b *Backend) Clear(ctx context.Context) error {
	if _, err := b.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s", b.ident())); err != nil {
		return fmt.Errorf("postgres clear: %w", err)
	}
	return nil
}

// WatchKey returns a Watcher for key on the Backend's table and channel.
// EnsureSchema must have installed the trigger.
func (b *Backend) WatchKey(key string) *Watcher {
	return NewWatcher(b.pool, b.channel, key, WithWatchTable(b.table))
}

func quoteLiteral(s string) string {
	out := []byte{'\''}
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' {
			out = append(out, '\'')
		}
		out = append(out, s[i])
	}
	return string(append(out, '\''))
}

var _ prefs.Backend = (*Backend)(nil)
