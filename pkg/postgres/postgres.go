// Package postgres provides a relay.Watcher for a row in a PostgreSQL
// key/value table, notified with LISTEN/NOTIFY.
package postgres

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zoobzio/relay"
)

var _ relay.Watcher = (*Watcher)(nil)

// DefaultTable is the table a Watcher reads from unless WithTable is used.
const DefaultTable = "relay_values"

// Watcher emits the value column of one row whenever a notification naming
// its key arrives on the channel.
//
// The table needs a text key column and a bytea value column, and a trigger
// that calls pg_notify(channel, NEW.key). EnsureSchema creates both.
type Watcher struct {
	pool    *pgxpool.Pool
	channel string
	key     string
	table   string
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithTable sets the table to read values from. Default: DefaultTable.
func WithTable(table string) Option {
	return func(w *Watcher) {
		w.table = table
	}
}

// New creates a Watcher for the row identified by key, woken by
// notifications on channel.
func New(pool *pgxpool.Pool, channel, key string, opts ...Option) *Watcher {
	w := &Watcher{
		pool:    pool,
		channel: channel,
		key:     key,
		table:   DefaultTable,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// EnsureSchema creates the watcher's table and notify trigger if they do
// not exist.
func (w *Watcher) EnsureSchema(ctx context.Context) error {
	table := pgx.Identifier{w.table}.Sanitize()
	fn := pgx.Identifier{w.table + "_notify"}.Sanitize()
	channel := "'" + strings.ReplaceAll(w.channel, "'", "''") + "'"

	_, err := w.pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			key   TEXT PRIMARY KEY,
			value BYTEA NOT NULL
		);

		CREATE OR REPLACE FUNCTION %[2]s() RETURNS trigger AS $$
		BEGIN
			PERFORM pg_notify(%[3]s, NEW.key);
			RETURN NEW;
		END;
		$$ LANGUAGE plpgsql;

		DROP TRIGGER IF EXISTS relay_notify ON %[1]s;
		CREATE TRIGGER relay_notify
			AFTER INSERT OR UPDATE ON %[1]s
			FOR EACH ROW EXECUTE FUNCTION %[2]s();
	`, table, fn, channel))
	if err != nil {
		return fmt.Errorf("failed to create schema for %s: %w", w.table, err)
	}
	return nil
}

// Watch holds one pooled connection for LISTEN, emits the row's current
// value if it exists and then the value after every matching notification.
func (w *Watcher) Watch(ctx context.Context) (<-chan []byte, error) {
	conn, err := w.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{w.channel}.Sanitize()); err != nil {
		conn.Release()
		return nil, fmt.Errorf("failed to listen on %s: %w", w.channel, err)
	}

	out := make(chan []byte)

	go func() {
		defer close(out)
		// The connection is LISTENing; close it rather than return it to the pool.
		defer func() {
			_ = conn.Conn().Close(context.Background()) //nolint:errcheck // connection discarded
			conn.Release()
		}()

		var last []byte
		emit := func() bool {
			value, err := w.fetch(ctx)
			if err != nil || value == nil || bytes.Equal(value, last) {
				return ctx.Err() == nil
			}
			last = value
			select {
			case out <- value:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !emit() {
			return
		}

		for {
			n, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				continue
			}
			if n.Payload != w.key {
				continue
			}
			if !emit() {
				return
			}
		}
	}()

	return out, nil
}

// fetch reads the value column. A missing row yields nil, nil.
func (w *Watcher) fetch(ctx context.Context) ([]byte, error) {
	query := fmt.Sprintf("SELECT value FROM %s WHERE key = $1", pgx.Identifier{w.table}.Sanitize())

	var value []byte
	err := w.pool.QueryRow(ctx, query, w.key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return value, err
}
