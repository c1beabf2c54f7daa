// Package sqlite implements relay.KVHistory using pure-Go SQLite.
// Zero CGO required.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/relaydev/relay"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// HistoryOption configures a History.
type HistoryOption func(*History)

// WithLogger sets a structured logger for the store. When set, the store
// emits debug logs for every operation. If not set, no logs are emitted.
func WithLogger(l *slog.Logger) HistoryOption {
	return func(h *History) { h.logger = l }
}

// History implements relay.KVHistory backed by a local SQLite file.
type History struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ relay.KVHistory = (*History)(nil)

// nopLogger is a logger that discards all output.
var nopLogger = slog.New(slog.DiscardHandler)

// New creates a History using a local SQLite file at dbPath.
// It opens a single shared connection pool with SetMaxOpenConns(1) so
// that all goroutines serialize through one connection, eliminating
// SQLITE_BUSY errors caused by concurrent writers.
func New(dbPath string, opts ...HistoryOption) *History {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with
		// the blank import above that never happens.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	h := &History{db: db, logger: nopLogger}
	for _, o := range opts {
		o(h)
	}
	h.logger.Debug("sqlite: history opened", "path", dbPath)
	return h
}

// Init creates the messages table.
func (h *History) Init(ctx context.Context) error {
	_, err := h.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	_, err = h.db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at)`)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	return nil
}

// Append implements relay.KVHistory.
func (h *History) Append(ctx context.Context, sessionID string, m relay.Message) error {
	start := time.Now()
	_, err := h.db.ExecContext(ctx,
		`INSERT INTO messages (id, session_id, role, name, content, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		relay.NewID(), sessionID, m.Role, m.Name, m.Content, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	h.logger.Debug("sqlite: message appended",
		"session", sessionID, "role", m.Role, "took", time.Since(start))
	return nil
}

// History implements relay.KVHistory. limit <= 0 returns every turn.
func (h *History) History(ctx context.Context, sessionID string, limit int) ([]relay.Message, error) {
	query := `SELECT role, name, content FROM messages WHERE session_id = ? ORDER BY created_at ASC`
	args := []any{sessionID}
	if limit > 0 {
		// Keep the most recent turns but return them oldest-first.
		query = `SELECT role, name, content FROM (
			SELECT role, name, content, created_at FROM messages
			WHERE session_id = ? ORDER BY created_at DESC LIMIT ?
		) ORDER BY created_at ASC`
		args = append(args, limit)
	}
	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []relay.Message
	for rows.Next() {
		var m relay.Message
		if err := rows.Scan(&m.Role, &m.Name, &m.Content); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Close releases the underlying database handle.
func (h *History) Close() error {
	return h.db.Close()
}
