// Package postgres implements relay.KVHistory on PostgreSQL via pgx.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/relaydev/relay"
)

// HistoryOption configures a History.
type HistoryOption func(*History)

// WithLogger sets a structured logger for the store.
func WithLogger(l *slog.Logger) HistoryOption {
	return func(h *History) { h.logger = l }
}

// WithTable overrides the default "relay_messages" table name.
func WithTable(name string) HistoryOption {
	return func(h *History) { h.table = name }
}

// History implements relay.KVHistory on a PostgreSQL pool. The pool is
// owned by the caller; Close it there, not here.
type History struct {
	pool   *pgxpool.Pool
	table  string
	logger *slog.Logger
}

var _ relay.KVHistory = (*History)(nil)

var nopLogger = slog.New(slog.DiscardHandler)

// New wraps an existing pgx pool.
func New(pool *pgxpool.Pool, opts ...HistoryOption) *History {
	h := &History{pool: pool, table: "relay_messages", logger: nopLogger}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Init creates the messages table and its session index.
func (h *History) Init(ctx context.Context) error {
	_, err := h.pool.Exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, h.table))
	if err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	_, err = h.pool.Exec(ctx, fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS idx_%s_session ON %s (session_id, created_at)`,
		h.table, h.table))
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	return nil
}

// Append implements relay.KVHistory.
func (h *History) Append(ctx context.Context, sessionID string, m relay.Message) error {
	start := time.Now()
	_, err := h.pool.Exec(ctx, fmt.Sprintf(
		`INSERT INTO %s (id, session_id, role, name, content) VALUES ($1, $2, $3, $4, $5)`, h.table),
		relay.NewID(), sessionID, m.Role, m.Name, m.Content)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	h.logger.Debug("postgres: message appended",
		"session", sessionID, "role", m.Role, "took", time.Since(start))
	return nil
}

// History implements relay.KVHistory. limit <= 0 returns every turn.
func (h *History) History(ctx context.Context, sessionID string, limit int) ([]relay.Message, error) {
	query := fmt.Sprintf(
		`SELECT role, name, content FROM %s WHERE session_id = $1 ORDER BY created_at ASC`, h.table)
	args := []any{sessionID}
	if limit > 0 {
		query = fmt.Sprintf(`SELECT role, name, content FROM (
			SELECT role, name, content, created_at FROM %s
			WHERE session_id = $1 ORDER BY created_at DESC LIMIT $2
		) recent ORDER BY created_at ASC`, h.table)
		args = append(args, limit)
	}
	rows, err := h.pool.Query(ctx, query, args...)
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
