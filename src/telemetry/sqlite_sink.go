package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"www.github.com/Wanderer0074348/RoastRouter/src/models"
)

// SQLiteSink keeps routing log entries in a local SQLite file for audit and
// cost analytics.
type SQLiteSink struct {
	db *sql.DB
}

// ModelSummary aggregates one user's calls to one model.
type ModelSummary struct {
	UserID       string
	ModelID      string
	Requests     int64
	InputTokens  int64
	OutputTokens int64
	CachedTokens int64
	CostUSD      float64
	Failures     int64
}

const createRoutingLog = `
CREATE TABLE IF NOT EXISTS routing_log (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	intent TEXT NOT NULL,
	model_id TEXT NOT NULL,
	input_tokens INTEGER NOT NULL,
	output_tokens INTEGER NOT NULL,
	cached_tokens INTEGER NOT NULL,
	cost_usd REAL NOT NULL,
	latency_ms INTEGER NOT NULL,
	degraded INTEGER NOT NULL DEFAULT 0,
	classifier_source TEXT NOT NULL DEFAULT '',
	confidence REAL NOT NULL DEFAULT 0,
	success INTEGER NOT NULL DEFAULT 1,
	error_kind TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_routing_log_user_time ON routing_log(user_id, created_at);
`

// NewSQLiteSink opens the database and runs auto-migration.
func NewSQLiteSink(dbPath string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open routing log db: %w", err)
	}

	if _, err := db.Exec(createRoutingLog); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate routing log db: %w", err)
	}

	return &SQLiteSink{db: db}, nil
}

func (s *SQLiteSink) Write(ctx context.Context, entry *models.RoutingLogEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO routing_log (id, user_id, intent, model_id, input_tokens, output_tokens, cached_tokens,
			cost_usd, latency_ms, degraded, classifier_source, confidence, success, error_kind, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.UserID, string(entry.Intent), entry.ModelID,
		entry.InputTokens, entry.OutputTokens, entry.CachedTokens,
		entry.CostUSD, entry.LatencyMs, entry.Degraded, string(entry.ClassifierSource),
		entry.Confidence, entry.Success, entry.ErrorKind, entry.Timestamp.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert routing log: %w", err)
	}
	return nil
}

// Summary aggregates entries since the given time per user and model,
// optionally filtered by user.
func (s *SQLiteSink) Summary(ctx context.Context, userID string, since time.Time) ([]ModelSummary, error) {
	query := `SELECT user_id, model_id, COUNT(*), SUM(input_tokens), SUM(output_tokens), SUM(cached_tokens),
		SUM(cost_usd), SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END)
		FROM routing_log WHERE created_at >= ?`
	args := []any{since.UnixMilli()}
	if userID != "" {
		query += ` AND user_id = ?`
		args = append(args, userID)
	}
	query += ` GROUP BY user_id, model_id ORDER BY user_id, model_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("summarize routing log: %w", err)
	}
	defer rows.Close()

	var summaries []ModelSummary
	for rows.Next() {
		var m ModelSummary
		if err := rows.Scan(&m.UserID, &m.ModelID, &m.Requests, &m.InputTokens, &m.OutputTokens,
			&m.CachedTokens, &m.CostUSD, &m.Failures); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		summaries = append(summaries, m)
	}
	return summaries, rows.Err()
}

func (s *SQLiteSink) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
