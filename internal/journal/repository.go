package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/nerrad567/shadowsync/internal/shadow"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// DeltaEntry is one applied delta.
type DeltaEntry struct {
	ID        int64           `json:"id"`
	Thing     string          `json:"thing"`
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	AppliedAt time.Time       `json:"applied_at"`
}

// Repository stores and queries journal rows.
//
// Implementations must be safe for concurrent use and store UTC timestamps.
type Repository interface {
	// RecordDelta stores an applied delta value.
	RecordDelta(ctx context.Context, thing string, sample shadow.Sample, at time.Time) error

	// RecordAck stores the outcome of a report.
	RecordAck(ctx context.Context, thing string, status shadow.AckStatus, at time.Time) error

	// LatestValues returns the most recent value per key for thing,
	// ordered by key.
	LatestValues(ctx context.Context, thing string) ([]DeltaEntry, error)

	// DeltaHistory returns recent deltas, newest first. An empty key
	// matches every key.
	DeltaHistory(ctx context.Context, thing, key string, limit int) ([]DeltaEntry, error)

	// AckCounts returns the number of acks per status name.
	AckCounts(ctx context.Context, thing string) (map[string]int, error)

	// Prune deletes rows older than olderThan and returns how many were removed.
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

// SQLiteRepository implements Repository on the journal schema.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a repository on an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// RecordDelta inserts a delta_log row. The value is stored as JSON.
func (r *SQLiteRepository) RecordDelta(ctx context.Context, thing string, sample shadow.Sample, at time.Time) error {
	if thing == "" || sample.Key == "" {
		return fmt.Errorf("thing and key are required")
	}
	value, err := json.Marshal(sample.Value)
	if err != nil {
		return fmt.Errorf("marshalling %s value: %w", sample.Key, err)
	}

	_, err = r.db.ExecContext(ctx,
		"INSERT INTO delta_log (thing, key, value, applied_at) VALUES (?, ?, ?, ?)",
		thing, sample.Key, string(value), formatTime(at),
	)
	if err != nil {
		return fmt.Errorf("inserting delta: %w", err)
	}
	return nil
}

// RecordAck inserts an ack_log row.
func (r *SQLiteRepository) RecordAck(ctx context.Context, thing string, status shadow.AckStatus, at time.Time) error {
	if thing == "" {
		return fmt.Errorf("thing is required")
	}
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO ack_log (thing, status, received_at) VALUES (?, ?, ?)",
		thing, status.String(), formatTime(at),
	)
	if err != nil {
		return fmt.Errorf("inserting ack: %w", err)
	}
	return nil
}

// LatestValues returns the last applied value of each key.
func (r *SQLiteRepository) LatestValues(ctx context.Context, thing string) ([]DeltaEntry, error) {
	return r.queryDeltas(ctx,
		`SELECT id, thing, key, value, applied_at
		 FROM delta_log
		 WHERE id IN (SELECT MAX(id) FROM delta_log WHERE thing = ? GROUP BY key)
		 ORDER BY key`,
		thing,
	)
}

// DeltaHistory returns up to limit deltas (default 50, max 500), newest first.
func (r *SQLiteRepository) DeltaHistory(ctx context.Context, thing, key string, limit int) ([]DeltaEntry, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	limit = min(limit, maxHistoryLimit)

	if key == "" {
		return r.queryDeltas(ctx,
			`SELECT id, thing, key, value, applied_at FROM delta_log
			 WHERE thing = ? ORDER BY id DESC LIMIT ?`,
			thing, limit,
		)
	}
	return r.queryDeltas(ctx,
		`SELECT id, thing, key, value, applied_at FROM delta_log
		 WHERE thing = ? AND key = ? ORDER BY id DESC LIMIT ?`,
		thing, key, limit,
	)
}

// AckCounts groups ack_log rows by status.
func (r *SQLiteRepository) AckCounts(ctx context.Context, thing string) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT status, COUNT(*) FROM ack_log WHERE thing = ? GROUP BY status", thing)
	if err != nil {
		return nil, fmt.Errorf("querying ack counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning ack count: %w", err)
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating ack counts: %w", err)
	}
	return counts, nil
}

// Prune deletes delta and ack rows older than olderThan.
func (r *SQLiteRepository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}
	cutoff := formatTime(r.now().Add(-olderThan))

	var total int64
	for _, stmt := range []string{
		"DELETE FROM delta_log WHERE applied_at < ?",
		"DELETE FROM ack_log WHERE received_at < ?",
	} {
		res, err := r.db.ExecContext(ctx, stmt, cutoff)
		if err != nil {
			return total, fmt.Errorf("pruning journal: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("checking rows affected: %w", err)
		}
		total += n
	}
	return total, nil
}

func (r *SQLiteRepository) queryDeltas(ctx context.Context, query string, args ...any) ([]DeltaEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying deltas: %w", err)
	}
	defer rows.Close()

	var entries []DeltaEntry
	for rows.Next() {
		var e DeltaEntry
		var value, appliedAt string
		if err := rows.Scan(&e.ID, &e.Thing, &e.Key, &value, &appliedAt); err != nil {
			return nil, fmt.Errorf("scanning delta: %w", err)
		}
		e.Value = json.RawMessage(value)
		if e.AppliedAt, err = time.Parse(time.RFC3339Nano, appliedAt); err != nil {
			return nil, fmt.Errorf("parsing applied_at: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating deltas: %w", err)
	}
	return entries, nil
}

// formatTime renders t in UTC with a fixed width so text comparison orders
// rows chronologically.
func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
}
