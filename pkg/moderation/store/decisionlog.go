package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// DecisionRecord is one appended moderation decision.
type DecisionRecord struct {
	ID          string
	RequestID   string
	Profile     string
	Verdict     string
	Score       float64
	ModelAbsent bool
	Uncertain   bool
	Sampled     bool
	DecidedAt   time.Time
}

// DecisionQuery filters Tail reads of the decision log.
type DecisionQuery struct {
	Profile string
	Verdict string
	Since   time.Time
	Limit   int
}

// DecisionLog is the append-only decision trail, kept in its own database
// so audit reads never contend with sample writes. It runs on the pure-Go
// sqlite driver and needs no cgo.
type DecisionLog struct {
	pool   *ConnPool
	logger *slog.Logger
}

// NewDecisionLog opens the decision database and initializes its schema.
func NewDecisionLog(registry *PoolRegistry, path string) (*DecisionLog, error) {
	pool, err := registry.Pool("sqlite", path)
	if err != nil {
		return nil, err
	}

	l := &DecisionLog{
		pool:   pool,
		logger: slog.Default().With("component", "store.decisions"),
	}
	if err := l.initialize(); err != nil {
		return nil, err
	}

	l.logger.Info("decision log initialized", "path", path)
	return l, nil
}

func (l *DecisionLog) initialize() error {
	ctx := context.Background()
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer l.pool.Release(conn)

	stmts := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=5000;",
		decisionSchema,
	}
	for _, stmt := range stmts {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: initialize decision schema: %w", err)
		}
	}
	if _, err := conn.ExecContext(ctx, insertSchemaVersion, SchemaVersion); err != nil {
		return fmt.Errorf("store: record schema version: %w", err)
	}
	return nil
}

// Append writes one decision. A missing ID or timestamp is filled in.
func (l *DecisionLog) Append(ctx context.Context, rec *DecisionRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.DecidedAt.IsZero() {
		rec.DecidedAt = time.Now().UTC()
	}

	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer l.pool.Release(conn)

	_, err = conn.ExecContext(ctx, `
		INSERT INTO decisions (id, request_id, profile, verdict, score, model_absent, uncertain, sampled, decided_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.RequestID, rec.Profile, rec.Verdict, rec.Score,
		boolToInt(rec.ModelAbsent), boolToInt(rec.Uncertain), boolToInt(rec.Sampled),
		rec.DecidedAt)
	if err != nil {
		return fmt.Errorf("store: append decision: %w", err)
	}
	return nil
}

// Tail returns the newest decisions matching the query, most recent first.
func (l *DecisionLog) Tail(ctx context.Context, q DecisionQuery) ([]DecisionRecord, error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer l.pool.Release(conn)

	query := `SELECT id, request_id, profile, verdict, score, model_absent, uncertain, sampled, decided_at FROM decisions`
	var conditions []string
	var args []any

	if q.Profile != "" {
		conditions = append(conditions, "profile = ?")
		args = append(args, q.Profile)
	}
	if q.Verdict != "" {
		conditions = append(conditions, "verdict = ?")
		args = append(args, q.Verdict)
	}
	if !q.Since.IsZero() {
		conditions = append(conditions, "decided_at >= ?")
		args = append(args, q.Since)
	}
	for i, cond := range conditions {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}

	limit := 100
	if q.Limit > 0 {
		limit = q.Limit
	}
	query += " ORDER BY decided_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: tail decisions: %w", err)
	}
	defer rows.Close()

	var out []DecisionRecord
	for rows.Next() {
		var rec DecisionRecord
		var modelAbsent, uncertain, sampled int
		if err := rows.Scan(&rec.ID, &rec.RequestID, &rec.Profile, &rec.Verdict, &rec.Score,
			&modelAbsent, &uncertain, &sampled, &rec.DecidedAt); err != nil {
			return nil, fmt.Errorf("store: scan decision: %w", err)
		}
		rec.ModelAbsent = modelAbsent != 0
		rec.Uncertain = uncertain != 0
		rec.Sampled = sampled != 0
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Count reports how many decisions match the query's filters.
func (l *DecisionLog) Count(ctx context.Context, q DecisionQuery) (int64, error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer l.pool.Release(conn)

	query := `SELECT COUNT(*) FROM decisions WHERE 1=1`
	var args []any
	if q.Profile != "" {
		query += " AND profile = ?"
		args = append(args, q.Profile)
	}
	if q.Verdict != "" {
		query += " AND verdict = ?"
		args = append(args, q.Verdict)
	}
	if !q.Since.IsZero() {
		query += " AND decided_at >= ?"
		args = append(args, q.Since)
	}

	var count int64
	if err := conn.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("store: count decisions: %w", err)
	}
	return count, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
