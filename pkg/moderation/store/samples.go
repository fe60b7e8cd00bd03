package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Label classifies a sample.
type Label string

const (
	LabelPass      Label = "pass"
	LabelViolation Label = "violation"
)

// Sample is one labeled unit of moderated text.
type Sample struct {
	ID        string
	Profile   string
	Text      string
	Label     Label
	Score     float64
	Source    string
	CreatedAt time.Time
}

// SampleStoreConfig configures the sample database.
type SampleStoreConfig struct {
	// Path is the database file path.
	Path string

	// Pool bounds concurrent access.
	Pool PoolConfig

	// BusyTimeout is the SQLite lock wait. Default: 5 seconds.
	BusyTimeout time.Duration
}

// SampleStore persists labeled samples and serves bounded random draws for
// training. Sampling happens server side; the full sample set for a profile
// is never materialized in process memory.
type SampleStore struct {
	pool   *ConnPool
	logger *slog.Logger
}

// NewSampleStore opens the sample database through the registry and
// initializes the schema.
func NewSampleStore(registry *PoolRegistry, config SampleStoreConfig) (*SampleStore, error) {
	if config.BusyTimeout <= 0 {
		config.BusyTimeout = 5 * time.Second
	}

	pool, err := registry.Pool("sqlite3", config.Path)
	if err != nil {
		return nil, err
	}

	s := &SampleStore{
		pool:   pool,
		logger: slog.Default().With("component", "store.samples"),
	}
	if err := s.initialize(config.BusyTimeout); err != nil {
		return nil, err
	}

	s.logger.Info("sample store initialized", "path", config.Path)
	return s, nil
}

func (s *SampleStore) initialize(busyTimeout time.Duration) error {
	ctx := context.Background()
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Release(conn)

	stmts := []string{
		"PRAGMA journal_mode=WAL;",
		fmt.Sprintf("PRAGMA busy_timeout=%d;", busyTimeout.Milliseconds()),
		sampleSchema,
	}
	for _, stmt := range stmts {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: initialize sample schema: %w", err)
		}
	}
	if _, err := conn.ExecContext(ctx, insertSchemaVersion, SchemaVersion); err != nil {
		return fmt.Errorf("store: record schema version: %w", err)
	}

	var version int
	if err := conn.QueryRowContext(ctx, getSchemaVersion).Scan(&version); err != nil {
		return fmt.Errorf("store: read schema version: %w", err)
	}
	if version != SchemaVersion {
		return fmt.Errorf("store: sample schema version %d, want %d", version, SchemaVersion)
	}
	return nil
}

// Record inserts one labeled sample. A missing ID or timestamp is filled in.
func (s *SampleStore) Record(ctx context.Context, sample *Sample) error {
	if sample.ID == "" {
		sample.ID = uuid.NewString()
	}
	if sample.CreatedAt.IsZero() {
		sample.CreatedAt = time.Now().UTC()
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Release(conn)

	_, err = conn.ExecContext(ctx, `
		INSERT INTO samples (id, profile, text, label, score, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sample.ID, sample.Profile, sample.Text, string(sample.Label),
		sample.Score, sample.Source, sample.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: record sample: %w", err)
	}
	return nil
}

// Sample draws up to limit random samples for a profile. The draw is bounded
// and random on the server side regardless of how many rows the profile has.
func (s *SampleStore) Sample(ctx context.Context, profile string, limit int) ([]Sample, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Release(conn)

	rows, err := conn.QueryContext(ctx, `
		SELECT id, profile, text, label, score, source, created_at
		FROM samples
		WHERE profile = ?
		ORDER BY RANDOM()
		LIMIT ?`,
		profile, limit)
	if err != nil {
		return nil, fmt.Errorf("store: sample draw: %w", err)
	}
	defer rows.Close()

	return scanSamples(rows)
}

// SampleByLabel draws up to limit random samples of one label for a profile.
func (s *SampleStore) SampleByLabel(ctx context.Context, profile string, label Label, limit int) ([]Sample, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Release(conn)

	rows, err := conn.QueryContext(ctx, `
		SELECT id, profile, text, label, score, source, created_at
		FROM samples
		WHERE profile = ? AND label = ?
		ORDER BY RANDOM()
		LIMIT ?`,
		profile, string(label), limit)
	if err != nil {
		return nil, fmt.Errorf("store: draw for %q: %w", label, err)
	}
	defer rows.Close()

	return scanSamples(rows)
}

// SampleBalanced draws up to perLabel random samples for each label, so
// training sees a balanced set even when one class dominates the table.
func (s *SampleStore) SampleBalanced(ctx context.Context, profile string, perLabel int) ([]Sample, error) {
	var out []Sample
	for _, label := range []Label{LabelPass, LabelViolation} {
		batch, err := s.SampleByLabel(ctx, profile, label, perLabel)
		if err != nil {
			return nil, fmt.Errorf("store: balanced draw: %w", err)
		}
		out = append(out, batch...)
	}
	return out, nil
}

// CountByLabel reports per-label sample counts for a profile.
func (s *SampleStore) CountByLabel(ctx context.Context, profile string) (map[Label]int, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Release(conn)

	rows, err := conn.QueryContext(ctx, `
		SELECT label, COUNT(*) FROM samples WHERE profile = ? GROUP BY label`,
		profile)
	if err != nil {
		return nil, fmt.Errorf("store: count samples: %w", err)
	}
	defer rows.Close()

	counts := make(map[Label]int)
	for rows.Next() {
		var label string
		var n int
		if err := rows.Scan(&label, &n); err != nil {
			return nil, fmt.Errorf("store: scan count: %w", err)
		}
		counts[Label(label)] = n
	}
	return counts, rows.Err()
}

// Profiles lists every profile with at least one sample.
func (s *SampleStore) Profiles(ctx context.Context) ([]string, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Release(conn)

	rows, err := conn.QueryContext(ctx, `SELECT DISTINCT profile FROM samples ORDER BY profile`)
	if err != nil {
		return nil, fmt.Errorf("store: list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("store: scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// LatestSampleAt returns the creation time of the newest sample for a
// profile, or the zero time when none exist.
func (s *SampleStore) LatestSampleAt(ctx context.Context, profile string) (time.Time, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return time.Time{}, err
	}
	defer s.pool.Release(conn)

	var latest sql.NullTime
	err = conn.QueryRowContext(ctx, `
		SELECT MAX(created_at) FROM samples WHERE profile = ?`, profile).Scan(&latest)
	if err != nil {
		return time.Time{}, fmt.Errorf("store: latest sample time: %w", err)
	}
	if !latest.Valid {
		return time.Time{}, nil
	}
	return latest.Time, nil
}

// Prune deletes the oldest samples of a profile past keep rows per label,
// keeping storage bounded under continuous recording. Returns rows deleted.
func (s *SampleStore) Prune(ctx context.Context, profile string, keep int) (int64, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer s.pool.Release(conn)

	var total int64
	for _, label := range []Label{LabelPass, LabelViolation} {
		result, err := conn.ExecContext(ctx, `
			DELETE FROM samples
			WHERE profile = ? AND label = ? AND id NOT IN (
				SELECT id FROM samples
				WHERE profile = ? AND label = ?
				ORDER BY created_at DESC
				LIMIT ?
			)`,
			profile, string(label), profile, string(label), keep)
		if err != nil {
			return total, fmt.Errorf("store: prune %q samples: %w", label, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("store: prune rows affected: %w", err)
		}
		total += n
	}
	if total > 0 {
		s.logger.Info("pruned samples", "profile", profile, "deleted", total, "keep_per_label", keep)
	}
	return total, nil
}

func scanSamples(rows *sql.Rows) ([]Sample, error) {
	var out []Sample
	for rows.Next() {
		var sm Sample
		var label string
		if err := rows.Scan(&sm.ID, &sm.Profile, &sm.Text, &label, &sm.Score, &sm.Source, &sm.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan sample: %w", err)
		}
		sm.Label = Label(label)
		out = append(out, sm)
	}
	return out, rows.Err()
}
