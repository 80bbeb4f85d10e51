package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/andresmejia3/jetstreamer/internal/types"
	"github.com/jackc/pgx/v5"
)

// Store mirrors recording runs and their frame records into PostgreSQL.
type Store struct {
	conn *pgx.Conn
}

// Run is one invocation of the recorder.
type Run struct {
	ID           string
	BaseFilename string
	StartedAt    time.Time
	Config       json.RawMessage
	Frames       int
}

// New establishes a connection to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			base_filename TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			config JSONB NOT NULL DEFAULT '{}'
		);
		CREATE TABLE IF NOT EXISTS frames (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			fnum BIGINT NOT NULL,
			captured_at DOUBLE PRECISION NOT NULL,
			image_path TEXT NOT NULL,
			metadata JSONB NOT NULL,
			PRIMARY KEY (run_id, fnum)
		);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) {
	s.conn.Close(ctx)
}

// CreateRun registers a run. Registering the same id again replaces its frames.
func (s *Store) CreateRun(ctx context.Context, run Run) error {
	cfg := run.Config
	if len(cfg) == 0 {
		cfg = json.RawMessage("{}")
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM frames WHERE run_id = $1", run.ID); err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO runs (id, base_filename, started_at, config)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET base_filename = EXCLUDED.base_filename,
			started_at = EXCLUDED.started_at, config = EXCLUDED.config
	`, run.ID, run.BaseFilename, run.StartedAt, string(cfg))
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// InsertFrame saves one written frame of a run.
func (s *Store) InsertFrame(ctx context.Context, runID string, rec types.FrameRecord) error {
	_, err := s.conn.Exec(ctx, `
		INSERT INTO frames (run_id, fnum, captured_at, image_path, metadata)
		VALUES ($1, $2, $3, $4, $5)
	`, runID, int64(rec.Fnum), rec.Timestamp, rec.ImagePath, string(rec.Metadata))
	return err
}

// Recorder binds the store to one run so the sink can mirror frames into it.
func (s *Store) Recorder(runID string) *Recorder {
	return &Recorder{store: s, runID: runID}
}

// Recorder inserts frames for a single run.
type Recorder struct {
	store *Store
	runID string
}

func (r *Recorder) InsertFrame(ctx context.Context, rec types.FrameRecord) error {
	return r.store.InsertFrame(ctx, r.runID, rec)
}

// ListRuns returns every run, newest first, with its frame count.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT r.id, r.base_filename, r.started_at, r.config::text, COUNT(f.fnum)
		FROM runs r
		LEFT JOIN frames f ON f.run_id = r.id
		GROUP BY r.id
		ORDER BY r.started_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var cfg string
		if err := rows.Scan(&r.ID, &r.BaseFilename, &r.StartedAt, &cfg, &r.Frames); err != nil {
			return nil, err
		}
		r.Config = json.RawMessage(cfg)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// CountFrames returns how many frames were mirrored for a run.
func (s *Store) CountFrames(ctx context.Context, runID string) (int, error) {
	var n int
	err := s.conn.QueryRow(ctx, "SELECT COUNT(*) FROM frames WHERE run_id = $1", runID).Scan(&n)
	return n, err
}

// Reset drops all application tables to clear the database state.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, `
		DROP TABLE IF EXISTS frames CASCADE;
		DROP TABLE IF EXISTS runs CASCADE;
	`)
	return err
}
