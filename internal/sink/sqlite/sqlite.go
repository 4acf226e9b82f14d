// Package sqlite keeps a local catalog of runs and their chunks.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tiroq/qacut/internal/sink"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id      TEXT PRIMARY KEY,
	source      TEXT NOT NULL,
	mode        TEXT NOT NULL,
	category    TEXT,
	out_dir     TEXT NOT NULL,
	created_at  REAL NOT NULL,
	error_count INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS chunks (
	run_id           TEXT NOT NULL REFERENCES runs(run_id),
	chunk_id         TEXT NOT NULL,
	question_id      TEXT,
	start_sec        REAL NOT NULL,
	end_sec          REAL NOT NULL,
	speaker          TEXT NOT NULL,
	similarity_score REAL,
	video            TEXT,
	audio            TEXT,
	subtitle         TEXT,
	PRIMARY KEY (run_id, chunk_id)
);
`

// Store is a SQLite-backed sink.
type Store struct {
	db *sql.DB
}

// Open opens or creates the catalog at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create catalog directory: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping catalog: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Name() string { return "sqlite" }

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Publish replaces any previous catalog rows for the run.
func (s *Store) Publish(ctx context.Context, m *sink.Manifest) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs (run_id, source, mode, category, out_dir, created_at, error_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, m.RunID, m.Source, m.Mode, nullString(m.Category), m.OutDir,
		float64(m.CreatedAt.UnixNano())/1e9, m.ErrorCount); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE run_id = ?`, m.RunID); err != nil {
		return fmt.Errorf("clear chunks: %w", err)
	}
	for _, c := range m.Chunks {
		var qid sql.NullString
		if c.QuestionID != nil {
			qid = sql.NullString{String: *c.QuestionID, Valid: true}
		}
		var score sql.NullFloat64
		if c.SimilarityScore != nil {
			score = sql.NullFloat64{Float64: *c.SimilarityScore, Valid: true}
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO chunks (run_id, chunk_id, question_id, start_sec, end_sec, speaker,
				similarity_score, video, audio, subtitle)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, m.RunID, c.ChunkID, qid, c.Start, c.End, c.SpeakerTag, score,
			nullString(c.VideoFile), nullString(c.AudioFile), nullString(c.SubtitleFile)); err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.ChunkID, err)
		}
	}
	return tx.Commit()
}

// Run is one catalog row.
type Run struct {
	RunID      string
	Source     string
	Mode       string
	Category   string
	OutDir     string
	CreatedAt  time.Time
	ErrorCount int
	Chunks     int
}

// Runs returns catalogued runs, newest first.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.run_id, r.source, r.mode, r.category, r.out_dir, r.created_at, r.error_count,
			(SELECT COUNT(*) FROM chunks c WHERE c.run_id = r.run_id)
		FROM runs r
		ORDER BY r.created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var category sql.NullString
		var createdAt float64
		if err := rows.Scan(&r.RunID, &r.Source, &r.Mode, &category, &r.OutDir,
			&createdAt, &r.ErrorCount, &r.Chunks); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Category = category.String
		r.CreatedAt = timeFromUnix(createdAt)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ChunksForQuestion returns "run_id/chunk_id" keys of chunks answering
// questionID across all runs.
func (s *Store) ChunksForQuestion(ctx context.Context, questionID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, chunk_id FROM chunks
		WHERE question_id = ?
		ORDER BY run_id, chunk_id
	`, questionID)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var run, chunk string
		if err := rows.Scan(&run, &chunk); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		keys = append(keys, run+"/"+chunk)
	}
	return keys, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func timeFromUnix(ts float64) time.Time {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}
