// Package cassandra writes chunk index rows to a Cassandra table so
// downstream services can look chunks up by run or question.
package cassandra

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gocql/gocql"

	"github.com/tiroq/qacut/internal/sink"
)

// Table is the target table. Expected schema:
//
//	CREATE TABLE qacut_chunks (
//	    run_id text, chunk_id text, question_id text, source text,
//	    start_sec double, end_sec double, speaker text, similarity double,
//	    video text, audio text, subtitle text, created_at timestamp,
//	    PRIMARY KEY (run_id, chunk_id));
const Table = "qacut_chunks"

// Config describes the cluster.
type Config struct {
	Hosts    []string
	Keyspace string
	Timeout  time.Duration // defaults to 10s
}

// Sink connects on first publish and reuses the session afterwards.
type Sink struct {
	cfg     Config
	mu      sync.Mutex
	session *gocql.Session
}

// New returns a sink for cfg. No connection is made until Publish.
func New(cfg Config) *Sink {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Sink{cfg: cfg}
}

func (s *Sink) Name() string { return "cassandra" }

func (s *Sink) connect() (*gocql.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil {
		return s.session, nil
	}
	cluster := gocql.NewCluster(s.cfg.Hosts...)
	cluster.Keyspace = s.cfg.Keyspace
	cluster.Consistency = gocql.Quorum
	cluster.Timeout = s.cfg.Timeout
	cluster.ConnectTimeout = s.cfg.Timeout

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Cassandra: %w", err)
	}
	s.session = session
	return session, nil
}

// Row is one insert's bind values, in column order.
type Row []interface{}

const insertQuery = `
	INSERT INTO ` + Table + ` (
		run_id, chunk_id, question_id, source, start_sec, end_sec,
		speaker, similarity, video, audio, subtitle, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

// Rows maps a manifest to insert bind values. Missing question ids and
// scores bind as null.
func Rows(m *sink.Manifest) []Row {
	rows := make([]Row, 0, len(m.Chunks))
	for _, c := range m.Chunks {
		var qid, score interface{}
		if c.QuestionID != nil {
			qid = *c.QuestionID
		}
		if c.SimilarityScore != nil {
			score = *c.SimilarityScore
		}
		rows = append(rows, Row{
			m.RunID, c.ChunkID, qid, m.Source, c.Start, c.End,
			c.SpeakerTag, score, c.VideoFile, c.AudioFile, c.SubtitleFile, m.CreatedAt,
		})
	}
	return rows
}

// Publish inserts one row per chunk. Inserts are upserts, so republishing a
// run is safe.
func (s *Sink) Publish(ctx context.Context, m *sink.Manifest) error {
	session, err := s.connect()
	if err != nil {
		return err
	}
	for i, row := range Rows(m) {
		if err := session.Query(insertQuery, row...).WithContext(ctx).Exec(); err != nil {
			return fmt.Errorf("insert %s: %w", m.Chunks[i].ChunkID, err)
		}
	}
	return nil
}

// Close closes the session if one was opened.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil {
		s.session.Close()
		s.session = nil
	}
	return nil
}
