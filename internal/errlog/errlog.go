// Package errlog collects the per-run warnings and failures that are recovered
// locally (parse warnings, unmatched questions, track failures, artifact and
// sink write failures) and renders them as one deterministically ordered log.
package errlog

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tiroq/qacut/internal/fileutil"
	"github.com/tiroq/qacut/internal/segment"
)

// Kind classifies an entry.
type Kind string

const (
	KindParseWarning Kind = "parse_warning"
	KindMatchWarning Kind = "match_warning"
	KindTrackFailure Kind = "track_failure"
	KindIOFailure    Kind = "io_failure"
	KindSinkFailure  Kind = "sink_failure"
)

var kindRank = map[Kind]int{
	KindParseWarning: 0,
	KindMatchWarning: 1,
	KindTrackFailure: 2,
	KindIOFailure:    3,
	KindSinkFailure:  4,
}

var trackRank = map[string]int{"video": 0, "audio": 1, "subtitle": 2}

// Entry is one warning or failure record.
type Entry struct {
	Time     time.Time `json:"ts"`
	RunID    string    `json:"run_id,omitempty"`
	Kind     Kind      `json:"kind"`
	ChunkID  string    `json:"chunk_id,omitempty"`
	Track    string    `json:"track,omitempty"`
	Artifact string    `json:"artifact,omitempty"`
	Offset   *float64  `json:"offset,omitempty"` // media seconds, when known
	Message  string    `json:"message"`

	seq int
}

func (e Entry) String() string {
	where := e.ChunkID
	if e.Track != "" {
		where += "/" + e.Track
	}
	if e.Artifact != "" {
		where = e.Artifact
	}
	if where == "" {
		return fmt.Sprintf("[%s] %s: %s", e.Time.Format(time.RFC3339), e.Kind, e.Message)
	}
	return fmt.Sprintf("[%s] %s %s: %s", e.Time.Format(time.RFC3339), e.Kind, where, e.Message)
}

// Log is safe for concurrent use.
type Log struct {
	mu      sync.Mutex
	runID   string
	now     func() time.Time
	entries []Entry
	seq     int
}

// New returns an empty log whose entries are tagged with runID.
func New(runID string) *Log {
	return &Log{runID: runID, now: time.Now}
}

// SetClock replaces the timestamp source.
func (l *Log) SetClock(now func() time.Time) {
	l.mu.Lock()
	l.now = now
	l.mu.Unlock()
}

// Add records e, filling in the timestamp and run id when unset.
func (l *Log) Add(e Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e.Time.IsZero() {
		e.Time = l.now().UTC()
	}
	if e.RunID == "" {
		e.RunID = l.runID
	}
	l.seq++
	e.seq = l.seq
	l.entries = append(l.entries, e)
}

// ParseWarning records a skipped or adjusted cue.
func (l *Log) ParseWarning(offset *float64, msg string) {
	l.Add(Entry{Kind: KindParseWarning, Offset: offset, Message: msg})
}

// MatchWarning records an interviewer cue that matched no question. chunkID
// is the chunk open at the time, or empty.
func (l *Log) MatchWarning(chunkID string, offset float64, msg string) {
	o := offset
	l.Add(Entry{Kind: KindMatchWarning, ChunkID: chunkID, Offset: &o, Message: msg})
}

// TrackFailure records a failed slice for one chunk and track.
func (l *Log) TrackFailure(chunkID, track, msg string) {
	l.Add(Entry{Kind: KindTrackFailure, ChunkID: chunkID, Track: track, Message: msg})
}

// IOFailure records a failed artifact write.
func (l *Log) IOFailure(artifact string, err error) {
	l.Add(Entry{Kind: KindIOFailure, Artifact: artifact, Message: err.Error()})
}

// SinkFailure records a failed hand-off to a downstream sink.
func (l *Log) SinkFailure(sink string, err error) {
	l.Add(Entry{Kind: KindSinkFailure, Artifact: "sink:" + sink, Message: err.Error()})
}

// Len returns the number of recorded entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Count returns the number of entries of kind k.
func (l *Log) Count(k Kind) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e.Kind == k {
			n++
		}
	}
	return n
}

// Entries returns a sorted copy of the log. Entries without a chunk come
// first in record order; the rest are ordered by chunk id, kind, track and
// record order, so concurrent producers cannot change the result.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	l.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if (a.ChunkID == "") != (b.ChunkID == "") {
			return a.ChunkID == ""
		}
		if a.ChunkID == "" {
			return a.seq < b.seq
		}
		if a.ChunkID != b.ChunkID {
			return segment.LessID(a.ChunkID, b.ChunkID)
		}
		if kindRank[a.Kind] != kindRank[b.Kind] {
			return kindRank[a.Kind] < kindRank[b.Kind]
		}
		if a.Track != b.Track {
			return trackRank[a.Track] < trackRank[b.Track]
		}
		return a.seq < b.seq
	})
	return out
}

// Write persists the sorted log to path as a JSON array.
func (l *Log) Write(path string) error {
	return fileutil.WriteJSON(path, l.Entries())
}
