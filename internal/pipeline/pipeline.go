// Package pipeline runs one recording end to end: parse, segment, render,
// extract, index and hand off.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/tiroq/qacut/internal/artifact"
	"github.com/tiroq/qacut/internal/config"
	"github.com/tiroq/qacut/internal/diaglog"
	"github.com/tiroq/qacut/internal/embed"
	"github.com/tiroq/qacut/internal/errlog"
	"github.com/tiroq/qacut/internal/extract"
	"github.com/tiroq/qacut/internal/index"
	"github.com/tiroq/qacut/internal/match"
	"github.com/tiroq/qacut/internal/question"
	"github.com/tiroq/qacut/internal/segment"
	"github.com/tiroq/qacut/internal/sink"
	"github.com/tiroq/qacut/internal/transcript"
)

// Input names the files of one recording.
type Input struct {
	Transcript string
	Video      string
	Audio      string
	Subtitle   string
	OutDir     string
}

// Sources returns the media sources keyed by track.
func (in Input) Sources() map[extract.Track]string {
	src := map[extract.Track]string{}
	if in.Video != "" {
		src[extract.TrackVideo] = in.Video
	}
	if in.Audio != "" {
		src[extract.TrackAudio] = in.Audio
	}
	if in.Subtitle != "" {
		src[extract.TrackSubtitle] = in.Subtitle
	}
	return src
}

// Report summarises a completed run.
type Report struct {
	RunID        string
	OutDir       string
	Chunks       int
	TracksOK     int
	TracksFailed int
	Warnings     int // total error log entries
	ByKind       map[errlog.Kind]int
	Written      []string // artifact paths written this run
	Missing      []string // artifacts that could not be written
	Elapsed      time.Duration
}

// Runner holds everything that stays fixed across runs.
type Runner struct {
	Config   *config.Config
	Embedder embed.Embedder // required in question mode and for vectors
	Slicers  map[extract.Track]extract.Slicer
	Sinks    []sink.Sink
	Tokens   artifact.TokenCounter // optional
	Logger   *diaglog.Logger

	// NewRunID and Now are replaced in tests.
	NewRunID func() string
	Now      func() time.Time
}

func (r *Runner) runID() string {
	if r.NewRunID != nil {
		return r.NewRunID()
	}
	return uuid.NewString()
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Run processes in. It returns an error only for configuration problems,
// an unreadable transcript, cancellation before any output, or when
// neither the markdown nor the metadata file could be written; in that case
// index.json is not written and no sink is notified. Everything else is
// recorded in errors.json and counted in the report.
func (r *Runner) Run(ctx context.Context, in Input) (*Report, error) {
	cfg := r.Config
	if cfg == nil {
		return nil, config.Errorf("", "no configuration")
	}
	if in.OutDir == "" {
		return nil, config.Errorf("out", "output directory is required")
	}

	started := r.now()
	runID := r.runID()
	elog := errlog.New(runID)
	elog.SetClock(r.now)
	rep := &Report{RunID: runID, OutDir: in.OutDir, ByKind: map[errlog.Kind]int{}}

	r.log(diaglog.LogEntry{
		Event: diaglog.EventRunStart,
		RunID: runID,
		Payload: map[string]interface{}{
			"transcript": in.Transcript,
			"mode":       cfg.Mode,
			"category":   cfg.Questions.Category,
			"out_dir":    in.OutDir,
		},
	})

	policy, bank, err := r.policy(ctx, runID)
	if err != nil {
		return nil, err
	}

	parsed, err := transcript.ParseFile(in.Transcript)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	for _, w := range parsed.Warnings {
		elog.ParseWarning(w.Start, fmt.Sprintf("cue %d: %s", w.Index, w.Message))
	}
	r.log(diaglog.LogEntry{
		Component: diaglog.ComponentParser,
		Event:     diaglog.EventCuesParsed,
		RunID:     runID,
		Payload:   map[string]interface{}{"cues": len(parsed.Cues), "warnings": len(parsed.Warnings)},
	})

	seg := segment.New(policy, elog, r.Logger)
	seg.RunID = runID
	chunks, err := seg.Run(ctx, parsed.Cues)
	if err != nil {
		return nil, fmt.Errorf("pipeline: segmentation: %w", err)
	}
	rep.Chunks = len(chunks)

	if err := os.MkdirAll(in.OutDir, 0755); err != nil {
		return nil, fmt.Errorf("pipeline: failed to create output directory: %w", err)
	}

	builder := artifact.Builder{Bank: bank, Tokens: r.Tokens}
	blocks := make([]string, 0, len(chunks))
	records := make([]artifact.Record, 0, len(chunks))
	for _, c := range chunks {
		a := builder.Build(c)
		blocks = append(blocks, a.Markdown)
		records = append(records, a.Record)
	}

	mdOK := r.write(rep, elog, filepath.Join(in.OutDir, artifact.MarkdownFile), func(p string) error {
		return artifact.WriteMarkdown(p, blocks)
	})
	metaOK := r.write(rep, elog, filepath.Join(in.OutDir, artifact.MetadataFile), func(p string) error {
		return artifact.WriteMetadata(p, records)
	})
	if cfg.Output.Vectors {
		vectors := r.vectors(ctx, chunks, elog)
		r.write(rep, elog, filepath.Join(in.OutDir, artifact.VectorsFile), func(p string) error {
			return artifact.WriteVectors(p, vectors)
		})
	}

	x := &extract.Extractor{
		OutDir:      in.OutDir,
		Sources:     in.Sources(),
		Slicers:     r.Slicers,
		Concurrency: cfg.Extract.Concurrency,
		Timeout:     time.Duration(cfg.Extract.TimeoutSeconds) * time.Second,
		Logger:      r.Logger,
		RunID:       runID,
	}
	results := x.Extract(ctx, chunks)
	for _, res := range results {
		if res.Status == extract.StatusOK {
			rep.TracksOK++
		} else {
			rep.TracksFailed++
		}
	}

	entries := index.Assemble(in.OutDir, records, results, elog)
	indexPath := filepath.Join(in.OutDir, index.IndexFile)
	if mdOK || metaOK {
		r.write(rep, elog, indexPath, func(p string) error {
			return index.Write(p, entries)
		})
		r.publish(ctx, &sink.Manifest{
			RunID:      runID,
			Source:     in.Transcript,
			Mode:       cfg.Mode,
			Category:   categoryOf(bank),
			OutDir:     in.OutDir,
			CreatedAt:  started.UTC(),
			ErrorCount: elog.Len(),
			Chunks:     entries,
		}, elog)
	} else {
		// An index over chunks with no textual artifact would point at nothing.
		rep.Missing = append(rep.Missing, indexPath)
		r.log(diaglog.LogEntry{
			Event:   diaglog.EventArtifactFailed,
			RunID:   runID,
			Reason:  "skipped: no textual output",
			Payload: map[string]interface{}{"path": indexPath},
		})
	}

	// errors.json is written last so it reflects every other step.
	errPath := filepath.Join(in.OutDir, index.ErrorsFile)
	if err := index.WriteErrors(errPath, elog); err != nil {
		rep.Missing = append(rep.Missing, errPath)
		r.log(diaglog.LogEntry{Event: diaglog.EventArtifactFailed, RunID: runID, Reason: err.Error(), Payload: map[string]interface{}{"path": errPath}})
	} else {
		rep.Written = append(rep.Written, errPath)
	}

	rep.Warnings = elog.Len()
	for _, k := range []errlog.Kind{errlog.KindParseWarning, errlog.KindMatchWarning, errlog.KindTrackFailure, errlog.KindIOFailure, errlog.KindSinkFailure} {
		if n := elog.Count(k); n > 0 {
			rep.ByKind[k] = n
		}
	}
	rep.Elapsed = r.now().Sub(started)

	r.log(diaglog.LogEntry{
		Event: diaglog.EventRunFinish,
		RunID: runID,
		Payload: map[string]interface{}{
			"chunks":        rep.Chunks,
			"tracks_ok":     rep.TracksOK,
			"tracks_failed": rep.TracksFailed,
			"warnings":      rep.Warnings,
			"elapsed_ms":    rep.Elapsed.Milliseconds(),
		},
	})

	if !mdOK && !metaOK {
		return rep, errors.New("pipeline: no textual output could be written")
	}
	return rep, nil
}

// policy builds the segmentation policy. In question mode the bank is
// loaded first so configuration problems abort before any processing.
func (r *Runner) policy(ctx context.Context, runID string) (segment.Policy, *question.Bank, error) {
	cfg := r.Config
	if cfg.Mode != config.ModeQuestion {
		return segment.Continuity{Target: cfg.TargetSpeaker, Cap: cfg.MaxChunkSeconds}, nil, nil
	}
	if r.Embedder == nil {
		return nil, nil, config.Errorf("embedding.backend", "question mode requires an embedding backend")
	}

	timeout := time.Duration(cfg.Embedding.TimeoutSeconds) * time.Second
	src := question.DirSource{Dir: cfg.Questions.Dir, CoreFile: cfg.Questions.CoreFile, Allowed: cfg.Questions.Categories}
	bank, err := question.Load(ctx, src, cfg.Questions.Category, embed.WithTimeout(r.Embedder, timeout))
	if err != nil {
		return nil, nil, err
	}
	r.log(diaglog.LogEntry{
		Component: diaglog.ComponentQuestions,
		Event:     diaglog.EventBankLoaded,
		RunID:     runID,
		Payload:   map[string]interface{}{"category": bank.Category(), "questions": bank.Len(), "dim": bank.Dim()},
	})

	return segment.QuestionMatch{
		Target:      cfg.TargetSpeaker,
		Interviewer: cfg.Interviewer,
		Embedder:    r.Embedder,
		Matcher:     match.New(bank, cfg.Matching.ThresholdFor(cfg.Questions.Category)),
		Timeout:     timeout,
	}, bank, nil
}

// vectors embeds each chunk's text. Chunks whose embedding fails are left
// out and reported.
func (r *Runner) vectors(ctx context.Context, chunks []segment.Chunk, elog *errlog.Log) map[string][]float32 {
	out := make(map[string][]float32, len(chunks))
	if r.Embedder == nil {
		elog.Add(errlog.Entry{Kind: errlog.KindIOFailure, Artifact: artifact.VectorsFile, Message: "no embedding backend configured"})
		return out
	}
	emb := embed.WithTimeout(r.Embedder, time.Duration(r.Config.Embedding.TimeoutSeconds)*time.Second)
	for _, c := range chunks {
		if ctx.Err() != nil {
			break
		}
		vec, err := emb.Embed(ctx, c.Text)
		if err != nil {
			elog.MatchWarning(c.ID, c.Start, fmt.Sprintf("chunk embedding failed: %v", err))
			continue
		}
		if n := embed.Normalize(vec); n != nil {
			out[c.ID] = n
		}
	}
	return out
}

// write runs fn for path and records the outcome. A failure is an
// io_failure for that artifact only.
func (r *Runner) write(rep *Report, elog *errlog.Log, path string, fn func(string) error) bool {
	if err := fn(path); err != nil {
		elog.IOFailure(filepath.Base(path), err)
		rep.Missing = append(rep.Missing, path)
		r.log(diaglog.LogEntry{Event: diaglog.EventArtifactFailed, RunID: rep.RunID, Reason: err.Error(), Payload: map[string]interface{}{"path": path}})
		return false
	}
	rep.Written = append(rep.Written, path)
	r.log(diaglog.LogEntry{Event: diaglog.EventArtifactWritten, RunID: rep.RunID, Payload: map[string]interface{}{"path": path}})
	return true
}

func (r *Runner) publish(ctx context.Context, m *sink.Manifest, elog *errlog.Log) {
	for _, s := range r.Sinks {
		if err := s.Publish(ctx, m); err != nil {
			elog.SinkFailure(s.Name(), err)
			r.log(diaglog.LogEntry{Component: diaglog.ComponentSink, Event: diaglog.EventSinkFailed, RunID: m.RunID, Reason: err.Error(), Payload: map[string]interface{}{"sink": s.Name()}})
			continue
		}
		r.log(diaglog.LogEntry{Component: diaglog.ComponentSink, Event: diaglog.EventSinkPublished, RunID: m.RunID, Payload: map[string]interface{}{"sink": s.Name(), "chunks": len(m.Chunks)}})
	}
}

func categoryOf(b *question.Bank) string {
	if b == nil {
		return ""
	}
	return b.Category()
}

func (r *Runner) log(entry diaglog.LogEntry) {
	if entry.Component == "" {
		entry.Component = diaglog.ComponentPipeline
	}
	r.Logger.Log(entry)
}
