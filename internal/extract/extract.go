// Package extract cuts per-chunk media slices for every configured track.
// Each (chunk, track) pair succeeds or fails on its own; one bad slice never
// stops the others.
package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tiroq/qacut/internal/diaglog"
	"github.com/tiroq/qacut/internal/fileutil"
	"github.com/tiroq/qacut/internal/segment"
)

// Track names a media stream.
type Track string

const (
	TrackVideo    Track = "video"
	TrackAudio    Track = "audio"
	TrackSubtitle Track = "subtitle"
)

// Tracks lists all tracks in output order.
var Tracks = []Track{TrackVideo, TrackAudio, TrackSubtitle}

func (t Track) rank() int {
	for i, tr := range Tracks {
		if tr == t {
			return i
		}
	}
	return len(Tracks)
}

// Status of one slice.
type Status string

const (
	StatusOK     Status = "ok"
	StatusFailed Status = "failed"
)

// Request asks a slicer to cut [Start, End) of Source into Output.
type Request struct {
	ChunkID string
	Track   Track
	Source  string
	Start   float64
	End     float64
	Output  string
}

// Slicer cuts one slice. It must write to req.Output only.
type Slicer interface {
	Slice(ctx context.Context, req Request) error
}

// TrackResult is the outcome for one (chunk, track) pair. Path is the final
// output file and is set only when Status is ok.
type TrackResult struct {
	ChunkID string
	Track   Track
	Status  Status
	Path    string
	Skipped bool // output already existed
	Err     error
}

// Extractor runs slicers for every chunk and enabled track.
type Extractor struct {
	OutDir      string
	Sources     map[Track]string // a track without a source is disabled
	Slicers     map[Track]Slicer
	Concurrency int
	Timeout     time.Duration // per slice; zero means none
	Logger      *diaglog.Logger
	RunID       string
}

// Enabled returns the tracks that have both a source and a slicer, in
// output order.
func (x *Extractor) Enabled() []Track {
	var out []Track
	for _, t := range Tracks {
		if x.Sources[t] != "" && x.Slicers[t] != nil {
			out = append(out, t)
		}
	}
	return out
}

// OutputPath returns where the slice for chunkID and track is stored.
func (x *Extractor) OutputPath(chunkID string, track Track) string {
	ext := strings.ToLower(filepath.Ext(x.Sources[track]))
	return filepath.Join(x.OutDir, fmt.Sprintf("%s_%s%s", chunkID, track, ext))
}

// Extract slices every chunk for every enabled track and returns one result
// per pair sorted by chunk id and track order. It never returns early: a
// cancelled context marks the remaining pairs failed.
func (x *Extractor) Extract(ctx context.Context, chunks []segment.Chunk) []TrackResult {
	tracks := x.Enabled()
	if len(chunks) == 0 || len(tracks) == 0 {
		return nil
	}

	results := make([]TrackResult, len(chunks)*len(tracks))
	limit := x.Concurrency
	if limit < 1 {
		limit = 1
	}

	var g errgroup.Group
	g.SetLimit(limit)
	for i, c := range chunks {
		for j, tr := range tracks {
			i, j, c, tr := i, j, c, tr
			g.Go(func() error {
				results[i*len(tracks)+j] = x.slice(ctx, c, tr)
				return nil
			})
		}
	}
	_ = g.Wait()

	sort.SliceStable(results, func(a, b int) bool {
		if results[a].ChunkID != results[b].ChunkID {
			return segment.LessID(results[a].ChunkID, results[b].ChunkID)
		}
		return results[a].Track.rank() < results[b].Track.rank()
	})
	return results
}

func (x *Extractor) slice(ctx context.Context, c segment.Chunk, tr Track) TrackResult {
	res := TrackResult{ChunkID: c.ID, Track: tr}
	fail := func(err error) TrackResult {
		res.Status = StatusFailed
		res.Err = err
		x.log(diaglog.LogEntry{
			Event:   diaglog.EventSliceFailed,
			ChunkID: c.ID,
			Reason:  err.Error(),
			Payload: map[string]interface{}{"track": string(tr)},
		})
		return res
	}

	if err := ctx.Err(); err != nil {
		return fail(fmt.Errorf("cancelled: %w", err))
	}

	out := x.OutputPath(c.ID, tr)
	if fileutil.NonEmpty(out) {
		x.log(diaglog.LogEntry{Event: diaglog.EventSliceSkip, ChunkID: c.ID, Payload: map[string]interface{}{"track": string(tr), "path": out}})
		res.Status = StatusOK
		res.Path = out
		res.Skipped = true
		return res
	}

	src := x.Sources[tr]
	if _, err := os.Stat(src); err != nil {
		return fail(fmt.Errorf("source unavailable: %w", err))
	}
	if err := os.MkdirAll(x.OutDir, 0755); err != nil {
		return fail(fmt.Errorf("failed to create output directory: %w", err))
	}

	ext := filepath.Ext(out)
	tmp := filepath.Join(x.OutDir, "."+strings.TrimSuffix(filepath.Base(out), ext)+".partial"+ext)
	_ = os.Remove(tmp)
	defer os.Remove(tmp)

	sctx := ctx
	if x.Timeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, x.Timeout)
		defer cancel()
	}

	x.log(diaglog.LogEntry{
		Event:   diaglog.EventSliceStart,
		ChunkID: c.ID,
		Payload: map[string]interface{}{"track": string(tr), "start": c.Start, "end": c.End},
	})
	started := time.Now()
	err := x.Slicers[tr].Slice(sctx, Request{
		ChunkID: c.ID,
		Track:   tr,
		Source:  src,
		Start:   c.Start,
		End:     c.End,
		Output:  tmp,
	})
	if err != nil {
		if errors.Is(sctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return fail(fmt.Errorf("timed out after %s: %w", x.Timeout, err))
		}
		return fail(err)
	}
	if !fileutil.NonEmpty(tmp) {
		return fail(errors.New("slicer produced an empty output"))
	}
	if err := os.Rename(tmp, out); err != nil {
		return fail(fmt.Errorf("failed to move slice into place: %w", err))
	}

	x.log(diaglog.LogEntry{
		Event:   diaglog.EventSliceDone,
		ChunkID: c.ID,
		Payload: map[string]interface{}{"track": string(tr), "path": out, "elapsed_ms": time.Since(started).Milliseconds()},
	})
	res.Status = StatusOK
	res.Path = out
	return res
}

func (x *Extractor) log(entry diaglog.LogEntry) {
	entry.Component = diaglog.ComponentExtractor
	entry.RunID = x.RunID
	x.Logger.Log(entry)
}
