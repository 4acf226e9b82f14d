// Package segment turns a cue stream into answer chunks. A Policy decides
// what each cue does; the Segmenter owns chunk creation and guarantees that
// chunks never overlap and start in strictly increasing order.
package segment

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/tiroq/qacut/internal/diaglog"
	"github.com/tiroq/qacut/internal/transcript"
)

// Chunk is one finalized answer span. It is never modified after Run
// returns it.
type Chunk struct {
	ID         string
	QuestionID string // empty when no question is attached
	Start      float64
	End        float64
	Text       string
	Speaker    string
	Score      *float64
}

// Duration returns End - Start.
func (c Chunk) Duration() float64 { return c.End - c.Start }

// Action is what a Policy wants done with a cue.
type Action int

const (
	// Skip ignores the cue.
	Skip Action = iota
	// Extend appends the cue to the open chunk.
	Extend
	// Open closes any open chunk and starts a new one with the cue.
	Open
	// Arm closes any open chunk and attaches QuestionID to the next opened
	// chunk.
	Arm
)

func (a Action) String() string {
	switch a {
	case Extend:
		return "extend"
	case Open:
		return "open"
	case Arm:
		return "arm"
	default:
		return "skip"
	}
}

// Decision is a Policy's verdict for one cue.
type Decision struct {
	Action     Action
	QuestionID string  // Arm only
	Score      float64 // Arm only
	Warning    string  // recorded as a match warning when set
	Orphaned   bool    // Skip of target speech with nothing to attach to
}

// State is the segmenter state visible to a Policy.
type State struct {
	Open        bool
	OpenStart   float64 // media time the open chunk started
	OpenEnd     float64
	Armed       bool
	PrevSpeaker string // speaker of the previous cue, "" before the first
}

// Policy decides chunk boundaries.
type Policy interface {
	Name() string
	Decide(ctx context.Context, cue transcript.Cue, st State) (Decision, error)
}

// Recorder receives non-fatal match warnings. *errlog.Log satisfies it.
type Recorder interface {
	MatchWarning(chunkID string, offset float64, msg string)
}

// Segmenter drives a Policy over a cue stream.
type Segmenter struct {
	Policy   Policy
	Recorder Recorder        // optional
	Logger   *diaglog.Logger // optional
	RunID    string
}

// New returns a Segmenter for p.
func New(p Policy, rec Recorder, logger *diaglog.Logger) *Segmenter {
	return &Segmenter{Policy: p, Recorder: rec, Logger: logger}
}

type builder struct {
	chunk Chunk
	texts []string
}

func (b *builder) add(c transcript.Cue) {
	if c.End > b.chunk.End {
		b.chunk.End = c.End
	}
	b.texts = append(b.texts, c.Text)
}

func (b *builder) finish() Chunk {
	c := b.chunk
	c.Text = strings.Join(b.texts, "\n")
	return c
}

type armed struct {
	questionID string
	score      float64
	at         float64 // start of the matching question cue
	carried    bool    // carry-over already reported
}

// Run segments cues, which should be sorted by start; unsorted input is
// stable-sorted first. An empty stream yields no chunks. Only context
// cancellation or a policy error aborts the run.
func (s *Segmenter) Run(ctx context.Context, cues []transcript.Cue) ([]Chunk, error) {
	if !sort.SliceIsSorted(cues, func(i, j int) bool { return cues[i].Start < cues[j].Start }) {
		sorted := append([]transcript.Cue(nil), cues...)
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })
		cues = sorted
	}

	var (
		done    []builder
		cur     *builder
		pending *armed
		prevSpk string
		nextID  = 1
	)

	closeCur := func() {
		if cur == nil {
			return
		}
		s.log(diaglog.LogEntry{
			Event:   diaglog.EventChunkClose,
			ChunkID: cur.chunk.ID,
			Payload: map[string]interface{}{"start": cur.chunk.Start, "end": cur.chunk.End, "cues": len(cur.texts)},
		})
		done = append(done, *cur)
		cur = nil
	}

	for _, cue := range cues {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		st := State{Armed: pending != nil, PrevSpeaker: prevSpk}
		if cur != nil {
			st.Open = true
			st.OpenStart = cur.chunk.Start
			st.OpenEnd = cur.chunk.End
		}

		d, err := s.Policy.Decide(ctx, cue, st)
		if err != nil {
			return nil, fmt.Errorf("segment: %s policy: %w", s.Policy.Name(), err)
		}
		prevSpk = cue.Speaker

		if d.Warning != "" {
			chunkID := ""
			if cur != nil {
				chunkID = cur.chunk.ID
			}
			s.warn(chunkID, cue.Start, d.Warning)
		}

		switch d.Action {
		case Skip:
			if d.Orphaned {
				s.log(diaglog.LogEntry{
					Event:   diaglog.EventOrphanedSpeech,
					Payload: map[string]interface{}{"start": cue.Start, "end": cue.End, "speaker": cue.Speaker},
				})
			}

		case Arm:
			closeCur()
			if pending != nil {
				s.warn("", pending.at, fmt.Sprintf("question %s at %.3f superseded by %s before any answer",
					pending.questionID, pending.at, d.QuestionID))
			}
			pending = &armed{questionID: d.QuestionID, score: d.Score, at: cue.Start}
			s.log(diaglog.LogEntry{
				Event:   diaglog.EventQuestionMatch,
				Payload: map[string]interface{}{"question_id": d.QuestionID, "score": d.Score, "start": cue.Start},
			})

		case Extend:
			if cur != nil {
				cur.add(cue)
				continue
			}
			fallthrough

		case Open:
			prev := cur
			if prev == nil && len(done) > 0 {
				prev = &done[len(done)-1]
			}
			if prev != nil && cue.Start < prev.chunk.End {
				// An answer to a new question always gets its own chunk; the
				// previous chunk is clamped to end where the answer starts.
				if pending != nil && cur == nil && cue.Start > prev.chunk.Start {
					s.log(diaglog.LogEntry{
						Event:   diaglog.EventChunkClamp,
						ChunkID: prev.chunk.ID,
						Payload: map[string]interface{}{"end": prev.chunk.End, "clamped_to": cue.Start},
					})
					prev.chunk.End = cue.Start
				} else {
					// Otherwise a cue overlapping the previous chunk extends
					// it rather than starting an overlapping chunk.
					if cur == nil {
						last := done[len(done)-1]
						done = done[:len(done)-1]
						cur = &last
					}
					if pending != nil && !pending.carried {
						pending.carried = true
						s.warn(cur.chunk.ID, cue.Start, fmt.Sprintf("question %s at %.3f carried over: answer starts with chunk %s",
							pending.questionID, pending.at, cur.chunk.ID))
					}
					cur.add(cue)
					continue
				}
			}

			closeCur()
			cur = &builder{chunk: Chunk{
				ID:      FormatID(nextID),
				Start:   cue.Start,
				End:     cue.End,
				Speaker: cue.Speaker,
			}}
			nextID++
			if pending != nil {
				cur.chunk.QuestionID = pending.questionID
				score := pending.score
				cur.chunk.Score = &score
				pending = nil
			}
			cur.texts = append(cur.texts, cue.Text)
			s.log(diaglog.LogEntry{
				Event:   diaglog.EventChunkOpen,
				ChunkID: cur.chunk.ID,
				Payload: map[string]interface{}{"start": cue.Start, "question_id": cur.chunk.QuestionID},
			})
		}
	}
	closeCur()
	if pending != nil {
		s.warn("", pending.at, fmt.Sprintf("question %s at %.3f has no answer", pending.questionID, pending.at))
	}

	chunks := make([]Chunk, len(done))
	for i := range done {
		chunks[i] = done[i].finish()
	}
	return chunks, nil
}

// warn records a match warning and mirrors it to the debug log.
func (s *Segmenter) warn(chunkID string, offset float64, msg string) {
	if s.Recorder != nil {
		s.Recorder.MatchWarning(chunkID, offset, msg)
	}
	s.log(diaglog.LogEntry{
		Event:   diaglog.EventQuestionMiss,
		ChunkID: chunkID,
		Reason:  msg,
		Payload: map[string]interface{}{"start": offset},
	})
}

func (s *Segmenter) log(entry diaglog.LogEntry) {
	if s.Logger == nil {
		return
	}
	entry.Component = diaglog.ComponentSegmenter
	entry.RunID = s.RunID
	s.Logger.Log(entry)
}
