package segment

import (
	"context"
	"fmt"
	"time"

	"github.com/tiroq/qacut/internal/embed"
	"github.com/tiroq/qacut/internal/match"
	"github.com/tiroq/qacut/internal/transcript"
)

// DefaultCap is the default soft duration cap for continuity chunks.
const DefaultCap = 30.0

// Continuity groups consecutive target-speaker runs. A new chunk starts when
// the speaker changes into Target or when adding the cue would stretch the
// open chunk past Cap seconds. The cap never splits a cue; Cap <= 0
// disables it.
type Continuity struct {
	Target string
	Cap    float64
}

// Name implements Policy.
func (p Continuity) Name() string { return "continuity" }

// Decide implements Policy.
func (p Continuity) Decide(ctx context.Context, cue transcript.Cue, st State) (Decision, error) {
	switch {
	case cue.Speaker != p.Target:
		return Decision{Action: Skip}, nil
	case !st.Open, st.PrevSpeaker != p.Target:
		return Decision{Action: Open}, nil
	case p.Cap > 0 && cue.End-st.OpenStart > p.Cap:
		return Decision{Action: Open}, nil
	default:
		return Decision{Action: Extend}, nil
	}
}

// Matcher is the subset of *match.Matcher the question policy needs.
type Matcher interface {
	Match(vec []float32) (match.Result, bool)
}

// QuestionMatch opens a chunk for the target speaker's answer after an
// interviewer cue matches a bank question. Cues from other speakers are
// embedded and matched; a miss is reported as a warning and leaves the open
// chunk alone.
type QuestionMatch struct {
	Target      string
	Interviewer string // when set, only this speaker is matched
	Embedder    embed.Embedder
	Matcher     Matcher
	Timeout     time.Duration // per embedding call; zero means none
}

// Name implements Policy.
func (p QuestionMatch) Name() string { return "question" }

// Decide implements Policy. Only cancellation of ctx is returned as an
// error; embedding failures become warnings.
func (p QuestionMatch) Decide(ctx context.Context, cue transcript.Cue, st State) (Decision, error) {
	if cue.Speaker == p.Target {
		switch {
		case st.Armed:
			return Decision{Action: Open}, nil
		case st.Open:
			return Decision{Action: Extend}, nil
		default:
			return Decision{Action: Skip, Orphaned: true}, nil
		}
	}
	if p.Interviewer != "" && cue.Speaker != p.Interviewer {
		return Decision{Action: Skip}, nil
	}

	embedCtx := ctx
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		embedCtx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	vec, err := p.Embedder.Embed(embedCtx, cue.Text)
	if err != nil {
		if ctx.Err() != nil {
			return Decision{}, ctx.Err()
		}
		return Decision{Action: Skip, Warning: fmt.Sprintf("embedding failed for %q: %v", clip(cue.Text, 60), err)}, nil
	}

	res, ok := p.Matcher.Match(vec)
	if !ok {
		msg := fmt.Sprintf("no question above threshold for %q", clip(cue.Text, 60))
		if res.QuestionID != "" {
			msg += fmt.Sprintf(" (best %s at %.2f)", res.QuestionID, res.Score)
		}
		return Decision{Action: Skip, Warning: msg}, nil
	}
	return Decision{Action: Arm, QuestionID: res.QuestionID, Score: res.Score}, nil
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
