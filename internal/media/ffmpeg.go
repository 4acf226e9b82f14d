// Package media provides the slicers used by the extractor: ffmpeg stream
// copy for audio and video, and a native cutter for subtitle tracks.
package media

import (
	"context"
	"fmt"
	"strconv"

	"github.com/tiroq/qacut/internal/extract"
	"github.com/tiroq/qacut/internal/subproc"
)

// FFmpeg cuts audio and video by stream copy. Cuts land on the nearest
// keyframe at or before Start.
type FFmpeg struct {
	Path string // defaults to "ffmpeg"
}

// Slice runs ffmpeg for req. The extractor's context deadline kills the
// whole process group.
func (f FFmpeg) Slice(ctx context.Context, req extract.Request) error {
	if req.End <= req.Start {
		return fmt.Errorf("ffmpeg: empty window %.3f-%.3f", req.Start, req.End)
	}
	bin := f.Path
	if bin == "" {
		bin = "ffmpeg"
	}
	_, err := subproc.Run(ctx, subproc.Command{Path: bin, Args: Args(req)})
	if err != nil {
		return fmt.Errorf("ffmpeg: %w", err)
	}
	return nil
}

// Args returns the ffmpeg argument list for req.
func Args(req extract.Request) []string {
	return []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-ss", seconds(req.Start),
		"-t", seconds(req.End - req.Start),
		"-i", req.Source,
		"-c", "copy",
		"-avoid_negative_ts", "make_zero",
		req.Output,
	}
}

func seconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}
