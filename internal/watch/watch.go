// Package watch turns an inbox directory into a stream of recordings to
// process. Each transcript dropped into the inbox, together with media files
// sharing its name, becomes one Job.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tiroq/qacut/internal/diaglog"
	"github.com/tiroq/qacut/internal/fileutil"
)

// Extensions recognised per role, in order of preference.
var (
	TranscriptExts = []string{".vtt", ".srt", ".json"}
	VideoExts      = []string{".mp4", ".mov", ".mkv"}
	AudioExts      = []string{".m4a", ".wav", ".mp3"}
)

// Job is one recording found in the inbox.
type Job struct {
	Name       string // shared file stem
	Transcript string
	Video      string
	Audio      string
	Subtitle   string // the transcript itself when it is a subtitle file
	stamp      time.Time
}

// Scan lists the jobs in dir sorted by name. Hidden files are ignored.
func Scan(dir string) ([]Job, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read inbox: %w", err)
	}

	files := map[string]map[string]os.FileInfo{} // stem -> ext -> info
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		ext := strings.ToLower(filepath.Ext(name))
		stem := fileutil.Stem(name)
		if files[stem] == nil {
			files[stem] = map[string]os.FileInfo{}
		}
		files[stem][ext] = info
	}

	var jobs []Job
	for stem, byExt := range files {
		job := Job{Name: stem}
		pick := func(exts []string) string {
			for _, ext := range exts {
				if info, ok := byExt[ext]; ok {
					if info.ModTime().After(job.stamp) {
						job.stamp = info.ModTime()
					}
					return filepath.Join(dir, info.Name())
				}
			}
			return ""
		}
		job.Transcript = pick(TranscriptExts)
		if job.Transcript == "" {
			continue
		}
		job.Video = pick(VideoExts)
		job.Audio = pick(AudioExts)
		if ext := strings.ToLower(filepath.Ext(job.Transcript)); ext == ".vtt" || ext == ".srt" {
			job.Subtitle = job.Transcript
		}
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Name < jobs[j].Name })
	return jobs, nil
}

// Handler processes one job. It is called from the watcher goroutine, one
// job at a time.
type Handler func(ctx context.Context, job Job)

// Watcher reports each job once per change of its files.
type Watcher struct {
	Dir          string
	PollInterval time.Duration // defaults to 2s
	Settle       time.Duration // files must be unchanged this long
	Logger       *diaglog.Logger

	// Errorf receives non-fatal problems; nil discards them.
	Errorf func(format string, args ...interface{})

	done map[string]time.Time
}

// Run watches until ctx is done. fsnotify events trigger a rescan after the
// settle delay; a polling ticker covers filesystems without notifications.
func (w *Watcher) Run(ctx context.Context, handle Handler) error {
	if err := os.MkdirAll(w.Dir, 0755); err != nil {
		return fmt.Errorf("create inbox: %w", err)
	}
	if w.done == nil {
		w.done = map[string]time.Time{}
	}
	poll := w.PollInterval
	if poll <= 0 {
		poll = 2 * time.Second
	}

	var events <-chan fsnotify.Event
	var errs <-chan error
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.errorf("fsnotify not available, falling back to polling: %v", err)
	} else {
		defer fw.Close()
		if err := fw.Add(w.Dir); err != nil {
			w.errorf("failed to watch inbox, falling back to polling: %v", err)
		} else {
			events, errs = fw.Events, fw.Errors
		}
	}

	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	settle := time.NewTimer(0)
	defer settle.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-events:
			if !ok {
				w.errorf("fsnotify watcher closed, switching to polling")
				events = nil
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				settle.Reset(w.Settle + 10*time.Millisecond)
			}

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.errorf("file watcher error: %v", err)

		case <-settle.C:
			w.scan(ctx, handle)

		case <-ticker.C:
			w.scan(ctx, handle)
		}
	}
}

func (w *Watcher) scan(ctx context.Context, handle Handler) {
	jobs, err := Scan(w.Dir)
	if err != nil {
		w.errorf("%v", err)
		return
	}
	for _, job := range jobs {
		if ctx.Err() != nil {
			return
		}
		if last, ok := w.done[job.Transcript]; ok && !job.stamp.After(last) {
			continue
		}
		if time.Since(job.stamp) < w.Settle {
			continue
		}
		w.done[job.Transcript] = job.stamp
		w.Logger.Log(diaglog.LogEntry{
			Component: diaglog.ComponentWatcher,
			Event:     diaglog.EventInboxDetected,
			Payload: map[string]interface{}{
				"name":       job.Name,
				"transcript": job.Transcript,
				"video":      job.Video,
				"audio":      job.Audio,
			},
		})
		handle(ctx, job)
	}
}

func (w *Watcher) errorf(format string, args ...interface{}) {
	if w.Errorf != nil {
		w.Errorf(format, args...)
	}
}
