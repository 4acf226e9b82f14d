package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/tiroq/qacut/testutil"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestScan_PairsSiblings(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"b.vtt", "b.MP4", "b.wav",
		"a.json", "a.m4a",
		"c.mp4", // no transcript
		".hidden.vtt",
		"d.srt", "d.json", // srt preferred
	} {
		touch(t, filepath.Join(dir, name))
	}

	jobs, err := Scan(dir)
	testutil.AssertNoError(t, err, "scan")
	testutil.AssertEqual(t, 3, len(jobs), "jobs")

	a, b, d := jobs[0], jobs[1], jobs[2]
	testutil.AssertEqual(t, "a", a.Name, "sorted")
	testutil.AssertEqual(t, filepath.Join(dir, "a.m4a"), a.Audio, "audio sibling")
	testutil.AssertEqual(t, "", a.Subtitle, "json transcript is not a subtitle track")

	testutil.AssertEqual(t, filepath.Join(dir, "b.MP4"), b.Video, "original case kept")
	testutil.AssertEqual(t, filepath.Join(dir, "b.wav"), b.Audio, "wav audio")
	testutil.AssertEqual(t, b.Transcript, b.Subtitle, "vtt doubles as subtitle source")

	testutil.AssertEqual(t, filepath.Join(dir, "d.srt"), d.Transcript, "srt preferred over json")
}

func TestScan_MissingDir(t *testing.T) {
	_, err := Scan(filepath.Join(t.TempDir(), "nope"))
	testutil.AssertError(t, err, "missing inbox")
}

type collector struct {
	mu   sync.Mutex
	jobs []Job
}

func (c *collector) handle(ctx context.Context, job Job) {
	c.mu.Lock()
	c.jobs = append(c.jobs, job)
	c.mu.Unlock()
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.jobs)
}

func startWatcher(t *testing.T, dir string) *collector {
	t.Helper()
	c := &collector{}
	w := &Watcher{Dir: dir, PollInterval: 50 * time.Millisecond, Settle: 20 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx, c.handle)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return c
}

func TestWatcher_DetectsNewTranscript(t *testing.T) {
	dir := t.TempDir()
	c := startWatcher(t, dir)

	touch(t, filepath.Join(dir, "interview.mp4"))
	touch(t, filepath.Join(dir, "interview.vtt"))

	testutil.AssertEventually(t, func() bool { return c.count() == 1 }, 3*time.Second, 20*time.Millisecond, "job detected")
	c.mu.Lock()
	job := c.jobs[0]
	c.mu.Unlock()
	testutil.AssertEqual(t, "interview", job.Name, "name")
	testutil.AssertEqual(t, filepath.Join(dir, "interview.mp4"), job.Video, "video paired")
}

func TestWatcher_ProcessesEachChangeOnce(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "existing.srt"))
	c := startWatcher(t, dir)

	testutil.AssertEventually(t, func() bool { return c.count() == 1 }, 3*time.Second, 20*time.Millisecond, "existing file picked up")
	time.Sleep(200 * time.Millisecond)
	testutil.AssertEqual(t, 1, c.count(), "not reprocessed without changes")

	later := time.Now().Add(2 * time.Second)
	testutil.AssertNoError(t, os.Chtimes(filepath.Join(dir, "existing.srt"), later, later), "chtimes")
	testutil.AssertEventually(t, func() bool { return c.count() == 2 }, 5*time.Second, 20*time.Millisecond, "changed file reprocessed")
}

func TestWatcher_CreatesInboxAndStops(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "inbox")
	w := &Watcher{Dir: dir, PollInterval: 20 * time.Millisecond}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := w.Run(ctx, func(context.Context, Job) {})
	testutil.AssertNoError(t, err, "run returns nil on cancel")
	_, statErr := os.Stat(dir)
	testutil.AssertNoError(t, statErr, "inbox created")
}
