package pidfile

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func readFile(t *testing.T, path string) int {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read PID file: %v", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		t.Fatalf("Invalid PID in file: %q", data)
	}
	return pid
}

func TestAcquire(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "watch.pid")

	l, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer l.Release()

	if got := readFile(t, path); got != os.Getpid() {
		t.Errorf("PID mismatch: got %d, want %d", got, os.Getpid())
	}
	if l.Path() != path {
		t.Errorf("Path() = %q", l.Path())
	}
}

func TestAcquire_SameProcessIsReentrant(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watch.pid")
	l1, err := Acquire(path)
	if err != nil {
		t.Fatal(err)
	}
	defer l1.Release()
	if _, err := Acquire(path); err != nil {
		t.Errorf("re-acquire by the same process failed: %v", err)
	}
}

func TestAcquire_HeldByLiveProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watch.pid")
	// PID 1 is always alive.
	if err := os.WriteFile(path, []byte("1\n"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := Acquire(path)
	if !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	if !strings.Contains(err.Error(), "PID 1") {
		t.Errorf("error should name the owner: %v", err)
	}
}

func TestAcquire_StaleFileTakenOver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watch.pid")
	if err := os.WriteFile(path, []byte("99999999\n"), 0644); err != nil {
		t.Fatal(err)
	}

	l, err := Acquire(path)
	if err != nil {
		t.Fatalf("stale lock not taken over: %v", err)
	}
	defer l.Release()
	if got := readFile(t, path); got != os.Getpid() {
		t.Errorf("PID after takeover = %d", got)
	}
}

func TestRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watch.pid")
	l, err := Acquire(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Release(); err != nil {
		t.Errorf("Release: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("PID file still exists after release")
	}
	var nilLock *Lock
	if err := nilLock.Release(); err != nil {
		t.Errorf("nil release: %v", err)
	}
}

func TestRelease_OnlyOwnPID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watch.pid")
	l, err := Acquire(path)
	if err != nil {
		t.Fatal(err)
	}
	other := os.Getpid() + 1
	if err := os.WriteFile(path, []byte(strconv.Itoa(other)+"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	l.Release()

	if got := readFile(t, path); got != other {
		t.Errorf("PID file changed: got %d, want %d", got, other)
	}
}

func TestOwner(t *testing.T) {
	dir := t.TempDir()
	if _, ok := Owner(filepath.Join(dir, "missing.pid")); ok {
		t.Error("missing file has no owner")
	}
	path := filepath.Join(dir, "self.pid")
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0644); err != nil {
		t.Fatal(err)
	}
	if pid, ok := Owner(path); !ok || pid != os.Getpid() {
		t.Errorf("Owner = %d, %v", pid, ok)
	}
}

func TestPathFor(t *testing.T) {
	t.Setenv("HOME", "/home/test")
	a := PathFor("/data/inbox")
	b := PathFor("/other/inbox")

	if !strings.HasPrefix(a, "/home/test/.cache/qacut/watch-inbox-") || !strings.HasSuffix(a, ".pid") {
		t.Errorf("PathFor = %q", a)
	}
	if a == b {
		t.Error("different inboxes must not share a lock")
	}
	if a != PathFor("/data/inbox/") {
		t.Error("trailing slash should not matter")
	}
}
