package diaglog

import (
	"os"
	"sync"
)

// rollingWriter appends to path and, when the next write would pass maxSize,
// moves the current file to path.1 and starts a fresh one. At most two
// generations are kept.
type rollingWriter struct {
	path    string
	maxSize int64

	mu   sync.Mutex
	f    *os.File
	size int64
}

func openAppend(path string) (*os.File, int64, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, err
	}
	return f, info.Size(), nil
}

func newRollingWriter(path string, maxSize int64) (*rollingWriter, error) {
	f, size, err := openAppend(path)
	if err != nil {
		return nil, err
	}
	return &rollingWriter{path: path, maxSize: maxSize, f: f, size: size}, nil
}

// rotatedPath is where the previous generation of path lives.
func rotatedPath(path string) string { return path + ".1" }

func (rw *rollingWriter) rotate() error {
	if err := rw.f.Close(); err != nil {
		return err
	}
	if err := os.Rename(rw.path, rotatedPath(rw.path)); err != nil && !os.IsNotExist(err) {
		return err
	}
	f, size, err := openAppend(rw.path)
	if err != nil {
		return err
	}
	rw.f, rw.size = f, size
	return nil
}

func (rw *rollingWriter) Write(p []byte) (int, error) {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.size > 0 && rw.size+int64(len(p)) > rw.maxSize {
		if err := rw.rotate(); err != nil {
			return 0, err
		}
	}

	n, err := rw.f.Write(p)
	rw.size += int64(n)
	if err != nil {
		return n, err
	}
	_ = rw.f.Sync()
	return n, nil
}

func (rw *rollingWriter) close() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	_ = rw.f.Sync()
	return rw.f.Close()
}
