package diaglog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/tiroq/qacut/internal/fileutil"
)

// Version is set by the main package.
var Version = "dev"

// DiagBundle is the header line of an exported bundle.
type DiagBundle struct {
	ExportedAt   string         `json:"exported_at"`
	QacutVersion string         `json:"qacut_version"`
	GoVersion    string         `json:"go_version"`
	OS           string         `json:"os"`
	Arch         string         `json:"arch"`
	LogFiles     []string       `json:"log_files"`
	RunID        string         `json:"run_id,omitempty"` // filter applied, if any
	Runs         []string       `json:"runs"`             // run ids seen in the exported entries
	Components   map[string]int `json:"components"`       // entries per component
	EntryCount   int            `json:"entry_count"`
}

// ExportOptions narrows an export.
type ExportOptions struct {
	// RunID keeps only entries of one pipeline run.
	RunID string
}

type entryKey struct {
	Component string `json:"component"`
	RunID     string `json:"run_id"`
}

// Export writes dest/qacut-diag-<ts>.ndjson: a DiagBundle header followed by
// the log entries, oldest generation first. It returns the bundle path and
// the number of entries included.
func Export(logPath, dest string, opts ExportOptions) (path string, entries int, err error) {
	sources := []string{}
	if _, err := os.Stat(rotatedPath(logPath)); err == nil {
		sources = append(sources, rotatedPath(logPath))
	}
	if _, err := os.Stat(logPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", 0, fmt.Errorf("log file not found at %s: %w", logPath, os.ErrNotExist)
		}
		return "", 0, fmt.Errorf("log file unreadable: %w", err)
	}
	sources = append(sources, logPath)

	bundle := DiagBundle{
		ExportedAt:   time.Now().UTC().Format(time.RFC3339),
		QacutVersion: Version,
		GoVersion:    runtime.Version(),
		OS:           runtime.GOOS,
		Arch:         runtime.GOARCH,
		LogFiles:     sources,
		RunID:        opts.RunID,
		Runs:         []string{},
		Components:   map[string]int{},
	}

	var body bytes.Buffer
	runs := map[string]bool{}
	for _, src := range sources {
		err := scanLines(src, func(line []byte) {
			var key entryKey
			// Lines that are not JSON objects are kept only in an unfiltered export.
			if json.Unmarshal(line, &key) != nil {
				if opts.RunID != "" {
					return
				}
				key = entryKey{Component: "unparsed"}
			}
			if opts.RunID != "" && key.RunID != opts.RunID {
				return
			}
			if key.RunID != "" && !runs[key.RunID] {
				runs[key.RunID] = true
				bundle.Runs = append(bundle.Runs, key.RunID)
			}
			bundle.Components[key.Component]++
			bundle.EntryCount++
			body.Write(line)
			body.WriteByte('\n')
		})
		if err != nil {
			return "", 0, err
		}
	}
	sort.Strings(bundle.Runs)

	header, err := json.Marshal(bundle)
	if err != nil {
		return "", 0, err
	}
	out := append(header, '\n')
	out = append(out, body.Bytes()...)

	path = filepath.Join(dest, "qacut-diag-"+time.Now().UTC().Format("20060102T150405")+".ndjson")
	if err := fileutil.WriteFile(path, out); err != nil {
		return "", 0, fmt.Errorf("output file could not be created: %w", err)
	}
	return path, bundle.EntryCount, nil
}

func scanLines(path string, fn func([]byte)) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("log file unreadable: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		if line := bytes.TrimSpace(scanner.Bytes()); len(line) > 0 {
			fn(line)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("log file unreadable: %w", err)
	}
	return nil
}
