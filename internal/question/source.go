package question

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Entry is one question as stored on disk, before embedding.
type Entry struct {
	ID    flexString `json:"id"`
	Text  string     `json:"text"`
	Alias string     `json:"question"` // accepted in place of text
	Label string     `json:"label"`
	Group string     `json:"group"`
	Tags  flexList   `json:"tags"`
	Tips  flexList   `json:"tips"`
}

// Prompt returns the question text, preferring "text" over "question".
func (e Entry) Prompt() string {
	if t := strings.TrimSpace(e.Text); t != "" {
		return t
	}
	return strings.TrimSpace(e.Alias)
}

// Source supplies question entries. Implementations must return entries in
// a stable order.
type Source interface {
	Categories() ([]string, error)
	Core() ([]Entry, error)
	Category(key string) ([]Entry, error)
}

// DefaultCoreFile is the core set file name inside a DirSource.
const DefaultCoreFile = "core_questions.json"

const categorySuffix = "_questions.json"

// DirSource reads question files from a directory: one core file plus one
// <category>_questions.json per category.
type DirSource struct {
	Dir      string
	CoreFile string   // defaults to DefaultCoreFile
	Allowed  []string // restricts known categories when non-empty
}

func (s DirSource) coreFile() string {
	if s.CoreFile != "" {
		return s.CoreFile
	}
	return DefaultCoreFile
}

// Categories lists the category keys with a file present, sorted.
func (s DirSource) Categories() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.Dir, "*"+categorySuffix))
	if err != nil {
		return nil, err
	}
	allowed := map[string]bool{}
	for _, a := range s.Allowed {
		allowed[a] = true
	}
	var keys []string
	for _, m := range matches {
		base := filepath.Base(m)
		if base == s.coreFile() {
			continue
		}
		key := strings.TrimSuffix(base, categorySuffix)
		if key == "" || (len(allowed) > 0 && !allowed[key]) {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// Core reads the core file.
func (s DirSource) Core() ([]Entry, error) {
	return readEntries(filepath.Join(s.Dir, s.coreFile()))
}

// Category reads <key>_questions.json.
func (s DirSource) Category(key string) ([]Entry, error) {
	return readEntries(filepath.Join(s.Dir, key+categorySuffix))
}

func readEntries(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return entries, nil
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	if string(b) == "null" {
		*f = ""
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a string or number, got %s", b)
	}
	if _, err := strconv.ParseFloat(string(n), 64); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// flexList accepts a JSON string or an array of strings.
type flexList []string

func (f *flexList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s != "" {
			*f = flexList{s}
		}
		return nil
	}
	var list []string
	if err := json.Unmarshal(b, &list); err != nil {
		return err
	}
	*f = list
	return nil
}
