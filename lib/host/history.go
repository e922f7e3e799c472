package host

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cockroachdb/errors"
)

// maxHistoryEntries bounds the persisted selection history.
const maxHistoryEntries = 100

// Entry records one committed selection.
type Entry struct {
	Plugin     string    `json:"plugin"`
	Title      string    `json:"title"`
	SelectedAt time.Time `json:"selected_at"`
}

// History is the most-recent-first selection history, persisted as JSON.
type History struct {
	mu      sync.Mutex
	path    string
	entries []Entry
}

// DefaultHistoryPath is the per-user history location.
func DefaultHistoryPath() string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "runic", "history.json")
}

// LoadHistory reads the history at path. A missing or unparseable file
// yields an empty history; the launcher never fails over it.
func LoadHistory(path string) *History {
	h := &History{path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		return h
	}
	if err := sonic.Unmarshal(data, &h.entries); err != nil {
		h.entries = nil
	}
	return h
}

// Add prepends an entry, truncating the history to its bound.
func (h *History) Add(entry Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = append([]Entry{entry}, h.entries...)
	if len(h.entries) > maxHistoryEntries {
		h.entries = h.entries[:maxHistoryEntries]
	}
}

// Entries returns a copy, most recent first.
func (h *History) Entries() []Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Entry(nil), h.entries...)
}

// Save writes the history back to disk, creating the directory if needed.
func (h *History) Save() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(h.path), 0o755); err != nil {
		return errors.Wrap(err, "failed to create history directory")
	}
	data, err := sonic.Marshal(h.entries)
	if err != nil {
		return errors.Wrap(err, "failed to serialize history")
	}
	if err := os.WriteFile(h.path, data, 0o644); err != nil {
		return errors.Wrap(err, "failed to write history")
	}
	return nil
}
