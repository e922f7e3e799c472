package host

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistorySaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runic", "history.json")

	h := LoadHistory(path)
	h.Add(Entry{Plugin: "Applications", Title: "Firefox", SelectedAt: time.Now().UTC()})
	h.Add(Entry{Plugin: "Websearch", Title: "weather", SelectedAt: time.Now().UTC()})
	require.NoError(t, h.Save())

	reloaded := LoadHistory(path)
	entries := reloaded.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "weather", entries[0].Title)
	assert.Equal(t, "Firefox", entries[1].Title)
}

func TestHistoryMostRecentFirst(t *testing.T) {
	h := LoadHistory(filepath.Join(t.TempDir(), "history.json"))
	h.Add(Entry{Title: "first"})
	h.Add(Entry{Title: "second"})

	entries := h.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "second", entries[0].Title)
}

func TestHistoryIsBounded(t *testing.T) {
	h := LoadHistory(filepath.Join(t.TempDir(), "history.json"))
	for i := 0; i < maxHistoryEntries+25; i++ {
		h.Add(Entry{Title: fmt.Sprintf("entry %d", i)})
	}

	entries := h.Entries()
	assert.Len(t, entries, maxHistoryEntries)
	assert.Equal(t, fmt.Sprintf("entry %d", maxHistoryEntries+24), entries[0].Title)
}

func TestMissingHistoryFileYieldsEmpty(t *testing.T) {
	h := LoadHistory(filepath.Join(t.TempDir(), "nope.json"))
	assert.Empty(t, h.Entries())
}

func TestCorruptHistoryFileYieldsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	h := LoadHistory(path)
	assert.Empty(t, h.Entries())
}
