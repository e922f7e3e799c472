package plugin

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pollUntil(t *testing.T, p Plugin, id uint64) PollResult {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		result := p.PollMatches(id)
		if result.Status != StatusPending {
			return result
		}
		if time.Now().After(deadline) {
			t.Fatal("task never left pending")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestMatchFlow(t *testing.T) {
	p := New(Definition{
		Info: PluginInfo{Name: "Echo"},
		Match: func(query string) []Match {
			return []Match{{Title: query}}
		},
	})
	p.Init(t.TempDir())

	// Init is asynchronous; tasks submitted before it completes
	// legitimately come back empty. Resubmit until the plugin is ready.
	deadline := time.Now().Add(2 * time.Second)
	for {
		id := p.GetMatches("hello")
		result := pollUntil(t, p, id)
		require.Equal(t, StatusReady, result.Status)
		if len(result.Matches) > 0 {
			assert.Equal(t, []Match{{Title: "hello"}}, result.Matches)
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("plugin never became ready")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestInfoReturnsDefinition(t *testing.T) {
	info := PluginInfo{Name: "Websearch", Icon: "help-about"}
	p := New(Definition{Info: info, Match: func(string) []Match { return nil }})

	assert.Equal(t, info, p.Info())
}

func TestMatchesEmptyBeforeInitCompletes(t *testing.T) {
	release := make(chan struct{})
	p := New(Definition{
		Info: PluginInfo{Name: "Slow"},
		Init: func(string) { <-release },
		Match: func(string) []Match {
			return []Match{{Title: "should not appear yet"}}
		},
	})
	p.Init(t.TempDir())

	id := p.GetMatches("q")
	result := pollUntil(t, p, id)
	require.Equal(t, StatusReady, result.Status)
	assert.Empty(t, result.Matches)

	close(release)
}

func TestTaskIDsMonotonic(t *testing.T) {
	p := New(Definition{
		Info:  PluginInfo{Name: "P"},
		Match: func(string) []Match { return nil },
	})
	p.Init(t.TempDir())

	last := uint64(0)
	for i := 0; i < 5; i++ {
		id := p.GetMatches("q")
		require.Greater(t, id, last)
		last = id
	}
}

func TestSupersededTaskCancelled(t *testing.T) {
	p := New(Definition{
		Info:  PluginInfo{Name: "P"},
		Match: func(query string) []Match { return []Match{{Title: query}} },
	})
	p.Init(t.TempDir())

	stale := p.GetMatches("old")
	fresh := p.GetMatches("new")

	result := p.PollMatches(stale)
	assert.Equal(t, StatusCancelled, result.Status)

	result = pollUntil(t, p, fresh)
	assert.Equal(t, StatusReady, result.Status)
}

func TestHandleSelectionDispatches(t *testing.T) {
	var got Match
	p := New(Definition{
		Info:  PluginInfo{Name: "P"},
		Match: func(string) []Match { return nil },
		Handle: func(selection Match) HandleResult {
			got = selection
			return Copy([]byte("payload"))
		},
	})

	selection := Match{Title: "Firefox", ID: 9}
	result := p.HandleSelection(selection)
	assert.Equal(t, selection, got)
	assert.Equal(t, Copy([]byte("payload")), result)
}

func TestNilHandleClosesSession(t *testing.T) {
	p := New(Definition{
		Info:  PluginInfo{Name: "P"},
		Match: func(string) []Match { return nil },
	})

	assert.Equal(t, Close(), p.HandleSelection(Match{Title: "x"}))
}

func TestHandleResultConstructors(t *testing.T) {
	assert.Equal(t, HandleResult{Action: ActionClose}, Close())
	assert.Equal(t, HandleResult{Action: ActionRefresh, Exclusive: true}, Refresh(true))
	assert.Equal(t, HandleResult{Action: ActionRefresh}, Refresh(false))
	assert.Equal(t, HandleResult{Action: ActionCopy, Data: []byte("x")}, Copy([]byte("x")))
	assert.Equal(t, HandleResult{Action: ActionStdout, Data: []byte("y")}, Stdout([]byte("y")))
}
