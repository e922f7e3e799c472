// Package host runs the interactive side of a session: it spawns the
// provider, turns query and selection events into requests, and folds
// responses into per-plugin result state for a front end to render.
package host

import (
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	"github.com/cockroachdb/errors"
	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	"github.com/runic-sh/runic/lib/config"
	"github.com/runic-sh/runic/lib/ipc"
	"github.com/runic-sh/runic/lib/plugin"
	"github.com/runic-sh/runic/lib/process"
)

// dialTimeout bounds how long the host waits for the provider to start
// listening.
const dialTimeout = 5 * time.Second

// PluginState is one plugin's view state: its latest matches, whether the
// section is shown, and whether the plugin is queryable at all.
type PluginState struct {
	Info    plugin.PluginInfo
	Matches []plugin.Match
	Visible bool
	Enabled bool
}

// Event is a notification for the front end. After receiving one, render
// from Snapshot.
type Event any

// EventReady reports the loaded plugins, once per session.
type EventReady struct {
	Plugins []plugin.PluginInfo
}

// EventMatches reports that one plugin's results changed.
type EventMatches struct {
	Plugin plugin.PluginInfo
}

// EventClose asks the front end to end the session.
type EventClose struct{}

// EventError reports a session-fatal failure, such as the transport going
// away. No further responses will arrive.
type EventError struct {
	Err error
}

// Orchestrator owns the host side of one session.
type Orchestrator struct {
	socket   *ipc.Socket
	provider *process.Provider
	log      zerolog.Logger

	// stdout and copyFunc exist so tests can observe side effects.
	stdout   io.Writer
	copyFunc func([]byte) error

	history *History

	mu        sync.Mutex
	plugins   []*PluginState
	exclusive *plugin.PluginInfo
	lastQuery string

	events chan Event
	quit   sync.Once
}

// Options configure a session.
type Options struct {
	Config    config.Config
	ConfigDir string
	// Stdin is the captured standard input forwarded to the provider.
	Stdin []byte
	Log   zerolog.Logger
}

// Start spawns the provider, connects the transport and begins draining
// responses. A spawn or connect failure is reported once, here; the host
// must not silently come up with zero plugins.
func Start(opts Options) (*Orchestrator, error) {
	socketPath := ipc.SocketPath()

	prov, err := process.Spawn(process.Options{
		Path:       opts.Config.Provider,
		ConfigDir:  opts.ConfigDir,
		Plugins:    opts.Config.Plugins,
		SocketPath: socketPath,
		Stdin:      opts.Stdin,
		Env:        os.Environ(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to spawn provider")
	}

	socket, err := ipc.Dial(socketPath, dialTimeout)
	if err != nil {
		_ = prov.Kill()
		return nil, errors.Wrap(err, "failed to connect to provider")
	}

	o := NewWithSocket(socket, opts.Log)
	o.provider = prov
	return o, nil
}

// NewWithSocket builds an Orchestrator on an existing transport. Used by
// Start and directly by tests.
func NewWithSocket(socket *ipc.Socket, log zerolog.Logger) *Orchestrator {
	o := &Orchestrator{
		socket:   socket,
		log:      log,
		stdout:   os.Stdout,
		copyFunc: copyToClipboard,
		history:  LoadHistory(DefaultHistoryPath()),
		events:   make(chan Event, 16),
	}
	go o.drain()
	return o
}

// Events delivers front-end notifications. Closed when the session ends.
func (o *Orchestrator) Events() <-chan Event { return o.events }

// Snapshot returns a copy of every plugin's current state, in load order.
func (o *Orchestrator) Snapshot() []PluginState {
	o.mu.Lock()
	defer o.mu.Unlock()

	states := make([]PluginState, 0, len(o.plugins))
	for _, p := range o.plugins {
		state := *p
		state.Matches = append([]plugin.Match(nil), p.Matches...)
		states = append(states, state)
	}
	return states
}

// Query sends the new query text, fire and forget. Results arrive
// incrementally as Matches responses, keyed by PluginInfo equality.
func (o *Orchestrator) Query(text string) {
	o.mu.Lock()
	o.lastQuery = text
	o.mu.Unlock()

	if err := o.socket.SendRequest(ipc.Query{Text: text}); err != nil {
		o.fail(err)
	}
}

// Select commits to a match owned by the given plugin.
func (o *Orchestrator) Select(info plugin.PluginInfo, selection plugin.Match) {
	o.history.Add(Entry{Plugin: info.Name, Title: selection.Title, SelectedAt: time.Now()})

	if err := o.socket.SendRequest(ipc.Handle{Plugin: info, Selection: selection}); err != nil {
		o.fail(err)
	}
}

// Shutdown ends the session: tells the provider to quit, persists the
// selection history and reaps the subprocess.
func (o *Orchestrator) Shutdown() {
	o.quit.Do(func() {
		_ = o.socket.SendRequest(ipc.Quit{})
		if err := o.history.Save(); err != nil {
			o.log.Warn().Err(err).Msg("failed to save history")
		}
		_ = o.socket.Close()
		if o.provider != nil {
			done := make(chan struct{})
			go func() {
				_ = o.provider.Wait()
				close(done)
			}()
			select {
			case <-done:
			case <-time.After(2 * time.Second):
				_ = o.provider.Kill()
			}
		}
	})
}

// drain reads responses until the transport dies. Runs on its own
// goroutine so the host's primary loop never blocks on a read.
func (o *Orchestrator) drain() {
	defer close(o.events)
	for {
		resp, err := o.socket.RecvResponse()
		if err != nil {
			if !sessionClosed(err) {
				o.log.Error().Err(err).Msg("transport failed")
				o.events <- EventError{Err: err}
			}
			return
		}
		o.dispatch(resp)
	}
}

// sessionClosed reports whether err is the transport ending rather than
// failing: the peer reached EOF, or our own Shutdown closed the socket
// underneath the blocked read.
func sessionClosed(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe)
}

func (o *Orchestrator) dispatch(resp ipc.Response) {
	switch r := resp.(type) {
	case ipc.Ready:
		o.mu.Lock()
		for _, info := range r.Info {
			// A plugin announced while another holds exclusivity starts
			// suppressed like the rest.
			enabled := o.exclusive == nil || *o.exclusive == info
			o.plugins = append(o.plugins, &PluginState{Info: info, Enabled: enabled})
		}
		o.mu.Unlock()
		o.events <- EventReady{Plugins: r.Info}

	case ipc.Matches:
		o.mu.Lock()
		state := o.lookup(r.Plugin)
		if state == nil || !state.Enabled {
			o.mu.Unlock()
			return
		}
		state.Matches = r.Matches
		state.Visible = len(r.Matches) > 0
		o.mu.Unlock()
		o.events <- EventMatches{Plugin: r.Plugin}

	case ipc.Handled:
		o.handled(r)
	}
}

func (o *Orchestrator) handled(r ipc.Handled) {
	switch r.Result.Action {
	case plugin.ActionClose:
		o.events <- EventClose{}

	case plugin.ActionRefresh:
		o.setExclusive(r.Plugin, r.Result.Exclusive)
		o.mu.Lock()
		text := o.lastQuery
		o.mu.Unlock()
		o.Query(text)

	case plugin.ActionCopy:
		if err := o.copyFunc(r.Result.Data); err != nil {
			o.log.Error().Err(err).Msg("failed to set clipboard content")
		}
		o.events <- EventClose{}

	case plugin.ActionStdout:
		if _, err := o.stdout.Write(r.Result.Data); err != nil {
			o.log.Error().Err(err).Msg("failed to write to stdout")
		}
		o.events <- EventClose{}
	}
}

// setExclusive grants or revokes one plugin's exclusivity. While granted,
// every other plugin is disabled and its results cleared; a non-exclusive
// refresh restores them all.
func (o *Orchestrator) setExclusive(owner plugin.PluginInfo, exclusive bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !exclusive {
		o.exclusive = nil
		for _, p := range o.plugins {
			p.Enabled = true
		}
		return
	}

	o.exclusive = &owner
	for _, p := range o.plugins {
		if p.Info != owner {
			p.Enabled = false
			p.Visible = false
			p.Matches = nil
		}
	}
}

func (o *Orchestrator) lookup(info plugin.PluginInfo) *PluginState {
	for _, p := range o.plugins {
		if p.Info == info {
			return p
		}
	}
	return nil
}

func (o *Orchestrator) fail(err error) {
	o.log.Error().Err(err).Msg("transport send failed")
	// The drain goroutine observes the broken socket and emits the
	// session-fatal event; nothing more to do here.
}

// copyToClipboard places the payload on the clipboard.
func copyToClipboard(data []byte) error {
	return clipboard.WriteAll(clipboardText(data))
}

// clipboardText converts a Copy payload to the text the clipboard protocol
// carries. Sniffed text passes through verbatim; any other payload is
// carried lossily, with invalid UTF-8 sequences replaced.
func clipboardText(data []byte) string {
	mime := mimetype.Detect(data)
	if mime.Is("text/plain") || strings.HasPrefix(mime.String(), "text/") {
		return string(data)
	}
	return strings.ToValidUTF8(string(data), "�")
}
