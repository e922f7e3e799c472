// Package provider hosts loaded plugins in a separate process and answers
// the host's requests over the transport.
//
// Isolating plugin execution here means a plugin that panics, deadlocks or
// leaks resources degrades only this subprocess; the interactive host
// detects the broken connection and keeps running.
package provider

import (
	"context"
	"io"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/runic-sh/runic/lib/ipc"
	"github.com/runic-sh/runic/lib/loader"
	"github.com/runic-sh/runic/lib/plugin"
)

// pollInterval bounds how long a finished match computation waits before
// its result is picked up and sent.
const pollInterval = 2 * time.Millisecond

// slot tracks one loaded plugin and its in-flight query task, if any.
type slot struct {
	plugin plugin.Plugin
	info   plugin.PluginInfo
	// task is the id returned by the most recent GetMatches. The contract
	// allows any monotonic id, including zero, so pending tracks whether a
	// poll is outstanding.
	task    uint64
	pending bool
}

// Provider owns the loaded plugins and the provider side of the session.
type Provider struct {
	socket *ipc.Socket
	slots  []*slot
	log    zerolog.Logger
}

// LoadAll loads every configured plugin reference concurrently. Load
// failures are logged and skipped; the session continues with the rest.
// Plugin order follows the configuration order.
func LoadAll(configDir string, refs []string, log zerolog.Logger) []plugin.Plugin {
	loaded := make([]plugin.Plugin, len(refs))

	var group errgroup.Group
	for i, ref := range refs {
		group.Go(func() error {
			p, err := loader.Load(ref, configDir)
			if err != nil {
				// Fatal to this plugin only.
				log.Error().Err(err).Str("plugin", ref).Msg("failed to load plugin")
				return nil
			}
			loaded[i] = p
			return nil
		})
	}
	_ = group.Wait()

	var plugins []plugin.Plugin
	for _, p := range loaded {
		if p != nil {
			plugins = append(plugins, p)
		}
	}
	return plugins
}

// New wraps an established socket and the already loaded plugins.
func New(socket *ipc.Socket, plugins []plugin.Plugin, log zerolog.Logger) *Provider {
	p := &Provider{socket: socket, log: log}
	for _, pl := range plugins {
		p.slots = append(p.slots, &slot{plugin: pl, info: pl.Info()})
	}
	return p
}

// Run announces the loaded plugins with one Ready response, then serves
// requests until Quit, the peer disconnects, or ctx is cancelled. The loop
// blocks only on the next request or a scheduler polling tick, never on a
// plugin's match computation.
func (p *Provider) Run(ctx context.Context) error {
	info := make([]plugin.PluginInfo, 0, len(p.slots))
	for _, s := range p.slots {
		info = append(info, s.info)
	}
	if err := p.socket.SendResponse(ipc.Ready{Info: info}); err != nil {
		return err
	}

	requests := make(chan ipc.Request)
	readErr := make(chan error, 1)
	go func() {
		defer close(requests)
		for {
			req, err := p.socket.RecvRequest()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case requests <- req:
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case req, ok := <-requests:
			if !ok {
				err := <-readErr
				if err == io.EOF {
					p.log.Info().Msg("host disconnected")
					return nil
				}
				return err
			}
			switch r := req.(type) {
			case ipc.Query:
				p.submitAll(r.Text)
			case ipc.Handle:
				if err := p.handle(r); err != nil {
					return err
				}
			case ipc.Quit:
				p.log.Debug().Msg("quit requested")
				return nil
			}
		case <-ticker.C:
			if err := p.pollAll(); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// submitAll begins a new match task on every plugin, superseding any task
// still in flight from the previous query.
func (p *Provider) submitAll(text string) {
	for _, s := range p.slots {
		s.task = p.getMatches(s, text)
		s.pending = true
	}
}

// pollAll checks every outstanding task once. Ready results are sent as
// Matches responses; cancelled tasks were superseded and send nothing.
func (p *Provider) pollAll() error {
	for _, s := range p.slots {
		if !s.pending {
			continue
		}
		result := p.pollMatches(s)
		switch result.Status {
		case plugin.StatusPending:
			continue
		case plugin.StatusReady:
			s.pending = false
			if err := p.socket.SendResponse(ipc.Matches{Plugin: s.info, Matches: result.Matches}); err != nil {
				return err
			}
		case plugin.StatusCancelled:
			s.pending = false
		}
	}
	return nil
}

// handle dispatches a selection to the owning plugin, identified by
// PluginInfo equality, and reports the outcome.
func (p *Provider) handle(req ipc.Handle) error {
	for _, s := range p.slots {
		if s.info != req.Plugin {
			continue
		}
		result, ok := p.handleSelection(s, req.Selection)
		if !ok {
			// The plugin blew up handling its own selection. The session
			// stays up; the host simply never sees a Handled for it.
			return nil
		}
		return p.socket.SendResponse(ipc.Handled{Plugin: s.info, Result: result})
	}
	p.log.Warn().Str("plugin", req.Plugin.Name).Msg("selection for unknown plugin")
	return nil
}

// The contract calls below are panic-guarded: a plugin failing inside its
// own operations must not take down the other plugins' results.

func (p *Provider) getMatches(s *slot, text string) (task uint64) {
	defer p.recoverPlugin(s, "get_matches")
	return s.plugin.GetMatches(text)
}

func (p *Provider) pollMatches(s *slot) (result plugin.PollResult) {
	defer p.recoverPlugin(s, "poll_matches")
	result = plugin.PollResult{Status: plugin.StatusCancelled}
	return s.plugin.PollMatches(s.task)
}

func (p *Provider) handleSelection(s *slot, sel plugin.Match) (result plugin.HandleResult, ok bool) {
	defer p.recoverPlugin(s, "handle_selection")
	return s.plugin.HandleSelection(sel), true
}

func (p *Provider) recoverPlugin(s *slot, op string) {
	if r := recover(); r != nil {
		p.log.Error().
			Str("plugin", s.info.Name).
			Str("op", op).
			Interface("panic", r).
			Msg("plugin panicked")
	}
}
