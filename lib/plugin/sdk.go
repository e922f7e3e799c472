package plugin

import (
	"sync/atomic"

	"github.com/runic-sh/runic/lib/scheduler"
)

// Definition describes a plugin to the SDK. Info and Match are required;
// Init and Handle are optional.
type Definition struct {
	// Info identifies the plugin. Returned verbatim from Plugin.Info.
	Info PluginInfo
	// Init runs once, in the background, with the resolved config
	// directory. Match is not called until it returns.
	Init func(configDir string)
	// Match computes the ranked matches for a query. It runs on its own
	// goroutine and may take as long as it needs; superseded queries have
	// their results discarded, not interrupted.
	Match func(query string) []Match
	// Handle reacts to the user committing to one of this plugin's
	// matches. When nil, selections close the session.
	Handle func(selection Match) HandleResult
}

// New builds a Plugin from a Definition. The returned value implements the
// asynchronous half of the contract with a per-plugin scheduler, so Match
// can stay a plain synchronous function.
func New(def Definition) Plugin {
	m := &module{def: def}
	m.sched = scheduler.New(func(query string) []Match {
		// Tolerate polls against not-yet-initialized state.
		if !m.ready.Load() {
			return nil
		}
		return def.Match(query)
	})
	return m
}

type module struct {
	def   Definition
	sched *scheduler.Scheduler[[]Match]
	ready atomic.Bool
}

func (m *module) Init(configDir string) {
	go func() {
		if m.def.Init != nil {
			m.def.Init(configDir)
		}
		m.ready.Store(true)
	}()
}

func (m *module) Info() PluginInfo { return m.def.Info }

func (m *module) GetMatches(query string) uint64 {
	return m.sched.Submit(query)
}

func (m *module) PollMatches(taskID uint64) PollResult {
	matches, status := m.sched.Poll(taskID)
	switch status {
	case scheduler.Ready:
		return PollResult{Status: StatusReady, Matches: matches}
	case scheduler.Pending:
		return PollResult{Status: StatusPending}
	default:
		return PollResult{Status: StatusCancelled}
	}
}

func (m *module) HandleSelection(selection Match) HandleResult {
	if m.def.Handle == nil {
		return Close()
	}
	return m.def.Handle(selection)
}
