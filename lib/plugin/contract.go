// Package plugin defines the contract every runic plugin module implements
// and the SDK used to build one.
//
// A plugin is a dynamically loaded unit exposing five operations: Init,
// Info, GetMatches, PollMatches and HandleSelection. GetMatches is a
// request to begin computing matches, not the matches themselves; callers
// poll the returned task id until a non-pending result comes back.
package plugin

// ABIVersion is the contract version tag. Plugin modules export it under
// the VersionSymbol name and the loader rejects modules whose tag differs.
const ABIVersion uint32 = 1

const (
	// VersionSymbol is the exported symbol holding the module's ABIVersion.
	VersionSymbol = "RunicVersion"
	// PluginSymbol is the exported symbol holding the module's Plugin value.
	PluginSymbol = "RunicPlugin"
)

// Plugin is the fixed set of operations a plugin module exposes.
//
// Init may return before initialization work completes; the remaining
// operations must tolerate being called against not-yet-initialized state
// by returning empty results rather than blocking.
type Plugin interface {
	// Init is invoked once at load time with the resolved config directory.
	Init(configDir string)
	// Info identifies the plugin to the user. Pure, callable any time
	// after Init returns.
	Info() PluginInfo
	// GetMatches returns immediately with a new task id, monotonically
	// increasing per plugin instance. The match computation runs
	// concurrently and is observed through PollMatches.
	GetMatches(query string) uint64
	// PollMatches is non-blocking. Callers poll repeatedly until the
	// result is no longer pending. A task id superseded by a newer
	// GetMatches call reports StatusCancelled, never ready.
	PollMatches(taskID uint64) PollResult
	// HandleSelection is invoked when the user commits to one of this
	// plugin's matches. Slow side effects should be spawned and detached,
	// not awaited.
	HandleSelection(selection Match) HandleResult
}

// PluginInfo identifies a plugin to the user. Two equal PluginInfo values
// refer to the same plugin within one session.
type PluginInfo struct {
	Name string
	Icon string
}

// Match is one ranked result produced by a plugin for a query. It is
// immutable once produced.
//
// Description, Icon and ID are optional; the zero value means unset. ID is
// plugin-assigned and meaningless outside that plugin, it only exists so
// the plugin can recognize which of its own matches was selected.
type Match struct {
	Title       string
	Description string
	// UseMarkup marks Title and Description as markup rather than plain text.
	UseMarkup bool
	Icon      string
	ID        uint64
}

// HandleAction discriminates HandleResult.
type HandleAction uint8

const (
	// ActionClose terminates the session.
	ActionClose HandleAction = iota
	// ActionRefresh re-runs the current query. With Exclusive set, all
	// other plugins' results are suppressed until a non-exclusive refresh.
	ActionRefresh
	// ActionCopy places Data on the system clipboard, then closes.
	ActionCopy
	// ActionStdout writes Data to standard output, then closes.
	ActionStdout
)

// HandleResult tells the host how to proceed after a plugin handled a
// selection. It is produced synchronously by HandleSelection and consumed
// exactly once.
type HandleResult struct {
	Action    HandleAction
	Exclusive bool
	Data      []byte
}

// Close terminates the session.
func Close() HandleResult { return HandleResult{Action: ActionClose} }

// Refresh re-runs the query, optionally granting this plugin exclusivity.
func Refresh(exclusive bool) HandleResult {
	return HandleResult{Action: ActionRefresh, Exclusive: exclusive}
}

// Copy places the given bytes on the clipboard and closes the session.
func Copy(data []byte) HandleResult {
	return HandleResult{Action: ActionCopy, Data: data}
}

// Stdout writes the given bytes to standard output and closes the session.
func Stdout(data []byte) HandleResult {
	return HandleResult{Action: ActionStdout, Data: data}
}

// PollStatus is the state of an in-flight match computation.
type PollStatus uint8

const (
	// StatusPending means the computation has not finished yet.
	StatusPending PollStatus = iota
	// StatusReady means the matches are available. Delivered exactly once
	// per task id.
	StatusReady
	// StatusCancelled means the task id is stale: a newer query superseded
	// it, or it never existed, or its result was already delivered.
	StatusCancelled
)

// PollResult is the answer to a PollMatches call. Matches is only set when
// Status is StatusReady.
type PollResult struct {
	Status  PollStatus
	Matches []Match
}
